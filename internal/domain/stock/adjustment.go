package stock

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidAdjustment = errors.New("invalid adjustment")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrConcurrentUpdate  = errors.New("concurrent update conflict")
)

// Direction says whether an adjustment adds or removes stock.
type Direction string

const (
	DirectionAdd    Direction = "add"
	DirectionRemove Direction = "remove"
)

// ParseDirection accepts "add", "remove" and its alias "subtract".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "add":
		return DirectionAdd, nil
	case "remove", "subtract":
		return DirectionRemove, nil
	case "":
		return "", fmt.Errorf("%w: type is required", ErrInvalidAdjustment)
	default:
		return "", fmt.Errorf("%w: type must be add or subtract, got %q", ErrInvalidAdjustment, s)
	}
}

// Adjustment is one add/remove request against a product's quantity.
type Adjustment struct {
	Direction Direction `json:"direction"`
	Quantity  int       `json:"quantity"`
	// RequestID makes the adjustment idempotent when set.
	RequestID string `json:"request_id,omitempty"`
}

// Add returns an adjustment that adds quantity units.
func Add(quantity int) Adjustment {
	return Adjustment{Direction: DirectionAdd, Quantity: quantity}
}

// Remove returns an adjustment that removes quantity units.
func Remove(quantity int) Adjustment {
	return Adjustment{Direction: DirectionRemove, Quantity: quantity}
}

// FromDelta builds an adjustment from a signed delta. A zero delta is invalid.
func FromDelta(delta int) Adjustment {
	if delta < 0 {
		return Remove(-delta)
	}
	return Add(delta)
}

// WithRequestID returns a copy of a carrying the given request id.
func (a Adjustment) WithRequestID(id string) Adjustment {
	a.RequestID = id
	return a
}

// Validate rejects unknown directions and non-positive quantities.
func (a Adjustment) Validate() error {
	if a.Direction != DirectionAdd && a.Direction != DirectionRemove {
		return fmt.Errorf("%w: unknown direction %q", ErrInvalidAdjustment, a.Direction)
	}
	if a.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be a positive integer", ErrInvalidAdjustment)
	}
	return nil
}

// Delta is the signed change the adjustment applies.
func (a Adjustment) Delta() int {
	if a.Direction == DirectionRemove {
		return -a.Quantity
	}
	return a.Quantity
}
