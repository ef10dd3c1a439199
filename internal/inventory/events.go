package inventory

import (
	"context"
	"time"
)

const EventStockAdjusted = "StockAdjusted"

// Kinds of quantity change carried by StockAdjusted.
const (
	KindAdd    = "add"
	KindRemove = "remove"
	KindSet    = "set"
)

// StockAdjusted is published for every committed quantity change, keyed by
// product id, so the per-product transaction log can be replayed.
type StockAdjusted struct {
	ID               string    `json:"id"`
	Type             string    `json:"type"`
	ProductID        string    `json:"product_id"`
	ProductName      string    `json:"product_name"`
	Kind             string    `json:"kind"`
	Delta            int       `json:"delta"`
	PreviousQuantity int       `json:"previous_quantity"`
	Quantity         int       `json:"quantity"`
	RequestID        string    `json:"request_id,omitempty"`
	UserID           string    `json:"user_id"`
	LowStock         bool      `json:"low_stock"`
	Threshold        int       `json:"threshold"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// CrossedBelow reports whether this change moved the product into low stock.
func (e StockAdjusted) CrossedBelow() bool {
	return e.LowStock && e.PreviousQuantity >= e.Threshold
}

// Publisher delivers events to the stock event log.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}
