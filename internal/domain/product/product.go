package product

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound   = errors.New("product not found")
	ErrValidation = errors.New("validation error")
)

// Product is a stocked item. Quantity is only changed through the stock ledger.
type Product struct {
	ID          string          `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`
	Description string          `json:"description" db:"description"`
	Category    string          `json:"category" db:"category"`
	Price       decimal.Decimal `json:"price" db:"price"`
	Quantity    int             `json:"quantity" db:"quantity"`
	Version     int64           `json:"version" db:"version"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// Details holds the descriptive fields of a product.
type Details struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
}

// New builds an unsaved product from its details and initial quantity.
func New(d Details, quantity int) (Product, error) {
	if err := d.Validate(); err != nil {
		return Product{}, err
	}
	if quantity < 0 {
		return Product{}, fmt.Errorf("%w: quantity must not be negative", ErrValidation)
	}
	return Product{
		Name:        strings.TrimSpace(d.Name),
		Description: strings.TrimSpace(d.Description),
		Category:    strings.TrimSpace(d.Category),
		Price:       d.Price,
		Quantity:    quantity,
	}, nil
}

// Validate reports the first missing or invalid descriptive field.
func (d Details) Validate() error {
	switch {
	case strings.TrimSpace(d.Name) == "":
		return fmt.Errorf("%w: name is required", ErrValidation)
	case strings.TrimSpace(d.Description) == "":
		return fmt.Errorf("%w: description is required", ErrValidation)
	case strings.TrimSpace(d.Category) == "":
		return fmt.Errorf("%w: category is required", ErrValidation)
	case d.Price.IsNegative():
		return fmt.Errorf("%w: price must not be negative", ErrValidation)
	}
	return nil
}

// Validate checks a complete product record.
func (p Product) Validate() error {
	if err := p.Details().Validate(); err != nil {
		return err
	}
	if p.Quantity < 0 {
		return fmt.Errorf("%w: quantity must not be negative", ErrValidation)
	}
	return nil
}

func (p Product) Details() Details {
	return Details{
		Name:        p.Name,
		Description: p.Description,
		Category:    p.Category,
		Price:       p.Price,
	}
}

// WithDetails returns a copy of p with its descriptive fields replaced.
func (p Product) WithDetails(d Details) Product {
	p.Name = strings.TrimSpace(d.Name)
	p.Description = strings.TrimSpace(d.Description)
	p.Category = strings.TrimSpace(d.Category)
	p.Price = d.Price
	return p
}
