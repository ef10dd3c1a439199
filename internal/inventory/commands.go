package inventory

import (
	"github.com/example/stock-ledger/internal/domain/product"
	"github.com/shopspring/decimal"
)

type CreateProduct struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
}

type UpdateProduct struct {
	ProductID   string          `json:"product_id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	// Quantity, when set, overwrites the stored quantity.
	Quantity *int `json:"quantity,omitempty"`
}

type AdjustStock struct {
	ProductID string `json:"product_id"`
	Type      string `json:"type"`
	Quantity  int    `json:"quantity"`
	RequestID string `json:"request_id,omitempty"`
}

// StockChange is the outcome of AdjustStock.
type StockChange struct {
	ProductID        string `json:"product_id"`
	PreviousQuantity int    `json:"previous_quantity"`
	NewQuantity      int    `json:"new_quantity"`
	LowStock         bool   `json:"low_stock"`
	Replayed         bool   `json:"replayed,omitempty"`
}

// LowStockReport lists products below the threshold.
type LowStockReport struct {
	Threshold int               `json:"threshold"`
	Products  []product.Product `json:"products"`
}
