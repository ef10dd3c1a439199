package store

import (
	"context"
	"errors"

	"github.com/example/stock-ledger/internal/domain/product"
)

// ErrUnavailable wraps infrastructure failures (connection loss, timeouts, driver errors).
var ErrUnavailable = errors.New("storage unavailable")

// ProductStore is the durable product table. CompareAndSwapQuantity is the only
// write path for quantity after creation.
type ProductStore interface {
	Get(ctx context.Context, id string) (product.Product, error)
	List(ctx context.Context) ([]product.Product, error)
	Create(ctx context.Context, p product.Product) (product.Product, error)
	UpdateDetails(ctx context.Context, id string, d product.Details) (product.Product, error)
	Delete(ctx context.Context, id string) error

	// CompareAndSwapQuantity sets quantity to next only if it still equals expected.
	// It returns false without error when the stored quantity has moved.
	CompareAndSwapQuantity(ctx context.Context, id string, expected, next int) (bool, error)
}
