package stock

import "github.com/example/stock-ledger/internal/domain/product"

const DefaultLowStockThreshold = 10

// Monitor flags products whose quantity is below a threshold. It holds no
// state besides the threshold, so its answer always matches current quantities.
type Monitor struct {
	threshold int
}

// NewMonitor returns a monitor; a non-positive threshold selects the default.
func NewMonitor(threshold int) Monitor {
	if threshold <= 0 {
		threshold = DefaultLowStockThreshold
	}
	return Monitor{threshold: threshold}
}

func (m Monitor) Threshold() int {
	if m.threshold <= 0 {
		return DefaultLowStockThreshold
	}
	return m.threshold
}

func (m Monitor) IsLowQuantity(quantity int) bool {
	return quantity < m.Threshold()
}

func (m Monitor) IsLow(p product.Product) bool {
	return m.IsLowQuantity(p.Quantity)
}

// Evaluate returns the low-stock products in input order.
func (m Monitor) Evaluate(products []product.Product) []product.Product {
	low := make([]product.Product, 0)
	for _, p := range products {
		if m.IsLow(p) {
			low = append(low, p)
		}
	}
	return low
}
