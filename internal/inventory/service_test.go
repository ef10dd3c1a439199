package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/stock-ledger/internal/auth"
	"github.com/example/stock-ledger/internal/domain/product"
	"github.com/example/stock-ledger/internal/domain/stock"
	"github.com/example/stock-ledger/internal/domain/user"
	"github.com/example/stock-ledger/internal/infrastructure/store"
	"github.com/example/stock-ledger/internal/infrastructure/store/mocks"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockPublisher struct {
	mu     sync.Mutex
	events []StockAdjusted
	keys   []string
	err    error
}

func (m *mockPublisher) Publish(ctx context.Context, key string, event any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.keys = append(m.keys, key)
	m.events = append(m.events, event.(StockAdjusted))
	return nil
}

var (
	staff = auth.Principal{UserID: "user-1", Email: "staff@example.com", Role: user.RoleStaff}
	admin = auth.Principal{UserID: "user-0", Email: "admin@example.com", Role: user.RoleAdmin}
)

func newTestService(opts ...stock.Option) (*Service, *mocks.MockProductStore, *mockPublisher) {
	products := mocks.NewMockProductStore()
	publisher := &mockPublisher{}
	opts = append([]stock.Option{stock.WithBackoff(0)}, opts...)
	ledger := stock.NewLedger(products, opts...)

	svc := NewService(products, ledger, stock.NewMonitor(10), publisher, nil)
	svc.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return svc, products, publisher
}

func widget(quantity int) CreateProduct {
	return CreateProduct{
		Name:        "Widget",
		Description: "A small widget",
		Category:    "hardware",
		Price:       decimal.RequireFromString("4.50"),
		Quantity:    quantity,
	}
}

// ============================================
// Product Tests
// ============================================

func TestService_CreateProduct_Success(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	p, err := svc.CreateProduct(ctx, staff, widget(25))

	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, 25, p.Quantity)

	got, err := svc.GetProduct(ctx, staff, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Widget", got.Name)
}

func TestService_CreateProduct_Validation(t *testing.T) {
	svc, _, _ := newTestService()

	cmd := widget(5)
	cmd.Category = ""
	_, err := svc.CreateProduct(context.Background(), staff, cmd)
	assert.ErrorIs(t, err, product.ErrValidation)

	_, err = svc.CreateProduct(context.Background(), staff, widget(-1))
	assert.ErrorIs(t, err, product.ErrValidation)
}

func TestService_RequiresPrincipal(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.CreateProduct(ctx, auth.Principal{}, widget(1))
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = svc.ListProducts(ctx, auth.Principal{})
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = svc.AdjustStock(ctx, auth.Principal{}, AdjustStock{ProductID: "x", Type: "add", Quantity: 1})
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = svc.LowStockProducts(ctx, auth.Principal{})
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestService_ListProducts_CreationOrder(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	first, err := svc.CreateProduct(ctx, staff, widget(1))
	require.NoError(t, err)
	second, err := svc.CreateProduct(ctx, staff, widget(2))
	require.NoError(t, err)

	list, err := svc.ListProducts(ctx, staff)

	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)
}

func TestService_UpdateProduct_DetailsOnly(t *testing.T) {
	svc, _, publisher := newTestService()
	ctx := context.Background()
	p, err := svc.CreateProduct(ctx, staff, widget(12))
	require.NoError(t, err)

	updated, err := svc.UpdateProduct(ctx, staff, UpdateProduct{
		ProductID:   p.ID,
		Name:        "Gadget",
		Description: "Renamed",
		Category:    "tools",
		Price:       decimal.NewFromInt(8),
	})

	require.NoError(t, err)
	assert.Equal(t, "Gadget", updated.Name)
	assert.Equal(t, 12, updated.Quantity)
	assert.Empty(t, publisher.events)
}

func TestService_UpdateProduct_WithQuantity(t *testing.T) {
	svc, _, publisher := newTestService()
	ctx := context.Background()
	p, err := svc.CreateProduct(ctx, staff, widget(12))
	require.NoError(t, err)
	quantity := 3

	updated, err := svc.UpdateProduct(ctx, staff, UpdateProduct{
		ProductID:   p.ID,
		Name:        "Widget",
		Description: "A small widget",
		Category:    "hardware",
		Price:       decimal.NewFromInt(4),
		Quantity:    &quantity,
	})

	require.NoError(t, err)
	assert.Equal(t, 3, updated.Quantity)
	require.Len(t, publisher.events, 1)
	e := publisher.events[0]
	assert.Equal(t, KindSet, e.Kind)
	assert.Equal(t, -9, e.Delta)
	assert.True(t, e.LowStock)
	assert.True(t, e.CrossedBelow())
}

func TestService_UpdateProduct_Errors(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	negative := -4

	_, err := svc.UpdateProduct(ctx, staff, UpdateProduct{ProductID: "missing", Name: "a", Description: "b", Category: "c"})
	assert.ErrorIs(t, err, product.ErrNotFound)

	_, err = svc.UpdateProduct(ctx, staff, UpdateProduct{ProductID: "missing", Name: "a"})
	assert.ErrorIs(t, err, product.ErrValidation)

	_, err = svc.UpdateProduct(ctx, staff, UpdateProduct{ProductID: "missing", Name: "a", Description: "b", Category: "c", Quantity: &negative})
	assert.ErrorIs(t, err, product.ErrValidation)
}

func TestService_UpdateProduct_QuantityConflictKeepsDetails(t *testing.T) {
	svc, products, publisher := newTestService()
	ctx := context.Background()
	p, err := svc.CreateProduct(ctx, staff, widget(5))
	require.NoError(t, err)
	products.ConflictsBeforeSwap = 100
	quantity := 7

	_, err = svc.UpdateProduct(ctx, staff, UpdateProduct{
		ProductID:   p.ID,
		Name:        "Renamed",
		Description: "Changed",
		Category:    "tools",
		Price:       decimal.NewFromInt(99),
		Quantity:    &quantity,
	})

	assert.ErrorIs(t, err, stock.ErrConcurrentUpdate)
	stored, err := products.MemoryProductStore.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Widget", stored.Name)
	assert.Equal(t, "A small widget", stored.Description)
	assert.Equal(t, "hardware", stored.Category)
	assert.True(t, decimal.RequireFromString("4.50").Equal(stored.Price))
	assert.Equal(t, 5, stored.Quantity)
	assert.Empty(t, publisher.events)
}

func TestService_UpdateProduct_QuantityOutOfRangeWritesNothing(t *testing.T) {
	svc, products, _ := newTestService()
	ctx := context.Background()
	p, err := svc.CreateProduct(ctx, staff, widget(5))
	require.NoError(t, err)
	quantity := stock.MaxQuantity + 1

	_, err = svc.UpdateProduct(ctx, staff, UpdateProduct{
		ProductID:   p.ID,
		Name:        "Renamed",
		Description: "Changed",
		Category:    "tools",
		Price:       decimal.NewFromInt(99),
		Quantity:    &quantity,
	})

	assert.ErrorIs(t, err, product.ErrValidation)
	stored, err := products.MemoryProductStore.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Widget", stored.Name)
	assert.Equal(t, 5, stored.Quantity)
	assert.Empty(t, products.Swaps())
}

func TestService_UpdateProduct_StorageFailureDuringOverwriteKeepsDetails(t *testing.T) {
	svc, products, _ := newTestService()
	ctx := context.Background()
	p, err := svc.CreateProduct(ctx, staff, widget(5))
	require.NoError(t, err)
	products.SwapErr = store.ErrUnavailable
	quantity := 2

	_, err = svc.UpdateProduct(ctx, staff, UpdateProduct{
		ProductID:   p.ID,
		Name:        "Renamed",
		Description: "Changed",
		Category:    "tools",
		Price:       decimal.NewFromInt(1),
		Quantity:    &quantity,
	})

	assert.ErrorIs(t, err, store.ErrUnavailable)
	stored, err := products.MemoryProductStore.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Widget", stored.Name)
	assert.Equal(t, 5, stored.Quantity)
}

func TestService_DeleteProduct(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	p, err := svc.CreateProduct(ctx, staff, widget(1))
	require.NoError(t, err)

	err = svc.DeleteProduct(ctx, staff, p.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, svc.DeleteProduct(ctx, admin, p.ID))

	err = svc.DeleteProduct(ctx, admin, p.ID)
	assert.ErrorIs(t, err, product.ErrNotFound)

	_, err = svc.GetProduct(ctx, staff, p.ID)
	assert.ErrorIs(t, err, product.ErrNotFound)
}

// ============================================
// Stock Tests
// ============================================

func TestService_AdjustStock_Remove(t *testing.T) {
	svc, _, publisher := newTestService()
	ctx := context.Background()
	p, err := svc.CreateProduct(ctx, staff, widget(15))
	require.NoError(t, err)

	change, err := svc.AdjustStock(ctx, staff, AdjustStock{ProductID: p.ID, Type: "subtract", Quantity: 7})

	require.NoError(t, err)
	assert.Equal(t, 15, change.PreviousQuantity)
	assert.Equal(t, 8, change.NewQuantity)
	assert.True(t, change.LowStock)

	require.Len(t, publisher.events, 1)
	e := publisher.events[0]
	assert.Equal(t, p.ID, publisher.keys[0])
	assert.Equal(t, EventStockAdjusted, e.Type)
	assert.Equal(t, KindRemove, e.Kind)
	assert.Equal(t, -7, e.Delta)
	assert.Equal(t, "Widget", e.ProductName)
	assert.Equal(t, staff.UserID, e.UserID)
	assert.Equal(t, 10, e.Threshold)
	assert.True(t, e.CrossedBelow())
}

func TestService_AdjustStock_Add(t *testing.T) {
	svc, _, publisher := newTestService()
	ctx := context.Background()
	p, err := svc.CreateProduct(ctx, staff, widget(2))
	require.NoError(t, err)

	change, err := svc.AdjustStock(ctx, staff, AdjustStock{ProductID: p.ID, Type: "add", Quantity: 20})

	require.NoError(t, err)
	assert.Equal(t, 22, change.NewQuantity)
	assert.False(t, change.LowStock)
	require.Len(t, publisher.events, 1)
	assert.False(t, publisher.events[0].CrossedBelow())
}

func TestService_AdjustStock_Errors(t *testing.T) {
	svc, _, publisher := newTestService()
	ctx := context.Background()
	p, err := svc.CreateProduct(ctx, staff, widget(3))
	require.NoError(t, err)

	tests := []struct {
		name string
		cmd  AdjustStock
		want error
	}{
		{"insufficient", AdjustStock{ProductID: p.ID, Type: "remove", Quantity: 4}, stock.ErrInsufficientStock},
		{"unknown type", AdjustStock{ProductID: p.ID, Type: "multiply", Quantity: 4}, stock.ErrInvalidAdjustment},
		{"zero quantity", AdjustStock{ProductID: p.ID, Type: "add", Quantity: 0}, stock.ErrInvalidAdjustment},
		{"not found", AdjustStock{ProductID: "missing", Type: "add", Quantity: 1}, product.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AdjustStock(ctx, staff, tt.cmd)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	got, err := svc.GetProduct(ctx, staff, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Quantity)
	assert.Empty(t, publisher.events)
}

func TestService_AdjustStock_ConcurrentUpdate(t *testing.T) {
	svc, products, _ := newTestService(stock.WithMaxAttempts(2))
	ctx := context.Background()
	p, err := svc.CreateProduct(ctx, staff, widget(3))
	require.NoError(t, err)
	products.ConflictsBeforeSwap = 2

	_, err = svc.AdjustStock(ctx, staff, AdjustStock{ProductID: p.ID, Type: "add", Quantity: 1})

	assert.ErrorIs(t, err, stock.ErrConcurrentUpdate)
}

func TestService_AdjustStock_PublishFailureStillSucceeds(t *testing.T) {
	svc, _, publisher := newTestService()
	ctx := context.Background()
	p, err := svc.CreateProduct(ctx, staff, widget(30))
	require.NoError(t, err)
	publisher.err = errors.New("broker down")

	change, err := svc.AdjustStock(ctx, staff, AdjustStock{ProductID: p.ID, Type: "remove", Quantity: 5})

	require.NoError(t, err)
	assert.Equal(t, 25, change.NewQuantity)
	got, err := svc.GetProduct(ctx, staff, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 25, got.Quantity)
}

func TestService_AdjustStock_ReplayedRequest(t *testing.T) {
	svc, _, publisher := newTestService(stock.WithIdempotency(stock.NewMemoryIdempotency(time.Hour)))
	ctx := context.Background()
	p, err := svc.CreateProduct(ctx, staff, widget(30))
	require.NoError(t, err)
	cmd := AdjustStock{ProductID: p.ID, Type: "remove", Quantity: 5, RequestID: "req-1"}

	first, err := svc.AdjustStock(ctx, staff, cmd)
	require.NoError(t, err)
	second, err := svc.AdjustStock(ctx, staff, cmd)
	require.NoError(t, err)

	assert.Equal(t, 25, first.NewQuantity)
	assert.Equal(t, 25, second.NewQuantity)
	assert.True(t, second.Replayed)
	assert.Len(t, publisher.events, 1)
	assert.Equal(t, "req-1", publisher.events[0].RequestID)
}

func TestService_AdjustStock_StorageUnavailable(t *testing.T) {
	svc, products, _ := newTestService()
	ctx := context.Background()
	p, err := svc.CreateProduct(ctx, staff, widget(30))
	require.NoError(t, err)
	products.SwapErr = store.ErrUnavailable

	_, err = svc.AdjustStock(ctx, staff, AdjustStock{ProductID: p.ID, Type: "add", Quantity: 1})

	assert.ErrorIs(t, err, store.ErrUnavailable)
}

func TestService_NilPublisher(t *testing.T) {
	products := mocks.NewMockProductStore()
	svc := NewService(products, stock.NewLedger(products), stock.NewMonitor(0), nil, nil)
	ctx := context.Background()
	p, err := svc.CreateProduct(ctx, staff, widget(3))
	require.NoError(t, err)

	change, err := svc.AdjustStock(ctx, staff, AdjustStock{ProductID: p.ID, Type: "add", Quantity: 1})

	require.NoError(t, err)
	assert.Equal(t, 4, change.NewQuantity)
}

func TestService_LowStockProducts(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	low, err := svc.CreateProduct(ctx, staff, widget(9))
	require.NoError(t, err)
	_, err = svc.CreateProduct(ctx, staff, widget(10))
	require.NoError(t, err)
	empty, err := svc.CreateProduct(ctx, staff, widget(0))
	require.NoError(t, err)

	report, err := svc.LowStockProducts(ctx, staff)

	require.NoError(t, err)
	assert.Equal(t, 10, report.Threshold)
	require.Len(t, report.Products, 2)
	assert.Equal(t, low.ID, report.Products[0].ID)
	assert.Equal(t, empty.ID, report.Products[1].ID)
}
