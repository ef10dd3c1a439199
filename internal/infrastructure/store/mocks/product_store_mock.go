package mocks

import (
	"context"
	"sync"

	"github.com/example/stock-ledger/internal/domain/product"
	"github.com/example/stock-ledger/internal/infrastructure/store"
)

// MockProductStore is a ProductStore backed by an in-memory store that records
// calls and lets tests inject failures and CAS conflicts.
type MockProductStore struct {
	*store.MemoryProductStore

	mu sync.Mutex

	// For tracking calls in tests
	GetCalls  []string
	SwapCalls []SwapCall

	GetErr    error
	ListErr   error
	CreateErr error
	UpdateErr error
	DeleteErr error
	SwapErr   error

	// ConflictsBeforeSwap makes the next N swaps report a moved quantity.
	ConflictsBeforeSwap int

	// BeforeSwap runs before each swap reaches the underlying store; tests use it to
	// interleave a competing writer between the ledger's read and its write.
	BeforeSwap func(ctx context.Context, id string, expected, next int)
}

// SwapCall records parameters passed to CompareAndSwapQuantity
type SwapCall struct {
	ID       string
	Expected int
	Next     int
	Swapped  bool
}

func NewMockProductStore() *MockProductStore {
	return &MockProductStore{MemoryProductStore: store.NewMemoryProductStore()}
}

// Seed creates p directly and returns it with its assigned id.
func (m *MockProductStore) Seed(p product.Product) product.Product {
	created, err := m.MemoryProductStore.Create(context.Background(), p)
	if err != nil {
		panic(err)
	}
	return created
}

func (m *MockProductStore) Get(ctx context.Context, id string) (product.Product, error) {
	m.mu.Lock()
	m.GetCalls = append(m.GetCalls, id)
	err := m.GetErr
	m.mu.Unlock()

	if err != nil {
		return product.Product{}, err
	}
	return m.MemoryProductStore.Get(ctx, id)
}

func (m *MockProductStore) List(ctx context.Context) ([]product.Product, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	return m.MemoryProductStore.List(ctx)
}

func (m *MockProductStore) Create(ctx context.Context, p product.Product) (product.Product, error) {
	if m.CreateErr != nil {
		return product.Product{}, m.CreateErr
	}
	return m.MemoryProductStore.Create(ctx, p)
}

func (m *MockProductStore) UpdateDetails(ctx context.Context, id string, d product.Details) (product.Product, error) {
	if m.UpdateErr != nil {
		return product.Product{}, m.UpdateErr
	}
	return m.MemoryProductStore.UpdateDetails(ctx, id, d)
}

func (m *MockProductStore) Delete(ctx context.Context, id string) error {
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	return m.MemoryProductStore.Delete(ctx, id)
}

func (m *MockProductStore) CompareAndSwapQuantity(ctx context.Context, id string, expected, next int) (bool, error) {
	if m.BeforeSwap != nil {
		m.BeforeSwap(ctx, id, expected, next)
	}

	m.mu.Lock()
	if m.SwapErr != nil {
		err := m.SwapErr
		m.mu.Unlock()
		return false, err
	}
	if m.ConflictsBeforeSwap > 0 {
		m.ConflictsBeforeSwap--
		m.SwapCalls = append(m.SwapCalls, SwapCall{ID: id, Expected: expected, Next: next})
		m.mu.Unlock()
		return false, nil
	}
	m.mu.Unlock()

	swapped, err := m.MemoryProductStore.CompareAndSwapQuantity(ctx, id, expected, next)

	m.mu.Lock()
	m.SwapCalls = append(m.SwapCalls, SwapCall{ID: id, Expected: expected, Next: next, Swapped: swapped})
	m.mu.Unlock()
	return swapped, err
}

// Swaps returns a copy of the recorded swap calls.
func (m *MockProductStore) Swaps() []SwapCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SwapCall(nil), m.SwapCalls...)
}
