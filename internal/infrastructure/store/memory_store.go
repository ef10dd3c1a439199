package store

import (
	"context"
	"sync"
	"time"

	"github.com/example/stock-ledger/internal/domain/product"
	"github.com/google/uuid"
)

// MemoryProductStore keeps products in process memory.
type MemoryProductStore struct {
	mu       sync.RWMutex
	products map[string]product.Product
	order    []string // ids in creation order
	now      func() time.Time
}

func NewMemoryProductStore() *MemoryProductStore {
	return &MemoryProductStore{
		products: make(map[string]product.Product),
		now:      time.Now,
	}
}

func (s *MemoryProductStore) Get(ctx context.Context, id string) (product.Product, error) {
	if err := ctx.Err(); err != nil {
		return product.Product{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return product.Product{}, product.ErrNotFound
	}
	return p, nil
}

func (s *MemoryProductStore) List(ctx context.Context) ([]product.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]product.Product, 0, len(s.order))
	for _, id := range s.order {
		products = append(products, s.products[id])
	}
	return products, nil
}

func (s *MemoryProductStore) Create(ctx context.Context, p product.Product) (product.Product, error) {
	if err := ctx.Err(); err != nil {
		return product.Product{}, err
	}
	if err := p.Validate(); err != nil {
		return product.Product{}, err
	}

	now := s.now()
	p.ID = uuid.New().String()
	p.Version = 1
	p.CreatedAt = now
	p.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
	s.order = append(s.order, p.ID)
	return p, nil
}

func (s *MemoryProductStore) UpdateDetails(ctx context.Context, id string, d product.Details) (product.Product, error) {
	if err := ctx.Err(); err != nil {
		return product.Product{}, err
	}
	if err := d.Validate(); err != nil {
		return product.Product{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return product.Product{}, product.ErrNotFound
	}
	p = p.WithDetails(d)
	p.Version++
	p.UpdatedAt = s.now()
	s.products[id] = p
	return p, nil
}

func (s *MemoryProductStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return product.ErrNotFound
	}
	delete(s.products, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryProductStore) CompareAndSwapQuantity(ctx context.Context, id string, expected, next int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return false, product.ErrNotFound
	}
	if p.Quantity != expected {
		return false, nil
	}
	p.Quantity = next
	p.Version++
	p.UpdatedAt = s.now()
	s.products[id] = p
	return true, nil
}
