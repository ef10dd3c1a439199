package stock

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	result    *Result
	expiresAt time.Time
}

// MemoryIdempotency is an in-process IdempotencyStore with per-key expiry.
type MemoryIdempotency struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryIdempotency keeps each key for ttl after its last write.
func NewMemoryIdempotency(ttl time.Duration) *MemoryIdempotency {
	return &MemoryIdempotency{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (m *MemoryIdempotency) Reserve(ctx context.Context, key string) (*Result, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if e, ok := m.entries[key]; ok && now.Before(e.expiresAt) {
		if e.result != nil {
			r := *e.result
			return &r, false, nil
		}
		return nil, false, nil
	}
	m.entries[key] = memoryEntry{expiresAt: now.Add(m.ttl)}
	return nil, true, nil
}

func (m *MemoryIdempotency) Complete(ctx context.Context, key string, result Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{result: &result, expiresAt: m.now().Add(m.ttl)}
	return nil
}

func (m *MemoryIdempotency) Release(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}
