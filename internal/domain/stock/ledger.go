package stock

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/example/stock-ledger/internal/infrastructure/store"
	"go.uber.org/zap"
)

const (
	// DefaultMaxAttempts bounds the CAS cycles of one change.
	DefaultMaxAttempts = 5
	// MaxQuantity is the largest quantity the products table can hold.
	MaxQuantity = math.MaxInt32

	defaultBackoff = 2 * time.Millisecond
)

// Result describes a committed quantity change.
type Result struct {
	ProductID string `json:"product_id"`
	Previous  int    `json:"previous_quantity"`
	Quantity  int    `json:"quantity"`
	Attempts  int    `json:"attempts"`
	// Replayed is set when the result was recorded by an earlier call with the same request id.
	Replayed bool `json:"replayed,omitempty"`
}

// Delta is the signed quantity change.
func (r Result) Delta() int {
	return r.Quantity - r.Previous
}

// IdempotencyStore remembers the outcome of adjustments that carry a request id.
//
// Reserve claims key for the caller. It returns the recorded result if the key
// already completed, or reserved=false if another call holds the key.
type IdempotencyStore interface {
	Reserve(ctx context.Context, key string) (recorded *Result, reserved bool, err error)
	Complete(ctx context.Context, key string, result Result) error
	Release(ctx context.Context, key string) error
}

// Ledger is the only writer of product quantities. Every change is a
// read-compute-compare-and-swap cycle retried a bounded number of times.
type Ledger struct {
	products    store.ProductStore
	idempotency IdempotencyStore
	maxAttempts int
	backoff     time.Duration
	logger      *zap.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithMaxAttempts overrides DefaultMaxAttempts. Values below 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.maxAttempts = n
		}
	}
}

// WithBackoff sets the base delay between CAS attempts. Zero disables waiting.
func WithBackoff(d time.Duration) Option {
	return func(l *Ledger) {
		if d >= 0 {
			l.backoff = d
		}
	}
}

// WithIdempotency enables request id replay protection.
func WithIdempotency(s IdempotencyStore) Option {
	return func(l *Ledger) { l.idempotency = s }
}

// WithLogger sets the ledger's logger. A nil logger is ignored.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLedger creates a ledger over products. Without WithIdempotency, request
// ids are ignored.
func NewLedger(products store.ProductStore, opts ...Option) *Ledger {
	l := &Ledger{
		products:    products,
		maxAttempts: DefaultMaxAttempts,
		backoff:     defaultBackoff,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With(zap.String("component", "ledger"))
	return l
}

// Apply adds or removes stock. It never clamps: a removal larger than the
// current quantity fails with ErrInsufficientStock and changes nothing.
func (l *Ledger) Apply(ctx context.Context, productID string, adj Adjustment) (Result, error) {
	if err := adj.Validate(); err != nil {
		return Result{}, err
	}
	if productID == "" {
		return Result{}, fmt.Errorf("%w: product id is required", ErrInvalidAdjustment)
	}

	compute := func(current int) (int, error) {
		if adj.Direction == DirectionRemove {
			if adj.Quantity > current {
				return 0, fmt.Errorf("%w: product %s has %d, cannot remove %d", ErrInsufficientStock, productID, current, adj.Quantity)
			}
			return current - adj.Quantity, nil
		}
		if adj.Quantity > MaxQuantity-current {
			return 0, fmt.Errorf("%w: quantity would exceed %d", ErrInvalidAdjustment, MaxQuantity)
		}
		return current + adj.Quantity, nil
	}

	if adj.RequestID == "" || l.idempotency == nil {
		return l.swap(ctx, productID, compute)
	}
	return l.applyOnce(ctx, productID, adj.RequestID, compute)
}

// Set overwrites the quantity. It is the administrative correction path and
// goes through the same CAS loop as Apply.
func (l *Ledger) Set(ctx context.Context, productID string, quantity int) (Result, error) {
	if quantity < 0 {
		return Result{}, fmt.Errorf("%w: quantity must not be negative", ErrInvalidAdjustment)
	}
	if quantity > MaxQuantity {
		return Result{}, fmt.Errorf("%w: quantity must not exceed %d", ErrInvalidAdjustment, MaxQuantity)
	}
	return l.swap(ctx, productID, func(int) (int, error) { return quantity, nil })
}

func (l *Ledger) applyOnce(ctx context.Context, productID, requestID string, compute func(int) (int, error)) (Result, error) {
	key := productID + ":" + requestID

	recorded, reserved, err := l.idempotency.Reserve(ctx, key)
	if err != nil {
		return Result{}, err
	}
	if recorded != nil {
		r := *recorded
		r.Replayed = true
		return r, nil
	}
	if !reserved {
		return Result{}, fmt.Errorf("%w: request %s is already in progress", ErrConcurrentUpdate, requestID)
	}

	// The key must be settled even if the caller gives up.
	settleCtx := context.WithoutCancel(ctx)

	result, err := l.swap(ctx, productID, compute)
	if err != nil {
		if rerr := l.idempotency.Release(settleCtx, key); rerr != nil {
			l.logger.Error("failed to release request id", zap.String("key", key), zap.Error(rerr))
		}
		return Result{}, err
	}

	if cerr := l.idempotency.Complete(settleCtx, key, result); cerr != nil {
		// The quantity change is committed; only replay protection is lost.
		l.logger.Error("failed to record request id",
			zap.String("key", key),
			zap.Int("quantity", result.Quantity),
			zap.Error(cerr),
		)
	}
	return result, nil
}

func (l *Ledger) swap(ctx context.Context, productID string, compute func(current int) (int, error)) (Result, error) {
	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		p, err := l.products.Get(ctx, productID)
		if err != nil {
			return Result{}, err
		}

		next, err := compute(p.Quantity)
		if err != nil {
			return Result{}, err
		}

		swapped, err := l.products.CompareAndSwapQuantity(ctx, productID, p.Quantity, next)
		if err != nil {
			return Result{}, err
		}
		if swapped {
			return Result{
				ProductID: productID,
				Previous:  p.Quantity,
				Quantity:  next,
				Attempts:  attempt,
			}, nil
		}

		l.logger.Debug("quantity changed during adjustment, retrying",
			zap.String("product_id", productID),
			zap.Int("attempt", attempt),
		)
		if attempt < l.maxAttempts {
			if err := l.wait(ctx, attempt); err != nil {
				return Result{}, err
			}
		}
	}

	l.logger.Warn("adjustment gave up after repeated conflicts",
		zap.String("product_id", productID),
		zap.Int("attempts", l.maxAttempts),
	)
	return Result{}, fmt.Errorf("%w: product %s after %d attempts", ErrConcurrentUpdate, productID, l.maxAttempts)
}

// wait sleeps for a jittered, doubling delay.
func (l *Ledger) wait(ctx context.Context, attempt int) error {
	if l.backoff == 0 {
		return nil
	}
	d := l.backoff << (attempt - 1)
	d = d/2 + rand.N(d/2+1)

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
