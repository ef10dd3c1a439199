package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/example/stock-ledger/internal/domain/product"
	"github.com/example/stock-ledger/internal/domain/stock"
	"github.com/example/stock-ledger/internal/infrastructure/store"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ stock.IdempotencyStore = (*RedisIdempotency)(nil)

func newUnreachableClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func TestRedisIdempotency_UnreachableServer(t *testing.T) {
	client := newUnreachableClient()
	defer client.Close()
	idem := NewRedisIdempotency(client, time.Minute)
	ctx := context.Background()

	_, reserved, err := idem.Reserve(ctx, "prod-1:req-1")
	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.False(t, reserved)

	assert.ErrorIs(t, idem.Complete(ctx, "prod-1:req-1", stock.Result{Quantity: 3}), store.ErrUnavailable)
	assert.ErrorIs(t, idem.Release(ctx, "prod-1:req-1"), store.ErrUnavailable)
}

func TestConnect_UnreachableServer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	client, err := Connect(ctx, "127.0.0.1:1", "", 0)

	assert.Error(t, err)
	assert.Nil(t, client)
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisIdempotency) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, NewRedisIdempotency(client, time.Minute)
}

func TestRedisIdempotency_ReserveCompleteReplay(t *testing.T) {
	mr, idem := newTestRedis(t)
	ctx := context.Background()
	key := "prod-1:req-1"

	recorded, reserved, err := idem.Reserve(ctx, key)
	require.NoError(t, err)
	assert.True(t, reserved)
	assert.Nil(t, recorded)

	value, err := mr.Get(requestKeyPrefix + key)
	require.NoError(t, err)
	assert.Equal(t, pendingMarker, value)
	assert.Equal(t, time.Minute, mr.TTL(requestKeyPrefix+key))

	result := stock.Result{ProductID: "prod-1", Previous: 5, Quantity: 3, Attempts: 1}
	require.NoError(t, idem.Complete(ctx, key, result))

	recorded, reserved, err = idem.Reserve(ctx, key)
	require.NoError(t, err)
	assert.False(t, reserved)
	require.NotNil(t, recorded)
	assert.Equal(t, result, *recorded)
}

func TestRedisIdempotency_InFlight(t *testing.T) {
	_, idem := newTestRedis(t)
	ctx := context.Background()

	_, reserved, err := idem.Reserve(ctx, "prod-1:req-1")
	require.NoError(t, err)
	require.True(t, reserved)

	recorded, reserved, err := idem.Reserve(ctx, "prod-1:req-1")

	require.NoError(t, err)
	assert.False(t, reserved)
	assert.Nil(t, recorded)
}

func TestRedisIdempotency_Release(t *testing.T) {
	mr, idem := newTestRedis(t)
	ctx := context.Background()

	_, _, err := idem.Reserve(ctx, "prod-1:req-1")
	require.NoError(t, err)
	require.NoError(t, idem.Release(ctx, "prod-1:req-1"))
	assert.False(t, mr.Exists(requestKeyPrefix+"prod-1:req-1"))

	_, reserved, err := idem.Reserve(ctx, "prod-1:req-1")
	require.NoError(t, err)
	assert.True(t, reserved)
}

func TestRedisIdempotency_Expiry(t *testing.T) {
	mr, idem := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, idem.Complete(ctx, "prod-1:req-1", stock.Result{Quantity: 3}))
	mr.FastForward(time.Minute + time.Second)

	recorded, reserved, err := idem.Reserve(ctx, "prod-1:req-1")

	require.NoError(t, err)
	assert.True(t, reserved)
	assert.Nil(t, recorded)
}

func TestRedisIdempotency_CorruptRecord(t *testing.T) {
	mr, idem := newTestRedis(t)
	require.NoError(t, mr.Set(requestKeyPrefix+"prod-1:req-1", "{not json"))

	_, reserved, err := idem.Reserve(context.Background(), "prod-1:req-1")

	assert.Error(t, err)
	assert.NotErrorIs(t, err, store.ErrUnavailable)
	assert.False(t, reserved)
}

func TestRedisIdempotency_LedgerReplay(t *testing.T) {
	_, idem := newTestRedis(t)
	ctx := context.Background()
	products := store.NewMemoryProductStore()
	p, err := products.Create(ctx, product.Product{Name: "Widget", Description: "A small widget", Category: "hardware", Quantity: 10})
	require.NoError(t, err)
	ledger := stock.NewLedger(products, stock.WithBackoff(0), stock.WithIdempotency(idem))

	first, err := ledger.Apply(ctx, p.ID, stock.Remove(4).WithRequestID("req-1"))
	require.NoError(t, err)
	second, err := ledger.Apply(ctx, p.ID, stock.Remove(4).WithRequestID("req-1"))
	require.NoError(t, err)

	assert.False(t, first.Replayed)
	assert.True(t, second.Replayed)
	assert.Equal(t, 6, second.Quantity)
	stored, err := products.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, stored.Quantity)
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := Connect(context.Background(), mr.Addr(), "", 0)

	require.NoError(t, err)
	assert.NoError(t, client.Close())
}
