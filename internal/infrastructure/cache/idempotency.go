package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/example/stock-ledger/internal/domain/stock"
	"github.com/example/stock-ledger/internal/infrastructure/store"
	"github.com/redis/go-redis/v9"
)

const (
	requestKeyPrefix = "stock:request:"
	pendingMarker    = "pending"
)

// RedisIdempotency implements stock.IdempotencyStore with SETNX reservations.
// A key holds "pending" while its adjustment runs and the JSON result afterwards.
type RedisIdempotency struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisIdempotency(client redis.UniversalClient, ttl time.Duration) *RedisIdempotency {
	return &RedisIdempotency{client: client, ttl: ttl}
}

func (r *RedisIdempotency) Reserve(ctx context.Context, key string) (*stock.Result, bool, error) {
	k := requestKeyPrefix + key

	ok, err := r.client.SetNX(ctx, k, pendingMarker, r.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("%w: reserve request id: %w", store.ErrUnavailable, err)
	}
	if ok {
		return nil, true, nil
	}

	value, err := r.client.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// Expired between SETNX and GET; treat as still contended.
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: read request id: %w", store.ErrUnavailable, err)
	}
	if value == pendingMarker {
		return nil, false, nil
	}

	var result stock.Result
	if err := json.Unmarshal([]byte(value), &result); err != nil {
		return nil, false, fmt.Errorf("decode recorded result for %s: %w", key, err)
	}
	return &result, false, nil
}

func (r *RedisIdempotency) Complete(ctx context.Context, key string, result stock.Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, requestKeyPrefix+key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("%w: record request id: %w", store.ErrUnavailable, err)
	}
	return nil
}

func (r *RedisIdempotency) Release(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, requestKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("%w: release request id: %w", store.ErrUnavailable, err)
	}
	return nil
}

// Connect creates a client and verifies the server answers PING.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}
