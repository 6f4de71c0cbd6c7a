package cache

import (
	"context"
	"encoding/json"
	"time"
)

// ByteStore is a shared cache backend (memcached, redis) storing opaque values with TTLs.
type ByteStore interface {
	GetBytes(ctx context.Context, key string) ([]byte, bool, error)
	SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// DefaultTTL applies to Set calls with ttl <= 0 when a cache is built without its own default.
const DefaultTTL = 5 * time.Minute

// JSONCache adapts a ByteStore to Cache[T] by JSON-encoding values.
type JSONCache[T any] struct {
	store      ByteStore
	defaultTTL time.Duration
}

// NewJSONCache returns a Cache[T] persisting values in store. defaultTTL applies when Set is
// given ttl <= 0, matching InMemoryCache; defaultTTL <= 0 uses DefaultTTL.
func NewJSONCache[T any](store ByteStore, defaultTTL time.Duration) *JSONCache[T] {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &JSONCache[T]{store: store, defaultTTL: defaultTTL}
}

func (c *JSONCache[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	raw, ok, err := c.store.GetBytes(ctx, key)
	if err != nil || !ok {
		return zero, false, err
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return zero, false, err
	}
	return v, true, nil
}

func (c *JSONCache[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.store.SetBytes(ctx, key, raw, ttl)
}
