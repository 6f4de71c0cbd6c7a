package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

const keyPrefix = "weatherdash:"

// MemcachedStore implements ByteStore using memcached.
type MemcachedStore struct {
	client *memcache.Client
}

// NewMemcachedStore creates a MemcachedStore. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and maxIdleConns
// configure the client; both use package defaults if zero.
func NewMemcachedStore(addrs string, timeout time.Duration, maxIdleConns int) *MemcachedStore {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedStore{client: client}
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// GetBytes returns (nil, false, nil) on a cache miss.
func (m *MemcachedStore) GetBytes(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	item, err := m.client.Get(keyPrefix + key)
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return item.Value, true, nil
}

func (m *MemcachedStore) SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.client.Set(&memcache.Item{
		Key:        keyPrefix + key,
		Value:      value,
		Expiration: memcachedExpiration(ttl),
	})
}

func (m *MemcachedStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := m.client.Delete(keyPrefix + key)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil
	}
	return err
}

// memcachedExpiration converts ttl to relative seconds. Memcached treats values above 30 days
// as absolute unix timestamps, so those fall back to one hour. Sub-second TTLs round up to 1s.
func memcachedExpiration(ttl time.Duration) int32 {
	const maxRelativeExp = 30 * 24 * 60 * 60
	if ttl <= 0 {
		return 3600
	}
	sec := int64((ttl + time.Second - 1) / time.Second)
	if sec > maxRelativeExp {
		return 3600
	}
	return int32(sec)
}

// Ping checks if memcached is reachable. Used for health checks.
func (m *MemcachedStore) Ping() error {
	return m.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (m *MemcachedStore) Close() error {
	return m.client.Close()
}
