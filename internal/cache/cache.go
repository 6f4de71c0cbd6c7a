package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Cache is the typed, context-aware view the service layer consumes.
// Get returns (value, true, nil) on hit and (zero, false, nil) on miss or expiry.
type Cache[T any] interface {
	Get(ctx context.Context, key string) (T, bool, error)
	Set(ctx context.Context, key string, value T, ttl time.Duration) error
}

// entry is what InMemoryCache stores per key.
type entry struct {
	value     any
	createdAt time.Time
	ttl       time.Duration
}

// InMemoryCache is a process-local key/value store with per-entry expiration.
// Expired entries are evicted on Get and by a background janitor. Safe for concurrent use.
type InMemoryCache struct {
	// mu orders Set against Get's miss-then-evict so an eviction never removes a newer Set.
	mu         sync.Mutex
	store      *gocache.Cache
	defaultTTL time.Duration
}

// NewInMemoryCache creates a cache. defaultTTL applies when Set is given ttl <= 0;
// cleanupInterval controls how often the janitor purges expired entries (<= 0 disables it).
func NewInMemoryCache(defaultTTL, cleanupInterval time.Duration) *InMemoryCache {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &InMemoryCache{
		store:      gocache.New(defaultTTL, cleanupInterval),
		defaultTTL: defaultTTL,
	}
}

// Set stores value under key. A Set for an existing key replaces the value and its expiration.
func (c *InMemoryCache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Set(key, entry{value: value, createdAt: time.Now(), ttl: ttl}, ttl)
}

// Get returns the value for key if present and not expired. A found-but-expired entry is
// removed as a side effect.
func (c *InMemoryCache) Get(key string) (any, bool) {
	if v, ok := c.store.Get(key); ok {
		if e, ok := v.(entry); ok {
			return e.value, true
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// go-cache hides expired items from Get, so re-check under mu before evicting.
	v, ok := c.store.Get(key)
	if !ok {
		c.store.Delete(key)
		return nil, false
	}
	e, ok := v.(entry)
	if !ok {
		c.store.Delete(key)
		return nil, false
	}
	return e.value, true
}

// Delete removes key. Deleting a missing key is a no-op.
func (c *InMemoryCache) Delete(key string) {
	c.store.Delete(key)
}

// Clear removes every entry.
func (c *InMemoryCache) Clear() {
	c.store.Flush()
}

// Len returns the number of stored entries, which may include expired ones not yet purged.
func (c *InMemoryCache) Len() int {
	return c.store.ItemCount()
}

// Keys returns the keys of unexpired entries, sorted.
func (c *InMemoryCache) Keys() []string {
	items := c.store.Items()
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// EntryStats describes one cached entry for diagnostics.
type EntryStats struct {
	Key     string        `json:"key"`
	Age     time.Duration `json:"-"`
	TTL     time.Duration `json:"-"`
	AgeMS   int64         `json:"ageMs"`
	TTLMS   int64         `json:"ttlMs"`
	Expired bool          `json:"expired"`
}

// Stats is a diagnostic snapshot; no ordering or consistency guarantee with concurrent writers.
type Stats struct {
	Size    int          `json:"size"`
	Keys    []string     `json:"keys"`
	Entries []EntryStats `json:"entries"`
}

// Stats returns a snapshot of the cache contents.
func (c *InMemoryCache) Stats() Stats {
	now := time.Now()
	items := c.store.Items()
	s := Stats{Size: c.store.ItemCount(), Keys: make([]string, 0, len(items))}
	for k, it := range items {
		e, ok := it.Object.(entry)
		if !ok {
			continue
		}
		age := now.Sub(e.createdAt)
		s.Keys = append(s.Keys, k)
		s.Entries = append(s.Entries, EntryStats{
			Key:     k,
			Age:     age,
			TTL:     e.ttl,
			AgeMS:   age.Milliseconds(),
			TTLMS:   e.ttl.Milliseconds(),
			Expired: age > e.ttl,
		})
	}
	sort.Strings(s.Keys)
	sort.Slice(s.Entries, func(i, j int) bool { return s.Entries[i].Key < s.Entries[j].Key })
	return s
}

// Typed adapts an InMemoryCache to Cache[T]. Several Typed views may share one InMemoryCache;
// keys must not collide across value types.
type Typed[T any] struct {
	mem *InMemoryCache
}

// NewTyped returns a Cache[T] backed by mem.
func NewTyped[T any](mem *InMemoryCache) *Typed[T] {
	return &Typed[T]{mem: mem}
}

func (t *Typed[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	v, ok := t.mem.Get(key)
	if !ok {
		return zero, false, nil
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false, nil
	}
	return typed, true, nil
}

func (t *Typed[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	t.mem.Set(key, value, ttl)
	return nil
}
