//go:build integration
// +build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/kjstillabower/weather-dashboard/internal/models"
)

func newIntegrationMemcached(t *testing.T) *MemcachedStore {
	t.Helper()
	s := NewMemcachedStore("localhost:11211", 500*time.Millisecond, 2)
	if err := s.Ping(); err != nil {
		t.Skipf("memcached not reachable: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// TestMemcachedStore_GetSet_Integration verifies typed values round-trip through memcached.
func TestMemcachedStore_GetSet_Integration(t *testing.T) {
	c := NewJSONCache[models.CurrentWeather](newIntegrationMemcached(t), 0)
	ctx := context.Background()

	val := models.CurrentWeather{Temperature: 55, Condition: models.ConditionFog}
	if err := c.Set(ctx, "current_47.6_-122.3", val, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, ok, err := c.Get(ctx, "current_47.6_-122.3")
	if err != nil || !ok {
		t.Fatalf("Get() = _, %v, %v; want hit", ok, err)
	}
	if got != val {
		t.Errorf("Get() = %+v, want %+v", got, val)
	}
}

// TestMemcachedStore_Get_Miss_Integration verifies an unknown key is a miss without error.
func TestMemcachedStore_Get_Miss_Integration(t *testing.T) {
	s := newIntegrationMemcached(t)

	_, ok, err := s.GetBytes(context.Background(), "definitely-not-present")
	if err != nil {
		t.Fatalf("GetBytes() error = %v", err)
	}
	if ok {
		t.Fatal("GetBytes() ok = true, want false")
	}
}

// TestMemcachedStore_Delete_Integration verifies Delete of a missing key is not an error.
func TestMemcachedStore_Delete_Integration(t *testing.T) {
	s := newIntegrationMemcached(t)
	if err := s.Delete(context.Background(), "definitely-not-present"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
}
