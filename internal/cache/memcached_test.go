package cache

import (
	"context"
	"testing"
	"time"
)

// TestMemcachedExpiration verifies TTL conversion to memcached relative seconds.
func TestMemcachedExpiration(t *testing.T) {
	tests := []struct {
		ttl  time.Duration
		want int32
	}{
		{0, 3600},
		{-time.Second, 3600},
		{500 * time.Millisecond, 1},
		{10 * time.Minute, 600},
		{60 * time.Minute, 3600},
		{31 * 24 * time.Hour, 3600},
	}
	for _, tt := range tests {
		if got := memcachedExpiration(tt.ttl); got != tt.want {
			t.Errorf("memcachedExpiration(%v) = %d, want %d", tt.ttl, got, tt.want)
		}
	}
}

// TestParseAddrs verifies comma-separated address parsing ignores blanks.
func TestParseAddrs(t *testing.T) {
	got := parseAddrs(" a:1 , ,b:2,")
	if len(got) != 2 || got[0] != "a:1" || got[1] != "b:2" {
		t.Errorf("parseAddrs() = %v, want [a:1 b:2]", got)
	}
}

// TestMemcachedStore_CanceledContext verifies a canceled context short-circuits without I/O.
func TestMemcachedStore_CanceledContext(t *testing.T) {
	s := NewMemcachedStore("", 0, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, _, err := s.GetBytes(ctx, "k"); err == nil {
		t.Error("GetBytes() with canceled context error = nil")
	}
	if err := s.SetBytes(ctx, "k", nil, time.Second); err == nil {
		t.Error("SetBytes() with canceled context error = nil")
	}
	if err := s.Delete(ctx, "k"); err == nil {
		t.Error("Delete() with canceled context error = nil")
	}
}
