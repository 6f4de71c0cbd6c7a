//go:build integration
// +build integration

package client

import (
	"context"
	"os"
	"testing"
	"time"
)

func skipUnlessLive(t *testing.T) {
	t.Helper()
	if os.Getenv("LIVE_UPSTREAMS") == "" {
		t.Skip("LIVE_UPSTREAMS not set, skipping live upstream test")
	}
}

func TestOpenMeteoClient_Current_Integration(t *testing.T) {
	skipUnlessLive(t)
	c := NewOpenMeteoClient("", "", Config{Timeout: 10 * time.Second})

	cur, err := c.Current(context.Background(), 47.6062, -122.3321)
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if cur.Temperature < -80 || cur.Temperature > 140 {
		t.Errorf("Current() temperature = %v, outside plausible Fahrenheit range", cur.Temperature)
	}
}

func TestOpenMeteoClient_Daily_Integration(t *testing.T) {
	skipUnlessLive(t)
	c := NewOpenMeteoClient("", "", Config{Timeout: 10 * time.Second})

	d, err := c.Daily(context.Background(), 47.6062, -122.3321, 3)
	if err != nil {
		t.Fatalf("Daily() error = %v", err)
	}
	if len(d.Time) != 3 {
		t.Errorf("Daily() returned %d days, want 3", len(d.Time))
	}
}

func TestNominatimClient_Search_Integration(t *testing.T) {
	skipUnlessLive(t)
	c := NewNominatimClient("", Config{Timeout: 10 * time.Second}, 1)

	places, err := c.Search(context.Background(), "Seattle", 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(places) == 0 {
		t.Fatal("Search() returned no places for Seattle")
	}
}
