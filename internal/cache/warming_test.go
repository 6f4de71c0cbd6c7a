package cache

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kjstillabower/weather-dashboard/internal/models"
)

type mockWeatherFetcher struct {
	currentCalls  atomic.Int32
	forecastCalls atomic.Int32
	lastDays      atomic.Int32
	err           error
}

func (m *mockWeatherFetcher) GetCurrentWeather(ctx context.Context, lat, lng float64) (models.CurrentWeather, error) {
	m.currentCalls.Add(1)
	if m.err != nil {
		return models.CurrentWeather{}, m.err
	}
	return models.CurrentWeather{Location: models.Coordinates{Latitude: lat, Longitude: lng}}, nil
}

func (m *mockWeatherFetcher) GetForecast(ctx context.Context, lat, lng float64, days int) (models.Forecast, error) {
	m.forecastCalls.Add(1)
	m.lastDays.Store(int32(days))
	if m.err != nil {
		return models.Forecast{}, m.err
	}
	return models.Forecast{Days: []models.ForecastDay{}}, nil
}

var warmLocations = []models.Coordinates{
	{Latitude: 47.6062, Longitude: -122.3321},
	{Latitude: 40.7128, Longitude: -74.006},
}

// TestCacheWarmer_Warm_Success verifies both current and forecast are fetched per location.
func TestCacheWarmer_Warm_Success(t *testing.T) {
	fetcher := &mockWeatherFetcher{}
	warmer := NewCacheWarmer(fetcher, nil, 7, time.Second)

	if err := warmer.Warm(context.Background(), warmLocations); err != nil {
		t.Fatalf("Warm() error = %v, want nil", err)
	}
	if got := fetcher.currentCalls.Load(); got != 2 {
		t.Errorf("current calls = %d, want 2", got)
	}
	if got := fetcher.forecastCalls.Load(); got != 2 {
		t.Errorf("forecast calls = %d, want 2", got)
	}
	if got := fetcher.lastDays.Load(); got != 7 {
		t.Errorf("forecast days = %d, want 7", got)
	}
}

// TestCacheWarmer_Warm_EmptyLocations verifies nil and empty location lists are no-ops.
func TestCacheWarmer_Warm_EmptyLocations(t *testing.T) {
	warmer := NewCacheWarmer(&mockWeatherFetcher{}, nil, 14, 0)

	if err := warmer.Warm(context.Background(), nil); err != nil {
		t.Fatalf("Warm(nil) error = %v, want nil", err)
	}
	if err := warmer.Warm(context.Background(), []models.Coordinates{}); err != nil {
		t.Fatalf("Warm(empty) error = %v, want nil", err)
	}
}

// TestCacheWarmer_Warm_FetcherError verifies failures are aggregated and wrap the cause.
func TestCacheWarmer_Warm_FetcherError(t *testing.T) {
	cause := errors.New("api down")
	warmer := NewCacheWarmer(&mockWeatherFetcher{err: cause}, nil, 14, 0)

	err := warmer.Warm(context.Background(), warmLocations[:1])
	if err == nil {
		t.Fatal("Warm() error = nil, want non-nil")
	}
	if !errors.Is(err, cause) {
		t.Errorf("Warm() error = %v, want wrapping %v", err, cause)
	}
	if !strings.Contains(err.Error(), "warm current") || !strings.Contains(err.Error(), "warm forecast") {
		t.Errorf("Warm() error = %q, want both current and forecast failures", err)
	}
}

// TestCacheWarmer_StartStop verifies the scheduler runs an immediate warm and Stop is idempotent.
func TestCacheWarmer_StartStop(t *testing.T) {
	fetcher := &mockWeatherFetcher{}
	warmer := NewCacheWarmer(fetcher, nil, 14, time.Second)

	if err := warmer.Start(warmLocations, time.Hour); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := warmer.Start(warmLocations, time.Hour); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for fetcher.currentCalls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	warmer.Stop()
	warmer.Stop()

	if got := fetcher.currentCalls.Load(); got < 2 {
		t.Errorf("current calls after Start = %d, want >= 2", got)
	}
}

// TestCacheWarmer_Start_InvalidInterval verifies a non-positive interval is rejected.
func TestCacheWarmer_Start_InvalidInterval(t *testing.T) {
	warmer := NewCacheWarmer(&mockWeatherFetcher{}, nil, 14, 0)
	if err := warmer.Start(warmLocations, 0); err == nil {
		t.Fatal("Start(0) error = nil, want non-nil")
	}
}
