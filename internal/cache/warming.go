package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
)

// WeatherFetcher is implemented by the service layer. Fetching through it populates the cache.
// Declared here so the cache package does not depend on the service package.
type WeatherFetcher interface {
	GetCurrentWeather(ctx context.Context, lat, lng float64) (models.CurrentWeather, error)
	GetForecast(ctx context.Context, lat, lng float64, days int) (models.Forecast, error)
}

// CacheWarmer prefetches current conditions and forecasts for a fixed list of coordinates.
type CacheWarmer struct {
	fetcher      WeatherFetcher
	logger       *zap.Logger
	forecastDays int
	timeout      time.Duration

	mu        sync.Mutex
	scheduler *gocron.Scheduler
}

// NewCacheWarmer creates a CacheWarmer. forecastDays is the days variant warmed (its cache key
// includes the day count); timeout bounds a single run.
func NewCacheWarmer(fetcher WeatherFetcher, logger *zap.Logger, forecastDays int, timeout time.Duration) *CacheWarmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CacheWarmer{fetcher: fetcher, logger: logger, forecastDays: forecastDays, timeout: timeout}
}

// Warm fetches current weather and forecast for each location concurrently.
// Returns an aggregated error if any fetch failed.
func (w *CacheWarmer) Warm(ctx context.Context, locations []models.Coordinates) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	w.logger.Info("warming cache", zap.Int("locations", len(locations)))

	var wg sync.WaitGroup
	errCh := make(chan error, 2*len(locations))
	for _, loc := range locations {
		loc := loc
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := w.fetcher.GetCurrentWeather(ctx, loc.Latitude, loc.Longitude); err != nil {
				errCh <- fmt.Errorf("warm current %v,%v: %w", loc.Latitude, loc.Longitude, err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := w.fetcher.GetForecast(ctx, loc.Latitude, loc.Longitude, w.forecastDays); err != nil {
				errCh <- fmt.Errorf("warm forecast %v,%v: %w", loc.Latitude, loc.Longitude, err)
			}
		}()
	}
	wg.Wait()
	close(errCh)
	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}

	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	w.logger.Info("cache warming complete", zap.Int("locations", len(locations)), zap.Int("errors", len(errs)), zap.Float64("duration_seconds", duration))
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("cache warming: %w", errors.Join(errs...))
	}
	return nil
}

// Start runs Warm immediately and then every interval on a background scheduler.
// Calling Start twice without Stop is a no-op.
func (w *CacheWarmer) Start(locations []models.Coordinates, interval time.Duration) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.scheduler != nil {
		return nil
	}
	if interval <= 0 {
		return fmt.Errorf("cache warming interval must be positive, got %s", interval)
	}
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	_, err := s.Every(interval).Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		defer cancel()
		if err := w.Warm(ctx, locations); err != nil {
			w.logger.Warn("cache warm failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule cache warming: %w", err)
	}
	s.StartAsync()
	w.scheduler = s
	return nil
}

// Stop halts the scheduler. Safe to call when not started.
func (w *CacheWarmer) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.scheduler != nil {
		w.scheduler.Stop()
		w.scheduler = nil
	}
}
