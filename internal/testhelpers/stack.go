package testhelpers

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard/internal/background"
	"github.com/kjstillabower/weather-dashboard/internal/cache"
	"github.com/kjstillabower/weather-dashboard/internal/client"
	"github.com/kjstillabower/weather-dashboard/internal/location"
	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/service"
)

// Stack is the service layer wired to a FakeUpstreams.
type Stack struct {
	Upstreams   *FakeUpstreams
	Cache       *cache.InMemoryCache
	Service     *service.WeatherService
	Resolver    *location.Resolver
	Backgrounds *background.Selector
}

// StackOption adjusts a Stack before it is built.
type StackOption func(*stackOptions)

type stackOptions struct {
	rng    background.RandomSource
	now    func() time.Time
	logger *zap.Logger
}

// WithRandom fixes the background variant source.
func WithRandom(rng background.RandomSource) StackOption {
	return func(o *stackOptions) { o.rng = rng }
}

// WithClock fixes the service clock.
func WithClock(now func() time.Time) StackOption {
	return func(o *stackOptions) { o.now = now }
}

// WithLogger sets the logger passed to every component.
func WithLogger(l *zap.Logger) StackOption {
	return func(o *stackOptions) { o.logger = l }
}

// ClientConfig is a fast-failing client configuration for tests: one attempt, short timeout,
// and a breaker that will not open during a test.
func ClientConfig() client.Config {
	return client.Config{
		Timeout:                 2 * time.Second,
		RetryAttempts:           1,
		RetryBaseDelay:          time.Millisecond,
		RetryMaxDelay:           time.Millisecond,
		BreakerFailureThreshold: 1000,
	}
}

// NewStack starts a FakeUpstreams and wires real clients, cache, resolver, selector and
// service against it.
func NewStack(t testing.TB, opts ...StackOption) *Stack {
	t.Helper()
	o := stackOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	up := NewFakeUpstreams(t)
	cfg := ClientConfig()
	meteo := client.NewOpenMeteoClient(up.ForecastURL(), up.AirQualityURL(), cfg)
	// High rps keeps the Nominatim limiter out of the way.
	geo := client.NewNominatimClient(up.NominatimURL(), cfg, 1000)
	ip := client.NewIPAPIClient(up.IPAPIURL(), cfg)

	mem := cache.NewInMemoryCache(time.Minute, 0)
	resolver := location.NewResolver(geo, ip, models.Location{}, o.logger)
	selector := background.New("", 4, o.rng)
	svc := service.NewWeatherService(service.Deps{
		Forecast:      meteo,
		AirQuality:    meteo,
		CurrentCache:  cache.NewTyped[models.CurrentWeather](mem),
		ForecastCache: cache.NewTyped[models.Forecast](mem),
		Geocoder:      resolver,
		Backgrounds:   selector,
		Logger:        o.logger,
	}, service.Config{Now: o.now, CoalesceTimeout: 5 * time.Second})

	return &Stack{
		Upstreams:   up,
		Cache:       mem,
		Service:     svc,
		Resolver:    resolver,
		Backgrounds: selector,
	}
}
