package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard/internal/background"
	"github.com/kjstillabower/weather-dashboard/internal/cache"
	"github.com/kjstillabower/weather-dashboard/internal/client"
	"github.com/kjstillabower/weather-dashboard/internal/config"
	"github.com/kjstillabower/weather-dashboard/internal/health"
	"github.com/kjstillabower/weather-dashboard/internal/location"
	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
	"github.com/kjstillabower/weather-dashboard/internal/service"
)

// app is the service layer shared by serve and lookup.
type app struct {
	cfg         *config.Config
	logger      *zap.Logger
	service     *service.WeatherService
	resolver    *location.Resolver
	backgrounds *background.Selector
	caches      caches
}

// caches is the selected cache backend. mem is set only for in_memory; closer and pinger only
// for shared backends.
type caches struct {
	current  cache.Cache[models.CurrentWeather]
	forecast cache.Cache[models.Forecast]
	mem      *cache.InMemoryCache
	closer   io.Closer
	pinger   health.Pinger
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	dir, _ := cmd.Flags().GetString("config-dir")
	if dir == "" {
		return config.Load()
	}
	return config.LoadDir(dir)
}

func clientConfig(cfg *config.Config) client.Config {
	return client.Config{
		Timeout:                 cfg.UpstreamTimeout,
		RetryAttempts:           cfg.RetryAttempts,
		RetryBaseDelay:          cfg.RetryBaseDelay,
		RetryMaxDelay:           cfg.RetryMaxDelay,
		BreakerFailureThreshold: cfg.BreakerFailureThreshold,
		BreakerSuccessThreshold: cfg.BreakerSuccessThreshold,
		BreakerTimeout:          cfg.BreakerTimeout,
	}
}

// buildCaches selects the cache backend. Redis must answer a PING at startup; memcached is
// only pinged, since an unreachable memcached degrades to cache misses.
func buildCaches(ctx context.Context, cfg *config.Config, logger *zap.Logger) (caches, error) {
	switch cfg.CacheBackend {
	case config.BackendMemcached:
		store := cache.NewMemcachedStore(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err := store.Ping(); err != nil {
			logger.Warn("memcached not reachable at startup", zap.String("addrs", cfg.MemcachedAddrs), zap.Error(err))
		}
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
		return caches{
			current:  cache.NewJSONCache[models.CurrentWeather](store, cfg.CacheDefaultTTL),
			forecast: cache.NewJSONCache[models.Forecast](store, cfg.CacheDefaultTTL),
			closer:   store,
			pinger:   health.PingFunc(func(context.Context) error { return store.Ping() }),
		}, nil
	case config.BackendRedis:
		store, err := cache.NewRedisStore(ctx, cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return caches{}, fmt.Errorf("redis cache: %w", err)
		}
		logger.Info("cache backend: redis", zap.String("addr", cfg.RedisAddr))
		return caches{
			current:  cache.NewJSONCache[models.CurrentWeather](store, cfg.CacheDefaultTTL),
			forecast: cache.NewJSONCache[models.Forecast](store, cfg.CacheDefaultTTL),
			closer:   store,
			pinger:   health.PingFunc(func(context.Context) error { return store.Ping() }),
		}, nil
	default:
		mem := cache.NewInMemoryCache(cfg.CacheDefaultTTL, cfg.CacheCleanupInterval)
		observability.RegisterCacheSizeGauge(mem.Len)
		logger.Info("cache backend: in_memory")
		return caches{
			current:  cache.NewTyped[models.CurrentWeather](mem),
			forecast: cache.NewTyped[models.Forecast](mem),
			mem:      mem,
		}, nil
	}
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	cc, err := buildCaches(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	ccfg := clientConfig(cfg)
	meteo := client.NewOpenMeteoClient(cfg.ForecastURL, cfg.AirQualityURL, ccfg)
	geoCfg := ccfg
	geoCfg.UserAgent = cfg.NominatimUserAgent
	geo := client.NewNominatimClient(cfg.NominatimURL, geoCfg, cfg.NominatimRPS)
	ip := client.NewIPAPIClient(cfg.IPAPIURL, ccfg)

	resolver := location.NewResolver(geo, ip, cfg.DefaultLocation, logger)
	selector := background.New(cfg.BackgroundBasePath, cfg.BackgroundVariants, nil)
	svc := service.NewWeatherService(service.Deps{
		Forecast:      meteo,
		AirQuality:    meteo,
		CurrentCache:  cc.current,
		ForecastCache: cc.forecast,
		Geocoder:      resolver,
		Backgrounds:   selector,
		Logger:        logger,
	}, service.Config{
		CurrentTTL:      cfg.CurrentTTL,
		ForecastTTL:     cfg.ForecastTTL,
		CoalesceTimeout: cfg.CoalesceTimeout,
	})

	return &app{
		cfg:         cfg,
		logger:      logger,
		service:     svc,
		resolver:    resolver,
		backgrounds: selector,
		caches:      cc,
	}, nil
}

func (a *app) Close() {
	if a.caches.closer == nil {
		return
	}
	if err := a.caches.closer.Close(); err != nil {
		a.logger.Error("cache close", zap.Error(err))
	}
}
