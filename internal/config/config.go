package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/weather-dashboard/internal/models"
)

// Cache backends accepted by cache.backend and CACHE_BACKEND.
const (
	BackendInMemory  = "in_memory"
	BackendMemcached = "memcached"
	BackendRedis     = "redis"
)

// Config holds service configuration loaded from YAML, .env and the environment.
type Config struct {
	TestingMode bool

	ServerPort        string `validate:"required,numeric"`
	StaticDir         string
	TrustProxyHeaders bool
	AllowedOrigins    []string

	// Empty upstream URLs select the public providers.
	ForecastURL        string        `validate:"omitempty,url"`
	AirQualityURL      string        `validate:"omitempty,url"`
	NominatimURL       string        `validate:"omitempty,url"`
	IPAPIURL           string        `validate:"omitempty,url"`
	UpstreamTimeout    time.Duration `validate:"gt=0"`
	NominatimUserAgent string        `validate:"required"`
	NominatimRPS       float64       `validate:"gt=0"`

	RequestTimeout       time.Duration `validate:"gt=0"`
	SearchQueryMaxLength int           `validate:"gte=0"`

	CacheBackend         string        `validate:"oneof=in_memory memcached redis"`
	CurrentTTL           time.Duration `validate:"gt=0"`
	ForecastTTL          time.Duration `validate:"gt=0"`
	CacheDefaultTTL      time.Duration `validate:"gt=0"`
	CacheCleanupInterval time.Duration

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	RedisAddr     string
	RedisPassword string
	RedisDB       int `validate:"gte=0,lte=15"`

	WarmLocations    []models.Coordinates
	WarmInterval     time.Duration
	WarmForecastDays int `validate:"gte=1,lte=16"`

	RetryAttempts           int `validate:"gte=1"`
	RetryBaseDelay          time.Duration
	RetryMaxDelay           time.Duration
	RateLimitRPS            int `validate:"gte=0"`
	RateLimitBurst          int `validate:"gte=0"`
	BreakerFailureThreshold int `validate:"gte=1"`
	BreakerSuccessThreshold int `validate:"gte=1"`
	BreakerTimeout          time.Duration
	CoalesceTimeout         time.Duration

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration

	OverloadWindow         time.Duration
	OverloadThresholdPct   int `validate:"gte=1,lte=100"`
	DegradedWindow         time.Duration
	DegradedErrorPct       int `validate:"gte=1,lte=100"`
	IdleWindow             time.Duration
	IdleThresholdReqPerMin int `validate:"gte=0"`
	MinimumLifespan        time.Duration

	DefaultLocation models.Location

	BackgroundBasePath string
	BackgroundVariants int `validate:"gte=1"`

	StateFile string
}

type fileConfig struct {
	TestingMode *bool `yaml:"testing_mode"`

	Server struct {
		Port              string   `yaml:"port"`
		StaticDir         string   `yaml:"static_dir"`
		TrustProxyHeaders bool     `yaml:"trust_proxy_headers"`
		AllowedOrigins    []string `yaml:"allowed_origins"`
	} `yaml:"server"`

	Upstreams struct {
		ForecastURL        string  `yaml:"forecast_url"`
		AirQualityURL      string  `yaml:"air_quality_url"`
		NominatimURL       string  `yaml:"nominatim_url"`
		IPAPIURL           string  `yaml:"ipapi_url"`
		Timeout            string  `yaml:"timeout"`
		NominatimUserAgent string  `yaml:"nominatim_user_agent"`
		NominatimRPS       float64 `yaml:"nominatim_rps"`
	} `yaml:"upstreams"`

	Request struct {
		Timeout        string `yaml:"timeout"`
		QueryMaxLength int    `yaml:"query_max_length"`
	} `yaml:"request"`

	Cache struct {
		Backend         string `yaml:"backend"`
		CurrentTTL      string `yaml:"current_ttl"`
		ForecastTTL     string `yaml:"forecast_ttl"`
		DefaultTTL      string `yaml:"default_ttl"`
		CleanupInterval string `yaml:"cleanup_interval"`
		Memcached       struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
		Warm struct {
			Locations []struct {
				Lat float64 `yaml:"lat"`
				Lng float64 `yaml:"lng"`
			} `yaml:"locations"`
			Interval     string `yaml:"interval"`
			ForecastDays int    `yaml:"forecast_days"`
		} `yaml:"warm"`
	} `yaml:"cache"`

	Reliability struct {
		RetryMaxAttempts        int    `yaml:"retry_max_attempts"`
		RetryBaseDelay          string `yaml:"retry_base_delay"`
		RetryMaxDelay           string `yaml:"retry_max_delay"`
		RateLimitRPS            *int   `yaml:"rate_limit_rps"`
		RateLimitBurst          int    `yaml:"rate_limit_burst"`
		BreakerFailureThreshold int    `yaml:"breaker_failure_threshold"`
		BreakerSuccessThreshold int    `yaml:"breaker_success_threshold"`
		BreakerTimeout          string `yaml:"breaker_timeout"`
		CoalesceTimeout         string `yaml:"coalesce_timeout"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`

	Health struct {
		OverloadWindow         string `yaml:"overload_window"`
		OverloadThresholdPct   int    `yaml:"overload_threshold_pct"`
		DegradedWindow         string `yaml:"degraded_window"`
		DegradedErrorPct       int    `yaml:"degraded_error_pct"`
		IdleWindow             string `yaml:"idle_window"`
		IdleThresholdReqPerMin *int   `yaml:"idle_threshold_req_per_min"`
		MinimumLifespan        string `yaml:"minimum_lifespan"`
	} `yaml:"health"`

	DefaultLocation struct {
		Latitude  *float64 `yaml:"latitude"`
		Longitude *float64 `yaml:"longitude"`
		City      string   `yaml:"city"`
		State     string   `yaml:"state"`
		Country   string   `yaml:"country"`
	} `yaml:"default_location"`

	Background struct {
		BasePath string `yaml:"base_path"`
		Variants int    `yaml:"variants"`
	} `yaml:"background"`

	StateFile string `yaml:"state_file"`
}

// envOverlay is the set of variables that override the YAML file. Unset variables leave the
// file value in place.
type envOverlay struct {
	Port               string `envconfig:"PORT"`
	CacheBackend       string `envconfig:"CACHE_BACKEND"`
	MemcachedAddrs     string `envconfig:"MEMCACHED_ADDRS"`
	RedisAddr          string `envconfig:"REDIS_ADDR"`
	RedisPassword      string `envconfig:"REDIS_PASSWORD"`
	NominatimUserAgent string `envconfig:"NOMINATIM_USER_AGENT"`
	StaticDir          string `envconfig:"STATIC_DIR"`
}

var validate = validator.New()

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) relative to the working
// directory. Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	return LoadDir(cwd)
}

// LoadDir is Load rooted at dir. A .env file in dir is loaded first when present; variables
// already set in the process environment win over it.
func LoadDir(dir string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}
	configPath := filepath.Join(dir, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	var ov envOverlay
	if err := envconfig.Process("", &ov); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	cfg := fromFile(&fc)
	applyOverlay(cfg, ov)

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromFile(fc *fileConfig) *Config {
	cfg := &Config{}
	if fc.TestingMode != nil {
		cfg.TestingMode = *fc.TestingMode
	}

	cfg.ServerPort = strings.TrimSpace(fc.Server.Port)
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	cfg.StaticDir = fc.Server.StaticDir
	cfg.TrustProxyHeaders = fc.Server.TrustProxyHeaders
	cfg.AllowedOrigins = fc.Server.AllowedOrigins
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}

	cfg.ForecastURL = fc.Upstreams.ForecastURL
	cfg.AirQualityURL = fc.Upstreams.AirQualityURL
	cfg.NominatimURL = fc.Upstreams.NominatimURL
	cfg.IPAPIURL = fc.Upstreams.IPAPIURL
	cfg.UpstreamTimeout = parseDurationOrZero(fc.Upstreams.Timeout, 5*time.Second)
	cfg.NominatimUserAgent = fc.Upstreams.NominatimUserAgent
	if cfg.NominatimUserAgent == "" {
		cfg.NominatimUserAgent = "LocalWeatherApp/1.0"
	}
	cfg.NominatimRPS = fc.Upstreams.NominatimRPS
	if cfg.NominatimRPS <= 0 {
		cfg.NominatimRPS = 1
	}

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 10*time.Second)
	cfg.SearchQueryMaxLength = fc.Request.QueryMaxLength
	if cfg.SearchQueryMaxLength <= 0 {
		cfg.SearchQueryMaxLength = 100
	}

	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = BackendInMemory
	}
	cfg.CurrentTTL = parseDuration(fc.Cache.CurrentTTL, 10*time.Minute)
	cfg.ForecastTTL = parseDuration(fc.Cache.ForecastTTL, 60*time.Minute)
	cfg.CacheDefaultTTL = parseDuration(fc.Cache.DefaultTTL, 5*time.Minute)
	cfg.CacheCleanupInterval = parseDuration(fc.Cache.CleanupInterval, time.Minute)

	cfg.MemcachedAddrs = strings.TrimSpace(fc.Cache.Memcached.Addrs)
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}
	cfg.RedisAddr = strings.TrimSpace(fc.Cache.Redis.Addr)
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = "localhost:6379"
	}
	cfg.RedisPassword = fc.Cache.Redis.Password
	cfg.RedisDB = fc.Cache.Redis.DB

	for _, l := range fc.Cache.Warm.Locations {
		cfg.WarmLocations = append(cfg.WarmLocations, models.Coordinates{Latitude: l.Lat, Longitude: l.Lng})
	}
	cfg.WarmInterval = parseDurationOrZero(fc.Cache.Warm.Interval, 0)
	cfg.WarmForecastDays = fc.Cache.Warm.ForecastDays
	if cfg.WarmForecastDays <= 0 {
		cfg.WarmForecastDays = 14
	}

	cfg.RetryAttempts = fc.Reliability.RetryMaxAttempts
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	cfg.RetryBaseDelay = parseDuration(fc.Reliability.RetryBaseDelay, 100*time.Millisecond)
	cfg.RetryMaxDelay = parseDuration(fc.Reliability.RetryMaxDelay, 2*time.Second)
	// Explicit zero disables the /api limiter.
	cfg.RateLimitRPS = 100
	if fc.Reliability.RateLimitRPS != nil {
		cfg.RateLimitRPS = *fc.Reliability.RateLimitRPS
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 250
	}
	cfg.BreakerFailureThreshold = fc.Reliability.BreakerFailureThreshold
	if cfg.BreakerFailureThreshold <= 0 {
		cfg.BreakerFailureThreshold = 5
	}
	cfg.BreakerSuccessThreshold = fc.Reliability.BreakerSuccessThreshold
	if cfg.BreakerSuccessThreshold <= 0 {
		cfg.BreakerSuccessThreshold = 2
	}
	cfg.BreakerTimeout = parseDuration(fc.Reliability.BreakerTimeout, 30*time.Second)
	cfg.CoalesceTimeout = parseDuration(fc.Reliability.CoalesceTimeout, 15*time.Second)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	cfg.OverloadWindow = parseDuration(fc.Health.OverloadWindow, 60*time.Second)
	cfg.OverloadThresholdPct = fc.Health.OverloadThresholdPct
	if cfg.OverloadThresholdPct <= 0 {
		cfg.OverloadThresholdPct = 80
	}
	cfg.DegradedWindow = parseDuration(fc.Health.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = fc.Health.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 5
	}
	cfg.IdleWindow = parseDuration(fc.Health.IdleWindow, 5*time.Minute)
	cfg.IdleThresholdReqPerMin = 0
	if fc.Health.IdleThresholdReqPerMin != nil {
		cfg.IdleThresholdReqPerMin = *fc.Health.IdleThresholdReqPerMin
	}
	cfg.MinimumLifespan = parseDuration(fc.Health.MinimumLifespan, 5*time.Minute)

	if fc.DefaultLocation.Latitude != nil && fc.DefaultLocation.Longitude != nil {
		cfg.DefaultLocation = models.Location{
			Latitude:  *fc.DefaultLocation.Latitude,
			Longitude: *fc.DefaultLocation.Longitude,
			City:      fc.DefaultLocation.City,
			State:     fc.DefaultLocation.State,
			Country:   fc.DefaultLocation.Country,
			Source:    models.SourceDefault,
		}
	}

	cfg.BackgroundBasePath = fc.Background.BasePath
	if cfg.BackgroundBasePath == "" {
		cfg.BackgroundBasePath = "/assets/backgrounds"
	}
	cfg.BackgroundVariants = fc.Background.Variants
	if cfg.BackgroundVariants <= 0 {
		cfg.BackgroundVariants = 4
	}

	cfg.StateFile = fc.StateFile
	if cfg.StateFile == "" {
		cfg.StateFile = "weather-dashboard-state.json"
	}
	return cfg
}

func applyOverlay(cfg *Config, ov envOverlay) {
	if v := strings.TrimSpace(ov.Port); v != "" {
		cfg.ServerPort = v
	}
	if v := strings.TrimSpace(strings.ToLower(ov.CacheBackend)); v != "" {
		cfg.CacheBackend = v
	}
	if v := strings.TrimSpace(ov.MemcachedAddrs); v != "" {
		cfg.MemcachedAddrs = v
	}
	if v := strings.TrimSpace(ov.RedisAddr); v != "" {
		cfg.RedisAddr = v
	}
	if ov.RedisPassword != "" {
		cfg.RedisPassword = ov.RedisPassword
	}
	if v := strings.TrimSpace(ov.NominatimUserAgent); v != "" {
		cfg.NominatimUserAgent = v
	}
	if v := strings.TrimSpace(ov.StaticDir); v != "" {
		cfg.StaticDir = v
	}
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validateConfig runs struct-tag validation, then the cross-field rules. RequestTimeout is
// raised above UpstreamTimeout when needed rather than rejected.
func validateConfig(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s failed %q (value %v)", fe.Field(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.RequestTimeout <= cfg.UpstreamTimeout {
		cfg.RequestTimeout = cfg.UpstreamTimeout + time.Second
	}
	if cfg.RetryMaxDelay < cfg.RetryBaseDelay {
		return fmt.Errorf("reliability.retry_max_delay (%s) must be >= retry_base_delay (%s)", cfg.RetryMaxDelay, cfg.RetryBaseDelay)
	}
	switch cfg.CacheBackend {
	case BackendMemcached:
		if cfg.MemcachedAddrs == "" {
			return fmt.Errorf("cache.memcached.addrs required for memcached backend")
		}
	case BackendRedis:
		if cfg.RedisAddr == "" {
			return fmt.Errorf("cache.redis.addr required for redis backend")
		}
	}
	if len(cfg.WarmLocations) > 0 && cfg.WarmInterval < 0 {
		return fmt.Errorf("cache.warm.interval must not be negative")
	}
	for i, l := range cfg.WarmLocations {
		if l.Latitude < -90 || l.Latitude > 90 || l.Longitude < -180 || l.Longitude > 180 {
			return fmt.Errorf("cache.warm.locations[%d] out of range: %v,%v", i, l.Latitude, l.Longitude)
		}
	}
	return nil
}
