package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kjstillabower/weather-dashboard/internal/cache"
	"github.com/kjstillabower/weather-dashboard/internal/client"
	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/normalize"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
	"github.com/kjstillabower/weather-dashboard/internal/suntimes"
)

// ErrFetchFailed wraps every mandatory upstream failure returned by WeatherService.
var ErrFetchFailed = errors.New("failed to fetch weather data")

const (
	DefaultCurrentTTL  = 10 * time.Minute
	DefaultForecastTTL = 60 * time.Minute

	cacheTypeCurrent  = "current"
	cacheTypeForecast = "forecast"

	dateLayout = "2006-01-02"
	// Millisecond precision with a literal Z, as browsers emit from Date.toISOString.
	timestampLayout = "2006-01-02T15:04:05.000Z07:00"
)

// ReverseGeocoder resolves coordinates to a place name. Returns nil when nothing is known.
type ReverseGeocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) *models.LocationInfo
}

// BackgroundChooser picks a background for a condition.
type BackgroundChooser interface {
	Choose(condition models.Condition, isDay bool) models.BackgroundChoice
}

// Deps are the collaborators a WeatherService needs. Geocoder may be nil, in which case
// reports carry no location info.
type Deps struct {
	Forecast      client.ForecastClient
	AirQuality    client.AirQualityClient
	CurrentCache  cache.Cache[models.CurrentWeather]
	ForecastCache cache.Cache[models.Forecast]
	Geocoder      ReverseGeocoder
	Backgrounds   BackgroundChooser
	Logger        *zap.Logger
}

// Config tunes caching. Zero TTLs use the defaults; CoalesceTimeout 0 disables coalescing.
type Config struct {
	CurrentTTL      time.Duration
	ForecastTTL     time.Duration
	CoalesceTimeout time.Duration
	// Now overrides the clock; used for timestamps and the forecast's "today".
	Now func() time.Time
}

// WeatherService orchestrates weather retrieval using cache-aside with upstream fallback,
// and composes the current-conditions report from one mandatory fetch and two enrichments.
type WeatherService struct {
	forecast      client.ForecastClient
	air           client.AirQualityClient
	currentCache  cache.Cache[models.CurrentWeather]
	forecastCache cache.Cache[models.Forecast]
	geocoder      ReverseGeocoder
	backgrounds   BackgroundChooser
	logger        *zap.Logger

	currentTTL  time.Duration
	forecastTTL time.Duration
	now         func() time.Time

	stampede          *stampedeTracker
	currentCoalescer  *requestCoalescer[models.CurrentWeather]
	forecastCoalescer *requestCoalescer[models.Forecast]
}

// NewWeatherService creates a WeatherService. Forecast, AirQuality, both caches and
// Backgrounds are required.
func NewWeatherService(deps Deps, cfg Config) *WeatherService {
	if cfg.CurrentTTL <= 0 {
		cfg.CurrentTTL = DefaultCurrentTTL
	}
	if cfg.ForecastTTL <= 0 {
		cfg.ForecastTTL = DefaultForecastTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &WeatherService{
		forecast:      deps.Forecast,
		air:           deps.AirQuality,
		currentCache:  deps.CurrentCache,
		forecastCache: deps.ForecastCache,
		geocoder:      deps.Geocoder,
		backgrounds:   deps.Backgrounds,
		logger:        logger,
		currentTTL:    cfg.CurrentTTL,
		forecastTTL:   cfg.ForecastTTL,
		now:           cfg.Now,
		stampede:      newStampedeTracker(),
	}
	if cfg.CoalesceTimeout > 0 {
		s.currentCoalescer = newRequestCoalescer[models.CurrentWeather](cfg.CoalesceTimeout)
		s.forecastCoalescer = newRequestCoalescer[models.Forecast](cfg.CoalesceTimeout)
	}
	return s
}

// CurrentKey is the cache key for current conditions at a point.
func CurrentKey(lat, lng float64) string {
	return "current_" + formatCoord(lat) + "_" + formatCoord(lng)
}

// ForecastKey is the cache key for a forecast of the given length at a point.
func ForecastKey(lat, lng float64, days int) string {
	return "forecast_" + formatCoord(lat) + "_" + formatCoord(lng) + "_" + strconv.Itoa(days)
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// GetCurrentWeather returns current conditions, from cache when fresh.
func (s *WeatherService) GetCurrentWeather(ctx context.Context, lat, lng float64) (models.CurrentWeather, error) {
	return cacheAside(ctx, s, s.currentCache, s.currentCoalescer, cacheTypeCurrent, CurrentKey(lat, lng), s.currentTTL,
		func(ctx context.Context) (models.CurrentWeather, error) {
			return s.fetchCurrent(ctx, lat, lng)
		})
}

// GetForecast returns up to days daily entries from today onwards, from cache when fresh.
func (s *WeatherService) GetForecast(ctx context.Context, lat, lng float64, days int) (models.Forecast, error) {
	f, err := cacheAside(ctx, s, s.forecastCache, s.forecastCoalescer, cacheTypeForecast, ForecastKey(lat, lng, days), s.forecastTTL,
		func(ctx context.Context) (models.Forecast, error) {
			return s.fetchForecast(ctx, lat, lng, days)
		})
	if err != nil {
		return models.Forecast{}, err
	}
	// A cached forecast can outlive midnight.
	return dropPastDays(f, s.now().Format(dateLayout)), nil
}

// dropPastDays returns f without days before today. The input is left untouched since it may
// be shared with the cache.
func dropPastDays(f models.Forecast, today string) models.Forecast {
	i := 0
	for i < len(f.Days) && f.Days[i].Date < today {
		i++
	}
	if i == 0 {
		return f
	}
	days := make([]models.ForecastDay, len(f.Days)-i)
	copy(days, f.Days[i:])
	return models.Forecast{Days: days}
}

// GetAirQuality fetches air quality without caching. Any failure yields nil.
func (s *WeatherService) GetAirQuality(ctx context.Context, lat, lng float64) *models.AirQuality {
	reading, err := s.air.AirQuality(ctx, lat, lng)
	if err != nil {
		observability.SoftFailuresTotal.WithLabelValues("airQuality").Inc()
		observability.LoggerFromContextOr(ctx, s.logger).Debug("air quality unavailable",
			zap.String("category", string(client.CategorizeError(err))), zap.Error(err))
		return nil
	}
	aq := &models.AirQuality{
		AQI:      reading.EuropeanAQI,
		Category: normalize.CategorizeAirQuality(reading.EuropeanAQI),
	}
	if reading.PM10 != nil {
		aq.PM10 = *reading.PM10
	}
	if reading.PM25 != nil {
		aq.PM25 = *reading.PM25
	}
	return aq
}

// GetCurrentReport fetches current conditions, air quality and the place name concurrently.
// Only current conditions are mandatory; its failure cancels the enrichments.
func (s *WeatherService) GetCurrentReport(ctx context.Context, lat, lng float64) (models.CurrentReport, error) {
	var (
		current models.CurrentWeather
		air     *models.AirQuality
		info    *models.LocationInfo
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		current, err = s.GetCurrentWeather(gctx, lat, lng)
		return err
	})
	g.Go(func() error {
		air = s.GetAirQuality(gctx, lat, lng)
		return nil
	})
	if s.geocoder != nil {
		g.Go(func() error {
			info = s.geocoder.ReverseGeocode(gctx, lat, lng)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return models.CurrentReport{}, err
	}

	return models.CurrentReport{
		CurrentWeather:  current,
		BackgroundImage: s.backgrounds.Choose(current.Condition, current.IsDay),
		AirQuality:      air,
		LocationInfo:    info,
	}, nil
}

// cacheAside serves key from c, or runs fetch on a miss and stores the result for ttl.
// Cache errors are counted and treated as misses. With a coalescer, concurrent misses on the
// same key share one fetch and one cache write.
func cacheAside[T any](ctx context.Context, s *WeatherService, c cache.Cache[T], co *requestCoalescer[T], cacheType, key string, ttl time.Duration, fetch func(context.Context) (T, error)) (T, error) {
	logger := observability.LoggerFromContextOr(ctx, s.logger)
	start := time.Now()

	cached, ok, err := c.Get(ctx, key)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get", categorizeCacheError(err)).Inc()
		logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		observability.CacheHitsTotal.WithLabelValues(cacheType).Inc()
		logger.Debug("cache hit", zap.String("key", key))
		return cached, nil
	}
	observability.CacheMissesTotal.WithLabelValues(cacheType).Inc()

	if n := s.stampede.RecordMiss(key); n > 1 {
		observability.CacheStampedeDetectedTotal.WithLabelValues(cacheType).Inc()
	}
	defer s.stampede.Resolve(key)

	fetchAndStore := func(ctx context.Context) (T, error) {
		v, err := fetch(ctx)
		if err != nil {
			return v, err
		}
		if setErr := c.Set(ctx, key, v, ttl); setErr != nil {
			observability.CacheErrorsTotal.WithLabelValues("set", categorizeCacheError(setErr)).Inc()
			logger.Warn("cache set failed", zap.String("key", key), zap.Error(setErr))
		}
		return v, nil
	}

	var v T
	if co != nil {
		var shared bool
		v, shared, err = co.GetOrDo(ctx, key, fetchAndStore)
		if shared {
			observability.RequestCoalescingHitsTotal.WithLabelValues(cacheType).Inc()
		}
	} else {
		v, err = fetchAndStore(ctx)
	}
	if err != nil {
		var zero T
		return zero, err
	}
	logger.Debug("upstream fetch cached", zap.String("key", key), zap.Duration("duration", time.Since(start)))
	return v, nil
}

func (s *WeatherService) fetchCurrent(ctx context.Context, lat, lng float64) (models.CurrentWeather, error) {
	cur, err := s.forecast.Current(ctx, lat, lng)
	if err != nil {
		return models.CurrentWeather{}, fmt.Errorf("%w: current conditions: %w", ErrFetchFailed, err)
	}
	return models.CurrentWeather{
		Temperature:   roundHalfUp(cur.Temperature),
		Condition:     normalize.MapWeatherCode(cur.WeatherCode),
		WindSpeed:     cur.WindSpeed,
		WindDirection: cur.WindDirection,
		IsDay:         cur.IsDay,
		Timestamp:     s.now().UTC().Format(timestampLayout),
		Location:      models.Coordinates{Latitude: lat, Longitude: lng},
	}, nil
}

func (s *WeatherService) fetchForecast(ctx context.Context, lat, lng float64, days int) (models.Forecast, error) {
	series, err := s.forecast.Daily(ctx, lat, lng, days)
	if err != nil {
		return models.Forecast{}, fmt.Errorf("%w: forecast: %w", ErrFetchFailed, err)
	}

	today := s.now().Format(dateLayout)
	out := make([]models.ForecastDay, 0, len(series.Time))
	for i, date := range series.Time {
		if date < today {
			continue
		}
		day := models.ForecastDay{
			Date:                date,
			TempMax:             roundHalfUp(floatAt(series.TempMax, i)),
			TempMin:             roundHalfUp(floatAt(series.TempMin, i)),
			Condition:           normalize.MapWeatherCode(intAt(series.WeatherCode, i)),
			PrecipitationChance: percent(floatAt(series.PrecipitationProbability, i)),
			Humidity:            percent(floatAt(series.HumidityMean, i)),
			Sunrise:             stringAt(series.Sunrise, i),
			Sunset:              stringAt(series.Sunset, i),
		}
		if day.Sunrise == "" || day.Sunset == "" {
			rise, set, err := suntimes.Compute(lat, lng, date, series.UTCOffsetSeconds)
			if err == nil {
				if day.Sunrise == "" {
					day.Sunrise = rise
				}
				if day.Sunset == "" {
					day.Sunset = set
				}
			}
		}
		out = append(out, day)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return models.Forecast{Days: out}, nil
}

// roundHalfUp rounds halves toward +Inf, so -2.5 becomes -2.
func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}

func percent(v float64) int {
	p := roundHalfUp(v)
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

func floatAt(s []*float64, i int) float64 {
	if i < len(s) && s[i] != nil {
		return *s[i]
	}
	return 0
}

func intAt(s []*int, i int) int {
	if i < len(s) && s[i] != nil {
		return *s[i]
	}
	// Absent codes fall outside the table and map to clear.
	return -1
}

func stringAt(s []*string, i int) string {
	if i < len(s) && s[i] != nil {
		return *s[i]
	}
	return ""
}

// categorizeCacheError returns a stable label for cache error metrics (timeout, connection, unknown).
func categorizeCacheError(err error) string {
	if err == nil {
		return "unknown"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	errStr := err.Error()
	if strings.Contains(errStr, "timeout") {
		return "timeout"
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "network") {
		return "connection"
	}
	return "unknown"
}
