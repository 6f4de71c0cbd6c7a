package http

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard/internal/cache"
	"github.com/kjstillabower/weather-dashboard/internal/health"
	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
	"github.com/kjstillabower/weather-dashboard/internal/traffic"
	"github.com/kjstillabower/weather-dashboard/internal/validation"
)

// ServiceName is reported by /health.
const ServiceName = "weather-dashboard"

// Client-facing messages. Validation messages are returned verbatim with 400.
const (
	msgMissingCoordinates = "Latitude and longitude required"
	msgInvalidCoordinates = "Invalid coordinates"
	msgInvalidDays        = "Days must be an integer between 1 and 16"
	msgQueryRequired      = "Search query required"
	msgQueryTooLong       = "Search query too long"
	msgQueryInvalidChars  = "Search query contains invalid characters"
	msgInvalidIsDay       = "isDay must be true or false"
	msgWeatherFailed      = "Failed to fetch weather data"
	msgForecastFailed     = "Failed to fetch forecast data"
	msgSearchFailed       = "Failed to search locations"
	msgRateLimited        = "Too many requests"
)

// WeatherService is the orchestrator surface the handlers consume.
type WeatherService interface {
	GetCurrentReport(ctx context.Context, lat, lng float64) (models.CurrentReport, error)
	GetForecast(ctx context.Context, lat, lng float64, days int) (models.Forecast, error)
}

// LocationResolver is the location surface the handlers consume.
type LocationResolver interface {
	SearchLocations(ctx context.Context, query string) ([]models.Location, error)
	GetLocationFromIP(ctx context.Context, ip string) models.Location
}

// BackgroundCatalog lists background image paths.
type BackgroundCatalog interface {
	Variants(condition models.Condition, isDay bool) []string
	Available() []string
}

// CacheInspector exposes in-process cache diagnostics.
type CacheInspector interface {
	Stats() cache.Stats
	Clear()
}

// Deps holds the Handler's collaborators. Cache and HealthChecks are optional.
type Deps struct {
	Weather      WeatherService
	Locations    LocationResolver
	Backgrounds  BackgroundCatalog
	Monitor      *health.Monitor
	Tracker      *traffic.Tracker
	Cache        CacheInspector
	HealthChecks map[string]health.Pinger
	Logger       *zap.Logger
	Version      string
	// QueryMaxLength caps search queries in runes; 0 disables the cap.
	QueryMaxLength int
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	weather     WeatherService
	locations   LocationResolver
	backgrounds BackgroundCatalog
	monitor     *health.Monitor
	tracker     *traffic.Tracker
	cache       CacheInspector
	checks      map[string]health.Pinger
	logger      *zap.Logger
	version     string
	queryMaxLen int
}

// NewHandler returns a new Handler.
func NewHandler(d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tracker := d.Tracker
	if tracker == nil {
		tracker = traffic.New(nil, 0)
	}
	monitor := d.Monitor
	if monitor == nil {
		monitor = health.NewMonitor(health.Config{}, tracker, logger, nil)
	}
	version := d.Version
	if version == "" {
		version = "dev"
	}
	return &Handler{
		weather:     d.Weather,
		locations:   d.Locations,
		backgrounds: d.Backgrounds,
		monitor:     monitor,
		tracker:     tracker,
		cache:       d.Cache,
		checks:      d.HealthChecks,
		logger:      logger,
		version:     version,
		queryMaxLen: d.QueryMaxLength,
	}
}

// GetCurrentWeather handles GET /api/weather/current?lat=&lng=.
func (h *Handler) GetCurrentWeather(w http.ResponseWriter, r *http.Request) {
	coords, ok := h.parseCoordinates(w, r)
	if !ok {
		return
	}

	observability.WeatherQueriesTotal.WithLabelValues("current").Inc()
	report, err := h.weather.GetCurrentReport(r.Context(), coords.Latitude, coords.Longitude)
	if err != nil {
		h.tracker.RecordError()
		h.writeUpstreamError(w, r, msgWeatherFailed, err)
		return
	}
	h.tracker.RecordSuccess()
	writeJSON(w, http.StatusOK, report)
}

// GetForecast handles GET /api/weather/forecast?lat=&lng=&days=.
func (h *Handler) GetForecast(w http.ResponseWriter, r *http.Request) {
	coords, ok := h.parseCoordinates(w, r)
	if !ok {
		return
	}
	days, err := validation.ParseDays(r.URL.Query().Get("days"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_DAYS", msgInvalidDays)
		return
	}

	observability.WeatherQueriesTotal.WithLabelValues("forecast").Inc()
	forecast, err := h.weather.GetForecast(r.Context(), coords.Latitude, coords.Longitude, days)
	if err != nil {
		h.tracker.RecordError()
		h.writeUpstreamError(w, r, msgForecastFailed, err)
		return
	}
	h.tracker.RecordSuccess()
	writeJSON(w, http.StatusOK, forecast)
}

// SearchLocations handles GET /api/location/search?query=.
func (h *Handler) SearchLocations(w http.ResponseWriter, r *http.Request) {
	query, err := validation.ValidateQuery(r.URL.Query().Get("query"), h.queryMaxLen)
	if err != nil {
		switch {
		case errors.Is(err, validation.ErrQueryTooLong):
			writeError(w, r, http.StatusBadRequest, "INVALID_QUERY", msgQueryTooLong)
		case errors.Is(err, validation.ErrQueryInvalidChars):
			writeError(w, r, http.StatusBadRequest, "INVALID_QUERY", msgQueryInvalidChars)
		default:
			writeError(w, r, http.StatusBadRequest, "QUERY_REQUIRED", msgQueryRequired)
		}
		return
	}

	observability.WeatherQueriesTotal.WithLabelValues("search").Inc()
	results, err := h.locations.SearchLocations(r.Context(), query)
	if err != nil {
		h.tracker.RecordError()
		h.writeUpstreamError(w, r, msgSearchFailed, err)
		return
	}
	h.tracker.RecordSuccess()
	if results == nil {
		results = []models.Location{}
	}
	writeJSON(w, http.StatusOK, results)
}

// GetLocationFromIP handles GET /api/location/ip. It never fails.
func (h *Handler) GetLocationFromIP(w http.ResponseWriter, r *http.Request) {
	observability.WeatherQueriesTotal.WithLabelValues("ip").Inc()
	loc := h.locations.GetLocationFromIP(r.Context(), clientIP(r))
	writeJSON(w, http.StatusOK, loc)
}

// GetBackgrounds handles GET /api/backgrounds?condition=&isDay=. Without a condition every
// available path is listed.
func (h *Handler) GetBackgrounds(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	condition := strings.TrimSpace(q.Get("condition"))
	if condition == "" {
		writeJSON(w, http.StatusOK, map[string][]string{"backgrounds": h.backgrounds.Available()})
		return
	}
	isDay := true
	if raw := q.Get("isDay"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_PARAMETER", msgInvalidIsDay)
			return
		}
		isDay = v
	}
	writeJSON(w, http.StatusOK, map[string][]string{
		"backgrounds": h.backgrounds.Variants(models.Condition(condition), isDay),
	})
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	report, status := h.monitor.Report(r.Context(), ServiceName, h.version, h.checks)
	writeJSON(w, status, report)
}

// GetCacheStats handles GET /debug/cache. Registered only in testing mode.
func (h *Handler) GetCacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		writeError(w, r, http.StatusNotFound, "NOT_AVAILABLE", "In-process cache not in use")
		return
	}
	writeJSON(w, http.StatusOK, h.cache.Stats())
}

// ClearCache handles DELETE /debug/cache. Registered only in testing mode.
func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		writeError(w, r, http.StatusNotFound, "NOT_AVAILABLE", "In-process cache not in use")
		return
	}
	h.cache.Clear()
	observability.LoggerFromContextOr(r.Context(), h.logger).Info("cache cleared")
	w.WriteHeader(http.StatusNoContent)
}

// parseCoordinates reads lat/lng from the query string and writes a 400 when they are
// missing or invalid.
func (h *Handler) parseCoordinates(w http.ResponseWriter, r *http.Request) (models.Coordinates, bool) {
	q := r.URL.Query()
	coords, err := validation.ParseCoordinates(q.Get("lat"), q.Get("lng"))
	switch {
	case errors.Is(err, validation.ErrMissingCoordinates):
		writeError(w, r, http.StatusBadRequest, "MISSING_COORDINATES", msgMissingCoordinates)
		return coords, false
	case err != nil:
		writeError(w, r, http.StatusBadRequest, "INVALID_COORDINATES", msgInvalidCoordinates)
		return coords, false
	}
	return coords, true
}

// clientIP returns the host part of RemoteAddr. handlers.ProxyHeaders rewrites RemoteAddr
// when proxy headers are trusted.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

// writeError writes the standard error body with the request's correlation ID.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, errorBody{
		Error:     message,
		Code:      code,
		RequestID: observability.CorrelationID(r.Context()),
	})
}

// writeUpstreamError logs err and writes a 500 with a generic message.
func (h *Handler) writeUpstreamError(w http.ResponseWriter, r *http.Request, message string, err error) {
	observability.LoggerFromContextOr(r.Context(), h.logger).Error(message, zap.Error(err))
	writeError(w, r, http.StatusInternalServerError, "UPSTREAM_FAILURE", message)
}
