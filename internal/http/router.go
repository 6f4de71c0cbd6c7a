package http

import (
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-dashboard/internal/observability"
	"github.com/kjstillabower/weather-dashboard/internal/traffic"
)

// RouterConfig controls route registration and the outer handler chain.
type RouterConfig struct {
	RequestTimeout time.Duration
	// Limiter gates /api routes; nil disables rate limiting.
	Limiter *rate.Limiter
	// Tracker receives rate-limit denials for health evaluation.
	Tracker *traffic.Tracker
	// InFlight counts requests for graceful shutdown; nil disables counting.
	InFlight *InFlightTracker
	// TrustProxyHeaders rewrites RemoteAddr from X-Forwarded-For / X-Real-IP.
	TrustProxyHeaders bool
	// AllowedOrigins for CORS; empty allows any origin.
	AllowedOrigins []string
	// StaticDir, when set, is served at /.
	StaticDir string
	// TestingMode exposes /debug/cache.
	TestingMode bool
}

// NewRouter wires every route and wraps the router with CORS and panic recovery, plus proxy
// header handling when configured.
func NewRouter(h *Handler, logger *zap.Logger, cfg RouterConfig) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	if cfg.InFlight != nil {
		router.Use(InFlightMiddleware(cfg.InFlight))
	}

	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(RateLimitMiddleware(cfg.Limiter, cfg.Tracker))
	api.Use(TimeoutMiddleware(cfg.RequestTimeout))
	api.HandleFunc("/weather/current", h.GetCurrentWeather).Methods(http.MethodGet)
	api.HandleFunc("/weather/forecast", h.GetForecast).Methods(http.MethodGet)
	api.HandleFunc("/location/search", h.SearchLocations).Methods(http.MethodGet)
	api.HandleFunc("/location/ip", h.GetLocationFromIP).Methods(http.MethodGet)
	api.HandleFunc("/backgrounds", h.GetBackgrounds).Methods(http.MethodGet)

	if cfg.TestingMode {
		logger.Warn("testing mode enabled; /debug/cache exposed")
		router.HandleFunc("/debug/cache", h.GetCacheStats).Methods(http.MethodGet)
		router.HandleFunc("/debug/cache", h.ClearCache).Methods(http.MethodDelete)
	}

	if cfg.StaticDir != "" {
		router.PathPrefix("/").Handler(http.FileServer(http.Dir(cfg.StaticDir))).Methods(http.MethodGet, http.MethodHead)
	}

	corsOpts := []handlers.CORSOption{
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", CorrelationIDHeader}),
		handlers.ExposedHeaders([]string{CorrelationIDHeader}),
	}
	if len(cfg.AllowedOrigins) > 0 {
		corsOpts = append(corsOpts, handlers.AllowedOrigins(cfg.AllowedOrigins))
	}

	var out http.Handler = handlers.RecoveryHandler(
		handlers.RecoveryLogger(zap.NewStdLog(logger.Named("recovery"))),
		handlers.PrintRecoveryStack(true),
	)(router)
	out = handlers.CORS(corsOpts...)(out)
	if cfg.TrustProxyHeaders {
		out = handlers.ProxyHeaders(out)
	}
	return out
}
