package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation.
	HTTPRequestsInFlight prometheus.Gauge

	// Upstream call rate by provider (forecast, airQuality, geocoding, ipLocation) and status.
	UpstreamCallsTotal *prometheus.CounterVec

	// Upstream latency per call. Watch for: p95 > 2s (provider degradation).
	UpstreamDuration *prometheus.HistogramVec

	// Retry attempts per provider. High values mean an unstable upstream.
	UpstreamRetriesTotal *prometheus.CounterVec

	// Circuit breaker state per provider: 0=closed, 1=half-open, 2=open.
	CircuitBreakerState *prometheus.GaugeVec

	CircuitBreakerTransitionsTotal *prometheus.CounterVec

	// Cache hits and misses by cacheType (current, forecast). Hit rate = hits/(hits+misses).
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Cache backend errors by operation and category. Cache errors never fail a request.
	CacheErrorsTotal *prometheus.CounterVec

	// Concurrent misses for the same key. Watch for: repeated stampedes on hot coordinates.
	CacheStampedeDetectedTotal *prometheus.CounterVec

	// Callers that shared another caller's upstream fetch.
	RequestCoalescingHitsTotal *prometheus.CounterVec

	CacheWarmingTotal           prometheus.Counter
	CacheWarmingErrorsTotal     prometheus.Counter
	CacheWarmingDurationSeconds prometheus.Histogram

	// Weather lookups by kind (current, forecast).
	WeatherQueriesTotal *prometheus.CounterVec

	// Optional enrichments (airQuality, reverseGeocode, ipLocation) that degraded to null or default.
	SoftFailuresTotal *prometheus.CounterVec

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	UpstreamCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstreamCallsTotal",
			Help: "Total number of upstream provider calls",
		},
		[]string{"upstream", "status"},
	)
	UpstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstreamDurationSeconds",
			Help:    "Upstream provider latency in seconds (per call)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"upstream", "status"},
	)
	UpstreamRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstreamRetriesTotal",
			Help: "Total number of retry attempts for upstream calls",
		},
		[]string{"upstream"},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"component"},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions",
		},
		[]string{"component", "to"},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of cache hits",
		},
		[]string{"cacheType"},
	)
	CacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheMissesTotal",
			Help: "Total number of cache misses",
		},
		[]string{"cacheType"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Cache backend errors by operation and category",
		},
		[]string{"operation", "category"},
	)
	CacheStampedeDetectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheStampedeDetectedTotal",
			Help: "Cache misses that overlapped another in-progress miss for the same key",
		},
		[]string{"cacheType"},
	)
	RequestCoalescingHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "requestCoalescingHitsTotal",
			Help: "Requests served by joining an in-flight upstream fetch",
		},
		[]string{"cacheType"},
	)
	CacheWarmingTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingTotal",
			Help: "Total number of cache warming runs",
		},
	)
	CacheWarmingErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingErrorsTotal",
			Help: "Cache warming runs with at least one failed location",
		},
	)
	CacheWarmingDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cacheWarmingDurationSeconds",
			Help:    "Duration of a cache warming run in seconds",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 30},
		},
	)
	WeatherQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherQueriesTotal",
			Help: "Total number of weather lookups",
		},
		[]string{"kind"},
	)
	SoftFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "softFailuresTotal",
			Help: "Optional enrichments that failed and were replaced by null or a default",
		},
		[]string{"enrichment"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		UpstreamCallsTotal, UpstreamDuration, UpstreamRetriesTotal,
		CircuitBreakerState, CircuitBreakerTransitionsTotal,
		CacheHitsTotal, CacheMissesTotal, CacheErrorsTotal,
		CacheStampedeDetectedTotal, RequestCoalescingHitsTotal,
		CacheWarmingTotal, CacheWarmingErrorsTotal, CacheWarmingDurationSeconds,
		WeatherQueriesTotal, SoftFailuresTotal,
		RateLimitDeniedTotal,
	)
}

// RegisterCacheSizeGauge exposes the in-memory cache entry count. Safe to call once per process;
// a second registration is ignored.
func RegisterCacheSizeGauge(size func() int) {
	_ = registry.Register(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "cacheEntries",
			Help: "Entries currently held by the in-memory cache (may include expired entries not yet purged)",
		},
		func() float64 { return float64(size()) },
	))
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
