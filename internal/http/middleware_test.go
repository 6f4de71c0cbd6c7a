package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-dashboard/internal/observability"
	"github.com/kjstillabower/weather-dashboard/internal/traffic"
)

// TestCorrelationIDMiddleware_Generated verifies a fresh ID is generated, echoed and stored in
// the request context along with a logger.
func TestCorrelationIDMiddleware_Generated(t *testing.T) {
	var ctxID string
	var hasLogger bool
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(zap.NewNop()))
	router.HandleFunc("/x", func(w http.ResponseWriter, r *http.Request) {
		ctxID = observability.CorrelationID(r.Context())
		hasLogger = observability.LoggerFromContextOr(r.Context(), nil) != nil
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	got := w.Header().Get(CorrelationIDHeader)
	if len(got) != 36 {
		t.Errorf("generated ID = %q, want a UUID", got)
	}
	if ctxID != got {
		t.Errorf("context ID = %q, want %q", ctxID, got)
	}
	if !hasLogger {
		t.Error("logger missing from context")
	}
}

// TestCorrelationIDMiddleware_Propagated verifies a client-provided ID is kept.
func TestCorrelationIDMiddleware_Propagated(t *testing.T) {
	ts := newTestServer(t, RouterConfig{})
	w := ts.do(t, http.MethodGet, "/health", func(r *http.Request) {
		r.Header.Set(CorrelationIDHeader, "client-provided-id")
	})
	if got := w.Header().Get(CorrelationIDHeader); got != "client-provided-id" {
		t.Errorf("X-Correlation-ID = %q, want client-provided-id", got)
	}
}

// TestMetricsMiddleware_RouteTemplate verifies requests are counted under the route template
// and status class.
func TestMetricsMiddleware_RouteTemplate(t *testing.T) {
	ts := newTestServer(t, RouterConfig{})
	ts.do(t, http.MethodGet, "/api/weather/current?lat=999&lng=0")

	body := ts.do(t, http.MethodGet, "/metrics").Body.String()
	want := `httpRequestsTotal{method="GET",route="/api/weather/current",statusCode="4xx"}`
	if !strings.Contains(body, want) {
		t.Errorf("metrics output missing %s", want)
	}
}

// TestMetricsMiddleware_MetricsEndpoint verifies /metrics is served through the chain.
func TestMetricsMiddleware_MetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, RouterConfig{})
	ts.do(t, http.MethodGet, "/health")

	w := ts.do(t, http.MethodGet, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "httpRequestsTotal") {
		t.Error("metrics output missing httpRequestsTotal")
	}
}

// TestTimeoutMiddleware_CancelsContextAfterTimeout verifies the deadline reaches the handler.
func TestTimeoutMiddleware_CancelsContextAfterTimeout(t *testing.T) {
	var ctxErr error
	h := TimeoutMiddleware(20 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			ctxErr = r.Context().Err()
		case <-time.After(time.Second):
		}
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if ctxErr != context.DeadlineExceeded {
		t.Errorf("ctx.Err() = %v, want context.DeadlineExceeded", ctxErr)
	}
}

// TestTimeoutMiddleware_AppliedToAPI verifies /api handlers run with a deadline.
func TestTimeoutMiddleware_AppliedToAPI(t *testing.T) {
	ts := newTestServer(t, RouterConfig{RequestTimeout: 5 * time.Second})
	ts.do(t, http.MethodGet, "/api/weather/current?lat=1&lng=2")
	if !ts.weather.hadDeadline {
		t.Error("service context has no deadline")
	}
}

// TestRateLimitMiddleware_Returns429WhenExceeded verifies the 429 body, the Retry-After header
// and that denials reach the traffic tracker.
func TestRateLimitMiddleware_Returns429WhenExceeded(t *testing.T) {
	tracker := traffic.New(nil, 0)
	ts := newTestServer(t, RouterConfig{Limiter: rate.NewLimiter(rate.Every(time.Hour), 1), Tracker: tracker})

	if w := ts.do(t, http.MethodGet, "/api/location/ip"); w.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", w.Code)
	}
	w := ts.do(t, http.MethodGet, "/api/location/ip")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing")
	}
	if body := decodeError(t, w); body.Code != "RATE_LIMITED" || body.Error != "Too many requests" {
		t.Errorf("body = %+v", body)
	}
	if n := tracker.DenialCount(time.Minute); n != 1 {
		t.Errorf("DenialCount() = %d, want 1", n)
	}

	// Health is outside /api and never limited.
	if w := ts.do(t, http.MethodGet, "/health"); w.Code != http.StatusOK {
		t.Errorf("/health status = %d, want 200", w.Code)
	}
}

// TestRateLimitMiddleware_NilLimiterPassesThrough verifies a nil limiter is a no-op.
func TestRateLimitMiddleware_NilLimiterPassesThrough(t *testing.T) {
	h := RateLimitMiddleware(nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusTeapot {
		t.Errorf("status = %d, want 418", w.Code)
	}
}

func TestStatusCodeClass(t *testing.T) {
	for code, want := range map[int]string{200: "2xx", 204: "2xx", 404: "4xx", 503: "5xx"} {
		if got := statusCodeClass(code); got != want {
			t.Errorf("statusCodeClass(%d) = %q, want %q", code, got, want)
		}
	}
}
