package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-dashboard/internal/circuitbreaker"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
)

var (
	ErrUpstreamFailure   = errors.New("upstream failure")
	ErrRateLimited       = errors.New("rate limited")
	ErrNotFound          = errors.New("not found")
	ErrBadStatus         = errors.New("unexpected status")
	ErrMalformedResponse = errors.New("malformed response")
)

// Upstream labels used in metrics and breaker names.
const (
	UpstreamForecast   = "forecast"
	UpstreamAirQuality = "airQuality"
	UpstreamGeocoding  = "geocoding"
	UpstreamIPLocation = "ipLocation"
)

// Config carries transport and resilience settings shared by every provider client.
type Config struct {
	// HTTPClient is used when set; tests inject one with a mock transport.
	HTTPClient     *http.Client
	Timeout        time.Duration
	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	UserAgent      string

	BreakerFailureThreshold int
	BreakerSuccessThreshold int
	BreakerTimeout          time.Duration
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 100 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 2 * time.Second
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	return c
}

// requester performs GET requests against one upstream with retries, backoff,
// an optional client-side rate limit and a circuit breaker.
type requester struct {
	upstream       string
	client         *http.Client
	timeout        time.Duration
	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
	userAgent      string
	limiter        *rate.Limiter
	breaker        *circuitbreaker.CircuitBreaker
}

func newRequester(upstream string, cfg Config, limiter *rate.Limiter) *requester {
	cfg = cfg.withDefaults()
	breaker := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: cfg.BreakerFailureThreshold,
		SuccessThreshold: cfg.BreakerSuccessThreshold,
		Timeout:          cfg.BreakerTimeout,
		Component:        upstream,
		Ignore:           isClientError,
		OnStateChange: func(from, to circuitbreaker.State) {
			observability.CircuitBreakerState.WithLabelValues(upstream).Set(float64(to))
			observability.CircuitBreakerTransitionsTotal.WithLabelValues(upstream, to.String()).Inc()
		},
	})
	observability.CircuitBreakerState.WithLabelValues(upstream).Set(float64(circuitbreaker.StateClosed))
	return &requester{
		upstream:       upstream,
		client:         cfg.HTTPClient,
		timeout:        cfg.Timeout,
		retryAttempts:  cfg.RetryAttempts,
		retryBaseDelay: cfg.RetryBaseDelay,
		retryMaxDelay:  cfg.RetryMaxDelay,
		userAgent:      cfg.UserAgent,
		limiter:        limiter,
		breaker:        breaker,
	}
}

// get fetches endpoint?params and returns the body of a 2xx response.
func (r *requester) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < r.retryAttempts; attempt++ {
		if attempt > 0 {
			observability.UpstreamRetriesTotal.WithLabelValues(r.upstream).Inc()
			delay := r.calculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		var body []byte
		err := r.breaker.Call(ctx, func() error {
			var callErr error
			body, callErr = r.call(ctx, endpoint, params)
			return callErr
		})
		if err == nil {
			return body, nil
		}
		if errors.Is(err, circuitbreaker.ErrOpen) {
			return nil, fmt.Errorf("%s: %w", r.upstream, err)
		}

		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
		observability.LoggerFromContext(ctx).Debug("upstream call failed, retrying",
			zap.String("upstream", r.upstream), zap.Int("attempt", attempt+1), zap.Error(err))
	}

	return nil, fmt.Errorf("exhausted retries: %w", lastErr)
}

func (r *requester) call(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%s rate limiter: %w", r.upstream, err)
		}
	}

	start := time.Now()
	reqCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := r.buildRequest(reqCtx, endpoint, params)
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues(r.upstream, "error").Inc()
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues(r.upstream, "error").Inc()
		observability.UpstreamDuration.WithLabelValues(r.upstream, "error").Observe(time.Since(start).Seconds())
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("request timeout: %w", err)
		}
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.UpstreamCallsTotal.WithLabelValues(r.upstream, status).Inc()
	observability.UpstreamDuration.WithLabelValues(r.upstream, status).Observe(time.Since(start).Seconds())

	if err := handleErrorResponse(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return body, nil
}

func (r *requester) buildRequest(ctx context.Context, endpoint string, params url.Values) (*http.Request, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}
	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}
	return req, nil
}

func (r *requester) calculateBackoff(attempt int) time.Duration {
	delay := float64(r.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(r.retryMaxDelay) {
		delay = float64(r.retryMaxDelay)
	}

	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func handleErrorResponse(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: HTTP %d", ErrNotFound, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w", ErrRateLimited)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	default:
		return fmt.Errorf("%w: HTTP %d", ErrBadStatus, resp.StatusCode)
	}
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamFailure) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// isClientError reports failures caused by the request rather than the upstream's health.
// They do not count toward opening the circuit.
func isClientError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrBadStatus) || errors.Is(err, context.Canceled)
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
