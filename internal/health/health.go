// Package health derives the service health status from traffic outcomes and the shutdown flag.
package health

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard/internal/traffic"
)

// Status values reported by /health.
const (
	StatusHealthy      = "healthy"
	StatusIdle         = "idle"
	StatusDegraded     = "degraded"
	StatusOverloaded   = "overloaded"
	StatusShuttingDown = "shutting-down"
)

// Config holds the thresholds used by Evaluate. A zero window disables its check.
type Config struct {
	OverloadWindow       time.Duration
	OverloadThresholdPct int
	// RateLimitRPS is the per-second admission rate the overload threshold is relative to.
	// Zero disables the overload check.
	RateLimitRPS float64

	DegradedWindow   time.Duration
	DegradedErrorPct int

	IdleWindow             time.Duration
	IdleThresholdReqPerMin int
	// MinimumLifespan suppresses idle until the process has been up this long.
	MinimumLifespan time.Duration
}

// Result is one health evaluation.
type Result struct {
	Status     string
	StatusCode int
	Reason     string
}

// Monitor evaluates health. Safe for concurrent use.
type Monitor struct {
	cfg          Config
	tracker      *traffic.Tracker
	logger       *zap.Logger
	startTime    time.Time
	now          func() time.Time
	shuttingDown atomic.Bool

	mu   sync.Mutex
	prev string
}

// NewMonitor creates a Monitor reading outcomes from tracker. clock may be nil.
func NewMonitor(cfg Config, tracker *traffic.Tracker, logger *zap.Logger, clock func() time.Time) *Monitor {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{cfg: cfg, tracker: tracker, logger: logger, startTime: clock(), now: clock}
}

// SetShuttingDown sets the drain flag. While true, Evaluate reports shutting-down with 503.
func (m *Monitor) SetShuttingDown(v bool) {
	m.shuttingDown.Store(v)
}

// IsShuttingDown reports whether the process is draining.
func (m *Monitor) IsShuttingDown() bool {
	return m.shuttingDown.Load()
}

// Evaluate returns the current status. Priority: shutting-down > overloaded > degraded > idle > healthy.
// Status transitions are logged once at info.
func (m *Monitor) Evaluate() Result {
	r := m.evaluate()
	m.mu.Lock()
	if m.prev != "" && m.prev != r.Status {
		m.logger.Info("health status transition",
			zap.String("previous_status", m.prev),
			zap.String("current_status", r.Status),
			zap.String("reason", r.Reason))
	}
	m.prev = r.Status
	m.mu.Unlock()
	return r
}

func (m *Monitor) evaluate() Result {
	if m.IsShuttingDown() {
		return Result{StatusShuttingDown, http.StatusServiceUnavailable, "signal"}
	}
	c := m.cfg
	if c.OverloadWindow > 0 && c.RateLimitRPS > 0 && c.OverloadThresholdPct > 0 {
		threshold := c.RateLimitRPS * c.OverloadWindow.Seconds() * float64(c.OverloadThresholdPct) / 100
		if float64(m.tracker.RequestCount(c.OverloadWindow)) > threshold {
			return Result{StatusOverloaded, http.StatusServiceUnavailable, "overload_threshold"}
		}
	}
	if c.DegradedWindow > 0 && c.DegradedErrorPct > 0 {
		errs, total := m.tracker.ErrorRate(c.DegradedWindow)
		if total > 0 && float64(errs)*100/float64(total) >= float64(c.DegradedErrorPct) {
			return Result{StatusDegraded, http.StatusServiceUnavailable, "error_rate_breach"}
		}
	}
	if c.IdleWindow > 0 && m.now().Sub(m.startTime) >= c.MinimumLifespan {
		perMin := float64(m.tracker.ServedCount(c.IdleWindow)) / c.IdleWindow.Minutes()
		if perMin < float64(c.IdleThresholdReqPerMin) {
			return Result{StatusIdle, http.StatusOK, "low_traffic"}
		}
	}
	return Result{StatusHealthy, http.StatusOK, ""}
}

// Pinger checks a dependency's reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Report is the /health response body.
type Report struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks"`
	Uptime    string            `json:"uptime"`
	Timestamp string            `json:"timestamp"`
}

// Report evaluates health and pings each named dependency. A failing dependency is reported
// in checks without changing the status.
func (m *Monitor) Report(ctx context.Context, service, version string, deps map[string]Pinger) (Report, int) {
	r := m.Evaluate()
	upstreams := "healthy"
	if r.Status == StatusDegraded {
		upstreams = "unhealthy"
	}
	checks := map[string]string{"upstreams": upstreams}
	for name, p := range deps {
		if p == nil {
			continue
		}
		if err := p.Ping(ctx); err != nil {
			checks[name] = "unhealthy"
			m.logger.Warn("health dependency check failed", zap.String("dependency", name), zap.Error(err))
		} else {
			checks[name] = "healthy"
		}
	}
	now := m.now()
	return Report{
		Status:    r.Status,
		Service:   service,
		Version:   version,
		Checks:    checks,
		Uptime:    now.Sub(m.startTime).Truncate(time.Second).String(),
		Timestamp: now.UTC().Format(time.RFC3339),
	}, r.StatusCode
}
