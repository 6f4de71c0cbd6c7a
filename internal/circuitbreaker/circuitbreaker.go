package circuitbreaker

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// ErrOpen is returned by Call when the circuit rejects the request without running it.
var ErrOpen = errors.New("circuit breaker open")

// State values match the metric encoding (0=closed, 1=half-open, 2=open).
const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

// State is the circuit breaker state (Closed, HalfOpen, Open).
type State int

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// CircuitBreaker protects upstream calls by opening after consecutive failures
// and allowing trial requests in half-open state.
type CircuitBreaker struct {
	cb *gobreaker.CircuitBreaker
}

// Config holds circuit breaker parameters.
type Config struct {
	// FailureThreshold consecutive failures open the circuit.
	FailureThreshold int
	// SuccessThreshold consecutive half-open successes close it again.
	SuccessThreshold int
	// Timeout is how long the circuit stays open before probing.
	Timeout   time.Duration
	Component string
	// Ignore reports errors that should not count as failures (client-side 4xx, cancellation).
	Ignore        func(err error) bool
	OnStateChange func(from, to State)
}

// New creates a new CircuitBreaker with the given config.
func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	threshold := uint32(cfg.FailureThreshold)
	settings := gobreaker.Settings{
		Name:        cfg.Component,
		MaxRequests: uint32(cfg.SuccessThreshold),
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= threshold
		},
	}
	if cfg.Ignore != nil {
		ignore := cfg.Ignore
		settings.IsSuccessful = func(err error) bool {
			return err == nil || ignore(err)
		}
	}
	if cfg.OnStateChange != nil {
		notify := cfg.OnStateChange
		settings.OnStateChange = func(_ string, from, to gobreaker.State) {
			notify(fromGobreaker(from), fromGobreaker(to))
		}
	}
	return &CircuitBreaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Call runs fn when the circuit allows it. When open (or half-open with all trial slots taken)
// returns ErrOpen without calling fn. A canceled ctx is checked before fn runs.
func (cb *CircuitBreaker) Call(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := cb.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrOpen
	}
	return err
}

// State returns the current state (for metrics).
func (cb *CircuitBreaker) State() State {
	return fromGobreaker(cb.cb.State())
}
