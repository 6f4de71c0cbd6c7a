package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var errUpstream = errors.New("upstream down")

// TestCircuitBreaker_OpensAfterThreshold verifies consecutive failures open the circuit
// and later calls are rejected without running fn.
func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := New(Config{FailureThreshold: 3, Timeout: time.Minute, Component: "forecast"})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := cb.Call(ctx, func() error { return errUpstream }); !errors.Is(err, errUpstream) {
			t.Fatalf("call %d error = %v, want upstream error", i, err)
		}
	}
	if cb.State() != StateOpen {
		t.Fatalf("State() = %v, want open", cb.State())
	}

	called := false
	err := cb.Call(ctx, func() error { called = true; return nil })
	if !errors.Is(err, ErrOpen) {
		t.Errorf("Call() while open error = %v, want ErrOpen", err)
	}
	if called {
		t.Error("fn ran while circuit open")
	}
}

// TestCircuitBreaker_HalfOpenRecovers verifies the circuit admits trial calls after Timeout and closes
// after SuccessThreshold successes.
func TestCircuitBreaker_HalfOpenRecovers(t *testing.T) {
	var mu sync.Mutex
	var transitions []State
	cb := New(Config{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Timeout:          20 * time.Millisecond,
		OnStateChange: func(from, to State) {
			mu.Lock()
			transitions = append(transitions, to)
			mu.Unlock()
		},
	})
	ctx := context.Background()

	_ = cb.Call(ctx, func() error { return errUpstream })
	time.Sleep(40 * time.Millisecond)

	if cb.State() != StateHalfOpen {
		t.Fatalf("State() after timeout = %v, want half_open", cb.State())
	}
	for i := 0; i < 2; i++ {
		if err := cb.Call(ctx, func() error { return nil }); err != nil {
			t.Fatalf("trial call %d error = %v", i, err)
		}
	}
	if cb.State() != StateClosed {
		t.Fatalf("State() after trial calls = %v, want closed", cb.State())
	}

	mu.Lock()
	defer mu.Unlock()
	want := []State{StateOpen, StateHalfOpen, StateClosed}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transitions[%d] = %v, want %v", i, transitions[i], want[i])
		}
	}
}

// TestCircuitBreaker_IgnoredErrorsDoNotTrip verifies Ignore keeps client errors from opening the circuit.
func TestCircuitBreaker_IgnoredErrorsDoNotTrip(t *testing.T) {
	errBadRequest := errors.New("bad request")
	cb := New(Config{
		FailureThreshold: 1,
		Ignore:           func(err error) bool { return errors.Is(err, errBadRequest) },
	})

	for i := 0; i < 5; i++ {
		if err := cb.Call(context.Background(), func() error { return errBadRequest }); !errors.Is(err, errBadRequest) {
			t.Fatalf("Call() error = %v, want errBadRequest passed through", err)
		}
	}
	if cb.State() != StateClosed {
		t.Errorf("State() = %v, want closed", cb.State())
	}
}

// TestCircuitBreaker_CanceledContext verifies fn is skipped for an already canceled context.
func TestCircuitBreaker_CanceledContext(t *testing.T) {
	cb := New(Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	if err := cb.Call(ctx, func() error { called = true; return nil }); !errors.Is(err, context.Canceled) {
		t.Errorf("Call() error = %v, want context.Canceled", err)
	}
	if called {
		t.Error("fn ran with canceled context")
	}
}

// TestState_String verifies state labels used in logs and metrics.
func TestState_String(t *testing.T) {
	tests := map[State]string{StateClosed: "closed", StateHalfOpen: "half_open", StateOpen: "open", State(9): "unknown"}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
