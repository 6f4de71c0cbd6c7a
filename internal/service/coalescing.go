package service

import (
	"context"
	"sync"
	"time"
)

// inFlightRequest tracks a single upstream fetch that multiple callers may wait for.
type inFlightRequest[T any] struct {
	done   chan struct{}
	result T
	err    error
}

// requestCoalescer prevents cache stampede by coalescing concurrent fetches for the same key.
type requestCoalescer[T any] struct {
	mu       sync.Mutex
	inFlight map[string]*inFlightRequest[T]
	timeout  time.Duration
}

// newRequestCoalescer creates a new requestCoalescer. timeout bounds how long any caller waits.
func newRequestCoalescer[T any](timeout time.Duration) *requestCoalescer[T] {
	return &requestCoalescer[T]{
		inFlight: make(map[string]*inFlightRequest[T]),
		timeout:  timeout,
	}
}

// GetOrDo joins the in-flight fetch for key or starts one running fn. shared reports whether
// the caller joined another caller's fetch. fn runs detached from the caller's cancellation so
// that one caller giving up does not fail the others; it must bound its own duration.
// A caller whose ctx ends or whose wait exceeds the timeout returns early with that error.
func (rc *requestCoalescer[T]) GetOrDo(ctx context.Context, key string, fn func(ctx context.Context) (T, error)) (result T, shared bool, err error) {
	rc.mu.Lock()
	req, exists := rc.inFlight[key]
	if !exists {
		req = &inFlightRequest[T]{done: make(chan struct{})}
		rc.inFlight[key] = req
		detached := context.WithoutCancel(ctx)
		go func() {
			req.result, req.err = fn(detached)
			rc.cleanup(key)
			close(req.done)
		}()
	}
	rc.mu.Unlock()

	waitCtx, cancel := context.WithTimeout(ctx, rc.timeout)
	defer cancel()
	select {
	case <-req.done:
		return req.result, exists, req.err
	case <-waitCtx.Done():
		var zero T
		return zero, exists, waitCtx.Err()
	}
}

// cleanup removes the in-flight request for key. Called once the fetch completes.
func (rc *requestCoalescer[T]) cleanup(key string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	delete(rc.inFlight, key)
}
