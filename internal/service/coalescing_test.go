package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kjstillabower/weather-dashboard/internal/models"
)

// TestRequestCoalescer_GetOrDo_ConcurrentRequests verifies concurrent callers for one key share
// a single fn invocation and all but the leader report shared.
func TestRequestCoalescer_GetOrDo_ConcurrentRequests(t *testing.T) {
	coalescer := newRequestCoalescer[models.CurrentWeather](5 * time.Second)
	var calls atomic.Int32
	release := make(chan struct{})

	fn := func(ctx context.Context) (models.CurrentWeather, error) {
		calls.Add(1)
		<-release
		return models.CurrentWeather{Temperature: 72, Condition: models.ConditionClear}, nil
	}

	var wg sync.WaitGroup
	results := make([]models.CurrentWeather, 10)
	shared := make([]bool, 10)
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx], shared[idx], errs[idx] = coalescer.GetOrDo(context.Background(), "current_47.6_-122.3", fn)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	sharedCount := 0
	for i, result := range results {
		if errs[i] != nil {
			t.Errorf("Request %d error = %v, want nil", i, errs[i])
		}
		if result.Temperature != 72 {
			t.Errorf("Request %d temperature = %d, want 72", i, result.Temperature)
		}
		if shared[i] {
			sharedCount++
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("fn call count = %d, want 1 (coalescing failed)", got)
	}
	if sharedCount != 9 {
		t.Errorf("shared count = %d, want 9", sharedCount)
	}
}

// TestRequestCoalescer_GetOrDo_ErrorPropagation verifies every waiter receives the leader's error.
func TestRequestCoalescer_GetOrDo_ErrorPropagation(t *testing.T) {
	coalescer := newRequestCoalescer[models.Forecast](5 * time.Second)
	wantErr := errors.New("api failure")

	fn := func(ctx context.Context) (models.Forecast, error) {
		time.Sleep(20 * time.Millisecond)
		return models.Forecast{}, wantErr
	}

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, _, errs[idx] = coalescer.GetOrDo(context.Background(), "forecast_1_2_14", fn)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, wantErr) {
			t.Errorf("Request %d error = %v, want %v", i, err, wantErr)
		}
	}
}

// TestRequestCoalescer_GetOrDo_Timeout verifies a caller whose context ends returns early.
func TestRequestCoalescer_GetOrDo_Timeout(t *testing.T) {
	coalescer := newRequestCoalescer[models.CurrentWeather](100 * time.Millisecond)

	fn := func(ctx context.Context) (models.CurrentWeather, error) {
		time.Sleep(200 * time.Millisecond)
		return models.CurrentWeather{}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, _, err := coalescer.GetOrDo(ctx, "current_0_0", fn)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("GetOrDo() error = %v, want context deadline exceeded", err)
	}
}

// TestRequestCoalescer_GetOrDo_DetachedFromCaller verifies fn keeps running after the caller
// that started it cancels, so a later caller still gets the result.
func TestRequestCoalescer_GetOrDo_DetachedFromCaller(t *testing.T) {
	coalescer := newRequestCoalescer[models.CurrentWeather](time.Second)
	started := make(chan struct{})

	fn := func(ctx context.Context) (models.CurrentWeather, error) {
		close(started)
		time.Sleep(50 * time.Millisecond)
		if err := ctx.Err(); err != nil {
			return models.CurrentWeather{}, err
		}
		return models.CurrentWeather{Temperature: 60}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, _, err := coalescer.GetOrDo(ctx, "k", fn)
		done <- err
	}()
	<-started
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("first caller error = %v, want context.Canceled", err)
	}

	got, shared, err := coalescer.GetOrDo(context.Background(), "k", fn)
	if err != nil {
		t.Fatalf("second caller error = %v", err)
	}
	if !shared || got.Temperature != 60 {
		t.Errorf("second caller = (%+v, shared=%v), want joined result with temperature 60", got, shared)
	}
}

// TestRequestCoalescer_GetOrDo_DifferentKeys verifies distinct keys never coalesce.
func TestRequestCoalescer_GetOrDo_DifferentKeys(t *testing.T) {
	coalescer := newRequestCoalescer[models.CurrentWeather](5 * time.Second)
	var calls atomic.Int32

	fn := func(ctx context.Context) (models.CurrentWeather, error) {
		calls.Add(1)
		return models.CurrentWeather{}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			_, _, _ = coalescer.GetOrDo(context.Background(), key, fn)
		}("key" + string(rune('a'+i)))
	}
	wg.Wait()

	if got := calls.Load(); got != 5 {
		t.Errorf("fn call count = %d, want 5 (no coalescing for different keys)", got)
	}
}
