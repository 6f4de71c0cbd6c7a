// Package traffic keeps sliding windows of request outcomes for health evaluation.
package traffic

import (
	"sync"
	"time"
)

// DefaultRetention bounds how long outcomes are kept; windows longer than this undercount.
const DefaultRetention = 30 * time.Minute

// Tracker maintains sliding windows of outcome timestamps. It is the single source for
// overload (RequestCount), degraded (ErrorRate) and idle (ServedCount) evaluation.
// The zero value is usable with the wall clock and DefaultRetention.
type Tracker struct {
	mu           sync.Mutex
	now          func() time.Time
	retention    time.Duration
	successTimes []time.Time
	errorTimes   []time.Time
	deniedTimes  []time.Time
}

// New returns a Tracker using clock (nil for time.Now) that forgets outcomes older than
// retention (<= 0 for DefaultRetention).
func New(clock func() time.Time, retention time.Duration) *Tracker {
	return &Tracker{now: clock, retention: retention}
}

// RecordSuccess records a request that produced a response from upstream data or cache.
func (t *Tracker) RecordSuccess() {
	t.record(&t.successTimes)
}

// RecordError records a request that failed on an upstream error or timeout.
func (t *Tracker) RecordError() {
	t.record(&t.errorTimes)
}

// RecordDenied records a rate-limit denial (429).
func (t *Tracker) RecordDenied() {
	t.record(&t.deniedTimes)
}

func (t *Tracker) record(slice *[]time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock()
	*slice = append(*slice, now)
	t.pruneLocked(now)
}

// RequestCount returns the number of outcomes (success + error + denied) within the window.
func (t *Tracker) RequestCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.clock().Add(-window)
	return countSince(t.successTimes, cutoff) + countSince(t.errorTimes, cutoff) + countSince(t.deniedTimes, cutoff)
}

// ServedCount returns the number of requests that reached a handler (success + error) within the window.
func (t *Tracker) ServedCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.clock().Add(-window)
	return countSince(t.successTimes, cutoff) + countSince(t.errorTimes, cutoff)
}

// DenialCount returns the number of rate-limit denials within the window.
func (t *Tracker) DenialCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return countSince(t.deniedTimes, t.clock().Add(-window))
}

// ErrorRate returns (errorCount, totalCount) within the window. Denials are excluded from total.
func (t *Tracker) ErrorRate(window time.Duration) (errors, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.clock().Add(-window)
	errors = countSince(t.errorTimes, cutoff)
	return errors, errors + countSince(t.successTimes, cutoff)
}

// Reset clears all recorded outcomes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.successTimes = nil
	t.errorTimes = nil
	t.deniedTimes = nil
}

func (t *Tracker) clock() time.Time {
	if t.now != nil {
		return t.now()
	}
	return time.Now()
}

// countSince counts timestamps that are not before cutoff.
func countSince(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// pruneLocked drops timestamps older than the retention. Must be called with mu held.
func (t *Tracker) pruneLocked(now time.Time) {
	retention := t.retention
	if retention <= 0 {
		retention = DefaultRetention
	}
	cutoff := now.Add(-retention)
	prune := func(slice *[]time.Time) {
		times := *slice
		i := 0
		for i < len(times) && times[i].Before(cutoff) {
			i++
		}
		if i > 0 {
			*slice = append(times[:0], times[i:]...)
		}
	}
	prune(&t.successTimes)
	prune(&t.errorTimes)
	prune(&t.deniedTimes)
}
