package service

import (
	"sync"
)

// stampedeTracker counts concurrent cache misses per key. When several requests miss the
// same key at once the count exceeds 1, which is reported as a stampede.
type stampedeTracker struct {
	mu           sync.Mutex
	activeMisses map[string]int
}

func newStampedeTracker() *stampedeTracker {
	return &stampedeTracker{
		activeMisses: make(map[string]int),
	}
}

// RecordMiss records a cache miss for key and returns the concurrent miss count after incrementing.
// Callers defer Resolve(key) once the miss is resolved.
func (st *stampedeTracker) RecordMiss(key string) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.activeMisses[key]++
	return st.activeMisses[key]
}

// Resolve records completion of a miss for key.
func (st *stampedeTracker) Resolve(key string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if count, ok := st.activeMisses[key]; ok && count > 0 {
		st.activeMisses[key]--
		if st.activeMisses[key] == 0 {
			delete(st.activeMisses, key)
		}
	}
}

// Active returns the number of keys with unresolved misses.
func (st *stampedeTracker) Active() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.activeMisses)
}
