package scheduler

import (
	"sync"
	"time"
)

// Clock abstracts time.Now so backoff behavior can be tested deterministically.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

type retryEntry struct {
	MinRetryAt time.Time
	Count      int
}

// RetryState tracks per-source fetch failures. It lives on the Scheduler
// instance; losing it on restart only means a failed source gets retried
// immediately, which is acceptable.
type RetryState struct {
	mu      sync.Mutex
	entries map[string]*retryEntry
}

func NewRetryState() *RetryState {
	return &RetryState{
		entries: make(map[string]*retryEntry),
	}
}

// Blocked reports whether the source is still inside its backoff window.
func (rs *RetryState) Blocked(sourceID string, now time.Time) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	entry, ok := rs.entries[sourceID]
	return ok && now.Before(entry.MinRetryAt)
}

// RecordFailure pushes the source's next allowed attempt out by
// 2*(count+1)*base, where count is the number of prior consecutive failures.
// The window grows linearly and is not capped; a persistently down source
// just gets polled less and less often.
func (rs *RetryState) RecordFailure(sourceID string, now time.Time, base time.Duration) time.Time {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	entry, ok := rs.entries[sourceID]
	if !ok {
		entry = &retryEntry{}
		rs.entries[sourceID] = entry
	}

	entry.MinRetryAt = now.Add(2 * time.Duration(entry.Count+1) * base)
	entry.Count++
	return entry.MinRetryAt
}

// Clear drops the source's failure history after a successful fetch.
func (rs *RetryState) Clear(sourceID string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	delete(rs.entries, sourceID)
}
