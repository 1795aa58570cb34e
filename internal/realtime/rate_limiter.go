package realtime

import (
	"sync"
	"time"
)

// RateLimiter bounds how many inbound envelopes one connection may submit
// within a sliding window. Timestamps arrive in order (one read loop per
// connection), so expiry only ever trims a prefix of the history.
type RateLimiter struct {
	mu      sync.Mutex
	history []time.Time
	max     int
	window  time.Duration
}

// NewRateLimiter constructs a limiter; non-positive inputs fall back to the
// gateway defaults.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = rateLimitEvents
	}
	if window <= 0 {
		window = rateLimitWindow
	}
	return &RateLimiter{
		history: make([]time.Time, 0, limit),
		max:     limit,
		window:  window,
	}
}

// Allow records an event at now and reports whether it is within budget.
func (r *RateLimiter) Allow(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	oldest := now.Add(-r.window)
	drop := 0
	for drop < len(r.history) && !r.history[drop].After(oldest) {
		drop++
	}
	if drop > 0 {
		r.history = append(r.history[:0], r.history[drop:]...)
	}

	if len(r.history) >= r.max {
		return false
	}
	r.history = append(r.history, now)
	return true
}
