package credpool

import (
	"time"
)

// RateLimiter enforces the aggregate request ceiling across all identities,
// independent of any single identity's budget. The target throttles by total
// traffic, not per account, so this is a separate knob.
//
// The limiter is not safe for concurrent use on its own; the pool serializes
// access under its lock.
type RateLimiter struct {
	hourlyCeiling int

	windowStart time.Time
	count       int
}

func NewRateLimiter(hourlyCeiling int) *RateLimiter {
	return &RateLimiter{hourlyCeiling: hourlyCeiling}
}

// Record counts one request and returns how long the caller must wait before
// issuing it. Zero while under the ceiling; otherwise the time until the
// current hourly window rolls over.
func (r *RateLimiter) Record(now time.Time) time.Duration {
	if r.windowStart.IsZero() || now.Sub(r.windowStart) >= time.Hour {
		r.windowStart = now
		r.count = 0
	}

	r.count++
	if r.count <= r.hourlyCeiling {
		return 0
	}
	return r.windowStart.Add(time.Hour).Sub(now)
}

// Remaining reports how many requests are left in the current window.
func (r *RateLimiter) Remaining(now time.Time) int {
	if r.windowStart.IsZero() || now.Sub(r.windowStart) >= time.Hour {
		return r.hourlyCeiling
	}
	left := r.hourlyCeiling - r.count
	if left < 0 {
		return 0
	}
	return left
}
