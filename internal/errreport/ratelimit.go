// Package errreport forwards unexpected errors to an external sink without
// flooding it when the same failure repeats on every request.
package errreport

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultInterval is the minimum spacing between forwarded reports.
const DefaultInterval = 10 * time.Second

// RateLimiter allows one report per interval. Construct one per process and
// share it; it is safe for concurrent use.
type RateLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
}

// NewRateLimiter returns a limiter allowing one report every interval.
// interval <= 0 uses DefaultInterval.
func NewRateLimiter(interval time.Duration) *RateLimiter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// ShouldReport reports whether a report at now is allowed, consuming the
// allowance if so. The first call always succeeds.
func (r *RateLimiter) ShouldReport(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.limiter.AllowN(now, 1)
}
