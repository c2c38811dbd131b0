package errreport

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Report is one forwarded error.
type Report struct {
	Message    string    `json:"message"`
	Source     string    `json:"source"`
	OccurredAt time.Time `json:"occurredAt"`
	// Suppressed counts reports dropped by the limiter since the last one
	// that was forwarded.
	Suppressed int `json:"suppressed,omitempty"`
}

// Sink receives rate-limited reports.
type Sink interface {
	Send(ctx context.Context, r Report) error
}

// Reporter logs every error and forwards a rate-limited subset to a Sink.
type Reporter struct {
	limiter *RateLimiter
	sink    Sink
	now     func() time.Time

	mu         sync.Mutex
	suppressed int
}

// NewReporter creates a Reporter. A nil sink only logs.
func NewReporter(limiter *RateLimiter, sink Sink) *Reporter {
	if limiter == nil {
		limiter = NewRateLimiter(DefaultInterval)
	}
	return &Reporter{limiter: limiter, sink: sink, now: time.Now}
}

// Report logs err and, when the limiter allows, forwards it to the sink.
// It returns whether the error was forwarded. Sink failures are logged.
func (r *Reporter) Report(ctx context.Context, err error, source string) bool {
	if r == nil || err == nil {
		return false
	}
	log.Error().Err(err).Str("source", source).Msg("Unexpected error")

	if r.sink == nil {
		return false
	}
	now := r.now()

	r.mu.Lock()
	allowed := r.limiter.ShouldReport(now)
	suppressed := r.suppressed
	if allowed {
		r.suppressed = 0
	} else {
		r.suppressed++
	}
	r.mu.Unlock()

	if !allowed {
		return false
	}

	rep := Report{
		Message:    err.Error(),
		Source:     source,
		OccurredAt: now.UTC(),
		Suppressed: suppressed,
	}
	if serr := r.sink.Send(ctx, rep); serr != nil {
		log.Warn().Err(serr).Str("source", source).Msg("Failed to forward error report")
		return false
	}
	return true
}
