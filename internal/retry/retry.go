// Package retry runs an operation with exponential backoff and jitter.
//
// Errors are classified by HTTP status. Any error in the chain that exposes
// HTTPStatusCode() int is inspected: client errors (4xx) other than 408 and 429
// are permanent and returned at once; everything else, including errors with no
// status at all, is transient and retried. AWS SDK response errors expose the
// same method, so DynamoDB and S3 failures classify without extra glue.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Defaults used when Options leaves a field zero.
const (
	DefaultMaxRetries   = 3
	DefaultInitialDelay = time.Second
	DefaultMaxDelay     = 10 * time.Second

	// NoRetries makes Do run op exactly once. MaxRetries zero means the
	// default, so zero retries needs this sentinel.
	NoRetries = -1

	// jitterRatio caps the random addition at 10% of the exponential delay.
	jitterRatio = 0.1
)

// StatusCoder is implemented by errors that carry an HTTP status.
type StatusCoder interface {
	HTTPStatusCode() int
}

// StatusError tags an arbitrary error with an HTTP status.
type StatusError struct {
	Status int
	Err    error
}

func (e *StatusError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("status %d", e.Status)
	}
	return fmt.Sprintf("status %d: %v", e.Status, e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }

// HTTPStatusCode implements StatusCoder.
func (e *StatusError) HTTPStatusCode() int { return e.Status }

// WithStatus wraps err with an HTTP status.
func WithStatus(status int, err error) error {
	return &StatusError{Status: status, Err: err}
}

// Status returns the first HTTP status found in err's chain.
func Status(err error) (int, bool) {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.HTTPStatusCode(), true
	}
	return 0, false
}

// Retriable reports whether err is worth another attempt.
func Retriable(err error) bool {
	status, ok := Status(err)
	if !ok {
		return true
	}
	if status == http.StatusRequestTimeout || status == http.StatusTooManyRequests {
		return true
	}
	return status < 400 || status >= 500
}

// Info describes a scheduled retry. Attempt is 1 for the first retry.
type Info struct {
	Attempt int
	Delay   time.Duration
	Err     error
}

// Options tunes Do. The zero value uses the package defaults.
type Options struct {
	// MaxRetries is the number of retries after the first attempt. Zero
	// takes DefaultMaxRetries; use NoRetries (any negative value) for none.
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration

	// AttemptTimeout bounds a single attempt. Zero leaves attempts unbounded.
	AttemptTimeout time.Duration

	// OnRetry is called before sleeping ahead of each retry.
	OnRetry func(Info)

	// Name labels log lines.
	Name string

	// Jitter returns a value in [0,1). Tests pin it; nil uses math/rand/v2.
	Jitter func() float64
	// Sleep waits for d or until ctx is done. Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

func (o Options) withDefaults() Options {
	if o.MaxRetries == 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.InitialDelay <= 0 {
		o.InitialDelay = DefaultInitialDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = DefaultMaxDelay
	}
	if o.Jitter == nil {
		o.Jitter = rand.Float64
	}
	if o.Sleep == nil {
		o.Sleep = sleep
	}
	if o.Name == "" {
		o.Name = "operation"
	}
	return o
}

// Delay returns the wait before retry number attempt+1 (attempt is 0-indexed):
// min(initial*2^attempt + jitter, max) with jitter in [0, 10% of the
// exponential part). r is a sample in [0,1).
func Delay(attempt int, initial, maxDelay time.Duration, r float64) time.Duration {
	exp := float64(initial) * float64(uint64(1)<<min(attempt, 62))
	d := exp + r*jitterRatio*exp
	if d >= float64(maxDelay) {
		return maxDelay
	}
	return time.Duration(d)
}

// Do invokes op until it succeeds, fails permanently, runs out of retries or
// ctx is cancelled. op runs at most MaxRetries+1 times. On exhaustion the last
// error is returned; on cancellation ctx.Err() is returned joined with the
// last error.
func Do[T any](ctx context.Context, op func(ctx context.Context) (T, error), opts Options) (T, error) {
	opts = opts.withDefaults()

	var zero T
	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, errors.Join(err, lastErr)
		}

		v, err := runAttempt(ctx, op, opts.AttemptTimeout)
		if err == nil {
			if attempt > 0 {
				log.Debug().Str("operation", opts.Name).Int("attempts", attempt+1).Msg("Operation succeeded after retry")
			}
			return v, nil
		}
		lastErr = err

		if !Retriable(err) {
			status, _ := Status(err)
			log.Debug().Err(err).Str("operation", opts.Name).Int("status", status).Msg("Permanent error, not retrying")
			return zero, err
		}
		if attempt >= opts.MaxRetries {
			log.Warn().Err(err).Str("operation", opts.Name).Int("attempts", attempt+1).Msg("Retries exhausted")
			return zero, err
		}

		delay := Delay(attempt, opts.InitialDelay, opts.MaxDelay, opts.Jitter())
		if opts.OnRetry != nil {
			opts.OnRetry(Info{Attempt: attempt + 1, Delay: delay, Err: err})
		}
		log.Debug().
			Err(err).
			Str("operation", opts.Name).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Msg("Transient error, retrying")

		if serr := opts.Sleep(ctx, delay); serr != nil {
			return zero, errors.Join(serr, lastErr)
		}
	}
}

func runAttempt[T any](ctx context.Context, op func(ctx context.Context) (T, error), timeout time.Duration) (T, error) {
	if timeout <= 0 {
		return op(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return op(ctx)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
