// Package resilient combines retry and the persistent cache into the single
// call site data loaders use: try hard, and if the network is gone, serve
// whatever was last seen.
package resilient

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sarassure/sarassure/internal/cache"
	"github.com/sarassure/sarassure/internal/metrics"
	"github.com/sarassure/sarassure/internal/retry"
)

// Retry parameters for data loads. They are tighter than the retry package
// defaults so a learner waits at most a few seconds before the stale copy.
const (
	MaxRetries   = 3
	InitialDelay = 500 * time.Millisecond
	MaxDelay     = 5 * time.Second
)

// Options adjusts Async and Fetch. The zero value is the production setting.
type Options struct {
	// Retry overrides the retry options; zero fields take the values above.
	// Set Retry.MaxRetries to retry.NoRetries for a single attempt.
	Retry retry.Options
}

func (o Options) retryOptions(key string) retry.Options {
	r := o.Retry
	if r.MaxRetries == 0 {
		r.MaxRetries = MaxRetries
	}
	if r.InitialDelay == 0 {
		r.InitialDelay = InitialDelay
	}
	if r.MaxDelay == 0 {
		r.MaxDelay = MaxDelay
	}
	if r.Name == "" {
		r.Name = key
	}
	onRetry := r.OnRetry
	name := r.Name
	r.OnRetry = func(info retry.Info) {
		metrics.Retry(name, info.Attempt)
		if onRetry != nil {
			onRetry(info)
		}
	}
	return r
}

// Async runs op with retry. If every attempt fails and c and key are set, the
// last cached value for key is returned regardless of its age. Otherwise the
// original error is returned. Async never writes to the cache.
func Async[T any](ctx context.Context, op func(ctx context.Context) (T, error), c *cache.Cache[T], key string, opts ...Options) (T, error) {
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}

	v, err := retry.Do(ctx, op, o.retryOptions(key))
	if err == nil {
		return v, nil
	}
	if c == nil || key == "" {
		return v, err
	}

	stale, ok := c.GetStale(ctx, key)
	if !ok {
		log.Warn().Err(err).Str("key", key).Msg("Operation failed and no cached copy exists")
		return v, err
	}
	log.Warn().Err(err).Str("key", key).Str("cache", c.Name()).Msg("Operation failed, serving stale cached data")
	metrics.Fallback(c.Name(), "network")
	return stale, nil
}

// Fetch is Async with caching: a fresh cache hit skips op entirely, and a
// successful op result is written back with the cache's default TTL. An
// expired entry is kept until op succeeds so it can still serve as the
// fallback. Without c or key Fetch is plain Async.
func Fetch[T any](ctx context.Context, op func(ctx context.Context) (T, error), c *cache.Cache[T], key string, opts ...Options) (T, error) {
	if c == nil || key == "" {
		return Async(ctx, op, nil, "", opts...)
	}
	v, fresh, ok := c.Lookup(ctx, key)
	metrics.CacheLookup(c.Name(), ok && fresh)
	if ok && fresh {
		return v, nil
	}

	fetched := false
	wrapped := func(ctx context.Context) (T, error) {
		v, err := op(ctx)
		if err == nil {
			fetched = true
		}
		return v, err
	}

	v, err := Async(ctx, wrapped, c, key, opts...)
	if err == nil && fetched {
		c.Put(ctx, key, v, 0)
	}
	return v, err
}
