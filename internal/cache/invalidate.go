package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/sarassure/sarassure/internal/metrics"
	"github.com/sarassure/sarassure/internal/respcache"
)

// InvalidateResult reports what a sweep removed and which phase failed.
type InvalidateResult struct {
	Keys        int
	Buckets     int
	StoreErr    error
	ResponseErr error
}

// Err joins the phase errors; nil when both phases completed.
func (r InvalidateResult) Err() error {
	return errors.Join(r.StoreErr, r.ResponseErr)
}

// InvalidateAll deletes every namespaced cache key from store, then every
// bucket from responses. The phases are independent: a failure in the first
// is recorded and the second still runs. Either argument may be nil.
//
// The admin side calls this after each content mutation so learners see new
// content without a manual reload. It is not transactional with concurrent
// writers; a fetch racing the sweep may repopulate an entry, which is
// harmless since it holds fresh data.
func InvalidateAll(ctx context.Context, store Store, responses respcache.Storage) InvalidateResult {
	var res InvalidateResult

	if store != nil {
		res.Keys, res.StoreErr = clearStore(ctx, store)
		if res.StoreErr != nil {
			log.Error().Err(res.StoreErr).Int("deleted", res.Keys).Msg("Cache store invalidation failed")
		}
	}

	if responses != nil {
		res.Buckets, res.ResponseErr = clearResponses(ctx, responses)
		if res.ResponseErr != nil {
			log.Error().Err(res.ResponseErr).Int("deleted", res.Buckets).Msg("Response cache invalidation failed")
		}
	}

	metrics.Invalidation(res.Keys, res.Buckets)
	log.Info().
		Int("keys", res.Keys).
		Int("buckets", res.Buckets).
		Bool("complete", res.Err() == nil).
		Msg("Caches invalidated")
	return res
}

func clearStore(ctx context.Context, store Store) (int, error) {
	keys, err := store.Keys(ctx)
	if err != nil {
		return 0, fmt.Errorf("list keys: %w", err)
	}
	var deleted int
	var errs []error
	for _, k := range keys {
		if !IsCacheKey(k) {
			continue
		}
		if err := store.Delete(ctx, k); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", k, err))
			continue
		}
		deleted++
	}
	return deleted, errors.Join(errs...)
}

func clearResponses(ctx context.Context, responses respcache.Storage) (int, error) {
	names, err := responses.Buckets(ctx)
	if err != nil {
		return 0, fmt.Errorf("list buckets: %w", err)
	}
	var deleted int
	var errs []error
	for _, name := range names {
		ok, err := responses.Delete(ctx, name)
		if err != nil {
			errs = append(errs, fmt.Errorf("delete bucket %s: %w", name, err))
			continue
		}
		if ok {
			deleted++
		}
	}
	return deleted, errors.Join(errs...)
}
