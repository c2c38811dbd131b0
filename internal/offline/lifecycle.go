package offline

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/sarassure/sarassure/internal/respcache"
)

// Precache fetches every URL over the network and stores it in the static
// bucket. Every URL is attempted; failures are joined into the returned
// error and the URLs that did succeed stay cached.
func (t *Transport) Precache(ctx context.Context, urls []string) error {
	b, err := t.storage.Open(ctx, t.StaticBucket())
	if err != nil {
		return fmt.Errorf("open %s: %w", t.StaticBucket(), err)
	}

	var errs []error
	for _, u := range urls {
		if err := t.precacheOne(ctx, b, u); err != nil {
			errs = append(errs, err)
			continue
		}
		log.Debug().Str("url", u).Msg("Precached")
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("precache: %w", err)
	}
	log.Info().Int("count", len(urls)).Str("bucket", t.StaticBucket()).Msg("Precache complete")
	return nil
}

func (t *Transport) precacheOne(ctx context.Context, b respcache.Bucket, u string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request %s: %w", u, err)
	}
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", u, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: status %d", u, resp.StatusCode)
	}
	captured, err := respcache.Capture(resp)
	if err != nil {
		return err
	}
	if err := b.Put(ctx, respcache.Key(req), captured); err != nil {
		return fmt.Errorf("store %s: %w", u, err)
	}
	return nil
}

// Activate deletes every bucket that does not belong to the current cache
// version and returns the names it removed.
func (t *Transport) Activate(ctx context.Context) ([]string, error) {
	names, err := t.storage.Buckets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}
	keep := map[string]bool{t.StaticBucket(): true, t.APIBucket(): true}

	var removed []string
	var errs []error
	for _, name := range names {
		if keep[name] {
			continue
		}
		if _, err := t.storage.Delete(ctx, name); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", name, err))
			continue
		}
		removed = append(removed, name)
	}
	if len(removed) > 0 {
		log.Info().Strs("buckets", removed).Str("version", t.opts.Version).Msg("Old response caches removed")
	}
	return removed, errors.Join(errs...)
}
