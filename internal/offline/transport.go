// Package offline is the network interception layer of the learner app.
//
// Transport is an http.RoundTripper that answers GET requests from a
// respcache.Storage when the network cannot: API reads are network-first
// with a cached fallback, static assets are cache-first, and a navigation
// that fails on both paths gets the cached app shell so the single-page app
// can still boot. Proxy puts Transport in front of the app origin and the
// Supabase API so any browser, kiosk or Lambda client inherits that
// behaviour.
package offline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/sarassure/sarassure/internal/metrics"
	"github.com/sarassure/sarassure/internal/respcache"
)

// CacheHeader is set on responses served from the response cache. Its value
// is one of the Source* constants.
const CacheHeader = "X-Sarassure-Cache"

const (
	SourceCache = "cache"
	SourceStale = "stale"
	SourceShell = "shell"
)

// Bucket name prefixes; the cache version is appended.
const (
	staticPrefix = "sarassure-static-"
	apiPrefix    = "sarassure-api-"
)

// ErrOffline is returned when neither the network nor the cache could answer.
var ErrOffline = errors.New("offline and not cached")

// Options configures a Transport.
type Options struct {
	// Version names the current cache generation, e.g. "v1". Activate drops
	// buckets of every other generation.
	Version string
	// APIHosts are served network-first. Everything else is cache-first.
	APIHosts []string
	// NetworkFirstPaths are paths that must never be answered from cache
	// while the network works (the service worker script, the manifest).
	NetworkFirstPaths []string
	// ShellURL is the cached document served to failed navigations.
	ShellURL string
}

// Transport implements the cache strategies over a base RoundTripper.
type Transport struct {
	base    http.RoundTripper
	storage respcache.Storage
	opts    Options

	apiHosts     map[string]bool
	networkPaths map[string]bool
}

var _ http.RoundTripper = (*Transport)(nil)

// NewTransport creates a Transport. A nil base uses http.DefaultTransport.
func NewTransport(base http.RoundTripper, storage respcache.Storage, opts Options) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	if opts.Version == "" {
		opts.Version = "v1"
	}
	t := &Transport{
		base:         base,
		storage:      storage,
		opts:         opts,
		apiHosts:     make(map[string]bool),
		networkPaths: make(map[string]bool),
	}
	for _, h := range opts.APIHosts {
		t.apiHosts[strings.ToLower(h)] = true
	}
	for _, p := range opts.NetworkFirstPaths {
		t.networkPaths[p] = true
	}
	return t
}

// StaticBucket is the bucket holding cache-first responses.
func (t *Transport) StaticBucket() string { return staticPrefix + t.opts.Version }

// APIBucket is the bucket holding network-first responses.
func (t *Transport) APIBucket() string { return apiPrefix + t.opts.Version }

// Storage returns the response storage the transport writes to.
func (t *Transport) Storage() respcache.Storage { return t.storage }

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return t.base.RoundTrip(req)
	}
	if req.Method != http.MethodGet {
		return t.base.RoundTrip(req)
	}

	if t.networkFirst(req) {
		return t.fetchNetworkFirst(req)
	}
	return t.fetchCacheFirst(req)
}

func (t *Transport) networkFirst(req *http.Request) bool {
	return t.apiHosts[strings.ToLower(req.URL.Host)] || t.networkPaths[req.URL.Path]
}

func (t *Transport) bucketFor(req *http.Request) string {
	if t.apiHosts[strings.ToLower(req.URL.Host)] {
		return t.APIBucket()
	}
	return t.StaticBucket()
}

func (t *Transport) fetchNetworkFirst(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	bucketName := t.bucketFor(req)

	resp, err := t.base.RoundTrip(req)
	if err == nil && resp.StatusCode < http.StatusInternalServerError {
		if resp.StatusCode == http.StatusOK {
			t.store(ctx, bucketName, req, resp)
		}
		return resp, nil
	}

	if cached := t.match(ctx, bucketName, req); cached != nil {
		if resp != nil {
			resp.Body.Close()
		}
		log.Warn().Err(err).Str("url", req.URL.String()).Msg("Network failed, serving cached response")
		metrics.Fallback(bucketName, "network")
		return t.serve(cached, req, SourceStale), nil
	}

	if shell := t.shellFor(req); shell != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return shell, nil
	}
	if resp != nil {
		return resp, nil
	}
	return nil, fmt.Errorf("%s %s: %w: %w", req.Method, req.URL, ErrOffline, err)
}

func (t *Transport) fetchCacheFirst(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	bucketName := t.bucketFor(req)

	if cached := t.match(ctx, bucketName, req); cached != nil {
		metrics.CacheLookup(bucketName, true)
		return t.serve(cached, req, SourceCache), nil
	}
	metrics.CacheLookup(bucketName, false)

	resp, err := t.base.RoundTrip(req)
	if err == nil {
		if resp.StatusCode == http.StatusOK {
			t.store(ctx, bucketName, req, resp)
		}
		return resp, nil
	}

	if shell := t.shellFor(req); shell != nil {
		return shell, nil
	}
	return nil, fmt.Errorf("%s %s: %w: %w", req.Method, req.URL, ErrOffline, err)
}

func (t *Transport) serve(cached *respcache.Response, req *http.Request, source string) *http.Response {
	resp := cached.HTTPResponse(req)
	resp.Header.Set(CacheHeader, source)
	return resp
}

// match looks req up in a bucket. Storage failures count as a miss.
func (t *Transport) match(ctx context.Context, bucketName string, req *http.Request) *respcache.Response {
	return t.matchKey(ctx, bucketName, respcache.Key(req))
}

func (t *Transport) matchKey(ctx context.Context, bucketName, key string) *respcache.Response {
	b, err := t.storage.Open(ctx, bucketName)
	if err != nil {
		log.Warn().Err(err).Str("bucket", bucketName).Msg("Failed to open response cache")
		return nil
	}
	cached, ok, err := b.Match(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("bucket", bucketName).Str("key", key).Msg("Response cache lookup failed")
		return nil
	}
	if !ok {
		return nil
	}
	return cached
}

// store captures resp into the bucket. Failures are logged; resp stays
// readable either way.
func (t *Transport) store(ctx context.Context, bucketName string, req *http.Request, resp *http.Response) {
	if strings.Contains(resp.Header.Get("Cache-Control"), "no-store") {
		return
	}
	captured, err := respcache.Capture(resp)
	if err != nil {
		log.Warn().Err(err).Str("url", req.URL.String()).Msg("Failed to capture response for cache")
		return
	}
	b, err := t.storage.Open(ctx, bucketName)
	if err != nil {
		log.Warn().Err(err).Str("bucket", bucketName).Msg("Failed to open response cache")
		return
	}
	if err := b.Put(ctx, respcache.Key(req), captured); err != nil {
		log.Warn().Err(err).Str("bucket", bucketName).Str("url", req.URL.String()).Msg("Failed to store response")
	}
}

// shellFor returns the cached app shell when req is a page navigation.
func (t *Transport) shellFor(req *http.Request) *http.Response {
	if t.opts.ShellURL == "" || !IsNavigation(req) {
		return nil
	}
	cached := t.matchKey(req.Context(), t.StaticBucket(), http.MethodGet+" "+t.opts.ShellURL)
	if cached == nil {
		return nil
	}
	log.Info().Str("url", req.URL.String()).Msg("Serving cached app shell for offline navigation")
	metrics.Fallback(t.StaticBucket(), "shell")
	return t.serve(cached, req, SourceShell)
}

// IsNavigation reports whether req loads a top-level document.
func IsNavigation(req *http.Request) bool {
	if mode := req.Header.Get("Sec-Fetch-Mode"); mode != "" {
		return mode == "navigate"
	}
	return req.Method == http.MethodGet && strings.Contains(req.Header.Get("Accept"), "text/html")
}
