package offline

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sarassure/sarassure/internal/cache"
	"github.com/sarassure/sarassure/internal/errreport"
	"github.com/sarassure/sarassure/internal/events"
	"github.com/sarassure/sarassure/internal/respcache"
	"github.com/sarassure/sarassure/internal/webhook"
)

// Admin endpoints served by the proxy itself.
const (
	InvalidatePath = "/_sarassure/invalidate"
	HealthPath     = "/_sarassure/health"
	WebhookPath    = "/_sarassure/webhook"
)

// apiPrefixes are the Supabase path prefixes routed to the API upstream.
var apiPrefixes = []string{"/rest/v1/", "/auth/v1/", "/storage/v1/"}

// NoCachePaths must reach browsers with Cache-Control: no-cache so a new
// deployment is picked up on the next load.
var NoCachePaths = []string{"/sw.js", "/service-worker.js", "/manifest.json", "/manifest.webmanifest"}

// ProxyConfig configures NewProxy.
type ProxyConfig struct {
	AppOrigin string
	APIOrigin string
	ShellPath string
	Version   string

	// Store is swept by the invalidate endpoint together with the
	// response cache. Nil sweeps only the response cache.
	Store cache.Store
	// AdminToken guards the invalidate endpoint. Empty disables it.
	AdminToken string
	// WebhookSecret enables the Supabase webhook endpoint. Each verified
	// row change sweeps both caches and is rebroadcast through Publisher.
	WebhookSecret string
	Publisher     *events.Publisher
	Reporter      *errreport.Reporter
	// Base is the upstream RoundTripper. Nil uses http.DefaultTransport.
	Base http.RoundTripper
}

// Proxy is the offline-first reverse proxy.
type Proxy struct {
	transport  *Transport
	store      cache.Store
	adminToken string
	reporter   *errreport.Reporter
	publisher  *events.Publisher
	app        *httputil.ReverseProxy
	api        *httputil.ReverseProxy
	hasAPI     bool
	version    string
	mux        *http.ServeMux
}

// NewProxy builds a Proxy writing responses into storage.
func NewProxy(cfg ProxyConfig, storage respcache.Storage) (*Proxy, error) {
	appURL, err := parseOrigin(cfg.AppOrigin)
	if err != nil {
		return nil, fmt.Errorf("app origin: %w", err)
	}
	var apiURL *url.URL
	var apiHosts []string
	if cfg.APIOrigin != "" {
		if apiURL, err = parseOrigin(cfg.APIOrigin); err != nil {
			return nil, fmt.Errorf("api origin: %w", err)
		}
		apiHosts = append(apiHosts, apiURL.Host)
	}
	shellPath := cfg.ShellPath
	if shellPath == "" {
		shellPath = "/index.html"
	}

	t := NewTransport(cfg.Base, storage, Options{
		Version:           cfg.Version,
		APIHosts:          apiHosts,
		NetworkFirstPaths: NoCachePaths,
		ShellURL:          appURL.ResolveReference(&url.URL{Path: shellPath}).String(),
	})

	p := &Proxy{
		transport:  t,
		store:      cfg.Store,
		adminToken: cfg.AdminToken,
		reporter:   cfg.Reporter,
		publisher:  cfg.Publisher,
		version:    t.opts.Version,
		mux:        http.NewServeMux(),
	}
	p.app = p.reverseProxy(appURL)
	if apiURL != nil {
		p.api = p.reverseProxy(apiURL)
		p.hasAPI = true
	}

	p.mux.HandleFunc("POST "+InvalidatePath, p.handleInvalidate)
	p.mux.HandleFunc("GET "+HealthPath, p.handleHealth)
	if cfg.WebhookSecret != "" {
		p.mux.Handle(WebhookPath, webhook.NewHandler(cfg.WebhookSecret, p.contentChanged))
	}
	p.mux.HandleFunc("/", p.handleProxy)
	return p, nil
}

// Transport returns the intercepting transport, for Precache and Activate.
func (p *Proxy) Transport() *Transport { return p.transport }

// ShellURL is the upstream URL of the app shell.
func (p *Proxy) ShellURL() string { return p.transport.opts.ShellURL }

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mux.ServeHTTP(w, r)
}

func (p *Proxy) reverseProxy(target *url.URL) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
		},
		Transport: p.transport,
		ModifyResponse: func(resp *http.Response) error {
			if isNoCachePath(resp.Request.URL.Path) {
				resp.Header.Set("Cache-Control", "no-cache")
			}
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			p.reporter.Report(r.Context(), err, "proxy "+r.URL.Path)
			httpError(w, http.StatusBadGateway, "upstream unavailable and no cached copy")
		},
	}
}

func (p *Proxy) handleProxy(w http.ResponseWriter, r *http.Request) {
	if p.hasAPI && isAPIPath(r.URL.Path) {
		p.api.ServeHTTP(w, r)
		return
	}
	p.app.ServeHTTP(w, r)
}

func (p *Proxy) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "sarassure-proxy",
		"version": p.version,
	})
}

type invalidateResponse struct {
	Keys    int      `json:"keys"`
	Buckets int      `json:"buckets"`
	Errors  []string `json:"errors,omitempty"`
}

func (p *Proxy) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	if p.adminToken == "" {
		httpError(w, http.StatusNotFound, "not found")
		return
	}
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if subtle.ConstantTimeCompare([]byte(token), []byte(p.adminToken)) != 1 {
		log.Warn().Str("remote", r.RemoteAddr).Msg("Rejected invalidate request: bad token")
		httpError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	res := cache.InvalidateAll(ctx, p.store, p.transport.Storage())

	body := invalidateResponse{Keys: res.Keys, Buckets: res.Buckets}
	status := http.StatusOK
	for _, err := range []error{res.StoreErr, res.ResponseErr} {
		if err != nil {
			body.Errors = append(body.Errors, err.Error())
			status = http.StatusInternalServerError
		}
	}
	respondJSON(w, status, body)
}

// contentChanged sweeps local caches for a row change and rebroadcasts it so
// other instances sweep theirs. A failed broadcast is reported, not returned,
// because the local sweep already happened.
func (p *Proxy) contentChanged(ctx context.Context, change events.ContentChanged) error {
	res := cache.InvalidateAll(ctx, p.store, p.transport.Storage())
	if err := res.Err(); err != nil {
		return fmt.Errorf("invalidate after %s %s: %w", change.Action, change.Entity, err)
	}
	if err := p.publisher.ContentChanged(ctx, change); err != nil {
		p.reporter.Report(ctx, err, "webhook broadcast")
	}
	return nil
}

func parseOrigin(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%q is not an absolute URL", raw)
	}
	return u, nil
}

func isAPIPath(p string) bool {
	for _, prefix := range apiPrefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

func isNoCachePath(p string) bool {
	for _, np := range NoCachePaths {
		if p == np {
			return true
		}
	}
	return false
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func httpError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
