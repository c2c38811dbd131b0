// Command sarassure-proxy runs the offline-first proxy in front of the
// learner app and the Supabase API. Point a kiosk browser at it and lessons
// keep working when the connection drops.
//
// Endpoints:
//
//	POST /_sarassure/invalidate  sweep all caches (bearer token)
//	POST /_sarassure/webhook     Supabase row change (signed, when configured)
//	GET  /_sarassure/health      health check
//	/*                           proxied, with offline fallback
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sarassure/sarassure/internal/boot"
	"github.com/sarassure/sarassure/internal/config"
	"github.com/sarassure/sarassure/internal/logging"
	"github.com/sarassure/sarassure/internal/offline"
)

// Build-time version identity, injected via
// -ldflags="-X main.commitHash=... -X main.buildTime=...".
var (
	commitHash = "dev"
	buildTime  = "unknown"
)

var (
	portFlag     int
	precacheFlag []string
)

var rootCmd = &cobra.Command{
	Use:   "sarassure-proxy",
	Short: "Offline-first proxy for the SARASSURE learner app",
	Long: `sarassure-proxy forwards requests to the learner app origin and the
Supabase API, caching responses so lessons stay usable offline.

Configuration comes from the environment (SUPABASE_URL, SARASSURE_APP_ORIGIN,
SARASSURE_CACHE_BACKEND, ...).

Examples:
  sarassure-proxy
  sarassure-proxy --port 9090 --precache /assets/app.js --precache /assets/app.css`,
	RunE: runMain,
}

func init() {
	rootCmd.Flags().IntVar(&portFlag, "port", 8080, "Port to listen on")
	rootCmd.Flags().StringSliceVar(&precacheFlag, "precache", nil, "Extra app paths to cache at start-up")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMain(cmd *cobra.Command, args []string) error {
	initStart := time.Now()
	logging.Init()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var awsLoader boot.AWS
	store, closeStore, err := boot.CacheStore(ctx, cfg, &awsLoader)
	if err != nil {
		return fmt.Errorf("open cache store: %w", err)
	}
	defer closeStore()

	storage, err := boot.ResponseStorage(ctx, cfg, &awsLoader)
	if err != nil {
		return fmt.Errorf("open response storage: %w", err)
	}

	proxy, err := offline.NewProxy(offline.ProxyConfig{
		AppOrigin:  cfg.AppOrigin,
		APIOrigin:  cfg.SupabaseURL,
		ShellPath:  cfg.ShellPath,
		Version:    cfg.CacheVersion,
		Store:      store,
		AdminToken:    cfg.AdminToken,
		WebhookSecret: cfg.WebhookSecret,
		Publisher:     boot.Publisher(ctx, cfg, &awsLoader),
		Reporter:      boot.Reporter(ctx, cfg, &awsLoader),
	}, storage)
	if err != nil {
		return err
	}

	warmUp(ctx, proxy, cfg.AppOrigin, precacheFlag)

	boot.StartupLog("sarassure-proxy", cfg, initStart).
		Version(commitHash+"@"+buildTime).
		Upstream("app", cfg.AppOrigin).
		Feature("adminEndpoints", cfg.AdminToken != "").
		Feature("webhook", cfg.WebhookSecret != "").
		Config("port", fmt.Sprint(portFlag)).
		Log()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", portFlag),
		Handler:      withLogging(proxy),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info().Msg("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	log.Info().Int("port", portFlag).Msg("Starting proxy")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// warmUp drops caches of older versions and stores the app shell plus any
// extra paths. Failures only mean the first offline visit will miss.
func warmUp(ctx context.Context, proxy *offline.Proxy, appOrigin string, paths []string) {
	t := proxy.Transport()
	if _, err := t.Activate(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to remove old response caches")
	}

	urls := []string{proxy.ShellURL()}
	for _, p := range paths {
		urls = append(urls, appOrigin+p)
	}
	if err := t.Precache(ctx, urls); err != nil {
		log.Warn().Err(err).Msg("Precache incomplete; offline start-up may fail until the app is visited online")
	}
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Str("cache", rec.Header().Get(offline.CacheHeader)).
			Dur("duration", time.Since(start)).
			Msg("Proxied request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
