// Package cli holds the helpers behind sarassure-admin: client start-up,
// prompts, the native file picker and the pointer gestures that drive an
// area editing session from the command line.
package cli

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sarassure/sarassure/internal/boot"
	"github.com/sarassure/sarassure/internal/config"
	"github.com/sarassure/sarassure/internal/datastore"
)

// Env is what every admin command needs after start-up.
type Env struct {
	Config *config.Config
	AWS    *boot.AWS
	Client *datastore.Client
	HTTP   *http.Client
}

// InitClient loads configuration, resolves the Supabase key and builds the
// data store client. Exits fatally on failure.
func InitClient(ctx context.Context) *Env {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if cfg.SupabaseURL == "" {
		log.Fatal().Msg("SUPABASE_URL is required")
	}

	awsLoader := &boot.AWS{}
	if err := boot.Secrets(ctx, cfg, awsLoader); err != nil {
		log.Fatal().Err(err).Msg("No Supabase key. Set SUPABASE_ANON_KEY or SSM_SUPABASE_KEY_PARAM")
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	client := datastore.NewClient(cfg.SupabaseURL, cfg.SupabaseKey, httpClient).
		WithPublisher(boot.Publisher(ctx, cfg, awsLoader))

	log.Debug().Str("url", cfg.SupabaseURL).Msg("Data store client initialized")
	return &Env{Config: cfg, AWS: awsLoader, Client: client, HTTP: httpClient}
}
