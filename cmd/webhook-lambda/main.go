// Package main provides a Lambda entry point for Supabase database webhooks.
//
// This is a lightweight Lambda that handles:
//   - POST /webhook: a signed row change from the exercises or steps tables
//
// Each verified change is republished to EventBridge as ContentChanged, where
// invalidate-lambda and every running proxy pick it up. The signing secret is
// read from SARASSURE_WEBHOOK_SECRET or, at cold start, from the SSM
// parameter named by SSM_WEBHOOK_SECRET_PARAM.
//
// This Lambda holds no cache of its own.
package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/rs/zerolog/log"

	"github.com/sarassure/sarassure/internal/boot"
	"github.com/sarassure/sarassure/internal/config"
	"github.com/sarassure/sarassure/internal/events"
	"github.com/sarassure/sarassure/internal/logging"
	"github.com/sarassure/sarassure/internal/webhook"
)

var (
	commitHash = "dev"
	buildTime  = "unknown"
)

var webhookHandler *webhook.Handler

var errNoBus = errors.New("no event bus configured")

func init() {
	initStart := time.Now()
	logging.Init()
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	var awsLoader boot.AWS
	if err := boot.Secrets(ctx, cfg, &awsLoader); err != nil {
		log.Fatal().Err(err).Msg("Failed to load secrets from SSM")
	}
	if cfg.WebhookSecret == "" {
		log.Fatal().Msg("SARASSURE_WEBHOOK_SECRET or SSM_WEBHOOK_SECRET_PARAM is required")
	}

	webhookHandler = webhook.NewHandler(cfg.WebhookSecret, republish(boot.Publisher(ctx, cfg, &awsLoader)))

	boot.StartupLog("webhook-lambda", cfg, initStart).
		Version(commitHash + "@" + buildTime).
		Log()
}

// republish forwards verified changes to the bus. Without a bus the delivery
// fails so Supabase keeps retrying until the deployment is fixed.
func republish(pub *events.Publisher) webhook.ChangeFunc {
	return func(ctx context.Context, change events.ContentChanged) error {
		if pub == nil {
			return errNoBus
		}
		return pub.ContentChanged(ctx, change)
	}
}

func main() {
	mux := http.NewServeMux()
	mux.Handle("/webhook", webhookHandler)

	adapter := httpadapter.NewV2(mux)
	lambda.Start(adapter.ProxyWithContext)
}
