// Package main consumes ContentChanged events from EventBridge and sweeps the
// shared caches, so learners get fresh content on their next request instead
// of after the TTL runs out.
package main

import (
	"context"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"

	"github.com/sarassure/sarassure/internal/boot"
	"github.com/sarassure/sarassure/internal/cache"
	"github.com/sarassure/sarassure/internal/config"
	sevents "github.com/sarassure/sarassure/internal/events"
	"github.com/sarassure/sarassure/internal/logging"
	"github.com/sarassure/sarassure/internal/respcache"
)

var (
	commitHash = "dev"
	buildTime  = "unknown"
)

type invalidator struct {
	store     cache.Store
	responses respcache.Storage
}

var inv *invalidator

func init() {
	initStart := time.Now()
	logging.Init()
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	var awsLoader boot.AWS
	store, _, err := boot.CacheStore(ctx, cfg, &awsLoader)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open cache store")
	}
	storage, err := boot.ResponseStorage(ctx, cfg, &awsLoader)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open response storage")
	}
	inv = &invalidator{store: store, responses: storage}

	boot.StartupLog("invalidate-lambda", cfg, initStart).
		Version(commitHash + "@" + buildTime).
		Log()
}

// handle sweeps the caches for ContentChanged events and ignores the rest.
// A sweep that failed in either phase is returned as an error so EventBridge
// retries the delivery.
func (i *invalidator) handle(ctx context.Context, event events.CloudWatchEvent) error {
	if event.Source != sevents.Source || event.DetailType != sevents.ContentChangedType {
		log.Warn().Str("source", event.Source).Str("detailType", event.DetailType).Msg("Ignoring unexpected event")
		return nil
	}
	change, err := sevents.ParseContentChanged(event.Detail)
	if err != nil {
		// A malformed detail still signals a change; sweep anyway.
		log.Warn().Err(err).Str("eventId", event.ID).Msg("Unreadable ContentChanged detail")
	}

	res := cache.InvalidateAll(ctx, i.store, i.responses)
	log.Info().
		Str("eventId", event.ID).
		Str("entity", change.Entity).
		Str("id", change.ID).
		Int("keys", res.Keys).
		Int("buckets", res.Buckets).
		Msg("Caches swept after content change")
	return res.Err()
}

func main() {
	lambda.Start(inv.handle)
}
