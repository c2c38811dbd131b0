// Package main runs the offline-first proxy behind API Gateway. Responses are
// kept in S3 and the key-value cache in DynamoDB so every Lambda instance
// shares them.
package main

import (
	"context"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/rs/zerolog/log"

	"github.com/sarassure/sarassure/internal/boot"
	"github.com/sarassure/sarassure/internal/config"
	"github.com/sarassure/sarassure/internal/logging"
	"github.com/sarassure/sarassure/internal/offline"
)

var (
	commitHash = "dev"
	buildTime  = "unknown"
)

var proxy *offline.Proxy

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

	proxy, err = offline.NewProxy(offline.ProxyConfig{
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
		log.Fatal().Err(err).Msg("Failed to build proxy")
	}

	if err := proxy.Transport().Precache(ctx, []string{proxy.ShellURL()}); err != nil {
		log.Warn().Err(err).Msg("App shell not precached")
	}

	boot.StartupLog("proxy-lambda", cfg, initStart).
		Version(commitHash+"@"+buildTime).
		Upstream("app", cfg.AppOrigin).
		Log()
}

func main() {
	adapter := httpadapter.NewV2(proxy)
	lambda.Start(adapter.ProxyWithContext)
}
