// Package boot holds the start-up wiring shared by every binary: AWS
// configuration, the cache backends selected by config, the Supabase key,
// error reporting and event publishing. Each main is a short composition of
// these helpers.
package boot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/sarassure/sarassure/internal/cache"
	"github.com/sarassure/sarassure/internal/config"
	"github.com/sarassure/sarassure/internal/errreport"
	"github.com/sarassure/sarassure/internal/events"
	"github.com/sarassure/sarassure/internal/logging"
	"github.com/sarassure/sarassure/internal/respcache"
)

// AWS loads the default AWS config on first use. A kiosk running entirely on
// memory and SQLite backends never touches it.
type AWS struct {
	once sync.Once
	cfg  aws.Config
	err  error
}

// Config returns the loaded AWS config.
func (a *AWS) Config(ctx context.Context) (aws.Config, error) {
	a.once.Do(func() {
		a.cfg, a.err = awsconfig.LoadDefaultConfig(ctx)
		if a.err != nil {
			a.err = fmt.Errorf("load AWS config: %w", a.err)
			return
		}
		log.Debug().Str("region", a.cfg.Region).Msg("AWS config loaded")
	})
	return a.cfg, a.err
}

// Closer releases a backend. Backends with nothing to release return a no-op.
type Closer func() error

func noClose() error { return nil }

// CacheStore opens the key-value store selected by cfg.CacheBackend.
func CacheStore(ctx context.Context, cfg *config.Config, a *AWS) (cache.Store, Closer, error) {
	switch cfg.CacheBackend {
	case config.BackendSQLite:
		s, err := cache.OpenSQLite(ctx, cfg.CachePath)
		if err != nil {
			return nil, nil, err
		}
		if n, err := s.PurgeExpired(ctx, time.Now()); err != nil {
			log.Warn().Err(err).Msg("Failed to purge expired cache rows")
		} else if n > 0 {
			log.Debug().Int64("rows", n).Msg("Purged expired cache rows")
		}
		return s, s.Close, nil
	case config.BackendDynamoDB:
		awsCfg, err := a.Config(ctx)
		if err != nil {
			return nil, nil, err
		}
		return cache.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.CacheTable), noClose, nil
	default:
		return cache.NewMemoryStore(0), noClose, nil
	}
}

// ResponseStorage opens the response cache selected by cfg.ResponseBackend.
func ResponseStorage(ctx context.Context, cfg *config.Config, a *AWS) (respcache.Storage, error) {
	if cfg.ResponseBackend != config.BackendS3 {
		return respcache.NewMemoryStorage(), nil
	}
	awsCfg, err := a.Config(ctx)
	if err != nil {
		return nil, err
	}
	return respcache.NewS3Storage(s3.NewFromConfig(awsCfg), cfg.ResponseBucket, cfg.ResponsePrefix), nil
}

// ParameterAPI is the SSM call the secret loaders need.
type ParameterAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// LoadSupabaseKey fills cfg.SupabaseKey from SSM Parameter Store when the
// environment did not provide it.
func LoadSupabaseKey(ctx context.Context, client ParameterAPI, cfg *config.Config) error {
	return loadParameter(ctx, client, &cfg.SupabaseKey, cfg.SupabaseKeyParam)
}

// LoadWebhookSecret fills cfg.WebhookSecret from SSM when it is unset and a
// parameter name is configured.
func LoadWebhookSecret(ctx context.Context, client ParameterAPI, cfg *config.Config) error {
	if cfg.WebhookSecretParam == "" {
		return nil
	}
	return loadParameter(ctx, client, &cfg.WebhookSecret, cfg.WebhookSecretParam)
}

func loadParameter(ctx context.Context, client ParameterAPI, dst *string, name string) error {
	if *dst != "" {
		return nil
	}
	ssmStart := time.Now()
	result, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("read %s from SSM: %w", name, err)
	}
	*dst = aws.ToString(result.Parameter.Value)
	log.Debug().Str("param", name).Dur("elapsed", time.Since(ssmStart)).Msg("Parameter loaded from SSM")
	return nil
}

// Secrets runs the SSM loaders with a client built from a, skipping the AWS
// config entirely when the environment already holds every value.
func Secrets(ctx context.Context, cfg *config.Config, a *AWS) error {
	needKey := cfg.SupabaseKey == ""
	needSecret := cfg.WebhookSecret == "" && cfg.WebhookSecretParam != ""
	if !needKey && !needSecret {
		return nil
	}
	awsCfg, err := a.Config(ctx)
	if err != nil {
		return err
	}
	client := ssm.NewFromConfig(awsCfg)
	if err := LoadSupabaseKey(ctx, client, cfg); err != nil {
		return err
	}
	return LoadWebhookSecret(ctx, client, cfg)
}

// Reporter builds the process-wide error reporter. Without a log group it
// only logs.
func Reporter(ctx context.Context, cfg *config.Config, a *AWS) *errreport.Reporter {
	limiter := errreport.NewRateLimiter(cfg.ErrorReportInterval)
	if cfg.ErrorLogGroup == "" {
		return errreport.NewReporter(limiter, nil)
	}
	awsCfg, err := a.Config(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Error forwarding disabled")
		return errreport.NewReporter(limiter, nil)
	}
	sink := errreport.NewCloudWatchSink(cloudwatchlogs.NewFromConfig(awsCfg), cfg.ErrorLogGroup, cfg.ErrorLogStream)
	return errreport.NewReporter(limiter, sink)
}

// Publisher builds the content change publisher, or nil when no bus is set.
func Publisher(ctx context.Context, cfg *config.Config, a *AWS) *events.Publisher {
	if cfg.EventBusName == "" {
		return nil
	}
	awsCfg, err := a.Config(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Content change events disabled")
		return nil
	}
	return events.NewPublisher(eventbridge.NewFromConfig(awsCfg), cfg.EventBusName)
}

// StartupLog starts a startup log for name with the backends from cfg
// already recorded.
func StartupLog(name string, cfg *config.Config, initStart time.Time) *logging.StartupLogger {
	sl := logging.NewStartupLogger(name).
		InitDuration(time.Since(initStart)).
		Store("cache", cfg.CacheBackend).
		Store("responses", cfg.ResponseBackend).
		Config("cacheVersion", cfg.CacheVersion).
		Feature("eventBridge", cfg.EventBusName != "").
		Feature("errorSink", cfg.ErrorLogGroup != "")
	if cfg.SupabaseURL != "" {
		sl.Upstream("supabase", cfg.SupabaseURL)
	}
	return sl
}
