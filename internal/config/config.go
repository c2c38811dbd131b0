// Package config loads process configuration from environment variables.
//
// Every binary (proxy, Lambdas, admin CLI) reads the same Config so a kiosk
// and a Lambda deployment differ only in their environment. Secrets that are
// not present in the environment are fetched from SSM by the boot package.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Cache backend names accepted by SARASSURE_CACHE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendDynamoDB = "dynamodb"
	BackendS3       = "s3"
)

// Config is the shared process configuration.
type Config struct {
	// Supabase project URL, e.g. https://abcd.supabase.co.
	SupabaseURL string `env:"SUPABASE_URL"`
	// Anonymous (public) API key. Loaded from SSM when empty.
	SupabaseKey      string `env:"SUPABASE_ANON_KEY"`
	SupabaseKeyParam string `env:"SSM_SUPABASE_KEY_PARAM" envDefault:"/sarassure/prod/supabase-anon-key"`

	// Origin serving the learner web app (the SPA bundle).
	AppOrigin string `env:"SARASSURE_APP_ORIGIN" envDefault:"http://localhost:5173"`
	ShellPath string `env:"SARASSURE_SHELL_PATH" envDefault:"/index.html"`

	// Persistent key-value cache (the localStorage analogue).
	CacheBackend string `env:"SARASSURE_CACHE_BACKEND" envDefault:"memory"`
	CachePath    string `env:"SARASSURE_CACHE_PATH" envDefault:"sarassure-cache.db"`
	CacheTable   string `env:"SARASSURE_CACHE_TABLE"`

	// Network response cache (the Cache Storage analogue).
	ResponseBackend string `env:"SARASSURE_RESPONSE_BACKEND" envDefault:"memory"`
	ResponseBucket  string `env:"SARASSURE_RESPONSE_BUCKET"`
	ResponsePrefix  string `env:"SARASSURE_RESPONSE_PREFIX" envDefault:"response-cache"`
	CacheVersion    string `env:"SARASSURE_CACHE_VERSION" envDefault:"v1"`

	// Content change broadcast. Empty disables publishing.
	EventBusName string `env:"SARASSURE_EVENT_BUS"`

	// Error reporting sink. Empty group disables CloudWatch forwarding.
	ErrorLogGroup       string        `env:"SARASSURE_ERROR_LOG_GROUP"`
	ErrorLogStream      string        `env:"SARASSURE_ERROR_LOG_STREAM" envDefault:"proxy"`
	ErrorReportInterval time.Duration `env:"SARASSURE_ERROR_REPORT_INTERVAL" envDefault:"10s"`

	// Bearer token guarding the proxy's admin endpoints. Empty disables them.
	AdminToken string `env:"SARASSURE_ADMIN_TOKEN"`
	// Shared secret for Supabase database webhooks. Empty disables the
	// webhook endpoint.
	WebhookSecret      string `env:"SARASSURE_WEBHOOK_SECRET"`
	WebhookSecretParam string `env:"SSM_WEBHOOK_SECRET_PARAM"`
}

// Load parses Config from the environment and validates backend names.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints that struct tags cannot express.
func (c *Config) Validate() error {
	switch c.CacheBackend {
	case BackendMemory, BackendSQLite:
	case BackendDynamoDB:
		if c.CacheTable == "" {
			return fmt.Errorf("SARASSURE_CACHE_TABLE is required for the %s cache backend", c.CacheBackend)
		}
	default:
		return fmt.Errorf("unknown cache backend %q", c.CacheBackend)
	}

	switch c.ResponseBackend {
	case BackendMemory:
	case BackendS3:
		if c.ResponseBucket == "" {
			return fmt.Errorf("SARASSURE_RESPONSE_BUCKET is required for the %s response backend", c.ResponseBackend)
		}
	default:
		return fmt.Errorf("unknown response backend %q", c.ResponseBackend)
	}
	return nil
}
