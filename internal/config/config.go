// Package config defines the configuration for the Backburner service.
// Configuration is loaded once at process initialization and is immutable
// thereafter. It follows 12-Factor principles: values come from the OS
// environment, optionally seeded from a local .env file.
//
// Any missing required value or invalid format fails the process immediately
// on startup (fail fast).
package config

import (
	"time"

	"backburner/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used in configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct. It is populated once during
// process initialization and never modified. Sub-components receive only the
// specific subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"backburner"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server      ServerConfig
	Database    DatabaseConfig
	Resurfacing ResurfacingConfig
	Push        PushConfig
	Retention   RetentionConfig
	Metrics     MetricsConfig
}

// ServerConfig holds HTTP server settings for the API binary.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"15s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`

	// RunMigrations applies pending embedded migrations at startup.
	// Intended for local and single-instance deployments.
	RunMigrations bool `envconfig:"DB_RUN_MIGRATIONS" default:"false"`
}

// ResurfacingConfig tunes the daily resurfacing job. The scoring weight
// table itself is fixed for cross-service compatibility and is not
// configurable.
type ResurfacingConfig struct {
	// CandidateLimit is the top-K selection size per user in the daily job.
	CandidateLimit int `envconfig:"RESURFACING_CANDIDATE_LIMIT" default:"3" validate:"min=1,max=50"`

	// UserTimeout bounds one user's processing so a stuck persistence call
	// cannot stall the whole batch.
	UserTimeout time.Duration `envconfig:"RESURFACING_USER_TIMEOUT" default:"30s"`

	// Schedule is the cron expression used when the worker runs outside
	// Lambda. Defaults to daily at 09:00 UTC.
	Schedule string `envconfig:"RESURFACING_SCHEDULE" default:"0 9 * * *"`
}

// PushConfig holds push-provider settings for notification dispatch.
type PushConfig struct {
	Enabled     bool          `envconfig:"PUSH_ENABLED" default:"true"`
	ProviderURL string        `envconfig:"PUSH_PROVIDER_URL" default:"https://exp.host/--/api/v2/push/send" validate:"url"`
	AccessToken SecretString  `envconfig:"PUSH_ACCESS_TOKEN"`
	Timeout     time.Duration `envconfig:"PUSH_TIMEOUT" default:"10s"`

	// MaxConcurrency bounds the per-user fan-out across device tokens.
	MaxConcurrency int `envconfig:"PUSH_MAX_CONCURRENCY" default:"8" validate:"min=1"`

	// Title is the notification title used by the daily job.
	Title string `envconfig:"PUSH_TITLE" default:"Backburner"`
}

// RetentionConfig tunes the resurfaced-event retention job.
type RetentionConfig struct {
	Enabled bool `envconfig:"RETENTION_ENABLED" default:"false"`

	// MaxAgeDays is how long resurfaced events are kept before being
	// archived and deleted.
	MaxAgeDays int `envconfig:"RETENTION_MAX_AGE_DAYS" default:"180" validate:"min=1"`

	// ArchiveDir is where gzipped JSONL archives are written.
	ArchiveDir string `envconfig:"RETENTION_ARCHIVE_DIR" default:"/var/lib/backburner/archive"`

	// Schedule is the cron expression for the retention pass when the
	// worker runs outside Lambda. Defaults to weekly, Sunday 03:00 UTC.
	Schedule string `envconfig:"RETENTION_SCHEDULE" default:"0 3 * * 0"`

	// BatchSize caps how many events are archived per pass.
	BatchSize int `envconfig:"RETENTION_BATCH_SIZE" default:"5000" validate:"min=1"`
}

// MetricsConfig controls the optional CloudWatch run-report export.
type MetricsConfig struct {
	Enabled   bool   `envconfig:"METRICS_ENABLED" default:"false"`
	Namespace string `envconfig:"METRICS_NAMESPACE" default:"Backburner/Resurfacing"`
	Region    string `envconfig:"AWS_REGION" default:"us-east-1"`
}
