// Package config defines the global configuration structure for the PureTrack
// alert digest engine. Configuration is loaded once at process initialization
// and is immutable thereafter. It follows 12-Factor App principles by strictly
// separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> SSM Parameter Store (Lowest)
//
// Any missing required value or invalid format causes the process to exit
// immediately on startup (fail fast).
package config

import (
	"time"

	"puretrack/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging of sensitive
// values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the digest engine.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"puretrack-digest"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server    ServerConfig
	Database  DatabaseConfig
	AWS       AWSConfig
	Email     EmailConfig
	Scheduler SchedulerConfig

	// Build Metadata (injected via ldflags, not env)
	Build BuildInfo `ignored:"true"`
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// APIExternalURL is the public base URL embedded in acknowledgment
	// links (no trailing slash), e.g. https://api.puretrack.io.
	APIExternalURL string `envconfig:"API_EXTERNAL_URL" validate:"required,url"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// AlertEventQueue is the SQS queue carrying raw alert events from the
	// ingest API to the aggregation worker.
	AlertEventQueue string `envconfig:"SQS_ALERT_EVENTS" validate:"required,url"`
	DlqURL          string `envconfig:"SQS_DLQ" validate:"required,url"`

	// LocalStack support (empty in prod).
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// EmailConfig holds email delivery provider selection and credentials.
type EmailConfig struct {
	// Provider selects the transport implementation: "ses" uses the AWS
	// SDK, "http" uses the circuit-breaking HTTP provider.
	Provider string `envconfig:"EMAIL_PROVIDER" default:"ses" validate:"oneof=ses http"`

	SenderName    string `envconfig:"EMAIL_SENDER_NAME" default:"PureTrack Alerts"`
	SenderAddress string `envconfig:"EMAIL_SENDER_ADDRESS" validate:"required,email"`

	// SES settings.
	SESConfigSet string `envconfig:"SES_CONFIG_SET"`

	// HTTP provider settings (ignored when Provider is "ses").
	HTTPEndpoint string       `envconfig:"EMAIL_HTTP_ENDPOINT"`
	HTTPAPIKey   SecretString `envconfig:"EMAIL_HTTP_API_KEY"`

	// SendTimeout bounds a single transport call. A timeout counts as a
	// failed attempt, never as an ambiguous outcome.
	SendTimeout time.Duration `envconfig:"EMAIL_SEND_TIMEOUT" default:"10s"`
}

// SchedulerConfig holds tuning for the cooldown sweep.
type SchedulerConfig struct {
	// BatchSize is the number of eligible digests fetched per scan page.
	BatchSize int `envconfig:"SCHEDULER_BATCH_SIZE" default:"100"`

	// SendConcurrency bounds the parallel send fan-out within one sweep.
	SendConcurrency int `envconfig:"SCHEDULER_SEND_CONCURRENCY" default:"8"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}
