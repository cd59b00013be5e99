// Package config defines the process configuration for the rfcoverage tools.
// Configuration is loaded once at startup and is immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> struct defaults (Lowest)
//
// Per-run parameters (input files, network name, threshold, receiver
// parameters) are command-line flags and live in the cmd packages. Anything
// that identifies the remote service, its credentials, pacing and optional
// sinks lives here. A missing required value or invalid format is a fatal
// configuration error.
package config

import (
	"time"

	"rfcoverage/internal/types"
)

// SecretString is an alias for types.SecretString.
type SecretString = types.SecretString

// Config is the top-level configuration struct.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"text" validate:"oneof=text json"`

	Service       ServiceConfig
	Pacing        PacingConfig
	Database      DatabaseConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServiceConfig identifies the remote propagation service and the account
// used to call it. This replaces the module-level server variable the
// processing scripts shared across scopes.
type ServiceConfig struct {
	// ServerURL hosts the legacy best-server endpoint (/API/network/index.php).
	ServerURL string `envconfig:"CLOUDRF_SERVER" default:"https://cloudrf.com" validate:"required,url"`
	// APIURL hosts the v2 JSON endpoints (/path, /area).
	APIURL string `envconfig:"CLOUDRF_API_URL" default:"https://api.cloudrf.com" validate:"required,url"`

	UID    string       `envconfig:"CLOUDRF_UID" validate:"required"`
	APIKey SecretString `envconfig:"CLOUDRF_API_KEY" validate:"required"`

	StrictSSL  bool          `envconfig:"CLOUDRF_STRICT_SSL" default:"true"`
	Timeout    time.Duration `envconfig:"CLOUDRF_TIMEOUT" default:"120s" validate:"gt=0"`
	MaxRetries int           `envconfig:"CLOUDRF_MAX_RETRIES" default:"0" validate:"gte=0,lte=5"`
	UserAgent  string        `envconfig:"CLOUDRF_USER_AGENT" default:"rfcoverage/1.0"`
}

// PacingConfig holds the courtesy pauses inserted between sequential requests.
type PacingConfig struct {
	RequestDelay time.Duration `envconfig:"REQUEST_DELAY" default:"250ms" validate:"gte=0"`
	PairDelay    time.Duration `envconfig:"PAIR_DELAY" default:"1s" validate:"gte=0"`
	NetworkDelay time.Duration `envconfig:"NETWORK_DELAY" default:"2s" validate:"gte=0"`
}

// DatabaseConfig enables the optional PostgreSQL results sink. An empty URL
// disables it.
type DatabaseConfig struct {
	URL            SecretString  `envconfig:"DATABASE_URL"`
	MaxConns       int32         `envconfig:"DB_MAX_CONNS" default:"4" validate:"gte=1"`
	ConnectTimeout time.Duration `envconfig:"DB_CONNECT_TIMEOUT" default:"10s"`
}

// Enabled reports whether a database sink was configured.
func (d DatabaseConfig) Enabled() bool {
	return !d.URL.IsZero()
}

// ObservabilityConfig holds run metrics settings.
type ObservabilityConfig struct {
	// MetricsTextfile, when set, receives a Prometheus text exposition of the
	// run counters (node_exporter textfile collector format).
	MetricsTextfile  string `envconfig:"METRICS_TEXTFILE"`
	MetricNamespace  string `envconfig:"METRIC_NAMESPACE" default:"RFCoverage"`
	EnableCloudWatch bool   `envconfig:"ENABLE_CLOUDWATCH" default:"false"`
	AWSRegion        string `envconfig:"AWS_REGION" default:"us-east-1"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	// ErrDotenv indicates an explicitly requested dotenv file could not be read.
	ErrDotenv ConfigErrorType = "DOTENV_FAILED"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
