// Package config provides centralized configuration management for jobetl.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import "time"

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Source   SourceConfig
	Staging  StagingConfig
	Mapping  MappingConfig
	Database DatabaseConfig
	Load     LoadConfig
	Retry    RetryConfig
	Logging  LoggingConfig
	Server   ServerConfig
	Security SecurityConfig
	Tracing  TracingConfig
}

// SourceConfig describes the scraped CSV export.
type SourceConfig struct {
	// Path is the CSV file to extract from (default: source/jobs.csv)
	Path string `env:"SOURCE_CSV_PATH" default:"source/jobs.csv"`

	// Column is the header of the column holding the JSON-LD payload (default: context)
	Column string `env:"SOURCE_COLUMN" default:"context"`

	// DropIncomplete skips rows with any empty cell (default: true)
	DropIncomplete bool `env:"SOURCE_DROP_INCOMPLETE" default:"true"`
}

// StagingConfig holds the inter-stage artifact location.
type StagingConfig struct {
	// Dir is the staging root; stages write to Dir/extracted and Dir/transformed (default: staging)
	Dir string `env:"STAGING_DIR" default:"staging"`
}

// MappingConfig selects the field mapping.
type MappingConfig struct {
	// File is a YAML or JSON mapping file; empty uses the built-in mapping
	File string `env:"MAPPING_FILE"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Driver is the destination store: postgres or sqlite (default: sqlite)
	Driver string `env:"DB_DRIVER" default:"sqlite"`

	// URL is the connection string or SQLite file DSN (default: file:jobetl.db)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" default:"file:jobetl.db"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// LoadConfig holds load stage settings.
type LoadConfig struct {
	// BatchSize is the number of rows per insert statement (default: 500)
	BatchSize int `env:"LOAD_BATCH_SIZE" default:"500"`

	// Timeout bounds a single load transaction (default: 10m)
	Timeout time.Duration `env:"LOAD_TIMEOUT" default:"10m"`
}

// RetryConfig controls whole-stage retries in a pipeline run.
type RetryConfig struct {
	// MaxAttempts is the number of retries after the first failure (default: 3)
	MaxAttempts int `env:"RETRY_MAX_ATTEMPTS" default:"3"`

	// Delay is the fixed wait between retries (default: 15m)
	Delay time.Duration `env:"RETRY_DELAY" default:"15m"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// ServerConfig holds HTTP server settings for `jobetl serve`.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 30s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"30s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// SecurityConfig guards the run trigger of the HTTP server.
type SecurityConfig struct {
	// RequireAPIKey enforces X-API-Key on POST /api/runs (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `env:"API_KEYS"`

	// TrustedProxies lists CIDRs whose X-Real-IP / X-Forwarded-For headers are honored
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// TracingConfig holds OpenTelemetry export settings.
type TracingConfig struct {
	// Endpoint is the OTLP/gRPC collector address; empty disables export
	Endpoint string `env:"TRACING_ENDPOINT"`

	// ServiceName is reported on every span (default: jobetl)
	ServiceName string `env:"TRACING_SERVICE_NAME" default:"jobetl"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	if c.Host == "" {
		return ":" + itoa(c.Port)
	}
	return c.Host + ":" + itoa(c.Port)
}

// itoa converts an int to string without importing strconv in this file.
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b [20]byte
	n := len(b)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		n--
		b[n] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		n--
		b[n] = '-'
	}
	return string(b[n:])
}
