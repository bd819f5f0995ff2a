// Package config provides centralized configuration management for the
// datasheet importer. Values come from environment variables with defaults
// and are validated on startup so a misconfigured deployment fails fast.
package config

import (
	"strconv"
	"time"
)

// DefaultCategoriesTaxonomy is the taxonomy that receives taxons created from
// the "taxons" column when CATEGORIES_TAXONOMY is unset.
const DefaultCategoriesTaxonomy = "Kategorie"

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Upload   UploadConfig
	Catalog  CatalogConfig
	Worker   WorkerConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds graceful shutdown, including waiting for runs (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 5m).
	// Synchronous perform requests run under this deadline.
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"5m"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required).
	// DATABASE_URL and DB_URL are both accepted.
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// AutoMigrate creates the catalog and datasheet tables on startup (default: true)
	AutoMigrate bool `env:"DATASHEET_AUTO_MIGRATE" default:"true"`
}

// UploadConfig holds datasheet storage and processing settings.
type UploadConfig struct {
	// Dir is where uploaded datasheets are stored, one directory per run.
	Dir string `env:"UPLOAD_DIR" default:"uploads/product_datasheets"`

	// MaxFileSize is the maximum accepted datasheet size in bytes (default: 50MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"52428800"`

	// MaxConcurrent is the maximum number of runs performed in parallel (default: 2)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" default:"2"`

	// MaxWaitTime is how long a perform request waits for a free slot (default: 30s)
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"30s"`

	// Timeout bounds a single run started by the background worker (default: 30m)
	Timeout time.Duration `env:"UPLOAD_TIMEOUT" default:"30m"`
}

// CatalogConfig holds settings for the product catalog being reconciled.
type CatalogConfig struct {
	// CategoriesTaxonomy names the taxonomy whose root receives new taxons.
	CategoriesTaxonomy string `env:"CATEGORIES_TAXONOMY" default:"Kategorie"`
}

// WorkerConfig holds settings for the background run worker.
type WorkerConfig struct {
	// Enabled starts the worker that performs pending datasheets (default: true)
	Enabled bool `env:"WORKER_ENABLED" default:"true"`

	// PollInterval is how often pending runs are picked up (default: 30s)
	PollInterval time.Duration `env:"WORKER_POLL_INTERVAL" default:"30s"`

	// BatchSize is the maximum number of pending runs performed per poll (default: 10)
	BatchSize int `env:"WORKER_BATCH_SIZE" default:"10"`

	// MaxAttempts is how many times a failing run is retried before the
	// worker skips it (default: 3)
	MaxAttempts int `env:"WORKER_MAX_ATTEMPTS" default:"3"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the rate limit per client IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey rejects API requests without a valid X-API-Key (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted API keys
	APIKeys []string `env:"API_KEYS"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// TaxonomyName returns the configured categories taxonomy, falling back to
// DefaultCategoriesTaxonomy when the value is blank.
func (c CatalogConfig) TaxonomyName() string {
	if c.CategoriesTaxonomy == "" {
		return DefaultCategoriesTaxonomy
	}
	return c.CategoriesTaxonomy
}
