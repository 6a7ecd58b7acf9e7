package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"moneybook/internal/auth"
	"moneybook/internal/core"

	"github.com/robfig/cron/v3"
)

type Config struct {
	// HTTP Server
	Port               string
	RateLimitPerMinute int
	MaxUploadBytes     int64

	// Records
	DataBackend  string
	SQLiteDBPath string
	DatabaseURL  string

	// Receipt images
	BlobBackend       string
	BlobLocalDir      string
	BlobPublicBaseURL string
	GCSBucket         string

	// AMQP (optional)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets activity export (worker)
	GoogleSpreadsheetID string
	GoogleSheetName     string

	// Identity
	AuthStaticTokens string

	// Blob janitor
	JanitorSchedule  string
	JanitorBatchSize int

	// List cache
	ListCacheTTL  time.Duration
	ListCacheSize int

	// Logging
	LogLevel  string
	LogFormat string
}

var (
	validDataBackends = []string{"memory", "sqlite", "postgres"}
	validBlobBackends = []string{"memory", "local", "gcs"}
	validLogFormats   = []string{"text", "json"}
	validLogLevels    = []string{"debug", "info", "warn", "warning", "error"}
)

func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		MaxUploadBytes:     int64(getEnvInt("MAX_UPLOAD_BYTES", 8<<20)),

		DataBackend:  getEnv("DATA_BACKEND", "sqlite"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/moneybook.db"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),

		BlobBackend:       getEnv("BLOB_BACKEND", "local"),
		BlobLocalDir:      getEnv("BLOB_LOCAL_DIR", "./data/images"),
		BlobPublicBaseURL: strings.TrimRight(getEnv("BLOB_PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		GCSBucket:         getEnv("GCS_BUCKET", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "moneybook"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "transaction_events"),

		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:     getEnv("GOOGLE_SHEET_NAME", "Activity"),

		AuthStaticTokens: getEnv("AUTH_STATIC_TOKENS", ""),

		JanitorSchedule:  getEnv("JANITOR_SCHEDULE", "@every 1m"),
		JanitorBatchSize: getEnvInt("JANITOR_BATCH_SIZE", 50),

		ListCacheTTL:  getEnvDuration("LIST_CACHE_TTL", 30*time.Second),
		ListCacheSize: getEnvInt("LIST_CACHE_SIZE", 1000),

		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),
	}
}

// Validate validates the API server configuration and returns every
// problem found in a single error.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	errors = append(errors, c.validateStore()...)

	if !slices.Contains(validBlobBackends, c.BlobBackend) {
		errors = append(errors, fmt.Sprintf("invalid blob backend '%s': must be one of %v", c.BlobBackend, validBlobBackends))
	}
	switch c.BlobBackend {
	case "local":
		if c.BlobLocalDir == "" {
			errors = append(errors, "BLOB_LOCAL_DIR cannot be empty when using local blob backend")
		}
	case "gcs":
		if c.GCSBucket == "" {
			errors = append(errors, "GCS_BUCKET is required when using gcs blob backend")
		}
	}
	if c.BlobPublicBaseURL != "" {
		if u, err := url.Parse(c.BlobPublicBaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errors = append(errors, fmt.Sprintf("invalid BLOB_PUBLIC_BASE_URL '%s': must be an absolute http(s) URL", c.BlobPublicBaseURL))
		}
	}

	errors = append(errors, c.validateAMQP()...)

	if c.AuthStaticTokens != "" {
		if _, err := auth.ParseStaticTokens(c.AuthStaticTokens); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AUTH_STATIC_TOKENS: %v", err))
		}
	}

	if _, err := cron.ParseStandard(c.JanitorSchedule); err != nil {
		errors = append(errors, fmt.Sprintf("invalid janitor schedule '%s': %v", c.JanitorSchedule, err))
	}
	if c.JanitorBatchSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid janitor batch size %d: must be at least 1", c.JanitorBatchSize))
	} else if c.JanitorBatchSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid janitor batch size %d: must be at most 1000", c.JanitorBatchSize))
	}

	if c.ListCacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid list cache TTL %v: must not be negative", c.ListCacheTTL))
	}
	if c.ListCacheSize < 0 {
		errors = append(errors, fmt.Sprintf("invalid list cache size %d: must not be negative", c.ListCacheSize))
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}
	if c.MaxUploadBytes < core.MaxImageBytes {
		errors = append(errors, fmt.Sprintf("invalid max upload size %d: must be at least %d bytes", c.MaxUploadBytes, core.MaxImageBytes))
	}

	errors = append(errors, c.validateLogging()...)

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// ListCacheEnabled reports whether the in-process list cache should run. The
// cache is invalidated only by writes made through this process, so it stays
// off for postgres, where other instances can write the same rows.
func (c *Config) ListCacheEnabled() bool {
	return c.ListCacheTTL > 0 && c.ListCacheSize > 0 && c.DataBackend != "postgres"
}

// ValidateWorker validates the settings the event export worker needs.
func (c *Config) ValidateWorker() error {
	var errors []string

	if c.AMQPURL == "" {
		errors = append(errors, "AMQP_URL is required for the worker")
	}
	errors = append(errors, c.validateAMQP()...)
	if c.GoogleSpreadsheetID == "" {
		errors = append(errors, "GOOGLE_SPREADSHEET_ID is required for the worker")
	}
	errors = append(errors, c.validateLogging()...)

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// ValidateStore validates only the record store settings, for tools that
// open the store directly.
func (c *Config) ValidateStore() error {
	errors := c.validateStore()
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func (c *Config) validateStore() []string {
	var errors []string

	if !slices.Contains(validDataBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validDataBackends))
	}

	switch c.DataBackend {
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0o755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	case "postgres":
		if c.DatabaseURL == "" {
			errors = append(errors, "DATABASE_URL is required when using postgres backend")
		} else if u, err := url.Parse(c.DatabaseURL); err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
			errors = append(errors, "invalid DATABASE_URL: scheme must be 'postgres' or 'postgresql'")
		}
	}
	return errors
}

func (c *Config) validateAMQP() []string {
	if c.AMQPURL == "" {
		return nil
	}

	var errors []string
	if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
		errors = append(errors, fmt.Sprintf("invalid AMQP URL: %v", err))
	} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
		errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
	}
	if c.AMQPExchange == "" {
		errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
	}
	if c.AMQPQueue == "" {
		errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
	}
	return errors
}

func (c *Config) validateLogging() []string {
	var errors []string
	if !slices.Contains(validLogLevels, c.LogLevel) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of %v", c.LogLevel, validLogLevels))
	}
	if !slices.Contains(validLogFormats, c.LogFormat) {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be one of %v", c.LogFormat, validLogFormats))
	}
	return errors
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return defaultValue
}
