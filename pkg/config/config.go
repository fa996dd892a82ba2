package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/plannerhq/plansearch/pkg/observability"
)

// Config holds all search subsystem configuration
type Config struct {
	Database      DatabaseConfig
	Refresh       RefreshConfig
	Search        SearchConfig
	Cache         CacheConfig
	Observability ObservabilityConfig
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	URL         string
	ReplicaURLs string // Comma-separated read replica URLs
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// RefreshConfig holds index refresh scheduling configuration
type RefreshConfig struct {
	// Schedule is a cron spec for periodic rebuilds of every entity type.
	Schedule string

	// RebuildTimeout bounds a single rebuild; the previous snapshot is
	// retained when it trips.
	RebuildTimeout time.Duration

	// FailureAlertThreshold is the number of consecutive rebuild
	// failures after which an alert-level log is emitted.
	FailureAlertThreshold int
}

// SearchConfig holds query-side configuration
type SearchConfig struct {
	QueryTimeout time.Duration
	DefaultLimit int
	MaxLimit     int
}

// CacheConfig holds projection cache configuration
type CacheConfig struct {
	Enabled       bool
	RedisURL      string
	RedisPassword string
	RedisDB       int
	L1Size        int // Number of projections held in-process
	TTL           time.Duration
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Database:      loadDatabaseConfig(),
		Refresh:       loadRefreshConfig(),
		Search:        loadSearchConfig(),
		Cache:         loadCacheConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:         getEnv("PLANSEARCH_POSTGRES_URL", ""),
		ReplicaURLs: getEnv("PLANSEARCH_POSTGRES_REPLICA_URLS", ""),
		MaxConns:    getEnvInt("PLANSEARCH_POSTGRES_MAX_CONNS", 20),
		MinConns:    getEnvInt("PLANSEARCH_POSTGRES_MIN_CONNS", 2),
		Timeout:     getEnvDuration("PLANSEARCH_POSTGRES_TIMEOUT", 10*time.Second),
		MaxLifetime: getEnvDuration("PLANSEARCH_POSTGRES_MAX_LIFETIME", 30*time.Minute),
		MaxIdleTime: getEnvDuration("PLANSEARCH_POSTGRES_MAX_IDLE_TIME", 5*time.Minute),
	}
}

func loadRefreshConfig() RefreshConfig {
	return RefreshConfig{
		Schedule:              getEnv("PLANSEARCH_REFRESH_SCHEDULE", "@every 5m"),
		RebuildTimeout:        getEnvDuration("PLANSEARCH_REBUILD_TIMEOUT", 10*time.Minute),
		FailureAlertThreshold: getEnvInt("PLANSEARCH_REBUILD_FAILURE_ALERT_THRESHOLD", 3),
	}
}

func loadSearchConfig() SearchConfig {
	return SearchConfig{
		QueryTimeout: getEnvDuration("PLANSEARCH_QUERY_TIMEOUT", 15*time.Second),
		DefaultLimit: getEnvInt("PLANSEARCH_DEFAULT_LIMIT", 50),
		MaxLimit:     getEnvInt("PLANSEARCH_MAX_LIMIT", 1000),
	}
}

func loadCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:       getEnvBool("PLANSEARCH_CACHE_ENABLED", false),
		RedisURL:      getEnv("PLANSEARCH_REDIS_URL", ""),
		RedisPassword: getEnv("PLANSEARCH_REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("PLANSEARCH_REDIS_DB", 0),
		L1Size:        getEnvInt("PLANSEARCH_CACHE_L1_SIZE", 4096),
		TTL:           getEnvDuration("PLANSEARCH_CACHE_TTL", 5*time.Minute),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("PLANSEARCH_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("PLANSEARCH_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("PLANSEARCH_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("PLANSEARCH_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("PLANSEARCH_OTEL_SERVICE_NAME", "plansearch"),
		OTelServiceVersion: getEnv("PLANSEARCH_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("PLANSEARCH_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	if c.Refresh.Schedule == "" {
		return fmt.Errorf("refresh schedule is required")
	}
	if c.Refresh.RebuildTimeout <= 0 {
		return fmt.Errorf("rebuild timeout must be positive")
	}
	if c.Refresh.FailureAlertThreshold < 1 {
		return fmt.Errorf("rebuild failure alert threshold must be at least 1")
	}

	if c.Search.QueryTimeout <= 0 {
		return fmt.Errorf("query timeout must be positive")
	}
	if c.Search.DefaultLimit <= 0 || c.Search.MaxLimit <= 0 {
		return fmt.Errorf("search limits must be positive")
	}
	if c.Search.DefaultLimit > c.Search.MaxLimit {
		return fmt.Errorf("default limit must not exceed max limit")
	}

	if c.Cache.Enabled && c.Cache.RedisURL == "" {
		return fmt.Errorf("redis URL is required when the projection cache is enabled")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
