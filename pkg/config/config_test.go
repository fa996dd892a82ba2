package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plannerhq/plansearch/pkg/observability"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("PLANSEARCH_POSTGRES_URL", "postgres://localhost:5432/planner?sslmode=disable")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost:5432/planner?sslmode=disable", cfg.Database.URL)
	assert.Equal(t, 20, cfg.Database.MaxConns)
	assert.Equal(t, "@every 5m", cfg.Refresh.Schedule)
	assert.Equal(t, 10*time.Minute, cfg.Refresh.RebuildTimeout)
	assert.Equal(t, 3, cfg.Refresh.FailureAlertThreshold)
	assert.Equal(t, 50, cfg.Search.DefaultLimit)
	assert.Equal(t, 1000, cfg.Search.MaxLimit)
	assert.False(t, cfg.Cache.Enabled)
	assert.True(t, cfg.Observability.MetricsEnabled)
	assert.Equal(t, observability.InfoLevel, cfg.Observability.LogLevel)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("PLANSEARCH_POSTGRES_URL", "postgres://db:5432/planner")
	t.Setenv("PLANSEARCH_REFRESH_SCHEDULE", "@every 1m")
	t.Setenv("PLANSEARCH_REBUILD_TIMEOUT", "2m")
	t.Setenv("PLANSEARCH_REBUILD_FAILURE_ALERT_THRESHOLD", "5")
	t.Setenv("PLANSEARCH_QUERY_TIMEOUT", "3s")
	t.Setenv("PLANSEARCH_DEFAULT_LIMIT", "25")
	t.Setenv("PLANSEARCH_LOG_LEVEL", "debug")
	t.Setenv("PLANSEARCH_CACHE_ENABLED", "true")
	t.Setenv("PLANSEARCH_REDIS_URL", "localhost:6379")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "@every 1m", cfg.Refresh.Schedule)
	assert.Equal(t, 2*time.Minute, cfg.Refresh.RebuildTimeout)
	assert.Equal(t, 5, cfg.Refresh.FailureAlertThreshold)
	assert.Equal(t, 3*time.Second, cfg.Search.QueryTimeout)
	assert.Equal(t, 25, cfg.Search.DefaultLimit)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.LogLevel)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, "localhost:6379", cfg.Cache.RedisURL)
}

func TestLoadConfigMissingDatabaseURL(t *testing.T) {
	t.Setenv("PLANSEARCH_POSTGRES_URL", "")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres URL is required")
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Database: DatabaseConfig{URL: "postgres://localhost/planner"},
			Refresh: RefreshConfig{
				Schedule:              "@every 5m",
				RebuildTimeout:        time.Minute,
				FailureAlertThreshold: 3,
			},
			Search: SearchConfig{
				QueryTimeout: time.Second,
				DefaultLimit: 50,
				MaxLimit:     1000,
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(*Config) {},
		},
		{
			name:    "empty schedule",
			mutate:  func(c *Config) { c.Refresh.Schedule = "" },
			wantErr: "refresh schedule is required",
		},
		{
			name:    "zero rebuild timeout",
			mutate:  func(c *Config) { c.Refresh.RebuildTimeout = 0 },
			wantErr: "rebuild timeout must be positive",
		},
		{
			name:    "alert threshold below one",
			mutate:  func(c *Config) { c.Refresh.FailureAlertThreshold = 0 },
			wantErr: "alert threshold must be at least 1",
		},
		{
			name:    "default limit above max",
			mutate:  func(c *Config) { c.Search.DefaultLimit = 2000 },
			wantErr: "default limit must not exceed max limit",
		},
		{
			name: "cache enabled without redis",
			mutate: func(c *Config) {
				c.Cache.Enabled = true
				c.Cache.RedisURL = ""
			},
			wantErr: "redis URL is required",
		},
		{
			name: "otel enabled without endpoint",
			mutate: func(c *Config) {
				c.Observability.OTelEnabled = true
				c.Observability.OTelEndpoint = ""
			},
			wantErr: "endpoint is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, observability.DebugLevel, parseLogLevel("debug"))
	assert.Equal(t, observability.WarnLevel, parseLogLevel("WARNING"))
	assert.Equal(t, observability.ErrorLevel, parseLogLevel("error"))
	assert.Equal(t, observability.InfoLevel, parseLogLevel("nonsense"))
}
