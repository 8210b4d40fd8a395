package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from file and environment variables.
// The config file is optional; defaults and environment variables apply
// either way, with environment variables taking precedence.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/opsdash/")
	}

	v.SetEnvPrefix("OPSDASH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// CRM client defaults
	v.SetDefault("crm.base_url", "https://services.leadconnectorhq.com")
	v.SetDefault("crm.timeout", "20s")
	v.SetDefault("crm.page_size", 100)
	v.SetDefault("crm.max_attempts", 4)
	v.SetDefault("crm.base_backoff", "500ms")
	v.SetDefault("crm.backoff_factor", 2.0)
	v.SetDefault("crm.max_jitter", "250ms")
	v.SetDefault("crm.pages_per_second", 4.0)

	// Refresh engine defaults
	v.SetDefault("refresh.snapshot_ttl", "15m")
	v.SetDefault("refresh.overlap_window", "30m")
	v.SetDefault("refresh.budget_per_request", 5)
	v.SetDefault("refresh.request_deadline", "25s")
	v.SetDefault("refresh.incremental_pages", 3)
	v.SetDefault("refresh.incremental_records", 300)
	v.SetDefault("refresh.full_pages", 50)
	v.SetDefault("refresh.full_records", 5000)

	// Range cache defaults
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl", "2m")
	v.SetDefault("cache.max_size", 1000)

	// Snapshot store defaults
	v.SetDefault("snapshot.backend", "file")
	v.SetDefault("snapshot.dir", "./data/snapshots")

	// Database defaults (postgres snapshot backend)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "opsdash")
	v.SetDefault("database.user", "opsdash")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.min_connections", 2)

	// Redis defaults (redis cache backend)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	// Rate limiter defaults
	v.SetDefault("rate_limiter.enabled", true)
	v.SetDefault("rate_limiter.requests_per_second", 50.0)
	v.SetDefault("rate_limiter.burst_size", 25)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
