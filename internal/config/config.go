// Package config provides configuration management for the dashboard service.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds all configuration for the dashboard service.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	CRM         CRMConfig         `mapstructure:"crm"`
	Refresh     RefreshConfig     `mapstructure:"refresh"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Snapshot    SnapshotConfig    `mapstructure:"snapshot"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	RateLimiter RateLimiterConfig `mapstructure:"rate_limiter"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Tenants     []TenantConfig    `mapstructure:"tenants"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// CRMConfig holds the remote CRM platform client configuration.
type CRMConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	PageSize       int           `mapstructure:"page_size"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	BaseBackoff    time.Duration `mapstructure:"base_backoff"`
	BackoffFactor  float64       `mapstructure:"backoff_factor"`
	MaxJitter      time.Duration `mapstructure:"max_jitter"`
	PagesPerSecond float64       `mapstructure:"pages_per_second"`
}

// RefreshConfig holds the snapshot refresh engine configuration.
type RefreshConfig struct {
	SnapshotTTL        time.Duration `mapstructure:"snapshot_ttl"`
	OverlapWindow      time.Duration `mapstructure:"overlap_window"`
	BudgetPerRequest   int           `mapstructure:"budget_per_request"`
	RequestDeadline    time.Duration `mapstructure:"request_deadline"`
	IncrementalPages   int           `mapstructure:"incremental_pages"`
	IncrementalRecords int           `mapstructure:"incremental_records"`
	FullPages          int           `mapstructure:"full_pages"`
	FullRecords        int           `mapstructure:"full_records"`
}

// CacheConfig holds the response range-cache configuration.
type CacheConfig struct {
	Backend string        `mapstructure:"backend"` // "memory" or "redis"
	TTL     time.Duration `mapstructure:"ttl"`
	MaxSize int           `mapstructure:"max_size"`
}

// SnapshotConfig holds the durable snapshot store configuration.
type SnapshotConfig struct {
	Backend string `mapstructure:"backend"` // "file" or "postgres"
	Dir     string `mapstructure:"dir"`
}

// DatabaseConfig holds PostgreSQL snapshot store configuration.
type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MinConnections int    `mapstructure:"min_connections"`
}

// RedisConfig holds Redis range-cache configuration.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// RateLimiterConfig holds inbound rate limiter configuration.
type RateLimiterConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	BurstSize         int     `mapstructure:"burst_size"`
}

// MetricsConfig holds Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TenantConfig holds one tenant's identity and CRM credential.
type TenantConfig struct {
	ID       string `mapstructure:"id"`
	Name     string `mapstructure:"name"`
	APIToken string `mapstructure:"api_token"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("server.port must be between 1 and 65535")
	}
	if c.CRM.BaseURL == "" {
		return errors.New("crm.base_url is required")
	}
	if c.CRM.PageSize <= 0 {
		return errors.New("crm.page_size must be positive")
	}
	if c.CRM.MaxAttempts <= 0 {
		return errors.New("crm.max_attempts must be positive")
	}
	if c.CRM.BackoffFactor < 1 {
		return errors.New("crm.backoff_factor must be >= 1")
	}
	if c.Refresh.BudgetPerRequest < 0 {
		return errors.New("refresh.budget_per_request must not be negative")
	}
	if c.Refresh.OverlapWindow < 0 {
		return errors.New("refresh.overlap_window must not be negative")
	}
	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("cache.backend must be memory or redis, got %q", c.Cache.Backend)
	}
	switch c.Snapshot.Backend {
	case "file":
		if c.Snapshot.Dir == "" {
			return errors.New("snapshot.dir is required for the file backend")
		}
	case "postgres":
		if c.Database.Host == "" {
			return errors.New("database.host is required for the postgres backend")
		}
		if c.Database.Database == "" {
			return errors.New("database.database is required for the postgres backend")
		}
		if c.Database.User == "" {
			return errors.New("database.user is required for the postgres backend")
		}
	default:
		return fmt.Errorf("snapshot.backend must be file or postgres, got %q", c.Snapshot.Backend)
	}
	if c.Cache.Backend == "redis" && c.Redis.Host == "" {
		return errors.New("redis.host is required for the redis cache backend")
	}
	seen := make(map[string]bool, len(c.Tenants))
	for i, t := range c.Tenants {
		if t.ID == "" {
			return fmt.Errorf("tenants[%d].id is required", i)
		}
		if seen[t.ID] {
			return fmt.Errorf("duplicate tenant id %q", t.ID)
		}
		seen[t.ID] = true
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	return nil
}
