package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	v *viper.Viper
}

// New creates a new configuration instance
func New() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/threat-engine/")
	v.AddConfigPath("$HOME/.threat-engine")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvPrefix("THREAT_ENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return &Config{v: v}, nil
}

// NewFromViper creates a new configuration instance from an existing Viper instance
func NewFromViper(v *viper.Viper) *Config {
	return &Config{v: v}
}

// NewEmptyViper creates a new Viper instance with defaults
func NewEmptyViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	// Storage
	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.dsn", "file:threat-engine.db?cache=shared&_busy_timeout=5000")
	v.SetDefault("database.max_open_conns", 5)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "5m")

	// Prediction cache
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.capacity", 10000)
	v.SetDefault("cache.ttl", "1h")
	v.SetDefault("cache.prefix", "threat-engine:prediction:")

	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Audit events and notifications
	v.SetDefault("sinks.type", "log")
	v.SetDefault("sinks.audit_stream", "threat-engine:audit")
	v.SetDefault("sinks.notification_stream", "threat-engine:notifications")
	v.SetDefault("sinks.max_len", 100000)

	v.SetDefault("metrics.namespace", "threat_engine")
	v.SetDefault("metrics.listen_address", "")

	v.SetDefault("scoring.max_batch_size", 100)
	v.SetDefault("scoring.rule_limit", 500)
	v.SetDefault("scoring.list_limit", 100)
	v.SetDefault("scoring.pointer_check_interval", "5s")

	v.SetDefault("learning.alert_occurrences", 3)
	v.SetDefault("learning.promotion_limit", 50)
	v.SetDefault("learning.rule_limit", 500)
	v.SetDefault("learning.analytics_window", "720h")
	v.SetDefault("learning.trend_days", 7)
	v.SetDefault("learning.top_limit", 5)
	v.SetDefault("learning.cross_tenant_limit", 100)

	// Decision learner
	v.SetDefault("analytics.min_samples", 10)
	v.SetDefault("analytics.analysis_window", "720h")
	v.SetDefault("analytics.tuning_window", "336h")
	v.SetDefault("analytics.drift_window", "720h")
	v.SetDefault("analytics.drift_threshold", 0.15)
	v.SetDefault("analytics.suggestion_confidence", 0.7)
	v.SetDefault("analytics.override_rate_limit", 0.3)
	v.SetDefault("analytics.threshold_step", 0.05)
	v.SetDefault("analytics.consistency_window", "720h")
	v.SetDefault("analytics.consistency_deviation", 0.3)

	v.SetDefault("demo.lookback", "24h")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// GetString gets a string value from the configuration
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt gets an integer value from the configuration
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetFloat64 gets a float64 value from the configuration
func (c *Config) GetFloat64(key string) float64 {
	return c.v.GetFloat64(key)
}

// GetBool gets a boolean value from the configuration
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetDuration parses a duration value such as "90s" or "720h"
func (c *Config) GetDuration(key string) (time.Duration, error) {
	d, err := time.ParseDuration(c.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	return d, nil
}

// GetViper returns the underlying Viper instance
func (c *Config) GetViper() *viper.Viper {
	return c.v
}
