package config

import (
	"errors"
	"time"

	"github.com/stoik/threat-engine/internal/application"
	"github.com/stoik/threat-engine/internal/domain/decision"
)

// DatabaseConfig selects the SQL store driver and its pool
type DatabaseConfig struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// CacheConfig selects the prediction cache backend
type CacheConfig struct {
	Type     string
	Capacity int
	TTL      time.Duration
	Prefix   string
}

// RedisConfig is shared by the Redis cache and the stream sinks
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// SinkConfig selects where audit events and notifications go
type SinkConfig struct {
	Type               string
	AuditStream        string
	NotificationStream string
	MaxLen             int64
}

// MetricsConfig configures the Prometheus recorder
type MetricsConfig struct {
	Namespace     string
	ListenAddress string
}

// LoggingConfig represents the logger configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// GetDatabase returns the database configuration
func (c *Config) GetDatabase() (DatabaseConfig, error) {
	lifetime, err := c.GetDuration("database.conn_max_lifetime")
	if err != nil {
		return DatabaseConfig{}, err
	}
	cfg := DatabaseConfig{
		Driver:          c.GetString("database.driver"),
		DSN:             c.GetString("database.dsn"),
		MaxOpenConns:    c.GetInt("database.max_open_conns"),
		MaxIdleConns:    c.GetInt("database.max_idle_conns"),
		ConnMaxLifetime: lifetime,
	}
	if cfg.DSN == "" {
		return DatabaseConfig{}, errors.New("database.dsn is required")
	}
	return cfg, nil
}

// GetCache returns the prediction cache configuration
func (c *Config) GetCache() (CacheConfig, error) {
	ttl, err := c.GetDuration("cache.ttl")
	if err != nil {
		return CacheConfig{}, err
	}
	return CacheConfig{
		Type:     c.GetString("cache.type"),
		Capacity: c.GetInt("cache.capacity"),
		TTL:      ttl,
		Prefix:   c.GetString("cache.prefix"),
	}, nil
}

// GetRedis returns the Redis connection configuration
func (c *Config) GetRedis() RedisConfig {
	return RedisConfig{
		Address:  c.GetString("redis.address"),
		Password: c.GetString("redis.password"),
		DB:       c.GetInt("redis.db"),
	}
}

// GetSinks returns the audit and notification sink configuration
func (c *Config) GetSinks() SinkConfig {
	return SinkConfig{
		Type:               c.GetString("sinks.type"),
		AuditStream:        c.GetString("sinks.audit_stream"),
		NotificationStream: c.GetString("sinks.notification_stream"),
		MaxLen:             int64(c.GetInt("sinks.max_len")),
	}
}

// GetMetrics returns the metrics configuration
func (c *Config) GetMetrics() MetricsConfig {
	return MetricsConfig{
		Namespace:     c.GetString("metrics.namespace"),
		ListenAddress: c.GetString("metrics.listen_address"),
	}
}

// GetLogging returns the logging configuration
func (c *Config) GetLogging() LoggingConfig {
	return LoggingConfig{
		Level:  c.GetString("logging.level"),
		Format: c.GetString("logging.format"),
	}
}

// GetScoring returns the scoring service tunables
func (c *Config) GetScoring() (application.ScoringConfig, error) {
	interval, err := c.GetDuration("scoring.pointer_check_interval")
	if err != nil {
		return application.ScoringConfig{}, err
	}
	return application.ScoringConfig{
		MaxBatchSize:         c.GetInt("scoring.max_batch_size"),
		RuleLimit:            c.GetInt("scoring.rule_limit"),
		ListLimit:            c.GetInt("scoring.list_limit"),
		PointerCheckInterval: interval,
	}, nil
}

// GetLearning returns the feedback learning tunables
func (c *Config) GetLearning() (application.LearningConfig, error) {
	window, err := c.GetDuration("learning.analytics_window")
	if err != nil {
		return application.LearningConfig{}, err
	}
	return application.LearningConfig{
		AlertOccurrences: c.GetInt("learning.alert_occurrences"),
		PromotionLimit:   c.GetInt("learning.promotion_limit"),
		RuleLimit:        c.GetInt("learning.rule_limit"),
		AnalyticsWindow:  window,
		TrendDays:        c.GetInt("learning.trend_days"),
		TopLimit:         c.GetInt("learning.top_limit"),
		CrossTenantLimit: c.GetInt("learning.cross_tenant_limit"),
	}, nil
}

// GetAnalytics returns the decision learner tunables
func (c *Config) GetAnalytics() (decision.Config, error) {
	windows := make(map[string]time.Duration, 4)
	for _, key := range []string{"analysis_window", "tuning_window", "drift_window", "consistency_window"} {
		d, err := c.GetDuration("analytics." + key)
		if err != nil {
			return decision.Config{}, err
		}
		windows[key] = d
	}
	return decision.Config{
		MinSamples:           c.GetInt("analytics.min_samples"),
		AnalysisWindow:       windows["analysis_window"],
		TuningWindow:         windows["tuning_window"],
		DriftWindow:          windows["drift_window"],
		DriftThreshold:       c.GetFloat64("analytics.drift_threshold"),
		SuggestionConfidence: c.GetFloat64("analytics.suggestion_confidence"),
		OverrideRateLimit:    c.GetFloat64("analytics.override_rate_limit"),
		ThresholdStep:        c.GetFloat64("analytics.threshold_step"),
		ConsistencyWindow:    windows["consistency_window"],
		ConsistencyDeviation: c.GetFloat64("analytics.consistency_deviation"),
	}, nil
}
