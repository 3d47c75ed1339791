package di

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/stoik/threat-engine/internal/adapters/cache"
	"github.com/stoik/threat-engine/internal/adapters/metrics"
	"github.com/stoik/threat-engine/internal/adapters/samples"
	"github.com/stoik/threat-engine/internal/adapters/sinks"
	"github.com/stoik/threat-engine/internal/adapters/storage"
	"github.com/stoik/threat-engine/internal/application"
	"github.com/stoik/threat-engine/internal/config"
	"github.com/stoik/threat-engine/internal/domain/explain"
	"github.com/stoik/threat-engine/internal/domain/scoring"
	"github.com/stoik/threat-engine/internal/logging"
	"github.com/stoik/threat-engine/internal/ports"
)

// sinkSet carries the two sink roles, which may share one backend
type sinkSet struct {
	dig.Out

	Audit    ports.AuditSink
	Notifier ports.Notifier
}

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	return build(config.New)
}

// BuildContainerWithConfig uses an already loaded configuration
func BuildContainerWithConfig(cfg *config.Config) (*dig.Container, error) {
	return build(func() *config.Config { return cfg })
}

func build(configProvider any) (*dig.Container, error) {
	container := dig.New()

	providers := []any{
		configProvider,
		logging.InitLogger,

		provideStore,
		func(s *storage.SQLStore) ports.Store { return s },
		provideRedis,
		provideCache,
		provideSinks,
		provideMetrics,
		func(r *metrics.PrometheusRecorder) ports.MetricsRecorder { return r },

		scoring.NewEngine,
		explain.New,

		(*config.Config).GetScoring,
		(*config.Config).GetLearning,
		(*config.Config).GetAnalytics,

		application.NewScoringService,
		application.NewFeedbackService,
		application.NewDecisionService,
		application.NewExplanationService,

		func(logger *zap.Logger) ports.FeatureSource { return samples.NewSampleSource(logger) },
	}
	for _, p := range providers {
		if err := container.Provide(p); err != nil {
			return nil, err
		}
	}
	return container, nil
}

// provideStore opens the configured database and creates missing tables
func provideStore(cfg *config.Config, logger *zap.Logger) (*storage.SQLStore, error) {
	dbc, err := cfg.GetDatabase()
	if err != nil {
		return nil, err
	}
	store, err := storage.NewSQLStore(dbc.Driver, dbc.DSN, storage.PoolConfig{
		MaxOpenConns:    dbc.MaxOpenConns,
		MaxIdleConns:    dbc.MaxIdleConns,
		ConnMaxLifetime: dbc.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	if err := store.InitSchema(context.Background()); err != nil {
		store.Close()
		return nil, err
	}
	logger.Info("Connected to database", zap.String("driver", dbc.Driver))
	return store, nil
}

// provideRedis builds a client. Connections are opened on first use, so a
// memory-only deployment never dials.
func provideRedis(cfg *config.Config) *redis.Client {
	rc := cfg.GetRedis()
	return redis.NewClient(&redis.Options{
		Addr:     rc.Address,
		Password: rc.Password,
		DB:       rc.DB,
	})
}

func provideCache(cfg *config.Config, client *redis.Client, logger *zap.Logger) (ports.PredictionCache, error) {
	cc, err := cfg.GetCache()
	if err != nil {
		return nil, err
	}
	switch cc.Type {
	case "memory":
		return cache.NewMemoryCache(cc.Capacity, cc.TTL), nil
	case "redis":
		return cache.NewRedisCache(client, cc.Prefix, cc.TTL, logger), nil
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cc.Type)
	}
}

func provideSinks(cfg *config.Config, client *redis.Client, logger *zap.Logger) (sinkSet, error) {
	sc := cfg.GetSinks()
	switch sc.Type {
	case "log":
		s := sinks.NewLogSink(logger)
		return sinkSet{Audit: s, Notifier: s}, nil
	case "redis":
		return sinkSet{
			Audit:    sinks.NewStreamSink(client, sc.AuditStream, sc.MaxLen, logger),
			Notifier: sinks.NewStreamSink(client, sc.NotificationStream, sc.MaxLen, logger),
		}, nil
	default:
		return sinkSet{}, fmt.Errorf("unsupported sink type: %s", sc.Type)
	}
}

func provideMetrics(cfg *config.Config) *metrics.PrometheusRecorder {
	return metrics.NewPrometheusRecorder(cfg.GetMetrics().Namespace)
}
