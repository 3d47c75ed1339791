package di

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/spf13/viper"
	"github.com/stoik/threat-engine/internal/adapters/cache"
	"github.com/stoik/threat-engine/internal/adapters/sinks"
	"github.com/stoik/threat-engine/internal/application"
	"github.com/stoik/threat-engine/internal/config"
	"github.com/stoik/threat-engine/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testViper() *viper.Viper {
	v := config.NewEmptyViper()
	v.Set("database.dsn", fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	v.Set("logging.level", "error")
	v.Set("logging.format", "console")
	return v
}

func TestBuildContainer_ScoresSampleMail(t *testing.T) {
	container, err := BuildContainerWithConfig(config.NewFromViper(testViper()))
	require.NoError(t, err)

	err = container.Invoke(func(
		svc *application.ScoringService,
		source ports.FeatureSource,
		c ports.PredictionCache,
		audit ports.AuditSink,
	) error {
		assert.IsType(t, &cache.MemoryCache{}, c)
		assert.IsType(t, &sinks.LogSink{}, audit)

		ctx := context.Background()
		if err := svc.Refresh(ctx); err != nil {
			return err
		}
		fvs, err := source.Fetch(ctx, uuid.New(), time.Time{})
		if err != nil {
			return err
		}
		results, err := svc.BatchPredict(ctx, fvs)
		if err != nil {
			return err
		}
		assert.Len(t, results, len(fvs))
		return nil
	})
	require.NoError(t, err)
}

func TestBuildContainer_RedisBackends(t *testing.T) {
	mr := miniredis.RunT(t)
	v := testViper()
	v.Set("redis.address", mr.Addr())
	v.Set("cache.type", "redis")
	v.Set("sinks.type", "redis")

	container, err := BuildContainerWithConfig(config.NewFromViper(v))
	require.NoError(t, err)

	err = container.Invoke(func(c ports.PredictionCache, audit ports.AuditSink, notifier ports.Notifier) {
		assert.IsType(t, &cache.RedisCache{}, c)
		assert.IsType(t, &sinks.StreamSink{}, audit)
		assert.IsType(t, &sinks.StreamSink{}, notifier)
	})
	require.NoError(t, err)
}

func TestBuildContainer_InvalidBackends(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "unknown cache", key: "cache.type", value: "memcached"},
		{name: "unknown sink", key: "sinks.type", value: "kafka"},
		{name: "unknown driver", key: "database.driver", value: "mysql"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := testViper()
			v.Set(tt.key, tt.value)

			container, err := BuildContainerWithConfig(config.NewFromViper(v))
			require.NoError(t, err, "providers are only called on Invoke")

			err = container.Invoke(func(*application.ScoringService, *application.FeedbackService) {})
			assert.Error(t, err)
		})
	}
}
