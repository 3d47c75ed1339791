package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/stoik/threat-engine/internal/domain"
	"github.com/stoik/threat-engine/internal/ports"
	"go.uber.org/zap"
)

const flushBatch = 500

var _ ports.PredictionCache = (*RedisCache)(nil)

// RedisCache shares predictions between processes. All keys live under a
// prefix so Flush never touches other data in the same database.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisCache creates a cache on an existing client
func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration, logger *zap.Logger) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

func (c *RedisCache) key(k string) string {
	return c.prefix + k
}

// Get treats every failure as a miss
func (c *RedisCache) Get(ctx context.Context, key string) (*domain.ScoreBreakdown, bool) {
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("prediction cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	var b domain.ScoreBreakdown
	if err := json.Unmarshal(data, &b); err != nil {
		c.logger.Warn("dropping undecodable cache entry", zap.String("key", key), zap.Error(err))
		c.client.Del(ctx, c.key(key))
		return nil, false
	}
	return &b, true
}

// Set is best effort
func (c *RedisCache) Set(ctx context.Context, key string, b *domain.ScoreBreakdown) {
	data, err := json.Marshal(b)
	if err != nil {
		c.logger.Warn("failed to encode cache entry", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, c.key(key), data, c.ttl).Err(); err != nil {
		c.logger.Warn("prediction cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// Flush deletes every key under the prefix
func (c *RedisCache) Flush(ctx context.Context) error {
	var cursor uint64
	deleted := 0
	for {
		keys, next, err := c.client.Scan(ctx, cursor, c.prefix+"*", flushBatch).Result()
		if err != nil {
			return fmt.Errorf("failed to scan prediction cache: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to flush prediction cache: %w", err)
			}
			deleted += len(keys)
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	c.logger.Debug("prediction cache flushed", zap.Int("keys", deleted))
	return nil
}
