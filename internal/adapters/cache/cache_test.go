package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stoik/threat-engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func breakdown(score float64) *domain.ScoreBreakdown {
	return &domain.ScoreBreakdown{
		ModelVersion: "v1.0.0",
		RawScores:    map[domain.Category]float64{domain.CategoryURL: score},
		Score:        score,
		Confidence:   0.55,
		Indicators:   []domain.FiredIndicator{{Category: domain.CategoryURL, Name: "malicious_url", Delta: 0.6, Scaled: 0.6}},
	}
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		run  func(t *testing.T, c *MemoryCache)
	}{
		{
			name: "hit after set",
			run: func(t *testing.T, c *MemoryCache) {
				c.Set(ctx, "a", breakdown(0.4))
				got, ok := c.Get(ctx, "a")
				require.True(t, ok)
				assert.Equal(t, 0.4, got.Score)
			},
		},
		{
			name: "miss on unknown key",
			run: func(t *testing.T, c *MemoryCache) {
				_, ok := c.Get(ctx, "nope")
				assert.False(t, ok)
			},
		},
		{
			name: "expired entries are misses",
			run: func(t *testing.T, c *MemoryCache) {
				now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
				c.now = func() time.Time { return now }
				c.Set(ctx, "a", breakdown(0.4))
				now = now.Add(2 * time.Minute)
				_, ok := c.Get(ctx, "a")
				assert.False(t, ok)
				assert.Equal(t, 0, c.Len())
			},
		},
		{
			name: "flush empties the cache",
			run: func(t *testing.T, c *MemoryCache) {
				c.Set(ctx, "a", breakdown(0.4))
				c.Set(ctx, "b", breakdown(0.5))
				require.NoError(t, c.Flush(ctx))
				assert.Equal(t, 0, c.Len())
				_, ok := c.Get(ctx, "a")
				assert.False(t, ok)
			},
		},
		{
			name: "capacity is bounded",
			run: func(t *testing.T, c *MemoryCache) {
				for i := 0; i < 1000; i++ {
					c.Set(ctx, string(rune('a'+i%26))+time.Duration(i).String(), breakdown(0.1))
				}
				assert.LessOrEqual(t, c.Len(), memoryShards*4)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.run(t, NewMemoryCache(64, time.Minute))
		})
	}
}

func TestMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(memoryShards, time.Minute) // one entry per shard

	c.Set(ctx, "k", breakdown(0.1))
	// find another key in the same shard
	other := ""
	for i := 0; i < 10000; i++ {
		candidate := time.Duration(i).String()
		if candidate != "k" && c.shard(candidate) == c.shard("k") {
			other = candidate
			break
		}
	}
	require.NotEmpty(t, other)

	c.Set(ctx, other, breakdown(0.2))
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
	got, ok := c.Get(ctx, other)
	require.True(t, ok)
	assert.Equal(t, 0.2, got.Score)
}

func newRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisCache(client, "threat-engine:prediction:", time.Minute, zap.NewNop()), mr
}

func TestRedisCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedisCache(t)

	want := breakdown(0.42)
	c.Set(ctx, "fp:v1", want)

	got, ok := c.Get(ctx, "fp:v1")
	require.True(t, ok)
	assert.Equal(t, want, got)
	assert.True(t, mr.Exists("threat-engine:prediction:fp:v1"))
	assert.Equal(t, time.Minute, mr.TTL("threat-engine:prediction:fp:v1"))
}

func TestRedisCache_FlushKeepsForeignKeys(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedisCache(t)

	c.Set(ctx, "a", breakdown(0.1))
	c.Set(ctx, "b", breakdown(0.2))
	require.NoError(t, mr.Set("session:1", "keep"))

	require.NoError(t, c.Flush(ctx))

	_, ok := c.Get(ctx, "a")
	assert.False(t, ok)
	assert.True(t, mr.Exists("session:1"))
}

func TestRedisCache_FailuresAreMisses(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedisCache(t)

	require.NoError(t, mr.Set("threat-engine:prediction:bad", "{not json"))
	_, ok := c.Get(ctx, "bad")
	assert.False(t, ok)
	assert.False(t, mr.Exists("threat-engine:prediction:bad"), "undecodable entries are dropped")

	mr.SetError("LOADING")
	c.Set(ctx, "a", breakdown(0.1))
	_, ok = c.Get(ctx, "a")
	assert.False(t, ok)
	mr.SetError("")
}
