package cache

import (
	"container/list"
	"context"
	"hash/maphash"
	"sync"
	"time"

	"github.com/stoik/threat-engine/internal/domain"
	"github.com/stoik/threat-engine/internal/ports"
)

const memoryShards = 16 // power of two

var _ ports.PredictionCache = (*MemoryCache)(nil)

type memoryEntry struct {
	key       string
	value     *domain.ScoreBreakdown
	expiresAt time.Time
}

type memoryShard struct {
	sync.Mutex
	items    map[string]*list.Element
	lru      *list.List
	capacity int
}

// MemoryCache is a sharded in-process LRU with per-entry TTL.
// Stored breakdowns are shared: callers must not mutate them.
type MemoryCache struct {
	shards [memoryShards]*memoryShard
	seed   maphash.Seed
	ttl    time.Duration
	now    func() time.Time
}

// NewMemoryCache creates a cache holding about capacity entries for ttl
func NewMemoryCache(capacity int, ttl time.Duration) *MemoryCache {
	c := &MemoryCache{seed: maphash.MakeSeed(), ttl: ttl, now: time.Now}
	shardCap := max(capacity/memoryShards, 1)
	for i := range c.shards {
		c.shards[i] = &memoryShard{
			items:    make(map[string]*list.Element),
			lru:      list.New(),
			capacity: shardCap,
		}
	}
	return c
}

func (c *MemoryCache) shard(key string) *memoryShard {
	return c.shards[maphash.String(c.seed, key)&(memoryShards-1)]
}

// Get returns a live entry and marks it recently used
func (c *MemoryCache) Get(_ context.Context, key string) (*domain.ScoreBreakdown, bool) {
	s := c.shard(key)
	s.Lock()
	defer s.Unlock()

	el, ok := s.items[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*memoryEntry)
	if c.ttl > 0 && c.now().After(entry.expiresAt) {
		s.lru.Remove(el)
		delete(s.items, key)
		return nil, false
	}
	s.lru.MoveToFront(el)
	return entry.value, true
}

// Set stores an entry, evicting the least recently used one when full
func (c *MemoryCache) Set(_ context.Context, key string, b *domain.ScoreBreakdown) {
	s := c.shard(key)
	s.Lock()
	defer s.Unlock()

	expiresAt := c.now().Add(c.ttl)
	if el, ok := s.items[key]; ok {
		entry := el.Value.(*memoryEntry)
		entry.value, entry.expiresAt = b, expiresAt
		s.lru.MoveToFront(el)
		return
	}

	if s.lru.Len() >= s.capacity {
		if oldest := s.lru.Back(); oldest != nil {
			s.lru.Remove(oldest)
			delete(s.items, oldest.Value.(*memoryEntry).key)
		}
	}
	s.items[key] = s.lru.PushFront(&memoryEntry{key: key, value: b, expiresAt: expiresAt})
}

// Flush empties every shard
func (c *MemoryCache) Flush(_ context.Context) error {
	for _, s := range c.shards {
		s.Lock()
		s.items = make(map[string]*list.Element)
		s.lru.Init()
		s.Unlock()
	}
	return nil
}

// Len is the number of stored entries, expired ones included
func (c *MemoryCache) Len() int {
	n := 0
	for _, s := range c.shards {
		s.Lock()
		n += s.lru.Len()
		s.Unlock()
	}
	return n
}
