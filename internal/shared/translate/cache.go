package translate

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Entry cached provider answer
type Entry struct {
	Translated string    `json:"translated"`
	Provider   string    `json:"provider"`
	StoredAt   time.Time `json:"stored_at"`
}

// Cache keyed by mode + ":" + text. Implementations must be safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) (Entry, bool)
	Set(ctx context.Context, key string, e Entry)
}

type noCache struct{}

func (noCache) Get(context.Context, string) (Entry, bool) { return Entry{}, false }
func (noCache) Set(context.Context, string, Entry)        {}

// MemoryCache in-process LRU bounded by maxEntries, entries expire after ttl
type MemoryCache struct {
	lru *expirable.LRU[string, Entry]
}

func NewMemoryCache(maxEntries int, ttl time.Duration) *MemoryCache {
	return &MemoryCache{lru: expirable.NewLRU[string, Entry](maxEntries, nil, ttl)}
}

func (c *MemoryCache) Get(_ context.Context, key string) (Entry, bool) {
	return c.lru.Get(key)
}

func (c *MemoryCache) Set(_ context.Context, key string, e Entry) {
	c.lru.Add(key, e)
}

// Len number of live entries
func (c *MemoryCache) Len() int { return c.lru.Len() }

// RedisCache shared cache under "translate:<mode>:<text>"
type RedisCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{rdb: rdb, ttl: ttl, logger: logger}
}

func (c *RedisCache) Get(ctx context.Context, key string) (Entry, bool) {
	raw, err := c.rdb.Get(ctx, "translate:"+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("translation cache read failed", zap.Error(err))
		}
		return Entry{}, false
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, false
	}
	return e, true
}

func (c *RedisCache) Set(ctx context.Context, key string, e Entry) {
	raw, _ := json.Marshal(e)
	if err := c.rdb.Set(ctx, "translate:"+key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("translation cache write failed", zap.Error(err))
	}
}

// Tiered reads the local cache first and back-fills it from the shared one
type Tiered struct {
	local  Cache
	shared Cache
}

func NewTiered(local, shared Cache) *Tiered {
	return &Tiered{local: local, shared: shared}
}

func (t *Tiered) Get(ctx context.Context, key string) (Entry, bool) {
	if e, ok := t.local.Get(ctx, key); ok {
		return e, true
	}
	e, ok := t.shared.Get(ctx, key)
	if ok {
		t.local.Set(ctx, key, e)
	}
	return e, ok
}

func (t *Tiered) Set(ctx context.Context, key string, e Entry) {
	t.local.Set(ctx, key, e)
	t.shared.Set(ctx, key, e)
}

// NewCache ttl <= 0 disables caching; rdb may be nil
func NewCache(ttl time.Duration, maxEntries int, rdb *redis.Client, logger *zap.Logger) Cache {
	if ttl <= 0 {
		return noCache{}
	}
	local := NewMemoryCache(maxEntries, ttl)
	if rdb == nil {
		return local
	}
	return NewTiered(local, NewRedisCache(rdb, ttl, logger))
}
