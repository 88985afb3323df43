package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ResponseCache memoises raw model responses keyed by prompt hash.
// Identical prompts within the TTL reuse the previous response instead
// of spending another model call.
type ResponseCache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, raw string, ttl time.Duration)
}

func promptKey(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return "llm:response:" + hex.EncodeToString(sum[:])
}

// ==================== MEMORY CACHE ====================

type memoryEntry struct {
	raw     string
	expires time.Time
}

type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry)}
}

func (c *MemoryCache) Get(_ context.Context, key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expires) {
		delete(c.entries, key)
		return "", false
	}
	return e.raw, true
}

func (c *MemoryCache) Set(_ context.Context, key, raw string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{raw: raw, expires: time.Now().Add(ttl)}
}

// ==================== REDIS CACHE ====================

// RedisCache degrades to a miss on any redis error; a cache must never
// fail an analysis.
type RedisCache struct {
	rdb *redis.Client
	log zerolog.Logger
}

func NewRedisCache(rdb *redis.Client, logger zerolog.Logger) *RedisCache {
	return &RedisCache{rdb: rdb, log: logger.With().Str("component", "llm_cache").Logger()}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool) {
	raw, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn().Err(err).Msg("redis get failed")
		}
		return "", false
	}
	return raw, true
}

func (c *RedisCache) Set(ctx context.Context, key, raw string, ttl time.Duration) {
	if err := c.rdb.Set(ctx, key, raw, ttl).Err(); err != nil {
		c.log.Warn().Err(err).Msg("redis set failed")
	}
}
