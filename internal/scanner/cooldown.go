package scanner

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ==================== SCAN COOLDOWN ====================

// Cooldown suppresses repeat hits for a key inside a TTL. TryAcquire
// returns true exactly once per key per window.
type Cooldown interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) bool
}

// MemoryCooldown is the single-instance cooldown and the fallback when
// redis is unavailable.
type MemoryCooldown struct {
	mu    sync.Mutex
	until map[string]time.Time
}

func NewMemoryCooldown() *MemoryCooldown {
	return &MemoryCooldown{until: make(map[string]time.Time)}
}

func (c *MemoryCooldown) TryAcquire(_ context.Context, key string, ttl time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	if until, ok := c.until[key]; ok && now.Before(until) {
		return false
	}
	for k, u := range c.until {
		if now.After(u) {
			delete(c.until, k)
		}
	}
	c.until[key] = now.Add(ttl)
	return true
}

// RedisCooldown shares cooldown keys across instances via SET NX with
// expiry. A redis failure degrades to the in-memory cooldown so a sweep
// is never blocked on the cache being down.
type RedisCooldown struct {
	rdb      *redis.Client
	fallback *MemoryCooldown
	log      zerolog.Logger
}

func NewRedisCooldown(rdb *redis.Client, logger zerolog.Logger) *RedisCooldown {
	return &RedisCooldown{
		rdb:      rdb,
		fallback: NewMemoryCooldown(),
		log:      logger.With().Str("component", "scanner").Logger(),
	}
}

func (c *RedisCooldown) TryAcquire(ctx context.Context, key string, ttl time.Duration) bool {
	ok, err := c.rdb.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cooldown redis unavailable, using memory fallback")
		return c.fallback.TryAcquire(ctx, key, ttl)
	}
	return ok
}
