package market

import (
	"sync"
	"time"
)

type cacheEntry struct {
	mu        sync.Mutex
	data      []Kline
	updatedAt time.Time
}

// klineCache caches kline series per (symbol, timeframe) with a TTL derived
// from the timeframe. Each key carries its own lock so a cache-miss stampede
// collapses to a single upstream call; cache hits skip rate-limit accounting.
type klineCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry

	hits   int64
	misses int64
}

func newKlineCache() *klineCache {
	return &klineCache{entries: make(map[string]*cacheEntry)}
}

func (c *klineCache) entry(symbol string, tf Timeframe) *cacheEntry {
	key := symbol + ":" + string(tf)
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		e = &cacheEntry{}
		c.entries[key] = e
	}
	return e
}

// getOrFetch returns the cached series when fresh, otherwise calls fetch
// while holding the per-key lock. Concurrent callers for the same key wait
// for the first fetch instead of issuing their own.
func (c *klineCache) getOrFetch(symbol string, tf Timeframe, limit int, fetch func() ([]Kline, error)) ([]Kline, error) {
	e := c.entry(symbol, tf)
	e.mu.Lock()
	defer e.mu.Unlock()

	if time.Since(e.updatedAt) < tf.CacheTTL() && len(e.data) >= limit {
		c.recordHit()
		return tail(e.data, limit), nil
	}

	c.recordMiss()
	data, err := fetch()
	if err != nil {
		return nil, err
	}
	e.data = data
	e.updatedAt = time.Now()
	return tail(data, limit), nil
}

func (c *klineCache) recordHit() {
	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
}

func (c *klineCache) recordMiss() {
	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
}

// Stats returns hit/miss counters
func (c *klineCache) Stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func tail(klines []Kline, limit int) []Kline {
	if limit > 0 && len(klines) > limit {
		return klines[len(klines)-limit:]
	}
	return klines
}
