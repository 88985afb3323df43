package market

import (
	"context"
	"sync"
	"time"
)

// Endpoint weights for the Binance spot market-data API
var endpointWeights = map[string]int{
	"/api/v3/klines":       2,
	"/api/v3/ticker/24hr":  2, // 2 with symbol, 80 without
	"/api/v3/exchangeInfo": 20,
}

const tickerAllWeight = 80

// RateLimiter tracks request weight against the published public limit,
// keeping 30% headroom so other consumers of the same IP are never starved.
// Binance spot allows 6000 weight per minute; we budget 70% of that.
type RateLimiter struct {
	mu sync.Mutex

	currentWeight int
	weightResetAt time.Time
	maxWeight     int
	headroom      float64
}

// NewRateLimiter creates a limiter sized for the spot public limit
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		maxWeight:     6000,
		headroom:      0.30,
		weightResetAt: time.Now().Add(time.Minute),
	}
}

func (r *RateLimiter) budget() int {
	return int(float64(r.maxWeight) * (1 - r.headroom))
}

// Wait blocks until the given weight fits into the current window, or the
// context is cancelled. Weight is recorded on success.
func (r *RateLimiter) Wait(ctx context.Context, weight int) error {
	for {
		r.mu.Lock()
		now := time.Now()
		if now.After(r.weightResetAt) {
			r.currentWeight = 0
			r.weightResetAt = now.Add(time.Minute)
		}
		if r.currentWeight+weight <= r.budget() {
			r.currentWeight += weight
			r.mu.Unlock()
			return nil
		}
		wait := time.Until(r.weightResetAt)
		r.mu.Unlock()

		if wait < 100*time.Millisecond {
			wait = 100 * time.Millisecond
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// WaitEndpoint is Wait with the weight looked up from the endpoint table
func (r *RateLimiter) WaitEndpoint(ctx context.Context, endpoint string) error {
	weight, ok := endpointWeights[endpoint]
	if !ok {
		weight = 1
	}
	return r.Wait(ctx, weight)
}

// UpdateFromHeaders reconciles our tracked weight with the weight the
// exchange reports in X-MBX-USED-WEIGHT-1M response headers
func (r *RateLimiter) UpdateFromHeaders(usedWeight1m int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if usedWeight1m > r.currentWeight {
		r.currentWeight = usedWeight1m
	}
}

// Usage returns current weight usage for the status surface
func (r *RateLimiter) Usage() (current, budget int, resetIn time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	resetIn = time.Until(r.weightResetAt)
	if resetIn < 0 {
		resetIn = 0
	}
	return r.currentWeight, r.budget(), resetIn
}
