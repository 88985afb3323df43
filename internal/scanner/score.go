package scanner

import (
	"math"

	"crypto-signal-service/internal/market"
)

// ==================== BOT ACTIVITY SCORE ====================

// botActivityScore rates how bot-driven the recent 5m tape looks, on a
// 0..100 scale. Three components:
//
//	volume spike:   last volume over the 20-candle average, x10, cap 40
//	velocity:       absolute close change over 12 candles in %, x6, cap 30
//	one-sidedness:  directional candles among the last 10, x3
//
// Fewer than 21 candles scores 0; there is no average to spike against.
func botActivityScore(klines []market.Kline) float64 {
	if len(klines) < 21 {
		return 0
	}
	last := klines[len(klines)-1]

	var avgVolume float64
	for _, k := range klines[len(klines)-21 : len(klines)-1] {
		avgVolume += k.Volume
	}
	avgVolume /= 20

	score := 0.0
	if avgVolume > 0 {
		spike := last.Volume / avgVolume * 10
		if spike > 40 {
			spike = 40
		}
		score += spike
	}

	ref := klines[len(klines)-13].Close
	if ref > 0 {
		velocity := math.Abs((last.Close-ref)/ref*100) * 6
		if velocity > 30 {
			velocity = 30
		}
		score += velocity
	}

	up, down := 0, 0
	for _, k := range klines[len(klines)-10:] {
		switch {
		case k.Close > k.Open:
			up++
		case k.Close < k.Open:
			down++
		}
	}
	score += float64(max(up, down)) * 3

	if score > 100 {
		score = 100
	}
	return score
}
