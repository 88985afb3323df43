package indicator

import (
	"sort"

	"crypto-signal-service/internal/market"
)

// detectFVGs scans the three-candle imbalance pattern and returns the
// zones no later candle has overlapped, sorted by proximity to the
// current price. Fill probability is a heuristic from gap size against
// the 14-candle ATR: small gaps relative to volatility fill sooner.
func detectFVGs(klines []market.Kline, currentClose float64) []FVG {
	if len(klines) < 3 {
		return nil
	}

	type zone struct {
		low, high float64
		dir       Direction
		index     int
	}

	var zones []zone
	for i := 2; i < len(klines); i++ {
		// Bullish: gap between high[i-2] and low[i]
		if klines[i].Low > klines[i-2].High {
			zones = append(zones, zone{low: klines[i-2].High, high: klines[i].Low, dir: Bullish, index: i})
		}
		// Bearish: gap between low[i-2] and high[i]
		if klines[i].High < klines[i-2].Low {
			zones = append(zones, zone{low: klines[i].High, high: klines[i-2].Low, dir: Bearish, index: i})
		}
	}

	var out []FVG
	for _, z := range zones {
		filled := false
		for j := z.index + 1; j < len(klines); j++ {
			if klines[j].Low <= z.high && klines[j].High >= z.low {
				filled = true
				break
			}
		}
		if filled {
			continue
		}

		refATR := atr(klines, len(klines)-1, 14)
		prob := 0.5
		if refATR > 0 {
			prob = clamp(1-(z.high-z.low)/(2*refATR), 0.1, 0.9)
		}
		out = append(out, FVG{Low: z.low, High: z.high, Direction: z.dir, FillProbability: prob})
	}

	sort.SliceStable(out, func(a, b int) bool {
		return distanceToZone(currentClose, out[a]) < distanceToZone(currentClose, out[b])
	})
	return out
}

func distanceToZone(price float64, f FVG) float64 {
	if price >= f.Low && price <= f.High {
		return 0
	}
	if price < f.Low {
		return f.Low - price
	}
	return price - f.High
}
