package indicator

import (
	"sort"

	"crypto-signal-service/internal/market"
)

const (
	pivotLookaround = 3
	clusterPct      = 0.0025
	maxLevels       = 5
)

// pivotLevels finds swing highs and lows with a 3-bar lookaround on each
// side, clusters pivots within 0.25% of each other and splits the result
// into support (below current price) and resistance (above), nearest
// levels first.
func pivotLevels(klines []market.Kline, currentClose float64) (support, resistance []float64) {
	var pivots []float64
	for i := pivotLookaround; i < len(klines)-pivotLookaround; i++ {
		if isPivotHigh(klines, i) {
			pivots = append(pivots, klines[i].High)
		}
		if isPivotLow(klines, i) {
			pivots = append(pivots, klines[i].Low)
		}
	}
	if len(pivots) == 0 {
		return nil, nil
	}

	sort.Float64s(pivots)
	clustered := clusterPivots(pivots)

	for _, lvl := range clustered {
		if lvl < currentClose {
			support = append(support, lvl)
		} else if lvl > currentClose {
			resistance = append(resistance, lvl)
		}
	}

	// Nearest first
	sort.Sort(sort.Reverse(sort.Float64Slice(support)))
	if len(support) > maxLevels {
		support = support[:maxLevels]
	}
	if len(resistance) > maxLevels {
		resistance = resistance[:maxLevels]
	}
	return support, resistance
}

func isPivotHigh(klines []market.Kline, i int) bool {
	for j := i - pivotLookaround; j <= i+pivotLookaround; j++ {
		if j != i && klines[j].High >= klines[i].High {
			return false
		}
	}
	return true
}

func isPivotLow(klines []market.Kline, i int) bool {
	for j := i - pivotLookaround; j <= i+pivotLookaround; j++ {
		if j != i && klines[j].Low <= klines[i].Low {
			return false
		}
	}
	return true
}

// clusterPivots merges sorted pivots within clusterPct of the running
// cluster mean into single levels.
func clusterPivots(sorted []float64) []float64 {
	var out []float64
	start := 0
	sum := sorted[0]
	for i := 1; i <= len(sorted); i++ {
		mean := sum / float64(i-start)
		if i < len(sorted) && sorted[i] <= mean*(1+clusterPct) {
			sum += sorted[i]
			continue
		}
		out = append(out, mean)
		if i < len(sorted) {
			start = i
			sum = sorted[i]
		}
	}
	return out
}
