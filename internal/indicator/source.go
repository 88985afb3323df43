package indicator

import "crypto-signal-service/internal/market"

// HLCC4 returns the (high + low + 2*close)/4 source series used for RSI
// and MFI.
func HLCC4(klines []market.Kline) []float64 {
	src := make([]float64, len(klines))
	for i, k := range klines {
		src[i] = (k.High + k.Low + 2*k.Close) / 4
	}
	return src
}

// OHLC4 returns the (open + high + low + close)/4 source series used for
// the stochastic RSI.
func OHLC4(klines []market.Kline) []float64 {
	src := make([]float64, len(klines))
	for i, k := range klines {
		src[i] = (k.Open + k.High + k.Low + k.Close) / 4
	}
	return src
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func sma(data []float64, period int) float64 {
	if len(data) < period || period <= 0 {
		return 0
	}
	sum := 0.0
	for i := len(data) - period; i < len(data); i++ {
		sum += data[i]
	}
	return sum / float64(period)
}

func floatPtr(v float64) *float64 {
	return &v
}
