package indicator

import "crypto-signal-service/internal/market"

// rsiSeries computes RSI with Wilder (RMA) smoothing over the source
// series. Entries before index period are warm-up and must not be read.
// Returns nil when the series is shorter than period+1.
func rsiSeries(src []float64, period int) []float64 {
	if period <= 0 || len(src) < period+1 {
		return nil
	}

	out := make([]float64, len(src))

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		diff := src[i] - src[i-1]
		if diff > 0 {
			avgGain += diff
		} else {
			avgLoss -= diff
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	alpha := 1.0 / float64(period)
	for i := period + 1; i < len(src); i++ {
		diff := src[i] - src[i-1]
		gain, loss := 0.0, 0.0
		if diff > 0 {
			gain = diff
		} else {
			loss = -diff
		}
		avgGain = avgGain*(1-alpha) + gain*alpha
		avgLoss = avgLoss*(1-alpha) + loss*alpha
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return clamp(100-100/(1+rs), 0, 100)
}

// mfiSeries computes the Money Flow Index over typical price x volume.
// The typical price is the same HLCC/4 source used for RSI. Entries
// before index period are warm-up.
func mfiSeries(klines []market.Kline, period int) []float64 {
	if period <= 0 || len(klines) < period+1 {
		return nil
	}

	src := HLCC4(klines)
	posFlow := make([]float64, len(klines))
	negFlow := make([]float64, len(klines))
	for i := 1; i < len(klines); i++ {
		flow := src[i] * klines[i].Volume
		if src[i] > src[i-1] {
			posFlow[i] = flow
		} else if src[i] < src[i-1] {
			negFlow[i] = flow
		}
	}

	out := make([]float64, len(klines))
	for i := period; i < len(klines); i++ {
		var pos, neg float64
		for j := i - period + 1; j <= i; j++ {
			pos += posFlow[j]
			neg += negFlow[j]
		}
		if neg == 0 {
			if pos == 0 {
				out[i] = 50
			} else {
				out[i] = 100
			}
			continue
		}
		out[i] = clamp(100-100/(1+pos/neg), 0, 100)
	}
	return out
}

// stochRSI computes the smoothed stochastic of an RSI series built on the
// OHLC/4 source. Returns nil pointers when the series is too short.
func stochRSI(klines []market.Kline, rsiPeriod, stochPeriod, smoothK, smoothD int) (k, d *float64) {
	rsi := rsiSeries(OHLC4(klines), rsiPeriod)
	if rsi == nil {
		return nil, nil
	}

	// Valid RSI values start at index rsiPeriod
	valid := rsi[rsiPeriod:]
	// Need enough values for the stoch window plus both smoothing passes
	need := stochPeriod + smoothK + smoothD - 2
	if len(valid) < need {
		return nil, nil
	}

	rawK := make([]float64, 0, smoothK+smoothD-1)
	for i := len(valid) - (smoothK + smoothD - 1); i < len(valid); i++ {
		lo, hi := valid[i], valid[i]
		for j := i - stochPeriod + 1; j <= i; j++ {
			if valid[j] < lo {
				lo = valid[j]
			}
			if valid[j] > hi {
				hi = valid[j]
			}
		}
		if hi == lo {
			rawK = append(rawK, 50)
			continue
		}
		rawK = append(rawK, clamp(100*(valid[i]-lo)/(hi-lo), 0, 100))
	}

	smoothed := make([]float64, 0, smoothD)
	for i := smoothK - 1; i < len(rawK); i++ {
		smoothed = append(smoothed, sma(rawK[:i+1], smoothK))
	}

	kVal := smoothed[len(smoothed)-1]
	dVal := sma(smoothed, smoothD)
	return floatPtr(kVal), floatPtr(dVal)
}

// atr computes the average true range over the last period candles ending
// at index end (inclusive). Returns 0 when the window does not fit.
func atr(klines []market.Kline, end, period int) float64 {
	if end-period < 0 || period <= 0 {
		return 0
	}
	sum := 0.0
	for i := end - period + 1; i <= end; i++ {
		tr := klines[i].High - klines[i].Low
		if i > 0 {
			hc := abs(klines[i].High - klines[i-1].Close)
			lc := abs(klines[i].Low - klines[i-1].Close)
			if hc > tr {
				tr = hc
			}
			if lc > tr {
				tr = lc
			}
		}
		sum += tr
	}
	return sum / float64(period)
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
