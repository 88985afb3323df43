package indicator

import "crypto-signal-service/internal/market"

const displacementFactor = 1.5

// detectOrderBlocks finds the last opposite-direction candle before a
// displacement move of at least 1.5x ATR(14). TestCount counts later
// candles that traded back into the zone without closing through it.
func detectOrderBlocks(klines []market.Kline) []OrderBlock {
	if len(klines) < 16 {
		return nil
	}

	var out []OrderBlock
	for i := 15; i < len(klines); i++ {
		ref := atr(klines, i-1, 14)
		if ref <= 0 {
			continue
		}
		rng := klines[i].High - klines[i].Low
		if rng < displacementFactor*ref {
			continue
		}

		displacement := klines[i].Close - klines[i].Open
		if displacement > 0 {
			// Bullish displacement: last bearish candle before it
			if j := lastOpposite(klines, i, Bearish); j >= 0 {
				ob := OrderBlock{Low: klines[j].Low, High: klines[j].High, Direction: Bullish}
				ob.TestCount = countTests(klines, i+1, ob)
				out = append(out, ob)
			}
		} else if displacement < 0 {
			if j := lastOpposite(klines, i, Bullish); j >= 0 {
				ob := OrderBlock{Low: klines[j].Low, High: klines[j].High, Direction: Bearish}
				ob.TestCount = countTests(klines, i+1, ob)
				out = append(out, ob)
			}
		}
	}
	return out
}

func lastOpposite(klines []market.Kline, before int, dir Direction) int {
	for j := before - 1; j >= 0 && j >= before-5; j-- {
		body := klines[j].Close - klines[j].Open
		if dir == Bearish && body < 0 {
			return j
		}
		if dir == Bullish && body > 0 {
			return j
		}
	}
	return -1
}

func countTests(klines []market.Kline, from int, ob OrderBlock) int {
	tests := 0
	for j := from; j < len(klines); j++ {
		if klines[j].Low > ob.High || klines[j].High < ob.Low {
			continue
		}
		// A close beyond the far edge breaks the zone rather than
		// testing it
		if ob.Direction == Bullish && klines[j].Close < ob.Low {
			continue
		}
		if ob.Direction == Bearish && klines[j].Close > ob.High {
			continue
		}
		tests++
	}
	return tests
}
