package indicator

import "crypto-signal-service/internal/market"

// detectStructure walks swing highs and lows and classifies closes
// through them. A close beyond the last swing in the direction of the
// prevailing trend is a break of structure; a close against the trend is
// a change of character and flips the trend.
func detectStructure(klines []market.Kline) *Structure {
	if len(klines) < 2*pivotLookaround+1 {
		return nil
	}

	type swing struct {
		price float64
		high  bool
	}
	var swings []swing
	swingAt := make(map[int]swing)
	for i := pivotLookaround; i < len(klines)-pivotLookaround; i++ {
		if isPivotHigh(klines, i) {
			s := swing{price: klines[i].High, high: true}
			swings = append(swings, s)
			swingAt[i] = s
		} else if isPivotLow(klines, i) {
			s := swing{price: klines[i].Low, high: false}
			swings = append(swings, s)
			swingAt[i] = s
		}
	}
	if len(swings) == 0 {
		return nil
	}

	st := &Structure{}
	var trend Direction
	var lastHigh, lastLow *float64

	for i := 0; i < len(klines); i++ {
		if s, ok := swingAt[i]; ok {
			if s.high {
				lastHigh = floatPtr(s.price)
			} else {
				lastLow = floatPtr(s.price)
			}
			continue
		}

		close := klines[i].Close
		if lastHigh != nil && close > *lastHigh {
			ev := &StructureEvent{Direction: Bullish, Price: *lastHigh, Index: i}
			if trend == Bearish {
				ev.Kind = ChangeOfCharacter
				st.LastCHoCH = ev
			} else {
				ev.Kind = BreakOfStructure
				st.LastBOS = ev
			}
			trend = Bullish
			lastHigh = nil
		} else if lastLow != nil && close < *lastLow {
			ev := &StructureEvent{Direction: Bearish, Price: *lastLow, Index: i}
			if trend == Bullish {
				ev.Kind = ChangeOfCharacter
				st.LastCHoCH = ev
			} else {
				ev.Kind = BreakOfStructure
				st.LastBOS = ev
			}
			trend = Bearish
			lastLow = nil
		}
	}

	if st.LastBOS == nil && st.LastCHoCH == nil {
		return nil
	}
	return st
}
