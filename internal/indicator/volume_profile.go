package indicator

import "crypto-signal-service/internal/market"

const volumeProfileBins = 24

// computeVolumeProfile buckets the window into equal price bins, sums
// volume per bin and derives POC plus the 70% value area around it.
// A zero price range (flat series) collapses every level to that price.
func computeVolumeProfile(klines []market.Kline, currentClose float64) *VolumeProfile {
	if len(klines) == 0 {
		return nil
	}

	minPrice, maxPrice := klines[0].Low, klines[0].High
	total := 0.0
	for _, k := range klines {
		if k.Low < minPrice {
			minPrice = k.Low
		}
		if k.High > maxPrice {
			maxPrice = k.High
		}
		total += k.Volume
	}

	if maxPrice == minPrice || total == 0 {
		return &VolumeProfile{
			POC:      minPrice,
			VAH:      minPrice,
			VAL:      minPrice,
			Position: PositionNeutral,
		}
	}

	binSize := (maxPrice - minPrice) / volumeProfileBins
	volumes := make([]float64, volumeProfileBins)
	src := HLCC4(klines)
	for i, k := range klines {
		bin := int((src[i] - minPrice) / binSize)
		if bin >= volumeProfileBins {
			bin = volumeProfileBins - 1
		}
		if bin < 0 {
			bin = 0
		}
		volumes[bin] += k.Volume
	}

	// POC: highest-volume bin, lowest bin wins ties for determinism
	poc := 0
	for i, v := range volumes {
		if v > volumes[poc] {
			poc = i
		}
	}

	// Expand the value area from POC until it holds 70% of total volume,
	// always absorbing the larger adjacent bin first
	lo, hi := poc, poc
	covered := volumes[poc]
	for covered < 0.70*total && (lo > 0 || hi < volumeProfileBins-1) {
		left, right := -1.0, -1.0
		if lo > 0 {
			left = volumes[lo-1]
		}
		if hi < volumeProfileBins-1 {
			right = volumes[hi+1]
		}
		if right > left {
			hi++
			covered += volumes[hi]
		} else {
			lo--
			covered += volumes[lo]
		}
	}

	binMid := func(i int) float64 { return minPrice + (float64(i)+0.5)*binSize }
	vp := &VolumeProfile{
		POC: binMid(poc),
		VAL: minPrice + float64(lo)*binSize,
		VAH: minPrice + float64(hi+1)*binSize,
	}

	switch {
	case currentClose < vp.VAL:
		vp.Position = PositionDiscount
	case currentClose > vp.VAH:
		vp.Position = PositionPremium
	default:
		vp.Position = PositionNeutral
	}
	return vp
}
