package indicator

import (
	"crypto-signal-service/internal/market"
)

// ==================== INDICATOR ENGINE ====================

// Config controls indicator periods and the institutional feature gates.
type Config struct {
	RSIPeriod   int
	MFIPeriod   int
	StochPeriod int
	SmoothK     int
	SmoothD     int

	// Institutional indicators need a deep window and only run on the
	// slow timeframes.
	InstitutionalMinCandles int
}

// DefaultConfig is the standard swing configuration.
func DefaultConfig() Config {
	return Config{
		RSIPeriod:               14,
		MFIPeriod:               14,
		StochPeriod:             14,
		SmoothK:                 3,
		SmoothD:                 3,
		InstitutionalMinCandles: 200,
	}
}

// ScalpingConfig shortens the oscillator period for fast entries.
func ScalpingConfig() Config {
	cfg := DefaultConfig()
	cfg.RSIPeriod = 6
	cfg.MFIPeriod = 6
	return cfg
}

// stochTimeframes lists where the stochastic RSI is computed.
var stochTimeframes = map[market.Timeframe]bool{
	market.Timeframe5m: true,
	market.Timeframe1h: true,
	market.Timeframe4h: true,
	market.Timeframe1d: true,
}

// institutionalTimeframes lists where volume profile, FVGs, order blocks
// and structure are computed.
var institutionalTimeframes = map[market.Timeframe]bool{
	market.Timeframe4h: true,
	market.Timeframe1d: true,
}

// consensusTimeframes are the coarse timeframes that vote on consensus.
var consensusTimeframes = []market.Timeframe{
	market.Timeframe5m,
	market.Timeframe1h,
	market.Timeframe4h,
	market.Timeframe1d,
}

type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// ComputeSnapshot builds the indicator snapshot for one timeframe from
// closed candles, oldest first. Indicators the window cannot support are
// left nil rather than filled with placeholders.
func (e *Engine) ComputeSnapshot(tf market.Timeframe, klines []market.Kline) *Snapshot {
	if len(klines) == 0 {
		return nil
	}

	last := klines[len(klines)-1]
	snap := &Snapshot{
		Timeframe:     tf,
		LastClose:     last.Close,
		CurrentVolume: last.Volume,
	}

	volumes := make([]float64, len(klines))
	for i, k := range klines {
		volumes[i] = k.Volume
	}
	if len(volumes) >= 20 {
		snap.AvgVolume = sma(volumes, 20)
	} else {
		snap.AvgVolume = sma(volumes, len(volumes))
	}

	if rsi := rsiSeries(HLCC4(klines), e.cfg.RSIPeriod); rsi != nil {
		snap.RSI = floatPtr(rsi[len(rsi)-1])
		if len(rsi)-2 >= e.cfg.RSIPeriod {
			snap.RSIPrev = floatPtr(rsi[len(rsi)-2])
		}
	}
	if mfi := mfiSeries(klines, e.cfg.MFIPeriod); mfi != nil {
		snap.MFI = floatPtr(mfi[len(mfi)-1])
		if len(mfi)-2 >= e.cfg.MFIPeriod {
			snap.MFIPrev = floatPtr(mfi[len(mfi)-2])
		}
	}
	if stochTimeframes[tf] {
		snap.StochK, snap.StochD = stochRSI(klines, e.cfg.RSIPeriod, e.cfg.StochPeriod, e.cfg.SmoothK, e.cfg.SmoothD)
	}

	snap.Support, snap.Resistance = pivotLevels(klines, last.Close)

	if institutionalTimeframes[tf] && len(klines) >= e.cfg.InstitutionalMinCandles {
		snap.VolumeProfile = computeVolumeProfile(klines, last.Close)
		snap.FVGs = detectFVGs(klines, last.Close)
		snap.OrderBlocks = detectOrderBlocks(klines)
		snap.Structure = detectStructure(klines)
	}

	return snap
}

// ComputeBundle builds snapshots for every supplied timeframe and derives
// the oscillator consensus across the coarse timeframes. A timeframe
// votes BUY when both RSI and MFI are at or below 20, SELL when both are
// at or above 80. The majority wins; ties are NEUTRAL. Strength is the
// number of agreeing votes.
func (e *Engine) ComputeBundle(series map[market.Timeframe][]market.Kline) *Bundle {
	bundle := &Bundle{
		Snapshots: make(map[market.Timeframe]*Snapshot, len(series)),
		Consensus: ConsensusNeutral,
	}
	for tf, klines := range series {
		if snap := e.ComputeSnapshot(tf, klines); snap != nil {
			bundle.Snapshots[tf] = snap
		}
	}

	buy, sell := 0, 0
	for _, tf := range consensusTimeframes {
		snap := bundle.Snapshots[tf]
		if snap == nil || snap.RSI == nil || snap.MFI == nil {
			continue
		}
		switch {
		case *snap.RSI <= 20 && *snap.MFI <= 20:
			buy++
		case *snap.RSI >= 80 && *snap.MFI >= 80:
			sell++
		}
	}

	switch {
	case buy > sell:
		bundle.Consensus = ConsensusBuy
		bundle.Strength = buy
	case sell > buy:
		bundle.Consensus = ConsensusSell
		bundle.Strength = sell
	}
	return bundle
}
