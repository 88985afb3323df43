package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-signal-service/internal/asset"
	"crypto-signal-service/internal/indicator"
	"crypto-signal-service/internal/market"
	"crypto-signal-service/internal/store"
)

func sampleInput() Input {
	rsi, rsiPrev := 28.5, 31.2
	mfi := 22.0
	return Input{
		Symbol:    "SOLUSDT",
		Timeframe: market.Timeframe1h,
		Style:     store.StyleSwing,
		AssetType: asset.TypeLargeCap,
		Bands:     asset.BandsFor(asset.TypeLargeCap),
		Bundle: &indicator.Bundle{
			Snapshots: map[market.Timeframe]*indicator.Snapshot{
				market.Timeframe1m: {Timeframe: market.Timeframe1m, LastClose: 150.12},
				market.Timeframe5m: {Timeframe: market.Timeframe5m, LastClose: 150.3},
				market.Timeframe1h: {
					Timeframe: market.Timeframe1h, LastClose: 151.0,
					RSI: &rsi, RSIPrev: &rsiPrev, MFI: &mfi,
					CurrentVolume: 4000, AvgVolume: 1000,
				},
				market.Timeframe4h: {
					Timeframe: market.Timeframe4h, LastClose: 149.8,
					VolumeProfile: &indicator.VolumeProfile{POC: 148, VAH: 152, VAL: 145, Position: indicator.PositionNeutral},
					Support:       []float64{145.5, 140},
				},
				market.Timeframe1d: {Timeframe: market.Timeframe1d, LastClose: 148.0},
			},
			Consensus: indicator.ConsensusNeutral,
		},
		Ticker: &market.Ticker24h{
			Symbol: "SOLUSDT", LastPrice: 151.0, HighPrice: 155, LowPrice: 144,
			PriceChangePercent: 2.4, QuoteVolume: 620_000_000,
		},
		Learning: &store.LearningSummary{
			TotalCount: 4, WinCount: 3, LossCount: 1, WinRate: 0.75,
			AvgWinPnL: 3.2, AvgLossPnL: -1.8,
			WinningPattern: &store.Pattern{RSIMean: 24, MFIMean: 20, DominantVP: indicator.PositionDiscount},
		},
		Similarity:     store.SimilarityStrong,
		PumpHeuristics: true,
	}
}

func TestBuildIsByteStable(t *testing.T) {
	in := sampleInput()
	a := Build(in)
	b := Build(in)
	require.Equal(t, a, b)
	for i := 0; i < 20; i++ {
		assert.Equal(t, a, Build(sampleInput()))
	}
}

func TestBuildSectionOrderAndContent(t *testing.T) {
	out := Build(sampleInput())

	sections := []string{
		"=== ASSET PROFILE ===",
		"=== TRADING STYLE ===",
		"=== HISTORICAL PERFORMANCE",
		"=== INDICATORS BY TIMEFRAME ===",
		"=== PUMP / BOT HEURISTICS ===",
		"=== 24H MARKET ===",
		"=== MACRO CONTEXT",
		"=== RISK CONSTRAINTS ===",
		"=== OUTPUT FORMAT ===",
	}
	prev := -1
	for _, s := range sections {
		idx := strings.Index(out, s)
		require.GreaterOrEqual(t, idx, 0, "missing section %q", s)
		assert.Greater(t, idx, prev, "section %q out of order", s)
		prev = idx
	}

	assert.Contains(t, out, "LARGE_CAP_ALT")
	assert.Contains(t, out, store.SimilarityStrong)
	assert.Contains(t, out, "volume vs 20-candle average: 4x")
	assert.Contains(t, out, "reasoning_vietnamese")
	// Timeframes appear in fixed order regardless of map iteration
	assert.Less(t, strings.Index(out, "[1m]"), strings.Index(out, "[5m]"))
	assert.Less(t, strings.Index(out, "[5m]"), strings.Index(out, "[1h]"))
	assert.Less(t, strings.Index(out, "[4h]"), strings.Index(out, "[1d]"))
}

func TestLearningBlockOmittedUnderThreeRecords(t *testing.T) {
	in := sampleInput()
	in.Learning.TotalCount = 2
	out := Build(in)
	assert.NotContains(t, out, "=== HISTORICAL PERFORMANCE")
}

func TestMacroBlockByAssetType(t *testing.T) {
	in := sampleInput()
	out := Build(in)
	assert.Contains(t, out, "correlation_analysis.btc_correlation")
	assert.NotContains(t, out, "macro_context.btc_dominance")

	in.AssetType = asset.TypeBTC
	in.Bands = asset.BandsFor(asset.TypeBTC)
	out = Build(in)
	assert.Contains(t, out, "macro_context.btc_dominance")
	assert.NotContains(t, out, "correlation_analysis.btc_correlation")
}
