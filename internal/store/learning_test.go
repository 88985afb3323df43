package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-signal-service/internal/indicator"
	"crypto-signal-service/internal/market"
)

func resolvedRecord(outcome Outcome, pnl, rsi1h, mfi1h float64, vp4h indicator.ValueAreaPosition) *AnalysisRecord {
	return &AnalysisRecord{
		Resolution: &Resolution{Outcome: outcome, PnLPercent: pnl},
		MarketSnapshot: &indicator.Bundle{
			Snapshots: map[market.Timeframe]*indicator.Snapshot{
				market.Timeframe1h: {RSI: &rsi1h, MFI: &mfi1h},
				market.Timeframe4h: {VolumeProfile: &indicator.VolumeProfile{Position: vp4h}},
			},
		},
	}
}

func TestDeriveLearningSummaryCounts(t *testing.T) {
	records := []*AnalysisRecord{
		resolvedRecord(OutcomeWin, 3.0, 18, 15, indicator.PositionDiscount),
		resolvedRecord(OutcomeWin, 5.0, 22, 19, indicator.PositionDiscount),
		resolvedRecord(OutcomeLoss, -2.0, 75, 80, indicator.PositionPremium),
		// Unresolved and expired records do not count
		{Status: StatusPendingTracking},
		{Resolution: &Resolution{Outcome: OutcomeExpired}},
	}
	s := DeriveLearningSummary(records)
	assert.Equal(t, 3, s.TotalCount)
	assert.Equal(t, 2, s.WinCount)
	assert.Equal(t, 1, s.LossCount)
	assert.InDelta(t, 2.0/3.0, s.WinRate, 1e-9)
	assert.InDelta(t, 4.0, s.AvgWinPnL, 1e-9)
	assert.InDelta(t, -2.0, s.AvgLossPnL, 1e-9)

	require.NotNil(t, s.WinningPattern)
	assert.InDelta(t, 20, s.WinningPattern.RSIMean, 1e-9)
	assert.Equal(t, indicator.PositionDiscount, s.WinningPattern.DominantVP)
	require.NotNil(t, s.LosingPattern)
	assert.Equal(t, indicator.PositionPremium, s.LosingPattern.DominantVP)
}

func TestSimilarityStrongSignal(t *testing.T) {
	records := []*AnalysisRecord{
		resolvedRecord(OutcomeWin, 3.0, 18, 15, indicator.PositionDiscount),
		resolvedRecord(OutcomeWin, 5.0, 22, 19, indicator.PositionDiscount),
		resolvedRecord(OutcomeLoss, -2.0, 75, 80, indicator.PositionPremium),
	}
	s := DeriveLearningSummary(records)

	// Close to the winning centroid (20, 17) in the matching VP zone
	assert.Equal(t, SimilarityStrong, s.SimilarityFor(21, 18, indicator.PositionDiscount))
	// Same point, wrong VP zone
	assert.Equal(t, SimilarityNeutral, s.SimilarityFor(21, 18, indicator.PositionNeutral))
	// Close to the losing centroid in its zone
	assert.Equal(t, SimilarityWarning, s.SimilarityFor(74, 79, indicator.PositionPremium))
	// Far from both
	assert.Equal(t, SimilarityNeutral, s.SimilarityFor(50, 50, indicator.PositionNeutral))
}

func TestSimilarityNoDataUnderThree(t *testing.T) {
	records := []*AnalysisRecord{
		resolvedRecord(OutcomeWin, 3.0, 18, 15, indicator.PositionDiscount),
		resolvedRecord(OutcomeLoss, -2.0, 75, 80, indicator.PositionPremium),
	}
	s := DeriveLearningSummary(records)
	assert.Equal(t, SimilarityNoData, s.SimilarityFor(20, 17, indicator.PositionDiscount))
}

func TestDeriveLearningSummaryEmpty(t *testing.T) {
	s := DeriveLearningSummary(nil)
	assert.Equal(t, 0, s.TotalCount)
	assert.Nil(t, s.WinningPattern)
	assert.Nil(t, s.LosingPattern)
	assert.Equal(t, SimilarityNoData, s.SimilarityFor(50, 50, indicator.PositionNeutral))
}

func TestPercentiles(t *testing.T) {
	values := []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}
	p10, p90 := percentiles(values)
	assert.Equal(t, 10.0, p10)
	assert.Equal(t, 90.0, p90)
}

func TestTrackable(t *testing.T) {
	entry, sl := 100.0, 95.0
	r := &Recommendation{Action: ActionBuy, EntryPoint: &entry, StopLoss: &sl, TakeProfit: []float64{105}}
	assert.True(t, r.Trackable())

	assert.False(t, (&Recommendation{Action: ActionWait}).Trackable())
	assert.False(t, (&Recommendation{Action: ActionBuy, EntryPoint: &entry, StopLoss: &sl}).Trackable())
	assert.False(t, (&Recommendation{Action: ActionBuy, EntryPoint: &entry, TakeProfit: []float64{105}}).Trackable())
}
