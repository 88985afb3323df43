package store

import (
	"math"
	"sort"

	"crypto-signal-service/internal/indicator"
	"crypto-signal-service/internal/market"
)

// ==================== LEARNING DERIVATION ====================

const similarityRadius = 8.0

// Exact recommendation strings the prompt assembler embeds
const (
	SimilarityStrong  = "STRONG SIGNAL, raise confidence ceiling to 90"
	SimilarityWarning = "WARNING, cap confidence at 40 or recommend WAIT"
	SimilarityNeutral = "NEUTRAL prior"
	SimilarityNoData  = "NO DATA"
)

// DeriveLearningSummary folds resolved records into win/loss patterns.
// Oscillator values come from the frozen 1h snapshot; the dominant
// volume-profile position from the frozen 4h snapshot. Records without
// those fields are skipped for the affected statistic.
func DeriveLearningSummary(records []*AnalysisRecord) *LearningSummary {
	summary := &LearningSummary{}

	var winners, losers []*AnalysisRecord
	for _, rec := range records {
		if rec.Resolution == nil {
			continue
		}
		switch rec.Resolution.Outcome {
		case OutcomeWin:
			winners = append(winners, rec)
			summary.AvgWinPnL += rec.Resolution.PnLPercent
		case OutcomeLoss:
			losers = append(losers, rec)
			summary.AvgLossPnL += rec.Resolution.PnLPercent
		}
	}

	summary.WinCount = len(winners)
	summary.LossCount = len(losers)
	summary.TotalCount = len(winners) + len(losers)
	if summary.TotalCount > 0 {
		summary.WinRate = float64(summary.WinCount) / float64(summary.TotalCount)
	}
	if summary.WinCount > 0 {
		summary.AvgWinPnL /= float64(summary.WinCount)
	}
	if summary.LossCount > 0 {
		summary.AvgLossPnL /= float64(summary.LossCount)
	}

	summary.WinningPattern = derivePattern(winners)
	summary.LosingPattern = derivePattern(losers)
	return summary
}

// SimilarityFor classifies the current snapshot against the derived
// patterns and returns one of the fixed recommendation strings.
func (s *LearningSummary) SimilarityFor(rsi, mfi float64, vp indicator.ValueAreaPosition) string {
	if s.TotalCount < 3 {
		return SimilarityNoData
	}
	if p := s.WinningPattern; p != nil &&
		distance(rsi, mfi, p.RSIMean, p.MFIMean) <= similarityRadius && vp == p.DominantVP {
		return SimilarityStrong
	}
	if p := s.LosingPattern; p != nil &&
		distance(rsi, mfi, p.RSIMean, p.MFIMean) <= similarityRadius && vp == p.DominantVP {
		return SimilarityWarning
	}
	return SimilarityNeutral
}

func distance(rsi, mfi, rsiC, mfiC float64) float64 {
	return math.Hypot(rsi-rsiC, mfi-mfiC)
}

func derivePattern(records []*AnalysisRecord) *Pattern {
	var rsis, mfis []float64
	vpCounts := make(map[indicator.ValueAreaPosition]int)
	for _, rec := range records {
		if rec.MarketSnapshot == nil {
			continue
		}
		if snap := rec.MarketSnapshot.Snapshots[market.Timeframe1h]; snap != nil {
			if snap.RSI != nil {
				rsis = append(rsis, *snap.RSI)
			}
			if snap.MFI != nil {
				mfis = append(mfis, *snap.MFI)
			}
		}
		if snap := rec.MarketSnapshot.Snapshots[market.Timeframe4h]; snap != nil && snap.VolumeProfile != nil {
			vpCounts[snap.VolumeProfile.Position]++
		}
	}
	if len(rsis) == 0 && len(mfis) == 0 {
		return nil
	}

	p := &Pattern{DominantVP: modePosition(vpCounts)}
	if len(rsis) > 0 {
		p.RSIMean = mean(rsis)
		p.RSIP10, p.RSIP90 = percentiles(rsis)
	}
	if len(mfis) > 0 {
		p.MFIMean = mean(mfis)
		p.MFIP10, p.MFIP90 = percentiles(mfis)
	}
	return p
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// percentiles returns the nearest-rank p10 and p90
func percentiles(values []float64) (p10, p90 float64) {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	rank := func(p float64) float64 {
		i := int(math.Ceil(p*float64(len(sorted)))) - 1
		if i < 0 {
			i = 0
		}
		if i >= len(sorted) {
			i = len(sorted) - 1
		}
		return sorted[i]
	}
	return rank(0.10), rank(0.90)
}

// modePosition returns the most frequent position; ties and empty input
// fall back to NEUTRAL.
func modePosition(counts map[indicator.ValueAreaPosition]int) indicator.ValueAreaPosition {
	best := indicator.PositionNeutral
	bestCount := 0
	tied := false
	for _, pos := range []indicator.ValueAreaPosition{
		indicator.PositionDiscount, indicator.PositionNeutral, indicator.PositionPremium,
	} {
		switch {
		case counts[pos] > bestCount:
			best, bestCount, tied = pos, counts[pos], false
		case counts[pos] == bestCount && bestCount > 0:
			tied = true
		}
	}
	if tied || bestCount == 0 {
		return indicator.PositionNeutral
	}
	return best
}
