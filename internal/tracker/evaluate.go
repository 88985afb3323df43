package tracker

import (
	"time"

	"crypto-signal-service/internal/market"
	"crypto-signal-service/internal/store"
)

// ==================== CANDLE EVALUATION ====================

// hit is a terminal event found inside one closed candle
type hit struct {
	exitReason store.ExitReason
	exitPrice  float64
	slHit      bool
	tpHits     []bool
}

// evaluateCandle checks one closed candle against a tracked
// recommendation. Scan order inside a candle: stop-loss first, then the
// highest take-profit the candle reached. When both trigger on the same
// bar the intrabar order is unknown; with tieBreakSLWins the worst case
// is assumed.
func evaluateCandle(rec *store.Recommendation, k market.Kline, tieBreakSLWins bool) *hit {
	if !rec.Trackable() {
		return nil
	}
	sl := *rec.StopLoss
	buy := rec.Action == store.ActionBuy

	slTouched := false
	if buy {
		slTouched = k.Low <= sl
	} else {
		slTouched = k.High >= sl
	}

	tpIdx := -1
	for i := len(rec.TakeProfit) - 1; i >= 0; i-- {
		if buy && k.High >= rec.TakeProfit[i] {
			tpIdx = i
			break
		}
		if !buy && k.Low <= rec.TakeProfit[i] {
			tpIdx = i
			break
		}
	}

	switch {
	case slTouched && (tpIdx < 0 || tieBreakSLWins):
		return &hit{
			exitReason: store.ExitSL,
			exitPrice:  sl,
			slHit:      true,
			tpHits:     make([]bool, len(rec.TakeProfit)),
		}
	case tpIdx >= 0:
		hits := make([]bool, len(rec.TakeProfit))
		for i := 0; i <= tpIdx; i++ {
			hits[i] = true
		}
		return &hit{
			exitReason: tpReason(tpIdx),
			exitPrice:  rec.TakeProfit[tpIdx],
			tpHits:     hits,
		}
	}
	return nil
}

func tpReason(idx int) store.ExitReason {
	switch idx {
	case 0:
		return store.ExitTP1
	case 1:
		return store.ExitTP2
	default:
		return store.ExitTP3
	}
}

// pnlPercent is signed relative to entry in the direction of the position
func pnlPercent(rec *store.Recommendation, exitPrice float64) float64 {
	if rec.EntryPoint == nil || *rec.EntryPoint == 0 {
		return 0
	}
	entry := *rec.EntryPoint
	if rec.Action == store.ActionSell {
		return (entry - exitPrice) / entry * 100
	}
	return (exitPrice - entry) / entry * 100
}

// drawdownPercent is the adverse excursion of one candle against the
// position, always zero or negative.
func drawdownPercent(rec *store.Recommendation, k market.Kline) float64 {
	if rec.EntryPoint == nil || *rec.EntryPoint == 0 {
		return 0
	}
	entry := *rec.EntryPoint
	var exc float64
	if rec.Action == store.ActionSell {
		exc = (entry - k.High) / entry * 100
	} else {
		exc = (k.Low - entry) / entry * 100
	}
	if exc > 0 {
		return 0
	}
	return exc
}

func buildResolution(rec *store.AnalysisRecord, h *hit, now time.Time, maxDrawdown float64) *store.Resolution {
	outcome := store.OutcomeWin
	if h.slHit {
		outcome = store.OutcomeLoss
	}
	return &store.Resolution{
		Outcome:            outcome,
		ExitReason:         h.exitReason,
		ExitPrice:          h.exitPrice,
		PnLPercent:         pnlPercent(&rec.Recommendation, h.exitPrice),
		ExitTime:           now,
		Duration:           now.Sub(rec.CreatedAt),
		MaxDrawdownPercent: maxDrawdown,
		TPHits:             h.tpHits,
		SLHit:              h.slHit,
	}
}

func buildExpiry(rec *store.AnalysisRecord, lastClose float64, now time.Time, maxDrawdown float64) *store.Resolution {
	return &store.Resolution{
		Outcome:            store.OutcomeExpired,
		ExitReason:         store.ExitTimeExpired,
		ExitPrice:          lastClose,
		PnLPercent:         pnlPercent(&rec.Recommendation, lastClose),
		ExitTime:           now,
		Duration:           now.Sub(rec.CreatedAt),
		MaxDrawdownPercent: maxDrawdown,
		TPHits:             make([]bool, len(rec.Recommendation.TakeProfit)),
		SLHit:              false,
	}
}
