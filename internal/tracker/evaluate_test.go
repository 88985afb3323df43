package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-signal-service/internal/market"
	"crypto-signal-service/internal/store"
)

func buyRec(entry, sl float64, tps ...float64) *store.Recommendation {
	return &store.Recommendation{
		Action:     store.ActionBuy,
		EntryPoint: &entry,
		StopLoss:   &sl,
		TakeProfit: tps,
	}
}

func sellRec(entry, sl float64, tps ...float64) *store.Recommendation {
	rec := buyRec(entry, sl, tps...)
	rec.Action = store.ActionSell
	return rec
}

func TestEvaluateBuyTP2Hit(t *testing.T) {
	rec := buyRec(43450, 42950, 44100, 44600, 45200)
	h := evaluateCandle(rec, market.Kline{Low: 43800, High: 44650}, true)
	require.NotNil(t, h)
	assert.Equal(t, store.ExitTP2, h.exitReason)
	assert.Equal(t, 44600.0, h.exitPrice)
	assert.Equal(t, []bool{true, true, false}, h.tpHits)
	assert.False(t, h.slHit)
	assert.InDelta(t, 2.645, pnlPercent(rec, h.exitPrice), 0.01)
}

func TestEvaluateBuySLWinsTieBreak(t *testing.T) {
	rec := buyRec(43450, 42950, 44100, 44600, 45200)
	h := evaluateCandle(rec, market.Kline{Low: 42900, High: 44120}, true)
	require.NotNil(t, h)
	assert.Equal(t, store.ExitSL, h.exitReason)
	assert.Equal(t, 42950.0, h.exitPrice)
	assert.Equal(t, []bool{false, false, false}, h.tpHits)
	assert.True(t, h.slHit)
	assert.InDelta(t, -1.151, pnlPercent(rec, h.exitPrice), 0.01)
}

func TestEvaluateTieBreakConfigurable(t *testing.T) {
	rec := buyRec(43450, 42950, 44100, 44600, 45200)
	h := evaluateCandle(rec, market.Kline{Low: 42900, High: 44120}, false)
	require.NotNil(t, h)
	assert.Equal(t, store.ExitTP1, h.exitReason)
	assert.Equal(t, 44100.0, h.exitPrice)
	assert.False(t, h.slHit)
}

func TestEvaluateNoTrigger(t *testing.T) {
	rec := buyRec(43450, 42950, 44100)
	assert.Nil(t, evaluateCandle(rec, market.Kline{Low: 43200, High: 43900}, true))
}

func TestEvaluateSellMirrored(t *testing.T) {
	rec := sellRec(100, 105, 97, 94, 90)

	h := evaluateCandle(rec, market.Kline{Low: 93.5, High: 101}, true)
	require.NotNil(t, h)
	assert.Equal(t, store.ExitTP2, h.exitReason)
	assert.Equal(t, 94.0, h.exitPrice)
	assert.InDelta(t, 6.0, pnlPercent(rec, h.exitPrice), 0.01)

	h = evaluateCandle(rec, market.Kline{Low: 99, High: 105.5}, true)
	require.NotNil(t, h)
	assert.True(t, h.slHit)
	assert.InDelta(t, -5.0, pnlPercent(rec, h.exitPrice), 0.01)
}

func TestEvaluateHighestTPIndexWins(t *testing.T) {
	rec := buyRec(100, 95, 102, 104, 106)
	h := evaluateCandle(rec, market.Kline{Low: 99, High: 107}, true)
	require.NotNil(t, h)
	assert.Equal(t, store.ExitTP3, h.exitReason)
	assert.Equal(t, 106.0, h.exitPrice)
	assert.Equal(t, []bool{true, true, true}, h.tpHits)
}

func TestDrawdownPercent(t *testing.T) {
	buy := buyRec(100, 90, 110)
	assert.InDelta(t, -3.0, drawdownPercent(buy, market.Kline{Low: 97, High: 101}), 1e-9)
	// Favourable candle produces no drawdown
	assert.Equal(t, 0.0, drawdownPercent(buy, market.Kline{Low: 100.5, High: 103}))

	sell := sellRec(100, 110, 90)
	assert.InDelta(t, -2.0, drawdownPercent(sell, market.Kline{Low: 99, High: 102}), 1e-9)
}

func TestBuildExpiry(t *testing.T) {
	created := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	rec := &store.AnalysisRecord{
		CreatedAt:      created,
		ExpiresAt:      created.Add(7 * 24 * time.Hour),
		Recommendation: *buyRec(100, 99.9, 110),
	}
	now := created.Add(7 * 24 * time.Hour)
	res := buildExpiry(rec, 100.11, now, -0.05)

	assert.Equal(t, store.OutcomeExpired, res.Outcome)
	assert.Equal(t, store.ExitTimeExpired, res.ExitReason)
	assert.Equal(t, 100.11, res.ExitPrice)
	assert.InDelta(t, 0.11, res.PnLPercent, 1e-9)
	assert.Equal(t, 7*24*time.Hour, res.Duration)
	assert.Equal(t, []bool{false}, res.TPHits)
	assert.False(t, res.SLHit)
}
