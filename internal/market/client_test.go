package market

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func klineRow(openTime int64, closeTime int64, close float64) string {
	return fmt.Sprintf(`[%d,"100","110","90","%g","1000",%d,"100000",50,"500","50000","0"]`,
		openTime, close, closeTime)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := DefaultClientConfig()
	cfg.BaseURL = srv.URL
	return NewClient(cfg, zerolog.Nop()), srv
}

func TestGetKlinesDropsFormingCandle(t *testing.T) {
	now := time.Now().UnixMilli()
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		// Two closed candles plus one still forming
		fmt.Fprintf(w, "[%s,%s,%s]",
			klineRow(now-180_000, now-120_001, 101),
			klineRow(now-120_000, now-60_001, 102),
			klineRow(now-60_000, now+59_999, 103))
	})

	klines, err := c.GetKlines(context.Background(), "BTCUSDT", Timeframe1m, 10)
	require.NoError(t, err)
	require.Len(t, klines, 2)
	assert.Equal(t, 102.0, klines[1].Close)
}

func TestGetKlinesCachesSeries(t *testing.T) {
	var calls int64
	now := time.Now().UnixMilli()
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		fmt.Fprintf(w, "[%s,%s]",
			klineRow(now-180_000, now-120_001, 101),
			klineRow(now-120_000, now-60_001, 102))
	})

	_, err := c.GetKlines(context.Background(), "BTCUSDT", Timeframe1m, 2)
	require.NoError(t, err)
	_, err = c.GetKlines(context.Background(), "BTCUSDT", Timeframe1m, 2)
	require.NoError(t, err)

	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
	hits, misses := c.CacheStats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestGetKlinesRejectsBadTimeframe(t *testing.T) {
	c := NewClient(DefaultClientConfig(), zerolog.Nop())
	_, err := c.GetKlines(context.Background(), "BTCUSDT", Timeframe("2m"), 10)
	assert.Error(t, err)
}

func TestUnknownSymbolSurfacesWithoutRetry(t *testing.T) {
	var calls int64
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"code":-1121,"msg":"Invalid symbol."}`)
	})

	_, err := c.GetKlines(context.Background(), "NOPEUSDT", Timeframe1h, 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownSymbol)
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
}

func TestRegionBlockSurfacesWithoutRetry(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnavailableForLegalReasons)
	})

	_, err := c.Get24hTicker(context.Background(), "BTCUSDT")
	assert.ErrorIs(t, err, ErrUnavailableRegion)
}

func TestKnownSymbolRefreshesOnce(t *testing.T) {
	var calls int64
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		fmt.Fprint(w, `{"symbols":[
			{"symbol":"BTCUSDT","status":"TRADING","isSpotTradingAllowed":true},
			{"symbol":"OLDUSDT","status":"BREAK","isSpotTradingAllowed":true}
		]}`)
	})

	known, err := c.KnownSymbol(context.Background(), "btcusdt")
	require.NoError(t, err)
	assert.True(t, known)

	known, err = c.KnownSymbol(context.Background(), "OLDUSDT")
	require.NoError(t, err)
	assert.False(t, known)

	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
}

func TestClassifyStatus(t *testing.T) {
	assert.ErrorIs(t, classifyStatus(451, nil), ErrUnavailableRegion)
	assert.ErrorIs(t, classifyStatus(403, nil), ErrUnavailableRegion)
	assert.ErrorIs(t, classifyStatus(429, nil), ErrRateLimited)
	assert.ErrorIs(t, classifyStatus(418, nil), ErrRateLimited)
	assert.ErrorIs(t, classifyStatus(400, []byte(`{"code":-1121,"msg":"Invalid symbol."}`)), ErrUnknownSymbol)
	assert.ErrorIs(t, classifyStatus(500, nil), ErrTransient)
	assert.ErrorIs(t, classifyStatus(400, []byte(`{"code":-1100}`)), ErrTransient)
}

func TestDropForming(t *testing.T) {
	now := int64(1_000_000)
	klines := []Kline{
		{CloseTime: now - 2},
		{CloseTime: now - 1},
		{CloseTime: now + 60_000},
	}
	assert.Len(t, dropForming(klines, now), 2)
	assert.Len(t, dropForming(klines[:2], now), 2)
	assert.Empty(t, dropForming(nil, now))
}

func TestRateLimiterBlocksOverBudget(t *testing.T) {
	r := NewRateLimiter()
	require.NoError(t, r.Wait(context.Background(), r.budget()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := r.Wait(ctx, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRateLimiterReconcilesHeaders(t *testing.T) {
	r := NewRateLimiter()
	require.NoError(t, r.Wait(context.Background(), 10))
	r.UpdateFromHeaders(500)

	current, budget, _ := r.Usage()
	assert.Equal(t, 500, current)
	assert.Equal(t, 4200, budget)
}

func TestQuotePair(t *testing.T) {
	c := NewClient(DefaultClientConfig(), zerolog.Nop())
	assert.True(t, c.QuotePair("BTCUSDT"))
	assert.False(t, c.QuotePair("BTCETH"))
}
