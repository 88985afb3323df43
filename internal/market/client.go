package market

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ClientConfig holds gateway configuration
type ClientConfig struct {
	BaseURL       string        `json:"base_url"`
	WSBaseURL     string        `json:"ws_base_url"`
	Timeout       time.Duration `json:"timeout"`
	MaxRetries    int           `json:"max_retries"`
	QuoteCurrency string        `json:"quote_currency"`
}

// DefaultClientConfig returns the public spot endpoints
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:       "https://api.binance.com",
		WSBaseURL:     "wss://stream.binance.com:9443",
		Timeout:       10 * time.Second,
		MaxRetries:    3,
		QuoteCurrency: "USDT",
	}
}

// Client is the process-wide REST client for public spot market data.
// No signed endpoint is ever called.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
	limiter    *RateLimiter
	cache      *klineCache
	log        zerolog.Logger

	symbolsMu        sync.RWMutex
	knownSymbols     map[string]bool
	symbolsRefreshed time.Time
}

// NewClient creates the gateway REST client
func NewClient(cfg ClientConfig, logger zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg = DefaultClientConfig()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    NewRateLimiter(),
		cache:      newKlineCache(),
		log:        logger.With().Str("component", "market").Logger(),
	}
}

// Limiter exposes the shared rate limiter so scanners can pace themselves
func (c *Client) Limiter() *RateLimiter {
	return c.limiter
}

// CacheStats returns kline cache hit/miss counters
func (c *Client) CacheStats() (hits, misses int64) {
	return c.cache.Stats()
}

// GetKlines returns the last limit closed candles for (symbol, timeframe).
// The currently-forming candle is never included. Results are cached per
// (symbol, timeframe); cache hits skip rate-limit accounting.
func (c *Client) GetKlines(ctx context.Context, symbol string, tf Timeframe, limit int) ([]Kline, error) {
	if !tf.Valid() {
		return nil, dataErr(ErrTransient, "unsupported timeframe %q", tf)
	}
	return c.cache.getOrFetch(symbol, tf, limit, func() ([]Kline, error) {
		// Fetch one extra so we can drop the forming candle
		raw, err := c.fetchKlines(ctx, symbol, tf, limit+1, 0, 0)
		if err != nil {
			return nil, err
		}
		return dropForming(raw, time.Now().UnixMilli()), nil
	})
}

// GetKlinesRange returns closed candles between startTime and endTime
// (inclusive open-time bounds, milliseconds). Used by the tracker to
// backfill candles missed across a websocket outage. Never cached.
func (c *Client) GetKlinesRange(ctx context.Context, symbol string, tf Timeframe, startTime, endTime int64) ([]Kline, error) {
	raw, err := c.fetchKlines(ctx, symbol, tf, 1000, startTime, endTime)
	if err != nil {
		return nil, err
	}
	return dropForming(raw, time.Now().UnixMilli()), nil
}

// Get24hTicker returns 24h rolling statistics for a symbol
func (c *Client) Get24hTicker(ctx context.Context, symbol string) (*Ticker24h, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := c.get(ctx, "/api/v3/ticker/24hr", params, endpointWeights["/api/v3/ticker/24hr"])
	if err != nil {
		return nil, err
	}

	var ticker Ticker24h
	if err := json.Unmarshal(body, &ticker); err != nil {
		return nil, dataErr(ErrTransient, "parsing ticker: %v", err)
	}
	return &ticker, nil
}

// GetAllTickers returns 24h statistics for every symbol. Heavy call;
// used only by the scanners.
func (c *Client) GetAllTickers(ctx context.Context) ([]Ticker24h, error) {
	body, err := c.get(ctx, "/api/v3/ticker/24hr", nil, tickerAllWeight)
	if err != nil {
		return nil, err
	}

	var tickers []Ticker24h
	if err := json.Unmarshal(body, &tickers); err != nil {
		return nil, dataErr(ErrTransient, "parsing tickers: %v", err)
	}
	return tickers, nil
}

// KnownSymbol reports whether the exchange lists the symbol for spot
// trading. The symbol set is refreshed from exchangeInfo at most hourly.
func (c *Client) KnownSymbol(ctx context.Context, symbol string) (bool, error) {
	c.symbolsMu.RLock()
	fresh := time.Since(c.symbolsRefreshed) < time.Hour && c.knownSymbols != nil
	if fresh {
		known := c.knownSymbols[strings.ToUpper(symbol)]
		c.symbolsMu.RUnlock()
		return known, nil
	}
	c.symbolsMu.RUnlock()

	if err := c.refreshExchangeInfo(ctx); err != nil {
		return false, err
	}

	c.symbolsMu.RLock()
	defer c.symbolsMu.RUnlock()
	return c.knownSymbols[strings.ToUpper(symbol)], nil
}

func (c *Client) refreshExchangeInfo(ctx context.Context) error {
	body, err := c.get(ctx, "/api/v3/exchangeInfo", nil, endpointWeights["/api/v3/exchangeInfo"])
	if err != nil {
		return err
	}

	var info struct {
		Symbols []struct {
			Symbol               string `json:"symbol"`
			Status               string `json:"status"`
			IsSpotTradingAllowed bool   `json:"isSpotTradingAllowed"`
		} `json:"symbols"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return dataErr(ErrTransient, "parsing exchange info: %v", err)
	}

	symbols := make(map[string]bool, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Status == "TRADING" && s.IsSpotTradingAllowed {
			symbols[s.Symbol] = true
		}
	}

	c.symbolsMu.Lock()
	c.knownSymbols = symbols
	c.symbolsRefreshed = time.Now()
	c.symbolsMu.Unlock()

	c.log.Debug().Int("symbols", len(symbols)).Msg("exchange info refreshed")
	return nil
}

// ==================== INTERNALS ====================

func (c *Client) fetchKlines(ctx context.Context, symbol string, tf Timeframe, limit int, startTime, endTime int64) ([]Kline, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", string(tf))
	params.Set("limit", strconv.Itoa(limit))
	if startTime > 0 {
		params.Set("startTime", strconv.FormatInt(startTime, 10))
	}
	if endTime > 0 {
		params.Set("endTime", strconv.FormatInt(endTime, 10))
	}

	body, err := c.get(ctx, "/api/v3/klines", params, endpointWeights["/api/v3/klines"])
	if err != nil {
		return nil, err
	}

	var rawKlines [][]interface{}
	if err := json.Unmarshal(body, &rawKlines); err != nil {
		return nil, dataErr(ErrTransient, "parsing klines: %v", err)
	}

	klines := make([]Kline, len(rawKlines))
	for i, raw := range rawKlines {
		if len(raw) < 9 {
			return nil, dataErr(ErrTransient, "short kline row (%d fields)", len(raw))
		}
		klines[i] = Kline{
			OpenTime:    int64(asFloat(raw[0])),
			Open:        asFloat(raw[1]),
			High:        asFloat(raw[2]),
			Low:         asFloat(raw[3]),
			Close:       asFloat(raw[4]),
			Volume:      asFloat(raw[5]),
			CloseTime:   int64(asFloat(raw[6])),
			QuoteVolume: asFloat(raw[7]),
			Trades:      int(asFloat(raw[8])),
		}
	}
	return klines, nil
}

// get performs a rate-limited GET with retries on transient failures.
// UnavailableRegion and UnknownSymbol surface immediately.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values, weight int) ([]byte, error) {
	var lastErr error
	backoff := time.Second

	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		if err := c.limiter.Wait(ctx, weight); err != nil {
			return nil, err
		}

		body, err := c.doGet(ctx, endpoint, params)
		if err == nil {
			return body, nil
		}
		if !retriable(err) {
			return nil, err
		}
		lastErr = err
		c.log.Warn().Err(err).Str("endpoint", endpoint).Int("attempt", attempt+1).Msg("request failed, retrying")
	}
	return nil, lastErr
}

func (c *Client) doGet(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	reqURL := c.cfg.BaseURL + endpoint
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, dataErr(ErrTransient, "building request: %v", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, dataErr(ErrTransient, "%v", err)
	}
	defer resp.Body.Close()

	if used := resp.Header.Get("X-Mbx-Used-Weight-1m"); used != "" {
		if w, err := strconv.Atoi(used); err == nil {
			c.limiter.UpdateFromHeaders(w)
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, dataErr(ErrTransient, "reading response: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode, body)
	}
	return body, nil
}

// classifyStatus maps an upstream error response to a gateway error kind
func classifyStatus(status int, body []byte) error {
	var apiErr struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	_ = json.Unmarshal(body, &apiErr)

	switch {
	case status == http.StatusUnavailableForLegalReasons, status == http.StatusForbidden:
		return dataErr(ErrUnavailableRegion, "HTTP %d: %s", status, apiErr.Msg)
	case status == http.StatusTooManyRequests, status == 418:
		return dataErr(ErrRateLimited, "HTTP %d: %s", status, apiErr.Msg)
	case status == http.StatusBadRequest && apiErr.Code == -1121:
		return dataErr(ErrUnknownSymbol, "%s", apiErr.Msg)
	case status >= 500:
		return dataErr(ErrTransient, "HTTP %d: %s", status, apiErr.Msg)
	default:
		return dataErr(ErrTransient, "HTTP %d: %s", status, string(body))
	}
}

func retriable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrRateLimited)
}

// dropForming removes the trailing candle when it has not closed yet
func dropForming(klines []Kline, nowMs int64) []Kline {
	for len(klines) > 0 && klines[len(klines)-1].CloseTime >= nowMs {
		klines = klines[:len(klines)-1]
	}
	return klines
}

func asFloat(val interface{}) float64 {
	switch v := val.(type) {
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	case float64:
		return v
	default:
		return 0
	}
}

// QuotePair reports whether the symbol trades against the configured
// quote currency. Used by scanner filters.
func (c *Client) QuotePair(symbol string) bool {
	return strings.HasSuffix(symbol, c.cfg.QuoteCurrency)
}
