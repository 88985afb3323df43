package market

import "time"

// Timeframe represents a supported kline interval
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
)

// AnalysisTimeframes is the timeframe set computed for every analysis
var AnalysisTimeframes = []Timeframe{Timeframe1m, Timeframe5m, Timeframe1h, Timeframe4h, Timeframe1d}

// Duration returns the candle duration for the timeframe
func (t Timeframe) Duration() time.Duration {
	switch t {
	case Timeframe1m:
		return time.Minute
	case Timeframe5m:
		return 5 * time.Minute
	case Timeframe15m:
		return 15 * time.Minute
	case Timeframe1h:
		return time.Hour
	case Timeframe4h:
		return 4 * time.Hour
	case Timeframe1d:
		return 24 * time.Hour
	default:
		return 0
	}
}

// Valid reports whether the timeframe is one the gateway accepts
func (t Timeframe) Valid() bool {
	return t.Duration() > 0
}

// CacheTTL returns how long a kline series for this timeframe stays fresh.
// Fast timeframes expire quickly, the daily series can live for an hour.
func (t Timeframe) CacheTTL() time.Duration {
	switch t {
	case Timeframe1m, Timeframe5m, Timeframe15m:
		return 60 * time.Second
	case Timeframe1h, Timeframe4h:
		return 5 * time.Minute
	case Timeframe1d:
		return time.Hour
	default:
		return 60 * time.Second
	}
}

// Kline represents a closed candlestick
type Kline struct {
	OpenTime    int64   `json:"openTime"`
	Open        float64 `json:"open"`
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
	Close       float64 `json:"close"`
	Volume      float64 `json:"volume"`
	CloseTime   int64   `json:"closeTime"`
	QuoteVolume float64 `json:"quoteVolume"`
	Trades      int     `json:"trades"`
}

// Ticker24h represents 24hr ticker price change statistics
type Ticker24h struct {
	Symbol             string  `json:"symbol"`
	LastPrice          float64 `json:"lastPrice,string"`
	HighPrice          float64 `json:"highPrice,string"`
	LowPrice           float64 `json:"lowPrice,string"`
	PriceChangePercent float64 `json:"priceChangePercent,string"`
	Volume             float64 `json:"volume,string"`
	QuoteVolume        float64 `json:"quoteVolume,string"`
	OpenTime           int64   `json:"openTime"`
	CloseTime          int64   `json:"closeTime"`
}
