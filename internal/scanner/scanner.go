package scanner

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"crypto-signal-service/internal/asset"
	"crypto-signal-service/internal/indicator"
	"crypto-signal-service/internal/market"
	"crypto-signal-service/internal/store"
)

// ==================== SCHEDULED SCANNERS ====================

// Analyzer is the orchestrator entry point the scanners fire into
type Analyzer interface {
	Analyze(ctx context.Context, userID int64, symbol string, tf market.Timeframe, style store.TradingStyle) (*store.AnalysisRecord, error)
}

// MarketData is the gateway slice the scanners consume
type MarketData interface {
	GetAllTickers(ctx context.Context) ([]market.Ticker24h, error)
	GetKlines(ctx context.Context, symbol string, tf market.Timeframe, limit int) ([]market.Kline, error)
}

type Config struct {
	MarketScanInterval time.Duration
	BotScanInterval    time.Duration
	VolumeFloor        float64
	Workers            int
	CooldownTTL        time.Duration
	RSIOversold        float64
	RSIOverbought      float64
	BotScoreThreshold  float64

	// UserIDs are the subscribers scanner hits are analyzed for
	UserIDs []int64
}

func DefaultConfig() Config {
	return Config{
		MarketScanInterval: 15 * time.Minute,
		BotScanInterval:    30 * time.Minute,
		VolumeFloor:        5_000_000,
		Workers:            10,
		CooldownTTL:        time.Hour,
		RSIOversold:        20,
		RSIOverbought:      80,
		BotScoreThreshold:  70,
	}
}

// Status is the read-only view exposed by the status API
type Status struct {
	LastMarketScan time.Time `json:"last_market_scan"`
	LastBotScan    time.Time `json:"last_bot_scan"`
	SymbolsScanned int64     `json:"symbols_scanned"`
	AnalysesFired  int64     `json:"analyses_fired"`
}

type Scanner struct {
	cfg      Config
	data     MarketData
	analyzer Analyzer
	cooldown Cooldown
	log      zerolog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup

	mu             sync.Mutex
	lastMarketScan time.Time
	lastBotScan    time.Time
	symbolsScanned atomic.Int64
	analysesFired  atomic.Int64
}

func New(cfg Config, data MarketData, an Analyzer, cooldown Cooldown, logger zerolog.Logger) *Scanner {
	if cfg.Workers <= 0 {
		cfg.Workers = 10
	}
	if cooldown == nil {
		cooldown = NewMemoryCooldown()
	}
	return &Scanner{
		cfg:      cfg,
		data:     data,
		analyzer: an,
		cooldown: cooldown,
		log:      logger.With().Str("component", "scanner").Logger(),
		stopCh:   make(chan struct{}),
	}
}

// Start launches both sweep loops. Each runs once immediately, then on
// its interval.
func (s *Scanner) Start(ctx context.Context) {
	s.wg.Add(2)
	go s.loop(ctx, s.cfg.MarketScanInterval, s.marketScan)
	go s.loop(ctx, s.cfg.BotScanInterval, s.botScan)
}

func (s *Scanner) Stop() {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	s.wg.Wait()
}

func (s *Scanner) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		LastMarketScan: s.lastMarketScan,
		LastBotScan:    s.lastBotScan,
		SymbolsScanned: s.symbolsScanned.Load(),
		AnalysesFired:  s.analysesFired.Load(),
	}
}

func (s *Scanner) loop(ctx context.Context, interval time.Duration, sweep func(context.Context)) {
	defer s.wg.Done()
	sweep(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep(ctx)
		}
	}
}

// marketScan fires an analysis for every liquid quote-USD pair whose
// daily RSI reads oversold or overbought.
func (s *Scanner) marketScan(ctx context.Context) {
	symbols, err := s.liquidSymbols(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("market scan ticker fetch failed")
		return
	}
	s.mu.Lock()
	s.lastMarketScan = time.Now()
	s.mu.Unlock()

	s.forEachSymbol(ctx, symbols, func(ctx context.Context, symbol string) {
		klines, err := s.data.GetKlines(ctx, symbol, market.Timeframe1d, 60)
		if err != nil {
			s.log.Debug().Err(err).Str("symbol", symbol).Msg("daily klines unavailable, skipping")
			return
		}
		snap := indicator.NewEngine(indicator.DefaultConfig()).ComputeSnapshot(market.Timeframe1d, klines)
		if snap == nil || snap.RSI == nil {
			return
		}
		if *snap.RSI > s.cfg.RSIOversold && *snap.RSI < s.cfg.RSIOverbought {
			return
		}
		s.fire(ctx, "market", symbol, market.Timeframe1d)
	})
	s.log.Info().Int("symbols", len(symbols)).Msg("market scan complete")
}

// botScan fires an analysis for symbols whose recent 5m tape scores as
// bot-driven.
func (s *Scanner) botScan(ctx context.Context) {
	symbols, err := s.liquidSymbols(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("bot scan ticker fetch failed")
		return
	}
	s.mu.Lock()
	s.lastBotScan = time.Now()
	s.mu.Unlock()

	s.forEachSymbol(ctx, symbols, func(ctx context.Context, symbol string) {
		klines, err := s.data.GetKlines(ctx, symbol, market.Timeframe5m, 60)
		if err != nil {
			return
		}
		if botActivityScore(klines) <= s.cfg.BotScoreThreshold {
			return
		}
		s.fire(ctx, "bot", symbol, market.Timeframe5m)
	})
	s.log.Info().Int("symbols", len(symbols)).Msg("bot scan complete")
}

// liquidSymbols filters the full ticker list down to quote-USD pairs
// above the volume floor.
func (s *Scanner) liquidSymbols(ctx context.Context) ([]string, error) {
	tickers, err := s.data.GetAllTickers(ctx)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, t := range tickers {
		if t.QuoteVolume < s.cfg.VolumeFloor {
			continue
		}
		if asset.BaseAsset(t.Symbol) == t.Symbol {
			continue
		}
		out = append(out, t.Symbol)
	}
	return out, nil
}

// forEachSymbol runs fn across the worker pool; the gateway limiter
// meters the actual request rate.
func (s *Scanner) forEachSymbol(ctx context.Context, symbols []string, fn func(context.Context, string)) {
	work := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for symbol := range work {
				fn(ctx, symbol)
				s.symbolsScanned.Add(1)
			}
		}()
	}
	for _, symbol := range symbols {
		select {
		case work <- symbol:
		case <-s.stopCh:
			close(work)
			wg.Wait()
			return
		case <-ctx.Done():
			close(work)
			wg.Wait()
			return
		}
	}
	close(work)
	wg.Wait()
}

// fire runs the analysis for every subscribed user still off cooldown.
func (s *Scanner) fire(ctx context.Context, kind, symbol string, tf market.Timeframe) {
	for _, userID := range s.cfg.UserIDs {
		key := fmt.Sprintf("scan:%s:%d:%s", kind, userID, symbol)
		if !s.cooldown.TryAcquire(ctx, key, s.cfg.CooldownTTL) {
			continue
		}
		if _, err := s.analyzer.Analyze(ctx, userID, symbol, tf, store.StyleSwing); err != nil {
			s.log.Warn().Err(err).Str("symbol", symbol).Int64("user_id", userID).
				Str("scan", kind).Msg("scan analysis failed")
			continue
		}
		s.analysesFired.Add(1)
	}
}
