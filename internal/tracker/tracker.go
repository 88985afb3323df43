package tracker

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"crypto-signal-service/internal/market"
	"crypto-signal-service/internal/store"
)

// ==================== PRICE TRACKER ====================

// Store is the slice of the repository the tracker needs
type Store interface {
	GetOpen(ctx context.Context) ([]*store.AnalysisRecord, error)
	GetByID(ctx context.Context, id string) (*store.AnalysisRecord, error)
	UpdateResolution(ctx context.Context, id string, res *store.Resolution) error
}

// Streams provides closed-candle subscriptions
type Streams interface {
	SubscribeClosedCandles(symbol string, tf market.Timeframe) (<-chan market.Kline, func(), error)
}

type Config struct {
	QueueSize          int
	ExpiryScanInterval time.Duration

	// TieBreakSLWins resolves a same-bar SL+TP as the stop; the worst
	// case, since intrabar order is unknown.
	TieBreakSLWins bool
}

func DefaultConfig() Config {
	return Config{
		QueueSize:          1024,
		ExpiryScanInterval: 5 * time.Minute,
		TieBreakSLWins:     true,
	}
}

type tracked struct {
	rec         *store.AnalysisRecord
	maxDrawdown float64
	lastClose   float64
}

type symbolCandle struct {
	symbol string
	kline  market.Kline
}

// Tracker resolves every pending record from closed 1-minute candles. It
// never produces user-visible output; only the store is mutated. The
// active set is owned by a single loop, so it needs no locking.
type Tracker struct {
	cfg     Config
	store   Store
	streams Streams
	log     zerolog.Logger

	enqueueCh chan *store.AnalysisRecord
	candleCh  chan symbolCandle
	stopCh    chan struct{}
	doneCh    chan struct{}

	activeCount atomic.Int64

	// loop-owned state
	active    map[string]*tracked            // analysis id -> tracked
	bySymbol  map[string]map[string]*tracked // symbol -> id -> tracked
	subCancel map[string]func()
}

func New(cfg Config, st Store, streams Streams, logger zerolog.Logger) *Tracker {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.ExpiryScanInterval <= 0 {
		cfg.ExpiryScanInterval = 5 * time.Minute
	}
	return &Tracker{
		cfg:       cfg,
		store:     st,
		streams:   streams,
		log:       logger.With().Str("component", "tracker").Logger(),
		enqueueCh: make(chan *store.AnalysisRecord, cfg.QueueSize),
		candleCh:  make(chan symbolCandle, 256),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		active:    make(map[string]*tracked),
		bySymbol:  make(map[string]map[string]*tracked),
		subCancel: make(map[string]func()),
	}
}

// Start rehydrates the active set from the store and launches the loop.
// Records persisted but never enqueued are picked up here.
func (t *Tracker) Start(ctx context.Context) error {
	open, err := t.store.GetOpen(ctx)
	if err != nil {
		return err
	}
	go t.run(open)
	t.log.Info().Int("rehydrated", len(open)).Msg("tracker started")
	return nil
}

// Enqueue hands a pending record to the tracker. Blocks when the queue
// is full; back-pressure is preferred over dropping records.
func (t *Tracker) Enqueue(ctx context.Context, rec *store.AnalysisRecord) error {
	select {
	case t.enqueueCh <- rec:
		return nil
	case <-t.stopCh:
		return errors.New("tracker stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ActiveCount reports the number of records being tracked
func (t *Tracker) ActiveCount() int64 {
	return t.activeCount.Load()
}

// Stop terminates the loop and releases every subscription
func (t *Tracker) Stop() {
	select {
	case <-t.stopCh:
	default:
		close(t.stopCh)
	}
	<-t.doneCh
}

func (t *Tracker) run(seed []*store.AnalysisRecord) {
	defer close(t.doneCh)

	for _, rec := range seed {
		t.track(rec)
	}

	ticker := time.NewTicker(t.cfg.ExpiryScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopCh:
			for symbol, cancel := range t.subCancel {
				cancel()
				delete(t.subCancel, symbol)
			}
			return
		case rec := <-t.enqueueCh:
			t.track(rec)
		case sc := <-t.candleCh:
			t.onCandle(sc.symbol, sc.kline)
		case now := <-ticker.C:
			t.expireScan(now)
		}
	}
}

func (t *Tracker) track(rec *store.AnalysisRecord) {
	if rec == nil || !rec.Recommendation.Trackable() {
		return
	}
	if _, ok := t.active[rec.ID]; ok {
		return
	}

	tr := &tracked{rec: rec}
	t.active[rec.ID] = tr
	if t.bySymbol[rec.Symbol] == nil {
		t.bySymbol[rec.Symbol] = make(map[string]*tracked)
	}
	t.bySymbol[rec.Symbol][rec.ID] = tr
	t.activeCount.Store(int64(len(t.active)))

	// Subscriptions are shared per symbol regardless of record count
	if _, ok := t.subCancel[rec.Symbol]; !ok {
		ch, cancel, err := t.streams.SubscribeClosedCandles(rec.Symbol, market.Timeframe1m)
		if err != nil {
			// Expiry scans still terminate the record eventually
			t.log.Error().Err(err).Str("symbol", rec.Symbol).Msg("candle subscription failed")
			return
		}
		t.subCancel[rec.Symbol] = cancel
		go t.pump(rec.Symbol, ch)
	}
}

// pump forwards one symbol's candles into the loop's merge channel
func (t *Tracker) pump(symbol string, ch <-chan market.Kline) {
	for k := range ch {
		select {
		case t.candleCh <- symbolCandle{symbol: symbol, kline: k}:
		case <-t.stopCh:
			return
		}
	}
}

func (t *Tracker) onCandle(symbol string, k market.Kline) {
	for id, tr := range t.bySymbol[symbol] {
		tr.lastClose = k.Close
		if dd := drawdownPercent(&tr.rec.Recommendation, k); dd < tr.maxDrawdown {
			tr.maxDrawdown = dd
		}
		h := evaluateCandle(&tr.rec.Recommendation, k, t.cfg.TieBreakSLWins)
		if h == nil {
			continue
		}
		t.resolve(id, tr, buildResolution(tr.rec, h, time.Now().UTC(), tr.maxDrawdown))
	}
}

func (t *Tracker) expireScan(now time.Time) {
	for id, tr := range t.active {
		if now.Before(tr.rec.ExpiresAt) {
			continue
		}
		lastClose := tr.lastClose
		if lastClose == 0 && tr.rec.Recommendation.EntryPoint != nil {
			lastClose = *tr.rec.Recommendation.EntryPoint
		}
		t.resolve(id, tr, buildExpiry(tr.rec, lastClose, now, tr.maxDrawdown))
	}
}

// resolve re-reads the record before writing: another process may have
// resolved it while this one was tracking.
func (t *Tracker) resolve(id string, tr *tracked, res *store.Resolution) {
	ctx := context.Background()

	current, err := t.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			t.untrack(id, tr)
			return
		}
		t.log.Error().Err(err).Str("id", id).Msg("re-read before resolve failed")
		return
	}
	if current.Resolution != nil {
		t.untrack(id, tr)
		return
	}

	err = t.store.UpdateResolution(ctx, id, res)
	switch {
	case err == nil:
		t.log.Info().Str("id", id).Str("symbol", tr.rec.Symbol).
			Str("outcome", string(res.Outcome)).Str("exit_reason", string(res.ExitReason)).
			Float64("pnl_percent", res.PnLPercent).Msg("analysis resolved")
	case errors.Is(err, store.ErrAlreadyResolved), errors.Is(err, store.ErrNotFound):
	default:
		// Keep tracking; the next candle or scan retries
		t.log.Error().Err(err).Str("id", id).Msg("resolution write failed")
		return
	}
	t.untrack(id, tr)
}

func (t *Tracker) untrack(id string, tr *tracked) {
	delete(t.active, id)
	symbol := tr.rec.Symbol
	if m := t.bySymbol[symbol]; m != nil {
		delete(m, id)
		if len(m) == 0 {
			delete(t.bySymbol, symbol)
			if cancel, ok := t.subCancel[symbol]; ok {
				cancel()
				delete(t.subCancel, symbol)
			}
		}
	}
	t.activeCount.Store(int64(len(t.active)))
}
