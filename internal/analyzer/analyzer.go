package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"crypto-signal-service/internal/asset"
	"crypto-signal-service/internal/indicator"
	"crypto-signal-service/internal/llm"
	"crypto-signal-service/internal/market"
	"crypto-signal-service/internal/prompt"
	"crypto-signal-service/internal/store"
)

// ==================== ANALYSIS ORCHESTRATOR ====================

// Stage names the step an analysis failed in
type Stage string

const (
	StageGateway    Stage = "gateway"
	StageIndicators Stage = "indicators"
	StageLearning   Stage = "learning"
	StageLLM        Stage = "llm"
	StageStore      Stage = "store"
)

// AnalysisError carries the failing stage plus the cause. No partial
// record is persisted when one is returned.
type AnalysisError struct {
	Stage Stage
	Err   error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis failed at %s: %v", e.Stage, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

func failed(stage Stage, err error) *AnalysisError {
	return &AnalysisError{Stage: stage, Err: err}
}

// MarketData is the gateway slice the orchestrator consumes
type MarketData interface {
	GetKlines(ctx context.Context, symbol string, tf market.Timeframe, limit int) ([]market.Kline, error)
	Get24hTicker(ctx context.Context, symbol string) (*market.Ticker24h, error)
	KnownSymbol(ctx context.Context, symbol string) (bool, error)
}

// Model produces a validated recommendation from a prompt
type Model interface {
	Analyze(ctx context.Context, userID int64, text string, expected asset.Type, style store.TradingStyle) (*store.Recommendation, error)
}

// Repo is the store slice the orchestrator consumes
type Repo interface {
	Save(ctx context.Context, rec *store.AnalysisRecord) error
	History(ctx context.Context, userID int64, symbol string, window time.Duration) ([]*store.AnalysisRecord, error)
	LearningSummary(ctx context.Context, userID int64, symbol string, window time.Duration) (*store.LearningSummary, error)
}

// Enqueuer hands eligible records to the tracker
type Enqueuer interface {
	Enqueue(ctx context.Context, rec *store.AnalysisRecord) error
}

type Config struct {
	Retention      time.Duration
	LearningWindow time.Duration
	PumpHeuristics bool
}

func DefaultConfig() Config {
	return Config{
		Retention:      7 * 24 * time.Hour,
		LearningWindow: 7 * 24 * time.Hour,
		PumpHeuristics: true,
	}
}

// klineLimits sets the window depth per timeframe. The slow timeframes
// need 200+ candles for the institutional indicators.
var klineLimits = map[market.Timeframe]int{
	market.Timeframe1m: 120,
	market.Timeframe5m: 120,
	market.Timeframe1h: 150,
	market.Timeframe4h: 250,
	market.Timeframe1d: 250,
}

type Analyzer struct {
	cfg     Config
	data    MarketData
	model   Model
	repo    Repo
	tracker Enqueuer
	log     zerolog.Logger
}

func New(cfg Config, data MarketData, model Model, repo Repo, tracker Enqueuer, logger zerolog.Logger) *Analyzer {
	if cfg.Retention <= 0 {
		cfg.Retention = 7 * 24 * time.Hour
	}
	if cfg.LearningWindow <= 0 {
		cfg.LearningWindow = cfg.Retention
	}
	return &Analyzer{
		cfg:     cfg,
		data:    data,
		model:   model,
		repo:    repo,
		tracker: tracker,
		log:     logger.With().Str("component", "analyzer").Logger(),
	}
}

// Analyze runs the full pipeline for one user request and persists the
// outcome. Cancellation aborts the model call; nothing partial is saved.
func (a *Analyzer) Analyze(ctx context.Context, userID int64, symbol string, tf market.Timeframe, style store.TradingStyle) (*store.AnalysisRecord, error) {
	traceID := uuid.NewString()
	log := a.log.With().Str("trace_id", traceID).Int64("user_id", userID).
		Str("symbol", symbol).Str("timeframe", string(tf)).Logger()

	if !tf.Valid() {
		return nil, failed(StageGateway, fmt.Errorf("unsupported timeframe %q", tf))
	}
	if style != store.StyleScalping && style != store.StyleSwing {
		style = store.StyleSwing
	}

	// 1. Market data
	known, err := a.data.KnownSymbol(ctx, symbol)
	if err != nil {
		return nil, failed(StageGateway, err)
	}
	if !known {
		return nil, failed(StageGateway, fmt.Errorf("%w: %s", market.ErrUnknownSymbol, symbol))
	}
	ticker, err := a.data.Get24hTicker(ctx, symbol)
	if err != nil {
		return nil, failed(StageGateway, err)
	}
	series := make(map[market.Timeframe][]market.Kline, len(market.AnalysisTimeframes))
	for _, t := range market.AnalysisTimeframes {
		klines, err := a.data.GetKlines(ctx, symbol, t, klineLimits[t])
		if err != nil {
			if errors.Is(err, market.ErrUnknownSymbol) || errors.Is(err, market.ErrUnavailableRegion) {
				return nil, failed(StageGateway, err)
			}
			// A short or failed side-timeframe degrades to a null
			// snapshot; the requested timeframe is mandatory
			if t == tf {
				return nil, failed(StageGateway, err)
			}
			log.Warn().Err(err).Str("side_timeframe", string(t)).Msg("side timeframe fetch failed")
			continue
		}
		series[t] = klines
	}

	// 2. Indicators
	engineCfg := indicator.DefaultConfig()
	if style == store.StyleScalping {
		engineCfg = indicator.ScalpingConfig()
	}
	bundle := indicator.NewEngine(engineCfg).ComputeBundle(series)

	// 3. Classification
	assetType := asset.Classify(symbol, ticker.QuoteVolume)
	bands := asset.BandsFor(assetType)

	// 4. Learning summary
	summary, err := a.repo.LearningSummary(ctx, userID, symbol, a.cfg.LearningWindow)
	if err != nil {
		return nil, failed(StageLearning, err)
	}
	similarity := a.similarity(summary, bundle)

	// 5. Prompt
	text := prompt.Build(prompt.Input{
		Symbol:         symbol,
		Timeframe:      tf,
		Style:          style,
		AssetType:      assetType,
		Bands:          bands,
		Bundle:         bundle,
		Ticker:         ticker,
		Learning:       summary,
		Similarity:     similarity,
		Daily:          series[market.Timeframe1d],
		PumpHeuristics: a.cfg.PumpHeuristics,
	})

	// 6. Model
	rec, err := a.model.Analyze(ctx, userID, text, assetType, style)
	if err != nil {
		return nil, failed(StageLLM, err)
	}
	a.crossCheck(rec, bands, tf, bundle)

	// 7. Compose
	createdAt := time.Now().UTC()
	record := &store.AnalysisRecord{
		ID:             recordID(symbol, createdAt, userID),
		UserID:         userID,
		Symbol:         symbol,
		Timeframe:      tf,
		TradingStyle:   style,
		CreatedAt:      createdAt,
		ExpiresAt:      createdAt.Add(a.cfg.Retention),
		Status:         store.StatusResolved,
		MarketSnapshot: bundle,
		Recommendation: *rec,
	}
	if rec.Trackable() {
		record.Status = store.StatusPendingTracking
	}

	// 8. Persist, then hand to the tracker best-effort: a failed
	// enqueue is recovered by rehydration on the next tracker start
	if err := a.repo.Save(ctx, record); err != nil {
		return nil, failed(StageStore, err)
	}
	if record.Status == store.StatusPendingTracking && a.tracker != nil {
		if err := a.tracker.Enqueue(ctx, record); err != nil {
			log.Warn().Err(err).Str("id", record.ID).Msg("tracker enqueue failed")
		}
	}

	log.Info().Str("id", record.ID).Str("action", string(rec.Action)).
		Int("confidence", rec.Confidence).Str("status", string(record.Status)).
		Msg("analysis complete")
	return record, nil
}

// History returns the user's records inside the window; symbol may be
// empty for all symbols.
func (a *Analyzer) History(ctx context.Context, userID int64, symbol string, window time.Duration) ([]*store.AnalysisRecord, error) {
	return a.repo.History(ctx, userID, symbol, window)
}

// Summary returns the derived learning summary for one symbol.
func (a *Analyzer) Summary(ctx context.Context, userID int64, symbol string, window time.Duration) (*store.LearningSummary, error) {
	return a.repo.LearningSummary(ctx, userID, symbol, window)
}

// similarity classifies the current 1h oscillators and 4h value-area
// position against the user's history.
func (a *Analyzer) similarity(summary *store.LearningSummary, bundle *indicator.Bundle) string {
	if summary == nil {
		return store.SimilarityNoData
	}
	snap1h := bundle.Snapshots[market.Timeframe1h]
	if snap1h == nil || snap1h.RSI == nil || snap1h.MFI == nil {
		return summary.SimilarityFor(50, 50, indicator.PositionNeutral)
	}
	vp := indicator.PositionNeutral
	if snap4h := bundle.Snapshots[market.Timeframe4h]; snap4h != nil && snap4h.VolumeProfile != nil {
		vp = snap4h.VolumeProfile.Position
	}
	return summary.SimilarityFor(*snap1h.RSI, *snap1h.MFI, vp)
}

// crossCheck appends warnings without overwriting model output.
func (a *Analyzer) crossCheck(rec *store.Recommendation, bands asset.RiskBands, tf market.Timeframe, bundle *indicator.Bundle) {
	if snap := bundle.Snapshots[tf]; snap == nil || snap.RSI == nil {
		rec.Warnings = append(rec.Warnings, "INDICATOR_INSUFFICIENT_DATA: RSI unavailable on requested timeframe")
	}
	if rec.EntryPoint != nil && rec.StopLoss != nil && *rec.EntryPoint != 0 {
		stopPct := (*rec.EntryPoint - *rec.StopLoss) / *rec.EntryPoint * 100
		if rec.Action == store.ActionSell {
			stopPct = -stopPct
		}
		if stopPct > 0 && !bands.StopLossWithin(stopPct) {
			rec.Warnings = append(rec.Warnings,
				fmt.Sprintf("RISK_BAND: stop width %.2f%% outside %s-%s%% band",
					stopPct, trimFloat(bands.StopLossMin), trimFloat(bands.StopLossMax)))
		}
	}
	if rec.PositionSizing.RecommendedPercent > 0 && !bands.PositionWithin(rec.PositionSizing.RecommendedPercent) {
		rec.Warnings = append(rec.Warnings,
			fmt.Sprintf("RISK_BAND: position size %.2f%% outside %s-%s%% band",
				rec.PositionSizing.RecommendedPercent,
				trimFloat(bands.MaxPositionMin), trimFloat(bands.MaxPositionMax)))
	}
}

func recordID(symbol string, createdAt time.Time, userID int64) string {
	uid := strconv.FormatInt(userID, 10)
	if len(uid) > 4 {
		uid = uid[len(uid)-4:]
	}
	return fmt.Sprintf("%s_%d_%s", symbol, createdAt.UnixMilli(), uid)
}

func trimFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

var _ Model = (*llm.Client)(nil)
