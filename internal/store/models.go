package store

import (
	"time"

	"crypto-signal-service/internal/asset"
	"crypto-signal-service/internal/indicator"
	"crypto-signal-service/internal/market"
)

// ==================== DOMAIN MODELS ====================

// Status is the lifecycle state of an analysis record
type Status string

const (
	StatusPendingTracking Status = "PENDING_TRACKING"
	StatusResolved        Status = "RESOLVED"
	StatusExpired         Status = "EXPIRED"
)

// TradingStyle selects indicator tuning and prompt framing
type TradingStyle string

const (
	StyleScalping TradingStyle = "scalping"
	StyleSwing    TradingStyle = "swing"
)

// Action is the model's trade call
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
	ActionWait Action = "WAIT"
)

// RiskLevel grades the trade
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// PositionSizing is the model's sizing guidance
type PositionSizing struct {
	RecommendedPercent float64 `json:"recommended_percent"`
	MaxPercent         float64 `json:"max_percent"`
	Rationale          string  `json:"rationale"`
}

// SectorAnalysis summarises the asset's sector context
type SectorAnalysis struct {
	Sector       string `json:"sector"`
	Outlook      string `json:"outlook"`
	KeyNarrative string `json:"key_narrative"`
}

// CorrelationAnalysis relates the asset to BTC and the broad market
type CorrelationAnalysis struct {
	BTCCorrelation string `json:"btc_correlation"`
	MarketBeta     string `json:"market_beta"`
	Notes          string `json:"notes"`
}

// FundamentalAnalysis covers tokenomics and adoption signals
type FundamentalAnalysis struct {
	Tokenomics string `json:"tokenomics"`
	Adoption   string `json:"adoption"`
	Risks      string `json:"risks"`
}

// MacroContext covers the macro template the prompt asks for
type MacroContext struct {
	BTCDominance     string `json:"btc_dominance"`
	InstitutionalBid string `json:"institutional_bid"`
	Liquidity        string `json:"liquidity"`
}

// HistoricalAnalysis echoes the learning-store comparison
type HistoricalAnalysis struct {
	PatternMatch string `json:"pattern_match"`
	PriorOutcome string `json:"prior_outcome"`
}

// Recommendation is the validated, default-filled model output
type Recommendation struct {
	Action                Action       `json:"action"`
	Confidence            int          `json:"confidence"`
	TradingStyle          TradingStyle `json:"trading_style"`
	EntryPoint            *float64     `json:"entry_point"`
	StopLoss              *float64     `json:"stop_loss"`
	TakeProfit            []float64    `json:"take_profit"`
	ExpectedHoldingPeriod string       `json:"expected_holding_period"`
	RiskLevel             RiskLevel    `json:"risk_level"`
	AssetType             asset.Type   `json:"asset_type"`
	ReasoningVietnamese   string       `json:"reasoning_vietnamese"`
	KeyPoints             []string     `json:"key_points"`
	ConflictingSignals    []string     `json:"conflicting_signals"`
	Warnings              []string     `json:"warnings"`
	MarketSentiment       string       `json:"market_sentiment"`
	TechnicalScore        int          `json:"technical_score"`
	FundamentalScore      int          `json:"fundamental_score"`

	SectorAnalysis      SectorAnalysis      `json:"sector_analysis"`
	CorrelationAnalysis CorrelationAnalysis `json:"correlation_analysis"`
	FundamentalAnalysis FundamentalAnalysis `json:"fundamental_analysis"`
	PositionSizing      PositionSizing      `json:"position_sizing_recommendation"`
	MacroContext        MacroContext        `json:"macro_context"`
	HistoricalAnalysis  HistoricalAnalysis  `json:"historical_analysis"`
}

// Trackable reports whether the recommendation qualifies for price
// tracking: a directional call with a concrete stop and at least one
// take-profit.
func (r *Recommendation) Trackable() bool {
	if r.Action != ActionBuy && r.Action != ActionSell {
		return false
	}
	return r.StopLoss != nil && r.EntryPoint != nil && len(r.TakeProfit) > 0
}

// Outcome of a tracked trade
type Outcome string

const (
	OutcomeWin     Outcome = "WIN"
	OutcomeLoss    Outcome = "LOSS"
	OutcomeExpired Outcome = "EXPIRED"
)

// ExitReason names the terminating event
type ExitReason string

const (
	ExitTP1         ExitReason = "TP1_HIT"
	ExitTP2         ExitReason = "TP2_HIT"
	ExitTP3         ExitReason = "TP3_HIT"
	ExitSL          ExitReason = "SL_HIT"
	ExitTimeExpired ExitReason = "TIME_EXPIRED"
)

// Resolution is written once by the tracker and never mutated
type Resolution struct {
	Outcome            Outcome       `json:"outcome"`
	ExitReason         ExitReason    `json:"exit_reason"`
	ExitPrice          float64       `json:"exit_price"`
	PnLPercent         float64       `json:"pnl_percent"`
	ExitTime           time.Time     `json:"exit_time"`
	Duration           time.Duration `json:"duration"`
	MaxDrawdownPercent float64       `json:"max_drawdown_percent"`
	TPHits             []bool        `json:"tp_hits"`
	SLHit              bool          `json:"sl_hit"`
}

// AnalysisRecord is the central entity. The store owns every record;
// other components hold transient copies keyed by ID.
type AnalysisRecord struct {
	ID           string           `json:"id"`
	UserID       int64            `json:"user_id"`
	Symbol       string           `json:"symbol"`
	Timeframe    market.Timeframe `json:"timeframe"`
	TradingStyle TradingStyle     `json:"trading_style"`
	CreatedAt    time.Time        `json:"created_at"`
	ExpiresAt    time.Time        `json:"expires_at"`
	Status       Status           `json:"status"`

	MarketSnapshot *indicator.Bundle `json:"market_snapshot"`
	Recommendation Recommendation    `json:"recommendation"`
	Resolution     *Resolution       `json:"resolution,omitempty"`
}

// Pattern is the oscillator profile of a set of resolved trades
type Pattern struct {
	RSIMean    float64                     `json:"rsi_mean"`
	RSIP10     float64                     `json:"rsi_p10"`
	RSIP90     float64                     `json:"rsi_p90"`
	MFIMean    float64                     `json:"mfi_mean"`
	MFIP10     float64                     `json:"mfi_p10"`
	MFIP90     float64                     `json:"mfi_p90"`
	DominantVP indicator.ValueAreaPosition `json:"dominant_vp_position"`
}

// LearningSummary is derived on demand from resolved records
type LearningSummary struct {
	TotalCount     int      `json:"total_count"`
	WinCount       int      `json:"win_count"`
	LossCount      int      `json:"loss_count"`
	WinRate        float64  `json:"win_rate"`
	AvgWinPnL      float64  `json:"avg_win_pnl"`
	AvgLossPnL     float64  `json:"avg_loss_pnl"`
	WinningPattern *Pattern `json:"winning_pattern,omitempty"`
	LosingPattern  *Pattern `json:"losing_pattern,omitempty"`
}
