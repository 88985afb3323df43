package indicator

import "crypto-signal-service/internal/market"

// Direction of a zone or structure event
type Direction string

const (
	Bullish Direction = "bullish"
	Bearish Direction = "bearish"
)

// ValueAreaPosition places the current price relative to the value area
type ValueAreaPosition string

const (
	PositionDiscount ValueAreaPosition = "DISCOUNT"
	PositionNeutral  ValueAreaPosition = "NEUTRAL"
	PositionPremium  ValueAreaPosition = "PREMIUM"
)

// VolumeProfile holds the volume-profile levels for a window
type VolumeProfile struct {
	POC      float64           `json:"poc"`
	VAH      float64           `json:"vah"`
	VAL      float64           `json:"val"`
	Position ValueAreaPosition `json:"position"`
}

// FVG is an unfilled fair value gap
type FVG struct {
	Low             float64   `json:"low"`
	High            float64   `json:"high"`
	Direction       Direction `json:"direction"`
	FillProbability float64   `json:"fill_probability"`
}

// OrderBlock is the last opposite candle before a displacement move
type OrderBlock struct {
	Low       float64   `json:"low"`
	High      float64   `json:"high"`
	Direction Direction `json:"direction"`
	TestCount int       `json:"test_count"`
}

// StructureEventKind distinguishes continuation from reversal breaks
type StructureEventKind string

const (
	BreakOfStructure  StructureEventKind = "BOS"
	ChangeOfCharacter StructureEventKind = "CHOCH"
)

// StructureEvent records a smart-money structure break
type StructureEvent struct {
	Kind      StructureEventKind `json:"kind"`
	Direction Direction          `json:"direction"`
	Price     float64            `json:"price"`
	Index     int                `json:"index"`
}

// Structure holds the latest smart-money structure state
type Structure struct {
	LastBOS   *StructureEvent `json:"last_bos,omitempty"`
	LastCHoCH *StructureEvent `json:"last_choch,omitempty"`
}

// Snapshot is the computed indicator set for one (symbol, timeframe).
// Fields are nil when the series was too short for the indicator; a nil
// field never carries a synthetic value.
type Snapshot struct {
	Timeframe market.Timeframe `json:"timeframe"`

	RSI     *float64 `json:"rsi,omitempty"`
	RSIPrev *float64 `json:"rsi_prev,omitempty"`
	MFI     *float64 `json:"mfi,omitempty"`
	MFIPrev *float64 `json:"mfi_prev,omitempty"`
	StochK  *float64 `json:"stoch_k,omitempty"`
	StochD  *float64 `json:"stoch_d,omitempty"`

	VolumeProfile *VolumeProfile `json:"volume_profile,omitempty"`
	FVGs          []FVG          `json:"fvgs,omitempty"`
	OrderBlocks   []OrderBlock   `json:"order_blocks,omitempty"`
	Support       []float64      `json:"support,omitempty"`
	Resistance    []float64      `json:"resistance,omitempty"`
	Structure     *Structure     `json:"structure,omitempty"`

	LastClose     float64 `json:"last_close"`
	CurrentVolume float64 `json:"current_volume"`
	AvgVolume     float64 `json:"avg_volume"`
}

// Consensus summarises agreement across timeframes
type Consensus string

const (
	ConsensusBuy     Consensus = "BUY"
	ConsensusSell    Consensus = "SELL"
	ConsensusNeutral Consensus = "NEUTRAL"
)

// Bundle is the multi-timeframe snapshot set published per analysis
type Bundle struct {
	Snapshots map[market.Timeframe]*Snapshot `json:"snapshots"`
	Consensus Consensus                      `json:"consensus"`
	Strength  int                            `json:"strength"`
}
