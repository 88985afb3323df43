package asset

// RiskBands is the recommended position-size and stop-width range for an
// asset type, used to cross-check model output. Percentages of account
// equity and of entry price respectively.
type RiskBands struct {
	MaxPositionMin float64 `json:"max_position_min"`
	MaxPositionMax float64 `json:"max_position_max"`
	StopLossMin    float64 `json:"stop_loss_min"`
	StopLossMax    float64 `json:"stop_loss_max"`
	Notes          string  `json:"notes"`
}

var riskBands = map[Type]RiskBands{
	TypeBTC:      {3, 5, 4, 6, "macro-sensitive, widen stops on news"},
	TypeETH:      {2, 3, 5, 8, "sector + macro"},
	TypeLargeCap: {1.5, 2, 8, 12, "correlation-aware"},
	TypeMidCap:   {1, 1.5, 10, 15, "rotation risk"},
	TypeSmallCap: {0.5, 1, 15, 20, "liquidity-aware"},
	TypeMemeCoin: {0.05, 0.1, 20, 30, "auto-HIGH risk"},
}

// BandsFor returns the risk bands for an asset type. Unknown types fall
// back to the meme-coin bands, the most conservative row.
func BandsFor(t Type) RiskBands {
	if b, ok := riskBands[t]; ok {
		return b
	}
	return riskBands[TypeMemeCoin]
}

// StopLossWithin reports whether a stop distance in percent sits inside
// the band for the type.
func (b RiskBands) StopLossWithin(pct float64) bool {
	return pct >= b.StopLossMin && pct <= b.StopLossMax
}

// PositionWithin reports whether a position size in percent sits inside
// the band for the type.
func (b RiskBands) PositionWithin(pct float64) bool {
	return pct >= b.MaxPositionMin && pct <= b.MaxPositionMax
}
