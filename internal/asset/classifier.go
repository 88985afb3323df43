package asset

import "strings"

// ==================== ASSET CLASSIFIER ====================

// Type buckets a symbol by market capitalisation proxy. Classification
// is total: every symbol maps to exactly one type.
type Type string

const (
	TypeBTC      Type = "BTC"
	TypeETH      Type = "ETH"
	TypeLargeCap Type = "LARGE_CAP_ALT"
	TypeMidCap   Type = "MID_CAP_ALT"
	TypeSmallCap Type = "SMALL_CAP_ALT"
	TypeMemeCoin Type = "MEME_COIN"
)

// Quote-volume thresholds in USD over 24h
const (
	largeCapFloor = 500_000_000.0
	midCapFloor   = 50_000_000.0
	smallCapFloor = 5_000_000.0
)

var quoteSuffixes = []string{"USDT", "USDC", "BUSD", "FDUSD", "TUSD", "USD"}

// BaseAsset strips a known stablecoin quote suffix from a trading pair.
// Unknown suffixes leave the symbol unchanged.
func BaseAsset(symbol string) string {
	s := strings.ToUpper(symbol)
	for _, q := range quoteSuffixes {
		if strings.HasSuffix(s, q) && len(s) > len(q) {
			return strings.TrimSuffix(s, q)
		}
	}
	return s
}

// Classify maps a trading pair and its 24h quote volume to an asset
// type. BTC and ETH are recognised by base asset regardless of volume;
// everything else tiers on quote volume, with the lowest tier treated as
// meme territory.
func Classify(symbol string, quoteVolume float64) Type {
	switch BaseAsset(symbol) {
	case "BTC":
		return TypeBTC
	case "ETH":
		return TypeETH
	}
	switch {
	case quoteVolume >= largeCapFloor:
		return TypeLargeCap
	case quoteVolume >= midCapFloor:
		return TypeMidCap
	case quoteVolume >= smallCapFloor:
		return TypeSmallCap
	default:
		return TypeMemeCoin
	}
}

// IsMajor reports whether the asset type is one of the two anchors.
func (t Type) IsMajor() bool {
	return t == TypeBTC || t == TypeETH
}
