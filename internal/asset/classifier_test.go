package asset

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyTotality(t *testing.T) {
	tests := []struct {
		symbol      string
		quoteVolume float64
		want        Type
	}{
		{"BTCUSDT", 10_000_000_000, TypeBTC},
		{"BTCUSDC", 1_000, TypeBTC},
		{"ETHUSDT", 5_000_000_000, TypeETH},
		{"ETHFDUSD", 0, TypeETH},
		{"SOLUSDT", 600_000_000, TypeLargeCap},
		{"SOLUSDT", 500_000_000, TypeLargeCap},
		{"LINKUSDT", 499_999_999, TypeMidCap},
		{"LINKUSDT", 50_000_000, TypeMidCap},
		{"ARBUSDT", 49_999_999, TypeSmallCap},
		{"ARBUSDT", 5_000_000, TypeSmallCap},
		{"PEPEUSDT", 4_999_999, TypeMemeCoin},
		{"PEPEUSDT", 0, TypeMemeCoin},
		{"WEIRDPAIR", 0, TypeMemeCoin},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.symbol, tt.quoteVolume), "%s @ %.0f", tt.symbol, tt.quoteVolume)
	}
}

func TestBaseAsset(t *testing.T) {
	assert.Equal(t, "BTC", BaseAsset("BTCUSDT"))
	assert.Equal(t, "ETH", BaseAsset("ethusd"))
	assert.Equal(t, "PEPE", BaseAsset("PEPETUSD"))
	// No known quote suffix: unchanged
	assert.Equal(t, "BTCETH", BaseAsset("BTCETH"))
	// Symbol equal to a suffix is not stripped to empty
	assert.Equal(t, "USDT", BaseAsset("USDT"))
}

func TestBandsForEveryType(t *testing.T) {
	for _, typ := range []Type{TypeBTC, TypeETH, TypeLargeCap, TypeMidCap, TypeSmallCap, TypeMemeCoin} {
		b := BandsFor(typ)
		assert.Greater(t, b.StopLossMax, b.StopLossMin, "%s", typ)
		assert.Greater(t, b.MaxPositionMax, b.MaxPositionMin, "%s", typ)
	}
	assert.Equal(t, BandsFor(TypeMemeCoin), BandsFor(Type("UNKNOWN")))
}

func TestStopLossWithin(t *testing.T) {
	b := BandsFor(TypeBTC)
	assert.True(t, b.StopLossWithin(5))
	assert.False(t, b.StopLossWithin(3))
	assert.False(t, b.StopLossWithin(7))
}
