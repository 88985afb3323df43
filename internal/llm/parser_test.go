package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-signal-service/internal/asset"
	"crypto-signal-service/internal/store"
)

const validJSON = `{
	"action": "BUY",
	"confidence": 72,
	"trading_style": "swing",
	"entry_point": 100.0,
	"stop_loss": 95.0,
	"take_profit": [103.0, 106.0, 110.0],
	"risk_level": "MEDIUM",
	"asset_type": "LARGE_CAP_ALT",
	"reasoning_vietnamese": "Xu hướng tăng"
}`

func TestParseStrictJSON(t *testing.T) {
	rec, err := Parse(validJSON)
	require.NoError(t, err)
	assert.Equal(t, store.ActionBuy, rec.Action)
	assert.Equal(t, 72, rec.Confidence)
	require.NotNil(t, rec.EntryPoint)
	assert.Equal(t, 100.0, *rec.EntryPoint)
	assert.Equal(t, []float64{103, 106, 110}, rec.TakeProfit)
}

func TestParseMarkdownFencedJSON(t *testing.T) {
	raw := "Here is my analysis:\n```json\n" + validJSON + "\n```\nGood luck!"
	rec, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, store.ActionBuy, rec.Action)
	assert.Empty(t, rec.Warnings)
}

func TestParseBraceBalancedSubstring(t *testing.T) {
	raw := "Sure! Based on the data " + validJSON + " and that is my final answer."
	rec, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, store.ActionBuy, rec.Action)
}

func TestParseBracesInsideStrings(t *testing.T) {
	raw := `prefix {"action": "SELL", "confidence": 55, "reasoning_vietnamese": "mẫu hình {nêm} giảm"} suffix`
	rec, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, store.ActionSell, rec.Action)
	assert.Equal(t, "mẫu hình {nêm} giảm", rec.ReasoningVietnamese)
}

func TestParseRegexFallback(t *testing.T) {
	raw := `The model suggests "action": "BUY" with "confidence": 65 and
"entry_point": 50000.5, "stop_loss": 48000, "take_profit": [52000, 54000 broken json...`
	rec, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, store.ActionBuy, rec.Action)
	assert.Equal(t, 65, rec.Confidence)
	require.NotNil(t, rec.EntryPoint)
	assert.Equal(t, 50000.5, *rec.EntryPoint)
	assert.Contains(t, rec.Warnings, "LLM_PARSE_PARTIAL")
}

func TestParseHopelessInput(t *testing.T) {
	_, err := Parse("I cannot help with that.")
	assert.ErrorIs(t, err, ErrUnparseable)
}

func TestPartialParseForcesWaitAndCapsConfidence(t *testing.T) {
	raw := `response got cut "action": "BUY", "confidence": 82, "take_profit": [44100, 44600`
	rec, err := Parse(raw)
	require.NoError(t, err)
	ValidateAndNormalize(rec, asset.TypeBTC, store.StyleSwing)
	assert.Equal(t, store.ActionWait, rec.Action)
	assert.Equal(t, 40, rec.Confidence)
	assert.Contains(t, rec.Warnings, "LLM_PARSE_PARTIAL")
	assert.False(t, rec.Trackable())
}

func TestValidateDowngradesNonMonotonicTPs(t *testing.T) {
	entry, sl := 100.0, 95.0
	rec := &store.Recommendation{
		Action: store.ActionBuy, Confidence: 80,
		EntryPoint: &entry, StopLoss: &sl,
		TakeProfit: []float64{106, 103},
		AssetType:  asset.TypeLargeCap,
	}
	ValidateAndNormalize(rec, asset.TypeLargeCap, store.StyleSwing)
	assert.Equal(t, store.ActionWait, rec.Action)
	assert.NotEmpty(t, rec.Warnings)
}

func TestValidateDowngradesStopOnWrongSide(t *testing.T) {
	entry, sl := 100.0, 105.0
	rec := &store.Recommendation{
		Action: store.ActionBuy, EntryPoint: &entry, StopLoss: &sl,
		TakeProfit: []float64{110}, AssetType: asset.TypeBTC,
	}
	ValidateAndNormalize(rec, asset.TypeBTC, store.StyleSwing)
	assert.Equal(t, store.ActionWait, rec.Action)
}

func TestValidateDowngradesTPsOnWrongSide(t *testing.T) {
	// Ascending and above the stop, but every target sits below entry
	entry, sl := 100.0, 80.0
	rec := &store.Recommendation{
		Action: store.ActionBuy, Confidence: 75,
		EntryPoint: &entry, StopLoss: &sl,
		TakeProfit: []float64{90, 95, 98},
		AssetType:  asset.TypeLargeCap,
	}
	ValidateAndNormalize(rec, asset.TypeLargeCap, store.StyleSwing)
	assert.Equal(t, store.ActionWait, rec.Action)
	assert.Contains(t, rec.Warnings, "VALIDATION: take-profit on wrong side of entry")

	entry, sl = 100.0, 110.0
	rec = &store.Recommendation{
		Action: store.ActionSell, EntryPoint: &entry, StopLoss: &sl,
		TakeProfit: []float64{105}, AssetType: asset.TypeETH,
	}
	ValidateAndNormalize(rec, asset.TypeETH, store.StyleSwing)
	assert.Equal(t, store.ActionWait, rec.Action)
}

func TestValidateSellDirection(t *testing.T) {
	entry, sl := 100.0, 105.0
	rec := &store.Recommendation{
		Action: store.ActionSell, EntryPoint: &entry, StopLoss: &sl,
		TakeProfit: []float64{97, 94, 90}, AssetType: asset.TypeETH,
	}
	ValidateAndNormalize(rec, asset.TypeETH, store.StyleScalping)
	assert.Equal(t, store.ActionSell, rec.Action)
	assert.Empty(t, rec.Warnings)
}

func TestValidateAssetTypeMismatch(t *testing.T) {
	rec := &store.Recommendation{Action: store.ActionHold, AssetType: asset.TypeBTC}
	ValidateAndNormalize(rec, asset.TypeMemeCoin, store.StyleSwing)
	assert.Equal(t, store.ActionWait, rec.Action)
	assert.Equal(t, asset.TypeMemeCoin, rec.AssetType)
}

func TestValidateClampsConfidence(t *testing.T) {
	rec := &store.Recommendation{Action: store.ActionHold, Confidence: 140}
	ValidateAndNormalize(rec, asset.TypeBTC, store.StyleSwing)
	assert.Equal(t, 100, rec.Confidence)
}

func TestFillDefaultsCoversEveryKey(t *testing.T) {
	rec := &store.Recommendation{Action: store.ActionWait}
	ValidateAndNormalize(rec, asset.TypeSmallCap, store.StyleSwing)

	assert.NotNil(t, rec.TakeProfit)
	assert.NotNil(t, rec.KeyPoints)
	assert.NotNil(t, rec.ConflictingSignals)
	assert.NotNil(t, rec.Warnings)
	assert.Equal(t, store.RiskMedium, rec.RiskLevel)
	assert.Equal(t, "Unknown", rec.ExpectedHoldingPeriod)
	assert.Equal(t, "Unknown", rec.SectorAnalysis.Sector)
	assert.Equal(t, "Unknown", rec.MacroContext.BTCDominance)
	assert.Equal(t, store.StyleSwing, rec.TradingStyle)
	assert.Equal(t, asset.TypeSmallCap, rec.AssetType)
}

func TestStripMarkdownCodeBlock(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripMarkdownCodeBlock("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripMarkdownCodeBlock("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripMarkdownCodeBlock(`{"a":1}`))
}
