package llm

import (
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"crypto-signal-service/internal/asset"
	"crypto-signal-service/internal/store"
)

// ==================== RECOVERY PARSER ====================

// ErrUnparseable means every recovery stage failed
var ErrUnparseable = errors.New("llm response not parseable")

const warnParsePartial = "LLM_PARSE_PARTIAL"

var (
	codeBlockRe  = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	actionRe     = regexp.MustCompile(`"action"\s*:\s*"([A-Z]+)"`)
	confidenceRe = regexp.MustCompile(`"confidence"\s*:\s*([0-9]+)`)
	entryRe      = regexp.MustCompile(`"entry_point"\s*:\s*([0-9.eE+-]+)`)
	stopLossRe   = regexp.MustCompile(`"stop_loss"\s*:\s*([0-9.eE+-]+)`)
	takeProfitRe = regexp.MustCompile(`"take_profit"\s*:\s*\[([^\]]*)\]`)
	reasoningRe  = regexp.MustCompile(`"reasoning_vietnamese"\s*:\s*"((?:[^"\\]|\\.)*)"`)
)

// Parse runs the recovery pipeline: strict JSON, then a fenced code
// block, then a brace-balanced substring, then per-field regexes. The
// returned recommendation is raw; callers must validate it.
func Parse(raw string) (*store.Recommendation, error) {
	if rec, err := parseJSON(raw); err == nil {
		return rec, nil
	}

	stripped := stripMarkdownCodeBlock(raw)
	if stripped != raw {
		if rec, err := parseJSON(stripped); err == nil {
			return rec, nil
		}
	}

	if sub := balancedJSON(stripped); sub != "" {
		if rec, err := parseJSON(sub); err == nil {
			return rec, nil
		}
	}

	return parseFields(raw)
}

func parseJSON(s string) (*store.Recommendation, error) {
	var rec store.Recommendation
	dec := json.NewDecoder(strings.NewReader(strings.TrimSpace(s)))
	if err := dec.Decode(&rec); err != nil {
		return nil, err
	}
	if rec.Action == "" {
		return nil, errors.New("no action field")
	}
	return &rec, nil
}

// stripMarkdownCodeBlock unwraps a ```json fenced block if present.
func stripMarkdownCodeBlock(s string) string {
	if m := codeBlockRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(s)
}

// balancedJSON returns the first brace-balanced substring, tracking
// strings and escapes so braces inside values do not break the count.
func balancedJSON(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1]
				}
			}
		}
	}
	return ""
}

// parseFields is the last resort: pull the trading-critical fields out
// with regexes and build a minimal recommendation flagged as partial.
func parseFields(raw string) (*store.Recommendation, error) {
	m := actionRe.FindStringSubmatch(raw)
	if m == nil {
		return nil, ErrUnparseable
	}
	rec := &store.Recommendation{
		Action:   store.Action(m[1]),
		Warnings: []string{warnParsePartial},
	}

	if m := confidenceRe.FindStringSubmatch(raw); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			rec.Confidence = v
		}
	}
	if m := entryRe.FindStringSubmatch(raw); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			rec.EntryPoint = &v
		}
	}
	if m := stopLossRe.FindStringSubmatch(raw); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			rec.StopLoss = &v
		}
	}
	if m := takeProfitRe.FindStringSubmatch(raw); m != nil {
		for _, part := range strings.Split(m[1], ",") {
			if v, err := strconv.ParseFloat(strings.TrimSpace(part), 64); err == nil {
				rec.TakeProfit = append(rec.TakeProfit, v)
			}
		}
	}
	if m := reasoningRe.FindStringSubmatch(raw); m != nil {
		rec.ReasoningVietnamese = m[1]
	}
	return rec, nil
}

// ==================== VALIDATION ====================

// ValidateAndNormalize enforces the output contract. Violations never
// raise: the action is downgraded to WAIT with a warning attached, and
// absent sub-objects are filled with typed defaults.
func ValidateAndNormalize(rec *store.Recommendation, expected asset.Type, style store.TradingStyle) {
	downgrade := func(reason string) {
		rec.Action = store.ActionWait
		rec.Warnings = append(rec.Warnings, reason)
	}

	switch rec.Action {
	case store.ActionBuy, store.ActionSell, store.ActionHold, store.ActionWait:
	default:
		downgrade("VALIDATION: unknown action " + string(rec.Action))
	}

	// A regex-recovered record is too lossy to act on: force WAIT and
	// cap confidence so it reads as low-conviction downstream.
	for _, w := range rec.Warnings {
		if w == warnParsePartial {
			rec.Action = store.ActionWait
			if rec.Confidence > 40 {
				rec.Confidence = 40
			}
			break
		}
	}

	if rec.Confidence < 0 {
		rec.Confidence = 0
		rec.Warnings = append(rec.Warnings, "VALIDATION: confidence below 0, clamped")
	}
	if rec.Confidence > 100 {
		rec.Confidence = 100
		rec.Warnings = append(rec.Warnings, "VALIDATION: confidence above 100, clamped")
	}

	if action := rec.Action; action == store.ActionBuy || action == store.ActionSell {
		if !monotonicTPs(action, rec.TakeProfit) {
			downgrade("VALIDATION: take-profit levels not monotonic for " + string(action))
		}
		if stopOnWrongSide(action, rec.EntryPoint, rec.StopLoss) {
			downgrade("VALIDATION: stop-loss on wrong side of entry")
		}
		if tpOnWrongSide(action, rec.EntryPoint, rec.TakeProfit) {
			downgrade("VALIDATION: take-profit on wrong side of entry")
		}
	}

	if rec.AssetType == "" {
		rec.AssetType = expected
	} else if rec.AssetType != expected {
		rec.AssetType = expected
		downgrade("VALIDATION: asset type mismatch")
	}

	if rec.TradingStyle == "" {
		rec.TradingStyle = style
	}

	fillDefaults(rec)
}

func monotonicTPs(action store.Action, tps []float64) bool {
	for i := 1; i < len(tps); i++ {
		if action == store.ActionBuy && tps[i] <= tps[i-1] {
			return false
		}
		if action == store.ActionSell && tps[i] >= tps[i-1] {
			return false
		}
	}
	return true
}

func stopOnWrongSide(action store.Action, entry, stop *float64) bool {
	if entry == nil || stop == nil {
		return false
	}
	if action == store.ActionBuy {
		return *stop >= *entry
	}
	return *stop <= *entry
}

// tpOnWrongSide reports any target below entry for a BUY, or above
// entry for a SELL.
func tpOnWrongSide(action store.Action, entry *float64, tps []float64) bool {
	if entry == nil {
		return false
	}
	for _, tp := range tps {
		if action == store.ActionBuy && tp <= *entry {
			return true
		}
		if action == store.ActionSell && tp >= *entry {
			return true
		}
	}
	return false
}

// fillDefaults guarantees downstream code never sees a missing key.
func fillDefaults(rec *store.Recommendation) {
	if rec.TakeProfit == nil {
		rec.TakeProfit = []float64{}
	}
	if rec.KeyPoints == nil {
		rec.KeyPoints = []string{}
	}
	if rec.ConflictingSignals == nil {
		rec.ConflictingSignals = []string{}
	}
	if rec.Warnings == nil {
		rec.Warnings = []string{}
	}
	if rec.RiskLevel == "" {
		rec.RiskLevel = store.RiskMedium
	}
	if rec.ExpectedHoldingPeriod == "" {
		rec.ExpectedHoldingPeriod = "Unknown"
	}
	if rec.MarketSentiment == "" {
		rec.MarketSentiment = "Unknown"
	}
	if rec.SectorAnalysis == (store.SectorAnalysis{}) {
		rec.SectorAnalysis = store.SectorAnalysis{Sector: "Unknown", Outlook: "Unknown"}
	}
	if rec.CorrelationAnalysis == (store.CorrelationAnalysis{}) {
		rec.CorrelationAnalysis = store.CorrelationAnalysis{BTCCorrelation: "Unknown", MarketBeta: "Unknown"}
	}
	if rec.FundamentalAnalysis == (store.FundamentalAnalysis{}) {
		rec.FundamentalAnalysis = store.FundamentalAnalysis{Tokenomics: "Unknown", Adoption: "Unknown", Risks: "Unknown"}
	}
	if rec.MacroContext == (store.MacroContext{}) {
		rec.MacroContext = store.MacroContext{BTCDominance: "Unknown", InstitutionalBid: "Unknown", Liquidity: "Unknown"}
	}
	if rec.HistoricalAnalysis == (store.HistoricalAnalysis{}) {
		rec.HistoricalAnalysis = store.HistoricalAnalysis{PatternMatch: "Unknown", PriorOutcome: "Unknown"}
	}
}
