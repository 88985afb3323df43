package prompt

import (
	"fmt"
	"strings"

	"crypto-signal-service/internal/asset"
	"crypto-signal-service/internal/indicator"
	"crypto-signal-service/internal/market"
	"crypto-signal-service/internal/store"
)

// ==================== PROMPT ASSEMBLER ====================

// Input carries everything the assembler folds into the prompt. The
// assembler itself holds no state: the same Input must produce
// byte-identical text so model temperature is the only source of
// variation.
type Input struct {
	Symbol    string
	Timeframe market.Timeframe
	Style     store.TradingStyle
	AssetType asset.Type
	Bands     asset.RiskBands

	Bundle *indicator.Bundle
	Ticker *market.Ticker24h

	// Learning is nil until the user has resolved history; the block is
	// emitted only at 3+ resolved records.
	Learning   *store.LearningSummary
	Similarity string

	// Daily candles for the historical comparison block, oldest first
	Daily []market.Kline

	PumpHeuristics bool
}

// sectionOrder is fixed; prompts must be reproducible
func Build(in Input) string {
	var b strings.Builder

	writeAssetBlock(&b, in)
	writeStyleBlock(&b, in)
	writeLearningBlock(&b, in)
	writeIndicatorBlock(&b, in)
	if in.PumpHeuristics {
		writeHeuristicsBlock(&b, in)
	}
	writeTickerBlock(&b, in)
	writeHistoricalBlock(&b, in)
	writeMacroBlock(&b, in)
	writeRiskBlock(&b, in)
	writeSchemaBlock(&b)

	return b.String()
}

func writeAssetBlock(b *strings.Builder, in Input) {
	fmt.Fprintf(b, "=== ASSET PROFILE ===\n")
	fmt.Fprintf(b, "Symbol: %s\n", in.Symbol)
	fmt.Fprintf(b, "Asset type: %s\n", in.AssetType)
	fmt.Fprintf(b, "Recommended position size: %s%% - %s%% of equity\n",
		num(in.Bands.MaxPositionMin), num(in.Bands.MaxPositionMax))
	fmt.Fprintf(b, "Recommended stop width: %s%% - %s%% from entry\n",
		num(in.Bands.StopLossMin), num(in.Bands.StopLossMax))
	fmt.Fprintf(b, "Risk notes: %s\n\n", in.Bands.Notes)
}

func writeStyleBlock(b *strings.Builder, in Input) {
	fmt.Fprintf(b, "=== TRADING STYLE ===\n")
	fmt.Fprintf(b, "Style: %s\n", in.Style)
	fmt.Fprintf(b, "Requested timeframe: %s\n\n", in.Timeframe)
}

func writeLearningBlock(b *strings.Builder, in Input) {
	if in.Learning == nil || in.Learning.TotalCount < 3 {
		return
	}
	s := in.Learning
	fmt.Fprintf(b, "=== HISTORICAL PERFORMANCE (this user, this symbol) ===\n")
	fmt.Fprintf(b, "Resolved trades: %d (wins %d, losses %d, win rate %s%%)\n",
		s.TotalCount, s.WinCount, s.LossCount, num(s.WinRate*100))
	fmt.Fprintf(b, "Average win: %s%%, average loss: %s%%\n", num(s.AvgWinPnL), num(s.AvgLossPnL))
	if p := s.WinningPattern; p != nil {
		fmt.Fprintf(b, "Winning pattern: RSI mean %s [%s, %s], MFI mean %s [%s, %s], dominant VP %s\n",
			num(p.RSIMean), num(p.RSIP10), num(p.RSIP90),
			num(p.MFIMean), num(p.MFIP10), num(p.MFIP90), p.DominantVP)
	}
	if p := s.LosingPattern; p != nil {
		fmt.Fprintf(b, "Losing pattern: RSI mean %s [%s, %s], MFI mean %s [%s, %s], dominant VP %s\n",
			num(p.RSIMean), num(p.RSIP10), num(p.RSIP90),
			num(p.MFIMean), num(p.MFIP10), num(p.MFIP90), p.DominantVP)
	}
	fmt.Fprintf(b, "Similarity to current setup: %s\n\n", in.Similarity)
}

func writeIndicatorBlock(b *strings.Builder, in Input) {
	fmt.Fprintf(b, "=== INDICATORS BY TIMEFRAME ===\n")
	for _, tf := range market.AnalysisTimeframes {
		snap := in.Bundle.Snapshots[tf]
		if snap == nil {
			continue
		}
		fmt.Fprintf(b, "[%s] close=%s", tf, num(snap.LastClose))
		fmt.Fprintf(b, " RSI=%s (prev %s)", numPtr(snap.RSI), numPtr(snap.RSIPrev))
		fmt.Fprintf(b, " MFI=%s (prev %s)", numPtr(snap.MFI), numPtr(snap.MFIPrev))
		fmt.Fprintf(b, " StochK=%s StochD=%s\n", numPtr(snap.StochK), numPtr(snap.StochD))

		if vp := snap.VolumeProfile; vp != nil {
			fmt.Fprintf(b, "  VolumeProfile: POC=%s VAH=%s VAL=%s position=%s\n",
				num(vp.POC), num(vp.VAH), num(vp.VAL), vp.Position)
		}
		for _, f := range snap.FVGs {
			fmt.Fprintf(b, "  FVG %s [%s, %s] fill-prob=%s\n",
				f.Direction, num(f.Low), num(f.High), num(f.FillProbability))
		}
		for _, ob := range snap.OrderBlocks {
			fmt.Fprintf(b, "  OrderBlock %s [%s, %s] tests=%d\n",
				ob.Direction, num(ob.Low), num(ob.High), ob.TestCount)
		}
		if len(snap.Support) > 0 {
			fmt.Fprintf(b, "  Support: %s\n", numList(snap.Support))
		}
		if len(snap.Resistance) > 0 {
			fmt.Fprintf(b, "  Resistance: %s\n", numList(snap.Resistance))
		}
		if st := snap.Structure; st != nil {
			if st.LastBOS != nil {
				fmt.Fprintf(b, "  Structure: BOS %s at %s\n", st.LastBOS.Direction, num(st.LastBOS.Price))
			}
			if st.LastCHoCH != nil {
				fmt.Fprintf(b, "  Structure: CHoCH %s at %s\n", st.LastCHoCH.Direction, num(st.LastCHoCH.Price))
			}
		}
	}
	fmt.Fprintf(b, "Consensus: %s (strength %d of 4)\n\n", in.Bundle.Consensus, in.Bundle.Strength)
}

func writeHeuristicsBlock(b *strings.Builder, in Input) {
	snap := in.Bundle.Snapshots[in.Timeframe]
	if snap == nil {
		return
	}
	fmt.Fprintf(b, "=== PUMP / BOT HEURISTICS ===\n")
	ratio := 0.0
	if snap.AvgVolume > 0 {
		ratio = snap.CurrentVolume / snap.AvgVolume
	}
	fmt.Fprintf(b, "Current candle volume vs 20-candle average: %sx\n", num(ratio))
	if snap.RSI != nil && snap.RSIPrev != nil {
		fmt.Fprintf(b, "RSI rate of change: %s\n", num(*snap.RSI-*snap.RSIPrev))
	} else {
		fmt.Fprintf(b, "RSI rate of change: n/a\n")
	}
	fmt.Fprintf(b, "\n")
}

func writeTickerBlock(b *strings.Builder, in Input) {
	if in.Ticker == nil {
		return
	}
	fmt.Fprintf(b, "=== 24H MARKET ===\n")
	fmt.Fprintf(b, "Last: %s High: %s Low: %s Change: %s%% QuoteVolume: %s\n\n",
		num(in.Ticker.LastPrice), num(in.Ticker.HighPrice), num(in.Ticker.LowPrice),
		num(in.Ticker.PriceChangePercent), num(in.Ticker.QuoteVolume))
}

func writeHistoricalBlock(b *strings.Builder, in Input) {
	if len(in.Daily) < 8 {
		return
	}
	fmt.Fprintf(b, "=== HISTORICAL COMPARISON ===\n")
	last := in.Daily[len(in.Daily)-1]
	weekAgo := in.Daily[len(in.Daily)-8]
	if weekAgo.Close > 0 {
		fmt.Fprintf(b, "Price week-over-week: %s%%\n", num((last.Close-weekAgo.Close)/weekAgo.Close*100))
	}
	var volNow, volPrev float64
	for _, k := range in.Daily[len(in.Daily)-7:] {
		volNow += k.Volume
	}
	if len(in.Daily) >= 15 {
		for _, k := range in.Daily[len(in.Daily)-14 : len(in.Daily)-7] {
			volPrev += k.Volume
		}
	}
	if volPrev > 0 {
		fmt.Fprintf(b, "Volume week-over-week: %s%%\n", num((volNow-volPrev)/volPrev*100))
	}
	fmt.Fprintf(b, "Previous candle bodies:")
	start := len(in.Daily) - 3
	if start < 0 {
		start = 0
	}
	for _, k := range in.Daily[start:] {
		fmt.Fprintf(b, " %s", num(k.Close-k.Open))
	}
	fmt.Fprintf(b, "\n\n")
}

func writeMacroBlock(b *strings.Builder, in Input) {
	fmt.Fprintf(b, "=== MACRO CONTEXT (fill in the JSON fields below) ===\n")
	if in.AssetType == asset.TypeBTC {
		fmt.Fprintf(b, "macro_context.btc_dominance: <your read on BTC dominance>\n")
		fmt.Fprintf(b, "macro_context.institutional_bid: <ETF / institutional flow read>\n")
		fmt.Fprintf(b, "macro_context.liquidity: <global liquidity conditions>\n\n")
		return
	}
	fmt.Fprintf(b, "correlation_analysis.btc_correlation: <correlation of %s to BTC>\n", in.Symbol)
	fmt.Fprintf(b, "sector_analysis.sector: <the sector this asset belongs to>\n")
	fmt.Fprintf(b, "sector_analysis.outlook: <sector rotation outlook>\n\n")
}

func writeRiskBlock(b *strings.Builder, in Input) {
	fmt.Fprintf(b, "=== RISK CONSTRAINTS ===\n")
	fmt.Fprintf(b, "Keep position size within %s%%-%s%% and stop-loss within %s%%-%s%% for a %s asset.\n\n",
		num(in.Bands.MaxPositionMin), num(in.Bands.MaxPositionMax),
		num(in.Bands.StopLossMin), num(in.Bands.StopLossMax), in.AssetType)
}

func writeSchemaBlock(b *strings.Builder) {
	fmt.Fprintf(b, "=== OUTPUT FORMAT ===\n")
	fmt.Fprintf(b, "Respond with STRICT JSON only, no markdown, no commentary. Required keys:\n")
	fmt.Fprintf(b, `{"action":"BUY|SELL|HOLD|WAIT","confidence":0,"trading_style":"scalping|swing",`+
		`"entry_point":0.0,"stop_loss":0.0,"take_profit":[0.0],"expected_holding_period":"",`+
		`"risk_level":"LOW|MEDIUM|HIGH","asset_type":"","reasoning_vietnamese":"",`+
		`"key_points":[],"conflicting_signals":[],"warnings":[],"market_sentiment":"",`+
		`"technical_score":0,"fundamental_score":0,"sector_analysis":{},"correlation_analysis":{},`+
		`"fundamental_analysis":{},"position_sizing_recommendation":{},"macro_context":{},`+
		`"historical_analysis":{}}`)
	fmt.Fprintf(b, "\n")
}

// num renders a float with fixed precision; prompts must not vary with
// float formatting defaults
func num(v float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

func numPtr(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return num(*v)
}

func numList(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = num(v)
	}
	return strings.Join(parts, ", ")
}
