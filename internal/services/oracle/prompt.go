package oracle

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// SystemPrompt instructions of the trading LLM.
const SystemPrompt = `You are a cryptocurrency spot trading analyst. You evaluate one asset at a time and
return a structured verdict. The trading system decides buy, sell or hold from your verdict together with
its own technical and risk analysis, so be calibrated rather than eager.

## OUTPUT FORMAT

Respond with ONLY valid JSON. No markdown, no code blocks, no additional text.

{
  "confidence": 0.0,
  "reasoning": "explain your analysis",
  "market_analysis": {
    "momentum_indicators": {
      "overall_momentum": "strong_buy|buy|neutral|sell|strong_sell"
    },
    "liquidity_assessment": {
      "liquidity_score": 0.0
    },
    "on_chain_metrics": {
      "smart_money_flow": "inflow|outflow|neutral"
    }
  },
  "execution_strategy": {
    "entry_type": "market|limit|staged",
    "stop_loss_pct": 0.0,
    "max_slippage": 0.0,
    "take_profit_levels": [{"price_target": 0.0, "size_pct": 0.0}],
    "dca_strategy": {"should_dca": false, "interval_hours": 0, "num_entries": 0}
  }
}

## FIELD RULES

- confidence: 0.0-1.0, how sure you are of the momentum call.
- liquidity_score: 0.0-1.0, whether the asset can be entered and exited with under 2% slippage.
- stop_loss_pct, max_slippage: fractions, e.g. 0.08 for 8%.
- take_profit_levels: price_target is the fractional gain over entry (0.1 for +10%),
  size_pct the fraction of the remaining position to sell at that target.
- execution_strategy is optional; omit it when you have no view on execution.

## CRITERIA

1. Volume should show a significant, sustainable increase.
2. Price action should show a clear trend with identifiable support and resistance.
3. Momentum indicators should align with the overall trend.
4. Risk to reward should be at least 1:3 for any buy.

When in doubt, answer neutral with low confidence.`

// BuildUserPrompt formats the asset context for the LLM.
func BuildUserPrompt(ac AssetContext) string {
	var sb strings.Builder
	a := ac.Asset

	fmt.Fprintf(&sb, "# Analysis request for %s (%s)\n\n", a.Symbol, a.Address)

	sb.WriteString("## Market Data\n\n")
	fmt.Fprintf(&sb, "**Price (%s):** %s\n", ac.Quote, a.PriceQuote.String())
	fmt.Fprintf(&sb, "**24h Volume:** %s\n", a.Volume24h.StringFixed(2))
	fmt.Fprintf(&sb, "**Liquidity:** %s\n", a.Liquidity.StringFixed(2))
	if a.MarketCap.IsPositive() {
		fmt.Fprintf(&sb, "**Market Cap:** %s\n", a.MarketCap.StringFixed(2))
	}
	fmt.Fprintf(&sb, "**Change:** 1h %.2f%% | 24h %.2f%% | 7d %.2f%%\n", a.PriceChange1h, a.PriceChange24h, a.PriceChange7d)
	if a.Holders > 0 {
		fmt.Fprintf(&sb, "**Holders:** %d (top concentration %.2f)\n", a.Holders, a.HolderConcentration)
	}
	if a.SocialScore != nil {
		fmt.Fprintf(&sb, "**Social Score:** %.2f\n", *a.SocialScore)
	}
	sb.WriteString("\n")

	s := ac.Signals
	sb.WriteString("## Technical Signals\n\n")
	fmt.Fprintf(&sb, "**Trend:** %s (strength %.2f)\n", s.Trend, s.TrendStrength)
	fmt.Fprintf(&sb, "**RSI:** %s | **MACD:** %s\n", s.RSI, s.MACD)
	fmt.Fprintf(&sb, "**Volatility:** %.4f\n", s.Volatility)
	fmt.Fprintf(&sb, "**Support:** %s\n", formatLevels(s.Support))
	fmt.Fprintf(&sb, "**Resistance:** %s\n\n", formatLevels(s.Resistance))

	m := ac.Market
	sb.WriteString("## Market Context\n\n")
	fmt.Fprintf(&sb, "**Market Trend:** %s | **Breadth:** %.2f\n", m.Trend, m.SectorPerformance)
	fmt.Fprintf(&sb, "**Liquidity Score:** %.2f | **Volume Profile:** %s | **Sentiment:** %.2f\n\n",
		m.LiquidityScore, m.VolumeProfile, m.Sentiment)

	r := ac.Risk
	sb.WriteString("## Risk\n\n")
	fmt.Fprintf(&sb, "**Score:** %.2f (volatility %s, market %s)\n", r.Score, r.VolatilityRating, r.MarketRiskLevel)
	if len(r.Factors) > 0 {
		fmt.Fprintf(&sb, "**Factors:** %s\n", strings.Join(r.Factors, "; "))
	}
	sb.WriteString("\n")

	sb.WriteString("## Current Position\n\n")
	if p := ac.Position; p != nil {
		fmt.Fprintf(&sb, "**Quantity:** %s\n", p.Quantity.String())
		fmt.Fprintf(&sb, "**Average Cost:** %s\n", p.UnitCost().String())
		fmt.Fprintf(&sb, "**Unrealized P&L:** %s\n", p.UnrealizedPnL(a.PriceQuote).StringFixed(2))
		fmt.Fprintf(&sb, "**Entry Time:** %s\n\n", p.EntryTime.Format("2006-01-02 15:04"))
	} else {
		sb.WriteString("**Status:** No open position\n\n")
	}

	sb.WriteString("## Account Information\n\n")
	fmt.Fprintf(&sb, "**Available Balance (%s):** %s\n\n", ac.Quote, ac.Balance.StringFixed(2))

	sb.WriteString("## Instructions\n\n")
	sb.WriteString("Evaluate the opportunity and respond with the verdict JSON.\n")

	return sb.String()
}

func formatLevels(levels []float64) string {
	if len(levels) == 0 {
		return "none"
	}
	parts := make([]string, len(levels))
	for i, l := range levels {
		parts[i] = decimal.NewFromFloat(l).String()
	}
	return strings.Join(parts, ", ")
}
