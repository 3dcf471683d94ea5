package performance

import (
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/tradeflow/internal/domain"
)

// minWinRate win rate below which a strategy is flagged.
const minWinRate = 0.5

// AnalyzeStrategy summarizes the trades of one strategy and suggests adjustments.
// Unknown strategies yield an empty analysis.
func (a *Analyzer) AnalyzeStrategy(name string) domain.StrategyAnalysis {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var trades []domain.Trade
	for _, t := range a.trades {
		if t.Strategy == name {
			trades = append(trades, t)
		}
	}

	out := domain.StrategyAnalysis{Strategy: name, TotalTrades: len(trades), TotalProfitLoss: decimal.Zero}
	if len(trades) == 0 {
		return out
	}

	wins := 0
	confidence := 0.0
	for _, t := range trades {
		if t.ProfitLoss.IsPositive() {
			wins++
		}
		out.TotalProfitLoss = out.TotalProfitLoss.Add(t.ProfitLoss)
		confidence += t.Confidence
	}
	out.WinRate = float64(wins) / float64(len(trades))
	out.AverageConfidence = confidence / float64(len(trades))
	out.Recommendations = recommendations(trades, out.WinRate, out.AverageConfidence)

	return out
}

func recommendations(trades []domain.Trade, winRate, avgConfidence float64) []string {
	var out []string

	if winRate < minWinRate {
		out = append(out, "Consider increasing the minimum confidence threshold for trade execution")
	}

	highConfidence := winRateOf(trades, func(t domain.Trade) bool { return t.Confidence > avgConfidence })
	if highConfidence.total > 0 && highConfidence.rate() > winRate {
		out = append(out, "Strategy performs better on higher confidence trades, consider raising the confidence threshold")
	}

	market := winRateOf(trades, func(t domain.Trade) bool { return t.ExecutionType == domain.ExecutionMarket })
	limit := winRateOf(trades, func(t domain.Trade) bool { return t.ExecutionType == domain.ExecutionLimit })
	if market.total > 0 && limit.total > 0 && limit.rate() > market.rate() {
		out = append(out, "Limit orders show better performance, consider using them more often")
	}

	return out
}

type tally struct {
	wins, total int
}

func (t tally) rate() float64 {
	if t.total == 0 {
		return 0
	}
	return float64(t.wins) / float64(t.total)
}

func winRateOf(trades []domain.Trade, match func(domain.Trade) bool) tally {
	var t tally
	for _, tr := range trades {
		if !match(tr) {
			continue
		}
		t.total++
		if tr.ProfitLoss.IsPositive() {
			t.wins++
		}
	}
	return t
}
