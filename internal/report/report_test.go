package report

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/tradeflow/internal/domain"
)

func TestPerformance(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		out := Performance(domain.PerformanceMetrics{}, nil)
		assert.Contains(t, out, "No closed trades yet.")
	})

	t.Run("with trades", func(t *testing.T) {
		m := domain.PerformanceMetrics{
			TotalTrades:     3,
			WinningTrades:   2,
			LosingTrades:    1,
			TotalProfitLoss: decimal.NewFromFloat(2.5),
			WinRate:         2.0 / 3.0,
			Assets: map[string]domain.AssetMetrics{
				"SOL": {Symbol: "SOL", TotalTrades: 2, WinRate: 1, TotalProfitLoss: decimal.NewFromInt(3)},
				"JUP": {Symbol: "JUP", TotalTrades: 1, TotalProfitLoss: decimal.NewFromFloat(-0.5)},
			},
		}
		strategies := []domain.StrategyAnalysis{
			{Strategy: "rules", TotalTrades: 3, WinRate: 2.0 / 3.0, Recommendations: []string{"keep going"}},
			{Strategy: "llm:model"},
		}

		out := Performance(m, strategies)
		assert.Contains(t, out, "3 (2 won, 1 lost)")
		assert.Contains(t, out, "2.5000")
		assert.Contains(t, out, "66.7%")
		assert.Contains(t, out, "STRATEGY RULES")
		assert.Contains(t, out, "keep going")
		assert.NotContains(t, out, "LLM:MODEL")
		assert.Less(t, strings.Index(out, "JUP"), strings.Index(out, "SOL"))
	})
}

func TestPositions(t *testing.T) {
	p, err := domain.NewPosition(domain.AssetSnapshot{Address: "SOL", Symbol: "SOL"}, decimal.NewFromInt(4), decimal.NewFromInt(400), time.Now())
	require.NoError(t, err)
	stop := decimal.NewFromInt(95)
	p.StopLoss = &stop
	p.TakeProfit = []domain.TakeProfitTarget{{Triggered: true}, {}}
	_, err = p.Reduce(decimal.NewFromInt(1), decimal.NewFromInt(130), time.Now(), "tx-1")
	require.NoError(t, err)

	out := Positions([]*domain.PortfolioPosition{p}, decimal.NewFromInt(600), "USDT")
	assert.Contains(t, out, "REALIZED")
	// (130 - 100) * 1
	assert.Contains(t, out, "30.0000")
	assert.Contains(t, out, "100.0000")
	assert.Contains(t, out, "95.0000")
	assert.Contains(t, out, "1/2")
	assert.Contains(t, out, "600.00 USDT")

	assert.Contains(t, Positions(nil, decimal.Zero, "USDT"), "No open positions.")
}

