package performance

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/tradeflow/internal/domain"
)

type memJournal struct {
	trades []domain.Trade
	err    error
}

func (j *memJournal) Append(_ context.Context, t domain.Trade) error {
	if j.err != nil {
		return j.err
	}
	j.trades = append(j.trades, t)
	return nil
}

func (j *memJournal) Load(_ context.Context) ([]domain.Trade, error) {
	return append([]domain.Trade(nil), j.trades...), nil
}

func trade(symbol string, pnl float64) domain.Trade {
	entry := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return domain.Trade{
		ID:            symbol,
		Symbol:        symbol,
		ProfitLoss:    decimal.NewFromFloat(pnl),
		Size:          decimal.NewFromInt(10),
		EntryTime:     entry,
		ExitTime:      entry.Add(4 * time.Hour),
		Strategy:      "rules",
		ExecutionType: domain.ExecutionMarket,
	}
}

func TestRecord_Aggregates(t *testing.T) {
	a := NewAnalyzer(decimal.NewFromInt(10), nil, zap.NewNop())
	for _, pnl := range []float64{1, -0.5, 2} {
		require.NoError(t, a.Record(context.Background(), trade("SOL", pnl)))
	}

	m := a.Metrics()
	assert.Equal(t, 3, m.TotalTrades)
	assert.Equal(t, 2, m.WinningTrades)
	assert.Equal(t, 1, m.LosingTrades)
	assert.InDelta(t, 2.0/3, m.WinRate, 1e-12)
	assert.True(t, m.TotalProfitLoss.Equal(decimal.NewFromFloat(2.5)), m.TotalProfitLoss.String())
	assert.InDelta(t, 2.5/3, m.AverageReturn, 1e-12)

	mean := 2.5 / 3
	std := math.Sqrt((math.Pow(1-mean, 2) + math.Pow(-0.5-mean, 2) + math.Pow(2-mean, 2)) / 3)
	assert.InDelta(t, (mean-RiskFreeRate)/std, m.SharpeRatio, 1e-9)

	// equity 10 -> 11 -> 10.5 -> 12.5
	assert.InDelta(t, 0.5/11, m.MaxDrawdown, 1e-9)
	assert.InDelta(t, 0, m.CurrentDrawdown, 1e-12)
	assert.InDelta(t, 2.5/(0.5/11), m.RiskAdjustedReturn, 1e-6)

	sol := m.Assets["SOL"]
	assert.Equal(t, 3, sol.TotalTrades)
	assert.Equal(t, 2, sol.ProfitableTrades)
	assert.True(t, sol.BestTrade.Equal(decimal.NewFromInt(2)))
	assert.True(t, sol.WorstTrade.Equal(decimal.NewFromFloat(-0.5)))
	assert.InDelta(t, 4, sol.AverageHoldHours, 1e-9)
}

func TestRecord_CurrentDrawdown(t *testing.T) {
	a := NewAnalyzer(decimal.NewFromInt(100), nil, zap.NewNop())
	require.NoError(t, a.Record(context.Background(), trade("SOL", 20)))
	require.NoError(t, a.Record(context.Background(), trade("SOL", -30)))

	m := a.Metrics()
	assert.InDelta(t, 0.25, m.MaxDrawdown, 1e-12)
	assert.InDelta(t, 0.25, m.CurrentDrawdown, 1e-12)
}

func TestMetrics_EmptyAndConstant(t *testing.T) {
	a := NewAnalyzer(decimal.NewFromInt(10), nil, zap.NewNop())
	m := a.Metrics()
	assert.Equal(t, 0, m.TotalTrades)
	assert.Equal(t, 0.0, m.SharpeRatio)

	require.NoError(t, a.Record(context.Background(), trade("SOL", 1)))
	require.NoError(t, a.Record(context.Background(), trade("SOL", 1)))
	assert.Equal(t, 0.0, a.Metrics().SharpeRatio, "zero stddev gives zero sharpe")
}

func TestMetrics_ReturnsCopy(t *testing.T) {
	a := NewAnalyzer(decimal.NewFromInt(10), nil, zap.NewNop())
	require.NoError(t, a.Record(context.Background(), trade("SOL", 1)))

	m := a.Metrics()
	delete(m.Assets, "SOL")
	assert.Contains(t, a.Metrics().Assets, "SOL")
}

func TestRecord_JournalAndRestore(t *testing.T) {
	j := &memJournal{}
	a := NewAnalyzer(decimal.NewFromInt(10), j, zap.NewNop())
	require.NoError(t, a.Record(context.Background(), trade("SOL", 1)))
	require.NoError(t, a.Record(context.Background(), trade("BTC", -0.5)))
	require.Len(t, j.trades, 2)

	restored := NewAnalyzer(decimal.NewFromInt(10), j, zap.NewNop())
	require.NoError(t, restored.Restore(context.Background()))
	want, got := a.Metrics(), restored.Metrics()
	assert.Equal(t, want.TotalTrades, got.TotalTrades)
	assert.Equal(t, want.WinRate, got.WinRate)
	assert.True(t, want.TotalProfitLoss.Equal(got.TotalProfitLoss))
	assert.Len(t, got.Assets, 2)
	assert.Len(t, restored.Trades(), 2)
}

func TestRecord_JournalFailureKeepsTrade(t *testing.T) {
	a := NewAnalyzer(decimal.NewFromInt(10), &memJournal{err: errors.New("disk full")}, zap.NewNop())
	err := a.Record(context.Background(), trade("SOL", 1))
	require.Error(t, err)
	assert.Equal(t, 1, a.Metrics().TotalTrades)
}

func TestAnalyzeStrategy(t *testing.T) {
	a := NewAnalyzer(decimal.NewFromInt(100), nil, zap.NewNop())

	add := func(pnl, confidence float64, typ domain.ExecutionType) {
		tr := trade("SOL", pnl)
		tr.Confidence = confidence
		tr.ExecutionType = typ
		require.NoError(t, a.Record(context.Background(), tr))
	}
	add(-1, 0.6, domain.ExecutionMarket)
	add(-1, 0.6, domain.ExecutionMarket)
	add(2, 0.9, domain.ExecutionLimit)

	got := a.AnalyzeStrategy("rules")
	assert.Equal(t, 3, got.TotalTrades)
	assert.InDelta(t, 1.0/3, got.WinRate, 1e-12)
	assert.InDelta(t, 0.7, got.AverageConfidence, 1e-12)
	assert.True(t, got.TotalProfitLoss.IsZero())
	assert.Len(t, got.Recommendations, 3)

	empty := a.AnalyzeStrategy("llm")
	assert.Equal(t, 0, empty.TotalTrades)
	assert.Empty(t, empty.Recommendations)
}
