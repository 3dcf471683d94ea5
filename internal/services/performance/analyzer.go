// Package performance keeps the trade log and derives aggregate trading metrics from it.
package performance

import (
	"context"
	"math"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/tradeflow/internal/domain"
	"github.com/vadiminshakov/tradeflow/internal/metrics"
)

// RiskFreeRate per-trade risk-free rate used in the Sharpe ratio.
const RiskFreeRate = 0.02

// TradeJournal persists recorded trades.
type TradeJournal interface {
	Append(ctx context.Context, trade domain.Trade) error
	Load(ctx context.Context) ([]domain.Trade, error)
}

// Analyzer append-only trade log. Metrics are recomputed from the whole log on every record.
type Analyzer struct {
	mu      sync.RWMutex
	capital decimal.Decimal
	trades  []domain.Trade
	metrics domain.PerformanceMetrics
	journal TradeJournal
	logger  *zap.Logger
}

// NewAnalyzer creates an analyzer for an account that started with capital. journal may be nil.
func NewAnalyzer(capital decimal.Decimal, journal TradeJournal, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{
		capital: capital,
		metrics: compute(capital, nil),
		journal: journal,
		logger:  logger.With(zap.String("component", "performance")),
	}
}

// Restore replays the journal into the log.
func (a *Analyzer) Restore(ctx context.Context) error {
	if a.journal == nil {
		return nil
	}

	trades, err := a.journal.Load(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to load trade journal")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.trades = append(a.trades[:0], trades...)
	a.metrics = compute(a.capital, a.trades)
	a.publish()

	a.logger.Info("trade log restored", zap.Int("trades", len(a.trades)))
	return nil
}

// Record journals a completed trade, appends it to the log and recomputes metrics.
// The trade is kept in memory even when the journal fails.
func (a *Analyzer) Record(ctx context.Context, trade domain.Trade) error {
	var journalErr error
	if a.journal != nil {
		if err := a.journal.Append(ctx, trade); err != nil {
			journalErr = errors.Wrapf(err, "failed to journal trade %s", trade.ID)
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.trades = append(a.trades, trade)
	a.metrics = compute(a.capital, a.trades)
	a.publish()

	a.logger.Info("trade recorded",
		zap.String("trade_id", trade.ID),
		zap.String("symbol", trade.Symbol),
		zap.String("profit_loss", trade.ProfitLoss.String()),
		zap.Float64("win_rate", a.metrics.WinRate),
		zap.String("total_profit_loss", a.metrics.TotalProfitLoss.String()),
	)

	return journalErr
}

// Metrics returns a copy of the current metrics.
func (a *Analyzer) Metrics() domain.PerformanceMetrics {
	a.mu.RLock()
	defer a.mu.RUnlock()

	m := a.metrics
	m.Assets = make(map[string]domain.AssetMetrics, len(a.metrics.Assets))
	for k, v := range a.metrics.Assets {
		m.Assets[k] = v
	}
	return m
}

// Trades returns a copy of the trade log.
func (a *Analyzer) Trades() []domain.Trade {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]domain.Trade(nil), a.trades...)
}

func (a *Analyzer) publish() {
	total, _ := a.metrics.TotalProfitLoss.Float64()
	metrics.TotalProfitLoss.Set(total)
	metrics.WinRate.Set(a.metrics.WinRate)
}

func compute(capital decimal.Decimal, trades []domain.Trade) domain.PerformanceMetrics {
	m := domain.PerformanceMetrics{
		TotalProfitLoss: decimal.Zero,
		Assets:          make(map[string]domain.AssetMetrics),
	}
	if len(trades) == 0 {
		return m
	}

	pnl := make([]float64, 0, len(trades))
	holdHours := make(map[string]float64)

	for _, t := range trades {
		m.TotalTrades++
		win := t.ProfitLoss.IsPositive()
		if win {
			m.WinningTrades++
		} else {
			m.LosingTrades++
		}
		m.TotalProfitLoss = m.TotalProfitLoss.Add(t.ProfitLoss)

		f, _ := t.ProfitLoss.Float64()
		pnl = append(pnl, f)

		key := t.Symbol
		if key == "" {
			key = t.Address
		}
		am, ok := m.Assets[key]
		if !ok {
			am = domain.AssetMetrics{Symbol: key, TotalProfitLoss: decimal.Zero, BestTrade: t.ProfitLoss, WorstTrade: t.ProfitLoss}
		}
		am.TotalTrades++
		if win {
			am.ProfitableTrades++
		}
		am.TotalProfitLoss = am.TotalProfitLoss.Add(t.ProfitLoss)
		am.BestTrade = decimal.Max(am.BestTrade, t.ProfitLoss)
		am.WorstTrade = decimal.Min(am.WorstTrade, t.ProfitLoss)
		am.WinRate = float64(am.ProfitableTrades) / float64(am.TotalTrades)
		holdHours[key] += t.HoldDuration().Hours()
		am.AverageHoldHours = holdHours[key] / float64(am.TotalTrades)
		m.Assets[key] = am
	}

	n := float64(m.TotalTrades)
	m.WinRate = float64(m.WinningTrades) / n
	total, _ := m.TotalProfitLoss.Float64()
	m.AverageReturn = total / n
	m.SharpeRatio = sharpe(pnl)
	m.MaxDrawdown, m.CurrentDrawdown = drawdown(capital, trades)

	m.RiskAdjustedReturn = total
	if m.MaxDrawdown > 0 {
		m.RiskAdjustedReturn = total / m.MaxDrawdown
	}

	return m
}

func sharpe(pnl []float64) float64 {
	if len(pnl) == 0 {
		return 0
	}

	var mean float64
	for _, v := range pnl {
		mean += v
	}
	mean /= float64(len(pnl))

	var variance float64
	for _, v := range pnl {
		variance += (v - mean) * (v - mean)
	}
	std := math.Sqrt(variance / float64(len(pnl)))
	if std == 0 {
		return 0
	}
	return (mean - RiskFreeRate) / std
}

// drawdown replays the log against a running equity peak.
func drawdown(capital decimal.Decimal, trades []domain.Trade) (maxDD, current float64) {
	equity, peak := capital, capital
	for _, t := range trades {
		equity = equity.Add(t.ProfitLoss)
		if equity.GreaterThan(peak) {
			peak = equity
		}
		if peak.IsPositive() {
			dd, _ := peak.Sub(equity).Div(peak).Float64()
			maxDD = math.Max(maxDD, dd)
		}
	}
	if peak.IsPositive() {
		current, _ = peak.Sub(equity).Div(peak).Float64()
	}
	return maxDD, current
}
