// Package monitor watches open positions for stop-loss and take-profit exits.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/tradeflow/internal/domain"
	"github.com/vadiminshakov/tradeflow/internal/metrics"
)

type (
	// PriceSource provides the current asset price.
	PriceSource interface {
		GetAssetSnapshot(ctx context.Context, address string) (domain.AssetSnapshot, error)
	}

	Executor interface {
		Execute(ctx context.Context, d domain.TradingDecision) (domain.ExecutionResult, error)
		Reconcile(ctx context.Context, o domain.PendingOrder) (domain.ExecutionResult, bool, error)
	}

	// Book is the position owner exits are booked into.
	Book interface {
		Positions() []*domain.PortfolioPosition
		Position(address string) (*domain.PortfolioPosition, bool)
		ApplyFill(ctx context.Context, asset domain.AssetSnapshot, d domain.TradingDecision, res domain.ExecutionResult) (*domain.Trade, error)
		Pending() []domain.PendingOrder
		HasPending(address string) bool
		ResolvePending(ctx context.Context, txID string, res domain.ExecutionResult) (*domain.Trade, error)
	}

	Recorder interface {
		Record(ctx context.Context, trade domain.Trade) error
	}

	Publisher interface {
		Publish(text string)
	}
)

// Monitor evaluates exit conditions once per cycle.
type Monitor struct {
	prices      PriceSource
	executor    Executor
	book        Book
	recorder    Recorder
	publisher   Publisher
	maxSlippage float64
	logger      *zap.Logger
}

// New creates a position monitor. recorder and publisher may be nil.
func New(prices PriceSource, executor Executor, book Book, recorder Recorder, publisher Publisher, maxSlippage float64, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		prices:      prices,
		executor:    executor,
		book:        book,
		recorder:    recorder,
		publisher:   publisher,
		maxSlippage: maxSlippage,
		logger:      logger.With(zap.String("component", "monitor")),
	}
}

// Evaluate settles pending orders, then checks every open position against the current
// price and executes due exits. Positions with an unconfirmed order are left alone.
// Failures are logged per position; a failed exit is retried on the next call.
func (m *Monitor) Evaluate(ctx context.Context) ([]domain.Trade, error) {
	trades := m.Reconcile(ctx)

	for _, pos := range m.book.Positions() {
		if err := ctx.Err(); err != nil {
			return trades, err
		}
		if m.book.HasPending(pos.Asset.Address) {
			m.logger.Debug("position has an unconfirmed order, skipping", zap.String("asset", pos.Asset.Address))
			continue
		}

		snap, err := m.prices.GetAssetSnapshot(ctx, pos.Asset.Address)
		if err != nil {
			m.logger.Warn("failed to get price for open position", zap.String("asset", pos.Asset.Address), zap.Error(err))
			continue
		}
		price := snap.PriceQuote
		if !price.IsPositive() {
			continue
		}

		if pos.StopLossHit(price) {
			m.logger.Info("stop loss triggered",
				zap.String("asset", pos.Asset.Address),
				zap.String("price", price.String()),
				zap.String("stop_loss", pos.StopLoss.String()),
			)
			if trade, ok := m.exit(ctx, pos, pos.Quantity, domain.ExitStopLoss, 0, "stop loss triggered"); ok {
				trades = append(trades, trade)
			}
			continue
		}

		trades = append(trades, m.takeProfits(ctx, pos, price)...)
	}

	return trades, nil
}

// Reconcile polls the venue for every pending order and books those it confirms.
// It returns the trades realized by confirmed sells.
func (m *Monitor) Reconcile(ctx context.Context) []domain.Trade {
	var trades []domain.Trade

	for _, o := range m.book.Pending() {
		if ctx.Err() != nil {
			return trades
		}

		res, ok, err := m.executor.Reconcile(ctx, o)
		if err != nil {
			m.logger.Warn("failed to poll pending order", zap.String("asset", o.Address), zap.String("tx_id", o.TxID), zap.Error(err))
			continue
		}
		if !ok {
			m.logger.Warn("order still pending confirmation",
				zap.String("asset", o.Address),
				zap.String("tx_id", o.TxID),
				zap.Duration("age", time.Since(o.SubmittedAt).Round(time.Second)),
			)
			continue
		}

		trade, err := m.book.ResolvePending(ctx, o.TxID, res)
		if err != nil {
			m.logger.Error("failed to book confirmed order", zap.String("asset", o.Address), zap.String("tx_id", o.TxID), zap.Error(err))
		}
		if trade != nil {
			m.settle(ctx, *trade)
			trades = append(trades, *trade)
			continue
		}
		if o.Action == domain.ActionBuy && res.Filled() && m.publisher != nil {
			m.publisher.Publish(fmt.Sprintf("BUY %s: %s @ %s (%s, confirmed late)",
				o.Symbol, res.Quantity.String(), res.Price.String(), res.Type))
		}
	}

	return trades
}

func (m *Monitor) takeProfits(ctx context.Context, pos *domain.PortfolioPosition, price decimal.Decimal) []domain.Trade {
	var trades []domain.Trade

	for i := range pos.TakeProfit {
		target := pos.TakeProfit[i]
		if target.Triggered || price.LessThan(target.Price) {
			continue
		}

		qty := pos.Quantity.Mul(decimal.NewFromFloat(target.SizeFraction))
		if !qty.IsPositive() {
			continue
		}

		m.logger.Info("take profit triggered",
			zap.String("asset", pos.Asset.Address),
			zap.Int("target", i+1),
			zap.String("target_price", target.Price.String()),
			zap.String("price", price.String()),
			zap.String("quantity", qty.String()),
		)

		trade, ok := m.exit(ctx, pos, qty, domain.ExitTakeProfit, i+1, fmt.Sprintf("take profit %d reached", i+1))
		if !ok {
			return trades
		}
		trades = append(trades, trade)

		// later rungs size off the remaining quantity
		current, open := m.book.Position(pos.Asset.Address)
		if !open {
			return trades
		}
		pos = current
	}

	return trades
}

func (m *Monitor) exit(ctx context.Context, pos *domain.PortfolioPosition, qty decimal.Decimal, reason string, target int, reasoning string) (domain.Trade, bool) {
	d := domain.TradingDecision{
		ID:         uuid.NewString(),
		Address:    pos.Asset.Address,
		Symbol:     pos.Asset.Symbol,
		Action:     domain.ActionSell,
		Quantity:   qty,
		Confidence: 1,
		RiskScore:  0,
		Reasoning:  reasoning,
		Params: domain.ExecutionParams{
			EntryType:   domain.EntryMarket,
			MaxSlippage: m.maxSlippage,
		},
		Strategy:  pos.Strategy,
		Reason:    reason,
		Target:    target,
		CreatedAt: time.Now(),
	}

	res, err := m.executor.Execute(ctx, d)
	if err != nil {
		m.logger.Error("exit execution failed", zap.String("asset", d.Address), zap.String("reason", reason), zap.Error(err))
		return domain.Trade{}, false
	}

	trade, err := m.book.ApplyFill(ctx, pos.Asset, d, res)
	if err != nil {
		m.logger.Error("failed to book exit fill", zap.String("asset", d.Address), zap.Error(err))
	}
	if trade == nil {
		switch {
		case len(res.Pending) > 0:
			m.logger.Warn("exit pending confirmation", zap.String("asset", d.Address), zap.String("reason", reason), zap.String("tx_id", res.TxID))
		case !res.Filled():
			m.logger.Warn("exit not filled", zap.String("asset", d.Address), zap.Stringer("status", res.Status), zap.String("tx_id", res.TxID))
		}
		return domain.Trade{}, false
	}

	m.settle(ctx, *trade)
	return *trade, true
}

// settle counts, records and announces a realized exit.
func (m *Monitor) settle(ctx context.Context, trade domain.Trade) {
	metrics.ExitsTotal.WithLabelValues(trade.ExitReason).Inc()

	if m.recorder != nil {
		if err := m.recorder.Record(ctx, trade); err != nil {
			m.logger.Error("failed to record trade", zap.String("trade_id", trade.ID), zap.Error(err))
		}
	}
	if m.publisher != nil {
		m.publisher.Publish(trade.String())
	}
}

// Close exits the whole position in address on a sell signal. Positions with an
// unconfirmed order are not touched.
func (m *Monitor) Close(ctx context.Context, address, reasoning string) (domain.Trade, bool) {
	pos, ok := m.book.Position(address)
	if !ok || m.book.HasPending(address) {
		return domain.Trade{}, false
	}
	return m.exit(ctx, pos, pos.Quantity, domain.ExitSignal, 0, reasoning)
}
