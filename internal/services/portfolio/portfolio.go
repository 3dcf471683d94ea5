// Package portfolio owns open positions and the quote currency balance.
// Positions change only through confirmed fills.
package portfolio

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/tradeflow/internal/domain"
	"github.com/vadiminshakov/tradeflow/internal/metrics"
)

// PositionStore persists open positions and unconfirmed orders. Upsert is idempotent
// by asset address, SavePending by tx id.
type PositionStore interface {
	Upsert(ctx context.Context, p *domain.PortfolioPosition) error
	Delete(ctx context.Context, address string) error
	Load(ctx context.Context) ([]*domain.PortfolioPosition, error)

	SavePending(ctx context.Context, o domain.PendingOrder) error
	DeletePending(ctx context.Context, txID string) error
	LoadPending(ctx context.Context) ([]domain.PendingOrder, error)
}

// Portfolio single owner of positions; safe for concurrent use.
type Portfolio struct {
	mu        sync.RWMutex
	positions map[string]*domain.PortfolioPosition
	// pending unconfirmed orders by tx id
	pending map[string]domain.PendingOrder
	capital decimal.Decimal
	cash      decimal.Decimal

	store  PositionStore
	now    func() time.Time
	logger *zap.Logger
}

// New creates a portfolio holding capital in cash. A nil store keeps positions in memory only.
func New(capital decimal.Decimal, store PositionStore, logger *zap.Logger) *Portfolio {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Portfolio{
		positions: make(map[string]*domain.PortfolioPosition),
		pending:   make(map[string]domain.PendingOrder),
		capital:   capital,
		cash:      capital,
		store:     store,
		now:       time.Now,
		logger:    logger.With(zap.String("component", "portfolio")),
	}
}

// Restore loads persisted positions and pending orders. Cash is rebuilt from the initial
// capital, the realized profit of all recorded trades, the cost of what is still held
// and the spend reserved by pending buys.
func (p *Portfolio) Restore(ctx context.Context, realized decimal.Decimal) error {
	if p.store == nil {
		return nil
	}

	loaded, err := p.store.Load(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to load positions")
	}
	pending, err := p.store.LoadPending(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to load pending orders")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	cash := p.capital.Add(realized)
	for _, pos := range loaded {
		if pos.Closed() {
			continue
		}
		p.positions[pos.Asset.Address] = pos
		cash = cash.Sub(pos.OpenCost())
	}
	for _, o := range pending {
		p.pending[o.TxID] = o
		cash = cash.Sub(reserved(o))
	}
	p.cash = cash
	p.updateGauges()

	p.logger.Info("positions restored",
		zap.Int("count", len(p.positions)),
		zap.Int("pending", len(p.pending)),
		zap.String("cash", cash.String()),
	)
	return nil
}

// ApplyFill books a confirmed fill. Buys open or extend a position; sells reduce it and
// return the realized trade. Unconfirmed orders of the result are tracked as pending;
// results that carry no fill are otherwise ignored.
func (p *Portfolio) ApplyFill(ctx context.Context, asset domain.AssetSnapshot, d domain.TradingDecision, res domain.ExecutionResult) (*domain.Trade, error) {
	if err := p.track(ctx, res.Pending); err != nil {
		return nil, err
	}
	if !res.Filled() {
		return nil, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	defer p.updateGauges()

	return p.apply(ctx, asset, d, res)
}

func (p *Portfolio) apply(ctx context.Context, asset domain.AssetSnapshot, d domain.TradingDecision, res domain.ExecutionResult) (*domain.Trade, error) {
	switch d.Action {
	case domain.ActionBuy:
		return nil, p.applyBuy(ctx, asset, d, res)
	case domain.ActionSell:
		return p.applySell(ctx, d, res)
	default:
		return nil, errors.Errorf("cannot apply a fill for action %s", d.Action)
	}
}

func (p *Portfolio) applyBuy(ctx context.Context, asset domain.AssetSnapshot, d domain.TradingDecision, res domain.ExecutionResult) error {
	cost := res.Amount
	if !cost.IsPositive() {
		cost = res.Price.Mul(res.Quantity)
	}

	pos, ok := p.positions[d.Address]
	if ok {
		// stop-loss and ladder of the first entry are kept
		if err := pos.Add(res.Quantity, cost); err != nil {
			return errors.Wrapf(err, "failed to extend position %s", d.Address)
		}
	} else {
		if asset.Address == "" {
			asset = domain.AssetSnapshot{Address: d.Address, Symbol: d.Symbol}
		}
		var err error
		pos, err = domain.NewPosition(asset, res.Quantity, cost, p.now())
		if err != nil {
			return errors.Wrapf(err, "failed to open position %s", d.Address)
		}
		pos.StopLoss = stopLoss(d, res.Price)
		pos.TakeProfit = takeProfit(d.Params.TakeProfit, res.Price)
		pos.Strategy = d.Strategy
		pos.EntryType = res.Type
		pos.Confidence = d.Confidence
		p.positions[d.Address] = pos
	}

	p.cash = p.cash.Sub(cost)

	p.logger.Info("buy fill applied",
		zap.String("asset", d.Address),
		zap.String("quantity", res.Quantity.String()),
		zap.String("price", res.Price.String()),
		zap.String("position_quantity", pos.Quantity.String()),
		zap.String("cash", p.cash.String()),
	)

	return p.persist(ctx, pos)
}

func (p *Portfolio) applySell(ctx context.Context, d domain.TradingDecision, res domain.ExecutionResult) (*domain.Trade, error) {
	pos, ok := p.positions[d.Address]
	if !ok {
		return nil, errors.Wrapf(domain.ErrNotFound, "no open position in %s", d.Address)
	}

	unit := pos.UnitCost()
	now := p.now()
	sell, err := pos.Reduce(res.Quantity, res.Price, now, res.TxID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to reduce position %s", d.Address)
	}

	if d.Target > 0 && d.Target <= len(pos.TakeProfit) {
		pos.TakeProfit[d.Target-1].Triggered = true
	}

	proceeds := res.Amount
	if sell.Quantity.LessThan(res.Quantity) || !proceeds.IsPositive() {
		proceeds = sell.Price.Mul(sell.Quantity)
	}
	p.cash = p.cash.Add(proceeds)

	reason := d.Reason
	if reason == "" {
		reason = domain.ExitSignal
	}
	trade := &domain.Trade{
		ID:            uuid.NewString(),
		Address:       d.Address,
		Symbol:        pos.Asset.Symbol,
		EntryPrice:    unit,
		ExitPrice:     sell.Price,
		Quantity:      sell.Quantity,
		Size:          unit.Mul(sell.Quantity),
		EntryTime:     pos.EntryTime,
		ExitTime:      now,
		ProfitLoss:    sell.Price.Sub(unit).Mul(sell.Quantity),
		Strategy:      pos.Strategy,
		Confidence:    pos.Confidence,
		ExecutionType: pos.EntryType,
		ExitReason:    reason,
		TxID:          res.TxID,
	}

	p.logger.Info("sell fill applied",
		zap.String("asset", d.Address),
		zap.String("reason", reason),
		zap.String("quantity", sell.Quantity.String()),
		zap.String("price", sell.Price.String()),
		zap.String("profit_loss", trade.ProfitLoss.String()),
		zap.String("remaining", pos.Quantity.String()),
	)

	if pos.Closed() {
		delete(p.positions, d.Address)
		if p.store != nil {
			if err := p.store.Delete(ctx, d.Address); err != nil {
				return trade, errors.Wrapf(err, "failed to delete position %s", d.Address)
			}
		}
		return trade, nil
	}

	return trade, p.persist(ctx, pos)
}

// track records unconfirmed orders. Pending buys reserve their quoted spend.
func (p *Portfolio) track(ctx context.Context, orders []domain.PendingOrder) error {
	if len(orders) == 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	defer p.updateGauges()

	for _, o := range orders {
		if o.TxID == "" {
			continue
		}
		if _, ok := p.pending[o.TxID]; ok {
			continue
		}
		p.pending[o.TxID] = o
		p.cash = p.cash.Sub(reserved(o))

		p.logger.Warn("order pending confirmation",
			zap.String("asset", o.Address),
			zap.Stringer("action", o.Action),
			zap.String("tx_id", o.TxID),
		)

		if p.store != nil {
			if err := p.store.SavePending(ctx, o); err != nil {
				return errors.Wrapf(err, "failed to persist pending order %s", o.TxID)
			}
		}
	}
	return nil
}

// ResolvePending books the confirmed fill of a pending order and forgets the order.
func (p *Portfolio) ResolvePending(ctx context.Context, txID string, res domain.ExecutionResult) (*domain.Trade, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	defer p.updateGauges()

	o, ok := p.pending[txID]
	if !ok {
		return nil, errors.Wrapf(domain.ErrNotFound, "no pending order %s", txID)
	}
	delete(p.pending, txID)
	p.cash = p.cash.Add(reserved(o))

	if p.store != nil {
		if err := p.store.DeletePending(ctx, txID); err != nil {
			return nil, errors.Wrapf(err, "failed to delete pending order %s", txID)
		}
	}

	if !res.Filled() {
		return nil, nil
	}
	return p.apply(ctx, domain.AssetSnapshot{}, o.Decision(), res)
}

// Pending returns the unconfirmed orders, oldest first.
func (p *Portfolio) Pending() []domain.PendingOrder {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]domain.PendingOrder, 0, len(p.pending))
	for _, o := range p.pending {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.Before(out[j].SubmittedAt)
		}
		return out[i].TxID < out[j].TxID
	})
	return out
}

// HasPending reports whether address has an unconfirmed order.
func (p *Portfolio) HasPending(address string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, o := range p.pending {
		if o.Address == address {
			return true
		}
	}
	return false
}

func reserved(o domain.PendingOrder) decimal.Decimal {
	if o.Action == domain.ActionBuy {
		return o.Amount
	}
	return decimal.Zero
}

func (p *Portfolio) persist(ctx context.Context, pos *domain.PortfolioPosition) error {
	if p.store == nil {
		return nil
	}
	if err := p.store.Upsert(ctx, pos); err != nil {
		return errors.Wrapf(err, "failed to persist position %s", pos.Asset.Address)
	}
	return nil
}

func (p *Portfolio) updateGauges() {
	metrics.OpenPositions.Set(float64(len(p.positions)))
	cash, _ := p.cash.Float64()
	metrics.CashBalance.Set(cash)
}

func stopLoss(d domain.TradingDecision, fill decimal.Decimal) *decimal.Decimal {
	if d.StopLossPrice != nil && d.StopLossPrice.IsPositive() && d.StopLossPrice.LessThan(fill) {
		sl := *d.StopLossPrice
		return &sl
	}
	if d.Params.StopLossPct > 0 && d.Params.StopLossPct < 1 {
		sl := fill.Mul(decimal.NewFromInt(1).Sub(decimal.NewFromFloat(d.Params.StopLossPct)))
		return &sl
	}
	return nil
}

func takeProfit(levels []domain.TakeProfitLevel, fill decimal.Decimal) []domain.TakeProfitTarget {
	if len(levels) == 0 {
		return nil
	}

	targets := make([]domain.TakeProfitTarget, 0, len(levels))
	for _, l := range levels {
		targets = append(targets, domain.TakeProfitTarget{
			Price:        fill.Mul(decimal.NewFromInt(1).Add(decimal.NewFromFloat(l.Target))),
			SizeFraction: l.SizeFraction,
		})
	}
	return targets
}

// Positions returns deep copies of the open positions ordered by address.
func (p *Portfolio) Positions() []*domain.PortfolioPosition {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*domain.PortfolioPosition, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, pos.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset.Address < out[j].Asset.Address })
	return out
}

// Position returns a copy of the open position in address.
func (p *Portfolio) Position(address string) (*domain.PortfolioPosition, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	pos, ok := p.positions[address]
	if !ok {
		return nil, false
	}
	return pos.Clone(), true
}

// Count number of open positions.
func (p *Portfolio) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.positions)
}

// Cash free quote currency balance.
func (p *Portfolio) Cash() decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cash
}

// Value cash plus holdings at prices. Positions without a price are valued at cost.
func (p *Portfolio) Value(prices map[string]decimal.Decimal) decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cash.Add(p.holdings(prices))
}

// Exposure exposure of the portfolio to address.
func (p *Portfolio) Exposure(address string, prices map[string]decimal.Decimal) domain.Exposure {
	p.mu.RLock()
	defer p.mu.RUnlock()

	total := p.holdings(prices)
	exp := domain.Exposure{Total: total, PortfolioValue: p.cash.Add(total)}
	if pos, ok := p.positions[address]; ok {
		exp.Asset = value(pos, prices)
	}
	return exp
}

func (p *Portfolio) holdings(prices map[string]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, pos := range p.positions {
		total = total.Add(value(pos, prices))
	}
	return total
}

func value(pos *domain.PortfolioPosition, prices map[string]decimal.Decimal) decimal.Decimal {
	if price, ok := prices[pos.Asset.Address]; ok && price.IsPositive() {
		return pos.Value(price)
	}
	return pos.OpenCost()
}
