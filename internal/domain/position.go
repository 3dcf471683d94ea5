package domain

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// PartialSell a confirmed exit fill of part of a position.
type PartialSell struct {
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Time     time.Time       `json:"time"`
	TxID     string          `json:"tx_id,omitempty"`
}

// TakeProfitTarget materialized take-profit rung of an open position.
type TakeProfitTarget struct {
	Price        decimal.Decimal `json:"price"`
	SizeFraction float64         `json:"size_fraction"`
	Triggered    bool            `json:"triggered"`
}

// PortfolioPosition open position in a single asset. Owned by the portfolio,
// changed only by confirmed fills.
type PortfolioPosition struct {
	Asset    AssetSnapshot   `json:"asset"`
	Quantity decimal.Decimal `json:"quantity"`
	// CostBasis total quote currency paid for every unit ever bought into the position.
	CostBasis    decimal.Decimal    `json:"cost_basis"`
	EntryTime    time.Time          `json:"entry_time"`
	PartialSells []PartialSell      `json:"partial_sells,omitempty"`
	StopLoss     *decimal.Decimal   `json:"stop_loss,omitempty"`
	TakeProfit   []TakeProfitTarget `json:"take_profit,omitempty"`

	// entry attribution carried into trades
	Strategy   string        `json:"strategy,omitempty"`
	EntryType  ExecutionType `json:"entry_type"`
	Confidence float64       `json:"confidence"`
}

// NewPosition opens a position from the first buy fill of quantity units that cost cost.
func NewPosition(asset AssetSnapshot, quantity, cost decimal.Decimal, at time.Time) (*PortfolioPosition, error) {
	if quantity.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("position quantity must be greater than zero")
	}
	if cost.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("position cost must be greater than zero")
	}

	return &PortfolioPosition{
		Asset:     asset,
		Quantity:  quantity,
		CostBasis: cost,
		EntryTime: at,
	}, nil
}

// Add extends the position with another buy fill.
func (p *PortfolioPosition) Add(quantity, cost decimal.Decimal) error {
	if quantity.LessThanOrEqual(decimal.Zero) || cost.LessThanOrEqual(decimal.Zero) {
		return errors.New("fill quantity and cost must be greater than zero")
	}
	p.Quantity = p.Quantity.Add(quantity)
	p.CostBasis = p.CostBasis.Add(cost)
	return nil
}

// Reduce books an exit fill. Quantity above the held amount is capped.
// Cost basis is left unchanged.
func (p *PortfolioPosition) Reduce(quantity, price decimal.Decimal, at time.Time, txID string) (PartialSell, error) {
	if quantity.LessThanOrEqual(decimal.Zero) || price.LessThanOrEqual(decimal.Zero) {
		return PartialSell{}, errors.New("fill quantity and price must be greater than zero")
	}
	if quantity.GreaterThan(p.Quantity) {
		quantity = p.Quantity
	}

	sell := PartialSell{Quantity: quantity, Price: price, Time: at, TxID: txID}
	p.Quantity = p.Quantity.Sub(quantity)
	p.PartialSells = append(p.PartialSells, sell)
	return sell, nil
}

// Closed reports whether nothing is left to sell.
func (p *PortfolioPosition) Closed() bool {
	return !p.Quantity.IsPositive()
}

// SoldQuantity total quantity sold so far.
func (p *PortfolioPosition) SoldQuantity() decimal.Decimal {
	sold := decimal.Zero
	for _, s := range p.PartialSells {
		sold = sold.Add(s.Quantity)
	}
	return sold
}

// UnitCost average cost of one unit.
func (p *PortfolioPosition) UnitCost() decimal.Decimal {
	bought := p.Quantity.Add(p.SoldQuantity())
	if bought.IsZero() {
		return decimal.Zero
	}
	return p.CostBasis.Div(bought)
}

// RealizedPnL profit of all partial sells against the unit cost.
func (p *PortfolioPosition) RealizedPnL() decimal.Decimal {
	unit := p.UnitCost()
	pnl := decimal.Zero
	for _, s := range p.PartialSells {
		pnl = pnl.Add(s.Price.Sub(unit).Mul(s.Quantity))
	}
	return pnl
}

// UnrealizedPnL profit of the held quantity at the given price.
func (p *PortfolioPosition) UnrealizedPnL(price decimal.Decimal) decimal.Decimal {
	return price.Sub(p.UnitCost()).Mul(p.Quantity)
}

// Value market value of the held quantity.
func (p *PortfolioPosition) Value(price decimal.Decimal) decimal.Decimal {
	return price.Mul(p.Quantity)
}

// OpenCost cost of the held quantity at unit cost.
func (p *PortfolioPosition) OpenCost() decimal.Decimal {
	return p.UnitCost().Mul(p.Quantity)
}

// StopLossHit reports whether price is at or below the stop-loss.
func (p *PortfolioPosition) StopLossHit(price decimal.Decimal) bool {
	return p.StopLoss != nil && price.LessThanOrEqual(*p.StopLoss)
}

// Clone returns a deep copy.
func (p *PortfolioPosition) Clone() *PortfolioPosition {
	c := *p
	if p.StopLoss != nil {
		sl := *p.StopLoss
		c.StopLoss = &sl
	}
	c.PartialSells = append([]PartialSell(nil), p.PartialSells...)
	c.TakeProfit = append([]TakeProfitTarget(nil), p.TakeProfit...)
	return &c
}
