// Package venue implements execution venues: a paper venue filling at live
// market prices and the Binance spot exchange.
package venue

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/tradeflow/internal/domain"
	"github.com/vadiminshakov/tradeflow/internal/services/execution"
)

// ErrInsufficientBalance wallet cannot cover the order.
var ErrInsufficientBalance = fmt.Errorf("%w: insufficient balance", domain.ErrOrderRejected)

// errEmptyOrder order size rounds to nothing.
var errEmptyOrder = fmt.Errorf("%w: order size must be greater than zero", domain.ErrOrderRejected)

// PriceSource live asset prices.
type PriceSource interface {
	GetAssetSnapshot(ctx context.Context, address string) (domain.AssetSnapshot, error)
}

// Paper simulated venue. Orders fill immediately at the live price moved by
// a price impact proportional to order value over pool liquidity.
type Paper struct {
	mu       sync.Mutex
	prices   PriceSource
	balances map[string]decimal.Decimal
	// tx ids by client id
	orders map[string]string
	byTx   map[string]execution.Fill
	logger *zap.Logger
}

// NewPaper creates a paper venue holding capital in the quote currency.
func NewPaper(prices PriceSource, quote string, capital decimal.Decimal, logger *zap.Logger) *Paper {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Paper{
		prices:   prices,
		balances: map[string]decimal.Decimal{strings.ToUpper(quote): capital},
		orders:   make(map[string]string),
		byTx:     make(map[string]execution.Fill),
		logger:   logger.With(zap.String("component", "paper_venue")),
	}
	p.logger.Info("paper venue init", zap.String("quote", quote), zap.String("capital", capital.String()))
	return p
}

// SetBalance overrides the wallet balance of an asset, used to restore holdings at startup.
func (p *Paper) SetBalance(asset string, amount decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.balances[strings.ToUpper(asset)] = amount
}

// Balance returns the wallet balance of an asset.
func (p *Paper) Balance(asset string) decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balances[strings.ToUpper(asset)]
}

// Ping always succeeds.
func (p *Paper) Ping(context.Context) error {
	return nil
}

// Quote prices the request against the live snapshot of the asset.
func (p *Paper) Quote(ctx context.Context, req execution.QuoteRequest) (execution.Quote, error) {
	snap, err := p.prices.GetAssetSnapshot(ctx, req.Pair.From)
	if err != nil {
		return execution.Quote{}, errors.Wrapf(err, "failed to price %s", req.Pair.String())
	}
	price := snap.PriceQuote
	if !price.IsPositive() {
		return execution.Quote{}, errors.Errorf("no price for %s", req.Pair.String())
	}

	q := execution.Quote{Request: req, Price: price}
	switch req.Side {
	case domain.ActionBuy:
		q.PriceImpact = impact(req.Amount, snap.Liquidity)
		effective := price.Mul(decimal.NewFromFloat(1 + q.PriceImpact))
		q.InAmount = req.Amount
		q.OutAmount = req.Amount.Div(effective)
	case domain.ActionSell:
		qty := req.Quantity
		if !qty.IsPositive() {
			qty = req.Amount.Div(price)
		}
		q.PriceImpact = impact(qty.Mul(price), snap.Liquidity)
		effective := price.Mul(decimal.NewFromFloat(1 - q.PriceImpact))
		q.InAmount = qty
		q.OutAmount = qty.Mul(effective)
	default:
		return execution.Quote{}, errors.Errorf("unsupported side %s", req.Side)
	}
	if !q.InAmount.IsPositive() {
		return execution.Quote{}, errEmptyOrder
	}
	return q, nil
}

// Submit books the quote against the wallet. Resubmitting a client id returns the original tx.
func (p *Paper) Submit(_ context.Context, q execution.Quote, _ string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if txID, ok := p.orders[q.Request.ClientID]; ok && q.Request.ClientID != "" {
		return txID, nil
	}

	base, quote := q.Request.Pair.From, q.Request.Pair.To
	spend, receive := quote, base
	if q.Request.Side == domain.ActionSell {
		spend, receive = base, quote
	}
	if p.balances[spend].LessThan(q.InAmount) {
		return "", errors.Wrapf(ErrInsufficientBalance, "%s %s available, %s required",
			p.balances[spend].String(), spend, q.InAmount.String())
	}
	p.balances[spend] = p.balances[spend].Sub(q.InAmount)
	p.balances[receive] = p.balances[receive].Add(q.OutAmount)

	fill := execution.Fill{Filled: true}
	if q.Request.Side == domain.ActionBuy {
		fill.Amount, fill.Quantity = q.InAmount, q.OutAmount
	} else {
		fill.Amount, fill.Quantity = q.OutAmount, q.InAmount
	}
	fill.Price = fill.Amount.Div(fill.Quantity)

	txID := "paper-" + uuid.NewString()
	p.orders[q.Request.ClientID] = txID
	p.byTx[txID] = fill

	p.logger.Info("paper order filled",
		zap.String("pair", q.Request.Pair.String()),
		zap.Stringer("side", q.Request.Side),
		zap.String("quantity", fill.Quantity.String()),
		zap.String("price", fill.Price.String()),
		zap.String("tx", txID),
	)
	return txID, nil
}

// Confirm returns the fill of a submitted order.
func (p *Paper) Confirm(_ context.Context, txID string) (execution.Fill, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fill, ok := p.byTx[txID]
	if !ok {
		return execution.Fill{}, errors.Wrapf(domain.ErrNotFound, "order %s", txID)
	}
	return fill, nil
}

// impact order value over liquidity, capped at 1. Unknown liquidity means no impact.
func impact(value, liquidity decimal.Decimal) float64 {
	if !liquidity.IsPositive() {
		return 0
	}
	f, _ := value.Div(liquidity).Float64()
	if f > 1 {
		return 1
	}
	return f
}
