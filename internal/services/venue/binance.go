package venue

import (
	"context"
	"fmt"
	"strings"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/tradeflow/internal/domain"
	"github.com/vadiminshakov/tradeflow/internal/services/execution"
)

const (
	bookDepth = 100
	// binanceOrderNotFound API error code for unknown orders.
	binanceOrderNotFound = -2013
	defaultPrecision     = 4
	txSeparator          = ":"
)

// ErrThinBook order book cannot absorb the order.
var ErrThinBook = fmt.Errorf("%w: order book too thin", domain.ErrOrderRejected)

// Binance spot venue. Quotes walk the order book, orders are market orders
// keyed by client order id.
type Binance struct {
	client    *binance.Client
	precision int32
	logger    *zap.Logger
}

// NewBinance creates a Binance venue. Sell quantities are floored to precision decimals.
func NewBinance(client *binance.Client, precision int32, logger *zap.Logger) *Binance {
	if logger == nil {
		logger = zap.NewNop()
	}
	if precision <= 0 {
		precision = defaultPrecision
	}
	return &Binance{client: client, precision: precision, logger: logger.With(zap.String("component", "binance_venue"))}
}

// Ping checks connectivity to the API.
func (b *Binance) Ping(ctx context.Context) error {
	return b.client.NewPingService().Do(ctx)
}

// Quote walks the order book side the order would consume.
func (b *Binance) Quote(ctx context.Context, req execution.QuoteRequest) (execution.Quote, error) {
	depth, err := b.client.NewDepthService().Symbol(req.Pair.Symbol()).Limit(bookDepth).Do(ctx)
	if err != nil {
		return execution.Quote{}, errors.Wrapf(err, "failed to fetch order book of %s", req.Pair.Symbol())
	}

	q := execution.Quote{Request: req}
	switch req.Side {
	case domain.ActionBuy:
		asks := make([]bookLevel, 0, len(depth.Asks))
		for _, a := range depth.Asks {
			asks = append(asks, bookLevel{price: a.Price, quantity: a.Quantity})
		}
		fill, err := walkBook(asks, req.Amount, true)
		if err != nil {
			return execution.Quote{}, errors.Wrapf(err, "buy %s %s", req.Amount.String(), req.Pair.Symbol())
		}
		q.Price, q.PriceImpact = fill.best, fill.impact()
		q.InAmount, q.OutAmount = fill.amount, fill.quantity
	case domain.ActionSell:
		bids := make([]bookLevel, 0, len(depth.Bids))
		for _, l := range depth.Bids {
			bids = append(bids, bookLevel{price: l.Price, quantity: l.Quantity})
		}
		qty := req.Quantity
		if !qty.IsPositive() {
			best, err := bestPrice(bids)
			if err != nil {
				return execution.Quote{}, err
			}
			qty = req.Amount.Div(best)
		}
		qty = qty.RoundFloor(b.precision)
		fill, err := walkBook(bids, qty, false)
		if err != nil {
			return execution.Quote{}, errors.Wrapf(err, "sell %s %s", qty.String(), req.Pair.Symbol())
		}
		q.Price, q.PriceImpact = fill.best, fill.impact()
		q.InAmount, q.OutAmount = fill.quantity, fill.amount
	default:
		return execution.Quote{}, errors.Errorf("unsupported side %s", req.Side)
	}
	return q, nil
}

// Submit places a market order. Buys spend the quote amount, sells the base quantity.
// The returned tx id encodes the symbol and the client order id.
func (b *Binance) Submit(ctx context.Context, q execution.Quote, _ string) (string, error) {
	symbol := q.Request.Pair.Symbol()
	svc := b.client.NewCreateOrderService().
		Symbol(symbol).
		Type(binance.OrderTypeMarket).
		NewClientOrderID(q.Request.ClientID)

	switch q.Request.Side {
	case domain.ActionBuy:
		svc = svc.Side(binance.SideTypeBuy).QuoteOrderQty(q.InAmount.RoundFloor(2).String())
	case domain.ActionSell:
		svc = svc.Side(binance.SideTypeSell).Quantity(q.InAmount.RoundFloor(b.precision).String())
	default:
		return "", errors.Errorf("unsupported side %s", q.Request.Side)
	}

	if _, err := svc.Do(ctx); err != nil {
		return "", errors.Wrapf(err, "failed to place %s order on %s", q.Request.Side, symbol)
	}

	b.logger.Info("order placed", zap.String("symbol", symbol), zap.Stringer("side", q.Request.Side), zap.String("client_id", q.Request.ClientID))
	return symbol + txSeparator + q.Request.ClientID, nil
}

// Confirm queries the order status. Orders still working, and unknown orders, are not filled.
func (b *Binance) Confirm(ctx context.Context, txID string) (execution.Fill, error) {
	symbol, clientID, ok := strings.Cut(txID, txSeparator)
	if !ok {
		return execution.Fill{}, errors.Errorf("malformed tx id %q", txID)
	}

	order, err := b.client.NewGetOrderService().Symbol(symbol).OrigClientOrderID(clientID).Do(ctx)
	if err != nil {
		var apiErr *common.APIError
		if errors.As(err, &apiErr) && apiErr.Code == binanceOrderNotFound {
			return execution.Fill{}, nil
		}
		return execution.Fill{}, errors.Wrap(err, "failed to query binance order status")
	}

	return orderFill(string(order.Status), order.ExecutedQuantity, order.CummulativeQuoteQuantity)
}

func orderFill(status, executedQty, quoteQty string) (execution.Fill, error) {
	qty, err := decimal.NewFromString(executedQty)
	if err != nil {
		return execution.Fill{}, errors.Wrap(err, "failed to parse executed quantity")
	}
	amount, err := decimal.NewFromString(quoteQty)
	if err != nil {
		return execution.Fill{}, errors.Wrap(err, "failed to parse executed quote quantity")
	}

	fill := execution.Fill{Quantity: qty, Amount: amount}
	if qty.IsPositive() {
		fill.Price = amount.Div(qty)
	}

	switch binance.OrderStatusType(status) {
	case binance.OrderStatusTypeFilled:
		fill.Filled = true
	case binance.OrderStatusTypeCanceled, binance.OrderStatusTypeRejected, binance.OrderStatusTypeExpired:
		// a market order that stopped early keeps what it executed
		fill.Filled = qty.IsPositive()
	}
	return fill, nil
}

type bookLevel struct {
	price, quantity string
}

type bookFill struct {
	best, amount, quantity decimal.Decimal
}

// impact average fill price deviation from the best price.
func (f bookFill) impact() float64 {
	if !f.quantity.IsPositive() || !f.best.IsPositive() {
		return 0
	}
	avg := f.amount.Div(f.quantity)
	v, _ := avg.Sub(f.best).Div(f.best).Abs().Float64()
	return v
}

// walkBook consumes levels best first. byAmount spends size in quote currency,
// otherwise size is a base quantity.
func walkBook(levels []bookLevel, size decimal.Decimal, byAmount bool) (bookFill, error) {
	if !size.IsPositive() {
		return bookFill{}, errEmptyOrder
	}

	var out bookFill
	left := size
	for i, l := range levels {
		price, err := decimal.NewFromString(l.price)
		if err != nil {
			return bookFill{}, errors.Wrapf(err, "failed to parse level price %q", l.price)
		}
		qty, err := decimal.NewFromString(l.quantity)
		if err != nil {
			return bookFill{}, errors.Wrapf(err, "failed to parse level quantity %q", l.quantity)
		}
		if i == 0 {
			out.best = price
		}

		value := price.Mul(qty)
		if byAmount {
			if value.GreaterThanOrEqual(left) {
				out.quantity = out.quantity.Add(left.Div(price))
				out.amount = size
				return out, nil
			}
			out.quantity = out.quantity.Add(qty)
			out.amount = out.amount.Add(value)
			left = left.Sub(value)
			continue
		}
		if qty.GreaterThanOrEqual(left) {
			out.amount = out.amount.Add(left.Mul(price))
			out.quantity = size
			return out, nil
		}
		out.quantity = out.quantity.Add(qty)
		out.amount = out.amount.Add(value)
		left = left.Sub(qty)
	}
	return bookFill{}, ErrThinBook
}

func bestPrice(levels []bookLevel) (decimal.Decimal, error) {
	if len(levels) == 0 {
		return decimal.Zero, ErrThinBook
	}
	p, err := decimal.NewFromString(levels[0].price)
	if err != nil || !p.IsPositive() {
		return decimal.Zero, errors.Errorf("invalid best price %q", levels[0].price)
	}
	return p, nil
}
