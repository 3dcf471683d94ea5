package execution

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/tradeflow/internal/domain"
)

// QuoteRequest swap request. Buys spend Amount of the quote currency,
// sells spend Quantity of the base asset.
type QuoteRequest struct {
	Pair     domain.Pair
	Side     domain.Action
	Amount   decimal.Decimal
	Quantity decimal.Decimal
	// ClientID idempotency key of the order on the venue.
	ClientID string
}

// Quote venue quote for a request.
type Quote struct {
	Request QuoteRequest
	// Price quote currency per base unit.
	Price decimal.Decimal
	// PriceImpact expected price move caused by the order, as a fraction.
	PriceImpact float64
	// InAmount what is spent: quote currency for buys, base units for sells.
	InAmount decimal.Decimal
	// OutAmount what is received: base units for buys, quote currency for sells.
	OutAmount decimal.Decimal
}

// Fill confirmation state of a submitted order.
type Fill struct {
	Filled bool
	// Price, Quantity and Amount of the executed order; zero values fall back to the quote.
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Amount   decimal.Decimal
}

// Venue routing venue orders are executed against.
type Venue interface {
	Quote(ctx context.Context, req QuoteRequest) (Quote, error)
	Submit(ctx context.Context, quote Quote, wallet string) (txID string, err error)
	Confirm(ctx context.Context, txID string) (Fill, error)
}

// Pinger is implemented by venues that can report their availability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks the venue at boot. Venues without a health check are assumed reachable.
func (e *Engine) Ping(ctx context.Context) error {
	p, ok := e.venue.(Pinger)
	if !ok {
		return nil
	}

	pingCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()
	if err := p.Ping(pingCtx); err != nil {
		return fmt.Errorf("%w: ping: %w", domain.ErrVenueUnavailable, err)
	}
	return nil
}
