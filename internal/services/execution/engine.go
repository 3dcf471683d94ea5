// Package execution turns trading decisions into venue orders.
package execution

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/vadiminshakov/tradeflow/internal/domain"
	"github.com/vadiminshakov/tradeflow/internal/metrics"
	"github.com/vadiminshakov/tradeflow/internal/trace"
	"github.com/vadiminshakov/tradeflow/pkg/retrier"
)

const (
	DefaultMaxAttempts     = 3
	DefaultBackoff         = time.Second
	DefaultCallTimeout     = 10 * time.Second
	DefaultConfirmPolls    = 5
	DefaultConfirmInterval = 2 * time.Second

	// completedShare share of a staged order that must fill for it to count as completed.
	completedShare = 0.9
)

// Config execution engine settings. Zero values fall back to the defaults.
type Config struct {
	MaxAttempts     int
	Backoff         time.Duration
	CallTimeout     time.Duration
	ConfirmPolls    int
	ConfirmInterval time.Duration
	// Wallet account or wallet identifier passed to the venue on submit.
	Wallet string
	// QuoteCurrency currency decision sizes are expressed in.
	QuoteCurrency string
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts < 1 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.Backoff <= 0 {
		c.Backoff = DefaultBackoff
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	if c.ConfirmPolls < 1 {
		c.ConfirmPolls = DefaultConfirmPolls
	}
	if c.ConfirmInterval <= 0 {
		c.ConfirmInterval = DefaultConfirmInterval
	}
	if c.QuoteCurrency == "" {
		c.QuoteCurrency = "USDT"
	}
	return c
}

// Engine executes decisions against a venue. Retries for one decision are strictly sequential.
type Engine struct {
	venue  Venue
	cfg    Config
	sleep  retrier.SleepFunc
	now    func() time.Time
	logger *zap.Logger
}

// Option configures the Engine.
type Option func(*Engine)

// WithSleep replaces the wait used for backoff, confirmation polling and tranche spacing.
func WithSleep(fn retrier.SleepFunc) Option {
	return func(e *Engine) {
		if fn != nil {
			e.sleep = fn
		}
	}
}

// WithClock replaces the clock used to measure elapsed time.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates an execution engine.
func NewEngine(venue Venue, cfg Config, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		venue:  venue,
		cfg:    cfg.withDefaults(),
		sleep:  retrier.Sleep,
		now:    time.Now,
		logger: logger.With(zap.String("component", "execution")),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute executes an actionable decision. Hold decisions are rejected.
func (e *Engine) Execute(ctx context.Context, d domain.TradingDecision) (result domain.ExecutionResult, err error) {
	if d.Action == domain.ActionHold {
		return domain.ExecutionResult{}, errors.Errorf("decision %s is a hold, nothing to execute", d.ID)
	}
	if err := d.Validate(); err != nil {
		return domain.ExecutionResult{}, errors.Wrapf(err, "invalid decision %s", d.ID)
	}

	ctx, span := trace.StartSpan(ctx, "execution.Execute",
		attribute.String("decision.id", d.ID),
		attribute.String("asset", d.Address),
		attribute.String("action", d.Action.String()),
		attribute.String("entry_type", d.Params.EntryType.String()),
	)
	defer func() { trace.End(span, err) }()

	start := e.now()

	switch d.Params.EntryType {
	case domain.EntryLimit:
		result, err = e.executeLimit(ctx, d)
	case domain.EntryStaged:
		result, err = e.executeStaged(ctx, d)
	default:
		result, err = e.marketOrder(ctx, d, e.request(d, d.Size, d.Quantity))
		result.Type = domain.ExecutionMarket
		if err != nil {
			result.Status = domain.StatusFailed
		}
	}

	for i := range result.Pending {
		result.Pending[i].Type = result.Type
	}
	result.DecisionID = d.ID
	result.Address = d.Address
	result.Action = d.Action
	result.Elapsed = e.now().Sub(start)

	metrics.ExecutionsTotal.WithLabelValues(result.Type.String(), result.Status.String()).Inc()
	metrics.ExecutionLatency.WithLabelValues(result.Type.String()).Observe(result.Elapsed.Seconds())

	fields := []zap.Field{
		zap.String("decision_id", d.ID),
		zap.String("asset", d.Address),
		zap.Stringer("action", d.Action),
		zap.Stringer("type", result.Type),
		zap.Stringer("status", result.Status),
		zap.String("quantity", result.Quantity.String()),
		zap.String("price", result.Price.String()),
		zap.String("tx_id", result.TxID),
		zap.Int("pending", len(result.Pending)),
		zap.Duration("elapsed", result.Elapsed),
	}
	if err != nil {
		e.logger.Error("execution failed", append(fields, zap.Error(err))...)
	} else {
		e.logger.Info("execution finished", fields...)
	}

	return result, err
}

func (e *Engine) request(d domain.TradingDecision, amount, quantity decimal.Decimal) QuoteRequest {
	req := QuoteRequest{
		Pair:     domain.NewPair(d.Address, e.cfg.QuoteCurrency),
		Side:     d.Action,
		ClientID: uuid.NewString(),
	}
	if d.Action == domain.ActionSell && quantity.IsPositive() {
		req.Quantity = quantity
	} else {
		req.Amount = amount
	}
	return req
}

// marketOrder runs the bounded attempt loop for one market order.
func (e *Engine) marketOrder(ctx context.Context, d domain.TradingDecision, req QuoteRequest) (domain.ExecutionResult, error) {
	r := retrier.New(
		retrier.WithMaxAttempts(e.cfg.MaxAttempts),
		retrier.WithFixedBackoff(e.cfg.Backoff),
		retrier.WithSleep(e.sleep),
		retrier.WithOnRetry(func(attempt int, err error) {
			e.logger.Warn("order attempt failed, retrying",
				zap.String("decision_id", d.ID),
				zap.String("client_id", req.ClientID),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", e.cfg.Backoff),
				zap.Error(err),
			)
		}),
	)

	var (
		attempts int
		result   domain.ExecutionResult
	)
	err := r.Do(ctx, func(ctx context.Context) error {
		attempts++
		res, err := e.attempt(ctx, d, req)
		if err != nil {
			metrics.ExecutionAttempts.WithLabelValues(attemptOutcome(err)).Inc()
			return err
		}
		metrics.ExecutionAttempts.WithLabelValues("submitted").Inc()
		result = res
		return nil
	})
	if err != nil {
		if attempts < e.cfg.MaxAttempts && ctx.Err() != nil {
			return domain.ExecutionResult{Status: domain.StatusFailed}, errors.Wrap(err, "order interrupted")
		}
		return domain.ExecutionResult{Status: domain.StatusFailed}, &domain.ExecutionError{
			Kind:     failureKind(err),
			Attempts: attempts,
			Err:      err,
		}
	}

	return result, nil
}

// attempt performs quote, slippage check, submit and confirmation.
// Once the order is submitted it never returns an error, so it is never submitted twice.
// Rejected orders are not retried.
func (e *Engine) attempt(ctx context.Context, d domain.TradingDecision, req QuoteRequest) (domain.ExecutionResult, error) {
	quote, err := e.quote(ctx, req)
	if err != nil {
		if errors.Is(err, domain.ErrOrderRejected) {
			return domain.ExecutionResult{}, retrier.Permanent(err)
		}
		return domain.ExecutionResult{}, err
	}

	if quote.PriceImpact > d.Params.MaxSlippage {
		return domain.ExecutionResult{}, errors.Wrapf(domain.ErrSlippageExceeded,
			"price impact %.4f above max %.4f", quote.PriceImpact, d.Params.MaxSlippage)
	}

	submitCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	txID, err := e.venue.Submit(submitCtx, quote, e.cfg.Wallet)
	cancel()
	if err != nil {
		if errors.Is(err, domain.ErrOrderRejected) {
			return domain.ExecutionResult{}, retrier.Permanent(errors.Wrap(err, "submit"))
		}
		return domain.ExecutionResult{}, fmt.Errorf("%w: submit: %w", domain.ErrVenueUnavailable, err)
	}

	fill, confirmed := e.confirm(ctx, txID)
	if !confirmed {
		e.logger.Warn("order submitted but not confirmed, tracking it as pending",
			zap.String("decision_id", d.ID),
			zap.String("tx_id", txID),
			zap.Int("polls", e.cfg.ConfirmPolls),
		)
		return domain.ExecutionResult{
			TxID:     txID,
			Price:    quote.Price,
			Slippage: quote.PriceImpact,
			Status:   domain.StatusPartial,
			Pending:  []domain.PendingOrder{e.pendingOrder(d, quote, txID)},
		}, nil
	}

	res := fillResult(req.Side, quote, fill)
	res.TxID = txID
	res.Status = domain.StatusCompleted
	return res, nil
}

func (e *Engine) quote(ctx context.Context, req QuoteRequest) (Quote, error) {
	quoteCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	q, err := e.venue.Quote(quoteCtx, req)
	if errors.Is(err, domain.ErrOrderRejected) {
		return Quote{}, errors.Wrap(err, "quote")
	}
	if err != nil {
		return Quote{}, fmt.Errorf("%w: quote: %w", domain.ErrVenueUnavailable, err)
	}
	if !q.Price.IsPositive() {
		return Quote{}, errors.Wrapf(domain.ErrVenueUnavailable, "quote for %s has no price", req.Pair)
	}
	return q, nil
}

// confirm polls the venue a bounded number of times.
func (e *Engine) confirm(ctx context.Context, txID string) (Fill, bool) {
	for poll := 0; poll < e.cfg.ConfirmPolls; poll++ {
		if poll > 0 {
			if err := e.sleep(ctx, e.cfg.ConfirmInterval); err != nil {
				return Fill{}, false
			}
		}

		confirmCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
		fill, err := e.venue.Confirm(confirmCtx, txID)
		cancel()
		if err != nil {
			e.logger.Debug("confirmation poll failed", zap.String("tx_id", txID), zap.Int("poll", poll+1), zap.Error(err))
			continue
		}
		if fill.Filled {
			return fill, true
		}
	}
	return Fill{}, false
}

func (e *Engine) pendingOrder(d domain.TradingDecision, q Quote, txID string) domain.PendingOrder {
	o := domain.NewPendingOrder(d, txID, e.now())
	o.Price = q.Price
	o.Slippage = q.PriceImpact
	if d.Action == domain.ActionBuy {
		o.Amount, o.Quantity = q.InAmount, q.OutAmount
	} else {
		o.Amount, o.Quantity = q.OutAmount, q.InAmount
	}
	return o
}

// Reconcile polls the venue once for a pending order. It reports false while the
// order is still unconfirmed; a confirmed order yields a completed result.
func (e *Engine) Reconcile(ctx context.Context, o domain.PendingOrder) (domain.ExecutionResult, bool, error) {
	confirmCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	fill, err := e.venue.Confirm(confirmCtx, o.TxID)
	cancel()
	if err != nil {
		return domain.ExecutionResult{}, false, fmt.Errorf("%w: confirm %s: %w", domain.ErrVenueUnavailable, o.TxID, err)
	}
	if !fill.Filled {
		return domain.ExecutionResult{}, false, nil
	}

	q := Quote{Price: o.Price, PriceImpact: o.Slippage}
	if o.Action == domain.ActionBuy {
		q.InAmount, q.OutAmount = o.Amount, o.Quantity
	} else {
		q.InAmount, q.OutAmount = o.Quantity, o.Amount
	}
	res := fillResult(o.Action, q, fill)
	res.DecisionID = o.DecisionID
	res.Address = o.Address
	res.Action = o.Action
	res.TxID = o.TxID
	res.Type = o.Type
	res.Status = domain.StatusCompleted

	metrics.ExecutionsTotal.WithLabelValues(res.Type.String(), "reconciled").Inc()
	e.logger.Info("pending order confirmed",
		zap.String("decision_id", o.DecisionID),
		zap.String("asset", o.Address),
		zap.String("tx_id", o.TxID),
		zap.String("quantity", res.Quantity.String()),
		zap.String("price", res.Price.String()),
		zap.Duration("pending_for", e.now().Sub(o.SubmittedAt)),
	)
	return res, true, nil
}

// fillResult builds the result of a confirmed order, falling back to the quote for values the venue omits.
func fillResult(side domain.Action, q Quote, f Fill) domain.ExecutionResult {
	amount, quantity := f.Amount, f.Quantity
	if side == domain.ActionBuy {
		if amount.IsZero() {
			amount = q.InAmount
		}
		if quantity.IsZero() {
			quantity = q.OutAmount
		}
	} else {
		if quantity.IsZero() {
			quantity = q.InAmount
		}
		if amount.IsZero() {
			amount = q.OutAmount
		}
	}

	price := f.Price
	if price.IsZero() {
		price = q.Price
		if quantity.IsPositive() && amount.IsPositive() {
			price = amount.Div(quantity)
		}
	}

	slippage := q.PriceImpact
	if !price.Equal(q.Price) {
		slippage, _ = price.Sub(q.Price).Abs().Div(q.Price).Float64()
	}

	return domain.ExecutionResult{
		Amount:   amount,
		Quantity: quantity,
		Price:    price,
		Slippage: slippage,
	}
}

// executeLimit quotes once and reports the target price. Orders are not placed.
func (e *Engine) executeLimit(ctx context.Context, d domain.TradingDecision) (domain.ExecutionResult, error) {
	req := e.request(d, d.Size, d.Quantity)
	quote, err := e.quote(ctx, req)
	if err != nil {
		return domain.ExecutionResult{Type: domain.ExecutionLimit, Status: domain.StatusFailed}, errors.Wrap(err, "limit order quote")
	}

	shift := decimal.NewFromFloat(d.Params.MaxSlippage)
	target := quote.Price.Mul(decimal.NewFromInt(1).Add(shift))
	if d.Action == domain.ActionSell {
		target = quote.Price.Mul(decimal.NewFromInt(1).Sub(shift))
	}

	e.logger.Info("limit order target computed",
		zap.String("decision_id", d.ID),
		zap.String("quote_price", quote.Price.String()),
		zap.String("target_price", target.String()),
	)

	return domain.ExecutionResult{
		Amount:   d.Size,
		Price:    target,
		Slippage: d.Params.MaxSlippage,
		Type:     domain.ExecutionLimit,
		Status:   domain.StatusPartial,
	}, nil
}

// executeStaged splits the order into equal tranches, each an independent market order.
// A failed tranche does not abort the rest.
func (e *Engine) executeStaged(ctx context.Context, d domain.TradingDecision) (domain.ExecutionResult, error) {
	staged := domain.DefaultStagedEntry()
	if d.Params.Staged != nil {
		staged = *d.Params.Staged
	}
	n := decimal.NewFromInt(int64(staged.NumEntries))

	if staged.NumEntries > 1 {
		e.logger.Warn("staged order started, exits are not checked until the last tranche",
			zap.String("decision_id", d.ID),
			zap.String("asset", d.Address),
			zap.Int("tranches", staged.NumEntries),
			zap.Duration("interval", staged.Interval()),
			zap.Duration("span", staged.Interval()*time.Duration(staged.NumEntries-1)),
		)
	}

	// target is in decision units: quote amount for buys, base quantity for sells
	target, trancheAmount, trancheQty := d.Size, d.Size.Div(n), decimal.Zero
	if d.Action == domain.ActionSell && d.Quantity.IsPositive() {
		target, trancheAmount, trancheQty = d.Quantity, decimal.Zero, d.Quantity.Div(n)
	}

	var (
		amount, quantity, weighted, filled decimal.Decimal
		txIDs                              []string
		pending                            []domain.PendingOrder
		lastErr                            error
		failures                           int
	)

	for i := 0; i < staged.NumEntries; i++ {
		if i > 0 {
			if err := e.sleep(ctx, staged.Interval()); err != nil {
				e.logger.Warn("staged order interrupted", zap.String("decision_id", d.ID), zap.Int("tranche", i+1), zap.Error(err))
				lastErr = err
				break
			}
		}

		res, err := e.marketOrder(ctx, d, e.request(d, trancheAmount, trancheQty))
		if err != nil {
			failures++
			lastErr = err
			e.logger.Warn("tranche failed",
				zap.String("decision_id", d.ID),
				zap.Int("tranche", i+1),
				zap.Int("tranches", staged.NumEntries),
				zap.Error(err),
			)
			continue
		}
		if res.TxID != "" {
			txIDs = append(txIDs, res.TxID)
		}
		pending = append(pending, res.Pending...)
		if !res.Filled() {
			continue
		}

		size := res.Amount
		if d.Action == domain.ActionSell && d.Quantity.IsPositive() {
			size = res.Quantity
		}
		amount = amount.Add(res.Amount)
		quantity = quantity.Add(res.Quantity)
		weighted = weighted.Add(res.Price.Mul(size))
		filled = filled.Add(size)
	}

	result := domain.ExecutionResult{
		Amount:   amount,
		Quantity: quantity,
		TxID:     strings.Join(txIDs, ","),
		Type:     domain.ExecutionStaged,
		Pending:  pending,
	}
	if filled.IsPositive() {
		result.Price = weighted.Div(filled)
	}

	share := decimal.Zero
	if target.IsPositive() {
		share = filled.Div(target)
	}
	switch {
	case share.GreaterThanOrEqual(decimal.NewFromFloat(completedShare)):
		result.Status = domain.StatusCompleted
	case filled.IsPositive(), len(pending) > 0:
		result.Status = domain.StatusPartial
	default:
		result.Status = domain.StatusFailed
	}

	if result.Status == domain.StatusFailed && lastErr != nil {
		return result, &domain.ExecutionError{Kind: failureKind(lastErr), Attempts: failures, Err: lastErr}
	}
	return result, nil
}

func failureKind(err error) error {
	if errors.Is(err, domain.ErrOrderRejected) {
		return domain.ErrOrderRejected
	}
	return domain.ErrRetriesExhausted
}

func attemptOutcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrOrderRejected):
		return "rejected"
	case errors.Is(err, domain.ErrSlippageExceeded):
		return "slippage"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, domain.ErrVenueUnavailable):
		return "venue_error"
	default:
		return "error"
	}
}
