package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ExecutionType how an order was executed.
type ExecutionType int

const (
	ExecutionMarket ExecutionType = iota
	ExecutionLimit
	ExecutionStaged
)

func (e ExecutionType) String() string {
	switch e {
	case ExecutionMarket:
		return "market"
	case ExecutionLimit:
		return "limit"
	case ExecutionStaged:
		return "staged"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (e ExecutionType) MarshalText() ([]byte, error) { return []byte(e.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *ExecutionType) UnmarshalText(b []byte) error {
	switch string(b) {
	case "market":
		*e = ExecutionMarket
	case "limit":
		*e = ExecutionLimit
	case "staged":
		*e = ExecutionStaged
	default:
		return fmt.Errorf("invalid execution type: %s", b)
	}
	return nil
}

// OrderStatus terminal status of an execution.
type OrderStatus int

const (
	StatusFailed OrderStatus = iota
	StatusPartial
	StatusCompleted
)

func (s OrderStatus) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusPartial:
		return "partial"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s OrderStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// ExecutionResult outcome of executing one decision. Never mutated after creation.
type ExecutionResult struct {
	DecisionID string `json:"decision_id"`
	Address    string `json:"address"`
	Action     Action `json:"action"`
	// Amount filled notional in quote currency.
	Amount decimal.Decimal `json:"amount"`
	// Quantity filled base units.
	Quantity decimal.Decimal `json:"quantity"`
	// Price realized price, volume weighted for staged orders.
	Price    decimal.Decimal `json:"price"`
	Slippage float64         `json:"slippage"`
	// TxID venue transaction id, empty when nothing was submitted.
	TxID    string        `json:"tx_id,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
	Type    ExecutionType `json:"type"`
	Status  OrderStatus   `json:"status"`
	// Pending orders submitted but not confirmed within the polling window.
	Pending []PendingOrder `json:"pending,omitempty"`
}

// Filled reports whether the result carries a fill that must be booked.
func (r ExecutionResult) Filled() bool {
	return r.Status != StatusFailed && r.Quantity.IsPositive() && r.Price.IsPositive()
}

// PendingOrder order accepted by the venue whose fill is not confirmed yet.
// It carries what is needed to book the fill once the venue confirms it.
type PendingOrder struct {
	TxID       string        `json:"tx_id"`
	DecisionID string        `json:"decision_id"`
	Address    string        `json:"address"`
	Symbol     string        `json:"symbol"`
	Action     Action        `json:"action"`
	Type       ExecutionType `json:"type"`
	// Amount quoted notional in quote currency.
	Amount decimal.Decimal `json:"amount"`
	// Quantity quoted base units.
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Slippage float64         `json:"slippage"`

	Confidence    float64           `json:"confidence"`
	Strategy      string            `json:"strategy,omitempty"`
	Reason        string            `json:"reason,omitempty"`
	Target        int               `json:"target,omitempty"`
	StopLossPrice *decimal.Decimal  `json:"stop_loss_price,omitempty"`
	StopLossPct   float64           `json:"stop_loss_pct,omitempty"`
	TakeProfit    []TakeProfitLevel `json:"take_profit,omitempty"`

	SubmittedAt time.Time `json:"submitted_at"`
}

// NewPendingOrder records the unconfirmed order txID placed for d.
func NewPendingOrder(d TradingDecision, txID string, submittedAt time.Time) PendingOrder {
	return PendingOrder{
		TxID:          txID,
		DecisionID:    d.ID,
		Address:       d.Address,
		Symbol:        d.Symbol,
		Action:        d.Action,
		Confidence:    d.Confidence,
		Strategy:      d.Strategy,
		Reason:        d.Reason,
		Target:        d.Target,
		StopLossPrice: d.StopLossPrice,
		StopLossPct:   d.Params.StopLossPct,
		TakeProfit:    d.Params.TakeProfit,
		SubmittedAt:   submittedAt,
	}
}

// Decision rebuilds the decision the fill of the order is booked against.
func (o PendingOrder) Decision() TradingDecision {
	d := TradingDecision{
		ID:            o.DecisionID,
		Address:       o.Address,
		Symbol:        o.Symbol,
		Action:        o.Action,
		Size:          o.Amount,
		Confidence:    o.Confidence,
		StopLossPrice: o.StopLossPrice,
		Params: ExecutionParams{
			StopLossPct: o.StopLossPct,
			TakeProfit:  o.TakeProfit,
		},
		Strategy:  o.Strategy,
		Reason:    o.Reason,
		Target:    o.Target,
		CreatedAt: o.SubmittedAt,
	}
	if o.Action == ActionSell {
		d.Quantity = o.Quantity
	}
	return d
}
