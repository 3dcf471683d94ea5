package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// exit reasons
const (
	ExitStopLoss   = "stop_loss"
	ExitTakeProfit = "take_profit"
	ExitSignal     = "signal"
)

// Trade completed (possibly partial) round trip. Immutable once recorded.
type Trade struct {
	ID         string          `json:"id"`
	Address    string          `json:"address"`
	Symbol     string          `json:"symbol"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	ExitPrice  decimal.Decimal `json:"exit_price"`
	Quantity   decimal.Decimal `json:"quantity"`
	// Size quote notional of the sold quantity at entry cost.
	Size          decimal.Decimal `json:"size"`
	EntryTime     time.Time       `json:"entry_time"`
	ExitTime      time.Time       `json:"exit_time"`
	ProfitLoss    decimal.Decimal `json:"profit_loss"`
	Strategy      string          `json:"strategy"`
	Confidence    float64         `json:"confidence"`
	ExecutionType ExecutionType   `json:"execution_type"`
	ExitReason    string          `json:"exit_reason"`
	TxID          string          `json:"tx_id,omitempty"`
}

// HoldDuration time between entry and exit.
func (t Trade) HoldDuration() time.Duration {
	return t.ExitTime.Sub(t.EntryTime)
}

// String returns a human-readable string representation.
func (t Trade) String() string {
	return fmt.Sprintf("%s sold %s @ %s (entry %s) pnl %s [%s]",
		t.Symbol, t.Quantity.String(), t.ExitPrice.String(), t.EntryPrice.String(), t.ProfitLoss.StringFixed(4), t.ExitReason)
}
