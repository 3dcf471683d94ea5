package domain

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// EntryType how a decision enters the market.
type EntryType int

const (
	EntryMarket EntryType = iota
	EntryLimit
	EntryStaged
)

func (e EntryType) String() string {
	switch e {
	case EntryMarket:
		return "market"
	case EntryLimit:
		return "limit"
	case EntryStaged:
		return "staged"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (e EntryType) MarshalText() ([]byte, error) { return []byte(e.String()), nil }

// ParseEntryType maps an entry type label onto EntryType; unknown labels are market.
func ParseEntryType(s string) EntryType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "limit":
		return EntryLimit
	case "staged", "dca":
		return EntryStaged
	default:
		return EntryMarket
	}
}

// TakeProfitLevel take-profit rung relative to the fill price.
type TakeProfitLevel struct {
	// Target fractional gain over the entry price, e.g. 0.1 for +10%.
	Target float64 `json:"target"`
	// SizeFraction share of the then-current quantity to sell, (0, 1].
	SizeFraction float64 `json:"size_fraction"`
}

// StagedEntry staged (DCA) entry config.
type StagedEntry struct {
	NumEntries   int `json:"num_entries"`
	HoursBetween int `json:"hours_between"`
}

const (
	// MaxStagedEntries ceiling on the tranches of a staged entry.
	MaxStagedEntries = 10
	// MaxStagedHours ceiling on the pause between two tranches.
	MaxStagedHours = 72
)

// DefaultStagedEntry three entries a day apart.
func DefaultStagedEntry() StagedEntry {
	return StagedEntry{NumEntries: 3, HoursBetween: 24}
}

// Clamp bounds the entry to maxEntries tranches at most maxHours apart. Bounds that are
// not positive or exceed MaxStagedEntries and MaxStagedHours fall back to those ceilings.
func (s StagedEntry) Clamp(maxEntries, maxHours int) StagedEntry {
	if maxEntries <= 0 || maxEntries > MaxStagedEntries {
		maxEntries = MaxStagedEntries
	}
	if maxHours <= 0 || maxHours > MaxStagedHours {
		maxHours = MaxStagedHours
	}

	s.NumEntries = max(1, min(s.NumEntries, maxEntries))
	s.HoursBetween = max(0, min(s.HoursBetween, maxHours))
	return s
}

// Interval returns the pause between two tranches.
func (s StagedEntry) Interval() time.Duration {
	return time.Duration(s.HoursBetween) * time.Hour
}

// ExecutionParams how a decision should be executed.
type ExecutionParams struct {
	EntryType   EntryType         `json:"entry_type"`
	StopLossPct float64           `json:"stop_loss_pct"`
	TakeProfit  []TakeProfitLevel `json:"take_profit"`
	MaxSlippage float64           `json:"max_slippage"`
	Staged      *StagedEntry      `json:"staged,omitempty"`
}

// TradingDecision a decision for a single asset, consumed once by the execution engine.
type TradingDecision struct {
	ID      string `json:"id"`
	Address string `json:"address"`
	Symbol  string `json:"symbol"`
	Action  Action `json:"action"`
	// Size notional in quote currency.
	Size decimal.Decimal `json:"size"`
	// Quantity base units to sell; set on exits, where size follows from the quote.
	Quantity   decimal.Decimal `json:"quantity"`
	Confidence float64         `json:"confidence"`
	RiskScore  float64         `json:"risk_score"`
	Reasoning  string          `json:"reasoning"`

	Signals TechnicalSignals `json:"signals"`
	Market  MarketContext    `json:"market"`

	StopLossPrice *decimal.Decimal `json:"stop_loss_price,omitempty"`
	Params        ExecutionParams  `json:"params"`

	// Strategy name of the oracle that produced the decision.
	Strategy string `json:"strategy,omitempty"`
	// Reason exit reason of synthetic exit decisions (stop_loss, take_profit, signal).
	Reason string `json:"reason,omitempty"`
	// Target 1-based take-profit target an exit closes, 0 for other exits.
	Target    int       `json:"target,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks that an actionable decision can be executed.
func (d *TradingDecision) Validate() error {
	if d.Address == "" {
		return errors.New("address is required")
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return errors.Errorf("invalid confidence: %f (must be 0.0-1.0)", d.Confidence)
	}

	switch d.Action {
	case ActionBuy:
		if !d.Size.IsPositive() {
			return errors.New("buy size must be greater than zero")
		}
	case ActionSell:
		if !d.Size.IsPositive() && !d.Quantity.IsPositive() {
			return errors.New("sell requires a size or a quantity")
		}
	}

	if d.Params.EntryType == EntryStaged {
		if d.Params.Staged == nil || d.Params.Staged.NumEntries < 1 {
			return errors.New("staged entry requires num_entries >= 1")
		}
	}

	return nil
}
