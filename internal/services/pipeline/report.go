package pipeline

import (
	"time"

	"github.com/vadiminshakov/tradeflow/internal/domain"
)

// Outcome of one asset in a cycle.
type Outcome string

const (
	OutcomeSkipped  Outcome = "skipped"
	OutcomeHold     Outcome = "hold"
	OutcomeExecuted Outcome = "executed"
	OutcomeFailed   Outcome = "failed"
	// OutcomePending order accepted by the venue but not confirmed yet.
	OutcomePending Outcome = "pending"
)

// AssetReport what happened to one candidate.
type AssetReport struct {
	Address string        `json:"address"`
	Symbol  string        `json:"symbol"`
	Outcome Outcome       `json:"outcome"`
	Action  domain.Action `json:"action"`
	Reason  string        `json:"reason,omitempty"`

	Result *domain.ExecutionResult `json:"result,omitempty"`
	Trade  *domain.Trade           `json:"trade,omitempty"`
}

// CycleReport summary of one pipeline cycle.
type CycleReport struct {
	StartedAt time.Time            `json:"started_at"`
	Duration  time.Duration        `json:"duration"`
	Market    domain.MarketContext `json:"market"`
	Assets    []AssetReport        `json:"assets"`
	// Exits trades closed by the position monitor.
	Exits []domain.Trade `json:"exits"`
}

func (r *CycleReport) add(a AssetReport) {
	r.Assets = append(r.Assets, a)
}

// Count returns the number of assets with the outcome.
func (r CycleReport) Count(o Outcome) int {
	n := 0
	for _, a := range r.Assets {
		if a.Outcome == o {
			n++
		}
	}
	return n
}

// Asset returns the report of the address.
func (r CycleReport) Asset(address string) (AssetReport, bool) {
	for _, a := range r.Assets {
		if a.Address == address {
			return a, true
		}
	}
	return AssetReport{}, false
}
