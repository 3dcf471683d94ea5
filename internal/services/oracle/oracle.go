// Package oracle produces structured verdicts on trading opportunities,
// either from an LLM or from a deterministic rule set.
package oracle

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/tradeflow/internal/domain"
)

// AssetContext everything known about an asset when asking for a verdict.
type AssetContext struct {
	Asset   domain.AssetSnapshot
	Signals domain.TechnicalSignals
	Market  domain.MarketContext
	Risk    domain.RiskAssessment
	// Position open position in the asset, nil when none.
	Position *domain.PortfolioPosition
	// Balance available quote currency.
	Balance decimal.Decimal
	Quote   string
}

// Oracle judges a trading opportunity.
type Oracle interface {
	// Name identifies the oracle in decisions and trade attribution.
	Name() string
	// Evaluate returns a verdict; malformed responses yield errors wrapping domain.ErrOracleParse.
	Evaluate(ctx context.Context, ac AssetContext) (domain.OracleVerdict, error)
}
