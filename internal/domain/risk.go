package domain

import "github.com/shopspring/decimal"

// weights of the overall risk score
const (
	VolatilityRiskWeight    = 0.3
	LiquidityRiskWeight     = 0.3
	MarketRiskWeight        = 0.2
	ConcentrationRiskWeight = 0.2
)

// VolatilityRating bucketed volatility risk.
type VolatilityRating int

const (
	VolatilityVeryLow VolatilityRating = iota
	VolatilityLow
	VolatilityMedium
	VolatilityHigh
	VolatilityVeryHigh
)

func (v VolatilityRating) String() string {
	switch v {
	case VolatilityVeryLow:
		return "very_low"
	case VolatilityLow:
		return "low"
	case VolatilityMedium:
		return "medium"
	case VolatilityHigh:
		return "high"
	case VolatilityVeryHigh:
		return "very_high"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (v VolatilityRating) MarshalText() ([]byte, error) { return []byte(v.String()), nil }

// MarketRiskLevel bucketed market risk.
type MarketRiskLevel int

const (
	MarketRiskLow MarketRiskLevel = iota
	MarketRiskModerate
	MarketRiskHigh
	MarketRiskExtreme
)

func (m MarketRiskLevel) String() string {
	switch m {
	case MarketRiskLow:
		return "low"
	case MarketRiskModerate:
		return "moderate"
	case MarketRiskHigh:
		return "high"
	case MarketRiskExtreme:
		return "extreme"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m MarketRiskLevel) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// RiskAssessment risk scoring of an asset for the current cycle.
type RiskAssessment struct {
	// Score overall risk in [0, 1], always the weighted sum of the components.
	Score             float64 `json:"score"`
	VolatilityRisk    float64 `json:"volatility_risk"`
	LiquidityRisk     float64 `json:"liquidity_risk"`
	MarketRisk        float64 `json:"market_risk"`
	ConcentrationRisk float64 `json:"concentration_risk"`

	VolatilityRating VolatilityRating `json:"volatility_rating"`
	MarketRiskLevel  MarketRiskLevel  `json:"market_risk_level"`

	// MaxPositionSize cap in quote currency.
	MaxPositionSize decimal.Decimal  `json:"max_position_size"`
	StopLossPrice   *decimal.Decimal `json:"stop_loss_price,omitempty"`
	// Factors advisory, human-readable.
	Factors []string `json:"factors,omitempty"`
}

// WeightedRiskScore combines the component scores using the fixed weights.
func WeightedRiskScore(volatility, liquidity, market, concentration float64) float64 {
	return VolatilityRiskWeight*volatility +
		LiquidityRiskWeight*liquidity +
		MarketRiskWeight*market +
		ConcentrationRiskWeight*concentration
}

// Exposure current portfolio exposure used for risk scoring.
type Exposure struct {
	// Asset value currently held in the scored asset.
	Asset decimal.Decimal
	// Total value currently held across all assets.
	Total decimal.Decimal
	// PortfolioValue cash plus holdings.
	PortfolioValue decimal.Decimal
}
