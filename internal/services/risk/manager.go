// Package risk scores assets and gates proposed position sizes.
package risk

import (
	"math"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/tradeflow/internal/domain"
	"go.uber.org/zap"
)

const (
	minAcceptableLiquidity = 0.3
	liquidityRiskScale     = 1.5
	trendVolatilityOffset  = 0.3
	sectorRiskWeight       = 0.2

	// MaxConcentration cap of a single asset as a share of the portfolio.
	MaxConcentration = 0.2
	// BasePositionShare share of the portfolio a zero-risk position may take.
	BasePositionShare = 0.1

	minStopDistance = 0.02
	maxStopDistance = 0.15
	stopVolMultiple = 2.0

	riskFactorThreshold = 0.7
)

// Limits configured position bounds in quote currency.
type Limits struct {
	MinPosition decimal.Decimal
	MaxPosition decimal.Decimal
}

// Manager scores risk. It keeps no mutable state; exposure is passed in by the caller.
type Manager struct {
	limits Limits
	logger *zap.Logger
}

// NewManager creates a new risk Manager.
func NewManager(limits Limits, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{limits: limits, logger: logger}
}

// Assess scores the asset and derives the position cap and stop-loss.
func (m *Manager) Assess(asset domain.AssetSnapshot, signals domain.TechnicalSignals, market domain.MarketContext, exposure domain.Exposure) domain.RiskAssessment {
	volRisk := VolatilityRisk(signals.Volatility, signals.TrendStrength)
	liqRisk := LiquidityRisk(market.LiquidityScore)
	mktRisk := MarketRisk(market.Trend, market.SectorPerformance)
	concRisk := ConcentrationRisk(exposure.Asset, exposure.PortfolioValue)

	score := domain.WeightedRiskScore(volRisk, liqRisk, mktRisk, concRisk)

	assessment := domain.RiskAssessment{
		Score:             score,
		VolatilityRisk:    volRisk,
		LiquidityRisk:     liqRisk,
		MarketRisk:        mktRisk,
		ConcentrationRisk: concRisk,
		VolatilityRating:  RateVolatility(volRisk),
		MarketRiskLevel:   RateMarketRisk(mktRisk),
		MaxPositionSize:   MaxPositionSize(exposure.PortfolioValue, score, TotalExposure(exposure)),
		StopLossPrice:     StopLoss(asset.PriceQuote, signals),
		Factors:           factors(volRisk, liqRisk, mktRisk, concRisk),
	}

	m.logger.Debug("risk assessed",
		zap.String("asset", asset.Symbol),
		zap.Float64("score", score),
		zap.Float64("volatility", volRisk),
		zap.Float64("liquidity", liqRisk),
		zap.Float64("market", mktRisk),
		zap.Float64("concentration", concRisk),
		zap.String("max_position", assessment.MaxPositionSize.StringFixed(4)),
	)

	return assessment
}

// ValidatePositionSize rejects sizes outside the configured bounds or above the
// per-asset share of the portfolio. Callers must treat a violation as a hard gate.
func (m *Manager) ValidatePositionSize(size, portfolioValue decimal.Decimal) error {
	if size.LessThan(m.limits.MinPosition) {
		return domain.NewRiskViolation("size %s below min position %s", size.String(), m.limits.MinPosition.String())
	}
	if m.limits.MaxPosition.IsPositive() && size.GreaterThan(m.limits.MaxPosition) {
		return domain.NewRiskViolation("size %s above max position %s", size.String(), m.limits.MaxPosition.String())
	}
	if !portfolioValue.IsPositive() {
		return domain.NewRiskViolation("portfolio value %s is not positive", portfolioValue.String())
	}
	if size.Div(portfolioValue).GreaterThan(decimal.NewFromFloat(MaxConcentration)) {
		return domain.NewRiskViolation("size %s exceeds %.0f%% of portfolio %s",
			size.String(), MaxConcentration*100, portfolioValue.StringFixed(2))
	}
	return nil
}

// VolatilityRisk strong trends partially offset the volatility penalty.
func VolatilityRisk(volatility, trendStrength float64) float64 {
	return clamp01(volatility * (1 - trendStrength*trendVolatilityOffset))
}

// LiquidityRisk maxes out below the minimum acceptable liquidity score.
func LiquidityRisk(liquidityScore float64) float64 {
	if liquidityScore < minAcceptableLiquidity {
		return 1
	}
	return clamp01((1 - liquidityScore) * liquidityRiskScale)
}

// MarketRisk base risk of the market trend plus a penalty for a weak sector.
func MarketRisk(trend domain.MarketTrend, sectorPerformance float64) float64 {
	var base float64
	switch trend {
	case domain.MarketStrongUptrend:
		base = 0.2
	case domain.MarketUptrend:
		base = 0.3
	case domain.MarketDowntrend:
		base = 0.7
	case domain.MarketStrongDowntrend:
		base = 0.8
	default:
		base = 0.5
	}
	return clamp01(base + (1-sectorPerformance)*sectorRiskWeight)
}

// ConcentrationRisk exposure to the asset relative to the concentration cap.
func ConcentrationRisk(assetExposure, portfolioValue decimal.Decimal) float64 {
	if !portfolioValue.IsPositive() {
		if assetExposure.IsPositive() {
			return 1
		}
		return 0
	}
	limit := portfolioValue.Mul(decimal.NewFromFloat(MaxConcentration))
	ratio, _ := assetExposure.Div(limit).Float64()
	return clamp01(ratio)
}

// TotalExposure share of the portfolio currently held in assets.
func TotalExposure(e domain.Exposure) float64 {
	if !e.PortfolioValue.IsPositive() {
		return 0
	}
	ratio, _ := e.Total.Div(e.PortfolioValue).Float64()
	return clamp01(ratio)
}

// MaxPositionSize position cap, non-increasing in risk.
func MaxPositionSize(portfolioValue decimal.Decimal, riskScore, totalExposure float64) decimal.Decimal {
	if !portfolioValue.IsPositive() {
		return decimal.Zero
	}
	factor := BasePositionShare * (1 - clamp01(riskScore)) * (1 - clamp01(totalExposure))
	return portfolioValue.Mul(decimal.NewFromFloat(factor))
}

// StopLoss uses the nearest support below price when it is neither too tight nor too wide,
// otherwise a volatility stop. Without support levels there is no stop.
func StopLoss(price decimal.Decimal, signals domain.TechnicalSignals) *decimal.Decimal {
	if len(signals.Support) == 0 || !price.IsPositive() {
		return nil
	}
	p, _ := price.Float64()

	nearest := math.Inf(-1)
	for _, s := range signals.Support {
		if s < p && s > nearest {
			nearest = s
		}
	}

	if !math.IsInf(nearest, -1) {
		distance := (p - nearest) / p
		if distance > minStopDistance && distance < maxStopDistance {
			stop := decimal.NewFromFloat(nearest)
			return &stop
		}
	}

	fallback := p - stopVolMultiple*signals.Volatility*p
	if fallback <= 0 {
		return nil
	}
	stop := decimal.NewFromFloat(fallback)
	return &stop
}

// RateVolatility buckets volatility risk.
func RateVolatility(v float64) domain.VolatilityRating {
	switch {
	case v < 0.2:
		return domain.VolatilityVeryLow
	case v < 0.4:
		return domain.VolatilityLow
	case v < 0.6:
		return domain.VolatilityMedium
	case v < 0.8:
		return domain.VolatilityHigh
	default:
		return domain.VolatilityVeryHigh
	}
}

// RateMarketRisk buckets market risk.
func RateMarketRisk(v float64) domain.MarketRiskLevel {
	switch {
	case v < 0.3:
		return domain.MarketRiskLow
	case v < 0.6:
		return domain.MarketRiskModerate
	case v < 0.8:
		return domain.MarketRiskHigh
	default:
		return domain.MarketRiskExtreme
	}
}

func factors(vol, liq, mkt, conc float64) []string {
	var out []string
	if vol > riskFactorThreshold {
		out = append(out, "High volatility")
	}
	if liq > riskFactorThreshold {
		out = append(out, "Low liquidity")
	}
	if mkt > riskFactorThreshold {
		out = append(out, "High market risk")
	}
	if conc > riskFactorThreshold {
		out = append(out, "High concentration risk")
	}
	return out
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
