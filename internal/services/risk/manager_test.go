package risk

import (
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/tradeflow/internal/domain"
	"go.uber.org/zap"
)

func d(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func newManager() *Manager {
	return NewManager(Limits{MinPosition: d(1), MaxPosition: d(100)}, zap.NewNop())
}

func TestAssess_ScoreIsWeightedSum(t *testing.T) {
	m := newManager()
	rng := rand.New(rand.NewSource(42))
	trends := []domain.MarketTrend{
		domain.MarketStrongUptrend, domain.MarketUptrend, domain.MarketSideways,
		domain.MarketDowntrend, domain.MarketStrongDowntrend, "unknown",
	}

	for i := 0; i < 500; i++ {
		signals := domain.TechnicalSignals{
			Volatility:    rng.Float64() * 1.5,
			TrendStrength: rng.Float64(),
			Support:       []float64{rng.Float64() * 10},
		}
		market := domain.MarketContext{
			Trend:             trends[rng.Intn(len(trends))],
			SectorPerformance: rng.Float64()*2 - 0.5,
			LiquidityScore:    rng.Float64(),
		}
		exposure := domain.Exposure{
			Asset:          d(rng.Float64() * 500),
			Total:          d(rng.Float64() * 1000),
			PortfolioValue: d(rng.Float64() * 1000),
		}

		a := m.Assess(domain.AssetSnapshot{PriceQuote: d(10)}, signals, market, exposure)

		for _, c := range []float64{a.VolatilityRisk, a.LiquidityRisk, a.MarketRisk, a.ConcentrationRisk} {
			require.GreaterOrEqual(t, c, 0.0)
			require.LessOrEqual(t, c, 1.0)
		}
		want := 0.3*a.VolatilityRisk + 0.3*a.LiquidityRisk + 0.2*a.MarketRisk + 0.2*a.ConcentrationRisk
		require.InDelta(t, want, a.Score, 1e-12)
		require.GreaterOrEqual(t, a.Score, 0.0)
		require.LessOrEqual(t, a.Score, 1.0)
	}
}

func TestAssess_Components(t *testing.T) {
	m := newManager()
	a := m.Assess(
		domain.AssetSnapshot{Symbol: "SOL", PriceQuote: d(100)},
		domain.TechnicalSignals{Volatility: 0.5, TrendStrength: 0.5, Support: []float64{95}},
		domain.MarketContext{Trend: domain.MarketUptrend, SectorPerformance: 0.5, LiquidityScore: 0.6},
		domain.Exposure{Asset: d(10), Total: d(100), PortfolioValue: d(1000)},
	)

	assert.InDelta(t, 0.5*(1-0.15), a.VolatilityRisk, 1e-12)
	assert.InDelta(t, 0.6, a.LiquidityRisk, 1e-12)
	assert.InDelta(t, 0.4, a.MarketRisk, 1e-12)
	assert.InDelta(t, 10.0/200.0, a.ConcentrationRisk, 1e-12)
	assert.Equal(t, domain.VolatilityMedium, a.VolatilityRating)
	assert.Equal(t, domain.MarketRiskModerate, a.MarketRiskLevel)
	assert.Empty(t, a.Factors)

	// 1000 * 0.1 * (1 - score) * (1 - 0.1)
	want := 1000 * 0.1 * (1 - a.Score) * 0.9
	got, _ := a.MaxPositionSize.Float64()
	assert.InDelta(t, want, got, 1e-6)

	// support 5% below price is inside (2%, 15%)
	require.NotNil(t, a.StopLossPrice)
	assert.True(t, a.StopLossPrice.Equal(d(95)))
}

func TestAssess_Factors(t *testing.T) {
	a := newManager().Assess(
		domain.AssetSnapshot{PriceQuote: d(1)},
		domain.TechnicalSignals{Volatility: 1},
		domain.MarketContext{Trend: domain.MarketStrongDowntrend, SectorPerformance: 0, LiquidityScore: 0.1},
		domain.Exposure{Asset: d(300), Total: d(300), PortfolioValue: d(1000)},
	)

	assert.Equal(t, []string{"High volatility", "Low liquidity", "High market risk", "High concentration risk"}, a.Factors)
	assert.Equal(t, domain.VolatilityVeryHigh, a.VolatilityRating)
	assert.Equal(t, domain.MarketRiskExtreme, a.MarketRiskLevel)
	assert.Equal(t, 1.0, a.ConcentrationRisk)
}

func TestMaxPositionSize_NonIncreasingInRisk(t *testing.T) {
	portfolio := d(10_000)
	for _, exposure := range []float64{0, 0.25, 0.9, 1} {
		prev := MaxPositionSize(portfolio, 0, exposure)
		for risk := 0.01; risk <= 1.0001; risk += 0.01 {
			cur := MaxPositionSize(portfolio, risk, exposure)
			require.True(t, cur.LessThanOrEqual(prev), "risk=%v exposure=%v", risk, exposure)
			prev = cur
		}
	}
	assert.True(t, MaxPositionSize(decimal.Zero, 0, 0).IsZero())
}

func TestLiquidityRisk(t *testing.T) {
	assert.Equal(t, 1.0, LiquidityRisk(0.29))
	assert.InDelta(t, 1.0, LiquidityRisk(0.3), 1e-12)
	assert.InDelta(t, 0.3, LiquidityRisk(0.8), 1e-12)
	assert.Equal(t, 0.0, LiquidityRisk(1))
}

func TestMarketRisk(t *testing.T) {
	tests := []struct {
		trend domain.MarketTrend
		want  float64
	}{
		{domain.MarketStrongUptrend, 0.2},
		{domain.MarketUptrend, 0.3},
		{domain.MarketSideways, 0.5},
		{domain.MarketDowntrend, 0.7},
		{domain.MarketStrongDowntrend, 0.8},
		{"", 0.5},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, MarketRisk(tt.trend, 1), 1e-12, string(tt.trend))
	}
	assert.InDelta(t, 1.0, MarketRisk(domain.MarketStrongDowntrend, 0), 1e-12)
}

func TestConcentrationRisk(t *testing.T) {
	assert.Equal(t, 0.0, ConcentrationRisk(decimal.Zero, d(100)))
	assert.InDelta(t, 0.5, ConcentrationRisk(d(10), d(100)), 1e-12)
	assert.Equal(t, 1.0, ConcentrationRisk(d(50), d(100)))
	assert.Equal(t, 1.0, ConcentrationRisk(d(1), decimal.Zero))
	assert.Equal(t, 0.0, ConcentrationRisk(decimal.Zero, decimal.Zero))
}

func TestStopLoss(t *testing.T) {
	price := d(100)

	t.Run("no supports", func(t *testing.T) {
		assert.Nil(t, StopLoss(price, domain.TechnicalSignals{Volatility: 0.1}))
	})

	t.Run("nearest support in range", func(t *testing.T) {
		sl := StopLoss(price, domain.TechnicalSignals{Support: []float64{80, 90, 105}})
		require.NotNil(t, sl)
		assert.True(t, sl.Equal(d(90)))
	})

	t.Run("support too tight falls back to volatility stop", func(t *testing.T) {
		sl := StopLoss(price, domain.TechnicalSignals{Support: []float64{99}, Volatility: 0.05})
		require.NotNil(t, sl)
		assert.True(t, sl.Equal(d(90)))
	})

	t.Run("support too wide falls back to volatility stop", func(t *testing.T) {
		sl := StopLoss(price, domain.TechnicalSignals{Support: []float64{50}, Volatility: 0.1})
		require.NotNil(t, sl)
		assert.True(t, sl.Equal(d(80)))
	})

	t.Run("volatility stop below zero", func(t *testing.T) {
		assert.Nil(t, StopLoss(price, domain.TechnicalSignals{Support: []float64{10}, Volatility: 0.6}))
	})
}

func TestValidatePositionSize(t *testing.T) {
	m := newManager()

	tests := []struct {
		name      string
		size      decimal.Decimal
		portfolio decimal.Decimal
		wantErr   bool
	}{
		{"within bounds", d(50), d(1000), false},
		{"below min", d(0.5), d(1000), true},
		{"above max", d(101), d(10_000), true},
		{"above 20 percent of portfolio", d(50), d(200), true},
		{"exactly 20 percent", d(40), d(200), false},
		{"empty portfolio", d(10), decimal.Zero, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.ValidatePositionSize(tt.size, tt.portfolio)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var violation *domain.RiskViolation
			assert.True(t, errors.As(err, &violation))
		})
	}
}
