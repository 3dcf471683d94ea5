package decision

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/tradeflow/internal/domain"
	"go.uber.org/zap"
)

func newSynth() *Synthesizer {
	return NewSynthesizer(Config{
		MinConfidence: 0.7,
		MinPosition:   decimal.NewFromFloat(1),
		MaxPosition:   decimal.NewFromFloat(100),
		MaxSlippage:   0.02,
	}, zap.NewNop())
}

func bullishVerdict() domain.OracleVerdict {
	return domain.OracleVerdict{
		Confidence:     0.9,
		Momentum:       domain.MomentumStrongBuy,
		LiquidityScore: 0.8,
		SmartMoneyFlow: domain.FlowInflow,
		Reasoning:      "breakout",
	}
}

func synth(s *Synthesizer, risk, trend float64, v domain.OracleVerdict) domain.TradingDecision {
	return s.Synthesize(
		domain.AssetSnapshot{Address: "SOL", Symbol: "SOL"},
		domain.TechnicalSignals{TrendStrength: trend},
		domain.MarketContext{},
		domain.RiskAssessment{Score: risk},
		v,
	)
}

func TestSynthesize_Action(t *testing.T) {
	s := newSynth()

	tests := []struct {
		name   string
		risk   float64
		modify func(v *domain.OracleVerdict)
		want   domain.Action
	}{
		{"all buy conditions", 0.2, func(v *domain.OracleVerdict) {}, domain.ActionBuy},
		{"buy momentum", 0.3, func(v *domain.OracleVerdict) { v.Momentum = domain.MomentumBuy }, domain.ActionBuy},
		{"confidence at threshold", 0.2, func(v *domain.OracleVerdict) { v.Confidence = 0.7 }, domain.ActionBuy},
		{"low confidence", 0.2, func(v *domain.OracleVerdict) { v.Confidence = 0.6 }, domain.ActionHold},
		{"low oracle liquidity", 0.2, func(v *domain.OracleVerdict) { v.LiquidityScore = 0.69 }, domain.ActionHold},
		{"risk above buy threshold", 0.31, func(v *domain.OracleVerdict) {}, domain.ActionHold},
		{"neutral momentum", 0.2, func(v *domain.OracleVerdict) { v.Momentum = domain.MomentumNeutral }, domain.ActionHold},
		{"neutral flow", 0.2, func(v *domain.OracleVerdict) { v.SmartMoneyFlow = domain.FlowNeutral }, domain.ActionHold},
		{"high risk sells", 0.71, func(v *domain.OracleVerdict) {}, domain.ActionSell},
		{"strong sell momentum", 0.2, func(v *domain.OracleVerdict) { v.Momentum = domain.MomentumStrongSell }, domain.ActionSell},
		{"outflow", 0.2, func(v *domain.OracleVerdict) { v.SmartMoneyFlow = domain.FlowOutflow }, domain.ActionSell},
		{"plain sell momentum holds", 0.5, func(v *domain.OracleVerdict) { v.Momentum = domain.MomentumSell }, domain.ActionHold},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := bullishVerdict()
			tt.modify(&v)
			got := synth(s, tt.risk, 0.5, v)
			assert.Equal(t, tt.want, got.Action)
			if tt.want == domain.ActionSell {
				assert.Equal(t, domain.ExitSignal, got.Reason)
			}
		})
	}
}

func TestSynthesize_NeverBuysAboveRiskThreshold(t *testing.T) {
	s := newSynth()
	rng := rand.New(rand.NewSource(7))
	momenta := []domain.Momentum{domain.MomentumStrongBuy, domain.MomentumBuy, domain.MomentumNeutral, domain.MomentumSell, domain.MomentumStrongSell}
	flows := []domain.MoneyFlow{domain.FlowInflow, domain.FlowNeutral, domain.FlowOutflow}

	for i := 0; i < 1000; i++ {
		risk := 0.3 + 1e-9 + rng.Float64()*0.7
		v := domain.OracleVerdict{
			Confidence:     rng.Float64(),
			Momentum:       momenta[rng.Intn(len(momenta))],
			LiquidityScore: rng.Float64(),
			SmartMoneyFlow: flows[rng.Intn(len(flows))],
		}
		require.NotEqual(t, domain.ActionBuy, synth(s, risk, rng.Float64(), v).Action)
	}
}

func TestSynthesize_Size(t *testing.T) {
	s := newSynth()

	t.Run("formula", func(t *testing.T) {
		v := bullishVerdict()
		v.Momentum = domain.MomentumBuy
		v.LiquidityScore = 0.5
		got := synth(s, 0.2, 0.9, v)

		// 100 * 0.2 * 0.8 * 0.9 * min(0.75, 1) * 0.8
		want := 100 * 0.2 * 0.8 * 0.9 * 0.75 * 0.8
		f, _ := got.Size.Float64()
		assert.InDelta(t, want, f, 1e-9)
	})

	t.Run("clamped to min", func(t *testing.T) {
		got := synth(s, 0.2, 0, bullishVerdict())
		assert.True(t, got.Size.Equal(decimal.NewFromInt(1)))
	})

	t.Run("momentum multipliers", func(t *testing.T) {
		assert.Equal(t, 1.0, momentumMultiplier(domain.MomentumStrongBuy))
		assert.Equal(t, 0.8, momentumMultiplier(domain.MomentumBuy))
		assert.Equal(t, 0.5, momentumMultiplier(domain.MomentumNeutral))
		assert.Equal(t, 0.3, momentumMultiplier(domain.MomentumSell))
		assert.Equal(t, 0.3, momentumMultiplier(domain.MomentumStrongSell))
	})
}

func TestSynthesize_DefaultExecutionParams(t *testing.T) {
	s := newSynth()

	low := synth(s, 0.2, 0.5, bullishVerdict())
	assert.Equal(t, domain.EntryMarket, low.Params.EntryType)
	assert.Equal(t, 0.10, low.Params.StopLossPct)
	assert.Equal(t, 0.02, low.Params.MaxSlippage)
	assert.Nil(t, low.Params.Staged)

	require.Len(t, low.Params.TakeProfit, 3)
	assert.Equal(t, 0.10, low.Params.TakeProfit[0].Target)
	assert.Equal(t, 0.20, low.Params.TakeProfit[1].Target)
	assert.Equal(t, 0.30, low.Params.TakeProfit[2].Target)
	assert.InDelta(t, 1.0/3, low.Params.TakeProfit[0].SizeFraction, 1e-12)
	assert.InDelta(t, 0.5, low.Params.TakeProfit[1].SizeFraction, 1e-12)
	assert.InDelta(t, 1.0, low.Params.TakeProfit[2].SizeFraction, 1e-12)

	high := synth(s, 0.8, 0.5, bullishVerdict())
	assert.Equal(t, 0.05, high.Params.StopLossPct)
}

func TestSynthesize_StrategyFromOracle(t *testing.T) {
	s := newSynth()
	sl := 0.07
	slip := 0.01
	v := bullishVerdict()
	v.Strategy = &domain.SuggestedStrategy{
		EntryType:   domain.EntryStaged,
		StopLossPct: &sl,
		MaxSlippage: &slip,
		TakeProfit: []domain.TakeProfitLevel{
			{Target: 0.5, SizeFraction: 1},
			{Target: 0.25},
		},
	}

	d := synth(s, 0.2, 0.5, v)
	assert.Equal(t, domain.EntryStaged, d.Params.EntryType)
	assert.Equal(t, 0.07, d.Params.StopLossPct)
	assert.Equal(t, 0.01, d.Params.MaxSlippage)
	require.NotNil(t, d.Params.Staged)
	assert.Equal(t, domain.DefaultStagedEntry(), *d.Params.Staged)
	assert.Equal(t, []domain.TakeProfitLevel{{Target: 0.25, SizeFraction: 0.5}, {Target: 0.5, SizeFraction: 1}}, d.Params.TakeProfit)
}

func TestSynthesize_StagedEntryBounded(t *testing.T) {
	s := NewSynthesizer(Config{
		MinConfidence:    0.7,
		MinPosition:      decimal.NewFromFloat(1),
		MaxPosition:      decimal.NewFromFloat(100),
		MaxSlippage:      0.02,
		MaxStagedEntries: 3,
		MaxStagedHours:   24,
	}, zap.NewNop())

	v := bullishVerdict()
	v.Strategy = &domain.SuggestedStrategy{
		EntryType: domain.EntryStaged,
		Staged:    &domain.StagedEntry{NumEntries: 1_000_000, HoursBetween: 87_600},
	}

	d := synth(s, 0.2, 0.5, v)
	require.NotNil(t, d.Params.Staged)
	assert.Equal(t, domain.StagedEntry{NumEntries: 3, HoursBetween: 24}, *d.Params.Staged)
	assert.Equal(t, 1_000_000, v.Strategy.Staged.NumEntries, "verdict must not be mutated")
	require.NoError(t, d.Validate())
}

func TestSynthesize_SlippageAboveConfigIgnored(t *testing.T) {
	slip := 0.2
	v := bullishVerdict()
	v.Strategy = &domain.SuggestedStrategy{EntryType: domain.EntryLimit, MaxSlippage: &slip}

	d := synth(newSynth(), 0.2, 0.5, v)
	assert.Equal(t, 0.02, d.Params.MaxSlippage)
	assert.Equal(t, domain.EntryLimit, d.Params.EntryType)
}

func TestHoldAndDowngrade(t *testing.T) {
	s := newSynth()
	sl := decimal.NewFromInt(9)
	risk := domain.RiskAssessment{Score: 0.4, StopLossPrice: &sl}

	h := s.Hold(domain.AssetSnapshot{Address: "SOL"}, domain.TechnicalSignals{}, domain.MarketContext{}, risk, "oracle unavailable")
	assert.Equal(t, domain.ActionHold, h.Action)
	assert.Equal(t, "oracle unavailable", h.Reasoning)
	assert.Equal(t, 0.4, h.RiskScore)
	assert.NotEmpty(t, h.ID)
	assert.NoError(t, h.Validate())

	buy := synth(s, 0.2, 0.5, bullishVerdict())
	require.Equal(t, domain.ActionBuy, buy.Action)
	down := Downgrade(buy, "risk violation")
	assert.Equal(t, domain.ActionHold, down.Action)
	assert.True(t, down.Size.IsZero())
	assert.Equal(t, buy.ID, down.ID)
	assert.Contains(t, down.Reasoning, "risk violation")
}
