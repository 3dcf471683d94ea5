package oracle

import (
	"context"
	"math"

	"github.com/vadiminshakov/tradeflow/internal/domain"
)

const (
	baseConfidence = 0.4
	maxConfidence  = 0.95
	// flowChange 24h change in percent that counts as a directional flow.
	flowChange = 5.0
	// stagedVolatility volatility above which entries are split into tranches.
	stagedVolatility = 0.5
)

// Rules deterministic oracle voting on trend, RSI and MACD. Used when no LLM is configured.
type Rules struct{}

// NewRules creates a rule-based oracle.
func NewRules() *Rules {
	return &Rules{}
}

// Name returns "rules".
func (r *Rules) Name() string {
	return "rules"
}

// Evaluate scores the technical signals of the asset. It never fails.
func (r *Rules) Evaluate(_ context.Context, ac AssetContext) (domain.OracleVerdict, error) {
	s := ac.Signals
	score := trendVote(s.Trend) + macdVote(s.MACD) + rsiVote(s.RSI)

	confidence := baseConfidence + 0.1*math.Abs(float64(score)) + 0.2*s.TrendStrength
	confidence = math.Min(confidence, maxConfidence)

	v := domain.OracleVerdict{
		Confidence:     confidence,
		Momentum:       momentumOf(score),
		LiquidityScore: ac.Market.LiquidityScore,
		SmartMoneyFlow: flowOf(ac.Asset.PriceChange24h, ac.Market.VolumeProfile),
		Reasoning:      "rule vote: trend " + s.Trend.String() + ", macd " + s.MACD.String() + ", rsi " + s.RSI.String(),
	}

	if s.Volatility > stagedVolatility {
		staged := domain.DefaultStagedEntry()
		v.Strategy = &domain.SuggestedStrategy{EntryType: domain.EntryStaged, Staged: &staged}
	}
	return v, nil
}

func trendVote(t domain.TrendDirection) int {
	switch t {
	case domain.TrendStrongUp:
		return 2
	case domain.TrendUp:
		return 1
	case domain.TrendDown:
		return -1
	case domain.TrendStrongDown:
		return -2
	}
	return 0
}

func macdVote(m domain.MACDSignal) int {
	switch m {
	case domain.MACDStrongBuy:
		return 2
	case domain.MACDBuy:
		return 1
	case domain.MACDSell:
		return -1
	case domain.MACDStrongSell:
		return -2
	}
	return 0
}

// overbought assets are expected to revert
func rsiVote(r domain.RSISignal) int {
	switch r {
	case domain.RSIOversold:
		return 1
	case domain.RSIOverbought:
		return -1
	}
	return 0
}

func momentumOf(score int) domain.Momentum {
	switch {
	case score >= 3:
		return domain.MomentumStrongBuy
	case score >= 1:
		return domain.MomentumBuy
	case score <= -3:
		return domain.MomentumStrongSell
	case score <= -1:
		return domain.MomentumSell
	}
	return domain.MomentumNeutral
}

func flowOf(change24h float64, volumeProfile string) domain.MoneyFlow {
	switch {
	case change24h >= flowChange && volumeProfile == domain.VolumeProfileHigh:
		return domain.FlowInflow
	case change24h <= -flowChange:
		return domain.FlowOutflow
	}
	return domain.FlowNeutral
}
