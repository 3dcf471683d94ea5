// Package decision combines technical signals, risk and the oracle verdict into a trading decision.
package decision

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/tradeflow/internal/domain"
	"go.uber.org/zap"
)

const (
	minOracleLiquidity = 0.7
	maxBuyRisk         = 0.3
	sellRisk           = 0.7

	baseSizeShare       = 0.2
	liquidityMultiplier = 1.5

	highRiskStopLoss = 0.05
	defaultStopLoss  = 0.10
)

// DefaultTakeProfitTargets fractional gains of the default take-profit ladder.
var DefaultTakeProfitTargets = []float64{0.10, 0.20, 0.30}

// Config synthesizer settings.
type Config struct {
	MinConfidence float64
	MinPosition   decimal.Decimal
	MaxPosition   decimal.Decimal
	MaxSlippage   float64
	// MaxStagedEntries and MaxStagedHours bound staged entries; zero means the domain ceilings.
	MaxStagedEntries int
	MaxStagedHours   int
}

// Synthesizer builds trading decisions. It is stateless and safe for concurrent use.
type Synthesizer struct {
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

// NewSynthesizer creates a new Synthesizer.
func NewSynthesizer(cfg Config, logger *zap.Logger) *Synthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{cfg: cfg, logger: logger, now: time.Now}
}

// Synthesize applies the decision rule and sizes the position.
func (s *Synthesizer) Synthesize(
	asset domain.AssetSnapshot,
	signals domain.TechnicalSignals,
	market domain.MarketContext,
	risk domain.RiskAssessment,
	verdict domain.OracleVerdict,
) domain.TradingDecision {
	action := s.action(risk.Score, verdict)
	size := s.positionSize(risk.Score, signals.TrendStrength, verdict)

	d := s.base(asset, signals, market, risk)
	d.Action = action
	d.Size = size
	d.Confidence = verdict.Confidence
	d.Reasoning = verdict.Reasoning
	d.Params = s.executionParams(risk.Score, verdict.Strategy)
	if action == domain.ActionSell {
		d.Reason = domain.ExitSignal
	}

	s.logger.Debug("decision synthesized",
		zap.String("asset", asset.Symbol),
		zap.Stringer("action", action),
		zap.String("size", size.StringFixed(4)),
		zap.Float64("confidence", verdict.Confidence),
		zap.Float64("risk", risk.Score),
		zap.String("momentum", string(verdict.Momentum)),
		zap.String("flow", string(verdict.SmartMoneyFlow)),
	)

	return d
}

// Hold builds a Hold decision, used when the oracle or the risk gate rules the asset out.
func (s *Synthesizer) Hold(
	asset domain.AssetSnapshot,
	signals domain.TechnicalSignals,
	market domain.MarketContext,
	risk domain.RiskAssessment,
	reason string,
) domain.TradingDecision {
	d := s.base(asset, signals, market, risk)
	d.Action = domain.ActionHold
	d.Reasoning = reason
	d.Params = s.executionParams(risk.Score, nil)
	return d
}

// Downgrade turns a decision into a Hold while keeping its analysis snapshot.
func Downgrade(d domain.TradingDecision, reason string) domain.TradingDecision {
	d.Action = domain.ActionHold
	d.Size = decimal.Zero
	d.Quantity = decimal.Zero
	d.Reason = ""
	d.Reasoning = fmt.Sprintf("%s (was: %s)", reason, d.Reasoning)
	return d
}

func (s *Synthesizer) base(asset domain.AssetSnapshot, signals domain.TechnicalSignals, market domain.MarketContext, risk domain.RiskAssessment) domain.TradingDecision {
	return domain.TradingDecision{
		ID:            uuid.NewString(),
		Address:       asset.Address,
		Symbol:        asset.Symbol,
		RiskScore:     risk.Score,
		Signals:       signals,
		Market:        market,
		StopLossPrice: risk.StopLossPrice,
		CreatedAt:     s.now(),
	}
}

func (s *Synthesizer) action(risk float64, v domain.OracleVerdict) domain.Action {
	bullish := v.Momentum == domain.MomentumBuy || v.Momentum == domain.MomentumStrongBuy

	switch {
	case v.Confidence >= s.cfg.MinConfidence &&
		v.LiquidityScore >= minOracleLiquidity &&
		risk <= maxBuyRisk &&
		bullish &&
		v.SmartMoneyFlow == domain.FlowInflow:
		return domain.ActionBuy
	case risk > sellRisk || v.Momentum == domain.MomentumStrongSell || v.SmartMoneyFlow == domain.FlowOutflow:
		return domain.ActionSell
	default:
		return domain.ActionHold
	}
}

func (s *Synthesizer) positionSize(risk, trendStrength float64, v domain.OracleVerdict) decimal.Decimal {
	liquidity := math.Min(v.LiquidityScore*liquidityMultiplier, 1)

	factor := baseSizeShare * (1 - risk) * trendStrength * liquidity * momentumMultiplier(v.Momentum)
	size := s.cfg.MaxPosition.Mul(decimal.NewFromFloat(factor))

	if size.LessThan(s.cfg.MinPosition) {
		size = s.cfg.MinPosition
	}
	if size.GreaterThan(s.cfg.MaxPosition) {
		size = s.cfg.MaxPosition
	}
	return size
}

func momentumMultiplier(m domain.Momentum) float64 {
	switch m {
	case domain.MomentumStrongBuy:
		return 1.0
	case domain.MomentumBuy:
		return 0.8
	case domain.MomentumNeutral:
		return 0.5
	default:
		return 0.3
	}
}

func (s *Synthesizer) executionParams(risk float64, strategy *domain.SuggestedStrategy) domain.ExecutionParams {
	params := domain.ExecutionParams{
		EntryType:   domain.EntryMarket,
		StopLossPct: defaultStopLoss,
		MaxSlippage: s.cfg.MaxSlippage,
	}
	if risk > sellRisk {
		params.StopLossPct = highRiskStopLoss
	}

	var levels []domain.TakeProfitLevel
	if strategy != nil {
		params.EntryType = strategy.EntryType
		if strategy.StopLossPct != nil {
			params.StopLossPct = *strategy.StopLossPct
		}
		if strategy.MaxSlippage != nil && *strategy.MaxSlippage <= s.cfg.MaxSlippage {
			params.MaxSlippage = *strategy.MaxSlippage
		}
		levels = strategy.TakeProfit
		if strategy.Staged != nil {
			staged := *strategy.Staged
			params.Staged = &staged
		}
	}

	if len(levels) == 0 {
		levels = make([]domain.TakeProfitLevel, len(DefaultTakeProfitTargets))
		for i, target := range DefaultTakeProfitTargets {
			levels[i] = domain.TakeProfitLevel{Target: target}
		}
	}
	params.TakeProfit = ladder(levels)

	if params.EntryType == domain.EntryStaged && params.Staged == nil {
		staged := domain.DefaultStagedEntry()
		params.Staged = &staged
	}
	if params.Staged != nil {
		staged := params.Staged.Clamp(s.cfg.MaxStagedEntries, s.cfg.MaxStagedHours)
		params.Staged = &staged
	}
	if params.EntryType != domain.EntryStaged {
		params.Staged = nil
	}

	return params
}

// ladder orders rungs by target and fills missing size fractions so that the rungs
// sell equal shares of the original quantity: 1/n, then 1/(n-1) of what is left, and so on.
func ladder(levels []domain.TakeProfitLevel) []domain.TakeProfitLevel {
	out := slices.Clone(levels)
	slices.SortStableFunc(out, func(a, b domain.TakeProfitLevel) int {
		return cmp.Compare(a.Target, b.Target)
	})

	n := len(out)
	for i := range out {
		if out[i].SizeFraction <= 0 || out[i].SizeFraction > 1 {
			out[i].SizeFraction = 1 / float64(n-i)
		}
	}
	return out
}
