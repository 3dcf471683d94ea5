package domain

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// Momentum oracle momentum label.
type Momentum string

const (
	MomentumStrongBuy  Momentum = "strong_buy"
	MomentumBuy        Momentum = "buy"
	MomentumNeutral    Momentum = "neutral"
	MomentumSell       Momentum = "sell"
	MomentumStrongSell Momentum = "strong_sell"
)

func (m Momentum) valid() bool {
	switch m {
	case MomentumStrongBuy, MomentumBuy, MomentumNeutral, MomentumSell, MomentumStrongSell:
		return true
	}
	return false
}

// MoneyFlow oracle smart-money flow label.
type MoneyFlow string

const (
	FlowInflow  MoneyFlow = "inflow"
	FlowNeutral MoneyFlow = "neutral"
	FlowOutflow MoneyFlow = "outflow"
)

func (f MoneyFlow) valid() bool {
	switch f {
	case FlowInflow, FlowNeutral, FlowOutflow:
		return true
	}
	return false
}

// SuggestedStrategy optional execution hints returned by the oracle.
// Invalid hints are dropped rather than failing the verdict.
type SuggestedStrategy struct {
	EntryType   EntryType
	StopLossPct *float64
	TakeProfit  []TakeProfitLevel
	Staged      *StagedEntry
	MaxSlippage *float64
}

// OracleVerdict structured verdict of the decision oracle.
type OracleVerdict struct {
	Confidence     float64
	Momentum       Momentum
	LiquidityScore float64
	SmartMoneyFlow MoneyFlow
	Reasoning      string
	Strategy       *SuggestedStrategy
}

// wire format of the verdict; required fields are pointers so absence is detectable.
type verdictPayload struct {
	Confidence     *float64 `json:"confidence"`
	Reasoning      *string  `json:"reasoning"`
	MarketAnalysis *struct {
		MomentumIndicators *struct {
			OverallMomentum *string `json:"overall_momentum"`
		} `json:"momentum_indicators"`
		LiquidityAssessment *struct {
			LiquidityScore *float64 `json:"liquidity_score"`
		} `json:"liquidity_assessment"`
		OnChainMetrics *struct {
			SmartMoneyFlow *string `json:"smart_money_flow"`
		} `json:"on_chain_metrics"`
	} `json:"market_analysis"`
	ExecutionStrategy *strategyPayload `json:"execution_strategy"`
}

type strategyPayload struct {
	EntryType        string  `json:"entry_type"`
	StopLossPct      float64 `json:"stop_loss_pct"`
	MaxSlippage      float64 `json:"max_slippage"`
	TakeProfitLevels []struct {
		PriceTarget float64 `json:"price_target"`
		SizePct     float64 `json:"size_pct"`
	} `json:"take_profit_levels"`
	DCAStrategy *struct {
		ShouldDCA     bool `json:"should_dca"`
		NumEntries    int  `json:"num_entries"`
		IntervalHours int  `json:"interval_hours"`
	} `json:"dca_strategy"`
}

// ParseVerdict parses a raw oracle response. Any missing or malformed required
// field yields an error wrapping ErrOracleParse.
func ParseVerdict(raw string) (OracleVerdict, error) {
	response := sanitizeVerdictPayload(raw)

	if !json.Valid([]byte(response)) {
		return OracleVerdict{}, errors.Wrap(ErrOracleParse, "invalid JSON structure")
	}

	var p verdictPayload
	if err := json.Unmarshal([]byte(response), &p); err != nil {
		return OracleVerdict{}, errors.Wrapf(ErrOracleParse, "JSON unmarshal error: %v", err)
	}

	v, err := p.toVerdict()
	if err != nil {
		return OracleVerdict{}, errors.Wrap(ErrOracleParse, err.Error())
	}

	return v, nil
}

func sanitizeVerdictPayload(raw string) string {
	response := strings.TrimSpace(raw)
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	response = strings.TrimSpace(response)

	// tolerate prose around the JSON object
	if start, end := strings.Index(response, "{"), strings.LastIndex(response, "}"); start >= 0 && end > start {
		response = response[start : end+1]
	}

	return response
}

func (p *verdictPayload) toVerdict() (OracleVerdict, error) {
	if p.Confidence == nil {
		return OracleVerdict{}, errors.New("confidence field is required")
	}
	if *p.Confidence < 0 || *p.Confidence > 1 {
		return OracleVerdict{}, errors.Errorf("invalid confidence: %f (must be 0.0-1.0)", *p.Confidence)
	}

	ma := p.MarketAnalysis
	if ma == nil {
		return OracleVerdict{}, errors.New("market_analysis field is required")
	}
	if ma.MomentumIndicators == nil || ma.MomentumIndicators.OverallMomentum == nil {
		return OracleVerdict{}, errors.New("market_analysis.momentum_indicators.overall_momentum is required")
	}
	momentum := Momentum(strings.ToLower(strings.TrimSpace(*ma.MomentumIndicators.OverallMomentum)))
	if !momentum.valid() {
		return OracleVerdict{}, errors.Errorf("invalid momentum: %s", momentum)
	}

	if ma.LiquidityAssessment == nil || ma.LiquidityAssessment.LiquidityScore == nil {
		return OracleVerdict{}, errors.New("market_analysis.liquidity_assessment.liquidity_score is required")
	}
	liquidity := *ma.LiquidityAssessment.LiquidityScore
	if liquidity < 0 || liquidity > 1 {
		return OracleVerdict{}, errors.Errorf("invalid liquidity_score: %f (must be 0.0-1.0)", liquidity)
	}

	if ma.OnChainMetrics == nil || ma.OnChainMetrics.SmartMoneyFlow == nil {
		return OracleVerdict{}, errors.New("market_analysis.on_chain_metrics.smart_money_flow is required")
	}
	flow := MoneyFlow(strings.ToLower(strings.TrimSpace(*ma.OnChainMetrics.SmartMoneyFlow)))
	if !flow.valid() {
		return OracleVerdict{}, errors.Errorf("invalid smart_money_flow: %s", flow)
	}

	v := OracleVerdict{
		Confidence:     *p.Confidence,
		Momentum:       momentum,
		LiquidityScore: liquidity,
		SmartMoneyFlow: flow,
	}
	if p.Reasoning != nil {
		v.Reasoning = *p.Reasoning
	}
	if p.ExecutionStrategy != nil {
		v.Strategy = p.ExecutionStrategy.toStrategy()
	}

	return v, nil
}

func (s *strategyPayload) toStrategy() *SuggestedStrategy {
	out := &SuggestedStrategy{EntryType: ParseEntryType(s.EntryType)}

	if s.StopLossPct > 0 && s.StopLossPct < 1 {
		sl := s.StopLossPct
		out.StopLossPct = &sl
	}
	if s.MaxSlippage > 0 && s.MaxSlippage < 1 {
		ms := s.MaxSlippage
		out.MaxSlippage = &ms
	}

	for _, tp := range s.TakeProfitLevels {
		if tp.PriceTarget <= 0 {
			continue
		}
		level := TakeProfitLevel{Target: tp.PriceTarget, SizeFraction: tp.SizePct}
		if level.SizeFraction <= 0 || level.SizeFraction > 1 {
			level.SizeFraction = 0
		}
		out.TakeProfit = append(out.TakeProfit, level)
	}

	if s.DCAStrategy != nil && s.DCAStrategy.ShouldDCA {
		staged := DefaultStagedEntry()
		if s.DCAStrategy.NumEntries > 0 {
			staged.NumEntries = s.DCAStrategy.NumEntries
		}
		if s.DCAStrategy.IntervalHours > 0 {
			staged.HoursBetween = s.DCAStrategy.IntervalHours
		}
		staged = staged.Clamp(MaxStagedEntries, MaxStagedHours)
		out.Staged = &staged
		if out.EntryType == EntryMarket {
			out.EntryType = EntryStaged
		}
	}

	return out
}
