// Package technical derives trend, momentum, support/resistance and volatility signals from a price series.
package technical

import (
	"math"
	"slices"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/tradeflow/internal/domain"
	"github.com/vadiminshakov/tradeflow/pkg/indicators"
	"go.uber.org/zap"
)

const (
	fastEMAPeriod = 12
	slowEMAPeriod = 26

	trendThreshold       = 0.02
	strongTrendThreshold = 0.05

	rsiOverbought = 70.0
	rsiOversold   = 30.0
	rsiBullish    = 60.0
	rsiBearish    = 40.0

	macdThreshold = 0.0002

	// LevelWindow samples on each side of a support/resistance candidate.
	LevelWindow = 20
	levelOffset = 0.02
)

// Analyzer computes technical signals. It keeps no state between calls and is safe for concurrent use.
type Analyzer struct {
	logger *zap.Logger
}

// NewAnalyzer creates a new Analyzer.
func NewAnalyzer(logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{logger: logger}
}

// Analyze computes signals from prices ordered oldest to newest.
// Short series degrade to neutral classifications instead of failing.
func (a *Analyzer) Analyze(prices []float64) (domain.TechnicalSignals, error) {
	if len(prices) == 0 {
		return domain.TechnicalSignals{}, errors.Wrap(domain.ErrInsufficientData, "empty price series")
	}
	for i, p := range prices {
		if p <= 0 || math.IsNaN(p) || math.IsInf(p, 0) {
			return domain.TechnicalSignals{}, errors.Wrapf(domain.ErrInsufficientData, "invalid price %v at %d", p, i)
		}
	}

	trend, strength := a.trend(prices)
	support, resistance := SupportResistance(prices)

	return domain.TechnicalSignals{
		Trend:         trend,
		TrendStrength: strength,
		Support:       support,
		Resistance:    resistance,
		RSI:           a.rsi(prices),
		MACD:          a.macd(prices),
		Volatility:    math.Min(Volatility(prices), 1),
	}, nil
}

func (a *Analyzer) trend(prices []float64) (domain.TrendDirection, float64) {
	fast, err := indicators.CalculateEMA(prices, fastEMAPeriod)
	if err != nil {
		a.logger.Debug("trend unavailable", zap.Error(err))
		return domain.TrendSideways, 0
	}
	slow, err := indicators.CalculateEMA(prices, slowEMAPeriod)
	if err != nil {
		a.logger.Debug("trend unavailable", zap.Error(err))
		return domain.TrendSideways, 0
	}

	f, _ := indicators.Last(fast)
	s, ok := indicators.Last(slow)
	if !ok || s == 0 {
		return domain.TrendSideways, 0
	}

	diff := (f - s) / s
	return ClassifyTrend(diff), math.Min(math.Abs(diff), 1)
}

func (a *Analyzer) rsi(prices []float64) domain.RSISignal {
	values, err := indicators.CalculateRSI(prices, indicators.DefaultRSIPeriod)
	if err != nil {
		a.logger.Debug("rsi unavailable", zap.Error(err))
		return domain.RSINeutral
	}
	last, _ := indicators.Last(values)
	return ClassifyRSI(last)
}

func (a *Analyzer) macd(prices []float64) domain.MACDSignal {
	res, err := indicators.LatestMACD(prices, indicators.DefaultMACDFast, indicators.DefaultMACDSlow, indicators.DefaultMACDSignal)
	if err != nil {
		a.logger.Debug("macd unavailable", zap.Error(err))
		return domain.MACDNeutral
	}
	return ClassifyMACD(res.MACD, res.Signal)
}

// ClassifyTrend classifies the relative EMA(12)/EMA(26) spread.
func ClassifyTrend(diff float64) domain.TrendDirection {
	switch {
	case diff > strongTrendThreshold:
		return domain.TrendStrongUp
	case diff > trendThreshold:
		return domain.TrendUp
	case diff < -strongTrendThreshold:
		return domain.TrendStrongDown
	case diff < -trendThreshold:
		return domain.TrendDown
	default:
		return domain.TrendSideways
	}
}

// ClassifyRSI classifies an RSI reading.
func ClassifyRSI(rsi float64) domain.RSISignal {
	switch {
	case math.IsNaN(rsi):
		return domain.RSINeutral
	case rsi >= rsiOverbought:
		return domain.RSIOverbought
	case rsi <= rsiOversold:
		return domain.RSIOversold
	case rsi > rsiBullish:
		return domain.RSIBullish
	case rsi < rsiBearish:
		return domain.RSIBearish
	default:
		return domain.RSINeutral
	}
}

// ClassifyMACD classifies the distance of the MACD line from its signal line.
func ClassifyMACD(macd, signal float64) domain.MACDSignal {
	diff := macd - signal
	switch {
	case diff > macdThreshold*2:
		return domain.MACDStrongBuy
	case diff > macdThreshold:
		return domain.MACDBuy
	case diff < -macdThreshold*2:
		return domain.MACDStrongSell
	case diff < -macdThreshold:
		return domain.MACDSell
	default:
		return domain.MACDNeutral
	}
}

// SupportResistance finds strict local extrema over LevelWindow samples on each side
// and offsets them outward by 2%. Both lists are ascending and deduplicated.
func SupportResistance(prices []float64) (support, resistance []float64) {
	support, resistance = []float64{}, []float64{}
	if len(prices) < 2*LevelWindow+1 {
		return support, resistance
	}

	seenSupport := make(map[float64]struct{})
	seenResistance := make(map[float64]struct{})

	for i := LevelWindow; i+LevelWindow < len(prices); i++ {
		current := prices[i]
		leftMin, leftMax := bounds(prices[i-LevelWindow : i])
		rightMin, rightMax := bounds(prices[i+1 : i+1+LevelWindow])

		if current < leftMin && current < rightMin {
			level := current * (1 - levelOffset)
			if _, ok := seenSupport[level]; !ok {
				seenSupport[level] = struct{}{}
				support = append(support, level)
			}
		}

		if current > leftMax && current > rightMax {
			level := current * (1 + levelOffset)
			if _, ok := seenResistance[level]; !ok {
				seenResistance[level] = struct{}{}
				resistance = append(resistance, level)
			}
		}
	}

	slices.Sort(support)
	slices.Sort(resistance)

	return support, resistance
}

// Volatility population standard deviation of simple period-over-period returns.
func Volatility(prices []float64) float64 {
	if len(prices) < 2 {
		return 0
	}

	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		returns = append(returns, (prices[i]-prices[i-1])/prices[i-1])
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))

	return math.Sqrt(variance)
}

func bounds(window []float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range window {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}
