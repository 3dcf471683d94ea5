// Package indicators provides technical analysis indicators (EMA, MACD, RSI) over price series.
//
// Every call builds fresh indicator instances, so no smoothing state leaks between series.
package indicators

import (
	"fmt"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/momentum"
	"github.com/cinar/indicator/v2/trend"
)

const (
	DefaultRSIPeriod = 14

	DefaultMACDFast   = 12
	DefaultMACDSlow   = 26
	DefaultMACDSignal = 9
)

// MACDResult latest MACD line and signal line values.
type MACDResult struct {
	MACD   float64
	Signal float64
}

// CalculateEMA calculates the Exponential Moving Average for the given period.
func CalculateEMA(closes []float64, period int) ([]float64, error) {
	if period < 1 {
		return nil, fmt.Errorf("invalid EMA period %d", period)
	}
	if len(closes) < period {
		return nil, fmt.Errorf("not enough data points: need %d, got %d", period, len(closes))
	}

	ema := trend.NewEmaWithPeriod[float64](period)
	outputChan := ema.Compute(helper.SliceToChan(closes))

	return helper.ChanToSlice(outputChan), nil
}

// CalculateMACD calculates the MACD and signal lines with the given periods.
func CalculateMACD(closes []float64, fast, slow, signal int) ([]float64, []float64, error) {
	if len(closes) < slow+signal-1 {
		return nil, nil, fmt.Errorf("not enough data points for MACD: need at least %d, got %d", slow+signal-1, len(closes))
	}

	macd := trend.NewMacdWithPeriod[float64](fast, slow, signal)
	macdChan, signalChan := macd.Compute(helper.SliceToChan(closes))

	// both outputs share one input and must be drained concurrently
	var signals []float64
	done := make(chan struct{})
	go func() {
		signals = helper.ChanToSlice(signalChan)
		close(done)
	}()
	macds := helper.ChanToSlice(macdChan)
	<-done

	if len(macds) == 0 || len(signals) == 0 {
		return nil, nil, fmt.Errorf("not enough data points for MACD signal, got %d", len(closes))
	}

	return macds, signals, nil
}

// LatestMACD returns the last MACD and signal values of a series.
func LatestMACD(closes []float64, fast, slow, signal int) (MACDResult, error) {
	macds, signals, err := CalculateMACD(closes, fast, slow, signal)
	if err != nil {
		return MACDResult{}, err
	}

	return MACDResult{MACD: macds[len(macds)-1], Signal: signals[len(signals)-1]}, nil
}

// CalculateRSI calculates the Relative Strength Index for the given period.
func CalculateRSI(closes []float64, period int) ([]float64, error) {
	if len(closes) < period+1 {
		return nil, fmt.Errorf("not enough data points for RSI: need %d, got %d", period+1, len(closes))
	}

	rsi := momentum.NewRsiWithPeriod[float64](period)
	rsiFloat := helper.ChanToSlice(rsi.Compute(helper.SliceToChan(closes)))
	if len(rsiFloat) == 0 {
		return nil, fmt.Errorf("not enough data points for RSI: got %d", len(closes))
	}

	return rsiFloat, nil
}

// Last returns the last element of a series.
func Last(series []float64) (float64, bool) {
	if len(series) == 0 {
		return 0, false
	}
	return series[len(series)-1], true
}
