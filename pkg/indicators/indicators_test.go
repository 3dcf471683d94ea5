package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func rising(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 100 + float64(i)
	}
	return out
}

// zigzag rises three for every one it falls
func zigzag(n int) []float64 {
	out := make([]float64, n)
	v := 100.0
	for i := range out {
		if i%2 == 0 {
			v += 3
		} else {
			v--
		}
		out[i] = v
	}
	return out
}

func TestCalculateEMA(t *testing.T) {
	_, err := CalculateEMA([]float64{1, 2}, 5)
	assert.Error(t, err)

	ema, err := CalculateEMA(constant(30, 5), 12)
	require.NoError(t, err)
	require.NotEmpty(t, ema)

	last, ok := Last(ema)
	require.True(t, ok)
	assert.InDelta(t, 5.0, last, 1e-9)
}

func TestCalculateEMA_TracksRisingSeries(t *testing.T) {
	fast, err := CalculateEMA(rising(60), 12)
	require.NoError(t, err)
	slow, err := CalculateEMA(rising(60), 26)
	require.NoError(t, err)

	f, _ := Last(fast)
	s, _ := Last(slow)
	assert.Greater(t, f, s)
}

func TestCalculateMACD(t *testing.T) {
	_, _, err := CalculateMACD(constant(20, 1), DefaultMACDFast, DefaultMACDSlow, DefaultMACDSignal)
	assert.Error(t, err)

	res, err := LatestMACD(constant(60, 1), DefaultMACDFast, DefaultMACDSlow, DefaultMACDSignal)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, res.MACD, 1e-9)
	assert.InDelta(t, 0.0, res.Signal, 1e-9)

	res, err = LatestMACD(rising(80), DefaultMACDFast, DefaultMACDSlow, DefaultMACDSignal)
	require.NoError(t, err)
	assert.Greater(t, res.MACD, 0.0)
}

func TestCalculateRSI(t *testing.T) {
	_, err := CalculateRSI(constant(10, 1), DefaultRSIPeriod)
	assert.Error(t, err)

	rsi, err := CalculateRSI(zigzag(60), DefaultRSIPeriod)
	require.NoError(t, err)
	last, ok := Last(rsi)
	require.True(t, ok)
	assert.Greater(t, last, 70.0)
}

func TestLast(t *testing.T) {
	_, ok := Last(nil)
	assert.False(t, ok)

	v, ok := Last([]float64{1, 2, 3})
	assert.True(t, ok)
	assert.Equal(t, 3.0, v)
}
