package domain

// TrendDirection five-level trend classification.
type TrendDirection int

const (
	TrendSideways TrendDirection = iota
	TrendStrongDown
	TrendDown
	TrendUp
	TrendStrongUp
)

func (t TrendDirection) String() string {
	switch t {
	case TrendStrongDown:
		return "strong_down"
	case TrendDown:
		return "down"
	case TrendSideways:
		return "sideways"
	case TrendUp:
		return "up"
	case TrendStrongUp:
		return "strong_up"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t TrendDirection) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// RSISignal RSI classification.
type RSISignal int

const (
	RSINeutral RSISignal = iota
	RSIOversold
	RSIBearish
	RSIBullish
	RSIOverbought
)

func (r RSISignal) String() string {
	switch r {
	case RSIOversold:
		return "oversold"
	case RSIBearish:
		return "bearish"
	case RSINeutral:
		return "neutral"
	case RSIBullish:
		return "bullish"
	case RSIOverbought:
		return "overbought"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r RSISignal) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// MACDSignal MACD classification.
type MACDSignal int

const (
	MACDNeutral MACDSignal = iota
	MACDStrongSell
	MACDSell
	MACDBuy
	MACDStrongBuy
)

func (m MACDSignal) String() string {
	switch m {
	case MACDStrongSell:
		return "strong_sell"
	case MACDSell:
		return "sell"
	case MACDNeutral:
		return "neutral"
	case MACDBuy:
		return "buy"
	case MACDStrongBuy:
		return "strong_buy"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m MACDSignal) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// TechnicalSignals indicators derived from a price series.
// Recomputed every cycle, never persisted as authoritative state.
type TechnicalSignals struct {
	Trend TrendDirection `json:"trend"`
	// TrendStrength in [0, 1].
	TrendStrength float64 `json:"trend_strength"`
	// Support levels, ascending.
	Support []float64 `json:"support"`
	// Resistance levels, ascending.
	Resistance []float64  `json:"resistance"`
	RSI        RSISignal  `json:"rsi"`
	MACD       MACDSignal `json:"macd"`
	// Volatility in [0, 1].
	Volatility float64 `json:"volatility"`
}
