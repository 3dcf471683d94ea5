package domain

// MarketTrend overall market trend label.
type MarketTrend string

const (
	MarketStrongUptrend   MarketTrend = "strong_uptrend"
	MarketUptrend         MarketTrend = "uptrend"
	MarketSideways        MarketTrend = "sideways"
	MarketDowntrend       MarketTrend = "downtrend"
	MarketStrongDowntrend MarketTrend = "strong_downtrend"
)

// MarketTrendFrom maps a trend direction onto the market trend label.
func MarketTrendFrom(t TrendDirection) MarketTrend {
	switch t {
	case TrendStrongUp:
		return MarketStrongUptrend
	case TrendUp:
		return MarketUptrend
	case TrendDown:
		return MarketDowntrend
	case TrendStrongDown:
		return MarketStrongDowntrend
	default:
		return MarketSideways
	}
}

const (
	VolumeProfileHigh   = "high"
	VolumeProfileNormal = "normal"
)

// MarketContext market conditions around an asset for the current cycle.
type MarketContext struct {
	Trend MarketTrend `json:"trend"`
	// SectorPerformance in [0, 1], share of the sector moving up.
	SectorPerformance float64 `json:"sector_performance"`
	// LiquidityScore in [0, 1].
	LiquidityScore float64 `json:"liquidity_score"`
	VolumeProfile  string  `json:"volume_profile"`
	// Sentiment in [-1, 1].
	Sentiment float64 `json:"sentiment"`
}
