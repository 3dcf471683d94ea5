package domain

import "github.com/shopspring/decimal"

// AssetMetrics per-asset performance breakdown.
type AssetMetrics struct {
	Symbol           string          `json:"symbol"`
	TotalTrades      int             `json:"total_trades"`
	ProfitableTrades int             `json:"profitable_trades"`
	TotalProfitLoss  decimal.Decimal `json:"total_profit_loss"`
	AverageHoldHours float64         `json:"average_hold_hours"`
	BestTrade        decimal.Decimal `json:"best_trade"`
	WorstTrade       decimal.Decimal `json:"worst_trade"`
	WinRate          float64         `json:"win_rate"`
}

// PerformanceMetrics aggregate metrics derived from the trade log.
type PerformanceMetrics struct {
	TotalTrades        int                     `json:"total_trades"`
	WinningTrades      int                     `json:"winning_trades"`
	LosingTrades       int                     `json:"losing_trades"`
	TotalProfitLoss    decimal.Decimal         `json:"total_profit_loss"`
	WinRate            float64                 `json:"win_rate"`
	AverageReturn      float64                 `json:"average_return"`
	SharpeRatio        float64                 `json:"sharpe_ratio"`
	MaxDrawdown        float64                 `json:"max_drawdown"`
	CurrentDrawdown    float64                 `json:"current_drawdown"`
	RiskAdjustedReturn float64                 `json:"risk_adjusted_return"`
	Assets             map[string]AssetMetrics `json:"assets"`
}

// StrategyAnalysis performance of a single strategy with advisory recommendations.
type StrategyAnalysis struct {
	Strategy          string          `json:"strategy"`
	TotalTrades       int             `json:"total_trades"`
	WinRate           float64         `json:"win_rate"`
	TotalProfitLoss   decimal.Decimal `json:"total_profit_loss"`
	AverageConfidence float64         `json:"average_confidence"`
	Recommendations   []string        `json:"recommendations"`
}
