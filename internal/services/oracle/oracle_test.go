package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/tradeflow/internal/domain"
)

const validVerdict = `{
  "confidence": 0.82,
  "reasoning": "volume breakout",
  "market_analysis": {
    "momentum_indicators": {"overall_momentum": "strong_buy"},
    "liquidity_assessment": {"liquidity_score": 0.9},
    "on_chain_metrics": {"smart_money_flow": "inflow"}
  }
}`

func chatBody(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": content}, "finish_reason": "stop"}},
	})
	return string(b)
}

func testContext() AssetContext {
	return AssetContext{
		Asset: domain.AssetSnapshot{
			Address:    "SOL",
			Symbol:     "SOL",
			PriceQuote: decimal.NewFromInt(150),
			Liquidity:  decimal.NewFromInt(1_000_000),
		},
		Signals: domain.TechnicalSignals{Trend: domain.TrendUp, TrendStrength: 0.5, Support: []float64{140}},
		Balance: decimal.NewFromInt(1000),
		Quote:   "USDT",
	}
}

func TestLLM_Evaluate(t *testing.T) {
	var gotAuth string
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chatBody("```json\n" + validVerdict + "\n```")))
	}))
	defer srv.Close()

	llm := NewLLM(LLMConfig{APIURL: srv.URL, APIKey: "k", Model: "m"}, zap.NewNop())
	v, err := llm.Evaluate(context.Background(), testContext())
	require.NoError(t, err)

	assert.Equal(t, "Bearer k", gotAuth)
	assert.Equal(t, "m", gotReq.Model)
	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, SystemPrompt, gotReq.Messages[0].Content)
	assert.Contains(t, gotReq.Messages[1].Content, "SOL")

	assert.InDelta(t, 0.82, v.Confidence, 1e-9)
	assert.Equal(t, domain.MomentumStrongBuy, v.Momentum)
	assert.Equal(t, domain.FlowInflow, v.SmartMoneyFlow)
	assert.Equal(t, "llm:m", llm.Name())
}

func TestLLM_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chatBody(validVerdict)))
	}))
	defer srv.Close()

	llm := NewLLM(LLMConfig{APIURL: srv.URL, APIKey: "k", RetryDelay: time.Millisecond}, zap.NewNop())
	_, err := llm.Evaluate(context.Background(), testContext())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestLLM_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		isParse bool
	}{
		{name: "malformed verdict", status: http.StatusOK, body: chatBody("I think you should buy"), isParse: true},
		{name: "missing momentum", status: http.StatusOK, body: chatBody(`{"confidence": 0.5, "market_analysis": {}}`), isParse: true},
		{name: "api error", status: http.StatusUnauthorized, body: `{"error": {"message": "bad key", "type": "auth"}}`},
		{name: "no choices", status: http.StatusOK, body: `{"choices": []}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			llm := NewLLM(LLMConfig{APIURL: srv.URL, APIKey: "k", MaxRetries: -1}, zap.NewNop())
			_, err := llm.Evaluate(context.Background(), testContext())
			require.Error(t, err)
			assert.Equal(t, tt.isParse, errors.Is(err, domain.ErrOracleParse))
		})
	}
}

func TestLLM_RequiresKey(t *testing.T) {
	_, err := NewLLM(LLMConfig{APIURL: "http://127.0.0.1:1"}, nil).Evaluate(context.Background(), testContext())
	assert.Error(t, err)
}

func TestBuildUserPrompt(t *testing.T) {
	ac := testContext()
	p := BuildUserPrompt(ac)
	assert.Contains(t, p, "No open position")
	assert.Contains(t, p, "**Support:** 140")
	assert.Contains(t, p, "**Resistance:** none")
	assert.Contains(t, p, "1000.00")

	pos, err := domain.NewPosition(ac.Asset, decimal.NewFromInt(2), decimal.NewFromInt(200), time.Now())
	require.NoError(t, err)
	ac.Position = pos
	p = BuildUserPrompt(ac)
	assert.Contains(t, p, "**Average Cost:** 100")
	assert.Contains(t, p, "**Unrealized P&L:** 100.00")
	assert.False(t, strings.Contains(p, "No open position"))
}

func TestRules_Evaluate(t *testing.T) {
	tests := []struct {
		name     string
		signals  domain.TechnicalSignals
		change   float64
		profile  string
		momentum domain.Momentum
		flow     domain.MoneyFlow
		staged   bool
	}{
		{
			name:     "aligned uptrend",
			signals:  domain.TechnicalSignals{Trend: domain.TrendStrongUp, MACD: domain.MACDBuy, TrendStrength: 1},
			change:   12,
			profile:  domain.VolumeProfileHigh,
			momentum: domain.MomentumStrongBuy,
			flow:     domain.FlowInflow,
		},
		{
			name:     "overbought cancels trend",
			signals:  domain.TechnicalSignals{Trend: domain.TrendUp, RSI: domain.RSIOverbought},
			profile:  domain.VolumeProfileNormal,
			momentum: domain.MomentumNeutral,
			flow:     domain.FlowNeutral,
		},
		{
			name:     "downtrend",
			signals:  domain.TechnicalSignals{Trend: domain.TrendDown, MACD: domain.MACDSell, Volatility: 0.8},
			change:   -9,
			momentum: domain.MomentumSell,
			flow:     domain.FlowOutflow,
			staged:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ac := testContext()
			ac.Signals = tt.signals
			ac.Asset.PriceChange24h = tt.change
			ac.Market = domain.MarketContext{VolumeProfile: tt.profile, LiquidityScore: 0.8}

			v, err := NewRules().Evaluate(context.Background(), ac)
			require.NoError(t, err)
			assert.Equal(t, tt.momentum, v.Momentum)
			assert.Equal(t, tt.flow, v.SmartMoneyFlow)
			assert.InDelta(t, 0.8, v.LiquidityScore, 1e-9)
			assert.LessOrEqual(t, v.Confidence, maxConfidence)
			assert.GreaterOrEqual(t, v.Confidence, baseConfidence)
			assert.Equal(t, tt.staged, v.Strategy != nil)
		})
	}
}
