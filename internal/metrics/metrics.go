// Package metrics provides Prometheus instrumentation for the trading pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CyclesTotal counts pipeline cycles by outcome.
	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradeflow_cycles_total",
		Help: "Total number of pipeline cycles",
	}, []string{"outcome"})

	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tradeflow_cycle_duration_seconds",
		Help:    "Pipeline cycle duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})

	// AssetsAnalyzed counts analyzed candidates by outcome (decision, skipped, error).
	AssetsAnalyzed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradeflow_assets_analyzed_total",
		Help: "Candidate assets analyzed",
	}, []string{"outcome"})

	// DecisionsTotal counts decisions by action.
	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradeflow_decisions_total",
		Help: "Trading decisions by action",
	}, []string{"action"})

	RiskViolations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tradeflow_risk_violations_total",
		Help: "Decisions downgraded to hold by the risk gate",
	})

	OracleFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tradeflow_oracle_failures_total",
		Help: "Oracle calls that failed or returned a malformed verdict",
	})

	// ExecutionAttempts counts single quote/submit attempts by outcome.
	ExecutionAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradeflow_execution_attempts_total",
		Help: "Order attempts by outcome",
	}, []string{"outcome"})

	// ExecutionsTotal counts finished executions by type and status.
	ExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradeflow_executions_total",
		Help: "Executions by type and status",
	}, []string{"type", "status"})

	ExecutionLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tradeflow_execution_latency_seconds",
		Help:    "Execution latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})

	// ExitsTotal counts exits triggered by the position monitor, by reason.
	ExitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradeflow_exits_total",
		Help: "Position exits by reason",
	}, []string{"reason"})

	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tradeflow_open_positions",
		Help: "Number of open positions",
	})

	CashBalance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tradeflow_cash_balance",
		Help: "Free quote currency balance",
	})

	TotalProfitLoss = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tradeflow_total_profit_loss",
		Help: "Total realized profit and loss",
	})

	WinRate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tradeflow_win_rate",
		Help: "Share of winning trades",
	})

	NotificationsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tradeflow_notifications_dropped_total",
		Help: "Notifications dropped because the queue was full",
	})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradeflow_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tradeflow_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
