package internal

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vadiminshakov/tradeflow/internal/services/pipeline"
)

// DefaultInterval pause between the end of one cycle and the start of the next.
const DefaultInterval = 60 * time.Second

// CycleRunner runs one trading cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) (pipeline.CycleReport, error)
}

// TradingBot drives the pipeline in a loop.
type TradingBot struct {
	runner   CycleRunner
	interval time.Duration
	logger   *zap.Logger

	mu     sync.RWMutex
	last   pipeline.CycleReport
	hasRun bool
}

// NewTradingBot creates a trading bot running a cycle every interval.
func NewTradingBot(runner CycleRunner, interval time.Duration, logger *zap.Logger) *TradingBot {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &TradingBot{runner: runner, interval: interval, logger: logger.With(zap.String("component", "bot"))}
}

// Run runs cycles until ctx is done. Shutdown is observed only between cycles:
// a running cycle is detached from ctx so in-flight orders finish.
func (b *TradingBot) Run(ctx context.Context) error {
	b.logger.Info("starting trading loop", zap.Duration("interval", b.interval))

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		b.cycle(ctx)
		if ctx.Err() != nil {
			b.logger.Info("context done, stopping trading loop")
			return ctx.Err()
		}

		select {
		case <-ctx.Done():
			b.logger.Info("context done, stopping trading loop")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (b *TradingBot) cycle(ctx context.Context) {
	report, err := b.runner.RunCycle(context.WithoutCancel(ctx))
	if err != nil {
		b.logger.Error("cycle failed", zap.Error(err))
		return
	}

	b.mu.Lock()
	b.last, b.hasRun = report, true
	b.mu.Unlock()

	b.logger.Debug("cycle report",
		zap.Int("assets", len(report.Assets)),
		zap.Int("executed", report.Count(pipeline.OutcomeExecuted)),
		zap.Int("exits", len(report.Exits)),
		zap.Duration("duration", report.Duration),
	)
}

// LastReport returns the report of the last successful cycle.
func (b *TradingBot) LastReport() (pipeline.CycleReport, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.last, b.hasRun
}
