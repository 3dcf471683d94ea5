package internal

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/tradeflow/internal/services/pipeline"
)

type countingRunner struct {
	calls  atomic.Int32
	err    error
	cancel context.CancelFunc
	stopAt int32
	// ctxErr error seen by the cycle that triggered cancellation
	ctxErr error
}

func (r *countingRunner) RunCycle(ctx context.Context) (pipeline.CycleReport, error) {
	n := r.calls.Add(1)
	if n == r.stopAt {
		r.cancel()
		r.ctxErr = ctx.Err()
	}
	return pipeline.CycleReport{}, r.err
}

func TestTradingBot_Run(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "successful cycles"},
		{name: "failing cycles keep the loop alive", err: errors.New("no candidates")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			runner := &countingRunner{err: tt.err, cancel: cancel, stopAt: 3}
			bot := NewTradingBot(runner, time.Millisecond, zap.NewNop())

			err := bot.Run(ctx)
			require.ErrorIs(t, err, context.Canceled)
			assert.Equal(t, int32(3), runner.calls.Load())
			assert.NoError(t, runner.ctxErr, "running cycle must not see cancellation")

			_, ok := bot.LastReport()
			assert.Equal(t, tt.err == nil, ok)
		})
	}
}

func TestNewTradingBot_DefaultInterval(t *testing.T) {
	bot := NewTradingBot(&countingRunner{}, 0, nil)
	assert.Equal(t, DefaultInterval, bot.interval)
}
