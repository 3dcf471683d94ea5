package internal

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/tradeflow/config"
	"github.com/vadiminshakov/tradeflow/internal/domain"
)

func TestOpenStorage_UnsupportedDriver(t *testing.T) {
	_, err := OpenStorage(context.Background(), config.Storage{Driver: "sqlite"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported storage driver")
}

func TestRestoreLedger(t *testing.T) {
	ctx := context.Background()
	cfg := config.Config{
		Capital: decimal.NewFromInt(1000),
		Storage: config.Storage{Driver: config.StorageWAL, WALDir: t.TempDir()},
	}

	store, err := OpenStorage(ctx, cfg.Storage)
	require.NoError(t, err)

	ledger, err := RestoreLedger(ctx, cfg, store, zap.NewNop())
	require.NoError(t, err)
	assert.True(t, ledger.Portfolio.Cash().Equal(decimal.NewFromInt(1000)))
	assert.Empty(t, ledger.Portfolio.Positions())

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	err = ledger.Performance.Record(ctx, domain.Trade{
		ID:         "t-1",
		Address:    "SOL",
		Symbol:     "SOL",
		EntryPrice: decimal.NewFromInt(100),
		ExitPrice:  decimal.NewFromInt(125),
		Quantity:   decimal.NewFromInt(1),
		Size:       decimal.NewFromInt(100),
		EntryTime:  now.Add(-time.Hour),
		ExitTime:   now,
		ProfitLoss: decimal.NewFromInt(25),
		Strategy:   "rules",
		ExitReason: domain.ExitTakeProfit,
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = OpenStorage(ctx, cfg.Storage)
	require.NoError(t, err)
	defer store.Close() //nolint:errcheck

	ledger, err = RestoreLedger(ctx, cfg, store, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 1, ledger.Performance.Metrics().TotalTrades)
	assert.True(t, ledger.Portfolio.Cash().Equal(decimal.NewFromInt(1025)), ledger.Portfolio.Cash().String())
}
