//go:build integration

package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/tradeflow/internal/domain"
)

// To run this test, use: TRADEFLOW_POSTGRES_DSN=... go test -tags=integration ./internal/storage/postgres
func newClient(t *testing.T) *Client {
	t.Helper()
	dsn := os.Getenv("TRADEFLOW_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TRADEFLOW_POSTGRES_DSN is not set")
	}
	c, err := New(context.Background(), dsn, 2)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestPositionStore_Integration(t *testing.T) {
	ctx := context.Background()
	s := NewPositionStore(newClient(t))

	addr := "TEST" + uuid.NewString()[:8]
	p, err := domain.NewPosition(domain.AssetSnapshot{Address: addr, Symbol: addr}, decimal.NewFromInt(2), decimal.NewFromInt(20), time.Now().UTC())
	require.NoError(t, err)

	require.NoError(t, s.Upsert(ctx, p))
	p.Quantity = decimal.NewFromInt(1)
	require.NoError(t, s.Upsert(ctx, p))

	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	var found *domain.PortfolioPosition
	for _, l := range loaded {
		if l.Asset.Address == addr {
			found = l
		}
	}
	require.NotNil(t, found)
	assert.True(t, found.Quantity.Equal(decimal.NewFromInt(1)))

	require.NoError(t, s.Delete(ctx, addr))
}

func TestPositionStore_PendingIntegration(t *testing.T) {
	ctx := context.Background()
	s := NewPositionStore(newClient(t))

	o := domain.PendingOrder{
		TxID:        "tx-" + uuid.NewString(),
		Address:     "SOL",
		Action:      domain.ActionBuy,
		Type:        domain.ExecutionMarket,
		Amount:      decimal.NewFromInt(100),
		SubmittedAt: time.Now().UTC(),
	}
	require.NoError(t, s.SavePending(ctx, o))
	require.NoError(t, s.SavePending(ctx, o))

	pending, err := s.LoadPending(ctx)
	require.NoError(t, err)
	n := 0
	for _, p := range pending {
		if p.TxID == o.TxID {
			n++
			assert.True(t, p.Amount.Equal(o.Amount))
			assert.Equal(t, domain.ActionBuy, p.Action)
		}
	}
	assert.Equal(t, 1, n)

	require.NoError(t, s.DeletePending(ctx, o.TxID))
	pending, err = s.LoadPending(ctx)
	require.NoError(t, err)
	for _, p := range pending {
		assert.NotEqual(t, o.TxID, p.TxID)
	}
}

func TestTradeJournal_Integration(t *testing.T) {
	ctx := context.Background()
	j := NewTradeJournal(newClient(t))

	trade := domain.Trade{ID: uuid.NewString(), Address: "SOL", ProfitLoss: decimal.NewFromFloat(1.5), ExitTime: time.Now().UTC()}
	require.NoError(t, j.Append(ctx, trade))
	require.NoError(t, j.Append(ctx, trade))

	trades, err := j.Load(ctx)
	require.NoError(t, err)
	n := 0
	for _, tr := range trades {
		if tr.ID == trade.ID {
			n++
			assert.True(t, tr.ProfitLoss.Equal(trade.ProfitLoss))
		}
	}
	assert.Equal(t, 1, n)
}
