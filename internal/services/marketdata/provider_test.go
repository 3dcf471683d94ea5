package marketdata

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/tradeflow/internal/domain"
)

type fakeProvider struct {
	snapshots map[string]domain.AssetSnapshot
	trending  []domain.AssetSnapshot
	history   map[string][]float64
	err       error
	calls     int
}

func (f *fakeProvider) GetAssetSnapshot(_ context.Context, address string) (domain.AssetSnapshot, error) {
	f.calls++
	if f.err != nil {
		return domain.AssetSnapshot{}, f.err
	}
	s, ok := f.snapshots[address]
	if !ok {
		return domain.AssetSnapshot{}, domain.ErrNotFound
	}
	return s, nil
}

func (f *fakeProvider) GetTrendingAssets(_ context.Context, limit int) ([]domain.AssetSnapshot, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.trending, nil
}

func (f *fakeProvider) GetPriceHistory(_ context.Context, address string, _ int) ([]float64, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.history[address], nil
}

func asset(addr string, price float64) domain.AssetSnapshot {
	return domain.AssetSnapshot{Address: addr, Symbol: addr, PriceQuote: decimal.NewFromFloat(price)}
}

func TestChain_SnapshotFallback(t *testing.T) {
	down := &fakeProvider{err: errors.New("503")}
	up := &fakeProvider{snapshots: map[string]domain.AssetSnapshot{"SOL": asset("SOL", 150)}}
	c := NewChain(zap.NewNop(), down, up)

	snap, err := c.GetAssetSnapshot(context.Background(), "SOL")
	require.NoError(t, err)
	assert.Equal(t, "SOL", snap.Address)

	_, err = c.GetAssetSnapshot(context.Background(), "NOPE")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestChain_FirstSuccessShortCircuits(t *testing.T) {
	first := &fakeProvider{snapshots: map[string]domain.AssetSnapshot{"SOL": asset("SOL", 150)}}
	second := &fakeProvider{snapshots: map[string]domain.AssetSnapshot{"SOL": asset("SOL", 151)}}

	_, err := NewChain(nil, first, second).GetAssetSnapshot(context.Background(), "SOL")
	require.NoError(t, err)
	assert.Equal(t, 0, second.calls)
}

func TestChain_TrendingMergedAndDeduplicated(t *testing.T) {
	a := &fakeProvider{trending: []domain.AssetSnapshot{asset("SOL", 1), asset("BTC", 2)}}
	b := &fakeProvider{trending: []domain.AssetSnapshot{asset("BTC", 3), asset("ETH", 4)}}
	c := NewChain(zap.NewNop(), a, b)

	got, err := c.GetTrendingAssets(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"SOL", "BTC", "ETH"}, []string{got[0].Address, got[1].Address, got[2].Address})
	assert.True(t, got[1].PriceQuote.Equal(decimal.NewFromInt(2)), "first provider wins on duplicates")

	limited, err := c.GetTrendingAssets(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestChain_TrendingAllFail(t *testing.T) {
	c := NewChain(zap.NewNop(), &fakeProvider{err: errors.New("down")})
	_, err := c.GetTrendingAssets(context.Background(), 5)
	assert.Error(t, err)
}

func TestChain_PriceHistorySkipsEmpty(t *testing.T) {
	empty := &fakeProvider{history: map[string][]float64{}}
	full := &fakeProvider{history: map[string][]float64{"SOL": {1, 2, 3}}}

	got, err := NewChain(zap.NewNop(), empty, full).GetPriceHistory(context.Background(), "SOL", 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, got)
}

type memCache struct {
	mu     sync.Mutex
	values map[string][]byte
	ttls   map[string]time.Duration
	err    error
}

func newMemCache() *memCache {
	return &memCache{values: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (m *memCache) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	v, ok := m.values[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return v, nil
}

func (m *memCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.values[key] = value
	m.ttls[key] = ttl
	return nil
}

func TestCached_ReadThrough(t *testing.T) {
	next := &fakeProvider{
		snapshots: map[string]domain.AssetSnapshot{"SOL": asset("SOL", 150.5)},
		history:   map[string][]float64{"SOL": {1, 2}},
	}
	cache := newMemCache()
	c := NewCached(next, cache, time.Minute, zap.NewNop())

	for i := 0; i < 3; i++ {
		snap, err := c.GetAssetSnapshot(context.Background(), "SOL")
		require.NoError(t, err)
		assert.True(t, snap.PriceQuote.Equal(decimal.NewFromFloat(150.5)))
	}
	assert.Equal(t, 1, next.calls)
	assert.Equal(t, time.Minute, cache.ttls[keyPrefix+"snapshot:SOL"])

	h, err := c.GetPriceHistory(context.Background(), "SOL", 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, h)
	_, err = c.GetPriceHistory(context.Background(), "SOL", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)
}

func TestCached_ErrorsAreNotCached(t *testing.T) {
	next := &fakeProvider{snapshots: map[string]domain.AssetSnapshot{}}
	cache := newMemCache()
	c := NewCached(next, cache, time.Minute, zap.NewNop())

	_, err := c.GetAssetSnapshot(context.Background(), "SOL")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.Empty(t, cache.values)
}

func TestCached_CacheFailureFallsThrough(t *testing.T) {
	next := &fakeProvider{snapshots: map[string]domain.AssetSnapshot{"SOL": asset("SOL", 1)}}
	cache := newMemCache()
	cache.err = errors.New("redis down")

	snap, err := NewCached(next, cache, time.Minute, zap.NewNop()).GetAssetSnapshot(context.Background(), "SOL")
	require.NoError(t, err)
	assert.Equal(t, "SOL", snap.Address)
}

func TestBandLiquidity(t *testing.T) {
	levels := []level{
		{price: "99", quantity: "2"},
		{price: "97", quantity: "100"},
		{price: "101", quantity: "1"},
		{price: "103", quantity: "100"},
		{price: "bad", quantity: "1"},
	}
	got := bandLiquidity(decimal.NewFromInt(100), levels, 0.02)
	assert.True(t, got.Equal(decimal.NewFromInt(299)), got.String())
	assert.True(t, bandLiquidity(decimal.Zero, levels, 0.02).IsZero())
}

func TestSymbolFilters(t *testing.T) {
	tests := []struct {
		symbol string
		base   string
		ok     bool
	}{
		{"SOLUSDT", "SOL", true},
		{"SOLBTC", "", false},
		{"USDT", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			base, ok := baseAsset(tt.symbol, "USDT")
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.base, base)
		})
	}

	assert.True(t, excluded("BTCUP"))
	assert.True(t, excluded("ETHDOWN"))
	assert.False(t, excluded("JUP"))
	assert.False(t, excluded("SOL"))
}
