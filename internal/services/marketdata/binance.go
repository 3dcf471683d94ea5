package marketdata

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/tradeflow/internal/domain"
)

const (
	// binanceInvalidSymbol API error code for unknown symbols.
	binanceInvalidSymbol = -1121
	depthLimit           = 100
	// depthBand share of the mid price around it counted as liquidity.
	depthBand = 0.02
)

// leveraged token suffixes, e.g. BTCUP
var excludedSuffixes = []string{"UP", "DOWN", "BULL", "BEAR"}

// Binance market data from the Binance spot API.
type Binance struct {
	client   *binance.Client
	quote    string
	interval string
	now      func() time.Time
}

// NewBinance creates a Binance provider quoting assets in quote with klines of the given interval.
func NewBinance(client *binance.Client, quote, interval string) *Binance {
	if interval == "" {
		interval = "1h"
	}
	return &Binance{client: client, quote: strings.ToUpper(quote), interval: interval, now: time.Now}
}

// GetAssetSnapshot returns 24h statistics and order book depth for the asset.
func (b *Binance) GetAssetSnapshot(ctx context.Context, address string) (domain.AssetSnapshot, error) {
	pair := domain.NewPair(address, b.quote)

	stats, err := b.client.NewListPriceChangeStatsService().Symbol(pair.Symbol()).Do(ctx)
	if err != nil {
		var apiErr *common.APIError
		if errors.As(err, &apiErr) && apiErr.Code == binanceInvalidSymbol {
			return domain.AssetSnapshot{}, errors.Wrapf(domain.ErrNotFound, "binance symbol %s", pair.Symbol())
		}
		return domain.AssetSnapshot{}, errors.Wrapf(err, "failed to fetch 24h stats for %s", pair.String())
	}
	if len(stats) == 0 {
		return domain.AssetSnapshot{}, errors.Wrapf(domain.ErrNotFound, "binance symbol %s", pair.Symbol())
	}

	return b.snapshot(ctx, pair.From, stats[0])
}

// GetTrendingAssets returns the pairs against the quote currency with the highest 24h quote volume.
func (b *Binance) GetTrendingAssets(ctx context.Context, limit int) ([]domain.AssetSnapshot, error) {
	stats, err := b.client.NewListPriceChangeStatsService().Do(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch 24h stats")
	}

	candidates := make([]*binance.PriceChangeStats, 0, len(stats))
	for _, s := range stats {
		if base, ok := baseAsset(s.Symbol, b.quote); ok && !excluded(base) {
			candidates = append(candidates, s)
		}
	}
	slices.SortFunc(candidates, func(x, y *binance.PriceChangeStats) int {
		return cmp.Compare(parseFloat(y.QuoteVolume), parseFloat(x.QuoteVolume))
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	out := make([]domain.AssetSnapshot, 0, len(candidates))
	for _, s := range candidates {
		base, _ := baseAsset(s.Symbol, b.quote)
		snap, err := b.snapshot(ctx, base, s)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

// GetPriceHistory returns kline close prices.
func (b *Binance) GetPriceHistory(ctx context.Context, address string, limit int) ([]float64, error) {
	pair := domain.NewPair(address, b.quote)

	klines, err := b.client.NewKlinesService().
		Symbol(pair.Symbol()).
		Interval(b.interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch klines from Binance for %s", pair.String())
	}

	closes := make([]float64, 0, len(klines))
	for i, k := range klines {
		c, err := decimal.NewFromString(k.Close)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse close price at index %d", i)
		}
		f, _ := c.Float64()
		closes = append(closes, f)
	}
	return closes, nil
}

func (b *Binance) snapshot(ctx context.Context, base string, s *binance.PriceChangeStats) (domain.AssetSnapshot, error) {
	price, err := decimal.NewFromString(s.LastPrice)
	if err != nil {
		return domain.AssetSnapshot{}, errors.Wrapf(err, "failed to parse last price of %s", s.Symbol)
	}
	volume, err := decimal.NewFromString(s.QuoteVolume)
	if err != nil {
		return domain.AssetSnapshot{}, errors.Wrapf(err, "failed to parse quote volume of %s", s.Symbol)
	}

	depth, err := b.client.NewDepthService().Symbol(s.Symbol).Limit(depthLimit).Do(ctx)
	if err != nil {
		return domain.AssetSnapshot{}, errors.Wrapf(err, "failed to fetch order book of %s", s.Symbol)
	}

	levels := make([]level, 0, len(depth.Bids)+len(depth.Asks))
	for _, l := range depth.Bids {
		levels = append(levels, level{price: l.Price, quantity: l.Quantity})
	}
	for _, l := range depth.Asks {
		levels = append(levels, level{price: l.Price, quantity: l.Quantity})
	}

	return domain.AssetSnapshot{
		Address:        base,
		Symbol:         base,
		Name:           base,
		PriceQuote:     price,
		PriceNative:    price,
		Volume24h:      volume,
		Liquidity:      bandLiquidity(price, levels, depthBand),
		PriceChange24h: parseFloat(s.PriceChangePercent),
		Verified:       true,
		FetchedAt:      b.now(),
	}, nil
}

type level struct {
	price, quantity string
}

// bandLiquidity quote value of the order book levels within band of mid.
func bandLiquidity(mid decimal.Decimal, levels []level, band float64) decimal.Decimal {
	if !mid.IsPositive() {
		return decimal.Zero
	}
	lo := mid.Mul(decimal.NewFromFloat(1 - band))
	hi := mid.Mul(decimal.NewFromFloat(1 + band))

	total := decimal.Zero
	for _, l := range levels {
		p, err := decimal.NewFromString(l.price)
		if err != nil {
			continue
		}
		q, err := decimal.NewFromString(l.quantity)
		if err != nil {
			continue
		}
		if p.LessThan(lo) || p.GreaterThan(hi) {
			continue
		}
		total = total.Add(p.Mul(q))
	}
	return total
}

func baseAsset(symbol, quote string) (string, bool) {
	if !strings.HasSuffix(symbol, quote) || len(symbol) == len(quote) {
		return "", false
	}
	return strings.TrimSuffix(symbol, quote), true
}

func excluded(base string) bool {
	for _, s := range excludedSuffixes {
		if strings.HasSuffix(base, s) && len(base) >= len(s)+3 {
			return true
		}
	}
	return false
}

func parseFloat(s string) float64 {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	f, _ := d.Float64()
	return f
}
