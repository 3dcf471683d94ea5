package marketdata

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"

	bybit "github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/tradeflow/internal/domain"
)

const bybitCategory = "spot"

// Bybit market data from the Bybit v5 spot API, used as a fallback.
type Bybit struct {
	client *bybit.Client
	quote  string
	now    func() time.Time
}

// NewBybit creates a Bybit provider quoting assets in quote.
func NewBybit(client *bybit.Client, quote string) *Bybit {
	return &Bybit{client: client, quote: strings.ToUpper(quote), now: time.Now}
}

// GetAssetSnapshot returns the spot ticker of the asset. Liquidity is the top of book value.
func (b *Bybit) GetAssetSnapshot(_ context.Context, address string) (domain.AssetSnapshot, error) {
	pair := domain.NewPair(address, b.quote)
	symbol := bybit.SymbolV5(pair.Symbol())

	result, err := b.client.V5().Market().GetTickers(bybit.V5GetTickersParam{
		Category: bybitCategory,
		Symbol:   &symbol,
	})
	if err != nil {
		return domain.AssetSnapshot{}, errors.Wrapf(err, "failed to fetch bybit ticker for %s", pair.String())
	}
	if len(result.Result.Spot.List) == 0 {
		return domain.AssetSnapshot{}, errors.Wrapf(domain.ErrNotFound, "bybit symbol %s", pair.Symbol())
	}

	t := result.Result.Spot.List[0]
	return b.snapshot(pair.From, bybitTicker{
		symbol: string(t.Symbol), last: t.LastPrice, turnover: t.Turnover24H, change: t.Price24HPcnt,
		bid: t.Bid1Price, bidSize: t.Bid1Size, ask: t.Ask1Price, askSize: t.Ask1Size,
	})
}

// GetTrendingAssets returns the spot pairs against the quote currency with the highest 24h turnover.
func (b *Bybit) GetTrendingAssets(_ context.Context, limit int) ([]domain.AssetSnapshot, error) {
	result, err := b.client.V5().Market().GetTickers(bybit.V5GetTickersParam{Category: bybitCategory})
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch bybit tickers")
	}
	type candidate struct {
		base   string
		ticker bybitTicker
	}
	candidates := make([]candidate, 0, len(result.Result.Spot.List))
	for _, t := range result.Result.Spot.List {
		base, ok := baseAsset(string(t.Symbol), b.quote)
		if !ok || excluded(base) {
			continue
		}
		candidates = append(candidates, candidate{base: base, ticker: bybitTicker{
			symbol: string(t.Symbol), last: t.LastPrice, turnover: t.Turnover24H, change: t.Price24HPcnt,
			bid: t.Bid1Price, bidSize: t.Bid1Size, ask: t.Ask1Price, askSize: t.Ask1Size,
		}})
	}
	slices.SortFunc(candidates, func(x, y candidate) int {
		return cmp.Compare(parseFloat(y.ticker.turnover), parseFloat(x.ticker.turnover))
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	out := make([]domain.AssetSnapshot, 0, len(candidates))
	for _, c := range candidates {
		snap, err := b.snapshot(c.base, c.ticker)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

// GetPriceHistory returns hourly close prices. Bybit lists klines newest first.
func (b *Bybit) GetPriceHistory(_ context.Context, address string, limit int) ([]float64, error) {
	pair := domain.NewPair(address, b.quote)

	klines, err := b.client.V5().Market().GetKline(bybit.V5GetKlineParam{
		Category: bybitCategory,
		Symbol:   bybit.SymbolV5(pair.Symbol()),
		Interval: bybit.Interval60,
		Limit:    &limit,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get klines from Bybit for %s", pair.String())
	}

	closes := make([]float64, len(klines.Result.List))
	for i, k := range klines.Result.List {
		c, err := decimal.NewFromString(k.Close)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse close price: %s", k.Close)
		}
		f, _ := c.Float64()
		closes[len(closes)-1-i] = f
	}
	return closes, nil
}

// bybitTicker fields of a spot ticker used for snapshots.
type bybitTicker struct {
	symbol, last, turnover, change string
	bid, bidSize, ask, askSize     string
}

func (b *Bybit) snapshot(base string, t bybitTicker) (domain.AssetSnapshot, error) {
	price, err := decimal.NewFromString(t.last)
	if err != nil {
		return domain.AssetSnapshot{}, errors.Wrapf(err, "failed to parse last price of %s", t.symbol)
	}
	turnover, err := decimal.NewFromString(t.turnover)
	if err != nil {
		return domain.AssetSnapshot{}, errors.Wrapf(err, "failed to parse turnover of %s", t.symbol)
	}

	liquidity := bandLiquidity(price, []level{
		{price: t.bid, quantity: t.bidSize},
		{price: t.ask, quantity: t.askSize},
	}, depthBand)

	return domain.AssetSnapshot{
		Address:     base,
		Symbol:      base,
		Name:        base,
		PriceQuote:  price,
		PriceNative: price,
		Volume24h:   turnover,
		Liquidity:   liquidity,
		// bybit reports the 24h change as a fraction
		PriceChange24h: parseFloat(t.change) * 100,
		Verified:       true,
		FetchedAt:      b.now(),
	}, nil
}
