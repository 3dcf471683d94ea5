package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AssetSnapshot market state of a tradable asset for one cycle.
// Snapshots are produced by market-data providers and never mutated.
type AssetSnapshot struct {
	// Address unique identifier of the asset on its venue (for CEX venues the base symbol).
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals int    `json:"decimals"`

	// PriceQuote price in the quote currency.
	PriceQuote decimal.Decimal `json:"price_quote"`
	// PriceNative price in the settlement currency of the venue.
	PriceNative decimal.Decimal `json:"price_native"`

	Volume24h decimal.Decimal `json:"volume_24h"`
	MarketCap decimal.Decimal `json:"market_cap"`
	Liquidity decimal.Decimal `json:"liquidity"`

	// price changes in percent
	PriceChange1h  float64 `json:"price_change_1h"`
	PriceChange24h float64 `json:"price_change_24h"`
	PriceChange7d  float64 `json:"price_change_7d"`

	Holders int `json:"holders"`
	// HolderConcentration share of supply held by the top holders, 0..1.
	HolderConcentration float64 `json:"holder_concentration"`
	Verified            bool    `json:"verified"`

	// SocialScore optional sentiment score in [-1, 1].
	SocialScore *float64 `json:"social_score,omitempty"`

	FetchedAt time.Time `json:"fetched_at"`
}

// Pair returns the venue pair for the asset against the quote currency.
func (a AssetSnapshot) Pair(quote string) Pair {
	return NewPair(a.Address, quote)
}

// Price returns the quote price as float64 for scoring math.
func (a AssetSnapshot) Price() float64 {
	f, _ := a.PriceQuote.Float64()
	return f
}
