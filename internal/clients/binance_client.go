// Package clients builds exchange SDK clients.
package clients

import (
	"github.com/adshao/go-binance/v2"

	"github.com/vadiminshakov/tradeflow/config"
)

// NewBinanceClient creates a Binance client. Empty credentials give a client limited to public endpoints.
func NewBinanceClient(creds config.Credentials) *binance.Client {
	return binance.NewClient(creds.APIKey, creds.APISecret)
}
