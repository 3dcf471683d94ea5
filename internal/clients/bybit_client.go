package clients

import (
	"github.com/hirokisan/bybit/v2"

	"github.com/vadiminshakov/tradeflow/config"
)

// NewBybitClient creates a Bybit client, authenticated when credentials are set.
func NewBybitClient(creds config.Credentials) *bybit.Client {
	client := bybit.NewClient()
	if creds.APIKey != "" && creds.APISecret != "" {
		client = client.WithAuth(creds.APIKey, creds.APISecret)
	}
	return client
}
