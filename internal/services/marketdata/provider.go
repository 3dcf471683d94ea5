// Package marketdata provides asset snapshots, trending candidates and price history
// from exchange APIs, with provider fallback and caching.
package marketdata

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/tradeflow/internal/domain"
)

// Provider source of market data.
type Provider interface {
	// GetAssetSnapshot returns the current state of an asset, domain.ErrNotFound for unknown assets.
	GetAssetSnapshot(ctx context.Context, address string) (domain.AssetSnapshot, error)
	// GetTrendingAssets returns up to limit candidates, deduplicated by address.
	GetTrendingAssets(ctx context.Context, limit int) ([]domain.AssetSnapshot, error)
	// GetPriceHistory returns up to limit close prices ordered oldest to newest.
	GetPriceHistory(ctx context.Context, address string, limit int) ([]float64, error)
}

// Chain tries providers in order; the first success wins.
type Chain struct {
	providers []Provider
	logger    *zap.Logger
}

// NewChain creates a provider chain.
func NewChain(logger *zap.Logger, providers ...Provider) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{providers: providers, logger: logger.With(zap.String("component", "marketdata"))}
}

// GetAssetSnapshot returns the snapshot of the first provider that knows the asset.
func (c *Chain) GetAssetSnapshot(ctx context.Context, address string) (domain.AssetSnapshot, error) {
	var lastErr error = domain.ErrNotFound
	for i, p := range c.providers {
		snap, err := p.GetAssetSnapshot(ctx, address)
		if err == nil {
			return snap, nil
		}
		c.logger.Debug("provider failed to return snapshot", zap.Int("provider", i), zap.String("asset", address), zap.Error(err))
		lastErr = err
	}
	return domain.AssetSnapshot{}, errors.Wrapf(lastErr, "no provider returned a snapshot for %s", address)
}

// GetTrendingAssets merges the candidates of all providers, keeping the first snapshot of each address.
func (c *Chain) GetTrendingAssets(ctx context.Context, limit int) ([]domain.AssetSnapshot, error) {
	var (
		out     []domain.AssetSnapshot
		seen    = make(map[string]struct{})
		lastErr error
		ok      bool
	)

	for i, p := range c.providers {
		if limit > 0 && len(out) >= limit {
			break
		}
		assets, err := p.GetTrendingAssets(ctx, limit)
		if err != nil {
			c.logger.Warn("provider failed to return trending assets", zap.Int("provider", i), zap.Error(err))
			lastErr = err
			continue
		}
		ok = true
		out = appendUnique(out, seen, assets, limit)
	}

	if !ok && lastErr != nil {
		return nil, errors.Wrap(lastErr, "no provider returned trending assets")
	}
	return out, nil
}

// GetPriceHistory returns the history of the first provider that has one.
func (c *Chain) GetPriceHistory(ctx context.Context, address string, limit int) ([]float64, error) {
	var lastErr error = domain.ErrNotFound
	for i, p := range c.providers {
		prices, err := p.GetPriceHistory(ctx, address, limit)
		if err == nil && len(prices) > 0 {
			return prices, nil
		}
		if err != nil {
			c.logger.Debug("provider failed to return price history", zap.Int("provider", i), zap.String("asset", address), zap.Error(err))
			lastErr = err
		}
	}
	return nil, errors.Wrapf(lastErr, "no provider returned price history for %s", address)
}

func appendUnique(out []domain.AssetSnapshot, seen map[string]struct{}, assets []domain.AssetSnapshot, limit int) []domain.AssetSnapshot {
	for _, a := range assets {
		if limit > 0 && len(out) >= limit {
			break
		}
		if _, dup := seen[a.Address]; dup || a.Address == "" {
			continue
		}
		seen[a.Address] = struct{}{}
		out = append(out, a)
	}
	return out
}
