package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vadiminshakov/tradeflow/internal/domain"
)

const keyPrefix = "tradeflow:marketdata:"

// ErrCacheMiss key is not cached.
var ErrCacheMiss = errors.New("cache miss")

// Cache byte store with expiry.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisCache Cache backed by redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to redis at addr.
func NewRedisCache(addr, password string, db int) *RedisCache {
	return &RedisCache{client: redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})}
}

// Ping checks the connection.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return b, err
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// Close closes the redis client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Cached read-through cache in front of a provider. Cache failures fall through to the provider.
type Cached struct {
	next   Provider
	cache  Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCached wraps next with a cache whose entries live for ttl.
func NewCached(next Provider, cache Cache, ttl time.Duration, logger *zap.Logger) *Cached {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cached{next: next, cache: cache, ttl: ttl, logger: logger.With(zap.String("component", "marketdata_cache"))}
}

func (c *Cached) GetAssetSnapshot(ctx context.Context, address string) (domain.AssetSnapshot, error) {
	return cached(ctx, c, "snapshot:"+address, func() (domain.AssetSnapshot, error) {
		return c.next.GetAssetSnapshot(ctx, address)
	})
}

func (c *Cached) GetTrendingAssets(ctx context.Context, limit int) ([]domain.AssetSnapshot, error) {
	return cached(ctx, c, fmt.Sprintf("trending:%d", limit), func() ([]domain.AssetSnapshot, error) {
		return c.next.GetTrendingAssets(ctx, limit)
	})
}

func (c *Cached) GetPriceHistory(ctx context.Context, address string, limit int) ([]float64, error) {
	return cached(ctx, c, fmt.Sprintf("history:%s:%d", address, limit), func() ([]float64, error) {
		return c.next.GetPriceHistory(ctx, address, limit)
	})
}

func cached[T any](ctx context.Context, c *Cached, key string, load func() (T, error)) (T, error) {
	key = keyPrefix + key

	b, err := c.cache.Get(ctx, key)
	if err == nil {
		var v T
		if err := json.Unmarshal(b, &v); err == nil {
			return v, nil
		}
		c.logger.Warn("dropping undecodable cache entry", zap.String("key", key))
	} else if !errors.Is(err, ErrCacheMiss) {
		c.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	}

	v, err := load()
	if err != nil {
		return v, err
	}

	b, err = json.Marshal(v)
	if err != nil {
		return v, nil
	}
	if err := c.cache.Set(ctx, key, b, c.ttl); err != nil {
		c.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
	return v, nil
}
