package marketdata

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/yourorg/backtest-service/internal/metrics"
	"github.com/yourorg/backtest-service/internal/model"
)

const cachePrefix = "backtest:bars"

// CachedSource keeps fetched bar series in Redis. Redis errors fall through to the
// underlying source.
type CachedSource struct {
	inner   Source
	redis   redis.Cmdable
	ttl     time.Duration
	metrics *metrics.Collector
	logger  *zap.Logger
}

// NewCachedSource wraps inner with a Redis cache
func NewCachedSource(inner Source, rdb redis.Cmdable, ttl time.Duration, collector *metrics.Collector, logger *zap.Logger) *CachedSource {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachedSource{
		inner:   inner,
		redis:   rdb,
		ttl:     ttl,
		metrics: collector,
		logger:  logger,
	}
}

// CacheKey identifies one bar request
func CacheKey(symbol, timeframe string, start, end time.Time) string {
	hash := sha256.New()
	fmt.Fprintf(hash, "%s|%s|%d|%d", symbol, timeframe, start.UnixMilli(), end.UnixMilli())
	return cachePrefix + ":" + hex.EncodeToString(hash.Sum(nil))
}

// GetBars serves from Redis when possible and stores non-empty misses
func (c *CachedSource) GetBars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]model.Bar, error) {
	key := CacheKey(symbol, timeframe, start, end)

	cached, err := c.redis.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var bars []model.Bar
		if uerr := json.Unmarshal(cached, &bars); uerr == nil {
			c.metrics.CacheLookup(true)
			c.logger.Debug("Cache hit", zap.String("symbol", symbol), zap.String("cache_key", key))
			return bars, nil
		}
		c.logger.Warn("Discarding undecodable cache entry", zap.String("cache_key", key))
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("Cache lookup failed", zap.Error(err), zap.String("cache_key", key))
	}
	c.metrics.CacheLookup(false)

	bars, err := c.inner.GetBars(ctx, symbol, timeframe, start, end)
	if err != nil || len(bars) == 0 {
		return bars, err
	}

	data, err := json.Marshal(bars)
	if err != nil {
		return bars, nil
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Error("Failed to set cache", zap.Error(err), zap.String("cache_key", key))
	}
	return bars, nil
}

// Flush removes every cached bar series
func (c *CachedSource) Flush(ctx context.Context) (int, error) {
	var removed int
	iter := c.redis.Scan(ctx, 0, cachePrefix+":*", 500).Iterator()
	for iter.Next(ctx) {
		if err := c.redis.Del(ctx, iter.Val()).Err(); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, iter.Err()
}
