package market

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/coinforge/coinforge/internal/exchange"
)

// RedisPriceCache is a PriceCache backed by Redis so several engine
// processes can share one ticker view. Each symbol is written twice: a
// TTL-bounded fresh key and a persistent last-known key for stale fallback.
type RedisPriceCache struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedisPriceCache creates a Redis-backed ticker cache.
func NewRedisPriceCache(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *RedisPriceCache {
	if ttl <= 0 {
		ttl = DefaultTickerTTL
	}
	return &RedisPriceCache{client: client, ttl: ttl, logger: logger}
}

func freshKey(symbol string) string { return "ticker:fresh:" + symbol }
func lastKey(symbol string) string  { return "ticker:last:" + symbol }

func (c *RedisPriceCache) GetFresh(ctx context.Context, symbols []string) map[string]exchange.Ticker {
	result := make(map[string]exchange.Ticker)
	if len(symbols) == 0 {
		return result
	}

	keys := make([]string, len(symbols))
	for i, s := range symbols {
		keys[i] = freshKey(s)
	}

	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		c.logger.Warn().Err(err).Msg("Redis error during ticker cache lookup")
		return result
	}

	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var ticker exchange.Ticker
		if err := json.Unmarshal([]byte(raw), &ticker); err != nil {
			c.logger.Warn().Err(err).Str("symbol", symbols[i]).Msg("Failed to unmarshal cached ticker")
			continue
		}
		result[symbols[i]] = ticker
	}
	return result
}

func (c *RedisPriceCache) GetStale(ctx context.Context, symbol string) (exchange.Ticker, bool) {
	raw, err := c.client.Get(ctx, lastKey(symbol)).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn().Err(err).Msg("Redis error during stale ticker lookup")
		}
		return exchange.Ticker{}, false
	}

	var ticker exchange.Ticker
	if err := json.Unmarshal([]byte(raw), &ticker); err != nil {
		return exchange.Ticker{}, false
	}
	return ticker, true
}

func (c *RedisPriceCache) Put(ctx context.Context, tickers map[string]exchange.Ticker) {
	pipe := c.client.Pipeline()
	for symbol, ticker := range tickers {
		data, err := json.Marshal(ticker)
		if err != nil {
			c.logger.Warn().Err(err).Str("symbol", symbol).Msg("Failed to marshal ticker for cache")
			continue
		}
		pipe.Set(ctx, freshKey(symbol), data, c.ttl)
		pipe.Set(ctx, lastKey(symbol), data, 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to cache ticker batch")
	}
}
