package market

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coinforge/coinforge/internal/exchange"
)

func newTestRedisCache(t *testing.T) (*RedisPriceCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisPriceCache(client, 5*time.Second, zerolog.Nop()), mr
}

func TestRedisCachePutAndGetFresh(t *testing.T) {
	cache, _ := newTestRedisCache(t)
	ctx := context.Background()

	cache.Put(ctx, map[string]exchange.Ticker{
		"BTCUSDT": {Symbol: "BTCUSDT", Last: 50000},
		"ETHUSDT": {Symbol: "ETHUSDT", Last: 2500},
	})

	fresh := cache.GetFresh(ctx, []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"})
	require.Len(t, fresh, 2)
	assert.Equal(t, 50000.0, fresh["BTCUSDT"].Last)
	assert.Equal(t, 2500.0, fresh["ETHUSDT"].Last)
}

func TestRedisCacheStaleSurvivesExpiry(t *testing.T) {
	cache, mr := newTestRedisCache(t)
	ctx := context.Background()

	cache.Put(ctx, map[string]exchange.Ticker{
		"BTCUSDT": {Symbol: "BTCUSDT", Last: 50000},
	})

	mr.FastForward(10 * time.Second)

	fresh := cache.GetFresh(ctx, []string{"BTCUSDT"})
	assert.Empty(t, fresh)

	stale, ok := cache.GetStale(ctx, "BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, 50000.0, stale.Last)
}

func TestRedisCacheMissingSymbol(t *testing.T) {
	cache, _ := newTestRedisCache(t)

	_, ok := cache.GetStale(context.Background(), "DOGEUSDT")
	assert.False(t, ok)
}
