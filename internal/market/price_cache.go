package market

import (
	"context"
	"sync"
	"time"

	"github.com/coinforge/coinforge/internal/exchange"
)

// DefaultTickerTTL is how long a cached ticker counts as fresh.
const DefaultTickerTTL = 5 * time.Second

// PriceCache stores the last ticker batch. Fresh entries short-circuit venue
// calls; stale entries back up failed fetches.
type PriceCache interface {
	// GetFresh returns the unexpired entries among the requested symbols.
	GetFresh(ctx context.Context, symbols []string) map[string]exchange.Ticker

	// GetStale returns the last known entry for a symbol regardless of age.
	GetStale(ctx context.Context, symbol string) (exchange.Ticker, bool)

	// Put stores a ticker batch.
	Put(ctx context.Context, tickers map[string]exchange.Ticker)
}

type memoryEntry struct {
	ticker exchange.Ticker
	at     time.Time
}

// MemoryPriceCache is the in-process PriceCache used when Redis is not
// configured.
type MemoryPriceCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]memoryEntry
}

// NewMemoryPriceCache creates an in-process ticker cache.
func NewMemoryPriceCache(ttl time.Duration) *MemoryPriceCache {
	return &MemoryPriceCache{
		ttl:     ttl,
		entries: make(map[string]memoryEntry),
	}
}

func (c *MemoryPriceCache) GetFresh(_ context.Context, symbols []string) map[string]exchange.Ticker {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[string]exchange.Ticker)
	now := time.Now()
	for _, s := range symbols {
		entry, ok := c.entries[s]
		if !ok || now.Sub(entry.at) > c.ttl {
			continue
		}
		result[s] = entry.ticker
	}
	return result
}

func (c *MemoryPriceCache) GetStale(_ context.Context, symbol string) (exchange.Ticker, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[symbol]
	return entry.ticker, ok
}

func (c *MemoryPriceCache) Put(_ context.Context, tickers map[string]exchange.Ticker) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for s, t := range tickers {
		c.entries[s] = memoryEntry{ticker: t, at: now}
	}
}
