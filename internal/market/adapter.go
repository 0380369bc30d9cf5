package market

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/coinforge/coinforge/internal/exchange"
)

// Adapter is the single gateway to venue market data. It paces outbound
// requests, falls back to the last good candle series when the venue returns
// a short or empty batch, and serves stale ticker prices when a live fetch
// fails.
type Adapter struct {
	venue   exchange.Exchange
	limiter *rate.Limiter
	prices  PriceCache
	logger  zerolog.Logger

	minCandles int

	mu          sync.Mutex
	candleCache map[string][]exchange.Candle

	warnMu         sync.Mutex
	warnLastAt     map[string]time.Time
	warnSuppressed map[string]int
	warnThrottle   time.Duration
}

// AdapterConfig configures request pacing and fallback behavior
type AdapterConfig struct {
	MinRequestGap time.Duration // minimum gap between outbound requests
	MinCandles    int           // series shorter than this fall back to cache
}

// NewAdapter creates a market data adapter over a venue. prices may be nil,
// in which case an in-memory ticker cache is used.
func NewAdapter(venue exchange.Exchange, cfg AdapterConfig, prices PriceCache, logger zerolog.Logger) *Adapter {
	if cfg.MinRequestGap <= 0 {
		cfg.MinRequestGap = 60 * time.Millisecond
	}
	if cfg.MinCandles <= 0 {
		cfg.MinCandles = 50
	}
	if prices == nil {
		prices = NewMemoryPriceCache(DefaultTickerTTL)
	}

	return &Adapter{
		venue:          venue,
		limiter:        rate.NewLimiter(rate.Every(cfg.MinRequestGap), 1),
		prices:         prices,
		logger:         logger,
		minCandles:     cfg.MinCandles,
		candleCache:    make(map[string][]exchange.Candle),
		warnLastAt:     make(map[string]time.Time),
		warnSuppressed: make(map[string]int),
		warnThrottle:   5 * time.Minute,
	}
}

// GetCandles fetches a candle series, dropping NaN rows and falling back to
// the last cached series when the venue returns too few bars.
func (a *Adapter) GetCandles(ctx context.Context, symbol, timeframe string, count int) ([]exchange.Candle, error) {
	cacheKey := symbol + ":" + timeframe

	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	candles, err := a.venue.GetCandles(ctx, symbol, timeframe, count)
	if err != nil {
		if cached := a.cachedCandles(cacheKey); cached != nil {
			a.logger.Info().
				Str("symbol", symbol).
				Str("timeframe", timeframe).
				Msg("Candle fetch failed, serving cached series")
			return cached, nil
		}
		return nil, fmt.Errorf("candle fetch failed for %s %s: %w", symbol, timeframe, err)
	}

	candles = dropInvalidRows(candles)

	if len(candles) < a.minCandles {
		if cached := a.cachedCandles(cacheKey); len(cached) >= a.minCandles {
			a.warnThrottled(cacheKey+":short", func(e *zerolog.Event) {
				e.Str("symbol", symbol).
					Str("timeframe", timeframe).
					Int("got", len(candles)).
					Int("want", a.minCandles).
					Msg("Short candle series, serving cached series")
			})
			return cached, nil
		}
		a.warnThrottled(cacheKey+":short", func(e *zerolog.Event) {
			e.Str("symbol", symbol).
				Str("timeframe", timeframe).
				Int("got", len(candles)).
				Int("want", a.minCandles).
				Msg("Short candle series")
		})
		return nil, fmt.Errorf("insufficient candles for %s %s: %d < %d", symbol, timeframe, len(candles), a.minCandles)
	}

	a.mu.Lock()
	a.candleCache[cacheKey] = candles
	a.mu.Unlock()

	return candles, nil
}

// GetTicker returns the latest price for one symbol, serving the cache when
// fresh and falling back to the last known price on failure.
func (a *Adapter) GetTicker(ctx context.Context, symbol string) (*exchange.Ticker, error) {
	if fresh := a.prices.GetFresh(ctx, []string{symbol}); len(fresh) == 1 {
		t := fresh[symbol]
		return &t, nil
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	ticker, err := a.venue.GetTicker(ctx, symbol)
	if err != nil {
		if stale, ok := a.prices.GetStale(ctx, symbol); ok {
			a.warnThrottled(symbol+":ticker", func(e *zerolog.Event) {
				e.Err(err).Str("symbol", symbol).Msg("Ticker fetch failed, serving stale price")
			})
			return &stale, nil
		}
		return nil, fmt.Errorf("ticker fetch failed for %s: %w", symbol, err)
	}

	a.prices.Put(ctx, map[string]exchange.Ticker{symbol: *ticker})
	return ticker, nil
}

// GetTickers returns prices for several symbols: one batch call, then a
// per-symbol fallback for anything the batch missed.
func (a *Adapter) GetTickers(ctx context.Context, symbols []string) (map[string]exchange.Ticker, error) {
	result := a.prices.GetFresh(ctx, symbols)
	if len(result) == len(symbols) {
		return result, nil
	}

	var missing []string
	for _, s := range symbols {
		if _, ok := result[s]; !ok {
			missing = append(missing, s)
		}
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	batch, err := a.venue.GetTickers(ctx, missing)
	if err != nil {
		a.warnThrottled("batch_tickers", func(e *zerolog.Event) {
			e.Err(err).Msg("Batch ticker fetch failed")
		})
	} else {
		a.prices.Put(ctx, batch)
		for s, t := range batch {
			result[s] = t
		}
	}

	for _, s := range missing {
		if _, ok := result[s]; ok {
			continue
		}
		ticker, err := a.GetTicker(ctx, s)
		if err != nil {
			a.warnThrottled(s+":ticker", func(e *zerolog.Event) {
				e.Err(err).Str("symbol", s).Msg("Ticker fetch failed")
			})
			continue
		}
		result[s] = *ticker
	}

	return result, nil
}

// GetOrderbook fetches the top depth levels for a symbol.
func (a *Adapter) GetOrderbook(ctx context.Context, symbol string, depth int) (*exchange.Orderbook, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return a.venue.GetOrderbook(ctx, symbol, depth)
}

// GetBalances fetches the per-currency account balances.
func (a *Adapter) GetBalances(ctx context.Context) (*exchange.BalancesSnapshot, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return a.venue.GetBalances(ctx)
}

func (a *Adapter) cachedCandles(key string) []exchange.Candle {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.candleCache[key]
}

// warnThrottled emits at most one warning per key per throttle window and
// reports how many duplicates were suppressed in between.
func (a *Adapter) warnThrottled(key string, fill func(*zerolog.Event)) {
	a.warnMu.Lock()
	last := a.warnLastAt[key]
	now := time.Now()
	if now.Sub(last) < a.warnThrottle {
		a.warnSuppressed[key]++
		a.warnMu.Unlock()
		return
	}
	suppressed := a.warnSuppressed[key]
	a.warnLastAt[key] = now
	a.warnSuppressed[key] = 0
	a.warnMu.Unlock()

	event := a.logger.Warn()
	if suppressed > 0 {
		event = event.Int("suppressed", suppressed)
	}
	fill(event)
}

// dropInvalidRows removes bars carrying NaN fields or violating the OHLC
// ordering invariant.
func dropInvalidRows(candles []exchange.Candle) []exchange.Candle {
	out := candles[:0]
	for _, c := range candles {
		if math.IsNaN(c.Open) || math.IsNaN(c.High) || math.IsNaN(c.Low) ||
			math.IsNaN(c.Close) || math.IsNaN(c.Volume) {
			continue
		}
		if !c.Valid() {
			continue
		}
		out = append(out, c)
	}
	return out
}
