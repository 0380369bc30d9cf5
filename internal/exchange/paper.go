package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ShortHoldingPrefix marks simulated short exposure in the holdings map.
const ShortHoldingPrefix = "SHORT_"

// PaperExchange implements Exchange with simulated execution. Public market
// data is forwarded to a read-only delegate (the live venue needs no keys for
// public endpoints) so the simulated engine trades against real prices.
//
// Accounting contract: opening a position deducts only the fee from cash;
// realized PnL is credited separately through AddRealizedPnL once the caller
// has computed it. Cash and holdings survive restarts via a JSON snapshot
// rewritten on every mutation.
type PaperExchange struct {
	mu       sync.Mutex
	cash     float64
	holdings map[string]float64

	feeRate       float64
	quoteCurrency string
	futures       bool
	statePath     string

	data   Exchange           // public data delegate, may be nil in tests
	prices map[string]float64 // manual price overrides

	logger zerolog.Logger
}

// PaperConfig contains settings for the simulated venue
type PaperConfig struct {
	InitialCapital float64
	FeeRate        float64
	QuoteCurrency  string
	Futures        bool
	StatePath      string // empty disables persistence
}

type paperState struct {
	Cash     float64            `json:"cash"`
	Holdings map[string]float64 `json:"holdings"`
}

// NewPaperExchange creates a simulated venue. If a state snapshot exists at
// the configured path it wins over InitialCapital.
func NewPaperExchange(cfg PaperConfig, data Exchange, logger zerolog.Logger) (*PaperExchange, error) {
	p := &PaperExchange{
		cash:          cfg.InitialCapital,
		holdings:      make(map[string]float64),
		feeRate:       cfg.FeeRate,
		quoteCurrency: cfg.QuoteCurrency,
		futures:       cfg.Futures,
		statePath:     cfg.StatePath,
		data:          data,
		prices:        make(map[string]float64),
		logger:        logger,
	}

	if cfg.StatePath != "" {
		if err := p.loadState(); err != nil {
			return nil, err
		}
	}

	logger.Info().
		Float64("cash", p.cash).
		Int("holdings", len(p.holdings)).
		Msg("Paper exchange initialized")

	return p, nil
}

// SetMarketPrice overrides the fill price used for a symbol. Tests and the
// engine's risk loop use this to avoid a delegate round-trip.
func (p *PaperExchange) SetMarketPrice(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[symbol] = price
}

// Cash returns the current simulated cash balance.
func (p *PaperExchange) Cash() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cash
}

// AddRealizedPnL credits (or debits) realized profit to the cash balance.
// The caller computes PnL from its position records after a close fill.
func (p *PaperExchange) AddRealizedPnL(delta float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cash += delta
	p.logger.Info().
		Float64("delta", delta).
		Float64("cash", p.cash).
		Msg("Realized PnL applied to paper wallet")

	return p.saveStateLocked()
}

// GetCandles forwards to the public data delegate.
func (p *PaperExchange) GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error) {
	if p.data == nil {
		return nil, fmt.Errorf("%w: no market data delegate configured", ErrUpstreamUnavailable)
	}
	return p.data.GetCandles(ctx, symbol, timeframe, limit)
}

// GetTicker returns the override price when set, else forwards.
func (p *PaperExchange) GetTicker(ctx context.Context, symbol string) (*Ticker, error) {
	p.mu.Lock()
	price, ok := p.prices[symbol]
	p.mu.Unlock()
	if ok {
		return &Ticker{Symbol: symbol, Last: price, At: time.Now()}, nil
	}
	if p.data == nil {
		return nil, fmt.Errorf("%w: no price for %s", ErrUpstreamUnavailable, symbol)
	}
	return p.data.GetTicker(ctx, symbol)
}

// GetTickers returns override prices where set, forwarding the rest.
func (p *PaperExchange) GetTickers(ctx context.Context, symbols []string) (map[string]Ticker, error) {
	result := make(map[string]Ticker, len(symbols))
	var missing []string

	p.mu.Lock()
	now := time.Now()
	for _, s := range symbols {
		if price, ok := p.prices[s]; ok {
			result[s] = Ticker{Symbol: s, Last: price, At: now}
		} else {
			missing = append(missing, s)
		}
	}
	p.mu.Unlock()

	if len(missing) > 0 && p.data != nil {
		fetched, err := p.data.GetTickers(ctx, missing)
		if err != nil {
			return result, err
		}
		for s, t := range fetched {
			result[s] = t
		}
	}
	return result, nil
}

// GetOrderbook forwards to the public data delegate.
func (p *PaperExchange) GetOrderbook(ctx context.Context, symbol string, depth int) (*Orderbook, error) {
	if p.data == nil {
		return nil, fmt.Errorf("%w: no market data delegate configured", ErrUpstreamUnavailable)
	}
	return p.data.GetOrderbook(ctx, symbol, depth)
}

// GetBalances reports simulated cash plus held quantities.
func (p *PaperExchange) GetBalances(ctx context.Context) (*BalancesSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	snapshot := &BalancesSnapshot{
		Currencies: map[string]Balance{
			p.quoteCurrency: {Free: p.cash, Total: p.cash},
		},
		At: time.Now(),
	}
	for asset, qty := range p.holdings {
		if qty <= 0 {
			continue
		}
		snapshot.Currencies[asset] = Balance{Free: qty, Total: qty}
	}
	return snapshot, nil
}

// PlaceOrder simulates execution at the reference price. Entries deduct only
// the fee from cash; exits deduct the fee and reduce the holding.
func (p *PaperExchange) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*OrderResult, error) {
	if err := validateOrderRequest(req); err != nil {
		return nil, err
	}
	if req.PositionSide == PositionShort && !p.futures {
		return nil, fmt.Errorf("%w: short positions require a futures market", ErrUpstreamRejected)
	}

	price, err := p.fillPrice(ctx, req)
	if err != nil {
		return nil, err
	}

	qty := req.Quantity
	if qty <= 0 {
		qty = req.Notional / price
	}
	notional := qty * price
	fee := notional * p.feeRate

	p.mu.Lock()
	defer p.mu.Unlock()

	key := p.holdingKey(req.Symbol, req.PositionSide)
	opening := p.isOpening(req)

	if opening {
		if p.cash < fee {
			return nil, fmt.Errorf("%w: cash %.2f < fee %.2f", ErrInsufficientFunds, p.cash, fee)
		}
		p.cash -= fee
		p.holdings[key] += qty
	} else {
		held := p.holdings[key]
		if held <= 0 {
			return nil, fmt.Errorf("%w: no %s holding to close for %s", ErrUpstreamRejected, req.PositionSide, req.Symbol)
		}
		if qty > held {
			qty = held
			notional = qty * price
			fee = notional * p.feeRate
		}
		p.cash -= fee
		p.holdings[key] = held - qty
		if p.holdings[key] <= 1e-12 {
			delete(p.holdings, key)
		}
	}

	if err := p.saveStateLocked(); err != nil {
		p.logger.Error().Err(err).Msg("Failed to persist paper wallet state")
	}

	result := &OrderResult{
		OrderID:       uuid.NewString(),
		Symbol:        req.Symbol,
		Side:          req.Side,
		PositionSide:  req.PositionSide,
		Status:        OrderStatusFilled,
		ExecutedPrice: price,
		ExecutedQty:   qty,
		Notional:      notional,
		Fee:           fee,
		At:            time.Now(),
	}

	p.logger.Info().
		Str("symbol", req.Symbol).
		Str("side", string(req.Side)).
		Str("position_side", string(req.PositionSide)).
		Float64("price", price).
		Float64("qty", qty).
		Float64("fee", fee).
		Float64("cash", p.cash).
		Msg("Paper order filled")

	return result, nil
}

// CancelAll is a no-op: simulated orders fill immediately.
func (p *PaperExchange) CancelAll(ctx context.Context, symbol string) error {
	return nil
}

// OpenPositions reports simulated holdings normalized for reconciliation.
func (p *PaperExchange) OpenPositions(ctx context.Context) ([]PositionSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var positions []PositionSnapshot
	for key, qty := range p.holdings {
		if qty <= 0 {
			continue
		}
		side := PositionLong
		base := key
		if strings.HasPrefix(key, ShortHoldingPrefix) {
			side = PositionShort
			base = strings.TrimPrefix(key, ShortHoldingPrefix)
		}
		positions = append(positions, PositionSnapshot{
			Symbol:   base + p.quoteCurrency,
			Side:     side,
			Quantity: qty,
		})
	}
	return positions, nil
}

func (p *PaperExchange) fillPrice(ctx context.Context, req PlaceOrderRequest) (float64, error) {
	if req.Price > 0 {
		return req.Price, nil
	}
	ticker, err := p.GetTicker(ctx, req.Symbol)
	if err != nil {
		return 0, err
	}
	if ticker.Last <= 0 {
		return 0, fmt.Errorf("%w: no reference price for %s", ErrUpstreamUnavailable, req.Symbol)
	}
	return ticker.Last, nil
}

func (p *PaperExchange) holdingKey(symbol string, side PositionSide) string {
	base := strings.TrimSuffix(symbol, p.quoteCurrency)
	if side == PositionShort {
		return ShortHoldingPrefix + base
	}
	return base
}

// isOpening reports whether the order grows exposure: buys open longs,
// sells open shorts.
func (p *PaperExchange) isOpening(req PlaceOrderRequest) bool {
	if req.PositionSide == PositionShort {
		return req.Side == SideSell
	}
	return req.Side == SideBuy
}

func (p *PaperExchange) loadState() error {
	data, err := os.ReadFile(p.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read paper state: %w", err)
	}

	var state paperState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("failed to parse paper state: %w", err)
	}

	p.cash = state.Cash
	if state.Holdings != nil {
		p.holdings = state.Holdings
	}

	p.logger.Info().
		Str("path", p.statePath).
		Float64("cash", p.cash).
		Msg("Paper wallet state restored")

	return nil
}

// saveStateLocked persists the wallet atomically. Callers hold the mutex.
func (p *PaperExchange) saveStateLocked() error {
	if p.statePath == "" {
		return nil
	}

	state := paperState{Cash: p.cash, Holdings: p.holdings}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal paper state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(p.statePath), 0o755); err != nil {
		return fmt.Errorf("failed to create state dir: %w", err)
	}

	tmp := p.statePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write paper state: %w", err)
	}
	return os.Rename(tmp, p.statePath)
}
