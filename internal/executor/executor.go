package executor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/coinforge/coinforge/internal/exchange"
	"github.com/coinforge/coinforge/internal/metrics"
)

// ErrInvalidOrder means the request failed local validation and was never
// sent to the venue.
var ErrInvalidOrder = errors.New("invalid order")

// Fill is the executor's record of one state-changing order.
type Fill struct {
	TradeID      string                `json:"trade_id"`
	Symbol       string                `json:"symbol"`
	Side         exchange.OrderSide    `json:"side"`
	PositionSide exchange.PositionSide `json:"position_side"`
	Price        float64               `json:"price"`
	Quantity     float64               `json:"quantity"`
	Notional     float64               `json:"notional"`
	Fee          float64               `json:"fee"`
	Mode         string                `json:"mode"`
	At           time.Time             `json:"at"`
}

// FailedOrder is the audit record written when an order errors.
type FailedOrder struct {
	Symbol   string    `json:"symbol"`
	Side     string    `json:"side"`
	Notional float64   `json:"notional"`
	Quantity float64   `json:"quantity"`
	Reason   string    `json:"reason"`
	At       time.Time `json:"at"`
}

// AuditSink receives failed-order records. Implementations must tolerate
// being called from the trading loop and never block for long.
type AuditSink interface {
	RecordFailedOrder(ctx context.Context, rec FailedOrder) error
}

// realizedPnlSink is implemented by the paper venue; live venues settle
// PnL on the exchange side.
type realizedPnlSink interface {
	AddRealizedPnL(delta float64) error
}

// Config holds executor settings.
type Config struct {
	Mode             string // "simulated" or "live"
	QuoteCurrency    string
	Futures          bool
	MinOrderNotional float64
}

// Executor places orders through the venue with a contract identical in
// simulated and live mode.
type Executor struct {
	venue   exchange.Exchange
	cfg     Config
	audit   AuditSink
	counter uint64
	logger  zerolog.Logger
}

// New creates an executor. audit may be nil.
func New(venue exchange.Exchange, cfg Config, audit AuditSink, logger zerolog.Logger) *Executor {
	return &Executor{
		venue:  venue,
		cfg:    cfg,
		audit:  audit,
		logger: logger.With().Str("component", "executor").Logger(),
	}
}

// nextTradeID derives a deterministic trade id from the symbol, a UTC
// timestamp, and a process-scoped counter.
func (e *Executor) nextTradeID(symbol string) string {
	n := atomic.AddUint64(&e.counter, 1)
	return fmt.Sprintf("%s-%s-%d", symbol, time.Now().UTC().Format("20060102150405"), n)
}

// OpenLong buys notional worth of the symbol. A positive limitPrice places
// a limit order with quantity = notional / limitPrice; zero places a
// market order by notional.
func (e *Executor) OpenLong(ctx context.Context, symbol string, notional, limitPrice float64) (*Fill, error) {
	return e.open(ctx, symbol, exchange.PositionLong, notional, limitPrice)
}

// OpenShort sells notional worth of the symbol short. Futures only.
func (e *Executor) OpenShort(ctx context.Context, symbol string, notional, limitPrice float64) (*Fill, error) {
	if !e.cfg.Futures {
		err := fmt.Errorf("%w: short positions need a futures market", ErrInvalidOrder)
		return nil, e.fail(ctx, symbol, "sell", notional, 0, err)
	}
	return e.open(ctx, symbol, exchange.PositionShort, notional, limitPrice)
}

func (e *Executor) open(ctx context.Context, symbol string, posSide exchange.PositionSide, notional, limitPrice float64) (*Fill, error) {
	side := exchange.SideBuy
	if posSide == exchange.PositionShort {
		side = exchange.SideSell
	}

	if notional < e.cfg.MinOrderNotional {
		err := fmt.Errorf("%w: notional %.2f below minimum %.2f", ErrInvalidOrder, notional, e.cfg.MinOrderNotional)
		return nil, e.fail(ctx, symbol, string(side), notional, 0, err)
	}

	req := exchange.PlaceOrderRequest{
		Symbol:       symbol,
		Side:         side,
		PositionSide: posSide,
		Type:         exchange.OrderTypeMarket,
		Notional:     notional,
	}
	if limitPrice > 0 {
		req.Type = exchange.OrderTypeLimit
		req.Price = limitPrice
		req.Quantity = notional / limitPrice
	}

	result, err := e.venue.PlaceOrder(ctx, req)
	if err != nil {
		return nil, e.fail(ctx, symbol, string(side), notional, req.Quantity, err)
	}
	return e.fill(symbol, result), nil
}

// Close submits the opposite-side order for quantity of the position.
func (e *Executor) Close(ctx context.Context, symbol string, quantity float64, posSide exchange.PositionSide) (*Fill, error) {
	if quantity <= 0 {
		err := fmt.Errorf("%w: close quantity must be positive", ErrInvalidOrder)
		return nil, e.fail(ctx, symbol, "close", 0, quantity, err)
	}

	side := exchange.SideSell
	if posSide == exchange.PositionShort {
		side = exchange.SideBuy
	}

	result, err := e.venue.PlaceOrder(ctx, exchange.PlaceOrderRequest{
		Symbol:       symbol,
		Side:         side,
		PositionSide: posSide,
		Type:         exchange.OrderTypeMarket,
		Quantity:     quantity,
	})
	if err != nil {
		return nil, e.fail(ctx, symbol, string(side), 0, quantity, err)
	}
	return e.fill(symbol, result), nil
}

// GetBalances passes through to the venue.
func (e *Executor) GetBalances(ctx context.Context) (*exchange.BalancesSnapshot, error) {
	return e.venue.GetBalances(ctx)
}

// CancelAll cancels open orders, optionally scoped to one symbol.
func (e *Executor) CancelAll(ctx context.Context, symbol string) error {
	return e.venue.CancelAll(ctx, symbol)
}

// AddRealizedPnL settles computed PnL into the simulated wallet. Live
// venues settle on the exchange side, so this is a no-op there.
func (e *Executor) AddRealizedPnL(delta float64) error {
	if sink, ok := e.venue.(realizedPnlSink); ok {
		return sink.AddRealizedPnL(delta)
	}
	return nil
}

// SyncInitialCapital returns the current quote-currency balance so live
// mode can anchor allocation to real funds before the first cycle.
func (e *Executor) SyncInitialCapital(ctx context.Context) (float64, error) {
	snapshot, err := e.venue.GetBalances(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch balances: %w", err)
	}
	balance, ok := snapshot.Currencies[e.cfg.QuoteCurrency]
	if !ok {
		return 0, fmt.Errorf("no %s balance on exchange", e.cfg.QuoteCurrency)
	}
	e.logger.Info().
		Float64("balance", balance.Free).
		Str("currency", e.cfg.QuoteCurrency).
		Msg("Synchronized initial capital with exchange balance")
	return balance.Free, nil
}

func (e *Executor) fill(symbol string, result *exchange.OrderResult) *Fill {
	f := &Fill{
		TradeID:      e.nextTradeID(symbol),
		Symbol:       symbol,
		Side:         result.Side,
		PositionSide: result.PositionSide,
		Price:        result.ExecutedPrice,
		Quantity:     result.ExecutedQty,
		Notional:     result.Notional,
		Fee:          result.Fee,
		Mode:         e.cfg.Mode,
		At:           result.At,
	}
	if f.At.IsZero() {
		f.At = time.Now().UTC()
	}

	metrics.TradesTotal.WithLabelValues(string(f.Side), e.cfg.Mode).Inc()
	e.logger.Info().
		Str("trade_id", f.TradeID).
		Str("symbol", symbol).
		Str("side", string(f.Side)).
		Float64("price", f.Price).
		Float64("quantity", f.Quantity).
		Float64("fee", f.Fee).
		Str("mode", f.Mode).
		Msg("Order filled")

	return f
}

// fail records the audit entry, bumps the failure metric, and returns the
// original error for the caller.
func (e *Executor) fail(ctx context.Context, symbol, side string, notional, quantity float64, err error) error {
	metrics.FailedOrdersTotal.WithLabelValues(side).Inc()
	e.logger.Error().
		Err(err).
		Str("symbol", symbol).
		Str("side", side).
		Float64("notional", notional).
		Msg("Order failed")

	if e.audit != nil {
		rec := FailedOrder{
			Symbol:   symbol,
			Side:     side,
			Notional: notional,
			Quantity: quantity,
			Reason:   err.Error(),
			At:       time.Now().UTC(),
		}
		if auditErr := e.audit.RecordFailedOrder(ctx, rec); auditErr != nil {
			e.logger.Warn().Err(auditErr).Msg("Failed to write order audit record")
		}
	}
	return err
}
