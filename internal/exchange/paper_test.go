package exchange

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPaper(t *testing.T, cfg PaperConfig) *PaperExchange {
	t.Helper()
	if cfg.QuoteCurrency == "" {
		cfg.QuoteCurrency = "USDT"
	}
	p, err := NewPaperExchange(cfg, nil, zerolog.Nop())
	require.NoError(t, err)
	return p
}

func TestPaperOpenLongDeductsOnlyFee(t *testing.T) {
	p := newTestPaper(t, PaperConfig{InitialCapital: 10000, FeeRate: 0.0005})

	fill, err := p.PlaceOrder(context.Background(), PlaceOrderRequest{
		Symbol:       "BTCUSDT",
		Side:         SideBuy,
		PositionSide: PositionLong,
		Type:         OrderTypeMarket,
		Notional:     1000,
		Price:        50000,
	})
	require.NoError(t, err)

	assert.Equal(t, OrderStatusFilled, fill.Status)
	assert.InDelta(t, 0.02, fill.ExecutedQty, 1e-9)
	assert.InDelta(t, 0.5, fill.Fee, 1e-9)
	// Entry deducts the fee, not the notional
	assert.InDelta(t, 9999.5, p.Cash(), 1e-9)
}

func TestPaperOpenCloseRoundTrip(t *testing.T) {
	p := newTestPaper(t, PaperConfig{InitialCapital: 10000, FeeRate: 0})
	ctx := context.Background()

	open, err := p.PlaceOrder(ctx, PlaceOrderRequest{
		Symbol:       "ETHUSDT",
		Side:         SideBuy,
		PositionSide: PositionLong,
		Type:         OrderTypeMarket,
		Notional:     2000,
		Price:        2000,
	})
	require.NoError(t, err)

	_, err = p.PlaceOrder(ctx, PlaceOrderRequest{
		Symbol:       "ETHUSDT",
		Side:         SideSell,
		PositionSide: PositionLong,
		Type:         OrderTypeMarket,
		Quantity:     open.ExecutedQty,
		Price:        2000,
	})
	require.NoError(t, err)

	// Price unchanged and zero fees: cash back to start once PnL is applied
	require.NoError(t, p.AddRealizedPnL(0))
	assert.InDelta(t, 10000, p.Cash(), 1e-9)

	positions, err := p.OpenPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestPaperInsufficientFunds(t *testing.T) {
	p := newTestPaper(t, PaperConfig{InitialCapital: 0.01, FeeRate: 0.001})

	_, err := p.PlaceOrder(context.Background(), PlaceOrderRequest{
		Symbol:       "BTCUSDT",
		Side:         SideBuy,
		PositionSide: PositionLong,
		Type:         OrderTypeMarket,
		Notional:     1000,
		Price:        50000,
	})
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestPaperShortRequiresFutures(t *testing.T) {
	spot := newTestPaper(t, PaperConfig{InitialCapital: 1000, FeeRate: 0})

	_, err := spot.PlaceOrder(context.Background(), PlaceOrderRequest{
		Symbol:       "BTCUSDT",
		Side:         SideSell,
		PositionSide: PositionShort,
		Type:         OrderTypeMarket,
		Notional:     100,
		Price:        50000,
	})
	assert.ErrorIs(t, err, ErrUpstreamRejected)

	futures := newTestPaper(t, PaperConfig{InitialCapital: 1000, FeeRate: 0, Futures: true})
	fill, err := futures.PlaceOrder(context.Background(), PlaceOrderRequest{
		Symbol:       "BTCUSDT",
		Side:         SideSell,
		PositionSide: PositionShort,
		Type:         OrderTypeMarket,
		Notional:     100,
		Price:        50000,
	})
	require.NoError(t, err)
	assert.Equal(t, PositionShort, fill.PositionSide)

	positions, err := futures.OpenPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "BTCUSDT", positions[0].Symbol)
	assert.Equal(t, PositionShort, positions[0].Side)
}

func TestPaperStateSurvivesRestart(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "wallet.json")

	p := newTestPaper(t, PaperConfig{InitialCapital: 5000, FeeRate: 0.001, StatePath: statePath})
	_, err := p.PlaceOrder(context.Background(), PlaceOrderRequest{
		Symbol:       "SOLUSDT",
		Side:         SideBuy,
		PositionSide: PositionLong,
		Type:         OrderTypeMarket,
		Notional:     500,
		Price:        100,
	})
	require.NoError(t, err)
	cashBefore := p.Cash()

	restarted := newTestPaper(t, PaperConfig{InitialCapital: 999, FeeRate: 0.001, StatePath: statePath})
	assert.InDelta(t, cashBefore, restarted.Cash(), 1e-9)

	positions, err := restarted.OpenPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "SOLUSDT", positions[0].Symbol)
	assert.InDelta(t, 5.0, positions[0].Quantity, 1e-9)
}

func TestPaperCloseCapsAtHeldQuantity(t *testing.T) {
	p := newTestPaper(t, PaperConfig{InitialCapital: 1000, FeeRate: 0})
	ctx := context.Background()

	_, err := p.PlaceOrder(ctx, PlaceOrderRequest{
		Symbol:       "ETHUSDT",
		Side:         SideBuy,
		PositionSide: PositionLong,
		Type:         OrderTypeMarket,
		Quantity:     1.0,
		Price:        2000,
	})
	require.NoError(t, err)

	fill, err := p.PlaceOrder(ctx, PlaceOrderRequest{
		Symbol:       "ETHUSDT",
		Side:         SideSell,
		PositionSide: PositionLong,
		Type:         OrderTypeMarket,
		Quantity:     2.0,
		Price:        2000,
	})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, fill.ExecutedQty, 1e-9)
}

func TestPaperBalancesIncludeHoldings(t *testing.T) {
	p := newTestPaper(t, PaperConfig{InitialCapital: 1000, FeeRate: 0})
	_, err := p.PlaceOrder(context.Background(), PlaceOrderRequest{
		Symbol:       "BTCUSDT",
		Side:         SideBuy,
		PositionSide: PositionLong,
		Type:         OrderTypeMarket,
		Quantity:     0.5,
		Price:        100,
	})
	require.NoError(t, err)

	balances, err := p.GetBalances(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 1000, balances.Currencies["USDT"].Free, 1e-9)
	assert.InDelta(t, 0.5, balances.Currencies["BTC"].Total, 1e-9)
}
