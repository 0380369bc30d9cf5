package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseSizingInput() SizingInput {
	return SizingInput{
		Symbol:           "BTCUSDT",
		EntryPrice:       50000,
		AtrPct:           0.003,
		TotalEquity:      10000,
		AvailableBalance: 9000,
		TotalUsedMargin:  0,
		Leverage:         1,
		MinOrderNotional: 10,
	}
}

func TestSizePositionBaseMargin(t *testing.T) {
	sizing, err := newTestEngine().SizePosition(baseSizingInput())
	require.NoError(t, err)

	// ATR at target keeps the base 3% margin
	assert.InDelta(t, 300, sizing.Notional, 1e-9)
	assert.InDelta(t, 0.03, sizing.MarginPct, 1e-12)
	assert.InDelta(t, 300.0/50000, sizing.Quantity, 1e-12)
}

func TestSizePositionShrinksWithVolatility(t *testing.T) {
	in := baseSizingInput()
	in.AtrPct = 0.006 // twice the target halves the margin

	sizing, err := newTestEngine().SizePosition(in)
	require.NoError(t, err)
	assert.InDelta(t, 0.015, sizing.MarginPct, 1e-12)
}

func TestSizePositionCappedPerTicker(t *testing.T) {
	in := baseSizingInput()
	in.AtrPct = 0.001 // a third of the target would triple the margin

	sizing, err := newTestEngine().SizePosition(in)
	require.NoError(t, err)
	assert.InDelta(t, 0.04, sizing.MarginPct, 1e-12)
}

func TestSizePositionAppliesLeverage(t *testing.T) {
	in := baseSizingInput()
	in.Leverage = 3

	sizing, err := newTestEngine().SizePosition(in)
	require.NoError(t, err)
	assert.InDelta(t, 900, sizing.Notional, 1e-9)
	assert.InDelta(t, 300, sizing.Margin, 1e-9)
}

func TestSizePositionRejectsExcessMargin(t *testing.T) {
	in := baseSizingInput()
	in.TotalUsedMargin = 2500 // over 20% of equity

	_, err := newTestEngine().SizePosition(in)
	assert.Error(t, err)
}

func TestSizePositionRejectsLowAvailableBalance(t *testing.T) {
	in := baseSizingInput()
	in.AvailableBalance = 4000 // under 50% of equity

	_, err := newTestEngine().SizePosition(in)
	assert.Error(t, err)
}

func TestSizePositionRejectsDustOrders(t *testing.T) {
	in := baseSizingInput()
	in.MinOrderNotional = 1000

	_, err := newTestEngine().SizePosition(in)
	assert.Error(t, err)
}
