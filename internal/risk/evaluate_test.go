package risk

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/coinforge/coinforge/internal/config"
	"github.com/coinforge/coinforge/internal/exchange"
	"github.com/coinforge/coinforge/internal/position"
)

func testRiskConfig() config.RiskConfig {
	return config.RiskConfig{
		StopLossPct:          0.010,
		StopLossCapPct:       0.020,
		TrailingStopPct:      0.004,
		MaxHoldMinutes:       60,
		DailyLossLimitPct:    -0.05,
		MaxConsecutiveLosses: 3,
		MarginPerTickerPct:   0.03,
		TargetAtrPct:         0.003,
		MaxPerTickerPct:      0.04,
		MaxTotalMarginPct:    0.20,
		MinAvailablePct:      0.50,
		Timezone:             "Asia/Seoul",
	}
}

func newTestEngine() *Engine {
	return NewEngine(testRiskConfig(), zerolog.Nop())
}

func longAt(entry float64, openedAgo time.Duration) position.Position {
	now := time.Now().UTC()
	return position.Position{
		Symbol:          "BTCUSDT",
		Side:            exchange.PositionLong,
		EntryPrice:      entry,
		Volume:          1,
		InitialQuantity: 1,
		EntryTime:       now.Add(-openedAgo),
		PeakPrice:       entry,
	}
}

// flatCandles keeps lows far from the price so the dynamic stop resolves
// to the hard cap.
func flatCandles(price float64) []exchange.Candle {
	candles := make([]exchange.Candle, 15)
	for i := range candles {
		candles[i] = exchange.Candle{
			High: price * 1.001, Low: price * 0.999, Close: price,
		}
	}
	return candles
}

func TestFixedStopLossFiresFirst(t *testing.T) {
	pos := longAt(100, 5*time.Minute)

	action := newTestEngine().Evaluate(pos, 98.9, flatCandles(98.9), 0, time.Now())
	assert.Equal(t, ActionStopLoss, action.Action)
	assert.Equal(t, 1.0, action.QuantityPct)
	assert.Equal(t, 3, action.Urgency)
	assert.InDelta(t, -0.011, action.PnlPct, 1e-9)
}

func TestDynamicStopUsesRecentLow(t *testing.T) {
	pos := longAt(100, 5*time.Minute)

	// Recent lows sit at 99.5; price dips under them while above the
	// fixed stop threshold
	candles := make([]exchange.Candle, 12)
	for i := range candles {
		candles[i] = exchange.Candle{High: 100.5, Low: 99.5, Close: 100}
	}

	action := newTestEngine().Evaluate(pos, 99.4, candles, 0, time.Now())
	assert.Equal(t, ActionStopLoss, action.Action)
	assert.Contains(t, action.Reason, "dynamic stop")
}

func TestTakeProfitTierOne(t *testing.T) {
	pos := longAt(100, 5*time.Minute)

	action := newTestEngine().Evaluate(pos, 100.9, flatCandles(100.9), 0, time.Now())
	assert.Equal(t, ActionTakeProfit, action.Action)
	assert.Equal(t, 0.30, action.QuantityPct)
	assert.Equal(t, 1, action.NewTpStage)
}

func TestTakeProfitTierTwo(t *testing.T) {
	pos := longAt(100, 5*time.Minute)
	pos.TpStage = 1

	action := newTestEngine().Evaluate(pos, 101.6, flatCandles(101.6), 0, time.Now())
	assert.Equal(t, ActionTakeProfit, action.Action)
	assert.Equal(t, 0.30, action.QuantityPct)
	assert.Equal(t, 2, action.NewTpStage)
}

func TestFinalTakeProfitClosesEverything(t *testing.T) {
	pos := longAt(100, 5*time.Minute)
	pos.TpStage = 2

	action := newTestEngine().Evaluate(pos, 102.6, flatCandles(102.6), 0, time.Now())
	assert.Equal(t, ActionTakeProfit, action.Action)
	assert.Equal(t, 1.0, action.QuantityPct)
}

func TestTierOneNotRepeatedAtSameStage(t *testing.T) {
	pos := longAt(100, 5*time.Minute)
	pos.TpStage = 1

	// +0.9% already banked tier one; no further tier until +1.5%
	action := newTestEngine().Evaluate(pos, 100.9, flatCandles(100.9), 0, time.Now())
	assert.Equal(t, ActionHold, action.Action)
}

func TestTrailingStopAfterFirstTier(t *testing.T) {
	pos := longAt(100, 5*time.Minute)
	pos.TpStage = 1
	pos.TrailingActive = true
	pos.PeakPrice = 102

	// 0.5% pullback from the peak
	action := newTestEngine().Evaluate(pos, 101.49, flatCandles(101.49), 0, time.Now())
	assert.Equal(t, ActionTrailingStop, action.Action)
	assert.Equal(t, 1.0, action.QuantityPct)
}

func TestTrailingStopInactiveBeforeFirstTier(t *testing.T) {
	pos := longAt(100, 5*time.Minute)
	pos.PeakPrice = 100.7

	action := newTestEngine().Evaluate(pos, 100.2, flatCandles(100.2), 0, time.Now())
	assert.Equal(t, ActionHold, action.Action)
}

func TestEmaCrossExitOnlyWhenLosing(t *testing.T) {
	engine := newTestEngine()

	losing := longAt(100, 5*time.Minute)
	action := engine.Evaluate(losing, 99.8, flatCandles(99.8), -1, time.Now())
	assert.Equal(t, ActionStopLoss, action.Action)
	assert.Contains(t, action.Reason, "ema cross")

	winning := longAt(100, 5*time.Minute)
	action = engine.Evaluate(winning, 100.5, flatCandles(100.5), -1, time.Now())
	assert.Equal(t, ActionHold, action.Action)
}

func TestMaxHoldExitsLosersOnly(t *testing.T) {
	engine := newTestEngine()

	stale := longAt(100, 90*time.Minute)
	action := engine.Evaluate(stale, 99.9, flatCandles(99.9), 0, time.Now())
	assert.Equal(t, ActionMaxHold, action.Action)
	assert.Equal(t, 1, action.Urgency)

	// A profitable stale position keeps running for the trailing stop
	profitable := longAt(100, 90*time.Minute)
	profitable.TpStage = 1
	profitable.PeakPrice = 100.6
	action = engine.Evaluate(profitable, 100.55, flatCandles(100.55), 0, time.Now())
	assert.Equal(t, ActionHold, action.Action)
}

func TestShortMirrorsTheCascade(t *testing.T) {
	engine := newTestEngine()
	now := time.Now().UTC()
	short := position.Position{
		Symbol:          "BTCUSDT",
		Side:            exchange.PositionShort,
		EntryPrice:      100,
		Volume:          1,
		InitialQuantity: 1,
		EntryTime:       now.Add(-5 * time.Minute),
		PeakPrice:       100,
	}

	// Price up 1.1% is a short loss
	action := engine.Evaluate(short, 101.1, flatCandles(101.1), 0, now)
	assert.Equal(t, ActionStopLoss, action.Action)

	// Price down 0.9% is a short gain, tier one
	action = engine.Evaluate(short, 99.1, flatCandles(99.1), 0, now)
	assert.Equal(t, ActionTakeProfit, action.Action)
	assert.Equal(t, 1, action.NewTpStage)

	// A golden cross against a losing short exits
	losing := short
	action = engine.Evaluate(losing, 100.2, flatCandles(100.2), 1, now)
	assert.Equal(t, ActionStopLoss, action.Action)
}

func TestHoldWhenNothingMatches(t *testing.T) {
	pos := longAt(100, 5*time.Minute)

	action := newTestEngine().Evaluate(pos, 100.2, flatCandles(100.2), 0, time.Now())
	assert.Equal(t, ActionHold, action.Action)
	assert.False(t, action.IsExit())
	assert.InDelta(t, 0.2, action.Pnl, 1e-9)
}
