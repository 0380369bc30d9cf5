package allocator

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coinforge/coinforge/internal/config"
	"github.com/coinforge/coinforge/internal/scoring"
)

func testAllocConfig() config.AllocationConfig {
	return config.AllocationConfig{
		ReserveRatio:     0.10,
		MinPct:           0.10,
		MaxPct:           0.50,
		StrongBuyBoost:   1.5,
		LimitDiscount:    0.003,
		MinOrderNotional: 100,
	}
}

func newTestAllocator() *Allocator {
	return NewAllocator(testAllocConfig(), zerolog.Nop())
}

func TestAllocateReservesCash(t *testing.T) {
	candidates := []*scoring.Result{
		{Symbol: "BTCUSDT", Total: 75, Signal: scoring.SignalBuy},
	}
	prices := map[string]float64{"BTCUSDT": 50000}

	allocations := newTestAllocator().Allocate(10000, candidates, prices)
	require.Len(t, allocations, 1)
	assert.InDelta(t, 9000, allocations[0].Notional, 1e-9)
}

func TestAllocateEmptyWhenBelowMinimum(t *testing.T) {
	candidates := []*scoring.Result{
		{Symbol: "BTCUSDT", Total: 75, Signal: scoring.SignalBuy},
	}
	prices := map[string]float64{"BTCUSDT": 50000}

	assert.Empty(t, newTestAllocator().Allocate(100, candidates, prices))
}

func TestStrongBuyGetsBoostedWeight(t *testing.T) {
	candidates := []*scoring.Result{
		{Symbol: "BTCUSDT", Total: 80, Signal: scoring.SignalStrongBuy},
		{Symbol: "ETHUSDT", Total: 80, Signal: scoring.SignalBuy},
	}
	prices := map[string]float64{"BTCUSDT": 50000, "ETHUSDT": 2500}

	allocations := newTestAllocator().Allocate(10000, candidates, prices)
	require.Len(t, allocations, 2)

	// Sorted descending, so the boosted symbol comes first
	assert.Equal(t, "BTCUSDT", allocations[0].Symbol)
	assert.Greater(t, allocations[0].Notional, allocations[1].Notional)
}

func TestWeightsClampedToBand(t *testing.T) {
	candidates := []*scoring.Result{
		{Symbol: "BTCUSDT", Total: 95, Signal: scoring.SignalStrongBuy},
		{Symbol: "ETHUSDT", Total: 70, Signal: scoring.SignalBuy},
		{Symbol: "SOLUSDT", Total: 70, Signal: scoring.SignalBuy},
		{Symbol: "XRPUSDT", Total: 70, Signal: scoring.SignalBuy},
	}
	prices := map[string]float64{
		"BTCUSDT": 50000, "ETHUSDT": 2500, "SOLUSDT": 150, "XRPUSDT": 0.5,
	}

	allocations := newTestAllocator().Allocate(100000, candidates, prices)
	require.NotEmpty(t, allocations)

	var totalWeight float64
	for _, a := range allocations {
		totalWeight += a.Weight
	}
	assert.InDelta(t, 1.0, totalWeight, 1e-9)

	for _, a := range allocations {
		// After renormalizing four clamped weights, no symbol can
		// exceed the configured maximum share
		assert.LessOrEqual(t, a.Weight, testAllocConfig().MaxPct+1e-9)
	}
}

func TestLimitPriceAndQuantity(t *testing.T) {
	candidates := []*scoring.Result{
		{Symbol: "BTCUSDT", Total: 75, Signal: scoring.SignalBuy},
	}
	prices := map[string]float64{"BTCUSDT": 50000}

	allocations := newTestAllocator().Allocate(10000, candidates, prices)
	require.Len(t, allocations, 1)

	a := allocations[0]
	assert.InDelta(t, 50000*0.997, a.LimitPrice, 1e-9)
	assert.InDelta(t, a.Notional/a.LimitPrice, a.Quantity, 1e-12)
}

func TestCandidatesWithoutPriceAreSkipped(t *testing.T) {
	candidates := []*scoring.Result{
		{Symbol: "BTCUSDT", Total: 75, Signal: scoring.SignalBuy},
		{Symbol: "MISSING", Total: 90, Signal: scoring.SignalStrongBuy},
	}
	prices := map[string]float64{"BTCUSDT": 50000}

	allocations := newTestAllocator().Allocate(10000, candidates, prices)
	require.Len(t, allocations, 1)
	assert.Equal(t, "BTCUSDT", allocations[0].Symbol)
}

func TestHoldCandidatesIgnored(t *testing.T) {
	candidates := []*scoring.Result{
		{Symbol: "BTCUSDT", Total: 50, Signal: scoring.SignalHold},
	}
	prices := map[string]float64{"BTCUSDT": 50000}

	assert.Empty(t, newTestAllocator().Allocate(10000, candidates, prices))
}
