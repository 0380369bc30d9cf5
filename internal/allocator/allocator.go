package allocator

import (
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/coinforge/coinforge/internal/config"
	"github.com/coinforge/coinforge/internal/scoring"
)

// Allocation is one sized buy order proposal.
type Allocation struct {
	Symbol     string         `json:"symbol"`
	Signal     scoring.Signal `json:"signal"`
	Score      float64        `json:"score"`
	Weight     float64        `json:"weight"`
	Notional   float64        `json:"notional"`
	LimitPrice float64        `json:"limit_price"`
	Quantity   float64        `json:"quantity"`
}

// Allocator splits investable cash across buy candidates by score weight.
// It is stateless and deterministic given its inputs.
type Allocator struct {
	cfg    config.AllocationConfig
	logger zerolog.Logger
}

// NewAllocator creates an allocator.
func NewAllocator(cfg config.AllocationConfig, logger zerolog.Logger) *Allocator {
	return &Allocator{cfg: cfg, logger: logger}
}

// Allocate distributes available cash across candidates that carry a BUY or
// STRONG_BUY signal and a known current price. Results are sorted by
// notional descending.
func (a *Allocator) Allocate(availableCash float64, candidates []*scoring.Result, prices map[string]float64) []Allocation {
	investable := availableCash * (1 - a.cfg.ReserveRatio)
	if investable < a.cfg.MinOrderNotional {
		a.logger.Debug().
			Float64("investable", investable).
			Float64("min_order", a.cfg.MinOrderNotional).
			Msg("Investable cash below minimum order, skipping allocation")
		return nil
	}

	type weighted struct {
		result *scoring.Result
		price  float64
		weight float64
	}

	var pool []weighted
	var rawSum float64
	for _, r := range candidates {
		if !r.Signal.IsBuy() {
			continue
		}
		price, ok := prices[r.Symbol]
		if !ok || price <= 0 {
			a.logger.Warn().Str("symbol", r.Symbol).Msg("No current price for candidate, skipping")
			continue
		}
		raw := r.Total
		if r.Signal == scoring.SignalStrongBuy {
			raw *= a.cfg.StrongBuyBoost
		}
		pool = append(pool, weighted{result: r, price: price, weight: raw})
		rawSum += raw
	}
	if len(pool) == 0 || rawSum <= 0 {
		return nil
	}

	// Normalize, clamp each weight into the per-symbol band, renormalize.
	var clampedSum float64
	for i := range pool {
		w := pool[i].weight / rawSum
		w = math.Max(a.cfg.MinPct, math.Min(a.cfg.MaxPct, w))
		pool[i].weight = w
		clampedSum += w
	}

	var allocations []Allocation
	for _, p := range pool {
		weight := p.weight / clampedSum
		notional := investable * weight
		if notional < a.cfg.MinOrderNotional {
			a.logger.Debug().
				Str("symbol", p.result.Symbol).
				Float64("notional", notional).
				Msg("Allocation below minimum order, skipping")
			continue
		}
		limitPrice := p.price * (1 - a.cfg.LimitDiscount)
		allocations = append(allocations, Allocation{
			Symbol:     p.result.Symbol,
			Signal:     p.result.Signal,
			Score:      p.result.Total,
			Weight:     weight,
			Notional:   notional,
			LimitPrice: limitPrice,
			Quantity:   notional / limitPrice,
		})
	}

	sort.SliceStable(allocations, func(i, j int) bool {
		return allocations[i].Notional > allocations[j].Notional
	})

	return allocations
}
