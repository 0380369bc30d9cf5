package risk

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/coinforge/coinforge/internal/config"
	"github.com/coinforge/coinforge/internal/exchange"
	"github.com/coinforge/coinforge/internal/position"
)

// recentBars is the lookback window for the dynamic stop level.
const recentBars = 10

// Engine evaluates open positions against the exit cascade. Rules are
// checked in a fixed order and the first match wins.
type Engine struct {
	cfg    config.RiskConfig
	logger zerolog.Logger
}

// NewEngine creates a risk engine.
func NewEngine(cfg config.RiskConfig, logger zerolog.Logger) *Engine {
	return &Engine{cfg: cfg, logger: logger.With().Str("component", "risk").Logger()}
}

// Evaluate produces the action for one position. candles supply the recent
// low/high for the dynamic stop; emaCross carries the latest cross state
// (+1 golden, -1 dead, 0 none). The caller must have updated the peak
// price before calling.
func (e *Engine) Evaluate(pos position.Position, price float64, candles []exchange.Candle, emaCross int, now time.Time) Action {
	pnlPct := pos.PnlPct(price)
	pnl := signedPnl(pos, price)
	short := pos.Side == exchange.PositionShort

	hold := Action{Symbol: pos.Symbol, Action: ActionHold, PnlPct: pnlPct, Pnl: pnl}

	// 1. Fixed stop loss
	if pnlPct <= -e.cfg.StopLossPct {
		return Action{
			Symbol: pos.Symbol, Action: ActionStopLoss, QuantityPct: 1.0,
			PnlPct: pnlPct, Pnl: pnl, Urgency: 3,
			Reason: fmt.Sprintf("fixed stop: pnl %.2f%% breached -%.2f%%", pnlPct*100, e.cfg.StopLossPct*100),
		}
	}

	// 2. Dynamic stop from the recent swing, capped at the hard limit
	if stop, ok := e.dynamicStop(pos, candles); ok {
		breached := price < stop
		if short {
			breached = price > stop
		}
		if breached {
			return Action{
				Symbol: pos.Symbol, Action: ActionStopLoss, QuantityPct: 1.0,
				PnlPct: pnlPct, Pnl: pnl, Urgency: 3,
				Reason: fmt.Sprintf("dynamic stop: price %.6g crossed stop %.6g", price, stop),
			}
		}
	}

	// 3. Take-profit tiers
	switch {
	case pnlPct >= 0.025:
		return Action{
			Symbol: pos.Symbol, Action: ActionTakeProfit, QuantityPct: 1.0,
			NewTpStage: 3, PnlPct: pnlPct, Pnl: pnl, Urgency: 2,
			Reason: fmt.Sprintf("final take profit at %.2f%%", pnlPct*100),
		}
	case pos.TpStage < 2 && pnlPct >= 0.015:
		return Action{
			Symbol: pos.Symbol, Action: ActionTakeProfit, QuantityPct: 0.30,
			NewTpStage: 2, PnlPct: pnlPct, Pnl: pnl, Urgency: 2,
			Reason: fmt.Sprintf("take profit tier 2 at %.2f%%", pnlPct*100),
		}
	case pos.TpStage < 1 && pnlPct >= 0.008:
		return Action{
			Symbol: pos.Symbol, Action: ActionTakeProfit, QuantityPct: 0.30,
			NewTpStage: 1, PnlPct: pnlPct, Pnl: pnl, Urgency: 2,
			Reason: fmt.Sprintf("take profit tier 1 at %.2f%%", pnlPct*100),
		}
	}

	// 4. Trailing stop, armed after the first take-profit tier
	if pos.TpStage >= 1 && pos.PeakPrice > 0 {
		pullback := (pos.PeakPrice - price) / pos.PeakPrice
		if short {
			pullback = (price - pos.PeakPrice) / pos.PeakPrice
		}
		if pullback >= e.cfg.TrailingStopPct {
			return Action{
				Symbol: pos.Symbol, Action: ActionTrailingStop, QuantityPct: 1.0,
				PnlPct: pnlPct, Pnl: pnl, Urgency: 2,
				Reason: fmt.Sprintf("trailing stop: %.2f%% pullback from peak %.6g", pullback*100, pos.PeakPrice),
			}
		}
	}

	// 5. EMA-cross exit, losers only
	if pnlPct < 0 {
		if (!short && emaCross == -1) || (short && emaCross == 1) {
			return Action{
				Symbol: pos.Symbol, Action: ActionStopLoss, QuantityPct: 1.0,
				PnlPct: pnlPct, Pnl: pnl, Urgency: 2,
				Reason: "ema cross against a losing position",
			}
		}
	}

	// 6. Max hold, losers only; winners keep running for the trailing stop
	if pos.HoldMinutes(now) >= float64(e.cfg.MaxHoldMinutes) && pnlPct <= 0 {
		return Action{
			Symbol: pos.Symbol, Action: ActionMaxHold, QuantityPct: 1.0,
			PnlPct: pnlPct, Pnl: pnl, Urgency: 1,
			Reason: fmt.Sprintf("max hold of %d minutes reached without profit", e.cfg.MaxHoldMinutes),
		}
	}

	return hold
}

// dynamicStop derives the stop level from the recent swing, capped so the
// loss can never exceed the hard stop-loss cap.
func (e *Engine) dynamicStop(pos position.Position, candles []exchange.Candle) (float64, bool) {
	if len(candles) == 0 {
		return 0, false
	}
	window := candles
	if len(window) > recentBars {
		window = window[len(window)-recentBars:]
	}

	if pos.Side == exchange.PositionShort {
		hardCap := pos.EntryPrice * (1 + e.cfg.StopLossCapPct)
		high := math.Inf(-1)
		for _, c := range window {
			high = math.Max(high, c.High)
		}
		return math.Min(high, hardCap), true
	}

	hardCap := pos.EntryPrice * (1 - e.cfg.StopLossCapPct)
	low := math.Inf(1)
	for _, c := range window {
		low = math.Min(low, c.Low)
	}
	return math.Max(low, hardCap), true
}

// signedPnl is the notional PnL of the full position at the given price.
func signedPnl(pos position.Position, price float64) float64 {
	diff := price - pos.EntryPrice
	if pos.Side == exchange.PositionShort {
		diff = -diff
	}
	return diff * pos.Volume
}
