package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/coinforge/coinforge/internal/exchange"
	"github.com/coinforge/coinforge/internal/metrics"
	"github.com/coinforge/coinforge/internal/position"
	"github.com/coinforge/coinforge/internal/risk"
	"github.com/coinforge/coinforge/internal/scoring"
	"github.com/coinforge/coinforge/internal/store"
)

// collectData refreshes the ticker and candle caches for every symbol.
func (e *Engine) collectData(ctx context.Context) error {
	symbols := e.cfg.Trading.Symbols

	if _, err := e.market.GetTickers(ctx, symbols); err != nil {
		return fmt.Errorf("failed to refresh tickers: %w", err)
	}

	var failed int
	for _, symbol := range symbols {
		if _, err := e.market.GetCandles(ctx, symbol, candleTimeframe, candleLimit); err != nil {
			e.logger.Warn().Err(err).Str("symbol", symbol).Msg("Candle refresh failed")
			failed++
		}
	}
	if failed == len(symbols) {
		return fmt.Errorf("candle refresh failed for all %d symbols", failed)
	}
	return nil
}

// computeIndicators rebuilds the indicator snapshot for every symbol.
func (e *Engine) computeIndicators(ctx context.Context) error {
	var lastErr error
	for _, symbol := range e.cfg.Trading.Symbols {
		candles, err := e.market.GetCandles(ctx, symbol, candleTimeframe, candleLimit)
		if err != nil {
			lastErr = err
			continue
		}
		snap, err := e.indicators.Compute(symbol, candles)
		if err != nil {
			e.logger.Warn().Err(err).Str("symbol", symbol).Msg("Indicator computation failed")
			lastErr = err
			continue
		}
		profile := snap.Profile()
		e.mu.Lock()
		e.snapshots[symbol] = snap
		e.profiles[symbol] = &profile
		e.mu.Unlock()
	}
	return lastErr
}

// scoreSymbols scores every symbol with a fresh snapshot and records the
// results.
func (e *Engine) scoreSymbols(ctx context.Context) error {
	var sent *scoring.SentimentSnapshot
	if e.sentiment != nil {
		var err error
		sent, err = e.sentiment(ctx)
		if err != nil {
			e.logger.Warn().Err(err).Msg("Sentiment fetch failed, scoring without it")
			sent = nil
		}
	}

	var lastErr error
	for _, symbol := range e.cfg.Trading.Symbols {
		e.mu.Lock()
		snap := e.snapshots[symbol]
		profile := e.profiles[symbol]
		e.mu.Unlock()

		result, err := e.scorer.Score(snap, profile, sent)
		if err != nil {
			lastErr = err
			continue
		}

		e.mu.Lock()
		e.scores[symbol] = result
		e.mu.Unlock()

		metrics.SymbolScore.WithLabelValues(symbol).Set(result.Total)
		if err := e.store.InsertScoringResult(ctx, result); err != nil {
			e.logger.Warn().Err(err).Str("symbol", symbol).Msg("Failed to persist scoring result")
		}
	}
	return lastErr
}

// executeBuys turns current buy candidates into orders. The scheduler
// already gates this job on the daily halt state.
func (e *Engine) executeBuys(ctx context.Context) error {
	balances, err := e.exec.GetBalances(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch balances: %w", err)
	}
	cash := balances.Currencies[e.cfg.Trading.QuoteCurrency].Free

	e.mu.Lock()
	results := make([]*scoring.Result, 0, len(e.scores))
	for symbol, r := range e.scores {
		if _, open := e.tracker.Get(symbol); open {
			continue
		}
		results = append(results, r)
	}
	e.mu.Unlock()

	candidates := scoring.BuyCandidates(results)
	if len(candidates) == 0 {
		return nil
	}

	tickers, err := e.market.GetTickers(ctx, e.cfg.Trading.Symbols)
	if err != nil {
		return fmt.Errorf("failed to fetch tickers: %w", err)
	}
	prices := make(map[string]float64, len(tickers))
	for symbol, t := range tickers {
		prices[symbol] = t.Last
	}

	allocations := e.allocator.Allocate(cash, candidates, prices)
	equity, usedMargin := e.accountState(cash)

	for _, alloc := range allocations {
		notional := alloc.Notional

		e.mu.Lock()
		snap := e.snapshots[alloc.Symbol]
		e.mu.Unlock()
		atrPct := 0.0
		if snap != nil && !math.IsNaN(snap.AtrPct) {
			atrPct = snap.AtrPct
		}

		sizing, err := e.risk.SizePosition(risk.SizingInput{
			Symbol:           alloc.Symbol,
			EntryPrice:       prices[alloc.Symbol],
			AtrPct:           atrPct,
			TotalEquity:      equity,
			AvailableBalance: cash,
			TotalUsedMargin:  usedMargin,
			Leverage:         e.leverage(),
			MinOrderNotional: e.cfg.Allocation.MinOrderNotional,
		})
		if err != nil {
			e.logger.Info().Err(err).Str("symbol", alloc.Symbol).Msg("Entry skipped by position sizing")
			continue
		}
		if sizing.Notional < notional {
			notional = sizing.Notional
		}

		fill, err := e.exec.OpenLong(ctx, alloc.Symbol, notional, alloc.LimitPrice)
		if err != nil {
			continue
		}

		if err := e.tracker.Open(&position.Position{
			Symbol:     fill.Symbol,
			Side:       exchange.PositionLong,
			EntryPrice: fill.Price,
			Volume:     fill.Quantity,
			EntryTime:  fill.At,
			TradeID:    fill.TradeID,
		}); err != nil {
			e.logger.Error().Err(err).Str("symbol", fill.Symbol).Msg("Failed to track new position")
		}
		if err := e.store.InsertFill(ctx, fill); err != nil {
			e.logger.Warn().Err(err).Str("trade_id", fill.TradeID).Msg("Failed to persist fill")
		}

		cash -= fill.Notional + fill.Fee
		usedMargin += sizing.Margin
	}

	metrics.OpenPositions.Set(float64(e.tracker.Count()))
	return nil
}

// checkRisk evaluates every open position against the exit rules, then
// reconciles the tracker with the venue.
func (e *Engine) checkRisk(ctx context.Context) error {
	balances, err := e.exec.GetBalances(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch balances: %w", err)
	}
	cash := balances.Currencies[e.cfg.Trading.QuoteCurrency].Free
	equity, _ := e.accountState(cash)

	now := time.Now()
	for _, pos := range e.tracker.List() {
		ticker, err := e.market.GetTicker(ctx, pos.Symbol)
		if err != nil {
			e.logger.Warn().Err(err).Str("symbol", pos.Symbol).Msg("No price for risk check")
			continue
		}
		price := ticker.Last

		if err := e.tracker.ObservePrice(pos.Symbol, price); err != nil {
			continue
		}
		fresh, ok := e.tracker.Get(pos.Symbol)
		if !ok {
			continue
		}

		candles, err := e.market.GetCandles(ctx, pos.Symbol, candleTimeframe, e.cfg.Indicators.MinCandles)
		if err != nil {
			candles = nil
		}
		emaCross := 0
		e.mu.Lock()
		if snap := e.snapshots[pos.Symbol]; snap != nil {
			emaCross = snap.EmaCross
		}
		e.mu.Unlock()

		action := e.risk.Evaluate(fresh, price, candles, emaCross, now)
		if !action.IsExit() {
			continue
		}

		qty := fresh.InitialQuantity * action.QuantityPct
		if qty > fresh.Volume {
			qty = fresh.Volume
		}

		fill, err := e.exec.Close(ctx, pos.Symbol, qty, fresh.Side)
		if err != nil {
			e.alerts.SendWarning(ctx, "exit order failed",
				fmt.Sprintf("%s %s exit for %.6f failed: %v", pos.Symbol, action.Action, qty, err), nil)
			continue
		}

		realized := (fill.Price - fresh.EntryPrice) * qty
		if fresh.Side == exchange.PositionShort {
			realized = -realized
		}
		realized -= fill.Fee

		if err := e.exec.AddRealizedPnL(realized); err != nil {
			e.logger.Warn().Err(err).Msg("Failed to settle realized pnl")
		}
		e.daily.RecordTrade(realized, equity)
		e.recordOutcome(realized)

		if action.NewTpStage > 0 {
			if err := e.tracker.AdvanceTpStage(pos.Symbol, action.NewTpStage); err != nil {
				e.logger.Warn().Err(err).Str("symbol", pos.Symbol).Msg("Failed to advance take-profit stage")
			}
		}
		if err := e.tracker.ReduceVolume(pos.Symbol, qty); err != nil {
			e.logger.Warn().Err(err).Str("symbol", pos.Symbol).Msg("Failed to reduce tracked volume")
		}
		if err := e.store.InsertFill(ctx, fill); err != nil {
			e.logger.Warn().Err(err).Str("trade_id", fill.TradeID).Msg("Failed to persist fill")
		}

		if action.Urgency >= 3 {
			e.alerts.SendWarning(ctx, "stop loss triggered",
				fmt.Sprintf("%s closed %.6f at %.4f (%.2f%%): %s",
					pos.Symbol, qty, fill.Price, action.PnlPct*100, action.Reason), nil)
		}

		e.logger.Info().
			Str("symbol", pos.Symbol).
			Str("action", string(action.Action)).
			Float64("quantity", qty).
			Float64("price", fill.Price).
			Float64("realized_pnl", realized).
			Str("reason", action.Reason).
			Msg("Exit executed")
	}

	metrics.OpenPositions.Set(float64(e.tracker.Count()))
	return e.reconciler.Run(ctx)
}

// dailyFeedback writes the day's summary and resets the day counters.
func (e *Engine) dailyFeedback(ctx context.Context) error {
	e.mu.Lock()
	stats := e.day
	day := e.dayDate
	e.day = dayStats{}
	e.dayDate = time.Time{}
	e.mu.Unlock()

	if stats.trades == 0 {
		return nil
	}
	if day.IsZero() {
		day = dateIn(time.Now(), e.cfg.Risk.Location())
	}

	summary := store.DailySummary{
		Day:         day,
		RealizedPnl: stats.pnl,
		Trades:      stats.trades,
		Wins:        stats.wins,
		Losses:      stats.losses,
	}
	if err := e.store.UpsertDailySummary(ctx, summary); err != nil {
		return err
	}

	e.alerts.SendInfo(ctx, "daily summary",
		fmt.Sprintf("%s: pnl %.2f over %d trades (%d wins, %d losses)",
			day.Format("2006-01-02"), stats.pnl, stats.trades, stats.wins, stats.losses), nil)
	return nil
}

// recordOutcome folds one realized trade into the running day counters.
func (e *Engine) recordOutcome(realized float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.day.trades == 0 {
		e.dayDate = dateIn(time.Now(), e.cfg.Risk.Location())
	}
	e.day.pnl += realized
	e.day.trades++
	if realized > 0 {
		e.day.wins++
	} else {
		e.day.losses++
	}
	e.realizedTotal += realized
	metrics.RealizedPnl.Set(e.realizedTotal)
}

// accountState estimates total equity and margin tied up in open positions.
func (e *Engine) accountState(cash float64) (equity, usedMargin float64) {
	equity = cash
	leverage := float64(e.leverage())
	for _, pos := range e.tracker.List() {
		notional := pos.EntryPrice * pos.Volume
		equity += notional / leverage
		usedMargin += notional / leverage
	}
	return equity, usedMargin
}

func (e *Engine) leverage() int {
	if e.cfg.Trading.IsFutures() && e.cfg.Trading.Leverage > 0 {
		return e.cfg.Trading.Leverage
	}
	return 1
}

func dateIn(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}
