package risk

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/coinforge/coinforge/internal/config"
	"github.com/coinforge/coinforge/internal/metrics"
)

// HaltState describes whether new entries are allowed.
type HaltState string

const (
	StateActive             HaltState = "active"
	StateHaltedByDailyLimit HaltState = "halted_by_daily_limit"
	StateHaltedByLossStreak HaltState = "halted_by_loss_streak"
	StateManuallyPaused     HaltState = "manually_paused"
)

// DailyTracker accumulates realized PnL and loss streaks for the current
// trading day and gates new entries. Days roll over at local midnight in
// the configured risk timezone. Exits are never gated, only entries.
type DailyTracker struct {
	mu                sync.Mutex
	cfg               config.RiskConfig
	loc               *time.Location
	day               int // year*1000 + yday in loc
	realized          float64
	trades            int
	consecutiveLosses int
	state             HaltState
	manualPause       bool
	logger            zerolog.Logger

	now func() time.Time
}

// NewDailyTracker creates the daily circuit breaker.
func NewDailyTracker(cfg config.RiskConfig, logger zerolog.Logger) *DailyTracker {
	loc := cfg.Location()
	t := &DailyTracker{
		cfg:    cfg,
		loc:    loc,
		state:  StateActive,
		logger: logger.With().Str("component", "daily_risk").Logger(),
		now:    time.Now,
	}
	t.day = dayKey(t.now().In(loc))
	return t
}

func dayKey(t time.Time) int {
	return t.Year()*1000 + t.YearDay()
}

// rolloverLocked resets counters and the automatic halt at day change.
// A manual pause survives the rollover.
func (t *DailyTracker) rolloverLocked() {
	today := dayKey(t.now().In(t.loc))
	if today == t.day {
		return
	}
	t.logger.Info().
		Float64("realized", t.realized).
		Int("trades", t.trades).
		Msg("Trading day rollover, resetting daily counters")

	t.day = today
	t.realized = 0
	t.trades = 0
	t.consecutiveLosses = 0
	if !t.manualPause {
		t.state = StateActive
	}
	t.publishLocked()
}

// RecordTrade folds one realized result into the day's counters and
// trips the halt when a limit is breached. portfolioValue anchors the
// daily loss percentage.
func (t *DailyTracker) RecordTrade(pnl, portfolioValue float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rolloverLocked()

	t.trades++
	t.realized += pnl
	if pnl < 0 {
		t.consecutiveLosses++
	} else {
		t.consecutiveLosses = 0
	}

	metrics.DailyRealizedPnl.Set(t.realized)

	if t.state != StateActive {
		return
	}

	if portfolioValue > 0 && t.realized/portfolioValue <= t.cfg.DailyLossLimitPct {
		t.state = StateHaltedByDailyLimit
		t.logger.Warn().
			Float64("realized", t.realized).
			Float64("portfolio", portfolioValue).
			Float64("limit_pct", t.cfg.DailyLossLimitPct).
			Msg("Daily loss limit reached, halting new entries")
		t.publishLocked()
		return
	}

	if t.cfg.MaxConsecutiveLosses > 0 && t.consecutiveLosses >= t.cfg.MaxConsecutiveLosses {
		t.state = StateHaltedByLossStreak
		t.logger.Warn().
			Int("consecutive_losses", t.consecutiveLosses).
			Msg("Consecutive loss limit reached, halting new entries")
		t.publishLocked()
	}
}

// EntriesAllowed reports whether buy jobs may open new positions.
func (t *DailyTracker) EntriesAllowed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rolloverLocked()
	return t.state == StateActive
}

// State returns the current halt state.
func (t *DailyTracker) State() HaltState {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rolloverLocked()
	return t.state
}

// RealizedToday returns the day's realized PnL and trade count.
func (t *DailyTracker) RealizedToday() (float64, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rolloverLocked()
	return t.realized, t.trades
}

// Pause blocks new entries until Resume is called; it survives day
// rollover.
func (t *DailyTracker) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.manualPause = true
	t.state = StateManuallyPaused
	t.logger.Warn().Msg("Trading manually paused")
	t.publishLocked()
}

// Resume lifts a manual pause. An automatic halt stays until rollover.
func (t *DailyTracker) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.manualPause {
		return
	}
	t.manualPause = false
	t.state = StateActive
	t.logger.Info().Msg("Trading resumed")
	t.publishLocked()
}

func (t *DailyTracker) publishLocked() {
	if t.state == StateActive {
		metrics.TradingHalted.Set(0)
	} else {
		metrics.TradingHalted.Set(1)
	}
}
