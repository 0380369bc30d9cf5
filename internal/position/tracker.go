package position

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/coinforge/coinforge/internal/exchange"
)

// Position is one managed open position.
type Position struct {
	Symbol          string                `json:"symbol"`
	Side            exchange.PositionSide `json:"side"`
	EntryPrice      float64               `json:"entry_price"`
	Volume          float64               `json:"volume"`
	InitialQuantity float64               `json:"initial_quantity"`
	EntryTime       time.Time             `json:"entry_time"`
	PeakPrice       float64               `json:"peak_price"`
	TpStage         int                   `json:"tp_stage"`
	TrailingActive  bool                  `json:"trailing_active"`
	TradeID         string                `json:"trade_id"`
}

// HoldMinutes returns how long the position has been open.
func (p *Position) HoldMinutes(now time.Time) float64 {
	return now.Sub(p.EntryTime).Minutes()
}

// PnlPct returns the signed fractional PnL at the given price.
func (p *Position) PnlPct(price float64) float64 {
	if p.EntryPrice <= 0 {
		return 0
	}
	pct := (price - p.EntryPrice) / p.EntryPrice
	if p.Side == exchange.PositionShort {
		pct = -pct
	}
	return pct
}

// UpdatePeak moves the peak toward the favorable direction only: longs
// raise it, shorts lower it.
func (p *Position) UpdatePeak(price float64) {
	if p.Side == exchange.PositionShort {
		if price < p.PeakPrice {
			p.PeakPrice = price
		}
		return
	}
	if price > p.PeakPrice {
		p.PeakPrice = price
	}
}

const snapshotFile = "open_positions.json"

// Tracker holds all managed open positions. The trading loop is the only
// writer; readers take a copy under the mutex. Every mutation persists the
// snapshot file so restarts rehydrate open positions.
type Tracker struct {
	mu        sync.Mutex
	positions map[string]*Position
	path      string
	logger    zerolog.Logger
}

// NewTracker creates a tracker backed by a snapshot file in dataDir and
// rehydrates any previously persisted positions.
func NewTracker(dataDir string, logger zerolog.Logger) (*Tracker, error) {
	t := &Tracker{
		positions: make(map[string]*Position),
		path:      filepath.Join(dataDir, snapshotFile),
		logger:    logger,
	}
	if err := t.load(); err != nil {
		return nil, err
	}
	return t, nil
}

// Open registers a new position and persists the snapshot.
func (t *Tracker) Open(pos *Position) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if pos.PeakPrice == 0 {
		pos.PeakPrice = pos.EntryPrice
	}
	if pos.InitialQuantity == 0 {
		pos.InitialQuantity = pos.Volume
	}
	t.positions[pos.Symbol] = pos

	t.logger.Info().
		Str("symbol", pos.Symbol).
		Str("side", string(pos.Side)).
		Float64("entry_price", pos.EntryPrice).
		Float64("volume", pos.Volume).
		Str("trade_id", pos.TradeID).
		Msg("Position opened")

	return t.saveLocked()
}

// Get returns a copy of the position for a symbol.
func (t *Tracker) Get(symbol string) (Position, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pos, ok := t.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// List returns a copy of all open positions.
func (t *Tracker) List() []Position {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Position, 0, len(t.positions))
	for _, pos := range t.positions {
		out = append(out, *pos)
	}
	return out
}

// Count returns the number of open positions.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.positions)
}

// ObservePrice updates the peak price for a symbol before risk evaluation.
func (t *Tracker) ObservePrice(symbol string, price float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	pos, ok := t.positions[symbol]
	if !ok {
		return nil
	}
	before := pos.PeakPrice
	pos.UpdatePeak(price)
	if pos.PeakPrice == before {
		return nil
	}
	return t.saveLocked()
}

// AdvanceTpStage bumps the take-profit stage and arms the trailing stop.
func (t *Tracker) AdvanceTpStage(symbol string, stage int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	pos, ok := t.positions[symbol]
	if !ok {
		return fmt.Errorf("no open position for %s", symbol)
	}
	if stage > pos.TpStage {
		pos.TpStage = stage
	}
	pos.TrailingActive = pos.TpStage >= 1
	return t.saveLocked()
}

// ReduceVolume shrinks a position after a partial close; the position is
// removed once its volume reaches zero.
func (t *Tracker) ReduceVolume(symbol string, quantity float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	pos, ok := t.positions[symbol]
	if !ok {
		return fmt.Errorf("no open position for %s", symbol)
	}
	pos.Volume -= quantity
	if pos.Volume <= 1e-12 {
		delete(t.positions, symbol)
		t.logger.Info().Str("symbol", symbol).Msg("Position fully closed")
	}
	return t.saveLocked()
}

// Remove evicts a position without adjusting volume, used by the
// reconciler when the exchange no longer reports it.
func (t *Tracker) Remove(symbol string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.positions[symbol]; !ok {
		return nil
	}
	delete(t.positions, symbol)
	return t.saveLocked()
}

func (t *Tracker) load() error {
	data, err := os.ReadFile(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read position snapshot: %w", err)
	}

	var positions map[string]*Position
	if err := json.Unmarshal(data, &positions); err != nil {
		return fmt.Errorf("failed to parse position snapshot: %w", err)
	}

	for _, pos := range positions {
		if pos.PeakPrice == 0 {
			pos.PeakPrice = pos.EntryPrice
		}
		if pos.InitialQuantity == 0 {
			pos.InitialQuantity = pos.Volume
		}
		pos.TrailingActive = pos.TpStage >= 1
	}
	t.positions = positions

	if len(positions) > 0 {
		t.logger.Info().Int("count", len(positions)).Msg("Rehydrated open positions")
	}
	return nil
}

// saveLocked persists the snapshot atomically; callers hold the mutex.
func (t *Tracker) saveLocked() error {
	data, err := json.MarshalIndent(t.positions, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal position snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	tmp := t.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write position snapshot: %w", err)
	}
	if err := os.Rename(tmp, t.path); err != nil {
		return fmt.Errorf("failed to replace position snapshot: %w", err)
	}
	return nil
}
