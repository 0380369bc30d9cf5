// Package reconcile keeps the position tracker and the exchange in
// agreement. The exchange is the source of truth: divergence never
// survives more than one cycle.
package reconcile

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/coinforge/coinforge/internal/alerts"
	"github.com/coinforge/coinforge/internal/exchange"
	"github.com/coinforge/coinforge/internal/executor"
	"github.com/coinforge/coinforge/internal/position"
)

// closer submits market closes for unmanaged positions.
type closer interface {
	Close(ctx context.Context, symbol string, quantity float64, posSide exchange.PositionSide) (*executor.Fill, error)
}

// Reconciler diffs tracked positions against the exchange every cycle.
type Reconciler struct {
	venue   exchange.Exchange
	tracker *position.Tracker
	exec    closer
	alerts  *alerts.Manager
	logger  zerolog.Logger
}

// New creates a reconciler.
func New(venue exchange.Exchange, tracker *position.Tracker, exec closer, alertMgr *alerts.Manager, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		venue:   venue,
		tracker: tracker,
		exec:    exec,
		alerts:  alertMgr,
		logger:  logger.With().Str("component", "reconciler").Logger(),
	}
}

// Run performs one reconciliation cycle.
func (r *Reconciler) Run(ctx context.Context) error {
	exchangePositions, err := r.venue.OpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch exchange positions: %w", err)
	}

	onExchange := make(map[string]exchange.PositionSnapshot, len(exchangePositions))
	for _, p := range exchangePositions {
		onExchange[p.Symbol] = p
	}

	// Tracked positions the exchange no longer reports, or reports with
	// the opposite side, are evicted.
	tracked := make(map[string]position.Position)
	for _, pos := range r.tracker.List() {
		tracked[pos.Symbol] = pos

		ex, ok := onExchange[pos.Symbol]
		if ok && ex.Side == pos.Side {
			continue
		}

		reason := "absent on exchange"
		if ok {
			reason = fmt.Sprintf("side mismatch: tracked %s, exchange %s", pos.Side, ex.Side)
		}
		r.logger.Error().
			Str("symbol", pos.Symbol).
			Str("side", string(pos.Side)).
			Str("reason", reason).
			Msg("Tracked position disappeared from exchange, evicting")

		r.alerts.SendCritical(ctx, "position disappeared",
			fmt.Sprintf("%s %s no longer matches the exchange (%s)", pos.Symbol, pos.Side, reason),
			map[string]interface{}{"symbol": pos.Symbol, "side": string(pos.Side)})

		if err := r.tracker.Remove(pos.Symbol); err != nil {
			r.logger.Error().Err(err).Str("symbol", pos.Symbol).Msg("Failed to evict position")
		}
	}

	// Exchange positions with no matching tracked record are unmanaged
	// and get closed immediately at market.
	for _, ex := range exchangePositions {
		if pos, ok := tracked[ex.Symbol]; ok && pos.Side == ex.Side {
			continue
		}

		r.logger.Error().
			Str("symbol", ex.Symbol).
			Str("side", string(ex.Side)).
			Float64("quantity", ex.Quantity).
			Msg("Unmanaged position on exchange, closing at market")

		if _, err := r.exec.Close(ctx, ex.Symbol, ex.Quantity, ex.Side); err != nil {
			r.logger.Error().Err(err).Str("symbol", ex.Symbol).Msg("Failed to close unmanaged position")
			r.alerts.SendCritical(ctx, "unmanaged close failed",
				fmt.Sprintf("could not close unmanaged %s %s: %v", ex.Symbol, ex.Side, err),
				map[string]interface{}{"symbol": ex.Symbol})
			continue
		}

		r.alerts.SendCritical(ctx, "unmanaged position closed",
			fmt.Sprintf("closed unmanaged %s %s qty %.8f", ex.Symbol, ex.Side, ex.Quantity),
			map[string]interface{}{"symbol": ex.Symbol, "quantity": ex.Quantity})
	}

	return nil
}
