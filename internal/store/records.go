package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/coinforge/coinforge/internal/executor"
	"github.com/coinforge/coinforge/internal/scoring"
)

// InsertFill appends one executed trade to the history.
func (s *Store) InsertFill(ctx context.Context, fill *executor.Fill) error {
	if !s.enabled() {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO trades (trade_id, symbol, side, position_side, price, quantity, notional, fee, mode, executed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		fill.TradeID, fill.Symbol, string(fill.Side), string(fill.PositionSide),
		fill.Price, fill.Quantity, fill.Notional, fill.Fee, fill.Mode, fill.At,
	)
	if err != nil {
		return fmt.Errorf("failed to insert trade: %w", err)
	}
	return nil
}

// RecordFailedOrder appends one failed-order audit record.
func (s *Store) RecordFailedOrder(ctx context.Context, rec executor.FailedOrder) error {
	if !s.enabled() {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO failed_orders (symbol, side, notional, quantity, reason, failed_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.Symbol, rec.Side, rec.Notional, rec.Quantity, rec.Reason, rec.At,
	)
	if err != nil {
		return fmt.Errorf("failed to insert failed order: %w", err)
	}
	return nil
}

// InsertScoringResult appends one scoring result with its factor details.
func (s *Store) InsertScoringResult(ctx context.Context, result *scoring.Result) error {
	if !s.enabled() {
		return nil
	}
	details, err := json.Marshal(result.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal factor details: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO scoring_results (symbol, technical_score, momentum_score, volatility_score, volume_score,
		 sentiment_score, total_score, signal, confidence, rationale, details, scored_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		result.Symbol, result.Technical, result.Momentum, result.Volatility, result.Volume,
		result.Sentiment, result.Total, string(result.Signal), result.Confidence,
		result.Rationale, details, result.ScoredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert scoring result: %w", err)
	}
	return nil
}

// DailySummary is the post-trade feedback record for one trading day.
type DailySummary struct {
	Day         time.Time `json:"day"`
	RealizedPnl float64   `json:"realized_pnl"`
	Trades      int       `json:"trades"`
	Wins        int       `json:"wins"`
	Losses      int       `json:"losses"`
}

// UpsertDailySummary writes the day's summary, replacing an earlier write
// for the same day.
func (s *Store) UpsertDailySummary(ctx context.Context, summary DailySummary) error {
	if !s.enabled() {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO daily_summaries (trading_day, realized_pnl, trades, wins, losses)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (trading_day) DO UPDATE SET
		   realized_pnl = EXCLUDED.realized_pnl,
		   trades = EXCLUDED.trades,
		   wins = EXCLUDED.wins,
		   losses = EXCLUDED.losses`,
		summary.Day, summary.RealizedPnl, summary.Trades, summary.Wins, summary.Losses,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert daily summary: %w", err)
	}
	return nil
}

// RecentTrades returns the latest trades for a symbol, newest first.
func (s *Store) RecentTrades(ctx context.Context, symbol string, limit int) ([]executor.Fill, error) {
	if !s.enabled() {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT trade_id, symbol, side, position_side, price, quantity, notional, fee, mode, executed_at
		 FROM trades WHERE symbol = $1 ORDER BY executed_at DESC LIMIT $2`,
		symbol, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var fills []executor.Fill
	for rows.Next() {
		var f executor.Fill
		var side, posSide string
		if err := rows.Scan(&f.TradeID, &f.Symbol, &side, &posSide,
			&f.Price, &f.Quantity, &f.Notional, &f.Fee, &f.Mode, &f.At); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		f.Side = exchangeSide(side)
		f.PositionSide = exchangePositionSide(posSide)
		fills = append(fills, f)
	}
	return fills, rows.Err()
}
