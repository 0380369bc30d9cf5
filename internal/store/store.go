// Package store persists trade history, scoring results, and daily
// summaries to PostgreSQL. The store is optional: a nil *Store is a
// functioning no-op so the engine runs without a database.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/coinforge/coinforge/internal/config"
)

// PoolInterface is the subset of pgxpool.Pool the store uses; pgxmock
// satisfies it in tests.
type PoolInterface interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Store wraps the PostgreSQL connection pool.
type Store struct {
	pool   PoolInterface
	closer func()
	logger zerolog.Logger
}

// New creates a store from the database configuration and verifies
// connectivity.
func New(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.PoolSize)
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info().Str("database", cfg.Database).Msg("Database connection pool created")

	return &Store{
		pool:   pool,
		closer: pool.Close,
		logger: logger,
	}, nil
}

// NewWithPool creates a store over an existing pool, used in tests.
func NewWithPool(pool PoolInterface, logger zerolog.Logger) *Store {
	return &Store{pool: pool, logger: logger}
}

// Close releases the connection pool.
func (s *Store) Close() {
	if s != nil && s.closer != nil {
		s.closer()
	}
}

func (s *Store) enabled() bool {
	return s != nil && s.pool != nil
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if !s.enabled() {
		return nil
	}
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	s.logger.Info().Msg("Database schema up to date")
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS trades (
		id BIGSERIAL PRIMARY KEY,
		trade_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		position_side TEXT NOT NULL,
		price DOUBLE PRECISION NOT NULL,
		quantity DOUBLE PRECISION NOT NULL,
		notional DOUBLE PRECISION NOT NULL,
		fee DOUBLE PRECISION NOT NULL,
		mode TEXT NOT NULL,
		executed_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_symbol_time ON trades (symbol, executed_at)`,
	`CREATE TABLE IF NOT EXISTS failed_orders (
		id BIGSERIAL PRIMARY KEY,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		notional DOUBLE PRECISION NOT NULL,
		quantity DOUBLE PRECISION NOT NULL,
		reason TEXT NOT NULL,
		failed_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS scoring_results (
		id BIGSERIAL PRIMARY KEY,
		symbol TEXT NOT NULL,
		technical_score DOUBLE PRECISION NOT NULL,
		momentum_score DOUBLE PRECISION NOT NULL,
		volatility_score DOUBLE PRECISION NOT NULL,
		volume_score DOUBLE PRECISION NOT NULL,
		sentiment_score DOUBLE PRECISION NOT NULL,
		total_score DOUBLE PRECISION NOT NULL,
		signal TEXT NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		rationale TEXT NOT NULL,
		details JSONB,
		scored_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_scoring_symbol_time ON scoring_results (symbol, scored_at)`,
	`CREATE TABLE IF NOT EXISTS daily_summaries (
		id BIGSERIAL PRIMARY KEY,
		trading_day DATE NOT NULL UNIQUE,
		realized_pnl DOUBLE PRECISION NOT NULL,
		trades INT NOT NULL,
		wins INT NOT NULL,
		losses INT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}
