package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// opTimeout bounds every store operation
const opTimeout = 5 * time.Second

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS analysis_history (
		id              TEXT PRIMARY KEY,
		user_id         BIGINT NOT NULL,
		symbol          TEXT NOT NULL,
		timeframe       TEXT NOT NULL,
		trading_style   TEXT NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL,
		expires_at      TIMESTAMPTZ NOT NULL,
		status          TEXT NOT NULL,
		market_snapshot JSONB NOT NULL,
		recommendation  JSONB NOT NULL,
		resolution      JSONB
	)`,
	`CREATE INDEX IF NOT EXISTS idx_analysis_history_user_symbol ON analysis_history (user_id, symbol)`,
	`CREATE INDEX IF NOT EXISTS idx_analysis_history_symbol_created ON analysis_history (symbol, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_analysis_history_expires ON analysis_history (expires_at)`,
	`CREATE INDEX IF NOT EXISTS idx_analysis_history_status ON analysis_history (status)`,
}

// Connect opens the pool and applies migrations.
func Connect(ctx context.Context, databaseURL string, logger zerolog.Logger) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MinConns = 1
	cfg.MaxConns = 10
	cfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	for i, stmt := range migrations {
		mctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		_, err := pool.Exec(mctx, stmt)
		cancel()
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("migration %d: %w", i, err)
		}
	}

	logger.Info().Str("component", "store").Msg("database ready")
	return pool, nil
}
