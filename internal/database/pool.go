package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/plantclient/internal/config"
)

// Connect creates a connection pool and verifies it with a ping.
func Connect(ctx context.Context, cfg config.DBConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(BuildConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// Schema creates the bar store tables.
const Schema = `
CREATE TABLE IF NOT EXISTS bars (
	symbol      TEXT        NOT NULL,
	exchange    TEXT        NOT NULL,
	bar_type    TEXT        NOT NULL,
	period      INTEGER     NOT NULL,
	end_time    TIMESTAMPTZ NOT NULL,
	open        NUMERIC     NOT NULL,
	high        NUMERIC     NOT NULL,
	low         NUMERIC     NOT NULL,
	close       NUMERIC     NOT NULL,
	volume      BIGINT      NOT NULL,
	bid_volume  BIGINT      NOT NULL DEFAULT 0,
	ask_volume  BIGINT      NOT NULL DEFAULT 0,
	num_trades  BIGINT      NOT NULL DEFAULT 0,
	received_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (symbol, exchange, bar_type, period, end_time)
)`

// Migrate applies Schema.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
