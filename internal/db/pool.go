package db

import (
	"context"
	"fmt"
	"time"

	"github.com/knowledgesnode/backend/internal/util"
	"github.com/knowledgesnode/backend/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

// Connect opens a pgx pool with the pgvector types registered on every
// connection. The first ping is retried with backoff (DB_CONNECT_TRIES,
// default 5) since Postgres may come up after the process does.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	attempt := 0
	err = util.RetryErrWithBackoff(ctx, util.GetEnvInt("DB_CONNECT_TRIES", 5), time.Second, func(ctx context.Context) error {
		attempt++
		err := pool.Ping(ctx)
		if err != nil {
			logger.Warn("[DB] Database not reachable yet", "attempt", attempt, "err", err)
		}
		return err
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}
