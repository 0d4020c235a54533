package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ariefcatur/warung-orders/internal/logger"
	"github.com/jackc/pgx/v5/pgxpool"
)

const connectAttempts = 5

// Connect opens the pool and pings it, retrying with a linear backoff while
// the database is still starting.
func Connect(ctx context.Context, dsn string, maxConns int, log *logger.Logger) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if maxConns <= 0 {
		maxConns = 8
	}
	cfg.MaxConns = int32(maxConns)
	cfg.MinConns = 1
	cfg.MaxConnLifetime = time.Hour
	cfg.HealthCheckPeriod = 30 * time.Second

	for i := 1; ; i++ {
		pool, err := open(ctx, cfg)
		if err == nil {
			return pool, nil
		}
		if i == connectAttempts {
			return nil, fmt.Errorf("connect after %d attempts: %w", i, err)
		}
		wait := time.Duration(i) * 2 * time.Second
		log.Error(ctx, "db_connect_failed", "database not ready, retrying", err,
			slog.Int("attempt", i), slog.Duration("wait", wait))
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func open(ctx context.Context, cfg *pgxpool.Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
