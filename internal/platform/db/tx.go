package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TxConfig tunes a unit of work.
type TxConfig struct {
	IsoLevel pgx.TxIsoLevel
	// LockTimeout bounds row lock waits; zero keeps the server default.
	LockTimeout time.Duration
}

// DefaultTxConfig runs read committed with row locks and a bounded lock wait.
var DefaultTxConfig = TxConfig{IsoLevel: pgx.ReadCommitted, LockTimeout: 5 * time.Second}

// WithTx executes a function within a transaction. The transaction is rolled
// back when fn returns an error.
func WithTx(ctx context.Context, pool *pgxpool.Pool, cfg TxConfig, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: cfg.IsoLevel})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if cfg.LockTimeout > 0 {
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", cfg.LockTimeout.Milliseconds())); err != nil {
			return fmt.Errorf("platform/db: lock timeout: %w", err)
		}
	}

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}
