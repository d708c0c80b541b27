package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Isolation presets used by the repositories.
var (
	// Snapshot gives multi-statement writes one consistent view (ledger postings, counts).
	Snapshot = pgx.TxOptions{IsoLevel: pgx.RepeatableRead}
	// Locking is for transactions that take an advisory lock first; reads after
	// the lock must see rows committed while waiting for it.
	Locking = pgx.TxOptions{IsoLevel: pgx.ReadCommitted}
)

// Beginner is satisfied by *pgxpool.Pool.
type Beginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// WithTx runs fn inside a transaction begun with opts. fn's error, or a panic,
// rolls the transaction back.
func WithTx(ctx context.Context, b Beginner, opts pgx.TxOptions, fn func(pgx.Tx) error) error {
	tx, err := b.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}
	return nil
}

// AdvisoryXactLock blocks until the transaction-scoped advisory lock for key is held.
func AdvisoryXactLock(ctx context.Context, tx pgx.Tx, key int64) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, key)
	return err
}
