package locking

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wolfman30/clinic-scheduling/pkg/logging"
)

type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresLocker takes transaction-scoped advisory locks. The holder keeps
// one transaction open until release; waiters poll with
// pg_try_advisory_xact_lock and return their connection between attempts.
// Give it a pool of its own so holders never compete with store queries.
type PostgresLocker struct {
	db     txBeginner
	retry  time.Duration
	logger *logging.Logger
}

// NewPostgresLocker creates a locker on pool, retrying a busy key every
// retry interval.
func NewPostgresLocker(pool *pgxpool.Pool, retry time.Duration, logger *logging.Logger) *PostgresLocker {
	if pool == nil {
		panic("locking: pgx pool required")
	}
	return newPostgresLockerWithBeginner(pool, retry, logger)
}

func newPostgresLockerWithBeginner(db txBeginner, retry time.Duration, logger *logging.Logger) *PostgresLocker {
	if logger == nil {
		logger = logging.Default()
	}
	if retry <= 0 {
		retry = 25 * time.Millisecond
	}
	return &PostgresLocker{db: db, retry: retry, logger: logger}
}

func (l *PostgresLocker) Lock(ctx context.Context, key string) (func(), error) {
	for {
		tx, ok, err := l.try(ctx, key)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, err
		}
		if ok {
			return l.releaser(key, tx), nil
		}
		timer := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// try opens a transaction and attempts the lock once. The transaction is
// returned only when the lock was granted.
func (l *PostgresLocker) try(ctx context.Context, key string) (pgx.Tx, bool, error) {
	tx, err := l.db.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("locking: begin: %w", err)
	}
	var granted bool
	if err := tx.QueryRow(ctx, `SELECT pg_try_advisory_xact_lock(hashtextextended($1, 0))`, key).Scan(&granted); err != nil {
		_ = rollback(tx)
		return nil, false, fmt.Errorf("locking: advisory lock %s: %w", key, err)
	}
	if !granted {
		if err := rollback(tx); err != nil {
			return nil, false, fmt.Errorf("locking: advisory lock %s: %w", key, err)
		}
		return nil, false, nil
	}
	return tx, true, nil
}

func (l *PostgresLocker) releaser(key string, tx pgx.Tx) func() {
	released := false
	return func() {
		if released {
			return
		}
		released = true
		if err := rollback(tx); err != nil {
			l.logger.Warn("advisory lock release failed", "key", key, "error", err)
		}
	}
}

func rollback(tx pgx.Tx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return tx.Rollback(ctx)
}
