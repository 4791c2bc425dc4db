// Package db provides the connection abstraction shared by every domain
// store: a DBTX interface implemented by both the pool (reads) and a
// transaction (writes), plus the connection-class retry wrapper.
package db

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/thecontextcache/contextcache-sub001/pkg/apperr"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx, so a Queries-style store can
// run the same methods directly on the pool or inside a caller-managed
// transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var (
	_ DBTX = (*pgxpool.Pool)(nil)
	_ DBTX = (pgx.Tx)(nil)
)

// retryBackoff is the fixed 100ms/300ms schedule from §4.1.
var retryBackoff = []time.Duration{100 * time.Millisecond, 300 * time.Millisecond}

// WithRetry runs fn, retrying up to two times with 100ms/300ms backoff when
// the failure looks like a connection-class error (pgx connection-class
// SQLSTATE, or a plain network error). Non-connection errors are returned
// immediately. After the retry budget is exhausted, the error is wrapped as
// apperr.StorageUnavailable.
func WithRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !isConnectionClassError(err) || attempt >= len(retryBackoff) {
			break
		}
		select {
		case <-ctx.Done():
			return apperr.StorageUnavailable(ctx.Err())
		case <-time.After(retryBackoff[attempt]):
		}
	}
	if isConnectionClassError(err) {
		return apperr.StorageUnavailable(err)
	}
	return err
}

// WithTx runs fn inside a transaction on pool, committing on a nil return
// and rolling back otherwise. Handlers that span several stores (e.g.
// authorizing a project, reserving quota, inserting a memory, and appending
// its audit event) share one tx so the whole write is atomic.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return apperr.StorageUnavailable(fmt.Errorf("beginning transaction: %w", err))
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return apperr.StorageUnavailable(fmt.Errorf("committing transaction: %w", err))
	}
	return nil
}

// isConnectionClassError reports whether err looks like a transient
// connection-level failure (SQLSTATE class 08, "connection exception", or a
// network error) as opposed to a query/data error that retrying would not fix.
func isConnectionClassError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08"
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, pgx.ErrTxClosed) || errors.Is(err, context.DeadlineExceeded)
}
