// SPDX-License-Identifier: Apache-2.0

// Package db provides a retrying wrapper around *sql.DB for the engine's
// own queries (history reads/writes, DDL). It never wraps the advisory
// lock acquire/release call itself — pkg/lock blocks on pg_advisory_lock
// directly on its own dedicated connection.
package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"time"

	"github.com/cloudflare/backoff"
	"github.com/lib/pq"
)

const (
	lockNotAvailableErrorCode pq.ErrorCode = "55P03"
	tooManyConnectionsCode    pq.ErrorCode = "53300"
	serializationFailureCode  pq.ErrorCode = "40001"
	maxBackoffDuration                     = 1 * time.Minute
	backoffInterval                        = 100 * time.Millisecond
)

// DB is the subset of database access the engine needs.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	WithRetryableTransaction(ctx context.Context, opts *sql.TxOptions, f func(context.Context, *sql.Tx) error) error
	Conn(ctx context.Context) (*sql.Conn, error)
	Driver() driver.Driver
	Close() error
}

// RDB wraps a *sql.DB, retrying ExecContext/QueryContext on lock_timeout,
// too_many_connections and serialization_failure errors using an
// exponential backoff with jitter.
type RDB struct {
	DB *sql.DB
}

func (r *RDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	b := backoff.New(maxBackoffDuration, backoffInterval)
	for {
		res, err := r.DB.ExecContext(ctx, query, args...)
		if err == nil || !retryable(err) {
			return res, err
		}
		if err := sleepCtx(ctx, b.Duration()); err != nil {
			return nil, err
		}
	}
}

func (r *RDB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	b := backoff.New(maxBackoffDuration, backoffInterval)
	for {
		rows, err := r.DB.QueryContext(ctx, query, args...)
		if err == nil || !retryable(err) {
			return rows, err
		}
		if err := sleepCtx(ctx, b.Duration()); err != nil {
			return nil, err
		}
	}
}

// QueryRowContext does not retry: *sql.Row defers error reporting to Scan,
// by which point it is too late to transparently re-issue the query.
func (r *RDB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return r.DB.QueryRowContext(ctx, query, args...)
}

// BeginTx starts a transaction on the pool. The applier uses this
// directly, without retry, since retrying a transaction that may have had
// partial external side effects is not safe to do transparently.
func (r *RDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return r.DB.BeginTx(ctx, opts)
}

// WithRetryableTransaction runs f inside a transaction, rolling back and
// retrying the whole transaction if it fails with a retryable error. Safe
// to retry because the rollback discards any partial side effects before
// the next attempt begins.
func (r *RDB) WithRetryableTransaction(ctx context.Context, opts *sql.TxOptions, f func(context.Context, *sql.Tx) error) error {
	b := backoff.New(maxBackoffDuration, backoffInterval)
	for {
		tx, err := r.DB.BeginTx(ctx, opts)
		if err != nil {
			return err
		}

		err = f(ctx, tx)
		if err == nil {
			return tx.Commit()
		}

		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return rollbackErr
		}

		if !retryable(err) {
			return err
		}
		if err := sleepCtx(ctx, b.Duration()); err != nil {
			return err
		}
	}
}

// Conn checks out a dedicated connection from the pool, for pkg/lock to
// hold a session-scoped advisory lock on.
func (r *RDB) Conn(ctx context.Context) (*sql.Conn, error) {
	return r.DB.Conn(ctx)
}

func (r *RDB) Driver() driver.Driver {
	return r.DB.Driver()
}

func (r *RDB) Close() error {
	return r.DB.Close()
}

func retryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case lockNotAvailableErrorCode, tooManyConnectionsCode, serializationFailureCode:
		return true
	default:
		return false
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// ScanFirstValue scans the first column of the first row of rows into
// dest, assuming rows contains exactly one row with one column.
func ScanFirstValue[T any](rows *sql.Rows, dest *T) error {
	if rows.Next() {
		if err := rows.Scan(dest); err != nil {
			return err
		}
	}
	return rows.Err()
}
