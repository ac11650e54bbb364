// SPDX-License-Identifier: Apache-2.0

// Package apply runs a single discovered migration against a database,
// honoring the transaction policy for its kind and timing the attempt.
package apply

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/schemalane/schemalane/pkg/migration"
)

// ExecutionError reports that a specific migration failed while applying.
type ExecutionError struct {
	Script string
	Source error
}

func (e ExecutionError) Error() string {
	return fmt.Sprintf("migration execution failed for %s: %v", e.Script, e.Source)
}

func (e ExecutionError) Unwrap() error {
	return e.Source
}

// DB is the subset of database access the applier needs.
type DB interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	Conn(ctx context.Context) (*sql.Conn, error)
}

// Result describes the outcome of one apply attempt.
type Result struct {
	ExecutionTimeMs int32
	Err             error
}

// Run applies m against db using registry to resolve code-migration
// executors, and returns the wall-clock duration of the attempt saturated
// to math.MaxInt32 milliseconds. The returned error, if any, is already an
// ExecutionError.
func Run(ctx context.Context, db DB, registry *migration.Registry, m migration.Discovered) Result {
	started := time.Now()

	var err error
	switch m.Kind {
	case migration.KindSQL:
		err = runSQL(ctx, db, m)
	case migration.KindCode:
		err = runCode(ctx, db, registry, m)
	default:
		err = fmt.Errorf("unknown migration kind for %s", m.Script)
	}

	elapsed := millis(time.Since(started))

	if err != nil {
		return Result{ExecutionTimeMs: elapsed, Err: ExecutionError{Script: m.Script, Source: err}}
	}
	return Result{ExecutionTimeMs: elapsed}
}

// runSQL reads the migration file and executes its full text as a single
// unprepared statement inside one transaction, so every ';'-separated
// statement in the file commits or rolls back together.
func runSQL(ctx context.Context, db DB, m migration.Discovered) error {
	content, err := os.ReadFile(m.Source)
	if err != nil {
		return fmt.Errorf("reading %s: %w", m.Source, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, string(content)); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// runCode looks up the registered executor for m and runs it per its
// transaction policy: InTransaction wraps the call in a transaction that
// commits on success and rolls back on error; NoTransaction hands the
// executor a plain connection, so any partial work it performs persists
// even if it later returns an error.
func runCode(ctx context.Context, db DB, registry *migration.Registry, m migration.Discovered) error {
	executor, ok := registry.Lookup(m.Script)
	if !ok {
		return migration.MissingExecutorError{Scripts: []string{m.Script}}
	}

	if executor.Mode == migration.InTransaction {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := executor.Run(ctx, tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	return executor.Run(ctx, conn)
}

func millis(d time.Duration) int32 {
	ms := d.Milliseconds()
	if ms > math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(ms)
}
