// SPDX-License-Identifier: Apache-2.0

// Package engine orchestrates discovery, locking, history, drift analysis
// and applying into the three public operations: Up, Status, Fresh.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/schemalane/schemalane/pkg/apply"
	"github.com/schemalane/schemalane/pkg/db"
	"github.com/schemalane/schemalane/pkg/drift"
	"github.com/schemalane/schemalane/pkg/history"
	"github.com/schemalane/schemalane/pkg/lock"
	"github.com/schemalane/schemalane/pkg/migration"
)

// ErrUnsupportedBackend is returned when the supplied connection is not
// backed by PostgreSQL.
var ErrUnsupportedBackend = errors.New("only PostgreSQL is supported")

// ErrFreshRequiresYes is returned by Fresh when confirmed is false.
var ErrFreshRequiresYes = errors.New("fresh requires explicit confirmation")

// PendingMigrationsError reports that Status found n pending migrations
// when the caller asked to fail on any.
type PendingMigrationsError struct {
	Count int
}

func (e PendingMigrationsError) Error() string {
	return fmt.Sprintf("pending migrations found (%d)", e.Count)
}

// AppliedMigration describes one migration applied during Up or Fresh.
type AppliedMigration struct {
	Version         string
	Description     string
	Type            string
	Script          string
	ExecutionTimeMs int32
}

// RunReport is the result of Up or Fresh.
type RunReport struct {
	Applied []AppliedMigration
	Skipped int
}

// Engine is the migration orchestrator. Construct with New.
type Engine struct {
	conn           db.DB
	schema         string
	historyTable   string
	migrationsDir  string
	installedBy    string
	advisoryLockID int64
	registry       *migration.Registry
	logger         migration.Logger
	history        *history.Store
}

// New constructs an Engine bound to conn, which must be backed by a
// *sql.DB (conn.Driver() is checked to be the lib/pq driver).
func New(ctx context.Context, conn *sql.DB, migrationsDir string, opts ...Option) (*Engine, error) {
	o := &options{
		schema:         "public",
		historyTable:   history.DefaultTable,
		advisoryLockID: lock.DefaultID,
		registry:       migration.NewRegistry(),
		logger:         migration.NewLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}

	rdb := &db.RDB{DB: conn}
	if !isPostgres(rdb) {
		return nil, ErrUnsupportedBackend
	}

	return &Engine{
		conn:           rdb,
		schema:         o.schema,
		historyTable:   o.historyTable,
		migrationsDir:  migrationsDir,
		installedBy:    o.installedBy,
		advisoryLockID: o.advisoryLockID,
		registry:       o.registry,
		logger:         o.logger,
		history:        history.New(rdb, o.schema, o.historyTable),
	}, nil
}

func isPostgres(d db.DB) bool {
	_, ok := d.Driver().(*pq.Driver)
	return ok
}

// Up brings the database forward to the latest discovered version,
// holding the advisory lock for the duration.
func (e *Engine) Up(ctx context.Context) (RunReport, error) {
	migrations, err := migration.Discover(e.migrationsDir)
	if err != nil {
		return RunReport{}, err
	}
	if err := e.registry.EnsureRegistered(migrations); err != nil {
		return RunReport{}, err
	}
	e.logger.LogDiscovered(len(migrations))

	runID := uuid.NewString()
	return lock.WithLock(ctx, e.conn, e.advisoryLockID, func(ctx context.Context) (RunReport, error) {
		e.logger.LogLockAcquired(runID)
		defer e.logger.LogLockReleased(runID)

		if err := e.history.Ensure(ctx); err != nil {
			return RunReport{}, err
		}

		installedBy, err := e.history.ResolveInstalledBy(ctx, e.installedBy)
		if err != nil {
			return RunReport{}, err
		}

		rows, err := e.history.LoadAll(ctx)
		if err != nil {
			return RunReport{}, err
		}

		if err := drift.CheckBlocking(migrations, rows); err != nil {
			return RunReport{}, err
		}

		report := RunReport{}
		for _, m := range migrations {
			if drift.IsAppliedSuccess(m, rows) {
				e.logger.LogSkipped(m)
				report.Skipped++
				continue
			}

			row, err := e.applyAndRecord(ctx, m, installedBy)
			if err != nil {
				return RunReport{}, err
			}
			rows = append(rows, row)
			report.Applied = append(report.Applied, AppliedMigration{
				Version:         m.VersionText,
				Description:     m.DescriptionDisplay,
				Type:            m.Kind.HistoryType(),
				Script:          m.Script,
				ExecutionTimeMs: row.ExecutionTime,
			})
		}

		return report, nil
	})
}

// Status reports the state of every discovered migration and every orphan
// history row, without taking the advisory lock or mutating anything.
func (e *Engine) Status(ctx context.Context) (drift.StatusReport, error) {
	migrations, err := migration.Discover(e.migrationsDir)
	if err != nil {
		return drift.StatusReport{}, err
	}

	exists, err := e.history.Exists(ctx)
	if err != nil {
		return drift.StatusReport{}, err
	}

	var rows []history.Row
	if exists {
		rows, err = e.history.LoadAll(ctx)
		if err != nil {
			return drift.StatusReport{}, err
		}
	}

	return drift.BuildStatusReport(e.schema, e.historyTable, migrations, rows), nil
}

// FailOnPending returns a PendingMigrationsError if report has any pending
// migrations, letting a CI caller gate on an un-migrated database.
func FailOnPending(report drift.StatusReport) error {
	if report.Summary.Pending > 0 {
		return PendingMigrationsError{Count: report.Summary.Pending}
	}
	return nil
}

// Fresh drops every table in the configured schema, recreates the history
// table, and applies every discovered migration from scratch. confirmed
// must be true, as a guard against accidental destructive resets.
//
// Only tables are dropped (DROP TABLE ... CASCADE over pg_catalog.pg_tables):
// views, sequences, functions, and custom types in the schema are not
// dropped, except where CASCADE removes them as dependents of a dropped table.
func (e *Engine) Fresh(ctx context.Context, confirmed bool) (RunReport, error) {
	if !confirmed {
		return RunReport{}, ErrFreshRequiresYes
	}

	migrations, err := migration.Discover(e.migrationsDir)
	if err != nil {
		return RunReport{}, err
	}
	if err := e.registry.EnsureRegistered(migrations); err != nil {
		return RunReport{}, err
	}

	runID := uuid.NewString()
	return lock.WithLock(ctx, e.conn, e.advisoryLockID, func(ctx context.Context) (RunReport, error) {
		e.logger.LogLockAcquired(runID)
		defer e.logger.LogLockReleased(runID)

		if err := history.DropAllTables(ctx, e.conn, e.schema); err != nil {
			return RunReport{}, err
		}
		if err := e.history.Ensure(ctx); err != nil {
			return RunReport{}, err
		}

		installedBy, err := e.history.ResolveInstalledBy(ctx, e.installedBy)
		if err != nil {
			return RunReport{}, err
		}

		report := RunReport{}
		for _, m := range migrations {
			row, err := e.applyAndRecord(ctx, m, installedBy)
			if err != nil {
				return RunReport{}, err
			}
			report.Applied = append(report.Applied, AppliedMigration{
				Version:         m.VersionText,
				Description:     m.DescriptionDisplay,
				Type:            m.Kind.HistoryType(),
				Script:          m.Script,
				ExecutionTimeMs: row.ExecutionTime,
			})
		}

		return report, nil
	})
}

// applyAndRecord runs one migration, inserts the history row for the
// attempt regardless of outcome, and returns the row plus an error if the
// migration itself failed.
func (e *Engine) applyAndRecord(ctx context.Context, m migration.Discovered, installedBy string) (history.Row, error) {
	e.logger.LogApplyStart(m)

	result := apply.Run(ctx, e.conn, e.registry, m)
	success := result.Err == nil

	rank, insertErr := e.history.Insert(ctx, history.InsertParams{
		Version:       m.VersionText,
		Description:   m.DescriptionDisplay,
		Type:          m.Kind.HistoryType(),
		Script:        m.Script,
		Checksum:      sql.NullInt32{Int32: m.Checksum, Valid: true},
		InstalledBy:   installedBy,
		ExecutionTime: result.ExecutionTimeMs,
		Success:       success,
	})
	if insertErr != nil {
		return history.Row{}, insertErr
	}

	row := history.Row{
		InstalledRank: rank,
		Version:       sql.NullString{String: m.VersionText, Valid: true},
		Description:   m.DescriptionDisplay,
		Type:          m.Kind.HistoryType(),
		Script:        m.Script,
		Checksum:      sql.NullInt32{Int32: m.Checksum, Valid: true},
		InstalledBy:   installedBy,
		ExecutionTime: result.ExecutionTimeMs,
		Success:       success,
	}

	if result.Err != nil {
		e.logger.LogApplyFailed(m, result.Err)
		return row, result.Err
	}

	e.logger.LogApplyComplete(m, result.ExecutionTimeMs)
	return row, nil
}

// Close releases the underlying connection pool.
func (e *Engine) Close() error {
	return e.conn.Close()
}
