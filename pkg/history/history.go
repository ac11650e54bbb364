// SPDX-License-Identifier: Apache-2.0

// Package history manages the Flyway-compatible schema history table:
// ensuring it exists, loading its rows, and inserting new ones under the
// caller-held advisory lock.
package history

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// DefaultTable is the history table name used when the caller does not
// configure one, matching Flyway's own default.
const DefaultTable = "flyway_schema_history"

// Row is one record of one migration-apply attempt.
type Row struct {
	InstalledRank int32
	Version       sql.NullString
	Description   string
	Type          string
	Script        string
	Checksum      sql.NullInt32
	InstalledBy   string
	InstalledOn   string
	ExecutionTime int32
	Success       bool
}

// Store reads and writes the history table identified by Schema/Table.
type Store struct {
	DB     DB
	Schema string
	Table  string
}

// DB is the subset of database access the store needs.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New returns a Store bound to the given schema and table.
func New(db DB, schema, table string) *Store {
	return &Store{DB: db, Schema: schema, Table: table}
}

func (s *Store) qualifiedTable() string {
	return fmt.Sprintf("%s.%s", pq.QuoteIdentifier(s.Schema), pq.QuoteIdentifier(s.Table))
}

// Ensure creates the history table and its two secondary indices if they do
// not already exist. The DDL is idempotent and safe to call on every run.
func (s *Store) Ensure(ctx context.Context) error {
	table := s.qualifiedTable()
	pk := pq.QuoteIdentifier(s.Table + "_pk")
	successIdx := pq.QuoteIdentifier(s.Table + "_s_idx")
	versionIdx := pq.QuoteIdentifier(s.Table + "_v_idx")

	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	"installed_rank" INTEGER NOT NULL,
	"version" VARCHAR(50),
	"description" VARCHAR(200) NOT NULL,
	"type" VARCHAR(20) NOT NULL,
	"script" VARCHAR(1000) NOT NULL,
	"checksum" INTEGER,
	"installed_by" VARCHAR(100) NOT NULL,
	"installed_on" TIMESTAMPTZ NOT NULL DEFAULT now(),
	"execution_time" INTEGER NOT NULL,
	"success" BOOLEAN NOT NULL,
	CONSTRAINT %[2]s PRIMARY KEY ("installed_rank")
);
CREATE INDEX IF NOT EXISTS %[3]s ON %[1]s ("success");
CREATE INDEX IF NOT EXISTS %[4]s ON %[1]s ("version");`,
		table, pk, successIdx, versionIdx)

	_, err := s.DB.ExecContext(ctx, ddl)
	return err
}

// Exists reports whether the history table is already present.
func (s *Store) Exists(ctx context.Context) (bool, error) {
	regclass := fmt.Sprintf("%s.%s", s.Schema, s.Table)

	var exists bool
	err := s.DB.QueryRowContext(ctx, "SELECT to_regclass($1) IS NOT NULL", regclass).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// LoadAll returns every history row ordered by installed_rank ascending.
func (s *Store) LoadAll(ctx context.Context) ([]Row, error) {
	query := fmt.Sprintf(
		`SELECT "installed_rank", "version", "description", "type", "script", "checksum", `+
			`"installed_by", "installed_on"::text, "execution_time", "success" FROM %s ORDER BY "installed_rank" ASC`,
		s.qualifiedTable())

	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.InstalledRank, &r.Version, &r.Description, &r.Type, &r.Script,
			&r.Checksum, &r.InstalledBy, &r.InstalledOn, &r.ExecutionTime, &r.Success); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// ResolveInstalledBy returns override if non-empty, otherwise the database's
// current_user.
func (s *Store) ResolveInstalledBy(ctx context.Context, override string) (string, error) {
	if override != "" {
		return override, nil
	}

	var currentUser string
	if err := s.DB.QueryRowContext(ctx, "SELECT current_user").Scan(&currentUser); err != nil {
		return "", err
	}
	return currentUser, nil
}

// NextInstalledRank returns COALESCE(MAX(installed_rank), 0) + 1. Must only
// be called while the caller holds the advisory lock: the read and the
// subsequent Insert are not a single atomic statement.
func (s *Store) NextInstalledRank(ctx context.Context) (int32, error) {
	query := fmt.Sprintf(`SELECT COALESCE(MAX("installed_rank"), 0) + 1 FROM %s`, s.qualifiedTable())

	var next int32
	if err := s.DB.QueryRowContext(ctx, query).Scan(&next); err != nil {
		return 0, err
	}
	return next, nil
}

// InsertParams describes one row to append to the history table. InstalledOn
// is left to the column's server-side default.
type InsertParams struct {
	Version       string
	Description   string
	Type          string
	Script        string
	Checksum      sql.NullInt32
	InstalledBy   string
	ExecutionTime int32
	Success       bool
}

// Insert assigns the next installed_rank and appends one row, returning the
// assigned rank.
func (s *Store) Insert(ctx context.Context, p InsertParams) (int32, error) {
	rank, err := s.NextInstalledRank(ctx)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf(
		`INSERT INTO %s ("installed_rank", "version", "description", "type", "script", `+
			`"checksum", "installed_by", "execution_time", "success") VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		s.qualifiedTable())

	_, err = s.DB.ExecContext(ctx, query,
		rank, p.Version, p.Description, p.Type, p.Script, p.Checksum, p.InstalledBy, p.ExecutionTime, p.Success)
	if err != nil {
		return 0, err
	}
	return rank, nil
}

// DropAllTables drops every table in schema, in lexical name order, via
// DROP TABLE ... CASCADE. It does not drop views, sequences, functions, or
// custom types, so a "fresh" schema may still carry those over.
func DropAllTables(ctx context.Context, db DB, schema string) error {
	rows, err := db.QueryContext(ctx,
		"SELECT tablename FROM pg_catalog.pg_tables WHERE schemaname = $1 ORDER BY tablename", schema)
	if err != nil {
		return err
	}

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return err
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	for _, name := range tables {
		stmt := fmt.Sprintf("DROP TABLE IF EXISTS %s.%s CASCADE", pq.QuoteIdentifier(schema), pq.QuoteIdentifier(name))
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
