// SPDX-License-Identifier: Apache-2.0

package engine

import "github.com/schemalane/schemalane/pkg/migration"

type options struct {
	schema         string
	historyTable   string
	migrationsDir  string
	installedBy    string
	advisoryLockID int64
	registry       *migration.Registry
	logger         migration.Logger
}

// Option configures an Engine constructed by New.
type Option func(*options)

// WithSchema sets the PostgreSQL schema the engine operates against.
// Defaults to "public".
func WithSchema(schema string) Option {
	return func(o *options) { o.schema = schema }
}

// WithHistoryTable sets the name of the schema history table. Defaults to
// "flyway_schema_history".
func WithHistoryTable(table string) Option {
	return func(o *options) { o.historyTable = table }
}

// WithInstalledBy overrides the "installed_by" column value. If unset, the
// engine falls back to the database's current_user.
func WithInstalledBy(installedBy string) Option {
	return func(o *options) { o.installedBy = installedBy }
}

// WithAdvisoryLockID overrides the 64-bit advisory lock id. Defaults to
// lock.DefaultID.
func WithAdvisoryLockID(id int64) Option {
	return func(o *options) { o.advisoryLockID = id }
}

// WithRegistry supplies the code-migration executor registry. If unset, an
// empty registry is used, meaning any CODE migration on disk fails
// discovery validation.
func WithRegistry(registry *migration.Registry) Option {
	return func(o *options) { o.registry = registry }
}

// WithLogger overrides the engine's logger. Defaults to a pterm-backed
// logger; pass migration.NewNoopLogger() to silence it, as tests do.
func WithLogger(logger migration.Logger) Option {
	return func(o *options) { o.logger = logger }
}
