// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"database/sql"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/schemalane/schemalane/cmd/flags"
	"github.com/schemalane/schemalane/pkg/engine"
)

// Version is the schemalane version, overridden at build time via ldflags.
var Version = "development"

func init() {
	viper.SetEnvPrefix("SCHEMALANE")
	viper.AutomaticEnv()

	PgConnectionFlags(rootCmd)
}

// PgConnectionFlags is exported so tests and alternate entrypoints can
// register the same persistent flags against a fresh *cobra.Command.
func PgConnectionFlags(cmd *cobra.Command) {
	flags.PgConnectionFlags(cmd)
}

var rootCmd = &cobra.Command{
	Use:           "schemalane",
	Short:         "Flyway-compatible PostgreSQL schema migration engine",
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       Version,
}

// NewEngine constructs an Engine from the bound CLI/environment
// configuration, connecting to Postgres with the lib/pq driver.
func NewEngine(ctx context.Context) (*engine.Engine, error) {
	conn, err := sql.Open("postgres", flags.PostgresURL())
	if err != nil {
		return nil, err
	}

	opts := []engine.Option{
		engine.WithSchema(flags.Schema()),
		engine.WithHistoryTable(flags.HistoryTable()),
		engine.WithInstalledBy(flags.InstalledBy()),
		engine.WithAdvisoryLockID(flags.AdvisoryLockID()),
	}

	e, err := engine.New(ctx, conn, flags.MigrationsDir(), opts...)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return e, nil
}

// Execute runs the root command, registering every subcommand.
func Execute() error {
	rootCmd.AddCommand(upCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(freshCmd())

	return rootCmd.Execute()
}
