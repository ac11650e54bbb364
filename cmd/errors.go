// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"errors"

	"github.com/schemalane/schemalane/pkg/drift"
	"github.com/schemalane/schemalane/pkg/engine"
	"github.com/schemalane/schemalane/pkg/migration"
)

// ExitCode maps an error returned by the engine to the process exit code
// the CLI should terminate with.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	var validationErr migration.ValidationError
	var dirErr migration.DirectoryNotFoundError
	var dupVersionErr migration.DuplicateVersionError
	var dupScriptErr migration.DuplicateScriptError
	var missingExecutorErr migration.MissingExecutorError
	var driftErr drift.Error
	var failedHistoryErr drift.FailedHistoryError
	var pendingErr engine.PendingMigrationsError

	switch {
	case errors.As(err, &validationErr),
		errors.As(err, &dirErr),
		errors.As(err, &dupVersionErr),
		errors.As(err, &dupScriptErr),
		errors.As(err, &missingExecutorErr):
		return 2
	case errors.As(err, &driftErr):
		return 3
	case errors.As(err, &failedHistoryErr):
		return 4
	case errors.As(err, &pendingErr):
		return 5
	case errors.Is(err, engine.ErrFreshRequiresYes):
		return 6
	default:
		return 1
	}
}
