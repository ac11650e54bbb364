// SPDX-License-Identifier: Apache-2.0

package migration

import "github.com/pterm/pterm"

// Logger is responsible for logging the engine's progress through a run.
type Logger interface {
	LogDiscovered(count int)
	LogLockAcquired(runID string)
	LogLockReleased(runID string)
	LogApplyStart(m Discovered)
	LogApplyComplete(m Discovered, executionTimeMs int32)
	LogApplyFailed(m Discovered, err error)
	LogSkipped(m Discovered)

	Info(msg string, args ...any)
}

type ptermLogger struct {
	logger pterm.Logger
}

type noopLogger struct{}

// NewLogger returns a Logger backed by pterm's default structured logger.
func NewLogger() Logger {
	return &ptermLogger{logger: pterm.DefaultLogger}
}

// NewNoopLogger returns a Logger that discards everything, for tests.
func NewNoopLogger() Logger {
	return &noopLogger{}
}

func (l *ptermLogger) LogDiscovered(count int) {
	l.logger.Info("discovered migrations", l.logger.Args("count", count))
}

func (l *ptermLogger) LogLockAcquired(runID string) {
	l.logger.Info("acquired advisory lock", l.logger.Args("run_id", runID))
}

func (l *ptermLogger) LogLockReleased(runID string) {
	l.logger.Info("released advisory lock", l.logger.Args("run_id", runID))
}

func (l *ptermLogger) LogApplyStart(m Discovered) {
	l.logger.Info("applying migration", l.logger.Args(
		"script", m.Script,
		"version", m.VersionText,
		"type", m.Kind.HistoryType(),
	))
}

func (l *ptermLogger) LogApplyComplete(m Discovered, executionTimeMs int32) {
	l.logger.Info("applied migration", l.logger.Args(
		"script", m.Script,
		"execution_time_ms", executionTimeMs,
	))
}

func (l *ptermLogger) LogApplyFailed(m Discovered, err error) {
	l.logger.Error("migration failed", l.logger.Args(
		"script", m.Script,
		"error", err.Error(),
	))
}

func (l *ptermLogger) LogSkipped(m Discovered) {
	l.logger.Debug("skipping already-applied migration", l.logger.Args("script", m.Script))
}

func (l *ptermLogger) Info(msg string, args ...any) {
	l.logger.Info(msg, l.logger.Args(args...))
}

func (noopLogger) LogDiscovered(int)                  {}
func (noopLogger) LogLockAcquired(string)             {}
func (noopLogger) LogLockReleased(string)             {}
func (noopLogger) LogApplyStart(Discovered)           {}
func (noopLogger) LogApplyComplete(Discovered, int32) {}
func (noopLogger) LogApplyFailed(Discovered, error)   {}
func (noopLogger) LogSkipped(Discovered)              {}
func (noopLogger) Info(string, ...any)                {}
