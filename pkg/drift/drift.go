// SPDX-License-Identifier: Apache-2.0

// Package drift compares discovered migrations against recorded history,
// producing either a blocking error (for up) or a full status report (for
// status).
package drift

import (
	"fmt"
	"sort"
	"strings"

	"github.com/schemalane/schemalane/pkg/history"
	"github.com/schemalane/schemalane/pkg/migration"
)

// State is the derived lifecycle state of one status entry.
type State string

const (
	Success          State = "Success"
	Pending          State = "Pending"
	Failed           State = "Failed"
	Missing          State = "Missing"
	ChecksumMismatch State = "ChecksumMismatch"
)

// StatusEntry pairs one discovered migration, or one orphan history row,
// with its derived state.
type StatusEntry struct {
	Version          string
	HasVersion       bool
	Description      string
	Type             string
	Script           string
	Checksum         int32
	HasChecksum      bool
	InstalledRank    int32
	HasInstalledRank bool
	InstalledOn      string
	ExecutionTimeMs  int32
	HasExecutionTime bool
	State            State
}

// StatusSummary counts entries by state.
type StatusSummary struct {
	Success          int
	Pending          int
	Failed           int
	Missing          int
	ChecksumMismatch int
}

// StatusReport is the full result of a status check.
type StatusReport struct {
	Schema       string
	HistoryTable string
	Migrations   []StatusEntry
	Summary      StatusSummary
}

// Error reports drift blocking an up: missing scripts (present in history,
// absent on disk) and/or checksum mismatches (present in both, differing
// content).
type Error struct {
	Missing          []string
	ChecksumMismatch []string
}

func (e Error) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing: %s", strings.Join(e.Missing, ", ")))
	}
	if len(e.ChecksumMismatch) > 0 {
		parts = append(parts, fmt.Sprintf("checksum mismatch: %s", strings.Join(e.ChecksumMismatch, ", ")))
	}
	return "drift detected: " + strings.Join(parts, "; ")
}

// FailedHistoryError reports that the latest attempt for one or more
// scripts did not succeed, blocking further up runs until resolved.
type FailedHistoryError struct {
	Scripts []string
}

func (e FailedHistoryError) Error() string {
	return fmt.Sprintf("failed migration(s) found in history: %s", strings.Join(e.Scripts, ", "))
}

// latestByScript returns, for each script, the history row with the
// greatest installed_rank.
func latestByScript(rows []history.Row) map[string]history.Row {
	latest := make(map[string]history.Row, len(rows))
	for _, row := range rows {
		current, ok := latest[row.Script]
		if !ok || row.InstalledRank > current.InstalledRank {
			latest[row.Script] = row
		}
	}
	return latest
}

// CheckBlocking runs the checks that must pass before up may proceed:
// no failed latest attempt, and no missing/checksum-mismatched scripts.
func CheckBlocking(migrations []migration.Discovered, rows []history.Row) error {
	latest := latestByScript(rows)
	byScript := make(map[string]migration.Discovered, len(migrations))
	for _, m := range migrations {
		byScript[m.Script] = m
	}

	var failed, missing, checksumMismatch []string

	for _, row := range latest {
		if !row.Success {
			failed = append(failed, row.Script)
		}
		if row.Success {
			if _, ok := byScript[row.Script]; !ok {
				missing = append(missing, row.Script)
			}
		}
	}

	for _, m := range migrations {
		row, ok := latest[m.Script]
		if ok && row.Success && row.Checksum.Valid && row.Checksum.Int32 != m.Checksum {
			checksumMismatch = append(checksumMismatch, m.Script)
		}
	}

	if len(failed) > 0 {
		sort.Strings(failed)
		return FailedHistoryError{Scripts: failed}
	}

	if len(missing) > 0 || len(checksumMismatch) > 0 {
		sort.Strings(missing)
		sort.Strings(checksumMismatch)
		return Error{Missing: missing, ChecksumMismatch: checksumMismatch}
	}

	return nil
}

// IsAppliedSuccess reports whether m's latest history attempt succeeded
// with a matching checksum, meaning up should skip it.
func IsAppliedSuccess(m migration.Discovered, rows []history.Row) bool {
	row, ok := latestByScript(rows)[m.Script]
	return ok && row.Success && row.Checksum.Valid && row.Checksum.Int32 == m.Checksum
}

// BuildStatusReport folds every discovered migration and every orphan
// successful history row into a StatusReport, never failing on drift.
func BuildStatusReport(schema, historyTable string, migrations []migration.Discovered, rows []history.Row) StatusReport {
	latest := latestByScript(rows)
	byScript := make(map[string]migration.Discovered, len(migrations))
	for _, m := range migrations {
		byScript[m.Script] = m
	}

	var entries []StatusEntry

	for _, m := range migrations {
		row, ok := latest[m.Script]
		switch {
		case ok && !row.Success:
			entries = append(entries, entryFromRow(row, Failed))
		case ok && row.Checksum.Valid && row.Checksum.Int32 != m.Checksum:
			entries = append(entries, entryFromMigrationAndRow(m, row, ChecksumMismatch))
		case ok:
			entries = append(entries, entryFromMigrationAndRow(m, row, Success))
		default:
			entries = append(entries, entryFromMigration(m, Pending))
		}
	}

	for _, row := range latest {
		if row.Success {
			if _, ok := byScript[row.Script]; !ok {
				entries = append(entries, entryFromRow(row, Missing))
			}
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		av, aOk := parseVersion(a)
		bv, bOk := parseVersion(b)
		switch {
		case aOk && bOk:
			if c := av.Compare(bv); c != 0 {
				return c < 0
			}
		case aOk != bOk:
			// entries with no parsed version sort first
			return !aOk
		}
		if a.Script != b.Script {
			return a.Script < b.Script
		}
		return a.InstalledRank < b.InstalledRank
	})

	summary := StatusSummary{}
	for _, e := range entries {
		switch e.State {
		case Success:
			summary.Success++
		case Pending:
			summary.Pending++
		case Failed:
			summary.Failed++
		case Missing:
			summary.Missing++
		case ChecksumMismatch:
			summary.ChecksumMismatch++
		}
	}

	return StatusReport{
		Schema:       schema,
		HistoryTable: historyTable,
		Migrations:   entries,
		Summary:      summary,
	}
}

func parseVersion(e StatusEntry) (migration.Version, bool) {
	if !e.HasVersion {
		return migration.Version{}, false
	}
	v, err := migration.ParseVersion(e.Version)
	if err != nil {
		return migration.Version{}, false
	}
	return v, true
}

func entryFromMigration(m migration.Discovered, state State) StatusEntry {
	return StatusEntry{
		Version:     m.VersionText,
		HasVersion:  true,
		Description: m.DescriptionDisplay,
		Type:        m.Kind.HistoryType(),
		Script:      m.Script,
		Checksum:    m.Checksum,
		HasChecksum: true,
		State:       state,
	}
}

func entryFromMigrationAndRow(m migration.Discovered, row history.Row, state State) StatusEntry {
	e := entryFromMigration(m, state)
	e.InstalledRank = row.InstalledRank
	e.HasInstalledRank = true
	e.InstalledOn = row.InstalledOn
	e.ExecutionTimeMs = row.ExecutionTime
	e.HasExecutionTime = true
	return e
}

func entryFromRow(row history.Row, state State) StatusEntry {
	return StatusEntry{
		Version:          row.Version.String,
		HasVersion:       row.Version.Valid,
		Description:      row.Description,
		Type:             row.Type,
		Script:           row.Script,
		Checksum:         row.Checksum.Int32,
		HasChecksum:      row.Checksum.Valid,
		InstalledRank:    row.InstalledRank,
		HasInstalledRank: true,
		InstalledOn:      row.InstalledOn,
		ExecutionTimeMs:  row.ExecutionTime,
		HasExecutionTime: true,
		State:            state,
	}
}

// FormatStatusTable renders report as a plain-text table, the way the
// original schemalane's format_status_table does, so any host can print a
// status report without re-deriving the layout.
func FormatStatusTable(report StatusReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "schema=%s, history_table=%s\n", report.Schema, report.HistoryTable)
	b.WriteString("version | description | type | script | state | rank | execution_time_ms\n")
	b.WriteString("--------|-------------|------|--------|-------|------|------------------\n")

	for _, m := range report.Migrations {
		version := "-"
		if m.HasVersion {
			version = m.Version
		}
		rank := "-"
		if m.HasInstalledRank {
			rank = fmt.Sprintf("%d", m.InstalledRank)
		}
		execTime := "-"
		if m.HasExecutionTime {
			execTime = fmt.Sprintf("%d", m.ExecutionTimeMs)
		}
		fmt.Fprintf(&b, "%s | %s | %s | %s | %s | %s | %s\n",
			version, m.Description, m.Type, m.Script, m.State, rank, execTime)
	}

	s := report.Summary
	fmt.Fprintf(&b, "summary: success=%d, pending=%d, failed=%d, missing=%d, checksum_mismatch=%d\n",
		s.Success, s.Pending, s.Failed, s.Missing, s.ChecksumMismatch)

	return b.String()
}
