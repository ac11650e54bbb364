// SPDX-License-Identifier: Apache-2.0

package drift_test

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemalane/schemalane/pkg/drift"
	"github.com/schemalane/schemalane/pkg/history"
	"github.com/schemalane/schemalane/pkg/migration"
)

func discovered(versionText, script string, checksum int32) migration.Discovered {
	v, err := migration.ParseVersion(versionText)
	if err != nil {
		panic(err)
	}
	return migration.Discovered{
		Version:            v,
		VersionText:        versionText,
		DescriptionDisplay: "some migration",
		Script:             script,
		Checksum:           checksum,
		Kind:               migration.KindSQL,
	}
}

func successRow(rank int32, script string, checksum int32) history.Row {
	return history.Row{
		InstalledRank: rank,
		Version:       sql.NullString{String: "1", Valid: true},
		Description:   "some migration",
		Type:          "SQL",
		Script:        script,
		Checksum:      sql.NullInt32{Int32: checksum, Valid: true},
		Success:       true,
	}
}

func TestCheckBlockingPassesWhenInSync(t *testing.T) {
	t.Parallel()

	migrations := []migration.Discovered{discovered("1", "V1__a.sql", 10)}
	rows := []history.Row{successRow(1, "V1__a.sql", 10)}

	assert.NoError(t, drift.CheckBlocking(migrations, rows))
}

func TestCheckBlockingFailsOnFailedHistory(t *testing.T) {
	t.Parallel()

	migrations := []migration.Discovered{discovered("1", "V1__a.sql", 10)}
	row := successRow(1, "V1__a.sql", 10)
	row.Success = false
	rows := []history.Row{row}

	err := drift.CheckBlocking(migrations, rows)
	require.Error(t, err)

	var failedErr drift.FailedHistoryError
	require.ErrorAs(t, err, &failedErr)
	assert.Equal(t, []string{"V1__a.sql"}, failedErr.Scripts)
}

func TestCheckBlockingFailsOnMissingAndChecksumMismatch(t *testing.T) {
	t.Parallel()

	migrations := []migration.Discovered{discovered("2", "V2__b.sql", 99)}
	rows := []history.Row{
		successRow(1, "V1__a.sql", 10),  // missing: not on disk anymore
		successRow(2, "V2__b.sql", 100), // checksum mismatch
	}

	err := drift.CheckBlocking(migrations, rows)
	require.Error(t, err)

	var driftErr drift.Error
	require.ErrorAs(t, err, &driftErr)
	assert.Equal(t, []string{"V1__a.sql"}, driftErr.Missing)
	assert.Equal(t, []string{"V2__b.sql"}, driftErr.ChecksumMismatch)
}

func TestIsAppliedSuccessOnlyWhenChecksumMatches(t *testing.T) {
	t.Parallel()

	m := discovered("1", "V1__a.sql", 10)
	assert.True(t, drift.IsAppliedSuccess(m, []history.Row{successRow(1, "V1__a.sql", 10)}))
	assert.False(t, drift.IsAppliedSuccess(m, []history.Row{successRow(1, "V1__a.sql", 11)}))
	assert.False(t, drift.IsAppliedSuccess(m, nil))
}

func TestBuildStatusReportCoversAllStates(t *testing.T) {
	t.Parallel()

	migrations := []migration.Discovered{
		discovered("1", "V1__a.sql", 10),  // success
		discovered("2", "V2__b.sql", 20),  // pending
		discovered("3", "V3__c.sql", 999), // checksum mismatch
		discovered("4", "V4__d.sql", 40),  // failed
	}

	failedRow := successRow(4, "V4__d.sql", 40)
	failedRow.Success = false

	rows := []history.Row{
		successRow(1, "V1__a.sql", 10),
		successRow(3, "V3__c.sql", 30),
		failedRow,
		successRow(5, "V5__orphan.sql", 50), // missing (not discovered)
	}

	report := drift.BuildStatusReport("public", history.DefaultTable, migrations, rows)

	assert.Equal(t, 1, report.Summary.Success)
	assert.Equal(t, 1, report.Summary.Pending)
	assert.Equal(t, 1, report.Summary.Failed)
	assert.Equal(t, 1, report.Summary.Missing)
	assert.Equal(t, 1, report.Summary.ChecksumMismatch)
	assert.Len(t, report.Migrations, 5)
}

func TestFormatStatusTableRenders(t *testing.T) {
	t.Parallel()

	report := drift.BuildStatusReport("public", history.DefaultTable,
		[]migration.Discovered{discovered("1", "V1__a.sql", 10)},
		[]history.Row{successRow(1, "V1__a.sql", 10)})

	out := drift.FormatStatusTable(report)
	assert.Contains(t, out, "schema=public")
	assert.Contains(t, out, "V1__a.sql")
	assert.Contains(t, out, "Success")
}
