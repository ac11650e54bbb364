// SPDX-License-Identifier: Apache-2.0

package history_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemalane/schemalane/pkg/history"
	"github.com/schemalane/schemalane/pkg/testutils"
)

func TestMain(m *testing.M) {
	testutils.SharedTestMain(m)
}

func TestEnsureIsIdempotent(t *testing.T) {
	t.Parallel()

	testutils.WithConnectionToContainer(t, func(conn *sql.DB, _ string) {
		ctx := context.Background()
		store := history.New(conn, "public", history.DefaultTable)

		require.NoError(t, store.Ensure(ctx))
		require.NoError(t, store.Ensure(ctx))

		exists, err := store.Exists(ctx)
		require.NoError(t, err)
		assert.True(t, exists)
	})
}

func TestExistsFalseBeforeEnsure(t *testing.T) {
	t.Parallel()

	testutils.WithConnectionToContainer(t, func(conn *sql.DB, _ string) {
		ctx := context.Background()
		store := history.New(conn, "public", "never_created_history")

		exists, err := store.Exists(ctx)
		require.NoError(t, err)
		assert.False(t, exists)
	})
}

func TestInsertAssignsIncreasingRank(t *testing.T) {
	t.Parallel()

	testutils.WithConnectionToContainer(t, func(conn *sql.DB, _ string) {
		ctx := context.Background()
		store := history.New(conn, "public", history.DefaultTable)
		require.NoError(t, store.Ensure(ctx))

		rank1, err := store.Insert(ctx, history.InsertParams{
			Version: "1", Description: "create table", Type: "SQL", Script: "V1__create_table.sql",
			Checksum: sql.NullInt32{Int32: 123, Valid: true}, InstalledBy: "tester", ExecutionTime: 10, Success: true,
		})
		require.NoError(t, err)
		assert.Equal(t, int32(1), rank1)

		rank2, err := store.Insert(ctx, history.InsertParams{
			Version: "2", Description: "add index", Type: "SQL", Script: "V2__add_index.sql",
			Checksum: sql.NullInt32{Int32: 456, Valid: true}, InstalledBy: "tester", ExecutionTime: 5, Success: true,
		})
		require.NoError(t, err)
		assert.Equal(t, int32(2), rank2)

		rows, err := store.LoadAll(ctx)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "V1__create_table.sql", rows[0].Script)
		assert.Equal(t, "V2__add_index.sql", rows[1].Script)
	})
}

func TestResolveInstalledByPrefersOverride(t *testing.T) {
	t.Parallel()

	testutils.WithConnectionToContainer(t, func(conn *sql.DB, _ string) {
		ctx := context.Background()
		store := history.New(conn, "public", history.DefaultTable)

		installedBy, err := store.ResolveInstalledBy(ctx, "custom_operator")
		require.NoError(t, err)
		assert.Equal(t, "custom_operator", installedBy)

		fallback, err := store.ResolveInstalledBy(ctx, "")
		require.NoError(t, err)
		assert.NotEmpty(t, fallback)
	})
}

func TestDropAllTablesRemovesEverythingInSchema(t *testing.T) {
	t.Parallel()

	testutils.WithConnectionToContainer(t, func(conn *sql.DB, _ string) {
		ctx := context.Background()

		_, err := conn.ExecContext(ctx, "CREATE TABLE cake (id int)")
		require.NoError(t, err)
		_, err = conn.ExecContext(ctx, "CREATE TABLE price_histories (id int)")
		require.NoError(t, err)

		require.NoError(t, history.DropAllTables(ctx, conn, "public"))

		var count int
		err = conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM pg_catalog.pg_tables WHERE schemaname = 'public'").Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})
}
