// Package testutil provides testing utilities for sqlsnap
package testutil

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// SQLiteTableExistsQuery answers table existence checks against an
// in-memory SQLite database opened with OpenSQLite.
const SQLiteTableExistsQuery = `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`

// OpenSQLite opens a private in-memory database and runs the given
// statements against it. The database is limited to one connection so
// every query sees the same memory.
func OpenSQLite(t *testing.T, stmts ...string) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
	return db
}
