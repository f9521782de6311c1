// Package databasetest provides migrated SQLite databases for tests.
package databasetest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/isdelr/lab-portal/internal/database"
)

// New opens a migrated database in a temporary directory and closes it when
// the test ends.
func New(tb testing.TB) *sql.DB {
	tb.Helper()

	db, err := database.New(filepath.Join(tb.TempDir(), "portal.db"))
	require.NoError(tb, err)
	tb.Cleanup(func() { _ = db.Close() })

	require.NoError(tb, database.Migrate(context.Background(), db))
	return db
}
