// Package storetest builds on-disk store fixtures for tests.
package storetest

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/maloquacious/telesync/internal/store"
)

// ItemTableSchema is the key/value table VS Code-family editors create in state.vscdb.
const ItemTableSchema = `
CREATE TABLE IF NOT EXISTS ItemTable (
    key TEXT UNIQUE ON CONFLICT REPLACE,
    value BLOB
);
`

// StateDB creates dir/state.vscdb holding an ItemTable with rows and returns its path.
// Row values keep their Go type, so an int64 is stored as an INTEGER.
func StateDB(t testing.TB, dir string, rows map[string]any) string {
	t.Helper()
	path := filepath.Join(dir, store.StateDBFile)
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(ItemTableSchema)
	require.NoError(t, err)
	for k, v := range rows {
		_, err := db.Exec(`INSERT INTO ItemTable (key, value) VALUES (?, ?)`, k, v)
		require.NoError(t, err)
	}
	return path
}

// StorageJSON writes body to dir/storage.json and returns its path.
func StorageJSON(t testing.TB, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, store.StorageJSONFile)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// Exec runs statements against the database at path, for fixtures such as triggers.
func Exec(t testing.TB, path string, stmts ...string) {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
}
