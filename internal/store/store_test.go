package store

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	assert.FileExists(t, path)
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.db")

	for i := range 3 {
		s, err := Open(path)
		require.NoError(t, err, "open #%d", i)

		var count int
		assert.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM interfaces").Scan(&count))
		require.NoError(t, s.Close())
	}
}

func TestOpen_BadPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/registry.db")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open registry")
}

func TestClose_Unopened(t *testing.T) {
	assert.NoError(t, (&Store{}).Close())
}

func TestPragmas(t *testing.T) {
	s := openTestStore(t)

	want := map[string]string{
		"journal_mode": "wal",
		"synchronous":  "1",
		"busy_timeout": "5000",
		"foreign_keys": "1",
	}
	for name, value := range want {
		got, err := s.pragma(name)
		require.NoError(t, err)
		assert.Equal(t, value, got, name)
	}
}

func TestSchema_Columns(t *testing.T) {
	s := openTestStore(t)

	assert.Subset(t, columns(t, s.db, "interfaces"),
		[]string{"name", "version", "namespace", "hash", "build_version", "artifact"})
	assert.Subset(t, columns(t, s.db, "interface_imports"),
		[]string{"name", "version", "dep_name", "dep_version", "position"})
}

func TestMigrate_FromUnversioned(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.db")

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(schemaSQL)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	version, err := s.pragma("user_version")
	require.NoError(t, err)
	assert.Equal(t, "1", version)

	var index string
	err = s.db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'index' AND name = 'idx_interfaces_hash'`).Scan(&index)
	assert.NoError(t, err, "hash index should exist after migration")
}

func columns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("SELECT name FROM pragma_table_info(?)", table)
	require.NoError(t, err)
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		cols = append(cols, name)
	}
	require.NoError(t, rows.Err())
	return cols
}
