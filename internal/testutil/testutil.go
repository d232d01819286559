// Package testutil holds the small helpers blockvault's tests share:
// scratch database paths, fixture files, and raw-SQL probes for
// inspecting a store's tables from outside the store API.
package testutil

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// DBPath returns a path for a scratch database file named name under a
// per-test temp directory. The file itself is not created; store.Open
// and raw sql.Open both expect to create it.
func DBPath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(t.TempDir(), name)
}

// WriteFile writes a fixture file into dir and returns its path.
func WriteFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("write fixture %s: %v", name, err)
	}
	return path
}

// CountRows counts the rows of a table through a raw database handle,
// bypassing whatever invariants the owning API maintains around it.
// Tests that corrupt a store on purpose (orphaned blocks, migration
// leftovers) use this to observe the damage and the repair.
func CountRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()

	var n int
	if err := db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&n); err != nil {
		t.Fatalf("count rows in %s: %v", table, err)
	}
	return n
}

// TableExists reports whether the database has a table with the given
// name.
func TableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()

	var n int
	if err := db.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name,
	).Scan(&n); err != nil {
		t.Fatalf("check table %s: %v", name, err)
	}
	return n > 0
}
