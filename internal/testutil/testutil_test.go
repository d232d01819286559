package testutil

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func openScratchDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", DBPath(t, "scratch.db"))
	if err != nil {
		t.Fatalf("open scratch db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestDBPath(t *testing.T) {
	path := DBPath(t, "blocks.db")

	if filepath.Base(path) != "blocks.db" {
		t.Errorf("expected path ending in blocks.db, got %s", path)
	}
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Errorf("expected containing directory to exist: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected the database file itself not to be created, got %v", err)
	}
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte("database:\n  memory: true\n")

	path := WriteFile(t, dir, "config.yaml", content)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read fixture back: %v", err)
	}
	if string(data) != string(content) {
		t.Errorf("fixture content mismatch: got %q, want %q", data, content)
	}
}

func TestCountRows(t *testing.T) {
	db := openScratchDB(t)

	if _, err := db.Exec(`CREATE TABLE things (id INTEGER PRIMARY KEY)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if n := CountRows(t, db, "things"); n != 0 {
		t.Errorf("expected 0 rows, got %d", n)
	}

	if _, err := db.Exec(`INSERT INTO things (id) VALUES (1), (2)`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if n := CountRows(t, db, "things"); n != 2 {
		t.Errorf("expected 2 rows, got %d", n)
	}
}

func TestTableExists(t *testing.T) {
	db := openScratchDB(t)

	if TableExists(t, db, "things") {
		t.Errorf("expected things to not exist yet")
	}
	if _, err := db.Exec(`CREATE TABLE things (id INTEGER PRIMARY KEY)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if !TableExists(t, db, "things") {
		t.Errorf("expected things to exist")
	}
}
