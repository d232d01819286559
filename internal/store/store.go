package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/blockvault/blockvault/internal/logging"
	_ "github.com/mattn/go-sqlite3"
)

var log = logging.GetLogger("store")

// Store is a persistent, content-addressed block store backed by
// SQLite. The store is single-writer, multiple-reader: SQLite's WAL mode
// serializes writers at the engine level, and writeLock additionally lets
// the transaction harness reject a write-txn nested inside another
// write-txn on the same call stack with a PreconditionError instead of
// deadlocking. A plain mutex cannot tell that case apart from two
// goroutines opening genuinely concurrent top-level write-txns, so
// callers are responsible for not overlapping write-txns across
// goroutines that share a Store (the same external-synchronization
// contract a shared PinHandle already puts on them).
type Store struct {
	db              *sql.DB
	path            string
	memory          bool
	writeLock       sync.Mutex
	infoThresholdMS float64
}

// defaultInfoThresholdMS is the duration above which a transaction's
// debug-level timing log is promoted to info, used until a caller
// overrides it with SetInfoThreshold.
const defaultInfoThresholdMS = 100.0

// SetInfoThreshold overrides the duration (in milliseconds) above which
// the transaction harness promotes a timing log from debug to info. Safe
// to call at any time; takes effect on the next writeTxn/readTxn call.
func (s *Store) SetInfoThreshold(ms float64) {
	s.infoThresholdMS = ms
}

// Open opens (or creates) a block store at path, applying durability
// pragmas and running schema migration/initialization. Foreign keys,
// synchronous mode, and journal mode are carried as DSN query parameters
// (see dsnParams) rather than one-shot PRAGMA statements, so they apply to
// every connection the pool ever opens, not just the first. If memory is
// true, path is still used as the SQLite DSN but an in-memory journal
// mode is used instead of WAL; either way the pool keeps a single writer
// connection.
func Open(path string, memory bool) (*Store, error) {
	log.Info("opening store", "path", path, "memory", memory)

	if !memory {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, engineErr("open", fmt.Errorf("create store directory: %w", err))
		}
	}

	dsn := fmt.Sprintf("%s?%s", path, dsnParams(memory))
	if memory {
		dsn = fmt.Sprintf("file:%s?mode=memory&cache=shared&%s", path, dsnParams(memory))
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, engineErr("open", err)
	}

	// SQLite only supports one writer; a single pooled connection avoids
	// SQLITE_BUSY from the driver handing a write to a second connection
	// while WAL readers are active on others. Recycled connections (see
	// SetConnMaxLifetime) reopen against the same DSN, so foreign_keys,
	// synchronous, and journal_mode carried in dsnParams apply to every
	// connection the pool ever hands out, not just the first.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, engineErr("open", err)
	}

	if _, err := db.Exec(pragmaInit); err != nil {
		db.Close()
		return nil, engineErr("open", err)
	}

	if err := assertPragmas(db, memory); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, path: path, memory: memory, infoThresholdMS: defaultInfoThresholdMS}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	log.Info("store opened", "path", path)
	return s, nil
}

// assertPragmas fails the open if foreign keys are disabled or the
// journal mode doesn't match what was requested. These are the only two
// fatal, non-recoverable conditions at open time.
func assertPragmas(db *sql.DB, memory bool) error {
	var fk int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		return engineErr("open", err)
	}
	if fk != 1 {
		return engineErr("open", fmt.Errorf("foreign keys are not enabled"))
	}

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		return engineErr("open", err)
	}
	want := "wal"
	if memory {
		want = "memory"
	}
	if mode != want {
		return engineErr("open", fmt.Errorf("journal mode mismatch: want %s, got %s", want, mode))
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	log.Info("closing store")
	return s.db.Close()
}

// Path returns the store's file path (or DSN, for an in-memory store).
func (s *Store) Path() string {
	return s.path
}
