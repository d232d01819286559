package store

import (
	"database/sql"
	"time"

	"github.com/blockvault/blockvault/internal/logging"
)

var txnLog = logging.GetLogger("store.txn")

// Txn is the ambient transaction handle passed to the function given to
// writeTxn/readTxn. It is a thin wrapper so call sites don't depend on
// database/sql directly.
type Txn struct {
	tx *sql.Tx
}

func (t *Txn) Exec(query string, args ...any) (sql.Result, error) {
	return t.tx.Exec(query, args...)
}

func (t *Txn) Query(query string, args ...any) (*sql.Rows, error) {
	return t.tx.Query(query, args...)
}

func (t *Txn) QueryRow(query string, args ...any) *sql.Row {
	return t.tx.QueryRow(query, args...)
}

// writeTxn begins a write transaction, runs f with a Txn handle, commits
// on success, and rolls back on any failure (including f returning an
// error or panicking through the caller). Nesting a write-txn inside
// another call already holding the store's write lock returns a
// PreconditionError instead of deadlocking. The timing log's debug/info
// escalation threshold is s.infoThresholdMS, which a caller can override
// per-store with SetInfoThreshold rather than it being a fixed constant.
func (s *Store) writeTxn(op string, f func(*Txn) error) error {
	if !s.writeLock.TryLock() {
		return &PreconditionError{Msg: "nested write-txn attempted: " + op}
	}
	defer s.writeLock.Unlock()

	start := time.Now()
	tx, err := s.db.Begin()
	if err != nil {
		txnLog.LogTxn(op, 0, s.infoThresholdMS, err)
		return engineErr(op, err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := f(&Txn{tx: tx}); err != nil {
		_ = tx.Rollback()
		txnLog.LogTxn(op, msSince(start), s.infoThresholdMS, err)
		return err
	}

	if err := tx.Commit(); err != nil {
		txnLog.LogTxn(op, msSince(start), s.infoThresholdMS, err)
		return engineErr(op, err)
	}

	txnLog.LogTxn(op, msSince(start), s.infoThresholdMS, nil)
	return nil
}

// readTxn begins a read transaction, runs f, and never commits (SQLite
// read transactions have nothing to commit; the transaction is simply
// closed). It gives callers a snapshot-consistent view without taking
// the write lock, so reads can proceed concurrently with WAL readers.
func (s *Store) readTxn(op string, f func(*Txn) error) error {
	start := time.Now()
	tx, err := s.db.Begin()
	if err != nil {
		txnLog.LogTxn(op, 0, s.infoThresholdMS, err)
		return engineErr(op, err)
	}
	defer tx.Rollback()

	err = f(&Txn{tx: tx})
	txnLog.LogTxn(op, msSince(start), s.infoThresholdMS, err)
	return err
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
