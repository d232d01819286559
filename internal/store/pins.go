package store

import (
	"database/sql"
	"sync/atomic"
)

// PinHandle is the shared mutable cell backing a transient-pin session.
// It is initialized to 0 ("unassigned"), assigned once lazily by the
// first pinning PutBlock call, and released by DeleteTempPin at session
// end. The contract is read-once/write-once, visible across threads: only
// the first PutBlock call that observes 0 assigns a fresh PinId, and
// every later call simply reads the already-assigned value. Callers must
// not share a PinHandle across threads that do not synchronize
// externally, and must not reuse a handle after releasing it.
type PinHandle struct {
	id atomic.Int64
}

// NewPinHandle returns a fresh, unassigned pin handle.
func NewPinHandle() *PinHandle { return &PinHandle{} }

// ExistingPinHandle returns a handle preloaded with a PinId obtained from
// a previous handle's ID(), for callers (such as a CLI) that cannot keep
// a PinHandle alive in memory across invocations and must persist the
// PinId themselves. Passing 0 is equivalent to NewPinHandle.
func ExistingPinHandle(id int64) *PinHandle {
	h := &PinHandle{}
	if id != 0 {
		h.id.Store(id)
	}
	return h
}

// ID returns the handle's current PinId, or 0 if unassigned.
func (h *PinHandle) ID() int64 { return h.id.Load() }

// tryAssign sets the handle to newID if it is currently unassigned (0),
// returning the value now held by the handle (the winner's, under
// concurrent callers).
func (h *PinHandle) tryAssign(newID int64) int64 {
	if h.id.CompareAndSwap(0, newID) {
		return newID
	}
	return h.id.Load()
}

// allocatePinID computes MAX(pin_id)+1 over temp_pins, seeded at 2 so
// that 0 ("unassigned") and 1 are never handed out as live PinIds. PinIds
// are not auto-incremented and may be reused after the rows bearing them
// are deleted; this is safe because a PinId is only meaningful while a
// session holds its handle, and the startup purge of all transient pins
// makes a stale cross-restart reuse impossible.
func allocatePinID(t *Txn) (int64, error) {
	var maxID sql.NullInt64
	if err := t.QueryRow("SELECT MAX(pin_id) FROM temp_pins").Scan(&maxID); err != nil {
		return 0, engineErr("allocate_pin_id", err)
	}
	if !maxID.Valid || maxID.Int64 < 1 {
		return 2, nil
	}
	return maxID.Int64 + 1, nil
}

// Alias upserts a durable name -> id mapping for hash. Interns hash if
// it has not been seen before.
func (s *Store) Alias(name []byte, hash []byte) error {
	return s.writeTxn("alias", func(t *Txn) error {
		id, err := getOrCreateID(t, hash)
		if err != nil {
			return err
		}
		if _, err := t.Exec(
			`INSERT INTO aliases (name, block_id) VALUES (?, ?)
			 ON CONFLICT(name) DO UPDATE SET block_id = excluded.block_id`,
			name, int64(id),
		); err != nil {
			return engineErr("alias", err)
		}
		return nil
	})
}

// Unalias deletes the durable alias named name, if any.
func (s *Store) Unalias(name []byte) error {
	return s.writeTxn("unalias", func(t *Txn) error {
		if _, err := t.Exec("DELETE FROM aliases WHERE name = ?", name); err != nil {
			return engineErr("unalias", err)
		}
		return nil
	})
}

// DeleteTempPin deletes all transient pins carrying pinID. Called at
// session end to release everything a PinHandle ever pinned.
func (s *Store) DeleteTempPin(pinID int64) error {
	return s.writeTxn("delete_temp_pin", func(t *Txn) error {
		if _, err := t.Exec("DELETE FROM temp_pins WHERE pin_id = ?", pinID); err != nil {
			return engineErr("delete_temp_pin", err)
		}
		return nil
	})
}
