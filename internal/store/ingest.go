package store

import (
	"database/sql"
	"errors"
)

// PutBlock inserts a (hash, payload, links) tuple, idempotent on hash:
// a second PutBlock for a hash that already has a Block is a no-op for
// blocks/refs/stats (links are not rewritten, since content-addressing
// means a hash's outgoing edges are fixed by its first insertion). If
// pin is non-nil, the identifier is attached to pin's transient-pin
// group regardless of whether the block already existed, so a caller
// re-pinning an existing block always wins.
func (s *Store) PutBlock(hash, payload []byte, links [][]byte, pin *PinHandle) (ID, error) {
	var id ID
	err := s.writeTxn("put_block", func(t *Txn) error {
		got, err := s.putBlockTxn(t, hash, payload, links, pin)
		if err != nil {
			return err
		}
		id = got
		return nil
	})
	return id, err
}

func (s *Store) putBlockTxn(t *Txn, hash, payload []byte, links [][]byte, pin *PinHandle) (ID, error) {
	id, err := getOrCreateID(t, hash)
	if err != nil {
		return 0, err
	}

	var exists int
	err = t.QueryRow("SELECT 1 FROM blocks WHERE block_id = ?", int64(id)).Scan(&exists)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, engineErr("put_block", err)
	}
	hadBlock := exists == 1

	if pin != nil {
		if err := s.attachTempPin(t, pin, id); err != nil {
			return 0, err
		}
	}

	if hadBlock {
		return id, nil
	}

	if _, err := t.Exec("INSERT INTO blocks (block_id, payload) VALUES (?, ?)", int64(id), payload); err != nil {
		return 0, engineErr("put_block", err)
	}

	if err := bumpStats(t, 1, int64(len(payload))); err != nil {
		return 0, err
	}

	for _, childHash := range links {
		childID, err := getOrCreateID(t, childHash)
		if err != nil {
			return 0, err
		}
		if _, err := t.Exec(
			"INSERT OR IGNORE INTO refs (parent_id, child_id) VALUES (?, ?)",
			int64(id), int64(childID),
		); err != nil {
			return 0, engineErr("put_block", err)
		}
	}

	return id, nil
}

// attachTempPin assigns pin a fresh PinId on first use (or reads the one
// it already has) and records that pin now pins id. The PinId allocation
// is not rolled back if a later step in the same PutBlock fails: PinIds
// identify pin sessions, not particular blocks, so a rolled-back insert
// simply leaves the session with an unused PinId, which is harmless.
func (s *Store) attachTempPin(t *Txn, pin *PinHandle, id ID) error {
	pinID := pin.ID()
	if pinID == 0 {
		allocated, err := allocatePinID(t)
		if err != nil {
			return err
		}
		pinID = pin.tryAssign(allocated)
	}

	if _, err := t.Exec(
		"INSERT OR IGNORE INTO temp_pins (pin_id, block_id) VALUES (?, ?)",
		pinID, int64(id),
	); err != nil {
		return engineErr("attach_temp_pin", err)
	}
	return nil
}
