package store

import "database/sql"

// ID is the dense positive integer surrogate for a Hash.
type ID int64

// getID looks up the identifier for hash, returning (0, false) on miss.
func getID(t *Txn, hash []byte) (ID, bool, error) {
	var id int64
	err := t.QueryRow("SELECT id FROM cids WHERE hash = ?", hash).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, engineErr("get_id", err)
	}
	return ID(id), true, nil
}

// getOrCreateID interns hash, assigning a fresh identifier on first
// sight. Safe under the single-writer model: only one write-txn is ever
// in flight, so the lookup-then-insert is not racy in-process.
func getOrCreateID(t *Txn, hash []byte) (ID, error) {
	id, ok, err := getID(t, hash)
	if err != nil {
		return 0, err
	}
	if ok {
		return id, nil
	}

	res, err := t.Exec("INSERT INTO cids (hash) VALUES (?)", hash)
	if err != nil {
		return 0, engineErr("get_or_create_id", err)
	}
	rowID, err := res.LastInsertId()
	if err != nil {
		return 0, engineErr("get_or_create_id", err)
	}
	if rowID <= 0 {
		return 0, &ConversionError{Field: "id", Value: rowID}
	}
	return ID(rowID), nil
}
