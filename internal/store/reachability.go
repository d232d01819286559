package store

import "database/sql"

// withDescendants computes the reflexive-transitive closure of refs
// starting from a seed identifier, following parent -> child edges. It
// is a WITH-clause prefix: callers append their own SELECT over the
// closure table. Deduplication is by construction (UNION, not UNION
// ALL): each identifier enters the closure at most once regardless of
// how many paths reach it, which also makes the walk terminate even if
// refs ever contained a cycle.
const withDescendants = `
WITH RECURSIVE closure(id) AS (
	SELECT ?
	UNION
	SELECT refs.child_id FROM refs JOIN closure ON refs.parent_id = closure.id
)`

// withAncestors is the mirror image, following child -> parent edges.
const withAncestors = `
WITH RECURSIVE closure(id) AS (
	SELECT ?
	UNION
	SELECT refs.parent_id FROM refs JOIN closure ON refs.child_id = closure.id
)`

// GetBlock returns the identifier and payload for hash, or (0, nil,
// false) if no Block exists for it (whether or not the hash is known at
// all).
func (s *Store) GetBlock(hash []byte) (ID, []byte, bool, error) {
	var id ID
	var payload []byte
	found := false
	err := s.readTxn("get_block", func(t *Txn) error {
		gotID, ok, err := getID(t, hash)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		var p []byte
		err = t.QueryRow("SELECT payload FROM blocks WHERE block_id = ?", int64(gotID)).Scan(&p)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return engineErr("get_block", err)
		}
		id = gotID
		payload = p
		found = true
		return nil
	})
	if err != nil {
		return 0, nil, false, err
	}
	return id, payload, found, nil
}

// HasBlock reports whether hash currently has a stored payload.
func (s *Store) HasBlock(hash []byte) (bool, error) {
	_, _, found, err := s.GetBlock(hash)
	return found, err
}

// HasCid reports whether hash has ever been interned, regardless of
// whether it currently has a Block.
func (s *Store) HasCid(hash []byte) (bool, error) {
	found := false
	err := s.readTxn("has_cid", func(t *Txn) error {
		_, ok, err := getID(t, hash)
		found = ok
		return err
	})
	return found, err
}

// ListHashes returns every interned hash, whether or not it currently has
// a Block. Intended for diagnostics and maintenance tooling, not for
// hot-path use: it is a full scan of cids with no pagination.
func (s *Store) ListHashes() ([][]byte, error) {
	var result [][]byte
	err := s.readTxn("list_hashes", func(t *Txn) error {
		rows, err := t.Query("SELECT hash FROM cids")
		if err != nil {
			return engineErr("list_hashes", err)
		}
		defer rows.Close()

		for rows.Next() {
			var hash []byte
			if err := rows.Scan(&hash); err != nil {
				return engineErr("list_hashes", err)
			}
			result = append(result, hash)
		}
		return rows.Err()
	})
	return result, err
}

// GetDescendants returns the reflexive-transitive closure of links
// starting from hash, including hash itself. Returns an empty slice if
// hash is unknown.
func (s *Store) GetDescendants(hash []byte) ([][]byte, error) {
	var result [][]byte
	err := s.readTxn("get_descendants", func(t *Txn) error {
		id, ok, err := getID(t, hash)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		result, err = hashesForClosure(t, withDescendants+" SELECT id FROM closure", int64(id))
		return err
	})
	return result, err
}

// GetMissingBlocks interns hash (creating its identifier if absent — a
// side effect callers should be aware of) and returns the hashes of
// every identifier in hash's descendant closure that has no Block.
func (s *Store) GetMissingBlocks(hash []byte) ([][]byte, error) {
	var result [][]byte
	err := s.writeTxn("get_missing_blocks", func(t *Txn) error {
		id, err := getOrCreateID(t, hash)
		if err != nil {
			return err
		}

		rows, err := t.Query(
			withDescendants+`
			 SELECT c.id FROM closure c
			 LEFT JOIN blocks b ON b.block_id = c.id
			 WHERE b.block_id IS NULL`,
			int64(id),
		)
		if err != nil {
			return engineErr("get_missing_blocks", err)
		}
		defer rows.Close()

		ids, err := scanIDs(rows)
		if err != nil {
			return err
		}
		result, err = hashesForIDs(t, ids)
		return err
	})
	return result, err
}

// AliasEntry is one (name, present) pair returned by ReverseAlias: Name
// is nil when the ancestor identifier has no durable alias.
type AliasEntry struct {
	Name    []byte
	HasName bool
}

// ReverseAlias walks the ancestor set of hash (reflexive: hash's own
// identifier is included) and returns every alias name found attached to
// any ancestor, including a NULL entry (HasName == false) for ancestors
// that have none. Callers that only want real names should filter on
// HasName.
func (s *Store) ReverseAlias(hash []byte) ([]AliasEntry, error) {
	var result []AliasEntry
	err := s.readTxn("reverse_alias", func(t *Txn) error {
		id, ok, err := getID(t, hash)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		rows, err := t.Query(
			withAncestors+`
			 SELECT a.name FROM closure c
			 LEFT JOIN aliases a ON a.block_id = c.id`,
			int64(id),
		)
		if err != nil {
			return engineErr("reverse_alias", err)
		}
		defer rows.Close()

		for rows.Next() {
			var name sql.NullString
			if err := rows.Scan(&name); err != nil {
				return engineErr("reverse_alias", err)
			}
			if name.Valid {
				result = append(result, AliasEntry{Name: []byte(name.String), HasName: true})
			} else {
				result = append(result, AliasEntry{HasName: false})
			}
		}
		return rows.Err()
	})
	return result, err
}

func hashesForClosure(t *Txn, query string, seed int64) ([][]byte, error) {
	rows, err := t.Query(query, seed)
	if err != nil {
		return nil, engineErr("closure", err)
	}
	defer rows.Close()

	ids, err := scanIDs(rows)
	if err != nil {
		return nil, err
	}
	return hashesForIDs(t, ids)
}

func scanIDs(rows *sql.Rows) ([]int64, error) {
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, engineErr("scan_ids", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, engineErr("scan_ids", err)
	}
	return ids, nil
}

func hashesForIDs(t *Txn, ids []int64) ([][]byte, error) {
	result := make([][]byte, 0, len(ids))
	for _, id := range ids {
		var hash []byte
		if err := t.QueryRow("SELECT hash FROM cids WHERE id = ?", id).Scan(&hash); err != nil {
			return nil, engineErr("hashes_for_ids", err)
		}
		result = append(result, hash)
	}
	return result, nil
}
