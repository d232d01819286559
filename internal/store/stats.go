package store

// Stats mirrors (count, size) over identifiers that currently have a
// Block: count is the number of such identifiers, size is the sum of
// their payload lengths.
type Stats struct {
	Count int64
	Size  int64
}

// bumpStats applies an incremental (count, size) delta to the stats
// singleton row. Called from PutBlock (+1, +len(payload)) and from GC
// (-1, -size) as identifiers gain or lose their Block.
func bumpStats(t *Txn, countDelta, sizeDelta int64) error {
	if _, err := t.Exec(
		"UPDATE stats SET count = count + ?, size = size + ? WHERE singleton = 0",
		countDelta, sizeDelta,
	); err != nil {
		return engineErr("bump_stats", err)
	}
	return nil
}

// recomputeStatsTxn rebuilds the stats row from the ground-truth join of
// cids and blocks. Used at schema init; RecomputeStats runs the same
// ground-truth query read-only, for debug-assertion use (cheap to check
// in tests, expensive in production).
func recomputeStatsTxn(t *Txn) error {
	var count, size int64
	if err := t.QueryRow(
		"SELECT COUNT(id), COALESCE(SUM(LENGTH(payload)), 0) FROM cids JOIN blocks ON blocks.block_id = cids.id",
	).Scan(&count, &size); err != nil {
		return engineErr("recompute_stats", err)
	}
	if _, err := t.Exec(
		`INSERT INTO stats (singleton, count, size) VALUES (0, ?, ?)
		 ON CONFLICT(singleton) DO UPDATE SET count = excluded.count, size = excluded.size`,
		count, size,
	); err != nil {
		return engineErr("recompute_stats", err)
	}
	return nil
}

// StoreStats returns the current mirrored stats row, an O(1) query.
func (s *Store) StoreStats() (Stats, error) {
	var st Stats
	err := s.readTxn("store_stats", func(t *Txn) error {
		return t.QueryRow("SELECT count, size FROM stats WHERE singleton = 0").Scan(&st.Count, &st.Size)
	})
	if err != nil {
		return Stats{}, engineErr("store_stats", err)
	}
	return st, nil
}

// RecomputeStats recomputes stats from ground truth and returns the
// result, without mutating the stored stats row — callers that want the
// mirror itself corrected should re-run schema init, which calls
// recomputeStatsTxn directly. It is intended for debug assertions that
// store-stats equals recompute-stats at a transaction boundary.
// IntegrityCheck does not call it; it runs the same query itself.
func (s *Store) RecomputeStats() (Stats, error) {
	var st Stats
	err := s.readTxn("recompute_stats_readonly", func(t *Txn) error {
		return t.QueryRow(
			"SELECT COUNT(id), COALESCE(SUM(LENGTH(payload)), 0) FROM cids JOIN blocks ON blocks.block_id = cids.id",
		).Scan(&st.Count, &st.Size)
	})
	if err != nil {
		return Stats{}, engineErr("recompute_stats", err)
	}
	return st, nil
}
