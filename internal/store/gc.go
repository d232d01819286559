package store

import (
	"database/sql"
	"time"

	"github.com/blockvault/blockvault/internal/budget"
	"github.com/blockvault/blockvault/internal/logging"
)

var gcLog = logging.GetLogger("store.gc")

// GCTargets bounds when incremental GC has more work to do. A target of
// 0 means "exceeded by any non-empty store" (i.e. evict everything
// unreachable); passing targets=(0,0) means "collect all garbage".
type GCTargets struct {
	MaxCount int64
	MaxSize  int64
}

func (g GCTargets) exceeded(st Stats) bool {
	return st.Count > g.MaxCount || st.Size > g.MaxSize
}

// candidateSetQuery finds every identifier not in the reachable closure
// of aliases ∪ temp_pins, in one recursive query grounded directly in
// the data model's reachability invariant: reachable is
// the fixed point of "pinned ∪ children(pinned)", evaluated over refs
// regardless of Block presence.
const candidateSetQuery = `
WITH RECURSIVE reachable(id) AS (
	SELECT block_id FROM aliases
	UNION
	SELECT block_id FROM temp_pins
	UNION
	SELECT refs.child_id FROM refs JOIN reachable ON refs.parent_id = reachable.id
)
SELECT id FROM cids WHERE id NOT IN (SELECT id FROM reachable)
`

// IncrementalGC evicts unreachable identifiers, bounded by minBlocks and
// maxDuration, stopping early once GCTargets are satisfied. tracker may
// be nil, in which case NullTracker is used. Returns done == true iff the
// full candidate list was drained or the size targets are no longer
// exceeded; done == false means the caller should schedule another pass.
//
// The candidate-set query and the CacheTracker sort run in their own read
// transaction, ahead of the write transaction that performs the bounded
// delete loop: the store only ever holds one pooled connection (single
// writer), so a CacheTracker that itself queries the store (e.g.
// SizeTracker) would deadlock against an already-open write transaction
// on that same connection. Splitting the read and write phases avoids
// that without weakening the single-writer model — nothing else can
// write to the store between the two phases.
func (s *Store) IncrementalGC(minBlocks int, maxDuration time.Duration, targets GCTargets, tracker CacheTracker) (bool, error) {
	if tracker == nil {
		tracker = NullTracker{}
	}

	var st Stats
	if err := s.readTxn("incremental_gc_stats", func(t *Txn) error {
		return t.QueryRow("SELECT count, size FROM stats WHERE singleton = 0").Scan(&st.Count, &st.Size)
	}); err != nil {
		return false, engineErr("incremental_gc", err)
	}
	if !targets.exceeded(st) {
		return true, nil
	}

	var candidates []ID
	start := time.Now()
	if err := s.readTxn("incremental_gc_candidates", func(t *Txn) error {
		rows, err := t.Query(candidateSetQuery)
		if err != nil {
			return engineErr("incremental_gc", err)
		}
		defer rows.Close()
		ids64, err := scanIDs(rows)
		if err != nil {
			return err
		}
		candidates = make([]ID, len(ids64))
		for i, v := range ids64 {
			candidates[i] = ID(v)
		}
		return nil
	}); err != nil {
		return false, err
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		gcLog.Warn("gc candidate query exceeded 1s", "elapsed_ms", elapsed.Milliseconds(), "candidates", len(candidates))
	}

	tracker.SortIDs(candidates)

	done := false
	var deleted []ID
	err := s.writeTxn("incremental_gc", func(t *Txn) error {
		b := budget.New(minBlocks, maxDuration)
		processed := 0
		deleted = deleted[:0]

		for _, id := range candidates {
			if b.Exceeded(processed) {
				break
			}
			if !targets.exceeded(st) {
				break
			}

			var size sql.NullInt64
			if err := t.QueryRow("SELECT LENGTH(payload) FROM blocks WHERE block_id = ?", int64(id)).Scan(&size); err != nil && err != sql.ErrNoRows {
				return engineErr("incremental_gc", err)
			}
			if size.Valid {
				st.Count--
				st.Size -= size.Int64
				if err := bumpStats(t, -1, -size.Int64); err != nil {
					return err
				}
			}

			if _, err := t.Exec("DELETE FROM cids WHERE id = ?", int64(id)); err != nil {
				return engineErr("incremental_gc", err)
			}

			deleted = append(deleted, id)
			processed++
		}

		done = processed == len(candidates) || !targets.exceeded(st)
		gcLog.Info("incremental gc pass", "candidates", len(candidates), "evicted", processed, "done", done)
		return nil
	})
	if err != nil {
		return false, err
	}

	// Notify only after the commit: a tracker is told about exactly the
	// prefix that is actually gone, never about deletions a rollback took
	// back, and a tracker that queries the store (like SizeTracker) sees
	// no open write transaction on the single pooled connection.
	tracker.DeleteIDs(deleted)
	return done, nil
}
