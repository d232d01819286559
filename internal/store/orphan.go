package store

import (
	"time"

	"github.com/blockvault/blockvault/internal/budget"
)

// orphanQuery finds Block rows whose identifier no longer exists in
// cids: cascade deletion of large Blocks via an Identifier delete is
// cheap, but some paths (a rolled-back insert that partially landed, or
// legacy-path bugs) can in principle leave a Block behind with no owning
// Identifier. This sweep is the cleanup for that case.
const orphanQuery = `SELECT block_id FROM blocks WHERE block_id NOT IN (SELECT id FROM cids)`

// IncrementalDeleteOrphaned deletes orphan Block rows one at a time,
// bounded by minBlocks/maxDuration the same way IncrementalGC is.
// Returns done == true iff the full orphan list was processed. Unlike
// IncrementalGC, there is no size target to satisfy early: every orphan
// found is garbage by definition. The cost of the final transaction
// commit is not counted against maxDuration — a documented limitation,
// since only the delete loop itself is instrumented.
func (s *Store) IncrementalDeleteOrphaned(minBlocks int, maxDuration time.Duration) (bool, error) {
	done := false
	err := s.writeTxn("incremental_delete_orphaned", func(t *Txn) error {
		rows, err := t.Query(orphanQuery)
		if err != nil {
			return engineErr("incremental_delete_orphaned", err)
		}
		ids, err := scanIDs(rows)
		rows.Close()
		if err != nil {
			return err
		}

		b := budget.New(minBlocks, maxDuration)
		processed := 0
		for _, id := range ids {
			if b.Exceeded(processed) {
				break
			}
			if _, err := t.Exec("DELETE FROM blocks WHERE block_id = ?", id); err != nil {
				return engineErr("incremental_delete_orphaned", err)
			}
			processed++
		}

		done = processed == len(ids)
		gcLog.Info("orphan sweep pass", "orphans", len(ids), "deleted", processed, "done", done)
		return nil
	})
	return done, err
}
