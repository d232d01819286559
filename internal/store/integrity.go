package store

import "fmt"

// IntegrityCheck runs SQLite's own PRAGMA integrity_check plus the
// store's data-model invariants (dangling link/alias/pin references, and
// stats-vs-ground-truth coherence), returning one diagnostic string per
// problem found. A healthy store returns ["ok"].
func (s *Store) IntegrityCheck() ([]string, error) {
	var diagnostics []string

	err := s.readTxn("integrity_check", func(t *Txn) error {
		rows, err := t.Query("PRAGMA integrity_check")
		if err != nil {
			return engineErr("integrity_check", err)
		}
		for rows.Next() {
			var msg string
			if err := rows.Scan(&msg); err != nil {
				rows.Close()
				return engineErr("integrity_check", err)
			}
			if msg != "ok" {
				diagnostics = append(diagnostics, "sqlite: "+msg)
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return engineErr("integrity_check", err)
		}
		rows.Close()

		if n, err := countRows(t, "SELECT COUNT(*) FROM refs WHERE parent_id NOT IN (SELECT id FROM cids) OR child_id NOT IN (SELECT id FROM cids)"); err != nil {
			return err
		} else if n > 0 {
			diagnostics = append(diagnostics, fmt.Sprintf("%d ref edges reference a nonexistent identifier", n))
		}

		if n, err := countRows(t, "SELECT COUNT(*) FROM aliases WHERE block_id NOT IN (SELECT id FROM cids)"); err != nil {
			return err
		} else if n > 0 {
			diagnostics = append(diagnostics, fmt.Sprintf("%d aliases reference a nonexistent identifier", n))
		}

		if n, err := countRows(t, "SELECT COUNT(*) FROM temp_pins WHERE block_id NOT IN (SELECT id FROM cids)"); err != nil {
			return err
		} else if n > 0 {
			diagnostics = append(diagnostics, fmt.Sprintf("%d transient pins reference a nonexistent identifier", n))
		}

		var wantCount, wantSize, gotCount, gotSize int64
		if err := t.QueryRow("SELECT count, size FROM stats WHERE singleton = 0").Scan(&gotCount, &gotSize); err != nil {
			return engineErr("integrity_check", err)
		}
		if err := t.QueryRow(
			"SELECT COUNT(id), COALESCE(SUM(LENGTH(payload)), 0) FROM cids JOIN blocks ON blocks.block_id = cids.id",
		).Scan(&wantCount, &wantSize); err != nil {
			return engineErr("integrity_check", err)
		}
		if gotCount != wantCount || gotSize != wantSize {
			diagnostics = append(diagnostics, fmt.Sprintf(
				"stats mismatch: stored (%d, %d) vs ground truth (%d, %d)", gotCount, gotSize, wantCount, wantSize))
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(diagnostics) == 0 {
		return []string{"ok"}, nil
	}
	return diagnostics, nil
}

func countRows(t *Txn, query string, args ...any) (int64, error) {
	var n int64
	if err := t.QueryRow(query, args...).Scan(&n); err != nil {
		return 0, engineErr("integrity_check", err)
	}
	return n, nil
}
