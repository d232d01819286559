package store

import (
	"database/sql"
	"fmt"
)

// LegacyDecoder recovers a block's links from its raw payload during the
// v0-to-v1 migration. Block-format knowledge belongs to the caller, not
// the core: the migration only needs to know which children a legacy
// payload pointed to so it can populate refs the normal ingest path
// would have written. A nil decoder migrates every legacy block with no
// links (a conservative, always-safe default when link information has
// already been lost or was never tracked).
type LegacyDecoder func(payload []byte) (links [][]byte, err error)

const migrationBatchSize = 1000

// initSchema runs once at Open: either the v0-to-v1 migration (if a
// legacy flat table is present and schema-version is 0) or the idempotent
// v1 init path, followed by a transient-pin purge and stats recompute in
// both cases, all within a single write transaction.
func (s *Store) initSchema() error {
	return s.initSchemaWithDecoder(nil)
}

// InitSchemaWithDecoder is like the implicit schema init Open performs,
// but lets the caller supply a LegacyDecoder for the v0-to-v1 migration.
// The migration itself runs only when schema-version is 0 and a legacy
// table is found. Every call, including one made after Open, also re-runs
// the idempotent schema script, purges all transient pins, and recomputes
// the stats row, exactly as Open does.
func (s *Store) InitSchemaWithDecoder(decode LegacyDecoder) error {
	return s.initSchemaWithDecoder(decode)
}

func (s *Store) initSchemaWithDecoder(decode LegacyDecoder) error {
	version, err := s.schemaVersion()
	if err != nil {
		return err
	}

	return s.writeTxn("init_schema", func(t *Txn) error {
		if version == 0 {
			isLegacy, err := legacyBlocksTableShape(t)
			if err != nil {
				return err
			}
			if isLegacy {
				if err := s.migrateV0ToV1(t, decode); err != nil {
					return err
				}
			}
		}

		if _, err := t.Exec(coreSchema); err != nil {
			return engineErr("init_schema", err)
		}

		if _, err := t.Exec("DELETE FROM temp_pins"); err != nil {
			return engineErr("init_schema", err)
		}

		if err := recomputeStatsTxn(t); err != nil {
			return err
		}

		if err := s.setSchemaVersion(t, SchemaVersion); err != nil {
			return err
		}

		return nil
	})
}

func (s *Store) schemaVersion() (int, error) {
	var v int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&v); err != nil {
		return 0, engineErr("schema_version", err)
	}
	return v, nil
}

func (s *Store) setSchemaVersion(t *Txn, v int) error {
	// PRAGMA statements don't accept bound parameters.
	if _, err := t.Exec(fmt.Sprintf("PRAGMA user_version = %d", v)); err != nil {
		return engineErr("set_schema_version", err)
	}
	return nil
}

// legacyBlocksTableShape reports whether the database has a "blocks"
// table in the v0 flat (hash, payload) shape rather than the v1
// normalized shape (block_id, payload). It distinguishes the two by
// checking for the presence of the "cids" table: v1 always creates
// blocks alongside cids, so a blocks table with no accompanying cids
// table is necessarily the legacy layout.
func legacyBlocksTableShape(t *Txn) (bool, error) {
	var blocksSQL sql.NullString
	err := t.QueryRow(legacyTableCheck).Scan(&blocksSQL)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, engineErr("legacy_check", err)
	}

	var cidsExists int
	if err := t.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'cids'`,
	).Scan(&cidsExists); err != nil {
		return false, engineErr("legacy_check", err)
	}

	return cidsExists == 0, nil
}

// migrateV0ToV1 renames the legacy table aside, creates the v1 schema,
// and re-inserts every legacy row through the normal ingest path in
// batches, logging progress as it goes.
func (s *Store) migrateV0ToV1(t *Txn, decode LegacyDecoder) error {
	log.Info("migrating legacy schema to v1")

	if _, err := t.Exec("ALTER TABLE blocks RENAME TO blocks_legacy_v0"); err != nil {
		return engineErr("migrate", err)
	}
	if _, err := t.Exec(coreSchema); err != nil {
		return engineErr("migrate", err)
	}

	var total int
	if err := t.QueryRow("SELECT COUNT(*) FROM blocks_legacy_v0").Scan(&total); err != nil {
		return engineErr("migrate", err)
	}

	migrated := 0
	var lastRowID int64
	for {
		rows, err := t.Query(
			`SELECT rowid, hash, payload FROM blocks_legacy_v0 WHERE rowid > ? ORDER BY rowid LIMIT ?`,
			lastRowID, migrationBatchSize,
		)
		if err != nil {
			return engineErr("migrate", err)
		}

		type legacyRow struct {
			rowid   int64
			hash    []byte
			payload []byte
		}
		var batch []legacyRow
		for rows.Next() {
			var r legacyRow
			if err := rows.Scan(&r.rowid, &r.hash, &r.payload); err != nil {
				rows.Close()
				return engineErr("migrate", err)
			}
			batch = append(batch, r)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return engineErr("migrate", err)
		}
		rows.Close()

		if len(batch) == 0 {
			break
		}

		for _, r := range batch {
			var links [][]byte
			if decode != nil {
				decoded, err := decode(r.payload)
				if err != nil {
					return &MigrationError{Hash: r.hash, Err: err}
				}
				links = decoded
			}

			if _, err := s.putBlockTxn(t, r.hash, r.payload, links, nil); err != nil {
				return err
			}
			lastRowID = r.rowid
		}

		migrated += len(batch)
		log.Info("migration progress", "migrated", migrated, "total", total)

		if len(batch) < migrationBatchSize {
			break
		}
	}

	if _, err := t.Exec("DROP TABLE blocks_legacy_v0"); err != nil {
		return engineErr("migrate", err)
	}

	log.Info("migration to v1 complete", "migrated", migrated)
	return nil
}
