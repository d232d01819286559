package store

// SchemaVersion is the current (v1, normalized) schema version, kept in
// SQLite's user_version pragma. 0 means either a brand new database or a
// legacy flat single-table layout that must be migrated on open.
const SchemaVersion = 1

// coreSchema creates the v1 normalized tables and indices. It is
// idempotent: every statement is IF NOT EXISTS, so re-running it against
// an already-initialized database is a no-op aside from the stats
// recompute and transient-pin purge that initSchemaWithDecoder performs
// around it.
const coreSchema = `
CREATE TABLE IF NOT EXISTS cids (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	hash BLOB NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS blocks (
	block_id INTEGER PRIMARY KEY,
	payload  BLOB NOT NULL,
	FOREIGN KEY (block_id) REFERENCES cids(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS refs (
	parent_id INTEGER NOT NULL,
	child_id  INTEGER NOT NULL,
	PRIMARY KEY (parent_id, child_id),
	FOREIGN KEY (parent_id) REFERENCES cids(id) ON DELETE CASCADE,
	FOREIGN KEY (child_id)  REFERENCES cids(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_refs_child ON refs(child_id);

CREATE TABLE IF NOT EXISTS aliases (
	name     BLOB PRIMARY KEY,
	block_id INTEGER NOT NULL,
	FOREIGN KEY (block_id) REFERENCES cids(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_aliases_block ON aliases(block_id);

CREATE TABLE IF NOT EXISTS temp_pins (
	pin_id   INTEGER NOT NULL,
	block_id INTEGER NOT NULL,
	PRIMARY KEY (pin_id, block_id),
	FOREIGN KEY (block_id) REFERENCES cids(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_temp_pins_block ON temp_pins(block_id);

CREATE TABLE IF NOT EXISTS stats (
	singleton INTEGER PRIMARY KEY CHECK (singleton = 0),
	count     INTEGER NOT NULL,
	size      INTEGER NOT NULL
);
`

// legacyTableCheck is used by the migration to detect a v0 flat layout:
// it finds a table named "blocks", and legacyBlocksTableShape treats that
// table as legacy when no cids table exists alongside it. The table's
// columns are not inspected. The normalized schema above
// reuses the "blocks" name for a different shape, so detection happens
// before coreSchema ever runs.
const legacyTableCheck = `
SELECT sql FROM sqlite_master WHERE type = 'table' AND name = 'blocks'
`

// pragmaInit covers the one pragma that cannot be carried in the DSN:
// page_size only takes effect on a brand new database file, before any
// table is created, so it is harmless to apply it once rather than per
// connection.
const pragmaInit = `PRAGMA page_size = 4096;`

// dsnParams builds the mattn/go-sqlite3 connection-string parameters for
// foreign_keys, synchronous, and journal_mode. These must ride the DSN
// rather than a one-shot PRAGMA exec on connection #0: PRAGMA foreign_keys
// and PRAGMA synchronous are per-connection state in SQLite, so a pragma
// applied only to the connection that happened to serve Open would be
// silently lost the moment database/sql recycles the pooled connection
// (see Store.db.SetConnMaxLifetime) and hands a fresh one to the next
// caller with foreign keys back off.
func dsnParams(memory bool) string {
	journalMode := "WAL"
	if memory {
		journalMode = "MEMORY"
	}
	return "_foreign_keys=on&_synchronous=full&_journal_mode=" + journalMode
}
