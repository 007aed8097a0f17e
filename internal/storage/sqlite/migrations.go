package sqlite

import "database/sql"

// schema holds every storage slot in one table. Expiration is stored as Unix
// nanoseconds; a row whose expires_at is not in the future is treated as
// absent and removed by Purge.
const schema = `
CREATE TABLE IF NOT EXISTS slots (
    key TEXT PRIMARY KEY,
    kind INTEGER NOT NULL,
    value BLOB NOT NULL,
    expires_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_slots_expires_at ON slots(expires_at);
CREATE INDEX IF NOT EXISTS idx_slots_kind ON slots(kind);
`

// runMigrations executes the schema setup.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
