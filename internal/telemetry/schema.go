package telemetry

import (
	"database/sql"

	"codeberg.org/mutker/tdpctl/internal/errors"
)

const createTablesSQL = `
    CREATE TABLE IF NOT EXISTS observations (
        id            INTEGER PRIMARY KEY AUTOINCREMENT,
        timestamp     INTEGER NOT NULL,
        source        TEXT NOT NULL,
        capacity      INTEGER,
        mode          TEXT NOT NULL,
        phase         TEXT NOT NULL,
        candidate     TEXT,
        pending_count INTEGER NOT NULL,
        profile       TEXT,
        switched      INTEGER NOT NULL CHECK (switched IN (0, 1)),
        error         TEXT
    );
    CREATE INDEX IF NOT EXISTS idx_observations_timestamp
        ON observations (timestamp);`

// initSchema initializes the database schema for observation data
func initSchema(db *sql.DB) error {
	if _, err := db.Exec(createTablesSQL); err != nil {
		return errors.New().Wrap(ErrSchemaInit, err)
	}

	return nil
}
