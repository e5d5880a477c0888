package state

import (
	"database/sql"
)

const currentSchemaVersion = 1

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		);

		CREATE TABLE IF NOT EXISTS pending_scrobbles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			client TEXT NOT NULL,
			source TEXT NOT NULL,
			artist TEXT NOT NULL,
			track TEXT NOT NULL,
			album TEXT,
			album_artist TEXT,
			duration_seconds INTEGER,
			timestamp INTEGER NOT NULL,
			mb_recording_id TEXT,
			attempts INTEGER NOT NULL DEFAULT 0,
			last_error TEXT,
			created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_pending_scrobbles_client ON pending_scrobbles(client);
		CREATE INDEX IF NOT EXISTS idx_pending_scrobbles_created_at ON pending_scrobbles(created_at);
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		INSERT OR IGNORE INTO schema_version (version) VALUES (?)
	`, currentSchemaVersion)
	return err
}
