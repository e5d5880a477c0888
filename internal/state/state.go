// Package state persists the one thing the core itself explicitly does not
// (§6): a cross-restart retry queue of scrobbles a downstream client
// rejected. Everything else the core needs lives in memory.
package state

import (
	"database/sql"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	_ "modernc.org/sqlite" // SQLite driver
)

const (
	appName    = "scrobbled"
	dbFileName = "scrobbled.db"
)

// Manager owns the retry-queue database connection.
type Manager struct {
	db *sql.DB
}

// Open opens (creating if necessary) the XDG-located state database and
// applies the schema.
func Open() (*Manager, error) {
	dbPath, err := getDBPath()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Manager{db: db}, nil
}

// OpenAt opens a database at an explicit path, bypassing XDG resolution.
// Tests use this to target an in-memory database.
func OpenAt(path string) (*Manager, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Manager{db: db}, nil
}

func (m *Manager) Close() error {
	return m.db.Close()
}

func (m *Manager) DB() *sql.DB {
	return m.db
}

func getDBPath() (string, error) {
	return xdg.DataFile(filepath.Join(appName, dbFileName))
}
