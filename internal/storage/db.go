// ABOUTME: SQLite-backed Repository: connection setup, schema, and column codecs.
// ABOUTME: Uses modernc.org/sqlite (pure Go, no CGO required); times are stored as epoch milliseconds.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DBFileName is the SQLite file inside the data directory.
const DBFileName = "routines.db"

// DB is the SQLite Repository.
type DB struct {
	db     *sql.DB
	dbPath string
}

var _ Repository = (*DB)(nil)

// setup runs on every open. WAL lets the sync drain write while commands read.
var setup = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA busy_timeout = 5000",
	"PRAGMA synchronous = NORMAL",

	`CREATE TABLE IF NOT EXISTS routines (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		exercises TEXT NOT NULL DEFAULT '[]',
		last_modified INTEGER NOT NULL,
		synced INTEGER NOT NULL DEFAULT 0,
		local_only INTEGER NOT NULL DEFAULT 0,
		version INTEGER NOT NULL DEFAULT 1
	)`,
	`CREATE TABLE IF NOT EXISTS media_cache (
		id TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		type TEXT NOT NULL,
		blob BLOB NOT NULL,
		timestamp INTEGER NOT NULL,
		size INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sync_queue (
		id TEXT PRIMARY KEY,
		operation TEXT NOT NULL,
		entity TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		data TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		last_attempt INTEGER
	)`,

	"CREATE INDEX IF NOT EXISTS idx_routines_name ON routines(name)",
	"CREATE INDEX IF NOT EXISTS idx_routines_last_modified ON routines(last_modified DESC)",
	"CREATE INDEX IF NOT EXISTS idx_routines_synced ON routines(synced)",
	"CREATE INDEX IF NOT EXISTS idx_media_cache_type ON media_cache(type)",
	"CREATE INDEX IF NOT EXISTS idx_media_cache_timestamp ON media_cache(timestamp)",
	"CREATE INDEX IF NOT EXISTS idx_sync_queue_timestamp ON sync_queue(timestamp)",
	"CREATE INDEX IF NOT EXISTS idx_sync_queue_entity ON sync_queue(entity)",
	"CREATE INDEX IF NOT EXISTS idx_sync_queue_entity_id ON sync_queue(entity_id)",
}

// Open opens or creates the routine database at dbPath, owner-readable only.
func Open(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	d := &DB{db: sqlDB, dbPath: dbPath}

	for _, stmt := range setup {
		if _, err := sqlDB.Exec(stmt); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("prepare %s: %w", dbPath, err)
		}
	}
	// The file exists once the first statement ran.
	if err := os.Chmod(dbPath, 0600); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("set database permissions: %w", err)
	}
	return d, nil
}

// DataDir returns $XDG_DATA_HOME/routines, falling back to ~/.local/share/routines.
func DataDir() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, _ := os.UserHomeDir()
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "routines")
}

// Path returns the database file path.
func (d *DB) Path() string {
	return d.dbPath
}

func (d *DB) Close() error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

// Routine and queue timestamps round-trip at millisecond precision.
func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms) }

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
