package client

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DiskCache is the client's persistent local cache: one body per fixed key,
// written after every store mutation and read once at store initialization
// so the UI can render stale data while the first refetch runs.
type DiskCache struct {
	db *sql.DB
}

func OpenDiskCache(path string) (*DiskCache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS snapshots (
		key TEXT PRIMARY KEY,
		body BLOB NOT NULL,
		saved_at TEXT NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create snapshots table: %w", err)
	}

	return &DiskCache{db: db}, nil
}

func (c *DiskCache) Save(key string, body []byte) error {
	_, err := c.db.Exec(
		`INSERT INTO snapshots (key, body, saved_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET body = excluded.body, saved_at = excluded.saved_at`,
		key, body, time.Now().UTC().Format(time.RFC3339Nano))

	return err
}

// Load returns the stored body for key. A missing row is a cache miss, not
// an error.
func (c *DiskCache) Load(key string) ([]byte, bool, error) {
	var body []byte

	err := c.db.QueryRow(`SELECT body FROM snapshots WHERE key = ?`, key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	return body, true, nil
}

func (c *DiskCache) Close() error {
	return c.db.Close()
}
