// Package sqlitetier persists the durable storage tier in a SQLite database
// so every tab (process) on the machine shares the same values.
package sqlitetier

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jrsteele09/go-resource-sync/tabstorage"
	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

type Tier struct {
	db *sql.DB
}

var _ tabstorage.Tier = (*Tier)(nil)

// Open opens (creating if needed) the database at path. Use ":memory:" for a
// private in-memory database.
func Open(path string) (*Tier, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("sqlitetier.Open mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitetier.Open: %w", err)
	}
	// a single connection keeps ":memory:" databases alive and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitetier.Open busy_timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitetier.Open schema: %w", err)
	}
	return &Tier{db: db}, nil
}

func (t *Tier) Get(key string) (string, bool, error) {
	var value string
	err := t.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("sqlitetier.Get %q: %w", key, err)
	}
	return value, true, nil
}

func (t *Tier) Set(key, value string) error {
	_, err := t.db.Exec(
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, NowTimeFunc().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("sqlitetier.Set %q: %w", key, err)
	}
	return nil
}

func (t *Tier) Delete(key string) error {
	if _, err := t.db.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("sqlitetier.Delete %q: %w", key, err)
	}
	return nil
}

// Keys lists every stored key in lexical order
func (t *Tier) Keys() ([]string, error) {
	rows, err := t.db.Query(`SELECT key FROM kv ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("sqlitetier.Keys: %w", err)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("sqlitetier.Keys scan: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (t *Tier) Close() error {
	return t.db.Close()
}
