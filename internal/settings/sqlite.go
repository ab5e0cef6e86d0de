package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS tcards_settings (
	scope      TEXT PRIMARY KEY,
	blob       TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// SQLiteStore keeps one JSON blob per scope in a SQLite table. It may share
// the clockmail database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens path and creates the settings table.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open settings db %s: %w", path, err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create settings table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Load returns the settings saved for scope.
func (s *SQLiteStore) Load(ctx context.Context, scope string) (Settings, error) {
	var blob string
	err := s.db.QueryRowContext(ctx, `SELECT blob FROM tcards_settings WHERE scope = ?`, scope).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return Default(), nil
	}
	if err != nil {
		return Default(), fmt.Errorf("load settings %s: %w", scope, err)
	}
	var out Settings
	if err := json.Unmarshal([]byte(blob), &out); err != nil {
		return Default(), fmt.Errorf("decode settings %s: %w", scope, err)
	}
	return out, nil
}

// Save upserts the blob for scope.
func (s *SQLiteStore) Save(ctx context.Context, scope string, v Settings) error {
	blob, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO tcards_settings (scope, blob, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(scope) DO UPDATE SET blob = excluded.blob, updated_at = excluded.updated_at`,
		scope, string(blob))
	if err != nil {
		return fmt.Errorf("save settings %s: %w", scope, err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
