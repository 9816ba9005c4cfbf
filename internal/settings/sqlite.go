package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
)

// SQLiteStore implements Store on a SQLite database opened with storage.OpenDB.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore creates the preferences table on db if needed.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS preferences (
		pref_key TEXT PRIMARY KEY,
		pref_value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);`)
	if err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.db.QueryRowContext(ctx, "SELECT pref_value FROM preferences WHERE pref_key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query preference %s: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO preferences (pref_key, pref_value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(pref_key) DO UPDATE SET pref_value = excluded.pref_value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("store preference %s: %w", key, err)
	}
	return nil
}

// Close is a no-op; the database handle is owned by the caller of OpenDB.
func (s *SQLiteStore) Close() error { return nil }
