package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"git.home.luguber.info/inful/taxosync/internal/taxonomy"
)

// OpenDB opens a SQLite database shared by the local stores.
// Use ":memory:" for an in-memory database, or a file path for persistent storage.
// The pool is capped at one connection: SQLite serializes writers anyway and an
// in-memory database only exists on the connection that created it.
func OpenDB(dbPath string) (*sql.DB, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		dsn = "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}
	return db, nil
}

// SQLiteStore implements ItemStore using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	mu  sync.RWMutex
	now func() time.Time
}

// NewSQLiteStore creates the items table on db if needed.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	store := &SQLiteStore{db: db, now: time.Now}
	if err := store.initialize(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS taxonomy_items (
		kind TEXT NOT NULL,
		item_key TEXT NOT NULL,
		payload BLOB NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (kind, item_key)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Upsert merges items in a single transaction.
func (s *SQLiteStore) Upsert(ctx context.Context, kind string, items []taxonomy.Item) error {
	if len(items) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO taxonomy_items (kind, item_key, payload, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(kind, item_key) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	updatedAt := s.now().UnixMilli()
	for _, item := range items {
		payload, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("marshal item %s: %w", item.Key(), err)
		}
		if _, err := stmt.ExecContext(ctx, kind, item.Key(), payload, updatedAt); err != nil {
			return fmt.Errorf("upsert item %s: %w", item.Key(), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

// Count returns the number of stored items for kind.
func (s *SQLiteStore) Count(ctx context.Context, kind string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM taxonomy_items WHERE kind = ?", kind).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return n, nil
}

// List returns stored records for kind ordered by key.
func (s *SQLiteStore) List(ctx context.Context, kind string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT kind, item_key, payload, updated_at FROM taxonomy_items WHERE kind = ? ORDER BY item_key", kind)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var updatedAt int64
		if err := rows.Scan(&r.Kind, &r.Key, &r.Payload, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		r.UpdatedAt = time.UnixMilli(updatedAt)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return records, nil
}

// Close is a no-op; the database handle is owned by the caller of OpenDB.
func (s *SQLiteStore) Close() error { return nil }
