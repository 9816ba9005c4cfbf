package history

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Store persists the scan history in SQLite.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	now func() time.Time
}

// NewStore creates the history table on db if needed.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db, now: time.Now}
	if _, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS scan_history (
		barcode TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		brands TEXT NOT NULL DEFAULT '',
		image_url TEXT NOT NULL DEFAULT '',
		quantity TEXT NOT NULL DEFAULT '',
		nutrition_grade TEXT NOT NULL DEFAULT '',
		ecoscore TEXT NOT NULL DEFAULT '',
		nova_group TEXT NOT NULL DEFAULT '',
		last_seen_ms INTEGER NOT NULL
	);
	`); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

// Add records a scan. An existing entry is replaced and its last-seen time
// bumped; a zero LastSeen means now.
func (s *Store) Add(ctx context.Context, p Product) error {
	if p.Barcode == "" {
		return fmt.Errorf("barcode is required")
	}
	if p.LastSeen.IsZero() {
		p.LastSeen = s.now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scan_history (barcode, title, brands, image_url, quantity, nutrition_grade, ecoscore, nova_group, last_seen_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (barcode) DO UPDATE SET
			title = excluded.title,
			brands = excluded.brands,
			image_url = excluded.image_url,
			quantity = excluded.quantity,
			nutrition_grade = excluded.nutrition_grade,
			ecoscore = excluded.ecoscore,
			nova_group = excluded.nova_group,
			last_seen_ms = excluded.last_seen_ms`,
		p.Barcode, p.Title, p.Brands, p.ImageURL, p.Quantity, p.NutritionGrade, p.Ecoscore, p.NovaGroup, p.LastSeen.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert history product: %w", err)
	}
	return nil
}

// update rewrites the product details without touching last-seen.
func (s *Store) update(ctx context.Context, tx *sql.Tx, p Product) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE scan_history SET title = ?, brands = ?, image_url = ?, quantity = ?,
			nutrition_grade = ?, ecoscore = ?, nova_group = ?
		WHERE barcode = ?`,
		p.Title, p.Brands, p.ImageURL, p.Quantity, p.NutritionGrade, p.Ecoscore, p.NovaGroup, p.Barcode)
	return err
}

// List returns the history ordered by by.
func (s *Store) List(ctx context.Context, by SortType) ([]Product, error) {
	s.mu.RLock()
	products, err := listRows(ctx, s.db)
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	Sort(products, by)
	return products, nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// listRows returns products in insertion order. Caller holds s.mu.
func listRows(ctx context.Context, q querier) ([]Product, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT barcode, title, brands, image_url, quantity, nutrition_grade, ecoscore, nova_group, last_seen_ms
		FROM scan_history ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		var lastSeen int64
		if err := rows.Scan(&p.Barcode, &p.Title, &p.Brands, &p.ImageURL, &p.Quantity,
			&p.NutritionGrade, &p.Ecoscore, &p.NovaGroup, &lastSeen); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		p.LastSeen = time.UnixMilli(lastSeen)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// Remove deletes one entry. Removing an absent barcode is not an error.
func (s *Store) Remove(ctx context.Context, barcode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, "DELETE FROM scan_history WHERE barcode = ?", barcode); err != nil {
		return fmt.Errorf("delete history product: %w", err)
	}
	return nil
}

// Clear deletes the whole history.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, "DELETE FROM scan_history"); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}
