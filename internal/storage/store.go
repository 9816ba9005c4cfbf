// Package storage persists decoded taxonomy items locally with upsert-by-key semantics.
package storage

import (
	"context"
	"time"

	"git.home.luguber.info/inful/taxosync/internal/taxonomy"
)

// ItemStore is the downstream store that receives every successfully loaded batch.
type ItemStore interface {
	// Upsert merges items of one taxonomy by key. A batch is applied atomically.
	Upsert(ctx context.Context, kind string, items []taxonomy.Item) error

	// Count returns the number of stored items for kind.
	Count(ctx context.Context, kind string) (int, error)

	// List returns stored records for kind ordered by key.
	List(ctx context.Context, kind string) ([]Record, error)

	// Close releases any resources held by the store.
	Close() error
}

// Record is one stored item in its serialized form.
type Record struct {
	Kind      string
	Key       string
	Payload   []byte // JSON encoding of the item
	UpdatedAt time.Time
}
