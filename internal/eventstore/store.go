package eventstore

import (
	"context"
	"time"
)

// Store defines the interface for persisting and retrieving sync events.
type Store interface {
	// Append persists e. The event's own timestamp is stored.
	Append(ctx context.Context, e Event) error

	// GetByRunID retrieves all events for a specific run in append order.
	GetByRunID(ctx context.Context, runID string) ([]Event, error)

	// GetRange retrieves events within a time range (inclusive).
	GetRange(ctx context.Context, start, end time.Time) ([]Event, error)

	// Recent returns at most limit events, newest first.
	Recent(ctx context.Context, limit int) ([]Event, error)

	// Close releases the store. A shared *sql.DB is left open.
	Close() error
}
