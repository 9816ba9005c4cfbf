// Package events fans sync events out to the local event store, the run
// history projection and, optionally, a NATS JetStream subject.
package events

import (
	"context"
	"errors"
	"log/slog"

	"git.home.luguber.info/inful/taxosync/internal/eventstore"
	"git.home.luguber.info/inful/taxosync/internal/logfields"
)

// Emitter receives sync events. Implementations must be safe for concurrent use.
type Emitter interface {
	Emit(ctx context.Context, e eventstore.Event) error
}

// Noop discards every event.
type Noop struct{}

func (Noop) Emit(context.Context, eventstore.Event) error { return nil }

// StoreEmitter appends events to a Store and keeps a projection current.
type StoreEmitter struct {
	store      eventstore.Store
	projection *eventstore.RunHistoryProjection
}

// NewStoreEmitter creates an emitter. projection may be nil.
func NewStoreEmitter(store eventstore.Store, projection *eventstore.RunHistoryProjection) *StoreEmitter {
	return &StoreEmitter{store: store, projection: projection}
}

func (s *StoreEmitter) Emit(ctx context.Context, e eventstore.Event) error {
	if err := s.store.Append(ctx, e); err != nil {
		return err
	}
	if s.projection != nil {
		s.projection.Apply(e)
	}
	return nil
}

// Multi delivers each event to every emitter, joining their errors.
type Multi []Emitter

func (m Multi) Emit(ctx context.Context, e eventstore.Event) error {
	var errs []error
	for _, em := range m {
		if em == nil {
			continue
		}
		if err := em.Emit(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// EmitBestEffort emits e and logs instead of returning a failure. Event
// delivery never changes the outcome of a sync.
func EmitBestEffort(ctx context.Context, em Emitter, e eventstore.Event) {
	if em == nil || e == nil {
		return
	}
	if err := em.Emit(ctx, e); err != nil {
		slog.Warn("Failed to emit sync event",
			logfields.RunID(e.RunID()),
			slog.String("event_type", e.Type()),
			logfields.Error(err))
	}
}
