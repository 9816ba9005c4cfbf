package events

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/taxosync/internal/eventstore"
	"git.home.luguber.info/inful/taxosync/internal/storage"
)

type captureEmitter struct {
	mu     sync.Mutex
	events []eventstore.Event
	err    error
}

func (c *captureEmitter) Emit(_ context.Context, e eventstore.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return c.err
}

func sampleEvent(t *testing.T) eventstore.Event {
	t.Helper()
	e, err := eventstore.NewSyncSucceeded("run-1", "labels", 3, 1000, time.UnixMilli(1000))
	require.NoError(t, err)
	return e
}

func TestStoreEmitterAppendsAndProjects(t *testing.T) {
	db, err := storage.OpenDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	store, err := eventstore.NewSQLiteStore(db)
	require.NoError(t, err)
	projection := eventstore.NewRunHistoryProjection(store, 5)

	em := NewStoreEmitter(store, projection)
	require.NoError(t, em.Emit(t.Context(), sampleEvent(t)))

	stored, err := store.GetByRunID(t.Context(), "run-1")
	require.NoError(t, err)
	require.Len(t, stored, 1)

	run, ok := projection.GetRun("run-1")
	require.True(t, ok)
	require.Equal(t, 1, run.Succeeded)
	require.Equal(t, 3, run.Items)
}

func TestMultiDeliversToAllAndJoinsErrors(t *testing.T) {
	ok := &captureEmitter{}
	failing := &captureEmitter{err: errors.New("down")}

	err := Multi{ok, nil, failing}.Emit(t.Context(), sampleEvent(t))
	require.ErrorContains(t, err, "down")
	require.Len(t, ok.events, 1)
	require.Len(t, failing.events, 1)
}

func TestEmitBestEffortSwallowsErrors(t *testing.T) {
	failing := &captureEmitter{err: errors.New("down")}
	EmitBestEffort(t.Context(), failing, sampleEvent(t))
	EmitBestEffort(t.Context(), nil, sampleEvent(t))
	require.Len(t, failing.events, 1)
}

func TestNATSPublisher(t *testing.T) {
	url := os.Getenv("TAXOSYNC_NATS_URL")
	if url == "" {
		t.Skip("TAXOSYNC_NATS_URL not set")
	}
	p, err := NewNATSPublisher(t.Context(), url, "taxosync.test.events")
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	require.NoError(t, p.Emit(t.Context(), sampleEvent(t)))
}

func TestEnvelopeEmbedsPayload(t *testing.T) {
	e := sampleEvent(t)
	data, err := json.Marshal(Envelope{RunID: e.RunID(), Type: e.Type(), Payload: e.Payload()})
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, "labels", decoded["payload"].(map[string]any)["taxonomy"])
}
