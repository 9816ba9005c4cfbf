package storage

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"git.home.luguber.info/inful/taxosync/internal/taxonomy"
)

// MemoryStore is an in-memory ItemStore for tests and ephemeral runs.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]map[string]Record
	calls   MemoryCalls

	// FailWith, when set, is returned by every Upsert.
	FailWith error
}

// MemoryCalls tracks method invocations for test verification.
type MemoryCalls struct {
	Upsert int
}

// NewMemoryStore creates an empty in-memory item store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]map[string]Record)}
}

func (m *MemoryStore) Upsert(_ context.Context, kind string, items []taxonomy.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls.Upsert++
	if m.FailWith != nil {
		return m.FailWith
	}

	staged := make([]Record, 0, len(items))
	now := time.Now()
	for _, item := range items {
		payload, err := json.Marshal(item)
		if err != nil {
			return err
		}
		staged = append(staged, Record{Kind: kind, Key: item.Key(), Payload: payload, UpdatedAt: now})
	}
	bucket, ok := m.records[kind]
	if !ok {
		bucket = make(map[string]Record)
		m.records[kind] = bucket
	}
	for _, r := range staged {
		bucket[r.Key] = r
	}
	return nil
}

func (m *MemoryStore) Count(_ context.Context, kind string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records[kind]), nil
}

func (m *MemoryStore) List(_ context.Context, kind string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, 0, len(m.records[kind]))
	for _, r := range m.records[kind] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }

// Calls returns a snapshot of the invocation counters.
func (m *MemoryStore) Calls() MemoryCalls {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls
}
