// Package eventstore records sync runs as events and projects them into a
// bounded run history.
package eventstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

const (
	runStatusRunning   = "running"
	runStatusCompleted = "completed"
	runStatusPartial   = "partial"
	runStatusFailed    = "failed"
)

// RunSummary is a read model summarizing a completed or in-progress run.
type RunSummary struct {
	RunID       string            `json:"run_id"`
	Status      string            `json:"status"` // "running", "completed", "partial", "failed"
	StartedAt   time.Time         `json:"started_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	Duration    time.Duration     `json:"duration,omitempty"`
	Succeeded   int               `json:"succeeded"`
	Failed      int               `json:"failed"`
	Skipped     int               `json:"skipped"`
	Items       int               `json:"items"`
	Errors      map[string]string `json:"errors,omitempty"` // taxonomy -> message
}

// RunHistoryProjection maintains an in-memory view of run history,
// reconstructed from events stored in the event store.
type RunHistoryProjection struct {
	mu      sync.RWMutex
	store   Store
	runs    map[string]*RunSummary
	history []*RunSummary // newest first
	maxSize int
}

// NewRunHistoryProjection creates a new projection backed by the given store.
func NewRunHistoryProjection(store Store, maxHistorySize int) *RunHistoryProjection {
	if maxHistorySize <= 0 {
		maxHistorySize = 50
	}
	return &RunHistoryProjection{
		store:   store,
		runs:    make(map[string]*RunSummary),
		history: make([]*RunSummary, 0, maxHistorySize),
		maxSize: maxHistorySize,
	}
}

// Rebuild reconstructs the projection from all stored events.
func (p *RunHistoryProjection) Rebuild(ctx context.Context) error {
	events, err := p.store.GetRange(ctx, time.UnixMilli(0), time.Now().Add(time.Hour))
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.runs = make(map[string]*RunSummary)
	p.history = make([]*RunSummary, 0, p.maxSize)
	for _, event := range events {
		p.applyEventLocked(event)
	}
	sort.SliceStable(p.history, func(i, j int) bool {
		return p.history[i].StartedAt.After(p.history[j].StartedAt)
	})
	if len(p.history) > p.maxSize {
		p.history = p.history[:p.maxSize]
	}
	p.pruneRunsLocked()
	return nil
}

// Apply processes a single event as it is emitted.
func (p *RunHistoryProjection) Apply(event Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.applyEventLocked(event)
}

func (p *RunHistoryProjection) applyEventLocked(event Event) {
	runID := event.RunID()
	if runID == "" {
		return
	}

	summary, exists := p.runs[runID]
	if !exists {
		summary = &RunSummary{
			RunID:     runID,
			Status:    runStatusRunning,
			StartedAt: event.Timestamp(),
		}
		p.runs[runID] = summary
	}

	switch event.Type() {
	case TypeRunStarted:
		summary.StartedAt = event.Timestamp()

	case TypeSyncSucceeded, TypeSyncFailed, TypeSyncSkipped:
		outcome, ok := DecodeOutcome(event)
		if !ok {
			return
		}
		switch event.Type() {
		case TypeSyncSucceeded:
			summary.Succeeded++
			summary.Items += outcome.Count
		case TypeSyncFailed:
			summary.Failed++
			if summary.Errors == nil {
				summary.Errors = make(map[string]string)
			}
			summary.Errors[outcome.Taxonomy] = outcome.Error
		case TypeSyncSkipped:
			summary.Skipped++
		}

	case TypeRunCompleted:
		now := event.Timestamp()
		summary.CompletedAt = &now
		summary.Duration = now.Sub(summary.StartedAt)
		var totals RunTotals
		if err := json.Unmarshal(event.Payload(), &totals); err == nil {
			summary.Succeeded = totals.Succeeded
			summary.Failed = totals.Failed
			summary.Skipped = totals.Skipped
			summary.Items = totals.Items
		}
		switch {
		case summary.Failed == 0:
			summary.Status = runStatusCompleted
		case summary.Succeeded > 0:
			summary.Status = runStatusPartial
		default:
			summary.Status = runStatusFailed
		}
		p.addToHistoryLocked(summary)
	}
}

func (p *RunHistoryProjection) addToHistoryLocked(summary *RunSummary) {
	for _, h := range p.history {
		if h.RunID == summary.RunID {
			return
		}
	}
	p.history = append([]*RunSummary{summary}, p.history...)
	if len(p.history) > p.maxSize {
		p.history = p.history[:p.maxSize]
	}
	p.pruneRunsLocked()
}

// pruneRunsLocked drops finished runs that fell out of the bounded history.
// Caller must hold p.mu (write lock).
func (p *RunHistoryProjection) pruneRunsLocked() {
	keep := make(map[string]struct{}, len(p.history))
	for _, h := range p.history {
		keep[h.RunID] = struct{}{}
	}
	for id, summary := range p.runs {
		if summary.Status == runStatusRunning {
			continue
		}
		if _, ok := keep[id]; !ok {
			delete(p.runs, id)
		}
	}
}

// GetHistory returns completed runs, newest first.
func (p *RunHistoryProjection) GetHistory() []RunSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]RunSummary, len(p.history))
	for i, h := range p.history {
		out[i] = *h
	}
	return out
}

// GetRun returns the summary for a specific run.
func (p *RunHistoryProjection) GetRun(runID string) (RunSummary, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	summary, exists := p.runs[runID]
	if !exists {
		return RunSummary{}, false
	}
	return *summary, true
}

// GetLastCompletedRun returns the most recently completed run, if any.
func (p *RunHistoryProjection) GetLastCompletedRun() (RunSummary, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if len(p.history) == 0 {
		return RunSummary{}, false
	}
	return *p.history[0], true
}
