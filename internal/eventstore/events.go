package eventstore

import (
	"encoding/json"
	"time"

	terrors "git.home.luguber.info/inful/taxosync/internal/errors"
)

// Event type names.
const (
	TypeRunStarted    = "RunStarted"
	TypeSyncSucceeded = "SyncSucceeded"
	TypeSyncFailed    = "SyncFailed"
	TypeSyncSkipped   = "SyncSkipped"
	TypeRunCompleted  = "RunCompleted"
)

// SyncOutcome is the payload shared by the per-taxonomy events.
type SyncOutcome struct {
	Taxonomy string `json:"taxonomy"`
	Count    int    `json:"count"`
	MarkerMS int64  `json:"marker_ms,omitempty"`
	Error    string `json:"error,omitempty"`
	Category string `json:"category,omitempty"`
}

// RunTotals is the payload of RunCompleted.
type RunTotals struct {
	Succeeded int   `json:"succeeded"`
	Failed    int   `json:"failed"`
	Skipped   int   `json:"skipped"`
	Items     int   `json:"items"`
	Duration  int64 `json:"duration_ms"`
}

func newEvent(runID, eventType string, at time.Time, payload any, metadata map[string]string) (*BaseEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, terrors.InternalError("marshal "+eventType+" payload", err).WithContext("run_id", runID)
	}
	return &BaseEvent{
		EventRunID:     runID,
		EventType:      eventType,
		EventTimestamp: at,
		EventPayload:   data,
		EventMetadata:  metadata,
	}, nil
}

// NewRunStarted records the start of a refresh over selection.
func NewRunStarted(runID string, selection []string, force bool, at time.Time) (*BaseEvent, error) {
	return newEvent(runID, TypeRunStarted, at, map[string]any{
		"selection": selection,
		"force":     force,
	}, nil)
}

// NewSyncSucceeded records a successful load of one taxonomy.
func NewSyncSucceeded(runID, taxonomy string, count int, markerMS int64, at time.Time) (*BaseEvent, error) {
	return newEvent(runID, TypeSyncSucceeded, at, SyncOutcome{
		Taxonomy: taxonomy,
		Count:    count,
		MarkerMS: markerMS,
	}, nil)
}

// NewSyncFailed records a failed load. The error category is kept for filtering.
func NewSyncFailed(runID, taxonomy string, cause error, at time.Time) (*BaseEvent, error) {
	outcome := SyncOutcome{Taxonomy: taxonomy}
	if cause != nil {
		outcome.Error = cause.Error()
		outcome.Category = string(terrors.GetCategory(cause))
	}
	return newEvent(runID, TypeSyncFailed, at, outcome, nil)
}

// NewSyncSkipped records a taxonomy skipped because downloads are disabled.
func NewSyncSkipped(runID, taxonomy string, at time.Time) (*BaseEvent, error) {
	return newEvent(runID, TypeSyncSkipped, at, SyncOutcome{Taxonomy: taxonomy}, nil)
}

// NewRunCompleted records the end of a refresh.
func NewRunCompleted(runID string, totals RunTotals, at time.Time) (*BaseEvent, error) {
	return newEvent(runID, TypeRunCompleted, at, totals, nil)
}

// DecodeOutcome extracts the per-taxonomy payload of a Sync* event.
func DecodeOutcome(e Event) (SyncOutcome, bool) {
	switch e.Type() {
	case TypeSyncSucceeded, TypeSyncFailed, TypeSyncSkipped:
	default:
		return SyncOutcome{}, false
	}
	var out SyncOutcome
	if err := json.Unmarshal(e.Payload(), &out); err != nil {
		return SyncOutcome{}, false
	}
	return out, true
}
