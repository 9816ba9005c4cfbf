package metrics

import "time"

// ResultLabel enumerates per-taxonomy sync outcomes for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultFailed   ResultLabel = "failed"
	ResultSkipped  ResultLabel = "skipped"
	ResultCanceled ResultLabel = "canceled"
)

// Recorder defines observability hooks for sync and loader metrics.
type Recorder interface {
	ObserveSyncDuration(taxonomy string, d time.Duration)
	IncSyncResult(taxonomy string, result ResultLabel)
	AddItemsLoaded(taxonomy string, n int)
	IncCoalesced(taxonomy string)
	IncLoaderRetry(taxonomy string)
	SetInFlight(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveSyncDuration(string, time.Duration) {}
func (NoopRecorder) IncSyncResult(string, ResultLabel)         {}
func (NoopRecorder) AddItemsLoaded(string, int)                {}
func (NoopRecorder) IncCoalesced(string)                       {}
func (NoopRecorder) IncLoaderRetry(string)                     {}
func (NoopRecorder) SetInFlight(int)                           {}
