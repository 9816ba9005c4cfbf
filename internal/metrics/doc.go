// Package metrics provides observability hooks for taxonomy synchronization.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so no nil checks are needed at call sites. The daemon swaps in
// a PrometheusRecorder and exposes it through HTTPHandler.
package metrics
