// Package syncer refreshes any subset of the taxonomy catalog, one
// authoritative load per taxonomy at a time.
//
// Distinct taxonomies load concurrently up to a configured limit. Concurrent
// refreshes of the same taxonomy share a single load and its result. A
// failure only affects its own taxonomy: the staleness marker of a failed
// load is never touched and siblings continue.
package syncer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	terrors "git.home.luguber.info/inful/taxosync/internal/errors"
	"git.home.luguber.info/inful/taxosync/internal/events"
	"git.home.luguber.info/inful/taxosync/internal/eventstore"
	"git.home.luguber.info/inful/taxosync/internal/logfields"
	"git.home.luguber.info/inful/taxosync/internal/metrics"
	"git.home.luguber.info/inful/taxosync/internal/observability"
	"git.home.luguber.info/inful/taxosync/internal/settings"
	"git.home.luguber.info/inful/taxosync/internal/storage"
	"git.home.luguber.info/inful/taxosync/internal/taxonomy"
)

// Loader fetches one taxonomy. *loader.Loader satisfies it.
type Loader interface {
	Load(ctx context.Context, d taxonomy.Descriptor, sinceEpochMillis int64) ([]taxonomy.Item, error)
}

// Result is the outcome of one taxonomy in a refresh.
type Result struct {
	Count int
	Err   error
}

// OK reports whether the load succeeded.
func (r Result) OK() bool { return r.Err == nil }

// State is the lifecycle of one taxonomy: Idle -> Loading -> Idle.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
)

// DescriptorStatus is a point-in-time view of one taxonomy.
type DescriptorStatus struct {
	Name           string `json:"name"`
	Enabled        bool   `json:"enabled"`
	LastDownloadMS int64  `json:"last_download_ms"`
	State          State  `json:"state"`
	Waiters        int    `json:"waiters"`
	Items          int    `json:"items"`
}

// Orchestrator coordinates refreshes. It is safe for concurrent use.
type Orchestrator struct {
	catalog     *taxonomy.Catalog
	loader      Loader
	prefs       *settings.Preferences
	items       storage.ItemStore
	emitter     events.Emitter
	recorder    metrics.Recorder
	now         func() time.Time
	concurrency int

	group singleflight.Group

	mu       sync.Mutex
	loading  map[string]bool
	waiters  map[string]int
	inFlight int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the wall clock used for staleness markers.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithConcurrency bounds how many taxonomies load in parallel.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithItemStore sets the downstream store that receives loaded items.
func WithItemStore(s storage.ItemStore) Option {
	return func(o *Orchestrator) { o.items = s }
}

// WithEmitter sets the sync event sink.
func WithEmitter(e events.Emitter) Option {
	return func(o *Orchestrator) {
		if e != nil {
			o.emitter = e
		}
	}
}

// WithRecorder injects a metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.recorder = r
		}
	}
}

// New creates an Orchestrator over catalog.
func New(catalog *taxonomy.Catalog, loader Loader, prefs *settings.Preferences, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		catalog:     catalog,
		loader:      loader,
		prefs:       prefs,
		emitter:     events.Noop{},
		recorder:    metrics.NoopRecorder{},
		now:         time.Now,
		concurrency: 4,
		loading:     make(map[string]bool),
		waiters:     make(map[string]int),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Refresh loads every taxonomy in selection, or the whole catalog when
// selection is empty. Disabled taxonomies are skipped (and absent from the
// result) unless force is set. Unknown names get a validation error entry.
//
// When ctx is cancelled Refresh returns promptly; taxonomies still pending
// report ctx.Err() while loads already in flight finish in the background.
func (o *Orchestrator) Refresh(ctx context.Context, selection []string, force bool) map[string]Result {
	runID := uuid.NewString()
	ctx = observability.WithRunID(ctx, runID)
	started := o.now()

	results := make(map[string]Result)
	descriptors := o.resolve(selection, results)

	slog.Info("Taxonomy refresh started",
		logfields.RunID(runID),
		slog.Int("taxonomies", len(descriptors)),
		slog.Bool("force", force))
	names := make([]string, len(descriptors))
	for i, d := range descriptors {
		names[i] = d.Name
	}
	o.emit(ctx, runID, func(at time.Time) (*eventstore.BaseEvent, error) {
		return eventstore.NewRunStarted(runID, names, force, at)
	})
	for name, res := range results {
		o.report(ctx, runID, name, res, 0)
	}

	var resMu sync.Mutex
	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for _, d := range descriptors {
		g.Go(func() error {
			res, reported := o.refreshOne(ctx, runID, d, force)
			if reported {
				resMu.Lock()
				results[d.Name] = res
				resMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	var totals eventstore.RunTotals
	for _, d := range descriptors {
		if _, ok := results[d.Name]; !ok {
			totals.Skipped++
		}
	}
	for _, res := range results {
		if res.OK() {
			totals.Succeeded++
			totals.Items += res.Count
		} else {
			totals.Failed++
		}
	}
	totals.Duration = o.now().Sub(started).Milliseconds()
	o.emit(ctx, runID, func(at time.Time) (*eventstore.BaseEvent, error) {
		return eventstore.NewRunCompleted(runID, totals, at)
	})

	slog.Info("Taxonomy refresh finished",
		logfields.RunID(runID),
		slog.Int("succeeded", totals.Succeeded),
		slog.Int("failed", totals.Failed),
		slog.Int("skipped", totals.Skipped),
		logfields.Items(totals.Items))
	return results
}

// resolve maps selection onto descriptors, recording unknown names in results.
func (o *Orchestrator) resolve(selection []string, results map[string]Result) []taxonomy.Descriptor {
	if len(selection) == 0 {
		return o.catalog.All()
	}
	seen := make(map[string]bool, len(selection))
	out := make([]taxonomy.Descriptor, 0, len(selection))
	for _, name := range selection {
		d, ok := o.catalog.Lookup(name)
		if !ok {
			results[name] = Result{Err: terrors.UnknownTaxonomy(name)}
			continue
		}
		if seen[d.Name] {
			continue
		}
		seen[d.Name] = true
		out = append(out, d)
	}
	return out
}

// refreshOne returns the caller's view of one taxonomy and records it under
// runID, also when the load was shared with another run. reported is false
// when the taxonomy was skipped.
func (o *Orchestrator) refreshOne(ctx context.Context, runID string, d taxonomy.Descriptor, force bool) (res Result, reported bool) {
	var marker int64
	defer func() {
		if reported {
			o.report(ctx, runID, d.Name, res, marker)
		}
	}()

	if err := ctx.Err(); err != nil {
		o.recorder.IncSyncResult(d.Name, metrics.ResultCanceled)
		return Result{Err: err}, true
	}

	if !force {
		enabled, err := o.prefs.IsEnabled(ctx, d)
		if err != nil {
			return Result{Err: terrors.StorageError("read enablement", err).WithContext("taxonomy", d.Name)}, true
		}
		if !enabled {
			slog.Debug("Skipping disabled taxonomy", logfields.RunID(runID), logfields.Taxonomy(d.Name))
			o.recorder.IncSyncResult(d.Name, metrics.ResultSkipped)
			o.emit(ctx, runID, func(at time.Time) (*eventstore.BaseEvent, error) {
				return eventstore.NewSyncSkipped(runID, d.Name, at)
			})
			return Result{}, false
		}
	}

	// The shared load runs detached from any one caller so that a caller
	// going away does not abort work other callers are waiting on.
	detached := context.WithoutCancel(ctx)
	o.mu.Lock()
	ch := o.group.DoChan(d.Name, func() (any, error) {
		return o.load(observability.WithTaxonomy(detached, d.Name), runID, d)
	})
	o.waiters[d.Name]++
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.waiters[d.Name]--
		o.mu.Unlock()
	}()

	select {
	case r := <-ch:
		if r.Shared {
			o.recorder.IncCoalesced(d.Name)
		}
		if r.Err != nil {
			return Result{Err: r.Err}, true
		}
		out := r.Val.(loaded)
		marker = out.marker
		return Result{Count: out.count}, true
	case <-ctx.Done():
		o.recorder.IncSyncResult(d.Name, metrics.ResultCanceled)
		return Result{Err: ctx.Err()}, true
	}
}

// loaded is the value shared by every caller of one load.
type loaded struct {
	count  int
	marker int64
}

// load performs the authoritative load of d. It runs at most once at a time
// per taxonomy.
func (o *Orchestrator) load(ctx context.Context, runID string, d taxonomy.Descriptor) (loaded, error) {
	o.setLoading(d.Name, true)
	defer o.setLoading(d.Name, false)

	start := time.Now()
	since, err := o.prefs.LastDownload(ctx, d)
	if err != nil {
		return loaded{}, o.fail(runID, d, start, terrors.StorageError("read staleness marker", err))
	}

	items, err := o.loader.Load(ctx, d, since)
	if err != nil {
		return loaded{}, o.fail(runID, d, start, err)
	}

	if o.items != nil {
		if err := o.items.Upsert(ctx, d.Name, items); err != nil {
			return loaded{}, o.fail(runID, d, start, terrors.StorageError("upsert items", err))
		}
	}

	marker := o.now().UnixMilli()
	if marker <= since {
		marker = since + 1
	}
	if err := o.prefs.SetLastDownload(ctx, d, marker); err != nil {
		return loaded{}, o.fail(runID, d, start, terrors.StorageError("write staleness marker", err))
	}

	elapsed := time.Since(start)
	o.recorder.ObserveSyncDuration(d.Name, elapsed)
	o.recorder.IncSyncResult(d.Name, metrics.ResultSuccess)
	o.recorder.AddItemsLoaded(d.Name, len(items))
	slog.Info("Taxonomy loaded",
		logfields.RunID(runID),
		logfields.Taxonomy(d.Name),
		logfields.Items(len(items)),
		logfields.SinceMS(since),
		logfields.MarkerMS(marker),
		logfields.DurationMS(float64(elapsed.Milliseconds())))
	return loaded{count: len(items), marker: marker}, nil
}

func (o *Orchestrator) fail(runID string, d taxonomy.Descriptor, start time.Time, err error) error {
	o.recorder.ObserveSyncDuration(d.Name, time.Since(start))
	o.recorder.IncSyncResult(d.Name, metrics.ResultFailed)
	slog.Warn("Taxonomy load failed",
		logfields.RunID(runID),
		logfields.Taxonomy(d.Name),
		slog.String("category", string(terrors.GetCategory(err))),
		logfields.Error(err))
	return err
}

// report emits the outcome of one taxonomy for runID.
func (o *Orchestrator) report(ctx context.Context, runID, name string, res Result, marker int64) {
	o.emit(ctx, runID, func(at time.Time) (*eventstore.BaseEvent, error) {
		if res.OK() {
			return eventstore.NewSyncSucceeded(runID, name, res.Count, marker, at)
		}
		return eventstore.NewSyncFailed(runID, name, res.Err, at)
	})
}

func (o *Orchestrator) setLoading(name string, loading bool) {
	o.mu.Lock()
	o.loading[name] = loading
	if loading {
		o.inFlight++
	} else {
		o.inFlight--
	}
	n := o.inFlight
	o.mu.Unlock()
	o.recorder.SetInFlight(n)
}

func (o *Orchestrator) emit(ctx context.Context, runID string, build func(at time.Time) (*eventstore.BaseEvent, error)) {
	e, err := build(o.now())
	if err != nil {
		slog.Warn("Failed to build sync event", logfields.RunID(runID), logfields.Error(err))
		return
	}
	events.EmitBestEffort(context.WithoutCancel(ctx), o.emitter, e)
}

// IsEnabled reports whether downloads are enabled for the named taxonomy.
func (o *Orchestrator) IsEnabled(ctx context.Context, name string) (bool, error) {
	d, ok := o.catalog.Lookup(name)
	if !ok {
		return false, terrors.UnknownTaxonomy(name)
	}
	enabled, err := o.prefs.IsEnabled(ctx, d)
	if err != nil {
		return false, terrors.StorageError("read enablement", err)
	}
	return enabled, nil
}

// SetEnabled persists the enablement flag for the named taxonomy.
func (o *Orchestrator) SetEnabled(ctx context.Context, name string, enabled bool) error {
	d, ok := o.catalog.Lookup(name)
	if !ok {
		return terrors.UnknownTaxonomy(name)
	}
	if err := o.prefs.SetEnabled(ctx, d, enabled); err != nil {
		return terrors.StorageError("write enablement", err)
	}
	slog.Info("Taxonomy enablement changed", logfields.Taxonomy(d.Name), slog.Bool("enabled", enabled))
	return nil
}

// Status reports every taxonomy in catalog order.
func (o *Orchestrator) Status(ctx context.Context) ([]DescriptorStatus, error) {
	all := o.catalog.All()
	out := make([]DescriptorStatus, 0, len(all))
	for _, d := range all {
		enabled, err := o.prefs.IsEnabled(ctx, d)
		if err != nil {
			return nil, terrors.StorageError("read enablement", err)
		}
		last, err := o.prefs.LastDownload(ctx, d)
		if err != nil {
			return nil, terrors.StorageError("read staleness marker", err)
		}
		st := DescriptorStatus{Name: d.Name, Enabled: enabled, LastDownloadMS: last, State: StateIdle}

		o.mu.Lock()
		if o.loading[d.Name] {
			st.State = StateLoading
		}
		st.Waiters = o.waiters[d.Name]
		o.mu.Unlock()

		if o.items != nil {
			n, err := o.items.Count(ctx, d.Name)
			if err != nil {
				return nil, terrors.StorageError("count items", err)
			}
			st.Items = n
		}
		out = append(out, st)
	}
	return out, nil
}
