package syncer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/taxosync/internal/config"
	terrors "git.home.luguber.info/inful/taxosync/internal/errors"
	"git.home.luguber.info/inful/taxosync/internal/eventstore"
	"git.home.luguber.info/inful/taxosync/internal/loader"
	"git.home.luguber.info/inful/taxosync/internal/retry"
	"git.home.luguber.info/inful/taxosync/internal/settings"
	"git.home.luguber.info/inful/taxosync/internal/storage"
	"git.home.luguber.info/inful/taxosync/internal/taxonomy"
)

// remote is a fake taxonomy server. Paths without a handler serve an empty array.
type remote struct {
	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	calls    map[string]*atomic.Int32
	srv      *httptest.Server
}

func newRemote(t *testing.T) *remote {
	t.Helper()
	r := &remote{handlers: map[string]http.HandlerFunc{}, calls: map[string]*atomic.Int32{}}
	r.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		path := strings.TrimPrefix(req.URL.Path, "/")
		r.counter(path).Add(1)
		r.mu.Lock()
		h := r.handlers[path]
		r.mu.Unlock()
		if h == nil {
			_, _ = w.Write([]byte("[]"))
			return
		}
		h(w, req)
	}))
	t.Cleanup(r.srv.Close)
	return r
}

func (r *remote) counter(path string) *atomic.Int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[path]
	if !ok {
		c = &atomic.Int32{}
		r.calls[path] = c
	}
	return c
}

func (r *remote) handle(path string, h http.HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[path] = h
}

func (r *remote) callsTo(path string) int { return int(r.counter(path).Load()) }

func entries(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf(`{"tag":"en:item-%d"}`, i)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func serveJSON(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

// fixedClock returns a settable clock.
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type harness struct {
	remote  *remote
	orch    *Orchestrator
	catalog *taxonomy.Catalog
	prefs   *settings.Preferences
	kv      *settings.MemoryStore
	items   *storage.MemoryStore
	clock   *fixedClock
	events  *captured
}

type captured struct {
	mu     sync.Mutex
	events []eventstore.Event
}

func (c *captured) Emit(_ context.Context, e eventstore.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *captured) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, e := range c.events {
		out[i] = e.Type()
	}
	return out
}

// byRun groups event types by run ID.
func (c *captured) byRun() map[string][]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string][]string)
	for _, e := range c.events {
		out[e.RunID()] = append(out[e.RunID()], e.Type())
	}
	return out
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	r := newRemote(t)
	catalog, err := taxonomy.NewCatalog(r.srv.URL)
	require.NoError(t, err)

	kv := settings.NewMemoryStore()
	prefs := settings.NewPreferences(kv, nil)
	items := storage.NewMemoryStore()
	clock := &fixedClock{now: time.UnixMilli(1_700_000_000_000)}
	ev := &captured{}

	l := loader.New(loader.WithRetryPolicy(retry.NewPolicy(config.RetryBackoffFixed, time.Millisecond, time.Millisecond, 0)))
	orch := New(catalog, l, prefs,
		WithClock(clock.Now),
		WithItemStore(items),
		WithEmitter(ev),
		WithConcurrency(3))
	return &harness{remote: r, orch: orch, catalog: catalog, prefs: prefs, kv: kv, items: items, clock: clock, events: ev}
}

func (h *harness) descriptor(t *testing.T, name string) taxonomy.Descriptor {
	t.Helper()
	d, ok := h.catalog.Lookup(name)
	require.True(t, ok)
	return d
}

func (h *harness) marker(t *testing.T, name string) int64 {
	t.Helper()
	ms, err := h.prefs.LastDownload(t.Context(), h.descriptor(t, name))
	require.NoError(t, err)
	return ms
}

func TestRefreshLoadsLabels(t *testing.T) {
	h := newHarness(t)
	h.remote.handle("labels.json", serveJSON(entries(12)))

	results := h.orch.Refresh(t.Context(), []string{"labels"}, false)
	require.Len(t, results, 1)
	require.NoError(t, results[taxonomy.Labels].Err)
	require.Equal(t, 12, results[taxonomy.Labels].Count)

	require.Equal(t, h.clock.Now().UnixMilli(), h.marker(t, taxonomy.Labels))
	n, err := h.items.Count(t.Context(), taxonomy.Labels)
	require.NoError(t, err)
	require.Equal(t, 12, n)
	require.Equal(t, []string{
		eventstore.TypeRunStarted,
		eventstore.TypeSyncSucceeded,
		eventstore.TypeRunCompleted,
	}, h.events.types())
}

func TestRefreshSkipsDisabledWithoutNetworkCall(t *testing.T) {
	h := newHarness(t)
	h.remote.handle("labels.json", serveJSON(entries(1)))
	require.NoError(t, h.orch.SetEnabled(t.Context(), "labels", false))

	results := h.orch.Refresh(t.Context(), []string{"labels"}, false)
	require.Empty(t, results)
	require.Zero(t, h.remote.callsTo("labels.json"))
	require.Zero(t, h.marker(t, taxonomy.Labels))

	results = h.orch.Refresh(t.Context(), []string{"labels"}, true)
	require.NoError(t, results[taxonomy.Labels].Err)
	require.Equal(t, 1, h.remote.callsTo("labels.json"))
}

func TestMarkerStrictlyIncreases(t *testing.T) {
	h := newHarness(t)
	h.remote.handle("labels.json", serveJSON(entries(2)))

	h.orch.Refresh(t.Context(), []string{"labels"}, false)
	first := h.marker(t, taxonomy.Labels)

	// Same wall-clock instant.
	h.orch.Refresh(t.Context(), []string{"labels"}, false)
	second := h.marker(t, taxonomy.Labels)
	require.Equal(t, first+1, second)

	// Clock moved backwards.
	h.clock.Set(h.clock.Now().Add(-time.Hour))
	h.orch.Refresh(t.Context(), []string{"labels"}, false)
	require.Equal(t, second+1, h.marker(t, taxonomy.Labels))

	h.clock.Set(h.clock.Now().Add(2 * time.Hour))
	h.orch.Refresh(t.Context(), []string{"labels"}, false)
	require.Equal(t, h.clock.Now().UnixMilli(), h.marker(t, taxonomy.Labels))
}

func TestFailureLeavesMarkerUntouched(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.prefs.SetLastDownload(t.Context(), h.descriptor(t, taxonomy.Labels), 500))
	h.remote.handle("labels.json", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	results := h.orch.Refresh(t.Context(), []string{"labels"}, false)
	require.Error(t, results[taxonomy.Labels].Err)
	require.Equal(t, int64(500), h.marker(t, taxonomy.Labels))
	require.Contains(t, h.events.types(), eventstore.TypeSyncFailed)
}

func TestPartialFailureDoesNotAffectSiblings(t *testing.T) {
	h := newHarness(t)
	h.remote.handle("labels.json", serveJSON(entries(12)))
	h.remote.handle("countries.json", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	results := h.orch.Refresh(t.Context(), []string{"labels", "countries"}, false)
	require.Len(t, results, 2)
	require.True(t, results[taxonomy.Labels].OK())
	require.Equal(t, 12, results[taxonomy.Labels].Count)

	err := results[taxonomy.Countries].Err
	require.Error(t, err)
	require.True(t, terrors.IsCategory(err, terrors.CategoryServer))
	require.Equal(t, http.StatusServiceUnavailable, terrors.StatusCode(err))

	require.NotZero(t, h.marker(t, taxonomy.Labels))
	require.Zero(t, h.marker(t, taxonomy.Countries))
}

func TestNotModifiedIsSuccessAndAdvancesMarker(t *testing.T) {
	h := newHarness(t)
	prev := h.clock.Now().Add(-24 * time.Hour).UnixMilli()
	require.NoError(t, h.prefs.SetLastDownload(t.Context(), h.descriptor(t, taxonomy.Labels), prev))
	h.remote.handle("labels.json", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-Modified-Since") != "" {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		_, _ = w.Write([]byte(entries(3)))
	})

	results := h.orch.Refresh(t.Context(), []string{"labels"}, false)
	require.NoError(t, results[taxonomy.Labels].Err)
	require.Zero(t, results[taxonomy.Labels].Count)
	require.Equal(t, h.clock.Now().UnixMilli(), h.marker(t, taxonomy.Labels))
}

func TestStoreFailureIsReportedAndMarkerNotAdvanced(t *testing.T) {
	h := newHarness(t)
	h.remote.handle("labels.json", serveJSON(entries(2)))
	h.items.FailWith = errors.New("disk full")

	results := h.orch.Refresh(t.Context(), []string{"labels"}, false)
	require.True(t, terrors.IsCategory(results[taxonomy.Labels].Err, terrors.CategoryStorage))
	require.Zero(t, h.marker(t, taxonomy.Labels))
}

func TestUnknownNameGetsValidationError(t *testing.T) {
	h := newHarness(t)
	h.remote.handle("labels.json", serveJSON(entries(1)))

	results := h.orch.Refresh(t.Context(), []string{"nope", "LABELS"}, false)
	require.Len(t, results, 2)
	require.True(t, terrors.IsCategory(results["nope"].Err, terrors.CategoryValidation))
	require.True(t, results[taxonomy.Labels].OK())

	for _, types := range h.events.byRun() {
		require.Contains(t, types, eventstore.TypeSyncFailed)
		require.Contains(t, types, eventstore.TypeSyncSucceeded)
	}
}

func TestEmptySelectionRefreshesWholeCatalog(t *testing.T) {
	h := newHarness(t)
	results := h.orch.Refresh(t.Context(), nil, false)
	require.Len(t, results, len(taxonomy.Names()))
	for _, name := range taxonomy.Names() {
		require.True(t, results[name].OK(), name)
	}
}

func TestConcurrentRefreshSharesOneLoad(t *testing.T) {
	h := newHarness(t)
	release := make(chan struct{})
	h.remote.handle("labels.json", func(w http.ResponseWriter, _ *http.Request) {
		<-release
		_, _ = w.Write([]byte(entries(4)))
	})

	const callers = 5
	var wg sync.WaitGroup
	results := make([]map[string]Result, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = h.orch.Refresh(context.Background(), []string{"labels"}, false)
		}()
	}

	require.Eventually(t, func() bool {
		st, err := h.orch.Status(t.Context())
		if err != nil {
			return false
		}
		return st[0].Waiters == callers && st[0].State == StateLoading
	}, 5*time.Second, 5*time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, 1, h.remote.callsTo("labels.json"))
	for _, r := range results {
		require.Equal(t, Result{Count: 4}, r[taxonomy.Labels])
	}

	// Every run records the shared outcome under its own run ID.
	runs := h.events.byRun()
	require.Len(t, runs, callers)
	for runID, types := range runs {
		require.Equal(t, []string{
			eventstore.TypeRunStarted,
			eventstore.TypeSyncSucceeded,
			eventstore.TypeRunCompleted,
		}, types, runID)
	}
}

func TestCancelledCallerReturnsWhileLoadCompletes(t *testing.T) {
	h := newHarness(t)
	started := make(chan struct{})
	release := make(chan struct{})
	h.remote.handle("labels.json", func(w http.ResponseWriter, _ *http.Request) {
		close(started)
		<-release
		_, _ = w.Write([]byte(entries(2)))
	})

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan map[string]Result)
	go func() { done <- h.orch.Refresh(ctx, []string{"labels"}, false) }()

	<-started
	cancel()
	results := <-done
	require.ErrorIs(t, results[taxonomy.Labels].Err, context.Canceled)

	close(release)
	require.Eventually(t, func() bool {
		return h.marker(t, taxonomy.Labels) > 0
	}, 5*time.Second, 5*time.Millisecond)
}

func TestStatusReportsEveryTaxonomy(t *testing.T) {
	h := newHarness(t)
	h.remote.handle("labels.json", serveJSON(entries(3)))
	require.NoError(t, h.orch.SetEnabled(t.Context(), "brands", false))
	h.orch.Refresh(t.Context(), []string{"labels"}, false)

	st, err := h.orch.Status(t.Context())
	require.NoError(t, err)
	require.Len(t, st, len(taxonomy.Names()))

	byName := map[string]DescriptorStatus{}
	for _, s := range st {
		byName[s.Name] = s
	}
	require.Equal(t, 3, byName[taxonomy.Labels].Items)
	require.Equal(t, StateIdle, byName[taxonomy.Labels].State)
	require.NotZero(t, byName[taxonomy.Labels].LastDownloadMS)
	require.False(t, byName[taxonomy.Brands].Enabled)
	require.True(t, byName[taxonomy.Countries].Enabled)
}

func TestEnablementRejectsUnknownNames(t *testing.T) {
	h := newHarness(t)
	_, err := h.orch.IsEnabled(t.Context(), "bogus")
	require.True(t, terrors.IsCategory(err, terrors.CategoryValidation))
	require.Error(t, h.orch.SetEnabled(t.Context(), "bogus", true))

	enabled, err := h.orch.IsEnabled(t.Context(), "Labels")
	require.NoError(t, err)
	require.True(t, enabled)
}
