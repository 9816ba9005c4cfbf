package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	terrors "git.home.luguber.info/inful/taxosync/internal/errors"
)

// recorder collects lifecycle calls across services in order.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, s)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func serviceInfo(t *testing.T, m *Manager, name string) ServiceInfo {
	t.Helper()
	for _, info := range m.Services() {
		if info.Name == name {
			return info
		}
	}
	t.Fatalf("service %s not registered", name)
	return ServiceInfo{}
}

func mockService(rec *recorder, name string, deps ...string) *FuncService {
	return &FuncService{
		ServiceName: name,
		DependsOn:   deps,
		StartFunc:   func(context.Context) error { rec.add("start:" + name); return nil },
		StopFunc:    func(context.Context) error { rec.add("stop:" + name); return nil },
	}
}

func TestStartAllRespectsDependencies(t *testing.T) {
	rec := &recorder{}
	m := NewManager()
	require.NoError(t, m.Register(mockService(rec, "http", "scheduler")))
	require.NoError(t, m.Register(mockService(rec, "scheduler", "store")))
	require.NoError(t, m.Register(mockService(rec, "store")))
	require.NoError(t, m.Register(mockService(rec, "watcher")))

	require.NoError(t, m.StartAll(t.Context()))
	require.Equal(t, []string{"start:store", "start:scheduler", "start:http", "start:watcher"}, rec.list())

	require.NoError(t, m.StopAll(t.Context()))
	require.Equal(t, []string{"stop:watcher", "stop:http", "stop:scheduler", "stop:store"}, rec.list()[4:])

	info := serviceInfo(t, m, "http")
	require.Equal(t, StatusStopped, info.Status)
	require.NotNil(t, info.StartedAt)
	require.NotNil(t, info.StoppedAt)
}

func TestRegisterRejectsDuplicatesAndEmptyNames(t *testing.T) {
	m := NewManager()
	rec := &recorder{}
	require.NoError(t, m.Register(mockService(rec, "a")))

	err := m.Register(mockService(rec, "a"))
	require.True(t, terrors.IsCategory(err, terrors.CategoryValidation))
	require.Error(t, m.Register(mockService(rec, "")))
}

func TestStartFailureStopsStartedServices(t *testing.T) {
	rec := &recorder{}
	m := NewManager()
	require.NoError(t, m.Register(mockService(rec, "a")))
	failing := mockService(rec, "b", "a")
	failing.StartFunc = func(context.Context) error { return errors.New("port in use") }
	require.NoError(t, m.Register(failing))

	err := m.StartAll(t.Context())
	require.ErrorContains(t, err, "port in use")
	require.True(t, terrors.IsCategory(err, terrors.CategoryDaemon))
	require.Equal(t, []string{"start:a", "stop:a"}, rec.list())

	info := serviceInfo(t, m, "b")
	require.Equal(t, StatusFailed, info.Status)
	require.Equal(t, "port in use", info.LastError)
}

func TestStopAllContinuesPastFailures(t *testing.T) {
	rec := &recorder{}
	m := NewManager()
	require.NoError(t, m.Register(mockService(rec, "a")))
	stuck := mockService(rec, "b", "a")
	stuck.StopFunc = func(context.Context) error { return errors.New("still draining") }
	require.NoError(t, m.Register(stuck))
	require.NoError(t, m.StartAll(t.Context()))

	err := m.StopAll(t.Context())
	require.ErrorContains(t, err, "b: still draining")
	require.Equal(t, []string{"start:a", "start:b", "stop:a"}, rec.list())
	require.Equal(t, StatusFailed, serviceInfo(t, m, "b").Status)
	require.Equal(t, StatusStopped, serviceInfo(t, m, "a").Status)
}

func TestCircularDependencyIsRejected(t *testing.T) {
	rec := &recorder{}
	m := NewManager()
	require.NoError(t, m.Register(mockService(rec, "a", "b")))
	require.NoError(t, m.Register(mockService(rec, "b", "a")))
	require.ErrorContains(t, m.StartAll(t.Context()), "dependency cycle")
	require.Empty(t, rec.list())
}

func TestUnknownDependencyIsRejected(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Register(mockService(&recorder{}, "a", "missing")))
	require.ErrorContains(t, m.StartAll(t.Context()), "unknown service missing")
}

func TestStartTimeout(t *testing.T) {
	m := NewManager()
	m.startTimeout = 20 * time.Millisecond
	require.NoError(t, m.Register(&FuncService{
		ServiceName: "slow",
		StartFunc: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}))
	err := m.StartAll(t.Context())
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestServicesAreSortedAndReportHealth(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Register(&FuncService{ServiceName: "z"}))
	require.NoError(t, m.Register(&FuncService{
		ServiceName: "a",
		HealthFunc:  func() HealthStatus { return Unhealthy("no listener") },
	}))

	infos := m.Services()
	require.Len(t, infos, 2)
	require.Equal(t, "a", infos[0].Name)
	require.Equal(t, StatusNotStarted, infos[0].Status)
	require.False(t, infos[0].Health.IsHealthy())
	require.True(t, infos[1].Health.IsHealthy())
}
