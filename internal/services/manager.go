package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	terrors "git.home.luguber.info/inful/taxosync/internal/errors"
	"git.home.luguber.info/inful/taxosync/internal/logfields"
)

const (
	defaultStartTimeout = 30 * time.Second
	defaultStopTimeout  = 10 * time.Second
)

// ServiceStatus is the lifecycle state of one service.
type ServiceStatus string

const (
	StatusNotStarted ServiceStatus = "not_started"
	StatusStarting   ServiceStatus = "starting"
	StatusRunning    ServiceStatus = "running"
	StatusStopping   ServiceStatus = "stopping"
	StatusStopped    ServiceStatus = "stopped"
	StatusFailed     ServiceStatus = "failed"
)

// ServiceInfo is the status view of one service.
type ServiceInfo struct {
	Name         string        `json:"name"`
	Status       ServiceStatus `json:"status"`
	Health       HealthStatus  `json:"health"`
	Dependencies []string      `json:"dependencies"`
	StartedAt    *time.Time    `json:"started_at,omitempty"`
	StoppedAt    *time.Time    `json:"stopped_at,omitempty"`
	LastError    string        `json:"last_error,omitempty"`
}

type entry struct {
	svc       ManagedService
	status    ServiceStatus
	startedAt time.Time
	stoppedAt time.Time
	lastErr   error
}

// Manager starts registered services after their dependencies and stops them
// in the opposite order.
type Manager struct {
	mu      sync.RWMutex
	entries map[string]*entry

	startTimeout time.Duration
	stopTimeout  time.Duration
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{
		entries:      make(map[string]*entry),
		startTimeout: defaultStartTimeout,
		stopTimeout:  defaultStopTimeout,
	}
}

// Register adds svc. Names must be unique and non-empty.
func (m *Manager) Register(svc ManagedService) error {
	name := svc.Name()
	if name == "" {
		return terrors.ValidationFailed("service", "name cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[name]; ok {
		return terrors.ValidationFailed("service", name+" already registered")
	}
	m.entries[name] = &entry{svc: svc, status: StatusNotStarted}
	slog.Debug("Service registered", slog.String("service", name), slog.Any("dependencies", svc.Dependencies()))
	return nil
}

// StartAll starts every service in dependency order. If one fails, those
// already started are stopped again and the failure is returned.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, err := m.order()
	if err != nil {
		return terrors.InternalError("resolve service order", err)
	}
	slog.Info("Starting services", slog.Any("order", order))

	for i, name := range order {
		if err := m.start(ctx, name); err != nil {
			if stopErr := m.stopReverse(ctx, order[:i]); stopErr != nil {
				slog.Warn("Rollback left services running", logfields.Error(stopErr))
			}
			return err
		}
	}
	return nil
}

// StopAll stops every running service in reverse dependency order. All
// services are asked to stop even when some fail.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, err := m.order()
	if err != nil {
		return terrors.InternalError("resolve service order", err)
	}
	if err := m.stopReverse(ctx, order); err != nil {
		return terrors.Wrap(err, terrors.CategoryDaemon, terrors.SeverityError, "some services failed to stop")
	}
	slog.Info("Services stopped", slog.Int("count", len(order)))
	return nil
}

// Services reports every service, sorted by name.
func (m *Manager) Services() []ServiceInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ServiceInfo, 0, len(m.entries))
	for _, name := range m.names() {
		e := m.entries[name]
		info := ServiceInfo{
			Name:         name,
			Status:       e.status,
			Health:       e.svc.Health(),
			Dependencies: e.svc.Dependencies(),
		}
		if !e.startedAt.IsZero() {
			t := e.startedAt
			info.StartedAt = &t
		}
		if !e.stoppedAt.IsZero() {
			t := e.stoppedAt
			info.StoppedAt = &t
		}
		if e.lastErr != nil {
			info.LastError = e.lastErr.Error()
		}
		out = append(out, info)
	}
	return out
}

func (m *Manager) names() []string {
	names := make([]string, 0, len(m.entries))
	for name := range m.entries {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// order is a depth-first topological sort. Roots are visited by name so the
// result does not depend on map iteration.
func (m *Manager) order() ([]string, error) {
	const (
		unseen = iota
		active
		done
	)
	state := make(map[string]int, len(m.entries))
	out := make([]string, 0, len(m.entries))

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case active:
			return fmt.Errorf("dependency cycle through %s", name)
		case done:
			return nil
		}
		e, ok := m.entries[name]
		if !ok {
			return fmt.Errorf("unknown service %s", name)
		}
		state[name] = active
		for _, dep := range e.svc.Dependencies() {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[name] = done
		out = append(out, name)
		return nil
	}

	for _, name := range m.names() {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (m *Manager) start(ctx context.Context, name string) error {
	e := m.entries[name]
	e.status = StatusStarting

	ctx, cancel := context.WithTimeout(ctx, m.startTimeout)
	defer cancel()

	began := time.Now()
	if err := e.svc.Start(ctx); err != nil {
		e.status = StatusFailed
		e.lastErr = err
		return terrors.Wrap(err, terrors.CategoryDaemon, terrors.SeverityFatal, "failed to start service "+name)
	}
	e.status = StatusRunning
	e.startedAt = began
	e.lastErr = nil
	slog.Info("Service started", slog.String("service", name), logfields.DurationMS(float64(time.Since(began).Milliseconds())))
	return nil
}

func (m *Manager) stopReverse(ctx context.Context, names []string) error {
	var errs []error
	for _, name := range slices.Backward(names) {
		if err := m.stop(ctx, name); err != nil {
			slog.Error("Service failed to stop", slog.String("service", name), logfields.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) stop(ctx context.Context, name string) error {
	e := m.entries[name]
	if e.status != StatusRunning {
		return nil
	}
	e.status = StatusStopping

	ctx, cancel := context.WithTimeout(ctx, m.stopTimeout)
	defer cancel()

	if err := e.svc.Stop(ctx); err != nil {
		e.status = StatusFailed
		e.lastErr = err
		return err
	}
	e.status = StatusStopped
	e.stoppedAt = time.Now()
	slog.Debug("Service stopped", slog.String("service", name))
	return nil
}
