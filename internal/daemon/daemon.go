// Package daemon runs scheduled taxonomy refreshes and serves the admin API.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"git.home.luguber.info/inful/taxosync/internal/app"
	"git.home.luguber.info/inful/taxosync/internal/config"
	"git.home.luguber.info/inful/taxosync/internal/logfields"
	"git.home.luguber.info/inful/taxosync/internal/observability"
	"git.home.luguber.info/inful/taxosync/internal/services"
	"git.home.luguber.info/inful/taxosync/internal/syncer"
)

// Status represents the current state of the daemon.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusError    Status = "error"
)

const scheduledJobName = "taxonomy-refresh"

// Daemon owns the scheduler, config watcher, admin server and background
// refreshes for one App.
type Daemon struct {
	app        *app.App
	configPath string

	mu     sync.RWMutex
	config *config.Config
	jobID  string

	status    atomic.Value // Status
	startTime time.Time

	scheduler  *Scheduler
	watcher    *ConfigWatcher
	httpServer *HTTPServer
	workers    WorkerGroup
	services   *services.Manager

	// runCtx bounds refreshes started by the schedule or the API.
	runCtx    context.Context
	runCancel context.CancelFunc
}

// New creates a daemon for a. When configPath is non-empty the file is watched
// and changes are applied without a restart.
func New(a *app.App, configPath string) (*Daemon, error) {
	if a == nil || a.Config == nil {
		return nil, fmt.Errorf("configuration is required")
	}

	sched, err := NewScheduler()
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		app:        a,
		configPath: configPath,
		config:     a.Config,
		scheduler:  sched,
		services:   services.NewManager(),
	}
	d.status.Store(StatusStopped)
	d.runCtx, d.runCancel = context.WithCancel(context.Background())
	d.httpServer = NewHTTPServer(d)

	if configPath != "" {
		d.watcher, err = NewConfigWatcher(configPath, d)
		if err != nil {
			return nil, fmt.Errorf("failed to create config watcher: %w", err)
		}
	}

	if err := d.registerServices(); err != nil {
		return nil, err
	}
	return d, nil
}

// registerServices wires components into the lifecycle orchestrator. Workers
// start first and stop last so in-flight refreshes drain after the scheduler
// and admin server are down.
func (d *Daemon) registerServices() error {
	svcs := []services.ManagedService{
		&services.FuncService{
			ServiceName: "workers",
			StopFunc:    d.workers.StopAndWait,
		},
		&services.FuncService{
			ServiceName: "scheduler",
			DependsOn:   []string{"workers"},
			StartFunc:   d.startScheduler,
			StopFunc:    d.scheduler.Stop,
		},
		&services.FuncService{
			ServiceName: "admin-http",
			DependsOn:   []string{"workers"},
			StartFunc:   d.httpServer.Start,
			StopFunc:    d.httpServer.Stop,
			HealthFunc:  d.httpServer.Health,
		},
	}
	if d.watcher != nil {
		svcs = append(svcs, &services.FuncService{
			ServiceName: "config-watcher",
			DependsOn:   []string{"scheduler"},
			StartFunc:   func(context.Context) error { return d.watcher.Start(d.runCtx) },
			StopFunc:    d.watcher.Stop,
		})
	}
	for _, s := range svcs {
		if err := d.services.Register(s); err != nil {
			return err
		}
	}
	return nil
}

func (d *Daemon) startScheduler(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if expr := d.config.Sync.Schedule; expr != "" {
		id, err := d.scheduler.ScheduleCron(scheduledJobName, expr, d.scheduledRefresh)
		if err != nil {
			return err
		}
		d.jobID = id
	} else {
		slog.Info("No sync schedule configured; refreshes run only on request")
	}
	d.scheduler.Start(ctx)
	return nil
}

// Start brings up every component.
func (d *Daemon) Start(ctx context.Context) error {
	if d.GetStatus() != StatusStopped {
		return fmt.Errorf("daemon is not in stopped state: %s", d.GetStatus())
	}
	d.status.Store(StatusStarting)
	d.startTime = time.Now()

	if err := d.services.StartAll(ctx); err != nil {
		d.status.Store(StatusError)
		return err
	}

	d.status.Store(StatusRunning)
	d.mu.RLock()
	slog.Info("taxosync daemon started",
		slog.String("schedule", d.config.Sync.Schedule),
		slog.Int("admin_port", d.config.Daemon.HTTP.AdminPort))
	d.mu.RUnlock()
	return nil
}

// Stop shuts components down in reverse dependency order.
func (d *Daemon) Stop(ctx context.Context) error {
	switch d.GetStatus() {
	case StatusStopped, StatusStopping:
		return nil
	}
	d.status.Store(StatusStopping)
	slog.Info("Stopping taxosync daemon")
	d.runCancel()

	err := d.services.StopAll(ctx)
	d.status.Store(StatusStopped)
	slog.Info("taxosync daemon stopped", slog.Duration("uptime", time.Since(d.startTime)))
	return err
}

// Run starts the daemon, blocks until ctx is done and then stops it within
// shutdownTimeout.
func (d *Daemon) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	if err := d.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	slog.Info("Shutdown signal received, stopping daemon...")

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return d.Stop(stopCtx)
}

// GetStatus returns the current daemon status.
func (d *Daemon) GetStatus() Status {
	status, ok := d.status.Load().(Status)
	if !ok {
		return StatusError
	}
	return status
}

// Uptime returns the time since Start.
func (d *Daemon) Uptime() time.Duration {
	if d.startTime.IsZero() {
		return 0
	}
	return time.Since(d.startTime)
}

// Config returns the configuration currently in effect.
func (d *Daemon) Config() *config.Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.config
}

// NextRun returns the next scheduled refresh, if any.
func (d *Daemon) NextRun() (time.Time, bool) {
	d.mu.RLock()
	id := d.jobID
	d.mu.RUnlock()
	if id == "" {
		return time.Time{}, false
	}
	next, err := d.scheduler.NextRun(id)
	if err != nil || next.IsZero() {
		return time.Time{}, false
	}
	return next, true
}

func (d *Daemon) scheduledRefresh() {
	slog.Info("Scheduled refresh starting")
	d.logResults(d.app.Syncer.Refresh(observability.WithTrigger(d.runCtx, "schedule"), nil, false))
}

// TriggerSync starts a refresh in the background. It returns false when the
// daemon is shutting down.
func (d *Daemon) TriggerSync(selection []string, force bool) bool {
	return d.workers.Go(func() {
		d.logResults(d.app.Syncer.Refresh(observability.WithTrigger(d.runCtx, "api"), selection, force))
	})
}

// SyncNow runs a refresh and waits for it. ctx cancellation returns early for
// this caller only; loads already started still complete.
func (d *Daemon) SyncNow(ctx context.Context, selection []string, force bool) map[string]syncer.Result {
	return d.app.Syncer.Refresh(observability.WithTrigger(ctx, "api"), selection, force)
}

func (d *Daemon) logResults(results map[string]syncer.Result) {
	failed := 0
	for name, r := range results {
		if !r.OK() {
			failed++
			slog.Warn("Refresh failed", logfields.Taxonomy(name), logfields.Error(r.Err))
		}
	}
	slog.Info("Refresh finished", slog.Int("taxonomies", len(results)), slog.Int("failed", failed))
}

// ReloadConfig applies the parts of cfg that can change at runtime: the
// schedule and the enablement defaults. Other changes are logged and need a
// restart.
func (d *Daemon) ReloadConfig(_ context.Context, cfg *config.Config) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	old := d.config
	if err := d.applySchedule(old.Sync.Schedule, cfg.Sync.Schedule); err != nil {
		return err
	}
	d.app.Prefs.SetEnabledDefaults(cfg.Taxonomies)

	if old.Daemon.HTTP.AdminPort != cfg.Daemon.HTTP.AdminPort {
		slog.Warn("Admin port change requires restart",
			slog.Int("current", old.Daemon.HTTP.AdminPort),
			slog.Int("configured", cfg.Daemon.HTTP.AdminPort))
	}
	if old.Storage != cfg.Storage {
		slog.Warn("Storage change requires restart")
	}
	if old.Source != cfg.Source || old.Sync.Concurrency != cfg.Sync.Concurrency {
		slog.Warn("Source and concurrency changes require restart")
	}

	d.config = cfg
	return nil
}

func (d *Daemon) applySchedule(prev, next string) error {
	switch {
	case prev == next:
		return nil
	case next == "" && d.jobID != "":
		if err := d.scheduler.Remove(d.jobID); err != nil {
			return err
		}
		d.jobID = ""
	case d.jobID == "":
		id, err := d.scheduler.ScheduleCron(scheduledJobName, next, d.scheduledRefresh)
		if err != nil {
			return err
		}
		d.jobID = id
	default:
		if err := d.scheduler.RescheduleCron(d.jobID, scheduledJobName, next, d.scheduledRefresh); err != nil {
			return err
		}
	}
	return nil
}
