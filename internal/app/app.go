// Package app assembles taxosync components from a loaded configuration.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"git.home.luguber.info/inful/taxosync/internal/config"
	terrors "git.home.luguber.info/inful/taxosync/internal/errors"
	"git.home.luguber.info/inful/taxosync/internal/events"
	"git.home.luguber.info/inful/taxosync/internal/eventstore"
	"git.home.luguber.info/inful/taxosync/internal/history"
	"git.home.luguber.info/inful/taxosync/internal/loader"
	"git.home.luguber.info/inful/taxosync/internal/logfields"
	"git.home.luguber.info/inful/taxosync/internal/metrics"
	"git.home.luguber.info/inful/taxosync/internal/retry"
	"git.home.luguber.info/inful/taxosync/internal/robotoff"
	"git.home.luguber.info/inful/taxosync/internal/settings"
	"git.home.luguber.info/inful/taxosync/internal/storage"
	"git.home.luguber.info/inful/taxosync/internal/syncer"
	"git.home.luguber.info/inful/taxosync/internal/taxonomy"
)

const runHistorySize = 50

// App holds every long-lived component. Close releases them.
type App struct {
	Config *config.Config

	DB         *sql.DB
	Settings   settings.Store
	Prefs      *settings.Preferences
	Items      storage.ItemStore
	Events     eventstore.Store
	Projection *eventstore.RunHistoryProjection
	Emitter    events.Emitter

	Registry *prom.Registry
	Recorder metrics.Recorder

	Catalog  *taxonomy.Catalog
	Loader   *loader.Loader
	Syncer   *syncer.Orchestrator
	History  *history.Store
	Products history.ProductSource
	Robotoff *robotoff.Client

	closers []func() error
}

// New builds the component graph described by cfg. On error everything
// opened so far is closed again.
func New(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	a := &App{Config: cfg}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if err = a.openStorage(ctx); err != nil {
		return nil, err
	}
	if err = a.openEvents(ctx); err != nil {
		return nil, err
	}
	a.openMetrics()

	a.Catalog, err = taxonomy.NewCatalog(cfg.Source.BaseURL)
	if err != nil {
		return nil, terrors.Wrap(err, terrors.CategoryConfig, terrors.SeverityFatal, "invalid taxonomy source").
			WithContext("base_url", cfg.Source.BaseURL)
	}

	client := loader.NewHTTPClient(cfg.Source.TimeoutDuration())
	a.Loader = loader.New(
		loader.WithHTTPClient(client),
		loader.WithRetryPolicy(retry.FromConfig(cfg.Sync.Retry)),
		loader.WithRateLimit(cfg.Source.RequestsPerSecond, cfg.Source.Burst),
		loader.WithUserAgent(cfg.Source.UserAgent),
		loader.WithMaxBodyBytes(cfg.Source.MaxBodyBytes),
		loader.WithRecorder(a.Recorder),
	)

	a.Syncer = syncer.New(a.Catalog, a.Loader, a.Prefs,
		syncer.WithConcurrency(cfg.Sync.Concurrency),
		syncer.WithItemStore(a.Items),
		syncer.WithEmitter(a.Emitter),
		syncer.WithRecorder(a.Recorder),
	)

	if err = a.openClients(client); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) openStorage(ctx context.Context) error {
	cfg := a.Config
	path := cfg.Storage.Path
	if cfg.Storage.Backend == config.StorageMemory {
		path = ":memory:"
	}

	db, err := storage.OpenDB(path)
	if err != nil {
		return terrors.StorageError("open database", err).WithContext("path", path)
	}
	a.DB = db
	a.closers = append(a.closers, db.Close)

	switch cfg.Storage.Backend {
	case config.StorageMemory:
		a.Settings = settings.NewMemoryStore()
		a.Items = storage.NewMemoryStore()
	case config.StorageNATS:
		kv, err := settings.NewNATSStore(ctx, cfg.Storage.NATS.URL, cfg.Storage.NATS.Bucket)
		if err != nil {
			return terrors.StorageError("open NATS preferences", err).WithContext("url", cfg.Storage.NATS.URL)
		}
		a.Settings = kv
		a.closers = append(a.closers, kv.Close)
	default:
		kv, err := settings.NewSQLiteStore(db)
		if err != nil {
			return terrors.StorageError("open preferences", err)
		}
		a.Settings = kv
	}

	if a.Items == nil {
		items, err := storage.NewSQLiteStore(db)
		if err != nil {
			return terrors.StorageError("open item store", err)
		}
		a.Items = items
	}

	a.History, err = history.NewStore(db)
	if err != nil {
		return terrors.StorageError("open scan history", err)
	}

	a.Prefs = settings.NewPreferences(a.Settings, cfg.Taxonomies)
	return nil
}

func (a *App) openEvents(ctx context.Context) error {
	store, err := eventstore.NewSQLiteStore(a.DB)
	if err != nil {
		return terrors.StorageError("open event store", err)
	}
	a.Events = store
	a.Projection = eventstore.NewRunHistoryProjection(store, runHistorySize)
	if err := a.Projection.Rebuild(ctx); err != nil {
		slog.Warn("Failed to rebuild run history", logfields.Error(err))
	}

	emitters := events.Multi{events.NewStoreEmitter(store, a.Projection)}
	natsCfg := a.Config.Storage.NATS
	if natsCfg.URL != "" && natsCfg.Subject != "" {
		pub, err := events.NewNATSPublisher(ctx, natsCfg.URL, natsCfg.Subject)
		if err != nil {
			return terrors.Wrap(err, terrors.CategoryNetwork, terrors.SeverityFatal, "failed to open event publisher").
				WithContext("url", natsCfg.URL)
		}
		emitters = append(emitters, pub)
		a.closers = append(a.closers, pub.Close)
	}
	a.Emitter = emitters
	return nil
}

func (a *App) openMetrics() {
	if mon := a.Config.Monitoring; mon != nil && mon.Metrics.Enabled {
		a.Registry = metrics.NewRegistry()
		a.Recorder = metrics.NewPrometheusRecorder(a.Registry)
		return
	}
	a.Recorder = metrics.NoopRecorder{}
}

func (a *App) openClients(client *http.Client) error {
	cfg := a.Config

	products, err := history.NewHTTPSource(cfg.Products.BaseURL, client, a.newLimiter(), cfg.Source.UserAgent)
	if err != nil {
		return terrors.Wrap(err, terrors.CategoryConfig, terrors.SeverityFatal, "invalid products endpoint")
	}
	a.Products = products

	a.Robotoff, err = robotoff.New(cfg.Robotoff.BaseURL,
		robotoff.WithHTTPClient(client),
		robotoff.WithLimiter(a.newLimiter()),
		robotoff.WithUserAgent(cfg.Source.UserAgent),
		robotoff.WithCredentials(robotoff.StaticCredentials(cfg.Robotoff.User, cfg.Robotoff.Password)),
	)
	if err != nil {
		return terrors.Wrap(err, terrors.CategoryConfig, terrors.SeverityFatal, "invalid robotoff endpoint")
	}
	return nil
}

// newLimiter returns a per-host limiter from the source settings, or nil when
// rate limiting is off.
func (a *App) newLimiter() *rate.Limiter {
	src := a.Config.Source
	if src.RequestsPerSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(src.RequestsPerSecond), max(src.Burst, 1))
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if len(errs) > 0 {
		return fmt.Errorf("close: %w", errors.Join(errs...))
	}
	return nil
}
