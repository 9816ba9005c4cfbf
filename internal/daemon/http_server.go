package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"git.home.luguber.info/inful/taxosync/internal/logfields"
	"git.home.luguber.info/inful/taxosync/internal/metrics"
	"git.home.luguber.info/inful/taxosync/internal/services"
)

// HTTPServer serves the admin API on the configured admin port.
type HTTPServer struct {
	daemon *Daemon

	mu     sync.Mutex
	server *http.Server
	addr   string
}

// NewHTTPServer creates the admin server for d.
func NewHTTPServer(d *Daemon) *HTTPServer {
	return &HTTPServer{daemon: d}
}

// Handler returns the admin routes wrapped in logging and panic recovery.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /sync", s.handleSync)
	mux.HandleFunc("POST /taxonomies/{name}/enable", s.handleSetEnabled(true))
	mux.HandleFunc("POST /taxonomies/{name}/disable", s.handleSetEnabled(false))

	cfg := s.daemon.Config()
	if reg := s.daemon.app.Registry; reg != nil && cfg.Monitoring != nil && cfg.Monitoring.Metrics.Enabled {
		mux.Handle("GET "+cfg.Monitoring.Metrics.Path, metrics.HTTPHandler(reg))
	}
	return chain(slog.Default(), mux)
}

// Start binds the admin port and serves in the background.
func (s *HTTPServer) Start(_ context.Context) error {
	port := s.daemon.Config().Daemon.HTTP.AdminPort
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("admin server listen on port %d: %w", port, err)
	}
	return s.startWithListener(ln)
}

func (s *HTTPServer) startWithListener(ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute, // POST /sync?wait=true holds the connection for a full refresh
		IdleTimeout:       120 * time.Second,
	}

	s.mu.Lock()
	s.server = srv
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Admin server stopped unexpectedly", logfields.Error(err))
		}
	}()
	slog.Info("Admin server listening", slog.String("addr", s.addr))
	return nil
}

// Stop gracefully shuts the server down.
func (s *HTTPServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Addr returns the bound address, or "" before Start.
func (s *HTTPServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Health reports whether the server is accepting connections.
func (s *HTTPServer) Health() services.HealthStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return services.Unhealthy("not listening")
	}
	return services.Healthy()
}
