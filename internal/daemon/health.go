package daemon

import (
	"context"
	"net/http"
	"time"

	"git.home.luguber.info/inful/taxosync/internal/version"
)

// HealthStatus represents the overall health of the daemon.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck represents a single health check.
type HealthCheck struct {
	Name     string        `json:"name"`
	Status   HealthStatus  `json:"status"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration"`
}

// HealthResponse is the /healthz body.
type HealthResponse struct {
	Status    HealthStatus  `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Uptime    string        `json:"uptime"`
	Version   string        `json:"version"`
	Checks    []HealthCheck `json:"checks"`
}

// PerformHealthChecks checks the daemon state, the database and every
// managed service. A failing database makes the daemon unhealthy; a failing
// service only degrades it.
func (d *Daemon) PerformHealthChecks(ctx context.Context) *HealthResponse {
	resp := &HealthResponse{
		Status:    HealthStatusHealthy,
		Timestamp: time.Now(),
		Uptime:    d.Uptime().Round(time.Second).String(),
		Version:   version.Version,
	}

	daemonCheck := HealthCheck{Name: "daemon", Status: HealthStatusHealthy, Message: string(d.GetStatus())}
	if d.GetStatus() != StatusRunning {
		daemonCheck.Status = HealthStatusDegraded
	}
	resp.Checks = append(resp.Checks, daemonCheck)

	resp.Checks = append(resp.Checks, d.checkStorage(ctx))

	for _, info := range d.services.Services() {
		c := HealthCheck{Name: "service:" + info.Name, Status: HealthStatusHealthy, Message: string(info.Status)}
		if !info.Health.IsHealthy() {
			c.Status = HealthStatusDegraded
			c.Message = info.Health.Message
		}
		resp.Checks = append(resp.Checks, c)
	}

	for _, c := range resp.Checks {
		switch {
		case c.Status == HealthStatusUnhealthy:
			resp.Status = HealthStatusUnhealthy
		case c.Status == HealthStatusDegraded && resp.Status == HealthStatusHealthy:
			resp.Status = HealthStatusDegraded
		}
	}
	return resp
}

func (d *Daemon) checkStorage(ctx context.Context) HealthCheck {
	start := time.Now()
	check := HealthCheck{Name: "storage", Status: HealthStatusHealthy}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := d.app.DB.PingContext(ctx); err != nil {
		check.Status = HealthStatusUnhealthy
		check.Message = err.Error()
	}
	check.Duration = time.Since(start)
	return check
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.daemon.PerformHealthChecks(r.Context())
	status := http.StatusOK
	if health.Status == HealthStatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	_ = writeJSONPretty(w, r, status, health)
}
