package daemon

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	terrors "git.home.luguber.info/inful/taxosync/internal/errors"
	"git.home.luguber.info/inful/taxosync/internal/eventstore"
	"git.home.luguber.info/inful/taxosync/internal/services"
	"git.home.luguber.info/inful/taxosync/internal/syncer"
	"git.home.luguber.info/inful/taxosync/internal/version"
)

const defaultRecentEvents = 20

// StatusResponse is the /status body.
type StatusResponse struct {
	Status          Status                    `json:"status"`
	Version         string                    `json:"version"`
	Uptime          string                    `json:"uptime"`
	Schedule        string                    `json:"schedule,omitempty"`
	NextRun         *time.Time                `json:"next_run,omitempty"`
	ActiveRefreshes int                       `json:"active_refreshes"`
	Taxonomies      []syncer.DescriptorStatus `json:"taxonomies"`
	LastRun         *eventstore.RunSummary    `json:"last_run,omitempty"`
	History         []eventstore.RunSummary   `json:"history"`
	RecentEvents    []EventView               `json:"recent_events"`
	Services        []services.ServiceInfo    `json:"services"`
}

// EventView is the JSON shape of a stored event.
type EventView struct {
	RunID     string          `json:"run_id"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// SyncResponse is the POST /sync body.
type SyncResponse struct {
	Accepted bool                      `json:"accepted"`
	Results  map[string]SyncResultView `json:"results,omitempty"`
}

// SyncResultView is one taxonomy's outcome in a waited sync.
type SyncResultView struct {
	Count    int    `json:"count"`
	Error    string `json:"error,omitempty"`
	Category string `json:"category,omitempty"`
}

func (s *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	d := s.daemon

	limit := defaultRecentEvents
	if raw := r.URL.Query().Get("events"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, r, http.StatusBadRequest, terrors.ValidationFailed("events", "must be a non-negative integer"))
			return
		}
		limit = n
	}

	taxonomies, err := d.app.Syncer.Status(ctx)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	resp := StatusResponse{
		Status:          d.GetStatus(),
		Version:         version.Version,
		Uptime:          d.Uptime().Round(time.Second).String(),
		Schedule:        d.Config().Sync.Schedule,
		ActiveRefreshes: d.workers.Active(),
		Taxonomies:      taxonomies,
		History:         d.app.Projection.GetHistory(),
		RecentEvents:    []EventView{},
		Services:        d.services.Services(),
	}
	if next, ok := d.NextRun(); ok {
		resp.NextRun = &next
	}
	if last, ok := d.app.Projection.GetLastCompletedRun(); ok {
		resp.LastRun = &last
	}

	if limit > 0 {
		recent, err := d.app.Events.Recent(ctx, limit)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, terrors.StorageError("read recent events", err))
			return
		}
		for _, e := range recent {
			payload := json.RawMessage(e.Payload())
			if !json.Valid(payload) {
				payload = json.RawMessage("{}")
			}
			resp.RecentEvents = append(resp.RecentEvents, EventView{
				RunID:     e.RunID(),
				Type:      e.Type(),
				Timestamp: e.Timestamp(),
				Payload:   payload,
			})
		}
	}

	_ = writeJSONPretty(w, r, http.StatusOK, resp)
}

// handleSync starts a refresh. only selects taxonomies (comma separated or
// repeated), force bypasses enablement, and wait=true blocks until the
// refresh finishes and returns per-taxonomy results.
func (s *HTTPServer) handleSync(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var selection []string
	for _, raw := range q["only"] {
		for _, name := range strings.Split(raw, ",") {
			if name = strings.TrimSpace(name); name != "" {
				selection = append(selection, name)
			}
		}
	}
	force, err := parseBoolParam(q.Get("force"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, terrors.ValidationFailed("force", err.Error()))
		return
	}
	wait, err := parseBoolParam(q.Get("wait"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, terrors.ValidationFailed("wait", err.Error()))
		return
	}

	if !wait {
		if !s.daemon.TriggerSync(selection, force) {
			writeError(w, r, http.StatusServiceUnavailable,
				terrors.New(terrors.CategoryDaemon, terrors.SeverityWarning, "daemon is shutting down"))
			return
		}
		_ = writeJSONPretty(w, r, http.StatusAccepted, SyncResponse{Accepted: true})
		return
	}

	results := s.daemon.SyncNow(r.Context(), selection, force)
	resp := SyncResponse{Accepted: true, Results: make(map[string]SyncResultView, len(results))}
	for name, res := range results {
		view := SyncResultView{Count: res.Count}
		if res.Err != nil {
			view.Error = res.Err.Error()
			view.Category = string(terrors.GetCategory(res.Err))
		}
		resp.Results[name] = view
	}
	_ = writeJSONPretty(w, r, http.StatusOK, resp)
}

func (s *HTTPServer) handleSetEnabled(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		if err := s.daemon.app.Syncer.SetEnabled(r.Context(), name, enabled); err != nil {
			status := http.StatusInternalServerError
			if terrors.IsCategory(err, terrors.CategoryValidation) {
				status = http.StatusNotFound
			}
			writeError(w, r, status, err)
			return
		}
		_ = writeJSONPretty(w, r, http.StatusOK, map[string]any{"name": name, "enabled": enabled})
	}
}

func parseBoolParam(raw string) (bool, error) {
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}
