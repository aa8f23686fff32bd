package http

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"jobcost/internal/cache"
	"jobcost/internal/core"
	applog "jobcost/internal/log"
)

const notLoadedMessage = "Cost data is still loading. Please retry in a moment."

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady reports ready once a snapshot has been loaded and, when a store
// check is set, the store still answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.snapshots.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("loading"))
		return
	}
	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
		defer cancel()
		if err := s.store.Ping(ctx); err != nil {
			s.logger.WarnContext(ctx, "Readiness store check failed", applog.FieldError, err.Error())
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("store unavailable"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// evaluate resolves the request filter against ds. Valid filters go through the
// view cache; rejected ones yield the empty view with Err set.
func (s *Server) evaluate(ctx context.Context, ds *core.Dataset, params FilterParams) core.Result {
	err := params.Err
	var f core.Filter
	if err == nil {
		f, err = ds.Resolve(params.Project, params.Start, params.End)
	}
	if err != nil {
		s.access.LogInvalidFilter(ctx, sanitizeInput(params.Project), params.Start, params.End, err)
		return core.Reject(ds, err)
	}
	return core.Result{View: s.views.Summarize(ds, f)}
}

// handleIndex renders the full dashboard page.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		MethodNotAllowedError("GET, HEAD").Write(w)
		return
	}
	s.render(w, r, "dashboard.html")
}

// handleDashboardPartial re-renders the dashboard body after a filter change.
// The address bar gets the equivalent page URL; a direct visit, such as a
// reload of an old pushed URL, gets the full page.
func (s *Server) handleDashboardPartial(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowedError("GET").Write(w)
		return
	}
	if r.Header.Get("HX-Request") != "true" {
		s.render(w, r, "dashboard.html")
		return
	}
	w.Header().Set("HX-Push-Url", pageURL(r.URL.Query()))
	s.render(w, r, "dashboard_view")
}

// pageURL is the full-page address showing the same filter as query.
func pageURL(query url.Values) string {
	if q := query.Encode(); q != "" {
		return "/?" + q
	}
	return "/"
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, name string) {
	ctx := r.Context()
	logger := applog.FromContext(ctx)

	if s.templates == nil {
		logger.ErrorContext(ctx, "Templates not loaded", applog.FieldPath, r.URL.Path)
		InternalServerError("templates not loaded").Write(w)
		return
	}

	ds := s.snapshots.Current()
	if ds == nil {
		ServiceUnavailableError(notLoadedMessage).Write(w)
		return
	}

	params := ParseFilterParams(r.URL.Query())
	data := newDashboardData(ds, params, s.evaluate(ctx, ds, params))

	// Render into a buffer so a template failure does not leave a half page.
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		logger.ErrorContext(ctx, "Template execution failed",
			applog.FieldOperation, applog.OpRender,
			applog.FieldError, err.Error(),
			"template", name)
		InternalServerError("Error rendering dashboard").Write(w)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

type viewResponse struct {
	SnapshotVersion int64     `json:"snapshot_version"`
	View            core.View `json:"view"`
	InvalidFilter   bool      `json:"invalid_filter,omitempty"`
	Error           string    `json:"error,omitempty"`
}

// handleAPIView returns the view as JSON. A rejected filter is a 400 whose
// body still carries the empty view and the cross-project comparison.
func (s *Server) handleAPIView(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowedError("GET").Write(w)
		return
	}
	ds := s.snapshots.Current()
	if ds == nil {
		w.Header().Set("Retry-After", "5")
		_ = writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": notLoadedMessage})
		return
	}

	res := s.evaluate(r.Context(), ds, ParseFilterParams(r.URL.Query()))
	resp := viewResponse{SnapshotVersion: ds.Version(), View: res.View}
	status := http.StatusOK
	if res.Err != nil {
		status = http.StatusBadRequest
		resp.InvalidFilter = errors.Is(res.Err, core.ErrInvalidFilter)
		resp.Error = res.Err.Error()
	}
	if err := writeJSON(w, status, resp); err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Encode view failed", applog.FieldError, err.Error())
	}
}

type projectsResponse struct {
	SnapshotVersion int64       `json:"snapshot_version"`
	LoadedAt        time.Time   `json:"loaded_at"`
	Projects        []string    `json:"projects"`
	MinDate         *core.Date  `json:"min_date"`
	MaxDate         *core.Date  `json:"max_date"`
	Default         core.Filter `json:"default_filter"`
}

// handleAPIProjects lists the filter choices and defaults of the live snapshot.
func (s *Server) handleAPIProjects(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowedError("GET").Write(w)
		return
	}
	ds := s.snapshots.Current()
	if ds == nil {
		w.Header().Set("Retry-After", "5")
		_ = writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": notLoadedMessage})
		return
	}

	resp := projectsResponse{
		SnapshotVersion: ds.Version(),
		LoadedAt:        ds.LoadedAt(),
		Projects:        ds.Projects(),
		Default:         ds.DefaultFilter(),
	}
	if first, last, ok := ds.Bounds(); ok {
		resp.MinDate, resp.MaxDate = &first, &last
	}
	_ = writeJSON(w, http.StatusOK, resp)
}

type statsResponse struct {
	Ready           bool          `json:"ready"`
	SnapshotVersion int64         `json:"snapshot_version"`
	Rows            int           `json:"rows"`
	LoadedAt        *time.Time    `json:"loaded_at,omitempty"`
	LastFailure     string        `json:"last_refresh_error,omitempty"`
	LastFailureAt   *time.Time    `json:"last_refresh_error_at,omitempty"`
	ViewCache       cache.Stats   `json:"view_cache"`
	Security        securityStats `json:"security"`
}

// handleAPIStats reports snapshot, cache and security counters.
func (s *Server) handleAPIStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowedError("GET").Write(w)
		return
	}
	resp := statsResponse{
		Ready:     s.snapshots.Ready(),
		ViewCache: s.views.Stats(),
		Security:  s.metrics.snapshot(),
	}
	if ds := s.snapshots.Current(); ds != nil {
		loaded := ds.LoadedAt()
		resp.SnapshotVersion, resp.Rows, resp.LoadedAt = ds.Version(), ds.Len(), &loaded
	}
	if at, err := s.snapshots.LastFailure(); err != nil {
		resp.LastFailure, resp.LastFailureAt = err.Error(), &at
	}
	_ = writeJSON(w, http.StatusOK, resp)
}

// handleRefresh reloads the snapshot from the store. A failed reload keeps the
// previous snapshot live.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		MethodNotAllowedError("POST").Write(w)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	logger := applog.FromContext(ctx)

	ds, err := s.snapshots.Refresh(ctx, "http")
	if err != nil {
		logger.ErrorContext(ctx, "Manual refresh failed",
			applog.FieldOperation, applog.OpRefresh,
			applog.FieldError, err.Error())
		msg := "Refresh failed; showing previously loaded data."
		if !s.snapshots.Ready() {
			msg = "Refresh failed; no data is loaded yet."
		}
		if wantsJSON(r.Header.Get("Accept")) {
			_ = writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": msg})
			return
		}
		ServiceUnavailableError(msg).
			TriggerNotification(NotificationError, msg, 5000).
			Write(w)
		return
	}

	if wantsJSON(r.Header.Get("Accept")) {
		_ = writeJSON(w, http.StatusOK, map[string]any{"snapshot_version": ds.Version(), "rows": ds.Len()})
		return
	}
	NewHTMXResponse().
		TriggerSnapshotRefreshed(ds.Version(), ds.Len()).
		TriggerNotification(NotificationSuccess, "Data reloaded", 3000).
		BodyHTML(`<div class="success" role="status">Data reloaded</div>`).
		Write(w)
}
