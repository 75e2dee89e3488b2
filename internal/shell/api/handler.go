// Package api provides the read-only status HTTP surface of the daemon.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"gopkg.in/yaml.v3"

	"github.com/artpar/orbit-raas/internal/core/domain"
	"github.com/artpar/orbit-raas/internal/shell/docker"
	"github.com/artpar/orbit-raas/internal/shell/orchestrator"
	"github.com/artpar/orbit-raas/internal/shell/store"
)

// =============================================================================
// Dependencies
// =============================================================================

// StatusSource provides consistent snapshots of the deployment record.
type StatusSource interface {
	Snapshot() domain.DeploymentRecord
	Deploying() bool
}

// PrerequisiteChecker checks the external tools.
type PrerequisiteChecker interface {
	CheckPrerequisites(ctx context.Context) []orchestrator.Prerequisite
}

// RunLister lists recorded job runs.
type RunLister interface {
	ListJobRuns(ctx context.Context, opts store.ListOptions) ([]domain.JobRun, error)
}

// Config holds handler dependencies. Only Status is required.
type Config struct {
	Status  StatusSource
	Engine  docker.Client       // optional, enables /containers
	Prereqs PrerequisiteChecker // optional, enables /prerequisites
	Runs    RunLister           // optional, enables /jobs/runs
	Metrics http.Handler        // optional, enables /metrics
	OpenAPI http.Handler        // optional, enables /openapi.json
	Version string
	Logger  *slog.Logger
}

// =============================================================================
// Handler
// =============================================================================

// Handler provides the status HTTP handlers.
type Handler struct {
	status  StatusSource
	engine  docker.Client
	prereqs PrerequisiteChecker
	runs    RunLister
	metrics http.Handler
	openapi http.Handler
	version string
	logger  *slog.Logger
}

// NewHandler creates a new status handler.
func NewHandler(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Handler{
		status:  cfg.Status,
		engine:  cfg.Engine,
		prereqs: cfg.Prereqs,
		runs:    cfg.Runs,
		metrics: cfg.Metrics,
		openapi: cfg.OpenAPI,
		version: cfg.Version,
		logger:  cfg.Logger.With("component", "status_api"),
	}
}

// Routes returns the router with all routes configured.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.requestIDHeader)

	r.Get("/health", h.handleHealth)
	r.Get("/version", h.handleVersion)
	r.Get("/status", h.handleStatus)
	r.Get("/logs", h.handleLogs)

	if h.engine != nil {
		r.Get("/containers", h.handleContainers)
		r.Get("/containers/{id}/logs", h.handleContainerLogs)
	}
	if h.prereqs != nil {
		r.Get("/prerequisites", h.handlePrerequisites)
	}
	if h.runs != nil {
		r.Get("/jobs/runs", h.handleJobRuns)
	}
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}
	if h.openapi != nil {
		r.Method(http.MethodGet, "/openapi.json", h.openapi)
	}

	return r
}

// =============================================================================
// Middleware
// =============================================================================

func (h *Handler) requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Handlers
// =============================================================================

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handler) handleVersion(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, VersionResponse{Version: h.version})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		DeploymentRecord: h.status.Snapshot(),
		Deploying:        h.status.Deploying(),
	}
	if wantsYAML(r) {
		h.writeYAML(w, http.StatusOK, resp)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// handleLogs returns the trace; ?since=N skips the first N lines so pollers
// can fetch only what is new.
func (h *Handler) handleLogs(w http.ResponseWriter, r *http.Request) {
	logs := h.status.Snapshot().Logs

	since := 0
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			h.writeError(w, http.StatusBadRequest, "since must be a non-negative integer")
			return
		}
		since = n
	}
	total := len(logs)
	if since > total {
		since = total
	}

	h.writeJSON(w, http.StatusOK, LogsResponse{Logs: logs[since:], Total: total})
}

func (h *Handler) handleContainers(w http.ResponseWriter, r *http.Request) {
	ids := h.status.Snapshot().ContainerIDs
	views := make([]ContainerView, 0, len(ids))

	for _, id := range ids {
		info, err := h.engine.InspectContainer(r.Context(), id)
		if err != nil {
			view := ContainerView{ID: id, Error: err.Error()}
			if errors.Is(err, docker.ErrContainerNotFound) {
				view.State = "missing"
			}
			views = append(views, view)
			continue
		}
		views = append(views, containerView(info))
	}

	h.writeJSON(w, http.StatusOK, ContainersResponse{Containers: views})
}

// Bounds of the ?tail= parameter of the container log endpoint.
const (
	defaultLogTail = 100
	maxLogTail     = 5000
)

// handleContainerLogs tails the output of one tracked container. IDs outside
// the tracked set are reported as not found.
func (h *Handler) handleContainerLogs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !tracked(h.status.Snapshot().ContainerIDs, id) {
		h.writeError(w, http.StatusNotFound, "container "+id+" is not tracked")
		return
	}

	tail := defaultLogTail
	if v := r.URL.Query().Get("tail"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxLogTail {
			h.writeError(w, http.StatusBadRequest, "tail must be an integer between 1 and "+strconv.Itoa(maxLogTail))
			return
		}
		tail = n
	}

	lines, err := h.engine.ContainerLogs(r.Context(), id, tail)
	if err != nil {
		if errors.Is(err, docker.ErrContainerNotFound) {
			h.writeError(w, http.StatusNotFound, "container "+id+" no longer exists")
			return
		}
		h.logger.Error("failed to read container logs", "container_id", id, "error", err)
		h.writeError(w, http.StatusBadGateway, "failed to read container logs")
		return
	}
	if lines == nil {
		lines = []string{}
	}
	h.writeJSON(w, http.StatusOK, ContainerLogsResponse{ID: id, Lines: lines})
}

func (h *Handler) handlePrerequisites(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	checks := h.prereqs.CheckPrerequisites(ctx)
	ready := true
	for _, c := range checks {
		if !c.Available {
			ready = false
		}
	}
	h.writeJSON(w, http.StatusOK, PrerequisitesResponse{Ready: ready, Checks: checks})
}

func (h *Handler) handleJobRuns(w http.ResponseWriter, r *http.Request) {
	opts := store.DefaultListOptions()
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Offset = n
		}
	}

	runs, err := h.runs.ListJobRuns(r.Context(), opts)
	if err != nil {
		h.logger.Error("failed to list job runs", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list job runs")
		return
	}
	if runs == nil {
		runs = []domain.JobRun{}
	}
	h.writeJSON(w, http.StatusOK, JobRunsResponse{Runs: runs})
}

// =============================================================================
// Helpers
// =============================================================================

func tracked(ids []string, id string) bool {
	for _, t := range ids {
		if t == id {
			return true
		}
	}
	return false
}

func wantsYAML(r *http.Request) bool {
	if r.URL.Query().Get("format") == "yaml" {
		return true
	}
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/yaml") || strings.Contains(accept, "application/x-yaml")
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeYAML(w http.ResponseWriter, status int, v any) {
	out, err := yaml.Marshal(v)
	if err != nil {
		h.logger.Error("failed to encode yaml response", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to encode response")
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(status)
	w.Write(out)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, detail string) {
	h.writeJSON(w, status, ErrorResponse{Errors: []ErrorObject{{
		Status: strconv.Itoa(status),
		Title:  http.StatusText(status),
		Detail: detail,
	}}})
}
