package jobs

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/artpar/orbit-raas/internal/core/domain"
	"github.com/artpar/orbit-raas/internal/shell/store"
)

// maxBodyBytes bounds a job argument.
const maxBodyBytes = 1 << 20

// RunLister lists recorded job runs.
type RunLister interface {
	ListJobRuns(ctx context.Context, opts store.ListOptions) ([]domain.JobRun, error)
}

// ServerConfig configures the job router.
type ServerConfig struct {
	Handlers *Handlers
	Runs     RunLister // optional, enables GET /jobs/runs
	Token    string    // optional bearer token
	Logger   *slog.Logger
}

// NewRouter builds the job invocation router.
//
//	POST /jobs/{id}   invoke a job, the body is the job argument
//	GET  /jobs/runs   recent job runs, newest first
//	GET  /health      liveness
func NewRouter(cfg ServerConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	logger := cfg.Logger.With("component", "jobs_api")
	s := &server{handlers: cfg.Handlers, runs: cfg.Runs, logger: logger}

	router := mux.NewRouter()
	router.Use(requestIDMiddleware)
	router.Use(recoveryMiddleware(logger))

	router.HandleFunc("/health", s.health).Methods("GET")

	protected := router.PathPrefix("/jobs").Subrouter()
	if cfg.Token != "" {
		protected.Use(bearerAuthMiddleware(cfg.Token))
	}
	protected.HandleFunc("/runs", s.listRuns).Methods("GET")
	protected.HandleFunc("/{id:[0-9]+}", s.invoke).Methods("POST")

	return router
}

type server struct {
	handlers *Handlers
	runs     RunLister
	logger   *slog.Logger
}

// =============================================================================
// Handlers
// =============================================================================

func (s *server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *server) invoke(w http.ResponseWriter, r *http.Request) {
	raw, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 8)
	if err != nil || !domain.JobID(raw).Known() {
		writeError(w, http.StatusNotFound, "unknown job id "+mux.Vars(r)["id"])
		return
	}
	id := domain.JobID(raw)
	callID := r.Header.Get("X-Call-ID")
	if callID == "" {
		callID = newCallID()
	}

	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var result Result
	switch id {
	case domain.JobModifyRollupMetadata:
		var metadata domain.RollupMetadata
		if err := decodeArgument(body, &metadata); err != nil {
			result = s.handlers.DecodeFailure(r.Context(), callID, id, err)
		} else {
			result = s.handlers.ModifyRollupMetadataCall(r.Context(), callID, metadata)
		}
	case domain.JobDepositFunds:
		var req domain.DepositRequest
		if err := decodeArgument(body, &req); err != nil {
			result = s.handlers.DecodeFailure(r.Context(), callID, id, err)
		} else {
			result = s.handlers.DepositFundsCall(r.Context(), callID, req)
		}
	case domain.JobRefund:
		var req domain.RefundRequest
		if err := decodeArgument(body, &req); err != nil {
			result = s.handlers.DecodeFailure(r.Context(), callID, id, err)
		} else {
			result = s.handlers.RefundCall(r.Context(), callID, req)
		}
	default:
		result, _ = s.handlers.Call(r.Context(), callID, id)
	}

	// Outcomes travel in the result string, the transport always succeeds.
	writeJSON(w, http.StatusOK, result)
}

func (s *server) listRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusNotFound, "job run history is not enabled")
		return
	}

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

	runs, err := s.runs.ListJobRuns(r.Context(), opts)
	if err != nil {
		s.logger.Error("failed to list job runs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list job runs")
		return
	}
	if runs == nil {
		runs = []domain.JobRun{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// decodeArgument decodes a job argument into v, rejecting unknown fields.
func decodeArgument(body io.Reader, v any) error {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty request body")
		}
		return err
	}
	return nil
}

// =============================================================================
// Middleware
// =============================================================================

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = "req_" + uuid.New().String()
		}
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r)
	})
}

func recoveryMiddleware(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic recovered", "error", err, "path", r.URL.Path)
					writeError(w, http.StatusInternalServerError, "an unexpected error occurred")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func bearerAuthMiddleware(token string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeError(w, http.StatusUnauthorized, "missing or invalid bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// =============================================================================
// Helpers
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"errors": []map[string]any{
			{
				"status": strconv.Itoa(status),
				"title":  http.StatusText(status),
				"detail": detail,
			},
		},
	})
}
