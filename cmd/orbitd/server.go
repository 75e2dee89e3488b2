package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/artpar/orbit-raas/internal/core/domain"
	"github.com/artpar/orbit-raas/internal/shell/api"
	"github.com/artpar/orbit-raas/internal/shell/docker"
	"github.com/artpar/orbit-raas/internal/shell/jobs"
	"github.com/artpar/orbit-raas/internal/shell/metrics"
	"github.com/artpar/orbit-raas/internal/shell/objectstore"
	"github.com/artpar/orbit-raas/internal/shell/orchestrator"
	"github.com/artpar/orbit-raas/internal/shell/process"
	"github.com/artpar/orbit-raas/internal/shell/store"
	"github.com/artpar/orbit-raas/internal/shell/workers"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess         = 0
	ExitConfigError     = 1
	ExitDatabaseError   = 2
	ExitDockerError     = 3
	ExitHTTPServerError = 4
)

// =============================================================================
// Server
// =============================================================================

// Server owns the long-lived components of the daemon.
type Server struct {
	config       *Config
	statusServer *http.Server
	jobsServer   *http.Server
	store        *store.SQLiteStore
	docker       docker.Client
	orchestrator *orchestrator.Orchestrator
	context      *orchestrator.Context
	metrics      *metrics.Metrics
	watcher      *workers.ContainerWatcher
	noDeploy     bool
	tasks        sync.WaitGroup
	logger       *slog.Logger
}

// ServerOptions carries command-line switches.
type ServerOptions struct {
	NoDeploy bool
}

// NewServer creates a new server with the given config.
func NewServer(ctx context.Context, cfg *Config, opts ServerOptions, logger *slog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitConfigError}
	}

	if err := mkdirFor(cfg.Database.DSN); err != nil {
		return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitDatabaseError}
	}

	s, err := store.NewSQLiteStore(cfg.Database.DSN)
	if err != nil {
		return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitDatabaseError}
	}

	runner := process.NewExecRunner(cfg.Deploy.CommandTimeout, logger)

	d, err := docker.NewClient(ctx, docker.EngineConfig{
		Driver:  docker.Driver(cfg.Docker.Driver),
		Host:    cfg.Docker.Host,
		Timeout: cfg.Deploy.NetworkTimeout,
	}, runner, logger)
	if err != nil {
		s.Close()
		return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitDockerError}
	}

	m := metrics.New()

	dctx := orchestrator.NewContext(cfg.Credentials(), s, logger)
	dctx.Observe(func(rec domain.DeploymentRecord) {
		m.SetRecordState(rec.Deployed, len(rec.ContainerIDs))
	})

	rec, err := s.LoadRecord(ctx)
	switch {
	case err == nil:
		dctx.Restore(*rec)
		logger.Info("restored deployment record",
			"state", rec.State,
			"deployed", rec.Deployed,
			"containers", len(rec.ContainerIDs),
		)
	case errors.Is(err, store.ErrNotFound):
		logger.Info("no persisted deployment record")
	default:
		s.Close()
		d.Close()
		return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitDatabaseError}
	}
	snapshot := dctx.Snapshot()
	m.SetRecordState(snapshot.Deployed, len(snapshot.ContainerIDs))

	var checks []orchestrator.Check
	if osCfg, ok := cfg.ObjectStoreChecker(); ok {
		checker, err := objectstore.NewChecker(osCfg, logger)
		if err != nil {
			logger.Warn("fallback storage check disabled", "error", err)
		} else {
			checks = append(checks, checker)
		}
	}

	orchCfg := orchestrator.Config{
		WorkDir:        cfg.Deploy.WorkDir,
		Metadata:       cfg.Metadata(),
		ComposeCommand: cfg.Deploy.ComposeCommand,
		CommandTimeout: cfg.Deploy.CommandTimeout,
		NetworkTimeout: cfg.Deploy.NetworkTimeout,
	}
	if cfg.Deploy.StopTimeout > 0 {
		stop := cfg.Deploy.StopTimeout
		orchCfg.StopTimeout = &stop
	}
	orch := orchestrator.New(orchCfg, runner, d,
		orchestrator.WithMetrics(m),
		orchestrator.WithChecks(checks...),
		orchestrator.WithLogger(logger),
	)

	handlers := jobs.NewHandlers(jobs.Config{
		Operations: orch,
		Context:    dctx,
		Runs:       s,
		Metrics:    m,
		Logger:     logger,
	})

	statusHandler := api.NewHandler(api.Config{
		Status:  dctx,
		Engine:  d,
		Prereqs: orch,
		Runs:    s,
		Metrics: m.Handler(),
		OpenAPI: api.NewOpenAPI(Version, "http://"+cfg.Server.Address(), "http://"+cfg.Jobs.Address()).Handler(),
		Version: Version,
		Logger:  logger,
	})

	var watcher *workers.ContainerWatcher
	if cfg.Deploy.WatchInterval > 0 {
		wcfg := workers.DefaultContainerWatcherConfig()
		wcfg.Interval = cfg.Deploy.WatchInterval
		watcher = workers.NewContainerWatcher(orch, d, dctx, m, wcfg, logger)
	}

	return &Server{
		config: cfg,
		statusServer: &http.Server{
			Addr:         cfg.Server.Address(),
			Handler:      statusHandler.Routes(),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		jobsServer: &http.Server{
			Addr: cfg.Jobs.Address(),
			Handler: jobs.NewRouter(jobs.ServerConfig{
				Handlers: handlers,
				Runs:     s,
				Token:    cfg.Jobs.Token,
				Logger:   logger,
			}),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Jobs.WriteTimeout,
		},
		store:        s,
		docker:       d,
		orchestrator: orch,
		context:      dctx,
		metrics:      m,
		watcher:      watcher,
		noDeploy:     opts.NoDeploy,
		logger:       logger,
	}, nil
}

// Start runs the background tasks and both HTTP servers until a signal
// arrives or a server fails.
func (s *Server) Start(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	taskCtx, cancelTasks := context.WithCancel(ctx)
	defer cancelTasks()

	s.startTasks(taskCtx)
	if s.watcher != nil {
		s.watcher.Start(taskCtx)
	}

	errCh := make(chan error, 2)
	for name, srv := range map[string]*http.Server{"status": s.statusServer, "jobs": s.jobsServer} {
		go func() {
			s.logger.Info("starting HTTP server", "server", name, "address", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	var runErr error
	select {
	case sig := <-sigCh:
		s.logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		runErr = &ServerError{Op: "Start", Err: err, ExitCode: ExitHTTPServerError}
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	cancelTasks()
	if err := s.Shutdown(context.Background()); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// startTasks checks prerequisites, then reconciles a restored deployment or
// starts the automatic deploy.
func (s *Server) startTasks(ctx context.Context) {
	s.tasks.Add(1)
	go func() {
		defer s.tasks.Done()

		for _, p := range s.orchestrator.CheckPrerequisites(ctx) {
			if !p.Available {
				s.logger.Warn("prerequisite unavailable", "name", p.Name, "detail", p.Detail)
			}
		}

		switch {
		case s.context.Deployed():
			ids, err := s.orchestrator.Reconcile(ctx, s.context)
			if err != nil {
				s.logger.Warn("failed to reconcile containers", "error", err)
				return
			}
			s.logger.Info("reconciled containers", "containers", len(ids))

		case s.noDeploy || !s.config.Deploy.AutoDeploy:
			s.logger.Info("automatic deploy disabled")

		default:
			rec, err := s.orchestrator.Deploy(ctx, s.context)
			if err != nil {
				s.logger.Error("deploy failed", "error", err, "completed_steps", len(rec.Logs))
				return
			}
			s.logger.Info("rollup deployed", "containers", len(rec.ContainerIDs))
		}
	}()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
	defer cancel()

	if err := s.jobsServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("jobs server shutdown error", "error", err)
	}
	if err := s.statusServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("status server shutdown error", "error", err)
	}

	if s.watcher != nil {
		s.watcher.Stop()
	}

	done := make(chan struct{})
	go func() {
		s.tasks.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		s.logger.Warn("background task still running at shutdown")
	}

	if err := s.docker.Close(); err != nil {
		s.logger.Error("docker client close error", "error", err)
	}

	if err := s.store.Close(); err != nil {
		s.logger.Error("database close error", "error", err)
	}

	s.logger.Info("shutdown complete")
	return nil
}

// mkdirFor creates the parent directory of a file-backed DSN.
func mkdirFor(dsn string) error {
	path := dsnPath(dsn)
	if path == "" {
		return nil
	}
	if dir := filepath.Dir(path); dir != "." {
		return os.MkdirAll(dir, 0o755)
	}
	return nil
}

// dsnPath strips a "file:" scheme and query parameters from a SQLite DSN.
func dsnPath(dsn string) string {
	path, _, _ := strings.Cut(strings.TrimPrefix(dsn, "file:"), "?")
	if path == ":memory:" {
		return ""
	}
	return path
}

// =============================================================================
// Server Error
// =============================================================================

// ServerError represents an error during server operation.
type ServerError struct {
	Op       string
	Err      error
	ExitCode int
}

func (e *ServerError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ServerError) Unwrap() error {
	return e.Err
}
