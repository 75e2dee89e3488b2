package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/artpar/orbit-raas/internal/core/deployment"
	"github.com/artpar/orbit-raas/internal/core/domain"
	"github.com/artpar/orbit-raas/internal/shell/docker"
	"github.com/artpar/orbit-raas/internal/shell/metrics"
	"github.com/artpar/orbit-raas/internal/shell/process"
)

// =============================================================================
// Configuration
// =============================================================================

// Config holds orchestrator settings.
type Config struct {
	// WorkDir is the deployment working directory ("orbit-deployment" if empty).
	WorkDir string

	// Metadata is installed into the record by a successful deploy.
	Metadata domain.RollupMetadata

	// ComposeCommand is the compose tool invocation, e.g. ["docker", "compose"].
	ComposeCommand []string

	// CommandTimeout bounds contract deployment, chain start and the bridge script.
	CommandTimeout time.Duration

	// NetworkTimeout bounds the image pull and the clones.
	NetworkTimeout time.Duration

	// StopTimeout is passed to the engine when stopping a container (nil = engine default).
	StopTimeout *time.Duration
}

// DefaultConfig returns default orchestrator settings.
func DefaultConfig() Config {
	return Config{
		WorkDir:        "orbit-deployment",
		ComposeCommand: []string{deployment.ComposeCommand},
		CommandTimeout: 30 * time.Minute,
		NetworkTimeout: 15 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.WorkDir == "" {
		c.WorkDir = d.WorkDir
	}
	if len(c.ComposeCommand) == 0 {
		c.ComposeCommand = d.ComposeCommand
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = d.CommandTimeout
	}
	if c.NetworkTimeout <= 0 {
		c.NetworkTimeout = d.NetworkTimeout
	}
	return c
}

// =============================================================================
// Orchestrator
// =============================================================================

// Orchestrator runs the pipeline and the post-deploy operations against a
// shared Context. It holds no record state of its own.
type Orchestrator struct {
	config  Config
	layout  deployment.Layout
	runner  process.Runner
	engine  docker.Client
	metrics *metrics.Metrics
	checks  []Check
	logger  *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMetrics records stage and deploy metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithChecks adds extra prerequisite checks (e.g. fallback storage).
func WithChecks(checks ...Check) Option {
	return func(o *Orchestrator) { o.checks = append(o.checks, checks...) }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// New creates an orchestrator.
func New(cfg Config, runner process.Runner, engine docker.Client, opts ...Option) *Orchestrator {
	cfg = cfg.withDefaults()
	o := &Orchestrator{
		config: cfg,
		layout: deployment.NewLayout(cfg.WorkDir),
		runner: runner,
		engine: engine,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With("component", "orchestrator")
	return o
}

// Layout returns the working directory layout.
func (o *Orchestrator) Layout() deployment.Layout {
	return o.layout
}

// =============================================================================
// Post-deploy Operations
// =============================================================================

// restartLog is appended after a successful restart.
const restartLog = "Successfully restarted the chain"

// Restart stops every tracked container one at a time, then brings the whole
// project back up. The first failing stop aborts; containers already stopped
// stay stopped. Tracked container IDs are not refreshed; see Reconcile.
func (o *Orchestrator) Restart(ctx context.Context, dctx *Context) error {
	handles, err := dctx.handlesIfDeployed()
	if err != nil {
		return domain.NewError("Restart", "", "rollup not deployed", err)
	}

	for _, id := range handles {
		o.logger.Info("stopping container", "container_id", id)
		if err := o.engine.StopContainer(ctx, id, o.config.StopTimeout); err != nil {
			return domain.NewError("Restart", "", "failed to stop container "+id+": "+err.Error(), err)
		}
	}

	if _, err := o.runner.Run(ctx, o.composeUp()); err != nil {
		return domain.NewError("Restart", "", err.Error(), err)
	}

	dctx.AppendLog(ctx, restartLog)
	o.logger.Info("rollup restarted", "stopped", len(handles))
	return nil
}

// UpdateMetadata replaces the record's metadata wholesale.
func (o *Orchestrator) UpdateMetadata(ctx context.Context, dctx *Context, metadata domain.RollupMetadata) error {
	err := dctx.update(ctx, func(r *domain.DeploymentRecord) error {
		return r.SetMetadata(metadata)
	})
	if err != nil {
		return domain.NewError("UpdateMetadata", "", "rollup not deployed", err)
	}
	o.logger.Info("rollup metadata updated", "name", metadata.Name, "chain_id", metadata.ChainID)
	return nil
}

// UpdateBridge re-runs the token bridge script with the credentials held in
// the context. The credentials lock is held for the whole run.
func (o *Orchestrator) UpdateBridge(ctx context.Context, dctx *Context) error {
	if !dctx.Deployed() {
		return domain.NewError("UpdateBridge", "", "rollup not deployed", domain.ErrNotDeployed)
	}

	err := dctx.withCredentials(func(creds domain.OperatorCredentials) error {
		return o.runBridge(ctx, creds)
	})
	if err != nil {
		return domain.NewError("UpdateBridge", "", err.Error(), err)
	}
	o.logger.Info("token bridge updated")
	return nil
}

// Reconcile replaces the tracked container IDs with the containers the engine
// reports for the setup script's compose project. Stopped and exited
// containers stay tracked so health checks can report them.
func (o *Orchestrator) Reconcile(ctx context.Context, dctx *Context) ([]string, error) {
	if !dctx.Deployed() {
		return nil, domain.NewError("Reconcile", "", "rollup not deployed", domain.ErrNotDeployed)
	}

	project := o.composeProjectName()
	containers, err := o.engine.ListContainers(ctx, docker.ProjectFilter(project, true))
	if err != nil {
		return nil, domain.NewError("Reconcile", "", err.Error(), err)
	}

	ids := make([]string, 0, len(containers))
	for _, c := range containers {
		ids = append(ids, c.ID)
	}

	err = dctx.update(ctx, func(r *domain.DeploymentRecord) error {
		if !r.Deployed {
			return domain.ErrNotDeployed
		}
		r.SetContainerIDs(ids)
		return nil
	})
	if err != nil {
		return nil, domain.NewError("Reconcile", "", err.Error(), err)
	}

	o.logger.Info("container IDs reconciled", "project", project, "count", len(ids))
	return ids, nil
}

// IsNotDeployed reports whether err came from an operation that needs a
// successful deploy first. Background callers use it to tell a rollup that is
// not up yet from a real failure.
func IsNotDeployed(err error) bool {
	return errors.Is(err, domain.ErrNotDeployed)
}
