// Package workers contains background workers for the daemon.
package workers

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/artpar/orbit-raas/internal/shell/docker"
	"github.com/artpar/orbit-raas/internal/shell/metrics"
	"github.com/artpar/orbit-raas/internal/shell/orchestrator"
)

// Reconciler refreshes the tracked container IDs from the engine.
type Reconciler interface {
	Reconcile(ctx context.Context, dctx *orchestrator.Context) ([]string, error)
}

// Inspector reads the live state of one container.
type Inspector interface {
	InspectContainer(ctx context.Context, containerID string) (*docker.ContainerInfo, error)
}

// ContainerWatcherConfig configures the container watcher.
type ContainerWatcherConfig struct {
	// Interval is the time between cycles.
	// Default: 60 seconds.
	Interval time.Duration

	// InspectTimeout bounds the inspection of a single container.
	// Default: 10 seconds.
	InspectTimeout time.Duration

	// MaxConcurrent is the maximum number of containers inspected at once.
	// Default: 5.
	MaxConcurrent int
}

// DefaultContainerWatcherConfig returns the default configuration.
func DefaultContainerWatcherConfig() ContainerWatcherConfig {
	return ContainerWatcherConfig{
		Interval:       60 * time.Second,
		InspectTimeout: 10 * time.Second,
		MaxConcurrent:  5,
	}
}

// CycleResult summarizes one watcher cycle.
type CycleResult struct {
	Skipped   bool     // not deployed, or a deploy is running
	Tracked   []string // container IDs after reconciliation
	Unhealthy []string // tracked IDs that are missing, stopped or unhealthy
}

// ContainerWatcher periodically reconciles the tracked container IDs of a
// deployed rollup and inspects each container's health.
type ContainerWatcher struct {
	reconciler Reconciler
	inspector  Inspector
	dctx       *orchestrator.Context
	metrics    *metrics.Metrics
	config     ContainerWatcherConfig
	logger     *slog.Logger

	mu        sync.Mutex
	unhealthy map[string]bool

	// Lifecycle management
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewContainerWatcher creates a new container watcher.
func NewContainerWatcher(
	reconciler Reconciler,
	inspector Inspector,
	dctx *orchestrator.Context,
	m *metrics.Metrics,
	config ContainerWatcherConfig,
	logger *slog.Logger,
) *ContainerWatcher {
	if config.Interval == 0 {
		config.Interval = 60 * time.Second
	}
	if config.InspectTimeout == 0 {
		config.InspectTimeout = 10 * time.Second
	}
	if config.MaxConcurrent == 0 {
		config.MaxConcurrent = 5
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &ContainerWatcher{
		reconciler: reconciler,
		inspector:  inspector,
		dctx:       dctx,
		metrics:    m,
		config:     config,
		unhealthy:  make(map[string]bool),
		logger:     logger.With("component", "container_watcher"),
	}
}

// Start begins the watcher goroutine. The first cycle runs after one
// interval; startup reconciliation is the caller's job.
func (w *ContainerWatcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.run(ctx)

	w.logger.Info("container watcher started",
		"interval", w.config.Interval,
		"max_concurrent", w.config.MaxConcurrent,
	)
}

// Stop stops the watcher and waits for an in-progress cycle.
func (w *ContainerWatcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.logger.Info("container watcher stopped")
}

func (w *ContainerWatcher) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.CheckNow(ctx)
		}
	}
}

// CheckNow runs one cycle immediately.
func (w *ContainerWatcher) CheckNow(ctx context.Context) CycleResult {
	if !w.dctx.Deployed() || w.dctx.Deploying() {
		w.logger.Debug("skipping cycle, rollup not settled")
		return CycleResult{Skipped: true}
	}

	ctx, cancel := context.WithTimeout(ctx, w.config.Interval)
	defer cancel()

	ids, err := w.reconciler.Reconcile(ctx, w.dctx)
	if orchestrator.IsNotDeployed(err) {
		w.logger.Debug("skipping cycle, deployment was reset")
		return CycleResult{Skipped: true}
	}
	if err != nil {
		w.logger.Warn("failed to reconcile containers", "error", err)
		ids = w.dctx.Snapshot().ContainerIDs
	}

	unhealthy := w.inspectAll(ctx, ids)
	w.metrics.SetUnhealthyContainers(len(unhealthy))
	w.recordTransitions(ids, unhealthy)

	return CycleResult{Tracked: ids, Unhealthy: unhealthy}
}

// inspectAll inspects every container with bounded concurrency and returns
// the unhealthy IDs, sorted.
func (w *ContainerWatcher) inspectAll(ctx context.Context, ids []string) []string {
	sem := make(chan struct{}, w.config.MaxConcurrent)
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		unhealthy []string
	)

	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()

			select {
			case <-ctx.Done():
				return
			case sem <- struct{}{}:
				defer func() { <-sem }()
			}

			if reason := w.inspect(ctx, id); reason != "" {
				w.logger.Debug("container unhealthy", "container_id", id, "reason", reason)
				mu.Lock()
				unhealthy = append(unhealthy, id)
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	sort.Strings(unhealthy)
	return unhealthy
}

// inspect returns why a container is unhealthy, or "" when it is fine.
func (w *ContainerWatcher) inspect(ctx context.Context, id string) string {
	ctx, cancel := context.WithTimeout(ctx, w.config.InspectTimeout)
	defer cancel()

	info, err := w.inspector.InspectContainer(ctx, id)
	switch {
	case err != nil:
		return err.Error()
	case !info.Running():
		return "state " + string(info.Status)
	case info.Health == "unhealthy":
		return "failing health check"
	}
	return ""
}

// recordTransitions logs containers that changed between healthy and
// unhealthy since the previous cycle.
func (w *ContainerWatcher) recordTransitions(ids, unhealthy []string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := make(map[string]bool, len(unhealthy))
	for _, id := range unhealthy {
		now[id] = true
		if !w.unhealthy[id] {
			w.logger.Warn("container became unhealthy", "container_id", id)
		}
	}
	for _, id := range ids {
		if w.unhealthy[id] && !now[id] {
			w.logger.Info("container recovered", "container_id", id)
		}
	}
	w.unhealthy = now
}
