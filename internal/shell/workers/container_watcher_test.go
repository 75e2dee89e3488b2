package workers

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/orbit-raas/internal/core/domain"
	"github.com/artpar/orbit-raas/internal/shell/docker"
	"github.com/artpar/orbit-raas/internal/shell/orchestrator"
)

// =============================================================================
// Test Doubles
// =============================================================================

type stubReconciler struct {
	ids   []string
	err   error
	calls atomic.Int32
}

func (r *stubReconciler) Reconcile(context.Context, *orchestrator.Context) ([]string, error) {
	r.calls.Add(1)
	return r.ids, r.err
}

type stubInspector struct {
	mu         sync.Mutex
	containers map[string]*docker.ContainerInfo
	inflight   int
	maxSeen    int
}

func (s *stubInspector) InspectContainer(_ context.Context, id string) (*docker.ContainerInfo, error) {
	s.mu.Lock()
	s.inflight++
	if s.inflight > s.maxSeen {
		s.maxSeen = s.inflight
	}
	info, ok := s.containers[id]
	s.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	s.mu.Lock()
	s.inflight--
	s.mu.Unlock()

	if !ok {
		return nil, docker.ErrContainerNotFound
	}
	return info, nil
}

func running(id string) *docker.ContainerInfo {
	return &docker.ContainerInfo{ID: id, Status: docker.ContainerStatusRunning}
}

func deployedContext(ids ...string) *orchestrator.Context {
	dctx := orchestrator.NewContext(domain.OperatorCredentials{}, nil, nil)
	rec := domain.NewDeploymentRecord()
	rec.State = domain.StateDeployed
	rec.Deployed = true
	rec.Metadata = &domain.RollupMetadata{Name: "orbit"}
	rec.SetContainerIDs(ids)
	dctx.Restore(rec)
	return dctx
}

// =============================================================================
// Configuration
// =============================================================================

func TestDefaultContainerWatcherConfig(t *testing.T) {
	config := DefaultContainerWatcherConfig()

	assert.Equal(t, 60*time.Second, config.Interval)
	assert.Equal(t, 10*time.Second, config.InspectTimeout)
	assert.Equal(t, 5, config.MaxConcurrent)
}

func TestNewContainerWatcher_DefaultConfig(t *testing.T) {
	w := NewContainerWatcher(&stubReconciler{}, &stubInspector{}, deployedContext(), nil, ContainerWatcherConfig{}, nil)

	assert.Equal(t, DefaultContainerWatcherConfig(), w.config)
}

// =============================================================================
// Cycles
// =============================================================================

func TestCheckNow_SkipsUndeployed(t *testing.T) {
	rec := &stubReconciler{}
	dctx := orchestrator.NewContext(domain.OperatorCredentials{}, nil, nil)
	w := NewContainerWatcher(rec, &stubInspector{}, dctx, nil, ContainerWatcherConfig{}, slog.Default())

	res := w.CheckNow(context.Background())
	assert.True(t, res.Skipped)
	assert.Equal(t, int32(0), rec.calls.Load())
}

func TestCheckNow_ReportsUnhealthy(t *testing.T) {
	rec := &stubReconciler{ids: []string{"a", "b", "c", "d"}}
	insp := &stubInspector{containers: map[string]*docker.ContainerInfo{
		"a": running("a"),
		"b": {ID: "b", Status: docker.ContainerStatusExited},
		"c": {ID: "c", Status: docker.ContainerStatusRunning, Health: "unhealthy"},
	}}
	w := NewContainerWatcher(rec, insp, deployedContext("a"), nil, ContainerWatcherConfig{}, nil)

	res := w.CheckNow(context.Background())
	assert.False(t, res.Skipped)
	assert.Equal(t, []string{"a", "b", "c", "d"}, res.Tracked)
	assert.Equal(t, []string{"b", "c", "d"}, res.Unhealthy)
	assert.Equal(t, int32(1), rec.calls.Load())
}

func TestCheckNow_ReconcileFailureUsesTrackedIDs(t *testing.T) {
	rec := &stubReconciler{err: errors.New("engine unreachable")}
	insp := &stubInspector{containers: map[string]*docker.ContainerInfo{"x": running("x")}}
	w := NewContainerWatcher(rec, insp, deployedContext("x", "y"), nil, ContainerWatcherConfig{}, nil)

	res := w.CheckNow(context.Background())
	assert.Equal(t, []string{"x", "y"}, res.Tracked)
	assert.Equal(t, []string{"y"}, res.Unhealthy)
}

func TestCheckNow_SkipsWhenReconcileReportsNotDeployed(t *testing.T) {
	rec := &stubReconciler{err: domain.NewError("Reconcile", "", "rollup not deployed", domain.ErrNotDeployed)}
	insp := &stubInspector{containers: map[string]*docker.ContainerInfo{}}
	w := NewContainerWatcher(rec, insp, deployedContext("x"), nil, ContainerWatcherConfig{}, nil)

	res := w.CheckNow(context.Background())
	assert.True(t, res.Skipped)
	assert.Empty(t, res.Tracked)
	assert.Empty(t, res.Unhealthy)
	assert.Equal(t, 0, insp.maxSeen)
}

func TestCheckNow_BoundedConcurrency(t *testing.T) {
	ids := []string{"1", "2", "3", "4", "5", "6", "7", "8"}
	insp := &stubInspector{containers: map[string]*docker.ContainerInfo{}}
	for _, id := range ids {
		insp.containers[id] = running(id)
	}
	w := NewContainerWatcher(&stubReconciler{ids: ids}, insp, deployedContext(), nil, ContainerWatcherConfig{MaxConcurrent: 2}, nil)

	res := w.CheckNow(context.Background())
	assert.Empty(t, res.Unhealthy)
	assert.LessOrEqual(t, insp.maxSeen, 2)
}

func TestCheckNow_TracksTransitions(t *testing.T) {
	insp := &stubInspector{containers: map[string]*docker.ContainerInfo{}}
	w := NewContainerWatcher(&stubReconciler{ids: []string{"a"}}, insp, deployedContext(), nil, ContainerWatcherConfig{}, nil)

	w.CheckNow(context.Background())
	assert.True(t, w.unhealthy["a"])

	insp.mu.Lock()
	insp.containers["a"] = running("a")
	insp.mu.Unlock()

	w.CheckNow(context.Background())
	assert.False(t, w.unhealthy["a"])
}

// =============================================================================
// Lifecycle
// =============================================================================

func TestContainerWatcher_StartStop(t *testing.T) {
	rec := &stubReconciler{ids: []string{"a"}}
	insp := &stubInspector{containers: map[string]*docker.ContainerInfo{"a": running("a")}}
	w := NewContainerWatcher(rec, insp, deployedContext(), nil, ContainerWatcherConfig{Interval: 10 * time.Millisecond}, nil)

	w.Start(context.Background())
	require.Eventually(t, func() bool { return rec.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	w.Stop()

	// No cycles after Stop returns
	calls := rec.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, rec.calls.Load())
}

func TestContainerWatcher_StopWithoutStart(t *testing.T) {
	w := NewContainerWatcher(&stubReconciler{}, &stubInspector{}, deployedContext(), nil, ContainerWatcherConfig{}, nil)
	w.Stop()
}
