package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/artpar/orbit-raas/internal/core/deployment"
	"github.com/artpar/orbit-raas/internal/core/domain"
	"github.com/artpar/orbit-raas/internal/shell/docker"
	"github.com/artpar/orbit-raas/internal/shell/process"
)

// =============================================================================
// Fake Runner
// =============================================================================

// fakeRunner simulates the external tools. By default every command succeeds
// and produces the files the real tool would.
type fakeRunner struct {
	mu    sync.Mutex
	calls []process.Cmd

	// fail maps a command key (see key) to the error it returns
	fail map[string]error

	// skipArtifacts makes the contract deploy succeed without writing output
	skipArtifacts bool

	// blockOn pauses a command key until release is closed
	blockOn string
	started chan struct{}
	release chan struct{}

	psOutput string

	// afterClone runs once a clone target was created
	afterClone func(dir string)
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		fail:     make(map[string]error),
		psOutput: "c0ffee01\nc0ffee02\n",
	}
}

// key identifies a call by executable and first argument, e.g. "git clone".
func key(cmd process.Cmd) string {
	if len(cmd.Args) == 0 {
		return cmd.Command
	}
	return cmd.Command + " " + cmd.Args[0]
}

func (r *fakeRunner) Run(ctx context.Context, cmd process.Cmd) (process.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, cmd)
	err := r.fail[key(cmd)]
	block := r.blockOn != "" && r.blockOn == key(cmd)
	r.mu.Unlock()

	if block {
		close(r.started)
		<-r.release
	}
	if err != nil {
		return process.Result{}, err
	}

	switch key(cmd) {
	case "git clone":
		dir := cmd.Args[len(cmd.Args)-1]
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return process.Result{}, err
		}
		if r.afterClone != nil {
			r.afterClone(dir)
		}
	case "npm run":
		if !r.skipArtifacts {
			for _, name := range []string{deployment.NodeConfigFile, deployment.SetupScriptConfigFile} {
				if err := os.WriteFile(filepath.Join(cmd.Dir, name), []byte(`{"chain":412346}`), 0o644); err != nil {
					return process.Result{}, err
				}
			}
		}
	case "docker-compose ps":
		return process.Result{Stdout: r.psOutput}, nil
	}
	return process.Result{}, nil
}

func (r *fakeRunner) keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var keys []string
	for _, c := range r.calls {
		keys = append(keys, key(c))
	}
	return keys
}

func (r *fakeRunner) find(k string) (process.Cmd, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.calls {
		if key(c) == k {
			return c, true
		}
	}
	return process.Cmd{}, false
}

func (r *fakeRunner) blockUntilReleased(k string) {
	r.blockOn = k
	r.started = make(chan struct{})
	r.release = make(chan struct{})
}

func commandFailure(cmd, stderr string) error {
	return &process.CommandError{
		Name:     cmd,
		Command:  cmd,
		ExitCode: 1,
		Stderr:   stderr,
		Err:      process.ErrNonZeroExit,
	}
}

// =============================================================================
// Fake Engine
// =============================================================================

type fakeEngine struct {
	mu         sync.Mutex
	pulled     []string
	stopped    []string
	pullErr    error
	stopErr    map[string]error
	pingErr    error
	noImage    bool // pull succeeds but the image is absent afterwards
	containers []docker.ContainerInfo
	listOpts   []docker.ListOptions
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{stopErr: make(map[string]error)}
}

func (e *fakeEngine) StopContainer(ctx context.Context, id string, timeout *time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.stopErr[id]; err != nil {
		return err
	}
	e.stopped = append(e.stopped, id)
	return nil
}

func (e *fakeEngine) InspectContainer(ctx context.Context, id string) (*docker.ContainerInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, c := range e.containers {
		if c.ID == id {
			c := c
			return &c, nil
		}
	}
	return nil, docker.ErrContainerNotFound
}

func (e *fakeEngine) ListContainers(ctx context.Context, opts docker.ListOptions) ([]docker.ContainerInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listOpts = append(e.listOpts, opts)

	// Apply the filters the engine would
	var out []docker.ContainerInfo
	for _, c := range e.containers {
		if !opts.All && !c.Running() {
			continue
		}
		if label, ok := opts.Filters["label"]; ok {
			k, v, _ := strings.Cut(label, "=")
			if c.Labels[k] != v {
				continue
			}
		}
		out = append(out, c)
	}
	return out, nil
}

func (e *fakeEngine) ContainerLogs(ctx context.Context, id string, tail int) ([]string, error) {
	return nil, docker.ErrContainerNotFound
}

func (e *fakeEngine) PullImage(ctx context.Context, image string, opts docker.PullOptions) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pullErr != nil {
		return e.pullErr
	}
	e.pulled = append(e.pulled, image)
	return nil
}

func (e *fakeEngine) ImageExists(ctx context.Context, image string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.noImage, nil
}

func (e *fakeEngine) Ping(ctx context.Context) error {
	return e.pingErr
}

func (e *fakeEngine) Close() error {
	return nil
}

// =============================================================================
// Fake Sink
// =============================================================================

type fakeSink struct {
	mu    sync.Mutex
	saved []domain.DeploymentRecord
	err   error
}

func (s *fakeSink) SaveRecord(ctx context.Context, rec domain.DeploymentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, rec)
	return s.err
}

func (s *fakeSink) last() domain.DeploymentRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved[len(s.saved)-1]
}

// =============================================================================
// Harness
// =============================================================================

type harness struct {
	orch   *Orchestrator
	dctx   *Context
	runner *fakeRunner
	engine *fakeEngine
	sink   *fakeSink
}

func testCredentials() domain.OperatorCredentials {
	return domain.OperatorCredentials{
		DeployerPrivateKey:    "0xdeployerkey",
		BatchPosterPrivateKey: "0xposterkey",
		ValidatorPrivateKey:   "0xvalidatorkey",
		AvailAddrSeed:         "bottom drive obey lake curtain smoke basket hold race lonely fit walk",
	}
}

func testMetadata() domain.RollupMetadata {
	return domain.RollupMetadata{
		Name:             deployment.DefaultRollupName,
		ChainID:          deployment.DefaultChainID,
		AvailAppID:       "7",
		ParentChainRPC:   "https://sepolia-rollup.arbitrum.io/rpc",
		LocalRPCEndpoint: deployment.DefaultLocalRPCEndpoint,
		ExplorerURL:      deployment.DefaultExplorerURL,
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		runner: newFakeRunner(),
		engine: newFakeEngine(),
		sink:   &fakeSink{},
	}
	cfg := Config{
		WorkDir:  filepath.Join(t.TempDir(), "orbit-deployment"),
		Metadata: testMetadata(),
	}
	h.orch = New(cfg, h.runner, h.engine)
	h.dctx = NewContext(testCredentials(), h.sink, nil)
	return h
}

// markDeployed installs a deployed record without running the pipeline.
func (h *harness) markDeployed(t *testing.T, ids ...string) {
	t.Helper()
	rec := domain.NewDeploymentRecord()
	rec.State = domain.StateDeployed
	rec.Deployed = true
	m := testMetadata()
	rec.Metadata = &m
	rec.Logs = []string{"Successfully pulled avail-nitro-node Docker image"}
	rec.ContainerIDs = ids
	h.dctx.Restore(rec)
	require.True(t, h.dctx.Deployed())
}

func hasPrefix(prefix, full []string) bool {
	if len(prefix) > len(full) {
		return false
	}
	for i := range prefix {
		if prefix[i] != full[i] {
			return false
		}
	}
	return true
}

// projectContainer is a container of the default compose project.
func projectContainer(id string, status docker.ContainerStatus) docker.ContainerInfo {
	return docker.ContainerInfo{
		ID:     id,
		Status: status,
		Labels: map[string]string{docker.LabelComposeProject: "orbit-setup-script"},
	}
}

var errBoom = errors.New("boom")
