package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/artpar/orbit-raas/internal/core/compose"
	"github.com/artpar/orbit-raas/internal/core/deployment"
	"github.com/artpar/orbit-raas/internal/core/domain"
	"github.com/artpar/orbit-raas/internal/shell/docker"
	"github.com/artpar/orbit-raas/internal/shell/process"
)

// =============================================================================
// Deploy
// =============================================================================

// deployRun carries one Deploy invocation's state between stages.
type deployRun struct {
	id     string
	dctx   *Context
	local  *domain.DeploymentRecord
	logger *slog.Logger
}

// setContainerIDs updates both the local copy and the shared record.
func (r *deployRun) setContainerIDs(ctx context.Context, ids []string) {
	r.local.SetContainerIDs(ids)
	_ = r.dctx.update(ctx, func(rec *domain.DeploymentRecord) error {
		rec.SetContainerIDs(ids)
		return nil
	})
}

type stageFunc func(ctx context.Context, run *deployRun) error

func (o *Orchestrator) stageFuncs() map[deployment.StageName]stageFunc {
	return map[deployment.StageName]stageFunc{
		deployment.StagePullImage:       o.pullImage,
		deployment.StageFetchSources:    o.fetchSources,
		deployment.StageWriteConfig:     o.writeConfigFiles,
		deployment.StageDeployContracts: o.deployContracts,
		deployment.StageStartChain:      o.startChain,
		deployment.StageDeployBridge:    o.deployBridge,
	}
}

// Deploy runs every stage in order against a fresh working copy of the
// record. Each stage's log line is committed to the shared record as soon as
// the stage succeeds. The first fatal failure stops the pipeline without
// undoing earlier stages; the returned record then holds only the logs of the
// stages that succeeded in this run.
func (o *Orchestrator) Deploy(ctx context.Context, dctx *Context) (domain.DeploymentRecord, error) {
	if err := dctx.beginDeploy(); err != nil {
		return dctx.Snapshot(), domain.NewError("Deploy", "", "deployment already in progress", err)
	}
	defer dctx.endDeploy()

	local := domain.NewDeploymentRecord()
	_ = local.Transition(domain.StateDeploying)

	err := dctx.update(ctx, func(r *domain.DeploymentRecord) error {
		return r.Transition(domain.StateDeploying)
	})
	if err != nil {
		return local, domain.NewError("Deploy", "", err.Error(), err)
	}

	run := &deployRun{
		id:    "run_" + uuid.New().String(),
		dctx:  dctx,
		local: &local,
	}
	run.logger = o.logger.With("run_id", run.id)
	run.logger.Info("deploy started", "work_dir", o.layout.Root, "credentials", dctx.Credentials())

	funcs := o.stageFuncs()
	for i, spec := range deployment.Stages() {
		logger := run.logger.With("stage", spec.Name, "step", i+1)
		logger.Info("stage started")

		start := time.Now()
		stageErr := funcs[spec.Name](ctx, run)
		o.metrics.ObserveStage(string(spec.Name), time.Since(start), stageErr)

		if stageErr != nil {
			if spec.Policy == deployment.FailLogAndContinue {
				logger.Warn("stage failed, continuing", "error", stageErr)
				continue
			}
			return o.failDeploy(ctx, run, spec.Name, stageErr)
		}

		local.AppendLog(spec.SuccessLog)
		dctx.AppendLog(ctx, spec.SuccessLog)
		logger.Info("stage completed", "duration", time.Since(start))
	}

	// A redeploy keeps metadata installed by an earlier deploy or UpdateMetadata
	var metadata domain.RollupMetadata
	err = dctx.update(ctx, func(r *domain.DeploymentRecord) error {
		metadata = o.config.Metadata
		if r.Metadata != nil {
			metadata = *r.Metadata
		}
		return r.MarkDeployed(metadata)
	})
	if err != nil {
		return local, domain.NewError("Deploy", "", err.Error(), err)
	}
	_ = local.MarkDeployed(metadata)

	o.metrics.RecordDeploy(true)
	run.logger.Info("deploy finished", "containers", len(local.ContainerIDs))
	return local.Clone(), nil
}

func (o *Orchestrator) failDeploy(ctx context.Context, run *deployRun, stage deployment.StageName, cause error) (domain.DeploymentRecord, error) {
	err := domain.NewError("Deploy", string(stage), cause.Error(), cause)

	_ = run.local.MarkFailed(err.Error())
	_ = run.dctx.update(ctx, func(r *domain.DeploymentRecord) error {
		return r.MarkFailed(err.Error())
	})

	o.metrics.RecordDeploy(false)
	run.logger.Error("deploy failed", "stage", stage, "step", deployment.StageIndex(stage), "error", cause)
	return run.local.Clone(), err
}

// =============================================================================
// Stages
// =============================================================================

func (o *Orchestrator) pullImage(ctx context.Context, run *deployRun) error {
	ctx, cancel := context.WithTimeout(ctx, o.config.NetworkTimeout)
	defer cancel()

	if err := o.engine.PullImage(ctx, deployment.NodeImage, docker.PullOptions{}); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &process.CommandError{
				Name:     string(deployment.StagePullImage),
				Command:  "pull",
				Args:     []string{deployment.NodeImage},
				ExitCode: -1,
				Err:      process.ErrTimeout,
			}
		}
		return err
	}

	// A pull that streamed no error must still leave the image behind
	ok, err := o.engine.ImageExists(ctx, deployment.NodeImage)
	if err != nil {
		return err
	}
	if !ok {
		return docker.NewDockerError("PullImage", "image", deployment.NodeImage, "image absent after pull", docker.ErrImageNotFound)
	}
	return nil
}

// fetchSources clones both repositories. An existing clone target is an
// error: nothing is overwritten or merged.
func (o *Orchestrator) fetchSources(ctx context.Context, run *deployRun) error {
	if err := os.MkdirAll(o.layout.Root, 0o755); err != nil {
		return fmt.Errorf("%w: create %s: %v", domain.ErrFileSystem, o.layout.Root, err)
	}

	clones := []struct {
		repo   string
		branch string
		dir    string
	}{
		{deployment.OrbitSDKRepo, deployment.OrbitSDKBranch, o.layout.OrbitSDKDir()},
		{deployment.SetupScriptRepo, "", o.layout.SetupScriptDir()},
	}

	for _, c := range clones {
		if _, err := os.Stat(c.dir); err == nil {
			return fmt.Errorf("%w: %w: %s", domain.ErrFileSystem, domain.ErrTargetExists, c.dir)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: stat %s: %v", domain.ErrFileSystem, c.dir, err)
		}

		args := []string{"clone"}
		if c.branch != "" {
			args = append(args, "--branch", c.branch, "--single-branch")
		}
		args = append(args, c.repo, c.dir)

		_, err := o.runner.Run(ctx, process.Cmd{
			Name:    "clone " + filepath.Base(c.dir),
			Command: "git",
			Args:    args,
			Env:     map[string]string{"GIT_TERMINAL_PROMPT": "0"},
			Timeout: o.config.NetworkTimeout,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// writeConfigFiles renders the env file. Only the redacted form is logged.
func (o *Orchestrator) writeConfigFiles(ctx context.Context, run *deployRun) error {
	env := deployment.BuildEnvFile(run.dctx.Credentials(), o.config.Metadata)

	dir := o.layout.RollupDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create %s: %v", domain.ErrFileSystem, dir, err)
	}

	path := o.layout.EnvFile()
	if err := writeFileMode(path, []byte(env.Render()), 0o600); err != nil {
		return err
	}

	run.logger.Debug("env file written", "path", path, "content", env.Redacted())
	return nil
}

// deployContracts runs the deploy script, then requires both generated
// artifacts to exist even when the script exited zero.
func (o *Orchestrator) deployContracts(ctx context.Context, run *deployRun) error {
	_, err := o.runner.Run(ctx, process.Cmd{
		Name:    string(deployment.StageDeployContracts),
		Command: deployment.DeployContractsTool,
		Args:    []string{"run", deployment.DeployContractsRun},
		Dir:     o.layout.RollupDir(),
		Timeout: o.config.CommandTimeout,
	})
	if err != nil {
		return err
	}

	for _, path := range o.layout.GeneratedArtifacts() {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("%w: %s", domain.ErrArtifactMissing, path)
			}
			return fmt.Errorf("%w: stat %s: %v", domain.ErrFileSystem, path, err)
		}
	}
	return nil
}

// startChain copies the artifacts, starts the compose project detached and
// then records the container IDs. The ID lookup is best-effort.
func (o *Orchestrator) startChain(ctx context.Context, run *deployRun) error {
	configDir := o.layout.SetupConfigDir()
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("%w: create %s: %v", domain.ErrFileSystem, configDir, err)
	}
	for _, src := range o.layout.GeneratedArtifacts() {
		if err := copyFile(src, filepath.Join(configDir, filepath.Base(src)), 0o600); err != nil {
			return err
		}
	}

	if _, err := o.runner.Run(ctx, o.composeUp()); err != nil {
		return err
	}

	ids, err := o.queryContainerIDs(ctx)
	if err != nil {
		run.logger.Warn("container ID query failed, keeping previous IDs", "error", err, "policy", deployment.ContainerIDQueryPolicy)
		return nil
	}
	run.setContainerIDs(ctx, ids)
	return nil
}

func (o *Orchestrator) deployBridge(ctx context.Context, run *deployRun) error {
	return run.dctx.withCredentials(func(creds domain.OperatorCredentials) error {
		return o.runBridge(ctx, creds)
	})
}

// =============================================================================
// Helpers
// =============================================================================

func (o *Orchestrator) composeCmd(name string, args ...string) process.Cmd {
	return process.Cmd{
		Name:    name,
		Command: o.config.ComposeCommand[0],
		Args:    append(append([]string{}, o.config.ComposeCommand[1:]...), args...),
		Dir:     o.layout.SetupScriptDir(),
		Timeout: o.config.CommandTimeout,
	}
}

func (o *Orchestrator) composeUp() process.Cmd {
	return o.composeCmd("compose up", "up", "-d")
}

func (o *Orchestrator) queryContainerIDs(ctx context.Context) ([]string, error) {
	res, err := o.runner.Run(ctx, o.composeCmd("compose ps", "ps", "-q"))
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		if id := strings.TrimSpace(line); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (o *Orchestrator) runBridge(ctx context.Context, creds domain.OperatorCredentials) error {
	return o.runSetupTask(ctx, string(deployment.StageDeployBridge), deployment.BridgeRun, deployment.BridgeEnv(creds))
}

// composeProjectName resolves the label the compose tool puts on the chain's
// containers, falling back to the directory name when the file is unreadable.
func (o *Orchestrator) composeProjectName() string {
	dir := o.layout.SetupScriptDir()
	project, err := docker.LoadComposeProject(dir)
	if err == nil {
		return project.Name
	}
	o.logger.Debug("compose file unreadable, using directory name", "error", err)

	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	return compose.NormalizeProjectName(filepath.Base(abs))
}

func writeFileMode(path string, data []byte, mode os.FileMode) error {
	if err := os.WriteFile(path, data, mode); err != nil {
		return fmt.Errorf("%w: write %s: %v", domain.ErrFileSystem, path, err)
	}
	// WriteFile keeps the mode of an existing file
	if err := os.Chmod(path, mode); err != nil {
		return fmt.Errorf("%w: chmod %s: %v", domain.ErrFileSystem, path, err)
	}
	return nil
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", domain.ErrFileSystem, src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", domain.ErrFileSystem, dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("%w: copy %s: %v", domain.ErrFileSystem, dst, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", domain.ErrFileSystem, dst, err)
	}
	return nil
}
