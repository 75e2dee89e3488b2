package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"
)

// DefaultTimeout bounds a command that does not set its own timeout.
const DefaultTimeout = 10 * time.Minute

// Cmd is one external command invocation.
type Cmd struct {
	Name    string            // Logical name used in errors and logs
	Command string            // Executable
	Args    []string
	Dir     string            // Working directory, "" for the current one
	Env     map[string]string // Overrides on top of the inherited environment
	Timeout time.Duration     // 0 uses the runner default
}

// Result carries the captured output of a successful command.
type Result struct {
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Runner executes external commands synchronously.
type Runner interface {
	Run(ctx context.Context, cmd Cmd) (Result, error)
}

// ExecRunner runs commands with os/exec. Each command gets its own process
// group so a timeout kills every child it spawned.
type ExecRunner struct {
	timeout time.Duration
	logger  *slog.Logger
}

// NewExecRunner creates a runner. A zero timeout uses DefaultTimeout.
func NewExecRunner(timeout time.Duration, logger *slog.Logger) *ExecRunner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecRunner{
		timeout: timeout,
		logger:  logger.With("component", "process"),
	}
}

// Run executes cmd and waits for it. Spawn failures, non-zero exits and
// timeouts are returned as *CommandError.
func (r *ExecRunner) Run(ctx context.Context, c Cmd) (Result, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = r.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.Command, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = mergeEnv(os.Environ(), c.Env)
	configureCommandProcess(cmd)
	cmd.Cancel = func() error {
		terminateCommandProcess(cmd)
		return nil
	}
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Debug("running command", "name", c.Name, "command", c.Command, "args", c.Args, "dir", c.Dir)

	start := time.Now()
	err := cmd.Run()
	result := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if err == nil {
		r.logger.Debug("command finished", "name", c.Name, "duration", result.Duration)
		return result, nil
	}

	cmdErr := &CommandError{
		Name:     c.Name,
		Command:  c.Command,
		Args:     c.Args,
		ExitCode: -1,
		Stderr:   result.Stderr,
	}

	var exitErr *exec.ExitError
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		cmdErr.Err = fmt.Errorf("%w after %s", ErrTimeout, timeout)
	case ctx.Err() != nil:
		cmdErr.Err = ctx.Err()
	case errors.As(err, &exitErr):
		cmdErr.ExitCode = exitErr.ExitCode()
		cmdErr.Err = ErrNonZeroExit
	default:
		cmdErr.Err = fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	r.logger.Debug("command failed", "name", c.Name, "error", cmdErr.Err, "exit_code", cmdErr.ExitCode)
	return result, cmdErr
}

// mergeEnv applies overrides to base, replacing existing keys.
func mergeEnv(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}
	out := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		key := kv
		if i := strings.IndexByte(kv, '='); i >= 0 {
			key = kv[:i]
		}
		if _, ok := overrides[key]; ok {
			continue
		}
		out = append(out, kv)
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+overrides[k])
	}
	return out
}

// Available reports whether command runs successfully with args (typically
// "--version").
func Available(ctx context.Context, r Runner, command string, args ...string) bool {
	if _, err := exec.LookPath(command); err != nil {
		return false
	}
	_, err := r.Run(ctx, Cmd{Name: "check_" + command, Command: command, Args: args, Timeout: 30 * time.Second})
	return err == nil
}
