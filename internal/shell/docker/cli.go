package docker

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/artpar/orbit-raas/internal/shell/process"
)

// =============================================================================
// CLI Client Implementation
// =============================================================================

// CLIClient implements the Client interface by shelling out to the docker
// binary. It is used where the engine socket is not reachable from this
// process but the CLI is configured (remote contexts, rootless setups).
type CLIClient struct {
	runner  process.Runner
	binary  string
	timeout time.Duration
}

// NewCLIClient creates a client that runs binary ("docker" if empty) via runner.
func NewCLIClient(runner process.Runner, binary string, timeout time.Duration) *CLIClient {
	if binary == "" {
		binary = "docker"
	}
	return &CLIClient{runner: runner, binary: binary, timeout: timeout}
}

func (c *CLIClient) run(ctx context.Context, name string, args ...string) (process.Result, error) {
	return c.runner.Run(ctx, process.Cmd{
		Name:    name,
		Command: c.binary,
		Args:    args,
		Timeout: c.timeout,
	})
}

// Ping checks that the CLI can reach an engine.
func (c *CLIClient) Ping(ctx context.Context) error {
	if _, err := c.run(ctx, "docker info", "info", "--format", "{{.ServerVersion}}"); err != nil {
		return NewDockerError("Ping", "", "", err.Error(), ErrConnectionFailed)
	}
	return nil
}

// Close is a no-op for the CLI client.
func (c *CLIClient) Close() error {
	return nil
}

// StopContainer runs `docker stop`.
func (c *CLIClient) StopContainer(ctx context.Context, containerID string, timeout *time.Duration) error {
	args := []string{"stop"}
	if timeout != nil {
		args = append(args, "--time", strconv.Itoa(int(timeout.Seconds())))
	}
	args = append(args, containerID)

	if _, err := c.run(ctx, "docker stop", args...); err != nil {
		if stderrContains(err, "No such container") {
			return NewDockerError("StopContainer", "container", containerID, "container not found", ErrContainerNotFound)
		}
		return NewDockerError("StopContainer", "container", containerID, err.Error(), err)
	}
	return nil
}

// InspectContainer looks a container up through `docker ps` so both clients
// report the same fields.
func (c *CLIClient) InspectContainer(ctx context.Context, containerID string) (*ContainerInfo, error) {
	containers, err := c.ListContainers(ctx, ListOptions{All: true, Filters: map[string]string{"id": containerID}})
	if err != nil {
		return nil, NewDockerError("InspectContainer", "container", containerID, err.Error(), err)
	}
	if len(containers) == 0 {
		return nil, NewDockerError("InspectContainer", "container", containerID, "container not found", ErrContainerNotFound)
	}
	return &containers[0], nil
}

// ListContainers runs `docker ps` with JSON formatting.
func (c *CLIClient) ListContainers(ctx context.Context, opts ListOptions) ([]ContainerInfo, error) {
	args := []string{"ps", "--no-trunc", "--format", "{{json .}}"}
	if opts.All {
		args = append(args, "--all")
	}
	keys := make([]string, 0, len(opts.Filters))
	for k := range opts.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "--filter", k+"="+opts.Filters[k])
	}

	res, err := c.run(ctx, "docker ps", args...)
	if err != nil {
		return nil, NewDockerError("ListContainers", "container", "", err.Error(), err)
	}
	return parsePSOutput(res.Stdout)
}

// ContainerLogs runs `docker logs --tail`. The CLI writes the container's
// stdout and stderr to its own, so both are returned, stdout first.
func (c *CLIClient) ContainerLogs(ctx context.Context, containerID string, tail int) ([]string, error) {
	res, err := c.run(ctx, "docker logs", "logs", "--tail", strconv.Itoa(tail), containerID)
	if err != nil {
		if stderrContains(err, "No such container") {
			return nil, NewDockerError("ContainerLogs", "container", containerID, "container not found", ErrContainerNotFound)
		}
		return nil, NewDockerError("ContainerLogs", "container", containerID, err.Error(), err)
	}
	return append(splitLines(res.Stdout), splitLines(res.Stderr)...), nil
}

// PullImage runs `docker pull`.
func (c *CLIClient) PullImage(ctx context.Context, imageName string, opts PullOptions) error {
	args := []string{"pull", "--quiet"}
	if opts.Platform != "" {
		args = append(args, "--platform", opts.Platform)
	}
	args = append(args, imageName)

	if _, err := c.run(ctx, "docker pull", args...); err != nil {
		var cmdErr *process.CommandError
		if errors.As(err, &cmdErr) && isImageNotFound(cmdErr.Stderr) {
			return NewDockerError("PullImage", "image", imageName, "image not found", ErrImageNotFound)
		}
		return NewDockerError("PullImage", "image", imageName, err.Error(), ErrImagePullFailed)
	}
	return nil
}

// ImageExists runs `docker image inspect`; a non-zero exit means absent.
func (c *CLIClient) ImageExists(ctx context.Context, imageName string) (bool, error) {
	_, err := c.run(ctx, "docker image inspect", "image", "inspect", "--format", "{{.Id}}", imageName)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, process.ErrNonZeroExit) {
		return false, nil
	}
	return false, NewDockerError("ImageExists", "image", imageName, err.Error(), err)
}

// =============================================================================
// Output Parsing
// =============================================================================

// psLine is one `docker ps --format '{{json .}}'` record.
type psLine struct {
	ID        string `json:"ID"`
	Names     string `json:"Names"`
	Image     string `json:"Image"`
	State     string `json:"State"`
	Status    string `json:"Status"`
	Labels    string `json:"Labels"`
	CreatedAt string `json:"CreatedAt"`
}

// psTimeLayout is the CreatedAt layout of `docker ps`.
const psTimeLayout = "2006-01-02 15:04:05 -0700 MST"

func parsePSOutput(out string) ([]ContainerInfo, error) {
	var result []ContainerInfo
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var p psLine
		if err := json.Unmarshal([]byte(line), &p); err != nil {
			return nil, NewDockerError("ListContainers", "container", "", "unparsable docker ps output: "+err.Error(), err)
		}
		createdAt, _ := time.Parse(psTimeLayout, p.CreatedAt)
		result = append(result, ContainerInfo{
			ID:        p.ID,
			Name:      p.Names,
			Image:     p.Image,
			Status:    ContainerStatus(p.State),
			State:     p.State,
			Health:    healthFromStatus(p.Status),
			CreatedAt: createdAt,
			Labels:    parseLabels(p.Labels),
		})
	}
	return result, nil
}

// parseLabels splits "k=v,k2=v2".
func parseLabels(s string) map[string]string {
	labels := make(map[string]string)
	if s == "" {
		return labels
	}
	for _, pair := range strings.Split(s, ",") {
		k, v, _ := strings.Cut(pair, "=")
		if k != "" {
			labels[k] = v
		}
	}
	return labels
}

// healthFromStatus extracts the health marker from "Up 5 minutes (healthy)".
func healthFromStatus(status string) string {
	for _, h := range []string{"unhealthy", "healthy", "health: starting"} {
		if strings.Contains(status, "("+h+")") {
			if h == "health: starting" {
				return "starting"
			}
			return h
		}
	}
	return ""
}

func stderrContains(err error, needle string) bool {
	var cmdErr *process.CommandError
	return errors.As(err, &cmdErr) && strings.Contains(cmdErr.Stderr, needle)
}
