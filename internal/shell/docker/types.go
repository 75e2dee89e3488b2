// Package docker provides the container engine client used to pull the node
// image and to stop and discover the rollup's containers.
package docker

import (
	"context"
	"time"
)

// =============================================================================
// Container Info
// =============================================================================

// ContainerStatus represents the container status.
type ContainerStatus string

const (
	ContainerStatusCreated    ContainerStatus = "created"
	ContainerStatusRunning    ContainerStatus = "running"
	ContainerStatusPaused     ContainerStatus = "paused"
	ContainerStatusRestarting ContainerStatus = "restarting"
	ContainerStatusExited     ContainerStatus = "exited"
	ContainerStatusDead       ContainerStatus = "dead"
)

// PortBinding defines a published port.
type PortBinding struct {
	ContainerPort int
	HostPort      int
	Protocol      string
	HostIP        string
}

// ContainerInfo contains information about a container.
type ContainerInfo struct {
	ID        string
	Name      string
	Image     string
	Status    ContainerStatus
	State     string // "running", "exited", "created", etc.
	Health    string // "healthy", "unhealthy", "starting", ""
	CreatedAt time.Time
	Ports     []PortBinding
	Labels    map[string]string
}

// Running reports whether the container is up.
func (c ContainerInfo) Running() bool {
	return c.Status == ContainerStatusRunning
}

// =============================================================================
// Options
// =============================================================================

// ListOptions defines options for listing containers.
type ListOptions struct {
	All     bool              // Include stopped containers
	Filters map[string]string // e.g., {"label": "com.docker.compose.project=orbit-setup-script"}
}

// PullOptions defines options for pulling images.
type PullOptions struct {
	Platform string // e.g., "linux/amd64"
}

// =============================================================================
// Client Interface
// =============================================================================

// Client defines the container engine interface.
type Client interface {
	// Container operations
	StopContainer(ctx context.Context, containerID string, timeout *time.Duration) error
	InspectContainer(ctx context.Context, containerID string) (*ContainerInfo, error)
	ListContainers(ctx context.Context, opts ListOptions) ([]ContainerInfo, error)
	ContainerLogs(ctx context.Context, containerID string, tail int) ([]string, error)

	// Image operations
	PullImage(ctx context.Context, image string, opts PullOptions) error
	ImageExists(ctx context.Context, image string) (bool, error)

	// Health operations
	Ping(ctx context.Context) error
	Close() error
}

// =============================================================================
// Label Constants
// =============================================================================

// Labels set by the compose tool on every container it creates.
const (
	LabelComposeProject = "com.docker.compose.project"
	LabelComposeService = "com.docker.compose.service"
)

// ProjectFilter returns list options selecting every container of a compose project.
func ProjectFilter(project string, all bool) ListOptions {
	return ListOptions{
		All:     all,
		Filters: map[string]string{"label": LabelComposeProject + "=" + project},
	}
}
