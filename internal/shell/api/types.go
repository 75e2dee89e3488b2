package api

import (
	"time"

	"github.com/artpar/orbit-raas/internal/core/domain"
	"github.com/artpar/orbit-raas/internal/shell/docker"
	"github.com/artpar/orbit-raas/internal/shell/orchestrator"
)

// =============================================================================
// Response Types
// =============================================================================

// StatusResponse is the deployment record plus whether a deploy is running.
type StatusResponse struct {
	domain.DeploymentRecord `yaml:",inline"`
	Deploying               bool `json:"deploying" yaml:"deploying"`
}

// LogsResponse carries the requested slice of the trace and the full length.
type LogsResponse struct {
	Logs  []string `json:"logs"`
	Total int      `json:"total"`
}

// VersionResponse reports the daemon build.
type VersionResponse struct {
	Version string `json:"version"`
}

// ContainerView is the live engine view of one tracked container.
type ContainerView struct {
	ID      string     `json:"id"`
	Name    string     `json:"name,omitempty"`
	Image   string     `json:"image,omitempty"`
	State   string     `json:"state,omitempty"`
	Health  string     `json:"health,omitempty"`
	Created *time.Time `json:"created_at,omitempty"`
	Ports   []PortView `json:"ports,omitempty"`
	Service string     `json:"service,omitempty"`
	Error   string     `json:"error,omitempty"`
}

// PortView is one published port.
type PortView struct {
	ContainerPort int    `json:"container_port"`
	HostPort      int    `json:"host_port"`
	Protocol      string `json:"protocol"`
	HostIP        string `json:"host_ip,omitempty"`
}

// ContainersResponse lists the tracked containers.
type ContainersResponse struct {
	Containers []ContainerView `json:"containers"`
}

// ContainerLogsResponse carries the last lines of one container's output.
type ContainerLogsResponse struct {
	ID    string   `json:"id"`
	Lines []string `json:"lines"`
}

// PrerequisitesResponse reports tool availability.
type PrerequisitesResponse struct {
	Ready  bool                        `json:"ready"`
	Checks []orchestrator.Prerequisite `json:"checks"`
}

// JobRunsResponse lists recorded job runs, newest first.
type JobRunsResponse struct {
	Runs []domain.JobRun `json:"runs"`
}

// ErrorResponse is the error envelope.
type ErrorResponse struct {
	Errors []ErrorObject `json:"errors"`
}

// ErrorObject is one error entry.
type ErrorObject struct {
	Status string `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func containerView(info *docker.ContainerInfo) ContainerView {
	view := ContainerView{
		ID:      info.ID,
		Name:    info.Name,
		Image:   info.Image,
		State:   string(info.Status),
		Health:  info.Health,
		Service: info.Labels[docker.LabelComposeService],
	}
	if !info.CreatedAt.IsZero() {
		created := info.CreatedAt
		view.Created = &created
	}
	for _, p := range info.Ports {
		view.Ports = append(view.Ports, PortView{
			ContainerPort: p.ContainerPort,
			HostPort:      p.HostPort,
			Protocol:      p.Protocol,
			HostIP:        p.HostIP,
		})
	}
	return view
}
