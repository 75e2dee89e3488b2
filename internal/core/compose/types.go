package compose

// Project is the part of a compose project the orchestrator cares about: the
// project name (used by the engine's compose labels) and its services.
type Project struct {
	Name     string    `json:"name"`
	Services []Service `json:"services"`
}

// Service is a single service definition.
type Service struct {
	Name          string `json:"name"`
	Image         string `json:"image,omitempty"`
	ContainerName string `json:"container_name,omitempty"`
	Ports         []Port `json:"ports,omitempty"`
	HasBuild      bool   `json:"has_build,omitempty"`
}

// Port represents a port mapping.
type Port struct {
	Target    uint32 `json:"target"`              // Container port
	Published uint32 `json:"published,omitempty"` // Host port (0 = dynamic)
	Protocol  string `json:"protocol,omitempty"`  // tcp, udp
}

// ServiceNames returns the service names in project order.
func (p Project) ServiceNames() []string {
	names := make([]string, 0, len(p.Services))
	for _, s := range p.Services {
		names = append(names, s.Name)
	}
	return names
}

// Images returns the distinct images referenced by services.
func (p Project) Images() []string {
	seen := make(map[string]bool)
	var images []string
	for _, s := range p.Services {
		if s.Image != "" && !seen[s.Image] {
			seen[s.Image] = true
			images = append(images, s.Image)
		}
	}
	return images
}
