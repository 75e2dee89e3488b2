package compose

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Parser Functions
// =============================================================================

// ParseProject parses Docker Compose YAML into a Project.
// defaultName is the project name used when the file does not set `name:`;
// callers pass the directory the compose tool runs in, mirroring its default.
// This is a pure function - no I/O, no side effects.
func ParseProject(yamlContent, defaultName string) (*Project, error) {
	if strings.TrimSpace(yamlContent) == "" {
		return nil, ErrEmptyInput
	}

	project, err := loadComposeSpec(yamlContent, NormalizeProjectName(defaultName))
	if err != nil {
		return nil, err
	}

	if len(project.Services) == 0 {
		return nil, NewParseError("services", "no services defined", ErrNoServices)
	}

	out := &Project{
		Name:     project.Name,
		Services: make([]Service, 0, len(project.Services)),
	}
	for _, svc := range project.Services {
		s, err := convertService(svc)
		if err != nil {
			return nil, err
		}
		out.Services = append(out.Services, s)
	}
	sort.Slice(out.Services, func(i, j int) bool {
		return out.Services[i].Name < out.Services[j].Name
	})

	return out, nil
}

// loadComposeSpec loads a compose spec using compose-go
func loadComposeSpec(yamlContent, projectName string) (*types.Project, error) {
	// Parse YAML into a map first
	var dict map[string]interface{}
	if err := yaml.Unmarshal([]byte(yamlContent), &dict); err != nil {
		return nil, NewParseError("", "invalid YAML syntax", ErrInvalidYAML)
	}

	if dict == nil {
		return nil, NewParseError("", "invalid YAML syntax", ErrInvalidYAML)
	}

	project, err := loader.LoadWithContext(context.Background(), types.ConfigDetails{
		ConfigFiles: []types.ConfigFile{
			{
				Content: []byte(yamlContent),
				Config:  dict,
			},
		},
	}, func(opts *loader.Options) {
		opts.SetProjectName(projectName, false)
		opts.SkipValidation = false
		opts.SkipInterpolation = false
		// In-memory content: relative bind mounts cannot be resolved
		opts.SkipNormalization = true
		opts.SkipExtends = true
		opts.SkipResolveEnvironment = true
	})
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "image") && strings.Contains(errStr, "build") {
			return nil, NewParseError("", "service must have image or build", ErrServiceNoImage)
		}
		return nil, NewParseError("", errStr, ErrInvalidYAML)
	}

	return project, nil
}

// convertService converts a compose-go service to our Service type
func convertService(svc types.ServiceConfig) (Service, error) {
	service := Service{
		Name:          svc.Name,
		Image:         svc.Image,
		ContainerName: svc.ContainerName,
		HasBuild:      svc.Build != nil,
	}

	if service.Image == "" && !service.HasBuild {
		return Service{}, NewParseError("services."+svc.Name, "service must have image or build", ErrServiceNoImage)
	}

	for _, p := range svc.Ports {
		var published uint32
		if p.Published != "" {
			pub, err := strconv.ParseUint(p.Published, 10, 32)
			if err == nil {
				published = uint32(pub)
			}
		}
		service.Ports = append(service.Ports, Port{
			Target:    p.Target,
			Published: published,
			Protocol:  p.Protocol,
		})
	}

	return service, nil
}

// NormalizeProjectName applies the compose tool's project name rules:
// lowercase, only [a-z0-9_-], starting with a letter or digit.
//
// Example:
//
//	NormalizeProjectName("Orbit Setup.Script") // returns "orbitsetupscript"
func NormalizeProjectName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '_' || r == '-':
			if b.Len() > 0 {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}
