package orchestrator

import (
	"context"
	"strings"

	"github.com/artpar/orbit-raas/internal/core/deployment"
	"github.com/artpar/orbit-raas/internal/shell/process"
)

// Check is an extra prerequisite check, such as the fallback bucket.
type Check interface {
	Name() string
	Check(ctx context.Context) error
}

// Prerequisite is the outcome of one check.
type Prerequisite struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
	Detail    string `json:"detail,omitempty"`
}

// CheckPrerequisites checks the external tools the pipeline needs, the
// container engine and any extra checks. It never fails; callers decide
// whether a missing tool is fatal.
func (o *Orchestrator) CheckPrerequisites(ctx context.Context) []Prerequisite {
	tools := []struct {
		name    string
		command string
		args    []string
	}{
		{"docker", "docker", []string{"--version"}},
		{"compose", o.config.ComposeCommand[0], append(append([]string{}, o.config.ComposeCommand[1:]...), "version")},
		{"git", "git", []string{"--version"}},
		{"npm", deployment.DeployContractsTool, []string{"--version"}},
		{"yarn", deployment.BridgeTool, []string{"--version"}},
	}

	var results []Prerequisite
	for _, t := range tools {
		p := Prerequisite{
			Name:      t.name,
			Available: process.Available(ctx, o.runner, t.command, t.args...),
		}
		if !p.Available {
			p.Detail = strings.TrimSpace(t.command+" "+strings.Join(t.args, " ")) + " not runnable"
		}
		results = append(results, p)
	}

	engine := Prerequisite{Name: "engine", Available: true}
	if err := o.engine.Ping(ctx); err != nil {
		engine.Available = false
		engine.Detail = err.Error()
	}
	results = append(results, engine)

	for _, c := range o.checks {
		p := Prerequisite{Name: c.Name(), Available: true}
		if err := c.Check(ctx); err != nil {
			p.Available = false
			p.Detail = err.Error()
		}
		results = append(results, p)
	}

	for _, p := range results {
		if p.Available {
			o.logger.Debug("prerequisite available", "name", p.Name)
		} else {
			o.logger.Warn("prerequisite missing", "name", p.Name, "detail", p.Detail)
		}
	}
	return results
}
