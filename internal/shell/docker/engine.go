package docker

import (
	"context"
	"log/slog"
	"time"

	"github.com/artpar/orbit-raas/internal/shell/process"
)

// Driver selects how the engine is reached.
type Driver string

const (
	DriverAPI Driver = "api" // Engine API socket via the Docker SDK
	DriverCLI Driver = "cli" // docker binary
)

// EngineConfig configures NewClient.
type EngineConfig struct {
	Driver  Driver
	Host    string        // API host, "" for the environment default
	Timeout time.Duration // Per-command bound for the CLI driver
}

// NewClient returns a Client for the configured driver. The API driver falls
// back to the CLI when the engine socket cannot be reached.
func NewClient(ctx context.Context, cfg EngineConfig, runner process.Runner, logger *slog.Logger) (Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "docker")

	if cfg.Driver == DriverCLI {
		logger.Info("using docker CLI driver")
		return NewCLIClient(runner, "", cfg.Timeout), nil
	}

	cli, err := NewDockerClient(ctx, cfg.Host)
	if err == nil {
		if err = cli.Ping(ctx); err == nil {
			logger.Info("using docker API driver", "host", cfg.Host)
			return cli, nil
		}
		cli.Close()
	}

	logger.Warn("docker API unreachable, falling back to CLI driver", "error", err)
	return NewCLIClient(runner, "", cfg.Timeout), nil
}
