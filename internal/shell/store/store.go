package store

import (
	"context"

	"github.com/artpar/orbit-raas/internal/core/domain"
)

// =============================================================================
// Store Interface
// =============================================================================

// Store defines the persistence interface. It only ever sees public data:
// the deployment record and job results. Credentials never reach it.
type Store interface {
	// Deployment record (single row)
	SaveRecord(ctx context.Context, record domain.DeploymentRecord) error
	LoadRecord(ctx context.Context) (*domain.DeploymentRecord, error)

	// Job history
	CreateJobRun(ctx context.Context, run *domain.JobRun) error
	ListJobRuns(ctx context.Context, opts ListOptions) ([]domain.JobRun, error)

	// Lifecycle
	Close() error
}

// =============================================================================
// Options
// =============================================================================

// ListOptions defines pagination and filtering options.
type ListOptions struct {
	Limit  int
	Offset int
}

// DefaultListOptions returns default list options.
func DefaultListOptions() ListOptions {
	return ListOptions{
		Limit:  100,
		Offset: 0,
	}
}

// Normalize ensures list options have valid values.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = 100
	}
	if o.Limit > 1000 {
		o.Limit = 1000
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}
