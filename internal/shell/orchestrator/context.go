// Package orchestrator drives the rollup provisioning pipeline and the
// operations that act on a deployed rollup.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/artpar/orbit-raas/internal/core/domain"
)

// RecordSink receives every committed record. Implementations must not
// retain the record's slices.
type RecordSink interface {
	SaveRecord(ctx context.Context, record domain.DeploymentRecord) error
}

// RecordObserver is notified after each committed record change.
type RecordObserver func(record domain.DeploymentRecord)

// =============================================================================
// Context
// =============================================================================

// Context is the long-lived handle shared by the deploy task, the job
// handlers and the status server. The record and the credentials sit behind
// separate locks so a bridge run holding the credentials never blocks a
// status read.
type Context struct {
	recMu   sync.Mutex
	record  domain.DeploymentRecord
	version uint64

	credMu sync.Mutex
	creds  domain.OperatorCredentials

	deploying atomic.Bool

	sinkMu       sync.Mutex
	sink         RecordSink
	savedVersion uint64
	observers    []RecordObserver

	logger *slog.Logger
}

// NewContext creates a context holding an empty, undeployed record.
func NewContext(creds domain.OperatorCredentials, sink RecordSink, logger *slog.Logger) *Context {
	if logger == nil {
		logger = slog.Default()
	}
	return &Context{
		record: domain.NewDeploymentRecord(),
		creds:  creds,
		sink:   sink,
		logger: logger.With("component", "context"),
	}
}

// Observe registers fn to run after each committed change.
func (c *Context) Observe(fn RecordObserver) {
	c.sinkMu.Lock()
	defer c.sinkMu.Unlock()
	c.observers = append(c.observers, fn)
}

// Restore replaces the record with a persisted one. A record persisted while
// a deploy was running is restored as failed: that run died with the process.
func (c *Context) Restore(record domain.DeploymentRecord) {
	record = record.Clone()
	if record.State == domain.StateDeploying {
		record.State = domain.StateDeployFailed
		record.LastError = "interrupted by daemon restart"
	}
	if record.Deployed && record.Metadata == nil {
		record.Deployed = false
		record.State = domain.StateUndeployed
	}

	c.recMu.Lock()
	c.record = record
	c.version++
	c.recMu.Unlock()
}

// Snapshot returns a deep copy of the record.
func (c *Context) Snapshot() domain.DeploymentRecord {
	c.recMu.Lock()
	defer c.recMu.Unlock()
	return c.record.Clone()
}

// Logs returns a copy of the log sequence.
func (c *Context) Logs() []string {
	c.recMu.Lock()
	defer c.recMu.Unlock()
	return append([]string{}, c.record.Logs...)
}

// Deployed reports whether a deploy has succeeded.
func (c *Context) Deployed() bool {
	c.recMu.Lock()
	defer c.recMu.Unlock()
	return c.record.Deployed
}

// Deploying reports whether a deploy is running.
func (c *Context) Deploying() bool {
	return c.deploying.Load()
}

// AppendLog adds one line to the record.
func (c *Context) AppendLog(ctx context.Context, line string) {
	_ = c.update(ctx, func(r *domain.DeploymentRecord) error {
		r.AppendLog(line)
		return nil
	})
}

// update applies fn to a copy of the record and installs the copy only when
// fn succeeds, so readers see the old record or the new one, never a mix.
// The committed record is then pushed to the sink outside the record lock.
func (c *Context) update(ctx context.Context, fn func(*domain.DeploymentRecord) error) error {
	c.recMu.Lock()
	next := c.record.Clone()
	if err := fn(&next); err != nil {
		c.recMu.Unlock()
		return err
	}
	c.record = next
	c.version++
	version := c.version
	snapshot := next.Clone()
	c.recMu.Unlock()

	c.publish(ctx, version, snapshot)
	return nil
}

// publish persists and broadcasts a committed record. Older versions that
// lose the race to the sink lock are dropped.
func (c *Context) publish(ctx context.Context, version uint64, record domain.DeploymentRecord) {
	c.sinkMu.Lock()
	defer c.sinkMu.Unlock()

	if version <= c.savedVersion {
		return
	}
	c.savedVersion = version

	for _, fn := range c.observers {
		fn(record)
	}
	if c.sink == nil {
		return
	}
	if err := c.sink.SaveRecord(context.WithoutCancel(ctx), record); err != nil {
		c.logger.Warn("failed to persist deployment record", "error", err)
	}
}

// handlesIfDeployed returns the tracked container IDs, or ErrNotDeployed.
func (c *Context) handlesIfDeployed() ([]string, error) {
	c.recMu.Lock()
	defer c.recMu.Unlock()
	if !c.record.Deployed {
		return nil, domain.ErrNotDeployed
	}
	return append([]string{}, c.record.ContainerIDs...), nil
}

// =============================================================================
// Credentials
// =============================================================================

// Credentials returns a copy of the operator credentials.
func (c *Context) Credentials() domain.OperatorCredentials {
	c.credMu.Lock()
	defer c.credMu.Unlock()
	return c.creds
}

// withCredentials runs fn while holding the credentials lock.
func (c *Context) withCredentials(fn func(domain.OperatorCredentials) error) error {
	c.credMu.Lock()
	defer c.credMu.Unlock()
	return fn(c.creds)
}

// =============================================================================
// Deploy Guard
// =============================================================================

func (c *Context) beginDeploy() error {
	if !c.deploying.CompareAndSwap(false, true) {
		return domain.ErrDeployInProgress
	}
	return nil
}

func (c *Context) endDeploy() {
	c.deploying.Store(false)
}
