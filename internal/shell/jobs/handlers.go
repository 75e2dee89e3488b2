// Package jobs exposes the externally invocable operations. Every outcome is
// flattened into a message string; callers tell success from failure by the
// message, never by a separate error channel.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/artpar/orbit-raas/internal/core/domain"
	"github.com/artpar/orbit-raas/internal/shell/metrics"
	"github.com/artpar/orbit-raas/internal/shell/orchestrator"
)

// Operations is the orchestrator surface the job handlers drive.
type Operations interface {
	Restart(ctx context.Context, dctx *orchestrator.Context) error
	UpdateMetadata(ctx context.Context, dctx *orchestrator.Context, metadata domain.RollupMetadata) error
	UpdateBridge(ctx context.Context, dctx *orchestrator.Context) error
	Reconcile(ctx context.Context, dctx *orchestrator.Context) ([]string, error)
	Deposit(ctx context.Context, dctx *orchestrator.Context, req domain.DepositRequest) error
	Refund(ctx context.Context, dctx *orchestrator.Context, req domain.RefundRequest) error
}

// RunRecorder stores finished job runs.
type RunRecorder interface {
	CreateJobRun(ctx context.Context, run *domain.JobRun) error
}

// Config holds handler dependencies.
type Config struct {
	Operations Operations
	Context    *orchestrator.Context
	Runs       RunRecorder      // optional
	Metrics    *metrics.Metrics // optional
	Logger     *slog.Logger
}

// Handlers implements the job operations.
type Handlers struct {
	ops     Operations
	dctx    *orchestrator.Context
	runs    RunRecorder
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewHandlers creates job handlers.
func NewHandlers(cfg Config) *Handlers {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Handlers{
		ops:     cfg.Operations,
		dctx:    cfg.Context,
		runs:    cfg.Runs,
		metrics: cfg.Metrics,
		logger:  cfg.Logger.With("component", "jobs"),
	}
}

// Result is the outcome of one job invocation.
type Result struct {
	JobID   domain.JobID `json:"job_id"`
	CallID  string       `json:"call_id"`
	Message string       `json:"result"`
}

// =============================================================================
// Job Operations
// =============================================================================

// ModifyRollupMetadata replaces the public metadata.
func (h *Handlers) ModifyRollupMetadata(ctx context.Context, metadata domain.RollupMetadata) string {
	return h.ModifyRollupMetadataCall(ctx, newCallID(), metadata).Message
}

// RestartRollup restarts the chain's containers.
func (h *Handlers) RestartRollup(ctx context.Context) string {
	return h.invoke(ctx, newCallID(), domain.JobRestartRollup, h.restart).Message
}

// UpdateBridge re-runs the token bridge script.
func (h *Handlers) UpdateBridge(ctx context.Context) string {
	return h.invoke(ctx, newCallID(), domain.JobUpdateBridge, h.updateBridge).Message
}

// ReconcileContainers refreshes the tracked container IDs from the engine.
func (h *Handlers) ReconcileContainers(ctx context.Context) string {
	return h.invoke(ctx, newCallID(), domain.JobReconcileContainers, h.reconcile).Message
}

// ModifyRollupMetadataCall is ModifyRollupMetadata with a caller-chosen call ID.
func (h *Handlers) ModifyRollupMetadataCall(ctx context.Context, callID string, metadata domain.RollupMetadata) Result {
	return h.invoke(ctx, callID, domain.JobModifyRollupMetadata, func(ctx context.Context) (string, bool) {
		if err := h.ops.UpdateMetadata(ctx, h.dctx, metadata); err != nil {
			return fmt.Sprintf("Failed to update rollup metadata: %v", err), false
		}
		return "Rollup metadata successfully updated", true
	})
}

// DepositFunds bridges ETH from the parent chain into the rollup.
func (h *Handlers) DepositFunds(ctx context.Context, req domain.DepositRequest) string {
	return h.DepositFundsCall(ctx, newCallID(), req).Message
}

// DepositFundsCall is DepositFunds with a caller-chosen call ID.
func (h *Handlers) DepositFundsCall(ctx context.Context, callID string, req domain.DepositRequest) Result {
	return h.invoke(ctx, callID, domain.JobDepositFunds, func(ctx context.Context) (string, bool) {
		if err := h.ops.Deposit(ctx, h.dctx, req); err != nil {
			return fmt.Sprintf("Failed to deposit ETH: %v", err), false
		}
		return "ETH successfully deposited", true
	})
}

// Refund returns the deployer's remaining balance to a target address.
func (h *Handlers) Refund(ctx context.Context, req domain.RefundRequest) string {
	return h.RefundCall(ctx, newCallID(), req).Message
}

// RefundCall is Refund with a caller-chosen call ID.
func (h *Handlers) RefundCall(ctx context.Context, callID string, req domain.RefundRequest) Result {
	return h.invoke(ctx, callID, domain.JobRefund, func(ctx context.Context) (string, bool) {
		if err := h.ops.Refund(ctx, h.dctx, req); err != nil {
			return fmt.Sprintf("Failed to process refund: %v", err), false
		}
		return "Refund successfully processed", true
	})
}

// decodeFailurePrefix is the message prefix of a job whose argument could
// not be decoded.
var decodeFailurePrefix = map[domain.JobID]string{
	domain.JobModifyRollupMetadata: "Failed to update rollup metadata: invalid metadata",
	domain.JobDepositFunds:         "Failed to deposit ETH: invalid deposit request",
	domain.JobRefund:               "Failed to process refund: invalid refund request",
}

// DecodeFailure is the result for a job whose argument could not be
// decoded. It is recorded like any other failed run.
func (h *Handlers) DecodeFailure(ctx context.Context, callID string, id domain.JobID, err error) Result {
	prefix, ok := decodeFailurePrefix[id]
	if !ok {
		prefix = "Failed to run " + id.Name() + ": invalid argument"
	}
	return h.invoke(ctx, callID, id, func(context.Context) (string, bool) {
		return fmt.Sprintf("%s: %v", prefix, err), false
	})
}

// Call runs an argument-less job by ID. ok is false for unknown IDs and for
// the jobs that need an argument.
func (h *Handlers) Call(ctx context.Context, callID string, id domain.JobID) (Result, bool) {
	var fn func(context.Context) (string, bool)
	switch id {
	case domain.JobRestartRollup:
		fn = h.restart
	case domain.JobUpdateBridge:
		fn = h.updateBridge
	case domain.JobReconcileContainers:
		fn = h.reconcile
	default:
		return Result{}, false
	}
	return h.invoke(ctx, callID, id, fn), true
}

func (h *Handlers) restart(ctx context.Context) (string, bool) {
	if err := h.ops.Restart(ctx, h.dctx); err != nil {
		return fmt.Sprintf("Failed to restart rollup: %v", err), false
	}
	return "Rollup successfully restarted", true
}

func (h *Handlers) updateBridge(ctx context.Context) (string, bool) {
	if err := h.ops.UpdateBridge(ctx, h.dctx); err != nil {
		return fmt.Sprintf("Failed to update token bridge: %v", err), false
	}
	return "Token bridge successfully updated", true
}

func (h *Handlers) reconcile(ctx context.Context) (string, bool) {
	ids, err := h.ops.Reconcile(ctx, h.dctx)
	if err != nil {
		return fmt.Sprintf("Failed to reconcile containers: %v", err), false
	}
	return fmt.Sprintf("Containers successfully reconciled: %d tracked", len(ids)), true
}

// invoke runs fn, then logs, counts and records the run.
func (h *Handlers) invoke(ctx context.Context, callID string, id domain.JobID, fn func(context.Context) (string, bool)) Result {
	logger := h.logger.With("job", id.Name(), "call_id", callID)
	logger.Info("job started")

	started := time.Now().UTC()
	message, ok := fn(ctx)
	finished := time.Now().UTC()

	h.metrics.RecordJob(id.Name(), ok)
	if ok {
		logger.Info("job succeeded", "duration", finished.Sub(started))
	} else {
		logger.Warn("job failed", "result", message, "duration", finished.Sub(started))
	}

	if h.runs != nil {
		run := &domain.JobRun{
			ID:         callID,
			JobID:      id,
			JobName:    id.Name(),
			Result:     message,
			Succeeded:  ok,
			StartedAt:  started,
			FinishedAt: finished,
		}
		if err := h.runs.CreateJobRun(context.WithoutCancel(ctx), run); err != nil {
			logger.Warn("failed to record job run", "error", err)
		}
	}

	return Result{JobID: id, CallID: callID, Message: message}
}

func newCallID() string {
	return "call_" + uuid.New().String()
}
