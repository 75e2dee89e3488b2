package orchestrator

import (
	"context"

	"github.com/artpar/orbit-raas/internal/core/deployment"
	"github.com/artpar/orbit-raas/internal/core/domain"
	"github.com/artpar/orbit-raas/internal/shell/process"
)

// =============================================================================
// Fund Operations
// =============================================================================

// Deposit bridges ETH from the parent chain into the rollup through the setup
// script's deposit task, paid by the deployer key. The credentials lock is
// held for the whole run.
func (o *Orchestrator) Deposit(ctx context.Context, dctx *Context, req domain.DepositRequest) error {
	if !dctx.Deployed() {
		return domain.NewError("Deposit", "", "rollup not deployed", domain.ErrNotDeployed)
	}
	if err := req.Validate(); err != nil {
		return domain.NewError("Deposit", "", err.Error(), err)
	}

	err := dctx.withCredentials(func(creds domain.OperatorCredentials) error {
		return o.runSetupTask(ctx, "deposit", deployment.DepositRun, deployment.DepositEnv(creds, req.Amount))
	})
	if err != nil {
		return domain.NewError("Deposit", "", err.Error(), err)
	}
	o.logger.Info("deposit completed", "amount", req.Amount)
	return nil
}

// Refund sends the deployer's remaining balance to the target address
// through the setup script's refund task.
func (o *Orchestrator) Refund(ctx context.Context, dctx *Context, req domain.RefundRequest) error {
	if !dctx.Deployed() {
		return domain.NewError("Refund", "", "rollup not deployed", domain.ErrNotDeployed)
	}
	if err := req.Validate(); err != nil {
		return domain.NewError("Refund", "", err.Error(), err)
	}

	err := dctx.withCredentials(func(creds domain.OperatorCredentials) error {
		return o.runSetupTask(ctx, "refund", deployment.RefundRun, deployment.RefundEnv(creds, req.TargetAddress))
	})
	if err != nil {
		return domain.NewError("Refund", "", err.Error(), err)
	}
	o.logger.Info("refund completed", "target_address", req.TargetAddress)
	return nil
}

func (o *Orchestrator) runSetupTask(ctx context.Context, name, task string, env map[string]string) error {
	_, err := o.runner.Run(ctx, process.Cmd{
		Name:    name,
		Command: deployment.BridgeTool,
		Args:    []string{"run", task},
		Dir:     o.layout.SetupScriptDir(),
		Env:     env,
		Timeout: o.config.CommandTimeout,
	})
	return err
}
