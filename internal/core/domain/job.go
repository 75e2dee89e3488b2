package domain

import "time"

// =============================================================================
// Job Dispatch
// =============================================================================

// JobID identifies an externally invocable operation.
type JobID int

const (
	JobModifyRollupMetadata JobID = 1
	JobRestartRollup        JobID = 2
	JobUpdateBridge         JobID = 3
	JobReconcileContainers  JobID = 4
	JobDepositFunds         JobID = 5
	JobRefund               JobID = 6
)

var jobNames = map[JobID]string{
	JobModifyRollupMetadata: "modify_rollup_metadata",
	JobRestartRollup:        "restart_rollup",
	JobUpdateBridge:         "update_bridge",
	JobReconcileContainers:  "reconcile_containers",
	JobDepositFunds:         "deposit_funds",
	JobRefund:               "refund",
}

// Name returns the job's stable name, or "unknown".
func (j JobID) Name() string {
	if n, ok := jobNames[j]; ok {
		return n
	}
	return "unknown"
}

// Known reports whether j is a registered job.
func (j JobID) Known() bool {
	_, ok := jobNames[j]
	return ok
}

// JobRun is one recorded job invocation. Result is the message returned to
// the caller; it never carries credentials.
type JobRun struct {
	ID         string    `json:"id"`
	JobID      JobID     `json:"job_id"`
	JobName    string    `json:"job_name"`
	Result     string    `json:"result"`
	Succeeded  bool      `json:"succeeded"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Duration returns how long the job ran.
func (r JobRun) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
