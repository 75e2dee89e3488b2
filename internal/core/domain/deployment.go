package domain

import (
	"time"
)

// =============================================================================
// Deployment State
// =============================================================================

// DeploymentState is the lifecycle position of the deployment record.
type DeploymentState string

const (
	StateUndeployed   DeploymentState = "undeployed"
	StateDeploying    DeploymentState = "deploying"
	StateDeployed     DeploymentState = "deployed"
	StateDeployFailed DeploymentState = "deploy_failed"
)

// validTransitions defines the allowed state transitions.
// Deployed is stable: metadata and container IDs change in place without a transition.
var validTransitions = map[DeploymentState][]DeploymentState{
	StateUndeployed:   {StateDeploying},
	StateDeploying:    {StateDeployed, StateDeployFailed},
	StateDeployFailed: {StateDeploying},
	StateDeployed:     {StateDeploying},
}

// ValidateTransition checks if a state transition is valid.
func ValidateTransition(from, to DeploymentState) error {
	allowed, exists := validTransitions[from]
	if !exists {
		return ErrInvalidTransition
	}

	for _, s := range allowed {
		if s == to {
			return nil
		}
	}

	return ErrInvalidTransition
}

// =============================================================================
// Rollup Metadata
// =============================================================================

// RollupMetadata is the public description of a rollup. It contains no secrets
// and may be handed to any external caller.
type RollupMetadata struct {
	Name             string `json:"name" yaml:"name"`
	ChainID          uint64 `json:"chain_id" yaml:"chain_id"`
	AvailAppID       string `json:"avail_app_id" yaml:"avail_app_id"`
	ParentChainRPC   string `json:"parent_chain_rpc" yaml:"parent_chain_rpc"`
	FallbackS3Enable bool   `json:"fallback_s3_enable" yaml:"fallback_s3_enable"`
	LocalRPCEndpoint string `json:"local_rpc_endpoint" yaml:"local_rpc_endpoint"`
	ExplorerURL      string `json:"explorer_url" yaml:"explorer_url"`
}

// =============================================================================
// Deployment Record
// =============================================================================

// DeploymentRecord tracks provisioning status, logs, public metadata and
// container IDs for one rollup instance.
//
// Invariants: Deployed implies Metadata != nil; Logs only ever grow.
// ContainerIDs are best-effort, the container engine is the source of truth.
type DeploymentRecord struct {
	Deployed     bool            `json:"deployed" yaml:"deployed"`
	State        DeploymentState `json:"state" yaml:"state"`
	Logs         []string        `json:"logs" yaml:"logs"`
	Metadata     *RollupMetadata `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	ContainerIDs []string        `json:"container_ids" yaml:"container_ids"`
	LastError    string          `json:"last_error,omitempty" yaml:"last_error,omitempty"`
	UpdatedAt    time.Time       `json:"updated_at" yaml:"updated_at"`
}

// NewDeploymentRecord returns an empty, undeployed record.
func NewDeploymentRecord() DeploymentRecord {
	return DeploymentRecord{
		State:        StateUndeployed,
		Logs:         []string{},
		ContainerIDs: []string{},
	}
}

// Clone returns a deep copy so callers never share slices or the metadata
// pointer with the live record.
func (r DeploymentRecord) Clone() DeploymentRecord {
	out := r
	out.Logs = append([]string{}, r.Logs...)
	out.ContainerIDs = append([]string{}, r.ContainerIDs...)
	if r.Metadata != nil {
		m := *r.Metadata
		out.Metadata = &m
	}
	return out
}

// AppendLog adds one line to the trace.
func (r *DeploymentRecord) AppendLog(line string) {
	r.Logs = append(r.Logs, line)
	r.UpdatedAt = time.Now().UTC()
}

// Transition moves the record to a new state.
func (r *DeploymentRecord) Transition(to DeploymentState) error {
	if err := ValidateTransition(r.State, to); err != nil {
		return err
	}

	r.State = to
	r.UpdatedAt = time.Now().UTC()

	if to == StateDeploying {
		r.LastError = ""
	}
	return nil
}

// MarkDeployed transitions to deployed, installing the metadata that a
// deployed record is required to carry.
func (r *DeploymentRecord) MarkDeployed(metadata RollupMetadata) error {
	if err := r.Transition(StateDeployed); err != nil {
		return err
	}
	r.Deployed = true
	r.Metadata = &metadata
	return nil
}

// MarkFailed transitions to deploy_failed and remembers the error text.
// A record that was deployed by an earlier run keeps Deployed=true: the
// previously started chain is still running.
func (r *DeploymentRecord) MarkFailed(errorMessage string) error {
	if r.State != StateDeploying {
		return ErrInvalidTransition
	}
	r.State = StateDeployFailed
	r.LastError = errorMessage
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// SetMetadata replaces the metadata wholesale.
func (r *DeploymentRecord) SetMetadata(metadata RollupMetadata) error {
	if !r.Deployed {
		return ErrNotDeployed
	}
	r.Metadata = &metadata
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// SetContainerIDs replaces the tracked container IDs.
func (r *DeploymentRecord) SetContainerIDs(ids []string) {
	r.ContainerIDs = append([]string{}, ids...)
	r.UpdatedAt = time.Now().UTC()
}
