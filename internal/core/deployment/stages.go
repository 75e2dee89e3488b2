package deployment

// =============================================================================
// Pipeline Stages
// =============================================================================

// StageName identifies one ordered unit of the provisioning pipeline.
type StageName string

const (
	StagePullImage       StageName = "pull_image"
	StageFetchSources    StageName = "fetch_sources"
	StageWriteConfig     StageName = "write_config_files"
	StageDeployContracts StageName = "deploy_contracts"
	StageStartChain      StageName = "start_chain"
	StageDeployBridge    StageName = "deploy_bridge"
)

// FailurePolicy decides what a failing step does to the pipeline.
type FailurePolicy string

const (
	// FailFatal aborts the pipeline. Completed stages are not rolled back.
	FailFatal FailurePolicy = "fatal"
	// FailLogAndContinue records the failure and keeps going.
	FailLogAndContinue FailurePolicy = "log_and_continue"
)

// StageSpec describes a stage: its failure policy and the single log line
// appended to the deployment record when it succeeds.
type StageSpec struct {
	Name       StageName
	Policy     FailurePolicy
	SuccessLog string
}

var stages = []StageSpec{
	{StagePullImage, FailFatal, "Successfully pulled avail-nitro-node Docker image"},
	{StageFetchSources, FailFatal, "Successfully cloned required repositories"},
	{StageWriteConfig, FailFatal, "Successfully created configuration files"},
	{StageDeployContracts, FailFatal, "Successfully deployed rollup contracts"},
	{StageStartChain, FailFatal, "Successfully started the chain"},
	{StageDeployBridge, FailFatal, "Successfully deployed token bridge"},
}

// Stages returns the pipeline in execution order.
func Stages() []StageSpec {
	out := make([]StageSpec, len(stages))
	copy(out, stages)
	return out
}

// ContainerIDQueryPolicy is the policy for the container ID lookup that
// follows the chain start. A failed lookup leaves the tracked IDs unchanged.
const ContainerIDQueryPolicy = FailLogAndContinue

// StageIndex returns the 1-based position of a stage, or 0 if unknown.
func StageIndex(name StageName) int {
	for i, s := range stages {
		if s.Name == name {
			return i + 1
		}
	}
	return 0
}
