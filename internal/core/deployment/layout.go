package deployment

import "path/filepath"

// =============================================================================
// Pinned Sources
// =============================================================================

const (
	// NodeImage is the chain node container image.
	NodeImage = "availj/avail-nitro-node:v2.2.1-upstream-v3.2.1"

	// OrbitSDKRepo is cloned at OrbitSDKBranch; its example package deploys
	// the rollup contracts.
	OrbitSDKRepo   = "https://github.com/availproject/arbitrum-orbit-sdk.git"
	OrbitSDKBranch = "avail-develop-upstream-v0.20.1"

	// SetupScriptRepo holds the compose file and the token bridge script.
	SetupScriptRepo = "https://github.com/availproject/orbit-setup-script.git"

	// DefaultChainID is used when no chain id is configured or it does not parse.
	DefaultChainID uint64 = 412346

	// BridgeParentRPC and BridgeRollupRPC are injected into the bridge script.
	BridgeParentRPC = "https://sepolia-rollup.arbitrum.io/rpc"
	BridgeRollupRPC = "http://localhost:8449"

	DefaultRollupName       = "Avail Orbit Rollup"
	DefaultLocalRPCEndpoint = "http://localhost:8449"
	DefaultExplorerURL      = "http://localhost:4000"
)

// Tool invocations.
const (
	ComposeCommand      = "docker-compose"
	DeployContractsTool = "npm"
	DeployContractsRun  = "deploy-avail-orbit-rollup"
	BridgeTool          = "yarn"
	BridgeRun           = "setup"
	DepositRun          = "deposit"
	RefundRun           = "refund"
)

// Generated artifact file names.
const (
	EnvFileName           = ".env"
	NodeConfigFile        = "nodeConfig.json"
	SetupScriptConfigFile = "orbitSetupScriptConfig.json"
)

// =============================================================================
// Working Directory Layout
// =============================================================================

// Layout resolves every path the pipeline touches beneath one work directory.
//
// Example:
//
//	l := NewLayout("/var/lib/orbit")
//	l.RollupDir() // "/var/lib/orbit/arbitrum-orbit-sdk/examples/create-avail-rollup-eth"
type Layout struct {
	Root string
}

// NewLayout creates a layout rooted at dir. An empty dir means "orbit-deployment"
// relative to the process working directory.
func NewLayout(dir string) Layout {
	if dir == "" {
		dir = "orbit-deployment"
	}
	return Layout{Root: dir}
}

// OrbitSDKDir is the clone target of OrbitSDKRepo.
func (l Layout) OrbitSDKDir() string {
	return filepath.Join(l.Root, "arbitrum-orbit-sdk")
}

// SetupScriptDir is the clone target of SetupScriptRepo.
func (l Layout) SetupScriptDir() string {
	return filepath.Join(l.Root, "orbit-setup-script")
}

// RollupDir is where contract deployment runs and writes its artifacts.
func (l Layout) RollupDir() string {
	return filepath.Join(l.OrbitSDKDir(), "examples", "create-avail-rollup-eth")
}

// EnvFile is the generated secrets file.
func (l Layout) EnvFile() string {
	return filepath.Join(l.RollupDir(), EnvFileName)
}

// GeneratedArtifacts are the files contract deployment must produce.
func (l Layout) GeneratedArtifacts() []string {
	return []string{
		filepath.Join(l.RollupDir(), NodeConfigFile),
		filepath.Join(l.RollupDir(), SetupScriptConfigFile),
	}
}

// SetupConfigDir is where the setup script expects the generated artifacts.
func (l Layout) SetupConfigDir() string {
	return filepath.Join(l.SetupScriptDir(), "config")
}
