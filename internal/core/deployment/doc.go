// Package deployment provides pure functions for rollup deployment planning.
//
// This package contains the functional core of the provisioning pipeline:
// pinned sources, the working directory layout and the generated
// environment file. Nothing here performs I/O.
//
// # Functions
//
//   - Layout: Resolve clone targets, artifact paths and the setup config dir (NewLayout)
//   - Env file: Render credentials and metadata into a dotenv file (BuildEnvFile)
//   - Redaction: Mask secret entries before any logging path (EnvFile.Redacted)
//   - Bridge: Environment overrides for the bridge script (BridgeEnv)
//   - Stages: The ordered stage table with per-stage failure policy (Stages)
//
// # Usage
//
// The imperative shell (internal/shell/orchestrator) uses these values to
// drive the external tools and write artifacts to disk.
//
//	layout := deployment.NewLayout(workDir)
//	env := deployment.BuildEnvFile(creds, metadata)
//	os.WriteFile(layout.EnvFile(), []byte(env.Render()), 0o600)
package deployment
