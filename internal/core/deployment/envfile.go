package deployment

import (
	"strconv"
	"strings"

	"github.com/artpar/orbit-raas/internal/core/domain"
)

// =============================================================================
// Generated Environment File
// =============================================================================

// redactedValue replaces secret values on every logging path.
const redactedValue = "********"

// EnvEntry is one KEY=value line. Secret entries are masked by Redacted.
type EnvEntry struct {
	Key    string
	Value  string
	Secret bool
}

// EnvFile is an ordered list of entries rendered as a dotenv file.
type EnvFile struct {
	Entries []EnvEntry
}

// BuildEnvFile renders operator credentials and public metadata into the
// environment consumed by contract deployment. Fallback storage entries are
// only emitted when the metadata enables fallback storage, and then only for
// values that were supplied.
func BuildEnvFile(creds domain.OperatorCredentials, metadata domain.RollupMetadata) EnvFile {
	f := EnvFile{}
	f.add("DEPLOYER_PRIVATE_KEY", creds.DeployerPrivateKey, true)
	f.add("BATCH_POSTER_PRIVATE_KEY", creds.BatchPosterPrivateKey, true)
	f.add("VALIDATOR_PRIVATE_KEY", creds.ValidatorPrivateKey, true)
	f.add("AVAIL_ADDR_SEED", creds.AvailAddrSeed, true)
	f.add("AVAIL_APP_ID", metadata.AvailAppID, false)
	f.add("FALLBACKS3_ENABLE", strconv.FormatBool(metadata.FallbackS3Enable), false)

	if metadata.FallbackS3Enable {
		f.addIfSet("FALLBACKS3_ACCESS_KEY", creds.FallbackS3AccessKey, true)
		f.addIfSet("FALLBACKS3_SECRET_KEY", creds.FallbackS3SecretKey, true)
		f.addIfSet("FALLBACKS3_REGION", creds.FallbackS3Region, false)
		f.addIfSet("FALLBACKS3_OBJECT_PREFIX", creds.FallbackS3ObjectPrefix, false)
		f.addIfSet("FALLBACKS3_BUCKET", creds.FallbackS3Bucket, false)
	}

	f.add("PARENT_CHAIN_RPC", metadata.ParentChainRPC, false)
	return f
}

func (f *EnvFile) add(key, value string, secret bool) {
	f.Entries = append(f.Entries, EnvEntry{Key: key, Value: value, Secret: secret})
}

func (f *EnvFile) addIfSet(key, value string, secret bool) {
	if value != "" {
		f.add(key, value, secret)
	}
}

// Render returns the exact file content. Never log the result.
func (f EnvFile) Render() string {
	return f.render(false)
}

// Redacted returns the file content with secret values masked.
func (f EnvFile) Redacted() string {
	return f.render(true)
}

func (f EnvFile) render(redact bool) string {
	var b strings.Builder
	for _, e := range f.Entries {
		value := e.Value
		if redact && e.Secret {
			value = redactedValue
		}
		b.WriteString(e.Key)
		b.WriteByte('=')
		b.WriteString(value)
		b.WriteByte('\n')
	}
	return b.String()
}

// BridgeEnv returns the environment overrides for the token bridge script.
func BridgeEnv(creds domain.OperatorCredentials) map[string]string {
	return map[string]string{
		"PRIVATE_KEY": creds.DeployerPrivateKey,
		"L2_RPC_URL":  BridgeParentRPC,
		"L3_RPC_URL":  BridgeRollupRPC,
	}
}

// DepositEnv returns the environment for the deposit script: the bridge
// environment plus the amount in ETH.
func DepositEnv(creds domain.OperatorCredentials, amount string) map[string]string {
	env := BridgeEnv(creds)
	env["AMOUNT"] = amount
	return env
}

// RefundEnv returns the environment for the refund script. It runs against
// the parent chain only.
func RefundEnv(creds domain.OperatorCredentials, targetAddress string) map[string]string {
	return map[string]string{
		"PRIVATE_KEY":    creds.DeployerPrivateKey,
		"L2_RPC_URL":     BridgeParentRPC,
		"TARGET_ADDRESS": targetAddress,
	}
}
