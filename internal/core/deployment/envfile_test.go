package deployment

import (
	"testing"

	"github.com/artpar/orbit-raas/internal/core/domain"
	"github.com/stretchr/testify/assert"
)

func testCredentials() domain.OperatorCredentials {
	return domain.OperatorCredentials{
		DeployerPrivateKey:     "0xaaa",
		BatchPosterPrivateKey:  "0xbbb",
		ValidatorPrivateKey:    "0xccc",
		AvailAddrSeed:          "seed words",
		FallbackS3AccessKey:    "AKIA",
		FallbackS3SecretKey:    "s3secret",
		FallbackS3Region:       "eu-west-1",
		FallbackS3ObjectPrefix: "orbit/",
		FallbackS3Bucket:       "orbit-bucket",
	}
}

func testMetadata() domain.RollupMetadata {
	return domain.RollupMetadata{
		Name:           "orbit",
		ChainID:        DefaultChainID,
		AvailAppID:     "7",
		ParentChainRPC: "https://parent.example/rpc",
	}
}

// =============================================================================
// BuildEnvFile Tests
// =============================================================================

func TestBuildEnvFile_WithoutFallback(t *testing.T) {
	f := BuildEnvFile(testCredentials(), testMetadata())

	expected := "DEPLOYER_PRIVATE_KEY=0xaaa\n" +
		"BATCH_POSTER_PRIVATE_KEY=0xbbb\n" +
		"VALIDATOR_PRIVATE_KEY=0xccc\n" +
		"AVAIL_ADDR_SEED=seed words\n" +
		"AVAIL_APP_ID=7\n" +
		"FALLBACKS3_ENABLE=false\n" +
		"PARENT_CHAIN_RPC=https://parent.example/rpc\n"
	assert.Equal(t, expected, f.Render())
}

func TestBuildEnvFile_WithFallback(t *testing.T) {
	meta := testMetadata()
	meta.FallbackS3Enable = true

	f := BuildEnvFile(testCredentials(), meta)

	assert.Equal(t, []string{
		"DEPLOYER_PRIVATE_KEY",
		"BATCH_POSTER_PRIVATE_KEY",
		"VALIDATOR_PRIVATE_KEY",
		"AVAIL_ADDR_SEED",
		"AVAIL_APP_ID",
		"FALLBACKS3_ENABLE",
		"FALLBACKS3_ACCESS_KEY",
		"FALLBACKS3_SECRET_KEY",
		"FALLBACKS3_REGION",
		"FALLBACKS3_OBJECT_PREFIX",
		"FALLBACKS3_BUCKET",
		"PARENT_CHAIN_RPC",
	}, entryKeys(f))
	assert.Contains(t, f.Render(), "FALLBACKS3_ENABLE=true\n")
}

func TestBuildEnvFile_FallbackSkipsUnsetValues(t *testing.T) {
	creds := testCredentials()
	creds.FallbackS3ObjectPrefix = ""
	meta := testMetadata()
	meta.FallbackS3Enable = true

	f := BuildEnvFile(creds, meta)

	assert.NotContains(t, entryKeys(f), "FALLBACKS3_OBJECT_PREFIX")
	assert.Contains(t, entryKeys(f), "FALLBACKS3_BUCKET")
}

func TestEnvFile_Redacted(t *testing.T) {
	meta := testMetadata()
	meta.FallbackS3Enable = true

	out := BuildEnvFile(testCredentials(), meta).Redacted()

	for _, secret := range []string{"0xaaa", "0xbbb", "0xccc", "seed words", "AKIA", "s3secret"} {
		assert.NotContains(t, out, secret)
	}
	assert.Contains(t, out, "DEPLOYER_PRIVATE_KEY=********\n")
	assert.Contains(t, out, "AVAIL_APP_ID=7\n")
	assert.Contains(t, out, "FALLBACKS3_BUCKET=orbit-bucket\n")
}

func TestBridgeEnv(t *testing.T) {
	env := BridgeEnv(testCredentials())

	assert.Equal(t, "0xaaa", env["PRIVATE_KEY"])
	assert.Equal(t, BridgeParentRPC, env["L2_RPC_URL"])
	assert.Equal(t, BridgeRollupRPC, env["L3_RPC_URL"])
}

func TestDepositEnv(t *testing.T) {
	env := DepositEnv(testCredentials(), "0.5")

	assert.Equal(t, "0xaaa", env["PRIVATE_KEY"])
	assert.Equal(t, BridgeParentRPC, env["L2_RPC_URL"])
	assert.Equal(t, BridgeRollupRPC, env["L3_RPC_URL"])
	assert.Equal(t, "0.5", env["AMOUNT"])
	assert.NotContains(t, BridgeEnv(testCredentials()), "AMOUNT")
}

func TestRefundEnv(t *testing.T) {
	env := RefundEnv(testCredentials(), "0x5fbdb2315678afecb367f032d93f642f64180aa3")

	assert.Equal(t, map[string]string{
		"PRIVATE_KEY":    "0xaaa",
		"L2_RPC_URL":     BridgeParentRPC,
		"TARGET_ADDRESS": "0x5fbdb2315678afecb367f032d93f642f64180aa3",
	}, env)
}

func entryKeys(f EnvFile) []string {
	keys := make([]string, 0, len(f.Entries))
	for _, e := range f.Entries {
		keys = append(keys, e.Key)
	}
	return keys
}
