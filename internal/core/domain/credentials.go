package domain

import (
	"encoding/hex"
	"log/slog"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// OperatorCredentials holds the signing keys and DA seed used by a deployment.
// Values live in process memory only; the struct has no JSON tags on purpose
// and its LogValue never prints a secret.
type OperatorCredentials struct {
	DeployerPrivateKey    string
	BatchPosterPrivateKey string
	ValidatorPrivateKey   string
	AvailAddrSeed         string

	FallbackS3AccessKey    string
	FallbackS3SecretKey    string
	FallbackS3Region       string
	FallbackS3ObjectPrefix string
	FallbackS3Bucket       string
}

// Validate reports the first missing required credential.
func (c OperatorCredentials) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"DEPLOYER_PRIVATE_KEY", c.DeployerPrivateKey},
		{"BATCH_POSTER_PRIVATE_KEY", c.BatchPosterPrivateKey},
		{"VALIDATOR_PRIVATE_KEY", c.ValidatorPrivateKey},
		{"AVAIL_ADDR_SEED", c.AvailAddrSeed},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return NewError("ValidateCredentials", "", r.name+" not set", ErrConfiguration)
		}
	}
	return nil
}

// HasFallbackS3 reports whether object-storage credentials were supplied.
func (c OperatorCredentials) HasFallbackS3() bool {
	return c.FallbackS3AccessKey != "" && c.FallbackS3SecretKey != "" && c.FallbackS3Bucket != ""
}

// LogValue implements slog.LogValuer.
func (c OperatorCredentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("deployer", Fingerprint(c.DeployerPrivateKey)),
		slog.String("batch_poster", Fingerprint(c.BatchPosterPrivateKey)),
		slog.String("validator", Fingerprint(c.ValidatorPrivateKey)),
		slog.Bool("fallback_s3", c.HasFallbackS3()),
	)
}

// Fingerprint returns a short, non-reversible identifier for a secret so logs
// can tell two keys apart without revealing either.
func Fingerprint(secret string) string {
	if secret == "" {
		return "<unset>"
	}
	sum := blake2b.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:4])
}
