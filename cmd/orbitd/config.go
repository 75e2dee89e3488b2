package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/artpar/orbit-raas/internal/core/deployment"
	"github.com/artpar/orbit-raas/internal/core/domain"
	"github.com/artpar/orbit-raas/internal/shell/docker"
	"github.com/artpar/orbit-raas/internal/shell/objectstore"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Jobs        JobsConfig        `mapstructure:"jobs"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Docker      DockerConfig      `mapstructure:"docker"`
	Deploy      DeployConfig      `mapstructure:"deploy"`
	Log         LogConfig         `mapstructure:"log"`
	Operator    OperatorConfig    `mapstructure:"operator"`
	Rollup      RollupConfig      `mapstructure:"rollup"`
	ObjectStore ObjectStoreConfig `mapstructure:"objectstore"`
}

// ServerConfig holds the status HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// JobsConfig holds the job dispatch HTTP server configuration.
type JobsConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	// Token, when set, is required as a bearer token on /jobs routes.
	Token string `mapstructure:"token"`

	// WriteTimeout must cover a bridge run.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Address returns the server address in host:port format.
func (c JobsConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// DockerConfig holds container engine configuration.
type DockerConfig struct {
	Host   string `mapstructure:"host"`
	Driver string `mapstructure:"driver"` // "api" or "cli"
}

// DeployConfig holds pipeline configuration.
type DeployConfig struct {
	WorkDir        string        `mapstructure:"work_dir"`
	ComposeCommand []string      `mapstructure:"compose_command"`
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
	NetworkTimeout time.Duration `mapstructure:"network_timeout"`
	StopTimeout    time.Duration `mapstructure:"stop_timeout"` // 0 = engine default
	AutoDeploy     bool          `mapstructure:"auto_deploy"`

	// WatchInterval is the container watcher period, 0 disables the watcher.
	WatchInterval time.Duration `mapstructure:"watch_interval"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// OperatorConfig holds the operator's secrets. Never log this struct; use
// Credentials().LogValue instead.
type OperatorConfig struct {
	DeployerPrivateKey     string `mapstructure:"deployer_private_key"`
	BatchPosterPrivateKey  string `mapstructure:"batch_poster_private_key"`
	ValidatorPrivateKey    string `mapstructure:"validator_private_key"`
	AvailAddrSeed          string `mapstructure:"avail_addr_seed"`
	FallbackS3AccessKey    string `mapstructure:"fallback_s3_access_key"`
	FallbackS3SecretKey    string `mapstructure:"fallback_s3_secret_key"`
	FallbackS3Region       string `mapstructure:"fallback_s3_region"`
	FallbackS3ObjectPrefix string `mapstructure:"fallback_s3_object_prefix"`
	FallbackS3Bucket       string `mapstructure:"fallback_s3_bucket"`
}

// RollupConfig holds the public rollup description. ChainID and
// FallbackS3Enable stay raw strings so bad values fall back instead of
// failing the load.
type RollupConfig struct {
	Name             string `mapstructure:"name"`
	ChainID          string `mapstructure:"chain_id"`
	AvailAppID       string `mapstructure:"avail_app_id"`
	ParentChainRPC   string `mapstructure:"parent_chain_rpc"`
	FallbackS3Enable string `mapstructure:"fallback_s3_enable"`
	LocalRPCEndpoint string `mapstructure:"local_rpc_endpoint"`
	ExplorerURL      string `mapstructure:"explorer_url"`
}

// ObjectStoreConfig holds settings for the fallback bucket check.
type ObjectStoreConfig struct {
	Endpoint string        `mapstructure:"endpoint"` // S3-compatible endpoint, "" for AWS
	Timeout  time.Duration `mapstructure:"timeout"`
}

// =============================================================================
// Config Loading
// =============================================================================

// legacyEnv maps config keys to the unprefixed variable names operators
// already export.
var legacyEnv = map[string]string{
	"operator.deployer_private_key":      "DEPLOYER_PRIVATE_KEY",
	"operator.batch_poster_private_key":  "BATCH_POSTER_PRIVATE_KEY",
	"operator.validator_private_key":     "VALIDATOR_PRIVATE_KEY",
	"operator.avail_addr_seed":           "AVAIL_ADDR_SEED",
	"operator.fallback_s3_access_key":    "FALLBACKS3_ACCESS_KEY",
	"operator.fallback_s3_secret_key":    "FALLBACKS3_SECRET_KEY",
	"operator.fallback_s3_region":        "FALLBACKS3_REGION",
	"operator.fallback_s3_object_prefix": "FALLBACKS3_OBJECT_PREFIX",
	"operator.fallback_s3_bucket":        "FALLBACKS3_BUCKET",
	"rollup.name":                        "ROLLUP_NAME",
	"rollup.chain_id":                    "ROLLUP_CHAIN_ID",
	"rollup.avail_app_id":                "AVAIL_APP_ID",
	"rollup.parent_chain_rpc":            "PARENT_CHAIN_RPC",
	"rollup.fallback_s3_enable":          "FALLBACKS3_ENABLE",
	"rollup.local_rpc_endpoint":          "ROLLUP_LOCAL_RPC",
	"rollup.explorer_url":                "ROLLUP_EXPLORER_URL",
}

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("jobs.host", "127.0.0.1")
	v.SetDefault("jobs.port", 8081)
	v.SetDefault("jobs.token", "")
	v.SetDefault("jobs.write_timeout", "35m")
	v.SetDefault("database.dsn", "./data/orbit.db")
	v.SetDefault("docker.host", "")
	v.SetDefault("docker.driver", string(docker.DriverAPI))
	v.SetDefault("deploy.work_dir", "orbit-deployment")
	v.SetDefault("deploy.compose_command", []string{deployment.ComposeCommand})
	v.SetDefault("deploy.command_timeout", "30m")
	v.SetDefault("deploy.network_timeout", "15m")
	v.SetDefault("deploy.stop_timeout", "0s")
	v.SetDefault("deploy.auto_deploy", true)
	v.SetDefault("deploy.watch_interval", "60s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("rollup.name", deployment.DefaultRollupName)
	v.SetDefault("rollup.chain_id", "")
	v.SetDefault("rollup.fallback_s3_enable", "false")
	v.SetDefault("rollup.local_rpc_endpoint", deployment.DefaultLocalRPCEndpoint)
	v.SetDefault("rollup.explorer_url", deployment.DefaultExplorerURL)
	v.SetDefault("objectstore.endpoint", "")
	v.SetDefault("objectstore.timeout", "10s")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// Only a malformed file is fatal, a missing one falls back to defaults
			var parseErr viper.ConfigParseError
			if errors.As(err, &parseErr) {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix("ORBIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, legacy := range legacyEnv {
		prefixed := "ORBIT_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", legacy, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Deploy.ComposeCommand = splitCommand(cfg.Deploy.ComposeCommand)

	return &cfg, nil
}

// splitCommand splits every element on whitespace, so an environment value of
// "docker compose" and a list of ["docker", "compose"] configure the same
// command. Commas also separate elements when the value comes from the
// environment.
func splitCommand(parts []string) []string {
	var out []string
	for _, p := range parts {
		out = append(out, strings.Fields(p)...)
	}
	return out
}

// =============================================================================
// Validation
// =============================================================================

// Validate reports the first missing or invalid setting. Every error wraps
// domain.ErrConfiguration.
func (c *Config) Validate() error {
	if err := c.Credentials().Validate(); err != nil {
		return err
	}

	required := []struct {
		name  string
		value string
	}{
		{"AVAIL_APP_ID", c.Rollup.AvailAppID},
		{"PARENT_CHAIN_RPC", c.Rollup.ParentChainRPC},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return domain.NewError("ValidateConfig", "", r.name+" not set", domain.ErrConfiguration)
		}
	}

	switch docker.Driver(c.Docker.Driver) {
	case docker.DriverAPI, docker.DriverCLI:
	default:
		return domain.NewError("ValidateConfig", "", fmt.Sprintf("docker.driver must be api or cli, got %q", c.Docker.Driver), domain.ErrConfiguration)
	}

	if c.Server.Port <= 0 || c.Jobs.Port <= 0 {
		return domain.NewError("ValidateConfig", "", "server.port and jobs.port must be positive", domain.ErrConfiguration)
	}
	if c.Server.Address() == c.Jobs.Address() {
		return domain.NewError("ValidateConfig", "", "server and jobs must listen on different addresses", domain.ErrConfiguration)
	}
	return nil
}

// Credentials returns the operator credentials.
func (c *Config) Credentials() domain.OperatorCredentials {
	return domain.OperatorCredentials{
		DeployerPrivateKey:     c.Operator.DeployerPrivateKey,
		BatchPosterPrivateKey:  c.Operator.BatchPosterPrivateKey,
		ValidatorPrivateKey:    c.Operator.ValidatorPrivateKey,
		AvailAddrSeed:          c.Operator.AvailAddrSeed,
		FallbackS3AccessKey:    c.Operator.FallbackS3AccessKey,
		FallbackS3SecretKey:    c.Operator.FallbackS3SecretKey,
		FallbackS3Region:       c.Operator.FallbackS3Region,
		FallbackS3ObjectPrefix: c.Operator.FallbackS3ObjectPrefix,
		FallbackS3Bucket:       c.Operator.FallbackS3Bucket,
	}
}

// Metadata returns the public rollup description.
func (c *Config) Metadata() domain.RollupMetadata {
	return domain.RollupMetadata{
		Name:             c.Rollup.Name,
		ChainID:          parseChainID(c.Rollup.ChainID),
		AvailAppID:       c.Rollup.AvailAppID,
		ParentChainRPC:   c.Rollup.ParentChainRPC,
		FallbackS3Enable: strings.EqualFold(strings.TrimSpace(c.Rollup.FallbackS3Enable), "true"),
		LocalRPCEndpoint: c.Rollup.LocalRPCEndpoint,
		ExplorerURL:      c.Rollup.ExplorerURL,
	}
}

// ObjectStoreChecker returns the fallback bucket check settings. ok is false when
// fallback storage is disabled or not fully configured.
func (c *Config) ObjectStoreChecker() (objectstore.Config, bool) {
	creds := c.Credentials()
	if !c.Metadata().FallbackS3Enable || !creds.HasFallbackS3() {
		return objectstore.Config{}, false
	}
	return objectstore.Config{
		AccessKey: creds.FallbackS3AccessKey,
		SecretKey: creds.FallbackS3SecretKey,
		Region:    creds.FallbackS3Region,
		Bucket:    creds.FallbackS3Bucket,
		Endpoint:  c.ObjectStore.Endpoint,
		Timeout:   c.ObjectStore.Timeout,
	}, true
}

func parseChainID(raw string) uint64 {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return deployment.DefaultChainID
	}
	return id
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
func SetupLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
