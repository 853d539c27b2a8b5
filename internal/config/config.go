// Copyright © 2026 PureBoot Contributors
//
// SPDX-License-Identifier: MIT

// Package config is the typed configuration tree for both PureBoot
// binaries, loaded with viper/cobra the same way as the rest of this
// codebase: flags bound to viper keys, environment overrides under a
// PUREBOOT_ prefix, and an optional YAML config file.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Controller holds every option the central controller binary reads.
type Controller struct {
	// Process
	Host  string `mapstructure:"host"`
	Port  int    `mapstructure:"port"`
	Debug bool   `mapstructure:"debug"`

	// Storage
	DatabaseURL   string `mapstructure:"database_url"`
	DataDir       string `mapstructure:"data_dir"`
	StorageBackend string `mapstructure:"storage_backend"` // local, azure, iscsi
	AzureConnStr  string `mapstructure:"azure_connection_string"`
	AzureContainer string `mapstructure:"azure_container"`

	// Registration
	AutoRegister    bool   `mapstructure:"auto_register"`
	DefaultGroupID  string `mapstructure:"default_group_id"`

	// Install
	MaxInstallAttempts    int `mapstructure:"max_install_attempts"`
	InstallTimeoutMinutes int `mapstructure:"install_timeout_minutes"`
	DiscoveryWaitSeconds  int `mapstructure:"discovery_wait_seconds"`

	// Health
	StaleThresholdMinutes   int `mapstructure:"stale_threshold_minutes"`
	OfflineThresholdMinutes int `mapstructure:"offline_threshold_minutes"`
	SnapshotIntervalMinutes int `mapstructure:"snapshot_interval_minutes"`
	SnapshotRetentionDays   int `mapstructure:"snapshot_retention_days"`
	ScoreStalenessWeight    int `mapstructure:"score_staleness_weight"`
	ScoreInstallWeight      int `mapstructure:"score_install_weight"`
	ScoreBootWeight         int `mapstructure:"score_boot_weight"`
	AlertOnStale            bool `mapstructure:"alert_on_stale"`
	AlertOnOffline          bool `mapstructure:"alert_on_offline"`
	AlertOnScoreBelow       int  `mapstructure:"alert_on_score_below"`

	// Files
	DefaultBootBackendID     string `mapstructure:"default_boot_backend_id"`
	FileServingBandwidthMbps int    `mapstructure:"file_serving_bandwidth_mbps"`

	// Workflows
	WorkflowDir string `mapstructure:"workflow_dir"`

	// Auth
	EnableAuth   bool   `mapstructure:"enable_auth"`
	JWKSEndpoint string `mapstructure:"jwks_endpoint"`
	StaticJWTKey string `mapstructure:"static_jwt_public_key"`

	// Timeouts
	ReadTimeoutSeconds  int `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds int `mapstructure:"write_timeout_seconds"`
	IdleTimeoutSeconds  int `mapstructure:"idle_timeout_seconds"`
}

// DefaultController returns the controller's documented defaults.
func DefaultController() Controller {
	return Controller{
		Host:  "0.0.0.0",
		Port:  8080,
		Debug: false,

		DatabaseURL:    "postgres://localhost:5432/pureboot?sslmode=disable",
		DataDir:        "./data",
		StorageBackend: "local",

		AutoRegister:   true,
		DefaultGroupID: "",

		MaxInstallAttempts:    3,
		InstallTimeoutMinutes: 60,
		DiscoveryWaitSeconds:  30,

		StaleThresholdMinutes:   15,
		OfflineThresholdMinutes: 60,
		SnapshotIntervalMinutes: 5,
		SnapshotRetentionDays:   30,
		ScoreStalenessWeight:    40,
		ScoreInstallWeight:      30,
		ScoreBootWeight:         30,
		AlertOnStale:            true,
		AlertOnOffline:          true,
		AlertOnScoreBelow:       50,

		DefaultBootBackendID:     "local",
		FileServingBandwidthMbps: 0,

		WorkflowDir: "./workflows",

		EnableAuth: false,

		ReadTimeoutSeconds:  30,
		WriteTimeoutSeconds: 30,
		IdleTimeoutSeconds:  120,
	}
}

// Validate rejects configurations that would leave the controller in an
// inconsistent state.
func (c Controller) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.MaxInstallAttempts < 1 {
		return fmt.Errorf("max_install_attempts must be at least 1")
	}
	sum := c.ScoreStalenessWeight + c.ScoreInstallWeight + c.ScoreBootWeight
	if sum != 100 {
		return fmt.Errorf("score weights must sum to 100, got %d", sum)
	}
	switch c.StorageBackend {
	case "local", "azure", "iscsi":
	default:
		return fmt.Errorf("unknown storage_backend: %s", c.StorageBackend)
	}
	return nil
}

// Agent holds every option the site agent binary reads.
type Agent struct {
	Host  string `mapstructure:"host"`
	Port  int    `mapstructure:"port"`
	Debug bool   `mapstructure:"debug"`

	CentralURL                    string `mapstructure:"central_url"`
	ConnectivityCheckIntervalSecs int    `mapstructure:"connectivity_check_interval"`
	ConnectivityTimeoutSecs       int    `mapstructure:"connectivity_timeout"`
	ConnectivityFailureThreshold  int    `mapstructure:"connectivity_failure_threshold"`

	OfflineDefaultAction string `mapstructure:"offline_default_action"` // local, discovery, last_known

	QueueBatchSize    int `mapstructure:"queue_batch_size"`
	QueueRetryDelaySecs int `mapstructure:"queue_retry_delay"`
	QueueMaxRetries   int `mapstructure:"queue_max_retries"`

	LocalStorePath string `mapstructure:"local_store_path"`
	CacheDir       string `mapstructure:"cache_dir"`
	CachePolicy    string `mapstructure:"cache_policy"` // minimal, assigned, mirror, pattern

	ConflictStrategy string `mapstructure:"conflict_strategy"` // central_wins, last_write, site_wins, manual
}

// DefaultAgent returns the site agent's documented defaults.
func DefaultAgent() Agent {
	return Agent{
		Host:  "0.0.0.0",
		Port:  8081,
		Debug: false,

		CentralURL:                    "http://localhost:8080",
		ConnectivityCheckIntervalSecs: 30,
		ConnectivityTimeoutSecs:       5,
		ConnectivityFailureThreshold:  3,

		OfflineDefaultAction: "local",

		QueueBatchSize:      20,
		QueueRetryDelaySecs: 10,
		QueueMaxRetries:     5,

		LocalStorePath: "./agent-data/agent.db",
		CacheDir:       "./agent-data/cache",
		CachePolicy:    "assigned",

		ConflictStrategy: "central_wins",
	}
}

// Validate rejects site-agent configurations that would leave it in an
// inconsistent state.
func (a Agent) Validate() error {
	if a.Port <= 0 || a.Port > 65535 {
		return fmt.Errorf("invalid port: %d", a.Port)
	}
	if a.CentralURL == "" {
		return fmt.Errorf("central_url is required")
	}
	switch a.OfflineDefaultAction {
	case "local", "discovery", "last_known":
	default:
		return fmt.Errorf("unknown offline_default_action: %s", a.OfflineDefaultAction)
	}
	switch a.ConflictStrategy {
	case "central_wins", "last_write", "site_wins", "manual":
	default:
		return fmt.Errorf("unknown conflict_strategy: %s", a.ConflictStrategy)
	}
	switch a.CachePolicy {
	case "minimal", "assigned", "mirror", "pattern":
	default:
		return fmt.Errorf("unknown cache_policy: %s", a.CachePolicy)
	}
	return nil
}

// BindEnv wires viper to the PUREBOOT_ environment namespace and an
// optional config file search path, shared by both binaries.
func BindEnv(v *viper.Viper, configName string) {
	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/pureboot/")
	v.AddConfigPath("$HOME/.pureboot")

	v.SetEnvPrefix("PUREBOOT")
	v.AutomaticEnv()
}

// BindControllerFlags registers the controller's CLI flags and binds them
// to viper so environment, flag and file values compose in viper's usual
// precedence order.
func BindControllerFlags(cmd *cobra.Command, v *viper.Viper) {
	d := DefaultController()

	cmd.Flags().String("host", d.Host, "address to bind to")
	cmd.Flags().Int("port", d.Port, "port to listen on")
	cmd.Flags().Bool("debug", d.Debug, "enable verbose logging")

	cmd.Flags().String("database-url", d.DatabaseURL, "Postgres connection string")
	cmd.Flags().String("data-dir", d.DataDir, "directory used by the local file-serving backend")
	cmd.Flags().String("storage-backend", d.StorageBackend, "file-serving backend: local, azure, or iscsi")
	cmd.Flags().String("azure-connection-string", d.AzureConnStr, "Azure Storage connection string, when storage-backend=azure")
	cmd.Flags().String("azure-container", d.AzureContainer, "Azure Blob container name, when storage-backend=azure")

	cmd.Flags().Bool("auto-register", d.AutoRegister, "auto-create nodes on first sighting")
	cmd.Flags().String("default-group-id", d.DefaultGroupID, "group assigned to auto-registered nodes")

	cmd.Flags().Int("max-install-attempts", d.MaxInstallAttempts, "install attempts before install_failed")
	cmd.Flags().Int("install-timeout-minutes", d.InstallTimeoutMinutes, "0 disables the install timeout path")
	cmd.Flags().Int("discovery-wait-seconds", d.DiscoveryWaitSeconds, "seconds the discovery and no-workflow boot scripts sleep before local boot")

	cmd.Flags().Int("stale-threshold-minutes", d.StaleThresholdMinutes, "minutes since last_seen_at before a node is stale")
	cmd.Flags().Int("offline-threshold-minutes", d.OfflineThresholdMinutes, "minutes since last_seen_at before a node is offline")
	cmd.Flags().Int("snapshot-interval-minutes", d.SnapshotIntervalMinutes, "health snapshot cadence")
	cmd.Flags().Int("snapshot-retention-days", d.SnapshotRetentionDays, "health snapshot retention window")
	cmd.Flags().Int("score-staleness-weight", d.ScoreStalenessWeight, "staleness component weight")
	cmd.Flags().Int("score-install-weight", d.ScoreInstallWeight, "install component weight")
	cmd.Flags().Int("score-boot-weight", d.ScoreBootWeight, "boot component weight")
	cmd.Flags().Bool("alert-on-stale", d.AlertOnStale, "raise node_stale alerts")
	cmd.Flags().Bool("alert-on-offline", d.AlertOnOffline, "raise node_offline alerts")
	cmd.Flags().Int("alert-on-score-below", d.AlertOnScoreBelow, "raise low_health_score below this value")

	cmd.Flags().String("default-boot-backend-id", d.DefaultBootBackendID, "default file-serving backend id")
	cmd.Flags().Int("file-serving-bandwidth-mbps", d.FileServingBandwidthMbps, "0 disables throttling")

	cmd.Flags().String("workflow-dir", d.WorkflowDir, "directory holding workflow definition files")

	cmd.Flags().Bool("enable-auth", d.EnableAuth, "require bearer JWTs on admin endpoints")
	cmd.Flags().String("jwks-endpoint", d.JWKSEndpoint, "JWKS endpoint for JWT validation")
	cmd.Flags().String("static-jwt-public-key", d.StaticJWTKey, "static RSA public key PEM, used when jwks-endpoint is empty")

	cmd.Flags().Int("read-timeout-seconds", d.ReadTimeoutSeconds, "HTTP read timeout")
	cmd.Flags().Int("write-timeout-seconds", d.WriteTimeoutSeconds, "HTTP write timeout")
	cmd.Flags().Int("idle-timeout-seconds", d.IdleTimeoutSeconds, "HTTP idle timeout")

	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f) //nolint:errcheck
	})
}

// BindAgentFlags registers the site agent's CLI flags and binds them to
// viper.
func BindAgentFlags(cmd *cobra.Command, v *viper.Viper) {
	d := DefaultAgent()

	cmd.Flags().String("host", d.Host, "address to bind to")
	cmd.Flags().Int("port", d.Port, "port to listen on")
	cmd.Flags().Bool("debug", d.Debug, "enable verbose logging")

	cmd.Flags().String("central-url", d.CentralURL, "base URL of the central controller")
	cmd.Flags().Int("connectivity-check-interval", d.ConnectivityCheckIntervalSecs, "seconds between connectivity polls")
	cmd.Flags().Int("connectivity-timeout", d.ConnectivityTimeoutSecs, "seconds before a connectivity poll is considered failed")
	cmd.Flags().Int("connectivity-failure-threshold", d.ConnectivityFailureThreshold, "consecutive failures before going offline")

	cmd.Flags().String("offline-default-action", d.OfflineDefaultAction, "local, discovery, or last_known")

	cmd.Flags().Int("queue-batch-size", d.QueueBatchSize, "items drained per batch on reconnect")
	cmd.Flags().Int("queue-retry-delay", d.QueueRetryDelaySecs, "seconds between retrying a failed queue item")
	cmd.Flags().Int("queue-max-retries", d.QueueMaxRetries, "retries before a queue item is marked failed")

	cmd.Flags().String("local-store-path", d.LocalStorePath, "path to the site agent's local bbolt database")
	cmd.Flags().String("cache-dir", d.CacheDir, "directory the site agent mirrors boot artifacts into")
	cmd.Flags().String("cache-policy", d.CachePolicy, "minimal, assigned, mirror, or pattern")

	cmd.Flags().String("conflict-strategy", d.ConflictStrategy, "central_wins, last_write, site_wins, or manual")

	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f) //nolint:errcheck
	})
}
