// Package config loads, normalizes and validates the taxosync YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// CurrentVersion is the only configuration schema version understood by Load.
const CurrentVersion = "1.0"

// Config is the root configuration document.
type Config struct {
	Version    string            `yaml:"version"`
	Source     SourceConfig      `yaml:"source"`
	Sync       SyncConfig        `yaml:"sync"`
	Storage    StorageConfig     `yaml:"storage"`
	Taxonomies map[string]bool   `yaml:"taxonomies,omitempty"` // initial enablement per taxonomy name
	Monitoring *MonitoringConfig `yaml:"monitoring,omitempty"`
	Daemon     *DaemonConfig     `yaml:"daemon,omitempty"`
	Products   ProductsConfig    `yaml:"products"`
	Robotoff   RobotoffConfig    `yaml:"robotoff"`
}

// SourceConfig describes the remote taxonomy source.
type SourceConfig struct {
	BaseURL           string  `yaml:"base_url"`
	Timeout           string  `yaml:"timeout"` // Go duration, e.g. "30s"
	UserAgent         string  `yaml:"user_agent"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	MaxBodyBytes      int64   `yaml:"max_body_bytes"`
}

// SyncConfig controls the orchestrator and the daemon schedule.
type SyncConfig struct {
	Concurrency int         `yaml:"concurrency"` // max taxonomies refreshed in parallel
	Schedule    string      `yaml:"schedule"`    // cron expression used by the daemon
	Retry       RetryConfig `yaml:"retry"`
}

// RetryConfig configures loader retries for transient failures.
type RetryConfig struct {
	Backoff      RetryBackoffMode `yaml:"backoff"`
	InitialDelay string           `yaml:"initial_delay"`
	MaxDelay     string           `yaml:"max_delay"`
	MaxRetries   *int             `yaml:"max_retries,omitempty"`
}

// StorageBackend selects where preferences and markers are kept.
type StorageBackend string

const (
	StorageSQLite StorageBackend = "sqlite"
	StorageMemory StorageBackend = "memory"
	StorageNATS   StorageBackend = "nats"
)

// StorageConfig represents local persistence configuration.
type StorageConfig struct {
	Backend StorageBackend `yaml:"backend"`
	Path    string         `yaml:"path"` // SQLite database file
	NATS    NATSConfig     `yaml:"nats"`
}

// NATSConfig configures the JetStream connection used for preferences and sync events.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Bucket  string `yaml:"bucket"`
	Subject string `yaml:"subject"` // empty disables event publishing
}

// MonitoringConfig represents monitoring and observability configuration
type MonitoringConfig struct {
	Metrics MonitoringMetrics `yaml:"metrics"`
	Logging MonitoringLogging `yaml:"logging"`
}

// MonitoringMetrics represents metrics configuration
type MonitoringMetrics struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// MonitoringLogging represents logging configuration
type MonitoringLogging struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// DaemonConfig represents daemon-specific configuration
type DaemonConfig struct {
	HTTP HTTPConfig `yaml:"http"`
}

// HTTPConfig represents HTTP server configuration
type HTTPConfig struct {
	AdminPort int `yaml:"admin_port"`
}

// ProductsConfig points at the product API used to refresh scan history.
type ProductsConfig struct {
	BaseURL string `yaml:"base_url"`
}

// RobotoffConfig points at the Robotoff question API. Credentials are optional.
type RobotoffConfig struct {
	BaseURL  string `yaml:"base_url"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// Load loads a configuration file.
func Load(configPath string) (*Config, error) {
	// Load .env file if it exists
	if err := loadEnvFile(); err != nil {
		fmt.Fprintf(os.Stderr, "Note: .env file not found or couldn't be loaded: %v\n", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes, normalizes, defaults and validates raw YAML.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables in the YAML content
	expanded := os.ExpandEnv(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported configuration version: %s (expected %s)", config.Version, CurrentVersion)
	}

	// Normalization pass (case-fold enumerations, bounds)
	if nres, nerr := NormalizeConfig(&config); nerr != nil {
		return nil, fmt.Errorf("normalize: %w", nerr)
	} else if nres != nil {
		for _, w := range nres.Warnings {
			fmt.Fprintf(os.Stderr, "config normalization: %s\n", w)
		}
	}

	ApplyDefaults(&config)

	if err := ValidateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &config, nil
}

// Init writes an example configuration file.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	retries := 2
	example := Config{
		Version: CurrentVersion,
		Source: SourceConfig{
			BaseURL:           DefaultSourceBaseURL,
			Timeout:           "30s",
			UserAgent:         DefaultUserAgent,
			RequestsPerSecond: 2,
			Burst:             4,
		},
		Sync: SyncConfig{
			Concurrency: 4,
			Schedule:    "0 3 * * *",
			Retry: RetryConfig{
				Backoff:      RetryBackoffExponential,
				InitialDelay: "1s",
				MaxDelay:     "30s",
				MaxRetries:   &retries,
			},
		},
		Storage: StorageConfig{
			Backend: StorageSQLite,
			Path:    "./taxosync.db",
		},
		Taxonomies: map[string]bool{"brands": false, "stores": false},
		Monitoring: &MonitoringConfig{
			Metrics: MonitoringMetrics{Enabled: true, Path: "/metrics"},
			Logging: MonitoringLogging{Level: LogLevelInfo, Format: LogFormatText},
		},
		Daemon:   &DaemonConfig{HTTP: HTTPConfig{AdminPort: 8082}},
		Products: ProductsConfig{BaseURL: DefaultProductsBaseURL},
		Robotoff: RobotoffConfig{BaseURL: DefaultRobotoffBaseURL, User: "${TAXOSYNC_USER}", Password: "${TAXOSYNC_PASSWORD}"},
	}

	data, err := yaml.Marshal(&example)
	if err != nil {
		return fmt.Errorf("failed to marshal example config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// TimeoutDuration returns the parsed source timeout.
func (s SourceConfig) TimeoutDuration() time.Duration {
	return parseDurationOr(s.Timeout, DefaultSourceTimeout)
}

// InitialDelayDuration returns the parsed retry initial delay.
func (r RetryConfig) InitialDelayDuration() time.Duration {
	return parseDurationOr(r.InitialDelay, 0)
}

// MaxDelayDuration returns the parsed retry delay cap.
func (r RetryConfig) MaxDelayDuration() time.Duration {
	return parseDurationOr(r.MaxDelay, 0)
}

// RetryCount returns the configured retry count (defaults applied by ApplyDefaults).
func (r RetryConfig) RetryCount() int {
	if r.MaxRetries == nil {
		return DefaultMaxRetries
	}
	return *r.MaxRetries
}

// LoggingOrDefault returns the logging section, never nil.
func (c *Config) LoggingOrDefault() MonitoringLogging {
	if c == nil || c.Monitoring == nil {
		return MonitoringLogging{Level: LogLevelInfo, Format: LogFormatText}
	}
	return c.Monitoring.Logging
}

func parseDurationOr(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
