package config

import "time"

const (
	DefaultSourceBaseURL   = "https://world.openfoodfacts.org/data/taxonomies/"
	DefaultProductsBaseURL = "https://world.openfoodfacts.org/"
	DefaultRobotoffBaseURL = "https://robotoff.openfoodfacts.org/"
	DefaultUserAgent       = "taxosync/1.0"
	DefaultSourceTimeout   = 30 * time.Second
	DefaultMaxBodyBytes    = 64 << 20
	DefaultConcurrency     = 4
	DefaultMaxRetries      = 2
	DefaultSQLitePath      = "./taxosync.db"
	DefaultNATSBucket      = "taxosync"
	DefaultMetricsPath     = "/metrics"
	DefaultAdminPort       = 8082
)

// ApplyDefaults fills zero values after normalization so canonical values drive defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Source.BaseURL == "" {
		cfg.Source.BaseURL = DefaultSourceBaseURL
	}
	if cfg.Source.Timeout == "" {
		cfg.Source.Timeout = DefaultSourceTimeout.String()
	}
	if cfg.Source.UserAgent == "" {
		cfg.Source.UserAgent = DefaultUserAgent
	}
	if cfg.Source.MaxBodyBytes == 0 {
		cfg.Source.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.Source.RequestsPerSecond > 0 && cfg.Source.Burst == 0 {
		cfg.Source.Burst = 1
	}

	if cfg.Sync.Concurrency == 0 {
		cfg.Sync.Concurrency = DefaultConcurrency
	}
	if cfg.Sync.Retry.Backoff == "" {
		cfg.Sync.Retry.Backoff = RetryBackoffExponential
	}
	if cfg.Sync.Retry.InitialDelay == "" {
		cfg.Sync.Retry.InitialDelay = "1s"
	}
	if cfg.Sync.Retry.MaxDelay == "" {
		cfg.Sync.Retry.MaxDelay = "30s"
	}
	if cfg.Sync.Retry.MaxRetries == nil {
		n := DefaultMaxRetries
		cfg.Sync.Retry.MaxRetries = &n
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = StorageSQLite
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = DefaultSQLitePath
	}
	if cfg.Storage.NATS.Bucket == "" {
		cfg.Storage.NATS.Bucket = DefaultNATSBucket
	}

	if cfg.Monitoring == nil {
		cfg.Monitoring = &MonitoringConfig{}
	}
	if cfg.Monitoring.Metrics.Path == "" {
		cfg.Monitoring.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Monitoring.Logging.Level == "" {
		cfg.Monitoring.Logging.Level = LogLevelInfo
	}
	if cfg.Monitoring.Logging.Format == "" {
		cfg.Monitoring.Logging.Format = LogFormatText
	}

	if cfg.Daemon == nil {
		cfg.Daemon = &DaemonConfig{}
	}
	if cfg.Daemon.HTTP.AdminPort == 0 {
		cfg.Daemon.HTTP.AdminPort = DefaultAdminPort
	}

	if cfg.Products.BaseURL == "" {
		cfg.Products.BaseURL = DefaultProductsBaseURL
	}
	if cfg.Robotoff.BaseURL == "" {
		cfg.Robotoff.BaseURL = DefaultRobotoffBaseURL
	}
}
