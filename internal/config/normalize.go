package config

import (
	"fmt"
	"strings"
)

// NormalizationResult captures adjustments & warnings from normalization pass.
type NormalizationResult struct{ Warnings []string }

// NormalizeConfig performs canonicalization on enumerated and bounded fields prior to default application.
// It mutates the provided config in-place and returns a result describing any coercions.
func NormalizeConfig(c *Config) (*NormalizationResult, error) {
	if c == nil {
		return nil, fmt.Errorf("config nil")
	}
	res := &NormalizationResult{}
	normalizeSource(&c.Source, res)
	normalizeSync(&c.Sync, res)
	normalizeStorage(&c.Storage, res)
	normalizeTaxonomies(c, res)
	normalizeMonitoring(c.Monitoring, res)
	return res, nil
}

func normalizeSource(s *SourceConfig, res *NormalizationResult) {
	s.BaseURL = strings.TrimSpace(s.BaseURL)
	if s.RequestsPerSecond < 0 {
		res.Warnings = append(res.Warnings, warnChanged("source.requests_per_second", s.RequestsPerSecond, 0))
		s.RequestsPerSecond = 0
	}
	if s.Burst < 0 {
		s.Burst = 0
	}
	if s.MaxBodyBytes < 0 {
		s.MaxBodyBytes = 0
	}
}

func normalizeSync(s *SyncConfig, res *NormalizationResult) {
	if s.Concurrency < 0 {
		res.Warnings = append(res.Warnings, warnChanged("sync.concurrency", s.Concurrency, 0))
		s.Concurrency = 0
	}
	s.Schedule = strings.TrimSpace(s.Schedule)
	if rb := NormalizeRetryBackoff(string(s.Retry.Backoff)); rb != "" {
		if s.Retry.Backoff != rb {
			res.Warnings = append(res.Warnings, warnChanged("sync.retry.backoff", s.Retry.Backoff, rb))
			s.Retry.Backoff = rb
		}
	} else if strings.TrimSpace(string(s.Retry.Backoff)) != "" {
		res.Warnings = append(res.Warnings, warnUnknown("sync.retry.backoff", string(s.Retry.Backoff), string(RetryBackoffExponential)))
		s.Retry.Backoff = RetryBackoffExponential
	}
	if s.Retry.MaxRetries != nil && *s.Retry.MaxRetries < 0 {
		zero := 0
		s.Retry.MaxRetries = &zero
	}
}

func normalizeStorage(s *StorageConfig, res *NormalizationResult) {
	if b := NormalizeStorageBackend(string(s.Backend)); b != "" {
		if s.Backend != b {
			res.Warnings = append(res.Warnings, warnChanged("storage.backend", s.Backend, b))
			s.Backend = b
		}
	} else if strings.TrimSpace(string(s.Backend)) != "" {
		res.Warnings = append(res.Warnings, warnUnknown("storage.backend", string(s.Backend), string(StorageSQLite)))
		s.Backend = StorageSQLite
	}
}

// normalizeTaxonomies lower-cases taxonomy names so lookups are case-insensitive.
func normalizeTaxonomies(c *Config, res *NormalizationResult) {
	if len(c.Taxonomies) == 0 {
		return
	}
	out := make(map[string]bool, len(c.Taxonomies))
	for name, enabled := range c.Taxonomies {
		key := strings.ToLower(strings.TrimSpace(name))
		if key != name {
			res.Warnings = append(res.Warnings, warnChanged("taxonomies key", name, key))
		}
		out[key] = enabled
	}
	c.Taxonomies = out
}

func normalizeMonitoring(cfg *MonitoringConfig, res *NormalizationResult) {
	if cfg == nil {
		return
	}
	if lvl := NormalizeLogLevel(string(cfg.Logging.Level)); lvl != "" {
		if cfg.Logging.Level != lvl {
			res.Warnings = append(res.Warnings, warnChanged("monitoring.logging.level", cfg.Logging.Level, lvl))
			cfg.Logging.Level = lvl
		}
	} else if string(cfg.Logging.Level) != "" {
		res.Warnings = append(res.Warnings, warnUnknown("monitoring.logging.level", string(cfg.Logging.Level), string(LogLevelInfo)))
		cfg.Logging.Level = LogLevelInfo
	}
	if f := NormalizeLogFormat(string(cfg.Logging.Format)); f != "" {
		if cfg.Logging.Format != f {
			res.Warnings = append(res.Warnings, warnChanged("monitoring.logging.format", cfg.Logging.Format, f))
			cfg.Logging.Format = f
		}
	} else if string(cfg.Logging.Format) != "" {
		res.Warnings = append(res.Warnings, warnUnknown("monitoring.logging.format", string(cfg.Logging.Format), string(LogFormatText)))
		cfg.Logging.Format = LogFormatText
	}
}

func warnChanged(field string, from, to any) string {
	return fmt.Sprintf("normalized %s from '%v' to '%v'", field, from, to)
}

func warnUnknown(field, value, def string) string {
	return fmt.Sprintf("unknown %s '%s', defaulting to %s", field, value, def)
}
