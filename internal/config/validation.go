package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"git.home.luguber.info/inful/taxosync/internal/taxonomy"
)

// ValidateConfig validates the configuration after normalization and defaults.
func ValidateConfig(cfg *Config) error {
	validator := &configurationValidator{config: cfg}
	return validator.validate()
}

type configurationValidator struct {
	config *Config
}

func (cv *configurationValidator) validate() error {
	if err := cv.validateSource(); err != nil {
		return err
	}
	if err := cv.validateSync(); err != nil {
		return err
	}
	if err := cv.validateStorage(); err != nil {
		return err
	}
	if err := cv.validateTaxonomies(); err != nil {
		return err
	}
	return cv.validateEndpoints()
}

func (cv *configurationValidator) validateSource() error {
	if err := validateHTTPURL("source.base_url", cv.config.Source.BaseURL); err != nil {
		return err
	}
	if err := validateDuration("source.timeout", cv.config.Source.Timeout); err != nil {
		return err
	}
	return nil
}

func (cv *configurationValidator) validateSync() error {
	r := cv.config.Sync.Retry
	if err := validateDuration("sync.retry.initial_delay", r.InitialDelay); err != nil {
		return err
	}
	if err := validateDuration("sync.retry.max_delay", r.MaxDelay); err != nil {
		return err
	}
	if r.InitialDelayDuration() > r.MaxDelayDuration() {
		return fmt.Errorf("sync.retry.initial_delay (%s) exceeds max_delay (%s)", r.InitialDelay, r.MaxDelay)
	}
	return nil
}

func (cv *configurationValidator) validateStorage() error {
	s := cv.config.Storage
	if s.Backend == StorageNATS && s.NATS.URL == "" {
		return errors.New("storage.nats.url is required when storage.backend is nats")
	}
	if s.NATS.Subject != "" && s.NATS.URL == "" {
		return errors.New("storage.nats.url is required when storage.nats.subject is set")
	}
	return nil
}

func (cv *configurationValidator) validateTaxonomies() error {
	for name := range cv.config.Taxonomies {
		if !taxonomy.Known(name) {
			return fmt.Errorf("taxonomies: unknown taxonomy %q", name)
		}
	}
	return nil
}

func (cv *configurationValidator) validateEndpoints() error {
	if err := validateHTTPURL("products.base_url", cv.config.Products.BaseURL); err != nil {
		return err
	}
	if err := validateHTTPURL("robotoff.base_url", cv.config.Robotoff.BaseURL); err != nil {
		return err
	}
	if p := cv.config.Daemon.HTTP.AdminPort; p < 0 || p > 65535 {
		return fmt.Errorf("daemon.http.admin_port out of range: %d", p)
	}
	return nil
}

func validateHTTPURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: invalid URL: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s: unsupported URL scheme %q", field, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%s: missing host", field)
	}
	return nil
}

func validateDuration(field, raw string) error {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", field, raw, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s: must be positive", field)
	}
	return nil
}
