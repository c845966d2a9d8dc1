package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"time"
)

// Validation range constants.
const (
	minParallelUploads = 1
	maxParallelUploads = 16
	maxRetries         = 10
	minConnectTimeout  = 1 * time.Second
	minDataTimeout     = 1 * time.Second
)

var (
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"auto", "text", "json"}
)

// Validate checks all configuration values and returns all errors found,
// not just the first, so a user can fix every problem in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)
	errs = append(errs, validateTransfers(&cfg.Transfers)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	return errors.Join(errs...)
}

func validateServer(s *ServerConfig) []error {
	if s.BaseURL == "" {
		return []error{errors.New("base_url: must not be empty")}
	}

	u, err := url.Parse(s.BaseURL)
	if err != nil {
		return []error{fmt.Errorf("base_url: %w", err)}
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return []error{fmt.Errorf("base_url: scheme must be http or https, got %q", u.Scheme)}
	}

	if u.Host == "" {
		return []error{fmt.Errorf("base_url: missing host in %q", s.BaseURL)}
	}

	return nil
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	errs = append(errs, validateDuration("connect_timeout", n.ConnectTimeout, minConnectTimeout)...)
	errs = append(errs, validateDuration("data_timeout", n.DataTimeout, minDataTimeout)...)

	if n.MaxRetries < 0 || n.MaxRetries > maxRetries {
		errs = append(errs, fmt.Errorf("max_retries: must be between 0 and %d, got %d", maxRetries, n.MaxRetries))
	}

	return errs
}

func validateDuration(name, value string, minimum time.Duration) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", name, value, err)}
	}

	if d < minimum {
		return []error{fmt.Errorf("%s: must be at least %s, got %s", name, minimum, d)}
	}

	return nil
}

func validateTransfers(t *TransfersConfig) []error {
	var errs []error

	if t.ParallelUploads < minParallelUploads || t.ParallelUploads > maxParallelUploads {
		errs = append(errs, fmt.Errorf("parallel_uploads: must be between %d and %d, got %d",
			minParallelUploads, maxParallelUploads, t.ParallelUploads))
	}

	if _, err := ParseRate(t.BandwidthLimit); err != nil {
		errs = append(errs, fmt.Errorf("bandwidth_limit: %w", err))
	}

	if _, err := ParseSize(t.MaxUploadSize); err != nil {
		errs = append(errs, fmt.Errorf("max_upload_size: %w", err))
	}

	return errs
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !slices.Contains(validLogLevels, l.LogLevel) {
		errs = append(errs, fmt.Errorf("log_level: must be one of %v, got %q", validLogLevels, l.LogLevel))
	}

	if !slices.Contains(validLogFormats, l.LogFormat) {
		errs = append(errs, fmt.Errorf("log_format: must be one of %v, got %q", validLogFormats, l.LogFormat))
	}

	return errs
}
