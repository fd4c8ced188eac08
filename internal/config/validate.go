package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or every problem joined with errors.Join.
func Validate(cfg *Config) error {
	var errs []error

	// Emby address is required
	if cfg.EmbyAddr == "" {
		errs = append(errs, ValidationError{
			Field:   "emby",
			Message: "Emby server address is required",
		})
	} else if err := validateAddr(cfg.EmbyAddr); err != nil {
		errs = append(errs, ValidationError{
			Field:   "emby",
			Message: err.Error(),
		})
	}

	// Interval must leave room for at least one request
	const minInterval = time.Second
	if cfg.Interval < minInterval {
		errs = append(errs, ValidationError{
			Field:   "interval",
			Message: fmt.Sprintf("must be at least %v (got %v)", minInterval, cfg.Interval),
		})
	}

	// Timeout must be positive
	if cfg.Timeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "timeout",
			Message: "must be positive",
		})
	}

	if cfg.PollTimeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "poll_timeout",
			Message: "must not be negative",
		})
	}

	if cfg.PageSize < 1 {
		errs = append(errs, ValidationError{
			Field:   "page_size",
			Message: "must be at least 1",
		})
	}

	if cfg.FetchConcurrency < 1 {
		errs = append(errs, ValidationError{
			Field:   "fetch_concurrency",
			Message: "must be at least 1",
		})
	}

	// Listen address
	if cfg.Port < 1 || cfg.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   "port",
			Message: fmt.Sprintf("must be in [1, 65535] (got %d)", cfg.Port),
		})
	}
	if cfg.Interface != "" && net.ParseIP(cfg.Interface) == nil && strings.ContainsAny(cfg.Interface, ":/") {
		errs = append(errs, ValidationError{
			Field:   "interface",
			Message: fmt.Sprintf("must be an IP address or hostname (got %q)", cfg.Interface),
		})
	}

	// Log format must be valid
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'json' or 'text' (got %q)", cfg.LogFormat),
		})
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.LogLevel)] {
		errs = append(errs, ValidationError{
			Field:   "log_level",
			Message: fmt.Sprintf("must be one of: debug, info, warn, error (got %q)", cfg.LogLevel),
		})
	}

	// The dashboard owns the terminal; one-shot mode owns stdout
	if cfg.Once && cfg.TUIEnabled {
		errs = append(errs, ValidationError{
			Field:   "tui",
			Message: "cannot be combined with -once",
		})
	}

	// Return combined errors
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// validateAddr checks a host:port or http(s) URL.
func validateAddr(addr string) error {
	raw := addr
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid address: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https (got %q)", u.Scheme)
	}

	if u.Host == "" {
		return errors.New("address must have a host")
	}

	return nil
}
