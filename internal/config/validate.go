package config

import (
	"errors"
	"fmt"
	"net"

	"github.com/randomizedcoder/go-toolrun/internal/logging"
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
// Returns nil if valid, or every problem found joined into one error.
func Validate(cfg *Config) error {
	var errs []error

	validElevators := map[string]bool{"pkexec": true, "sudo": true}
	if !validElevators[cfg.Elevator] {
		errs = append(errs, ValidationError{
			Field:   "elevator",
			Message: fmt.Sprintf("must be 'pkexec' or 'sudo' (got %q)", cfg.Elevator),
		})
	}

	if cfg.WaitDelay <= 0 {
		errs = append(errs, ValidationError{
			Field:   "wait_delay",
			Message: "must be positive",
		})
	}

	if cfg.BufferSize < 1 {
		errs = append(errs, ValidationError{
			Field:   "buffer_size",
			Message: "must be at least 1",
		})
	}

	validPolicies := map[string]bool{
		OverwriteAsk: true, OverwriteAlways: true, OverwriteNever: true,
	}
	if !validPolicies[cfg.Overwrite] {
		errs = append(errs, ValidationError{
			Field:   "overwrite",
			Message: fmt.Sprintf("must be one of: ask, always, never (got %q)", cfg.Overwrite),
		})
	}

	if cfg.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.MetricsAddr); err != nil {
			errs = append(errs, ValidationError{
				Field:   "metrics_addr",
				Message: err.Error(),
			})
		}
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'json' or 'text' (got %q)", cfg.LogFormat),
		})
	}

	if !logging.ValidLevel(cfg.LogLevel) {
		errs = append(errs, ValidationError{
			Field:   "log_level",
			Message: fmt.Sprintf("must be one of: debug, info, warn, error (got %q)", cfg.LogLevel),
		})
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
