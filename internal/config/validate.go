package config

import (
	"errors"
	"fmt"
	"time"
)

// ValidationError contains details about what failed validation.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config.%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// validateConfig checks all config values for validity.
// Returns nil if valid, or joined errors for all validation failures.
func validateConfig(cfg *Config) error {
	var errs []error

	if cfg.Processes < 1 {
		errs = append(errs, &ValidationError{
			Field:   "processes",
			Value:   cfg.Processes,
			Message: "must be at least 1",
		})
	}

	if cfg.PabotLibPort < 1 || cfg.PabotLibPort > 65535 {
		errs = append(errs, &ValidationError{
			Field:   "pabotlib_port",
			Value:   cfg.PabotLibPort,
			Message: "must be a valid TCP port",
		})
	}

	if cfg.ProcessTimeout != "" {
		if _, err := time.ParseDuration(cfg.ProcessTimeout); err != nil {
			errs = append(errs, &ValidationError{
				Field:   "process_timeout",
				Value:   cfg.ProcessTimeout,
				Message: fmt.Sprintf("invalid duration: %v", err),
			})
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.LogLevel] {
		errs = append(errs, &ValidationError{
			Field:   "log_level",
			Value:   cfg.LogLevel,
			Message: "must be one of: debug, info, warn, error",
		})
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
