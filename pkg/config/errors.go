package config

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// Setting describes a configuration key and the field it populates.
type Setting struct {
	// Key is the environment variable name.
	Key string
	// Field is the human readable field name.
	Field string
	// Reason is set for invalid values.
	Reason string
}

func (s Setting) String() string {
	if s.Reason != "" {
		return fmt.Sprintf("%s (%s): %s", s.Key, s.Field, s.Reason)
	}
	return fmt.Sprintf("%s (%s)", s.Key, s.Field)
}

// ConfigurationError is returned when required settings are missing or
// settings have invalid values. All problems found in one pass are reported.
type ConfigurationError struct {
	Missing []Setting
	Invalid []Setting
	// Cause is set when the settings source could not be read.
	Cause error
}

func (e *ConfigurationError) Error() string {
	var parts []string
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required settings: "+join(e.Missing))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid settings: "+join(e.Invalid))
	}
	if len(parts) == 0 {
		return "configuration error"
	}
	return "configuration error: " + strings.Join(parts, "; ")
}

// Unwrap returns the underlying source error, if any.
func (e *ConfigurationError) Unwrap() error {
	return e.Cause
}

// MissingKeys returns the environment keys of the missing settings.
func (e *ConfigurationError) MissingKeys() []string {
	keys := make([]string, 0, len(e.Missing))
	for _, s := range e.Missing {
		keys = append(keys, s.Key)
	}
	return keys
}

func (e *ConfigurationError) empty() bool {
	return e.Cause == nil && len(e.Missing) == 0 && len(e.Invalid) == 0
}

// IsConfigurationError returns true if err is, or wraps, a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

func join(list []Setting) string {
	s := make([]string, 0, len(list))
	for _, item := range list {
		s = append(s, item.String())
	}
	return strings.Join(s, ", ")
}
