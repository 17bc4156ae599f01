// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cfgweave/cfgweave/pkg/types"

	"github.com/charmbracelet/log"
)

const (
	// CacheDriverNone disables caching.
	CacheDriverNone CacheDriver = "none"
	// CacheDriverMemory keeps cache entries for the lifetime of the process.
	CacheDriverMemory CacheDriver = "memory"
	// CacheDriverFile stores cache entries as files under CacheSettings.Dir.
	CacheDriverFile CacheDriver = "file"

	// LogLevelDebug logs discovery decisions.
	LogLevelDebug LogLevel = "debug"
	// LogLevelInfo is the default level.
	LogLevelInfo LogLevel = "info"
	// LogLevelWarn logs only recoverable problems.
	LogLevelWarn LogLevel = "warn"
	// LogLevelError logs only failures.
	LogLevelError LogLevel = "error"
)

var (
	// ErrInvalidCacheDriver is returned when a CacheDriver value is not recognized.
	ErrInvalidCacheDriver = errors.New("invalid cache driver")
	// ErrInvalidLogLevel is returned when a LogLevel value is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidRoot is the sentinel error wrapped by InvalidRootError.
	ErrInvalidRoot = errors.New("invalid root")
	// ErrInvalidSettings is the sentinel error wrapped by InvalidSettingsError.
	ErrInvalidSettings = errors.New("invalid settings")
)

type (
	// CacheDriver selects the cache.Store the CLI hands to the loader.
	CacheDriver string

	// InvalidCacheDriverError is returned when a CacheDriver value is not recognized.
	// It wraps ErrInvalidCacheDriver for errors.Is() compatibility.
	InvalidCacheDriverError struct {
		Value CacheDriver
	}

	// LogLevel is the minimum level the CLI logger emits.
	LogLevel string

	// InvalidLogLevelError is returned when a LogLevel value is not recognized.
	// It wraps ErrInvalidLogLevel for errors.Is() compatibility.
	InvalidLogLevelError struct {
		Value LogLevel
	}

	// InvalidRootError is returned when a Root has invalid fields.
	InvalidRootError struct {
		Index       int
		FieldErrors []error
	}

	// InvalidSettingsError collects every field error of a Settings value.
	// It wraps ErrInvalidSettings for errors.Is() compatibility.
	InvalidSettingsError struct {
		FieldErrors []error
	}

	// Root is a root location pattern. An empty Namespace assigns each
	// discovered type the name of the matched directory.
	Root struct {
		Path      types.FilesystemPath `json:"path" mapstructure:"path"`
		Namespace string               `json:"namespace,omitempty" mapstructure:"namespace"`
	}

	// CacheSettings configures the loader cache.
	CacheSettings struct {
		// Driver is "none", "memory" or "file".
		Driver CacheDriver `json:"driver" mapstructure:"driver"`
		// Dir holds file cache entries. Empty means the user cache directory.
		Dir types.FilesystemPath `json:"dir,omitempty" mapstructure:"dir"`
	}

	// Settings holds the CLI settings.
	Settings struct {
		Type             string        `json:"type" mapstructure:"type"`
		Environment      string        `json:"environment" mapstructure:"environment"`
		Roots            []Root        `json:"roots" mapstructure:"roots"`
		HandlerLocations []string      `json:"handler_locations" mapstructure:"handler_locations"`
		Cache            CacheSettings `json:"cache" mapstructure:"cache"`
		// Runtime loads in runtime-definition mode.
		Runtime  bool     `json:"runtime" mapstructure:"runtime"`
		LogLevel LogLevel `json:"log_level" mapstructure:"log_level"`

		// Source is the file the settings were read from, empty for defaults.
		Source types.FilesystemPath `json:"-" mapstructure:"-"`
	}
)

// DefaultSettings returns the settings used when no file exists.
func DefaultSettings() *Settings {
	return &Settings{
		Type:             "app",
		Environment:      "dev",
		Roots:            []Root{{Path: "plugins/*"}},
		HandlerLocations: []string{"Handlers"},
		Cache:            CacheSettings{Driver: CacheDriverNone},
		LogLevel:         LogLevelInfo,
	}
}

// String returns the string representation of the CacheDriver.
func (d CacheDriver) String() string { return string(d) }

// IsValid returns whether the CacheDriver is one of the defined drivers.
func (d CacheDriver) IsValid() (bool, []error) {
	switch d {
	case CacheDriverNone, CacheDriverMemory, CacheDriverFile:
		return true, nil
	default:
		return false, []error{&InvalidCacheDriverError{Value: d}}
	}
}

// Error implements the error interface for InvalidCacheDriverError.
func (e *InvalidCacheDriverError) Error() string {
	return fmt.Sprintf("invalid cache driver %q (valid: none, memory, file)", e.Value)
}

// Unwrap returns ErrInvalidCacheDriver for errors.Is() compatibility.
func (e *InvalidCacheDriverError) Unwrap() error { return ErrInvalidCacheDriver }

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string { return string(l) }

// IsValid returns whether the LogLevel is one of the defined levels.
func (l LogLevel) IsValid() (bool, []error) {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true, nil
	default:
		return false, []error{&InvalidLogLevelError{Value: l}}
	}
}

// Level maps l onto the logger level. Unknown values map to info.
func (l LogLevel) Level() log.Level {
	switch l {
	case LogLevelDebug:
		return log.DebugLevel
	case LogLevelWarn:
		return log.WarnLevel
	case LogLevelError:
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// Error implements the error interface for InvalidLogLevelError.
func (e *InvalidLogLevelError) Error() string {
	return fmt.Sprintf("invalid log level %q (valid: debug, info, warn, error)", e.Value)
}

// Unwrap returns ErrInvalidLogLevel for errors.Is() compatibility.
func (e *InvalidLogLevelError) Unwrap() error { return ErrInvalidLogLevel }

// Error implements the error interface for InvalidRootError.
func (e *InvalidRootError) Error() string {
	return fmt.Sprintf("roots[%d]: %s", e.Index, errors.Join(e.FieldErrors...))
}

// Unwrap returns ErrInvalidRoot for errors.Is() compatibility.
func (e *InvalidRootError) Unwrap() error { return ErrInvalidRoot }

// IsValid returns whether every field of the Settings is valid.
func (s Settings) IsValid() (bool, []error) {
	var errs []error
	if strings.TrimSpace(s.Type) == "" {
		errs = append(errs, errors.New("type must not be empty"))
	}
	if strings.TrimSpace(s.Environment) == "" {
		errs = append(errs, errors.New("environment must not be empty"))
	}
	for i, root := range s.Roots {
		if err := root.Path.Validate(); err != nil {
			errs = append(errs, &InvalidRootError{Index: i, FieldErrors: []error{err}})
		}
	}
	for i, loc := range s.HandlerLocations {
		if strings.TrimSpace(loc) == "" {
			errs = append(errs, fmt.Errorf("handler_locations[%d] must not be empty", i))
		}
	}
	if valid, fieldErrs := s.Cache.Driver.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if s.Cache.Dir != "" {
		if err := s.Cache.Dir.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if valid, fieldErrs := s.LogLevel.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if len(errs) > 0 {
		return false, []error{&InvalidSettingsError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidSettingsError.
func (e *InvalidSettingsError) Error() string {
	msgs := make([]string, 0, len(e.FieldErrors))
	for _, err := range e.FieldErrors {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("invalid settings: %s", strings.Join(msgs, "; "))
}

// Unwrap returns ErrInvalidSettings and the field errors.
func (e *InvalidSettingsError) Unwrap() []error {
	return append([]error{ErrInvalidSettings}, e.FieldErrors...)
}
