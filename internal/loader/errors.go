// SPDX-License-Identifier: MPL-2.0

package loader

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidLocation is the sentinel error wrapped by InvalidLocationError.
	ErrInvalidLocation = errors.New("invalid location")
	// ErrInvalidContextType is the sentinel error wrapped by
	// InvalidContextTypeError.
	ErrInvalidContextType = errors.New("invalid config context type")

	errCache = errors.New("cache unavailable")
)

type (
	// InvalidLocationError is returned when a root or handler location cannot
	// be used as a glob pattern.
	InvalidLocationError struct {
		Pattern string
		Reason  string
	}

	// InvalidContextTypeError is returned when a config context factory
	// produces a context that does not embed pipeline.Context.
	InvalidContextTypeError struct {
		Type string
	}

	cacheError struct {
		op  string
		key string
		err error
	}
)

// Error implements the error interface for InvalidLocationError.
func (e *InvalidLocationError) Error() string {
	return fmt.Sprintf("invalid location %q: %s", e.Pattern, e.Reason)
}

// Unwrap returns ErrInvalidLocation for errors.Is() compatibility.
func (e *InvalidLocationError) Unwrap() error { return ErrInvalidLocation }

// Error implements the error interface for InvalidContextTypeError.
func (e *InvalidContextTypeError) Error() string {
	return fmt.Sprintf("config context type %s must embed pipeline.Context", e.Type)
}

// Unwrap returns ErrInvalidContextType for errors.Is() compatibility.
func (e *InvalidContextTypeError) Unwrap() error { return ErrInvalidContextType }

func (e *cacheError) Error() string {
	return fmt.Sprintf("%s cache entry %s: %v", e.op, e.key, e.err)
}

func (e *cacheError) Unwrap() []error { return []error{errCache, e.err} }
