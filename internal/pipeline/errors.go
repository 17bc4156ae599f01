// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"errors"
	"fmt"
	"slices"

	"github.com/cfgweave/cfgweave/pkg/types"
)

const (
	// KindHandler marks errors about handler types.
	KindHandler TypeKind = "handler"
	// KindConfig marks errors about config types.
	KindConfig TypeKind = "config"
)

var (
	// ErrUnloadableType is returned when discovery finds a concrete type that
	// is not registered.
	ErrUnloadableType = errors.New("type cannot be loaded")
	// ErrDuplicateHandler is returned when two handler instances share a key.
	ErrDuplicateHandler = errors.New("duplicate handler")
	// ErrFilterConflict is returned when a capability is both required and
	// forbidden by a FilteredHandlerFinder.
	ErrFilterConflict = errors.New("capability both allowed and ignored")
	// ErrInvalidContext is returned when a config context does not embed
	// Context.
	ErrInvalidContext = errors.New("invalid config context")
)

type (
	// TypeKind says which role a type was discovered for.
	TypeKind string

	// UnloadableTypeError names a discovered type without a registration.
	UnloadableTypeError struct {
		Kind TypeKind
		ID   types.TypeID
		// File is the declaring file, empty for types that were not scanned.
		File string
	}

	// DuplicateHandlerError reports two registered handler instances with the
	// same key.
	DuplicateHandlerError struct {
		Key types.TypeID
	}

	// FilterConflictError lists capabilities named in both filter lists.
	FilterConflictError struct {
		Capabilities []types.TypeID
	}
)

func (e *UnloadableTypeError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("the %s type %q declared in %s is not registered and cannot be loaded", e.Kind, e.ID, e.File)
	}
	return fmt.Sprintf("the %s type %q is not registered and cannot be loaded", e.Kind, e.ID)
}

// Unwrap returns ErrUnloadableType for errors.Is() compatibility.
func (e *UnloadableTypeError) Unwrap() error { return ErrUnloadableType }

func (e *DuplicateHandlerError) Error() string {
	return fmt.Sprintf("handler %q is registered more than once", e.Key)
}

// Unwrap returns ErrDuplicateHandler for errors.Is() compatibility.
func (e *DuplicateHandlerError) Unwrap() error { return ErrDuplicateHandler }

func (e *FilterConflictError) Error() string {
	return fmt.Sprintf("capabilities %v are both allowed and ignored", slices.Clone(e.Capabilities))
}

// Unwrap returns ErrFilterConflict for errors.Is() compatibility.
func (e *FilterConflictError) Unwrap() error { return ErrFilterConflict }
