// SPDX-License-Identifier: MPL-2.0

// Package types defines value types shared by the discovery, pipeline and
// loader packages. These are foundation types that carry semantic meaning and
// validation but have no domain-specific dependencies.
//
// This package is a leaf dependency: it imports only the standard library.
package types

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrInvalidTypeID is the sentinel error wrapped by InvalidTypeIDError.
var ErrInvalidTypeID = errors.New("invalid type id")

type (
	// TypeID identifies a discoverable Go type, written as "<package>.<Name>"
	// (for example "plugina.SiteConfig"). It is the key used by the registry,
	// the scanner, handler definitions and the runtime cache.
	TypeID string

	// InvalidTypeIDError is returned when a TypeID is empty, contains
	// whitespace, or lacks the package qualifier.
	InvalidTypeIDError struct {
		Value  TypeID
		Reason string
	}
)

// String returns the string representation of the TypeID.
func (id TypeID) String() string { return string(id) }

// Package returns the package qualifier ("plugina" for "plugina.SiteConfig").
func (id TypeID) Package() string {
	s := string(id)
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		return s[:i]
	}
	return ""
}

// Name returns the unqualified type name.
func (id TypeID) Name() string {
	s := string(id)
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// IsValid returns whether the TypeID is valid.
func (id TypeID) IsValid() (bool, []error) {
	s := string(id)
	switch {
	case s == "":
		return false, []error{&InvalidTypeIDError{Value: id, Reason: "must not be empty"}}
	case strings.IndexFunc(s, unicode.IsSpace) >= 0:
		return false, []error{&InvalidTypeIDError{Value: id, Reason: "must not contain whitespace"}}
	case id.Package() == "" || id.Name() == "":
		return false, []error{&InvalidTypeIDError{Value: id, Reason: "must have the form <package>.<Name>"}}
	}
	return true, nil
}

// NewTypeID joins a package qualifier and a type name.
func NewTypeID(pkg, name string) TypeID {
	return TypeID(pkg + "." + name)
}

// Error implements the error interface for InvalidTypeIDError.
func (e *InvalidTypeIDError) Error() string {
	return fmt.Sprintf("invalid type id %q: %s", e.Value, e.Reason)
}

// Unwrap returns ErrInvalidTypeID for errors.Is() compatibility.
func (e *InvalidTypeIDError) Unwrap() error { return ErrInvalidTypeID }
