// SPDX-License-Identifier: MPL-2.0

package scanner

import (
	"errors"
	"fmt"
)

var (
	// ErrParse is the sentinel wrapped by ParseError.
	ErrParse = errors.New("source file could not be parsed")
	// ErrInvalidPattern is the sentinel wrapped by PatternError.
	ErrInvalidPattern = errors.New("invalid glob pattern")
)

type (
	// ParseError reports a Go source file that could not be parsed.
	ParseError struct {
		File string
		Err  error
	}

	// PatternError reports a malformed glob pattern.
	PatternError struct {
		Pattern string
	}
)

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.File, e.Err)
}

// Unwrap returns both the sentinel and the parser error.
func (e *ParseError) Unwrap() []error { return []error{ErrParse, e.Err} }

func (e *PatternError) Error() string {
	return fmt.Sprintf("invalid glob pattern %q", e.Pattern)
}

// Unwrap returns ErrInvalidPattern for errors.Is() compatibility.
func (e *PatternError) Unwrap() error { return ErrInvalidPattern }
