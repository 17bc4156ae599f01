// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/cfgweave/cfgweave/pkg/types"

	"github.com/spf13/afero"
)

// ErrInvalidLoadOptions is the sentinel error wrapped by InvalidLoadOptionsError.
var ErrInvalidLoadOptions = errors.New("invalid load options")

type (
	// LoadOptions defines explicit settings loading inputs. Zero fields fall
	// back to the lookup described in the package documentation.
	LoadOptions struct {
		// SettingsPath forces loading from a specific file when set.
		SettingsPath types.FilesystemPath
		// SettingsDir overrides the user settings directory when set.
		SettingsDir types.FilesystemPath
		// WorkDir is searched for cfgweave.cue first. Empty means the
		// process working directory.
		WorkDir types.FilesystemPath
	}

	// InvalidLoadOptionsError is returned when LoadOptions has invalid fields.
	InvalidLoadOptionsError struct {
		FieldErrors []error
	}

	// Provider loads settings from explicit options.
	Provider interface {
		Load(ctx context.Context, opts LoadOptions) (*Settings, error)
	}

	fileProvider struct {
		fs afero.Fs
	}
)

// NewProvider creates a settings provider reading from fsys. A nil fsys
// reads from the OS filesystem.
func NewProvider(fsys afero.Fs) Provider {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &fileProvider{fs: fsys}
}

// Load reads settings from the requested source.
func (p *fileProvider) Load(ctx context.Context, opts LoadOptions) (*Settings, error) {
	return loadWithOptions(ctx, p.fs, opts)
}

// Validate checks every non-empty path field.
func (o LoadOptions) Validate() error {
	var errs []error
	for _, p := range []types.FilesystemPath{o.SettingsPath, o.SettingsDir, o.WorkDir} {
		if p == "" {
			continue
		}
		if err := p.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return &InvalidLoadOptionsError{FieldErrors: errs}
	}
	return nil
}

// Error implements the error interface for InvalidLoadOptionsError.
func (e *InvalidLoadOptionsError) Error() string {
	return fmt.Sprintf("invalid load options: %d field error(s)", len(e.FieldErrors))
}

// Unwrap returns ErrInvalidLoadOptions and the field errors.
func (e *InvalidLoadOptionsError) Unwrap() []error {
	return append([]error{ErrInvalidLoadOptions}, e.FieldErrors...)
}
