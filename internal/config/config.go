// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cfgweave/cfgweave/internal/cueutil"
	"github.com/cfgweave/cfgweave/internal/issue"
	"github.com/cfgweave/cfgweave/pkg/types"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

const (
	// AppName is the application name.
	AppName = "cfgweave"
	// SettingsFileName is the name of the settings file.
	SettingsFileName = "cfgweave.cue"
	// EnvPrefix prefixes the environment variables that override settings.
	EnvPrefix = "CFGWEAVE"
)

// ErrSettingsExist is returned by WriteDefault when the file is already there.
var ErrSettingsExist = errors.New("settings file already exists")

//go:embed schema.cue
var settingsSchema []byte

// SettingsDir returns the user settings directory, os.UserConfigDir()/cfgweave.
func SettingsDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(dir, AppName), nil
}

// CacheDir returns the directory file cache entries live in when
// CacheSettings.Dir is empty.
func CacheDir() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user cache directory: %w", err)
	}
	return filepath.Join(dir, AppName), nil
}

// ResolveDir returns Dir, or CacheDir() when Dir is empty.
func (c CacheSettings) ResolveDir() (string, error) {
	if c.Dir != "" {
		return c.Dir.String(), nil
	}
	return CacheDir()
}

// loadWithOptions resolves the settings file, merges it over the defaults
// and applies environment overrides.
func loadWithOptions(ctx context.Context, fsys afero.Fs, opts LoadOptions) (*Settings, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("load settings canceled: %w", err)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v, DefaultSettings())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path, err := resolvePath(fsys, opts)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := loadCUEIntoViper(fsys, v, path); err != nil {
			return nil, issue.NewErrorContext().
				WithOperation("load settings").
				WithResource(path).
				WithSuggestion("Check that the file contains valid CUE syntax").
				WithSuggestion("Run 'cfgweave settings init --force' to regenerate a valid file").
				WithIssue(issue.SettingsInvalidId).
				Wrap(err).
				BuildError()
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	s.Source = types.FilesystemPath(path)

	if valid, errs := s.IsValid(); !valid {
		return nil, issue.NewErrorContext().
			WithOperation("validate settings").
			WithResource(sourceName(path)).
			WithSuggestion("Check the CFGWEAVE_* environment variables").
			WithIssue(issue.SettingsInvalidId).
			Wrap(errors.Join(errs...)).
			BuildError()
	}
	return &s, nil
}

func setDefaults(v *viper.Viper, d *Settings) {
	roots := make([]map[string]any, 0, len(d.Roots))
	for _, r := range d.Roots {
		roots = append(roots, map[string]any{"path": r.Path.String(), "namespace": r.Namespace})
	}
	v.SetDefault("type", d.Type)
	v.SetDefault("environment", d.Environment)
	v.SetDefault("roots", roots)
	v.SetDefault("handler_locations", d.HandlerLocations)
	v.SetDefault("cache.driver", d.Cache.Driver.String())
	v.SetDefault("cache.dir", d.Cache.Dir.String())
	v.SetDefault("runtime", d.Runtime)
	v.SetDefault("log_level", d.LogLevel.String())
}

// resolvePath returns the settings file to read: the explicit path, then
// the work directory, then the settings directory. An empty result means
// defaults only.
func resolvePath(fsys afero.Fs, opts LoadOptions) (string, error) {
	if opts.SettingsPath != "" {
		path := opts.SettingsPath.String()
		if !fileExists(fsys, path) {
			return "", issue.NewErrorContext().
				WithOperation("load settings").
				WithResource(path).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Run 'cfgweave settings init' to create a settings file").
				WithIssue(issue.SettingsNotFoundId).
				Wrap(fmt.Errorf("settings file not found: %s", path)).
				BuildError()
		}
		return path, nil
	}

	local := opts.WorkDir.Join(SettingsFileName).String()
	if fileExists(fsys, local) {
		return local, nil
	}

	dir := opts.SettingsDir
	if dir == "" {
		d, err := SettingsDir()
		if err != nil {
			return "", err
		}
		dir = types.FilesystemPath(d)
	}
	if global := dir.Join(SettingsFileName).String(); fileExists(fsys, global) {
		return global, nil
	}
	return "", nil
}

// loadCUEIntoViper validates a settings file against #Settings and merges it
// into v. Fields are optional, so the document is not required to be
// concrete.
func loadCUEIntoViper(fsys afero.Fs, v *viper.Viper, path string) error {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return fmt.Errorf("failed to read settings file: %w", err)
	}

	values, err := cueutil.Decode[map[string]any](settingsSchema, data, "#Settings",
		cueutil.WithFilename(path),
		cueutil.WithConcrete(false),
	)
	if err != nil {
		return err
	}
	if err := v.MergeConfigMap(values); err != nil {
		return fmt.Errorf("failed to merge settings: %w", err)
	}
	return nil
}

func fileExists(fsys afero.Fs, path string) bool {
	info, err := fsys.Stat(path)
	return err == nil && !info.IsDir()
}

func sourceName(path string) string {
	if path == "" {
		return "defaults"
	}
	return path
}

// WriteDefault writes the default settings to dir/cfgweave.cue and returns
// the path. An existing file is only replaced when force is set.
func WriteDefault(fsys afero.Fs, dir string, force bool) (string, error) {
	path := filepath.Join(dir, SettingsFileName)
	if !force && fileExists(fsys, path) {
		return path, fmt.Errorf("%s: %w", path, ErrSettingsExist)
	}
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create settings directory: %w", err)
	}
	if err := afero.WriteFile(fsys, path, []byte(GenerateCUE(DefaultSettings())), 0o644); err != nil {
		return "", fmt.Errorf("failed to write settings file: %w", err)
	}
	return path, nil
}

// GenerateCUE renders s in the settings file format.
func GenerateCUE(s *Settings) string {
	var sb strings.Builder

	sb.WriteString("// cfgweave settings\n\n")
	fmt.Fprintf(&sb, "type:        %q\n", s.Type)
	fmt.Fprintf(&sb, "environment: %q\n", s.Environment)

	if len(s.Roots) > 0 {
		sb.WriteString("\nroots: [\n")
		for _, r := range s.Roots {
			if r.Namespace != "" {
				fmt.Fprintf(&sb, "\t{path: %q, namespace: %q},\n", r.Path, r.Namespace)
			} else {
				fmt.Fprintf(&sb, "\t{path: %q},\n", r.Path)
			}
		}
		sb.WriteString("]\n")
	}

	if len(s.HandlerLocations) > 0 {
		quoted := make([]string, 0, len(s.HandlerLocations))
		for _, loc := range s.HandlerLocations {
			quoted = append(quoted, fmt.Sprintf("%q", loc))
		}
		fmt.Fprintf(&sb, "\nhandler_locations: [%s]\n", strings.Join(quoted, ", "))
	}

	sb.WriteString("\ncache: {\n")
	fmt.Fprintf(&sb, "\tdriver: %q\n", s.Cache.Driver)
	if s.Cache.Dir != "" {
		fmt.Fprintf(&sb, "\tdir:    %q\n", s.Cache.Dir)
	}
	sb.WriteString("}\n\n")

	fmt.Fprintf(&sb, "runtime:   %v\n", s.Runtime)
	fmt.Fprintf(&sb, "log_level: %q\n", s.LogLevel)

	return sb.String()
}
