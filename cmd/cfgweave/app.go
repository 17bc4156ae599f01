// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/cfgweave/cfgweave/internal/builtin"
	"github.com/cfgweave/cfgweave/internal/builtin/demo"
	"github.com/cfgweave/cfgweave/internal/cache"
	"github.com/cfgweave/cfgweave/internal/config"
	"github.com/cfgweave/cfgweave/internal/issue"
	"github.com/cfgweave/cfgweave/internal/loader"
	"github.com/cfgweave/cfgweave/internal/pipeline"
	"github.com/cfgweave/cfgweave/internal/registry"
	"github.com/cfgweave/cfgweave/internal/scanner"
	"github.com/cfgweave/cfgweave/internal/state"
	"github.com/cfgweave/cfgweave/pkg/types"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var registerDefaults sync.Once

type (
	// App wires CLI services and shared dependencies. Every command handler
	// receives the App and builds its loader through it.
	App struct {
		Settings    config.Provider
		FS          afero.Fs
		Registry    *registry.Registry
		WorkDir     string
		SettingsDir string
		stdout      io.Writer
		stderr      io.Writer
		flags       rootFlags
	}

	// Dependencies defines the injection points for building an App. Zero
	// fields are replaced with production defaults by NewApp.
	Dependencies struct {
		Settings config.Provider
		FS       afero.Fs
		// Registry must hold the builtin and demo registrations.
		Registry    *registry.Registry
		WorkDir     string
		SettingsDir string
		Stdout      io.Writer
		Stderr      io.Writer
	}

	// session is the resolved input of one command invocation.
	session struct {
		settings *config.Settings
		fs       afero.Fs
		logger   *log.Logger
	}
)

// NewApp creates an App with defaults for omitted dependencies.
func NewApp(deps Dependencies) (*App, error) {
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	if deps.FS == nil {
		deps.FS = afero.NewOsFs()
	}
	if deps.Settings == nil {
		deps.Settings = config.NewProvider(deps.FS)
	}
	if deps.Registry == nil {
		deps.Registry = DefaultRegistry()
	}
	if deps.WorkDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("determine working directory: %w", err)
		}
		deps.WorkDir = wd
	}

	return &App{
		Settings:    deps.Settings,
		FS:          deps.FS,
		Registry:    deps.Registry,
		WorkDir:     deps.WorkDir,
		SettingsDir: deps.SettingsDir,
		stdout:      deps.Stdout,
		stderr:      deps.Stderr,
	}, nil
}

// DefaultRegistry returns registry.Default with the builtin and demo types
// registered.
func DefaultRegistry() *registry.Registry {
	registerDefaults.Do(func() {
		builtin.Register(registry.Default)
		demo.Register(registry.Default)
	})
	return registry.Default
}

// run wraps a command handler so actionable failures print their
// suggestions, and their issue page in verbose mode, before cobra reports
// the error.
func (a *App) run(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := fn(cmd, args)
		if err != nil {
			a.renderIssue(err)
		}
		return err
	}
}

func (a *App) renderIssue(err error) {
	var ae *issue.ActionableError
	if !errors.As(err, &ae) {
		return
	}
	if ae.HasSuggestions() || a.flags.verbose {
		fmt.Fprintln(a.stderr, formatErrorForDisplay(err, a.flags.verbose))
	}
	if is := ae.Issue(); is != nil && a.flags.verbose {
		if rendered, rerr := is.Render("dark"); rerr == nil {
			fmt.Fprint(a.stderr, rendered)
		}
	}
}

// session resolves the settings and filesystem of one invocation.
func (a *App) session(ctx context.Context) (*session, error) {
	fsys := a.FS
	var s *config.Settings
	if a.flags.demo {
		mem, err := demo.FS()
		if err != nil {
			return nil, err
		}
		fsys, s = mem, demo.Settings()
	} else {
		var err error
		s, err = a.Settings.Load(ctx, config.LoadOptions{
			SettingsPath: types.FilesystemPath(a.flags.settingsPath),
			SettingsDir:  types.FilesystemPath(a.SettingsDir),
			WorkDir:      types.FilesystemPath(a.WorkDir),
		})
		if err != nil {
			return nil, err
		}
	}

	level := s.LogLevel.Level()
	if a.flags.verbose {
		level = log.DebugLevel
	}
	logger := log.NewWithOptions(a.stderr, log.Options{Prefix: config.AppName, Level: level})
	return &session{settings: s, fs: fsys, logger: logger}, nil
}

// cacheStore maps the cache settings onto a store. A nil store disables
// caching.
func (a *App) cacheStore(sess *session) (cache.Store, error) {
	switch sess.settings.Cache.Driver {
	case config.CacheDriverMemory:
		return cache.NewMemory(), nil
	case config.CacheDriverFile:
		dir, err := a.cacheDir(sess)
		if err != nil {
			return nil, err
		}
		return cache.NewFile(sess.fs, dir), nil
	default:
		return nil, nil
	}
}

func (a *App) cacheDir(sess *session) (string, error) {
	dir, err := sess.settings.Cache.ResolveDir()
	if err != nil {
		return "", err
	}
	return types.FilesystemPath(dir).Resolve(a.WorkDir).String(), nil
}

// newLoader builds a loader from the session settings with the builtin
// values handler registered.
func (a *App) newLoader(sess *session) (*loader.Loader, error) {
	s := sess.settings
	store, err := a.cacheStore(sess)
	if err != nil {
		return nil, err
	}

	l := loader.New(s.Type, s.Environment,
		loader.WithLogger(sess.logger.WithPrefix("loader")),
		loader.WithRegistry(a.Registry),
		loader.WithScanner(scanner.NewGoSource(sess.fs, scanner.WithBaseDir(a.WorkDir))),
		loader.WithCache(store),
	)
	for _, root := range s.Roots {
		var ns pipeline.NamespaceSource
		if root.Namespace != "" {
			ns = pipeline.StaticNamespace(root.Namespace)
		}
		if err := l.RegisterRootLocation(root.Path.String(), ns); err != nil {
			return nil, err
		}
	}
	for _, loc := range s.HandlerLocations {
		if err := l.RegisterHandlerLocation(loc); err != nil {
			return nil, err
		}
	}
	l.RegisterHandler(&builtin.ValuesHandler{})
	return l, nil
}

// load runs one load. runtime overrides the settings when non-nil.
func (a *App) load(ctx context.Context, runtime *bool) (*state.State, error) {
	sess, err := a.session(ctx)
	if err != nil {
		return nil, err
	}
	l, err := a.newLoader(sess)
	if err != nil {
		return nil, err
	}
	mode := sess.settings.Runtime
	if runtime != nil {
		mode = *runtime
	}
	return l.Load(ctx, mode)
}

// rootPatterns returns the root location patterns resolved against the work
// directory.
func (a *App) rootPatterns(s *config.Settings) []string {
	out := make([]string, 0, len(s.Roots))
	for _, r := range s.Roots {
		p := r.Path
		if !p.IsAbs() {
			p = types.FilesystemPath(a.WorkDir).Join(p.String())
		}
		out = append(out, p.String())
	}
	return out
}
