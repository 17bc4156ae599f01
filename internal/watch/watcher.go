// SPDX-License-Identifier: MPL-2.0

// Package watch reloads configuration when plugin sources change.
//
// A Watcher monitors the directories behind the loader's root location
// patterns and invokes a callback once the filesystem has been quiet for the
// debounce period. Events within the window are coalesced, so the callback
// receives the full set of changed files.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period used when Config.Debounce is not set.
const DefaultDebounce = 300 * time.Millisecond

var (
	// ErrAlreadyRunning is returned by a second call to Run.
	ErrAlreadyRunning = errors.New("watcher already running")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid watch config")

	// defaultPatterns select the files discovery reads.
	defaultPatterns = []string{"**/*.go"}

	// defaultIgnores are never reported.
	defaultIgnores = []string{
		"**/.git/**",
		"**/testdata/**",
		"**/_*/**",
		"**/*.swp",
		"**/*~",
		"**/.DS_Store",
	}
)

type (
	// Config holds the parameters for a Watcher.
	Config struct {
		// Dirs are watched recursively. Missing directories are skipped.
		Dirs []string

		// Patterns select the files, relative to the watched directory, that
		// trigger the callback. Empty means "**/*.go".
		Patterns []string

		// Ignore is merged with the built-in ignores.
		Ignore []string

		// Debounce falls back to DefaultDebounce when zero or negative.
		Debounce time.Duration

		// OnChange receives the sorted absolute paths that changed.
		OnChange func(ctx context.Context, changed []string) error

		Logger *log.Logger
	}

	// InvalidConfigError collects the problems of a Config.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// Watcher monitors directories and fires a debounced callback. Run must
	// be called exactly once.
	Watcher struct {
		cfg      Config
		fsw      *fsnotify.Watcher
		dirs     []string
		patterns []string
		ignores  []string
		debounce time.Duration
		logger   *log.Logger
		started  atomic.Bool
	}
)

// Validate checks that there is something to watch and that every pattern
// is a valid doublestar glob.
func (c Config) Validate() error {
	var errs []error
	if len(c.Dirs) == 0 {
		errs = append(errs, errors.New("no directories to watch"))
	}
	for _, d := range c.Dirs {
		if strings.TrimSpace(d) == "" {
			errs = append(errs, errors.New("directory must not be empty"))
		}
	}
	for _, p := range c.Patterns {
		if !doublestar.ValidatePattern(p) {
			errs = append(errs, fmt.Errorf("invalid watch pattern %q", p))
		}
	}
	for _, p := range c.Ignore {
		if !doublestar.ValidatePattern(p) {
			errs = append(errs, fmt.Errorf("invalid ignore pattern %q", p))
		}
	}
	if len(errs) > 0 {
		return &InvalidConfigError{FieldErrors: errs}
	}
	return nil
}

// Error implements the error interface for InvalidConfigError.
func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid watch config: %v", errors.Join(e.FieldErrors...))
}

// Unwrap returns ErrInvalidConfig for errors.Is() compatibility.
func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }

// RootDirs returns the static directory prefix of every root pattern,
// resolved against baseDir and deduplicated. "plugins/*" yields
// "<baseDir>/plugins", so plugins added later are seen too.
func RootDirs(baseDir string, patterns ...string) []string {
	var dirs []string
	for _, p := range patterns {
		base, _ := doublestar.SplitPattern(filepath.ToSlash(p))
		dir := filepath.FromSlash(base)
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(baseDir, dir)
		}
		dir = filepath.Clean(dir)
		if !slices.Contains(dirs, dir) {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

// New creates a Watcher and registers every non-ignored directory below
// cfg.Dirs.
func New(cfg Config) (*Watcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		cfg:      cfg,
		fsw:      fsw,
		patterns: cfg.Patterns,
		ignores:  append(slices.Clone(defaultIgnores), cfg.Ignore...),
		debounce: cfg.Debounce,
		logger:   cfg.Logger,
	}
	if len(w.patterns) == 0 {
		w.patterns = defaultPatterns
	}
	if w.debounce <= 0 {
		w.debounce = DefaultDebounce
	}
	if w.logger == nil {
		w.logger = log.New(io.Discard)
	}
	for _, d := range cfg.Dirs {
		abs, err := filepath.Abs(d)
		if err != nil {
			fsw.Close() //nolint:errcheck // best-effort cleanup
			return nil, fmt.Errorf("resolve %q: %w", d, err)
		}
		w.dirs = append(w.dirs, abs)
	}

	for _, d := range w.dirs {
		if err := w.addTree(d); err != nil {
			fsw.Close() //nolint:errcheck // best-effort cleanup
			return nil, err
		}
	}
	return w, nil
}

// Run blocks until ctx is cancelled, dispatching debounced callbacks. It
// returns nil on cancellation and the error of a broken watcher otherwise.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	var (
		mu      sync.Mutex
		pending = make(map[string]struct{})
		timer   *time.Timer
		running atomic.Bool
	)

	// fire skips while a previous callback is still running and retries
	// after another debounce period, so pending changes are not dropped.
	fire := func() {
		if ctx.Err() != nil {
			return
		}
		if !running.CompareAndSwap(false, true) {
			w.logger.Debug("Reload still running, retrying")
			mu.Lock()
			timer.Reset(w.debounce)
			mu.Unlock()
			return
		}
		defer running.Store(false)

		mu.Lock()
		changed := slices.Sorted(maps.Keys(pending))
		clear(pending)
		mu.Unlock()
		if len(changed) == 0 || w.cfg.OnChange == nil {
			return
		}

		w.logger.Debug("Sources changed", "files", len(changed))
		if err := w.cfg.OnChange(ctx, changed); err != nil {
			w.logger.Error("Reload failed", "err", err)
		}
	}

	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
		if err := w.fsw.Close(); err != nil {
			w.logger.Warn("Closing watcher failed", "err", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("fsnotify event channel closed unexpectedly")
			}
			if evt.Op == fsnotify.Chmod {
				continue
			}
			if evt.Has(fsnotify.Create) {
				w.maybeAddDir(evt.Name)
			}
			if !w.relevant(evt.Name) {
				continue
			}

			mu.Lock()
			pending[evt.Name] = struct{}{}
			if timer == nil {
				timer = time.AfterFunc(w.debounce, fire)
			} else {
				timer.Reset(w.debounce)
			}
			mu.Unlock()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("fsnotify error channel closed unexpectedly")
			}
			if isFatalFsnotifyError(err) {
				return fmt.Errorf("fatal fsnotify error: %w", err)
			}
			w.logger.Warn("Watcher error", "err", err)
		}
	}
}

// addTree registers dir and every non-ignored directory below it.
func (w *Watcher) addTree(dir string) error {
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		w.logger.Debug("Skipping missing watch directory", "dir", dir)
		return nil
	}
	err := filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			w.logger.Warn("Skipping inaccessible path", "path", p, "err", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != dir && w.ignored(p) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(p); err != nil {
			return fmt.Errorf("watch directory %q: %w", p, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk %q: %w", dir, err)
	}
	return nil
}

// maybeAddDir extends the watch to directories created after startup.
func (w *Watcher) maybeAddDir(p string) {
	info, err := os.Stat(p)
	if err != nil || !info.IsDir() || w.ignored(p) {
		return
	}
	if err := w.addTree(p); err != nil {
		w.logger.Warn("Watching new directory failed", "dir", p, "err", err)
	}
}

// relative returns p relative to the watched directory containing it.
func (w *Watcher) relative(p string) (string, bool) {
	for _, d := range w.dirs {
		rel, err := filepath.Rel(d, p)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return filepath.ToSlash(rel), true
		}
	}
	return "", false
}

func (w *Watcher) ignored(p string) bool {
	rel, ok := w.relative(p)
	if !ok {
		return true
	}
	return matchAny(w.ignores, rel) || matchAny(w.ignores, rel+"/")
}

func (w *Watcher) relevant(p string) bool {
	rel, ok := w.relative(p)
	if !ok || w.ignored(p) {
		return false
	}
	return matchAny(w.patterns, rel)
}

func matchAny(patterns []string, rel string) bool {
	for _, pat := range patterns {
		if ok, err := doublestar.Match(pat, rel); err == nil && ok {
			return true
		}
	}
	return false
}
