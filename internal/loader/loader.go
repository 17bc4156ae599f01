// SPDX-License-Identifier: MPL-2.0

package loader

import (
	"fmt"
	"io"
	"maps"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"
	"github.com/spf13/afero"

	"github.com/cfgweave/cfgweave/internal/cache"
	"github.com/cfgweave/cfgweave/internal/event"
	"github.com/cfgweave/cfgweave/internal/pipeline"
	"github.com/cfgweave/cfgweave/internal/registry"
	"github.com/cfgweave/cfgweave/internal/scanner"
	"github.com/cfgweave/cfgweave/internal/state"
)

type (
	// Option configures a Loader.
	Option func(*Loader)

	// Loader holds the registrations of one configuration type and
	// environment. Registrations must not change while Load runs; distinct
	// loaders can load concurrently.
	Loader struct {
		typ         string
		environment string

		roots             []rootPattern
		handlerLocations  []string
		handlers          []pipeline.Handler
		modifiers         pipeline.Modifiers
		registry          pipeline.TypeRegistry
		container         pipeline.InstanceResolver
		scanner           scanner.Scanner
		events            event.Dispatcher
		logger            *log.Logger
		cache             cache.Store
		contextFactory    func() pipeline.ConfigContext
		handlerFinder     pipeline.HandlerFinder
		configFinder      pipeline.ConfigFinder
		cacheMergeOptions state.MergeOptions
		initialState      map[string]any
	}

	rootPattern struct {
		pattern   string
		namespace pipeline.NamespaceSource
	}
)

// WithLogger sets the logger. Loads log at debug level only.
func WithLogger(logger *log.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithRegistry sets the registry types are resolved against. It defaults to
// registry.Default.
func WithRegistry(reg pipeline.TypeRegistry) Option {
	return func(l *Loader) { l.registry = reg }
}

// WithScanner sets the scanner that lists declarations and expands location
// patterns.
func WithScanner(s scanner.Scanner) Option {
	return func(l *Loader) { l.scanner = s }
}

// WithFS makes the loader scan fs with a scanner.GoSource.
func WithFS(fs afero.Fs) Option {
	return func(l *Loader) { l.scanner = scanner.NewGoSource(fs) }
}

// WithCache sets the cache store. A nil store disables caching.
func WithCache(store cache.Store) Option {
	return func(l *Loader) { l.cache = store }
}

// WithEvents sets the dispatcher events are fired on.
func WithEvents(d event.Dispatcher) Option {
	return func(l *Loader) { l.events = d }
}

// New creates a Loader for the configuration type typ in environment env.
func New(typ, env string, opts ...Option) *Loader {
	l := &Loader{
		typ:           typ,
		environment:   env,
		modifiers:     pipeline.DefaultModifiers(),
		registry:      registry.Default,
		logger:        log.New(io.Discard),
		handlerFinder: pipeline.DefaultHandlerFinder{},
		configFinder:  pipeline.DefaultConfigFinder{},
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.scanner == nil {
		l.scanner = scanner.NewGoSource(afero.NewOsFs())
	}
	return l
}

// Type returns the configuration type.
func (l *Loader) Type() string { return l.typ }

// Environment returns the environment.
func (l *Loader) Environment() string { return l.environment }

// CacheKey returns the cache key of a full-state or runtime load. Bytes of
// the type and environment that cache keys do not allow, '_' included, are
// written as '_' followed by two hex digits.
func (l *Loader) CacheKey(runtime bool) string {
	key := fmt.Sprintf("configuration-%s-%s", escapeKeyPart(l.typ), escapeKeyPart(l.environment))
	if runtime {
		key += "-runtimeDefinitions"
	}
	return key
}

// ClearCache removes the full-state and runtime entries of the loader from
// its cache store.
func (l *Loader) ClearCache() error {
	if l.cache == nil {
		return nil
	}
	for _, runtime := range []bool{false, true} {
		key := l.CacheKey(runtime)
		if err := l.cache.Delete(key); err != nil {
			return &cacheError{op: "delete", key: key, err: err}
		}
	}
	return nil
}

func escapeKeyPart(s string) string {
	var b strings.Builder
	for i := range len(s) {
		c := s[i]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9', c == '.', c == '-':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "_%02x", c)
		}
	}
	return b.String()
}

// RegisterRootLocation adds a root location. The pattern may contain globs;
// every directory it matches at load time becomes a root. ns assigns the
// namespaces of the types found below the root; nil names the namespace
// after the root directory.
func (l *Loader) RegisterRootLocation(pattern string, ns pipeline.NamespaceSource) error {
	if err := validatePattern(pattern); err != nil {
		return err
	}
	l.roots = append(l.roots, rootPattern{pattern: pattern, namespace: ns})
	return nil
}

// RegisterHandlerLocation adds a location handlers are discovered in. Relative
// patterns are resolved against every root.
func (l *Loader) RegisterHandlerLocation(pattern string) error {
	if err := validatePattern(pattern); err != nil {
		return err
	}
	l.handlerLocations = append(l.handlerLocations, pattern)
	return nil
}

// RegisterHandler adds a handler instance.
func (l *Loader) RegisterHandler(h pipeline.Handler) {
	l.handlers = append(l.handlers, h)
}

// RegisterModifier adds m, replacing a registered modifier with the same key.
func (l *Loader) RegisterModifier(m pipeline.Modifier) {
	l.modifiers = l.modifiers.With(m)
}

// ClearRootLocations removes every root location.
func (l *Loader) ClearRootLocations() { l.roots = nil }

// ClearHandlerLocations removes every handler location.
func (l *Loader) ClearHandlerLocations() { l.handlerLocations = nil }

// ClearHandlers removes every registered handler instance.
func (l *Loader) ClearHandlers() { l.handlers = nil }

// ClearModifiers restores the default modifiers.
func (l *Loader) ClearModifiers() { l.modifiers = pipeline.DefaultModifiers() }

// SetCache sets the cache store. A nil store disables caching.
func (l *Loader) SetCache(store cache.Store) { l.cache = store }

// SetContainer sets the resolver consulted before the registry factories.
func (l *Loader) SetContainer(c pipeline.InstanceResolver) { l.container = c }

// SetEventDispatcher sets the dispatcher events are fired on.
func (l *Loader) SetEventDispatcher(d event.Dispatcher) { l.events = d }

// SetHandlerFinder replaces the handler finder.
func (l *Loader) SetHandlerFinder(f pipeline.HandlerFinder) {
	if f == nil {
		f = pipeline.DefaultHandlerFinder{}
	}
	l.handlerFinder = f
}

// SetConfigFinder replaces the config finder.
func (l *Loader) SetConfigFinder(f pipeline.ConfigFinder) {
	if f == nil {
		f = pipeline.DefaultConfigFinder{}
	}
	l.configFinder = f
}

// SetContextFactory makes every load use a context created by factory. The
// factory is called once immediately and the result must embed
// pipeline.Context. A nil factory restores the default context.
func (l *Loader) SetContextFactory(factory func() pipeline.ConfigContext) error {
	if factory == nil {
		l.contextFactory = nil
		return nil
	}
	probe := factory()
	if err := pipeline.ValidateContext(probe); err != nil {
		name := "<nil>"
		if probe != nil {
			name = reflect.TypeOf(probe).String()
		}
		return &InvalidContextTypeError{Type: name}
	}
	l.contextFactory = factory
	return nil
}

// SetCacheMergeOptions sets how a cached state is merged into the initial
// state.
func (l *Loader) SetCacheMergeOptions(opts state.MergeOptions) { l.cacheMergeOptions = opts }

// SetInitialState seeds the state of every load.
func (l *Loader) SetInitialState(initial map[string]any) {
	l.initialState = maps.Clone(initial)
}

func validatePattern(pattern string) error {
	if pattern == "" {
		return &InvalidLocationError{Pattern: pattern, Reason: "pattern is empty"}
	}
	if !doublestar.ValidatePattern(filepath.ToSlash(pattern)) {
		return &InvalidLocationError{Pattern: pattern, Reason: "malformed glob pattern"}
	}
	return nil
}
