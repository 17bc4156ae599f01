// SPDX-License-Identifier: MPL-2.0

package loader

import (
	"context"
	"errors"
	"maps"
	"slices"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cfgweave/cfgweave/internal/cache"
	"github.com/cfgweave/cfgweave/internal/event"
	"github.com/cfgweave/cfgweave/internal/issue"
	"github.com/cfgweave/cfgweave/internal/pipeline"
	"github.com/cfgweave/cfgweave/internal/registry"
	"github.com/cfgweave/cfgweave/internal/testutil"
	"github.com/cfgweave/cfgweave/internal/scanner"
	"github.com/cfgweave/cfgweave/internal/state"
	"github.com/cfgweave/cfgweave/pkg/types"
)

const (
	valuesCapability  types.TypeID = "test.Values"
	handlerCapability types.TypeID = "test.Handler"
)

type (
	valueProvider interface {
		Values() map[string]any
	}

	siteConfig   struct{}
	siteOverride struct{}
	routesConfig struct{}

	// valuesHandler writes the values of every config type into the state.
	valuesHandler struct {
		pipeline.BaseHandler
		handled  []types.TypeID
		contexts []pipeline.ConfigContext
	}

	customContext struct {
		*pipeline.Context
	}

	// countingScanner counts the directories scanned through it.
	countingScanner struct {
		scanner.Scanner
		scans int
	}
)

func (*siteConfig) Values() map[string]any {
	return map[string]any{"title": "Alpha", "lang": "en", "port": 8080}
}

func (*siteOverride) Values() map[string]any {
	return map[string]any{"title": "Alpha (override)"}
}

func (*routesConfig) Values() map[string]any {
	return map[string]any{"routes": []any{"/"}}
}

func (h *valuesHandler) Configure(c *pipeline.Configurator) {
	c.RegisterLocation("Config").RegisterInterface(valuesCapability)
}

func (h *valuesHandler) Handle(id types.TypeID) error {
	h.handled = append(h.handled, id)
	h.contexts = append(h.contexts, h.Context)
	inst, err := h.Instance(id)
	if err != nil {
		return err
	}
	values := inst.(valueProvider).Values()
	for _, k := range slices.Sorted(maps.Keys(values)) {
		h.Context.State().Set(k, values[k])
	}
	return nil
}

func (s *countingScanner) Scan(dir string) ([]scanner.Declaration, error) {
	s.scans++
	return s.Scanner.Scan(dir)
}

func pluginFS(t *testing.T) afero.Fs {
	t.Helper()

	fs := afero.NewMemMapFs()
	testutil.WriteFiles(t, fs, map[string]string{
		"/app/plugins/alpha/Config/site.go":          "package alpha\n\ntype SiteConfig struct{}\n",
		"/app/plugins/alpha/Config/Override/site.go": "package alphaoverride\n\ntype SiteOverride struct{}\n",
		"/app/plugins/beta/Config/routes.go":         "package beta\n\ntype RoutesConfig struct{}\n",
		"/app/plugins/beta/README.md":                "beta plugin\n",
	})
	return fs
}

func testRegistry() *registry.Registry {
	reg := registry.New()
	registry.RegisterCapability[valueProvider](reg, valuesCapability)
	registry.RegisterCapability[pipeline.Handler](reg, handlerCapability)
	registry.Register[siteConfig](reg, "alpha.SiteConfig")
	registry.Register[siteOverride](reg, "alphaoverride.SiteOverride")
	registry.Register[routesConfig](reg, "beta.RoutesConfig")
	return reg
}

// newTestLoader returns a loader over the plugin tree with a single
// valuesHandler registered.
func newTestLoader(t *testing.T, opts ...Option) (*Loader, *valuesHandler) {
	t.Helper()

	opts = append([]Option{WithFS(pluginFS(t)), WithRegistry(testRegistry())}, opts...)
	l := New("app", "dev", opts...)
	require.NoError(t, l.RegisterRootLocation("/app/plugins/*", nil))
	h := &valuesHandler{}
	l.RegisterHandler(h)
	return l, h
}

func expectedTree() map[string]any {
	return map[string]any{
		"alpha": map[string]any{"title": "Alpha (override)", "lang": "en", "port": 8080},
		"beta":  map[string]any{"routes": []any{"/"}},
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	l, h := newTestLoader(t)
	st, err := l.Load(t.Context(), false)
	require.NoError(t, err)

	assert.Equal(t, expectedTree(), st.GetAll())
	assert.Equal(t, []types.TypeID{"alpha.SiteConfig", "beta.RoutesConfig", "alphaoverride.SiteOverride"}, h.handled)
}

func TestLoadCacheRoundTrip(t *testing.T) {
	t.Parallel()

	counter := &countingScanner{Scanner: scanner.NewGoSource(pluginFS(t))}
	store := cache.NewMemory()
	l, h := newTestLoader(t, WithScanner(counter), WithCache(store))

	bus := event.NewBus()
	var cachedFlags []bool
	event.Subscribe(bus, func(e *AfterLoadEvent) { cachedFlags = append(cachedFlags, e.Cached) })
	l.SetEventDispatcher(bus)

	first, err := l.Load(t.Context(), false)
	require.NoError(t, err)
	has, err := store.Has("configuration-app-dev")
	require.NoError(t, err)
	assert.True(t, has)

	scans := counter.scans
	handled := len(h.handled)
	second, err := l.Load(t.Context(), false)
	require.NoError(t, err)

	assert.Equal(t, first.GetAll(), second.GetAll())
	assert.Equal(t, scans, counter.scans, "a cache hit must not scan")
	assert.Len(t, h.handled, handled, "a cache hit must not run handlers")
	assert.Equal(t, []bool{false, true}, cachedFlags)
}

func TestLoadCacheMergesIntoInitialState(t *testing.T) {
	t.Parallel()

	store := cache.NewMemory()
	l, _ := newTestLoader(t, WithCache(store))
	_, err := l.Load(t.Context(), false)
	require.NoError(t, err)

	l.SetInitialState(map[string]any{"beta": map[string]any{"routes": []any{"/health"}}, "mode": "strict"})
	l.SetCacheMergeOptions(state.MergeOptions{NumericMerge: state.Bool(false)})
	st, err := l.Load(t.Context(), false)
	require.NoError(t, err)

	assert.Equal(t, "strict", st.Get("mode", nil))
	assert.Equal(t, []any{"/health", "/"}, st.Get("beta.routes", nil))
	assert.Equal(t, "Alpha (override)", st.Get("alpha.title", nil))
}

func TestLoadRuntimeReusesDefinitions(t *testing.T) {
	t.Parallel()

	counter := &countingScanner{Scanner: scanner.NewGoSource(pluginFS(t))}
	store := cache.NewMemory()
	l, h := newTestLoader(t, WithScanner(counter), WithCache(store))

	first, err := l.Load(t.Context(), true)
	require.NoError(t, err)
	has, err := store.Has("configuration-app-dev-runtimeDefinitions")
	require.NoError(t, err)
	assert.True(t, has)
	has, err = store.Has("configuration-app-dev")
	require.NoError(t, err)
	assert.False(t, has, "runtime loads never cache the state")

	scans := counter.scans
	second, err := l.Load(t.Context(), true)
	require.NoError(t, err)

	assert.Equal(t, scans, counter.scans, "cached definitions must not be rediscovered")
	assert.Equal(t, first.GetAll(), second.GetAll())
	want := []types.TypeID{"alpha.SiteConfig", "beta.RoutesConfig", "alphaoverride.SiteOverride"}
	assert.Equal(t, slices.Concat(want, want), h.handled, "runtime loads always run the handlers")
}

func TestLoadRuntimeIgnoresUnreadableCache(t *testing.T) {
	t.Parallel()

	store := cache.NewMemory()
	require.NoError(t, store.Set("configuration-app-dev-runtimeDefinitions", []byte("{not json")))
	l, _ := newTestLoader(t, WithCache(store))

	st, err := l.Load(t.Context(), true)
	require.NoError(t, err)
	assert.Equal(t, expectedTree(), st.GetAll())
}

func TestLoadFileCache(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	store := cache.NewFile(fs, "/var/cache/cfgweave")
	l, _ := newTestLoader(t, WithCache(store))

	_, err := l.Load(t.Context(), false)
	require.NoError(t, err)
	exists, err := afero.Exists(fs, "/var/cache/cfgweave/configuration-app-dev.cache")
	require.NoError(t, err)
	assert.True(t, exists)

	st, err := l.Load(t.Context(), false)
	require.NoError(t, err)
	assert.Equal(t, expectedTree(), st.GetAll())
}

func TestCacheKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		typ, env string
		want     string
	}{
		{"app", "dev", "configuration-app-dev"},
		{"my app", "dev", "configuration-my_20app-dev"},
		{"my_app", "prod/eu", "configuration-my_5fapp-prod_2feu"},
		{"app", "über", "configuration-app-_c3_bcber"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			l := New(tt.typ, tt.env)
			assert.Equal(t, tt.want, l.CacheKey(false))
			assert.Equal(t, tt.want+"-runtimeDefinitions", l.CacheKey(true))
			require.NoError(t, cache.ValidateKey(l.CacheKey(false)))
		})
	}
}

func TestLoadCacheWithSpacedNames(t *testing.T) {
	t.Parallel()

	store := cache.NewMemory()
	fs := pluginFS(t)
	l := New("my app", "staging env", WithFS(fs), WithRegistry(testRegistry()), WithCache(store))
	require.NoError(t, l.RegisterRootLocation("/app/plugins/*", nil))
	l.RegisterHandler(&valuesHandler{})

	_, err := l.Load(t.Context(), false)
	require.NoError(t, err)
	has, err := store.Has("configuration-my_20app-staging_20env")
	require.NoError(t, err)
	assert.True(t, has)

	st, err := l.Load(t.Context(), false)
	require.NoError(t, err)
	assert.Equal(t, expectedTree(), st.GetAll())

	_, err = l.Load(t.Context(), true)
	require.NoError(t, err)
}

func TestClearCache(t *testing.T) {
	t.Parallel()

	store := cache.NewMemory()
	l, _ := newTestLoader(t, WithCache(store))
	_, err := l.Load(t.Context(), false)
	require.NoError(t, err)
	_, err = l.Load(t.Context(), true)
	require.NoError(t, err)
	require.NoError(t, store.Set("unrelated", []byte("keep")))

	require.NoError(t, l.ClearCache())
	for _, key := range []string{l.CacheKey(false), l.CacheKey(true)} {
		has, err := store.Has(key)
		require.NoError(t, err)
		assert.False(t, has, key)
	}
	has, err := store.Has("unrelated")
	require.NoError(t, err)
	assert.True(t, has)

	l.SetCache(nil)
	assert.NoError(t, l.ClearCache())
}

func TestLoadEvents(t *testing.T) {
	t.Parallel()

	t.Run("skip caching", func(t *testing.T) {
		t.Parallel()

		store := cache.NewMemory()
		l, _ := newTestLoader(t, WithCache(store))
		bus := event.NewBus()
		var seen *BeforeStateCachingEvent
		event.Subscribe(bus, func(e *BeforeStateCachingEvent) {
			seen = e
			e.Skip = true
		})
		l.SetEventDispatcher(bus)

		_, err := l.Load(t.Context(), false)
		require.NoError(t, err)
		require.NotNil(t, seen)
		assert.True(t, seen.HasCache)
		assert.Equal(t, "configuration-app-dev", seen.CacheKey)
		has, err := store.Has("configuration-app-dev")
		require.NoError(t, err)
		assert.False(t, has)
	})

	t.Run("replace state", func(t *testing.T) {
		t.Parallel()

		l, _ := newTestLoader(t)
		bus := event.NewBus()
		replacement := state.New(map[string]any{"replaced": true})
		event.Subscribe(bus, func(e *AfterLoadEvent) { e.State = replacement })
		l.SetEventDispatcher(bus)

		st, err := l.Load(t.Context(), false)
		require.NoError(t, err)
		assert.Same(t, replacement, st)
	})

	t.Run("swap handler finder", func(t *testing.T) {
		t.Parallel()

		l, h := newTestLoader(t)
		bus := event.NewBus()
		event.Subscribe(bus, func(e *HandlerFinderFilterEvent) {
			f, err := pipeline.NewFilteredHandlerFinder([]types.TypeID{handlerCapability}, nil)
			require.NoError(t, err)
			e.Finder = f
		})
		l.SetEventDispatcher(bus)

		st, err := l.Load(t.Context(), false)
		require.NoError(t, err)
		assert.Empty(t, st.GetAll())
		assert.Empty(t, h.handled)
	})

	t.Run("before load sees roots", func(t *testing.T) {
		t.Parallel()

		l, _ := newTestLoader(t)
		bus := event.NewBus()
		var roots []string
		event.Subscribe(bus, func(e *BeforeLoadEvent) {
			for _, r := range e.LoadContext.Roots {
				roots = append(roots, r.Path)
			}
			e.LoadContext.Roots = e.LoadContext.Roots[:1]
		})
		l.SetEventDispatcher(bus)

		st, err := l.Load(t.Context(), false)
		require.NoError(t, err)
		assert.Equal(t, []string{"/app/plugins/alpha", "/app/plugins/beta"}, roots)
		assert.False(t, st.Has("beta"))
		assert.True(t, st.Has("alpha"))
	})
}

func TestRegisterLocationErrors(t *testing.T) {
	t.Parallel()

	l := New("app", "dev", WithFS(afero.NewMemMapFs()))
	for _, pattern := range []string{"", "/app/[a-"} {
		err := l.RegisterRootLocation(pattern, nil)
		require.ErrorIs(t, err, ErrInvalidLocation, "pattern %q", pattern)
		var locErr *InvalidLocationError
		require.ErrorAs(t, err, &locErr)
		assert.Equal(t, pattern, locErr.Pattern)

		require.ErrorIs(t, l.RegisterHandlerLocation(pattern), ErrInvalidLocation)
	}
	require.NoError(t, l.RegisterRootLocation("/app/plugins/**", pipeline.StaticNamespace("plugins")))
}

func TestSetContextFactory(t *testing.T) {
	t.Parallel()

	t.Run("invalid", func(t *testing.T) {
		t.Parallel()

		l := New("app", "dev")
		err := l.SetContextFactory(func() pipeline.ConfigContext { return &customContext{} })
		require.ErrorIs(t, err, ErrInvalidContextType)
		var ctxErr *InvalidContextTypeError
		require.ErrorAs(t, err, &ctxErr)
		assert.Equal(t, "*loader.customContext", ctxErr.Type)
	})

	t.Run("custom context reaches handlers", func(t *testing.T) {
		t.Parallel()

		l, h := newTestLoader(t)
		require.NoError(t, l.SetContextFactory(func() pipeline.ConfigContext {
			return &customContext{Context: &pipeline.Context{}}
		}))

		st, err := l.Load(t.Context(), false)
		require.NoError(t, err)
		assert.Equal(t, expectedTree(), st.GetAll())
		require.NotEmpty(t, h.contexts)
		for _, cc := range h.contexts {
			assert.IsType(t, &customContext{}, cc)
		}
	})
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	t.Run("unloadable config type", func(t *testing.T) {
		t.Parallel()

		reg := registry.New()
		registry.RegisterCapability[valueProvider](reg, valuesCapability)
		l, _ := newTestLoader(t, WithRegistry(reg))

		_, err := l.Load(t.Context(), false)
		require.ErrorIs(t, err, pipeline.ErrUnloadableType)
		var ae *issue.ActionableError
		require.ErrorAs(t, err, &ae)
		assert.Equal(t, "load configuration", ae.Operation)
		assert.Equal(t, "app (dev)", ae.Resource)
		assert.True(t, ae.HasSuggestions())
		assert.Equal(t, issue.UnloadableTypeId, ae.IssueID)
	})

	t.Run("duplicate handler", func(t *testing.T) {
		t.Parallel()

		l, _ := newTestLoader(t)
		l.RegisterHandler(&valuesHandler{})

		_, err := l.Load(t.Context(), false)
		require.ErrorIs(t, err, pipeline.ErrDuplicateHandler)
	})

	t.Run("cancelled", func(t *testing.T) {
		t.Parallel()

		l, h := newTestLoader(t)
		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		_, err := l.Load(ctx, false)
		require.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, h.handled)
	})

	t.Run("failing cache", func(t *testing.T) {
		t.Parallel()

		l, _ := newTestLoader(t, WithCache(failingStore{}))
		_, err := l.Load(t.Context(), false)
		require.ErrorIs(t, err, errStoreDown)
		var ae *issue.ActionableError
		require.ErrorAs(t, err, &ae)
		assert.Equal(t, issue.CacheUnavailableId, ae.IssueID)
	})
}

func TestClearRegistrations(t *testing.T) {
	t.Parallel()

	l, _ := newTestLoader(t)
	l.ClearRootLocations()
	l.ClearHandlers()
	l.ClearHandlerLocations()
	l.ClearModifiers()

	st, err := l.Load(t.Context(), false)
	require.NoError(t, err)
	assert.Empty(t, st.GetAll())
}

func TestPhaseString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "uninitialised", PhaseUninitialised.String())
	assert.Equal(t, "complete", PhaseComplete.String())
	assert.Equal(t, "Phase(9)", Phase(9).String())
}

var errStoreDown = errors.New("store down")

type failingStore struct{}

func (failingStore) Get(string) ([]byte, error) { return nil, errStoreDown }
func (failingStore) Set(string, []byte) error { return errStoreDown }
func (failingStore) Has(string) (bool, error) { return false, errStoreDown }
func (failingStore) Delete(string) error { return errStoreDown }
func (failingStore) Clear() error { return errStoreDown }
