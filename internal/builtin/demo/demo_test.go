// SPDX-License-Identifier: MPL-2.0

package demo

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cfgweave/cfgweave/internal/builtin"
	"github.com/cfgweave/cfgweave/internal/cache"
	"github.com/cfgweave/cfgweave/internal/loader"
	"github.com/cfgweave/cfgweave/internal/registry"
	"github.com/cfgweave/cfgweave/internal/scanner"
)

func newDemoLoader(t *testing.T, store cache.Store) *loader.Loader {
	t.Helper()

	reg := registry.New()
	builtin.Register(reg)
	Register(reg)

	fsys, err := FS()
	require.NoError(t, err)

	s := Settings()
	l := loader.New(s.Type, s.Environment, loader.WithFS(fsys), loader.WithRegistry(reg), loader.WithCache(store))
	for _, root := range s.Roots {
		require.NoError(t, l.RegisterRootLocation(root.Path.String(), nil))
	}
	for _, loc := range s.HandlerLocations {
		require.NoError(t, l.RegisterHandlerLocation(loc))
	}
	l.RegisterHandler(&builtin.ValuesHandler{})
	return l
}

func demoTree() map[string]any {
	return map[string]any{
		"blog": map[string]any{
			"pages": []any{"/", "/about"},
			"feed":  map[string]any{"url": "/rss", "items": 20},
			"tags":  []any{"go", "config"},
		},
		"shop": map[string]any{
			"title":    "Demo Shop",
			"currency": "EUR",
			"db":       map[string]any{"host": "db.internal", "port": 5432},
		},
		"meta": map[string]any{"generator": "cfgweave demo", "tagged": 1},
	}
}

func TestFS(t *testing.T) {
	t.Parallel()

	fsys, err := FS()
	require.NoError(t, err)

	for _, p := range []string{
		"/demo/plugins/shop/Config/site.go",
		"/demo/plugins/shop/Config/Override/site.go",
		"/demo/plugins/blog/Config/feed.go",
		"/demo/plugins/blog/Handlers/tags.go",
		"/demo/plugins/blog/Tags/posts.go",
	} {
		ok, err := afero.Exists(fsys, p)
		require.NoError(t, err)
		assert.True(t, ok, p)
	}

	decls, err := scanner.NewGoSource(fsys).Scan("/demo/plugins/blog/Config")
	require.NoError(t, err)
	ids := make([]string, 0, len(decls))
	for _, d := range decls {
		ids = append(ids, d.ID.String())
	}
	assert.Equal(t, []string{"blog.Feed", "blog.FeedConfig", "blog.PagesConfig"}, ids)
}

func TestDemoLoad(t *testing.T) {
	t.Parallel()

	for _, runtime := range []bool{false, true} {
		store := cache.NewMemory()
		l := newDemoLoader(t, store)
		for range 2 {
			st, err := l.Load(context.Background(), runtime)
			require.NoError(t, err)
			if diff := cmp.Diff(demoTree(), st.GetAll()); diff != "" {
				t.Errorf("runtime=%v: demo tree mismatch (-want +got):\n%s", runtime, diff)
			}
		}
		ok, err := store.Has(l.CacheKey(runtime))
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestSettings(t *testing.T) {
	t.Parallel()

	s := Settings()
	valid, errs := s.IsValid()
	assert.True(t, valid, errs)
	assert.Equal(t, "demo", s.Type)
	assert.Equal(t, "/demo/plugins/*", s.Roots[0].Path.String())
}
