// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cfgweave/cfgweave/internal/registry"
	"github.com/cfgweave/cfgweave/internal/state"
	"github.com/cfgweave/cfgweave/pkg/types"
)

type failingHandler struct {
	recordingHandler
}

var errHandle = errors.New("handle failed")

func (h *failingHandler) Handle(types.TypeID) error { return errHandle }

func TestConfigDefinition_Process(t *testing.T) {
	t.Parallel()

	cc := newTestContext(pluginFS(t), testRegistry())
	h := &recordingHandler{configure: func(c *Configurator) {
		c.RegisterDefaultState(map[string]any{"defaults": map[string]any{"debug": true}})
	}}
	def, err := findConfigs(t, cc, h)
	require.NoError(t, err)

	require.NoError(t, def.Process(t.Context()))

	assert.Equal(t, []string{
		"prepare",
		"handle alpha.SiteConfig @ alpha",
		"handle beta.RoutesConfig @ beta",
		"handle alphaoverride.SiteOverride @ alpha",
		"finish",
	}, h.calls)
	assert.Equal(t, map[string]any{
		"defaults": map[string]any{"debug": true},
		"alpha":    map[string]any{"title": "Alpha (override)", "lang": "en"},
		"beta":     map[string]any{"routes": []any{"/"}},
	}, cc.State().GetAll())
	assert.Empty(t, cc.Namespace(), "the namespace is restored after processing")
	assert.Same(t, def, h.Definition)
}

func TestConfigDefinition_ProcessWithoutConfigTypes(t *testing.T) {
	t.Parallel()

	cc := newTestContext(pluginFS(t), testRegistry())
	h := &recordingHandler{}
	hd := NewHandlerDefinition("pipeline.recordingHandler", h)
	hd.DefaultState = map[string]any{"seeded": true}

	def := NewConfigDefinition(hd, cc, nil, nil, nil)
	require.NoError(t, def.Process(t.Context()))

	assert.Empty(t, h.calls, "handlers without config types are not run")
	assert.Same(t, cc, h.Context)
	assert.Equal(t, true, cc.State().Get("seeded", nil))
}

func TestConfigDefinition_ProcessErrors(t *testing.T) {
	t.Parallel()

	t.Run("handle", func(t *testing.T) {
		t.Parallel()

		cc := newTestContext(pluginFS(t), testRegistry())
		def, err := findConfigs(t, cc, &failingHandler{})
		require.NoError(t, err)

		err = def.Process(t.Context())
		require.ErrorIs(t, err, errHandle)
		assert.Contains(t, err.Error(), "alpha.SiteConfig")
	})

	t.Run("cancelled", func(t *testing.T) {
		t.Parallel()

		cc := newTestContext(pluginFS(t), testRegistry())
		h := &recordingHandler{}
		def, err := findConfigs(t, cc, h)
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		require.ErrorIs(t, def.Process(ctx), context.Canceled)
		assert.Equal(t, []string{"prepare"}, h.calls)
	})
}

func TestHydrate_RoundTrip(t *testing.T) {
	t.Parallel()

	reg := testRegistry()
	cc := newTestContext(pluginFS(t), reg)
	h := &recordingHandler{configure: func(c *Configurator) {
		c.RegisterDefaultState(map[string]any{"limit": 3})
	}}
	cc.LoadContext().Handlers = []Handler{h}

	def, err := findConfigs(t, cc, h)
	require.NoError(t, err)

	raw, err := json.Marshal([]DehydratedDefinition{def.Dehydrate()})
	require.NoError(t, err)

	var records []DehydratedDefinition
	require.NoError(t, json.Unmarshal(raw, &records))
	require.Len(t, records, 1)
	assert.Equal(t, types.TypeID("pipeline.recordingHandler"), records[0].Handler.HandlerType)

	fresh := newTestContext(pluginFS(t), reg)
	fresh.LoadContext().Handlers = []Handler{h}
	hydrated, err := Hydrate(fresh.LoadContext(), records[0])
	require.NoError(t, err)

	assert.Same(t, h, hydrated.Handler.Handler)
	assert.Same(t, fresh, hydrated.Context())
	assert.Equal(t, def.ConfigClasses, hydrated.ConfigClasses)
	assert.Equal(t, def.OverrideConfigClasses, hydrated.OverrideConfigClasses)
	assert.Equal(t, def.ClassNamespaces, hydrated.ClassNamespaces)
	assert.Equal(t, def.Handler.Locations, hydrated.Handler.Locations)

	h.calls = nil
	require.NoError(t, hydrated.Process(t.Context()))
	assert.Equal(t, "Alpha (override)", fresh.State().Get("alpha.title", nil))
	assert.InDelta(t, 3, fresh.State().Get("limit", nil), 0)
}

func TestHydrate_HandlerResolution(t *testing.T) {
	t.Parallel()

	reg := testRegistry()
	registry.Register[siteHandler](reg, "handlers.SiteHandler")

	record := func(handlerType types.TypeID) DehydratedDefinition {
		return DehydratedDefinition{
			Handler:       DehydratedHandler{Key: handlerType, HandlerType: handlerType},
			ConfigClasses: []types.TypeID{"alpha.SiteConfig"},
		}
	}

	t.Run("fresh instance from the registry", func(t *testing.T) {
		t.Parallel()

		cc := newTestContext(pluginFS(t), reg)
		def, err := Hydrate(cc.LoadContext(), record("handlers.SiteHandler"))
		require.NoError(t, err)
		assert.IsType(t, &siteHandler{}, def.Handler.Handler)
		assert.NotNil(t, def.ClassNamespaces)
	})

	t.Run("ambiguous", func(t *testing.T) {
		t.Parallel()

		cc := newTestContext(pluginFS(t), reg)
		cc.LoadContext().Handlers = []Handler{&recordingHandler{}, &recordingHandler{}}
		_, err := Hydrate(cc.LoadContext(), record("pipeline.recordingHandler"))
		require.ErrorIs(t, err, ErrAmbiguousHandler)

		var ambiguous *AmbiguousHandlerError
		require.ErrorAs(t, err, &ambiguous)
		assert.Equal(t, 2, ambiguous.Matches)
	})

	t.Run("unknown", func(t *testing.T) {
		t.Parallel()

		cc := newTestContext(pluginFS(t), reg)
		_, err := Hydrate(cc.LoadContext(), record("nope.Handler"))
		require.ErrorIs(t, err, ErrUnloadableType)
	})

	t.Run("not a handler", func(t *testing.T) {
		t.Parallel()

		cc := newTestContext(pluginFS(t), reg)
		_, err := Hydrate(cc.LoadContext(), record("beta.Helper"))
		require.ErrorIs(t, err, ErrUnloadableType)
	})
}

func TestInitContext(t *testing.T) {
	t.Parallel()

	type customContext struct {
		*Context
	}

	lc := &LoadContext{Type: "custom", Environment: "prod"}
	st := state.New(nil)

	custom := customContext{Context: &Context{}}
	require.NoError(t, InitContext(custom, lc, st))
	assert.Equal(t, "custom", custom.Type())
	assert.Equal(t, "prod", custom.Environment())
	assert.Same(t, st, custom.State())

	require.ErrorIs(t, InitContext(nil, lc, st), ErrInvalidContext)
	require.ErrorIs(t, InitContext(customContext{}, lc, st), ErrInvalidContext)
}

func TestContext_RunWithNamespace(t *testing.T) {
	t.Parallel()

	cc := NewContext(&LoadContext{}, state.New(nil))
	err := cc.RunWithNamespace("outer", func() error {
		assert.Equal(t, "outer", cc.Namespace())
		cc.State().Set("a", 1)
		return cc.RunWithNamespace("inner.deep", func() error {
			assert.Equal(t, "inner.deep", cc.Namespace())
			cc.State().Set("b", 2)
			return errHandle
		})
	})
	require.ErrorIs(t, err, errHandle)
	assert.Empty(t, cc.Namespace())
	assert.Equal(t, 1, cc.State().Get("outer.a", nil))
	assert.Equal(t, 2, cc.State().Get("inner.deep.b", nil))
}
