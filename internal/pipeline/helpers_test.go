// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"fmt"
	"maps"
	"slices"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/cfgweave/cfgweave/internal/registry"
	"github.com/cfgweave/cfgweave/internal/scanner"
	"github.com/cfgweave/cfgweave/internal/state"
	"github.com/cfgweave/cfgweave/pkg/types"
)

const valuesCapability types.TypeID = "test.Values"

type (
	valueProvider interface {
		Values() map[string]any
	}

	siteConfig   struct{}
	siteOverride struct{}
	routesConfig struct{}
	helperType   struct{}

	// recordingHandler writes the values of every config type into the state
	// and records the calls it receives.
	recordingHandler struct {
		BaseHandler
		calls     []string
		configure func(c *Configurator)
	}
)

func (*siteConfig) Values() map[string]any {
	return map[string]any{"title": "Alpha", "lang": "en"}
}

func (*siteOverride) Values() map[string]any {
	return map[string]any{"title": "Alpha (override)"}
}

func (*routesConfig) Values() map[string]any {
	return map[string]any{"routes": []any{"/"}}
}

func (h *recordingHandler) Configure(c *Configurator) {
	c.RegisterLocation("Config").RegisterInterface(valuesCapability)
	if h.configure != nil {
		h.configure(c)
	}
}

func (h *recordingHandler) Prepare() error {
	h.calls = append(h.calls, "prepare")
	return nil
}

func (h *recordingHandler) Handle(id types.TypeID) error {
	h.calls = append(h.calls, fmt.Sprintf("handle %s @ %s", id, h.Context.Namespace()))
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

func (h *recordingHandler) Finish() error {
	h.calls = append(h.calls, "finish")
	return nil
}

func writeFiles(t *testing.T, fs afero.Fs, files map[string]string) {
	t.Helper()
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fs, name, []byte(content), 0o644))
	}
}

// pluginFS holds two plugin roots. Alpha ships an override of its own site
// config; beta ships a type that provides no values.
func pluginFS(t *testing.T) afero.Fs {
	t.Helper()

	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/app/plugins/alpha/Config/site.go":          "package alpha\n\ntype SiteConfig struct{}\n\ntype Provider interface{ Values() map[string]any }\n\ntype internal struct{}\n",
		"/app/plugins/alpha/Config/Override/site.go": "package alphaoverride\n\ntype SiteOverride struct{}\n",
		"/app/plugins/beta/Config/helper.go":         "package beta\n\ntype Helper struct{}\n",
		"/app/plugins/beta/Config/routes.go":         "package beta\n\ntype RoutesConfig struct{}\n",
	})
	return fs
}

func testRegistry() *registry.Registry {
	reg := registry.New()
	registry.RegisterCapability[valueProvider](reg, valuesCapability)
	registry.Register[siteConfig](reg, "alpha.SiteConfig")
	registry.Register[siteOverride](reg, "alphaoverride.SiteOverride")
	registry.Register[routesConfig](reg, "beta.RoutesConfig")
	registry.Register[helperType](reg, "beta.Helper")
	return reg
}

// newTestContext returns a config context over fs with the alpha and beta
// roots registered.
func newTestContext(fs afero.Fs, reg *registry.Registry) *Context {
	lc := &LoadContext{
		Type:        "test",
		Environment: "dev",
		Roots: []RootLocation{
			{Path: "/app/plugins/alpha"},
			{Path: "/app/plugins/beta"},
		},
		Modifiers: DefaultModifiers(),
		Registry:  reg,
		Scanner:   scanner.NewGoSource(fs),
	}
	cc := NewContext(lc, state.New(nil))
	lc.Config = cc
	return cc
}

// configuredDefinition runs Configure of h into a fresh definition.
func configuredDefinition(t *testing.T, lc *LoadContext, h Handler) *HandlerDefinition {
	t.Helper()

	def := NewHandlerDefinition(HandlerKey(lc, h), h)
	c := NewConfigurator(def)
	h.Configure(c)
	require.NoError(t, c.Err())
	return def
}
