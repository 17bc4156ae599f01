// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cfgweave/cfgweave/pkg/types"
)

type groupCollector struct {
	ctx    ConfigContext
	key    func(id types.TypeID) string
	events []string
}

func (g *groupCollector) SetContext(ctx ConfigContext) { g.ctx = ctx }

func (g *groupCollector) Configure(c *Configurator) {
	c.RegisterLocation("Config").RegisterInterface(valuesCapability)
}

func (g *groupCollector) GroupKey(id types.TypeID) string { return g.key(id) }

func (g *groupCollector) PrepareHandler() error {
	g.record("prepare handler")
	return nil
}

func (g *groupCollector) FinishHandler() error {
	g.record("finish handler")
	return nil
}

func (g *groupCollector) PrepareGroup(key string, ids []types.TypeID) error {
	g.record(fmt.Sprintf("prepare %s %v", key, ids))
	return nil
}

func (g *groupCollector) HandleGroupItem(id types.TypeID) error {
	g.record("item " + id.String())
	return nil
}

func (g *groupCollector) FinishGroup(key string, _ []types.TypeID) error {
	g.record("finish " + key)
	return nil
}

func (g *groupCollector) record(event string) {
	g.events = append(g.events, event+" @ "+g.ctx.Namespace())
}

func TestGroupHandler(t *testing.T) {
	t.Parallel()

	cc := newTestContext(pluginFS(t), testRegistry())
	collector := &groupCollector{key: func(id types.TypeID) string {
		if strings.HasPrefix(id.Name(), "Site") {
			return "site"
		}
		return "other"
	}}
	h := NewGroupHandler(collector)

	def, err := findConfigs(t, cc, h)
	require.NoError(t, err)
	require.NoError(t, def.Process(t.Context()))

	assert.Equal(t, []string{
		"prepare handler @ ",
		"prepare site [alpha.SiteConfig alphaoverride.SiteOverride] @ alpha",
		"item alpha.SiteConfig @ alpha",
		"item alphaoverride.SiteOverride @ alpha",
		"finish site @ alpha",
		"prepare other [beta.RoutesConfig] @ beta",
		"item beta.RoutesConfig @ beta",
		"finish other @ beta",
		"finish handler @ ",
	}, collector.events)
}

func TestGroupHandler_ItemsKeepTheirNamespace(t *testing.T) {
	t.Parallel()

	cc := newTestContext(pluginFS(t), testRegistry())
	collector := &groupCollector{key: func(types.TypeID) string { return "all" }}

	def, err := findConfigs(t, cc, NewGroupHandler(collector))
	require.NoError(t, err)
	require.NoError(t, def.Process(t.Context()))

	assert.Equal(t, []string{
		"prepare handler @ ",
		"prepare all [alpha.SiteConfig beta.RoutesConfig alphaoverride.SiteOverride] @ alpha",
		"item alpha.SiteConfig @ alpha",
		"item beta.RoutesConfig @ beta",
		"item alphaoverride.SiteOverride @ alpha",
		"finish all @ alpha",
		"finish handler @ ",
	}, collector.events)
}

func TestGroupHandler_Key(t *testing.T) {
	t.Parallel()

	cc := newTestContext(pluginFS(t), testRegistry())
	h := NewGroupHandler(&groupCollector{})

	assert.Equal(t, types.TypeID("pipeline.groupCollector"), HandlerKey(cc.LoadContext(), h))

	wrapped, ok := asHandler(&groupCollector{})
	require.True(t, ok)
	assert.IsType(t, &GroupHandler{}, wrapped)
	assert.True(t, isHandlerType(reflect.TypeOf(&groupCollector{})))
}
