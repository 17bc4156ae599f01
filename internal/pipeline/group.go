// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"fmt"

	"github.com/cfgweave/cfgweave/pkg/types"
)

type (
	// GroupConfigHandler processes config types in groups. Types that share a
	// group key are handed over together once every type was seen.
	GroupConfigHandler interface {
		ContextAware
		Configure(c *Configurator)
		// GroupKey returns the group id belongs to.
		GroupKey(id types.TypeID) string
		PrepareHandler() error
		FinishHandler() error
		// PrepareGroup runs under the namespace of the first group member.
		PrepareGroup(key string, ids []types.TypeID) error
		// HandleGroupItem runs under the namespace of the member.
		HandleGroupItem(id types.TypeID) error
		// FinishGroup runs under the namespace of the first group member.
		FinishGroup(key string, ids []types.TypeID) error
	}

	// GroupHandler adapts a GroupConfigHandler to Handler.
	GroupHandler struct {
		inner GroupConfigHandler
		ctx   ConfigContext

		order  []string
		groups map[string][]groupItem
	}

	groupItem struct {
		namespace string
		id        types.TypeID
	}
)

// NewGroupHandler wraps h.
func NewGroupHandler(h GroupConfigHandler) *GroupHandler {
	return &GroupHandler{inner: h}
}

// Unwrap implements Wrapper.
func (g *GroupHandler) Unwrap() any { return g.inner }

// SetContext implements ContextAware.
func (g *GroupHandler) SetContext(ctx ConfigContext) {
	g.ctx = ctx
	g.inner.SetContext(ctx)
}

// SetDefinition implements DefinitionAware.
func (g *GroupHandler) SetDefinition(def *ConfigDefinition) {
	if aware, ok := g.inner.(DefinitionAware); ok {
		aware.SetDefinition(def)
	}
}

// Configure implements Handler.
func (g *GroupHandler) Configure(c *Configurator) { g.inner.Configure(c) }

// Prepare implements Handler.
func (g *GroupHandler) Prepare() error {
	g.order = nil
	g.groups = make(map[string][]groupItem)
	return g.inner.PrepareHandler()
}

// Handle implements Handler. It only records id in its group.
func (g *GroupHandler) Handle(id types.TypeID) error {
	key := g.inner.GroupKey(id)
	if _, ok := g.groups[key]; !ok {
		g.order = append(g.order, key)
	}
	g.groups[key] = append(g.groups[key], groupItem{namespace: g.ctx.Namespace(), id: id})
	return nil
}

// Finish implements Handler.
func (g *GroupHandler) Finish() error {
	for _, key := range g.order {
		items := g.groups[key]
		ids := make([]types.TypeID, len(items))
		for i, item := range items {
			ids[i] = item.id
		}

		err := g.ctx.RunWithNamespace(items[0].namespace, func() error {
			if err := g.inner.PrepareGroup(key, ids); err != nil {
				return err
			}
			for _, item := range items {
				err := g.ctx.RunWithNamespace(item.namespace, func() error {
					return g.inner.HandleGroupItem(item.id)
				})
				if err != nil {
					return fmt.Errorf("config %s: %w", item.id, err)
				}
			}
			return g.inner.FinishGroup(key, ids)
		})
		if err != nil {
			return fmt.Errorf("group %q: %w", key, err)
		}
	}
	return g.inner.FinishHandler()
}
