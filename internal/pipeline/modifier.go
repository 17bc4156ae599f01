// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/cfgweave/cfgweave/internal/dag"
	"github.com/cfgweave/cfgweave/pkg/types"
)

const (
	// OrderModifierKey is the key of the built-in order modifier.
	OrderModifierKey = "pipeline.OrderModifier"
	// ReplaceModifierKey is the key of the built-in replace modifier.
	ReplaceModifierKey = "pipeline.ReplaceModifier"
)

type (
	// Modifier rewrites the config type list of a handler after discovery.
	Modifier interface {
		// Key identifies the modifier; registering another modifier with the
		// same key replaces this one.
		Key() string
		Apply(mc *ModifierContext) error
	}

	// Modifiers is an ordered modifier list with unique keys.
	Modifiers []Modifier

	// ModifierContext is the working set modifiers operate on. It is created
	// once per handler and discovery pass.
	ModifierContext struct {
		ConfigClasses         []types.TypeID
		OverrideConfigClasses []types.TypeID
		ClassNamespaces       map[types.TypeID]string

		handler *HandlerDefinition
		ctx     ConfigContext
	}

	// Candidate pairs a config type with an instance of it.
	Candidate[T any] struct {
		ID    types.TypeID
		Value T
	}

	// OrderedConfig is implemented by config types that must run before or
	// after other config types of the same handler.
	OrderedConfig interface {
		ConfigOrder() (before, after []types.TypeID)
	}

	// ReplacingConfig is implemented by config types that take the slot of
	// another config type.
	ReplacingConfig interface {
		ReplacesConfig() types.TypeID
	}

	// OrderModifier sorts OrderedConfig types by their declared order.
	OrderModifier struct{}

	// ReplaceModifier moves every ReplacingConfig type into the slot of its
	// target. A replacer whose target is missing is dropped.
	ReplaceModifier struct{}
)

// DefaultModifiers returns the built-in modifiers.
func DefaultModifiers() Modifiers {
	return Modifiers{OrderModifier{}, ReplaceModifier{}}
}

// With returns a copy of ms with m added. A modifier with the same key is
// replaced in place.
func (ms Modifiers) With(m Modifier) Modifiers {
	out := slices.Clone(ms)
	idx := slices.IndexFunc(out, func(e Modifier) bool { return e.Key() == m.Key() })
	if idx >= 0 {
		out[idx] = m
		return out
	}
	return append(out, m)
}

// NewModifierContext creates the working set for one handler.
func NewModifierContext(
	handler *HandlerDefinition,
	ctx ConfigContext,
	classes, overrides []types.TypeID,
	namespaces map[types.TypeID]string,
) *ModifierContext {
	return &ModifierContext{
		ConfigClasses:         classes,
		OverrideConfigClasses: overrides,
		ClassNamespaces:       namespaces,
		handler:               handler,
		ctx:                   ctx,
	}
}

// HandlerDefinition returns the handler the config types belong to.
func (mc *ModifierContext) HandlerDefinition() *HandlerDefinition { return mc.handler }

// Context returns the config context of the load.
func (mc *ModifierContext) Context() ConfigContext { return mc.ctx }

// Candidates returns an instance of every config type in mc that implements
// T, in list order.
func Candidates[T any](mc *ModifierContext) ([]Candidate[T], error) {
	lc := mc.ctx.LoadContext()
	iface := reflect.TypeFor[T]()

	var out []Candidate[T]
	for _, id := range mc.ConfigClasses {
		typ, ok := lc.typeOf(id)
		if !ok || !typ.Implements(iface) {
			continue
		}
		inst, err := lc.Instance(id)
		if err != nil {
			return nil, fmt.Errorf("instantiate config %s: %w", id, err)
		}
		if v, ok := inst.(T); ok {
			out = append(out, Candidate[T]{ID: id, Value: v})
		}
	}
	return out, nil
}

// Key implements Modifier.
func (OrderModifier) Key() string { return OrderModifierKey }

// Apply implements Modifier.
func (OrderModifier) Apply(mc *ModifierContext) error {
	candidates, err := Candidates[OrderedConfig](mc)
	if err != nil || len(candidates) == 0 {
		return err
	}

	sorter := dag.NewSorter(mc.ConfigClasses)
	for _, c := range candidates {
		before, after := c.Value.ConfigOrder()
		for _, other := range after {
			sorter.MoveAfter(c.ID, other)
		}
		for _, other := range before {
			sorter.MoveBefore(c.ID, other)
		}
	}
	sorted, err := sorter.Sort()
	if err != nil {
		return err
	}
	mc.ConfigClasses = sorted
	return nil
}

// Key implements Modifier.
func (ReplaceModifier) Key() string { return ReplaceModifierKey }

// Apply implements Modifier.
func (ReplaceModifier) Apply(mc *ModifierContext) error {
	candidates, err := Candidates[ReplacingConfig](mc)
	if err != nil || len(candidates) == 0 {
		return err
	}

	classes := slices.Clone(mc.ConfigClasses)
	for _, c := range candidates {
		if idx := slices.Index(classes, c.ID); idx >= 0 {
			classes = slices.Delete(classes, idx, idx+1)
		}
		target := c.Value.ReplacesConfig()
		idx := slices.Index(classes, target)
		if idx < 0 {
			continue
		}
		classes[idx] = c.ID
	}
	mc.ConfigClasses = classes
	return nil
}
