// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"errors"
	"reflect"
	"slices"

	"dario.cat/mergo"

	"github.com/cfgweave/cfgweave/internal/state"
	"github.com/cfgweave/cfgweave/pkg/types"
)

// DefaultOverrideLocation is searched for override config types when a
// handler allows overrides but registers no override location.
const DefaultOverrideLocation = "Override"

type (
	// Handler processes the config types discovered for it.
	Handler interface {
		ContextAware
		// Configure declares locations, capabilities and ordering. It runs
		// once per load while handlers are discovered.
		Configure(c *Configurator)
		// Prepare runs once before the first Handle call.
		Prepare() error
		// Handle runs once per config type, under the namespace the type was
		// discovered in.
		Handle(id types.TypeID) error
		// Finish runs once after the last Handle call.
		Finish() error
	}

	// DefinitionAware handlers receive their ConfigDefinition before they are
	// processed.
	DefinitionAware interface {
		SetDefinition(def *ConfigDefinition)
	}

	// Wrapper is implemented by adapters around another handler value. The
	// key of a wrapper is the key of the wrapped value.
	Wrapper interface {
		Unwrap() any
	}

	// BaseHandler is embedded by handlers to get the context plumbing and
	// no-op Prepare and Finish methods.
	BaseHandler struct {
		Context    ConfigContext
		Definition *ConfigDefinition
	}

	// DefaultConfigClass is a config type processed ahead of every
	// discovered one.
	DefaultConfigClass struct {
		ID        types.TypeID `json:"id"`
		Namespace string       `json:"namespace"`
	}

	// HandlerDefinition is the declaration a handler makes in Configure plus
	// the handler instance itself.
	HandlerDefinition struct {
		Key     types.TypeID
		Handler Handler

		AllowOverride     bool
		OverrideLocations []string
		Locations         []string
		Interfaces        []types.TypeID

		Overrides []types.TypeID
		Before    []types.TypeID
		After     []types.TypeID

		DefaultState         map[string]any
		DefaultConfigClasses []DefaultConfigClass
	}

	// Configurator is passed to Handler.Configure to fill the definition.
	// All methods return the configurator for chaining.
	Configurator struct {
		def *HandlerDefinition
		err error
	}
)

var (
	handlerType      = reflect.TypeFor[Handler]()
	groupHandlerType = reflect.TypeFor[GroupConfigHandler]()
)

// SetContext implements ContextAware.
func (h *BaseHandler) SetContext(ctx ConfigContext) { h.Context = ctx }

// SetDefinition implements DefinitionAware.
func (h *BaseHandler) SetDefinition(def *ConfigDefinition) { h.Definition = def }

// Prepare implements Handler.
func (h *BaseHandler) Prepare() error { return nil }

// Finish implements Handler.
func (h *BaseHandler) Finish() error { return nil }

// Instance creates an instance through the load's container and registry.
func (h *BaseHandler) Instance(id types.TypeID) (any, error) {
	return h.Context.Instance(id)
}

// NewHandlerDefinition creates a definition with overrides allowed.
func NewHandlerDefinition(key types.TypeID, h Handler) *HandlerDefinition {
	return &HandlerDefinition{Key: key, Handler: h, AllowOverride: true}
}

// Clone returns a deep copy sharing the handler instance.
func (d *HandlerDefinition) Clone() *HandlerDefinition {
	c := *d
	c.OverrideLocations = slices.Clone(d.OverrideLocations)
	c.Locations = slices.Clone(d.Locations)
	c.Interfaces = slices.Clone(d.Interfaces)
	c.Overrides = slices.Clone(d.Overrides)
	c.Before = slices.Clone(d.Before)
	c.After = slices.Clone(d.After)
	c.DefaultState = state.CloneTree(d.DefaultState)
	c.DefaultConfigClasses = slices.Clone(d.DefaultConfigClasses)
	return &c
}

// overrideLocations returns the override sub-locations to scan, or nil when
// overrides are disabled.
func (d *HandlerDefinition) overrideLocations() []string {
	if !d.AllowOverride {
		return nil
	}
	if len(d.OverrideLocations) == 0 {
		return []string{DefaultOverrideLocation}
	}
	return d.OverrideLocations
}

// NewConfigurator creates a configurator filling def.
func NewConfigurator(def *HandlerDefinition) *Configurator {
	return &Configurator{def: def}
}

// SetAllowOverride toggles the lookup of override config types.
func (c *Configurator) SetAllowOverride(allow bool) *Configurator {
	c.def.AllowOverride = allow
	return c
}

// RegisterOverrideLocation adds a glob pattern, relative to each location,
// that holds override config types. Without one, "Override" is used.
func (c *Configurator) RegisterOverrideLocation(pattern string) *Configurator {
	c.def.OverrideLocations = append(c.def.OverrideLocations, pattern)
	return c
}

// RegisterLocation adds a glob pattern, relative to every root location,
// that holds config types.
func (c *Configurator) RegisterLocation(pattern string) *Configurator {
	c.def.Locations = append(c.def.Locations, pattern)
	return c
}

// RegisterInterface adds a capability config types must implement. A type
// qualifies when it implements at least one registered capability.
func (c *Configurator) RegisterInterface(capability types.TypeID) *Configurator {
	c.def.Interfaces = append(c.def.Interfaces, capability)
	return c
}

// RegisterAsOverrideFor replaces another handler with this one. Unknown
// handlers are ignored.
func (c *Configurator) RegisterAsOverrideFor(handler types.TypeID) *Configurator {
	c.def.Overrides = append(c.def.Overrides, handler)
	return c
}

// ExecuteBefore runs this handler before the given one. Unknown handlers are
// ignored.
func (c *Configurator) ExecuteBefore(handler types.TypeID) *Configurator {
	c.def.Before = append(c.def.Before, handler)
	return c
}

// ExecuteAfter runs this handler after the given one. Unknown handlers are
// ignored.
func (c *Configurator) ExecuteAfter(handler types.TypeID) *Configurator {
	c.def.After = append(c.def.After, handler)
	return c
}

// RegisterDefaultConfigClass processes id ahead of all discovered config
// types. An empty namespace defaults to the handler key.
func (c *Configurator) RegisterDefaultConfigClass(id types.TypeID, namespace string) *Configurator {
	if namespace == "" {
		namespace = c.def.Key.String()
	}
	idx := slices.IndexFunc(c.def.DefaultConfigClasses, func(dc DefaultConfigClass) bool { return dc.ID == id })
	if idx >= 0 {
		c.def.DefaultConfigClasses[idx].Namespace = namespace
		return c
	}
	c.def.DefaultConfigClasses = append(c.def.DefaultConfigClasses, DefaultConfigClass{ID: id, Namespace: namespace})
	return c
}

// RegisterDefaultState seeds the state before the handler runs. Repeated
// calls merge recursively; later values win and lists are appended. The data
// has to be JSON representable.
func (c *Configurator) RegisterDefaultState(data map[string]any) *Configurator {
	if len(c.def.DefaultState) == 0 {
		c.def.DefaultState = state.CloneTree(data)
		return c
	}
	if err := mergo.Merge(&c.def.DefaultState, state.CloneTree(data), mergo.WithOverride, mergo.WithAppendSlice); err != nil {
		c.err = errors.Join(c.err, err)
	}
	return c
}

// Definition returns the definition being configured.
func (c *Configurator) Definition() *HandlerDefinition { return c.def }

// Err returns the errors collected while configuring.
func (c *Configurator) Err() error { return c.err }

// asHandler returns v as a Handler, wrapping group handlers.
func asHandler(v any) (Handler, bool) {
	switch h := v.(type) {
	case Handler:
		return h, true
	case GroupConfigHandler:
		return NewGroupHandler(h), true
	}
	return nil, false
}

// isHandlerType reports whether values of typ can be used as handlers.
func isHandlerType(typ reflect.Type) bool {
	return typ.Implements(handlerType) || typ.Implements(groupHandlerType)
}

// HandlerKey returns the key a handler is identified by.
func HandlerKey(lc *LoadContext, h any) types.TypeID {
	for {
		w, ok := h.(Wrapper)
		if !ok {
			break
		}
		h = w.Unwrap()
	}
	return lc.TypeIDOf(h)
}
