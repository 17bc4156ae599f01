// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"fmt"
	"io"
	"path/filepath"
	"reflect"
	"slices"

	"github.com/charmbracelet/log"

	"github.com/cfgweave/cfgweave/internal/event"
	"github.com/cfgweave/cfgweave/internal/scanner"
	"github.com/cfgweave/cfgweave/pkg/types"
)

type (
	// TypeRegistry resolves type identifiers to Go types and instances.
	// registry.Registry is the default implementation.
	TypeRegistry interface {
		Has(id types.TypeID) bool
		New(id types.TypeID) (any, error)
		Type(id types.TypeID) (reflect.Type, bool)
		Capability(id types.TypeID) (reflect.Type, bool)
		TypeIDOf(v any) types.TypeID
	}

	// InstanceResolver is an optional container consulted before the
	// registry factories when instances are created.
	InstanceResolver interface {
		Has(id types.TypeID) bool
		Get(id types.TypeID) (any, error)
	}

	// ContextAware instances receive the active config context after they
	// are created.
	ContextAware interface {
		SetContext(ctx ConfigContext)
	}

	// NamespaceSource assigns the namespace a discovered config type is
	// processed under.
	NamespaceSource interface {
		Namespace(root RootLocation, id types.TypeID, file string) string
	}

	// StaticNamespace assigns the same namespace to every type of a root.
	StaticNamespace string

	// DirNamespace names the namespace after the root directory.
	DirNamespace struct{}

	// NamespaceFunc adapts a function to NamespaceSource.
	NamespaceFunc func(root RootLocation, id types.TypeID, file string) string

	// RootLocation is a directory config and handler locations are resolved
	// against.
	RootLocation struct {
		Path      string
		Namespace NamespaceSource
	}

	// LoadContext holds everything a single load works with. The loader
	// clones its registrations into a fresh LoadContext for every load.
	LoadContext struct {
		Type        string
		Environment string

		Roots            []RootLocation
		HandlerLocations []string
		Handlers         []Handler
		Modifiers        Modifiers

		Registry  TypeRegistry
		Container InstanceResolver
		Scanner   scanner.Scanner
		Events    event.Dispatcher
		Logger    *log.Logger

		// Config is the config context of the running load.
		Config ConfigContext
	}
)

// Namespace implements NamespaceSource.
func (s StaticNamespace) Namespace(RootLocation, types.TypeID, string) string { return string(s) }

// Namespace implements NamespaceSource.
func (DirNamespace) Namespace(root RootLocation, _ types.TypeID, _ string) string {
	return filepath.Base(root.Path)
}

// Namespace implements NamespaceSource.
func (f NamespaceFunc) Namespace(root RootLocation, id types.TypeID, file string) string {
	return f(root, id, file)
}

// NamespaceFor returns the namespace of a type declared in file.
func (r RootLocation) NamespaceFor(id types.TypeID, file string) string {
	if r.Namespace == nil {
		return DirNamespace{}.Namespace(r, id, file)
	}
	return r.Namespace.Namespace(r, id, file)
}

// Clone copies the registrations so that the clone can be changed without
// affecting lc. Handler instances and collaborators are shared.
func (lc *LoadContext) Clone() *LoadContext {
	c := *lc
	c.Roots = slices.Clone(lc.Roots)
	c.HandlerLocations = slices.Clone(lc.HandlerLocations)
	c.Handlers = slices.Clone(lc.Handlers)
	c.Modifiers = slices.Clone(lc.Modifiers)
	c.Config = nil
	return &c
}

// Dispatch fires event when an event dispatcher is configured.
func (lc *LoadContext) Dispatch(ev any) {
	if lc.Events != nil {
		lc.Events.Dispatch(ev)
	}
}

// Log returns the logger for a component of the load.
func (lc *LoadContext) Log(prefix string) *log.Logger {
	if lc.Logger == nil {
		return log.New(io.Discard)
	}
	return lc.Logger.WithPrefix(prefix)
}

// Instance creates an instance of id. The container wins over the registry
// factories; ContextAware instances receive the active config context.
func (lc *LoadContext) Instance(id types.TypeID) (any, error) {
	var (
		inst any
		err  error
	)
	switch {
	case lc.Container != nil && lc.Container.Has(id):
		inst, err = lc.Container.Get(id)
	case lc.Registry != nil:
		inst, err = lc.Registry.New(id)
	default:
		err = fmt.Errorf("no registry to create %q with", id)
	}
	if err != nil {
		return nil, err
	}
	if aware, ok := inst.(ContextAware); ok && lc.Config != nil {
		aware.SetContext(lc.Config)
	}
	return inst, nil
}

// TypeIDOf returns the identifier of v, or its qualified type name when no
// registry is configured.
func (lc *LoadContext) TypeIDOf(v any) types.TypeID {
	if lc.Registry != nil {
		return lc.Registry.TypeIDOf(v)
	}
	typ := reflect.TypeOf(v)
	for typ != nil && typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	if typ == nil {
		return ""
	}
	return types.TypeID(typ.String())
}

// implements reports whether the registered type id implements at least one
// of capabilities.
func (lc *LoadContext) implements(id types.TypeID, capabilities []types.TypeID) bool {
	typ, ok := lc.typeOf(id)
	if !ok {
		return false
	}
	return lc.typeImplements(typ, capabilities)
}

func (lc *LoadContext) typeImplements(typ reflect.Type, capabilities []types.TypeID) bool {
	if lc.Registry == nil || typ == nil {
		return false
	}
	for _, c := range capabilities {
		if iface, ok := lc.Registry.Capability(c); ok && typ.Implements(iface) {
			return true
		}
	}
	return false
}

func (lc *LoadContext) typeOf(id types.TypeID) (reflect.Type, bool) {
	if lc.Registry == nil {
		return nil, false
	}
	return lc.Registry.Type(id)
}
