// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/cfgweave/cfgweave/pkg/types"
)

// ErrUnknownType is returned when an identifier has no registered factory.
var ErrUnknownType = errors.New("type is not registered")

// Default is the process wide registry used by the CLI. Packages register
// their types during initialization.
var Default = New()

type (
	// Factory creates a fresh instance of a registered type.
	Factory func() any

	// Registry maps type identifiers to factories and capability interfaces.
	// It is safe for concurrent use.
	Registry struct {
		mu           sync.RWMutex
		types        map[types.TypeID]entry
		byType       map[reflect.Type]types.TypeID
		capabilities map[types.TypeID]reflect.Type
	}

	entry struct {
		typ     reflect.Type
		factory Factory
	}

	// UnknownTypeError names the identifier that could not be resolved.
	UnknownTypeError struct {
		ID types.TypeID
	}
)

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		types:        make(map[types.TypeID]entry),
		byType:       make(map[reflect.Type]types.TypeID),
		capabilities: make(map[types.TypeID]reflect.Type),
	}
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("type %q is not registered", e.ID)
}

func (e *UnknownTypeError) Unwrap() error { return ErrUnknownType }

// Register registers *T under id with a factory returning new(T). Pointer
// receivers are the norm for handlers, so the registered type is *T.
func Register[T any](r *Registry, id types.TypeID) {
	r.RegisterFactory(id, reflect.TypeFor[*T](), func() any { return new(T) })
}

// RegisterFactory registers typ under id. typ is the dynamic type of the
// values factory returns.
// Panics on an invalid identifier or a duplicate registration.
func (r *Registry) RegisterFactory(id types.TypeID, typ reflect.Type, factory Factory) {
	mustBeValid(id)
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.types[id]; exists {
		panic(fmt.Sprintf("registry: type %q already registered", id))
	}
	r.types[id] = entry{typ: typ, factory: factory}
	r.byType[typ] = id
}

// RegisterCapability registers the interface I under id.
// Panics if I is not an interface type or id is taken.
func RegisterCapability[I any](r *Registry, id types.TypeID) {
	typ := reflect.TypeFor[I]()
	if typ.Kind() != reflect.Interface {
		panic(fmt.Sprintf("registry: capability %q must be an interface, got %s", id, typ))
	}
	mustBeValid(id)
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.capabilities[id]; exists {
		panic(fmt.Sprintf("registry: capability %q already registered", id))
	}
	r.capabilities[id] = typ
}

// Has reports whether id has a factory.
func (r *Registry) Has(id types.TypeID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.types[id]
	return ok
}

// New creates a fresh instance of the type registered under id.
func (r *Registry) New(id types.TypeID) (any, error) {
	r.mu.RLock()
	e, ok := r.types[id]
	r.mu.RUnlock()

	if !ok {
		return nil, &UnknownTypeError{ID: id}
	}
	return e.factory(), nil
}

// Type returns the dynamic type registered under id.
func (r *Registry) Type(id types.TypeID) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.types[id]
	return e.typ, ok
}

// Capability returns the interface type registered under id.
func (r *Registry) Capability(id types.TypeID) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	typ, ok := r.capabilities[id]
	return typ, ok
}

// Implements reports whether the type registered under id implements at least
// one of the given capabilities. Unknown capabilities never match.
func (r *Registry) Implements(id types.TypeID, capabilities ...types.TypeID) bool {
	typ, ok := r.Type(id)
	if !ok {
		return false
	}
	for _, c := range capabilities {
		if iface, ok := r.Capability(c); ok && typ.Implements(iface) {
			return true
		}
	}
	return false
}

// TypeIDOf returns the identifier v was registered under. Unregistered values
// are identified by their package qualified type name without pointer marks.
func (r *Registry) TypeIDOf(v any) types.TypeID {
	typ := reflect.TypeOf(v)
	if typ == nil {
		return ""
	}
	r.mu.RLock()
	id, ok := r.byType[typ]
	r.mu.RUnlock()

	if ok {
		return id
	}
	return types.TypeID(strings.TrimLeft(typ.String(), "*"))
}

// IDs returns all registered type identifiers in sorted order.
func (r *Registry) IDs() []types.TypeID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]types.TypeID, 0, len(r.types))
	for id := range r.types {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func mustBeValid(id types.TypeID) {
	if ok, errs := id.IsValid(); !ok {
		panic(fmt.Sprintf("registry: %v", errors.Join(errs...)))
	}
}
