// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/cfgweave/cfgweave/internal/state"
	"github.com/cfgweave/cfgweave/pkg/types"
)

// ErrAmbiguousHandler is returned when a cached definition matches more than
// one registered handler instance.
var ErrAmbiguousHandler = errors.New("ambiguous handler")

type (
	// ConfigDefinition binds a handler to the ordered config types it
	// processes.
	ConfigDefinition struct {
		Handler *HandlerDefinition

		// ConfigClasses is the processing order.
		ConfigClasses []types.TypeID
		// OverrideConfigClasses are the members of ConfigClasses found in an
		// override location.
		OverrideConfigClasses []types.TypeID
		// ClassNamespaces maps every member of ConfigClasses to its namespace.
		ClassNamespaces map[types.TypeID]string

		ctx ConfigContext
	}

	// DehydratedHandler is the cacheable form of a HandlerDefinition.
	DehydratedHandler struct {
		Key                  types.TypeID         `json:"key"`
		HandlerType          types.TypeID         `json:"handlerType"`
		AllowOverride        bool                 `json:"allowOverride"`
		OverrideLocations    []string             `json:"overrideLocations"`
		Locations            []string             `json:"locations"`
		Interfaces           []types.TypeID       `json:"interfaces"`
		Overrides            []types.TypeID       `json:"overrides"`
		Before               []types.TypeID       `json:"before"`
		After                []types.TypeID       `json:"after"`
		DefaultState         map[string]any       `json:"defaultState"`
		DefaultConfigClasses []DefaultConfigClass `json:"defaultConfigClasses"`
	}

	// DehydratedDefinition is the cacheable form of a ConfigDefinition.
	DehydratedDefinition struct {
		Handler               DehydratedHandler       `json:"handler"`
		ConfigClasses         []types.TypeID          `json:"configClasses"`
		OverrideConfigClasses []types.TypeID          `json:"overrideConfigClasses"`
		ClassNamespaces       map[types.TypeID]string `json:"classNamespaces"`
	}

	// AmbiguousHandlerError names a cached handler type that matches several
	// registered instances.
	AmbiguousHandlerError struct {
		HandlerType types.TypeID
		Matches     int
	}
)

func (e *AmbiguousHandlerError) Error() string {
	return fmt.Sprintf("handler type %q matches %d registered handlers", e.HandlerType, e.Matches)
}

// Unwrap returns ErrAmbiguousHandler for errors.Is() compatibility.
func (e *AmbiguousHandlerError) Unwrap() error { return ErrAmbiguousHandler }

// NewConfigDefinition creates a definition processed against ctx.
func NewConfigDefinition(
	handler *HandlerDefinition,
	ctx ConfigContext,
	classes, overrides []types.TypeID,
	namespaces map[types.TypeID]string,
) *ConfigDefinition {
	return &ConfigDefinition{
		Handler:               handler,
		ConfigClasses:         classes,
		OverrideConfigClasses: overrides,
		ClassNamespaces:       namespaces,
		ctx:                   ctx,
	}
}

// Context returns the config context the definition is processed against.
func (d *ConfigDefinition) Context() ConfigContext { return d.ctx }

// IsOverride reports whether id was found in an override location.
func (d *ConfigDefinition) IsOverride(id types.TypeID) bool {
	return slices.Contains(d.OverrideConfigClasses, id)
}

// Process runs the handler over the config types. Handlers without config
// types are only given their context and default state.
func (d *ConfigDefinition) Process(ctx context.Context) error {
	h := d.Handler.Handler
	h.SetContext(d.ctx)
	if aware, ok := h.(DefinitionAware); ok {
		aware.SetDefinition(d)
	}

	if len(d.Handler.DefaultState) > 0 {
		d.ctx.State().SetMultiple(state.CloneTree(d.Handler.DefaultState))
	}
	if len(d.ConfigClasses) == 0 {
		return nil
	}

	if err := h.Prepare(); err != nil {
		return fmt.Errorf("prepare handler %s: %w", d.Handler.Key, err)
	}
	for _, id := range d.ConfigClasses {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := d.ctx.RunWithNamespace(d.ClassNamespaces[id], func() error {
			return h.Handle(id)
		})
		if err != nil {
			return fmt.Errorf("handler %s: config %s: %w", d.Handler.Key, id, err)
		}
	}
	if err := h.Finish(); err != nil {
		return fmt.Errorf("finish handler %s: %w", d.Handler.Key, err)
	}
	return nil
}

// Dehydrate returns the cacheable form of d.
func (d *ConfigDefinition) Dehydrate() DehydratedDefinition {
	hd := d.Handler
	handlerType := hd.Key
	if d.ctx != nil && hd.Handler != nil {
		handlerType = HandlerKey(d.ctx.LoadContext(), hd.Handler)
	}
	return DehydratedDefinition{
		Handler: DehydratedHandler{
			Key:                  hd.Key,
			HandlerType:          handlerType,
			AllowOverride:        hd.AllowOverride,
			OverrideLocations:    slices.Clone(hd.OverrideLocations),
			Locations:            slices.Clone(hd.Locations),
			Interfaces:           slices.Clone(hd.Interfaces),
			Overrides:            slices.Clone(hd.Overrides),
			Before:               slices.Clone(hd.Before),
			After:                slices.Clone(hd.After),
			DefaultState:         state.CloneTree(hd.DefaultState),
			DefaultConfigClasses: slices.Clone(hd.DefaultConfigClasses),
		},
		ConfigClasses:         slices.Clone(d.ConfigClasses),
		OverrideConfigClasses: slices.Clone(d.OverrideConfigClasses),
		ClassNamespaces:       maps.Clone(d.ClassNamespaces),
	}
}

// Hydrate rebuilds a definition from its cached form. The handler is the
// registered instance whose key equals the cached handler type, or a fresh
// instance when none is registered.
func Hydrate(lc *LoadContext, rec DehydratedDefinition) (*ConfigDefinition, error) {
	h, err := hydrateHandler(lc, rec.Handler.HandlerType)
	if err != nil {
		return nil, err
	}

	dh := rec.Handler
	hd := &HandlerDefinition{
		Key:                  dh.Key,
		Handler:              h,
		AllowOverride:        dh.AllowOverride,
		OverrideLocations:    dh.OverrideLocations,
		Locations:            dh.Locations,
		Interfaces:           dh.Interfaces,
		Overrides:            dh.Overrides,
		Before:               dh.Before,
		After:                dh.After,
		DefaultState:         dh.DefaultState,
		DefaultConfigClasses: dh.DefaultConfigClasses,
	}
	namespaces := rec.ClassNamespaces
	if namespaces == nil {
		namespaces = make(map[types.TypeID]string)
	}
	return NewConfigDefinition(hd, lc.Config, rec.ConfigClasses, rec.OverrideConfigClasses, namespaces), nil
}

func hydrateHandler(lc *LoadContext, handlerType types.TypeID) (Handler, error) {
	var matches []Handler
	for _, h := range lc.Handlers {
		if HandlerKey(lc, h) == handlerType {
			matches = append(matches, h)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
	default:
		return nil, &AmbiguousHandlerError{HandlerType: handlerType, Matches: len(matches)}
	}

	if lc.Registry == nil || !lc.Registry.Has(handlerType) {
		if lc.Container == nil || !lc.Container.Has(handlerType) {
			return nil, &UnloadableTypeError{Kind: KindHandler, ID: handlerType}
		}
	}
	inst, err := lc.Instance(handlerType)
	if err != nil {
		return nil, err
	}
	h, ok := asHandler(inst)
	if !ok {
		return nil, &UnloadableTypeError{Kind: KindHandler, ID: handlerType}
	}
	return h, nil
}
