// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"reflect"
	"slices"

	"github.com/cfgweave/cfgweave/pkg/types"
)

type (
	// HandlerFinder builds the ordered handler definitions of a load.
	HandlerFinder interface {
		Find(ctx context.Context, lc *LoadContext) ([]*HandlerDefinition, error)
	}

	// DefaultHandlerFinder uses the registered handler instances and the
	// handlers declared in the handler locations.
	DefaultHandlerFinder struct{}

	// FilteredHandlerFinder is a DefaultHandlerFinder that drops handlers by
	// the capabilities they implement. The filter runs before overrides are
	// resolved.
	FilteredHandlerFinder struct {
		ignore []types.TypeID
		allow  []types.TypeID
	}
)

// Find implements HandlerFinder.
func (DefaultHandlerFinder) Find(ctx context.Context, lc *LoadContext) ([]*HandlerDefinition, error) {
	return findHandlers(ctx, lc, nil)
}

// NewFilteredHandlerFinder creates a finder that drops handlers implementing
// any capability in ignore and, when allow is not empty, handlers that
// implement none of allow.
func NewFilteredHandlerFinder(ignore, allow []types.TypeID) (*FilteredHandlerFinder, error) {
	var conflicts []types.TypeID
	for _, c := range ignore {
		if slices.Contains(allow, c) && !slices.Contains(conflicts, c) {
			conflicts = append(conflicts, c)
		}
	}
	if len(conflicts) > 0 {
		return nil, &FilterConflictError{Capabilities: conflicts}
	}
	return &FilteredHandlerFinder{ignore: slices.Clone(ignore), allow: slices.Clone(allow)}, nil
}

// Find implements HandlerFinder.
func (f *FilteredHandlerFinder) Find(ctx context.Context, lc *LoadContext) ([]*HandlerDefinition, error) {
	return findHandlers(ctx, lc, f.keep)
}

func (f *FilteredHandlerFinder) keep(lc *LoadContext, def *HandlerDefinition) bool {
	var v any = def.Handler
	if w, ok := v.(Wrapper); ok {
		v = w.Unwrap()
	}
	typ := reflect.TypeOf(v)
	if len(f.ignore) > 0 && lc.typeImplements(typ, f.ignore) {
		return false
	}
	if len(f.allow) > 0 && !lc.typeImplements(typ, f.allow) {
		return false
	}
	return true
}

func findHandlers(
	ctx context.Context,
	lc *LoadContext,
	keep func(*LoadContext, *HandlerDefinition) bool,
) ([]*HandlerDefinition, error) {
	logger := lc.Log("handlers")

	defs, err := findHandlerDefinitions(ctx, lc)
	if err != nil {
		return nil, err
	}
	if keep != nil {
		defs = slices.DeleteFunc(defs, func(d *HandlerDefinition) bool {
			if keep(lc, d) {
				return false
			}
			logger.Debug("Filtered handler", "handler", d.Key)
			return true
		})
	}

	defs, err = ApplyHandlerOverrides(defs, logger)
	if err != nil {
		return nil, fmt.Errorf("resolve handler overrides: %w", err)
	}
	defs, err = SortHandlerDefinitions(defs)
	if err != nil {
		return nil, fmt.Errorf("sort handlers: %w", err)
	}

	ev := &ConfigHandlerFilterEvent{LoadContext: lc, Handlers: defs}
	lc.Dispatch(ev)
	logger.Debug("Found handlers", "count", len(ev.Handlers))
	return ev.Handlers, nil
}

func findHandlerDefinitions(ctx context.Context, lc *LoadContext) ([]*HandlerDefinition, error) {
	var defs []*HandlerDefinition
	known := make(map[types.TypeID]bool)

	add := func(key types.TypeID, h Handler) error {
		def := NewHandlerDefinition(key, h)
		c := NewConfigurator(def)
		h.Configure(c)
		if err := c.Err(); err != nil {
			return fmt.Errorf("configure handler %s: %w", key, err)
		}
		defs = append(defs, def)
		known[key] = true
		return nil
	}

	for _, h := range lc.Handlers {
		key := HandlerKey(lc, h)
		if known[key] {
			return nil, &DuplicateHandlerError{Key: key}
		}
		if err := add(key, h); err != nil {
			return nil, err
		}
	}

	ids, err := findHandlerTypes(ctx, lc)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if known[id] {
			continue
		}
		inst, err := lc.Instance(id)
		if err != nil {
			return nil, fmt.Errorf("instantiate handler %s: %w", id, err)
		}
		h, ok := asHandler(inst)
		if !ok {
			return nil, &UnloadableTypeError{Kind: KindHandler, ID: id}
		}
		if err := add(id, h); err != nil {
			return nil, err
		}
	}
	return defs, nil
}

// findHandlerTypes scans the handler locations for handler types.
func findHandlerTypes(ctx context.Context, lc *LoadContext) ([]types.TypeID, error) {
	if lc.Scanner == nil || len(lc.HandlerLocations) == 0 {
		return nil, nil
	}

	var ids []types.TypeID
	scanned := make(map[string]bool)
	for _, pattern := range handlerPatterns(lc) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entries, err := lc.Scanner.Glob(pattern)
		if err != nil {
			return nil, err
		}
		for _, dir := range entryDirs(entries) {
			if scanned[dir] {
				continue
			}
			scanned[dir] = true

			decls, err := lc.Scanner.Scan(dir)
			if err != nil {
				return nil, err
			}
			for _, decl := range decls {
				if decl.Kind.Abstract() {
					continue
				}
				typ, ok := lc.typeOf(decl.ID)
				if !ok {
					return nil, &UnloadableTypeError{Kind: KindHandler, ID: decl.ID, File: decl.File}
				}
				if isHandlerType(typ) && !slices.Contains(ids, decl.ID) {
					ids = append(ids, decl.ID)
				}
			}
		}
	}
	return ids, nil
}

// handlerPatterns resolves the handler locations against the roots. An
// absolute location is also used on its own.
func handlerPatterns(lc *LoadContext) []string {
	var patterns []string
	for _, loc := range lc.HandlerLocations {
		if filepath.IsAbs(loc) {
			patterns = append(patterns, loc)
		}
		for _, root := range lc.Roots {
			patterns = append(patterns, filepath.Join(root.Path, loc))
		}
	}
	return patterns
}
