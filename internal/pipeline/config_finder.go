// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/cfgweave/cfgweave/internal/scanner"
	"github.com/cfgweave/cfgweave/pkg/types"
)

type (
	// ConfigFinder resolves the config types a handler processes.
	ConfigFinder interface {
		Find(ctx context.Context, def *HandlerDefinition, cc ConfigContext) (*ConfigDefinition, error)
	}

	// DefaultConfigFinder scans the handler locations below every root.
	DefaultConfigFinder struct{}

	// configScan collects declarations and their namespaces for one handler.
	configScan struct {
		lc         *LoadContext
		namespaces map[types.TypeID]string
		// scanned is shared by all roots of one handler location.
		scanned map[string]bool
	}
)

// Find implements ConfigFinder.
//
// Config types are collected in this order: the default config types of the
// handler, then for every handler location and every root the types below
// root/location. Types found below an override location are moved to the
// end of the list. Only registered types implementing one of the handler
// capabilities are kept; the modifiers then rewrite the list.
func (DefaultConfigFinder) Find(ctx context.Context, def *HandlerDefinition, cc ConfigContext) (*ConfigDefinition, error) {
	lc := cc.LoadContext()
	logger := lc.Log("configs")

	s := &configScan{lc: lc, namespaces: make(map[types.TypeID]string)}
	var found, overrides []scanner.Declaration
	for _, dc := range def.DefaultConfigClasses {
		found = append(found, scanner.Declaration{ID: dc.ID, Kind: scanner.KindStruct})
		s.namespaces[dc.ID] = dc.Namespace
	}

	for _, location := range def.Locations {
		s.scanned = make(map[string]bool)
		for _, root := range lc.Roots {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			path := filepath.Join(root.Path, location)
			decls, err := s.scan(root, path)
			if err != nil {
				return nil, err
			}
			found = append(found, decls...)

			for _, o := range def.overrideLocations() {
				decls, err := s.scan(root, filepath.Join(path, o))
				if err != nil {
					return nil, err
				}
				overrides = append(overrides, decls...)
			}
		}
	}

	classes, err := s.filter(def, found)
	if err != nil {
		return nil, err
	}
	overrideClasses, err := s.filter(def, overrides)
	if err != nil {
		return nil, err
	}
	overrideClasses = union(overrideClasses)
	classes = union(slices.DeleteFunc(classes, func(id types.TypeID) bool {
		return slices.Contains(overrideClasses, id)
	}), overrideClasses)

	mc := NewModifierContext(def, cc, classes, overrideClasses, restrictNamespaces(s.namespaces, classes, def.Key))
	for _, m := range lc.Modifiers {
		if err := m.Apply(mc); err != nil {
			return nil, fmt.Errorf("modifier %s on handler %s: %w", m.Key(), def.Key, err)
		}
	}

	ev := &ConfigDefinitionFilterEvent{
		Handler:               def,
		Context:               cc,
		ConfigClasses:         mc.ConfigClasses,
		OverrideConfigClasses: mc.OverrideConfigClasses,
		ClassNamespaces:       mc.ClassNamespaces,
	}
	lc.Dispatch(ev)

	classes = ev.ConfigClasses
	overrideClasses = slices.DeleteFunc(slices.Clone(ev.OverrideConfigClasses), func(id types.TypeID) bool {
		return !slices.Contains(classes, id)
	})
	logger.Debug("Found config types", "handler", ev.Handler.Key, "count", len(classes), "overrides", len(overrideClasses))

	return NewConfigDefinition(
		ev.Handler,
		ev.Context,
		classes,
		overrideClasses,
		restrictNamespaces(ev.ClassNamespaces, classes, ev.Handler.Key),
	), nil
}

// scan returns the declarations below every match of pattern. Directories
// already scanned for the current location are skipped.
func (s *configScan) scan(root RootLocation, pattern string) ([]scanner.Declaration, error) {
	if s.lc.Scanner == nil {
		return nil, nil
	}
	entries, err := s.lc.Scanner.Glob(pattern)
	if err != nil {
		return nil, err
	}

	var out []scanner.Declaration
	for _, dir := range entryDirs(entries) {
		if s.scanned[dir] {
			continue
		}
		s.scanned[dir] = true

		decls, err := s.lc.Scanner.Scan(dir)
		if err != nil {
			return nil, err
		}
		for _, decl := range decls {
			s.namespaces[decl.ID] = root.NamespaceFor(decl.ID, decl.File)
		}
		out = append(out, decls...)
	}
	return out, nil
}

// filter keeps the registered declarations implementing at least one of the
// handler capabilities.
func (s *configScan) filter(def *HandlerDefinition, decls []scanner.Declaration) ([]types.TypeID, error) {
	var out []types.TypeID
	for _, decl := range decls {
		if decl.Kind.Abstract() {
			continue
		}
		if _, ok := s.lc.typeOf(decl.ID); !ok {
			return nil, &UnloadableTypeError{Kind: KindConfig, ID: decl.ID, File: decl.File}
		}
		if s.lc.implements(decl.ID, def.Interfaces) {
			out = append(out, decl.ID)
		}
	}
	return out, nil
}

// entryDirs returns the directories of glob matches; a file stands for its
// parent directory.
func entryDirs(entries []scanner.Entry) []string {
	var dirs []string
	for _, e := range entries {
		dir := e.Path
		if !e.Dir {
			dir = filepath.Dir(e.Path)
		}
		if !slices.Contains(dirs, dir) {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

// restrictNamespaces returns the namespaces of classes. Classes without a
// namespace are assigned to fallback.
func restrictNamespaces(namespaces map[types.TypeID]string, classes []types.TypeID, fallback types.TypeID) map[types.TypeID]string {
	out := make(map[types.TypeID]string, len(classes))
	for _, id := range classes {
		ns, ok := namespaces[id]
		if !ok {
			ns = fallback.String()
		}
		out[id] = ns
	}
	return out
}
