// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"io"
	"slices"

	"github.com/charmbracelet/log"

	"github.com/cfgweave/cfgweave/internal/dag"
	"github.com/cfgweave/cfgweave/pkg/types"
)

// ApplyHandlerOverrides folds every handler that is overridden into the
// handler overriding it.
//
// Override targets that are not among defs are dropped, and a definition left
// without targets is discarded. Overriders are ordered after their targets so
// that chains of overrides fold from the bottom up. A folded target donates
// its list fields (target entries first) and its AllowOverride flag, is
// removed from the result, and every Before/After reference to it is
// rewritten to the handler that absorbed it.
func ApplyHandlerOverrides(defs []*HandlerDefinition, logger *log.Logger) ([]*HandlerDefinition, error) {
	if logger == nil {
		logger = log.New(io.Discard)
	}

	keys := make([]types.TypeID, 0, len(defs))
	byKey := make(map[types.TypeID]*HandlerDefinition, len(defs))
	for _, d := range defs {
		keys = append(keys, d.Key)
		byKey[d.Key] = d
	}

	sorter := dag.NewSorter(keys)
	discarded := make(map[types.TypeID]bool)
	for _, d := range defs {
		if len(d.Overrides) == 0 {
			continue
		}
		known := slices.DeleteFunc(slices.Clone(d.Overrides), func(t types.TypeID) bool {
			_, ok := byKey[t]
			if !ok {
				logger.Debug("Ignoring unknown override target", "handler", d.Key, "target", t)
			}
			return !ok || t == d.Key
		})
		d.Overrides = known
		if len(known) == 0 {
			logger.Debug("Discarding handler without override targets", "handler", d.Key)
			discarded[d.Key] = true
			continue
		}
		for _, t := range known {
			sorter.MoveAfter(d.Key, t)
		}
	}

	sorted, err := sorter.Sort()
	if err != nil {
		return nil, err
	}

	ordered := make([]*HandlerDefinition, 0, len(sorted))
	present := make(map[types.TypeID]bool, len(sorted))
	for _, key := range sorted {
		if discarded[key] {
			continue
		}
		ordered = append(ordered, byKey[key])
		present[key] = true
	}

	aliases := make(map[types.TypeID]types.TypeID)
	for _, d := range ordered {
		if !present[d.Key] {
			continue
		}
		for _, target := range slices.Clone(d.Overrides) {
			if alias, ok := aliases[target]; ok {
				target = alias
			}
			if target == d.Key || !present[target] {
				continue
			}
			foldDefinition(d, byKey[target])
			delete(present, target)
			logger.Debug("Folded handler override", "handler", d.Key, "target", target)

			aliases[target] = d.Key
			for k, v := range aliases {
				if v == target {
					aliases[k] = d.Key
				}
			}
		}
	}

	out := make([]*HandlerDefinition, 0, len(present))
	for _, d := range ordered {
		if !present[d.Key] {
			continue
		}
		d.Before = rewriteAliases(d.Before, aliases)
		d.After = rewriteAliases(d.After, aliases)
		out = append(out, d)
	}
	return out, nil
}

// SortHandlerDefinitions orders defs by their Before and After declarations,
// keeping the given order where no constraint applies.
func SortHandlerDefinitions(defs []*HandlerDefinition) ([]*HandlerDefinition, error) {
	keys := make([]types.TypeID, 0, len(defs))
	byKey := make(map[types.TypeID]*HandlerDefinition, len(defs))
	for _, d := range defs {
		keys = append(keys, d.Key)
		byKey[d.Key] = d
	}

	sorter := dag.NewSorter(keys)
	for _, d := range defs {
		for _, other := range d.After {
			sorter.MoveAfter(d.Key, other)
		}
		for _, other := range d.Before {
			sorter.MoveBefore(d.Key, other)
		}
	}
	sorted, err := sorter.Sort()
	if err != nil {
		return nil, err
	}

	out := make([]*HandlerDefinition, 0, len(sorted))
	for _, key := range sorted {
		out = append(out, byKey[key])
	}
	return out, nil
}

func foldDefinition(into, target *HandlerDefinition) {
	into.AllowOverride = into.AllowOverride && target.AllowOverride
	into.Interfaces = union(target.Interfaces, into.Interfaces)
	into.Locations = union(target.Locations, into.Locations)
	into.OverrideLocations = union(target.OverrideLocations, into.OverrideLocations)
	into.Overrides = union(target.Overrides, into.Overrides)
	into.Before = union(target.Before, into.Before)
	into.After = union(target.After, into.After)
}

func rewriteAliases(keys []types.TypeID, aliases map[types.TypeID]types.TypeID) []types.TypeID {
	out := make([]types.TypeID, 0, len(keys))
	for _, k := range keys {
		if alias, ok := aliases[k]; ok {
			k = alias
		}
		out = append(out, k)
	}
	return union(out)
}

// union concatenates lists, keeping the first occurrence of every item.
func union[T comparable](lists ...[]T) []T {
	var out []T
	seen := make(map[T]bool)
	for _, list := range lists {
		for _, item := range list {
			if seen[item] {
				continue
			}
			seen[item] = true
			out = append(out, item)
		}
	}
	return out
}
