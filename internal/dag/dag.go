// SPDX-License-Identifier: MPL-2.0

// Package dag provides the dependency graph and the order preserving
// topological sorter used to arrange handlers and configuration types.
//
// The sorter only ever relocates the item named as the mover of a before/after
// constraint; the pivot it is positioned against stays where it is. That keeps
// the discovery order intact for every item no constraint mentions.
package dag

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrCyclicDependency is the sentinel error wrapped by CycleError.
var ErrCyclicDependency = errors.New("cyclic dependency")

type (
	// CycleError indicates that the graph contains a cycle. Cycle holds the
	// path that was being resolved, ending with the key that closed the loop.
	CycleError struct {
		Cycle []string
	}

	// Graph is an adjacency structure over sortable keys. An edge from A to B
	// means "A depends on B". Transitive lookups are memoised for the lifetime
	// of the graph, which is expected to be a single sort.
	Graph[K ~string] struct {
		adjacency map[K][]K
		resolved  map[K][]K
	}
)

func (e *CycleError) Error() string {
	return fmt.Sprintf("Found a cyclic dependency in: %s", strings.Join(e.Cycle, " -> "))
}

// Unwrap returns ErrCyclicDependency for errors.Is() compatibility.
func (e *CycleError) Unwrap() error { return ErrCyclicDependency }

// New creates an empty Graph.
func New[K ~string]() *Graph[K] {
	return &Graph[K]{
		adjacency: make(map[K][]K),
		resolved:  make(map[K][]K),
	}
}

// AddNode adds a node without dependencies. Existing nodes are left untouched.
func (g *Graph[K]) AddNode(key K) {
	if _, ok := g.adjacency[key]; !ok {
		g.adjacency[key] = nil
	}
}

// AddEdge records that "from" depends on "to". Both nodes are added implicitly.
func (g *Graph[K]) AddEdge(from, to K) {
	g.AddNode(to)
	g.adjacency[from] = append(g.adjacency[from], to)
	clear(g.resolved)
}

// HasDirectDependency reports whether a lists b among its direct dependencies.
func (g *Graph[K]) HasDirectDependency(a, b K) bool {
	return slices.Contains(g.adjacency[a], b)
}

// HasTransitiveDependency reports whether b is reachable from a. A cycle met
// on the way is returned as *CycleError rather than being truncated.
func (g *Graph[K]) HasTransitiveDependency(a, b K) (bool, error) {
	deps, err := g.resolve(a, nil)
	if err != nil {
		return false, err
	}
	return slices.Contains(deps, b), nil
}

func (g *Graph[K]) resolve(key K, path []K) ([]K, error) {
	if deps, ok := g.resolved[key]; ok {
		return deps, nil
	}

	var deps []K
	for _, dep := range g.adjacency[key] {
		if slices.Contains(path, dep) {
			cycle := make([]string, 0, len(path)+1)
			for _, p := range path {
				cycle = append(cycle, string(p))
			}
			return nil, &CycleError{Cycle: append(cycle, string(dep))}
		}

		sub, err := g.resolve(dep, append(slices.Clone(path), dep))
		if err != nil {
			return nil, err
		}
		deps = appendUnique(deps, dep)
		deps = appendUnique(deps, sub...)
	}

	g.resolved[key] = deps
	return deps, nil
}

func appendUnique[K comparable](list []K, items ...K) []K {
	for _, item := range items {
		if !slices.Contains(list, item) {
			list = append(list, item)
		}
	}
	return list
}
