// SPDX-License-Identifier: MPL-2.0

package dag

import "slices"

// Sorter reorders a list according to "move after" and "move before"
// instructions while disturbing the original order as little as possible.
//
// Instructions naming an item or pivot that is not part of the list are
// ignored. When no instruction was recorded, Sort returns the list unchanged.
type Sorter[K ~string] struct {
	list   []K
	order  map[K][]K
	pivots map[K]bool
}

// NewSorter creates a Sorter over a copy of list.
func NewSorter[K ~string](list []K) *Sorter[K] {
	return &Sorter[K]{
		list:   slices.Clone(list),
		order:  make(map[K][]K),
		pivots: make(map[K]bool),
	}
}

// MoveAfter requests that item is positioned after pivot.
func (s *Sorter[K]) MoveAfter(item, pivot K) *Sorter[K] {
	if !s.knows(item, pivot) {
		return s
	}
	s.pivots[pivot] = true
	s.order[item] = append(s.order[item], pivot)
	return s
}

// MoveBefore requests that item is positioned before pivot.
func (s *Sorter[K]) MoveBefore(item, pivot K) *Sorter[K] {
	if !s.knows(item, pivot) {
		return s
	}
	s.pivots[pivot] = true
	s.order[pivot] = append(s.order[pivot], item)
	return s
}

func (s *Sorter[K]) knows(item, pivot K) bool {
	return slices.Contains(s.list, item) && slices.Contains(s.list, pivot)
}

// Sort returns the reordered list. A cycle between instructions is reported
// as *CycleError.
func (s *Sorter[K]) Sort() ([]K, error) {
	if len(s.order) == 0 {
		return slices.Clone(s.list), nil
	}

	graph := New[K]()
	for _, item := range s.list {
		graph.AddNode(item)
	}
	for item, deps := range s.order {
		for _, dep := range deps {
			graph.adjacency[item] = append(graph.adjacency[item], dep)
		}
	}

	sorted := slices.Clone(s.list)
	n := len(sorted)

passes:
	for range n {
		for i := range n {
			for j := range i {
				if !graph.HasDirectDependency(sorted[j], sorted[i]) {
					continue
				}

				jOnI, err := graph.HasTransitiveDependency(sorted[j], sorted[i])
				if err != nil {
					return nil, err
				}
				iOnJ, err := graph.HasTransitiveDependency(sorted[i], sorted[j])
				if err != nil {
					return nil, err
				}
				if jOnI && iOnJ {
					continue
				}

				from, to := j, i
				if s.pivots[sorted[j]] {
					from, to = i, j
				}

				moving := sorted[from]
				sorted = slices.Delete(sorted, from, from+1)
				sorted = slices.Insert(sorted, to, moving)
				continue passes
			}
		}
		break
	}

	return sorted, nil
}
