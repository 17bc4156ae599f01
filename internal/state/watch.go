// SPDX-License-Identifier: MPL-2.0

package state

import (
	"strings"
	"sync/atomic"

	"github.com/cfgweave/cfgweave/pkg/types"
)

var watcherSeq atomic.Uint64

type (
	// Watcher receives the current value at the path it was registered for.
	Watcher func(value any)

	// WatcherID identifies a registered watcher. IDs are unique across all
	// states so that watchers survive MergeWith without colliding.
	WatcherID uint64

	watcherEntry struct {
		id WatcherID
		fn Watcher
	}

	// touchSet collects the paths written by a single operation.
	touchSet struct {
		order []string
		seen  map[string]bool
	}
)

func newTouchSet() *touchSet {
	return &touchSet{seen: make(map[string]bool)}
}

func (t *touchSet) add(path string) {
	if t.seen[path] {
		return
	}
	t.seen[path] = true
	t.order = append(t.order, path)
}

// AddWatcher registers fn for path, resolved against the active namespace.
func (s *State) AddWatcher(path string, fn Watcher) WatcherID {
	id := WatcherID(watcherSeq.Add(1))
	key := strings.Join(s.parts(path), ".")
	s.watchers[key] = append(s.watchers[key], watcherEntry{id: id, fn: fn})
	return id
}

// RemoveWatcher removes the watcher from every path it was registered for.
func (s *State) RemoveWatcher(id WatcherID) {
	for path, entries := range s.watchers {
		kept := entries[:0]
		for _, e := range entries {
			if e.id != id {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			delete(s.watchers, path)
			continue
		}
		s.watchers[path] = kept
	}
}

func (s *State) notify(touched *touchSet) {
	if len(s.watchers) == 0 {
		return
	}
	for _, path := range touched.order {
		entries := s.watchers[path]
		if len(entries) == 0 {
			continue
		}
		value, _ := lookup(s.data, types.SplitPath(path))
		for _, e := range append([]watcherEntry(nil), entries...) {
			e.fn(cloneValue(value))
		}
	}
}

func (s *State) copyWatchersFrom(others ...*State) {
	for _, other := range others {
		for path, entries := range other.watchers {
			s.watchers[path] = append(s.watchers[path], entries...)
		}
	}
}
