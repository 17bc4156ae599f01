// SPDX-License-Identifier: MPL-2.0

// Package state implements the hierarchical key-value store populated while
// configuration is loaded.
//
// Values are addressed by dot separated paths that are implicitly prefixed by
// the active namespace. Compound values are map[string]any; lists are []any.
// Other maps with string keys, slices and arrays are converted on write, so a
// map[string]int is stored as map[string]any. Byte slices stay leaves.
// Watchers registered on a path are notified synchronously after every write
// that touches the path, one of its ancestors, or one of its descendants.
//
// A State is not safe for concurrent use; a load owns its state exclusively.
package state

import (
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/cfgweave/cfgweave/pkg/types"
)

// Unset is the sentinel value that removes a key when states are merged.
const Unset = "__UNSET"

// State is a namespaced, watchable configuration tree.
type State struct {
	data      map[string]any
	namespace string
	watchers  map[string][]watcherEntry
}

// New creates a State seeded with a deep copy of initial.
func New(initial map[string]any) *State {
	data, _ := cloneValue(initial).(map[string]any)
	if data == nil {
		data = make(map[string]any)
	}
	return &State{
		data:     data,
		watchers: make(map[string][]watcherEntry),
	}
}

// Namespace returns the namespace relative paths are currently resolved in.
func (s *State) Namespace() string { return s.namespace }

// UseNamespace runs fn with namespace as the active namespace and restores the
// previous one afterwards, including when fn fails or panics. The namespace is
// absolute: an empty namespace gives fn access to the root of the tree.
func (s *State) UseNamespace(namespace string, fn func() error) error {
	previous := s.namespace
	s.namespace = strings.Join(types.SplitPath(namespace), ".")
	defer func() { s.namespace = previous }()
	return fn()
}

// Has reports whether a value is stored at path.
func (s *State) Has(path string) bool {
	_, ok := lookup(s.data, s.parts(path))
	return ok
}

// Get returns a copy of the value stored at path, or fallback when any
// segment of the path does not exist.
func (s *State) Get(path string, fallback any) any {
	if v, ok := lookup(s.data, s.parts(path)); ok {
		return cloneValue(v)
	}
	return fallback
}

// GetAll returns a deep copy of the whole tree, ignoring the namespace.
func (s *State) GetAll() map[string]any {
	out, _ := cloneValue(s.data).(map[string]any)
	return out
}

// Set stores value at path. Scalar values found on the way are replaced by
// maps so the write can proceed.
func (s *State) Set(path string, value any) {
	touched := newTouchSet()
	s.set(s.parts(path), value, touched)
	s.notify(touched)
}

// SetMultiple stores every path/value pair and notifies watchers once for the
// whole batch. Pairs are applied in lexical path order.
func (s *State) SetMultiple(values map[string]any) {
	touched := newTouchSet()
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		s.set(s.parts(k), values[k], touched)
	}
	s.notify(touched)
}

func (s *State) set(parts []string, value any, touched *touchSet) {
	if len(parts) == 0 {
		return
	}
	value = cloneValue(value)
	root, _ := setIn(s.data, parts, value).(map[string]any)
	s.data = root

	for i := range parts {
		touched.add(strings.Join(parts[:i+1], "."))
	}
	if isContainer(value) {
		full := strings.Join(parts, ".")
		for _, sub := range flattenPaths(value) {
			touched.add(full + "." + sub)
		}
	}
}

// parts resolves path against the active namespace.
func (s *State) parts(path string) []string {
	return append(types.SplitPath(s.namespace), types.SplitPath(path)...)
}

func lookup(node any, parts []string) (any, bool) {
	for _, p := range parts {
		switch n := node.(type) {
		case map[string]any:
			v, ok := n[p]
			if !ok {
				return nil, false
			}
			node = v
		case []any:
			idx, ok := listIndex(p, len(n)-1)
			if !ok {
				return nil, false
			}
			node = n[idx]
		default:
			return nil, false
		}
	}
	return node, true
}

func setIn(node any, parts []string, value any) any {
	if len(parts) == 0 {
		return value
	}
	switch n := node.(type) {
	case map[string]any:
		n[parts[0]] = setIn(n[parts[0]], parts[1:], value)
		return n
	case []any:
		if idx, ok := listIndex(parts[0], len(n)); ok {
			if idx == len(n) {
				n = append(n, nil)
			}
			n[idx] = setIn(n[idx], parts[1:], value)
			return n
		}
	}
	return map[string]any{parts[0]: setIn(nil, parts[1:], value)}
}

// listIndex parses p as a list index in the range [0, maxIndex].
func listIndex(p string, maxIndex int) (int, bool) {
	idx, err := strconv.Atoi(p)
	if err != nil || idx < 0 || idx > maxIndex {
		return 0, false
	}
	return idx, true
}

func isContainer(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	}
	return false
}

// CloneTree returns a deep copy of a tree of maps and lists, converted like
// written values. Leaf values are copied shallowly.
func CloneTree(tree map[string]any) map[string]any {
	if tree == nil {
		return nil
	}
	out, _ := cloneValue(tree).(map[string]any)
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case nil, []byte:
		return v
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.IsNil() || rv.Type().Key().Kind() != reflect.String {
			return v
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = cloneValue(iter.Value().Interface())
		}
		return out
	case reflect.Slice:
		if rv.IsNil() {
			return v
		}
		return cloneList(rv)
	case reflect.Array:
		return cloneList(rv)
	}
	return v
}

func cloneList(rv reflect.Value) []any {
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = cloneValue(rv.Index(i).Interface())
	}
	return out
}

// flattenPaths lists every path below a compound value, intermediate nodes
// included, in a stable order.
func flattenPaths(v any) []string {
	var out []string
	var walk func(prefix string, node any)
	walk = func(prefix string, node any) {
		join := func(k string) string {
			if prefix == "" {
				return k
			}
			return prefix + "." + k
		}
		switch n := node.(type) {
		case map[string]any:
			keys := make([]string, 0, len(n))
			for k := range n {
				keys = append(keys, k)
			}
			slices.Sort(keys)
			for _, k := range keys {
				out = append(out, join(k))
				walk(join(k), n[k])
			}
		case []any:
			for i, item := range n {
				k := strconv.Itoa(i)
				out = append(out, join(k))
				walk(join(k), item)
			}
		}
	}
	walk("", v)
	return out
}
