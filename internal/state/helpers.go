// SPDX-License-Identifier: MPL-2.0

package state

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"

	"github.com/vmihailenco/msgpack/v5"
)

// AttachToString appends s to the string stored at path. A non-string value
// at path is replaced. newLine separates the parts with a line break.
func (s *State) AttachToString(path, str string, newLine bool) {
	if str == "" {
		return
	}
	if existing, ok := s.Get(path, nil).(string); ok && existing != "" {
		if newLine {
			existing += "\n"
		}
		str = existing + str
	}
	s.Set(path, str)
}

// AttachToArray appends value to the list stored at path. A map receives the
// value under its next free numeric key; any other value is replaced by a
// new list.
func (s *State) AttachToArray(path string, value any) {
	switch existing := s.Get(path, nil).(type) {
	case []any:
		s.Set(path, append(existing, value))
	case map[string]any:
		next := 0
		for k := range existing {
			if n, err := strconv.Atoi(k); err == nil && n >= next {
				next = n + 1
			}
		}
		existing[strconv.Itoa(next)] = value
		s.Set(path, existing)
	default:
		s.Set(path, []any{value})
	}
}

// MergeIntoArray merges a map or list into the container stored at path using
// the default merge options. An empty value is ignored; a value at path that
// is not a container of the same kind is replaced.
func (s *State) MergeIntoArray(path string, value any) {
	if isEmpty(value) {
		return
	}
	value = cloneValue(value)
	existing := sameKind(cloneValue(s.Get(path, nil)), value)
	if existing == nil {
		s.Set(path, value)
		return
	}
	m := newMerger(MergeOptions{}, newTouchSet())
	s.Set(path, m.walk(existing, value, nil))
}

// SetAsJSON stores the JSON encoding of value at path. Empty values are
// skipped unless forceEmpty is set.
func (s *State) SetAsJSON(path string, value any, forceEmpty bool) error {
	if !forceEmpty && isEmpty(value) {
		return nil
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %q as json: %w", path, err)
	}
	s.Set(path, string(encoded))
	return nil
}

// SetSerialized stores a msgpack encoding of value at path. The payload is
// base64 encoded so the tree stays representable as JSON. Empty values are
// skipped unless forceEmpty is set.
func (s *State) SetSerialized(path string, value any, forceEmpty bool) error {
	if !forceEmpty && isEmpty(value) {
		return nil
	}
	encoded, err := msgpack.Marshal(value)
	if err != nil {
		return fmt.Errorf("serialize %q: %w", path, err)
	}
	s.Set(path, base64.StdEncoding.EncodeToString(encoded))
	return nil
}

// GetSerialized decodes a value written by SetSerialized into out. It returns
// false when nothing is stored at path.
func (s *State) GetSerialized(path string, out any) (bool, error) {
	raw, ok := s.Get(path, nil).(string)
	if !ok {
		return false, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return false, fmt.Errorf("decode %q: %w", path, err)
	}
	if err := msgpack.Unmarshal(decoded, out); err != nil {
		return false, fmt.Errorf("unserialize %q: %w", path, err)
	}
	return true, nil
}

// isEmpty mirrors the loose emptiness check used for optional writes: nil,
// false, zero numbers, "", "0" and empty containers count as empty.
func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	if str, ok := v.(string); ok {
		return str == "" || str == "0"
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return rv.IsZero()
	}
	return false
}
