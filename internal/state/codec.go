// SPDX-License-Identifier: MPL-2.0

package state

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ToJSON encodes the whole tree. Only JSON representable values survive;
// runtime loads that store live objects must not be cached this way.
func (s *State) ToJSON() ([]byte, error) {
	data, err := json.Marshal(s.data)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return data, nil
}

// FromJSON decodes a tree written by ToJSON. Integral numbers are restored as
// int so that a cached tree compares equal to a freshly built one.
func FromJSON(data []byte) (*State, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	tree, _ := NormalizeNumbers(raw).(map[string]any)
	return New(tree), nil
}

// NormalizeNumbers replaces the json.Number values of a tree decoded with
// UseNumber: integral numbers become int, others float64. Maps and lists
// are updated in place.
func NormalizeNumbers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, item := range t {
			t[k] = NormalizeNumbers(item)
		}
		return t
	case []any:
		for i, item := range t {
			t[i] = NormalizeNumbers(item)
		}
		return t
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return int(i)
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	}
	return v
}
