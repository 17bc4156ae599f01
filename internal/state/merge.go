// SPDX-License-Identifier: MPL-2.0

package state

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

type (
	// PathRule enables or disables a merge option for the container paths
	// matching Pattern. A "*" in the pattern matches any run of characters.
	PathRule struct {
		Pattern string
		Enabled bool
	}

	// PathOption is a merge option that is either unset (the option default
	// applies), a plain boolean, or a list of path rules.
	PathOption struct {
		mode  optionMode
		value bool
		rules []PathRule
	}

	// MergeOptions controls how MergeWith and ImportFrom combine two trees.
	//
	// Options are evaluated against the path of the container whose entries
	// are being merged, so a rule for "foo" governs the items of list "foo".
	MergeOptions struct {
		// NumericMerge merges list items index by index instead of appending
		// them. Default: false.
		NumericMerge PathOption
		// StrictNumericMerge also overwrites scalar list items by index when
		// NumericMerge is active. Default: false.
		StrictNumericMerge PathOption
		// AllowRemoval deletes keys whose incoming value is Unset.
		// Default: true.
		AllowRemoval PathOption
	}

	optionMode uint8

	// resolvedOption is a PathOption compiled for a single merge run.
	resolvedOption struct {
		mode   optionMode
		value  bool
		def    bool
		groups []ruleGroup
	}

	ruleGroup struct {
		enabled bool
		re      *regexp.Regexp
	}

	merger struct {
		numeric, strict, removal resolvedOption
		touched                  *touchSet
	}
)

const (
	optionUnset optionMode = iota
	optionBool
	optionRules
)

// Bool returns a PathOption that applies value everywhere.
func Bool(value bool) PathOption {
	return PathOption{mode: optionBool, value: value}
}

// Rules returns a PathOption driven by path patterns. Paths no rule matches
// fall back to the option default; an empty rule list disables the option.
func Rules(rules ...PathRule) PathOption {
	return PathOption{mode: optionRules, rules: slices.Clone(rules)}
}

// On is shorthand for an enabling PathRule.
func On(pattern string) PathRule { return PathRule{Pattern: pattern, Enabled: true} }

// Off is shorthand for a disabling PathRule.
func Off(pattern string) PathRule { return PathRule{Pattern: pattern} }

// ParseMergeOptions builds MergeOptions from a loosely typed map, as found in
// settings files. Every option accepts its long or short name
// (numericMerge/nm, strictNumericMerge/sn, allowRemoval/r) with a bool or a
// map of path patterns to bools as value.
func ParseMergeOptions(raw map[string]any) (MergeOptions, error) {
	var opts MergeOptions
	for _, field := range []struct {
		long, short string
		target      *PathOption
	}{
		{"numericMerge", "nm", &opts.NumericMerge},
		{"strictNumericMerge", "sn", &opts.StrictNumericMerge},
		{"allowRemoval", "r", &opts.AllowRemoval},
	} {
		v, ok := raw[field.long]
		if !ok {
			v, ok = raw[field.short]
		}
		if !ok {
			continue
		}
		switch t := v.(type) {
		case bool:
			*field.target = Bool(t)
		case map[string]any:
			patterns := make([]string, 0, len(t))
			for p := range t {
				patterns = append(patterns, p)
			}
			slices.Sort(patterns)
			rules := make([]PathRule, 0, len(patterns))
			for _, p := range patterns {
				enabled, isBool := t[p].(bool)
				if !isBool {
					return MergeOptions{}, fmt.Errorf("merge option %s: pattern %q must map to a bool, got %T", field.long, p, t[p])
				}
				rules = append(rules, PathRule{Pattern: p, Enabled: enabled})
			}
			*field.target = Rules(rules...)
		default:
			return MergeOptions{}, fmt.Errorf("merge option %s: unsupported value of type %T", field.long, v)
		}
	}
	return opts, nil
}

func (o PathOption) resolve(def bool) resolvedOption {
	r := resolvedOption{mode: o.mode, value: o.value, def: def}
	if o.mode != optionRules {
		return r
	}

	// Rules are grouped by outcome in first-seen order, one regexp per group.
	var order []bool
	patterns := make(map[bool][]string)
	for _, rule := range o.rules {
		if _, seen := patterns[rule.Enabled]; !seen {
			order = append(order, rule.Enabled)
		}
		quoted := strings.ReplaceAll(regexp.QuoteMeta(rule.Pattern), `\*`, `(.*?)`)
		patterns[rule.Enabled] = append(patterns[rule.Enabled], quoted)
	}
	for _, enabled := range order {
		r.groups = append(r.groups, ruleGroup{
			enabled: enabled,
			re:      regexp.MustCompile(`^(` + strings.Join(patterns[enabled], "|") + `)$`),
		})
	}
	return r
}

func (r resolvedOption) at(path string) bool {
	switch r.mode {
	case optionBool:
		return r.value
	case optionRules:
		if len(r.groups) == 0 {
			return false
		}
		for _, g := range r.groups {
			if g.re.MatchString(path) {
				return g.enabled
			}
		}
	}
	return r.def
}

func newMerger(opts MergeOptions, touched *touchSet) *merger {
	return &merger{
		numeric: opts.NumericMerge.resolve(false),
		strict:  opts.StrictNumericMerge.resolve(false),
		removal: opts.AllowRemoval.resolve(true),
		touched: touched,
	}
}

// MergeWith returns a new State holding other merged into s. Watchers of both
// states are carried over; s and other are left untouched.
func (s *State) MergeWith(other *State, opts MergeOptions) *State {
	merged := New(nil)
	merged.data = mergeTrees(s.data, other.data, opts, newTouchSet())
	merged.copyWatchersFrom(s, other)
	return merged
}

// ImportFrom merges other into s in place and notifies the watchers of s for
// every path the merge touched. The watchers of other are adopted.
func (s *State) ImportFrom(other *State, opts MergeOptions) {
	touched := newTouchSet()
	s.data = mergeTrees(s.data, other.data, opts, touched)
	s.copyWatchersFrom(other)
	s.notify(touched)
}

func mergeTrees(a, b map[string]any, opts MergeOptions, touched *touchSet) map[string]any {
	m := newMerger(opts, touched)
	out, _ := m.walk(cloneValue(a), cloneValue(b), nil).(map[string]any)
	if out == nil {
		out = make(map[string]any)
	}
	return out
}

// walk merges overlay into base. base is owned by the merger and has the same
// kind as overlay, or is nil.
func (m *merger) walk(base, overlay any, path []string) any {
	switch o := overlay.(type) {
	case map[string]any:
		target, _ := base.(map[string]any)
		return m.walkMap(target, o, path)
	case []any:
		target, _ := base.([]any)
		return m.walkList(target, o, path)
	}
	return cloneValue(overlay)
}

func (m *merger) walkMap(target, overlay map[string]any, path []string) map[string]any {
	if target == nil {
		target = make(map[string]any, len(overlay))
	}
	configPath := strings.Join(path, ".")

	keys := make([]string, 0, len(overlay))
	for k := range overlay {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		v := overlay[k]
		child := append(slices.Clone(path), k)
		m.touched.add(strings.Join(child, "."))

		if v == Unset && m.removal.at(configPath) {
			delete(target, k)
			continue
		}
		if isContainer(v) {
			target[k] = m.walk(sameKind(target[k], v), v, child)
			continue
		}
		target[k] = v
	}
	return target
}

func (m *merger) walkList(target, overlay []any, path []string) []any {
	configPath := strings.Join(path, ".")
	numeric := m.numeric.at(configPath)
	strict := m.strict.at(configPath)
	var removed []int

	for idx, v := range overlay {
		child := append(slices.Clone(path), strconv.Itoa(idx))
		m.touched.add(strings.Join(child, "."))

		if v == Unset && m.removal.at(configPath) {
			if idx < len(target) {
				removed = append(removed, idx)
			}
			continue
		}

		container := isContainer(v)
		if (!container && !strict) || !numeric {
			target = append(target, cloneValue(v))
			continue
		}

		var existing any
		if idx < len(target) {
			existing = target[idx]
		}
		if container {
			v = m.walk(sameKind(existing, v), v, child)
		}
		if idx < len(target) {
			target[idx] = v
		} else {
			target = append(target, v)
		}
	}

	slices.Sort(removed)
	for i := len(removed) - 1; i >= 0; i-- {
		target = slices.Delete(target, removed[i], removed[i]+1)
	}
	if target == nil {
		target = []any{}
	}
	return target
}

// sameKind returns existing when it is a container of the same kind as v.
func sameKind(existing, v any) any {
	switch v.(type) {
	case map[string]any:
		if m, ok := existing.(map[string]any); ok {
			return m
		}
	case []any:
		if l, ok := existing.([]any); ok {
			return l
		}
	}
	return nil
}
