// SPDX-License-Identifier: MPL-2.0

package types

import "strings"

// Namespace tags the plugin or root location a configuration type was found
// under. Namespaces are dot separated; the zero value addresses the state root.
type Namespace string

// String returns the string representation of the Namespace.
func (n Namespace) String() string { return string(n) }

// IsRoot reports whether the namespace addresses the state root.
func (n Namespace) IsRoot() bool { return strings.Trim(string(n), ".") == "" }

// Parts splits the namespace on dots and drops empty segments.
func (n Namespace) Parts() []string {
	return SplitPath(string(n))
}

// SplitPath splits a dot separated path and drops empty segments, so that
// "a..b." and "a.b" address the same node.
func SplitPath(path string) []string {
	if path == "" {
		return nil
	}
	raw := strings.Split(path, ".")
	parts := raw[:0]
	for _, p := range raw {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}
