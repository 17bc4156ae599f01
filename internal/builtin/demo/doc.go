// SPDX-License-Identifier: MPL-2.0

// Package demo is a small plugin tree the CLI can load without any files on
// disk. The tree is embedded from testdata/plugins and mounted at /demo on an
// in-memory filesystem. Register adds the Go types its declarations resolve
// to.
package demo
