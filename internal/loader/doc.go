// SPDX-License-Identifier: MPL-2.0

// Package loader orchestrates a configuration load.
//
// A Loader holds the registrations of one configuration type and
// environment: root locations, handler locations, handler instances,
// modifiers and the collaborators used to resolve types and cache results.
// Every call to Load works on a clone of these registrations.
//
// Two cache modes exist. A full-state load caches the resulting state tree
// and skips discovery and execution on a hit. A runtime load caches only the
// discovered definitions and always executes them, so config types may put
// values into the state that cannot be serialized.
//
// File organization:
//   - loader.go: Loader construction and registrations
//   - load.go: the load run and both cache modes
//   - events.go: events dispatched around a load
//   - errors.go: error types
package loader
