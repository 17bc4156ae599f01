// SPDX-License-Identifier: MPL-2.0

// Package builtin provides the handlers the cfgweave CLI registers on every
// loader.
//
// ValuesHandler picks up every config type implementing ValueProvider from
// the "Config" location of each root and merges its values into the state
// under the namespace the type was discovered in.
package builtin
