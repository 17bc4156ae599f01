// SPDX-License-Identifier: MPL-2.0

// Package cueutil validates CUE documents against an embedded schema
// definition and decodes them into Go values.
//
// Errors name the offending field in JSON path notation, prefixed by the
// file name:
//
//	cfgweave.cue: cache.driver: 3 errors in empty disjunction
//
// File organization:
//   - options.go: decode options and the size limit
//   - parse.go: Decode and Compile
//   - error.go: error formatting
package cueutil
