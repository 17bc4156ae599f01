// SPDX-License-Identifier: MPL-2.0

// Package testutil provides helpers shared by the package tests.
//
// File organization:
//   - testutil.go: plugin tree fixtures on an afero.Fs (WriteFiles,
//     MustWriteFile, Exists) and hermetic user directories (SetUserDirs).
package testutil
