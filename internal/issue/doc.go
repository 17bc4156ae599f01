// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable errors and the catalogue of markdown help
// the CLI renders when a load fails.
//
// File organization:
//   - actionable.go: ActionableError and the ErrorContext builder
//   - issue.go: the issue catalogue and its glamour rendering
package issue
