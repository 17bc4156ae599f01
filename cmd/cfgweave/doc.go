// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the cfgweave CLI commands.
//
// File organization:
//   - root.go: the root command, global flags and Execute
//   - app.go: App, its dependencies and the per-invocation loader wiring
//   - load.go: load, dump and get
//   - scan.go: scan
//   - cache.go: cache clear
//   - watch.go: watch
//   - settings.go: settings show and settings init
//   - styles.go: the lipgloss palette
package cmd
