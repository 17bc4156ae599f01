// SPDX-License-Identifier: MPL-2.0

// Package config loads the cfgweave settings file using Viper with CUE as the
// file format.
//
// Settings are read from ./cfgweave.cue, then from the user settings
// directory (os.UserConfigDir()/cfgweave/cfgweave.cue), falling back to the
// defaults when neither exists. Files are validated against the embedded
// #Settings schema before they are merged into Viper, and CFGWEAVE_*
// environment variables override individual keys.
//
// File organization:
//   - types.go: Settings, its typed fields and their validation errors
//   - config.go: file resolution, CUE decoding and GenerateCUE
//   - provider.go: LoadOptions and the Provider interface
//   - schema.cue: the embedded #Settings schema
package config
