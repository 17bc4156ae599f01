// SPDX-License-Identifier: MPL-2.0

// Package pipeline implements discovery, ordering and execution of handlers
// and their config types.
//
// A load runs in two discovery stages followed by execution:
//   - HandlerFinder builds one HandlerDefinition per handler, folds handler
//     overrides into their targets and orders the result by before/after
//   - ConfigFinder collects the config types of each handler from the root
//     locations, applies the registered modifiers and emits a ConfigDefinition
//   - ConfigDefinition.Process runs the handler over its config types, each
//     one under the namespace it was discovered in
//
// File organization:
//   - context.go: LoadContext and root locations
//   - config_context.go: ConfigContext and its default implementation
//   - handler.go: Handler contracts, HandlerDefinition and Configurator
//   - definition.go: ConfigDefinition, processing and (de)hydration
//   - overrides.go: handler override resolution and ordering
//   - handler_finder.go, config_finder.go: the default finders
//   - modifier.go: ModifierContext and the built-in modifiers
//   - group.go: the GroupHandler adapter
//   - events.go: filter events dispatched during discovery
package pipeline
