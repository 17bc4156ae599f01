// SPDX-License-Identifier: MPL-2.0

// Package registry maps stable type identifiers to Go types.
//
// Go cannot load a type by name at runtime, so every handler, config type and
// capability interface that discovery may encounter is registered up front.
// Discovery then resolves the identifiers it finds in source files against
// the registry:
//   - concrete types are registered with a factory (Register, RegisterFactory)
//   - capability interfaces are registered with RegisterCapability
//   - TypeIDOf maps a live value back to its identifier
package registry
