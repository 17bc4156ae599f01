// SPDX-License-Identifier: MPL-2.0

// Package cache stores the serialized results of a load.
//
// The loader writes either the full state tree or the dehydrated config
// definitions under keys of the form "configuration-<type>-<env>". Two
// stores are provided: Memory for the lifetime of a process and File for
// reuse across processes.
package cache
