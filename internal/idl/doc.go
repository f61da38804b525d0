// Package idl provides the interface description data model for svcidl.
//
// This package contains type definitions and the description artifact
// format only. Every other internal package imports idl; idl imports
// nothing internal, so the data model stays the foundational layer.
//
// Key design constraints:
//   - Type is a sealed, closed set of RPC-representable variants
//   - NO float types anywhere
//   - All JSON tags use snake_case
//   - A resolved Interface is immutable; nothing in this module mutates one
//     after the resolver returns it
package idl
