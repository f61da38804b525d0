// Package decl holds raw service declarations: the structural shapes a
// source-analysis front end reports for structs, enums, events, functions
// and constructors before any semantic validation.
//
// Declarations are loaded from CUE files (see CompileService). Type shapes
// are written in a small textual syntax parsed by ParseShape:
//
//	u32  Account  token.Amount  list<u8>  option<T>  result<T, E>
//	tuple<A, B>  ()  array<T, 4>  map<K, V>  &T  *T
//
// Nothing here decides whether a shape is a valid RPC type; that is the
// resolver's job.
package decl
