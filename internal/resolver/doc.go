// Package resolver turns raw service declarations into a validated, fully
// linked idl.Interface.
//
// Resolution is a single synchronous pass over an immutable declaration set
// and an explicit, caller-supplied link environment of already-resolved
// interfaces. It performs no I/O and never discovers dependencies on its
// own; see package importer for building the environment.
//
// Steps:
//  1. Index declarations and imports, rejecting duplicate names
//  2. Classify referenced shapes into idl types, resolving Defined
//     references locally first, then in declared import order
//  3. Walk reachability from functions, the constructor and every event;
//     unreachable defs are dropped
//  4. Enforce the import boundary and event index limits
//  5. Require exactly one constructor
//
// Every problem found is reported; a failed resolution never yields a
// partial interface.
package resolver
