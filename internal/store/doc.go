// Package store is the SQLite-backed interface registry.
//
// Each resolved interface is stored once per (name, version) as a packed
// description artifact together with its content hash and the imports it
// was linked against. Versions are immutable: publishing the same
// (name, version) again is a no-op when the content hash matches and a
// conflict otherwise.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON
//
// Listings are ordered by name and version with BINARY collation so that
// output is stable across runs.
package store
