// Package importer loads the already-resolved interfaces a declaration set
// depends on and assembles the explicit link map the resolver consumes.
//
// The resolver never fetches anything itself. Callers run Resolve first,
// which walks imports transitively through an Importer (artifact files or
// the registry), checks that each loaded interface is the one requested,
// and rejects graphs that need two versions of the same interface.
package importer
