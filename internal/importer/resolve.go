package importer

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"

	"github.com/roach88/svcidl/internal/decl"
	"github.com/roach88/svcidl/internal/idl"
)

// Options configures Resolve.
type Options struct {
	// BaseDir anchors relative import locations.
	BaseDir string

	// Default loads imports that carry no location.
	Default Importer

	Logger zerolog.Logger
}

// pending is an import waiting to be loaded. dir anchors its relative
// location: the root BaseDir for direct imports, otherwise the directory of
// the artifact that declared it.
type pending struct {
	imp  idl.Import
	from string
	dir  string
}

// Resolve loads every interface reachable from imports and returns the
// link map keyed by name and version. An interface needed at two
// versions anywhere in the graph is a *MismatchError.
func Resolve(ctx context.Context, imports []idl.Import, opts Options) (map[idl.ImportKey]*idl.Interface, error) {
	linked := make(map[idl.ImportKey]*idl.Interface)
	versions := make(map[string]map[string]bool)

	queue := make([]pending, 0, len(imports))
	for _, imp := range imports {
		queue = append(queue, pending{imp: imp, dir: opts.BaseDir})
	}

	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		key := p.imp.Key()

		if versions[key.Name] == nil {
			versions[key.Name] = make(map[string]bool)
		}
		versions[key.Name][key.Version] = true
		if _, done := linked[key]; done {
			continue
		}

		imp, err := ForLocation(p.imp.Registry, p.dir, opts.Default)
		if err != nil {
			return nil, &ImportError{Import: key, From: p.from, Err: err}
		}
		iface, err := imp.Import(ctx, key)
		if err != nil {
			return nil, &ImportError{Import: key, From: p.from, Err: err}
		}
		if iface.Key() != key {
			return nil, &ImportError{Import: key, From: p.from,
				Err: fmt.Errorf("location provides %s", iface.Key())}
		}
		opts.Logger.Debug().Str("import", key.String()).Str("from", p.from).Msg("imported interface")

		linked[key] = iface
		dir := artifactDir(imp, p.dir)
		for _, dep := range iface.Imports {
			queue = append(queue, pending{imp: dep, from: key.String(), dir: dir})
		}
	}

	names := make([]string, 0, len(versions))
	for name := range versions {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if len(versions[name]) > 1 {
			vs := make([]string, 0, len(versions[name]))
			for v := range versions[name] {
				vs = append(vs, v)
			}
			sort.Strings(vs)
			return nil, &MismatchError{Name: name, Versions: vs}
		}
	}
	return linked, nil
}

// artifactDir is the directory an importer read its artifact from. Importers
// without one keep base.
func artifactDir(imp Importer, base string) string {
	switch imp := imp.(type) {
	case FileImporter:
		return filepath.Dir(imp.Path)
	case DirImporter:
		return imp.Dir
	}
	return base
}

// Declared converts the imports of a declaration set to their IDL form.
func Declared(set *decl.Set) []idl.Import {
	out := make([]idl.Import, 0, len(set.Imports))
	for _, imp := range set.Imports {
		out = append(out, idl.Import{Name: imp.Name, Version: imp.Version, Registry: imp.Registry})
	}
	return out
}

// Link resolves everything set imports, directly or transitively.
func Link(ctx context.Context, set *decl.Set, opts Options) (map[idl.ImportKey]*idl.Interface, error) {
	return Resolve(ctx, Declared(set), opts)
}
