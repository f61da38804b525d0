package importer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/svcidl/internal/idl"
	"github.com/roach88/svcidl/internal/store"
)

// Importer loads a resolved interface by key.
type Importer interface {
	Import(ctx context.Context, key idl.ImportKey) (*idl.Interface, error)
}

// FileImporter reads one artifact file, packed or plain JSON.
type FileImporter struct {
	Path string
}

// Import implements Importer.
func (f FileImporter) Import(_ context.Context, key idl.ImportKey) (*idl.Interface, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoImport, f.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Path, err)
	}
	iface, err := idl.Load(data)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", f.Path, err)
	}
	return iface, nil
}

// DirImporter looks for "<name>@<version>.idl" (packed) and then
// "<name>@<version>.json" in a directory.
type DirImporter struct {
	Dir string
}

// Import implements Importer.
func (d DirImporter) Import(ctx context.Context, key idl.ImportKey) (*idl.Interface, error) {
	for _, ext := range []string{".idl", ".json"} {
		iface, err := FileImporter{Path: filepath.Join(d.Dir, key.String()+ext)}.Import(ctx, key)
		if errors.Is(err, ErrNoImport) {
			continue
		}
		return iface, err
	}
	return nil, fmt.Errorf("%w: %s in %s", ErrNoImport, key, d.Dir)
}

// RegistryImporter reads published interfaces from the registry.
type RegistryImporter struct {
	Store *store.Store
}

// Import implements Importer.
func (r RegistryImporter) Import(ctx context.Context, key idl.ImportKey) (*idl.Interface, error) {
	iface, err := r.Store.Get(ctx, key.Name, key.Version)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNoImport, err)
	}
	return iface, err
}

// Chain tries each importer in order until one has the key.
type Chain []Importer

// Import implements Importer.
func (c Chain) Import(ctx context.Context, key idl.ImportKey) (*idl.Interface, error) {
	for _, imp := range c {
		iface, err := imp.Import(ctx, key)
		if errors.Is(err, ErrNoImport) {
			continue
		}
		return iface, err
	}
	return nil, fmt.Errorf("%w: %s", ErrNoImport, key)
}

// ForLocation returns the importer for an import's registry field.
// A relative path is taken from baseDir; file:// URLs name a path
// directly. An empty location selects fallback.
func ForLocation(location, baseDir string, fallback Importer) (Importer, error) {
	if location == "" {
		if fallback == nil {
			return nil, errors.New("no importer configured")
		}
		return fallback, nil
	}
	if strings.Contains(location, "://") {
		u, err := url.Parse(location)
		if err != nil {
			return nil, fmt.Errorf("parse location %q: %w", location, err)
		}
		if u.Scheme != "file" {
			return nil, fmt.Errorf("no importer for scheme %q", u.Scheme)
		}
		return FileImporter{Path: u.Path}, nil
	}
	if !filepath.IsAbs(location) {
		location = filepath.Join(baseDir, location)
	}
	return FileImporter{Path: location}, nil
}
