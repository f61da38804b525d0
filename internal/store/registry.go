package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/svcidl/internal/idl"
)

var (
	// ErrNotFound is returned when no interface matches a lookup.
	ErrNotFound = errors.New("store: interface not found")

	// ErrConflict is returned when a published (name, version) already
	// holds different content.
	ErrConflict = errors.New("store: version already published with different content")
)

// Entry describes one published interface without its artifact.
type Entry struct {
	Name         string `json:"name"`
	Version      string `json:"version"`
	Namespace    string `json:"namespace,omitempty"`
	Hash         string `json:"hash"`
	BuildVersion string `json:"build_version,omitempty"`
	Size         int    `json:"size"`
}

// Key returns the import key of the entry.
func (e Entry) Key() idl.ImportKey { return idl.ImportKey{Name: e.Name, Version: e.Version} }

// Put publishes iface. It reports whether a new row was written; an
// identical republish writes nothing.
func (s *Store) Put(ctx context.Context, iface *idl.Interface) (bool, error) {
	if iface.Name == "" || iface.Version == "" {
		return false, fmt.Errorf("store: interface needs a name and version")
	}
	hash, err := idl.Hash(iface)
	if err != nil {
		return false, err
	}
	packed, err := idl.Pack(iface)
	if err != nil {
		return false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRowContext(ctx,
		`SELECT hash FROM interfaces WHERE name = ? AND version = ?`,
		iface.Name, iface.Version,
	).Scan(&existing)
	switch {
	case err == nil:
		if existing != hash {
			return false, fmt.Errorf("%w: %s@%s", ErrConflict, iface.Name, iface.Version)
		}
		return false, nil
	case !errors.Is(err, sql.ErrNoRows):
		return false, fmt.Errorf("query existing: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO interfaces (name, version, namespace, hash, build_version, artifact)
		VALUES (?, ?, ?, ?, ?, ?)
	`, iface.Name, iface.Version, iface.Namespace, hash, iface.BuildVersion, packed); err != nil {
		return false, fmt.Errorf("insert interface: %w", err)
	}

	for i, imp := range iface.Imports {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO interface_imports (name, version, dep_name, dep_version, position)
			VALUES (?, ?, ?, ?, ?)
		`, iface.Name, iface.Version, imp.Name, imp.Version, i); err != nil {
			return false, fmt.Errorf("insert import %s: %w", imp.Key(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

// Get returns the interface published as name@version.
func (s *Store) Get(ctx context.Context, name, version string) (*idl.Interface, error) {
	return s.load(ctx,
		`SELECT artifact FROM interfaces WHERE name = ? AND version = ?`,
		fmt.Sprintf("%s@%s", name, version), name, version)
}

// GetByHash returns the interface with the given content hash.
func (s *Store) GetByHash(ctx context.Context, hash string) (*idl.Interface, error) {
	return s.load(ctx,
		`SELECT artifact FROM interfaces WHERE hash = ? ORDER BY name COLLATE BINARY, version COLLATE BINARY LIMIT 1`,
		hash, hash)
}

func (s *Store) load(ctx context.Context, query, label string, args ...any) (*idl.Interface, error) {
	var packed []byte
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&packed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, label)
	}
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", label, err)
	}
	iface, err := idl.Unpack(packed)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", label, err)
	}
	return iface, nil
}

// List returns every published interface ordered by name and version.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, version, namespace, hash, build_version, length(artifact)
		FROM interfaces
		ORDER BY name COLLATE BINARY ASC, version COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query interfaces: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Name, &e.Version, &e.Namespace, &e.Hash, &e.BuildVersion, &e.Size); err != nil {
			return nil, fmt.Errorf("scan interface: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate interfaces: %w", err)
	}
	return entries, nil
}

// Dependents returns the interfaces that import key, ordered by name and
// version.
func (s *Store) Dependents(ctx context.Context, key idl.ImportKey) ([]idl.ImportKey, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, version FROM interface_imports
		WHERE dep_name = ? AND dep_version = ?
		ORDER BY name COLLATE BINARY ASC, version COLLATE BINARY ASC
	`, key.Name, key.Version)
	if err != nil {
		return nil, fmt.Errorf("query dependents: %w", err)
	}
	defer rows.Close()

	keys := []idl.ImportKey{}
	for rows.Next() {
		var k idl.ImportKey
		if err := rows.Scan(&k.Name, &k.Version); err != nil {
			return nil, fmt.Errorf("scan dependent: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
