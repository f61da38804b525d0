package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/roach88/svcidl/internal/decl"
	"github.com/roach88/svcidl/internal/idl"
	"github.com/roach88/svcidl/internal/importer"
	"github.com/roach88/svcidl/internal/resolver"
	"github.com/roach88/svcidl/internal/store"
)

// stageError is a failure tagged with the CLI error code of the stage
// that produced it.
type stageError struct {
	Code string
	Err  error
}

func (e *stageError) Error() string { return e.Err.Error() }
func (e *stageError) Unwrap() error { return e.Err }

// codeOf returns the CLI error code carried by err.
func codeOf(err error) string {
	var se *stageError
	if errors.As(err, &se) {
		return se.Code
	}
	var le *decl.LoadError
	if errors.As(err, &le) {
		return le.Code
	}
	return decl.ErrCodeGeneric
}

// linkEnv locates imported interfaces: an artifact directory first, then
// the registry.
type linkEnv struct {
	imports  string
	registry string
	logger   zerolog.Logger

	store *store.Store
}

// open connects to the registry when one is configured.
func (e *linkEnv) open() error {
	if e.registry == "" {
		return nil
	}
	s, err := store.Open(e.registry)
	if err != nil {
		return &stageError{Code: ErrCodeRegistry, Err: err}
	}
	e.store = s
	return nil
}

func (e *linkEnv) close() {
	if e.store != nil {
		e.store.Close()
	}
}

// fallback is the importer used for imports that name no location.
func (e *linkEnv) fallback() importer.Importer {
	var chain importer.Chain
	if e.imports != "" {
		chain = append(chain, importer.DirImporter{Dir: e.imports})
	}
	if e.store != nil {
		chain = append(chain, importer.RegistryImporter{Store: e.store})
	}
	if len(chain) == 0 {
		return nil
	}
	return chain
}

// link loads every interface reachable from imports.
func (e *linkEnv) link(ctx context.Context, imports []idl.Import, baseDir string) (map[idl.ImportKey]*idl.Interface, error) {
	linked, err := importer.Resolve(ctx, imports, importer.Options{
		BaseDir: baseDir,
		Default: e.fallback(),
		Logger:  e.logger,
	})
	if err != nil {
		return nil, &stageError{Code: ErrCodeImport, Err: err}
	}
	return linked, nil
}

// project is one resolved service with its link environment.
type project struct {
	iface    *idl.Interface
	linked   map[idl.ImportKey]*idl.Interface
	warnings []resolver.CycleWarning
}

// loadProject runs the declaration pipeline: load, link, resolve.
func loadProject(ctx context.Context, env *linkEnv, declsDir, service string) (*project, error) {
	set, err := decl.LoadOne(declsDir, service)
	if err != nil {
		return nil, err
	}
	env.logger.Debug().Str("service", set.Name).Str("version", set.Version).Int("imports", len(set.Imports)).Msg("loaded declarations")

	linked, err := env.link(ctx, importer.Declared(set), declsDir)
	if err != nil {
		return nil, err
	}

	iface, err := resolver.Resolve(resolver.Input{Decls: set, Imports: linked}, resolver.WithLogger(env.logger))
	if err != nil {
		return nil, &stageError{Code: ErrCodeResolve, Err: err}
	}
	return &project{iface: iface, linked: linked, warnings: resolver.AnalyzeCycles(iface)}, nil
}

// readArtifact loads a description artifact file in either form.
func readArtifact(path string) (*idl.Interface, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		code := ErrCodeArtifact
		if errors.Is(err, os.ErrNotExist) {
			code = decl.ErrCodeNotFound
		}
		return nil, &stageError{Code: code, Err: fmt.Errorf("failed to read artifact: %w", err)}
	}
	iface, err := idl.Load(data)
	if err != nil {
		return nil, &stageError{Code: ErrCodeArtifact, Err: fmt.Errorf("%s: %w", path, err)}
	}
	return iface, nil
}
