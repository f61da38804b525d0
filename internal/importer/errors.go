package importer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/svcidl/internal/idl"
)

// ErrNoImport is returned by an Importer that has no interface for a key.
var ErrNoImport = errors.New("no import")

// ImportError wraps a failure to load one import.
type ImportError struct {
	Import idl.ImportKey
	From   string // Importing interface, empty for the root declaration set
	Err    error
}

// Error implements the error interface.
func (e *ImportError) Error() string {
	if e.From != "" {
		return fmt.Sprintf("import %s (from %s): %v", e.Import, e.From, e.Err)
	}
	return fmt.Sprintf("import %s: %v", e.Import, e.Err)
}

// Unwrap returns the underlying error.
func (e *ImportError) Unwrap() error { return e.Err }

// MismatchError reports an interface needed at more than one version.
type MismatchError struct {
	Name     string
	Versions []string
}

// Error implements the error interface.
func (e *MismatchError) Error() string {
	return fmt.Sprintf("DEPENDENCY_MISMATCH: could not reconcile versions for %q: (%s)",
		e.Name, strings.Join(e.Versions, " "))
}

// IsDependencyMismatch returns true if err is a version conflict.
func IsDependencyMismatch(err error) bool {
	var me *MismatchError
	return errors.As(err, &me)
}
