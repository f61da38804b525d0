package decl

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
)

// Load error codes, shared with the CLI's exit reporting.
const (
	ErrCodeGeneric     = "E001"
	ErrCodeScan        = "E002"
	ErrCodeNoFiles     = "E003"
	ErrCodeLoadFailed  = "E004"
	ErrCodeNotFound    = "E005"
	ErrCodeBuildFailed = "E006"
	ErrCodeNoServices  = "E007"

	ErrCodeVersion = "E101"
	ErrCodeShape   = "E102"
	ErrCodeIndexed = "E103"
)

// LoadError is a problem found while loading a declaration directory.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadDir builds the CUE package in dir and compiles every entry under
// "service" into a Set, in source order. Compilation problems are
// collected so a single run reports every broken service; the Sets that
// did compile are still returned.
func LoadDir(dir string) ([]*Set, []error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("declarations directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScan, Message: fmt.Sprintf("scanning %s: %v", dir, err)}}
	}
	if len(files) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := cuecontext.New().BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: formatCUEError(err).Error()}}
	}
	return compileServices(value)
}

// LoadOne loads dir and requires it to declare exactly one service, or
// the one called name when name is not empty.
func LoadOne(dir, name string) (*Set, error) {
	sets, errs := LoadDir(dir)
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if name == "" {
		if len(sets) != 1 {
			return nil, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("%s declares %d services, pick one by name", dir, len(sets))}
		}
		return sets[0], nil
	}
	for _, s := range sets {
		if s.Name == name {
			return s, nil
		}
	}
	return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("service %q not declared in %s", name, dir)}
}

func compileServices(value cue.Value) ([]*Set, []error) {
	services := value.LookupPath(cue.ParsePath("service"))
	if !services.Exists() {
		return nil, []error{&LoadError{Code: ErrCodeNoServices, Message: "no services found in declarations"}}
	}
	iter, err := services.Fields()
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating services: %v", err)}}
	}

	var sets []*Set
	var errs []error
	for iter.Next() {
		set, err := CompileService(iter.Value())
		if err != nil {
			errs = append(errs, asLoadError(err, "service."+iter.Label()))
			continue
		}
		sets = append(sets, set)
	}
	if len(sets) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeNoServices, Message: "no services found in declarations"})
	}
	return sets, errs
}

func asLoadError(err error, where string) *LoadError {
	var ce *CompileError
	if errors.As(err, &ce) {
		return &LoadError{Code: fieldCode(ce.Field), Message: where + "." + ce.Field + ": " + ce.Message, Pos: ce.Pos}
	}
	return &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("%s: %v", where, err)}
}

func fieldCode(field string) string {
	switch {
	case field == "version", strings.HasSuffix(field, ".version"):
		return ErrCodeVersion
	case strings.HasSuffix(field, ".indexed"):
		return ErrCodeIndexed
	case field != "":
		return ErrCodeShape
	default:
		return ErrCodeGeneric
	}
}

// FindCUEFiles walks dir and returns every .cue file path.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
