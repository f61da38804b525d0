package cli

import (
	"errors"
	"fmt"
	"io"

	"cuelang.org/go/cue/token"
	"github.com/spf13/cobra"

	"github.com/roach88/svcidl/internal/decl"
	"github.com/roach88/svcidl/internal/importer"
	"github.com/roach88/svcidl/internal/resolver"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Imports  string
	Registry string
}

// ValidationIssue is one problem or note reported by validate.
type ValidationIssue struct {
	Service string `json:"service,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Services []string          `json:"services"`
	Errors   []ValidationIssue `json:"errors,omitempty"`
	Warnings []ValidationIssue `json:"warnings,omitempty"`
}

func (r ValidationResult) renderText(w io.Writer) {
	if r.Valid {
		fmt.Fprintf(w, "✓ All declarations valid (%d services)\n", len(r.Services))
	} else {
		fmt.Fprintln(w, "✗ Validation failed")
		fmt.Fprintln(w)
	}
	for _, issue := range r.Errors {
		writeIssue(w, issue)
	}
	for _, issue := range r.Warnings {
		writeIssue(w, issue)
	}
}

func writeIssue(w io.Writer, issue ValidationIssue) {
	if issue.Line > 0 {
		fmt.Fprintf(w, "%s:%d\n", issue.File, issue.Line)
	}
	prefix := ""
	if issue.Service != "" {
		prefix = issue.Service + ": "
	}
	fmt.Fprintf(w, "  %s: %s%s\n\n", issue.Code, prefix, issue.Message)
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate [decls-dir]",
		Short: "Check declarations without writing artifacts",
		Long: `Load, link and resolve every service in a declarations directory and
report all problems found. Recursive type groups are reported as notes.

Exit codes:
  0 - All services valid
  1 - One or more validation errors
  2 - Command error (missing directory, unreachable registry)`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			return runValidate(opts, dir, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Imports, "imports", "", "directory of imported artifacts")
	cmd.Flags().StringVar(&opts.Registry, "registry", "", "registry database for imports")

	return cmd
}

func runValidate(opts *ValidateOptions, dir string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	cfg := opts.config()
	dir = pick(dir, cfg.Decls)
	if dir == "" {
		return f.Fail(ExitCommandError, ErrCodeArguments, "declarations directory is required", nil)
	}

	sets, loadErrs := decl.LoadDir(dir)
	var le *decl.LoadError
	if len(sets) == 0 && len(loadErrs) == 1 && errors.As(loadErrs[0], &le) && isCommandError(le.Code) {
		return f.Fail(ExitCommandError, le.Code, le.Message, nil)
	}

	env := &linkEnv{
		imports:  opts.Imports,
		registry: pick(opts.Registry, cfg.Registry),
		logger:   opts.Logger,
	}
	if err := env.open(); err != nil {
		return f.Fail(ExitCommandError, codeOf(err), err.Error(), nil)
	}
	defer env.close()

	result := ValidationResult{Services: []string{}}
	for _, err := range loadErrs {
		result.Errors = append(result.Errors, loadIssue(err))
	}

	for _, set := range sets {
		result.Services = append(result.Services, set.Name)
		opts.Logger.Debug().Str("service", set.Name).Msg("validating service")

		linked, err := env.link(cmd.Context(), importer.Declared(set), dir)
		if err != nil {
			result.Errors = append(result.Errors, ValidationIssue{Service: set.Name, Code: ErrCodeImport, Message: err.Error()})
			continue
		}
		iface, err := resolver.Resolve(resolver.Input{Decls: set, Imports: linked}, resolver.WithLogger(opts.Logger))
		if err != nil {
			result.Errors = append(result.Errors, resolveIssues(set.Name, err)...)
			continue
		}
		for _, warn := range resolver.AnalyzeCycles(iface) {
			result.Warnings = append(result.Warnings, ValidationIssue{Service: set.Name, Code: warn.Level, Message: warn.Message})
		}
	}

	result.Valid = len(result.Errors) == 0
	if result.Valid {
		return f.Success(result)
	}

	if f.Format == "json" {
		if err := f.encode(CLIResponse{
			Status: "error",
			Data:   result,
			Error:  &CLIError{Code: result.Errors[0].Code, Message: result.Errors[0].Message},
		}); err != nil {
			return err
		}
	} else {
		result.renderText(f.Writer)
	}
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))
}

// isCommandError reports load failures that mean there is nothing to
// validate at all.
func isCommandError(code string) bool {
	switch code {
	case decl.ErrCodeNotFound, decl.ErrCodeScan, decl.ErrCodeNoFiles:
		return true
	}
	return false
}

func loadIssue(err error) ValidationIssue {
	var le *decl.LoadError
	if errors.As(err, &le) {
		issue := ValidationIssue{Code: le.Code, Message: le.Message}
		setPos(&issue, le.Pos)
		return issue
	}
	return ValidationIssue{Code: decl.ErrCodeGeneric, Message: err.Error()}
}

func resolveIssues(service string, err error) []ValidationIssue {
	var es resolver.Errors
	if !errors.As(err, &es) {
		return []ValidationIssue{{Service: service, Code: ErrCodeResolve, Message: err.Error()}}
	}
	out := make([]ValidationIssue, 0, len(es))
	for _, e := range es {
		msg := e.Decl
		if e.Ref != "" {
			msg += ": " + e.Ref
		}
		if e.Message != "" {
			msg += ": " + e.Message
		}
		issue := ValidationIssue{Service: service, Code: string(e.Code), Message: msg}
		setPos(&issue, e.Pos)
		out = append(out, issue)
	}
	return out
}

func setPos(issue *ValidationIssue, pos token.Pos) {
	if pos.IsValid() {
		issue.File = pos.Filename()
		issue.Line = pos.Line()
	}
}
