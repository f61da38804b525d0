package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/svcidl/internal/idl"
	"github.com/roach88/svcidl/internal/resolver"
)

// ResolveOptions holds flags for the resolve command.
type ResolveOptions struct {
	*RootOptions
	Service  string
	Imports  string
	Registry string
	Output   string
	Pack     bool
}

// ResolveResult summarizes a resolved interface.
type ResolveResult struct {
	Name      string                  `json:"name"`
	Version   string                  `json:"version"`
	Hash      string                  `json:"hash"`
	Output    string                  `json:"output"`
	Imports   []string                `json:"imports"`
	TypeDefs  int                     `json:"type_defs"`
	Functions int                     `json:"functions"`
	Events    int                     `json:"events"`
	Warnings  []resolver.CycleWarning `json:"warnings,omitempty"`
}

func (r ResolveResult) renderText(w io.Writer) {
	fmt.Fprintf(w, "✓ Resolved %s@%s\n", r.Name, r.Version)
	fmt.Fprintf(w, "  hash:      %s\n", r.Hash)
	fmt.Fprintf(w, "  output:    %s\n", r.Output)
	fmt.Fprintf(w, "  types:     %d\n", r.TypeDefs)
	fmt.Fprintf(w, "  functions: %d\n", r.Functions)
	fmt.Fprintf(w, "  events:    %d\n", r.Events)
	for _, imp := range r.Imports {
		fmt.Fprintf(w, "  import:    %s\n", imp)
	}
	for _, warn := range r.Warnings {
		fmt.Fprintf(w, "  note: %s\n", warn.Message)
	}
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResolveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "resolve [decls-dir]",
		Short: "Resolve declarations into a description artifact",
		Long: `Load CUE service declarations, link their imports, resolve every type
reference and write the interface description artifact.

Imports are looked up in --imports (files named name@version.idl or
name@version.json) and then in the --registry database.

Examples:
  svcidl resolve ./decls
  svcidl resolve ./decls --service Wallet --registry registry.db
  svcidl resolve ./decls -o wallet.idl --pack`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			return runResolve(opts, dir, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Service, "service", "", "service to resolve when the directory declares several")
	cmd.Flags().StringVar(&opts.Imports, "imports", "", "directory of imported artifacts")
	cmd.Flags().StringVar(&opts.Registry, "registry", "", "registry database for imports")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "artifact path (default <name>@<version>.json)")
	cmd.Flags().BoolVar(&opts.Pack, "pack", false, "write a deflate-packed artifact")

	return cmd
}

func runResolve(opts *ResolveOptions, dir string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	cfg := opts.config()
	dir = pick(dir, cfg.Decls)
	if dir == "" {
		return f.Fail(ExitCommandError, ErrCodeArguments, "declarations directory is required", nil)
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

	p, err := loadProject(cmd.Context(), env, dir, opts.Service)
	if err != nil {
		exit := ExitFailure
		if isCommandError(codeOf(err)) {
			exit = ExitCommandError
		}
		return f.Fail(exit, codeOf(err), err.Error(), nil)
	}

	pack := opts.Pack || cfg.Compress
	var data []byte
	if pack {
		data, err = idl.Pack(p.iface)
	} else {
		data, err = idl.Encode(p.iface)
	}
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeArtifact, err.Error(), nil)
	}

	out := pick(opts.Output, cfg.Output)
	if out == "" {
		ext := ".json"
		if pack {
			ext = ".idl"
		}
		out = p.iface.Key().String() + ext
	}
	if parent := filepath.Dir(out); parent != "." {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return f.Fail(ExitCommandError, ErrCodeWriteFailed, err.Error(), nil)
		}
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return f.Fail(ExitCommandError, ErrCodeWriteFailed, fmt.Sprintf("failed to write artifact: %v", err), nil)
	}

	hash, err := idl.Hash(p.iface)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeArtifact, err.Error(), nil)
	}
	opts.Logger.Debug().Str("output", out).Int("bytes", len(data)).Msg("wrote artifact")

	imports := make([]string, 0, len(p.iface.Imports))
	for _, imp := range p.iface.Imports {
		imports = append(imports, imp.Key().String())
	}
	return f.Success(ResolveResult{
		Name:      p.iface.Name,
		Version:   p.iface.Version,
		Hash:      hash,
		Output:    out,
		Imports:   imports,
		TypeDefs:  len(p.iface.TypeDefs),
		Functions: len(p.iface.Functions),
		Events:    len(p.iface.Events),
		Warnings:  p.warnings,
	})
}
