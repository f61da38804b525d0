package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/svcidl/internal/idl"
	"github.com/roach88/svcidl/internal/store"
)

// PublishOptions holds flags for the publish command.
type PublishOptions struct {
	*RootOptions
	Registry string
}

// PublishedEntry reports one artifact handled by publish.
type PublishedEntry struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Hash    string `json:"hash"`
	Created bool   `json:"created"`
}

// PublishResult holds the publish summary.
type PublishResult struct {
	Registry  string           `json:"registry"`
	Published []PublishedEntry `json:"published"`
}

func (r PublishResult) renderText(w io.Writer) {
	for _, p := range r.Published {
		state := "published"
		if !p.Created {
			state = "already published"
		}
		fmt.Fprintf(w, "✓ %s@%s %s (%s)\n", p.Name, p.Version, state, shortHash(p.Hash))
	}
}

// NewPublishCommand creates the publish command.
func NewPublishCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PublishOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "publish <artifact>...",
		Short: "Publish description artifacts to the registry",
		Long: `Store interface artifacts in the registry database under name@version.

A published version is immutable: republishing identical content is a
no-op, different content is rejected. Every import of an artifact must
already be in the registry, or be published earlier in the same run.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublish(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Registry, "registry", "", "registry database")

	return cmd
}

func runPublish(opts *PublishOptions, paths []string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	env := &linkEnv{registry: pick(opts.Registry, opts.config().Registry), logger: opts.Logger}
	if env.registry == "" {
		return f.Fail(ExitCommandError, ErrCodeArguments, "--registry is required", nil)
	}

	ifaces := make([]*idl.Interface, 0, len(paths))
	for _, path := range paths {
		iface, err := readArtifact(path)
		if err != nil {
			return f.Fail(ExitCommandError, codeOf(err), err.Error(), nil)
		}
		ifaces = append(ifaces, iface)
	}

	if err := env.open(); err != nil {
		return f.Fail(ExitCommandError, codeOf(err), err.Error(), nil)
	}
	defer env.close()

	result := PublishResult{Registry: env.registry, Published: []PublishedEntry{}}
	for _, iface := range ifaces {
		if _, err := env.link(cmd.Context(), iface.Imports, ""); err != nil {
			return f.Fail(ExitFailure, ErrCodeImport, fmt.Sprintf("%s: %v", iface.Key(), err), nil)
		}

		created, err := env.store.Put(cmd.Context(), iface)
		if errors.Is(err, store.ErrConflict) {
			return f.Fail(ExitFailure, ErrCodeConflict, err.Error(), nil)
		}
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeRegistry, err.Error(), nil)
		}
		hash, err := idl.Hash(iface)
		if err != nil {
			return f.Fail(ExitFailure, ErrCodeArtifact, err.Error(), nil)
		}
		opts.Logger.Info().Str("interface", iface.Key().String()).Bool("created", created).Msg("published")
		result.Published = append(result.Published, PublishedEntry{
			Name:    iface.Name,
			Version: iface.Version,
			Hash:    hash,
			Created: created,
		})
	}
	return f.Success(result)
}

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	Registry   string
	Dependents string
}

// ListResult holds registry entries.
type ListResult struct {
	Interfaces []store.Entry `json:"interfaces"`
}

func (r ListResult) renderText(w io.Writer) {
	if len(r.Interfaces) == 0 {
		fmt.Fprintln(w, "No interfaces published.")
		return
	}
	for _, e := range r.Interfaces {
		fmt.Fprintf(w, "%s@%s\t%s\t%d bytes\n", e.Name, e.Version, shortHash(e.Hash), e.Size)
	}
}

// DependentsResult lists the interfaces importing one key.
type DependentsResult struct {
	Interface  string   `json:"interface"`
	Dependents []string `json:"dependents"`
}

func (r DependentsResult) renderText(w io.Writer) {
	if len(r.Dependents) == 0 {
		fmt.Fprintf(w, "Nothing imports %s.\n", r.Interface)
		return
	}
	for _, d := range r.Dependents {
		fmt.Fprintln(w, d)
	}
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List published interfaces",
		Long: `List every interface in the registry, or with --dependents the
interfaces that import a given name@version.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Registry, "registry", "", "registry database")
	cmd.Flags().StringVar(&opts.Dependents, "dependents", "", "list importers of name@version")

	return cmd
}

func runList(opts *ListOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	env := &linkEnv{registry: pick(opts.Registry, opts.config().Registry), logger: opts.Logger}
	if env.registry == "" {
		return f.Fail(ExitCommandError, ErrCodeArguments, "--registry is required", nil)
	}
	if err := env.open(); err != nil {
		return f.Fail(ExitCommandError, codeOf(err), err.Error(), nil)
	}
	defer env.close()

	if opts.Dependents != "" {
		key, err := parseKey(opts.Dependents)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeArguments, err.Error(), nil)
		}
		deps, err := env.store.Dependents(cmd.Context(), key)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeRegistry, err.Error(), nil)
		}
		names := make([]string, len(deps))
		for i, d := range deps {
			names[i] = d.String()
		}
		return f.Success(DependentsResult{Interface: key.String(), Dependents: names})
	}

	entries, err := env.store.List(cmd.Context())
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeRegistry, err.Error(), nil)
	}
	return f.Success(ListResult{Interfaces: entries})
}

// parseKey parses "name@version".
func parseKey(s string) (idl.ImportKey, error) {
	name, version, ok := strings.Cut(s, "@")
	if !ok || name == "" || version == "" {
		return idl.ImportKey{}, fmt.Errorf("expected name@version, got %q", s)
	}
	return idl.ImportKey{Name: name, Version: version}, nil
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
