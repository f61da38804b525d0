package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/svcidl/internal/idl"
	"github.com/roach88/svcidl/internal/resolver"
)

// InspectOptions holds flags for the inspect command.
type InspectOptions struct {
	*RootOptions
	Registry string
}

// InspectResult is a readable summary of one interface.
type InspectResult struct {
	Name        string                  `json:"name"`
	Namespace   string                  `json:"namespace,omitempty"`
	Version     string                  `json:"version"`
	Hash        string                  `json:"hash"`
	Imports     []string                `json:"imports"`
	Types       []string                `json:"types"`
	Constructor string                  `json:"constructor"`
	Functions   []string                `json:"functions"`
	Events      []EventSummary          `json:"events"`
	Warnings    []resolver.CycleWarning `json:"warnings,omitempty"`
}

// EventSummary pairs an event signature with its topic.
type EventSummary struct {
	Signature string    `json:"signature"`
	Topic     idl.Topic `json:"topic"`
}

func (r InspectResult) renderText(w io.Writer) {
	fmt.Fprintf(w, "%s@%s", r.Name, r.Version)
	if r.Namespace != "" {
		fmt.Fprintf(w, " (%s)", r.Namespace)
	}
	fmt.Fprintf(w, "\nhash %s\n", r.Hash)

	section := func(title string, lines []string) {
		if len(lines) == 0 {
			return
		}
		fmt.Fprintf(w, "\n%s:\n", title)
		for _, l := range lines {
			fmt.Fprintf(w, "  %s\n", l)
		}
	}
	section("imports", r.Imports)
	section("types", r.Types)
	section("constructor", []string{r.Constructor})
	section("functions", r.Functions)

	events := make([]string, len(r.Events))
	for i, e := range r.Events {
		events[i] = e.Signature + "  " + e.Topic.String()
	}
	section("events", events)

	notes := make([]string, len(r.Warnings))
	for i, n := range r.Warnings {
		notes[i] = n.Message
	}
	section("notes", notes)
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inspect <artifact | name@version>",
		Short: "Summarize an interface description",
		Long: `Print the types, functions and events of an interface, read from an
artifact file or from the registry by name@version.

Examples:
  svcidl inspect wallet@1.0.0.json
  svcidl inspect wallet@1.0.0 --registry registry.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Registry, "registry", "", "registry database for name@version lookups")

	return cmd
}

func runInspect(opts *InspectOptions, target string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	iface, err := locate(cmd, opts.RootOptions, opts.Registry, target)
	if err != nil {
		return f.Fail(ExitCommandError, codeOf(err), err.Error(), nil)
	}

	hash, err := idl.Hash(iface)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeArtifact, err.Error(), nil)
	}
	return f.Success(summarize(iface, hash))
}

// locate reads target as a file when it exists, otherwise as a registry
// key.
func locate(cmd *cobra.Command, root *RootOptions, registry, target string) (*idl.Interface, error) {
	if _, err := os.Stat(target); err == nil {
		return readArtifact(target)
	}
	key, err := parseKey(target)
	if err != nil {
		return nil, &stageError{Code: ErrCodeArguments, Err: fmt.Errorf("%s is neither a file nor name@version", target)}
	}
	env := &linkEnv{registry: pick(registry, root.config().Registry), logger: root.Logger}
	if env.registry == "" {
		return nil, &stageError{Code: ErrCodeArguments, Err: fmt.Errorf("--registry is required to look up %s", key)}
	}
	if err := env.open(); err != nil {
		return nil, err
	}
	defer env.close()

	iface, err := env.store.Get(cmd.Context(), key.Name, key.Version)
	if err != nil {
		return nil, &stageError{Code: ErrCodeRegistry, Err: err}
	}
	return iface, nil
}

func summarize(iface *idl.Interface, hash string) InspectResult {
	r := InspectResult{
		Name:        iface.Name,
		Namespace:   iface.Namespace,
		Version:     iface.Version,
		Hash:        hash,
		Imports:     []string{},
		Types:       []string{},
		Constructor: signature("new", iface.Constructor.Arguments, nil, iface.Constructor.Error),
		Functions:   []string{},
		Events:      []EventSummary{},
		Warnings:    resolver.AnalyzeCycles(iface),
	}
	for _, imp := range iface.Imports {
		r.Imports = append(r.Imports, imp.Key().String())
	}
	for _, def := range iface.TypeDefs {
		r.Types = append(r.Types, describeDef(def))
	}
	for _, fn := range iface.Functions {
		line := signature(fn.Name, fn.Arguments, fn.Output, fn.Error)
		if fn.Mutability == idl.Mutable {
			line += " [mutable]"
		}
		r.Functions = append(r.Functions, line)
	}
	for _, ev := range iface.Events {
		r.Events = append(r.Events, EventSummary{
			Signature: ev.Name + "(" + fieldList(ev.Fields) + ")",
			Topic:     idl.EventTopic(ev.Name),
		})
	}
	return r
}

func signature(name string, args []idl.Field, output, errType idl.Type) string {
	s := name + "(" + fieldList(args) + ")"
	if output != nil {
		s += " -> " + output.String()
	}
	if errType != nil {
		s += " ! " + errType.String()
	}
	return s
}

func fieldList(fields []idl.Field) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f.Name + ": " + f.Type.String()
		if f.Indexed {
			parts[i] = "indexed " + parts[i]
		}
	}
	return strings.Join(parts, ", ")
}

func describeDef(def idl.TypeDef) string {
	switch def.Kind {
	case idl.KindEnum:
		variants := make([]string, len(def.Variants))
		for i, v := range def.Variants {
			switch v.Payload() {
			case idl.PayloadStruct:
				variants[i] = v.Name + " { " + fieldList(v.Fields) + " }"
			case idl.PayloadTuple:
				elems := make([]string, len(v.Elems))
				for j, e := range v.Elems {
					elems[j] = e.String()
				}
				variants[i] = v.Name + "(" + strings.Join(elems, ", ") + ")"
			default:
				variants[i] = v.Name
			}
		}
		return "enum " + def.Name + " { " + strings.Join(variants, " | ") + " }"
	default:
		return string(def.Kind) + " " + def.Name + " { " + fieldList(def.Fields) + " }"
	}
}
