package cli

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/svcidl/internal/idl"
	"github.com/roach88/svcidl/internal/wire"
)

// CallOptions holds flags for the call command.
type CallOptions struct {
	*RootOptions
	Args      string
	Reply     string
	Construct bool
	Imports   string
	Registry  string
}

// CallResult is an encoded call envelope or a decoded reply.
type CallResult struct {
	Method  string `json:"method"`
	Message string `json:"message,omitempty"` // Encoded envelope, hex
	Output  any    `json:"output,omitempty"`  // Decoded reply
	Failed  bool   `json:"failed,omitempty"`  // Reply carried an Err payload
}

func (r CallResult) renderText(w io.Writer) {
	if r.Message != "" {
		fmt.Fprintln(w, r.Message)
		return
	}
	data, err := json.MarshalIndent(r.Output, "", "  ")
	if err != nil {
		fmt.Fprintf(w, "%v\n", r.Output)
		return
	}
	fmt.Fprintln(w, string(data))
}

// NewCallCommand creates the call command.
func NewCallCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CallOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "call <artifact | name@version> <method>",
		Short: "Encode a call envelope or decode a reply",
		Long: `Encode the canonical CBOR envelope calling method with --args, given as a
JSON array of positional arguments. The method "new" or --construct
encodes a constructor call.

With --reply, decode a hex reply of method into JSON instead.

Examples:
  svcidl call wallet@1.0.0.json pay --args '["0x11...11", "1000"]'
  svcidl call wallet@1.0.0.json new --args '["0x11...11"]'
  svcidl call wallet@1.0.0.json pay --reply a1624f6bf6`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Args, "args", "[]", "arguments as a JSON array")
	cmd.Flags().StringVar(&opts.Reply, "reply", "", "hex reply to decode instead of encoding a call")
	cmd.Flags().BoolVar(&opts.Construct, "construct", false, "encode a constructor call")
	cmd.Flags().StringVar(&opts.Imports, "imports", "", "directory of imported artifacts")
	cmd.Flags().StringVar(&opts.Registry, "registry", "", "registry database")

	return cmd
}

func runCall(opts *CallOptions, target, method string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	iface, err := locate(cmd, opts.RootOptions, opts.Registry, target)
	if err != nil {
		return f.Fail(ExitCommandError, codeOf(err), err.Error(), nil)
	}

	env := &linkEnv{
		imports:  opts.Imports,
		registry: pick(opts.Registry, opts.config().Registry),
		logger:   opts.Logger,
	}
	if err := env.open(); err != nil {
		return f.Fail(ExitCommandError, codeOf(err), err.Error(), nil)
	}
	defer env.close()

	baseDir := ""
	if _, err := os.Stat(target); err == nil {
		baseDir = filepath.Dir(target)
	}
	linked, err := env.link(cmd.Context(), iface.Imports, baseDir)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeImport, err.Error(), nil)
	}
	codec, err := wire.NewCodec(idl.NewSchema(iface, linked))
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeArtifact, err.Error(), nil)
	}

	construct := opts.Construct || method == wire.ConstructorMethod
	var (
		fn     *idl.Function
		params []idl.Field
		ret    idl.Type
	)
	if construct {
		method = wire.ConstructorMethod
		params, ret = iface.Constructor.Arguments, iface.Constructor.ReturnType()
	} else {
		var ok bool
		if fn, ok = iface.Function(method); !ok {
			return f.Fail(ExitFailure, ErrCodeMethodNotFound, fmt.Sprintf("%s has no function %q", iface.Name, method), nil)
		}
		params, ret = fn.Arguments, fn.ReturnType()
	}

	if opts.Reply != "" {
		return decodeReply(f, codec, method, ret, opts.Reply)
	}

	native, err := parseArgs(opts.Args)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeArguments, err.Error(), nil)
	}
	args, err := codec.ArgsFromNative(params, native)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeArguments, err.Error(), nil)
	}

	var msg []byte
	if construct {
		msg, err = codec.EncodeConstruct(&iface.Constructor, args)
	} else {
		msg, err = codec.EncodeCall(fn, args)
	}
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeArguments, err.Error(), nil)
	}
	opts.Logger.Debug().Str("method", method).Int("bytes", len(msg)).Msg("encoded call")
	return f.Success(CallResult{Method: method, Message: hex.EncodeToString(msg)})
}

// parseArgs decodes a JSON array keeping numbers exact.
func parseArgs(s string) ([]any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var args []any
	if err := dec.Decode(&args); err != nil {
		return nil, fmt.Errorf("--args must be a JSON array: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("--args has trailing data")
	}
	if args == nil {
		args = []any{}
	}
	return args, nil
}

func decodeReply(f *OutputFormatter, codec *wire.Codec, method string, ret idl.Type, replyHex string) error {
	data, err := hex.DecodeString(strings.TrimPrefix(replyHex, "0x"))
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeArguments, fmt.Sprintf("--reply is not hex: %v", err), nil)
	}
	if ret == nil {
		if len(data) != 0 {
			return f.Fail(ExitFailure, ErrCodeReply, fmt.Sprintf("%s returns nothing, got %d bytes", method, len(data)), nil)
		}
		return f.Success(CallResult{Method: method})
	}

	v, err := codec.Decode(ret, data)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeReply, err.Error(), nil)
	}
	native, err := codec.ToNative(ret, v)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeReply, err.Error(), nil)
	}
	failed := false
	if r, ok := v.(wire.Result); ok {
		failed = r.Err
	}
	return f.Success(CallResult{Method: method, Output: native, Failed: failed})
}
