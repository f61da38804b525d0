package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/roach88/svcidl/internal/idl"
	"github.com/roach88/svcidl/internal/metrics"
	"github.com/roach88/svcidl/internal/wire"
)

// unknownMethod labels metrics for calls that named no method, keeping
// label cardinality bounded by the interface.
const unknownMethod = "_unknown"

// Reply is the outcome of a call that reached its handler.
type Reply struct {
	CallID string
	Method string

	// Output is the outbound payload: a bare value, a result envelope, or
	// empty for functions that produce nothing.
	Output []byte

	// Failed is set when the handler returned an application Err payload.
	// Output then holds the encoded {"Err": payload}.
	Failed bool

	// Events emitted by the handler. Discarded when Failed is set.
	Events []wire.Log
}

type handler struct {
	fn     *idl.Function
	invoke HandlerFunc
}

// Table maps method names to handlers for one interface.
type Table struct {
	iface    *idl.Interface
	codec    *wire.Codec
	handlers map[string]*handler
	ctor     HandlerFunc
	fallback string

	logger  zerolog.Logger
	metrics *metrics.Collector
	ids     IDGenerator
}

// Option configures a Table.
type Option func(*Table)

// WithConstructor sets the constructor implementation. Without one,
// Construct decodes and validates arguments and succeeds without effect.
func WithConstructor(fn HandlerFunc) Option {
	return func(t *Table) {
		t.ctor = fn
	}
}

// WithDefault designates the function invoked by an empty message. The
// function must take no arguments.
func WithDefault(name string) Option {
	return func(t *Table) {
		t.fallback = name
	}
}

// WithLogger sets the logger. Default: zerolog.Nop().
func WithLogger(l zerolog.Logger) Option {
	return func(t *Table) {
		t.logger = l
	}
}

// WithMetrics records calls on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(t *Table) {
		t.metrics = c
	}
}

// WithIDGenerator sets the call id source. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(t *Table) {
		t.ids = g
	}
}

// NewTable builds the handler table for the root interface of schema.
// Every declared function needs an implementation and every
// implementation must name a declared function.
func NewTable(schema *idl.Schema, impls Handlers, opts ...Option) (*Table, error) {
	if schema == nil || schema.Root() == nil {
		return nil, errors.New("dispatch: nil schema")
	}
	codec, err := wire.NewCodec(schema)
	if err != nil {
		return nil, fmt.Errorf("dispatch: %w", err)
	}

	iface := schema.Root()
	t := &Table{
		iface:    iface,
		codec:    codec,
		handlers: make(map[string]*handler, len(iface.Functions)),
		logger:   zerolog.Nop(),
		ids:      UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(t)
	}

	var missing []string
	for i := range iface.Functions {
		fn := &iface.Functions[i]
		impl, ok := impls[fn.Name]
		if !ok || impl == nil {
			missing = append(missing, fn.Name)
			continue
		}
		t.handlers[fn.Name] = &handler{fn: fn, invoke: impl}
	}
	if len(missing) > 0 {
		return nil, &Error{Code: ErrMissingHandler, Err: fmt.Errorf("no implementation for %v", missing)}
	}

	var extra []string
	for name := range impls {
		if _, ok := t.handlers[name]; !ok {
			extra = append(extra, name)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		return nil, &Error{Code: ErrMissingHandler, Err: fmt.Errorf("interface %s declares no function %v", iface.Name, extra)}
	}

	if t.fallback != "" {
		h, ok := t.handlers[t.fallback]
		if !ok {
			return nil, &Error{Code: ErrMethodNotFound, Method: t.fallback, Err: errors.New("default function not declared")}
		}
		if len(h.fn.Arguments) != 0 {
			return nil, &Error{Code: ErrArgumentDecode, Method: t.fallback, Err: errors.New("default function must take no arguments")}
		}
	}
	return t, nil
}

// Interface returns the interface the table serves.
func (t *Table) Interface() *idl.Interface { return t.iface }

// Codec returns the codec bound to the table's schema.
func (t *Table) Codec() *wire.Codec { return t.codec }

// Methods returns the dispatchable method names in declaration order.
func (t *Table) Methods() []string {
	names := make([]string, 0, len(t.iface.Functions))
	for _, fn := range t.iface.Functions {
		names = append(names, fn.Name)
	}
	return names
}

// Dispatch decodes msg, invokes the matching handler and encodes its
// outcome. A non-nil error means no Reply was produced; see Error for
// the codes.
func (t *Table) Dispatch(ctx context.Context, msg []byte) (*Reply, error) {
	start := time.Now()
	callID := t.ids.Generate()
	log := t.logger.With().Str("call_id", callID).Logger()

	var (
		h    *handler
		args []wire.Value
	)
	if len(msg) == 0 && t.fallback != "" {
		h = t.handlers[t.fallback]
	} else {
		call, err := t.codec.DecodeCall(msg)
		if err != nil {
			return nil, t.protocolError(log, start, &Error{Code: ErrInvalidEnvelope, Err: err}, unknownMethod)
		}
		var ok bool
		h, ok = t.handlers[call.Method]
		if !ok {
			return nil, t.protocolError(log, start, &Error{Code: ErrMethodNotFound, Method: call.Method}, unknownMethod)
		}
		args, err = t.codec.DecodeArgs(h.fn.Arguments, call.Args)
		if err != nil {
			return nil, t.protocolError(log, start, &Error{Code: ErrArgumentDecode, Method: call.Method, Err: err}, call.Method)
		}
	}

	reply, err := t.invoke(ctx, h.fn.Name, h.fn.Output, h.fn.Error, h.invoke, args)
	if err != nil {
		log.Error().Err(err).Str("method", h.fn.Name).Msg("handler failed")
		t.metrics.ObserveDispatch(h.fn.Name, metrics.OutcomeHandlerFailed, time.Since(start))
		return nil, err
	}
	reply.CallID = callID

	outcome := metrics.OutcomeOK
	if reply.Failed {
		outcome = metrics.OutcomeErr
	}
	log.Debug().
		Str("method", h.fn.Name).
		Str("outcome", outcome).
		Int("output_bytes", len(reply.Output)).
		Int("events", len(reply.Events)).
		Msg("dispatched")
	t.metrics.ObserveDispatch(h.fn.Name, outcome, time.Since(start))
	return reply, nil
}

// Construct runs the constructor with the arguments of msg. The envelope
// method name is not consulted. Whether a service may be constructed more
// than once is up to the caller.
func (t *Table) Construct(ctx context.Context, msg []byte) (*Reply, error) {
	start := time.Now()
	callID := t.ids.Generate()
	log := t.logger.With().Str("call_id", callID).Logger()
	ctor := &t.iface.Constructor

	call, err := t.codec.DecodeCall(msg)
	if err != nil {
		return nil, t.protocolError(log, start, &Error{Code: ErrInvalidEnvelope, Method: wire.ConstructorMethod, Err: err}, wire.ConstructorMethod)
	}
	args, err := t.codec.DecodeArgs(ctor.Arguments, call.Args)
	if err != nil {
		return nil, t.protocolError(log, start, &Error{Code: ErrArgumentDecode, Method: wire.ConstructorMethod, Err: err}, wire.ConstructorMethod)
	}

	impl := t.ctor
	if impl == nil {
		impl = func(context.Context, []wire.Value) (wire.Value, error) { return nil, nil }
	}
	reply, err := t.invoke(ctx, wire.ConstructorMethod, nil, ctor.Error, impl, args)
	if err != nil {
		log.Error().Err(err).Msg("constructor failed")
		t.metrics.ObserveDispatch(wire.ConstructorMethod, metrics.OutcomeHandlerFailed, time.Since(start))
		return nil, err
	}
	reply.CallID = callID

	outcome := metrics.OutcomeOK
	if reply.Failed {
		outcome = metrics.OutcomeErr
	}
	log.Debug().Str("outcome", outcome).Msg("constructed")
	t.metrics.ObserveDispatch(wire.ConstructorMethod, outcome, time.Since(start))
	return reply, nil
}

func (t *Table) invoke(ctx context.Context, method string, output, errType idl.Type, impl HandlerFunc, args []wire.Value) (*Reply, error) {
	em := &Emitter{codec: t.codec}
	v, err := impl(withEmitter(ctx, em), args)
	events := em.drain()

	if err != nil {
		f, ok := AsFailure(err)
		if !ok {
			return nil, &Error{Code: ErrHandlerFailed, Method: method, Err: err}
		}
		if errType == nil {
			return nil, &Error{Code: ErrHandlerFailed, Method: method,
				Err: fmt.Errorf("function declares no error type: %w", err)}
		}
		out, encErr := t.codec.Encode(idl.Result{Ok: okType(output), Err: errType}, wire.Fail(f.Payload))
		if encErr != nil {
			return nil, &Error{Code: ErrHandlerFailed, Method: method, Err: fmt.Errorf("encode error payload: %w", encErr)}
		}
		return &Reply{Method: method, Output: out, Failed: true}, nil
	}

	var out []byte
	switch {
	case errType != nil:
		if output == nil {
			v = wire.Unit{}
		}
		out, err = t.codec.Encode(idl.Result{Ok: okType(output), Err: errType}, wire.Ok(v))
	case output != nil:
		out, err = t.codec.Encode(output, v)
	case v != nil:
		if _, unit := v.(wire.Unit); !unit {
			err = fmt.Errorf("function has no output, handler returned %T", v)
		}
	}
	if err != nil {
		return nil, &Error{Code: ErrHandlerFailed, Method: method, Err: fmt.Errorf("encode output: %w", err)}
	}
	return &Reply{Method: method, Output: out, Events: events}, nil
}

func (t *Table) protocolError(log zerolog.Logger, start time.Time, err *Error, label string) error {
	log.Warn().Err(err).Str("code", string(err.Code)).Msg("call rejected")
	t.metrics.ObserveDispatch(label, metrics.OutcomeProtocolError, time.Since(start))
	return err
}

func okType(output idl.Type) idl.Type {
	if output == nil {
		return idl.Unit
	}
	return output
}
