package harness

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/roach88/svcidl/internal/decl"
	"github.com/roach88/svcidl/internal/dispatch"
	"github.com/roach88/svcidl/internal/idl"
	"github.com/roach88/svcidl/internal/importer"
	"github.com/roach88/svcidl/internal/metrics"
	"github.com/roach88/svcidl/internal/resolver"
	"github.com/roach88/svcidl/internal/testutil"
	"github.com/roach88/svcidl/internal/wire"
)

// Harness is the scenario execution engine. It owns the dispatch table
// built for one scenario, a logical clock that stamps trace events, and
// the behaviour override of the step in flight.
type Harness struct {
	scenario *Scenario
	iface    *idl.Interface
	table    *dispatch.Table
	codec    *wire.Codec
	clock    *testutil.LogicalClock
	logger   zerolog.Logger

	// override replaces the scripted behaviour of every handler for the
	// duration of one step.
	override *Behavior
}

// Option configures Run.
type Option func(*config)

type config struct {
	logger   zerolog.Logger
	fallback importer.Importer
	metrics  *metrics.Collector
}

// WithLogger sets the logger handed to the resolver and the table.
func WithLogger(l zerolog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithMetrics records dispatch and resolve outcomes on m.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *config) { c.metrics = m }
}

// WithImporter sets the importer used for imports the scenario's
// artifact directory does not hold, typically the registry.
func WithImporter(imp importer.Importer) Option {
	return func(c *config) { c.fallback = imp }
}

// Run executes a scenario and returns the result.
//
// Execution flow:
// 1. Load the CUE declarations and link their imports
// 2. Resolve the interface and build a dispatch table with scripted handlers
// 3. Send each step's message and check its expect clause
// 4. Evaluate assertions against the trace
//
// The returned error reports a scenario that could not be executed at
// all; failed expectations are recorded on the Result instead.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := config{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	iface, linked, err := build(ctx, scenario, cfg)
	if err != nil {
		return nil, err
	}

	h := &Harness{
		scenario: scenario,
		iface:    iface,
		clock:    testutil.NewLogicalClock(),
		logger:   cfg.logger,
	}

	for name := range scenario.Handlers {
		if _, ok := iface.Function(name); !ok {
			return nil, fmt.Errorf("handlers.%s: %s declares no such function", name, iface.Name)
		}
	}

	handlers := make(dispatch.Handlers, len(iface.Functions))
	for i := range iface.Functions {
		fn := &iface.Functions[i]
		handlers[fn.Name] = h.handler(fn.Name, fn.Arguments, fn.Output, fn.Error)
	}
	ctor := &iface.Constructor
	tableOpts := []dispatch.Option{
		dispatch.WithLogger(cfg.logger),
		dispatch.WithMetrics(cfg.metrics),
		dispatch.WithIDGenerator(testutil.NewSequentialIDs(scenario.CallPrefix)),
		dispatch.WithConstructor(h.handler(wire.ConstructorMethod, ctor.Arguments, nil, ctor.Error)),
	}
	if scenario.Default != "" {
		tableOpts = append(tableOpts, dispatch.WithDefault(scenario.Default))
	}

	h.table, err = dispatch.NewTable(idl.NewSchema(iface, linked), handlers, tableOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build dispatch table: %w", err)
	}
	h.codec = h.table.Codec()

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func build(ctx context.Context, s *Scenario, cfg config) (*idl.Interface, map[idl.ImportKey]*idl.Interface, error) {
	set, err := decl.LoadOne(s.Decls, s.Service)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load declarations: %w", err)
	}

	var chain importer.Chain
	if s.Imports != "" {
		chain = append(chain, importer.DirImporter{Dir: s.Imports})
	}
	if cfg.fallback != nil {
		chain = append(chain, cfg.fallback)
	}
	linkOpts := importer.Options{BaseDir: s.Decls, Logger: cfg.logger}
	if len(chain) > 0 {
		linkOpts.Default = chain
	}
	linked, err := importer.Link(ctx, set, linkOpts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to link imports: %w", err)
	}

	iface, err := resolver.Resolve(resolver.Input{Decls: set, Imports: linked},
		resolver.WithLogger(cfg.logger), resolver.WithMetrics(cfg.metrics))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve %s: %w", set.Name, err)
	}
	return iface, linked, nil
}

// handler returns the scripted implementation of one method.
func (h *Harness) handler(method string, params []idl.Field, output, errType idl.Type) dispatch.HandlerFunc {
	return func(ctx context.Context, args []wire.Value) (wire.Value, error) {
		b := h.behavior(method)

		for _, e := range b.Emit {
			v, err := h.codec.FromNative(idl.Defined{Name: e.Event}, e.Fields)
			if err != nil {
				return nil, fmt.Errorf("emit %s: %w", e.Event, err)
			}
			rec, ok := v.(wire.Record)
			if !ok {
				return nil, fmt.Errorf("emit %s: not an event", e.Event)
			}
			if err := dispatch.Emit(ctx, e.Event, rec); err != nil {
				return nil, err
			}
		}

		switch {
		case b.Error != "":
			return nil, errors.New(b.Error)
		case b.Fail != nil:
			if errType == nil {
				return nil, dispatch.Fail(wire.Unit{})
			}
			v, err := h.codec.FromNative(errType, b.Fail)
			if err != nil {
				return nil, fmt.Errorf("fail payload: %w", err)
			}
			return nil, dispatch.Fail(v)
		case b.Echo != "":
			for i, p := range params {
				if p.Name == b.Echo {
					return args[i], nil
				}
			}
			return nil, fmt.Errorf("echo: %s has no argument %q", method, b.Echo)
		case b.Return != nil:
			if output == nil {
				return nil, fmt.Errorf("return: %s has no output", method)
			}
			return h.codec.FromNative(output, b.Return)
		}
		return nil, nil
	}
}

func (h *Harness) behavior(method string) Behavior {
	if h.override != nil {
		return *h.override
	}
	if method == wire.ConstructorMethod && h.scenario.Constructor != nil {
		return *h.scenario.Constructor
	}
	return h.scenario.Handlers[method]
}

// executeStep sends one message and records what happened.
func (h *Harness) executeStep(ctx context.Context, i int, step Step, result *Result) error {
	msg, method, err := h.message(step)
	if err != nil {
		return err
	}

	result.add(TraceEvent{
		Type:    EventCall,
		Seq:     h.clock.Tick(),
		Step:    i,
		Method:  method,
		Args:    step.Args,
		Message: hex.EncodeToString(msg),
	})

	h.override = step.Behave
	var reply *dispatch.Reply
	if step.Construct {
		reply, err = h.table.Construct(ctx, msg)
	} else {
		reply, err = h.table.Dispatch(ctx, msg)
	}
	h.override = nil

	if err != nil {
		return h.rejected(i, step, err, result)
	}
	return h.replied(i, step, reply, result)
}

// message builds the inbound bytes of a step and names the method it
// targets, when known before dispatch.
func (h *Harness) message(step Step) ([]byte, string, error) {
	switch {
	case step.Construct:
		args, err := h.codec.ArgsFromNative(h.iface.Constructor.Arguments, orEmpty(step.Args))
		if err != nil {
			return nil, "", fmt.Errorf("constructor args: %w", err)
		}
		msg, err := h.codec.EncodeConstruct(&h.iface.Constructor, args)
		return msg, wire.ConstructorMethod, err
	case step.Empty:
		return []byte{}, h.scenario.Default, nil
	case step.Raw != "":
		msg, err := hex.DecodeString(strings.TrimPrefix(step.Raw, "0x"))
		if err != nil {
			return nil, "", fmt.Errorf("raw message: %w", err)
		}
		return msg, "", nil
	}

	fn, ok := h.iface.Function(step.Call)
	if !ok {
		// Undeclared methods are still sent, to exercise the dispatcher's
		// lookup; they can only carry an empty payload.
		if len(step.Args) > 0 {
			return nil, "", fmt.Errorf("call %s: undeclared method cannot take args", step.Call)
		}
		fn = &idl.Function{Name: step.Call}
	}
	args, err := h.codec.ArgsFromNative(fn.Arguments, orEmpty(step.Args))
	if err != nil {
		return nil, "", fmt.Errorf("call %s: %w", step.Call, err)
	}
	msg, err := h.codec.EncodeCall(fn, args)
	return msg, step.Call, err
}

func orEmpty(args []any) []any {
	if args == nil {
		return []any{}
	}
	return args
}

func (h *Harness) rejected(i int, step Step, err error, result *Result) error {
	code, ok := dispatch.CodeOf(err)
	if !ok {
		return err
	}
	var de *dispatch.Error
	errors.As(err, &de)

	outcome := OutcomeProtocolError
	if code == dispatch.ErrHandlerFailed {
		outcome = OutcomeHandlerFailed
	}
	result.add(TraceEvent{
		Type:    EventRejected,
		Seq:     h.clock.Tick(),
		Step:    i,
		Method:  de.Method,
		Outcome: outcome,
		Code:    string(code),
		Error:   err.Error(),
	})
	h.logger.Debug().Int("step", i).Str("code", string(code)).Msg("step rejected")

	exp := step.Expect
	if exp == nil {
		result.AddError(fmt.Sprintf("step %d: unexpected %s: %v", i, outcome, err))
		return nil
	}
	if exp.Outcome != outcome {
		result.AddError(fmt.Sprintf("step %d: expected outcome %s, got %s (%v)", i, exp.Outcome, outcome, err))
		return nil
	}
	if exp.Code != "" && exp.Code != string(code) {
		result.AddError(fmt.Sprintf("step %d: expected code %s, got %s", i, exp.Code, code))
	}
	return nil
}

func (h *Harness) replied(i int, step Step, reply *dispatch.Reply, result *Result) error {
	output, errType := h.signature(reply.Method)
	payloadType, value, err := h.decodeOutput(output, errType, reply)
	if err != nil {
		return fmt.Errorf("decode reply of %s: %w", reply.Method, err)
	}
	var native any
	if value != nil {
		if native, err = h.codec.ToNative(payloadType, value); err != nil {
			return fmt.Errorf("reply of %s: %w", reply.Method, err)
		}
	}

	outcome := OutcomeOK
	if reply.Failed {
		outcome = OutcomeErr
	}
	result.add(TraceEvent{
		Type:    EventReply,
		Seq:     h.clock.Tick(),
		Step:    i,
		CallID:  reply.CallID,
		Method:  reply.Method,
		Outcome: outcome,
		Output:  native,
		Hex:     hex.EncodeToString(reply.Output),
	})
	for _, l := range reply.Events {
		topics := make([]string, len(l.Topics))
		for k, t := range l.Topics {
			topics[k] = t.String()
		}
		result.add(TraceEvent{
			Type:   EventEmit,
			Seq:    h.clock.Tick(),
			Step:   i,
			CallID: reply.CallID,
			Event:  l.Event,
			Topics: topics,
			Data:   hex.EncodeToString(l.Data),
		})
	}
	h.logger.Debug().Int("step", i).Str("method", reply.Method).Str("outcome", outcome).Msg("step replied")

	exp := step.Expect
	if exp == nil {
		return nil
	}
	if exp.Outcome != outcome {
		result.AddError(fmt.Sprintf("step %d: expected outcome %s, got %s", i, exp.Outcome, outcome))
		return nil
	}
	if exp.Hex != "" && !strings.EqualFold(strings.TrimPrefix(exp.Hex, "0x"), hex.EncodeToString(reply.Output)) {
		result.AddError(fmt.Sprintf("step %d: expected output bytes %s, got %x", i, exp.Hex, reply.Output))
	}
	if exp.Events != nil && *exp.Events != len(reply.Events) {
		result.AddError(fmt.Sprintf("step %d: expected %d events, got %d", i, *exp.Events, len(reply.Events)))
	}
	if exp.Output != nil {
		if payloadType == nil {
			result.AddError(fmt.Sprintf("step %d: expected output %v, %s produces none", i, exp.Output, reply.Method))
			return nil
		}
		want, err := h.codec.FromNative(payloadType, exp.Output)
		if err != nil {
			return fmt.Errorf("expected output: %w", err)
		}
		if !wire.Equal(want, value) {
			result.AddError(fmt.Sprintf("step %d: expected output %v, got %v", i, exp.Output, native))
		}
	}
	return nil
}

// signature returns the output and error types of a method the table
// replied for.
func (h *Harness) signature(method string) (output, errType idl.Type) {
	if method == wire.ConstructorMethod {
		return nil, h.iface.Constructor.Error
	}
	fn, ok := h.iface.Function(method)
	if !ok {
		return nil, nil
	}
	return fn.Output, fn.Error
}

// decodeOutput decodes a reply and unwraps a result envelope, returning
// the type and value of the Ok or Err payload.
func (h *Harness) decodeOutput(output, errType idl.Type, reply *dispatch.Reply) (idl.Type, wire.Value, error) {
	if len(reply.Output) == 0 {
		return nil, nil, nil
	}
	if errType == nil {
		v, err := h.codec.Decode(output, reply.Output)
		return output, v, err
	}

	okType := output
	if okType == nil {
		okType = idl.Unit
	}
	v, err := h.codec.Decode(idl.Result{Ok: okType, Err: errType}, reply.Output)
	if err != nil {
		return nil, nil, err
	}
	r := v.(wire.Result)
	if r.Err {
		return errType, r.Value, nil
	}
	return okType, r.Value, nil
}
