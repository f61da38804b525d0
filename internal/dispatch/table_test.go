package dispatch

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/svcidl/internal/idl"
	"github.com/roach88/svcidl/internal/metrics"
	idgen "github.com/roach88/svcidl/internal/testutil"
	"github.com/roach88/svcidl/internal/wire"
)

func calcInterface() *idl.Interface {
	u32 := func(name string) idl.Field { return idl.Field{Name: name, Type: idl.U32} }
	return &idl.Interface{
		Name:    "Calc",
		Version: "1.0.0",
		TypeDefs: []idl.TypeDef{
			{Kind: idl.KindEnum, Name: "MathError", Variants: []idl.Variant{
				{Name: "DivideByZero"},
				{Name: "Overflow", Elems: []idl.Type{idl.U32}},
			}},
		},
		Functions: []idl.Function{
			{Name: "add", Mutability: idl.Immutable, Arguments: []idl.Field{u32("a"), u32("b")}, Output: idl.U32},
			{Name: "div", Mutability: idl.Immutable, Arguments: []idl.Field{u32("a"), u32("b")}, Output: idl.U32, Error: idl.Defined{Name: "MathError"}},
			{Name: "reset", Mutability: idl.Mutable},
			{Name: "store", Mutability: idl.Mutable, Arguments: []idl.Field{u32("v")}, Error: idl.String},
			{Name: "version", Mutability: idl.Immutable, Output: idl.String},
		},
		Constructor: idl.Constructor{Arguments: []idl.Field{u32("seed")}, Error: idl.String},
		Events: []idl.TypeDef{
			{Kind: idl.KindEvent, Name: "Added", Fields: []idl.Field{
				{Name: "a", Type: idl.U32, Indexed: true},
				{Name: "sum", Type: idl.U32},
			}},
		},
	}
}

func u32(v wire.Value) uint64 { return v.(wire.Int).V.Uint64() }

type calls struct{ n int }

func (c *calls) handlers() Handlers {
	return Handlers{
		"add": func(ctx context.Context, args []wire.Value) (wire.Value, error) {
			c.n++
			a, b := u32(args[0]), u32(args[1])
			if err := Emit(ctx, "Added", wire.Record{"a": args[0], "sum": wire.NewUint(a + b)}); err != nil {
				return nil, err
			}
			return wire.NewUint(a + b), nil
		},
		"div": func(_ context.Context, args []wire.Value) (wire.Value, error) {
			c.n++
			if u32(args[1]) == 0 {
				return nil, Fail(wire.Variant{Name: "DivideByZero"})
			}
			return wire.NewUint(u32(args[0]) / u32(args[1])), nil
		},
		"reset": func(context.Context, []wire.Value) (wire.Value, error) {
			c.n++
			return nil, nil
		},
		"store": func(_ context.Context, args []wire.Value) (wire.Value, error) {
			c.n++
			if u32(args[0]) > 100 {
				return nil, Fail(wire.Text("too large"))
			}
			return nil, nil
		},
		"version": func(context.Context, []wire.Value) (wire.Value, error) {
			c.n++
			return wire.Text("1.0.0"), nil
		},
	}
}

func newCalc(t *testing.T, opts ...Option) (*Table, *calls) {
	t.Helper()
	c := &calls{}
	opts = append([]Option{WithIDGenerator(idgen.NewSequentialIDs("call"))}, opts...)
	table, err := NewTable(idl.NewSchema(calcInterface(), nil), c.handlers(), opts...)
	require.NoError(t, err)
	return table, c
}

func call(t *testing.T, table *Table, method string, args ...wire.Value) []byte {
	t.Helper()
	fn, ok := table.Interface().Function(method)
	require.True(t, ok, method)
	msg, err := table.Codec().EncodeCall(fn, args)
	require.NoError(t, err)
	return msg
}

// envelope builds {"method": m, "payload": [ints...]} without consulting a signature.
func envelope(t *testing.T, method string, ints ...uint64) []byte {
	t.Helper()
	payload := make(wire.Seq, len(ints))
	types := make([]idl.Type, len(ints))
	for i, n := range ints {
		payload[i] = wire.NewUint(n)
		types[i] = idl.U64
	}
	c := wire.MustNewCodec(nil)
	fn := &idl.Function{Name: method}
	for i := range ints {
		fn.Arguments = append(fn.Arguments, idl.Field{Name: "x", Type: types[i]})
	}
	msg, err := c.EncodeCall(fn, payload)
	require.NoError(t, err)
	return msg
}

func TestDispatchAdd(t *testing.T) {
	table, c := newCalc(t)

	reply, err := table.Dispatch(context.Background(), envelope(t, "add", 2, 3))
	require.NoError(t, err)
	assert.Equal(t, "05", hex.EncodeToString(reply.Output))
	assert.False(t, reply.Failed)
	assert.Equal(t, "add", reply.Method)
	assert.Equal(t, "call-1", reply.CallID)
	assert.Equal(t, 1, c.n)

	require.Len(t, reply.Events, 1)
	assert.Equal(t, "Added", reply.Events[0].Event)
	assert.Equal(t, idl.EventTopic("Added"), reply.Events[0].Topics[0])
}

func TestDispatchMethodNotFound(t *testing.T) {
	table, c := newCalc(t)

	_, err := table.Dispatch(context.Background(), envelope(t, "subtract"))
	require.Error(t, err)
	assert.True(t, IsMethodNotFound(err))
	assert.True(t, IsProtocolError(err))
	assert.Equal(t, 0, c.n)
}

func TestDispatchArgumentDecodeError(t *testing.T) {
	table, c := newCalc(t)

	tests := []struct {
		name string
		msg  []byte
	}{
		{"short payload", envelope(t, "add", 2)},
		{"long payload", envelope(t, "add", 2, 3, 4)},
		{"out of range", envelope(t, "add", 2, 1<<40)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := table.Dispatch(context.Background(), tt.msg)
			require.Error(t, err)
			assert.True(t, IsArgumentDecode(err), "got %v", err)
		})
	}
	assert.Equal(t, 0, c.n)
}

func TestDispatchInvalidEnvelope(t *testing.T) {
	table, c := newCalc(t)

	for _, msg := range [][]byte{
		nil,
		{0x01},
		{0xa1, 0x66, 'm', 'e', 't', 'h', 'o', 'd', 0x63, 'a', 'd', 'd'},
	} {
		_, err := table.Dispatch(context.Background(), msg)
		require.Error(t, err)
		assert.True(t, IsInvalidEnvelope(err), "got %v", err)
	}
	assert.Equal(t, 0, c.n)
}

func TestDispatchFallible(t *testing.T) {
	table, _ := newCalc(t)
	ctx := context.Background()

	reply, err := table.Dispatch(ctx, call(t, table, "div", wire.NewUint(9), wire.NewUint(3)))
	require.NoError(t, err)
	assert.False(t, reply.Failed)
	// {"Ok": 3}
	assert.Equal(t, "a1624f6b03", hex.EncodeToString(reply.Output))

	reply, err = table.Dispatch(ctx, call(t, table, "div", wire.NewUint(9), wire.NewUint(0)))
	require.NoError(t, err)
	assert.True(t, reply.Failed)
	// {"Err": "DivideByZero"}
	assert.Equal(t, "a1634572726c4469766964654279"+"5a65726f", hex.EncodeToString(reply.Output))

	v, err := table.Codec().Decode(idl.Result{Ok: idl.U32, Err: idl.Defined{Name: "MathError"}}, reply.Output)
	require.NoError(t, err)
	assert.True(t, wire.Equal(wire.Fail(wire.Variant{Name: "DivideByZero"}), v))
}

func TestDispatchVoid(t *testing.T) {
	table, c := newCalc(t)
	ctx := context.Background()

	reply, err := table.Dispatch(ctx, call(t, table, "reset"))
	require.NoError(t, err)
	assert.Empty(t, reply.Output, "a function without output produces no bytes")
	assert.Equal(t, 1, c.n)

	// Fallible without output: {"Ok": null}
	reply, err = table.Dispatch(ctx, call(t, table, "store", wire.NewUint(1)))
	require.NoError(t, err)
	assert.Equal(t, "a1624f6bf6", hex.EncodeToString(reply.Output))

	reply, err = table.Dispatch(ctx, call(t, table, "store", wire.NewUint(101)))
	require.NoError(t, err)
	assert.True(t, reply.Failed)
	assert.Empty(t, reply.Events)
}

func TestDispatchHandlerFailures(t *testing.T) {
	boom := errors.New("boom")
	impls := (&calls{}).handlers()
	impls["add"] = func(context.Context, []wire.Value) (wire.Value, error) { return nil, boom }
	impls["version"] = func(context.Context, []wire.Value) (wire.Value, error) { return wire.NewUint(1), nil }
	impls["reset"] = func(context.Context, []wire.Value) (wire.Value, error) { return nil, Fail(wire.Text("no")) }

	table, err := NewTable(idl.NewSchema(calcInterface(), nil), impls)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = table.Dispatch(ctx, call(t, table, "add", wire.NewUint(1), wire.NewUint(2)))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	code, _ := CodeOf(err)
	assert.Equal(t, ErrHandlerFailed, code)
	assert.False(t, IsProtocolError(err))

	// Output of the wrong type.
	_, err = table.Dispatch(ctx, call(t, table, "version"))
	code, _ = CodeOf(err)
	assert.Equal(t, ErrHandlerFailed, code)

	// Fail from a function that declares no error type.
	_, err = table.Dispatch(ctx, call(t, table, "reset"))
	code, _ = CodeOf(err)
	assert.Equal(t, ErrHandlerFailed, code)
}

func TestDispatchDefaultFunction(t *testing.T) {
	table, _ := newCalc(t, WithDefault("version"))

	reply, err := table.Dispatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "version", reply.Method)
	assert.Equal(t, "65312e302e30", hex.EncodeToString(reply.Output))

	_, err = NewTable(idl.NewSchema(calcInterface(), nil), (&calls{}).handlers(), WithDefault("add"))
	assert.True(t, IsArgumentDecode(err))

	_, err = NewTable(idl.NewSchema(calcInterface(), nil), (&calls{}).handlers(), WithDefault("missing"))
	assert.True(t, IsMethodNotFound(err))
}

func TestNewTableHandlerCoverage(t *testing.T) {
	schema := idl.NewSchema(calcInterface(), nil)

	impls := (&calls{}).handlers()
	delete(impls, "div")
	_, err := NewTable(schema, impls)
	code, _ := CodeOf(err)
	assert.Equal(t, ErrMissingHandler, code)

	impls = (&calls{}).handlers()
	impls["subtract"] = impls["add"]
	_, err = NewTable(schema, impls)
	code, _ = CodeOf(err)
	assert.Equal(t, ErrMissingHandler, code)

	_, err = NewTable(nil, impls)
	assert.Error(t, err)
}

func TestConstruct(t *testing.T) {
	var seed uint64
	table, _ := newCalc(t, WithConstructor(func(_ context.Context, args []wire.Value) (wire.Value, error) {
		seed = u32(args[0])
		if seed == 0 {
			return nil, Fail(wire.Text("zero seed"))
		}
		return nil, nil
	}))
	ctx := context.Background()
	codec := table.Codec()
	ctor := &table.Interface().Constructor

	msg, err := codec.EncodeConstruct(ctor, []wire.Value{wire.NewUint(7)})
	require.NoError(t, err)
	reply, err := table.Construct(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), seed)
	assert.Equal(t, "a1624f6bf6", hex.EncodeToString(reply.Output))

	msg, err = codec.EncodeConstruct(ctor, []wire.Value{wire.NewUint(0)})
	require.NoError(t, err)
	reply, err = table.Construct(ctx, msg)
	require.NoError(t, err)
	assert.True(t, reply.Failed)

	_, err = table.Construct(ctx, envelope(t, "new"))
	assert.True(t, IsArgumentDecode(err))
}

func TestDispatchMetricsAndLogs(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)

	table, _ := newCalc(t, WithMetrics(m), WithLogger(logger))
	ctx := context.Background()

	_, err := table.Dispatch(ctx, envelope(t, "add", 1, 1))
	require.NoError(t, err)
	_, err = table.Dispatch(ctx, call(t, table, "div", wire.NewUint(1), wire.NewUint(0)))
	require.NoError(t, err)
	_, err = table.Dispatch(ctx, envelope(t, "nope"))
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.DispatchCalls.WithLabelValues("add", metrics.OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DispatchCalls.WithLabelValues("div", metrics.OutcomeErr)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DispatchCalls.WithLabelValues(unknownMethod, metrics.OutcomeProtocolError)))

	out := buf.String()
	assert.Contains(t, out, `"call_id":"call-1"`)
	assert.Contains(t, out, `"code":"METHOD_NOT_FOUND"`)
}

func TestEmitOutsideCall(t *testing.T) {
	err := Emit(context.Background(), "Added", wire.Record{})
	assert.ErrorIs(t, err, ErrNoEmitter)
}

func TestDispatchLargeValues(t *testing.T) {
	iface := &idl.Interface{
		Name: "Vault",
		Functions: []idl.Function{
			{Name: "double", Mutability: idl.Immutable, Arguments: []idl.Field{{Name: "x", Type: idl.U128}}, Output: idl.U128},
		},
	}
	table, err := NewTable(idl.NewSchema(iface, nil), Handlers{
		"double": func(_ context.Context, args []wire.Value) (wire.Value, error) {
			n := new(big.Int).Lsh(args[0].(wire.Int).V, 1)
			return wire.Int{V: n}, nil
		},
	})
	require.NoError(t, err)

	x := new(big.Int).Lsh(big.NewInt(1), 100)
	msg := call(t, table, "double", wire.Int{V: x})
	reply, err := table.Dispatch(context.Background(), msg)
	require.NoError(t, err)

	v, err := table.Codec().Decode(idl.U128, reply.Output)
	require.NoError(t, err)
	assert.Equal(t, 0, new(big.Int).Lsh(x, 1).Cmp(v.(wire.Int).V))
}
