package wire

import (
	"encoding/hex"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeCall(t *testing.T) {
	c := bankCodec(t)
	add, ok := bankInterface().Function("add")
	require.True(t, ok)

	data, err := c.EncodeCall(add, []Value{NewUint(2), NewUint(3)})
	require.NoError(t, err)
	assert.Equal(t, "a2666d6574686f6463616464677061796c6f6164820203", hex.EncodeToString(data))

	call, err := c.DecodeCall(data)
	require.NoError(t, err)
	assert.Equal(t, "add", call.Method)
	require.Len(t, call.Args, 2)

	args, err := c.DecodeArgs(add.Arguments, call.Args)
	require.NoError(t, err)
	assert.True(t, Equal(Seq{NewUint(2), NewUint(3)}, Seq(args)))
}

func TestEncodeCallArity(t *testing.T) {
	c := bankCodec(t)
	add, _ := bankInterface().Function("add")

	_, err := c.EncodeCall(add, []Value{NewUint(2)})
	require.Error(t, err)
	assert.True(t, IsLengthMismatch(err))
}

func TestDecodeCallInvalidEnvelope(t *testing.T) {
	c := bankCodec(t)

	tests := []struct {
		name string
		hex  string
	}{
		{"empty", ""},
		{"not a map", "820102"},
		{"missing payload", "a1666d6574686f6463616464"},
		{"missing method", "a1677061796c6f616480"},
		{"extra key", "a3666d6574686f6463616464677061796c6f616480" + "6178" + "01"},
		{"method not text", "a2666d6574686f6401677061796c6f616480"},
		{"payload not array", "a2666d6574686f6463616464677061796c6f6164a0"},
		{"truncated", "a2666d6574686f64"},
		{"trailing bytes", "a2666d6574686f6463616464677061796c6f616480" + "00"},
		{"payload length in wide head", "a2666d6574686f6463616464677061796c6f61649800"},
		{"map size in wide head", "b802666d6574686f6463616464677061796c6f616480"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.DecodeCall(unhex(t, tt.hex))
			require.Error(t, err)
			assert.True(t, IsInvalidEnvelope(err), "got %v", err)
		})
	}
}

func TestDecodeArgs(t *testing.T) {
	c := bankCodec(t)
	add, _ := bankInterface().Function("add")

	tests := []struct {
		name       string
		args       []cbor.RawMessage
		wantLength bool
		wantPath   string
	}{
		{name: "short", args: []cbor.RawMessage{{0x02}}, wantLength: true},
		{name: "long", args: []cbor.RawMessage{{0x02}, {0x03}, {0x04}}, wantLength: true},
		{name: "bad element", args: []cbor.RawMessage{{0x02}, {0x61, 0x61}}, wantPath: "b"},
		{name: "out of range", args: []cbor.RawMessage{{0x1b, 1, 0, 0, 0, 0, 0, 0, 0}, {0x03}}, wantPath: "a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.DecodeArgs(add.Arguments, tt.args)
			require.Error(t, err)
			if tt.wantLength {
				assert.True(t, IsLengthMismatch(err))
				return
			}
			var we *Error
			require.ErrorAs(t, err, &we)
			assert.Equal(t, tt.wantPath, we.Path)
		})
	}
}
