package wire

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/svcidl/internal/idl"
)

func bankInterface() *idl.Interface {
	return &idl.Interface{
		Name:    "Bank",
		Version: "1.0.0",
		TypeDefs: []idl.TypeDef{
			{Kind: idl.KindStruct, Name: "Account", Fields: []idl.Field{
				{Name: "owner", Type: idl.Address},
				{Name: "balance", Type: idl.Balance},
				{Name: "tags", Type: idl.List{Elem: idl.String}},
			}},
			{Kind: idl.KindStruct, Name: "Node", Fields: []idl.Field{
				{Name: "value", Type: idl.I64},
				{Name: "next", Type: idl.Optional{Elem: idl.Defined{Name: "Node"}}},
			}},
			{Kind: idl.KindEnum, Name: "Shape", Variants: []idl.Variant{
				{Name: "Empty"},
				{Name: "Circle", Elems: []idl.Type{idl.U32}},
				{Name: "Rect", Fields: []idl.Field{{Name: "w", Type: idl.U16}, {Name: "h", Type: idl.U16}}},
			}},
		},
		Functions: []idl.Function{
			{Name: "add", Mutability: idl.Immutable, Arguments: []idl.Field{
				{Name: "a", Type: idl.U32}, {Name: "b", Type: idl.U32},
			}, Output: idl.U32},
		},
		Events: []idl.TypeDef{
			{Kind: idl.KindEvent, Name: "Transfer", Fields: []idl.Field{
				{Name: "from", Type: idl.Address, Indexed: true},
				{Name: "to", Type: idl.Address, Indexed: true},
				{Name: "amount", Type: idl.Balance},
			}},
		},
	}
}

func bankCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := NewCodec(idl.NewSchema(bankInterface(), nil))
	require.NoError(t, err)
	return c
}

func addr(b byte) Address {
	var a Address
	for i := range a {
		a[i] = b
	}
	return a
}

func account() Record {
	return Record{
		"owner":   addr(0x11),
		"balance": NewBalance(5),
		"tags":    Seq{Text("a"), Text("b")},
	}
}

func unhex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func defined(name string) idl.Type { return idl.Defined{Name: name} }

var accountType = defined("Account")

// repeat returns s repeated n times; used to spell out fixed-width hex.
func repeat(s string, n int) string {
	return string(bytes.Repeat([]byte(s), n))
}
