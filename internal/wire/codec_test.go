package wire

import (
	"encoding/hex"
	"math/big"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/svcidl/internal/idl"
)

func bigInt(t *testing.T, s string) *big.Int {
	t.Helper()
	n, ok := new(big.Int).SetString(s, 0)
	require.True(t, ok, s)
	return n
}

func TestEncodeScalars(t *testing.T) {
	c := MustNewCodec(nil)

	tests := []struct {
		name string
		typ  idl.Type
		val  Value
		hex  string
	}{
		{"unit", idl.Unit, Unit{}, "f6"},
		{"true", idl.Bool, Bool(true), "f5"},
		{"false", idl.Bool, Bool(false), "f4"},
		{"u8 zero", idl.U8, NewUint(0), "00"},
		{"u8 23", idl.U8, NewUint(23), "17"},
		{"u8 24", idl.U8, NewUint(24), "1818"},
		{"u16 256", idl.U16, NewUint(256), "190100"},
		{"u32 65536", idl.U32, NewUint(65536), "1a00010000"},
		{"u64 max", idl.U64, NewUint(^uint64(0)), "1bffffffffffffffff"},
		{"i8 -1", idl.I8, NewInt(-1), "20"},
		{"i32 -500", idl.I32, NewInt(-500), "3901f3"},
		{"i64 min", idl.I64, NewInt(-1 << 63), "3b7fffffffffffffff"},
		{"u128 2^64", idl.U128, Int{V: bigInt(t, "0x10000000000000000")}, "c249010000000000000000"},
		{"i128 -2^64", idl.I128, Int{V: bigInt(t, "-0x10000000000000000")}, "3bffffffffffffffff"},
		{"i128 -2^64-1", idl.I128, Int{V: bigInt(t, "-0x10000000000000001")}, "c349010000000000000000"},
		{"string", idl.String, Text("a"), "6161"},
		{"bytes", idl.Bytes, Bytes{1, 2}, "420102"},
		{"empty bytes", idl.Bytes, Bytes(nil), "40"},
		{"address", idl.Address, addr(0x11), "54" + repeat("11", 20)},
		{"balance zero", idl.Balance, NewBalance(0), "c240"},
		{"balance one", idl.Balance, NewBalance(1), "c24101"},
		{"balance 256", idl.Balance, NewBalance(256), "c2420100"},
		{"none", idl.Optional{Elem: idl.U8}, None, "f6"},
		{"some", idl.Optional{Elem: idl.U8}, Some(NewUint(1)), "01"},
		{"tuple", idl.Tuple{Elems: []idl.Type{idl.U8, idl.String}}, Seq{NewUint(1), Text("a")}, "82016161"},
		{"empty list", idl.List{Elem: idl.U8}, Seq{}, "80"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := c.Encode(tt.typ, tt.val)
			require.NoError(t, err)
			assert.Equal(t, tt.hex, hex.EncodeToString(data))

			back, err := c.Decode(tt.typ, data)
			require.NoError(t, err)
			assert.True(t, Equal(tt.val, back), "round trip: got %#v", back)
		})
	}
}

func TestEncodeOutOfRange(t *testing.T) {
	c := MustNewCodec(nil)

	tests := []struct {
		name string
		typ  idl.Type
		val  Value
	}{
		{"u8 256", idl.U8, NewUint(256)},
		{"u32 negative", idl.U32, NewInt(-1)},
		{"i8 128", idl.I8, NewInt(128)},
		{"i8 -129", idl.I8, NewInt(-129)},
		{"negative balance", idl.Balance, Balance{V: big.NewInt(-1)}},
		{"wrong kind", idl.String, NewUint(1)},
		{"tuple arity", idl.Tuple{Elems: []idl.Type{idl.U8}}, Seq{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Encode(tt.typ, tt.val)
			require.Error(t, err)
			code, ok := CodeOf(err)
			require.True(t, ok)
			assert.Equal(t, ErrEncode, code)
		})
	}
}

func TestCanonicalVectors(t *testing.T) {
	c := bankCodec(t)
	bank := bankInterface()
	add, _ := bank.Function("add")

	vectors := []struct {
		name string
		enc  func() ([]byte, error)
	}{
		{"account", func() ([]byte, error) { return c.Encode(accountType, account()) }},
		{"shape_empty", func() ([]byte, error) { return c.Encode(defined("Shape"), Variant{Name: "Empty"}) }},
		{"shape_circle", func() ([]byte, error) {
			return c.Encode(defined("Shape"), Variant{Name: "Circle", Payload: Seq{NewUint(5)}})
		}},
		{"shape_rect", func() ([]byte, error) {
			return c.Encode(defined("Shape"), Variant{Name: "Rect", Payload: Record{"h": NewUint(3), "w": NewUint(2)}})
		}},
		{"node", func() ([]byte, error) {
			return c.Encode(defined("Node"), Record{
				"value": NewInt(-7),
				"next":  Some(Record{"value": NewInt(1), "next": None}),
			})
		}},
		{"call_add", func() ([]byte, error) { return c.EncodeCall(add, []Value{NewUint(2), NewUint(3)}) }},
		{"result_ok", func() ([]byte, error) {
			return c.Encode(idl.Result{Ok: idl.U32, Err: idl.String}, Ok(NewUint(5)))
		}},
		{"result_err", func() ([]byte, error) {
			return c.Encode(idl.Result{Ok: idl.U32, Err: idl.String}, Fail(Text("Frozen")))
		}},
		{"transfer", func() ([]byte, error) {
			return c.Encode(defined("Transfer"), Record{"amount": NewBalance(1000), "to": addr(0x22), "from": addr(0x11)})
		}},
	}

	var lines []string
	for _, v := range vectors {
		data, err := v.enc()
		require.NoError(t, err, v.name)
		lines = append(lines, v.name+" "+hex.EncodeToString(data))
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "canonical_vectors", []byte(strings.Join(lines, "\n")+"\n"))
}

func TestCanonicalFormIndependentOfConstruction(t *testing.T) {
	c := bankCodec(t)

	a := Record{}
	a["tags"] = Seq{Text("a"), Text("b")}
	a["balance"] = NewBalance(5)
	a["owner"] = addr(0x11)

	b := Record{}
	b["owner"] = addr(0x11)
	b["balance"] = Balance{V: big.NewInt(5)}
	b["tags"] = Seq{Text("a"), Text("b")}

	encA, err := c.Encode(accountType, a)
	require.NoError(t, err)
	encB, err := c.Encode(accountType, b)
	require.NoError(t, err)
	assert.Equal(t, encA, encB)

	// Field order on the wire follows declaration order, not key order.
	assert.True(t, strings.HasPrefix(hex.EncodeToString(encA), "a3656f776e6572"))
}

func TestRoundTripComposite(t *testing.T) {
	c := bankCodec(t)

	tests := []struct {
		name string
		typ  idl.Type
		val  Value
	}{
		{"account", accountType, account()},
		{"empty tags", accountType, Record{"owner": addr(0), "balance": NewBalance(0), "tags": Seq{}}},
		{"unit variant", defined("Shape"), Variant{Name: "Empty"}},
		{"tuple variant", defined("Shape"), Variant{Name: "Circle", Payload: Seq{NewUint(9)}}},
		{"struct variant", defined("Shape"), Variant{Name: "Rect", Payload: Record{"w": NewUint(1), "h": NewUint(65535)}}},
		{"recursive", defined("Node"), Record{"value": NewInt(1), "next": Some(Record{"value": NewInt(2), "next": None})}},
		{"array", idl.Array{Elem: idl.Bool, Len: 2}, Seq{Bool(true), Bool(false)}},
		{"list of optionals", idl.List{Elem: idl.Optional{Elem: idl.String}}, Seq{None, Some(Text("x"))}},
		{"nested result", idl.Result{Ok: idl.Tuple{Elems: []idl.Type{}}, Err: defined("Shape")}, Fail(Variant{Name: "Empty"})},
		{"ok unit", idl.Result{Ok: idl.Unit, Err: idl.String}, Ok(Unit{})},
		{"list of records", idl.List{Elem: accountType}, Seq{account(), account()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := c.Encode(tt.typ, tt.val)
			require.NoError(t, err)
			back, err := c.Decode(tt.typ, data)
			require.NoError(t, err)
			assert.True(t, Equal(tt.val, back), "got %#v", back)

			again, err := c.Encode(tt.typ, back)
			require.NoError(t, err)
			assert.Equal(t, data, again)
		})
	}
}

func TestArrayLengthEnforcement(t *testing.T) {
	c := MustNewCodec(nil)

	data, err := c.Encode(idl.List{Elem: idl.U32}, Seq{NewUint(1), NewUint(2), NewUint(3)})
	require.NoError(t, err)

	_, err = c.Decode(idl.Array{Elem: idl.U32, Len: 4}, data)
	require.Error(t, err)
	assert.True(t, IsLengthMismatch(err))

	v, err := c.Decode(idl.List{Elem: idl.U32}, data)
	require.NoError(t, err)
	assert.Len(t, v.(Seq), 3)

	v, err = c.Decode(idl.Array{Elem: idl.U32, Len: 3}, data)
	require.NoError(t, err)
	assert.Len(t, v.(Seq), 3)

	// Encoding an Array value checks its length up front too.
	_, err = c.Encode(idl.Array{Elem: idl.U32, Len: 2}, Seq{NewUint(1)})
	assert.True(t, IsLengthMismatch(err))
}

func TestDecodeAddressLength(t *testing.T) {
	c := MustNewCodec(nil)

	_, err := c.Decode(idl.Address, unhex(t, "53"+repeat("11", 19)))
	require.Error(t, err)
	assert.True(t, IsLengthMismatch(err))

	_, err = c.Decode(idl.Address, unhex(t, "55"+repeat("11", 21)))
	assert.True(t, IsLengthMismatch(err))
}

func TestDecodeResultEnvelope(t *testing.T) {
	c := MustNewCodec(nil)
	typ := idl.Result{Ok: idl.U32, Err: idl.U32}

	tests := []struct {
		name string
		hex  string
	}{
		{"both keys", "a2624f6b0163457272" + "02"},
		{"empty map", "a0"},
		{"unknown key", "a1654d6179626501"},
		{"not a map", "01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Decode(typ, unhex(t, tt.hex))
			require.Error(t, err)
			assert.True(t, IsInvalidEnvelope(err), "got %v", err)
		})
	}

	v, err := c.Decode(typ, unhex(t, "a163457272"+"07"))
	require.NoError(t, err)
	assert.True(t, Equal(Fail(NewUint(7)), v))
}

func TestDecodeRejectsNonCanonicalInput(t *testing.T) {
	c := bankCodec(t)

	tests := []struct {
		name string
		typ  idl.Type
		hex  string
	}{
		{"trailing bytes", idl.U8, "0000"},
		{"indefinite array", idl.List{Elem: idl.U8}, "9f01ff"},
		{"duplicate keys", defined("Shape"), "a2" + "6452656374" + "a2617702616803" + "6452656374" + "a2617702616803"},
		{"small bignum", idl.U128, "c24105"},
		{"bignum leading zero", idl.Balance, "c2420001"},
		{"balance as integer", idl.Balance, "05"},
		{"negative balance", idl.Balance, "c34101"},
		{"float", idl.U64, "f93c00"},
		{"u8 overflow", idl.U8, "190100"},
		{"unsigned negative", idl.U32, "20"},
		{"text for bytes", idl.Bytes, "6161"},
		{"invalid utf8", idl.String, "61ff"},
		{"null for bool", idl.Bool, "f6"},
		{"unit variant with payload", defined("Shape"), "a165456d707479f6"},
		{"data variant as string", defined("Shape"), "66436972636c65"},
		{"unknown variant", defined("Shape"), "64426c6f62"},
		{"missing field", defined("Node"), "a16576616c756501"},
		{"unknown field", defined("Node"), "a36576616c756501646e657874f6" + "6178" + "01"},
		{"empty input", idl.Unit, ""},
		{"integer in wide head", idl.U8, "1805"},
		{"integer in four-byte head", idl.U64, "1a00000005"},
		{"text length in wide head", idl.String, "780161"},
		{"array length in wide head", idl.List{Elem: idl.U8}, "980101"},
		{"map size in wide head", defined("Node"), "b8026576616c756501646e657874f6"},
		{"bignum tag in wide head", idl.U128, "d8024901" + "0000000000000000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Decode(tt.typ, unhex(t, tt.hex))
			require.Error(t, err)
		})
	}
}

func TestDecodeErrorPath(t *testing.T) {
	c := bankCodec(t)

	// tags[1] is an integer instead of a string.
	bad := "a3656f776e657254" + repeat("11", 20) + "6762616c616e6365c24105" + "6474616773" + "82616101"
	_, err := c.Decode(accountType, unhex(t, bad))
	require.Error(t, err)

	var we *Error
	require.ErrorAs(t, err, &we)
	assert.Equal(t, ErrDecode, we.Code)
	assert.Equal(t, "Account.tags[1]", we.Path)
}

func TestDecodeStructFieldOrderIrrelevant(t *testing.T) {
	c := bankCodec(t)

	// {"h": 3, "w": 2} inside Rect, reverse of declaration order.
	v, err := c.Decode(defined("Shape"), unhex(t, "a16452656374a2616803617702"))
	require.NoError(t, err)
	assert.True(t, Equal(Variant{Name: "Rect", Payload: Record{"w": NewUint(2), "h": NewUint(3)}}, v))
}

func TestDefinedWithoutSchema(t *testing.T) {
	c := MustNewCodec(nil)
	_, err := c.Encode(accountType, account())
	require.Error(t, err)
	_, err = c.Decode(accountType, []byte{0xa0})
	require.Error(t, err)
}

func TestCodecConcurrentUse(t *testing.T) {
	c := bankCodec(t)
	want, err := c.Encode(accountType, account())
	require.NoError(t, err)

	done := make(chan []byte)
	for range 8 {
		go func() {
			data, _ := c.Encode(accountType, account())
			done <- data
		}()
	}
	for range 8 {
		assert.Equal(t, want, <-done)
	}
}
