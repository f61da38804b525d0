package wire

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math/big"
)

// Value is a sealed interface over typed wire values. Which Value a type
// takes:
//
//	unit                  Unit
//	bool                  Bool
//	integers              Int
//	string                Text
//	bytes                 Bytes
//	address               Address
//	balance               Balance
//	tuple, array, list    Seq
//	optional              Optional
//	result                Result
//	struct, event         Record
//	enum                  Variant
type Value interface {
	wireValue() // Sealed
}

// Unit is the single value of the unit type.
type Unit struct{}

func (Unit) wireValue() {}

// Bool is a boolean value.
type Bool bool

func (Bool) wireValue() {}

// Int is an integer of any declared width. A nil pointer is zero.
type Int struct{ V *big.Int }

func (Int) wireValue() {}

// NewInt returns an Int holding n.
func NewInt(n int64) Int { return Int{V: big.NewInt(n)} }

// NewUint returns an Int holding n.
func NewUint(n uint64) Int { return Int{V: new(big.Int).SetUint64(n)} }

func (i Int) big() *big.Int {
	if i.V == nil {
		return new(big.Int)
	}
	return i.V
}

// Text is a UTF-8 string value.
type Text string

func (Text) wireValue() {}

// Bytes is an opaque byte string.
type Bytes []byte

func (Bytes) wireValue() {}

// AddressLen is the fixed size of an address.
const AddressLen = 20

// Address is a 160-bit account identifier.
type Address [AddressLen]byte

func (Address) wireValue() {}

// String returns the 0x-prefixed hex form.
func (a Address) String() string { return "0x" + hex.EncodeToString(a[:]) }

// ParseAddress parses a 0x-prefixed (or bare) 40-digit hex address.
func ParseAddress(s string) (Address, error) {
	var a Address
	b, err := parseHex(s)
	if err != nil {
		return a, err
	}
	if len(b) != AddressLen {
		return a, fmt.Errorf("address must be %d bytes, got %d", AddressLen, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// Balance is a non-negative arbitrary-precision amount. A nil pointer is zero.
type Balance struct{ V *big.Int }

func (Balance) wireValue() {}

// NewBalance returns a Balance holding n.
func NewBalance(n uint64) Balance { return Balance{V: new(big.Int).SetUint64(n)} }

func (b Balance) big() *big.Int {
	if b.V == nil {
		return new(big.Int)
	}
	return b.V
}

// Seq is the value of a tuple, array or list.
type Seq []Value

func (Seq) wireValue() {}

// Optional is present when Value is non-nil.
type Optional struct{ Value Value }

func (Optional) wireValue() {}

// None is the absent optional.
var None = Optional{}

// Some returns a present optional.
func Some(v Value) Optional { return Optional{Value: v} }

// Result is the outcome of a fallible call.
type Result struct {
	Err   bool
	Value Value
}

func (Result) wireValue() {}

// Ok returns a successful Result.
func Ok(v Value) Result { return Result{Value: v} }

// Fail returns a failed Result.
func Fail(v Value) Result { return Result{Err: true, Value: v} }

// Record is the value of a struct or event, keyed by field name.
// Iteration order is irrelevant; encoding uses declaration order.
type Record map[string]Value

func (Record) wireValue() {}

// Variant is the value of an enum. Payload is nil for a variant without
// data, a Seq for a tuple-like variant and a Record for a struct-like one.
type Variant struct {
	Name    string
	Payload Value
}

func (Variant) wireValue() {}

// Equal reports whether two values are logically identical.
func Equal(a, b Value) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case Unit:
		_, ok := b.(Unit)
		return ok
	case Bool:
		y, ok := b.(Bool)
		return ok && x == y
	case Int:
		y, ok := b.(Int)
		return ok && x.big().Cmp(y.big()) == 0
	case Text:
		y, ok := b.(Text)
		return ok && x == y
	case Bytes:
		y, ok := b.(Bytes)
		return ok && bytes.Equal(x, y)
	case Address:
		y, ok := b.(Address)
		return ok && x == y
	case Balance:
		y, ok := b.(Balance)
		return ok && x.big().Cmp(y.big()) == 0
	case Seq:
		y, ok := b.(Seq)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case Optional:
		y, ok := b.(Optional)
		return ok && Equal(x.Value, y.Value)
	case Result:
		y, ok := b.(Result)
		return ok && x.Err == y.Err && Equal(x.Value, y.Value)
	case Record:
		y, ok := b.(Record)
		if !ok || len(x) != len(y) {
			return false
		}
		for k, v := range x {
			w, present := y[k]
			if !present || !Equal(v, w) {
				return false
			}
		}
		return true
	case Variant:
		y, ok := b.(Variant)
		return ok && x.Name == y.Name && Equal(x.Payload, y.Payload)
	}
	return false
}

func parseHex(s string) ([]byte, error) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	return hex.DecodeString(s)
}
