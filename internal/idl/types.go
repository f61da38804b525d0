package idl

import (
	"fmt"
	"strings"
)

// Type is a sealed interface over the closed set of RPC-representable types.
// Only Scalar, Tuple, Array, List, Optional, Result and Defined implement it.
// Code switching over a Type must handle every one of them.
type Type interface {
	idlType() // Sealed
	String() string
}

// Scalar is a primitive type with no type parameters.
type Scalar string

func (Scalar) idlType() {}

// String returns the scalar's name as used in declarations.
func (s Scalar) String() string { return string(s) }

const (
	Unit    Scalar = "unit"
	Bool    Scalar = "bool"
	U8      Scalar = "u8"
	U16     Scalar = "u16"
	U32     Scalar = "u32"
	U64     Scalar = "u64"
	U128    Scalar = "u128"
	I8      Scalar = "i8"
	I16     Scalar = "i16"
	I32     Scalar = "i32"
	I64     Scalar = "i64"
	I128    Scalar = "i128"
	String  Scalar = "string"
	Bytes   Scalar = "bytes"
	Address Scalar = "address"
	Balance Scalar = "balance"
)

var scalarNames = map[string]Scalar{
	"unit": Unit, "bool": Bool,
	"u8": U8, "u16": U16, "u32": U32, "u64": U64, "u128": U128,
	"i8": I8, "i16": I16, "i32": I32, "i64": I64, "i128": I128,
	"string": String, "bytes": Bytes, "address": Address, "balance": Balance,
}

// ParseScalar returns the scalar with the given name.
func ParseScalar(name string) (Scalar, bool) {
	s, ok := scalarNames[name]
	return s, ok
}

// IntBits reports the width and signedness of an integer scalar.
// ok is false for non-integer scalars.
func (s Scalar) IntBits() (bits uint, signed bool, ok bool) {
	switch s {
	case U8:
		return 8, false, true
	case U16:
		return 16, false, true
	case U32:
		return 32, false, true
	case U64:
		return 64, false, true
	case U128:
		return 128, false, true
	case I8:
		return 8, true, true
	case I16:
		return 16, true, true
	case I32:
		return 32, true, true
	case I64:
		return 64, true, true
	case I128:
		return 128, true, true
	}
	return 0, false, false
}

// Tuple is an ordered, fixed-arity sequence of heterogeneous types.
type Tuple struct {
	Elems []Type
}

func (Tuple) idlType() {}

func (t Tuple) String() string {
	parts := make([]string, len(t.Elems))
	for i, e := range t.Elems {
		parts[i] = typeString(e)
	}
	return "tuple<" + strings.Join(parts, ", ") + ">"
}

// Array is a fixed-length homogeneous sequence.
type Array struct {
	Elem Type
	Len  uint64
}

func (Array) idlType() {}

func (a Array) String() string {
	return fmt.Sprintf("array<%s, %d>", typeString(a.Elem), a.Len)
}

// List is a variable-length homogeneous sequence.
type List struct {
	Elem Type
}

func (List) idlType() {}

func (l List) String() string { return "list<" + typeString(l.Elem) + ">" }

// Optional is either absent or a value of Elem.
type Optional struct {
	Elem Type
}

func (Optional) idlType() {}

func (o Optional) String() string { return "option<" + typeString(o.Elem) + ">" }

// Result is the outcome of a fallible operation: Ok or Err.
type Result struct {
	Ok  Type
	Err Type
}

func (Result) idlType() {}

func (r Result) String() string {
	return "result<" + typeString(r.Ok) + ", " + typeString(r.Err) + ">"
}

// Defined references a named type def.
// Namespace is empty for defs local to the interface in scope; otherwise it
// names one of that interface's imports.
type Defined struct {
	Namespace string
	Name      string
}

func (Defined) idlType() {}

func (d Defined) String() string {
	if d.Namespace == "" {
		return d.Name
	}
	return d.Namespace + "." + d.Name
}

func typeString(t Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}

// Equal reports whether two types are structurally identical.
func Equal(a, b Type) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case Scalar:
		y, ok := b.(Scalar)
		return ok && x == y
	case Tuple:
		y, ok := b.(Tuple)
		if !ok || len(x.Elems) != len(y.Elems) {
			return false
		}
		for i := range x.Elems {
			if !Equal(x.Elems[i], y.Elems[i]) {
				return false
			}
		}
		return true
	case Array:
		y, ok := b.(Array)
		return ok && x.Len == y.Len && Equal(x.Elem, y.Elem)
	case List:
		y, ok := b.(List)
		return ok && Equal(x.Elem, y.Elem)
	case Optional:
		y, ok := b.(Optional)
		return ok && Equal(x.Elem, y.Elem)
	case Result:
		y, ok := b.(Result)
		return ok && Equal(x.Ok, y.Ok) && Equal(x.Err, y.Err)
	case Defined:
		y, ok := b.(Defined)
		return ok && x == y
	}
	return false
}

// Walk calls fn for t and every type nested inside it, depth first.
// Defined references are reported but not followed.
func Walk(t Type, fn func(Type)) {
	if t == nil {
		return
	}
	fn(t)
	switch x := t.(type) {
	case Tuple:
		for _, e := range x.Elems {
			Walk(e, fn)
		}
	case Array:
		Walk(x.Elem, fn)
	case List:
		Walk(x.Elem, fn)
	case Optional:
		Walk(x.Elem, fn)
	case Result:
		Walk(x.Ok, fn)
		Walk(x.Err, fn)
	}
}
