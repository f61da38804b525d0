package wire

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"

	"github.com/roach88/svcidl/internal/idl"
)

// FromNative converts a JSON- or YAML-shaped value into a typed Value.
// Integers and balances accept numbers or decimal strings, bytes and
// addresses accept 0x-prefixed hex, structs accept maps, enum variants
// accept a name or a single-entry map, and results accept {"Ok": x} or
// {"Err": x}.
func (c *Codec) FromNative(t idl.Type, x any) (Value, error) {
	return c.fromNative(nil, t, x, "")
}

func (c *Codec) fromNative(scope *idl.Interface, t idl.Type, x any, path string) (Value, error) {
	if scope == nil {
		scope = c.rootScope()
	}
	switch tt := t.(type) {
	case idl.Scalar:
		return scalarFromNative(tt, x, path)
	case idl.Tuple:
		items, ok := x.([]any)
		if !ok {
			return nil, encodeErr(path, "%s expects a list, got %T", t, x)
		}
		if len(items) != len(tt.Elems) {
			return nil, lengthErr(path, len(tt.Elems), len(items))
		}
		return c.seqFromNative(scope, tt.Elems, nil, items, path)
	case idl.Array:
		items, ok := x.([]any)
		if !ok {
			return nil, encodeErr(path, "%s expects a list, got %T", t, x)
		}
		if uint64(len(items)) != tt.Len {
			return nil, &Error{Code: ErrLengthMismatch, Path: path,
				Message: fmt.Sprintf("expected %d elements, got %d", tt.Len, len(items))}
		}
		return c.seqFromNative(scope, nil, tt.Elem, items, path)
	case idl.List:
		items, ok := x.([]any)
		if !ok {
			return nil, encodeErr(path, "%s expects a list, got %T", t, x)
		}
		return c.seqFromNative(scope, nil, tt.Elem, items, path)
	case idl.Optional:
		if x == nil {
			return None, nil
		}
		v, err := c.fromNative(scope, tt.Elem, x, path)
		if err != nil {
			return nil, err
		}
		return Some(v), nil
	case idl.Result:
		key, inner, err := singleKey(x, path)
		if err != nil {
			return nil, err
		}
		switch key {
		case "Ok":
			v, err := c.fromNative(scope, tt.Ok, inner, join(path, key))
			if err != nil {
				return nil, err
			}
			return Ok(v), nil
		case "Err":
			v, err := c.fromNative(scope, tt.Err, inner, join(path, key))
			if err != nil {
				return nil, err
			}
			return Fail(v), nil
		}
		return nil, &Error{Code: ErrInvalidEnvelope, Path: path, Message: fmt.Sprintf("result key must be Ok or Err, got %q", key)}
	case idl.Defined:
		def, owner, err := c.lookup(scope, tt, path, ErrEncode)
		if err != nil {
			return nil, err
		}
		return c.defFromNative(owner, def, x, join(path, def.Name))
	}
	return nil, encodeErr(path, "unsupported type %T", t)
}

func (c *Codec) seqFromNative(scope *idl.Interface, elems []idl.Type, elem idl.Type, items []any, path string) (Value, error) {
	seq := make(Seq, len(items))
	for i, item := range items {
		t := elem
		if elems != nil {
			t = elems[i]
		}
		v, err := c.fromNative(scope, t, item, index(path, i))
		if err != nil {
			return nil, err
		}
		seq[i] = v
	}
	return seq, nil
}

func (c *Codec) defFromNative(scope *idl.Interface, def *idl.TypeDef, x any, path string) (Value, error) {
	switch def.Kind {
	case idl.KindStruct, idl.KindEvent:
		return c.fieldsFromNative(scope, def.Fields, x, path)
	case idl.KindEnum:
		if name, ok := x.(string); ok {
			variant, found := def.Variant(name)
			if !found {
				return nil, encodeErr(path, "enum %s has no variant %q", def.Name, name)
			}
			if variant.Payload() != idl.PayloadUnit {
				return nil, encodeErr(path+"::"+name, "variant requires a payload")
			}
			return Variant{Name: name}, nil
		}
		name, inner, err := singleKey(x, path)
		if err != nil {
			return nil, err
		}
		variant, found := def.Variant(name)
		if !found {
			return nil, encodeErr(path, "enum %s has no variant %q", def.Name, name)
		}
		vpath := path + "::" + name
		switch variant.Payload() {
		case idl.PayloadTuple:
			items, ok := inner.([]any)
			if !ok {
				return nil, encodeErr(vpath, "tuple variant expects a list, got %T", inner)
			}
			if len(items) != len(variant.Elems) {
				return nil, lengthErr(vpath, len(variant.Elems), len(items))
			}
			seq, err := c.seqFromNative(scope, variant.Elems, nil, items, vpath)
			if err != nil {
				return nil, err
			}
			return Variant{Name: name, Payload: seq}, nil
		case idl.PayloadStruct:
			rec, err := c.fieldsFromNative(scope, variant.Fields, inner, vpath)
			if err != nil {
				return nil, err
			}
			return Variant{Name: name, Payload: rec}, nil
		}
		return nil, encodeErr(vpath, "variant carries no data")
	}
	return nil, encodeErr(path, "unknown def kind %q", def.Kind)
}

func (c *Codec) fieldsFromNative(scope *idl.Interface, fields []idl.Field, x any, path string) (Value, error) {
	m, ok := x.(map[string]any)
	if !ok {
		return nil, encodeErr(path, "expects a map, got %T", x)
	}
	rec := make(Record, len(fields))
	for _, f := range fields {
		fx, present := m[f.Name]
		if !present {
			return nil, encodeErr(join(path, f.Name), "missing field")
		}
		v, err := c.fromNative(scope, f.Type, fx, join(path, f.Name))
		if err != nil {
			return nil, err
		}
		rec[f.Name] = v
	}
	for k := range m {
		if !hasField(fields, k) {
			return nil, encodeErr(path, "unknown field %q", k)
		}
	}
	return rec, nil
}

func singleKey(x any, path string) (string, any, error) {
	m, ok := x.(map[string]any)
	if !ok || len(m) != 1 {
		return "", nil, encodeErr(path, "expects a single-entry map, got %v", x)
	}
	for k, v := range m {
		return k, v, nil
	}
	panic("unreachable")
}

func scalarFromNative(s idl.Scalar, x any, path string) (Value, error) {
	switch s {
	case idl.Unit:
		if x != nil {
			return nil, encodeErr(path, "unit expects null, got %v", x)
		}
		return Unit{}, nil
	case idl.Bool:
		b, ok := x.(bool)
		if !ok {
			return nil, encodeErr(path, "bool expects true or false, got %v", x)
		}
		return Bool(b), nil
	case idl.String:
		str, ok := x.(string)
		if !ok {
			return nil, encodeErr(path, "string expects text, got %T", x)
		}
		return Text(str), nil
	case idl.Bytes:
		str, ok := x.(string)
		if !ok {
			return nil, encodeErr(path, "bytes expects a hex string, got %T", x)
		}
		b, err := parseHex(str)
		if err != nil {
			return nil, encodeErr(path, "invalid hex: %v", err)
		}
		return Bytes(b), nil
	case idl.Address:
		str, ok := x.(string)
		if !ok {
			return nil, encodeErr(path, "address expects a hex string, got %T", x)
		}
		a, err := ParseAddress(str)
		if err != nil {
			return nil, &Error{Code: ErrLengthMismatch, Path: path, Message: "address", Err: err}
		}
		return a, nil
	case idl.Balance:
		n, err := bigFromNative(x, path)
		if err != nil {
			return nil, err
		}
		return Balance{V: n}, nil
	}
	if _, _, ok := s.IntBits(); !ok {
		return nil, encodeErr(path, "unknown scalar %q", s)
	}
	n, err := bigFromNative(x, path)
	if err != nil {
		return nil, err
	}
	return Int{V: n}, nil
}

func bigFromNative(x any, path string) (*big.Int, error) {
	switch n := x.(type) {
	case int:
		return big.NewInt(int64(n)), nil
	case int64:
		return big.NewInt(n), nil
	case uint64:
		return new(big.Int).SetUint64(n), nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return nil, encodeErr(path, "%v is not an integer", n)
		}
		b, _ := big.NewFloat(n).Int(nil)
		return b, nil
	case json.Number:
		return parseBig(string(n), path)
	case string:
		return parseBig(n, path)
	}
	return nil, encodeErr(path, "expects an integer, got %T", x)
}

func parseBig(s, path string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return nil, encodeErr(path, "invalid integer %q", s)
	}
	return n, nil
}

// ToNative converts a typed Value into its JSON-shaped form, the inverse
// of FromNative. Integers that do not fit an int64 become decimal strings.
func (c *Codec) ToNative(t idl.Type, v Value) (any, error) {
	return c.toNative(nil, t, v, "")
}

func (c *Codec) toNative(scope *idl.Interface, t idl.Type, v Value, path string) (any, error) {
	if scope == nil {
		scope = c.rootScope()
	}
	switch tt := t.(type) {
	case idl.Scalar:
		return scalarToNative(tt, v, path)
	case idl.Tuple:
		return c.seqToNative(scope, tt.Elems, nil, v, path)
	case idl.Array:
		return c.seqToNative(scope, nil, tt.Elem, v, path)
	case idl.List:
		return c.seqToNative(scope, nil, tt.Elem, v, path)
	case idl.Optional:
		opt, ok := v.(Optional)
		if !ok {
			return nil, mismatch(path, t, v)
		}
		if opt.Value == nil {
			return nil, nil
		}
		return c.toNative(scope, tt.Elem, opt.Value, path)
	case idl.Result:
		res, ok := v.(Result)
		if !ok {
			return nil, mismatch(path, t, v)
		}
		key, inner := "Ok", tt.Ok
		if res.Err {
			key, inner = "Err", tt.Err
		}
		x, err := c.toNative(scope, inner, res.Value, join(path, key))
		if err != nil {
			return nil, err
		}
		return map[string]any{key: x}, nil
	case idl.Defined:
		def, owner, err := c.lookup(scope, tt, path, ErrEncode)
		if err != nil {
			return nil, err
		}
		return c.defToNative(owner, def, v, join(path, def.Name))
	}
	return nil, encodeErr(path, "unsupported type %T", t)
}

func (c *Codec) seqToNative(scope *idl.Interface, elems []idl.Type, elem idl.Type, v Value, path string) (any, error) {
	seq, ok := v.(Seq)
	if !ok {
		return nil, encodeErr(path, "expects a sequence, got %T", v)
	}
	if elems != nil && len(elems) != len(seq) {
		return nil, lengthErr(path, len(elems), len(seq))
	}
	out := make([]any, len(seq))
	for i, ev := range seq {
		t := elem
		if elems != nil {
			t = elems[i]
		}
		x, err := c.toNative(scope, t, ev, index(path, i))
		if err != nil {
			return nil, err
		}
		out[i] = x
	}
	return out, nil
}

func (c *Codec) defToNative(scope *idl.Interface, def *idl.TypeDef, v Value, path string) (any, error) {
	switch def.Kind {
	case idl.KindStruct, idl.KindEvent:
		return c.fieldsToNative(scope, def.Fields, v, path)
	case idl.KindEnum:
		vv, ok := v.(Variant)
		if !ok {
			return nil, encodeErr(path, "enum %s expects a variant, got %T", def.Name, v)
		}
		variant, ok := def.Variant(vv.Name)
		if !ok {
			return nil, encodeErr(path, "enum %s has no variant %q", def.Name, vv.Name)
		}
		vpath := path + "::" + vv.Name
		var (
			inner any
			err   error
		)
		switch variant.Payload() {
		case idl.PayloadUnit:
			return vv.Name, nil
		case idl.PayloadTuple:
			inner, err = c.seqToNative(scope, variant.Elems, nil, vv.Payload, vpath)
		case idl.PayloadStruct:
			inner, err = c.fieldsToNative(scope, variant.Fields, vv.Payload, vpath)
		}
		if err != nil {
			return nil, err
		}
		return map[string]any{vv.Name: inner}, nil
	}
	return nil, encodeErr(path, "unknown def kind %q", def.Kind)
}

func (c *Codec) fieldsToNative(scope *idl.Interface, fields []idl.Field, v Value, path string) (any, error) {
	rec, ok := v.(Record)
	if !ok {
		return nil, encodeErr(path, "expects a record, got %T", v)
	}
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		fv, present := rec[f.Name]
		if !present {
			return nil, encodeErr(join(path, f.Name), "missing field")
		}
		x, err := c.toNative(scope, f.Type, fv, join(path, f.Name))
		if err != nil {
			return nil, err
		}
		out[f.Name] = x
	}
	return out, nil
}

func scalarToNative(s idl.Scalar, v Value, path string) (any, error) {
	switch x := v.(type) {
	case Unit:
		return nil, nil
	case Bool:
		return bool(x), nil
	case Text:
		return string(x), nil
	case Bytes:
		return "0x" + fmt.Sprintf("%x", []byte(x)), nil
	case Address:
		return x.String(), nil
	case Balance:
		return x.big().String(), nil
	case Int:
		n := x.big()
		if n.IsInt64() {
			return n.Int64(), nil
		}
		return n.String(), nil
	}
	return nil, mismatch(path, s, v)
}

// ArgsFromNative converts positional native arguments for params.
func (c *Codec) ArgsFromNative(params []idl.Field, args []any) ([]Value, error) {
	if len(args) != len(params) {
		return nil, lengthErr(KeyPayload, len(params), len(args))
	}
	out := make([]Value, len(args))
	for i, p := range params {
		v, err := c.FromNative(p.Type, args[i])
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", p.Name, err)
		}
		out[i] = v
	}
	return out, nil
}
