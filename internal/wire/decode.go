package wire

import (
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"

	"github.com/roach88/svcidl/internal/idl"
)

// Decode parses data as exactly one value of type t.
func (c *Codec) Decode(t idl.Type, data []byte) (Value, error) {
	if err := c.dm.Wellformed(data); err != nil {
		return nil, &Error{Code: ErrDecode, Message: "malformed input", Err: err}
	}
	if err := checkCanonical(data); err != nil {
		return nil, &Error{Code: ErrDecode, Message: "non-canonical input", Err: err}
	}
	return c.decode(nil, t, cbor.RawMessage(data), "")
}

// decodeRaw decodes one already well-formed item, as found inside an envelope.
func (c *Codec) decodeRaw(t idl.Type, raw cbor.RawMessage, path string) (Value, error) {
	return c.decode(nil, t, raw, path)
}

func (c *Codec) unmarshal(raw []byte, v any, path string) error {
	if err := c.dm.Unmarshal(raw, v); err != nil {
		return &Error{Code: ErrDecode, Path: path, Message: "cbor", Err: err}
	}
	return nil
}

func expectMajor(raw []byte, want byte, t fmt.Stringer, path string) error {
	if got := majorOf(raw); got != want {
		return decodeErr(path, "%s expects %s, got %s", t, majorName(want), majorName(got))
	}
	return nil
}

func (c *Codec) decode(scope *idl.Interface, t idl.Type, raw cbor.RawMessage, path string) (Value, error) {
	if scope == nil {
		scope = c.rootScope()
	}
	switch tt := t.(type) {
	case idl.Scalar:
		return c.decodeScalar(tt, raw, path)
	case idl.Tuple:
		items, err := c.decodeArray(tt, raw, path)
		if err != nil {
			return nil, err
		}
		if len(items) != len(tt.Elems) {
			return nil, lengthErr(path, len(tt.Elems), len(items))
		}
		return c.decodeItems(scope, tt.Elems, nil, items, path)
	case idl.Array:
		items, err := c.decodeArray(tt, raw, path)
		if err != nil {
			return nil, err
		}
		if uint64(len(items)) != tt.Len {
			return nil, &Error{Code: ErrLengthMismatch, Path: path,
				Message: fmt.Sprintf("expected %d elements, got %d", tt.Len, len(items))}
		}
		return c.decodeItems(scope, nil, tt.Elem, items, path)
	case idl.List:
		items, err := c.decodeArray(tt, raw, path)
		if err != nil {
			return nil, err
		}
		return c.decodeItems(scope, nil, tt.Elem, items, path)
	case idl.Optional:
		if isNull(raw) {
			return None, nil
		}
		v, err := c.decode(scope, tt.Elem, raw, path)
		if err != nil {
			return nil, err
		}
		return Some(v), nil
	case idl.Result:
		key, payload, err := c.decodeSingleEntry(tt, raw, path)
		if err != nil {
			return nil, &Error{Code: ErrInvalidEnvelope, Path: path, Message: "result must be a single-entry map", Err: err}
		}
		switch key {
		case "Ok":
			v, err := c.decode(scope, tt.Ok, payload, join(path, key))
			if err != nil {
				return nil, err
			}
			return Ok(v), nil
		case "Err":
			v, err := c.decode(scope, tt.Err, payload, join(path, key))
			if err != nil {
				return nil, err
			}
			return Fail(v), nil
		}
		return nil, &Error{Code: ErrInvalidEnvelope, Path: path, Message: fmt.Sprintf("result key must be Ok or Err, got %q", key)}
	case idl.Defined:
		def, owner, err := c.lookup(scope, tt, path, ErrDecode)
		if err != nil {
			return nil, err
		}
		return c.decodeDef(owner, def, raw, join(path, def.Name))
	case nil:
		return nil, decodeErr(path, "missing type")
	}
	return nil, decodeErr(path, "unsupported type %T", t)
}

func (c *Codec) decodeScalar(s idl.Scalar, raw cbor.RawMessage, path string) (Value, error) {
	switch s {
	case idl.Unit:
		if !isNull(raw) {
			return nil, decodeErr(path, "unit expects null, got %s", majorName(majorOf(raw)))
		}
		return Unit{}, nil
	case idl.Bool:
		if len(raw) == 1 && raw[0] == cborTrue {
			return Bool(true), nil
		}
		if len(raw) == 1 && raw[0] == cborFalse {
			return Bool(false), nil
		}
		return nil, decodeErr(path, "bool expects true or false")
	case idl.String:
		if err := expectMajor(raw, majorText, s, path); err != nil {
			return nil, err
		}
		var str string
		if err := c.unmarshal(raw, &str, path); err != nil {
			return nil, err
		}
		return Text(str), nil
	case idl.Bytes:
		b, err := c.byteString(s, raw, path)
		if err != nil {
			return nil, err
		}
		return Bytes(b), nil
	case idl.Address:
		b, err := c.byteString(s, raw, path)
		if err != nil {
			return nil, err
		}
		if len(b) != AddressLen {
			return nil, &Error{Code: ErrLengthMismatch, Path: path,
				Message: fmt.Sprintf("address must be %d bytes, got %d", AddressLen, len(b))}
		}
		var a Address
		copy(a[:], b)
		return a, nil
	case idl.Balance:
		tag, mag, err := c.bignum(s, raw, path)
		if err != nil {
			return nil, err
		}
		if tag != tagPosBignum {
			return nil, decodeErr(path, "balance must be a non-negative bignum")
		}
		return Balance{V: new(big.Int).SetBytes(mag)}, nil
	}

	bits, signed, ok := s.IntBits()
	if !ok {
		return nil, decodeErr(path, "unknown scalar %q", s)
	}
	var n *big.Int
	switch majorOf(raw) {
	case majorUint, majorNegInt:
		n = new(big.Int)
		if err := c.unmarshal(raw, n, path); err != nil {
			return nil, err
		}
	case majorTag:
		tag, mag, err := c.bignum(s, raw, path)
		if err != nil {
			return nil, err
		}
		n = new(big.Int).SetBytes(mag)
		if tag == tagNegBignum {
			n.Neg(n).Sub(n, big.NewInt(1)) // -1 - magnitude
		}
		if fitsCBORInt(n) {
			return nil, decodeErr(path, "non-canonical bignum for %s: value fits a plain integer", n)
		}
	default:
		return nil, decodeErr(path, "%s expects an integer, got %s", s, majorName(majorOf(raw)))
	}
	if !inRange(n, bits, signed) {
		return nil, decodeErr(path, "%s out of range for %s", n, s)
	}
	return Int{V: n}, nil
}

func (c *Codec) byteString(s idl.Scalar, raw cbor.RawMessage, path string) ([]byte, error) {
	if err := expectMajor(raw, majorBytes, s, path); err != nil {
		return nil, err
	}
	var b []byte
	if err := c.unmarshal(raw, &b, path); err != nil {
		return nil, err
	}
	return b, nil
}

// bignum parses a tag 2 or 3 item with a minimal big-endian magnitude.
func (c *Codec) bignum(s idl.Scalar, raw cbor.RawMessage, path string) (uint64, []byte, error) {
	if err := expectMajor(raw, majorTag, s, path); err != nil {
		return 0, nil, err
	}
	var rt cbor.RawTag
	if err := c.unmarshal(raw, &rt, path); err != nil {
		return 0, nil, err
	}
	if rt.Number != tagPosBignum && rt.Number != tagNegBignum {
		return 0, nil, decodeErr(path, "unexpected tag %d", rt.Number)
	}
	if err := expectMajor(rt.Content, majorBytes, s, path); err != nil {
		return 0, nil, err
	}
	var mag []byte
	if err := c.unmarshal(rt.Content, &mag, path); err != nil {
		return 0, nil, err
	}
	if len(mag) > 0 && mag[0] == 0 {
		return 0, nil, decodeErr(path, "non-canonical bignum with leading zero")
	}
	return rt.Number, mag, nil
}

func (c *Codec) decodeArray(t idl.Type, raw cbor.RawMessage, path string) ([]cbor.RawMessage, error) {
	if err := expectMajor(raw, majorArray, t, path); err != nil {
		return nil, err
	}
	var items []cbor.RawMessage
	if err := c.unmarshal(raw, &items, path); err != nil {
		return nil, err
	}
	return items, nil
}

func (c *Codec) decodeItems(scope *idl.Interface, elems []idl.Type, elem idl.Type, items []cbor.RawMessage, path string) (Value, error) {
	seq := make(Seq, len(items))
	for i, item := range items {
		t := elem
		if elems != nil {
			t = elems[i]
		}
		v, err := c.decode(scope, t, item, index(path, i))
		if err != nil {
			return nil, err
		}
		seq[i] = v
	}
	return seq, nil
}

func (c *Codec) decodeMap(t fmt.Stringer, raw cbor.RawMessage, path string) (map[string]cbor.RawMessage, error) {
	if err := expectMajor(raw, majorMap, t, path); err != nil {
		return nil, err
	}
	var m map[string]cbor.RawMessage
	if err := c.unmarshal(raw, &m, path); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *Codec) decodeSingleEntry(t fmt.Stringer, raw cbor.RawMessage, path string) (string, cbor.RawMessage, error) {
	m, err := c.decodeMap(t, raw, path)
	if err != nil {
		return "", nil, err
	}
	if len(m) != 1 {
		return "", nil, decodeErr(path, "expected exactly one entry, got %d", len(m))
	}
	for k, v := range m {
		return k, v, nil
	}
	panic("unreachable")
}

func (c *Codec) decodeDef(scope *idl.Interface, def *idl.TypeDef, raw cbor.RawMessage, path string) (Value, error) {
	switch def.Kind {
	case idl.KindStruct, idl.KindEvent:
		return c.decodeFields(scope, def.Fields, named(def.Name), raw, path)
	case idl.KindEnum:
		if majorOf(raw) == majorText {
			var name string
			if err := c.unmarshal(raw, &name, path); err != nil {
				return nil, err
			}
			variant, ok := def.Variant(name)
			if !ok {
				return nil, decodeErr(path, "enum %s has no variant %q", def.Name, name)
			}
			if variant.Payload() != idl.PayloadUnit {
				return nil, decodeErr(path+"::"+name, "variant requires a payload")
			}
			return Variant{Name: name}, nil
		}
		name, payload, err := c.decodeSingleEntry(named(def.Name), raw, path)
		if err != nil {
			return nil, err
		}
		variant, ok := def.Variant(name)
		if !ok {
			return nil, decodeErr(path, "enum %s has no variant %q", def.Name, name)
		}
		vpath := path + "::" + name
		switch variant.Payload() {
		case idl.PayloadTuple:
			tuple := idl.Tuple{Elems: variant.Elems}
			items, err := c.decodeArray(tuple, payload, vpath)
			if err != nil {
				return nil, err
			}
			if len(items) != len(variant.Elems) {
				return nil, lengthErr(vpath, len(variant.Elems), len(items))
			}
			seq, err := c.decodeItems(scope, variant.Elems, nil, items, vpath)
			if err != nil {
				return nil, err
			}
			return Variant{Name: name, Payload: seq}, nil
		case idl.PayloadStruct:
			rec, err := c.decodeFields(scope, variant.Fields, named(def.Name), payload, vpath)
			if err != nil {
				return nil, err
			}
			return Variant{Name: name, Payload: rec}, nil
		}
		return nil, decodeErr(vpath, "variant carries no data and must be encoded as a string")
	}
	return nil, decodeErr(path, "unknown def kind %q", def.Kind)
}

func (c *Codec) decodeFields(scope *idl.Interface, fields []idl.Field, t fmt.Stringer, raw cbor.RawMessage, path string) (Value, error) {
	m, err := c.decodeMap(t, raw, path)
	if err != nil {
		return nil, err
	}
	rec := make(Record, len(fields))
	for _, f := range fields {
		item, ok := m[f.Name]
		if !ok {
			return nil, decodeErr(join(path, f.Name), "missing field")
		}
		v, err := c.decode(scope, f.Type, item, join(path, f.Name))
		if err != nil {
			return nil, err
		}
		rec[f.Name] = v
	}
	if len(m) != len(fields) {
		for k := range m {
			if !hasField(fields, k) {
				return nil, decodeErr(path, "unknown field %q", k)
			}
		}
	}
	return rec, nil
}

func isNull(raw []byte) bool {
	return len(raw) == 1 && raw[0] == cborNull
}

// named labels a def in type-mismatch messages.
type named string

func (n named) String() string { return string(n) }
