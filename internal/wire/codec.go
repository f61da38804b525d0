package wire

import (
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"

	"github.com/roach88/svcidl/internal/idl"
)

// maxNesting bounds container depth on decode.
const maxNesting = 256

// Codec encodes and decodes values of the types in one schema.
type Codec struct {
	schema *idl.Schema
	em     cbor.EncMode
	dm     cbor.DecMode
}

// NewCodec creates a codec for the types reachable from schema. A nil
// schema is allowed for types that contain no Defined references.
func NewCodec(schema *idl.Schema) (*Codec, error) {
	encOpts := cbor.CoreDetEncOptions()
	encOpts.BigIntConvert = cbor.BigIntConvertShortest
	encOpts.IndefLength = cbor.IndefLengthForbidden
	em, err := encOpts.EncMode()
	if err != nil {
		return nil, fmt.Errorf("cbor encode mode: %w", err)
	}

	dm, err := cbor.DecOptions{
		DupMapKey:       cbor.DupMapKeyEnforcedAPF,
		IndefLength:     cbor.IndefLengthForbidden,
		UTF8:            cbor.UTF8RejectInvalid,
		MaxNestedLevels: maxNesting,
	}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("cbor decode mode: %w", err)
	}
	return &Codec{schema: schema, em: em, dm: dm}, nil
}

// MustNewCodec is like NewCodec but panics on error.
func MustNewCodec(schema *idl.Schema) *Codec {
	c, err := NewCodec(schema)
	if err != nil {
		panic(err)
	}
	return c
}

// Schema returns the schema the codec resolves Defined types against.
func (c *Codec) Schema() *idl.Schema { return c.schema }

// Encode returns the canonical encoding of v as a value of type t.
func (c *Codec) Encode(t idl.Type, v Value) ([]byte, error) {
	return c.encode(nil, t, v, "")
}

func (c *Codec) rootScope() *idl.Interface {
	if c.schema == nil {
		return nil
	}
	return c.schema.Root()
}

func (c *Codec) lookup(scope *idl.Interface, d idl.Defined, path string, code ErrorCode) (*idl.TypeDef, *idl.Interface, error) {
	if c.schema == nil {
		return nil, nil, &Error{Code: code, Path: path, Message: fmt.Sprintf("no schema to resolve %s", d)}
	}
	def, owner, err := c.schema.Lookup(scope, d)
	if err != nil {
		return nil, nil, &Error{Code: code, Path: path, Message: "unresolved type", Err: err}
	}
	return def, owner, nil
}

func (c *Codec) marshal(path string, v any) ([]byte, error) {
	b, err := c.em.Marshal(v)
	if err != nil {
		return nil, &Error{Code: ErrEncode, Path: path, Message: "cbor", Err: err}
	}
	return b, nil
}

func (c *Codec) encode(scope *idl.Interface, t idl.Type, v Value, path string) ([]byte, error) {
	if scope == nil {
		scope = c.rootScope()
	}
	switch tt := t.(type) {
	case idl.Scalar:
		return c.encodeScalar(tt, v, path)
	case idl.Tuple:
		seq, ok := v.(Seq)
		if !ok {
			return nil, mismatch(path, t, v)
		}
		if len(seq) != len(tt.Elems) {
			return nil, encodeErr(path, "tuple of %d elements given %d values", len(tt.Elems), len(seq))
		}
		return c.encodeSeq(scope, tt.Elems, nil, seq, path)
	case idl.Array:
		seq, ok := v.(Seq)
		if !ok {
			return nil, mismatch(path, t, v)
		}
		if uint64(len(seq)) != tt.Len {
			return nil, &Error{Code: ErrLengthMismatch, Path: path,
				Message: fmt.Sprintf("expected %d elements, got %d", tt.Len, len(seq))}
		}
		return c.encodeSeq(scope, nil, tt.Elem, seq, path)
	case idl.List:
		seq, ok := v.(Seq)
		if !ok {
			return nil, mismatch(path, t, v)
		}
		return c.encodeSeq(scope, nil, tt.Elem, seq, path)
	case idl.Optional:
		opt, ok := v.(Optional)
		if !ok {
			return nil, mismatch(path, t, v)
		}
		if opt.Value == nil {
			return []byte{cborNull}, nil
		}
		return c.encode(scope, tt.Elem, opt.Value, path)
	case idl.Result:
		res, ok := v.(Result)
		if !ok {
			return nil, mismatch(path, t, v)
		}
		key, inner := "Ok", tt.Ok
		if res.Err {
			key, inner = "Err", tt.Err
		}
		payload, err := c.encode(scope, inner, res.Value, join(path, key))
		if err != nil {
			return nil, err
		}
		return c.singleEntryMap(key, payload, path)
	case idl.Defined:
		def, owner, err := c.lookup(scope, tt, path, ErrEncode)
		if err != nil {
			return nil, err
		}
		return c.encodeDef(owner, def, v, join(path, def.Name))
	case nil:
		return nil, encodeErr(path, "missing type")
	}
	return nil, encodeErr(path, "unsupported type %T", t)
}

func (c *Codec) encodeScalar(s idl.Scalar, v Value, path string) ([]byte, error) {
	switch s {
	case idl.Unit:
		if _, ok := v.(Unit); !ok {
			return nil, mismatch(path, s, v)
		}
		return []byte{cborNull}, nil
	case idl.Bool:
		b, ok := v.(Bool)
		if !ok {
			return nil, mismatch(path, s, v)
		}
		return c.marshal(path, bool(b))
	case idl.String:
		str, ok := v.(Text)
		if !ok {
			return nil, mismatch(path, s, v)
		}
		return c.marshal(path, string(str))
	case idl.Bytes:
		b, ok := v.(Bytes)
		if !ok {
			return nil, mismatch(path, s, v)
		}
		if b == nil {
			// A nil slice would otherwise encode as null.
			b = Bytes{}
		}
		return c.marshal(path, []byte(b))
	case idl.Address:
		a, ok := v.(Address)
		if !ok {
			return nil, mismatch(path, s, v)
		}
		return c.marshal(path, a[:])
	case idl.Balance:
		b, ok := v.(Balance)
		if !ok {
			return nil, mismatch(path, s, v)
		}
		n := b.big()
		if n.Sign() < 0 {
			return nil, encodeErr(path, "negative balance %s", n)
		}
		mag := n.Bytes()
		if mag == nil {
			mag = []byte{}
		}
		return c.marshal(path, cbor.Tag{Number: tagPosBignum, Content: mag})
	}

	bits, signed, ok := s.IntBits()
	if !ok {
		return nil, encodeErr(path, "unknown scalar %q", s)
	}
	i, isInt := v.(Int)
	if !isInt {
		return nil, mismatch(path, s, v)
	}
	n := i.big()
	if !inRange(n, bits, signed) {
		return nil, encodeErr(path, "%s out of range for %s", n, s)
	}
	// Shortest form: plain integer when it fits in 64 bits, bignum otherwise.
	return c.marshal(path, n)
}

// encodeSeq writes a definite-length array. Element i has type elems[i]
// when elems is non-nil (tuples), otherwise elem.
func (c *Codec) encodeSeq(scope *idl.Interface, elems []idl.Type, elem idl.Type, seq Seq, path string) ([]byte, error) {
	items := make([]cbor.RawMessage, len(seq))
	for i, ev := range seq {
		t := elem
		if elems != nil {
			t = elems[i]
		}
		b, err := c.encode(scope, t, ev, index(path, i))
		if err != nil {
			return nil, err
		}
		items[i] = b
	}
	return c.marshal(path, items)
}

func (c *Codec) encodeDef(scope *idl.Interface, def *idl.TypeDef, v Value, path string) ([]byte, error) {
	switch def.Kind {
	case idl.KindStruct, idl.KindEvent:
		rec, ok := v.(Record)
		if !ok {
			return nil, encodeErr(path, "%s %s expects a record, got %T", def.Kind, def.Name, v)
		}
		return c.encodeFields(scope, def.Fields, rec, path)
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
		switch variant.Payload() {
		case idl.PayloadUnit:
			if vv.Payload != nil {
				return nil, encodeErr(vpath, "variant carries no data")
			}
			return c.marshal(path, vv.Name)
		case idl.PayloadTuple:
			seq, ok := vv.Payload.(Seq)
			if !ok {
				return nil, encodeErr(vpath, "tuple variant expects a sequence, got %T", vv.Payload)
			}
			if len(seq) != len(variant.Elems) {
				return nil, encodeErr(vpath, "variant of %d elements given %d values", len(variant.Elems), len(seq))
			}
			payload, err := c.encodeSeq(scope, variant.Elems, nil, seq, vpath)
			if err != nil {
				return nil, err
			}
			return c.singleEntryMap(vv.Name, payload, path)
		case idl.PayloadStruct:
			rec, ok := vv.Payload.(Record)
			if !ok {
				return nil, encodeErr(vpath, "struct variant expects a record, got %T", vv.Payload)
			}
			payload, err := c.encodeFields(scope, variant.Fields, rec, vpath)
			if err != nil {
				return nil, err
			}
			return c.singleEntryMap(vv.Name, payload, path)
		}
	}
	return nil, encodeErr(path, "unknown def kind %q", def.Kind)
}

// encodeFields writes a record as a map in field declaration order.
func (c *Codec) encodeFields(scope *idl.Interface, fields []idl.Field, rec Record, path string) ([]byte, error) {
	if len(rec) != len(fields) {
		for name := range rec {
			if !hasField(fields, name) {
				return nil, encodeErr(path, "unknown field %q", name)
			}
		}
	}
	out := appendHead(nil, majorMap, uint64(len(fields)))
	for _, f := range fields {
		fv, ok := rec[f.Name]
		if !ok {
			return nil, encodeErr(join(path, f.Name), "missing field")
		}
		key, err := c.marshal(path, f.Name)
		if err != nil {
			return nil, err
		}
		val, err := c.encode(scope, f.Type, fv, join(path, f.Name))
		if err != nil {
			return nil, err
		}
		out = append(out, key...)
		out = append(out, val...)
	}
	return out, nil
}

func (c *Codec) singleEntryMap(key string, payload []byte, path string) ([]byte, error) {
	k, err := c.marshal(path, key)
	if err != nil {
		return nil, err
	}
	out := appendHead(nil, majorMap, 1)
	out = append(out, k...)
	return append(out, payload...), nil
}

func hasField(fields []idl.Field, name string) bool {
	for _, f := range fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

func mismatch(path string, t idl.Type, v Value) *Error {
	return encodeErr(path, "%s cannot hold %T", t, v)
}

var (
	maxUint64   = new(big.Int).SetUint64(^uint64(0))
	minNegInt64 = new(big.Int).Sub(new(big.Int).Neg(maxUint64), big.NewInt(1)) // -2^64
)

// inRange reports whether n fits an integer of the given width.
func inRange(n *big.Int, bits uint, signed bool) bool {
	if !signed {
		return n.Sign() >= 0 && n.BitLen() <= int(bits)
	}
	limit := new(big.Int).Lsh(big.NewInt(1), bits-1) // 2^(bits-1)
	if n.Sign() >= 0 {
		return n.Cmp(limit) < 0
	}
	return n.Cmp(new(big.Int).Neg(limit)) >= 0
}

// fitsCBORInt reports whether n is representable as major type 0 or 1.
func fitsCBORInt(n *big.Int) bool {
	return n.Cmp(maxUint64) <= 0 && n.Cmp(minNegInt64) >= 0
}
