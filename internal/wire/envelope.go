package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/roach88/svcidl/internal/idl"
)

// Envelope keys of an inbound call.
const (
	KeyMethod  = "method"
	KeyPayload = "payload"
)

// Call is a decoded inbound envelope. Args are still encoded; they are
// decoded against the target function's argument types by DecodeArgs.
type Call struct {
	Method string
	Args   []cbor.RawMessage
}

// DecodeCall parses an inbound envelope. The input must be a map holding
// exactly a text "method" and an array "payload".
func (c *Codec) DecodeCall(data []byte) (*Call, error) {
	if len(data) == 0 {
		return nil, &Error{Code: ErrInvalidEnvelope, Message: "empty message"}
	}
	if err := c.dm.Wellformed(data); err != nil {
		return nil, &Error{Code: ErrInvalidEnvelope, Message: "malformed envelope", Err: err}
	}
	if err := checkCanonical(data); err != nil {
		return nil, &Error{Code: ErrInvalidEnvelope, Message: "non-canonical envelope", Err: err}
	}
	if majorOf(data) != majorMap {
		return nil, &Error{Code: ErrInvalidEnvelope, Message: fmt.Sprintf("envelope must be a map, got %s", majorName(majorOf(data)))}
	}
	var m map[string]cbor.RawMessage
	if err := c.dm.Unmarshal(data, &m); err != nil {
		return nil, &Error{Code: ErrInvalidEnvelope, Message: "envelope keys", Err: err}
	}

	rawMethod, ok := m[KeyMethod]
	if !ok {
		return nil, &Error{Code: ErrInvalidEnvelope, Message: "missing method"}
	}
	rawPayload, ok := m[KeyPayload]
	if !ok {
		return nil, &Error{Code: ErrInvalidEnvelope, Message: "missing payload"}
	}
	if len(m) != 2 {
		return nil, &Error{Code: ErrInvalidEnvelope, Message: fmt.Sprintf("envelope has %d keys, want 2", len(m))}
	}

	if majorOf(rawMethod) != majorText {
		return nil, &Error{Code: ErrInvalidEnvelope, Path: KeyMethod, Message: "method must be a text string"}
	}
	var method string
	if err := c.dm.Unmarshal(rawMethod, &method); err != nil {
		return nil, &Error{Code: ErrInvalidEnvelope, Path: KeyMethod, Message: "method", Err: err}
	}
	if majorOf(rawPayload) != majorArray {
		return nil, &Error{Code: ErrInvalidEnvelope, Path: KeyPayload, Message: "payload must be an array"}
	}
	var args []cbor.RawMessage
	if err := c.dm.Unmarshal(rawPayload, &args); err != nil {
		return nil, &Error{Code: ErrInvalidEnvelope, Path: KeyPayload, Message: "payload", Err: err}
	}
	return &Call{Method: method, Args: args}, nil
}

// DecodeArgs decodes encoded arguments positionally. The number of
// arguments must equal the number of parameters.
func (c *Codec) DecodeArgs(params []idl.Field, args []cbor.RawMessage) ([]Value, error) {
	if len(args) != len(params) {
		return nil, lengthErr(KeyPayload, len(params), len(args))
	}
	out := make([]Value, len(args))
	for i, p := range params {
		v, err := c.decodeRaw(p.Type, args[i], p.Name)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// EncodeCall builds the canonical inbound envelope invoking fn with args.
func (c *Codec) EncodeCall(fn *idl.Function, args []Value) ([]byte, error) {
	return c.encodeCall(fn.Name, fn.Arguments, args)
}

// EncodeConstruct builds the envelope for a constructor call. The method
// name is informational; constructors are not looked up by name.
func (c *Codec) EncodeConstruct(ctor *idl.Constructor, args []Value) ([]byte, error) {
	return c.encodeCall(ConstructorMethod, ctor.Arguments, args)
}

// ConstructorMethod is the method name carried by constructor envelopes.
const ConstructorMethod = "new"

func (c *Codec) encodeCall(method string, params []idl.Field, args []Value) ([]byte, error) {
	if len(args) != len(params) {
		return nil, &Error{Code: ErrLengthMismatch, Path: KeyPayload,
			Message: fmt.Sprintf("%s takes %d arguments, got %d", method, len(params), len(args))}
	}
	items := make([]cbor.RawMessage, len(args))
	for i, p := range params {
		b, err := c.encode(nil, p.Type, args[i], p.Name)
		if err != nil {
			return nil, err
		}
		items[i] = b
	}
	payload, err := c.marshal(KeyPayload, items)
	if err != nil {
		return nil, err
	}
	name, err := c.marshal(KeyMethod, method)
	if err != nil {
		return nil, err
	}
	out := appendHead(nil, majorMap, 2)
	out = appendText(out, KeyMethod)
	out = append(out, name...)
	out = appendText(out, KeyPayload)
	return append(out, payload...), nil
}
