package idl

import (
	"encoding/json"
	"fmt"
)

// typeJSON is the artifact representation of a Type.
// The "type" tag selects the variant; the remaining fields are its parameters.
type typeJSON struct {
	Type      string            `json:"type"`
	Elems     []json.RawMessage `json:"elems,omitempty"`
	Elem      json.RawMessage   `json:"elem,omitempty"`
	Len       *uint64           `json:"len,omitempty"`
	Ok        json.RawMessage   `json:"ok,omitempty"`
	Err       json.RawMessage   `json:"err,omitempty"`
	Namespace string            `json:"namespace,omitempty"`
	Name      string            `json:"name,omitempty"`
}

const (
	tagTuple    = "tuple"
	tagArray    = "array"
	tagList     = "list"
	tagOptional = "optional"
	tagResult   = "result"
	tagDefined  = "defined"
)

// MarshalJSON implements json.Marshaler for Scalar.
func (s Scalar) MarshalJSON() ([]byte, error) {
	if _, ok := scalarNames[string(s)]; !ok {
		return nil, fmt.Errorf("unknown scalar %q", string(s))
	}
	return json.Marshal(typeJSON{Type: string(s)})
}

// MarshalJSON implements json.Marshaler for Tuple.
func (t Tuple) MarshalJSON() ([]byte, error) {
	elems := make([]json.RawMessage, len(t.Elems))
	for i, e := range t.Elems {
		raw, err := marshalType(e)
		if err != nil {
			return nil, fmt.Errorf("tuple[%d]: %w", i, err)
		}
		elems[i] = raw
	}
	return json.Marshal(typeJSON{Type: tagTuple, Elems: elems})
}

// MarshalJSON implements json.Marshaler for Array.
func (a Array) MarshalJSON() ([]byte, error) {
	elem, err := marshalType(a.Elem)
	if err != nil {
		return nil, fmt.Errorf("array: %w", err)
	}
	n := a.Len
	return json.Marshal(typeJSON{Type: tagArray, Elem: elem, Len: &n})
}

// MarshalJSON implements json.Marshaler for List.
func (l List) MarshalJSON() ([]byte, error) {
	elem, err := marshalType(l.Elem)
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	return json.Marshal(typeJSON{Type: tagList, Elem: elem})
}

// MarshalJSON implements json.Marshaler for Optional.
func (o Optional) MarshalJSON() ([]byte, error) {
	elem, err := marshalType(o.Elem)
	if err != nil {
		return nil, fmt.Errorf("optional: %w", err)
	}
	return json.Marshal(typeJSON{Type: tagOptional, Elem: elem})
}

// MarshalJSON implements json.Marshaler for Result.
func (r Result) MarshalJSON() ([]byte, error) {
	ok, err := marshalType(r.Ok)
	if err != nil {
		return nil, fmt.Errorf("result ok: %w", err)
	}
	e, err := marshalType(r.Err)
	if err != nil {
		return nil, fmt.Errorf("result err: %w", err)
	}
	return json.Marshal(typeJSON{Type: tagResult, Ok: ok, Err: e})
}

// MarshalJSON implements json.Marshaler for Defined.
func (d Defined) MarshalJSON() ([]byte, error) {
	if d.Name == "" {
		return nil, fmt.Errorf("defined type without a name")
	}
	return json.Marshal(typeJSON{Type: tagDefined, Namespace: d.Namespace, Name: d.Name})
}

func marshalType(t Type) (json.RawMessage, error) {
	if t == nil {
		return nil, fmt.Errorf("missing type")
	}
	return json.Marshal(t)
}

// UnmarshalType decodes the artifact representation of a Type.
func UnmarshalType(data []byte) (Type, error) {
	var tj typeJSON
	if err := json.Unmarshal(data, &tj); err != nil {
		return nil, err
	}
	if s, ok := scalarNames[tj.Type]; ok {
		return s, nil
	}
	switch tj.Type {
	case tagTuple:
		elems := make([]Type, len(tj.Elems))
		for i, raw := range tj.Elems {
			e, err := UnmarshalType(raw)
			if err != nil {
				return nil, fmt.Errorf("tuple[%d]: %w", i, err)
			}
			elems[i] = e
		}
		return Tuple{Elems: elems}, nil
	case tagArray:
		if tj.Len == nil {
			return nil, fmt.Errorf("array: missing len")
		}
		elem, err := unmarshalElem(tagArray, tj.Elem)
		if err != nil {
			return nil, err
		}
		return Array{Elem: elem, Len: *tj.Len}, nil
	case tagList:
		elem, err := unmarshalElem(tagList, tj.Elem)
		if err != nil {
			return nil, err
		}
		return List{Elem: elem}, nil
	case tagOptional:
		elem, err := unmarshalElem(tagOptional, tj.Elem)
		if err != nil {
			return nil, err
		}
		return Optional{Elem: elem}, nil
	case tagResult:
		ok, err := unmarshalElem("result ok", tj.Ok)
		if err != nil {
			return nil, err
		}
		e, err := unmarshalElem("result err", tj.Err)
		if err != nil {
			return nil, err
		}
		return Result{Ok: ok, Err: e}, nil
	case tagDefined:
		if tj.Name == "" {
			return nil, fmt.Errorf("defined: missing name")
		}
		return Defined{Namespace: tj.Namespace, Name: tj.Name}, nil
	}
	return nil, fmt.Errorf("unknown type tag %q", tj.Type)
}

func unmarshalElem(what string, raw json.RawMessage) (Type, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%s: missing element type", what)
	}
	t, err := UnmarshalType(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	return t, nil
}

// unmarshalOptionalType decodes raw, treating absence and null as no type.
func unmarshalOptionalType(raw json.RawMessage) (Type, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	return UnmarshalType(raw)
}
