package idl

import (
	"encoding/json"
	"fmt"
)

// Interface is the resolved, linked schema for one service.
// It owns its TypeDefs, Functions and Events; Imports are references to
// other interfaces resolved by name and version at link time.
type Interface struct {
	Name         string      `json:"name"`
	Namespace    string      `json:"namespace,omitempty"` // Declaring package
	Version      string      `json:"version"`
	Imports      []Import    `json:"imports"`
	TypeDefs     []TypeDef   `json:"type_defs"`
	Functions    []Function  `json:"functions"`
	Constructor  Constructor `json:"constructor"`
	Events       []TypeDef   `json:"events"`
	BuildVersion string      `json:"build_version,omitempty"`
}

// Import references another interface by name and version.
type Import struct {
	Name     string `json:"name"`
	Version  string `json:"version"`
	Registry string `json:"registry,omitempty"` // Where the dependency was published, if known
}

// ImportKey identifies a resolved interface in a link environment.
type ImportKey struct {
	Name    string
	Version string
}

// String returns "name@version".
func (k ImportKey) String() string { return k.Name + "@" + k.Version }

// Key returns the link key of the import.
func (i Import) Key() ImportKey { return ImportKey{Name: i.Name, Version: i.Version} }

// Key returns the link key other interfaces use to import this one.
func (i *Interface) Key() ImportKey { return ImportKey{Name: i.Name, Version: i.Version} }

// DefKind distinguishes the three kinds of type def.
type DefKind string

const (
	KindStruct DefKind = "struct"
	KindEnum   DefKind = "enum"
	KindEvent  DefKind = "event"
)

// MaxIndexedFields is the most fields an event may mark as indexed.
const MaxIndexedFields = 3

// TypeDef is a named struct, enum or event.
// Structs and events use Fields; enums use Variants.
type TypeDef struct {
	Kind     DefKind   `json:"kind"`
	Name     string    `json:"name"`
	Fields   []Field   `json:"fields,omitempty"`
	Variants []Variant `json:"variants,omitempty"`
}

// IndexedFields returns the event fields marked indexed, in declaration order.
func (d *TypeDef) IndexedFields() []Field {
	var out []Field
	for _, f := range d.Fields {
		if f.Indexed {
			out = append(out, f)
		}
	}
	return out
}

// Variant returns the enum variant with the given name.
func (d *TypeDef) Variant(name string) (*Variant, bool) {
	for i := range d.Variants {
		if d.Variants[i].Name == name {
			return &d.Variants[i], true
		}
	}
	return nil, false
}

// Field is a named, typed member of a struct, event, or argument list.
type Field struct {
	Name    string `json:"name"`
	Type    Type   `json:"type"`
	Indexed bool   `json:"indexed,omitempty"` // Events only
}

// UnmarshalJSON implements json.Unmarshaler for Field.
func (f *Field) UnmarshalJSON(data []byte) error {
	var aux struct {
		Name    string          `json:"name"`
		Type    json.RawMessage `json:"type"`
		Indexed bool            `json:"indexed"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	t, err := UnmarshalType(aux.Type)
	if err != nil {
		return fmt.Errorf("field %q: %w", aux.Name, err)
	}
	*f = Field{Name: aux.Name, Type: t, Indexed: aux.Indexed}
	return nil
}

// PayloadKind describes what an enum variant carries.
type PayloadKind int

const (
	PayloadUnit PayloadKind = iota
	PayloadTuple
	PayloadStruct
)

// Variant is one case of an enum. At most one of Fields (struct-like
// payload) and Elems (tuple-like payload) is set; neither means no payload.
type Variant struct {
	Name   string  `json:"name"`
	Fields []Field `json:"fields,omitempty"`
	Elems  []Type  `json:"elems,omitempty"`
}

// Payload reports the shape of the variant's payload.
func (v *Variant) Payload() PayloadKind {
	switch {
	case len(v.Fields) > 0:
		return PayloadStruct
	case len(v.Elems) > 0:
		return PayloadTuple
	}
	return PayloadUnit
}

// UnmarshalJSON implements json.Unmarshaler for Variant.
func (v *Variant) UnmarshalJSON(data []byte) error {
	var aux struct {
		Name   string            `json:"name"`
		Fields []Field           `json:"fields"`
		Elems  []json.RawMessage `json:"elems"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	var elems []Type
	for i, raw := range aux.Elems {
		t, err := UnmarshalType(raw)
		if err != nil {
			return fmt.Errorf("variant %q elem %d: %w", aux.Name, i, err)
		}
		elems = append(elems, t)
	}
	*v = Variant{Name: aux.Name, Fields: aux.Fields, Elems: elems}
	return nil
}

// Mutability is advisory metadata; dispatch does not enforce it.
type Mutability string

const (
	Mutable   Mutability = "mutable"
	Immutable Mutability = "immutable"
)

// Function is an exported, callable method.
// A nil Output means no return value; a nil Error means the function is
// infallible.
type Function struct {
	Name       string     `json:"name"`
	Mutability Mutability `json:"mutability"`
	Arguments  []Field    `json:"arguments"`
	Output     Type       `json:"output,omitempty"`
	Error      Type       `json:"error,omitempty"`
}

// UnmarshalJSON implements json.Unmarshaler for Function.
func (fn *Function) UnmarshalJSON(data []byte) error {
	var aux struct {
		Name       string          `json:"name"`
		Mutability Mutability      `json:"mutability"`
		Arguments  []Field         `json:"arguments"`
		Output     json.RawMessage `json:"output"`
		Error      json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	out, err := unmarshalOptionalType(aux.Output)
	if err != nil {
		return fmt.Errorf("function %q output: %w", aux.Name, err)
	}
	errType, err := unmarshalOptionalType(aux.Error)
	if err != nil {
		return fmt.Errorf("function %q error: %w", aux.Name, err)
	}
	*fn = Function{
		Name:       aux.Name,
		Mutability: aux.Mutability,
		Arguments:  aux.Arguments,
		Output:     out,
		Error:      errType,
	}
	return nil
}

// Fallible reports whether the function declares an error type.
func (fn *Function) Fallible() bool { return fn.Error != nil }

// ReturnType is the type of the outbound payload, or nil when the function
// produces no payload bytes at all.
func (fn *Function) ReturnType() Type {
	return returnType(fn.Output, fn.Error)
}

// Constructor instantiates the service. It has no name and no output.
type Constructor struct {
	Arguments []Field `json:"arguments"`
	Error     Type    `json:"error,omitempty"`
}

// UnmarshalJSON implements json.Unmarshaler for Constructor.
func (c *Constructor) UnmarshalJSON(data []byte) error {
	var aux struct {
		Arguments []Field         `json:"arguments"`
		Error     json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	errType, err := unmarshalOptionalType(aux.Error)
	if err != nil {
		return fmt.Errorf("constructor error: %w", err)
	}
	*c = Constructor{Arguments: aux.Arguments, Error: errType}
	return nil
}

// ReturnType is the type of the constructor's outbound payload, or nil.
func (c *Constructor) ReturnType() Type {
	return returnType(nil, c.Error)
}

func returnType(output, errType Type) Type {
	if errType == nil {
		return output
	}
	ok := output
	if ok == nil {
		ok = Unit
	}
	return Result{Ok: ok, Err: errType}
}

// Function returns the function with the given name.
func (i *Interface) Function(name string) (*Function, bool) {
	for k := range i.Functions {
		if i.Functions[k].Name == name {
			return &i.Functions[k], true
		}
	}
	return nil, false
}

// TypeDef returns the struct, enum or event with the given name.
func (i *Interface) TypeDef(name string) (*TypeDef, bool) {
	for k := range i.TypeDefs {
		if i.TypeDefs[k].Name == name {
			return &i.TypeDefs[k], true
		}
	}
	for k := range i.Events {
		if i.Events[k].Name == name {
			return &i.Events[k], true
		}
	}
	return nil, false
}

// Import returns the declared import with the given name.
func (i *Interface) Import(name string) (Import, bool) {
	for _, imp := range i.Imports {
		if imp.Name == name {
			return imp, true
		}
	}
	return Import{}, false
}
