package decl

import "cuelang.org/go/cue/token"

// Set is every raw declaration of one service, in declaration order.
type Set struct {
	Name      string
	Namespace string
	Version   string
	Imports   []Import

	Structs      []Struct
	Enums        []Enum
	Events       []Event
	Functions    []Function
	Constructors []Constructor
}

// Import declares a dependency on another interface.
type Import struct {
	Name     string
	Version  string
	Registry string
	Pos      token.Pos
}

// Field is a named member with its shape.
type Field struct {
	Name    string
	Type    Shape
	Indexed bool // Events only
	Pos     token.Pos
}

// Struct declares a record type.
type Struct struct {
	Name   string
	Fields []Field
	Pos    token.Pos
}

// VariantKind is the payload form of an enum variant.
type VariantKind int

const (
	VariantUnit VariantKind = iota
	VariantTuple
	VariantNamed
)

// Variant declares one enum case.
type Variant struct {
	Name   string
	Kind   VariantKind
	Elems  []Shape // VariantTuple
	Fields []Field // VariantNamed
	Pos    token.Pos
}

// Enum declares a tagged union.
type Enum struct {
	Name     string
	Variants []Variant
	Pos      token.Pos
}

// Event declares a loggable record with optionally indexed fields.
type Event struct {
	Name   string
	Fields []Field
	Pos    token.Pos
}

// Function declares an exported method. Output and Error are nil when absent.
type Function struct {
	Name    string
	Args    []Field
	Output  *Shape
	Error   *Shape
	Mutable bool
	Pos     token.Pos
}

// Constructor declares the service constructor.
type Constructor struct {
	Args  []Field
	Error *Shape
	Pos   token.Pos
}
