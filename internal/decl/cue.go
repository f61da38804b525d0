package decl

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// CompileService parses a CUE service value into a declaration Set.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The value should be the service struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`service: Wallet: { ... }`)
//	set, err := CompileService(v.LookupPath(cue.ParsePath("service.Wallet")))
//
// Layout of a service:
//
//	namespace: "wallet"
//	version:   "1.0.0"
//	imports: token: version: "0.3.0"
//	struct: Account: { owner: "address", amount: "token.Amount" }
//	enum: Error: { Frozen: null, Other: ["string"], Short: { needed: "balance" } }
//	event: Paid: { fields: { who: "address", amount: "balance" }, indexed: ["who"] }
//	constructor: { args: { owner: "address" }, error: "Error" }
//	function: pay: { args: { to: "address" }, output: "bool", error: "Error", mutable: true }
//
// constructor may also be a list, so that arity problems reach the resolver.
func CompileService(v cue.Value) (*Set, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	set := &Set{}
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		set.Name = labels[len(labels)-1].String()
	}

	var err error
	if set.Namespace, err = optionalString(v, "namespace"); err != nil {
		return nil, err
	}
	if set.Version, err = optionalString(v, "version"); err != nil {
		return nil, err
	}
	if set.Version == "" {
		return nil, &CompileError{Field: "version", Message: "version is required", Pos: v.Pos()}
	}

	if set.Imports, err = parseImports(v); err != nil {
		return nil, err
	}
	if set.Structs, err = parseStructs(v); err != nil {
		return nil, err
	}
	if set.Enums, err = parseEnums(v); err != nil {
		return nil, err
	}
	if set.Events, err = parseEvents(v); err != nil {
		return nil, err
	}
	if set.Constructors, err = parseConstructors(v); err != nil {
		return nil, err
	}
	if set.Functions, err = parseFunctions(v); err != nil {
		return nil, err
	}
	return set, nil
}

func parseImports(v cue.Value) ([]Import, error) {
	var out []Import
	err := eachField(v, "imports", func(name string, iv cue.Value) error {
		imp := Import{Name: name, Pos: iv.Pos()}
		var err error
		if imp.Version, err = optionalString(iv, "version"); err != nil {
			return err
		}
		if imp.Version == "" {
			return &CompileError{Field: "imports." + name, Message: "version is required", Pos: iv.Pos()}
		}
		if imp.Registry, err = optionalString(iv, "registry"); err != nil {
			return err
		}
		out = append(out, imp)
		return nil
	})
	return out, err
}

func parseStructs(v cue.Value) ([]Struct, error) {
	var out []Struct
	err := eachField(v, "struct", func(name string, sv cue.Value) error {
		fields, err := parseFieldMap(sv, "struct."+name)
		if err != nil {
			return err
		}
		out = append(out, Struct{Name: name, Fields: fields, Pos: sv.Pos()})
		return nil
	})
	return out, err
}

func parseEnums(v cue.Value) ([]Enum, error) {
	var out []Enum
	err := eachField(v, "enum", func(name string, ev cue.Value) error {
		e := Enum{Name: name, Pos: ev.Pos()}
		iter, err := ev.Fields()
		if err != nil {
			return formatCUEError(err)
		}
		for iter.Next() {
			variant, err := parseVariant(iter.Label(), iter.Value(), "enum."+name)
			if err != nil {
				return err
			}
			e.Variants = append(e.Variants, variant)
		}
		out = append(out, e)
		return nil
	})
	return out, err
}

// parseVariant reads one enum case: null (no payload), a list of shapes
// (tuple payload) or a struct of named fields.
func parseVariant(name string, vv cue.Value, ctx string) (Variant, error) {
	variant := Variant{Name: name, Pos: vv.Pos()}
	switch vv.IncompleteKind() {
	case cue.NullKind:
		variant.Kind = VariantUnit
	case cue.ListKind:
		variant.Kind = VariantTuple
		iter, err := vv.List()
		if err != nil {
			return variant, formatCUEError(err)
		}
		for iter.Next() {
			s, err := shapeOf(iter.Value(), ctx+"."+name)
			if err != nil {
				return variant, err
			}
			variant.Elems = append(variant.Elems, s)
		}
	case cue.StructKind:
		variant.Kind = VariantNamed
		fields, err := parseFieldMap(vv, ctx+"."+name)
		if err != nil {
			return variant, err
		}
		variant.Fields = fields
		if len(fields) == 0 {
			variant.Kind = VariantUnit
		}
	default:
		return variant, &CompileError{
			Field:   ctx + "." + name,
			Message: "variant must be null, a list of types, or a struct of fields",
			Pos:     vv.Pos(),
		}
	}
	return variant, nil
}

func parseEvents(v cue.Value) ([]Event, error) {
	var out []Event
	err := eachField(v, "event", func(name string, ev cue.Value) error {
		ctx := "event." + name
		fields, err := parseFieldMap(ev.LookupPath(cue.ParsePath("fields")), ctx)
		if err != nil {
			return err
		}
		indexed, err := stringList(ev, "indexed")
		if err != nil {
			return err
		}
		for _, idx := range indexed {
			found := false
			for i := range fields {
				if fields[i].Name == idx {
					fields[i].Indexed = true
					found = true
				}
			}
			if !found {
				return &CompileError{Field: ctx + ".indexed", Message: fmt.Sprintf("unknown field %q", idx), Pos: ev.Pos()}
			}
		}
		out = append(out, Event{Name: name, Fields: fields, Pos: ev.Pos()})
		return nil
	})
	return out, err
}

func parseConstructors(v cue.Value) ([]Constructor, error) {
	cv := v.LookupPath(cue.ParsePath("constructor"))
	if !cv.Exists() {
		return nil, nil
	}
	if cv.IncompleteKind() == cue.ListKind {
		var out []Constructor
		iter, err := cv.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			c, err := parseConstructor(iter.Value())
			if err != nil {
				return nil, err
			}
			out = append(out, c)
		}
		return out, nil
	}
	c, err := parseConstructor(cv)
	if err != nil {
		return nil, err
	}
	return []Constructor{c}, nil
}

func parseConstructor(cv cue.Value) (Constructor, error) {
	c := Constructor{Pos: cv.Pos()}
	var err error
	if c.Args, err = parseFieldMap(cv.LookupPath(cue.ParsePath("args")), "constructor.args"); err != nil {
		return c, err
	}
	if c.Error, err = optionalShape(cv, "error", "constructor"); err != nil {
		return c, err
	}
	return c, nil
}

func parseFunctions(v cue.Value) ([]Function, error) {
	var out []Function
	err := eachField(v, "function", func(name string, fv cue.Value) error {
		ctx := "function." + name
		fn := Function{Name: name, Pos: fv.Pos()}
		var err error
		if fn.Args, err = parseFieldMap(fv.LookupPath(cue.ParsePath("args")), ctx+".args"); err != nil {
			return err
		}
		if fn.Output, err = optionalShape(fv, "output", ctx); err != nil {
			return err
		}
		if fn.Error, err = optionalShape(fv, "error", ctx); err != nil {
			return err
		}
		if mv := fv.LookupPath(cue.ParsePath("mutable")); mv.Exists() {
			if fn.Mutable, err = mv.Bool(); err != nil {
				return formatCUEError(err)
			}
		}
		out = append(out, fn)
		return nil
	})
	return out, err
}

// parseFieldMap reads a struct of name: "shape" pairs in declaration order.
// A missing value yields no fields.
func parseFieldMap(v cue.Value, ctx string) ([]Field, error) {
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var fields []Field
	for iter.Next() {
		s, err := shapeOf(iter.Value(), ctx+"."+iter.Label())
		if err != nil {
			return nil, err
		}
		fields = append(fields, Field{Name: iter.Label(), Type: s, Pos: iter.Value().Pos()})
	}
	return fields, nil
}

func shapeOf(v cue.Value, ctx string) (Shape, error) {
	str, err := v.String()
	if err != nil {
		return Shape{}, &CompileError{Field: ctx, Message: "type must be a string", Pos: v.Pos()}
	}
	s, err := ParseShape(str)
	if err != nil {
		return Shape{}, &CompileError{Field: ctx, Message: err.Error(), Pos: v.Pos()}
	}
	s.Pos = v.Pos()
	return s, nil
}

func optionalShape(v cue.Value, path, ctx string) (*Shape, error) {
	sv := v.LookupPath(cue.ParsePath(path))
	if !sv.Exists() {
		return nil, nil
	}
	s, err := shapeOf(sv, ctx+"."+path)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func optionalString(v cue.Value, path string) (string, error) {
	sv := v.LookupPath(cue.ParsePath(path))
	if !sv.Exists() {
		return "", nil
	}
	s, err := sv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func stringList(v cue.Value, path string) ([]string, error) {
	lv := v.LookupPath(cue.ParsePath(path))
	if !lv.Exists() {
		return nil, nil
	}
	iter, err := lv.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

func eachField(v cue.Value, path string, fn func(name string, fv cue.Value) error) error {
	sv := v.LookupPath(cue.ParsePath(path))
	if !sv.Exists() {
		return nil
	}
	iter, err := sv.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		if err := fn(iter.Label(), iter.Value()); err != nil {
			return err
		}
	}
	return nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{Field: "cue", Message: first.Error(), Pos: positions[0]}
	}
	return err
}
