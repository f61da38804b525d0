package resolver

import (
	"fmt"
	"strconv"

	"cuelang.org/go/cue/token"

	"github.com/roach88/svcidl/internal/decl"
	"github.com/roach88/svcidl/internal/idl"
)

// scalarAliases are accepted spellings beyond the canonical scalar names.
var scalarAliases = map[string]idl.Scalar{
	"str":    idl.String,
	"String": idl.String,
}

// forbidden names shapes that look like types but have no RPC-safe variant.
var forbidden = map[string]string{
	"f32":      "floating point types are not RPC-representable",
	"f64":      "floating point types are not RPC-representable",
	"usize":    "platform-dependent integer width",
	"isize":    "platform-dependent integer width",
	"char":     "use string",
	"map":      "maps have no canonical encoding; use list<tuple<K, V>>",
	"set":      "sets have no canonical encoding; use list<T>",
	"HashMap":  "maps have no canonical encoding; use list<tuple<K, V>>",
	"BTreeMap": "maps have no canonical encoding; use list<tuple<K, V>>",
	"HashSet":  "sets have no canonical encoding; use list<T>",
	"BTreeSet": "sets have no canonical encoding; use list<T>",
	"fn":       "functions cannot cross a service boundary",
	"func":     "functions cannot cross a service boundary",
	"chan":     "channels cannot cross a service boundary",
}

// generics are the parameterized builtins and their arity (-1: at least one).
var generics = map[string]int{
	"list": 1, "vec": 1, "Vec": 1,
	"option": 1, "Option": 1,
	"result": 2, "Result": 2,
	"tuple": -1,
	"array": 2,
}

func isBuiltin(name string) bool {
	if _, ok := idl.ParseScalar(name); ok {
		return true
	}
	if _, ok := scalarAliases[name]; ok {
		return true
	}
	if _, ok := generics[name]; ok {
		return true
	}
	_, ok := forbidden[name]
	return ok
}

// classify maps a shape to its idl type. It returns nil after recording an
// error when the shape is not RPC-representable; classification of compound
// shapes is recursive, so one bad constituent rejects the whole shape.
func (r *resolver) classify(s decl.Shape, site string, pos token.Pos) idl.Type {
	if s.Pos.IsValid() {
		pos = s.Pos
	}
	switch s.Kind {
	case decl.ShapeRef:
		// References are transparent.
		if len(s.Args) != 1 {
			r.unsupported(site, s, pos, "malformed reference")
			return nil
		}
		return r.classify(s.Args[0], site, pos)
	case decl.ShapePointer:
		r.unsupported(site, s, pos, "raw pointers cannot cross a service boundary")
		return nil
	case decl.ShapeLiteral:
		r.unsupported(site, s, pos, "a literal is not a type")
		return nil
	case decl.ShapeTuple:
		if len(s.Args) == 0 {
			return idl.Unit
		}
		return r.tuple(s.Args, site, pos)
	case decl.ShapeNamed:
		if s.Module == "" {
			if t, handled := r.builtin(s, site, pos); handled {
				return t
			}
		}
		return r.reference(s, site, pos)
	}
	r.unsupported(site, s, pos, "unrecognized shape")
	return nil
}

// builtin classifies scalars and parameterized builtins. handled is false
// when the name is not a builtin and must be looked up as a type def.
func (r *resolver) builtin(s decl.Shape, site string, pos token.Pos) (idl.Type, bool) {
	if sc, ok := idl.ParseScalar(s.Name); ok {
		return r.scalar(sc, s, site, pos), true
	}
	if sc, ok := scalarAliases[s.Name]; ok {
		return r.scalar(sc, s, site, pos), true
	}
	if reason, bad := forbidden[s.Name]; bad {
		r.unsupported(site, s, pos, reason)
		return nil, true
	}
	arity, ok := generics[s.Name]
	if !ok {
		return nil, false
	}
	if (arity > 0 && len(s.Args) != arity) || (arity < 0 && len(s.Args) == 0) {
		r.unsupported(site, s, pos, fmt.Sprintf("%s takes %s", s.Name, plural(arity)))
		return nil, true
	}

	switch s.Name {
	case "list", "vec", "Vec":
		elem := r.classify(s.Args[0], site, pos)
		if elem == nil {
			return nil, true
		}
		if elem == idl.U8 {
			return idl.Bytes, true
		}
		return idl.List{Elem: elem}, true
	case "option", "Option":
		elem := r.classify(s.Args[0], site, pos)
		if elem == nil {
			return nil, true
		}
		if _, nested := elem.(idl.Optional); nested || elem == idl.Unit {
			// Both would make absence and presence encode identically.
			r.unsupported(site, s, pos, "optional of unit or optional is ambiguous on the wire")
			return nil, true
		}
		return idl.Optional{Elem: elem}, true
	case "result", "Result":
		ok := r.classify(s.Args[0], site, pos)
		errT := r.classify(s.Args[1], site, pos)
		if ok == nil || errT == nil {
			return nil, true
		}
		return idl.Result{Ok: ok, Err: errT}, true
	case "tuple":
		return r.tuple(s.Args, site, pos), true
	case "array":
		elem := r.classify(s.Args[0], site, pos)
		lenShape := s.Args[1]
		if lenShape.Kind != decl.ShapeLiteral {
			r.unsupported(site, s, pos, "array length must be an integer literal")
			return nil, true
		}
		n, err := strconv.ParseUint(lenShape.Name, 10, 64)
		if err != nil {
			r.unsupported(site, s, pos, "array length out of range")
			return nil, true
		}
		if elem == nil {
			return nil, true
		}
		return idl.Array{Elem: elem, Len: n}, true
	}
	return nil, false
}

func (r *resolver) scalar(sc idl.Scalar, s decl.Shape, site string, pos token.Pos) idl.Type {
	if len(s.Args) > 0 {
		r.unsupported(site, s, pos, fmt.Sprintf("%s takes no type arguments", sc))
		return nil
	}
	return sc
}

func (r *resolver) tuple(args []decl.Shape, site string, pos token.Pos) idl.Type {
	elems := make([]idl.Type, len(args))
	failed := false
	for i, a := range args {
		elems[i] = r.classify(a, site, pos)
		if elems[i] == nil {
			failed = true
		}
	}
	if failed {
		return nil
	}
	return idl.Tuple{Elems: elems}
}

// reference resolves a named shape to a Defined type and queues its def for
// the reachability walk.
func (r *resolver) reference(s decl.Shape, site string, pos token.Pos) idl.Type {
	if len(s.Args) > 0 {
		r.unsupported(site, s, pos, "user-defined types take no type arguments")
		return nil
	}
	d, ok := r.lookup(s, site, pos)
	if !ok {
		return nil
	}
	r.enqueue(d.Namespace, d.Name, site)
	return d
}

// lookup finds the def a named shape refers to: local declarations first,
// then declared imports in declaration order. First match wins.
func (r *resolver) lookup(s decl.Shape, site string, pos token.Pos) (idl.Defined, bool) {
	if s.Module == "" || s.Module == r.set.Name {
		if _, ok := r.locals[s.Name]; ok {
			return idl.Defined{Name: s.Name}, true
		}
		if s.Module == "" {
			for _, imp := range r.imports {
				iface := r.linked[imp.Name]
				if iface == nil {
					continue
				}
				if _, ok := iface.TypeDef(s.Name); ok {
					return idl.Defined{Namespace: imp.Name, Name: s.Name}, true
				}
			}
		}
	} else if iface, declared := r.linked[s.Module]; declared {
		if iface == nil {
			// Missing import already reported.
			return idl.Defined{}, false
		}
		if _, ok := iface.TypeDef(s.Name); ok {
			return idl.Defined{Namespace: s.Module, Name: s.Name}, true
		}
		r.fail(ErrUnknownType, site, s.String(), pos, fmt.Sprintf("%s declares no type %q", iface.Key(), s.Name))
		return idl.Defined{}, false
	}

	if owner := r.undeclaredOwner(s.Module, s.Name); owner != nil {
		r.fail(ErrUndeclaredImport, site, s.String(), pos,
			fmt.Sprintf("declared in %s, which is not imported", owner.Key()))
		return idl.Defined{}, false
	}
	r.fail(ErrUnknownType, site, s.String(), pos, "no visible type def with this name")
	return idl.Defined{}, false
}

// checkNames reports named references in s that resolve to nothing. It
// classifies nothing and queues nothing.
func (r *resolver) checkNames(s decl.Shape, site string, pos token.Pos) {
	if s.Pos.IsValid() {
		pos = s.Pos
	}
	if s.Kind == decl.ShapeNamed && (s.Module != "" || !isBuiltin(s.Name)) {
		r.lookup(s, site, pos)
		return
	}
	for _, a := range s.Args {
		r.checkNames(a, site, pos)
	}
}

// undeclaredOwner finds an interface in the environment, outside the
// declared imports, that declares name.
func (r *resolver) undeclaredOwner(module, name string) *idl.Interface {
	for _, k := range r.envKeys {
		if imp, ok := r.declared[k.Name]; ok && imp.Key() == k {
			continue
		}
		iface := r.env[k]
		if module != "" && iface.Name != module {
			continue
		}
		if _, ok := iface.TypeDef(name); ok {
			return iface
		}
	}
	return nil
}

func (r *resolver) unsupported(site string, s decl.Shape, pos token.Pos, reason string) {
	r.fail(ErrUnsupportedType, site, s.String(), pos, reason)
}

func plural(arity int) string {
	switch arity {
	case -1:
		return "at least one type argument"
	case 1:
		return "1 type argument"
	}
	return fmt.Sprintf("%d type arguments", arity)
}
