package idl

import "fmt"

// Schema links a root interface with the interfaces it imports so that
// Defined references can be followed across interface boundaries.
// A Schema is read-only after construction and safe for concurrent use.
type Schema struct {
	root *Interface
	deps map[ImportKey]*Interface
}

// NewSchema creates a Schema rooted at iface. deps must contain every
// interface reachable through iface's imports.
func NewSchema(iface *Interface, deps map[ImportKey]*Interface) *Schema {
	d := make(map[ImportKey]*Interface, len(deps))
	for k, v := range deps {
		d[k] = v
	}
	return &Schema{root: iface, deps: d}
}

// Root returns the interface the schema was built for.
func (s *Schema) Root() *Interface { return s.root }

// Lookup resolves ref as seen from the scope interface. It returns the def
// and the interface owning it, which becomes the scope for references nested
// inside the def.
func (s *Schema) Lookup(scope *Interface, ref Defined) (*TypeDef, *Interface, error) {
	if scope == nil {
		scope = s.root
	}
	owner := scope
	if ref.Namespace != "" {
		imp, ok := scope.Import(ref.Namespace)
		if !ok {
			return nil, nil, fmt.Errorf("%s: interface %s does not import %q", ref, scope.Name, ref.Namespace)
		}
		dep, ok := s.deps[imp.Key()]
		if !ok {
			return nil, nil, fmt.Errorf("%s: import %s not linked", ref, imp.Key())
		}
		owner = dep
	}
	def, ok := owner.TypeDef(ref.Name)
	if !ok {
		return nil, nil, fmt.Errorf("%s: no type def %q in interface %s", ref, ref.Name, owner.Name)
	}
	return def, owner, nil
}
