package resolver

import (
	"fmt"
	"sort"

	"cuelang.org/go/cue/token"
	"github.com/rs/zerolog"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/svcidl/internal/decl"
	"github.com/roach88/svcidl/internal/idl"
	"github.com/roach88/svcidl/internal/metrics"
)

// Input is the declaration set of one interface plus its link environment.
type Input struct {
	Decls *decl.Set

	// Imports maps name@version to already-resolved interfaces. It may hold
	// more interfaces than Decls imports; only declared ones are visible.
	Imports map[idl.ImportKey]*idl.Interface
}

// Option configures Resolve.
type Option func(*config)

type config struct {
	logger  zerolog.Logger
	metrics *metrics.Collector
}

// WithLogger sets the logger used for resolution diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithMetrics records resolution outcomes on m.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *config) { c.metrics = m }
}

// Resolve validates and links a declaration set into an Interface.
// On failure the returned error is an Errors value holding every problem
// found, and the interface is nil.
//
// Resolve is deterministic: the same Input always yields an Interface with
// the same idl.Hash.
func Resolve(in Input, opts ...Option) (*idl.Interface, error) {
	cfg := config{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if in.Decls == nil {
		return nil, fmt.Errorf("resolve: nil declaration set")
	}

	r := newResolver(in)
	iface := r.run()
	if len(r.errs) > 0 {
		cfg.metrics.ObserveResolve(metrics.ResolveFailed)
		cfg.logger.Warn().
			Str("interface", in.Decls.Name).
			Int("errors", len(r.errs)).
			Msg("resolution failed")
		return nil, r.errs
	}

	cfg.metrics.ObserveResolve(metrics.ResolveOK)
	cfg.logger.Debug().
		Str("interface", iface.Name).
		Str("version", iface.Version).
		Int("functions", len(iface.Functions)).
		Int("type_defs", len(iface.TypeDefs)).
		Int("events", len(iface.Events)).
		Int("dropped", r.declaredDefs()-len(iface.TypeDefs)).
		Msg("resolved interface")
	return iface, nil
}

// localDecl locates a type declaration in the set.
type localDecl struct {
	kind  idl.DefKind
	index int
}

// workItem is a def reached during the reachability walk. owner is empty for
// local defs, otherwise the declared import owning the def.
type workItem struct {
	owner string
	name  string
	site  string
}

type resolver struct {
	set *decl.Set
	env map[idl.ImportKey]*idl.Interface

	envKeys  []idl.ImportKey
	locals   map[string]localDecl
	declared map[string]idl.Import
	imports  []idl.Import              // Declared, deduplicated, in order
	linked   map[string]*idl.Interface // Nil entry: declared but missing

	queue []workItem
	seen  map[workItem]bool
	defs  map[string]idl.TypeDef

	errs     Errors
	reported map[string]bool
}

func newResolver(in Input) *resolver {
	keys := make([]idl.ImportKey, 0, len(in.Imports))
	for k := range in.Imports {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Name != keys[j].Name {
			return keys[i].Name < keys[j].Name
		}
		return keys[i].Version < keys[j].Version
	})
	return &resolver{
		set:      in.Decls,
		env:      in.Imports,
		envKeys:  keys,
		locals:   make(map[string]localDecl),
		declared: make(map[string]idl.Import),
		linked:   make(map[string]*idl.Interface),
		seen:     make(map[workItem]bool),
		defs:     make(map[string]idl.TypeDef),
		reported: make(map[string]bool),
	}
}

func (r *resolver) run() *idl.Interface {
	r.checkIdent("interface "+r.set.Name, r.set.Name, token.NoPos)
	r.indexImports()
	r.indexLocals()

	functions := r.resolveFunctions()
	ctor := r.resolveConstructor()
	events := r.resolveEvents()
	r.drain()
	r.checkUnreached()

	return &idl.Interface{
		Name:         r.set.Name,
		Namespace:    r.set.Namespace,
		Version:      r.set.Version,
		Imports:      append(make([]idl.Import, 0, len(r.imports)), r.imports...),
		TypeDefs:     r.collectTypeDefs(),
		Functions:    functions,
		Constructor:  ctor,
		Events:       events,
		BuildVersion: idl.BuildVersion,
	}
}

func (r *resolver) indexImports() {
	for _, imp := range r.set.Imports {
		site := "import " + imp.Name
		r.checkIdent(site, imp.Name, imp.Pos)
		if _, dup := r.declared[imp.Name]; dup {
			r.fail(ErrDuplicateDefinition, site, imp.Name, imp.Pos, "import declared more than once")
			continue
		}
		ref := idl.Import{Name: imp.Name, Version: imp.Version, Registry: imp.Registry}
		r.declared[imp.Name] = ref
		r.imports = append(r.imports, ref)

		iface, ok := r.env[ref.Key()]
		if !ok {
			r.fail(ErrMissingImport, site, ref.Key().String(), imp.Pos, "not present in the link environment")
		}
		r.linked[imp.Name] = iface
	}
}

func (r *resolver) indexLocals() {
	add := func(kind idl.DefKind, name string, index int, pos token.Pos) {
		site := string(kind) + " " + name
		r.checkIdent(site, name, pos)
		if isBuiltin(name) {
			r.fail(ErrInvalidIdentifier, site, name, pos, "shadows a builtin type")
			return
		}
		if prev, dup := r.locals[name]; dup {
			r.fail(ErrDuplicateDefinition, site, name, pos, fmt.Sprintf("already declared as %s", prev.kind))
			return
		}
		r.locals[name] = localDecl{kind: kind, index: index}
	}
	for i, s := range r.set.Structs {
		add(idl.KindStruct, s.Name, i, s.Pos)
	}
	for i, e := range r.set.Enums {
		add(idl.KindEnum, e.Name, i, e.Pos)
	}
	for i, ev := range r.set.Events {
		add(idl.KindEvent, ev.Name, i, ev.Pos)
		// Events are roots; resolveEvents handles them directly.
		r.seen[workItem{name: ev.Name}] = true
	}
}

func (r *resolver) resolveFunctions() []idl.Function {
	out := make([]idl.Function, 0, len(r.set.Functions))
	names := make(map[string]bool)
	for _, fn := range r.set.Functions {
		site := "function " + fn.Name
		r.checkIdent(site, fn.Name, fn.Pos)
		if names[fn.Name] {
			r.fail(ErrDuplicateDefinition, site, fn.Name, fn.Pos, "function declared more than once")
			continue
		}
		names[fn.Name] = true

		f := idl.Function{
			Name:       fn.Name,
			Mutability: idl.Immutable,
			Arguments:  r.fields(fn.Args, site, fn.Pos),
		}
		if fn.Mutable {
			f.Mutability = idl.Mutable
		}
		if fn.Output != nil {
			// A unit output is no output at all.
			if t := r.classify(*fn.Output, site+" output", fn.Pos); t != idl.Unit {
				f.Output = t
			}
		}
		if fn.Error != nil {
			f.Error = r.classify(*fn.Error, site+" error", fn.Pos)
		}
		out = append(out, f)
	}
	return out
}

func (r *resolver) resolveConstructor() idl.Constructor {
	ctors := r.set.Constructors
	if len(ctors) != 1 {
		pos := token.NoPos
		if len(ctors) > 1 {
			pos = ctors[1].Pos
		}
		r.fail(ErrConstructorArity, "constructor", "", pos,
			fmt.Sprintf("expected exactly one constructor, found %d", len(ctors)))
		return idl.Constructor{Arguments: []idl.Field{}}
	}
	c := ctors[0]
	out := idl.Constructor{Arguments: r.fields(c.Args, "constructor", c.Pos)}
	if c.Error != nil {
		out.Error = r.classify(*c.Error, "constructor error", c.Pos)
	}
	return out
}

func (r *resolver) resolveEvents() []idl.TypeDef {
	out := make([]idl.TypeDef, 0, len(r.set.Events))
	for _, ev := range r.set.Events {
		if ld, ok := r.locals[ev.Name]; !ok || ld.kind != idl.KindEvent {
			continue
		}
		site := "event " + ev.Name
		def := idl.TypeDef{Kind: idl.KindEvent, Name: ev.Name, Fields: r.fields(ev.Fields, site, ev.Pos)}
		if n := len(def.IndexedFields()); n > idl.MaxIndexedFields {
			r.fail(ErrTooManyIndexed, site, "", ev.Pos,
				fmt.Sprintf("%d indexed fields, at most %d allowed", n, idl.MaxIndexedFields))
		}
		r.defs[ev.Name] = def
		out = append(out, def)
	}
	return out
}

// fields classifies an ordered field list, rejecting duplicate names.
func (r *resolver) fields(fs []decl.Field, site string, pos token.Pos) []idl.Field {
	out := make([]idl.Field, 0, len(fs))
	names := make(map[string]bool)
	for _, f := range fs {
		fpos := pos
		if f.Pos.IsValid() {
			fpos = f.Pos
		}
		r.checkIdent(site, f.Name, fpos)
		if names[f.Name] {
			r.fail(ErrDuplicateDefinition, site, f.Name, fpos, "field declared more than once")
			continue
		}
		names[f.Name] = true
		out = append(out, idl.Field{
			Name:    f.Name,
			Type:    r.classify(f.Type, site+"."+f.Name, fpos),
			Indexed: f.Indexed,
		})
	}
	return out
}

func (r *resolver) enqueue(owner, name, site string) {
	key := workItem{owner: owner, name: name}
	if r.seen[key] {
		return
	}
	r.seen[key] = true
	r.queue = append(r.queue, workItem{owner: owner, name: name, site: site})
}

// drain runs the reachability closure. The seen set makes cyclic
// references terminate.
func (r *resolver) drain() {
	for len(r.queue) > 0 {
		item := r.queue[0]
		r.queue = r.queue[1:]
		if item.owner == "" {
			r.resolveLocal(item.name)
		} else {
			r.checkForeign(item)
		}
	}
}

func (r *resolver) resolveLocal(name string) {
	ld, ok := r.locals[name]
	if !ok {
		return
	}
	switch ld.kind {
	case idl.KindStruct:
		s := r.set.Structs[ld.index]
		r.defs[name] = idl.TypeDef{
			Kind:   idl.KindStruct,
			Name:   name,
			Fields: r.fields(s.Fields, "struct "+name, s.Pos),
		}
	case idl.KindEnum:
		r.defs[name] = r.resolveEnum(r.set.Enums[ld.index])
	}
}

func (r *resolver) resolveEnum(e decl.Enum) idl.TypeDef {
	site := "enum " + e.Name
	def := idl.TypeDef{Kind: idl.KindEnum, Name: e.Name, Variants: make([]idl.Variant, 0, len(e.Variants))}
	names := make(map[string]bool)
	for _, v := range e.Variants {
		vpos := e.Pos
		if v.Pos.IsValid() {
			vpos = v.Pos
		}
		r.checkIdent(site, v.Name, vpos)
		if names[v.Name] {
			r.fail(ErrDuplicateDefinition, site, v.Name, vpos, "variant declared more than once")
			continue
		}
		names[v.Name] = true

		out := idl.Variant{Name: v.Name}
		vsite := site + "::" + v.Name
		switch v.Kind {
		case decl.VariantTuple:
			for i, s := range v.Elems {
				out.Elems = append(out.Elems, r.classify(s, fmt.Sprintf("%s.%d", vsite, i), vpos))
			}
		case decl.VariantNamed:
			if fs := r.fields(v.Fields, vsite, vpos); len(fs) > 0 {
				out.Fields = fs
			}
		}
		def.Variants = append(def.Variants, out)
	}
	return def
}

// checkUnreached resolves the names used by local structs and enums the walk
// never reached. Their shapes are not classified and they are not exported.
func (r *resolver) checkUnreached() {
	fieldNames := func(fs []decl.Field, site string, pos token.Pos) {
		for _, f := range fs {
			fpos := pos
			if f.Pos.IsValid() {
				fpos = f.Pos
			}
			r.checkNames(f.Type, site+"."+f.Name, fpos)
		}
	}
	for i, s := range r.set.Structs {
		if !r.unreached(s.Name, idl.KindStruct, i) {
			continue
		}
		fieldNames(s.Fields, "struct "+s.Name, s.Pos)
	}
	for i, e := range r.set.Enums {
		if !r.unreached(e.Name, idl.KindEnum, i) {
			continue
		}
		site := "enum " + e.Name
		for _, v := range e.Variants {
			vpos := e.Pos
			if v.Pos.IsValid() {
				vpos = v.Pos
			}
			vsite := site + "::" + v.Name
			for j, el := range v.Elems {
				r.checkNames(el, fmt.Sprintf("%s.%d", vsite, j), vpos)
			}
			fieldNames(v.Fields, vsite, vpos)
		}
	}
}

// unreached reports whether the declaration at index is the indexed local of
// that name and the walk never queued it.
func (r *resolver) unreached(name string, kind idl.DefKind, index int) bool {
	ld, ok := r.locals[name]
	if !ok || ld.kind != kind || ld.index != index {
		return false
	}
	return !r.seen[workItem{name: name}]
}

// checkForeign walks a def owned by an imported interface. Its types are
// already resolved; the walk only enforces that everything it reaches is
// visible through this interface's own declared imports.
func (r *resolver) checkForeign(item workItem) {
	owner := r.linked[item.owner]
	if owner == nil {
		return
	}
	def, ok := owner.TypeDef(item.name)
	if !ok {
		r.fail(ErrUnknownType, item.site, item.owner+"."+item.name, token.NoPos,
			fmt.Sprintf("not declared by %s", owner.Key()))
		return
	}

	visit := func(t idl.Type) {
		idl.Walk(t, func(t idl.Type) {
			d, ok := t.(idl.Defined)
			if !ok {
				return
			}
			if d.Namespace == "" {
				r.enqueue(item.owner, d.Name, item.site)
				return
			}
			via, ok := owner.Import(d.Namespace)
			if !ok {
				r.fail(ErrUnknownType, item.site, d.String(), token.NoPos,
					fmt.Sprintf("%s references an import it does not declare", owner.Key()))
				return
			}
			ours, declared := r.declared[via.Name]
			if !declared || ours.Key() != via.Key() {
				r.fail(ErrUndeclaredImport, item.site, d.String(), token.NoPos,
					fmt.Sprintf("reachable through %s.%s; %s must be imported explicitly",
						item.owner, item.name, via.Key()))
				return
			}
			if r.linked[via.Name] != nil {
				r.enqueue(via.Name, d.Name, item.site)
			}
		})
	}
	for _, f := range def.Fields {
		visit(f.Type)
	}
	for _, v := range def.Variants {
		for _, f := range v.Fields {
			visit(f.Type)
		}
		for _, e := range v.Elems {
			visit(e)
		}
	}
}

// collectTypeDefs returns reachable local structs and enums in declaration
// order: structs first, then enums.
func (r *resolver) collectTypeDefs() []idl.TypeDef {
	out := make([]idl.TypeDef, 0, len(r.defs))
	for _, s := range r.set.Structs {
		if def, ok := r.defs[s.Name]; ok && def.Kind == idl.KindStruct {
			out = append(out, def)
		}
	}
	for _, e := range r.set.Enums {
		if def, ok := r.defs[e.Name]; ok && def.Kind == idl.KindEnum {
			out = append(out, def)
		}
	}
	return out
}

func (r *resolver) declaredDefs() int {
	return len(r.set.Structs) + len(r.set.Enums)
}

func (r *resolver) checkIdent(site, name string, pos token.Pos) {
	switch {
	case name == "":
		r.fail(ErrInvalidIdentifier, site, "", pos, "empty name")
	case !norm.NFC.IsNormalString(name):
		r.fail(ErrInvalidIdentifier, site, name, pos, "name is not NFC-normalized")
	}
}

func (r *resolver) fail(code ErrorCode, site, ref string, pos token.Pos, msg string) {
	key := string(code) + "|" + site + "|" + ref + "|" + msg
	if r.reported[key] {
		return
	}
	r.reported[key] = true
	r.errs = append(r.errs, &Error{Code: code, Decl: site, Ref: ref, Message: msg, Pos: pos})
}
