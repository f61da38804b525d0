package decl

import (
	"fmt"
	"strings"
	"unicode"

	"cuelang.org/go/cue/token"
)

// ShapeKind classifies the syntactic form of a shape.
type ShapeKind int

const (
	// ShapeNamed is a (possibly qualified, possibly generic) name: u32, token.Amount, list<T>.
	ShapeNamed ShapeKind = iota
	// ShapeTuple is a parenthesized list; zero elements is the unit shape.
	ShapeTuple
	// ShapePointer is a raw pointer: *T.
	ShapePointer
	// ShapeRef is a reference: &T.
	ShapeRef
	// ShapeLiteral is an integer literal used as a generic argument.
	ShapeLiteral
)

// Shape is the structural description of a type as reported by the front end.
type Shape struct {
	Kind   ShapeKind
	Module string  // Qualifier for named shapes, empty if unqualified
	Name   string  // Name for named shapes, digits for literals
	Args   []Shape // Generic args, tuple elements, or the pointee
	Pos    token.Pos
}

// Named returns an unqualified named shape.
func Named(name string, args ...Shape) Shape {
	return Shape{Kind: ShapeNamed, Name: name, Args: args}
}

// Qualified returns a named shape qualified by module.
func Qualified(module, name string) Shape {
	return Shape{Kind: ShapeNamed, Module: module, Name: name}
}

// TupleOf returns a tuple shape. No elements is the unit shape.
func TupleOf(elems ...Shape) Shape {
	return Shape{Kind: ShapeTuple, Args: elems}
}

// Literal returns an integer literal shape.
func Literal(n int) Shape {
	return Shape{Kind: ShapeLiteral, Name: fmt.Sprint(n)}
}

// IsUnit reports whether s is the empty tuple.
func (s Shape) IsUnit() bool {
	return s.Kind == ShapeTuple && len(s.Args) == 0
}

// String renders the shape in declaration syntax.
func (s Shape) String() string {
	switch s.Kind {
	case ShapeTuple:
		return "(" + joinShapes(s.Args) + ")"
	case ShapePointer:
		return "*" + s.elem().String()
	case ShapeRef:
		return "&" + s.elem().String()
	case ShapeLiteral:
		return s.Name
	}
	name := s.Name
	if s.Module != "" {
		name = s.Module + "." + name
	}
	if len(s.Args) > 0 {
		name += "<" + joinShapes(s.Args) + ">"
	}
	return name
}

func (s Shape) elem() Shape {
	if len(s.Args) == 0 {
		return Shape{}
	}
	return s.Args[0]
}

func joinShapes(shapes []Shape) string {
	parts := make([]string, len(shapes))
	for i, a := range shapes {
		parts[i] = a.String()
	}
	return strings.Join(parts, ", ")
}

// ParseShape parses declaration syntax into a Shape.
func ParseShape(src string) (Shape, error) {
	p := &shapeParser{src: src}
	s, err := p.parse()
	if err != nil {
		return Shape{}, fmt.Errorf("shape %q: %w", src, err)
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return Shape{}, fmt.Errorf("shape %q: unexpected %q at offset %d", src, p.src[p.pos:], p.pos)
	}
	return s, nil
}

// MustParseShape is like ParseShape but panics on error.
// Use only in tests.
func MustParseShape(src string) Shape {
	s, err := ParseShape(src)
	if err != nil {
		panic(err)
	}
	return s
}

type shapeParser struct {
	src string
	pos int
}

func (p *shapeParser) skipSpace() {
	for p.pos < len(p.src) && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
}

func (p *shapeParser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *shapeParser) expect(c byte) error {
	if p.peek() != c {
		if p.pos >= len(p.src) {
			return fmt.Errorf("expected %q, got end of input", c)
		}
		return fmt.Errorf("expected %q at offset %d", c, p.pos)
	}
	p.pos++
	return nil
}

func (p *shapeParser) parse() (Shape, error) {
	switch c := p.peek(); {
	case c == '*' || c == '&':
		p.pos++
		inner, err := p.parse()
		if err != nil {
			return Shape{}, err
		}
		kind := ShapePointer
		if c == '&' {
			kind = ShapeRef
		}
		return Shape{Kind: kind, Args: []Shape{inner}}, nil
	case c == '(':
		p.pos++
		elems, err := p.list(')')
		if err != nil {
			return Shape{}, err
		}
		return Shape{Kind: ShapeTuple, Args: elems}, nil
	case c >= '0' && c <= '9':
		start := p.pos
		for p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
			p.pos++
		}
		return Shape{Kind: ShapeLiteral, Name: p.src[start:p.pos]}, nil
	case isIdentStart(c):
		name := p.ident()
		s := Shape{Kind: ShapeNamed, Name: name}
		if p.peek() == '.' {
			p.pos++
			if !isIdentStart(p.peek()) {
				return Shape{}, fmt.Errorf("expected name after %q", name+".")
			}
			s.Module = name
			s.Name = p.ident()
		}
		if p.peek() == '<' {
			p.pos++
			args, err := p.list('>')
			if err != nil {
				return Shape{}, err
			}
			if len(args) == 0 {
				return Shape{}, fmt.Errorf("empty type arguments for %s", s.Name)
			}
			s.Args = args
		}
		return s, nil
	case c == 0:
		return Shape{}, fmt.Errorf("unexpected end of input")
	default:
		return Shape{}, fmt.Errorf("unexpected %q at offset %d", c, p.pos)
	}
}

// list parses comma-separated shapes up to and including close.
func (p *shapeParser) list(close byte) ([]Shape, error) {
	var out []Shape
	if p.peek() == close {
		p.pos++
		return out, nil
	}
	for {
		s, err := p.parse()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
		if p.peek() == ',' {
			p.pos++
			continue
		}
		if err := p.expect(close); err != nil {
			return nil, err
		}
		return out, nil
	}
}

func (p *shapeParser) ident() string {
	start := p.pos
	for p.pos < len(p.src) && isIdentPart(p.src[p.pos]) {
		p.pos++
	}
	return p.src[start:p.pos]
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
