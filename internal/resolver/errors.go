package resolver

import (
	"errors"
	"fmt"
	"strings"

	"cuelang.org/go/cue/token"
)

// ErrorCode categorizes resolution errors.
type ErrorCode string

const (
	// ErrDuplicateDefinition indicates two declarations share a name.
	ErrDuplicateDefinition ErrorCode = "DUPLICATE_DEFINITION"

	// ErrUnknownType indicates a Defined reference matches no visible type def.
	ErrUnknownType ErrorCode = "UNKNOWN_TYPE"

	// ErrUndeclaredImport indicates a reference to a type owned by an
	// interface that is not among the declared imports.
	ErrUndeclaredImport ErrorCode = "UNDECLARED_IMPORT"

	// ErrConstructorArity indicates zero or several constructors.
	ErrConstructorArity ErrorCode = "CONSTRUCTOR_ARITY"

	// ErrUnsupportedType indicates a shape with no RPC-safe type variant.
	ErrUnsupportedType ErrorCode = "UNSUPPORTED_TYPE"

	// ErrTooManyIndexed indicates an event with more than three indexed fields.
	ErrTooManyIndexed ErrorCode = "TOO_MANY_INDEXED"

	// ErrMissingImport indicates a declared import absent from the link environment.
	ErrMissingImport ErrorCode = "MISSING_IMPORT"

	// ErrInvalidIdentifier indicates an empty, non-NFC, or builtin-shadowing name.
	ErrInvalidIdentifier ErrorCode = "INVALID_IDENTIFIER"
)

// Error is one resolution problem, reported against the declaration that
// contains it.
type Error struct {
	Code    ErrorCode
	Decl    string // Offending declaration, e.g. "struct Account"
	Ref     string // Offending reference or shape, if any
	Message string
	Pos     token.Pos
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Pos.IsValid() {
		fmt.Fprintf(&b, "%s:%d:%d: ", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column())
	}
	fmt.Fprintf(&b, "%s: %s", e.Code, e.Decl)
	if e.Ref != "" {
		fmt.Fprintf(&b, ": %s", e.Ref)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	return b.String()
}

// Errors is every problem found by one Resolve call, in discovery order.
type Errors []*Error

// Error implements the error interface.
func (es Errors) Error() string {
	switch len(es) {
	case 0:
		return "no errors"
	case 1:
		return es[0].Error()
	}
	lines := make([]string, len(es))
	for i, e := range es {
		lines[i] = e.Error()
	}
	return fmt.Sprintf("%d resolution errors:\n  %s", len(es), strings.Join(lines, "\n  "))
}

// Unwrap exposes the individual errors to errors.Is and errors.As.
func (es Errors) Unwrap() []error {
	out := make([]error, len(es))
	for i, e := range es {
		out[i] = e
	}
	return out
}

// HasCode reports whether err is or contains a resolution error with code.
func HasCode(err error, code ErrorCode) bool {
	var es Errors
	if errors.As(err, &es) {
		for _, e := range es {
			if e.Code == code {
				return true
			}
		}
		return false
	}
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// Codes returns the distinct codes in err, in first-seen order.
func Codes(err error) []ErrorCode {
	var es Errors
	if !errors.As(err, &es) {
		var e *Error
		if errors.As(err, &e) {
			return []ErrorCode{e.Code}
		}
		return nil
	}
	seen := make(map[ErrorCode]bool)
	var out []ErrorCode
	for _, e := range es {
		if !seen[e.Code] {
			seen[e.Code] = true
			out = append(out, e.Code)
		}
	}
	return out
}
