package dispatch

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes dispatch failures.
type ErrorCode string

const (
	// ErrMethodNotFound indicates the envelope named no registered method.
	ErrMethodNotFound ErrorCode = "METHOD_NOT_FOUND"

	// ErrArgumentDecode indicates a payload of the wrong arity or an
	// argument that failed to decode.
	ErrArgumentDecode ErrorCode = "ARGUMENT_DECODE_ERROR"

	// ErrInvalidEnvelope indicates the message was not a call envelope.
	ErrInvalidEnvelope ErrorCode = "INVALID_ENVELOPE"

	// ErrHandlerFailed indicates the implementation returned an error the
	// interface cannot express, or a value that does not match its output.
	ErrHandlerFailed ErrorCode = "HANDLER_FAILED"

	// ErrMissingHandler indicates a table built without an implementation
	// for a declared function, or with one for an undeclared name.
	ErrMissingHandler ErrorCode = "MISSING_HANDLER"
)

// Error is a dispatch-layer failure.
type Error struct {
	Code   ErrorCode
	Method string
	Err    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Method != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Method, e.Err)
	case e.Method != "":
		return fmt.Sprintf("%s: %s", e.Code, e.Method)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return string(e.Code)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// CodeOf returns the dispatch error code carried by err.
func CodeOf(err error) (ErrorCode, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Code, true
	}
	return "", false
}

// IsMethodNotFound returns true if err is an unknown method failure.
func IsMethodNotFound(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == ErrMethodNotFound
}

// IsArgumentDecode returns true if err is an argument decode failure.
func IsArgumentDecode(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == ErrArgumentDecode
}

// IsInvalidEnvelope returns true if err is a malformed envelope.
func IsInvalidEnvelope(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == ErrInvalidEnvelope
}

// IsProtocolError reports whether err means the call never reached a
// handler. Handler failures are not protocol errors.
func IsProtocolError(err error) bool {
	code, ok := CodeOf(err)
	if !ok {
		return false
	}
	switch code {
	case ErrMethodNotFound, ErrArgumentDecode, ErrInvalidEnvelope:
		return true
	}
	return false
}
