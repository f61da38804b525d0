package wire

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes codec errors.
type ErrorCode string

const (
	// ErrLengthMismatch indicates a fixed-size slot received the wrong length.
	ErrLengthMismatch ErrorCode = "LENGTH_MISMATCH"

	// ErrInvalidEnvelope indicates a malformed call envelope or Result map.
	ErrInvalidEnvelope ErrorCode = "INVALID_ENVELOPE"

	// ErrDecode indicates bytes that do not match the expected type.
	ErrDecode ErrorCode = "DECODE_ERROR"

	// ErrEncode indicates a value that does not match its type.
	ErrEncode ErrorCode = "ENCODE_ERROR"
)

// Error is a codec failure at a specific position in the value.
type Error struct {
	Code    ErrorCode
	Path    string // e.g. "Account.owner", "args[1]"
	Message string
	Err     error // Underlying CBOR error, if any
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s at %s: %s", e.Code, e.Path, msg)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// CodeOf returns the codec error code carried by err.
func CodeOf(err error) (ErrorCode, bool) {
	var we *Error
	if errors.As(err, &we) {
		return we.Code, true
	}
	return "", false
}

// IsLengthMismatch returns true if err is a length mismatch.
// Uses errors.As to handle wrapped errors.
func IsLengthMismatch(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == ErrLengthMismatch
}

// IsInvalidEnvelope returns true if err is an envelope violation.
func IsInvalidEnvelope(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == ErrInvalidEnvelope
}

func decodeErr(path, format string, args ...any) *Error {
	return &Error{Code: ErrDecode, Path: path, Message: fmt.Sprintf(format, args...)}
}

func encodeErr(path, format string, args ...any) *Error {
	return &Error{Code: ErrEncode, Path: path, Message: fmt.Sprintf(format, args...)}
}

func lengthErr(path string, want, got int) *Error {
	return &Error{Code: ErrLengthMismatch, Path: path, Message: fmt.Sprintf("expected %d elements, got %d", want, got)}
}

func join(path, seg string) string {
	if path == "" {
		return seg
	}
	return path + "." + seg
}

func index(path string, i int) string {
	return fmt.Sprintf("%s[%d]", path, i)
}
