package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/svcidl/internal/wire"
)

// HandlerFunc implements one interface function. Args arrive decoded in
// declaration order. The returned value must match the function's output
// type; functions without output return nil.
//
// To reject a request with the function's declared error payload, return
// Fail(payload). Any other error is a handler failure.
type HandlerFunc func(ctx context.Context, args []wire.Value) (wire.Value, error)

// Handlers maps function names to implementations.
type Handlers map[string]HandlerFunc

// Failure carries an application error payload out of a handler.
type Failure struct {
	Payload wire.Value
}

// Error implements the error interface.
func (f *Failure) Error() string {
	return fmt.Sprintf("application failure: %#v", f.Payload)
}

// Fail returns an error that encodes as the Err arm of the function's
// result.
func Fail(payload wire.Value) error {
	return &Failure{Payload: payload}
}

// AsFailure extracts the application failure from err, if any.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
