// Package dispatch routes inbound call envelopes to service handlers.
//
// A Table is built once from a resolved interface and a map of method name
// to implementation. Dispatch then runs each call through the same steps:
//
//  1. Decode the {method, payload} envelope.
//  2. Look up the method; unknown names fail with METHOD_NOT_FOUND.
//  3. Decode the payload positionally against the argument types; a wrong
//     arity or a bad element fails with ARGUMENT_DECODE_ERROR.
//  4. Invoke the handler.
//  5. Encode the outcome: a bare value, a {"Ok": v} / {"Err": e} result for
//     fallible functions, or no bytes at all for a function without output.
//
// Protocol failures (steps 1-3) are returned as *Error and mean the handler
// never ran. An application failure signalled with Fail is not an error:
// the Reply carries the encoded Err payload with Failed set.
//
// The table is read-only after construction and safe for concurrent use.
// Serializing calls against shared service state is the caller's concern.
package dispatch
