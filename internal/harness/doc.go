// Package harness runs dispatch conformance scenarios.
//
// A scenario builds an interface from CUE declarations, scripts the
// behaviour of every handler, sends a sequence of inbound messages through
// a real dispatch table and checks the outcome of each one. Every call,
// reply, emitted event and rejection is recorded in a trace stamped by a
// logical clock, so traces can be compared against golden files.
//
// # Scenario Format
//
//	name: calc_basic
//	description: "What this scenario validates"
//	decls: decls/calc          # CUE declarations, relative to this file
//	imports: artifacts         # optional <name>@<version>.idl directory
//	default: version           # optional function run by an empty message
//	handlers:
//	  add:
//	    return: 5
//	    emit:
//	      - event: Added
//	        fields: { a: 2, sum: 5 }
//	  div:
//	    fail: DivideByZero
//	steps:
//	  - call: add
//	    args: [2, 3]
//	    expect: { outcome: ok, output: 5, events: 1 }
//	  - raw: "a1"
//	    expect: { outcome: protocol_error, code: INVALID_ENVELOPE }
//	  - construct: true
//	    args: [7]
//	assertions:
//	  - type: trace_count
//	    method: add
//	    count: 1
//	  - type: event_emitted
//	    event: Added
//
// Handler behaviours are return (a native value), echo (an argument by
// name), fail (an application error payload) and error (a Go error, which
// surfaces as HANDLER_FAILED). A step may override its handler with
// behave. Values use the native form of wire.Codec.FromNative.
package harness
