// Package wire implements the canonical CBOR encoding of svcidl values.
//
// Encoding is type-directed: every Encode and Decode call takes the idl.Type
// of the value, and the same (type, value) pair always produces the same
// bytes. Struct and event fields are written in declaration order; map keys
// are never sorted by the encoder.
//
// Per type:
//
//	unit            null
//	bool            true / false
//	integers        major type 0/1 at minimal width; 128-bit values outside
//	                the 64-bit range use bignum tags 2/3
//	string          text string
//	bytes           byte string
//	address         byte string of exactly 20 bytes
//	balance         tag 2 bignum, minimal big-endian magnitude
//	tuple/array/list definite-length array
//	optional        null when absent, otherwise the inner value
//	result          {"Ok": v} or {"Err": e}
//	struct/event    map keyed by field name
//	enum            "Variant" or {"Variant": payload}
//
// Decoding rejects indefinite lengths, duplicate map keys, trailing bytes,
// floats, invalid UTF-8 and non-minimal bignums. Any failure aborts the whole
// decode and reports the failing path.
//
// A Codec is immutable and safe for concurrent use.
package wire
