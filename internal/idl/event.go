package idl

import (
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

// Topic is a 32-byte log topic used to filter emitted events.
type Topic [32]byte

// String returns the 0x-prefixed hex form.
func (t Topic) String() string { return "0x" + hex.EncodeToString(t[:]) }

// MarshalText implements encoding.TextMarshaler.
func (t Topic) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// EventTopic returns topic 0 of an event: keccak-256 of its name.
func EventTopic(name string) Topic {
	return keccak([]byte(name))
}

// IndexTopic returns the topic for one indexed field: keccak-256 of the
// field value's canonical encoding.
func IndexTopic(encoded []byte) Topic {
	return keccak(encoded)
}

func keccak(data []byte) Topic {
	var t Topic
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	h.Sum(t[:0])
	return t
}
