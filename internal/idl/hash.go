package idl

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainInterface prefixes description hashes.
// Version suffix enables future algorithm migration.
const DomainInterface = "svcidl/interface/v1"

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Hash computes the content-addressed id of a description: the domain
// separated SHA-256 of its artifact JSON. Resolving the same declarations
// against the same imports always yields the same hash.
func Hash(iface *Interface) (string, error) {
	data, err := Encode(iface)
	if err != nil {
		return "", fmt.Errorf("Hash: %w", err)
	}
	return hashWithDomain(DomainInterface, data), nil
}

// MustHash is like Hash but panics on error.
// Use only in tests or when the interface is known to be valid.
func MustHash(iface *Interface) string {
	h, err := Hash(iface)
	if err != nil {
		panic(err)
	}
	return h
}
