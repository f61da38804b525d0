package idl

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

// Encode serializes an interface to its description artifact JSON.
// The output is deterministic: struct fields in declaration order, slices in
// resolver order, no HTML escaping.
func Encode(iface *Interface) ([]byte, error) {
	if iface == nil {
		return nil, fmt.Errorf("nil interface")
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(iface); err != nil {
		return nil, fmt.Errorf("encode interface %s: %w", iface.Name, err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Decode parses description artifact JSON. Unknown fields are rejected.
func Decode(data []byte) (*Interface, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var iface Interface
	if err := dec.Decode(&iface); err != nil {
		return nil, fmt.Errorf("decode interface: %w", err)
	}
	if iface.Name == "" {
		return nil, fmt.Errorf("decode interface: missing name")
	}
	return &iface, nil
}

// Pack serializes an interface to a deflate-compressed artifact.
func Pack(iface *Interface) ([]byte, error) {
	data, err := Encode(iface)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("pack: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("pack: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("pack: %w", err)
	}
	return buf.Bytes(), nil
}

// Unpack parses a deflate-compressed artifact produced by Pack.
func Unpack(data []byte) (*Interface, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("unpack: %w", err)
	}
	return Decode(raw)
}

// Load parses either artifact form: plain JSON (first non-space byte '{')
// or packed.
func Load(data []byte) (*Interface, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return Decode(trimmed)
	}
	return Unpack(data)
}
