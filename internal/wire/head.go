package wire

import "fmt"

// CBOR major types and simple values used directly by the codec.
const (
	majorUint   byte = 0
	majorNegInt byte = 1
	majorBytes  byte = 2
	majorText   byte = 3
	majorArray  byte = 4
	majorMap    byte = 5
	majorTag    byte = 6
	majorSimple byte = 7

	cborFalse byte = 0xf4
	cborTrue  byte = 0xf5
	cborNull  byte = 0xf6

	tagPosBignum uint64 = 2
	tagNegBignum uint64 = 3
)

// appendHead appends a data item head with the shortest argument encoding.
// The cbor package sorts map keys when it writes maps itself; records are
// written in declaration order, so their heads are emitted here.
func appendHead(b []byte, major byte, n uint64) []byte {
	m := major << 5
	switch {
	case n < 24:
		return append(b, m|byte(n))
	case n <= 0xff:
		return append(b, m|24, byte(n))
	case n <= 0xffff:
		return append(b, m|25, byte(n>>8), byte(n))
	case n <= 0xffffffff:
		return append(b, m|26, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
	}
	return append(b, m|27,
		byte(n>>56), byte(n>>48), byte(n>>40), byte(n>>32),
		byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
}

// appendText appends a definite-length text string.
func appendText(b []byte, s string) []byte {
	return append(appendHead(b, majorText, uint64(len(s))), s...)
}

func majorOf(raw []byte) byte {
	if len(raw) == 0 {
		return 0xff
	}
	return raw[0] >> 5
}

func majorName(m byte) string {
	switch m {
	case majorUint:
		return "unsigned integer"
	case majorNegInt:
		return "negative integer"
	case majorBytes:
		return "byte string"
	case majorText:
		return "text string"
	case majorArray:
		return "array"
	case majorMap:
		return "map"
	case majorTag:
		return "tag"
	case majorSimple:
		return "simple value or float"
	}
	return "nothing"
}

// checkCanonical walks every data item in data and rejects heads whose
// argument is not written at its shortest width. data must already be
// well-formed.
func checkCanonical(data []byte) error {
	off := 0
	for off < len(data) {
		next, err := canonicalItem(data, off)
		if err != nil {
			return err
		}
		off = next
	}
	return nil
}

// canonicalItem checks the item starting at off and returns the offset
// just past it.
func canonicalItem(data []byte, off int) (int, error) {
	major, n, next, err := readHead(data, off)
	if err != nil {
		return 0, err
	}
	switch major {
	case majorBytes, majorText:
		if uint64(len(data)-next) < n {
			return 0, fmt.Errorf("string at offset %d runs past the input", off)
		}
		return next + int(n), nil
	case majorArray, majorMap:
		count := n
		if major == majorMap {
			count *= 2
		}
		for i := uint64(0); i < count; i++ {
			if next, err = canonicalItem(data, next); err != nil {
				return 0, err
			}
		}
		return next, nil
	case majorTag:
		return canonicalItem(data, next)
	}
	return next, nil
}

// readHead decodes the head at off. Floats are skipped without a width
// check; the codec rejects them by type.
func readHead(data []byte, off int) (major byte, n uint64, next int, err error) {
	if off >= len(data) {
		return 0, 0, 0, fmt.Errorf("unexpected end of input at offset %d", off)
	}
	major, ai := data[off]>>5, data[off]&0x1f
	next = off + 1
	if ai < 24 {
		return major, uint64(ai), next, nil
	}
	if ai > 27 {
		return 0, 0, 0, fmt.Errorf("indefinite or reserved head 0x%02x at offset %d", data[off], off)
	}
	size := 1 << (ai - 24)
	if len(data)-next < size {
		return 0, 0, 0, fmt.Errorf("truncated head at offset %d", off)
	}
	for _, b := range data[next : next+size] {
		n = n<<8 | uint64(b)
	}
	next += size

	if major == majorSimple {
		if ai == 24 && n < 32 {
			return 0, 0, 0, fmt.Errorf("simple value %d in two-byte form at offset %d", n, off)
		}
		return major, n, next, nil
	}
	var min uint64
	switch ai {
	case 24:
		min = 24
	case 25:
		min = 0x100
	case 26:
		min = 0x10000
	case 27:
		min = 0x100000000
	}
	if n < min {
		return 0, 0, 0, fmt.Errorf("argument %d at offset %d is not in its shortest form", n, off)
	}
	return major, n, next, nil
}
