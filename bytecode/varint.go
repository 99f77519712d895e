package bytecode

import "errors"

// Varint decode errors.
var (
	// ErrVarintTruncated is returned when the stream ends inside a varint.
	ErrVarintTruncated = errors.New("bytecode: truncated varint")

	// ErrVarintWidth is returned when the length prefix is not 1, 2, or 4.
	ErrVarintWidth = errors.New("bytecode: invalid varint width")
)

// Operand integers are length-prefixed little-endian varints: a lead byte
// equal to the payload width (1, 2, or 4), followed by that
// many value bytes. Encoding is canonical: the smallest width that fits
// the value is used, so decode(encode(v)) == v and the decoded length
// always equals the encoded length.

// AppendVarint appends the canonical encoding of v to dst and returns the
// extended slice.
func AppendVarint(dst []byte, v uint32) []byte {
	switch {
	case v <= 0xFF:
		return append(dst, 1, byte(v))
	case v <= 0xFFFF:
		return append(dst, 2, byte(v), byte(v>>8))
	default:
		return append(dst, 4, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
	}
}

// VarintLen returns the encoded length of v in bytes, including the
// length prefix.
func VarintLen(v uint32) int {
	switch {
	case v <= 0xFF:
		return 2
	case v <= 0xFFFF:
		return 3
	default:
		return 5
	}
}

// Varint decodes a varint at the start of buf. It returns the value and
// the total number of bytes consumed.
func Varint(buf []byte) (v uint32, n int, err error) {
	if len(buf) == 0 {
		return 0, 0, ErrVarintTruncated
	}
	width := int(buf[0])
	switch width {
	case 1, 2, 4:
	default:
		return 0, 0, ErrVarintWidth
	}
	if len(buf) < 1+width {
		return 0, 0, ErrVarintTruncated
	}
	for i := range width {
		v |= uint32(buf[1+i]) << (8 * i)
	}
	return v, 1 + width, nil
}

// SkipVarint returns the total length of the varint at the start of buf
// without decoding its value.
func SkipVarint(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, ErrVarintTruncated
	}
	width := int(buf[0])
	switch width {
	case 1, 2, 4:
	default:
		return 0, ErrVarintWidth
	}
	if len(buf) < 1+width {
		return 0, ErrVarintTruncated
	}
	return 1 + width, nil
}
