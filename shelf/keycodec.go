package shelf

import (
	"encoding/binary"
	"fmt"

	"github.com/RogerMarsh/solentware-base-sub003/segment"
)

// Composite keys must sort by (component..., segment number), and no
// encoded component may be a prefix of another. Zero bytes inside a
// component are escaped as 0x00 0xFF and every component ends with the
// terminator 0x00 0x01. The terminator sorts below any continuation, so
// byte order equals component order for arbitrary byte strings.
const (
	escByte  byte = 0x00
	escPad   byte = 0xFF
	termByte byte = 0x01
)

// ReservedPrefix returns the encoded component prefix for a reserved name.
// Field names cannot contain the artifact separator, so a reserved name
// carrying one carves a region of a combined namespace that no field's
// composite keys can reach.
func ReservedPrefix(name string) []byte {
	return appendComponent(nil, []byte(name))
}

// appendComponent appends the escaped form of src plus the terminator.
func appendComponent(dst, src []byte) []byte {
	for _, b := range src {
		if b == escByte {
			dst = append(dst, escByte, escPad)
		} else {
			dst = append(dst, b)
		}
	}
	return append(dst, escByte, termByte)
}

// appendSegment appends the fixed-width big-endian segment number.
func appendSegment(dst []byte, n segment.SegmentNumber) []byte {
	return binary.BigEndian.AppendUint32(dst, uint32(n))
}

// segmentFromKey recovers the segment number from a composite key whose
// component prefix is prefixLen bytes. Anything but an exact fixed-width
// remainder is corruption.
func segmentFromKey(k []byte, prefixLen int) (segment.SegmentNumber, error) {
	if len(k) != prefixLen+4 {
		return 0, fmt.Errorf("shelf: composite key is %d bytes under a %d byte prefix: %w",
			len(k), prefixLen, ErrCorruptKey)
	}
	return segment.SegmentNumber(binary.BigEndian.Uint32(k[prefixLen:])), nil
}
