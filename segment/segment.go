package segment

import "encoding/binary"

// RecordNumber identifies a record within one file. Numbers are unique
// while the record is live and may be recycled after deletion.
type RecordNumber uint32

// RecordKeyLen is the width of an encoded primary-store record key.
const RecordKeyLen = 4

// SegmentNumber identifies one window of record-number space.
type SegmentNumber uint32

// Op selects the direction of a merge.
type Op uint8

const (
	// OpAdd unions the delta offsets into the segment.
	OpAdd Op = iota + 1
	// OpRemove subtracts the delta offsets from the segment.
	// Removing offsets that are not present is a no-op.
	OpRemove
)

func (o Op) String() string {
	switch o {
	case OpAdd:
		return "add"
	case OpRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// SegmentOf returns the window that holds record number r.
func (c *Codec) SegmentOf(r RecordNumber) SegmentNumber {
	return SegmentNumber(uint32(r) / uint32(c.segmentSize))
}

// OffsetOf returns the position of record number r within its window.
func (c *Codec) OffsetOf(r RecordNumber) uint16 {
	return uint16(uint32(r) % uint32(c.segmentSize))
}

// RecordOf recombines a window and an offset into a record number.
func (c *Codec) RecordOf(n SegmentNumber, offset uint16) RecordNumber {
	return RecordNumber(uint32(n)*uint32(c.segmentSize) + uint32(offset))
}

// RecordKey encodes r as a fixed-width big-endian primary-store key, so a
// cursor over the primary namespace ascends by record number.
func RecordKey(r RecordNumber) []byte {
	return binary.BigEndian.AppendUint32(nil, uint32(r))
}

// RecordFromKey decodes a primary-store key produced by RecordKey.
func RecordFromKey(k []byte) (RecordNumber, error) {
	if len(k) != RecordKeyLen {
		return 0, corruptf("record key is %d bytes, want %d", len(k), RecordKeyLen)
	}
	return RecordNumber(binary.BigEndian.Uint32(k)), nil
}
