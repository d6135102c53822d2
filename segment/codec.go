package segment

import (
	"bytes"
	"errors"
	"fmt"
	"math/bits"
	"slices"
)

// Representation tags. Byte 0 of every payload.
const (
	tagList   byte = 0x01
	tagBitmap byte = 0x02
)

const (
	// MinSegmentSize and MaxSegmentSize bound the window size. Offsets
	// travel as uint16, so a window never exceeds 65536 records.
	MinSegmentSize = 8
	MaxSegmentSize = 1 << 16

	// DefaultSegmentSize gives a 4 KiB bitmap per window.
	DefaultSegmentSize = 1 << 15

	// maxListThreshold caps the derived list/bitmap conversion point.
	maxListThreshold = 1024
)

// ErrInvalidOffsets is returned when encode or merge input offsets are not
// strictly ascending distinct values inside the window.
var ErrInvalidOffsets = errors.New("segment: offsets outside window or not strictly ascending")

// CorruptError reports a payload that failed the decode invariant.
// It is fatal: callers must not retry and must surface it.
type CorruptError struct {
	Reason string
}

func (e *CorruptError) Error() string {
	return "segment: corrupt payload: " + e.Reason
}

func corruptf(format string, args ...any) error {
	return &CorruptError{Reason: fmt.Sprintf(format, args...)}
}

// Codec encodes, decodes and merges segment payloads for one window size.
// A Codec is immutable and safe to share between files with identical
// configuration.
type Codec struct {
	segmentSize int
	threshold   int
	noCompress  bool
	bitmapLen   int
}

// CodecOption configures a Codec.
type CodecOption func(*Codec)

// WithListThreshold overrides the cardinality at which Encode switches from
// List to Bitmap. Encode picks List while len(offsets) <= n.
func WithListThreshold(n int) CodecOption {
	return func(c *Codec) { c.threshold = n }
}

// WithNoCompress pins the List representation regardless of density.
func WithNoCompress() CodecOption {
	return func(c *Codec) { c.noCompress = true }
}

// DefaultListThreshold derives the list/bitmap conversion point for a
// window size: half the window, capped at 1024 records.
func DefaultListThreshold(segmentSize int) int {
	return min(maxListThreshold, segmentSize/2)
}

// NewCodec creates a Codec for the given window size. The size must be a
// multiple of 8 within [MinSegmentSize, MaxSegmentSize].
func NewCodec(segmentSize int, opts ...CodecOption) (*Codec, error) {
	if segmentSize < MinSegmentSize || segmentSize > MaxSegmentSize {
		return nil, fmt.Errorf("segment: size %d outside [%d, %d]", segmentSize, MinSegmentSize, MaxSegmentSize)
	}
	if segmentSize%8 != 0 {
		return nil, fmt.Errorf("segment: size %d not a multiple of 8", segmentSize)
	}

	c := &Codec{
		segmentSize: segmentSize,
		threshold:   DefaultListThreshold(segmentSize),
		bitmapLen:   segmentSize / 8,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.threshold < 1 || c.threshold >= segmentSize {
		return nil, fmt.Errorf("segment: list threshold %d outside [1, %d)", c.threshold, segmentSize)
	}

	return c, nil
}

// SegmentSize returns the window size in records.
func (c *Codec) SegmentSize() int { return c.segmentSize }

// Threshold returns the list/bitmap conversion point.
func (c *Codec) Threshold() int { return c.threshold }

// NoCompress reports whether the List representation is pinned.
func (c *Codec) NoCompress() bool { return c.noCompress }

// Encode serializes a strictly ascending set of window offsets.
// List is chosen while len(offsets) <= Threshold (always, for a no-compress
// codec); Bitmap otherwise. The empty set encodes as a bare List tag.
func (c *Codec) Encode(offsets []uint16) ([]byte, error) {
	if err := c.checkOffsets(offsets); err != nil {
		return nil, err
	}

	if c.noCompress || len(offsets) <= c.threshold {
		payload := make([]byte, 1+2*len(offsets))
		payload[0] = tagList
		for i, off := range offsets {
			payload[1+2*i] = byte(off >> 8)
			payload[2+2*i] = byte(off)
		}
		return payload, nil
	}

	payload := make([]byte, 1+c.bitmapLen)
	payload[0] = tagBitmap
	for _, off := range offsets {
		payload[1+off/8] |= 1 << (off % 8)
	}
	return payload, nil
}

// Decode recovers the offset set from a payload. It is the exact inverse of
// Encode for every representation. Malformed input returns *CorruptError.
func (c *Codec) Decode(payload []byte) ([]uint16, error) {
	if len(payload) == 0 {
		return nil, corruptf("empty payload")
	}

	switch payload[0] {
	case tagList:
		body := payload[1:]
		if len(body)%2 != 0 {
			return nil, corruptf("list body has odd length %d", len(body))
		}
		n := len(body) / 2
		if n > c.segmentSize {
			return nil, corruptf("list holds %d offsets, window is %d", n, c.segmentSize)
		}
		if n == 0 {
			return nil, nil
		}
		offsets := make([]uint16, n)
		for i := range offsets {
			off := uint16(body[2*i])<<8 | uint16(body[2*i+1])
			if int(off) >= c.segmentSize {
				return nil, corruptf("list offset %d outside window of %d", off, c.segmentSize)
			}
			if i > 0 && off <= offsets[i-1] {
				return nil, corruptf("list offsets not strictly ascending at index %d", i)
			}
			offsets[i] = off
		}
		return offsets, nil

	case tagBitmap:
		body := payload[1:]
		if len(body) != c.bitmapLen {
			return nil, corruptf("bitmap body is %d bytes, want %d", len(body), c.bitmapLen)
		}
		var offsets []uint16
		for i, b := range body {
			for b != 0 {
				bit := bits.TrailingZeros8(b)
				offsets = append(offsets, uint16(i*8+bit))
				b &^= 1 << bit
			}
		}
		return offsets, nil

	default:
		return nil, corruptf("unknown representation tag 0x%02x", payload[0])
	}
}

// Merge decodes the payload, applies the delta as a set union (OpAdd) or
// difference (OpRemove), and re-encodes, re-evaluating the representation
// choice. A nil payload is the empty segment; merging down to the empty set
// returns nil. Removing offsets that are not present is a no-op.
func (c *Codec) Merge(payload []byte, op Op, delta []uint16) ([]byte, error) {
	var current []uint16
	if len(payload) != 0 {
		var err error
		current, err = c.Decode(payload)
		if err != nil {
			return nil, err
		}
	}

	delta, err := c.normalizeDelta(delta)
	if err != nil {
		return nil, err
	}

	var merged []uint16
	switch op {
	case OpAdd:
		merged = unionSorted(current, delta)
	case OpRemove:
		merged = differenceSorted(current, delta)
	default:
		return nil, fmt.Errorf("segment: unknown merge op %d", op)
	}

	if len(merged) == 0 {
		return nil, nil
	}
	return c.Encode(merged)
}

// Validate checks that a payload is the canonical encoding of its own
// offset set: it must decode, and re-encoding the result must reproduce the
// payload byte for byte.
func (c *Codec) Validate(payload []byte) error {
	offsets, err := c.Decode(payload)
	if err != nil {
		return err
	}
	canonical, err := c.Encode(offsets)
	if err != nil {
		return err
	}
	if !bytes.Equal(payload, canonical) {
		return corruptf("payload is not the canonical %s encoding of its %d offsets",
			representationName(canonical[0]), len(offsets))
	}
	return nil
}

// Count returns the cardinality of a payload without materializing offsets.
func (c *Codec) Count(payload []byte) (int, error) {
	if len(payload) == 0 {
		return 0, corruptf("empty payload")
	}
	switch payload[0] {
	case tagList:
		if (len(payload)-1)%2 != 0 {
			return 0, corruptf("list body has odd length %d", len(payload)-1)
		}
		return (len(payload) - 1) / 2, nil
	case tagBitmap:
		if len(payload)-1 != c.bitmapLen {
			return 0, corruptf("bitmap body is %d bytes, want %d", len(payload)-1, c.bitmapLen)
		}
		n := 0
		for _, b := range payload[1:] {
			n += bits.OnesCount8(b)
		}
		return n, nil
	default:
		return 0, corruptf("unknown representation tag 0x%02x", payload[0])
	}
}

// Full returns the payload covering every offset in the window.
func (c *Codec) Full() []byte {
	if c.noCompress {
		offsets := make([]uint16, c.segmentSize)
		for i := range offsets {
			offsets[i] = uint16(i)
		}
		payload, _ := c.Encode(offsets)
		return payload
	}
	payload := make([]byte, 1+c.bitmapLen)
	payload[0] = tagBitmap
	for i := 1; i < len(payload); i++ {
		payload[i] = 0xFF
	}
	return payload
}

func (c *Codec) checkOffsets(offsets []uint16) error {
	for i, off := range offsets {
		if int(off) >= c.segmentSize {
			return ErrInvalidOffsets
		}
		if i > 0 && off <= offsets[i-1] {
			return ErrInvalidOffsets
		}
	}
	return nil
}

// normalizeDelta sorts and deduplicates merge input, rejecting offsets
// outside the window. The caller's slice is never mutated.
func (c *Codec) normalizeDelta(delta []uint16) ([]uint16, error) {
	if len(delta) == 0 {
		return nil, nil
	}
	out := slices.Clone(delta)
	slices.Sort(out)
	out = slices.Compact(out)
	if int(out[len(out)-1]) >= c.segmentSize {
		return nil, ErrInvalidOffsets
	}
	return out, nil
}

func unionSorted(a, b []uint16) []uint16 {
	out := make([]uint16, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			out = append(out, a[i])
			i++
		case a[i] > b[j]:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}

func differenceSorted(a, b []uint16) []uint16 {
	out := make([]uint16, 0, len(a))
	j := 0
	for _, v := range a {
		for j < len(b) && b[j] < v {
			j++
		}
		if j < len(b) && b[j] == v {
			continue
		}
		out = append(out, v)
	}
	return out
}

func representationName(tag byte) string {
	switch tag {
	case tagList:
		return "list"
	case tagBitmap:
		return "bitmap"
	default:
		return "unknown"
	}
}
