package ebm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"iter"
	"slices"

	"github.com/RogerMarsh/solentware-base-sub003/engine"
	"github.com/RogerMarsh/solentware-base-sub003/segment"
)

// ErrAllocationExhausted is returned when no free record number remains
// below the configured maximum. Fatal: the file is full.
var ErrAllocationExhausted = errors.New("ebm: record number space exhausted")

// ErrNotAllocated is returned when freeing a record number whose bit is not
// set. It indicates a lifecycle bug in the caller.
var ErrNotAllocated = errors.New("ebm: record number not allocated")

// AllocationPolicy decides which record number Allocate hands out.
type AllocationPolicy uint8

const (
	// LowestFree returns the smallest currently-unallocated number, so
	// freed numbers are recycled as soon as they become the lowest hole.
	LowestFree AllocationPolicy = iota + 1

	// AppendOnly never recycles: every allocation extends the high end of
	// the used number space. For engines that forbid record-number reuse.
	AppendOnly
)

// Option configures a Bitmap.
type Option func(*Bitmap)

// WithAllocationPolicy selects the reuse policy. Default LowestFree.
func WithAllocationPolicy(p AllocationPolicy) Option {
	return func(b *Bitmap) { b.policy = p }
}

// WithMaxRecords caps the record number space. Default 1<<32.
func WithMaxRecords(n uint64) Option {
	return func(b *Bitmap) { b.maxRecords = n }
}

// Bitmap is the existence bitmap for one file.
type Bitmap struct {
	store      engine.Store
	codec      *segment.Codec
	policy     AllocationPolicy
	maxRecords uint64

	// lowWater is the first segment that may contain a hole; every segment
	// below it decoded as full when last read.
	lowWater segment.SegmentNumber

	// highWater is the next never-used record number, valid once scanned.
	highWater      uint64
	highWaterKnown bool
}

// Entry is one stored segment of the bitmap.
type Entry struct {
	Number  segment.SegmentNumber
	Payload []byte
}

// New creates the existence bitmap over its engine namespace.
func New(store engine.Store, codec *segment.Codec, opts ...Option) (*Bitmap, error) {
	b := &Bitmap{
		store:      store,
		codec:      codec,
		policy:     LowestFree,
		maxRecords: 1 << 32,
	}
	for _, opt := range opts {
		opt(b)
	}

	if b.policy != LowestFree && b.policy != AppendOnly {
		return nil, fmt.Errorf("ebm: unknown allocation policy %d", b.policy)
	}
	if b.maxRecords == 0 || b.maxRecords > 1<<32 {
		return nil, fmt.Errorf("ebm: max records %d outside (0, 1<<32]", b.maxRecords)
	}
	return b, nil
}

// Allocate marks and returns a free record number per the policy.
func (b *Bitmap) Allocate() (segment.RecordNumber, error) {
	switch b.policy {
	case AppendOnly:
		return b.allocateAppend()
	default:
		return b.allocateLowest()
	}
}

func (b *Bitmap) allocateLowest() (segment.RecordNumber, error) {
	segSize := uint64(b.codec.SegmentSize())

	for n := b.lowWater; ; n++ {
		if uint64(n)*segSize >= b.maxRecords {
			return 0, ErrAllocationExhausted
		}

		payload, err := b.load(n)
		if err != nil {
			return 0, err
		}

		offset, used, err := b.firstHole(payload)
		if err != nil {
			return 0, err
		}
		if used == b.codec.SegmentSize() {
			b.lowWater = n + 1
			continue
		}

		r := uint64(n)*segSize + uint64(offset)
		if r >= b.maxRecords {
			return 0, ErrAllocationExhausted
		}
		if err := b.set(n, payload, offset); err != nil {
			return 0, err
		}
		if used+1 == b.codec.SegmentSize() {
			b.lowWater = n + 1
		}
		if b.highWaterKnown && r >= b.highWater {
			b.highWater = r + 1
		}
		return segment.RecordNumber(r), nil
	}
}

func (b *Bitmap) allocateAppend() (segment.RecordNumber, error) {
	if !b.highWaterKnown {
		high, err := b.scanHighWater()
		if err != nil {
			return 0, err
		}
		b.highWater = high
		b.highWaterKnown = true
	}

	r := b.highWater
	if r >= b.maxRecords {
		return 0, ErrAllocationExhausted
	}

	n := segment.SegmentNumber(r / uint64(b.codec.SegmentSize()))
	payload, err := b.load(n)
	if err != nil {
		return 0, err
	}
	if err := b.set(n, payload, uint16(r%uint64(b.codec.SegmentSize()))); err != nil {
		return 0, err
	}
	b.highWater = r + 1
	return segment.RecordNumber(r), nil
}

// Free clears the bit for r. The caller must already have removed r from
// every secondary-index segment referencing it; a later Allocate may hand r
// out again and would collide with stale index entries.
func (b *Bitmap) Free(r segment.RecordNumber) error {
	n := b.codec.SegmentOf(r)
	payload, err := b.load(n)
	if err != nil {
		return err
	}
	if len(payload) == 0 {
		return fmt.Errorf("ebm: free %d: %w", r, ErrNotAllocated)
	}

	offsets, err := b.codec.Decode(payload)
	if err != nil {
		return err
	}
	offset := b.codec.OffsetOf(r)
	if _, found := slices.BinarySearch(offsets, offset); !found {
		return fmt.Errorf("ebm: free %d: %w", r, ErrNotAllocated)
	}

	merged, err := b.codec.Merge(payload, segment.OpRemove, []uint16{offset})
	if err != nil {
		return err
	}
	if merged == nil {
		if err := b.store.Delete(segmentKey(n)); err != nil {
			return fmt.Errorf("ebm: drop segment %d: %w", n, err)
		}
	} else if err := b.store.Put(segmentKey(n), merged); err != nil {
		return fmt.Errorf("ebm: store segment %d: %w", n, err)
	}

	if n < b.lowWater {
		b.lowWater = n
	}
	return nil
}

// IsSet reports whether a live record occupies r.
func (b *Bitmap) IsSet(r segment.RecordNumber) (bool, error) {
	payload, err := b.load(b.codec.SegmentOf(r))
	if err != nil {
		return false, err
	}
	if len(payload) == 0 {
		return false, nil
	}
	offsets, err := b.codec.Decode(payload)
	if err != nil {
		return false, err
	}
	_, found := slices.BinarySearch(offsets, b.codec.OffsetOf(r))
	return found, nil
}

// Count returns the number of allocated record numbers.
func (b *Bitmap) Count() (uint64, error) {
	var total uint64
	for entry, err := range b.All() {
		if err != nil {
			return 0, err
		}
		n, err := b.codec.Count(entry.Payload)
		if err != nil {
			return 0, err
		}
		total += uint64(n)
	}
	return total, nil
}

// All iterates the stored segments in ascending segment-number order.
// Payloads are copies and safe to retain.
func (b *Bitmap) All() iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		cur, err := b.store.Cursor()
		if err != nil {
			yield(Entry{}, fmt.Errorf("ebm: cursor: %w", err))
			return
		}
		defer cur.Close()

		for ok := cur.First(); ok; ok = cur.Next() {
			key := cur.Key()
			if len(key) != 4 {
				yield(Entry{}, fmt.Errorf("ebm: malformed segment key of %d bytes", len(key)))
				return
			}
			entry := Entry{
				Number:  segment.SegmentNumber(binary.BigEndian.Uint32(key)),
				Payload: slices.Clone(cur.Value()),
			}
			if !yield(entry, nil) {
				return
			}
		}
	}
}

// Records returns every allocated record number as a set.
func (b *Bitmap) Records() (*segment.RecordSet, error) {
	set := segment.NewRecordSet()
	for entry, err := range b.All() {
		if err != nil {
			return nil, err
		}
		if err := set.AddSegment(b.codec, entry.Number, entry.Payload); err != nil {
			return nil, err
		}
	}
	return set, nil
}

// load returns the stored payload for a segment, nil when absent.
func (b *Bitmap) load(n segment.SegmentNumber) ([]byte, error) {
	payload, err := b.store.Get(segmentKey(n))
	if errors.Is(err, engine.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ebm: load segment %d: %w", n, err)
	}
	return payload, nil
}

func (b *Bitmap) set(n segment.SegmentNumber, payload []byte, offset uint16) error {
	merged, err := b.codec.Merge(payload, segment.OpAdd, []uint16{offset})
	if err != nil {
		return err
	}
	if err := b.store.Put(segmentKey(n), merged); err != nil {
		return fmt.Errorf("ebm: store segment %d: %w", n, err)
	}
	return nil
}

// firstHole returns the lowest unset offset and the window's current
// cardinality. A cardinality equal to the window size means no hole.
func (b *Bitmap) firstHole(payload []byte) (uint16, int, error) {
	if len(payload) == 0 {
		return 0, 0, nil
	}
	offsets, err := b.codec.Decode(payload)
	if err != nil {
		return 0, 0, err
	}
	for i, off := range offsets {
		if int(off) != i {
			return uint16(i), len(offsets), nil
		}
	}
	return uint16(len(offsets)), len(offsets), nil
}

func (b *Bitmap) scanHighWater() (uint64, error) {
	cur, err := b.store.Cursor()
	if err != nil {
		return 0, fmt.Errorf("ebm: cursor: %w", err)
	}
	defer cur.Close()

	if !cur.Last() {
		return 0, nil
	}
	key := cur.Key()
	if len(key) != 4 {
		return 0, fmt.Errorf("ebm: malformed segment key of %d bytes", len(key))
	}
	n := segment.SegmentNumber(binary.BigEndian.Uint32(key))
	offsets, err := b.codec.Decode(cur.Value())
	if err != nil {
		return 0, err
	}
	if len(offsets) == 0 {
		return 0, fmt.Errorf("ebm: segment %d stored empty", n)
	}
	last := offsets[len(offsets)-1]
	return uint64(n)*uint64(b.codec.SegmentSize()) + uint64(last) + 1, nil
}

func segmentKey(n segment.SegmentNumber) []byte {
	key := make([]byte, 4)
	binary.BigEndian.PutUint32(key, uint32(n))
	return key
}
