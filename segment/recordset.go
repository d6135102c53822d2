package segment

import (
	"iter"

	"github.com/RoaringBitmap/roaring/v2"
)

// RecordSet is a set of full record numbers spanning any number of windows.
// It aggregates decoded segments into one structure for query results and
// supports the usual set algebra. It wraps a 32-bit roaring bitmap.
//
// A RecordSet is not safe for concurrent mutation.
type RecordSet struct {
	rb *roaring.Bitmap
}

// NewRecordSet creates an empty record set.
func NewRecordSet() *RecordSet {
	return &RecordSet{rb: roaring.New()}
}

// Add inserts a record number.
func (s *RecordSet) Add(r RecordNumber) {
	s.rb.Add(uint32(r))
}

// Remove deletes a record number.
func (s *RecordSet) Remove(r RecordNumber) {
	s.rb.Remove(uint32(r))
}

// Contains reports whether a record number is in the set.
func (s *RecordSet) Contains(r RecordNumber) bool {
	return s.rb.Contains(uint32(r))
}

// IsEmpty reports whether the set holds no record numbers.
func (s *RecordSet) IsEmpty() bool {
	return s.rb.IsEmpty()
}

// Cardinality returns the number of record numbers in the set.
func (s *RecordSet) Cardinality() uint64 {
	return s.rb.GetCardinality()
}

// Clone returns a deep copy of the set.
func (s *RecordSet) Clone() *RecordSet {
	return &RecordSet{rb: s.rb.Clone()}
}

// AddSegment decodes a payload and inserts every record number it covers,
// translating window offsets through the codec's window size.
func (s *RecordSet) AddSegment(c *Codec, n SegmentNumber, payload []byte) error {
	offsets, err := c.Decode(payload)
	if err != nil {
		return err
	}
	base := uint32(n) * uint32(c.segmentSize)
	for _, off := range offsets {
		s.rb.Add(base + uint32(off))
	}
	return nil
}

// All iterates the set in ascending record-number order.
func (s *RecordSet) All() iter.Seq[RecordNumber] {
	return func(yield func(RecordNumber) bool) {
		it := s.rb.Iterator()
		for it.HasNext() {
			if !yield(RecordNumber(it.Next())) {
				return
			}
		}
	}
}

// And intersects the set with other in place.
func (s *RecordSet) And(other *RecordSet) {
	s.rb.And(other.rb)
}

// Or unions other into the set in place.
func (s *RecordSet) Or(other *RecordSet) {
	s.rb.Or(other.rb)
}

// AndNot removes other's record numbers from the set in place.
func (s *RecordSet) AndNot(other *RecordSet) {
	s.rb.AndNot(other.rb)
}
