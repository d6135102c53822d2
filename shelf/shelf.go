package shelf

import (
	"bytes"
	"errors"
	"fmt"
	"iter"
	"maps"
	"slices"

	"github.com/RogerMarsh/solentware-base-sub003/engine"
	"github.com/RogerMarsh/solentware-base-sub003/internal/cache"
	"github.com/RogerMarsh/solentware-base-sub003/segment"
)

var (
	// ErrUnknownField is returned when an operation names a field the
	// shelf was not built with.
	ErrUnknownField = errors.New("shelf: unknown field")

	// ErrCorruptKey is returned when a stored composite key does not
	// parse back to (key, segment number).
	ErrCorruptKey = errors.New("shelf: malformed composite key")

	// ErrEmptySegment is returned by Put for a payload covering no
	// records. Empty segments are deleted, never stored.
	ErrEmptySegment = errors.New("shelf: empty segment payload")
)

// Entry is one (segment number, payload) pair under an index key.
type Entry struct {
	Segment segment.SegmentNumber
	Payload []byte
}

// Shelf is the segment store for one file's secondary indexes.
type Shelf struct {
	codec    *segment.Codec
	stores   map[string]engine.Store
	combined bool
	cache    *cache.PayloadCache
}

// Option configures a Shelf.
type Option func(*Shelf)

// WithCache attaches a payload read cache. The cache may be shared between
// shelves; entries are keyed by store name.
func WithCache(c *cache.PayloadCache) Option {
	return func(s *Shelf) { s.cache = c }
}

// NewPerField creates a Shelf that keeps every field in its own store.
func NewPerField(c *segment.Codec, stores map[string]engine.Store, opts ...Option) (*Shelf, error) {
	if c == nil {
		return nil, errors.New("shelf: nil codec")
	}
	if len(stores) == 0 {
		return nil, errors.New("shelf: no field stores")
	}
	for field, st := range stores {
		if st == nil {
			return nil, fmt.Errorf("shelf: nil store for field %q", field)
		}
	}

	s := &Shelf{codec: c, stores: maps.Clone(stores)}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewCombined creates a Shelf that keeps all fields in one shared store,
// with the field name leading the composite key.
func NewCombined(c *segment.Codec, store engine.Store, fields []string, opts ...Option) (*Shelf, error) {
	if c == nil {
		return nil, errors.New("shelf: nil codec")
	}
	if store == nil {
		return nil, errors.New("shelf: nil store")
	}
	if len(fields) == 0 {
		return nil, errors.New("shelf: no fields")
	}

	stores := make(map[string]engine.Store, len(fields))
	for _, field := range fields {
		stores[field] = store
	}

	s := &Shelf{codec: c, stores: stores, combined: true}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Codec returns the segment codec the shelf validates and merges with.
func (s *Shelf) Codec() *segment.Codec { return s.codec }

// Fields returns the field names the shelf was built with, sorted.
func (s *Shelf) Fields() []string {
	return slices.Sorted(maps.Keys(s.stores))
}

// Put stores a payload under (field, key, segment number). A payload that
// fails canonical validation is rejected as a surfaced error, never dropped.
func (s *Shelf) Put(field string, key []byte, segNo segment.SegmentNumber, payload []byte) error {
	if err := s.codec.Validate(payload); err != nil {
		return fmt.Errorf("shelf: put %q segment %d: %w", field, segNo, err)
	}
	n, err := s.codec.Count(payload)
	if err != nil {
		return fmt.Errorf("shelf: put %q segment %d: %w", field, segNo, err)
	}
	if n == 0 {
		return fmt.Errorf("shelf: put %q segment %d: %w", field, segNo, ErrEmptySegment)
	}
	return s.put(field, key, segNo, payload)
}

// put skips validation. Reserved for payloads the codec itself produced.
func (s *Shelf) put(field string, key []byte, segNo segment.SegmentNumber, payload []byte) error {
	st, err := s.storeFor(field)
	if err != nil {
		return err
	}

	ck := appendSegment(s.prefix(field, key), segNo)
	if err := st.Put(ck, payload); err != nil {
		return err
	}
	s.cache.Delete(cache.Key{Store: st.Name(), Key: string(ck)})
	return nil
}

// Get returns the payload under (field, key, segment number). An absent
// segment is (nil, false, nil), not an error.
func (s *Shelf) Get(field string, key []byte, segNo segment.SegmentNumber) ([]byte, bool, error) {
	st, err := s.storeFor(field)
	if err != nil {
		return nil, false, err
	}

	ck := appendSegment(s.prefix(field, key), segNo)
	cacheKey := cache.Key{Store: st.Name(), Key: string(ck)}
	if payload, ok := s.cache.Get(cacheKey); ok {
		return payload, true, nil
	}

	payload, err := st.Get(ck)
	if errors.Is(err, engine.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	s.cache.Set(cacheKey, payload)
	return payload, true, nil
}

// Delete removes the payload under (field, key, segment number). Deleting
// an absent segment is a no-op.
func (s *Shelf) Delete(field string, key []byte, segNo segment.SegmentNumber) error {
	st, err := s.storeFor(field)
	if err != nil {
		return err
	}

	ck := appendSegment(s.prefix(field, key), segNo)
	if err := st.Delete(ck); err != nil {
		return err
	}
	s.cache.Delete(cache.Key{Store: st.Name(), Key: string(ck)})
	return nil
}

// All returns the segments under (field, key) in ascending segment-number
// order. The sequence is finite and restartable: each range-over opens a
// fresh cursor. Yielded payloads are copies the consumer may retain.
func (s *Shelf) All(field string, key []byte) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		st, err := s.storeFor(field)
		if err != nil {
			yield(Entry{}, err)
			return
		}

		prefix := s.prefix(field, key)
		cur, err := st.Cursor()
		if err != nil {
			yield(Entry{}, err)
			return
		}
		defer cur.Close()

		for ok := cur.Seek(prefix); ok; ok = cur.Next() {
			k := cur.Key()
			if !bytes.HasPrefix(k, prefix) {
				return
			}
			segNo, err := segmentFromKey(k, len(prefix))
			if err != nil {
				yield(Entry{}, err)
				return
			}
			if !yield(Entry{Segment: segNo, Payload: slices.Clone(cur.Value())}, nil) {
				return
			}
		}
	}
}

// MergeRecord applies a single-record add or remove to the segment that
// covers the record, writing back the merged payload or deleting the
// segment when it empties. This is the immediate-mode index update.
func (s *Shelf) MergeRecord(field string, key []byte, r segment.RecordNumber, op segment.Op) error {
	segNo := s.codec.SegmentOf(r)

	payload, _, err := s.Get(field, key, segNo)
	if err != nil {
		return err
	}

	merged, err := s.codec.Merge(payload, op, []uint16{s.codec.OffsetOf(r)})
	if err != nil {
		return fmt.Errorf("shelf: %s record %d under %q: %w", op, r, field, err)
	}

	if merged == nil {
		return s.Delete(field, key, segNo)
	}
	// Merge output is canonical, skip revalidation.
	return s.put(field, key, segNo, merged)
}

// MergeSegment applies batched remove and add offset sets to one segment in
// a single read-merge-write pass. Removes run before adds, so a record that
// was deleted and re-added in the same batch lands present. Either set may
// be empty; offsets must be sorted and distinct. The segment entry is
// deleted when the merge empties it.
func (s *Shelf) MergeSegment(field string, key []byte, segNo segment.SegmentNumber, removes, adds []uint16) error {
	payload, found, err := s.Get(field, key, segNo)
	if err != nil {
		return err
	}

	merged := payload
	if len(removes) > 0 {
		merged, err = s.codec.Merge(merged, segment.OpRemove, removes)
		if err != nil {
			return fmt.Errorf("shelf: remove %d offsets from segment %d under %q: %w", len(removes), segNo, field, err)
		}
	}
	if len(adds) > 0 {
		merged, err = s.codec.Merge(merged, segment.OpAdd, adds)
		if err != nil {
			return fmt.Errorf("shelf: add %d offsets to segment %d under %q: %w", len(adds), segNo, field, err)
		}
	}

	if merged == nil {
		if !found {
			return nil
		}
		return s.Delete(field, key, segNo)
	}
	return s.put(field, key, segNo, merged)
}

// RecordsUnder collects every record number indexed under (field, key).
func (s *Shelf) RecordsUnder(field string, key []byte) (*segment.RecordSet, error) {
	set := segment.NewRecordSet()
	for e, err := range s.All(field, key) {
		if err != nil {
			return nil, err
		}
		if err := set.AddSegment(s.codec, e.Segment, e.Payload); err != nil {
			return nil, err
		}
	}
	return set, nil
}

func (s *Shelf) storeFor(field string) (engine.Store, error) {
	st, ok := s.stores[field]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	return st, nil
}

// prefix builds the composite-key prefix for key in field's store.
func (s *Shelf) prefix(field string, key []byte) []byte {
	dst := make([]byte, 0, len(field)+len(key)+8)
	if s.combined {
		dst = appendComponent(dst, []byte(field))
	}
	return appendComponent(dst, key)
}
