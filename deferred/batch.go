package deferred

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/RogerMarsh/solentware-base-sub003/ebm"
	"github.com/RogerMarsh/solentware-base-sub003/engine"
	"github.com/RogerMarsh/solentware-base-sub003/segment"
)

// Batch is the record intake for one deferred-update run. Put and Delete
// write the primary store and the record-number bitmap immediately; the
// index updates they imply go to the coordinator and reach the shelf only
// at checkpoints.
type Batch struct {
	co      *Coordinator
	records *ebm.Bitmap
	primary engine.Store

	puts    int
	deletes int
}

// NewBatch wires a batch over a file's primary store and record bitmap.
// The coordinator must already be collecting when the batch is used.
func NewBatch(co *Coordinator, records *ebm.Bitmap, primary engine.Store) (*Batch, error) {
	switch {
	case co == nil:
		return nil, errors.New("deferred: nil coordinator")
	case records == nil:
		return nil, errors.New("deferred: nil record bitmap")
	case primary == nil:
		return nil, errors.New("deferred: nil primary store")
	}
	return &Batch{co: co, records: records, primary: primary}, nil
}

// Put allocates a record number, stores value under it, and queues an
// index add for every key in index. Duplicate keys under one field are
// queued once. Fields are visited in sorted order so two identical runs
// accumulate deltas identically.
func (b *Batch) Put(value []byte, index map[string][][]byte) (segment.RecordNumber, error) {
	r, err := b.records.Allocate()
	if err != nil {
		return 0, err
	}
	if err := b.primary.Put(segment.RecordKey(r), value); err != nil {
		return 0, errors.Join(err, b.records.Free(r))
	}
	for _, field := range slices.Sorted(maps.Keys(index)) {
		for _, key := range index[field] {
			if err := b.co.Add(field, key, r); err != nil {
				return 0, err
			}
		}
	}
	b.puts++
	return r, nil
}

// Delete queues index removes for the record's keys, deletes the primary
// row, and frees the record number. A later Put in the same run may
// recycle the number.
func (b *Batch) Delete(r segment.RecordNumber, index map[string][][]byte) error {
	live, err := b.records.IsSet(r)
	if err != nil {
		return err
	}
	if !live {
		return fmt.Errorf("deferred: delete record %d: %w", r, ebm.ErrNotAllocated)
	}
	for _, field := range slices.Sorted(maps.Keys(index)) {
		for _, key := range index[field] {
			if err := b.co.Remove(field, key, r); err != nil {
				return err
			}
		}
	}
	if err := b.primary.Delete(segment.RecordKey(r)); err != nil {
		return err
	}
	if err := b.records.Free(r); err != nil {
		return err
	}
	b.deletes++
	return nil
}

// Puts reports how many records the batch has stored.
func (b *Batch) Puts() int { return b.puts }

// Deletes reports how many records the batch has removed.
func (b *Batch) Deletes() int { return b.deletes }
