package solentware

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/RogerMarsh/solentware-base-sub003/archive"
	"github.com/RogerMarsh/solentware-base-sub003/callqueue"
	"github.com/RogerMarsh/solentware-base-sub003/ebm"
	"github.com/RogerMarsh/solentware-base-sub003/engine"
	"github.com/RogerMarsh/solentware-base-sub003/filespec"
	"github.com/RogerMarsh/solentware-base-sub003/internal/cache"
	"github.com/RogerMarsh/solentware-base-sub003/segment"
	"github.com/RogerMarsh/solentware-base-sub003/shelf"
)

// Reserved region names for combined-layout namespaces. They carry the
// artifact separator, which field names cannot, so their key ranges never
// collide with field composite keys.
const (
	reservedEBM     = filespec.Separator + filespec.RoleEBM
	reservedPrimary = filespec.Separator + filespec.RoleSegment
)

// Record is one record's payload and index terms.
type Record struct {
	// Value is the primary payload.
	Value []byte

	// Index maps secondary field names to the key values the record is
	// indexed under. Duplicate values within one field are applied once.
	Index map[string][][]byte
}

// RecordEntry is one (record number, payload) pair yielded by Records.
type RecordEntry struct {
	Number segment.RecordNumber
	Value  []byte
}

// DB is a database of record files with segment-organized secondary
// indexes.
//
// Mutating operations on one file must not run concurrently unless the
// database was opened WithSerializedCalls; the queue is then the sole
// serialization mechanism and the stores carry no internal locking.
type DB struct {
	spec       filespec.FileSpec
	eng        engine.Engine
	arch       *archive.Manager
	queue      *callqueue.Queue
	cache      *cache.PayloadCache
	files      map[string]*fileHandle
	metrics    MetricsCollector
	logger     *Logger
	allocation ebm.AllocationPolicy
	flushLimit int64

	mu     sync.Mutex // protects closed
	closed bool
}

// fileHandle bundles one file's stores. Rebuilt after a restore replaces
// the file's artifacts; stale handles are dead.
type fileHandle struct {
	def     filespec.FileDef
	codec   *segment.Codec
	shelf   *shelf.Shelf
	records *ebm.Bitmap
	primary engine.Store
}

// Open validates the specification and opens every file's namespaces.
//
// Without WithEngine the database lives in memory (engine.NewMemory).
// An archive manager is wired when WithArchiveDir is given or the engine
// exposes its directory (engine.Bolt); deferred updates of Backup files
// are then protected by archive and restore.
func Open(spec filespec.FileSpec, optFns ...Option) (*DB, error) {
	opts := applyOptions(optFns)

	if len(spec) == 0 {
		return nil, configErr(nil, "empty file specification")
	}
	if err := spec.Validate(); err != nil {
		return nil, configErr(err, "file specification rejected")
	}

	eng := opts.eng
	if eng == nil {
		eng = engine.NewMemory()
	}

	db := &DB{
		spec:       maps.Clone(spec),
		eng:        eng,
		files:      make(map[string]*fileHandle, len(spec)),
		metrics:    opts.metricsCollector,
		logger:     opts.logger,
		allocation: opts.allocation,
		flushLimit: opts.flushLimitBytes,
	}
	if opts.cacheBytes > 0 {
		db.cache = cache.NewPayloadCache(opts.cacheBytes, nil)
	}

	dir := opts.archiveDir
	if dir == "" {
		if d, ok := eng.(interface{ Dir() string }); ok {
			dir = d.Dir()
		}
	}
	switch {
	case dir != "":
		archOpts := []archive.Option{archive.WithLogger(db.logger.Logger)}
		if opts.vlt != nil {
			archOpts = append(archOpts, archive.WithVault(opts.vlt))
		}
		if opts.fsys != nil {
			archOpts = append(archOpts, archive.WithFS(opts.fsys))
		}
		m, err := archive.NewManager(db.spec, dir, archOpts...)
		if err != nil {
			return nil, err
		}
		db.arch = m
	case opts.vlt != nil:
		return nil, configErr(nil, "vault configured without an archive directory")
	}

	for _, file := range slices.Sorted(maps.Keys(db.spec)) {
		h, err := db.openFile(file)
		if err != nil {
			_ = eng.Close()
			return nil, err
		}
		db.files[file] = h
	}

	if opts.serialized {
		db.queue = callqueue.New(callqueue.WithLogger(db.logger.Logger))
	}
	return db, nil
}

// openFile opens a file's namespaces and builds its stores. The engine
// namespaces are exactly the file's artifact names, so the archive manager
// captures what the engine persists.
func (db *DB) openFile(file string) (*fileHandle, error) {
	def := db.spec[file]
	codec, err := def.Codec()
	if err != nil {
		return nil, configErr(err, "file %q", file)
	}

	var shOpts []shelf.Option
	if db.cache != nil {
		shOpts = append(shOpts, shelf.WithCache(db.cache))
	}

	var (
		sh      *shelf.Shelf
		ebmStore engine.Store
		primary  engine.Store
	)
	if def.Layout == filespec.LayoutCombined {
		base, err := db.eng.Open(filespec.CombinedArtifact(file))
		if err != nil {
			return nil, err
		}
		sh, err = shelf.NewCombined(codec, base, def.Secondary, shOpts...)
		if err != nil {
			return nil, err
		}
		ebmStore = engine.NewPrefixStore(base, shelf.ReservedPrefix(reservedEBM))
		primary = engine.NewPrefixStore(base, shelf.ReservedPrefix(reservedPrimary))
	} else {
		stores := make(map[string]engine.Store, len(def.Secondary))
		for _, field := range def.Secondary {
			st, err := db.eng.Open(filespec.FieldArtifact(file, field))
			if err != nil {
				return nil, err
			}
			stores[field] = st
		}
		sh, err = shelf.NewPerField(codec, stores, shOpts...)
		if err != nil {
			return nil, err
		}
		if ebmStore, err = db.eng.Open(filespec.RoleArtifact(file, filespec.RoleEBM)); err != nil {
			return nil, err
		}
		if primary, err = db.eng.Open(filespec.RoleArtifact(file, filespec.RoleSegment)); err != nil {
			return nil, err
		}
	}

	records, err := ebm.New(ebmStore, codec, ebm.WithAllocationPolicy(db.allocation))
	if err != nil {
		return nil, err
	}

	return &fileHandle{
		def:     def,
		codec:   codec,
		shelf:   sh,
		records: records,
		primary: primary,
	}, nil
}

func (db *DB) handle(file string) (*fileHandle, error) {
	h, ok := db.files[file]
	if !ok {
		return nil, configErr(nil, "unknown file %q", file)
	}
	return h, nil
}

// call runs op directly, or through the queue when serialization is
// enabled. Operations never submit further operations; a deferred run
// holds the worker for its whole duration by design of the single-writer
// discipline.
func (db *DB) call(ctx context.Context, op func() error) error {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return ErrClosed
	}
	db.mu.Unlock()

	if db.queue == nil {
		return op()
	}
	return db.queue.Call(ctx, op)
}

// Put allocates a record number, stores the payload under it, and applies
// an index add for every index value.
func (db *DB) Put(ctx context.Context, file string, rec Record) (segment.RecordNumber, error) {
	start := time.Now()
	var r segment.RecordNumber
	err := db.call(ctx, func() error {
		h, err := db.handle(file)
		if err != nil {
			return err
		}
		r, err = putRecord(h, rec)
		return err
	})
	err = translateError(err)
	db.metrics.RecordPut(time.Since(start), err)
	db.logger.LogPut(ctx, file, r, err)
	return r, err
}

func putRecord(h *fileHandle, rec Record) (segment.RecordNumber, error) {
	r, err := h.records.Allocate()
	if err != nil {
		return 0, err
	}
	if err := h.primary.Put(segment.RecordKey(r), rec.Value); err != nil {
		return 0, errors.Join(err, h.records.Free(r))
	}
	for _, field := range slices.Sorted(maps.Keys(rec.Index)) {
		for _, key := range dedupKeys(rec.Index[field]) {
			if err := h.shelf.MergeRecord(field, key, r, segment.OpAdd); err != nil {
				return 0, err
			}
		}
	}
	return r, nil
}

// Get returns the record's payload, or ErrNotFound.
func (db *DB) Get(ctx context.Context, file string, r segment.RecordNumber) ([]byte, error) {
	var value []byte
	err := db.call(ctx, func() error {
		h, err := db.handle(file)
		if err != nil {
			return err
		}
		value, err = h.primary.Get(segment.RecordKey(r))
		return err
	})
	return value, translateError(err)
}

// Exists reports whether the record number is live.
func (db *DB) Exists(ctx context.Context, file string, r segment.RecordNumber) (bool, error) {
	var live bool
	err := db.call(ctx, func() error {
		h, err := db.handle(file)
		if err != nil {
			return err
		}
		live, err = h.records.IsSet(r)
		return err
	})
	return live, translateError(err)
}

// Delete removes the record's index entries, then its payload, then frees
// the record number. rec must carry the index values the record was stored
// with; the index entries of fields it omits survive as stale references.
func (db *DB) Delete(ctx context.Context, file string, r segment.RecordNumber, rec Record) error {
	start := time.Now()
	err := db.call(ctx, func() error {
		h, err := db.handle(file)
		if err != nil {
			return err
		}
		return deleteRecord(h, r, rec)
	})
	err = translateError(err)
	db.metrics.RecordDelete(time.Since(start), err)
	db.logger.LogDelete(ctx, file, r, err)
	return err
}

func deleteRecord(h *fileHandle, r segment.RecordNumber, rec Record) error {
	live, err := h.records.IsSet(r)
	if err != nil {
		return err
	}
	if !live {
		return fmt.Errorf("delete record %d: %w", r, ErrNotFound)
	}

	// Index references go first: freeing the existence bit before the index
	// forgets the record would let a reallocation alias the old entries.
	for _, field := range slices.Sorted(maps.Keys(rec.Index)) {
		for _, key := range dedupKeys(rec.Index[field]) {
			if err := h.shelf.MergeRecord(field, key, r, segment.OpRemove); err != nil {
				return err
			}
		}
	}
	if err := h.primary.Delete(segment.RecordKey(r)); err != nil {
		return err
	}
	return h.records.Free(r)
}

// Edit replaces the record's payload and reindexes it, touching only the
// index keys that differ between old and new.
func (db *DB) Edit(ctx context.Context, file string, r segment.RecordNumber, old, new Record) error {
	start := time.Now()
	err := db.call(ctx, func() error {
		h, err := db.handle(file)
		if err != nil {
			return err
		}
		return editRecord(h, r, old, new)
	})
	err = translateError(err)
	db.metrics.RecordEdit(time.Since(start), err)
	db.logger.LogEdit(ctx, file, r, err)
	return err
}

func editRecord(h *fileHandle, r segment.RecordNumber, old, new Record) error {
	live, err := h.records.IsSet(r)
	if err != nil {
		return err
	}
	if !live {
		return fmt.Errorf("edit record %d: %w", r, ErrNotFound)
	}

	if !bytes.Equal(old.Value, new.Value) {
		if err := h.primary.Put(segment.RecordKey(r), new.Value); err != nil {
			return err
		}
	}

	fields := slices.Sorted(maps.Keys(old.Index))
	for _, field := range slices.Sorted(maps.Keys(new.Index)) {
		if _, ok := old.Index[field]; !ok {
			fields = append(fields, field)
		}
	}
	slices.Sort(fields)

	for _, field := range fields {
		olds := keySet(old.Index[field])
		news := keySet(new.Index[field])
		for _, key := range dedupKeys(old.Index[field]) {
			if _, keep := news[string(key)]; keep {
				continue
			}
			if err := h.shelf.MergeRecord(field, key, r, segment.OpRemove); err != nil {
				return err
			}
		}
		for _, key := range dedupKeys(new.Index[field]) {
			if _, had := olds[string(key)]; had {
				continue
			}
			if err := h.shelf.MergeRecord(field, key, r, segment.OpAdd); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordsUnder returns the set of record numbers indexed under
// (field, key). An absent key yields an empty set.
func (db *DB) RecordsUnder(ctx context.Context, file, field string, key []byte) (*segment.RecordSet, error) {
	start := time.Now()
	var set *segment.RecordSet
	err := db.call(ctx, func() error {
		h, err := db.handle(file)
		if err != nil {
			return err
		}
		set, err = h.shelf.RecordsUnder(field, key)
		return err
	})
	err = translateError(err)
	db.metrics.RecordQuery(time.Since(start), err)
	found := 0
	if set != nil {
		found = int(set.Cardinality())
	}
	db.logger.LogQuery(ctx, file, field, found, err)
	return set, err
}

// Records returns an iterator over the file's live records in ascending
// record-number order. The snapshot is taken when iteration starts;
// records put or deleted afterwards are not reflected. Early termination
// is supported - stop iterating to cancel.
func (db *DB) Records(ctx context.Context, file string) iter.Seq2[RecordEntry, error] {
	return func(yield func(RecordEntry, error) bool) {
		var entries []RecordEntry
		err := db.call(ctx, func() error {
			h, err := db.handle(file)
			if err != nil {
				return err
			}
			entries, err = snapshotRecords(h)
			return err
		})
		if err != nil {
			yield(RecordEntry{}, translateError(err))
			return
		}

		for _, e := range entries {
			if !yield(e, nil) {
				return
			}
		}
	}
}

// snapshotRecords collects the primary store under the call, so a
// serialized database never holds the worker across user iteration code.
func snapshotRecords(h *fileHandle) ([]RecordEntry, error) {
	cur, err := h.primary.Cursor()
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	var entries []RecordEntry
	for ok := cur.First(); ok; ok = cur.Next() {
		r, err := segment.RecordFromKey(cur.Key())
		if err != nil {
			return nil, err
		}
		entries = append(entries, RecordEntry{
			Number: r,
			Value:  slices.Clone(cur.Value()),
		})
	}
	return entries, nil
}

// Close drains the queue, if any, and releases the engine. Idempotent.
// Operations after Close return ErrClosed.
func (db *DB) Close(ctx context.Context) error {
	if db == nil {
		return nil
	}

	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return nil
	}
	db.closed = true
	db.mu.Unlock()

	if db.queue != nil {
		db.queue.Close()
	}
	return translateError(db.eng.Close())
}

// dedupKeys drops duplicates preserving first-seen order.
func dedupKeys(keys [][]byte) [][]byte {
	if len(keys) < 2 {
		return keys
	}
	seen := make(map[string]struct{}, len(keys))
	out := make([][]byte, 0, len(keys))
	for _, k := range keys {
		if _, dup := seen[string(k)]; dup {
			continue
		}
		seen[string(k)] = struct{}{}
		out = append(out, k)
	}
	return out
}

func keySet(keys [][]byte) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[string(k)] = struct{}{}
	}
	return set
}
