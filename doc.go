// Package solentware provides an embedded record database with
// segment-organized secondary indexes for Go.
//
// Records of a file carry an opaque payload plus index values for the
// file's secondary fields. Index entries are grouped into fixed-size
// record-number windows (segments) and each window's membership is stored
// as a sorted offset list or a bitmap, whichever is smaller, so a key with
// millions of records costs a handful of compact payloads instead of
// millions of index rows.
//
// # Quick Start
//
// In-memory database:
//
//	ctx := context.Background()
//	spec := filespec.FileSpec{
//	    "games": {
//	        Primary:   "score",
//	        Secondary: []string{"white", "black", "event"},
//	    },
//	}
//	db, _ := solentware.Open(spec)
//	defer db.Close(ctx)
//
// Durable database over bbolt, with archive protection for deferred runs:
//
//	spec["games"] = filespec.FileDef{
//	    Primary:   "score",
//	    Secondary: []string{"white", "black", "event"},
//	    Backup:    true,
//	}
//	db, _ := solentware.Open(spec, solentware.WithEngine(engine.NewBolt("./data")))
//
// # Record Lifecycle
//
//	r, _ := db.Put(ctx, "games", solentware.Record{
//	    Value: pgn,
//	    Index: map[string][][]byte{
//	        "white": {[]byte("Carlsen")},
//	        "black": {[]byte("Caruana")},
//	        "event": {[]byte("London 2018")},
//	    },
//	})
//	set, _ := db.RecordsUnder(ctx, "games", "white", []byte("Carlsen"))
//	for n := range set.All() {
//	    value, _ := db.Get(ctx, "games", n)
//	    process(n, value)
//	}
//
// # Deferred Updates
//
// Bulk loads go through DeferredUpdate: the batch writes primary records
// immediately and accumulates index deltas in memory, merging them into
// the stored segments at checkpoints. One merged write per touched
// segment replaces one read-modify-write per record, and the result is
// byte-identical to what per-record updates would have produced.
//
//	err := db.DeferredUpdate(ctx, "games", func(b *deferred.Batch) error {
//	    for _, g := range games {
//	        if _, err := b.Put(g.Value, g.Index); err != nil {
//	            return err
//	        }
//	    }
//	    return nil
//	})
//
// Files with the Backup policy are archived before the run; a failed run
// restores the artifacts to their pre-run state, so a crash mid-merge
// never leaves half-rewritten segments behind.
//
// # Key Features
//
//   - Adaptive segment encoding (sorted offset list / bitmap per window)
//   - Existence-bitmap record allocation with pluggable reuse policy
//   - Deferred updates with bounded memory and deterministic flushing
//   - Archive and restore around risky runs (tar+zstd / lz4 bundles,
//     CRC-32C guard artifacts)
//   - Off-box archive vaults (S3, MinIO) with a DynamoDB commit catalog
//   - Pluggable storage engines (in-memory B-tree, bbolt)
//   - Optional single-worker call serialization for concurrent callers
package solentware
