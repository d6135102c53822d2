// Package deferred batches secondary-index maintenance for bulk loads.
//
// Applying index updates record by record touches every affected segment
// payload once per record. A deferred run instead accumulates per-key
// offset deltas in memory and merges each touched segment once per
// checkpoint, which is where bulk loads spend their time otherwise.
//
// A run moves Idle -> Collecting -> Flushing -> Idle. The Coordinator owns
// the delta sets and the flush protocol; Batch is the record intake that
// feeds it while writing primary rows and record-number allocations
// through immediately. Neither is safe for concurrent use: a run owns its
// file.
//
// Flushes are all or nothing per checkpoint. A failed flush discards the
// pending deltas and idles the coordinator; the shelf keeps whatever
// earlier checkpoints wrote, and making the file whole again is the
// caller's archive restore.
package deferred
