// Package ebm maintains the existence bitmap: the per-file allocation map
// of record numbers.
//
// Allocated numbers are stored as segment payloads in one engine namespace,
// keyed by big-endian segment number. Bit r set means a live record
// occupies r. The allocator hands out the smallest free number (or strictly
// fresh numbers, depending on the configured [AllocationPolicy]) and keeps
// a low-water segment cache so fully-allocated low windows are not
// re-decoded on every call.
//
// The bitmap does no internal locking: all mutation of one file is expected
// to arrive on a single worker, and freeing a record does not verify that
// secondary indexes no longer reference it. That ordering is the caller's
// contract.
package ebm
