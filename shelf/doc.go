// Package shelf stores segment payloads under (field, key, segment number).
//
// A Shelf is the persistent half of a secondary index: for every value a
// field has indexed, it holds the payloads of the segments whose records
// carry that value. Two layouts exist. Per-field gives every field its own
// store and composes keys from (key, segment number). Combined shares one
// store per file and prepends the field name to the composite key.
//
// Composite keys use an order-preserving escape encoding, so a store cursor
// walks entries in (field, key, segment number) order and prefix scans
// recover exactly the segments under one key, for arbitrary byte-string
// keys including embedded zero bytes.
//
// Payloads pass through the segment codec on every write: a payload that is
// not the canonical encoding of its own offset set is rejected, never
// stored.
package shelf
