// Package segment implements the binary codec for record-number segments.
//
// A segment covers one fixed-size window of record-number space,
// [n*SegmentSize, (n+1)*SegmentSize), and holds the set of offsets within
// that window whose records match one (field, key) pair. Payloads are
// self-describing and use one of two representations:
//
//   - List: sorted distinct offsets, two bytes each (sparse keys)
//   - Bitmap: one bit per offset in the window (dense keys)
//
// [Codec.Encode] picks the representation by cardinality; a no-compress
// codec pins List regardless of density. [Codec.Merge] re-evaluates the
// choice after every change, so a key may flip between representations as
// its density changes.
//
// # Invariants
//
//   - Decode(Encode(S)) == S for every offset set S, including the empty
//     and the full window.
//   - Merging to the empty set yields a nil payload: absence means "no
//     matching records in this window".
//   - A payload that does not decode, or that is not the canonical encoding
//     of its own offset set, is corrupt and fatal ([CorruptError]).
//
// [RecordSet] aggregates decoded segments across windows into a single
// roaring-backed set of full record numbers for query results.
package segment
