// Package testutil provides deterministic random data generators for tests.
//
// This package is intended for use in tests and benchmarks only. All
// generators run off a seeded RNG so failures replay exactly.
//
//	rng := testutil.NewRNG(seed)
//	offsets := rng.Offsets(20, 256) // sorted distinct window offsets
//	keys := rng.Keys(64, 12)        // distinct byte-string keys
//
// Keys deliberately include zero bytes: composite key encodings must
// survive them.
package testutil
