package testutil

import (
	"math/rand"
	"slices"
	"sync"
)

// RNG encapsulates a seeded random number generator.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Uint32 returns a pseudo-random uint32.
func (r *RNG) Uint32() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Uint32()
}

// Offsets returns n distinct window offsets in [0, segmentSize), sorted
// ascending. It panics if n exceeds the window size.
func (r *RNG) Offsets(n, segmentSize int) []uint16 {
	if n > segmentSize {
		panic("testutil: more offsets requested than the window holds")
	}

	r.mu.Lock()
	perm := r.rand.Perm(segmentSize)
	r.mu.Unlock()

	offsets := make([]uint16, n)
	for i := range offsets {
		offsets[i] = uint16(perm[i])
	}
	slices.Sort(offsets)
	return offsets
}

// Key returns a random byte-string key with length in [minLen, maxLen].
// Zero bytes are included deliberately: composite key encodings must
// survive them.
func (r *RNG) Key(minLen, maxLen int) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := minLen
	if maxLen > minLen {
		n += r.rand.Intn(maxLen - minLen + 1)
	}
	key := make([]byte, n)
	for i := range key {
		key[i] = byte(r.rand.Intn(256))
	}
	return key
}

// Keys returns n distinct random keys with lengths in [1, maxLen].
func (r *RNG) Keys(n, maxLen int) [][]byte {
	seen := make(map[string]struct{}, n)
	keys := make([][]byte, 0, n)
	for len(keys) < n {
		k := r.Key(1, maxLen)
		if _, dup := seen[string(k)]; dup {
			continue
		}
		seen[string(k)] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}
