package testutil

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReset(t *testing.T) {
	rng := NewRNG(4711)
	first := rng.Offsets(16, 256)

	rng.Reset()
	again := rng.Offsets(16, 256)

	assert.Equal(t, first, again)
	assert.Equal(t, int64(4711), rng.Seed())
}

func TestOffsets(t *testing.T) {
	rng := NewRNG(4711)

	for range 50 {
		n := rng.Intn(64) + 1
		offsets := rng.Offsets(n, 64)

		require.Len(t, offsets, n)
		assert.True(t, slices.IsSorted(offsets))

		for i := 1; i < len(offsets); i++ {
			assert.Less(t, offsets[i-1], offsets[i], "offsets must be distinct")
		}
		assert.Less(t, int(offsets[len(offsets)-1]), 64)
	}
}

func TestOffsetsPanicsBeyondWindow(t *testing.T) {
	rng := NewRNG(4711)
	assert.Panics(t, func() { rng.Offsets(9, 8) })
}

func TestKeyLengthAndZeroBytes(t *testing.T) {
	rng := NewRNG(4711)

	sawZero := false
	for range 200 {
		k := rng.Key(1, 16)
		require.GreaterOrEqual(t, len(k), 1)
		require.LessOrEqual(t, len(k), 16)
		if slices.Contains(k, 0) {
			sawZero = true
		}
	}

	// 200 keys of up to 16 uniform bytes make a zero byte overwhelmingly
	// likely; its absence means the generator stopped covering them.
	assert.True(t, sawZero)
}

func TestKeysDistinct(t *testing.T) {
	rng := NewRNG(42)
	keys := rng.Keys(64, 8)

	require.Len(t, keys, 64)
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		_, dup := seen[string(k)]
		assert.False(t, dup)
		seen[string(k)] = struct{}{}
	}
}
