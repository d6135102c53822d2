package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrefixStoreIsolation(t *testing.T) {
	eng := NewMemory()
	defer func() { _ = eng.Close() }()

	base, err := eng.Open("games")
	require.NoError(t, err)

	a := NewPrefixStore(base, []byte("a:"))
	b := NewPrefixStore(base, []byte("b:"))

	require.NoError(t, a.Put([]byte("k"), []byte("va")))
	require.NoError(t, b.Put([]byte("k"), []byte("vb")))

	got, err := a.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("va"), got)

	got, err = b.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("vb"), got)

	// The base store sees both, under their full keys.
	got, err = base.Get([]byte("a:k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("va"), got)

	require.NoError(t, a.Delete([]byte("k")))
	_, err = a.Get([]byte("k"))
	assert.ErrorIs(t, err, ErrNotFound)

	got, err = b.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("vb"), got)
}

func TestPrefixCursorStaysInRegion(t *testing.T) {
	eng := NewMemory()
	defer func() { _ = eng.Close() }()

	base, err := eng.Open("games")
	require.NoError(t, err)

	// Neighbours on both sides of the region.
	require.NoError(t, base.Put([]byte("a:z"), []byte("before")))
	require.NoError(t, base.Put([]byte("c:a"), []byte("after")))

	p := NewPrefixStore(base, []byte("b:"))
	for _, k := range []string{"2", "1", "3"} {
		require.NoError(t, p.Put([]byte(k), []byte("v"+k)))
	}

	cur, err := p.Cursor()
	require.NoError(t, err)
	defer func() { _ = cur.Close() }()

	var keys []string
	for ok := cur.First(); ok; ok = cur.Next() {
		keys = append(keys, string(cur.Key()))
	}
	assert.Equal(t, []string{"1", "2", "3"}, keys)

	keys = keys[:0]
	for ok := cur.Last(); ok; ok = cur.Prev() {
		keys = append(keys, string(cur.Key()))
	}
	assert.Equal(t, []string{"3", "2", "1"}, keys)

	require.True(t, cur.Seek([]byte("2")))
	assert.Equal(t, "2", string(cur.Key()))
	assert.Equal(t, []byte("v2"), cur.Value())

	// Seeking past the region finds nothing.
	assert.False(t, cur.Seek([]byte("9")))
}

func TestPrefixCursorEmptyRegion(t *testing.T) {
	eng := NewMemory()
	defer func() { _ = eng.Close() }()

	base, err := eng.Open("games")
	require.NoError(t, err)
	require.NoError(t, base.Put([]byte("a:z"), []byte("before")))

	p := NewPrefixStore(base, []byte("b:"))
	cur, err := p.Cursor()
	require.NoError(t, err)
	defer func() { _ = cur.Close() }()

	assert.False(t, cur.First())
	assert.False(t, cur.Last())
	assert.Nil(t, cur.Key())
	assert.Nil(t, cur.Value())
}

func TestPrefixSuccessor(t *testing.T) {
	assert.Equal(t, []byte{0x62}, prefixSuccessor([]byte{0x61}))
	assert.Equal(t, []byte{0x61, 0x63}, prefixSuccessor([]byte{0x61, 0x62}))
	assert.Equal(t, []byte{0x62}, prefixSuccessor([]byte{0x61, 0xFF}))
	assert.Nil(t, prefixSuccessor([]byte{0xFF, 0xFF}))
}

func TestEmptyPrefixPassesThrough(t *testing.T) {
	eng := NewMemory()
	defer func() { _ = eng.Close() }()

	base, err := eng.Open("games")
	require.NoError(t, err)
	assert.Same(t, base, NewPrefixStore(base, nil))
}
