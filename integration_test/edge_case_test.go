package integration_test

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	solentware "github.com/RogerMarsh/solentware-base-sub003"
	"github.com/RogerMarsh/solentware-base-sub003/engine"
	"github.com/RogerMarsh/solentware-base-sub003/filespec"
	"github.com/RogerMarsh/solentware-base-sub003/segment"
)

func TestEmptyValueRecord(t *testing.T) {
	ctx := context.Background()
	db, err := solentware.Open(gamesSpec())
	require.NoError(t, err)
	defer db.Close(ctx)

	r, err := db.Put(ctx, "games", solentware.Record{})
	require.NoError(t, err)

	value, err := db.Get(ctx, "games", r)
	require.NoError(t, err)
	assert.Empty(t, value)

	live, err := db.Exists(ctx, "games", r)
	require.NoError(t, err)
	assert.True(t, live)

	require.NoError(t, db.Delete(ctx, "games", r, solentware.Record{}))

	live, err = db.Exists(ctx, "games", r)
	require.NoError(t, err)
	assert.False(t, live)
}

func TestRecordWithoutIndexTerms(t *testing.T) {
	ctx := context.Background()
	db, err := solentware.Open(gamesSpec())
	require.NoError(t, err)
	defer db.Close(ctx)

	r, err := db.Put(ctx, "games", solentware.Record{Value: []byte("unindexed")})
	require.NoError(t, err)

	// Reachable by number and by scan, invisible to every index.
	value, err := db.Get(ctx, "games", r)
	require.NoError(t, err)
	assert.Equal(t, []byte("unindexed"), value)

	count := 0
	for e, err := range db.Records(ctx, "games") {
		require.NoError(t, err)
		assert.Equal(t, r, e.Number)
		count++
	}
	assert.Equal(t, 1, count)
}

func TestUnicodeIndexKeys(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	db, err := solentware.Open(gamesSpec(), solentware.WithEngine(engine.NewBolt(dir)))
	require.NoError(t, err)
	defer db.Close(ctx)

	names := []string{"Алехин", "カスパロフ", "Müller", "Carlsen"}
	numbers := make(map[string]segment.RecordNumber, len(names))
	for i, name := range names {
		r, err := db.Put(ctx, "games", solentware.Record{
			Value: []byte(fmt.Sprintf("game %d", i)),
			Index: map[string][][]byte{"white": {[]byte(name)}},
		})
		require.NoError(t, err)
		numbers[name] = r
	}

	for _, name := range names {
		set, err := db.RecordsUnder(ctx, "games", "white", []byte(name))
		require.NoError(t, err)
		assert.Equal(t, uint64(1), set.Cardinality(), "key %q", name)
		assert.True(t, set.Contains(numbers[name]), "key %q", name)
	}
}

func TestLargeValue(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	db, err := solentware.Open(gamesSpec(), solentware.WithEngine(engine.NewBolt(dir)))
	require.NoError(t, err)
	defer db.Close(ctx)

	big := bytes.Repeat([]byte("abcdefgh"), 1<<17) // 1 MiB
	r, err := db.Put(ctx, "games", solentware.Record{
		Value: big,
		Index: map[string][][]byte{"white": {[]byte("Adams")}},
	})
	require.NoError(t, err)

	value, err := db.Get(ctx, "games", r)
	require.NoError(t, err)
	assert.Equal(t, big, value)
}

func TestSegmentBoundarySpanning(t *testing.T) {
	ctx := context.Background()
	spec := filespec.FileSpec{
		"games": {
			Primary:     "score",
			Secondary:   []string{"white"},
			SegmentSize: 128,
		},
	}
	db, err := solentware.Open(spec)
	require.NoError(t, err)
	defer db.Close(ctx)

	rec := func(i int) solentware.Record {
		return solentware.Record{
			Value: []byte(fmt.Sprintf("game %d", i)),
			Index: map[string][][]byte{"white": {[]byte("Euwe")}},
		}
	}

	// 300 records span three 128-record segments.
	const count = 300
	for i := range count {
		_, err := db.Put(ctx, "games", rec(i))
		require.NoError(t, err)
	}

	set, err := db.RecordsUnder(ctx, "games", "white", []byte("Euwe"))
	require.NoError(t, err)
	require.Equal(t, uint64(count), set.Cardinality())

	// Delete a stripe crossing the first segment boundary.
	for i := 100; i < 150; i++ {
		require.NoError(t, db.Delete(ctx, "games", segment.RecordNumber(i), rec(i)))
	}

	set, err = db.RecordsUnder(ctx, "games", "white", []byte("Euwe"))
	require.NoError(t, err)
	assert.Equal(t, uint64(count-50), set.Cardinality())

	assert.True(t, set.Contains(99))
	assert.False(t, set.Contains(127))
	assert.False(t, set.Contains(128))
	assert.True(t, set.Contains(150))
}

func TestManySecondaryFields(t *testing.T) {
	ctx := context.Background()
	fields := []string{"white", "black", "event", "site", "opening", "result"}
	spec := filespec.FileSpec{
		"games": {
			Primary:   "score",
			Secondary: fields,
		},
	}
	db, err := solentware.Open(spec)
	require.NoError(t, err)
	defer db.Close(ctx)

	index := make(map[string][][]byte, len(fields))
	for i, field := range fields {
		index[field] = [][]byte{[]byte(fmt.Sprintf("key %d", i))}
	}
	rec := solentware.Record{Value: []byte("game"), Index: index}

	r, err := db.Put(ctx, "games", rec)
	require.NoError(t, err)

	for i, field := range fields {
		set, err := db.RecordsUnder(ctx, "games", field, []byte(fmt.Sprintf("key %d", i)))
		require.NoError(t, err)
		assert.True(t, set.Contains(r), "field %s", field)
	}

	// Editing away one field's terms leaves the other five untouched.
	updated := solentware.Record{Value: rec.Value, Index: make(map[string][][]byte, len(fields)-1)}
	for field, keys := range index {
		if field == "opening" {
			continue
		}
		updated.Index[field] = keys
	}
	require.NoError(t, db.Edit(ctx, "games", r, rec, updated))

	set, err := db.RecordsUnder(ctx, "games", "opening", []byte("key 4"))
	require.NoError(t, err)
	assert.True(t, set.IsEmpty())

	set, err = db.RecordsUnder(ctx, "games", "result", []byte("key 5"))
	require.NoError(t, err)
	assert.True(t, set.Contains(r))
}
