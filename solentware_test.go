package solentware

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RogerMarsh/solentware-base-sub003/ebm"
	"github.com/RogerMarsh/solentware-base-sub003/filespec"
	"github.com/RogerMarsh/solentware-base-sub003/segment"
	"github.com/RogerMarsh/solentware-base-sub003/shelf"
	"github.com/RogerMarsh/solentware-base-sub003/vault"
)

func testSpec() filespec.FileSpec {
	return filespec.FileSpec{
		"games": {
			Primary:     "score",
			Secondary:   []string{"white", "black"},
			SegmentSize: 128,
			Backup:      true,
		},
	}
}

func openTestDB(t *testing.T, opts ...Option) *DB {
	t.Helper()

	db, err := Open(testSpec(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close(context.Background())) })
	return db
}

func gameRec(value, white, black string) Record {
	return Record{
		Value: []byte(value),
		Index: map[string][][]byte{
			"white": {[]byte(white)},
			"black": {[]byte(black)},
		},
	}
}

func TestOpenValidation(t *testing.T) {
	t.Run("EmptySpec", func(t *testing.T) {
		_, err := Open(filespec.FileSpec{})
		require.Error(t, err)

		var ce *ConfigError
		assert.ErrorAs(t, err, &ce)
	})

	t.Run("InvalidSpec", func(t *testing.T) {
		_, err := Open(filespec.FileSpec{
			"games": {Primary: "score"},
		})
		require.Error(t, err)

		var ce *ConfigError
		require.ErrorAs(t, err, &ce)

		var ve *filespec.ValidationError
		assert.ErrorAs(t, err, &ve)
	})

	t.Run("VaultWithoutArchiveDir", func(t *testing.T) {
		_, err := Open(testSpec(), WithVault(vault.NewMemory()))
		require.Error(t, err)

		var ce *ConfigError
		assert.ErrorAs(t, err, &ce)
	})

	t.Run("NilOptionIgnored", func(t *testing.T) {
		db, err := Open(testSpec(), nil)
		require.NoError(t, err)
		require.NoError(t, db.Close(context.Background()))
	})
}

func TestPutGetDelete(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	rec := gameRec("1. e4 e5 2. Nf3", "Adams", "Botvinnik")
	r, err := db.Put(ctx, "games", rec)
	require.NoError(t, err)
	assert.Equal(t, segment.RecordNumber(0), r)

	t.Run("Get", func(t *testing.T) {
		value, err := db.Get(ctx, "games", r)
		require.NoError(t, err)
		assert.Equal(t, rec.Value, value)

		live, err := db.Exists(ctx, "games", r)
		require.NoError(t, err)
		assert.True(t, live)
	})

	t.Run("GetMissing", func(t *testing.T) {
		_, err := db.Get(ctx, "games", 99)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Indexed", func(t *testing.T) {
		set, err := db.RecordsUnder(ctx, "games", "white", []byte("Adams"))
		require.NoError(t, err)
		assert.True(t, set.Contains(r))

		set, err = db.RecordsUnder(ctx, "games", "black", []byte("Botvinnik"))
		require.NoError(t, err)
		assert.True(t, set.Contains(r))
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, db.Delete(ctx, "games", r, rec))

		live, err := db.Exists(ctx, "games", r)
		require.NoError(t, err)
		assert.False(t, live)

		_, err = db.Get(ctx, "games", r)
		assert.ErrorIs(t, err, ErrNotFound)

		set, err := db.RecordsUnder(ctx, "games", "white", []byte("Adams"))
		require.NoError(t, err)
		assert.True(t, set.IsEmpty())
	})

	t.Run("DeleteAgain", func(t *testing.T) {
		err := db.Delete(ctx, "games", r, rec)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestRecordsUnder(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	r0, err := db.Put(ctx, "games", gameRec("g0", "Adams", "Botvinnik"))
	require.NoError(t, err)
	r1, err := db.Put(ctx, "games", gameRec("g1", "Adams", "Carlsen"))
	require.NoError(t, err)
	_, err = db.Put(ctx, "games", gameRec("g2", "Carlsen", "Adams"))
	require.NoError(t, err)

	t.Run("SharedKey", func(t *testing.T) {
		set, err := db.RecordsUnder(ctx, "games", "white", []byte("Adams"))
		require.NoError(t, err)
		assert.Equal(t, uint64(2), set.Cardinality())
		assert.True(t, set.Contains(r0))
		assert.True(t, set.Contains(r1))
	})

	t.Run("AbsentKey", func(t *testing.T) {
		set, err := db.RecordsUnder(ctx, "games", "white", []byte("nobody"))
		require.NoError(t, err)
		assert.True(t, set.IsEmpty())
	})

	t.Run("UnknownField", func(t *testing.T) {
		_, err := db.RecordsUnder(ctx, "games", "opening", []byte("Sicilian"))
		assert.ErrorIs(t, err, shelf.ErrUnknownField)
	})
}

func TestEdit(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	old := gameRec("1. e4 c5", "Adams", "Botvinnik")
	r, err := db.Put(ctx, "games", old)
	require.NoError(t, err)

	new := gameRec("1. e4 c5 2. Nf3", "Adams", "Carlsen")
	require.NoError(t, db.Edit(ctx, "games", r, old, new))

	value, err := db.Get(ctx, "games", r)
	require.NoError(t, err)
	assert.Equal(t, new.Value, value)

	set, err := db.RecordsUnder(ctx, "games", "black", []byte("Botvinnik"))
	require.NoError(t, err)
	assert.True(t, set.IsEmpty())

	set, err = db.RecordsUnder(ctx, "games", "black", []byte("Carlsen"))
	require.NoError(t, err)
	assert.True(t, set.Contains(r))

	// The unchanged white key must survive the edit.
	set, err = db.RecordsUnder(ctx, "games", "white", []byte("Adams"))
	require.NoError(t, err)
	assert.True(t, set.Contains(r))

	t.Run("MissingRecord", func(t *testing.T) {
		err := db.Edit(ctx, "games", 99, old, new)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestDuplicateIndexValuesAppliedOnce(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	rec := Record{
		Value: []byte("g0"),
		Index: map[string][][]byte{
			"white": {[]byte("Adams"), []byte("Adams")},
			"black": {[]byte("Carlsen")},
		},
	}
	r, err := db.Put(ctx, "games", rec)
	require.NoError(t, err)

	set, err := db.RecordsUnder(ctx, "games", "white", []byte("Adams"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), set.Cardinality())

	require.NoError(t, db.Delete(ctx, "games", r, rec))

	set, err = db.RecordsUnder(ctx, "games", "white", []byte("Adams"))
	require.NoError(t, err)
	assert.True(t, set.IsEmpty())
}

func TestRecordsIterator(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	for i := range 5 {
		_, err := db.Put(ctx, "games", gameRec(fmt.Sprintf("g%d", i), "White", "Black"))
		require.NoError(t, err)
	}

	t.Run("AscendingOrder", func(t *testing.T) {
		var entries []RecordEntry
		for e, err := range db.Records(ctx, "games") {
			require.NoError(t, err)
			entries = append(entries, e)
		}
		require.Len(t, entries, 5)
		for i, e := range entries {
			assert.Equal(t, segment.RecordNumber(i), e.Number)
			assert.Equal(t, []byte(fmt.Sprintf("g%d", i)), e.Value)
		}
	})

	t.Run("EarlyTermination", func(t *testing.T) {
		count := 0
		for _, err := range db.Records(ctx, "games") {
			require.NoError(t, err)
			count++
			if count == 2 {
				break
			}
		}
		assert.Equal(t, 2, count)
	})

	t.Run("ReflectsDeletes", func(t *testing.T) {
		require.NoError(t, db.Delete(ctx, "games", 2, gameRec("g2", "White", "Black")))

		var numbers []segment.RecordNumber
		for e, err := range db.Records(ctx, "games") {
			require.NoError(t, err)
			numbers = append(numbers, e.Number)
		}
		assert.Equal(t, []segment.RecordNumber{0, 1, 3, 4}, numbers)
	})

	t.Run("UnknownFile", func(t *testing.T) {
		for _, err := range db.Records(ctx, "nope") {
			var ce *ConfigError
			assert.ErrorAs(t, err, &ce)
		}
	})
}

func TestAllocationPolicies(t *testing.T) {
	ctx := context.Background()

	t.Run("LowestFreeRecycles", func(t *testing.T) {
		db := openTestDB(t)

		rec := gameRec("g0", "A", "B")
		r0, err := db.Put(ctx, "games", rec)
		require.NoError(t, err)
		_, err = db.Put(ctx, "games", gameRec("g1", "A", "B"))
		require.NoError(t, err)

		require.NoError(t, db.Delete(ctx, "games", r0, rec))

		r2, err := db.Put(ctx, "games", gameRec("g2", "A", "B"))
		require.NoError(t, err)
		assert.Equal(t, r0, r2)
	})

	t.Run("AppendOnlyNeverRecycles", func(t *testing.T) {
		db := openTestDB(t, WithAllocationPolicy(ebm.AppendOnly))

		rec := gameRec("g0", "A", "B")
		r0, err := db.Put(ctx, "games", rec)
		require.NoError(t, err)
		require.NoError(t, db.Delete(ctx, "games", r0, rec))

		r1, err := db.Put(ctx, "games", gameRec("g1", "A", "B"))
		require.NoError(t, err)
		assert.Equal(t, r0+1, r1)
	})
}

func TestCombinedLayout(t *testing.T) {
	ctx := context.Background()
	spec := filespec.FileSpec{
		"players": {
			Primary:     "bio",
			Secondary:   []string{"name", "club"},
			SegmentSize: 128,
			Layout:      filespec.LayoutCombined,
		},
	}
	db, err := Open(spec)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close(ctx)) })

	rec := Record{
		Value: []byte("bio-0"),
		Index: map[string][][]byte{
			"name": {[]byte("Adams")},
			"club": {[]byte("Hastings")},
		},
	}
	r, err := db.Put(ctx, "players", rec)
	require.NoError(t, err)

	value, err := db.Get(ctx, "players", r)
	require.NoError(t, err)
	assert.Equal(t, rec.Value, value)

	set, err := db.RecordsUnder(ctx, "players", "name", []byte("Adams"))
	require.NoError(t, err)
	assert.True(t, set.Contains(r))

	t.Run("IteratorSkipsIndexRegions", func(t *testing.T) {
		_, err := db.Put(ctx, "players", Record{
			Value: []byte("bio-1"),
			Index: map[string][][]byte{"name": {[]byte("Short")}},
		})
		require.NoError(t, err)

		var numbers []segment.RecordNumber
		for e, err := range db.Records(ctx, "players") {
			require.NoError(t, err)
			numbers = append(numbers, e.Number)
		}
		assert.Equal(t, []segment.RecordNumber{0, 1}, numbers)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, db.Delete(ctx, "players", r, rec))

		set, err := db.RecordsUnder(ctx, "players", "name", []byte("Adams"))
		require.NoError(t, err)
		assert.True(t, set.IsEmpty())
	})
}

func TestUnknownFile(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	_, err := db.Put(ctx, "positions", gameRec("g0", "A", "B"))
	require.Error(t, err)

	var ce *ConfigError
	assert.ErrorAs(t, err, &ce)
}

func TestClose(t *testing.T) {
	ctx := context.Background()

	t.Run("Idempotent", func(t *testing.T) {
		db, err := Open(testSpec())
		require.NoError(t, err)

		require.NoError(t, db.Close(ctx))
		require.NoError(t, db.Close(ctx))
	})

	t.Run("OperationsAfterClose", func(t *testing.T) {
		db, err := Open(testSpec())
		require.NoError(t, err)
		require.NoError(t, db.Close(ctx))

		_, err = db.Put(ctx, "games", gameRec("g0", "A", "B"))
		assert.ErrorIs(t, err, ErrClosed)

		_, err = db.Get(ctx, "games", 0)
		assert.ErrorIs(t, err, ErrClosed)
	})

	t.Run("NilReceiver", func(t *testing.T) {
		var db *DB
		require.NoError(t, db.Close(ctx))
	})
}

func TestSerializedCalls(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, WithSerializedCalls())

	const (
		workers = 4
		puts    = 25
	)

	var wg sync.WaitGroup
	errs := make(chan error, workers*puts)
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range puts {
				_, err := db.Put(ctx, "games", gameRec(
					fmt.Sprintf("w%d-g%d", w, i), "White", "Black",
				))
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	set, err := db.RecordsUnder(ctx, "games", "white", []byte("White"))
	require.NoError(t, err)
	assert.Equal(t, uint64(workers*puts), set.Cardinality())

	count := 0
	for _, err := range db.Records(ctx, "games") {
		require.NoError(t, err)
		count++
	}
	assert.Equal(t, workers*puts, count)
}

func TestMetricsCollection(t *testing.T) {
	ctx := context.Background()
	mc := &BasicMetricsCollector{}
	db := openTestDB(t, WithMetrics(mc))

	rec := gameRec("g0", "Adams", "Carlsen")
	r, err := db.Put(ctx, "games", rec)
	require.NoError(t, err)
	_, err = db.Put(ctx, "games", gameRec("g1", "Short", "Kasparov"))
	require.NoError(t, err)

	_, err = db.RecordsUnder(ctx, "games", "white", []byte("Adams"))
	require.NoError(t, err)

	require.NoError(t, db.Delete(ctx, "games", r, rec))

	// A failing operation still counts, plus an error.
	err = db.Delete(ctx, "games", r, rec)
	require.ErrorIs(t, err, ErrNotFound)

	stats := mc.GetStats()
	assert.Equal(t, int64(2), stats.PutCount)
	assert.Equal(t, int64(0), stats.PutErrors)
	assert.Equal(t, int64(1), stats.QueryCount)
	assert.Equal(t, int64(2), stats.DeleteCount)
	assert.Equal(t, int64(1), stats.DeleteErrors)
}

func TestPayloadCacheServesReads(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, WithCacheBytes(1<<20))

	rec := gameRec("1. d4 d5", "Adams", "Carlsen")
	r, err := db.Put(ctx, "games", rec)
	require.NoError(t, err)

	for range 3 {
		set, err := db.RecordsUnder(ctx, "games", "white", []byte("Adams"))
		require.NoError(t, err)
		assert.True(t, set.Contains(r))
	}

	// A write through the shelf invalidates the cached segment, so the
	// next read sees the new state.
	rec2 := gameRec("1. c4", "Adams", "Short")
	r2, err := db.Put(ctx, "games", rec2)
	require.NoError(t, err)

	set, err := db.RecordsUnder(ctx, "games", "white", []byte("Adams"))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), set.Cardinality())
	assert.True(t, set.Contains(r2))
}
