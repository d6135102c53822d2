package benchmark_test

import (
	"context"
	"testing"

	solentware "github.com/RogerMarsh/solentware-base-sub003"
	"github.com/RogerMarsh/solentware-base-sub003/engine"
	"github.com/RogerMarsh/solentware-base-sub003/filespec"
	"github.com/RogerMarsh/solentware-base-sub003/testutil"
)

func benchSpec() filespec.FileSpec {
	return filespec.FileSpec{
		"games": {
			Primary:   "score",
			Secondary: []string{"white", "black"},
		},
	}
}

func openMemory(tb testing.TB, opts ...solentware.Option) *solentware.DB {
	tb.Helper()

	db, err := solentware.Open(benchSpec(), opts...)
	if err != nil {
		tb.Fatal(err)
	}
	tb.Cleanup(func() {
		if err := db.Close(context.Background()); err != nil {
			tb.Fatal(err)
		}
	})
	return db
}

func openBolt(tb testing.TB, opts ...solentware.Option) *solentware.DB {
	tb.Helper()

	opts = append([]solentware.Option{
		solentware.WithEngine(engine.NewBolt(tb.TempDir())),
	}, opts...)
	db, err := solentware.Open(benchSpec(), opts...)
	if err != nil {
		tb.Fatal(err)
	}
	tb.Cleanup(func() {
		if err := db.Close(context.Background()); err != nil {
			tb.Fatal(err)
		}
	})
	return db
}

// benchRecords pre-generates records outside the timed region. Index keys
// are drawn from a bounded pool so segment sets accumulate members the way
// a real index does.
func benchRecords(n int, seed int64) []solentware.Record {
	rng := testutil.NewRNG(seed)
	whites := rng.Keys(64, 24)
	blacks := rng.Keys(64, 24)

	recs := make([]solentware.Record, n)
	for i := range recs {
		recs[i] = solentware.Record{
			Value: rng.Key(64, 256),
			Index: map[string][][]byte{
				"white": {whites[rng.Intn(len(whites))]},
				"black": {blacks[rng.Intn(len(blacks))]},
			},
		}
	}
	return recs
}
