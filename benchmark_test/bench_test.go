package benchmark_test

import (
	"context"
	"testing"

	solentware "github.com/RogerMarsh/solentware-base-sub003"
	"github.com/RogerMarsh/solentware-base-sub003/segment"
)

func BenchmarkPut_Memory(b *testing.B) {
	benchmarkPut(b, openMemory(b))
}

func BenchmarkPut_Bolt(b *testing.B) {
	benchmarkPut(b, openBolt(b))
}

func benchmarkPut(b *testing.B, db *solentware.DB) {
	b.ReportAllocs()

	ctx := context.Background()
	recs := benchRecords(4096, 1)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := db.Put(ctx, "games", recs[i%len(recs)]); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkGet_Memory(b *testing.B) {
	benchmarkGet(b, openMemory(b))
}

func BenchmarkGet_Bolt(b *testing.B) {
	benchmarkGet(b, openBolt(b))
}

func benchmarkGet(b *testing.B, db *solentware.DB) {
	b.ReportAllocs()

	ctx := context.Background()
	const fill = 10000
	numbers := make([]segment.RecordNumber, fill)
	for i, rec := range benchRecords(fill, 1) {
		r, err := db.Put(ctx, "games", rec)
		if err != nil {
			b.Fatal(err)
		}
		numbers[i] = r
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := db.Get(ctx, "games", numbers[i%fill]); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkRecordsUnder(b *testing.B) {
	b.ReportAllocs()

	ctx := context.Background()
	db := openMemory(b)

	recs := benchRecords(10000, 1)
	for _, rec := range recs {
		if _, err := db.Put(ctx, "games", rec); err != nil {
			b.Fatal(err)
		}
	}

	// Query the keys the fill actually used.
	queries := make([][]byte, 0, len(recs))
	for _, rec := range recs {
		queries = append(queries, rec.Index["white"][0])
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		set, err := db.RecordsUnder(ctx, "games", "white", queries[i%len(queries)])
		if err != nil {
			b.Fatal(err)
		}
		if set.IsEmpty() {
			b.Fatal("expected a populated set")
		}
	}
}

func BenchmarkEdit(b *testing.B) {
	b.ReportAllocs()

	ctx := context.Background()
	db := openMemory(b)

	const fill = 4096
	recs := benchRecords(fill, 1)
	numbers := make([]segment.RecordNumber, fill)
	for i, rec := range recs {
		r, err := db.Put(ctx, "games", rec)
		if err != nil {
			b.Fatal(err)
		}
		numbers[i] = r
	}
	edits := benchRecords(fill, 2)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		j := i % fill
		if err := db.Edit(ctx, "games", numbers[j], recs[j], edits[j]); err != nil {
			b.Fatal(err)
		}
		recs[j], edits[j] = edits[j], recs[j]
	}
}

func BenchmarkRecordsScan(b *testing.B) {
	b.ReportAllocs()

	ctx := context.Background()
	db := openMemory(b)

	for _, rec := range benchRecords(10000, 1) {
		if _, err := db.Put(ctx, "games", rec); err != nil {
			b.Fatal(err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		count := 0
		for _, err := range db.Records(ctx, "games") {
			if err != nil {
				b.Fatal(err)
			}
			count++
		}
		if count != 10000 {
			b.Fatalf("scan saw %d records", count)
		}
	}
}
