package testing

import (
	"bytes"
	"fmt"
	"math/rand"
	"testing"

	"github.com/ValentinKolb/dCfg/lib/db"
)

// RunKVDBBenchmarks runs all benchmarks for a key-value database implementations
func RunKVDBBenchmarks(b *testing.B, name string, factory DBFactory) {

	b.Run("Put", func(b *testing.B) {
		benchmarkPut(b, factory())
	})

	b.Run("PutBatch", func(b *testing.B) {
		benchmarkPutBatch(b, factory())
	})

	b.Run("Get", func(b *testing.B) {
		benchmarkGet(b, factory())
	})

	b.Run("Has(not)", func(b *testing.B) {
		benchmarkHasNot(b, factory())
	})

	b.Run("PrefixScan", func(b *testing.B) {
		benchmarkPrefixScan(b, factory())
	})

	b.Run("SaveLoad", func(b *testing.B) {
		benchmarkSaveLoad(b, factory)
	})

	b.Run("MixedUsage", func(b *testing.B) {
		benchmarkMixedUsage(b, factory())
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

func prefill(b *testing.B, database db.KVDB, numKeys int) {
	b.Helper()
	tx := db.NewTransaction()
	for i := 0; i < numKeys; i++ {
		tx.Put("bench", fmt.Sprintf("prefix-%d/key-%d", i%100, i), []byte(fmt.Sprintf("value-%d", i)))
		if tx.Len() == 1000 {
			if err := database.Apply(tx); err != nil {
				b.Fatalf("prefill failed: %v", err)
			}
			tx = db.NewTransaction()
		}
	}
	if err := database.Apply(tx); err != nil {
		b.Fatalf("prefill failed: %v", err)
	}
}

// Benchmark for single-op transactions
func benchmarkPut(b *testing.B, database db.KVDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureApply)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			tx := db.NewTransaction()
			tx.Put("bench", fmt.Sprintf("test-key-%d", counter), []byte(fmt.Sprintf("test-value-%d", counter)))
			database.Apply(tx)
			counter++
		}
	})
}

// Benchmark for transactions carrying 100 ops
func benchmarkPutBatch(b *testing.B, database db.KVDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureApply)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tx := db.NewTransaction()
		for j := 0; j < 100; j++ {
			tx.Put("bench", fmt.Sprintf("batch-%d-%d", i, j), []byte("value"))
		}
		database.Apply(tx)
	}
}

// Benchmark for Get on existing keys
func benchmarkGet(b *testing.B, database db.KVDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureApply|db.FeatureGet)

	numKeys := 10_000
	prefill(b, database, numKeys)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			i := r.Intn(numKeys)
			database.Get("bench", fmt.Sprintf("prefix-%d/key-%d", i%100, i))
		}
	})
}

// Benchmark for Has on missing keys
func benchmarkHasNot(b *testing.B, database db.KVDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureApply|db.FeatureHas)

	prefill(b, database, 10_000)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			database.Has("bench", fmt.Sprintf("missing-%d", counter))
			counter++
		}
	})
}

// Benchmark for seek + iterate over one of 100 prefixes
func benchmarkPrefixScan(b *testing.B, database db.KVDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureApply|db.FeatureCursor)

	prefill(b, database, 10_000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		prefix := fmt.Sprintf("prefix-%d/", i%100)
		c, err := database.NewCursor("bench")
		if err != nil {
			b.Fatal(err)
		}
		n := 0
		for c.Seek(prefix); c.Valid() && len(c.Key()) >= len(prefix) && c.Key()[:len(prefix)] == prefix; c.Next() {
			n++
		}
		c.Close()
		if n == 0 {
			b.Fatalf("prefix %s matched nothing", prefix)
		}
	}
}

// Benchmark for a full save and load cycle
func benchmarkSaveLoad(b *testing.B, factory DBFactory) {
	database := factory()
	target := factory()

	b.Cleanup(func() {
		database.Close()
		target.Close()
	})

	requireFeature(b, database, db.FeatureApply|db.FeatureSave|db.FeatureLoad)

	prefill(b, database, 10_000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var buf bytes.Buffer
		if err := database.Save(&buf); err != nil {
			b.Fatal(err)
		}
		if err := target.Load(&buf); err != nil {
			b.Fatal(err)
		}
	}
}

// Benchmark for 70% reads, 20% writes, 10% scans
func benchmarkMixedUsage(b *testing.B, database db.KVDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureApply|db.FeatureGet|db.FeatureCursor)

	numKeys := 10_000
	prefill(b, database, numKeys)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			i := r.Intn(numKeys)
			key := fmt.Sprintf("prefix-%d/key-%d", i%100, i)
			switch op := r.Intn(10); {
			case op < 7:
				database.Get("bench", key)
			case op < 9:
				tx := db.NewTransaction()
				tx.Put("bench", key, []byte("updated"))
				database.Apply(tx)
			default:
				c, err := database.NewCursor("bench")
				if err != nil {
					continue
				}
				for j := 0; c.Valid() && j < 50; j++ {
					c.Next()
				}
				c.Close()
			}
		}
	})
}
