package memory

import (
	"testing"

	"github.com/ValentinKolb/dCfg/lib/db"
	dbtesting "github.com/ValentinKolb/dCfg/lib/db/testing"
)

func Test(t *testing.T) {
	dbtesting.RunKVDBTests(t, "MemoryDB", func() db.KVDB {
		return NewMemoryDB(nil)
	})
}

func Benchmark(b *testing.B) {
	dbtesting.RunKVDBBenchmarks(b, "MemoryDB", func() db.KVDB {
		return NewMemoryDB(nil)
	})
}

func TestGetInfo(t *testing.T) {
	database := NewMemoryDB(&DBOptions{Degree: 4})
	defer database.Close()

	tx := db.NewTransaction()
	tx.Put("config_key", "a", []byte("12345"))
	tx.Put("config_key", "b", []byte("1"))
	tx.Put("other", "c", nil)
	if err := database.Apply(tx); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	info := database.GetInfo()
	if info.DbType != db.ImplMemory {
		t.Errorf("Expected db type %s, got %s", db.ImplMemory, info.DbType)
	}
	// 3 one-byte keys + 6 value bytes
	if info.SizeBytes != 9 {
		t.Errorf("Expected SizeBytes 9, got %d", info.SizeBytes)
	}
	if database.SupportsFeature(db.FeaturePersistent) {
		t.Errorf("Memory engine must not claim persistence")
	}
}
