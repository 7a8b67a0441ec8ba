package bolt

import (
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/dCfg/lib/db"
	dbtesting "github.com/ValentinKolb/dCfg/lib/db/testing"
)

func factory(tb testing.TB) dbtesting.DBFactory {
	dir := tb.TempDir()
	var n atomic.Int64
	return func() db.KVDB {
		path := filepath.Join(dir, fmt.Sprintf("test-%d.db", n.Add(1)))
		database, err := NewBoltDB(&DBOptions{Path: path, NoSync: true})
		if err != nil {
			panic(err)
		}
		return database
	}
}

func Test(t *testing.T) {
	dbtesting.RunKVDBTests(t, "BoltDB", factory(t))
}

func Benchmark(b *testing.B) {
	dbtesting.RunKVDBBenchmarks(b, "BoltDB", factory(b))
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")

	database, err := NewBoltDB(&DBOptions{Path: path})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	tx := db.NewTransaction()
	tx.Put("config_key", "dm-crypt/x/luks", []byte("secret"))
	if err := database.Apply(tx); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if err := database.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	database, err = NewBoltDB(&DBOptions{Path: path})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer database.Close()

	value, exists, err := database.Get("config_key", "dm-crypt/x/luks")
	if err != nil || !exists || string(value) != "secret" {
		t.Errorf("Expected persisted value, got %q exists=%v err=%v", value, exists, err)
	}
	if !database.SupportsFeature(db.FeaturePersistent) {
		t.Errorf("Bolt engine should report persistence")
	}
}

func TestMissingPath(t *testing.T) {
	if _, err := NewBoltDB(nil); err == nil {
		t.Errorf("Expected error for missing options")
	}
	if _, err := NewBoltDB(&DBOptions{}); err == nil {
		t.Errorf("Expected error for empty path")
	}
}
