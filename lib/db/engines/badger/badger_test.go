package badger

import (
	"testing"

	"github.com/ValentinKolb/dCfg/lib/db"
	dbtesting "github.com/ValentinKolb/dCfg/lib/db/testing"
)

func inMemory() db.KVDB {
	database, err := NewBadgerDB(nil)
	if err != nil {
		panic(err)
	}
	return database
}

func Test(t *testing.T) {
	dbtesting.RunKVDBTests(t, "BadgerDB", inMemory)
}

func Benchmark(b *testing.B) {
	dbtesting.RunKVDBBenchmarks(b, "BadgerDB", inMemory)
}

func TestReopenKeepsData(t *testing.T) {
	dir := t.TempDir()

	database, err := NewBadgerDB(&DBOptions{Dir: dir, SyncWrites: true})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if !database.SupportsFeature(db.FeaturePersistent) {
		t.Errorf("On-disk badger should report persistence")
	}

	tx := db.NewTransaction()
	tx.Put("config_key", "daemon-private/7/keyring", []byte("k"))
	if err := database.Apply(tx); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if err := database.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	database, err = NewBadgerDB(&DBOptions{Dir: dir})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer database.Close()

	value, exists, err := database.Get("config_key", "daemon-private/7/keyring")
	if err != nil || !exists || string(value) != "k" {
		t.Errorf("Expected persisted value, got %q exists=%v err=%v", value, exists, err)
	}
}

func TestRejectsNulNamespace(t *testing.T) {
	database := inMemory()
	defer database.Close()

	if database.SupportsFeature(db.FeaturePersistent) {
		t.Errorf("In-memory badger must not claim persistence")
	}

	tx := db.NewTransaction()
	tx.Put("bad\x00ns", "k", []byte("v"))
	if err := database.Apply(tx); err == nil {
		t.Errorf("Expected namespace with NUL byte to be rejected")
	}
}

func TestKeyEncoding(t *testing.T) {
	testCases := []struct {
		ns, key string
	}{
		{"config_key", "a"},
		{"config_key", ""},
		{"ns", "with\x00nul"},
	}
	for _, tc := range testCases {
		ns, key, ok := decodeKey(encodeKey(tc.ns, tc.key))
		if !ok || ns != tc.ns || key != tc.key {
			t.Errorf("roundtrip of (%q, %q) gave (%q, %q, %v)", tc.ns, tc.key, ns, key, ok)
		}
	}
}
