package testing

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/dCfg/lib/db"
)

// DBFactory is a function that creates a new instance of a KVDB implementation
type DBFactory func() db.KVDB

// RunKVDBTests runs a comprehensive test suite for a KVDB implementation.
func RunKVDBTests(t *testing.T, name string, factory DBFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Put&Get", func(t *testing.T) {
			testPutGet(t, factory())
		})

		t.Run("Erase", func(t *testing.T) {
			testErase(t, factory())
		})

		t.Run("Has", func(t *testing.T) {
			testHas(t, factory())
		})

		t.Run("ApplyRejectsInvalid", func(t *testing.T) {
			testApplyRejectsInvalid(t, factory())
		})

		t.Run("CursorOrder", func(t *testing.T) {
			testCursorOrder(t, factory())
		})

		t.Run("CursorSeekPrefix", func(t *testing.T) {
			testCursorSeekPrefix(t, factory())
		})

		t.Run("CursorSnapshot", func(t *testing.T) {
			testCursorSnapshot(t, factory())
		})

		t.Run("NamespaceIsolation", func(t *testing.T) {
			testNamespaceIsolation(t, factory())
		})

		t.Run("SaveLoad", func(t *testing.T) {
			testSaveLoad(t, factory)
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, factory())
		})

		t.Run("Closed", func(t *testing.T) {
			testClosed(t, factory())
		})

		t.Run("RealisticUsage", func(t *testing.T) {
			testRealisticUsage(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the database supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, database db.KVDB, feature db.Feature) {
	if !database.SupportsFeature(feature) {
		t.Skip()
	}
}

func mustApply(t testing.TB, database db.KVDB, build func(tx *db.Transaction)) {
	t.Helper()
	tx := db.NewTransaction()
	build(tx)
	if err := database.Apply(tx); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
}

func collect(t testing.TB, database db.KVDB, ns, seek string) []string {
	t.Helper()
	c, err := database.NewCursor(ns)
	if err != nil {
		t.Fatalf("NewCursor(%q) failed: %v", ns, err)
	}
	defer c.Close()

	var keys []string
	if seek == "" {
		c.SeekToFirst()
	} else {
		c.Seek(seek)
	}
	for ; c.Valid(); c.Next() {
		keys = append(keys, c.Key())
	}
	if err := c.Err(); err != nil {
		t.Fatalf("cursor error: %v", err)
	}
	return keys
}

func equalKeys(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testPutGet(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureApply|db.FeatureGet)

	testKey := "test-key"
	testValue1 := []byte("test-value1")
	testValue2 := []byte("test-value2")

	mustApply(t, database, func(tx *db.Transaction) { tx.Put("ns", testKey, testValue1) })

	result, exists, err := database.Get("ns", testKey)
	if err != nil || !exists {
		t.Fatalf("Expected key %s to exist after Put (err=%v)", testKey, err)
	}
	if !bytes.Equal(result, testValue1) {
		t.Errorf("Expected value %s, got %s", testValue1, result)
	}

	mustApply(t, database, func(tx *db.Transaction) { tx.Put("ns", testKey, testValue2) })

	result, exists, _ = database.Get("ns", testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after overwrite", testKey)
	}
	if !bytes.Equal(result, testValue2) {
		t.Errorf("Expected value %s, got %s", testValue2, result)
	}

	_, exists, err = database.Get("ns", "nonexistent-key")
	if err != nil || exists {
		t.Errorf("Expected nonexistent key to return exists=false, err=nil (got %v, %v)", exists, err)
	}

	retrievedValue, _, _ := database.Get("ns", testKey)
	retrievedValue[0] = 'X'

	originalValue, _, _ := database.Get("ns", testKey)
	if bytes.Equal(retrievedValue, originalValue) {
		t.Errorf("Get should return a copy, not a reference to the stored value")
	}

	// the later op of one transaction wins
	mustApply(t, database, func(tx *db.Transaction) {
		tx.Put("ns", "twice", []byte("first"))
		tx.Put("ns", "twice", []byte("second"))
	})
	result, _, _ = database.Get("ns", "twice")
	if string(result) != "second" {
		t.Errorf("Expected last write in transaction to win, got %q", result)
	}
}

func testErase(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureApply|db.FeatureGet)

	mustApply(t, database, func(tx *db.Transaction) {
		tx.Put("ns", "a", []byte("1"))
		tx.Put("ns", "b", []byte("2"))
	})

	mustApply(t, database, func(tx *db.Transaction) {
		tx.Erase("ns", "a")
		tx.Erase("ns", "never-existed")
	})

	if _, exists, _ := database.Get("ns", "a"); exists {
		t.Errorf("Key a should be gone after Erase")
	}
	if _, exists, _ := database.Get("ns", "b"); !exists {
		t.Errorf("Key b should survive erasing a different key")
	}

	// put then erase inside one transaction leaves nothing behind
	mustApply(t, database, func(tx *db.Transaction) {
		tx.Put("ns", "c", []byte("3"))
		tx.Erase("ns", "c")
	})
	if _, exists, _ := database.Get("ns", "c"); exists {
		t.Errorf("Key c should not exist after put+erase in one transaction")
	}
}

func testHas(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureApply|db.FeatureHas)

	if ok, err := database.Has("ns", "k"); err != nil || ok {
		t.Errorf("Has on empty database returned %v, %v", ok, err)
	}

	mustApply(t, database, func(tx *db.Transaction) { tx.Put("ns", "k", nil) })

	if ok, _ := database.Has("ns", "k"); !ok {
		t.Errorf("Key with empty value should exist")
	}
	if ok, _ := database.Has("other", "k"); ok {
		t.Errorf("Key should not exist in a different namespace")
	}

	mustApply(t, database, func(tx *db.Transaction) { tx.Erase("ns", "k") })

	if ok, _ := database.Has("ns", "k"); ok {
		t.Errorf("Key should not exist after Erase")
	}
}

func testApplyRejectsInvalid(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureApply|db.FeatureHas)

	tx := db.NewTransaction()
	tx.Put("ns", "valid", []byte("1"))
	tx.Put("ns", "", []byte("2"))

	if err := database.Apply(tx); err == nil {
		t.Fatalf("Apply should reject a transaction with an empty key")
	}
	if ok, _ := database.Has("ns", "valid"); ok {
		t.Errorf("No op of a rejected transaction may be applied")
	}

	if err := database.Apply(db.NewTransaction()); err != nil {
		t.Errorf("Applying an empty transaction should be a no-op, got %v", err)
	}
}

func testCursorOrder(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureApply|db.FeatureCursor)

	if keys := collect(t, database, "ns", ""); len(keys) != 0 {
		t.Errorf("Cursor over an empty namespace returned %v", keys)
	}

	inserted := []string{"m", "a", "z", "b/1", "b", "b0", "B", "aa"}
	mustApply(t, database, func(tx *db.Transaction) {
		for _, k := range inserted {
			tx.Put("ns", k, []byte(k))
		}
	})

	expected := []string{"B", "a", "aa", "b", "b/1", "b0", "m", "z"}
	if keys := collect(t, database, "ns", ""); !equalKeys(keys, expected) {
		t.Errorf("Expected byte-wise order %v, got %v", expected, keys)
	}

	c, err := database.NewCursor("ns")
	if err != nil {
		t.Fatalf("NewCursor failed: %v", err)
	}
	defer c.Close()

	if !c.Valid() || c.Key() != "B" {
		t.Errorf("New cursor should be positioned at the first key")
	}
	if string(c.Value()) != "B" {
		t.Errorf("Expected value B, got %q", c.Value())
	}

	c.Seek("zz")
	if c.Valid() {
		t.Errorf("Seek past the last key should invalidate the cursor, got %q", c.Key())
	}

	c.SeekToFirst()
	if !c.Valid() || c.Key() != "B" {
		t.Errorf("SeekToFirst should rewind the cursor")
	}

	if err := c.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Second Close should be a no-op, got %v", err)
	}
}

func testCursorSeekPrefix(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureApply|db.FeatureCursor)

	mustApply(t, database, func(tx *db.Transaction) {
		for _, k := range []string{
			"daemon-private/1/keyring",
			"daemon-private/10/keyring",
			"dm-crypt/aaa/luks",
			"dm-crypt/aaa/other",
			"dm-crypt/aab/luks",
			"global",
		} {
			tx.Put("ns", k, []byte("v"))
		}
	})

	c, err := database.NewCursor("ns")
	if err != nil {
		t.Fatalf("NewCursor failed: %v", err)
	}
	defer c.Close()

	// lower bound for a key that is not present
	c.Seek("dm-crypt/aaa/")
	if !c.Valid() || c.Key() != "dm-crypt/aaa/luks" {
		t.Fatalf("Seek should land on the first key >= target, got valid=%v", c.Valid())
	}

	var matched []string
	for ; c.Valid(); c.Next() {
		if len(c.Key()) < len("dm-crypt/aaa/") || c.Key()[:len("dm-crypt/aaa/")] != "dm-crypt/aaa/" {
			break
		}
		matched = append(matched, c.Key())
	}
	if !equalKeys(matched, []string{"dm-crypt/aaa/luks", "dm-crypt/aaa/other"}) {
		t.Errorf("Unexpected prefix scan result %v", matched)
	}

	// exact key hit
	c.Seek("daemon-private/10/keyring")
	if !c.Valid() || c.Key() != "daemon-private/10/keyring" {
		t.Errorf("Seek to an existing key should land on it")
	}
}

func testCursorSnapshot(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureApply|db.FeatureCursor)

	mustApply(t, database, func(tx *db.Transaction) {
		tx.Put("ns", "a", []byte("1"))
		tx.Put("ns", "b", []byte("2"))
	})

	c, err := database.NewCursor("ns")
	if err != nil {
		t.Fatalf("NewCursor failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		tx := db.NewTransaction()
		tx.Put("ns", "c", []byte("3"))
		tx.Erase("ns", "a")
		done <- database.Apply(tx)
	}()

	var keys []string
	for c.SeekToFirst(); c.Valid(); c.Next() {
		keys = append(keys, c.Key())
	}
	c.Close()

	if err := <-done; err != nil {
		t.Fatalf("Apply during iteration failed: %v", err)
	}

	if !equalKeys(keys, []string{"a", "b"}) {
		t.Errorf("Cursor should observe the snapshot from its creation, got %v", keys)
	}
	if keys := collect(t, database, "ns", ""); !equalKeys(keys, []string{"b", "c"}) {
		t.Errorf("A fresh cursor should observe the new state, got %v", keys)
	}
}

func testNamespaceIsolation(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureApply|db.FeatureCursor|db.FeatureGet)

	mustApply(t, database, func(tx *db.Transaction) {
		tx.Put("config_key", "k", []byte("cfg"))
		tx.Put("config", "k2", []byte("x"))
		tx.Put("config_key_b", "k3", []byte("y"))
	})

	if keys := collect(t, database, "config_key", ""); !equalKeys(keys, []string{"k"}) {
		t.Errorf("Namespace config_key leaked keys: %v", keys)
	}
	if keys := collect(t, database, "config", ""); !equalKeys(keys, []string{"k2"}) {
		t.Errorf("Namespace config leaked keys: %v", keys)
	}

	namespaces, err := database.Namespaces()
	if err != nil {
		t.Fatalf("Namespaces failed: %v", err)
	}
	if !equalKeys(namespaces, []string{"config", "config_key", "config_key_b"}) {
		t.Errorf("Unexpected namespaces %v", namespaces)
	}

	mustApply(t, database, func(tx *db.Transaction) { tx.Erase("config", "k2") })

	namespaces, _ = database.Namespaces()
	if !equalKeys(namespaces, []string{"config_key", "config_key_b"}) {
		t.Errorf("Empty namespaces should not be listed, got %v", namespaces)
	}
}

func testSaveLoad(t *testing.T, factory DBFactory) {
	database1 := factory()
	defer database1.Close()

	requireFeature(t, database1, db.FeatureApply|db.FeatureSave|db.FeatureLoad)

	numKeys := 500
	mustApply(t, database1, func(tx *db.Transaction) {
		for i := 0; i < numKeys; i++ {
			tx.Put(fmt.Sprintf("ns-%d", i%3), fmt.Sprintf("key-%04d", i), []byte(fmt.Sprintf("value-%d", i)))
		}
		tx.Put("bin", "blob", []byte{0x00, 0x01, 0xfe, 0xff})
	})

	var buf bytes.Buffer
	if err := database1.Save(&buf); err != nil {
		t.Fatalf("Failed to save database: %v", err)
	}

	database2 := factory()
	defer database2.Close()

	// pre-existing state must be replaced, not merged
	mustApply(t, database2, func(tx *db.Transaction) { tx.Put("stale", "k", []byte("x")) })

	if err := database2.Load(bytes.NewReader(buf.Bytes())); err != nil {
		t.Fatalf("Failed to load database: %v", err)
	}

	for i := 0; i < numKeys; i++ {
		ns, key := fmt.Sprintf("ns-%d", i%3), fmt.Sprintf("key-%04d", i)
		value, exists, err := database2.Get(ns, key)
		if err != nil || !exists {
			t.Errorf("Key %s/%s missing after load (err=%v)", ns, key, err)
			continue
		}
		if string(value) != fmt.Sprintf("value-%d", i) {
			t.Errorf("Wrong value for %s/%s: %q", ns, key, value)
		}
	}

	if value, _, _ := database2.Get("bin", "blob"); !bytes.Equal(value, []byte{0x00, 0x01, 0xfe, 0xff}) {
		t.Errorf("Binary value not preserved: %v", value)
	}
	if ok, _ := database2.Has("stale", "k"); ok {
		t.Errorf("Load should discard the previous state")
	}

	if err := database2.Load(bytes.NewReader([]byte("garbage"))); err == nil {
		t.Errorf("Load should fail on a malformed stream")
	}
}

func testEdgeCases(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureApply|db.FeatureGet|db.FeatureCursor)

	t.Run("LargeValue", func(t *testing.T) {
		largeValue := make([]byte, 256<<10)
		for i := range largeValue {
			largeValue[i] = byte(i % 256)
		}
		mustApply(t, database, func(tx *db.Transaction) { tx.Put("ns", "large", largeValue) })

		result, exists, _ := database.Get("ns", "large")
		if !exists || !bytes.Equal(result, largeValue) {
			t.Errorf("Large value not stored correctly")
		}
	})

	t.Run("SpecialCharacters", func(t *testing.T) {
		keys := []string{"with space", "with/slash", "ünïcödé", "tab\tkey", "\xff\xfe"}
		mustApply(t, database, func(tx *db.Transaction) {
			for _, k := range keys {
				tx.Put("special", k, []byte(k))
			}
		})
		for _, k := range keys {
			value, exists, _ := database.Get("special", k)
			if !exists || string(value) != k {
				t.Errorf("Key %q not stored correctly", k)
			}
		}
	})

	t.Run("EmptyValue", func(t *testing.T) {
		mustApply(t, database, func(tx *db.Transaction) { tx.Put("ns", "empty", []byte{}) })
		value, exists, _ := database.Get("ns", "empty")
		if !exists || len(value) != 0 {
			t.Errorf("Empty value should be stored and returned as empty, got %v/%v", exists, value)
		}
	})

	t.Run("MissingNamespace", func(t *testing.T) {
		if keys := collect(t, database, "does-not-exist", ""); len(keys) != 0 {
			t.Errorf("Cursor on unknown namespace should be empty, got %v", keys)
		}
	})
}

func testClosed(t *testing.T, database db.KVDB) {
	if err := database.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, _, err := database.Get("ns", "k"); !errors.Is(err, db.ErrClosed) {
		t.Errorf("Get on closed database should return ErrClosed, got %v", err)
	}
	tx := db.NewTransaction()
	tx.Put("ns", "k", []byte("v"))
	if err := database.Apply(tx); !errors.Is(err, db.ErrClosed) {
		t.Errorf("Apply on closed database should return ErrClosed, got %v", err)
	}
	if _, err := database.NewCursor("ns"); !errors.Is(err, db.ErrClosed) {
		t.Errorf("NewCursor on closed database should return ErrClosed, got %v", err)
	}
}

func testRealisticUsage(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureApply|db.FeatureGet|db.FeatureCursor)

	numWriters := 4
	numReaders := 4
	txPerWriter := 200

	var (
		wg         sync.WaitGroup
		errorCount int32
	)

	for w := 0; w < numWriters; w++ {
		wg.Add(1)
		go func(workerId int) {
			defer wg.Done()
			for i := 0; i < txPerWriter; i++ {
				tx := db.NewTransaction()
				key := fmt.Sprintf("w%d/key-%04d", workerId, i)
				tx.Put("ns", key, []byte(key))
				if i%3 == 0 && i > 0 {
					tx.Erase("ns", fmt.Sprintf("w%d/key-%04d", workerId, i-1))
				}
				if err := database.Apply(tx); err != nil {
					atomic.AddInt32(&errorCount, 1)
				}
			}
		}(w)
	}

	for r := 0; r < numReaders; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				c, err := database.NewCursor("ns")
				if err != nil {
					atomic.AddInt32(&errorCount, 1)
					return
				}
				prev := ""
				for ; c.Valid(); c.Next() {
					if c.Key() <= prev {
						atomic.AddInt32(&errorCount, 1)
					}
					if string(c.Value()) != c.Key() {
						atomic.AddInt32(&errorCount, 1)
					}
					prev = c.Key()
				}
				if c.Err() != nil {
					atomic.AddInt32(&errorCount, 1)
				}
				c.Close()
			}
		}()
	}

	wg.Wait()

	if n := atomic.LoadInt32(&errorCount); n > 0 {
		t.Fatalf("Test had %d errors during parallel operations", n)
	}

	for w := 0; w < numWriters; w++ {
		for i := 0; i < txPerWriter; i++ {
			key := fmt.Sprintf("w%d/key-%04d", w, i)
			erased := (i+1)%3 == 0 && i+1 < txPerWriter
			_, exists, _ := database.Get("ns", key)
			if exists == erased {
				t.Errorf("Key %s: exists=%v, expected erased=%v", key, exists, erased)
			}
		}
	}
}
