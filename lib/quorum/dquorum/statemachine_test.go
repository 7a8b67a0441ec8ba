package dquorum

import (
	"bytes"
	"testing"

	"github.com/ValentinKolb/dCfg/lib/db"
	"github.com/ValentinKolb/dCfg/lib/db/engines/memory"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

func newTestStateMachine(t *testing.T) *StateMachine {
	t.Helper()
	fsm := NewStateMachine(1, 1, memory.NewMemoryDB(nil))
	t.Cleanup(func() { _ = fsm.Close() })
	return fsm
}

func entry(index uint64, build func(tx *db.Transaction)) sm.Entry {
	tx := db.NewTransaction()
	build(tx)
	return sm.Entry{Index: index, Cmd: tx.Serialize()}
}

func TestStateMachineUpdate(t *testing.T) {
	fsm := newTestStateMachine(t)

	entries := []sm.Entry{
		entry(1, func(tx *db.Transaction) {
			tx.Put("config_key", "a", []byte("1"))
			tx.Put("config_key", "b", []byte("2"))
		}),
		{Index: 2},
		{Index: 3, Cmd: []byte{0xff}},
		entry(4, func(tx *db.Transaction) { tx.Put("", "x", []byte("bad")) }),
		entry(5, func(tx *db.Transaction) { tx.Erase("config_key", "a") }),
	}

	out, err := fsm.Update(entries)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	expected := []uint64{resultApplied, resultRejected, resultRejected, resultRejected, resultApplied}
	for i, want := range expected {
		if out[i].Result.Value != want {
			t.Errorf("Entry %d: expected result %d, got %d (%s)", i, want, out[i].Result.Value, out[i].Result.Data)
		}
	}

	if _, ok, _ := fsm.database.Get("config_key", "a"); ok {
		t.Errorf("Key a should have been erased")
	}
	if v, ok, _ := fsm.database.Get("config_key", "b"); !ok || string(v) != "2" {
		t.Errorf("Expected b=2, got %q (%v)", v, ok)
	}
	if ok, _ := fsm.database.Has("", "x"); ok {
		t.Errorf("Rejected transaction must not be applied")
	}

	if out, err := fsm.Update(nil); err != nil || len(out) != 0 {
		t.Errorf("Empty batch should be a no-op")
	}
}

func TestStateMachineLookup(t *testing.T) {
	fsm := newTestStateMachine(t)
	_, _ = fsm.Update([]sm.Entry{entry(1, func(tx *db.Transaction) {
		tx.Put("config_key", "a", []byte("1"))
	})})

	res, err := fsm.Lookup(Query{Type: QueryInfo})
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if info, ok := res.(db.DatabaseInfo); !ok || info.DbType != db.ImplMemory {
		t.Errorf("Expected memory engine info, got %#v", res)
	}

	res, err = fsm.Lookup(Query{Type: QueryNamespaces})
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if ns, ok := res.([]string); !ok || len(ns) != 1 || ns[0] != "config_key" {
		t.Errorf("Expected [config_key], got %#v", res)
	}

	if _, err := fsm.Lookup("not a query"); err == nil {
		t.Errorf("Expected error for invalid query type")
	}
	if _, err := fsm.Lookup(Query{Type: 99}); err == nil {
		t.Errorf("Expected error for unknown query")
	}
}

func TestStateMachineSnapshot(t *testing.T) {
	src := newTestStateMachine(t)
	_, _ = src.Update([]sm.Entry{entry(1, func(tx *db.Transaction) {
		tx.Put("config_key", "dm-crypt/u1/luks", []byte("secret"))
		tx.Put("config_key", "mgr/x", []byte{0, 1, 2})
	})})

	var buf bytes.Buffer
	ctx, _ := src.PrepareSnapshot()
	if err := src.SaveSnapshot(ctx, &buf, nil, nil); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}

	dst := newTestStateMachine(t)
	_, _ = dst.Update([]sm.Entry{entry(1, func(tx *db.Transaction) {
		tx.Put("config_key", "stale", []byte("gone after recovery"))
	})})
	if err := dst.RecoverFromSnapshot(&buf, nil, nil); err != nil {
		t.Fatalf("RecoverFromSnapshot failed: %v", err)
	}

	if ok, _ := dst.database.Has("config_key", "stale"); ok {
		t.Errorf("Recovery must replace existing contents")
	}
	if v, ok, _ := dst.database.Get("config_key", "mgr/x"); !ok || !bytes.Equal(v, []byte{0, 1, 2}) {
		t.Errorf("Expected recovered binary value, got %v (%v)", v, ok)
	}
}

func TestStateMachineFactory(t *testing.T) {
	var opened db.KVDB
	factory := CreateStateMachineFactory(func() (db.KVDB, error) {
		return memory.NewMemoryDB(nil), nil
	}, func(d db.KVDB) { opened = d })

	fsm := factory(7, 3)
	defer fsm.Close()

	if opened == nil {
		t.Fatalf("onOpen was not called")
	}
	if fsm.(*StateMachine).database != opened {
		t.Errorf("State machine should use the engine reported to onOpen")
	}
}
