package lquorum

import (
	"context"
	"testing"
	"time"

	"github.com/ValentinKolb/dCfg/lib/db"
	"github.com/ValentinKolb/dCfg/lib/db/engines/memory"
	"github.com/ValentinKolb/dCfg/lib/loop"
)

func onLoop(t *testing.T, l *loop.Loop, fn func()) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := l.Call(ctx, fn); err != nil {
		t.Fatalf("Call failed: %v", err)
	}
}

func newQuorum(t *testing.T) (*loop.Loop, *Quorum) {
	t.Helper()
	l := loop.New(nil)
	l.Start()
	engine := memory.NewMemoryDB(nil)
	t.Cleanup(func() {
		l.Stop()
		_ = engine.Close()
	})
	return l, New(l, engine, nil)
}

func TestLocalQuorumRole(t *testing.T) {
	_, q := newQuorum(t)

	if !q.IsLeader() || q.IsPeon() {
		t.Errorf("A local quorum always leads")
	}
	if q.Epoch() != 1 {
		t.Errorf("Expected epoch 1, got %d", q.Epoch())
	}
	if e := q.Elect(); e != 2 || q.Epoch() != 2 {
		t.Errorf("Elect should advance the epoch, got %d", e)
	}
}

func TestLocalQuorumCommit(t *testing.T) {
	l, q := newQuorum(t)

	committed := false
	onLoop(t, l, func() {
		q.PendingTransaction().Put("config_key", "a", []byte("1"))
		q.QueuePendingFinisher(func() {
			committed = true
			v, ok, err := q.Engine().Get("config_key", "a")
			if err != nil || !ok || string(v) != "1" {
				t.Errorf("Value must be readable when the finisher runs, got %q %v %v", v, ok, err)
			}
		})
		q.TriggerPropose()
		if committed {
			t.Errorf("Finisher ran synchronously")
		}
	})
	onLoop(t, l, func() {})
	onLoop(t, l, func() {
		if !committed {
			t.Errorf("Finisher did not run")
		}
	})
}

func TestLocalQuorumInvalidTransactionAborts(t *testing.T) {
	l, q := newQuorum(t)

	fired := false
	onLoop(t, l, func() {
		q.PendingTransaction().Put("", "a", []byte("1"))
		q.QueuePendingFinisher(func() { fired = true })
		q.TriggerPropose()
	})
	onLoop(t, l, func() {})
	onLoop(t, l, func() {
		if fired {
			t.Errorf("Finisher of a rejected transaction fired")
		}
		if _, ok, _ := q.Engine().Get("config_key", "a"); ok {
			t.Errorf("Rejected transaction left data behind")
		}
	})
}

func TestLocalQuorumWaitForReadable(t *testing.T) {
	l, q := newQuorum(t)

	done := make(chan struct{})
	onLoop(t, l, func() {
		q.WaitForReadable(func() { close(done) })
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Retry was not posted")
	}
}

func TestLocalQuorumElectDropsPending(t *testing.T) {
	l, q := newQuorum(t)

	onLoop(t, l, func() {
		q.Plug()
		q.PendingTransaction().Put("config_key", "a", []byte("1"))
		q.Elect()
		if !q.PendingTransaction().Empty() || q.IsPlugged() {
			t.Errorf("A new epoch starts with a clean pipeline")
		}
	})

	var tx *db.Transaction
	onLoop(t, l, func() { tx = q.PendingTransaction() })
	if tx.Len() != 0 {
		t.Errorf("Expected empty pending transaction, got %d ops", tx.Len())
	}
}
