package quorum

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/dCfg/lib/db"
	"github.com/ValentinKolb/dCfg/lib/loop"
)

// manualProposer records proposals and completes them when the test says so
type manualProposer struct {
	mu       sync.Mutex
	proposed []*db.Transaction
	dones    []func(error)
}

func (m *manualProposer) Propose(tx *db.Transaction, done func(error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.proposed = append(m.proposed, tx)
	m.dones = append(m.dones, done)
}

func (m *manualProposer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.proposed)
}

func (m *manualProposer) finish(i int, err error) {
	m.mu.Lock()
	done := m.dones[i]
	m.mu.Unlock()
	done(err)
}

// immediateProposer commits everything synchronously
type immediateProposer struct{}

func (immediateProposer) Propose(_ *db.Transaction, done func(error)) { done(nil) }

func onLoop(t *testing.T, l *loop.Loop, fn func()) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := l.Call(ctx, fn); err != nil {
		t.Fatalf("Call failed: %v", err)
	}
}

func newTestPipeline(t *testing.T, p Proposer) (*loop.Loop, *Pipeline) {
	t.Helper()
	l := loop.New(nil)
	l.Start()
	t.Cleanup(l.Stop)
	return l, NewPipeline(l, p, nil)
}

func TestPipelineFinishersFireAfterCommit(t *testing.T) {
	prop := &manualProposer{}
	l, p := newTestPipeline(t, prop)

	var fired []string
	onLoop(t, l, func() {
		p.PendingTransaction().Put("ns", "a", []byte("1"))
		p.QueuePendingFinisher(func() { fired = append(fired, "first") })
		p.QueuePendingFinisher(func() { fired = append(fired, "second") })
		p.TriggerPropose()
		if len(fired) != 0 {
			t.Errorf("Finishers must not fire synchronously")
		}
	})

	if prop.count() != 1 {
		t.Fatalf("Expected one proposal, got %d", prop.count())
	}
	onLoop(t, l, func() {
		if len(fired) != 0 {
			t.Errorf("Finishers fired before the commit")
		}
	})

	prop.finish(0, nil)
	onLoop(t, l, func() {})
	onLoop(t, l, func() {
		if len(fired) != 2 || fired[0] != "first" || fired[1] != "second" {
			t.Errorf("Expected [first second], got %v", fired)
		}
	})
}

func TestPipelinePendingTransactionIsStable(t *testing.T) {
	_, p := newTestPipeline(t, &manualProposer{})

	tx := p.PendingTransaction()
	if p.PendingTransaction() != tx {
		t.Errorf("Repeated calls must return the same pending transaction")
	}
}

func TestPipelineOneProposalInFlight(t *testing.T) {
	prop := &manualProposer{}
	l, p := newTestPipeline(t, prop)

	var order []int
	onLoop(t, l, func() {
		p.PendingTransaction().Put("ns", "a", []byte("1"))
		p.QueuePendingFinisher(func() { order = append(order, 1) })
		p.TriggerPropose()

		p.PendingTransaction().Put("ns", "b", []byte("2"))
		p.QueuePendingFinisher(func() { order = append(order, 2) })
		p.TriggerPropose()
	})

	if prop.count() != 1 {
		t.Fatalf("Second proposal must wait for the first, got %d proposals", prop.count())
	}

	prop.finish(0, nil)
	onLoop(t, l, func() {})
	if prop.count() != 2 {
		t.Fatalf("Queued proposal should follow the first, got %d proposals", prop.count())
	}
	if got := prop.proposed[1].Ops[0].Key; got != "b" {
		t.Errorf("Second proposal should carry key b, got %s", got)
	}

	prop.finish(1, nil)
	onLoop(t, l, func() {})
	onLoop(t, l, func() {
		if len(order) != 2 || order[0] != 1 || order[1] != 2 {
			t.Errorf("Finishers must fire in commit order, got %v", order)
		}
	})
}

func TestPipelineAbortDropsFinishers(t *testing.T) {
	prop := &manualProposer{}
	l, p := newTestPipeline(t, prop)

	fired := false
	onLoop(t, l, func() {
		p.PendingTransaction().Erase("ns", "a")
		p.QueuePendingFinisher(func() { fired = true })
		p.TriggerPropose()
	})
	prop.finish(0, errors.New("lost leadership"))
	onLoop(t, l, func() {})
	onLoop(t, l, func() {
		if fired {
			t.Errorf("Finisher of an aborted transaction fired")
		}
		if p.InFlight() {
			t.Errorf("Pipeline should accept new proposals after an abort")
		}
		if n := p.Stats().Snapshot().Aborts; n != 1 {
			t.Errorf("Expected 1 abort, got %d", n)
		}
	})
}

func TestPipelinePlugged(t *testing.T) {
	prop := &manualProposer{}
	l, p := newTestPipeline(t, prop)

	onLoop(t, l, func() {
		p.Plug()
		if !p.IsPlugged() {
			t.Errorf("IsPlugged should be true after Plug")
		}
		p.PendingTransaction().Put("ns", "a", []byte("1"))
		p.TriggerPropose()
		p.PendingTransaction().Put("ns", "b", []byte("2"))
		p.TriggerPropose()
	})
	if prop.count() != 0 {
		t.Fatalf("Plugged pipeline proposed %d times", prop.count())
	}

	onLoop(t, l, p.Unplug)
	if prop.count() != 1 {
		t.Fatalf("Unplug should propose once, got %d", prop.count())
	}
	if n := prop.proposed[0].Len(); n != 2 {
		t.Errorf("Staged ops should share one transaction, got %d ops", n)
	}
}

func TestPipelineEmptyTransactionStillReports(t *testing.T) {
	prop := &manualProposer{}
	l, p := newTestPipeline(t, prop)

	fired := false
	onLoop(t, l, func() {
		p.QueuePendingFinisher(func() { fired = true })
		p.TriggerPropose()
		if fired {
			t.Errorf("Finisher must not fire synchronously")
		}
	})
	onLoop(t, l, func() {
		if !fired {
			t.Errorf("Finisher of an empty transaction should fire")
		}
	})
	if prop.count() != 0 {
		t.Errorf("Empty transaction must not be replicated")
	}
}

func TestPipelineResetIgnoresStaleResult(t *testing.T) {
	prop := &manualProposer{}
	l, p := newTestPipeline(t, prop)

	fired := false
	onLoop(t, l, func() {
		p.PendingTransaction().Put("ns", "a", []byte("1"))
		p.QueuePendingFinisher(func() { fired = true })
		p.TriggerPropose()
		p.PendingTransaction().Put("ns", "b", []byte("2"))
		p.Reset()
		if !p.PendingTransaction().Empty() {
			t.Errorf("Reset should drop the pending transaction")
		}
	})

	prop.finish(0, nil)
	onLoop(t, l, func() {})
	onLoop(t, l, func() {
		if fired {
			t.Errorf("Finisher dropped by Reset fired")
		}
	})
}

func TestPipelineSynchronousProposer(t *testing.T) {
	l, p := newTestPipeline(t, immediateProposer{})

	fired := 0
	onLoop(t, l, func() {
		for i := 0; i < 3; i++ {
			p.PendingTransaction().Put("ns", "k", []byte{byte(i)})
			p.QueuePendingFinisher(func() { fired++ })
			p.TriggerPropose()
		}
		if fired != 0 {
			t.Errorf("Finishers must not fire synchronously")
		}
	})

	// results hop through the loop once per proposal
	for i := 0; i < 3; i++ {
		onLoop(t, l, func() {})
	}
	onLoop(t, l, func() {
		if fired != 3 {
			t.Errorf("Expected 3 finishers, got %d", fired)
		}
		// the second and third request were batched while the first was in flight
		if n := p.Stats().Snapshot().Commits; n != 2 {
			t.Errorf("Expected 2 commits, got %d", n)
		}
	})
}
