package configkey

import (
	"testing"
	"time"

	"github.com/ValentinKolb/dCfg/lib/db/engines/memory"
	"github.com/ValentinKolb/dCfg/lib/quorum"
	"github.com/ValentinKolb/dCfg/lib/quorum/lquorum"
	gometrics "github.com/rcrowley/go-metrics"
)

func newTestService(t *testing.T, cfg Config) (*Service, *lquorum.Quorum, func(time.Duration)) {
	t.Helper()
	l, clock := newManualLoop(t)
	engine := memory.NewMemoryDB(nil)
	t.Cleanup(func() { _ = engine.Close() })

	q := lquorum.New(l, engine, quorum.NewStats(nil))
	s := NewService(l, q, engine, cfg)
	advance := func(d time.Duration) {
		clock.Advance(d)
		onLoop(t, l, func() {})
	}
	onLoop(t, l, func() { s.Start(q.Epoch()) })
	return s, q, advance
}

func TestServiceRoundTrip(t *testing.T) {
	s, _, _ := newTestService(t, Config{})
	l := s.loop

	put := newOp("config-key put", map[string]string{"key": "mgr/x", "val": "1"}, nil)
	onLoop(t, l, func() { s.Dispatch(put) })
	// the commit is reported with a later loop task
	onLoop(t, l, func() {})
	if r := put.onlyReply(t); r.code != RetCSuccess {
		t.Fatalf("put failed: %+v", r)
	}

	get := newOp("config-key get", map[string]string{"key": "mgr/x"}, nil)
	onLoop(t, l, func() { s.Dispatch(get) })
	if r := get.onlyReply(t); string(r.data) != "1" {
		t.Errorf("Expected 1, got %+v", r)
	}

	if c := gometrics.GetOrRegisterCounter("configkey.cmd.get", s.Registry()); c.Count() != 1 {
		t.Errorf("Expected one counted get, got %d", c.Count())
	}
}

func TestServiceLifecycle(t *testing.T) {
	s, q, advance := newTestService(t, Config{TickPeriod: time.Second})
	l := s.loop

	onLoop(t, l, func() {
		if !s.Ticking() || s.Epoch() != 1 {
			t.Errorf("Start should schedule the tick in epoch 1")
		}
		if !s.InQuorum() {
			t.Errorf("Single node service should be in quorum")
		}
	})

	advance(time.Second)
	advance(time.Second)

	onLoop(t, l, func() {
		s.Finish()
		if s.Ticking() {
			t.Errorf("Finish should stop the tick")
		}
		s.Start(q.Elect())
		if s.Epoch() != 2 || !s.Ticking() {
			t.Errorf("Restart should begin epoch 2 with a tick")
		}
		s.Start(s.Epoch())
	})
	if n := l.PendingTimers(); n != 1 {
		t.Errorf("Expected exactly one pending tick, got %d", n)
	}

	onLoop(t, l, func() {
		s.Shutdown()
		s.Start(3)
		if s.Ticking() || s.Epoch() != 2 {
			t.Errorf("Start after Shutdown must be ignored")
		}
	})
}

func TestServiceSetUpdatePeriod(t *testing.T) {
	s, _, advance := newTestService(t, Config{TickPeriod: time.Second})

	onLoop(t, s.loop, func() { s.SetUpdatePeriod(time.Minute) })
	advance(time.Second)
	onLoop(t, s.loop, func() {
		if !s.Ticking() {
			t.Errorf("Tick should reschedule itself")
		}
	})
	if s.tick.Period() != time.Minute {
		t.Errorf("Expected period of one minute, got %s", s.tick.Period())
	}
}

func TestServiceTickDisabled(t *testing.T) {
	s, _, advance := newTestService(t, Config{TickPeriod: -1})
	advance(time.Hour)
	onLoop(t, s.loop, func() {
		if s.Ticking() {
			t.Errorf("Negative tick period should disable the tick")
		}
	})
}

func TestServiceStorePrefixes(t *testing.T) {
	s, _, _ := newTestService(t, Config{})
	if p := s.StorePrefixes(); len(p) != 1 || p[0] != Namespace {
		t.Errorf("Unexpected store prefixes %v", p)
	}
	if s.disp.MaxEntrySize() != DefaultMaxEntrySize {
		t.Errorf("Expected default max entry size")
	}
}

func TestServiceEntryStats(t *testing.T) {
	s, _, _ := newTestService(t, Config{})
	seed(t, s.Store(), map[string]string{"a": "12", "bb": "3456"})

	stats, err := s.EntryStats()
	if err != nil {
		t.Fatalf("EntryStats failed: %v", err)
	}
	if stats.Entries != 2 {
		t.Errorf("Expected 2 entries, got %d", stats.Entries)
	}
	if stats.MaxValueBytes != 4 {
		t.Errorf("Expected max value of 4 bytes, got %d", stats.MaxValueBytes)
	}
}
