package configkey

import (
	"testing"
	"time"
)

func TestTickScheduler(t *testing.T) {
	l, clock := newManualLoop(t)

	fired := 0
	tick := NewTickScheduler(l, 5*time.Second, func() { fired++ })

	onLoop(t, l, tick.Start)
	clock.Advance(4 * time.Second)
	onLoop(t, l, func() {})
	if fired != 0 {
		t.Fatalf("Tick fired before its period")
	}

	for i := 1; i <= 3; i++ {
		clock.Advance(5 * time.Second)
		onLoop(t, l, func() {})
		if fired != i {
			t.Fatalf("Expected %d ticks, got %d", i, fired)
		}
	}
	onLoop(t, l, func() {
		if !tick.Pending() {
			t.Errorf("Next tick should be scheduled")
		}
	})
}

func TestTickSchedulerDoubleStart(t *testing.T) {
	l, clock := newManualLoop(t)

	fired := 0
	tick := NewTickScheduler(l, time.Second, func() { fired++ })

	onLoop(t, l, func() {
		tick.Start()
		tick.Start()
		tick.Start()
	})
	if n := l.PendingTimers(); n != 1 {
		t.Errorf("Expected a single pending tick, got %d", n)
	}

	clock.Advance(time.Second)
	onLoop(t, l, func() {})
	if fired != 1 {
		t.Errorf("Repeated Start must not multiply ticks, fired %d", fired)
	}
}

func TestTickSchedulerStop(t *testing.T) {
	l, clock := newManualLoop(t)

	fired := 0
	tick := NewTickScheduler(l, time.Second, func() { fired++ })

	onLoop(t, l, func() {
		tick.Stop() // nothing scheduled yet
		tick.Start()
		tick.Stop()
		tick.Stop()
	})
	clock.Advance(time.Minute)
	onLoop(t, l, func() {})
	if fired != 0 {
		t.Errorf("Stopped scheduler fired %d times", fired)
	}
	if tick.Pending() {
		t.Errorf("Nothing should be pending after Stop")
	}
}

func TestTickSchedulerStopFromHook(t *testing.T) {
	l, clock := newManualLoop(t)

	fired := 0
	var tick *TickScheduler
	tick = NewTickScheduler(l, time.Second, func() {
		fired++
		tick.Stop()
	})

	onLoop(t, l, tick.Start)
	for i := 0; i < 3; i++ {
		clock.Advance(time.Second)
		onLoop(t, l, func() {})
	}
	// the hook's Stop is overridden by the reschedule that follows it
	if fired != 3 {
		t.Errorf("Expected the tick to keep running, fired %d", fired)
	}
}

func TestTickSchedulerSetPeriod(t *testing.T) {
	l, clock := newManualLoop(t)

	fired := 0
	tick := NewTickScheduler(l, time.Second, func() { fired++ })
	onLoop(t, l, tick.Start)

	onLoop(t, l, func() { tick.SetPeriod(10 * time.Second) })
	if tick.Period() != 10*time.Second {
		t.Errorf("Period not updated")
	}

	// the already scheduled tick keeps the old period
	clock.Advance(time.Second)
	onLoop(t, l, func() {})
	if fired != 1 {
		t.Fatalf("Expected the pending tick to fire after 1s, fired %d", fired)
	}

	clock.Advance(5 * time.Second)
	onLoop(t, l, func() {})
	if fired != 1 {
		t.Errorf("New period should apply from the next tick, fired %d", fired)
	}
	clock.Advance(5 * time.Second)
	onLoop(t, l, func() {})
	if fired != 2 {
		t.Errorf("Expected second tick after 10s, fired %d", fired)
	}
}

func TestTickSchedulerDisabled(t *testing.T) {
	l, clock := newManualLoop(t)

	fired := 0
	tick := NewTickScheduler(l, 0, func() { fired++ })
	onLoop(t, l, tick.Start)

	clock.Advance(time.Hour)
	onLoop(t, l, func() {})
	if fired != 0 || tick.Pending() {
		t.Errorf("Zero period must never tick")
	}
}
