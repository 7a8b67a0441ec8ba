package configkey

import (
	"time"

	"github.com/ValentinKolb/dCfg/lib/loop"
)

// TickScheduler runs a hook periodically on the event loop. At most one tick is ever
// scheduled: Start replaces the pending tick instead of adding another one.
type TickScheduler struct {
	loop   *loop.Loop
	period time.Duration
	hook   func()

	timer      *loop.Timer
	generation uint64
}

// NewTickScheduler creates a scheduler that calls hook every period (0 disables ticking).
func NewTickScheduler(l *loop.Loop, period time.Duration, hook func()) *TickScheduler {
	return &TickScheduler{
		loop:   l,
		period: period,
		hook:   hook,
	}
}

// Start cancels the pending tick and schedules the next one after the current period.
func (t *TickScheduler) Start() {
	t.Stop()
	if t.period <= 0 {
		return
	}

	gen := t.generation
	t.timer = t.loop.AfterFunc(t.period, func() {
		if gen != t.generation {
			return
		}
		t.timer = nil
		if t.hook != nil {
			t.hook()
		}
		t.Start()
	})
}

// Stop cancels the pending tick, if any.
func (t *TickScheduler) Stop() {
	t.generation++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// SetPeriod changes the period. It applies from the next Start, which every tick calls.
func (t *TickScheduler) SetPeriod(d time.Duration) {
	t.period = d
}

// Period returns the current period.
func (t *TickScheduler) Period() time.Duration {
	return t.period
}

// Pending reports whether a tick is scheduled.
func (t *TickScheduler) Pending() bool {
	return t.timer != nil
}
