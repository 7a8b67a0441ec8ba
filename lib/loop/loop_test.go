package loop

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func sync0(t *testing.T, l *Loop) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := l.Call(ctx, func() {}); err != nil {
		t.Fatalf("Call failed: %v", err)
	}
}

func TestPostOrder(t *testing.T) {
	l := New(nil)
	l.Start()
	defer l.Stop()

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		if !l.Post(func() { got = append(got, i) }) {
			t.Fatalf("Post %d failed", i)
		}
	}
	sync0(t, l)

	if len(got) != 100 {
		t.Fatalf("Expected 100 tasks to run, got %d", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("Tasks of one producer must run in post order, got %v", got)
		}
	}
}

func TestConcurrentPostersRunSerially(t *testing.T) {
	l := New(nil)
	l.Start()
	defer l.Stop()

	counter := 0 // only touched on the loop
	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				l.Post(func() { counter++ })
			}
		}()
	}
	wg.Wait()
	sync0(t, l)

	if counter != 8*500 {
		t.Errorf("Expected %d increments, got %d", 8*500, counter)
	}
}

func TestCallAfterStop(t *testing.T) {
	l := New(nil)
	l.Start()
	l.Stop()

	if l.Post(func() {}) {
		t.Errorf("Post on a stopped loop should fail")
	}
	if err := l.Call(context.Background(), func() {}); !errors.Is(err, ErrStopped) {
		t.Errorf("Expected ErrStopped, got %v", err)
	}
}

func TestStopWithoutStart(t *testing.T) {
	l := New(nil)
	l.Post(func() { t.Errorf("task of a never started loop must not run") })
	l.Stop()
}

func TestRunTwice(t *testing.T) {
	l := New(nil)
	l.Start()
	defer l.Stop()

	// wait until the first Run has claimed the loop
	sync0(t, l)
	if err := l.Run(context.Background()); !errors.Is(err, ErrRunning) {
		t.Errorf("Expected ErrRunning, got %v", err)
	}
}

func TestDrainOnShutdown(t *testing.T) {
	l := New(nil)
	ctx, cancel := context.WithCancel(context.Background())

	ran := make(chan int, 10)
	for i := 0; i < 10; i++ {
		i := i
		l.Post(func() { ran <- i })
	}
	cancel()

	if err := l.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if len(ran) != 10 {
		t.Errorf("Tasks posted before shutdown should run, %d of 10 did", len(ran))
	}
}

func TestAfterFuncManualClock(t *testing.T) {
	clock := NewManualClock(time.Unix(1000, 0))
	l := New(clock)
	l.Start()
	defer l.Stop()

	fired := 0
	l.AfterFunc(10*time.Second, func() { fired++ })

	clock.Advance(5 * time.Second)
	sync0(t, l)
	if fired != 0 {
		t.Fatalf("Timer fired %d times before its deadline", fired)
	}

	clock.Advance(5 * time.Second)
	sync0(t, l)
	if fired != 1 {
		t.Fatalf("Timer should fire exactly once at its deadline, fired %d", fired)
	}

	clock.Advance(time.Minute)
	sync0(t, l)
	if fired != 1 {
		t.Errorf("One-shot timer fired again")
	}
	if n := l.PendingTimers(); n != 0 {
		t.Errorf("Expected no pending timers, got %d", n)
	}
}

func TestTimerStop(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	l := New(clock)
	l.Start()
	defer l.Stop()

	fired := false
	timer := l.AfterFunc(time.Second, func() { fired = true })

	if !timer.Stop() {
		t.Errorf("Stop of a pending timer should return true")
	}
	if timer.Stop() {
		t.Errorf("Second Stop should return false")
	}

	clock.Advance(time.Hour)
	sync0(t, l)
	if fired {
		t.Errorf("Stopped timer fired")
	}

	var nilTimer *Timer
	if nilTimer.Stop() {
		t.Errorf("Stop on nil timer should return false")
	}
}

func TestTimersFireInDeadlineOrder(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	l := New(clock)
	l.Start()
	defer l.Stop()

	var order []string
	l.AfterFunc(3*time.Second, func() { order = append(order, "c") })
	l.AfterFunc(1*time.Second, func() { order = append(order, "a") })
	l.AfterFunc(2*time.Second, func() { order = append(order, "b1") })
	l.AfterFunc(2*time.Second, func() { order = append(order, "b2") })

	clock.Advance(10 * time.Second)
	sync0(t, l)

	expected := []string{"a", "b1", "b2", "c"}
	if len(order) != len(expected) {
		t.Fatalf("Expected %v, got %v", expected, order)
	}
	for i := range expected {
		if order[i] != expected[i] {
			t.Fatalf("Expected %v, got %v", expected, order)
		}
	}
}

func TestCallbackCancelsTimerDueAtSameInstant(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	l := New(clock)
	l.Start()
	defer l.Stop()

	var second *Timer
	secondFired := false

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := l.Call(ctx, func() {
		l.AfterFunc(time.Second, func() { second.Stop() })
		second = l.AfterFunc(time.Second, func() { secondFired = true })
	})
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}

	clock.Advance(time.Second)
	sync0(t, l)

	if secondFired {
		t.Errorf("Timer cancelled by an earlier callback of the same instant must not fire")
	}
}

func TestAfterFuncSystemClock(t *testing.T) {
	l := New(nil)
	l.Start()
	defer l.Stop()

	fired := make(chan time.Time, 1)
	start := time.Now()
	l.AfterFunc(20*time.Millisecond, func() { fired <- time.Now() })

	select {
	case at := <-fired:
		if at.Sub(start) < 20*time.Millisecond {
			t.Errorf("Timer fired early after %v", at.Sub(start))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timer did not fire")
	}
}

func TestManualClockWaiters(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))

	immediate := clock.After(0)
	select {
	case <-immediate:
	default:
		t.Errorf("After(0) should fire immediately")
	}

	later := clock.After(time.Second)
	if clock.Waiters() != 1 {
		t.Errorf("Expected one waiter, got %d", clock.Waiters())
	}

	clock.Set(time.Unix(-5, 0)) // backwards, ignored
	select {
	case <-later:
		t.Fatalf("Waiter fired without time passing")
	default:
	}

	clock.Set(time.Unix(1, 0))
	select {
	case at := <-later:
		if !at.Equal(time.Unix(1, 0)) {
			t.Errorf("Unexpected fire time %v", at)
		}
	default:
		t.Errorf("Waiter should fire once its deadline is reached")
	}
	if clock.Waiters() != 0 {
		t.Errorf("Fired waiters should be removed")
	}
}
