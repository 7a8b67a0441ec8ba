package loop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("loop")

var (
	// ErrStopped is returned when work is handed to a loop that no longer runs.
	ErrStopped = errors.New("loop: stopped")
	// ErrRunning is returned if Run is called on a loop that already runs.
	ErrRunning = errors.New("loop: already running")
)

type task struct {
	fn func()
}

// Loop executes posted functions and expired timers one at a time on a single goroutine.
// Everything that runs on the loop may touch loop-owned state without locking.
type Loop struct {
	queue *Queue[task]
	clock Clock

	mu     sync.Mutex // guards timers and nextID
	timers *timerHeap
	nextID uint64

	// only touched by the loop goroutine
	wakeAt time.Time
	wakeC  <-chan time.Time

	started atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a loop driven by clock (nil = SystemClock). The loop does nothing until
// Run or Start is called.
func New(clock Clock) *Loop {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Loop{
		queue:  NewQueue[task](),
		clock:  clock,
		timers: newTimerHeap(),
		done:   make(chan struct{}),
	}
}

// Clock returns the time source of the loop.
func (l *Loop) Clock() Clock {
	return l.clock
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

// Run processes tasks and timers until ctx is done. Tasks that were posted before the
// loop stopped are still executed, pending timers are dropped.
func (l *Loop) Run(ctx context.Context) error {
	if !l.started.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer close(l.done)

	log.Debugf("event loop started")

	for {
		l.fireDue()

		select {
		case <-ctx.Done():
			l.drain()
			log.Debugf("event loop stopped")
			return ctx.Err()
		case t, ok := <-l.queue.Recv():
			if !ok {
				return nil
			}
			l.fireDue()
			t.fn()
		case <-l.wakeChannel():
			l.wakeC = nil
		}
	}
}

// Start runs the loop on a new goroutine.
func (l *Loop) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	go func() {
		if err := l.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Errorf("event loop exited: %v", err)
		}
	}()
}

// Stop stops a loop started with Start and waits until it exited.
func (l *Loop) Stop() {
	if l.cancel != nil {
		l.cancel()
		<-l.done
		return
	}
	if !l.started.Load() {
		// never ran: release the queue goroutine
		l.queue.Close()
		for range l.queue.Recv() {
		}
	}
}

func (l *Loop) drain() {
	l.queue.Close()
	for t := range l.queue.Recv() {
		t.fn()
	}
}

// --------------------------------------------------------------------------
// Tasks
// --------------------------------------------------------------------------

// Post schedules fn to run on the loop. It returns false if the loop is stopped.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (l *Loop) Post(fn func()) bool {
	return l.queue.Push(&task{fn: fn})
}

// Call runs fn on the loop and waits until it returned.
// It must not be called from the loop goroutine itself.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !l.Post(func() {
		defer close(done)
		fn()
	}) {
		return ErrStopped
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// --------------------------------------------------------------------------
// Timers
// --------------------------------------------------------------------------

// Timer is a handle to a one-shot callback scheduled with AfterFunc.
type Timer struct {
	loop *Loop
	id   uint64
}

// Stop cancels the timer. It reports whether the timer was still pending, false means
// the callback already ran (or is running right now).
func (t *Timer) Stop() bool {
	if t == nil {
		return false
	}
	t.loop.mu.Lock()
	defer t.loop.mu.Unlock()
	return t.loop.timers.remove(t.id)
}

// AfterFunc runs fn on the loop once d has elapsed on the loop's clock.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (l *Loop) AfterFunc(d time.Duration, fn func()) *Timer {
	l.mu.Lock()
	l.nextID++
	id := l.nextID
	l.timers.add(id, l.clock.Now().Add(d), fn)
	l.mu.Unlock()

	// make the loop re-evaluate its next wakeup
	l.Post(func() {})

	return &Timer{loop: l, id: id}
}

// PendingTimers returns the number of scheduled timers.
func (l *Loop) PendingTimers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.timers.Len()
}

// fireDue runs expired timers one by one, so a callback can still cancel a timer that
// expired at the same instant.
func (l *Loop) fireDue() {
	for {
		l.mu.Lock()
		item, ok := l.timers.popDue(l.clock.Now())
		l.mu.Unlock()
		if !ok {
			return
		}
		item.fn()
	}
}

// wakeChannel returns a channel that fires at the earliest timer deadline (nil if no timer is pending)
func (l *Loop) wakeChannel() <-chan time.Time {
	l.mu.Lock()
	item, ok := l.timers.peek()
	var deadline time.Time
	if ok {
		deadline = item.deadline
	}
	l.mu.Unlock()

	if !ok {
		l.wakeC = nil
		return nil
	}
	if l.wakeC != nil && l.wakeAt.Equal(deadline) {
		return l.wakeC
	}
	l.wakeAt = deadline
	l.wakeC = l.clock.After(deadline.Sub(l.clock.Now()))
	return l.wakeC
}
