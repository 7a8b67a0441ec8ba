package loop

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// node represents a single element in the queue
type node[T any] struct {
	value *T
	next  atomic.Pointer[node[T]]
}

// Queue is an unbounded lock-free multi-producer single-consumer queue.
//
// Producers append to a linked list with CAS, a single forwarding goroutine hands the
// values to the consumer through the Recv channel. Values pushed by one producer are
// delivered in push order, values of different producers interleave in the order their
// CAS succeeded.
type Queue[T any] struct {
	head     atomic.Pointer[node[T]]
	tail     atomic.Pointer[node[T]]
	out      chan *T
	consumer sync.WaitGroup
	closed   atomic.Bool

	// wakes the forwarding goroutine when it ran out of items
	mu   sync.Mutex
	cond *sync.Cond
}

// NewQueue creates a queue and starts its forwarding goroutine. Close must be called to
// stop it.
func NewQueue[T any]() *Queue[T] {
	sentinel := &node[T]{}

	q := &Queue[T]{
		out: make(chan *T),
	}
	q.cond = sync.NewCond(&q.mu)
	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	q.consumer.Add(1)
	go q.forward()

	return q
}

// Push adds an item to the queue.
// Returns false if the value is nil or the queue is closed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (q *Queue[T]) Push(value *T) bool {
	if value == nil || q.closed.Load() {
		return false
	}

	n := &node[T]{value: value}
	var backoff uint8

	for {
		tail := q.tail.Load()
		next := tail.next.Load()

		if next == nil {
			if tail.next.CompareAndSwap(nil, n) {
				q.tail.CompareAndSwap(tail, n)

				// signal under the lock so the wakeup can not slip in between the
				// consumer's emptiness check and its Wait
				q.mu.Lock()
				q.cond.Signal()
				q.mu.Unlock()
				return true
			}
		} else {
			// another producer linked a node but did not move the tail yet, help it
			q.tail.CompareAndSwap(tail, next)
		}

		// spin briefly under contention, then yield
		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// forward moves items from the list to the out channel until the queue is closed and drained
func (q *Queue[T]) forward() {
	defer q.consumer.Done()
	defer close(q.out)

	for {
		drained := false
		for {
			head := q.head.Load()
			next := head.next.Load()
			if next == nil {
				break
			}
			drained = true

			value := next.value
			q.head.Store(next)
			q.out <- value
			next.value = nil
		}

		if !drained && q.closed.Load() {
			return
		}

		if !drained {
			q.mu.Lock()
			if q.head.Load().next.Load() == nil && !q.closed.Load() {
				q.cond.Wait()
			}
			q.mu.Unlock()
		}
	}
}

// Recv returns the channel the consumer reads from. It is closed once the queue was
// closed and every pushed item has been received.
func (q *Queue[T]) Recv() <-chan *T {
	return q.out
}

// Close stops accepting new items. Items already queued are still delivered.
func (q *Queue[T]) Close() {
	q.closed.Store(true)

	q.mu.Lock()
	q.cond.Signal()
	q.mu.Unlock()
}

// Wait blocks until the forwarding goroutine exited. The consumer must keep reading
// Recv until it is closed, otherwise Wait blocks forever.
func (q *Queue[T]) Wait() {
	q.consumer.Wait()
}

// IsClosed returns true if the queue is closed.
func (q *Queue[T]) IsClosed() bool {
	return q.closed.Load()
}

// Len returns an approximate count of the queued items.
// This is O(n) and should only be used for debugging.
func (q *Queue[T]) Len() int {
	count := 0
	current := q.head.Load()
	for {
		next := current.next.Load()
		if next == nil {
			return count
		}
		count++
		current = next
	}
}
