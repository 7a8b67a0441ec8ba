package loop

import (
	"container/heap"
	"time"
)

// timerItem is a scheduled callback, identified by a unique id
type timerItem struct {
	id       uint64
	deadline time.Time
	fn       func()
	index    int // maintained by container/heap
}

// timerHeap is a min-heap of timers ordered by deadline (ties by id, i.e. creation order)
// with an index for O(log n) removal by id.
//
// It is not thread-safe, the Loop guards it with its mutex.
type timerHeap struct {
	items []*timerItem
	byID  map[uint64]*timerItem
}

func newTimerHeap() *timerHeap {
	return &timerHeap{byID: make(map[uint64]*timerItem)}
}

// heap.Interface

func (h *timerHeap) Len() int { return len(h.items) }

func (h *timerHeap) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if a.deadline.Equal(b.deadline) {
		return a.id < b.id
	}
	return a.deadline.Before(b.deadline)
}

func (h *timerHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}

func (h *timerHeap) Push(x any) {
	item := x.(*timerItem)
	item.index = len(h.items)
	h.items = append(h.items, item)
	h.byID[item.id] = item
}

func (h *timerHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	h.items = old[:n-1]
	delete(h.byID, item.id)
	return item
}

// add schedules fn at deadline under the given id
func (h *timerHeap) add(id uint64, deadline time.Time, fn func()) {
	heap.Push(h, &timerItem{id: id, deadline: deadline, fn: fn})
}

// remove cancels the timer with the given id, it reports whether it was still pending
func (h *timerHeap) remove(id uint64) bool {
	item, ok := h.byID[id]
	if !ok {
		return false
	}
	heap.Remove(h, item.index)
	return true
}

// peek returns the earliest timer without removing it
func (h *timerHeap) peek() (*timerItem, bool) {
	if len(h.items) == 0 {
		return nil, false
	}
	return h.items[0], true
}

// popDue removes and returns the earliest timer if its deadline is not after now
func (h *timerHeap) popDue(now time.Time) (*timerItem, bool) {
	item, ok := h.peek()
	if !ok || item.deadline.After(now) {
		return nil, false
	}
	return heap.Pop(h).(*timerItem), true
}
