package loop

import (
	"testing"
	"time"
)

func TestTimerHeapOrder(t *testing.T) {
	h := newTimerHeap()
	base := time.Unix(0, 0)

	h.add(1, base.Add(30*time.Millisecond), nil)
	h.add(2, base.Add(10*time.Millisecond), nil)
	h.add(3, base.Add(20*time.Millisecond), nil)
	h.add(4, base.Add(10*time.Millisecond), nil)

	var order []uint64
	for {
		item, ok := h.popDue(base.Add(time.Hour))
		if !ok {
			break
		}
		order = append(order, item.id)
	}

	expected := []uint64{2, 4, 3, 1}
	if len(order) != len(expected) {
		t.Fatalf("Expected %v, got %v", expected, order)
	}
	for i := range expected {
		if order[i] != expected[i] {
			t.Fatalf("Expected %v, got %v", expected, order)
		}
	}
	if len(h.byID) != 0 {
		t.Errorf("Index should be empty after draining, has %d entries", len(h.byID))
	}
}

func TestTimerHeapPopDue(t *testing.T) {
	h := newTimerHeap()
	base := time.Unix(100, 0)

	h.add(1, base.Add(time.Second), nil)

	if _, ok := h.popDue(base); ok {
		t.Errorf("Timer should not be due before its deadline")
	}
	if item, ok := h.popDue(base.Add(time.Second)); !ok || item.id != 1 {
		t.Errorf("Timer should be due exactly at its deadline")
	}
	if _, ok := h.popDue(base.Add(time.Hour)); ok {
		t.Errorf("Empty heap should not return a timer")
	}
}

func TestTimerHeapRemove(t *testing.T) {
	h := newTimerHeap()
	base := time.Unix(0, 0)

	for i := uint64(1); i <= 5; i++ {
		h.add(i, base.Add(time.Duration(i)*time.Second), nil)
	}

	if !h.remove(3) {
		t.Errorf("remove of a pending timer should return true")
	}
	if h.remove(3) {
		t.Errorf("second remove should return false")
	}
	if h.remove(42) {
		t.Errorf("remove of an unknown timer should return false")
	}
	if !h.remove(1) {
		t.Errorf("remove of the earliest timer should return true")
	}

	first, ok := h.peek()
	if !ok || first.id != 2 {
		t.Fatalf("Expected timer 2 to be first after removals")
	}

	var remaining []uint64
	for h.Len() > 0 {
		item, _ := h.popDue(base.Add(time.Hour))
		remaining = append(remaining, item.id)
	}
	if len(remaining) != 3 || remaining[0] != 2 || remaining[1] != 4 || remaining[2] != 5 {
		t.Errorf("Unexpected remaining order %v", remaining)
	}
}
