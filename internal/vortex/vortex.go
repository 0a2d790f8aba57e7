// Package vortex implements the TimeVortex: the priority queue that
// orders every Activity a partition will execute, by
// (delivery time, priority, insertion order).
package vortex

import (
	"container/heap"
	"sync"

	"github.com/sstgo/corevortex/internal/activity"
)

// TimeVortex is the per-partition scheduling queue. It is safe for
// concurrent use: every method takes the vortex's mutex, so another
// goroutine (e.g. the console reading the depth counters) may call it
// while Push and Pop run on the simulation goroutine.
type TimeVortex struct {
	mu       sync.Mutex
	h        vortexHeap
	nextSeq  uint64
	maxDepth int
}

// New returns an empty TimeVortex.
func New() *TimeVortex {
	v := &TimeVortex{}
	heap.Init(&v.h)
	return v
}

// Push inserts an activity, assigning it the next insertion-order
// sequence number. Pushing the same Activity value twice panics (see
// activity.Base.SetInsertionOrder) since it would otherwise silently
// corrupt delivery order.
func (v *TimeVortex) Push(a activity.Activity) {
	v.mu.Lock()
	defer v.mu.Unlock()
	a.SetInsertionOrder(v.nextSeq)
	v.nextSeq++
	heap.Push(&v.h, a)
	if len(v.h) > v.maxDepth {
		v.maxDepth = len(v.h)
	}
}

// Pop removes and returns the activity with the earliest
// (delivery time, priority, insertion order), or nil if the vortex is
// empty.
func (v *TimeVortex) Pop() activity.Activity {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.h) == 0 {
		return nil
	}
	return heap.Pop(&v.h).(activity.Activity)
}

// Peek returns the next activity to be popped without removing it, or
// nil if the vortex is empty.
func (v *TimeVortex) Peek() activity.Activity {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.h) == 0 {
		return nil
	}
	return v.h[0]
}

// CurrentDepth returns the number of activities currently queued.
func (v *TimeVortex) CurrentDepth() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.h)
}

// MaxDepth returns the largest depth the vortex has reached over its
// lifetime, for heartbeat/telemetry reporting.
func (v *TimeVortex) MaxDepth() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.maxDepth
}

// Empty reports whether the vortex currently holds no activities.
func (v *TimeVortex) Empty() bool {
	return v.CurrentDepth() == 0
}

// vortexHeap implements container/heap.Interface over
// activity.Activity values ordered by (delivery time, priority,
// insertion order).
type vortexHeap []activity.Activity

func (h vortexHeap) Len() int { return len(h) }

func (h vortexHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.DeliveryTime() != b.DeliveryTime() {
		return a.DeliveryTime() < b.DeliveryTime()
	}
	if a.Priority() != b.Priority() {
		return a.Priority() < b.Priority()
	}
	return a.InsertionOrder() < b.InsertionOrder()
}

func (h vortexHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *vortexHeap) Push(x any) {
	*h = append(*h, x.(activity.Activity))
}

func (h *vortexHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
