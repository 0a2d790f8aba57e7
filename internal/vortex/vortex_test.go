package vortex

import (
	"testing"

	"github.com/sstgo/corevortex/internal/activity"
)

func TestPopOrdersByDeliveryTime(t *testing.T) {
	v := New()
	v.Push(activity.NewEvent(30, 0, nil))
	v.Push(activity.NewEvent(10, 0, nil))
	v.Push(activity.NewEvent(20, 0, nil))

	var got []uint64
	for a := v.Pop(); a != nil; a = v.Pop() {
		got = append(got, a.DeliveryTime())
	}
	want := []uint64{10, 20, 30}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("pop order = %v, want %v", got, want)
		}
	}
}

func TestPopTimeTiesBreakOnPriority(t *testing.T) {
	v := New()
	lowPrio := activity.NewOneShotFire(10, nil) // PrioOneShotFire = 60
	v.Push(lowPrio)
	tick := activity.NewClockTick(10, nil) // PrioClockTick = 40, should come first
	v.Push(tick)

	first := v.Pop()
	if first.Kind() != activity.KindClockTick {
		t.Fatalf("expected ClockTick to pop before OneShotFire at equal delivery time, got %v", first.Kind())
	}
}

func TestPopBreaksTimeAndPriorityTiesByInsertionOrder(t *testing.T) {
	v := New()
	a := activity.NewEvent(5, 1, "a")
	b := activity.NewEvent(5, 1, "b")
	v.Push(a)
	v.Push(b)

	first := v.Pop().(*activity.Event)
	if first.Payload != "a" {
		t.Fatalf("expected insertion-order tiebreak to pop %q first, got %v", "a", first.Payload)
	}
	second := v.Pop().(*activity.Event)
	if second.Payload != "b" {
		t.Fatalf("expected %q second, got %v", "b", second.Payload)
	}
}

func TestDepthTracking(t *testing.T) {
	v := New()
	if !v.Empty() {
		t.Fatalf("new vortex should be empty")
	}
	v.Push(activity.NewEvent(1, 0, nil))
	v.Push(activity.NewEvent(2, 0, nil))
	if v.CurrentDepth() != 2 {
		t.Fatalf("CurrentDepth = %d, want 2", v.CurrentDepth())
	}
	v.Pop()
	v.Pop()
	if v.CurrentDepth() != 0 {
		t.Fatalf("CurrentDepth after drain = %d, want 0", v.CurrentDepth())
	}
	if v.MaxDepth() != 2 {
		t.Fatalf("MaxDepth = %d, want 2", v.MaxDepth())
	}
}

func TestPushTwiceOnSameActivityPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic pushing the same activity twice")
		}
	}()
	v := New()
	e := activity.NewEvent(1, 0, nil)
	v.Push(e)
	v.Push(e)
}
