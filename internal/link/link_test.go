package link

import (
	"errors"
	"testing"

	"github.com/sstgo/corevortex/internal/activity"
	"github.com/sstgo/corevortex/internal/vortex"
)

func TestPairDeliversThroughVortex(t *testing.T) {
	v := vortex.New()
	reg := NewRegistry(v.Push)

	left, right := reg.NewPair(KindHandler, KindHandler)
	left.SetLatency(nil, 5)
	left.SetMode(ModeRun)
	right.SetMode(ModeRun)

	var got any
	if err := right.SetHandler(func(payload any) { got = payload }); err != nil {
		t.Fatalf("SetHandler: %v", err)
	}

	if err := left.Send(100, "hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	a := v.Pop()
	if a == nil {
		t.Fatalf("expected a queued event")
	}
	if a.DeliveryTime() != 105 {
		t.Fatalf("delivery time = %d, want 105", a.DeliveryTime())
	}
	a.Execute()
	if got != "hello" {
		t.Fatalf("handler received %v, want %q", got, "hello")
	}
}

func TestSendOutsideRunModeFails(t *testing.T) {
	v := vortex.New()
	reg := NewRegistry(v.Push)
	left, right := reg.NewPair(KindHandler, KindHandler)
	right.SetMode(ModeRun)

	if err := left.Send(0, "x"); !errors.Is(err, ErrWrongMode) {
		t.Fatalf("Send in init mode = %v, want ErrWrongMode", err)
	}
}

func TestSendUntimedDeliversSynchronously(t *testing.T) {
	v := vortex.New()
	reg := NewRegistry(v.Push)
	left, right := reg.NewPair(KindHandler, KindHandler)

	var got any
	right.SetHandler(func(p any) { got = p })

	if err := left.SendUntimed("init-data"); err != nil {
		t.Fatalf("SendUntimed: %v", err)
	}
	if got != "init-data" {
		t.Fatalf("handler received %v, want %q", got, "init-data")
	}
	if v.CurrentDepth() != 0 {
		t.Fatalf("untimed send should not touch the vortex")
	}
}

func TestPollingLinkQueuesEvents(t *testing.T) {
	v := vortex.New()
	reg := NewRegistry(v.Push)
	left, right := reg.NewPair(KindHandler, KindPolling)
	left.SetLatency(nil, 5)
	left.SetMode(ModeRun)
	right.SetMode(ModeRun)

	left.Send(10, "a")
	a := v.Pop()
	a.(*activity.Event).Execute()

	payload, deliveryTime, ok := right.Recv()
	if !ok || payload != "a" {
		t.Fatalf("Recv = (%v, %v), want (a, true)", payload, ok)
	}
	if deliveryTime != 15 {
		t.Fatalf("deliveryTime = %d, want 15", deliveryTime)
	}
	if _, _, ok := right.Recv(); ok {
		t.Fatalf("expected empty queue after single Recv")
	}
}

func TestHandlerOnPollingLinkIsRejected(t *testing.T) {
	reg := NewRegistry(nil)
	l := reg.NewSelfLink(KindPolling)
	if err := l.SetHandler(func(any) {}); !errors.Is(err, ErrPollingMisuse) {
		t.Fatalf("SetHandler on polling link = %v, want ErrPollingMisuse", err)
	}
}

func TestSelfLinkDeliversToItself(t *testing.T) {
	v := vortex.New()
	reg := NewRegistry(v.Push)
	l := reg.NewSelfLink(KindHandler)
	l.SetMode(ModeRun)

	var got any
	l.SetHandler(func(p any) { got = p })
	l.Send(0, "loop")

	v.Pop().(*activity.Event).Execute()
	if got != "loop" {
		t.Fatalf("self link delivered %v, want %q", got, "loop")
	}
}

func TestRegistryGetUnknownID(t *testing.T) {
	reg := NewRegistry(nil)
	if _, err := reg.Get(ID(42)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(42) = %v, want ErrNotFound", err)
	}
}

func TestSyncLinkDoesNotUseLocalPeer(t *testing.T) {
	reg := NewRegistry(nil)
	var forwarded any
	var forwardedTime uint64
	l := reg.NewSyncLink(KindHandler, func(t uint64, payload any) {
		forwardedTime = t
		forwarded = payload
	})
	l.SetLatency(nil, 3)
	l.SetMode(ModeRun)

	if err := l.Send(10, "cross-rank"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if forwarded != "cross-rank" || forwardedTime != 13 {
		t.Fatalf("forwarded = (%v, %v), want (cross-rank, 13)", forwarded, forwardedTime)
	}
}
