// Package activity defines the unit of work scheduled by the time
// vortex: anything with a delivery time and a priority that the
// engine's main loop can pop and execute in order.
package activity

import "fmt"

// Kind distinguishes the concrete Activity variants the vortex must
// be able to order and dispatch.
type Kind int

const (
	KindEvent Kind = iota
	KindClockTick
	KindOneShotFire
	KindStop
	KindCheckpoint
	KindInteractive
	KindSyncPoint
	KindHeartbeat
	KindExitCheck
)

func (k Kind) String() string {
	switch k {
	case KindEvent:
		return "Event"
	case KindClockTick:
		return "ClockTick"
	case KindOneShotFire:
		return "OneShotFire"
	case KindStop:
		return "Stop"
	case KindCheckpoint:
		return "Checkpoint"
	case KindInteractive:
		return "Interactive"
	case KindSyncPoint:
		return "SyncPoint"
	case KindHeartbeat:
		return "Heartbeat"
	case KindExitCheck:
		return "ExitCheck"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Priority orders activities scheduled for the same core tick. Lower
// values run first. The bands mirror the relative ordering components
// rely on: clocks must tick before ordinary events at the same time
// are considered delivered, and shutdown bookkeeping must run last.
const (
	PrioSyncPoint    = 20
	PrioClockTick    = 40
	PrioEvent        = 50
	PrioOneShotFire  = 60
	PrioCheckpoint   = 70
	PrioHeartbeat    = 80
	PrioInteractive  = 90
	PrioExitCheck    = 95
	PrioStop         = 99
)

// Activity is anything the vortex can order and the engine can
// execute. InsertionOrder is assigned once, by the vortex, at push
// time, and must not change afterward — it is the final tiebreaker
// that makes delivery order deterministic for activities that share
// both a delivery time and a priority.
type Activity interface {
	Kind() Kind
	DeliveryTime() uint64
	Priority() int
	InsertionOrder() uint64
	SetInsertionOrder(order uint64)
	Execute()
}

// Base is embedded by every concrete Activity to provide the common
// delivery-time/priority/insertion-order bookkeeping.
type Base struct {
	deliveryTime uint64
	priority     int
	order        uint64
	orderSet     bool
}

// NewBase constructs the common fields of an Activity.
func NewBase(deliveryTime uint64, priority int) Base {
	return Base{deliveryTime: deliveryTime, priority: priority}
}

func (b *Base) DeliveryTime() uint64 { return b.deliveryTime }
func (b *Base) Priority() int        { return b.priority }
func (b *Base) InsertionOrder() uint64 {
	return b.order
}

// SetInsertionOrder may only be called once; a second call is a bug
// in the vortex (an activity was pushed twice) and panics rather than
// silently corrupting delivery order.
func (b *Base) SetInsertionOrder(order uint64) {
	if b.orderSet {
		panic("activity: insertion order already set")
	}
	b.order = order
	b.orderSet = true
}

// SetDeliveryTime allows a scheduler (e.g. Clock) to retarget an
// activity it owns before re-pushing it; it must only be called while
// the activity is not currently queued in the vortex.
func (b *Base) SetDeliveryTime(t uint64) { b.deliveryTime = t }
