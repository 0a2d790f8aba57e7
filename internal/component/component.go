// Package component implements the component tree: identity,
// tree structure, port-to-link binding, and the Factory interface
// external plugins implement to be instantiated into a run.
package component

import (
	"fmt"

	"github.com/sstgo/corevortex/internal/timebase"
)

// ID packs a component's tree position into a single comparable
// value: rank in the high bits, a per-rank monotonic serial in the
// low bits. This mirrors ComponentId_t's bit layout in the original,
// trading a 64-bit pointer-sized handle for one that round-trips
// through a checkpoint without needing pointer-fixup.
type ID uint64

const rankShift = 32

// NewID packs a (rank, serial) pair into an ID.
func NewID(rank uint32, serial uint32) ID {
	return ID(uint64(rank)<<rankShift | uint64(serial))
}

// Rank extracts the partition rank this component belongs to.
func (id ID) Rank() uint32 { return uint32(id >> rankShift) }

// Serial extracts the per-rank monotonic serial.
func (id ID) Serial() uint32 { return uint32(id) }

func (id ID) String() string { return fmt.Sprintf("%d:%d", id.Rank(), id.Serial()) }

// Lifecycle is implemented by every instantiated component (and
// subcomponent). Init/Complete run during the untimed configuration
// rounds; Setup/Finish bracket the timed run; EmergencyShutdown is
// invoked on every live component during a fault abort and must not
// block or panic.
type Lifecycle interface {
	Init(phase int)
	Complete(phase int)
	Setup()
	Finish()
	EmergencyShutdown()
}

// Params is the opaque parameter set passed to a Factory's Create
// method; component packages type-assert or decode the concrete
// fields they expect out of it.
type Params map[string]any

// ClockHandler is a component's callback for a registered clock tick.
// Returning true unregisters it, the same convention clock.Handler
// uses.
type ClockHandler func(currentCycle uint64) (unregister bool)

// ClockHandle identifies a previously-registered clock handler so it
// can be unregistered later. It is opaque outside the package that
// implements Runtime (the simulation driver), which knows which
// underlying clock it belongs to.
type ClockHandle any

// Runtime is the callback surface a component instance receives at
// creation time to reach back into the engine: registering a clock,
// querying the current core time, and holding or releasing the run's
// exit refcount. spec.md §4.4 calls this "the instance receives its
// id and can call back into the core to register clocks, configure
// links, query time, and register as a primary (exit-counting)
// component" — port/link configuration is handled separately, through
// PortBinder, since it needs the peer graph the Factory does not see.
type Runtime interface {
	// Now returns the partition's current core time.
	Now() uint64
	// RegisterClock adds handler to the clock ticking every period
	// (a UnitAlgebra string such as "1ns") at priority, sharing the
	// underlying Clock with any other handler already registered at
	// the same (period, priority). The period string is taken against
	// the partition's configured time base, not the component's.
	RegisterClock(period string, priority int, handler ClockHandler) (ClockHandle, error)
	// UnregisterClock removes a handler added by RegisterClock.
	UnregisterClock(h ClockHandle)
	// BecomePrimary marks this component as holding an exit refcount:
	// the run cannot end until every primary component has released
	// it via Release. Components are not primary by default; calling
	// this during Create is the idiomatic place to opt in.
	BecomePrimary()
	// Hold increments the exit refcount, for a primary component that
	// determines mid-run it has more work after all.
	Hold()
	// Release decrements the exit refcount, for a primary component
	// that has no more work to hold the run open for.
	Release()
}

// Factory is implemented outside this package (typically generated or
// hand-written per plugin library) to instantiate a named component
// or subcomponent kind.
type Factory interface {
	// Create instantiates the named component kind with the given
	// parameters and runtime callback surface, returning a value
	// satisfying Lifecycle.
	Create(kind string, id ID, rt Runtime, params Params) (Lifecycle, error)
	// ContainsComponent reports whether kind is registered, so
	// configuration validation can fail fast before Create.
	ContainsComponent(kind string) bool
}

// Info is the tree node wrapping an instantiated component: its
// identity, its instance, its children (subcomponents), and the time
// base it was configured with.
type Info struct {
	ID       ID
	Name     string
	Kind     string
	Instance Lifecycle
	Parent   *Info
	Children []*Info

	TimeBase *timebase.TimeConverter

	// isPrimary marks a component that holds an exit refcount: the
	// run cannot end until every primary component has released it.
	isPrimary bool
}

// NewInfo wraps an instantiated component as a tree node. parent is
// nil for a top-level component.
func NewInfo(id ID, name, kind string, instance Lifecycle, parent *Info) *Info {
	info := &Info{ID: id, Name: name, Kind: kind, Instance: instance, Parent: parent}
	if parent != nil {
		parent.Children = append(parent.Children, info)
	}
	return info
}

// SetPrimary marks this component as holding an exit refcount.
func (i *Info) SetPrimary(primary bool) { i.isPrimary = primary }

// IsPrimary reports whether this component holds an exit refcount.
func (i *Info) IsPrimary() bool { return i.isPrimary }

// Walk calls fn for this node and every descendant, depth-first,
// children visited in registration order (matching the original's
// ordered-child-iteration guarantee that checkpoint traversal order
// is deterministic).
func (i *Info) Walk(fn func(*Info)) {
	fn(i)
	for _, c := range i.Children {
		c.Walk(fn)
	}
}

// Find locates the descendant (or self) with the given ID, or nil.
func (i *Info) Find(id ID) *Info {
	var found *Info
	i.Walk(func(n *Info) {
		if found == nil && n.ID == id {
			found = n
		}
	})
	return found
}
