// Package clock implements the periodic tick scheduler components
// register callbacks against. One Clock exists per distinct
// (period, priority) pair in use on a partition; components sharing a
// period and priority share the same Clock and are ticked together.
package clock

import (
	"sync"

	"github.com/sstgo/corevortex/internal/activity"
	"github.com/sstgo/corevortex/internal/timebase"
)

// Handler is a clock callback. Returning true unregisters it — the
// conventional way a component stops ticking without tearing down the
// whole Clock.
type Handler func(currentCycle uint64) (unregister bool)

// Clock ticks every Period core ticks, starting from whatever core
// time it is first scheduled at, and fires its registered handlers in
// registration order on each tick.
type Clock struct {
	mu sync.Mutex

	period   uint64
	priority int
	conv     *timebase.TimeConverter

	handlers  []registeredHandler
	nextID    int
	scheduled bool
	currentCycle uint64

	now  func() uint64
	push func(a activity.Activity)
}

type registeredHandler struct {
	id int
	fn Handler
}

// HandlerID identifies a previously-registered Handler for
// unregistration; the zero value never denotes a real registration.
type HandlerID int

// New returns a Clock ticking every period core ticks at the given
// activity priority. now returns the partition's current core time;
// push schedules the clock's next tick onto the vortex.
func New(period uint64, priority int, conv *timebase.TimeConverter, now func() uint64, push func(activity.Activity)) *Clock {
	return &Clock{period: period, priority: priority, conv: conv, now: now, push: push}
}

// Period returns the clock's tick period in core ticks.
func (c *Clock) Period() uint64 { return c.period }

// RegisterHandler adds h to the set of callbacks fired on every tick,
// scheduling the clock's first tick if this is its first handler. The
// returned HandlerID is the only way to unregister h later, since Go
// func values are not otherwise comparable.
func (c *Clock) RegisterHandler(h Handler) HandlerID {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.handlers = append(c.handlers, registeredHandler{id: id, fn: h})
	needSchedule := !c.scheduled
	c.mu.Unlock()
	if needSchedule {
		c.schedule()
	}
	return HandlerID(id)
}

// UnregisterHandler removes the handler registered under id. empty
// reports whether no handlers remain registered, mirroring
// Clock::unregisterHandler's bool out-param in the original.
func (c *Clock) UnregisterHandler(id HandlerID) (empty bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, reg := range c.handlers {
		if reg.id == int(id) {
			c.handlers = append(c.handlers[:i], c.handlers[i+1:]...)
			break
		}
	}
	return len(c.handlers) == 0
}

// GetNextCycle returns the cycle number the clock will next execute,
// updating currentCycle from the wall of core time first if the clock
// was not already scheduled.
func (c *Clock) GetNextCycle() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.scheduled {
		c.updateCurrentCycleLocked()
	}
	return c.currentCycle + 1
}

func (c *Clock) updateCurrentCycleLocked() {
	now := c.now()
	c.currentCycle = now / c.period
}

// Execute runs all registered handlers for the current tick, removing
// any that return true, then reschedules the next tick unless no
// handlers remain.
func (c *Clock) Execute(fireTime uint64) {
	c.mu.Lock()
	if len(c.handlers) == 0 {
		c.scheduled = false
		c.mu.Unlock()
		return
	}
	c.currentCycle++
	handlers := c.handlers
	c.mu.Unlock()

	kept := handlers[:0:0]
	for _, h := range handlers {
		if !h.fn(c.currentCycle) {
			kept = append(kept, h)
		}
	}

	c.mu.Lock()
	c.handlers = kept
	empty := len(c.handlers) == 0
	if empty {
		c.scheduled = false
		c.mu.Unlock()
		return
	}
	next := fireTime + c.period
	c.mu.Unlock()

	c.pushTick(next)
}

// schedule computes the clock's next fire time from the current core
// time and pushes its first ClockTick activity. The first tick is
// always the next period boundary strictly after now; the "fire at
// now" case is only available through ScheduleAt.
func (c *Clock) schedule() {
	now := c.now()

	c.mu.Lock()
	c.currentCycle = now / c.period
	next := c.currentCycle*c.period + c.period
	c.scheduled = true
	c.mu.Unlock()

	c.pushTick(next)
}

// ScheduleAt forces the clock's next tick to fire at an explicit
// core time rather than the computed period boundary, implementing
// clock.cc's "fire at now" carve-out. The caller decides whether that
// carve-out applies, since it depends on the currently-executing
// activity's priority, which the Clock itself does not observe. The
// simulation's component runtime does not call it: RegisterClock
// always goes through schedule.
func (c *Clock) ScheduleAt(now uint64) {
	c.mu.Lock()
	c.currentCycle = now / c.period
	c.scheduled = true
	c.mu.Unlock()
	c.pushTick(now)
}

func (c *Clock) pushTick(fireTime uint64) {
	if c.push == nil {
		return
	}
	tick := &activity.ClockTick{
		Base: activity.NewBase(fireTime, c.priority),
		Fire: func() { c.Execute(fireTime) },
	}
	c.push(tick)
}
