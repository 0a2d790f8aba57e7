package simulation

import (
	"fmt"

	"github.com/sstgo/corevortex"
	"github.com/sstgo/corevortex/internal/clock"
	"github.com/sstgo/corevortex/internal/component"
)

// clockKey identifies the shared Clock for a (period, priority) pair,
// per spec.md §4.3: components registering the same period and
// priority tick together off one underlying Clock.
type clockKey struct {
	period   uint64
	priority int
}

// clockHandle is the concrete value behind a component.ClockHandle
// returned by runtime.RegisterClock.
type clockHandle struct {
	clock *clock.Clock
	id    clock.HandlerID
}

// runtime implements component.Runtime for one component instance,
// bound to the Simulation it belongs to and the Info node the driver
// is finishing construction of when Factory.Create is called.
type runtime struct {
	sim  *Simulation
	info *component.Info
}

func newRuntime(sim *Simulation, info *component.Info) *runtime {
	return &runtime{sim: sim, info: info}
}

func (r *runtime) Now() uint64 { return r.sim.CurrentCycle() }

// RegisterClock resolves period against the partition's time base and
// hands the handler to the shared Clock for that (period, priority),
// creating it on first use.
func (r *runtime) RegisterClock(period string, priority int, handler component.ClockHandler) (component.ClockHandle, error) {
	conv, err := r.sim.timeLord.GetTimeConverter(period)
	if err != nil {
		return nil, corevortex.Fatal(corevortex.UnitParseError, r.sim.Rank, r.sim.Thread,
			fmt.Sprintf("registering clock at period %q", period), err)
	}
	c := r.sim.clockFor(conv.ToCore(1), priority)
	id := c.RegisterHandler(clock.Handler(handler))
	return clockHandle{clock: c, id: id}, nil
}

func (r *runtime) UnregisterClock(h component.ClockHandle) {
	ch, ok := h.(clockHandle)
	if !ok || ch.clock == nil {
		return
	}
	ch.clock.UnregisterHandler(ch.id)
}

// BecomePrimary opts this component into exit-refcount accounting.
// Simulation.New tallies primary components after every Create call
// returns, so it is safe to call from inside Create.
func (r *runtime) BecomePrimary() {
	r.info.SetPrimary(true)
}

// Hold and Release reach r.sim.exit by pointer: New builds the Exit
// only after every component has been created, but by the time a
// component's lifecycle methods (Init/Setup/Run handlers) run and
// could call Hold/Release, New has already returned and s.exit is set.
func (r *runtime) Hold() {
	if r.sim.exit != nil {
		r.sim.exit.Hold()
	}
}

func (r *runtime) Release() {
	if r.sim.exit != nil {
		r.sim.exit.Release()
	}
}

// clockFor returns the shared Clock for (periodCore, priority),
// creating it on first use.
func (s *Simulation) clockFor(periodCore uint64, priority int) *clock.Clock {
	key := clockKey{period: periodCore, priority: priority}

	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	if s.clocks == nil {
		s.clocks = map[clockKey]*clock.Clock{}
	}
	if c, ok := s.clocks[key]; ok {
		return c
	}
	c := clock.New(periodCore, priority, nil, s.CurrentCycle, s.vortex.Push)
	s.clocks[key] = c
	return c
}
