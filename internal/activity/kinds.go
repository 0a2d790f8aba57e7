package activity

// Event carries a payload between two components across a Link. The
// payload is opaque to the vortex; Deliver is bound by the link
// package at send time and runs the receiving endpoint's handler (or
// enqueues it for polling) when the vortex executes this activity.
type Event struct {
	Base
	LinkID  int32
	Payload any
	Deliver func(payload any)
}

func NewEvent(deliveryTime uint64, linkID int32, payload any) *Event {
	return &Event{Base: NewBase(deliveryTime, PrioEvent), LinkID: linkID, Payload: payload}
}

func (e *Event) Kind() Kind { return KindEvent }
func (e *Event) Execute() {
	if e.Deliver != nil {
		e.Deliver(e.Payload)
	}
}

// ClockTick fires a Clock's registered handlers for one cycle. It
// carries no payload: clock.Clock.Execute does the work and
// reschedules itself.
type ClockTick struct {
	Base
	Fire func()
}

func NewClockTick(deliveryTime uint64, fire func()) *ClockTick {
	return &ClockTick{Base: NewBase(deliveryTime, PrioClockTick), Fire: fire}
}

func (c *ClockTick) Kind() Kind { return KindClockTick }
func (c *ClockTick) Execute() {
	if c.Fire != nil {
		c.Fire()
	}
}

// OneShotFire fires a single registered one-shot callback exactly
// once, then is discarded; it does not reschedule itself the way
// ClockTick does.
type OneShotFire struct {
	Base
	Fire func()
}

func NewOneShotFire(deliveryTime uint64, fire func()) *OneShotFire {
	return &OneShotFire{Base: NewBase(deliveryTime, PrioOneShotFire), Fire: fire}
}

func (o *OneShotFire) Kind() Kind { return KindOneShotFire }
func (o *OneShotFire) Execute() {
	if o.Fire != nil {
		o.Fire()
	}
}

// Stop is the sentinel activity that ends the run loop. The engine
// inserts one at the configured stop-at time, and another at
// timebase.MaxCoreTime as a backstop so the vortex is never drained
// without an explicit end.
type Stop struct {
	Base
	Reason string
	Signal func(reason string)
}

func NewStop(deliveryTime uint64, reason string, signal func(string)) *Stop {
	return &Stop{Base: NewBase(deliveryTime, PrioStop), Reason: reason, Signal: signal}
}

func (s *Stop) Kind() Kind { return KindStop }
func (s *Stop) Execute() {
	if s.Signal != nil {
		s.Signal(s.Reason)
	}
}

// Checkpoint is a self-scheduling periodic activity that asks the
// simulation driver to snapshot state at its delivery time, then
// reschedules itself for period ticks later.
type Checkpoint struct {
	Base
	Period uint64
	Fire   func(now uint64)
}

func NewCheckpoint(deliveryTime, period uint64, fire func(uint64)) *Checkpoint {
	return &Checkpoint{Base: NewBase(deliveryTime, PrioCheckpoint), Period: period, Fire: fire}
}

func (c *Checkpoint) Kind() Kind { return KindCheckpoint }
func (c *Checkpoint) Execute() {
	if c.Fire != nil {
		c.Fire(c.DeliveryTime())
	}
}

// Interactive runs a closure on the simulation goroutine between
// ordinary activities. The console server does not push it; console
// requests read simulation state from their own goroutines.
type Interactive struct {
	Base
	Fire func()
}

func NewInteractive(deliveryTime uint64, fire func()) *Interactive {
	return &Interactive{Base: NewBase(deliveryTime, PrioInteractive), Fire: fire}
}

func (i *Interactive) Kind() Kind { return KindInteractive }
func (i *Interactive) Execute() {
	if i.Fire != nil {
		i.Fire()
	}
}

// SyncPoint marks the next cross-partition synchronization boundary;
// the sync manager reschedules it after every successful exchange.
type SyncPoint struct {
	Base
	Fire func(now uint64)
}

func NewSyncPoint(deliveryTime uint64, fire func(uint64)) *SyncPoint {
	return &SyncPoint{Base: NewBase(deliveryTime, PrioSyncPoint), Fire: fire}
}

func (s *SyncPoint) Kind() Kind { return KindSyncPoint }
func (s *SyncPoint) Execute() {
	if s.Fire != nil {
		s.Fire(s.DeliveryTime())
	}
}

// Heartbeat periodically reports progress (wall-clock pace, queue
// depth) and reschedules itself.
type Heartbeat struct {
	Base
	Period uint64
	Fire   func(now uint64)
}

func NewHeartbeat(deliveryTime, period uint64, fire func(uint64)) *Heartbeat {
	return &Heartbeat{Base: NewBase(deliveryTime, PrioHeartbeat), Period: period, Fire: fire}
}

func (h *Heartbeat) Kind() Kind { return KindHeartbeat }
func (h *Heartbeat) Execute() {
	if h.Fire != nil {
		h.Fire(h.DeliveryTime())
	}
}

// ExitCheck periodically polls whether every primary component has
// released its exit hold, ending the run early when so.
type ExitCheck struct {
	Base
	Period uint64
	Fire   func(now uint64)
}

func NewExitCheck(deliveryTime, period uint64, fire func(uint64)) *ExitCheck {
	return &ExitCheck{Base: NewBase(deliveryTime, PrioExitCheck), Period: period, Fire: fire}
}

func (e *ExitCheck) Kind() Kind { return KindExitCheck }
func (e *ExitCheck) Execute() {
	if e.Fire != nil {
		e.Fire(e.DeliveryTime())
	}
}
