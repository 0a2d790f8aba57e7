package simulation

import (
	"context"
	"errors"
	"testing"

	"github.com/sstgo/corevortex"
	"github.com/sstgo/corevortex/internal/activity"
	"github.com/sstgo/corevortex/internal/component"
	"github.com/sstgo/corevortex/internal/config"
	"github.com/sstgo/corevortex/internal/link"
)

// pingSource sends a single "ping" on its bound port during Setup.
type pingSource struct {
	link *link.Link
}

func (p *pingSource) BindPort(port string, l *link.Link) { p.link = l }
func (p *pingSource) Init(phase int)                     {}
func (p *pingSource) Complete(phase int)                 {}
func (p *pingSource) Setup() {
	if p.link != nil {
		p.link.Send(0, "ping")
	}
}
func (p *pingSource) Finish()            {}
func (p *pingSource) EmergencyShutdown() {}

// pingSink records everything delivered to its bound port.
type pingSink struct {
	link     *link.Link
	received []string
}

func (p *pingSink) BindPort(port string, l *link.Link) { p.link = l }
func (p *pingSink) Init(phase int)                     {}
func (p *pingSink) Complete(phase int)                 {}
func (p *pingSink) Setup() {
	if p.link != nil {
		p.link.SetHandler(func(payload any) {
			p.received = append(p.received, payload.(string))
		})
	}
}
func (p *pingSink) Finish()            {}
func (p *pingSink) EmergencyShutdown() {}

type pingFactory struct {
	source *pingSource
	sink   *pingSink
}

func (f *pingFactory) ContainsComponent(kind string) bool {
	return kind == "ping_source" || kind == "ping_sink"
}

func (f *pingFactory) Create(kind string, id component.ID, rt component.Runtime, params component.Params) (component.Lifecycle, error) {
	switch kind {
	case "ping_source":
		f.source = &pingSource{}
		return f.source, nil
	case "ping_sink":
		f.sink = &pingSink{}
		return f.sink, nil
	default:
		return nil, errors.New("unknown kind")
	}
}

func pingConfig() *config.Config {
	return &config.Config{
		TimeBase: "1ns",
		Ranks:    1,
		Threads:  1,
		Components: []config.ComponentSpec{
			{
				Name: "source", Type: "ping_source", Rank: 0,
				Links: []config.LinkSpec{{Port: "out", Peer: "sink", PeerPort: "in", Latency: "5ns"}},
			},
			{Name: "sink", Type: "ping_sink", Rank: 0},
		},
	}
}

func TestLifecycleDeliversEventAcrossLatency(t *testing.T) {
	factory := &pingFactory{}
	sim, err := New(pingConfig(), 0, 0, Options{Factory: factory})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	if err := sim.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	sim.Setup(SetupOptions{StopAtCore: 100})

	result, err := sim.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.EndCycle != 100 {
		t.Errorf("EndCycle = %d, want 100", result.EndCycle)
	}
	if result.Reason != "stop-at reached" {
		t.Errorf("Reason = %q, want \"stop-at reached\"", result.Reason)
	}

	if len(factory.sink.received) != 1 || factory.sink.received[0] != "ping" {
		t.Fatalf("sink received = %v, want [ping]", factory.sink.received)
	}

	if err := sim.Complete(ctx); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	sim.Finish()
}

func TestRunEndsWhenVortexDrainsWithoutStop(t *testing.T) {
	sim, err := New(&config.Config{TimeBase: "1ns", Ranks: 1, Threads: 1}, 0, 0, Options{Factory: &pingFactory{}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sim.vortex.Push(activity.NewOneShotFire(5, func() {}))

	result, err := sim.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Reason != "vortex drained without a Stop activity" {
		t.Errorf("Reason = %q", result.Reason)
	}
}

func TestRunDetectsTimeFault(t *testing.T) {
	sim, err := New(&config.Config{TimeBase: "1ns", Ranks: 1, Threads: 1}, 0, 0, Options{Factory: &pingFactory{}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	badRan := false
	v := sim.Vortex()
	v.Push(activity.NewOneShotFire(10, func() {
		v.Push(activity.NewOneShotFire(8, func() { badRan = true }))
	}))
	v.Push(activity.NewStop(100, "backstop", func(string) {}))

	_, err = sim.Run(context.Background())
	if err == nil {
		t.Fatal("expected a time fault error")
	}
	var fe *corevortex.FatalError
	if !errors.As(err, &fe) {
		t.Fatalf("error is not a *corevortex.FatalError: %v", err)
	}
	if fe.Kind != corevortex.TimeFault {
		t.Errorf("Kind = %v, want TimeFault", fe.Kind)
	}
	if !badRan {
		t.Error("the backward-time activity should still have executed before the fault aborted the run")
	}
}

// pongComponent is one side of a bidirectional ping-pong: it resends
// whatever it receives with the payload incremented by one, after
// zero additional delay (the link's own latency does the rest). A
// seed component also sends the opening event during Setup.
type pongComponent struct {
	rt       component.Runtime
	link     *link.Link
	seed     bool
	received []int
}

func (p *pongComponent) BindPort(port string, l *link.Link) { p.link = l }
func (p *pongComponent) Init(phase int)                     {}
func (p *pongComponent) Complete(phase int)                 {}
func (p *pongComponent) Setup() {
	if p.link == nil {
		return
	}
	p.link.SetHandler(func(payload any) {
		v := payload.(int)
		p.received = append(p.received, v)
		p.link.Send(p.rt.Now(), v+1)
	})
	if p.seed {
		p.link.Send(0, 0)
	}
}
func (p *pongComponent) Finish()            {}
func (p *pongComponent) EmergencyShutdown() {}

type pongFactory struct {
	a, b *pongComponent
}

func (f *pongFactory) ContainsComponent(kind string) bool { return kind == "pong" }

func (f *pongFactory) Create(kind string, id component.ID, rt component.Runtime, params component.Params) (component.Lifecycle, error) {
	if kind != "pong" {
		return nil, errors.New("unknown kind")
	}
	c := &pongComponent{rt: rt}
	if v, ok := params["seed"]; ok && v == "true" {
		c.seed = true
	}
	if f.a == nil {
		f.a = c
	} else {
		f.b = c
	}
	return c, nil
}

func pongConfig() *config.Config {
	return &config.Config{
		TimeBase: "1ns",
		Ranks:    1,
		Threads:  1,
		Components: []config.ComponentSpec{
			{
				Name: "a", Type: "pong", Rank: 0,
				Params: map[string]string{"seed": "true"},
				Links:  []config.LinkSpec{{Port: "p", Peer: "b", PeerPort: "p", Latency: "5ns"}},
			},
			{Name: "b", Type: "pong", Rank: 0},
		},
	}
}

func TestRunPingPongDeliversExactlyTwentyEvents(t *testing.T) {
	factory := &pongFactory{}
	sim, err := New(pongConfig(), 0, 0, Options{Factory: factory})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	if err := sim.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	sim.Setup(SetupOptions{StopAtCore: 100})

	result, err := sim.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.EndCycle != 100 {
		t.Errorf("EndCycle = %d, want 100", result.EndCycle)
	}

	total := len(factory.a.received) + len(factory.b.received)
	if total != 20 {
		t.Errorf("total delivered = %d, want 20", total)
	}
	last := factory.a.received[len(factory.a.received)-1]
	if last != 19 {
		t.Errorf("last payload observed = %d, want 19", last)
	}
}

// clockCounter increments a counter on every tick of a registered
// clock, never unregistering.
type clockCounter struct {
	rt    component.Runtime
	count int
}

func (c *clockCounter) BindPort(port string, l *link.Link) {}
func (c *clockCounter) Init(phase int)                     {}
func (c *clockCounter) Complete(phase int)                 {}
func (c *clockCounter) Setup() {
	if c.rt == nil {
		return
	}
	c.rt.RegisterClock("1ns", 0, func(uint64) (unregister bool) {
		c.count++
		return false
	})
}
func (c *clockCounter) Finish()            {}
func (c *clockCounter) EmergencyShutdown() {}

type clockCounterFactory struct {
	inst *clockCounter
}

func (f *clockCounterFactory) ContainsComponent(kind string) bool { return kind == "clock_counter" }

func (f *clockCounterFactory) Create(kind string, id component.ID, rt component.Runtime, params component.Params) (component.Lifecycle, error) {
	if kind != "clock_counter" {
		return nil, errors.New("unknown kind")
	}
	f.inst = &clockCounter{rt: rt}
	return f.inst, nil
}

func TestClockDrivenCounterReachesExpectedTicks(t *testing.T) {
	cfg := &config.Config{
		TimeBase:   "1ns",
		Ranks:      1,
		Threads:    1,
		Components: []config.ComponentSpec{{Name: "counter", Type: "clock_counter", Rank: 0}},
	}
	factory := &clockCounterFactory{}
	sim, err := New(cfg, 0, 0, Options{Factory: factory})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	if err := sim.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	sim.Setup(SetupOptions{StopAtCore: 1000})

	if _, err := sim.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if factory.inst.count != 1000 {
		t.Errorf("count = %d, want 1000", factory.inst.count)
	}
}

// selfCancelClock registers two handlers on the same (period, priority)
// clock: one counts forever, the other unregisters itself on its 5th
// call.
type selfCancelClock struct {
	rt          component.Runtime
	incCount    int
	cancelCount int
}

func (s *selfCancelClock) BindPort(port string, l *link.Link) {}
func (s *selfCancelClock) Init(phase int)                     {}
func (s *selfCancelClock) Complete(phase int)                 {}
func (s *selfCancelClock) Setup() {
	if s.rt == nil {
		return
	}
	s.rt.RegisterClock("1ns", 0, func(uint64) (unregister bool) {
		s.incCount++
		return false
	})
	s.rt.RegisterClock("1ns", 0, func(uint64) (unregister bool) {
		s.cancelCount++
		return s.cancelCount == 5
	})
}
func (s *selfCancelClock) Finish()            {}
func (s *selfCancelClock) EmergencyShutdown() {}

type selfCancelFactory struct {
	inst *selfCancelClock
}

func (f *selfCancelFactory) ContainsComponent(kind string) bool { return kind == "self_cancel" }

func (f *selfCancelFactory) Create(kind string, id component.ID, rt component.Runtime, params component.Params) (component.Lifecycle, error) {
	if kind != "self_cancel" {
		return nil, errors.New("unknown kind")
	}
	f.inst = &selfCancelClock{rt: rt}
	return f.inst, nil
}

func TestSelfCancellingClockHandlerStopsAtFifthCall(t *testing.T) {
	cfg := &config.Config{
		TimeBase:   "1ns",
		Ranks:      1,
		Threads:    1,
		Components: []config.ComponentSpec{{Name: "c", Type: "self_cancel", Rank: 0}},
	}
	factory := &selfCancelFactory{}
	sim, err := New(cfg, 0, 0, Options{Factory: factory})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	if err := sim.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	sim.Setup(SetupOptions{StopAtCore: 10})

	if _, err := sim.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if factory.inst.incCount != 10 {
		t.Errorf("incCount = %d, want 10", factory.inst.incCount)
	}
	if factory.inst.cancelCount != 5 {
		t.Errorf("cancelCount = %d, want 5", factory.inst.cancelCount)
	}
}

func TestInitQuiescesWithNoUntimedTraffic(t *testing.T) {
	sim, err := New(pingConfig(), 0, 0, Options{Factory: &pingFactory{}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := sim.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
}
