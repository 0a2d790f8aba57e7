// Package builtin provides a minimal component.Factory with four demo
// component kinds, standing in for the plugin ecosystem that is out
// of scope for this engine: a way for `vortexd run` to drive an
// actual simulation graph without a dynamic plugin loader. Real
// deployments supply their own component.Factory; this one exists so
// the binary is runnable against a plain YAML config out of the box.
package builtin

import (
	"fmt"

	"github.com/sstgo/corevortex/internal/checkpoint"
	"github.com/sstgo/corevortex/internal/component"
	"github.com/sstgo/corevortex/internal/link"
)

// Factory instantiates the "pulse_source", "counter_sink",
// "polling_source" and "polling_sink" demo kinds.
type Factory struct{}

func (Factory) ContainsComponent(kind string) bool {
	switch kind {
	case "pulse_source", "counter_sink", "polling_source", "polling_sink":
		return true
	default:
		return false
	}
}

func (Factory) Create(kind string, id component.ID, rt component.Runtime, params component.Params) (component.Lifecycle, error) {
	switch kind {
	case "pulse_source":
		return newPulseSource(params), nil
	case "counter_sink":
		return newCounterSink(), nil
	case "polling_source":
		return newPollingSource(rt, params), nil
	case "polling_sink":
		return newPollingSink(rt, params), nil
	default:
		return nil, fmt.Errorf("builtin: unknown component kind %q", kind)
	}
}

// PulseSource sends a fixed message on its bound output port once,
// at Setup time. The "message" param overrides the default payload.
type PulseSource struct {
	message string
	out     *link.Link
}

func newPulseSource(params component.Params) *PulseSource {
	msg := "pulse"
	if v, ok := params["message"]; ok {
		if s, ok := v.(string); ok && s != "" {
			msg = s
		}
	}
	return &PulseSource{message: msg}
}

func (p *PulseSource) BindPort(port string, l *link.Link) { p.out = l }
func (p *PulseSource) Init(phase int)                     {}
func (p *PulseSource) Complete(phase int)                 {}
func (p *PulseSource) Setup() {
	if p.out != nil {
		p.out.Send(0, p.message)
	}
}
func (p *PulseSource) Finish()            {}
func (p *PulseSource) EmergencyShutdown() {}

// CounterSink counts every payload delivered to its bound input port.
// It implements Checkpointable so a run can demonstrate a full
// snapshot/restore cycle against real component state.
type CounterSink struct {
	in    *link.Link
	count uint64
}

func newCounterSink() *CounterSink {
	return &CounterSink{}
}

func (c *CounterSink) BindPort(port string, l *link.Link) {
	c.in = l
	l.SetHandler(func(payload any) { c.count++ })
}
func (c *CounterSink) Init(phase int)     {}
func (c *CounterSink) Complete(phase int) {}
func (c *CounterSink) Setup()             {}
func (c *CounterSink) Finish()            {}
func (c *CounterSink) EmergencyShutdown() {}

// Count returns how many payloads this sink has received so far.
func (c *CounterSink) Count() uint64 { return c.count }

// Serialize implements simulation.Checkpointable.
func (c *CounterSink) Serialize(s *checkpoint.Serializer) {
	s.Uint64(&c.count)
}

// PollingSource sends one payload immediately at Setup, then one more
// every 10ns off a registered clock, demonstrating a sender feeding a
// polling-kind peer with no handler of its own.
type PollingSource struct {
	rt       component.Runtime
	out      *link.Link
	payloads []any
	sent     int
}

func newPollingSource(rt component.Runtime, params component.Params) *PollingSource {
	return &PollingSource{rt: rt, payloads: []any{"p0", "p1", "p2"}}
}

func (p *PollingSource) BindPort(port string, l *link.Link) { p.out = l }
func (p *PollingSource) Init(phase int)                     {}
func (p *PollingSource) Complete(phase int)                 {}
func (p *PollingSource) Setup() {
	if p.out == nil || len(p.payloads) == 0 {
		return
	}
	p.out.Send(0, p.payloads[0])
	p.sent = 1
	if p.rt == nil || p.sent >= len(p.payloads) {
		return
	}
	_, _ = p.rt.RegisterClock("10ns", 0, func(uint64) (unregister bool) {
		p.out.Send(p.rt.Now(), p.payloads[p.sent])
		p.sent++
		return p.sent >= len(p.payloads)
	})
}
func (p *PollingSource) Finish()            {}
func (p *PollingSource) EmergencyShutdown() {}

// PollingSink polls its bound input port off a registered clock rather
// than installing a handler, counting every non-null receive.
type PollingSink struct {
	rt       component.Runtime
	in       *link.Link
	count    uint64
	received []any
}

func newPollingSink(rt component.Runtime, params component.Params) *PollingSink {
	return &PollingSink{rt: rt}
}

func (p *PollingSink) BindPort(port string, l *link.Link) { p.in = l }
func (p *PollingSink) Init(phase int)                     {}
func (p *PollingSink) Complete(phase int)                 {}
func (p *PollingSink) Setup() {
	if p.rt == nil {
		return
	}
	_, _ = p.rt.RegisterClock("3ns", 0, func(uint64) (unregister bool) {
		if p.in == nil {
			return false
		}
		if payload, _, ok := p.in.Recv(); ok {
			p.count++
			p.received = append(p.received, payload)
		}
		return false
	})
}
func (p *PollingSink) Finish()            {}
func (p *PollingSink) EmergencyShutdown() {}

// Count returns how many non-null polls this sink has observed.
func (p *PollingSink) Count() uint64 { return p.count }

// Received returns the payloads polled so far, in arrival order.
func (p *PollingSink) Received() []any { return p.received }
