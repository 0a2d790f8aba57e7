package builtin

import (
	"context"
	"testing"

	"github.com/sstgo/corevortex/internal/checkpoint"
	"github.com/sstgo/corevortex/internal/component"
	"github.com/sstgo/corevortex/internal/config"
	"github.com/sstgo/corevortex/internal/simulation"
)

func demoConfig() *config.Config {
	return &config.Config{
		TimeBase: "1ns",
		Ranks:    1,
		Threads:  1,
		Components: []config.ComponentSpec{
			{
				Name: "source", Type: "pulse_source", Rank: 0,
				Params: map[string]string{"message": "hello"},
				Links:  []config.LinkSpec{{Port: "out", Peer: "sink", PeerPort: "in", Latency: "2ns"}},
			},
			{Name: "sink", Type: "counter_sink", Rank: 0},
		},
	}
}

// trackingFactory wraps Factory to hand the test a reference to the
// sink instance it creates.
type trackingFactory struct {
	sink *CounterSink
}

func (f *trackingFactory) ContainsComponent(kind string) bool {
	return Factory{}.ContainsComponent(kind)
}

func (f *trackingFactory) Create(kind string, id component.ID, rt component.Runtime, params component.Params) (component.Lifecycle, error) {
	inst, err := (Factory{}).Create(kind, id, rt, params)
	if err != nil {
		return nil, err
	}
	if sink, ok := inst.(*CounterSink); ok {
		f.sink = sink
	}
	return inst, nil
}

func TestPulseSourceDeliversToCounterSink(t *testing.T) {
	factory := &trackingFactory{}
	sim, err := simulation.New(demoConfig(), 0, 0, simulation.Options{Factory: factory})
	if err != nil {
		t.Fatalf("simulation.New: %v", err)
	}

	ctx := context.Background()
	if err := sim.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	sim.Setup(simulation.SetupOptions{StopAtCore: 10})

	if _, err := sim.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := sim.Complete(ctx); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if factory.sink == nil {
		t.Fatal("sink was never created")
	}
	if factory.sink.Count() != 1 {
		t.Errorf("sink count = %d, want 1", factory.sink.Count())
	}
}

// trackingPollFactory wraps Factory to hand the test a reference to
// the polling sink instance it creates.
type trackingPollFactory struct {
	sink *PollingSink
}

func (f *trackingPollFactory) ContainsComponent(kind string) bool {
	return Factory{}.ContainsComponent(kind)
}

func (f *trackingPollFactory) Create(kind string, id component.ID, rt component.Runtime, params component.Params) (component.Lifecycle, error) {
	inst, err := (Factory{}).Create(kind, id, rt, params)
	if err != nil {
		return nil, err
	}
	if sink, ok := inst.(*PollingSink); ok {
		f.sink = sink
	}
	return inst, nil
}

func TestPollingSinkReceivesAllPolledPayloads(t *testing.T) {
	cfg := &config.Config{
		TimeBase: "1ns",
		Ranks:    1,
		Threads:  1,
		Components: []config.ComponentSpec{
			{
				Name: "source", Type: "polling_source", Rank: 0,
				Links: []config.LinkSpec{{Port: "out", Peer: "sink", PeerPort: "in", Latency: "5ns", PeerPolling: true}},
			},
			{Name: "sink", Type: "polling_sink", Rank: 0},
		},
	}

	factory := &trackingPollFactory{}
	sim, err := simulation.New(cfg, 0, 0, simulation.Options{Factory: factory})
	if err != nil {
		t.Fatalf("simulation.New: %v", err)
	}

	ctx := context.Background()
	if err := sim.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	sim.Setup(simulation.SetupOptions{StopAtCore: 40})

	if _, err := sim.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := sim.Complete(ctx); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if factory.sink == nil {
		t.Fatal("sink was never created")
	}
	if factory.sink.Count() != 3 {
		t.Errorf("sink count = %d, want 3", factory.sink.Count())
	}
	want := []any{"p0", "p1", "p2"}
	got := factory.sink.Received()
	if len(got) != len(want) {
		t.Fatalf("received = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("received[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestCounterSinkCheckpointRoundTrip(t *testing.T) {
	sink := newCounterSink()
	sink.count = 42

	packer := checkpoint.NewPacker()
	sink.Serialize(packer)

	restored := newCounterSink()
	restored.Serialize(checkpoint.NewUnpacker(packer.Bytes()))

	if restored.Count() != 42 {
		t.Errorf("restored count = %d, want 42", restored.Count())
	}
}
