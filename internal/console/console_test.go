package console

import (
	"strings"
	"testing"

	"github.com/sstgo/corevortex/internal/component"
	"github.com/sstgo/corevortex/internal/config"
	"github.com/sstgo/corevortex/internal/objectmap"
	"github.com/sstgo/corevortex/internal/simulation"
)

type noopFactory struct{}

func (noopFactory) ContainsComponent(kind string) bool { return false }
func (noopFactory) Create(kind string, id component.ID, rt component.Runtime, params component.Params) (component.Lifecycle, error) {
	return nil, nil
}

func newTestSim(t *testing.T) *simulation.Simulation {
	t.Helper()
	sim, err := simulation.New(&config.Config{TimeBase: "1ns", Ranks: 1, Threads: 1}, 0, 0, simulation.Options{Factory: noopFactory{}})
	if err != nil {
		t.Fatalf("simulation.New: %v", err)
	}
	return sim
}

func TestSnapshotNavigatesVortexDepth(t *testing.T) {
	sim := newTestSim(t)
	root := Snapshot(sim)

	container, ok := root.(*objectmap.Container)
	if !ok {
		t.Fatalf("root is not a Container: %T", root)
	}
	vortexNode := container.Field("vortex")
	if vortexNode == nil {
		t.Fatal("no vortex field on snapshot root")
	}
	depthNode := vortexNode.(*objectmap.Container).Field("current_depth")
	if depthNode == nil {
		t.Fatal("no current_depth field on vortex node")
	}
	if depthNode.Get() != "0" {
		t.Errorf("current_depth = %q, want 0", depthNode.Get())
	}
}

func TestRenderReportWithoutTelemetry(t *testing.T) {
	sim := newTestSim(t)
	html, err := RenderReport(sim, nil)
	if err != nil {
		t.Fatalf("RenderReport: %v", err)
	}
	if !strings.Contains(string(html), "run report") {
		t.Errorf("report HTML missing title: %s", html)
	}
}
