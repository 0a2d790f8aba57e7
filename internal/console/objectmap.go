// Package console implements the `--interactive-console` server: a
// websocket endpoint for live ObjectMap introspection of a running
// partition, and an HTTP endpoint rendering a markdown run report as
// HTML.
package console

import (
	"github.com/sstgo/corevortex/internal/component"
	"github.com/sstgo/corevortex/internal/objectmap"
	"github.com/sstgo/corevortex/internal/simulation"
)

// Snapshot builds a read-only ObjectMap tree over sim's current
// state: partition identity, run-loop depth counters, and the
// component roster. It is rebuilt on every websocket request rather
// than kept live, since the console is a diagnostic window onto a
// moving target, not a cache that needs invalidation.
func Snapshot(sim *simulation.Simulation) objectmap.ObjectMap {
	root := objectmap.NewContainer("simulation.Simulation")

	root.Add("rank", objectmap.ReadOnlyUint64("rank", func() uint64 { return uint64(sim.Rank) }))
	root.Add("thread", objectmap.ReadOnlyUint64("thread", func() uint64 { return uint64(sim.Thread) }))
	root.Add("current_cycle", objectmap.ReadOnlyUint64("current_cycle", sim.CurrentCycle))

	v := sim.Vortex()
	vortexNode := objectmap.NewContainer("vortex.TimeVortex")
	vortexNode.Add("current_depth", objectmap.ReadOnlyUint64("current_depth", func() uint64 { return uint64(v.CurrentDepth()) }))
	vortexNode.Add("max_depth", objectmap.ReadOnlyUint64("max_depth", func() uint64 { return uint64(v.MaxDepth()) }))
	root.Add("vortex", vortexNode)

	root.Add("links", objectmap.ReadOnlyUint64("links", func() uint64 { return uint64(sim.Links().Len()) }))

	components := objectmap.NewContainer("[]component.Info")
	if r := sim.Root(); r != nil {
		r.Walk(func(n *component.Info) {
			node := objectmap.NewContainer("component.Info")
			id, kind := n.ID.String(), n.Kind
			node.Add("id", objectmap.ReadOnlyString("id", func() string { return id }))
			node.Add("kind", objectmap.ReadOnlyString("kind", func() string { return kind }))
			components.Add(n.Name, node)
		})
	}
	root.Add("components", components)

	return root
}
