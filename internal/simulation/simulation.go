// Package simulation implements the lifecycle driver: the sequence
// that takes a configured component graph through Init, Complete,
// Setup, Run, and Finish, coordinating with the sync manager across
// partitions and the exit/heartbeat/checkpoint periodic activities
// along the way.
package simulation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/sstgo/corevortex"
	"github.com/sstgo/corevortex/internal/activity"
	"github.com/sstgo/corevortex/internal/clock"
	"github.com/sstgo/corevortex/internal/component"
	"github.com/sstgo/corevortex/internal/config"
	"github.com/sstgo/corevortex/internal/events"
	"github.com/sstgo/corevortex/internal/exitcoord"
	"github.com/sstgo/corevortex/internal/link"
	"github.com/sstgo/corevortex/internal/syncmgr"
	"github.com/sstgo/corevortex/internal/timebase"
	"github.com/sstgo/corevortex/internal/vortex"
)

// PortBinder is optionally implemented by a component instance so the
// driver can hand it the Link allocated for one of its configured
// ports. A component with no ports (a pure sink or source wired
// entirely through self-links it manages itself) need not implement
// it.
type PortBinder interface {
	BindPort(port string, l *link.Link)
}

// Simulation drives one partition (rank, thread) through its full
// lifecycle. Exactly one goroutine should ever call Init/Complete/
// Setup/Run/Finish on a given Simulation. Periodic checkpoints run on
// that goroutine, as activity.Checkpoint values popped from the
// vortex. The interactive console instead reads state from its own
// goroutines, through the mutex-guarded accessors (CurrentCycle, the
// vortex depth counters, the link registry) and the component tree.
type Simulation struct {
	Rank   int
	Thread int

	cfg *config.Config
	log *slog.Logger
	bus *events.Bus

	timeLord  *timebase.TimeLord
	vortex    *vortex.TimeVortex
	links     *link.Registry
	sync      *syncmgr.SyncManager
	transport syncmgr.Transport
	exit      *exitcoord.Exit
	hb        *exitcoord.Heartbeat

	root       *component.Info
	components []*component.Info

	clockMu sync.Mutex
	clocks  map[clockKey]*clock.Clock

	mu           sync.Mutex
	currentCycle uint64
	endSim       bool
	endReason    string

	remoteSendCount int64 // sends since the last run-phase sync point
}

// Options bundles the collaborators New needs beyond the config: the
// factory that instantiates configured component kinds, the
// cross-partition transport (syncmgr.NewLocalTransport() for a
// single-rank run), the event bus events are published to (may be
// nil), and the logger activity and heartbeat reporting writes to.
type Options struct {
	Factory   component.Factory
	Transport syncmgr.Transport
	Bus       *events.Bus
	Log       *slog.Logger
}

// New builds a Simulation for (rank, thread): a fresh TimeVortex and
// link Registry, a TimeLord initialized from cfg.TimeBase, every
// locally-ranked component from cfg.Components instantiated via
// opts.Factory, and every link between two locally-ranked components
// (or a SyncLink crossing to a remote rank) wired per cfg's link
// specs.
func New(cfg *config.Config, rank, thread int, opts Options) (*Simulation, error) {
	if opts.Factory == nil {
		return nil, corevortex.Fatal(corevortex.ConfigError, rank, thread, "simulation: no component factory supplied", nil)
	}
	transport := opts.Transport
	if transport == nil {
		transport = syncmgr.NewLocalTransport()
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	tl, err := timebase.NewTimeLord(cfg.TimeBase)
	if err != nil {
		return nil, corevortex.Fatal(corevortex.ConfigError, rank, thread, "simulation: time base", err)
	}

	s := &Simulation{
		Rank: rank, Thread: thread,
		cfg: cfg, log: log, bus: opts.Bus,
		timeLord: tl,
		vortex:   vortex.New(),
	}
	s.links = link.NewRegistry(func(a activity.Activity) { s.vortex.Push(a) })
	s.transport = transport
	s.sync = syncmgr.New(transport, minPartTicks(cfg, tl))

	baseConv, err := tl.GetTimeConverterForFactor(1)
	if err != nil {
		return nil, corevortex.Fatal(corevortex.ConfigError, rank, thread, "simulation: base time converter", err)
	}

	byName := map[string]*config.ComponentSpec{}
	for i := range cfg.Components {
		byName[cfg.Components[i].Name] = &cfg.Components[i]
	}

	instances := map[string]component.Lifecycle{}
	for i := range cfg.Components {
		spec := &cfg.Components[i]
		if spec.Rank != rank {
			continue
		}
		if !opts.Factory.ContainsComponent(spec.Type) {
			return nil, corevortex.Fatal(corevortex.WireUpError, rank, thread, fmt.Sprintf("simulation: unknown component type %q", spec.Type), nil)
		}
		id := component.NewID(uint32(rank), uint32(i+1))
		params := component.Params{}
		for k, v := range spec.Params {
			params[k] = v
		}

		info := &component.Info{ID: id, Name: spec.Name, Kind: spec.Type, TimeBase: baseConv}
		rt := newRuntime(s, info)
		inst, err := opts.Factory.Create(spec.Type, id, rt, params)
		if err != nil {
			return nil, corevortex.Fatal(corevortex.WireUpError, rank, thread, fmt.Sprintf("simulation: create component %q", spec.Name), err)
		}
		info.Instance = inst

		s.components = append(s.components, info)
		instances[spec.Name] = inst
	}

	var numPrimary int64
	for _, c := range s.components {
		if c.IsPrimary() {
			numPrimary++
		}
	}
	s.exit = exitcoord.New(numPrimary, s.reduceExit(rank, transport))
	s.exit.OnGlobalZero(func() { s.requestStop("exit refcount reached zero") })
	s.hb = exitcoord.NewHeartbeat(log, s.simTimeFor, func() (int, int) {
		return s.vortex.CurrentDepth(), s.vortex.MaxDepth()
	}, s.publishHeartbeat)

	wired := map[string]bool{}
	for i := range cfg.Components {
		spec := &cfg.Components[i]
		if spec.Rank != rank {
			continue
		}
		for _, l := range spec.Links {
			key := linkKey(spec.Name, l.Port, l.Peer, l.PeerPort)
			if wired[key] {
				continue
			}
			wired[key] = true

			peerSpec, ok := byName[l.Peer]
			if !ok {
				return nil, corevortex.Fatal(corevortex.WireUpError, rank, thread, fmt.Sprintf("simulation: link from %q to undefined peer %q", spec.Name, l.Peer), nil)
			}

			var latency uint64 = 1
			if l.Latency != "" {
				conv, err := tl.GetTimeConverter(l.Latency)
				if err != nil {
					return nil, corevortex.Fatal(corevortex.ConfigError, rank, thread, fmt.Sprintf("simulation: link %q->%q latency", spec.Name, l.Peer), err)
				}
				latency = conv.ToCore(1)
			}

			if peerSpec.Rank == rank {
				leftKind := link.KindHandler
				if l.Polling {
					leftKind = link.KindPolling
				}
				rightKind := link.KindHandler
				if l.PeerPolling {
					rightKind = link.KindPolling
				}
				left, right := s.links.NewPair(leftKind, rightKind)
				left.SetLatency(baseConv, latency)
				right.SetLatency(baseConv, latency)
				bindPort(instances[spec.Name], l.Port, left)
				bindPort(instances[l.Peer], l.PeerPort, right)
				continue
			}

			destRank := peerSpec.Rank
			var local *link.Link
			local = s.links.NewSyncLink(link.KindHandler, func(deliveryTime uint64, payload any) {
				s.sendRemote(local.ID(), destRank, deliveryTime, payload)
			})
			local.SetLatency(baseConv, latency)
			s.sync.RegisterSyncLink(int32(local.ID()), destRank)
			bindPort(instances[spec.Name], l.Port, local)
		}
	}

	transport.SetHandler(s.onRemoteMessage)

	if len(s.components) > 0 {
		s.root = s.components[0]
		for _, c := range s.components[1:] {
			s.root.Children = append(s.root.Children, c)
		}
	}

	return s, nil
}

func bindPort(inst component.Lifecycle, port string, l *link.Link) {
	if b, ok := inst.(PortBinder); ok {
		b.BindPort(port, l)
	}
}

func linkKey(name, port, peer, peerPort string) string {
	return name + "/" + port + "->" + peer + "/" + peerPort
}

func minPartTicks(cfg *config.Config, tl *timebase.TimeLord) uint64 {
	rankOf := make(map[string]int, len(cfg.Components))
	for _, c := range cfg.Components {
		rankOf[c.Name] = c.Rank
	}
	var min uint64
	for _, c := range cfg.Components {
		for _, l := range c.Links {
			if l.Latency == "" {
				continue
			}
			if peerRank, ok := rankOf[l.Peer]; ok && peerRank == c.Rank {
				continue
			}
			conv, err := tl.GetTimeConverter(l.Latency)
			if err != nil {
				continue
			}
			ticks := conv.ToCore(1)
			if min == 0 || ticks < min {
				min = ticks
			}
		}
	}
	return min
}

// remoteEnvelope is the wire format for a SyncLink delivery crossing
// to another rank.
type remoteEnvelope struct {
	LinkID       int32           `json:"link_id"`
	DeliveryTime uint64          `json:"delivery_time"`
	Payload      json.RawMessage `json:"payload"`
}

// sendRemote forwards a SyncLink send to destRank. id is the local
// link's arena handle; the engine builds an identical component graph
// on every rank, so the same arena position on the receiving rank's
// Registry names the matching peer SyncLink.
func (s *Simulation) sendRemote(id link.ID, destRank int, deliveryTime uint64, payload any) {
	payloadRaw, err := json.Marshal(payload)
	if err != nil {
		s.log.Error("simulation: marshal remote link payload", "err", err)
		return
	}
	env := remoteEnvelope{LinkID: int32(id), DeliveryTime: deliveryTime, Payload: payloadRaw}
	msg, err := json.Marshal(env)
	if err != nil {
		s.log.Error("simulation: marshal remote envelope", "err", err)
		return
	}
	s.mu.Lock()
	s.remoteSendCount++
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.transport.Send(ctx, destRank, msg); err != nil {
		s.log.Error("simulation: send remote link event", "dest_rank", destRank, "err", err)
	}
}

func (s *Simulation) onRemoteMessage(fromRank int, msg []byte) {
	var env remoteEnvelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return
	}
	var payload any
	json.Unmarshal(env.Payload, &payload)
	if err := s.links.DeliverRemote(link.ID(env.LinkID), env.DeliveryTime, payload); err != nil {
		s.log.Warn("simulation: deliver remote event", "from_rank", fromRank, "err", err)
	}
}

func (s *Simulation) reduceExit(rank int, transport syncmgr.Transport) func(int64) (int64, error) {
	if transport.NumRanks() == 1 {
		return nil
	}
	return func(local int64) (int64, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.sync.ExchangeUntimedData(ctx, local)
	}
}

// simTimeFor converts a core time to a simulated-time Duration by
// multiplying the time base (expressed in seconds) by coreTime and
// scaling to nanoseconds.
func (s *Simulation) simTimeFor(coreTime uint64) time.Duration {
	base := s.timeLord.TimeBase().Rat()
	ticks := new(big.Rat).SetUint64(coreTime)
	seconds := new(big.Rat).Mul(base, ticks)
	nanos := new(big.Rat).Mul(seconds, big.NewRat(1e9, 1))
	f, _ := nanos.Float64()
	return time.Duration(f)
}

func (s *Simulation) publishHeartbeat(r exitcoord.HeartbeatReport) {
	s.bus.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceExit,
		Kind:      events.KindHeartbeat,
		Data: map[string]any{
			"core_time":        r.CoreTime,
			"sim_time":         r.SimTime.String(),
			"wall_elapsed":     r.WallElapsed.String(),
			"vortex_depth":     r.VortexDepth,
			"vortex_max_depth": r.MaxDepth,
		},
	})
}

// CurrentCycle returns the core time of the activity most recently
// executed by Run, safe to call from another goroutine (e.g. the
// console's status endpoint).
func (s *Simulation) CurrentCycle() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentCycle
}

func (s *Simulation) requestStop(reason string) {
	s.mu.Lock()
	already := s.endSim
	if !already {
		s.endSim = true
		s.endReason = reason
	}
	s.mu.Unlock()
	if already {
		return
	}
	s.vortex.Push(activity.NewStop(s.CurrentCycle(), reason, func(string) {}))
}

// Root returns the local component tree's root, or nil if this
// partition holds no components.
func (s *Simulation) Root() *component.Info { return s.root }

// Links returns the link registry, for components that need to
// resolve a link by ID (e.g. after a checkpoint restore).
func (s *Simulation) Links() *link.Registry { return s.links }

// Vortex returns the scheduling queue, for Checkpoint's Writer/
// Restorer integration and tests that want to push synthetic
// activities directly.
func (s *Simulation) Vortex() *vortex.TimeVortex { return s.vortex }

// ToCore converts a UnitAlgebra period string (e.g. "10ms", "500ns")
// into core ticks against this simulation's time base, for a caller
// (cmd/vortexd, translating --stop-at/--checkpoint-sim-period/
// --heartbeat-sim-period flags) that needs the same conversion New
// already performs for link latencies.
func (s *Simulation) ToCore(period string) (uint64, error) {
	conv, err := s.timeLord.GetTimeConverter(period)
	if err != nil {
		return 0, corevortex.Fatal(corevortex.UnitParseError, s.Rank, s.Thread,
			fmt.Sprintf("parsing period %q", period), err)
	}
	return conv.ToCore(1), nil
}
