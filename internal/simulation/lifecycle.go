package simulation

import (
	"context"
	"fmt"
	"time"

	"github.com/sstgo/corevortex"
	"github.com/sstgo/corevortex/internal/activity"
	"github.com/sstgo/corevortex/internal/component"
	"github.com/sstgo/corevortex/internal/events"
	"github.com/sstgo/corevortex/internal/link"
	"github.com/sstgo/corevortex/internal/timebase"
)

const maxUntimedPhases = 64

// Init runs the untimed configuration rounds: Init(phase) on every
// local component, then an ExchangeUntimedData barrier/reduction, for
// as many phases as any rank in the run sent untimed traffic. A run
// that never quiesces within maxUntimedPhases is a configuration bug
// (e.g. two components unconditionally re-sending to each other every
// phase) rather than a transient condition, so it is reported as a
// WireUpError rather than retried forever.
func (s *Simulation) Init(ctx context.Context) error {
	s.links.SetModeAll(link.ModeInit)
	for phase := 0; phase < maxUntimedPhases; phase++ {
		for _, c := range s.components {
			c.Instance.Init(phase)
		}
		sent := s.links.ResetUntimedCount()
		global, err := s.sync.ExchangeUntimedData(ctx, sent)
		if err != nil {
			return corevortex.Fatal(corevortex.SyncError, s.Rank, s.Thread, "init phase exchange", err)
		}
		if global == 0 {
			return nil
		}
	}
	return corevortex.Fatal(corevortex.WireUpError, s.Rank, s.Thread,
		fmt.Sprintf("init did not quiesce within %d phases", maxUntimedPhases), nil)
}

// Complete mirrors Init for the post-run untimed teardown round.
func (s *Simulation) Complete(ctx context.Context) error {
	s.links.SetModeAll(link.ModeComplete)
	for phase := 0; phase < maxUntimedPhases; phase++ {
		for _, c := range s.components {
			c.Instance.Complete(phase)
		}
		sent := s.links.ResetUntimedCount()
		global, err := s.sync.ExchangeUntimedData(ctx, sent)
		if err != nil {
			return corevortex.Fatal(corevortex.SyncError, s.Rank, s.Thread, "complete phase exchange", err)
		}
		if global == 0 {
			return nil
		}
	}
	return corevortex.Fatal(corevortex.WireUpError, s.Rank, s.Thread,
		fmt.Sprintf("complete did not quiesce within %d phases", maxUntimedPhases), nil)
}

// SetupOptions controls the periodic activities Setup seeds into the
// vortex before Run begins.
type SetupOptions struct {
	// StopAtCore, if nonzero, schedules the end-of-run Stop at this
	// core time in addition to the MaxCoreTime backstop.
	StopAtCore uint64
	// HeartbeatPeriodCore, if nonzero, schedules periodic heartbeat
	// reporting.
	HeartbeatPeriodCore uint64
	// CheckpointPeriodCore, if nonzero, schedules periodic checkpoints;
	// onCheckpoint is invoked at each firing with the core time.
	CheckpointPeriodCore uint64
	OnCheckpoint         func(now uint64)
	// ExitCheckPeriodCore bounds how often Exit.Check runs when the
	// run depends on primary components releasing their hold rather
	// than a fixed stop time.
	ExitCheckPeriodCore uint64
}

// Setup runs Instance.Setup() on every local component, switches every
// link to Run mode, and seeds the vortex's periodic bookkeeping
// activities (stop backstop, sync points, heartbeat, checkpoint,
// exit-check) per opts.
func (s *Simulation) Setup(opts SetupOptions) {
	s.links.SetModeAll(link.ModeRun)
	for _, c := range s.components {
		c.Instance.Setup()
	}

	s.vortex.Push(activity.NewStop(timebase.MaxCoreTime, "end of representable time", func(string) {}))
	if opts.StopAtCore != 0 {
		s.vortex.Push(activity.NewStop(opts.StopAtCore, "stop-at reached", func(string) {}))
	}

	if s.transport.NumRanks() > 1 {
		first := s.sync.NextSyncTime(0)
		s.vortex.Push(activity.NewSyncPoint(first, s.fireSyncPoint))
	}

	if opts.HeartbeatPeriodCore != 0 {
		s.vortex.Push(activity.NewHeartbeat(opts.HeartbeatPeriodCore, opts.HeartbeatPeriodCore, s.fireHeartbeat(opts.HeartbeatPeriodCore)))
	}
	if opts.CheckpointPeriodCore != 0 && opts.OnCheckpoint != nil {
		s.vortex.Push(activity.NewCheckpoint(opts.CheckpointPeriodCore, opts.CheckpointPeriodCore, s.fireCheckpoint(opts)))
	}
	if opts.ExitCheckPeriodCore != 0 {
		s.vortex.Push(activity.NewExitCheck(opts.ExitCheckPeriodCore, opts.ExitCheckPeriodCore, s.fireExitCheck(opts.ExitCheckPeriodCore)))
	}

	s.bus.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceSimulation,
		Kind:      events.KindRunStarted,
		Data:      map[string]any{"rank": s.Rank, "thread": s.Thread, "timebase": s.cfg.TimeBase},
	})
}

func (s *Simulation) fireHeartbeat(period uint64) func(now uint64) {
	return func(now uint64) {
		s.hb.Fire(now)
		s.vortex.Push(activity.NewHeartbeat(now+period, period, s.fireHeartbeat(period)))
	}
}

func (s *Simulation) fireCheckpoint(opts SetupOptions) func(now uint64) {
	return func(now uint64) {
		opts.OnCheckpoint(now)
		s.bus.Publish(events.Event{
			Timestamp: time.Now(),
			Source:    events.SourceCheckpoint,
			Kind:      events.KindCheckpointTaken,
			Data:      map[string]any{"sim_cycle": now},
		})
		s.vortex.Push(activity.NewCheckpoint(now+opts.CheckpointPeriodCore, opts.CheckpointPeriodCore, s.fireCheckpoint(opts)))
	}
}

func (s *Simulation) fireExitCheck(period uint64) func(now uint64) {
	return func(now uint64) {
		if _, err := s.exit.Check(); err != nil {
			s.log.Error("simulation: exit check", "err", err)
		}
		s.mu.Lock()
		ended := s.endSim
		s.mu.Unlock()
		if ended {
			return
		}
		s.vortex.Push(activity.NewExitCheck(now+period, period, s.fireExitCheck(period)))
	}
}

func (s *Simulation) fireSyncPoint(now uint64) {
	s.mu.Lock()
	sent := s.remoteSendCount
	s.remoteSendCount = 0
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	global, err := s.sync.ExchangeUntimedData(ctx, sent)
	if err != nil {
		s.log.Error("simulation: run-phase sync point", "err", err)
	}

	s.bus.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceSyncManager,
		Kind:      events.KindSyncPointCrossed,
		Data:      map[string]any{"rank": s.Rank, "sim_cycle": now, "global_message_count": global},
	})

	s.mu.Lock()
	ended := s.endSim
	s.mu.Unlock()
	if ended {
		return
	}
	next := s.sync.NextSyncTime(now + 1)
	s.vortex.Push(activity.NewSyncPoint(next, s.fireSyncPoint))
}

// RunResult summarizes how a Run call ended.
type RunResult struct {
	EndCycle uint64
	Reason   string
}

// Run pops and executes activities from the vortex in delivery order
// until a Stop activity fires. A delivery time smaller than the
// previously executed activity's is a TimeFault: the vortex's ordering
// invariant has been violated (e.g. a link sent with negative latency,
// or a restored checkpoint's clock state is inconsistent with its
// links). The offending activity still executes — its handler fires
// exactly as any other delivery would — and only the following
// iteration aborts the run, matching sst-core's run loop, which calls
// current_activity->execute() unconditionally before ever inspecting
// time order. ctx cancellation ends the run early with whatever reason
// is already recorded, or "context canceled".
func (s *Simulation) Run(ctx context.Context) (*RunResult, error) {
	var lastTime uint64
	havePopped := false
	var faultErr error

	for {
		select {
		case <-ctx.Done():
			s.requestStop(ctx.Err().Error())
		default:
		}

		if faultErr != nil {
			return nil, faultErr
		}

		a := s.vortex.Pop()
		if a == nil {
			s.mu.Lock()
			reason := s.endReason
			cycle := s.currentCycle
			s.mu.Unlock()
			if reason == "" {
				reason = "vortex drained without a Stop activity"
			}
			return &RunResult{EndCycle: cycle, Reason: reason}, nil
		}

		if havePopped && a.DeliveryTime() < lastTime {
			faultErr = corevortex.Fatal(corevortex.TimeFault, s.Rank, s.Thread,
				fmt.Sprintf("delivery time %d precedes previously executed time %d", a.DeliveryTime(), lastTime), nil)
		}

		s.mu.Lock()
		s.currentCycle = a.DeliveryTime()
		s.mu.Unlock()

		a.Execute()

		lastTime = a.DeliveryTime()
		havePopped = true

		if a.Kind() == activity.KindStop {
			s.mu.Lock()
			reason := s.endReason
			if reason == "" {
				reason = "stop activity fired"
				if st, ok := a.(*activity.Stop); ok && st.Reason != "" {
					reason = st.Reason
				}
				s.endReason = reason
				s.endSim = true
			}
			cycle := s.currentCycle
			s.mu.Unlock()

			s.bus.Publish(events.Event{
				Timestamp: time.Now(),
				Source:    events.SourceSimulation,
				Kind:      events.KindRunEnded,
				Data:      map[string]any{"rank": s.Rank, "thread": s.Thread, "sim_cycle": cycle, "reason": reason},
			})
			return &RunResult{EndCycle: cycle, Reason: reason}, nil
		}
	}
}

// Finish runs Instance.Finish() on every local component, depth-first
// over the tree so a parent's Finish can rely on its children having
// already flushed.
func (s *Simulation) Finish() {
	if s.root == nil {
		return
	}
	var walk func(*component.Info)
	walk = func(n *component.Info) {
		for _, c := range n.Children {
			walk(c)
		}
		n.Instance.Finish()
	}
	walk(s.root)
}

// EmergencyShutdown calls Instance.EmergencyShutdown() on every local
// component. It is the only lifecycle step that tolerates a component
// panicking or hanging being out of scope: callers invoke it from a
// signal handler path with their own timeout around this call, since
// EmergencyShutdown itself blocks until every component returns.
func (s *Simulation) EmergencyShutdown() {
	for _, c := range s.components {
		c.Instance.EmergencyShutdown()
	}
}
