package exitcoord

import (
	"log/slog"
	"time"
)

// HeartbeatReport is the data a Heartbeat activity logs and publishes
// to telemetry on each firing.
type HeartbeatReport struct {
	CoreTime    uint64
	SimTime     time.Duration
	WallElapsed time.Duration
	VortexDepth int
	MaxDepth    int
}

// Heartbeat periodically logs progress and hands the report to an
// optional sink (the telemetry/console layers).
type Heartbeat struct {
	log      *slog.Logger
	start    time.Time
	simRate  func(coreTime uint64) time.Duration
	depth    func() (current, max int)
	sink     func(HeartbeatReport)
}

// NewHeartbeat returns a Heartbeat. simRate converts a core time to
// simulated wall-clock time for reporting; depth reports the vortex's
// current and historical-max queue depth; sink (may be nil) receives
// every report, e.g. for the console's live status feed.
func NewHeartbeat(log *slog.Logger, simRate func(uint64) time.Duration, depth func() (int, int), sink func(HeartbeatReport)) *Heartbeat {
	return &Heartbeat{log: log, start: time.Now(), simRate: simRate, depth: depth, sink: sink}
}

// Fire logs and publishes a report for the given core time. It is the
// callback bound into an activity.Heartbeat.
func (h *Heartbeat) Fire(coreTime uint64) {
	current, max := 0, 0
	if h.depth != nil {
		current, max = h.depth()
	}
	simTime := time.Duration(0)
	if h.simRate != nil {
		simTime = h.simRate(coreTime)
	}
	report := HeartbeatReport{
		CoreTime:    coreTime,
		SimTime:     simTime,
		WallElapsed: time.Since(h.start),
		VortexDepth: current,
		MaxDepth:    max,
	}
	if h.log != nil {
		h.log.Info("heartbeat",
			"core_time", report.CoreTime,
			"sim_time", report.SimTime,
			"wall_elapsed", report.WallElapsed,
			"vortex_depth", report.VortexDepth,
			"vortex_max_depth", report.MaxDepth,
		)
	}
	if h.sink != nil {
		h.sink(report)
	}
}
