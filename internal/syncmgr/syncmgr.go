package syncmgr

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/sstgo/corevortex/internal/timebase"
)

// SyncManager bounds how far a partition may advance its core time
// ahead of every other partition, and drives the untimed Init and
// Complete rounds every component goes through before and after the
// timed Run phase.
type SyncManager struct {
	transport Transport
	minPart   uint64 // cross-partition sync period, in core ticks

	untimedMsgCount int64 // atomic: this rank's message count for the current round

	// syncLinkDest maps a local link ID to the destination rank it
	// crosses into, so exchangeUntimedData can walk them without the
	// caller re-deriving the mapping.
	syncLinkDest map[int32]int
}

// New returns a SyncManager. minPart is the minimum next-event window
// (in core ticks) a partition is allowed to run ahead before the next
// barrier; it is typically the minimum cross-partition link latency.
func New(transport Transport, minPart uint64) *SyncManager {
	return &SyncManager{transport: transport, minPart: minPart, syncLinkDest: make(map[int32]int)}
}

// RegisterSyncLink records that local link id crosses to destRank, so
// cross-rank event delivery and untimed exchange can route to it.
func (s *SyncManager) RegisterSyncLink(id int32, destRank int) {
	s.syncLinkDest[id] = destRank
}

// MinPart returns the cross-partition sync window in core ticks.
func (s *SyncManager) MinPart() uint64 { return s.minPart }

// NextSyncTime returns the next core time at which this partition must
// stop and synchronize, given its current core time.
func (s *SyncManager) NextSyncTime(now uint64) uint64 {
	if s.minPart == 0 {
		return timebase.MaxCoreTime
	}
	return now + s.minPart - (now % s.minPart)
}

// untimedEnvelope is the wire format exchanged during Init/Complete:
// a single field the receiver decodes according to the phase's own
// message type, plus the phase tag so a stray message from a
// mis-ordered round is detectable instead of silently misinterpreted.
type untimedEnvelope struct {
	Phase   string          `json:"phase"`
	LinkID  int32           `json:"link_id"`
	Payload json.RawMessage `json:"payload"`
}

// ExchangeUntimedData participates in one round of the untimed phase:
// it records localCount (the messages this rank sent in the round,
// counted by the caller), barriers so every rank has finished sending
// before the reduction, and finally reduces the local message count
// with every other rank's, returning the global total. A total of zero means no rank produced any traffic this
// round, which is the Init/Complete loop's termination condition.
func (s *SyncManager) ExchangeUntimedData(ctx context.Context, localCount int64) (global int64, err error) {
	atomic.StoreInt64(&s.untimedMsgCount, localCount)

	if err := s.transport.Barrier(ctx); err != nil {
		return 0, fmt.Errorf("sync manager: untimed exchange barrier: %w", err)
	}

	// Single barrier round-trip doubles as the reduction point for a
	// LocalTransport (NumRanks()==1); multi-rank transports reduce via
	// a second exchange keyed on the same generation.
	if s.transport.NumRanks() == 1 {
		return atomic.LoadInt64(&s.untimedMsgCount), nil
	}
	return s.reduceMessageCounts(ctx, localCount)
}

// reduceMessageCounts sums localCount across every rank by a simple
// send-to-rank-0/broadcast pattern: rank 0 collects every other
// rank's count and publishes the total, every other rank waits for
// it. This is intentionally simple rather than a tree reduction since
// sync rounds are not the bottleneck a DES engine optimizes for.
func (s *SyncManager) reduceMessageCounts(ctx context.Context, localCount int64) (int64, error) {
	type countMsg struct {
		Rank  int   `json:"rank"`
		Count int64 `json:"count"`
	}

	if s.transport.Rank() != 0 {
		payload, _ := json.Marshal(countMsg{Rank: s.transport.Rank(), Count: localCount})
		if err := s.transport.Send(ctx, 0, payload); err != nil {
			return 0, fmt.Errorf("sync manager: send count to rank 0: %w", err)
		}
		return 0, nil
	}

	total := localCount
	received := map[int]bool{0: true}
	done := make(chan struct{})
	s.transport.SetHandler(func(fromRank int, msg []byte) {
		var m countMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return
		}
		if received[fromRank] {
			return
		}
		received[fromRank] = true
		total += m.Count
		if len(received) == s.transport.NumRanks() {
			close(done)
		}
	})

	select {
	case <-done:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	return total, nil
}
