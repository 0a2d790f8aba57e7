// Package events provides a publish/subscribe event bus for
// operational observability. Events flow from the simulation driver
// and its periodic actions (heartbeat, checkpoint) to subscribers
// (in this module, the telemetry log's Subscriber).
// The bus is nil-safe: calling Publish on a nil *Bus is a no-op, so
// components do not need guard checks.
package events

import (
	"sync"
	"time"
)

// Source constants identify which part of the engine published an
// event.
const (
	// SourceSimulation identifies events from the lifecycle driver
	// (init/setup/run/complete/finish transitions).
	SourceSimulation = "simulation"
	// SourceSyncManager identifies events from cross-partition
	// synchronization (barriers, untimed exchange rounds).
	SourceSyncManager = "syncmgr"
	// SourceCheckpoint identifies events from the checkpoint/restart
	// engine.
	SourceCheckpoint = "checkpoint"
	// SourceExit identifies events from exit/heartbeat coordination.
	SourceExit = "exitcoord"
)

// Kind constants describe the type of event within a source.
const (
	// KindRunStarted signals a partition entered its run phase.
	// Data: rank, thread, timebase.
	KindRunStarted = "run_started"
	// KindSyncPointCrossed signals a SyncManager barrier/exchange
	// round completed. Data: rank, sim_cycle, global_message_count.
	KindSyncPointCrossed = "sync_point_crossed"
	// KindCheckpointTaken signals the periodic checkpoint callback ran.
	// Data: sim_cycle.
	KindCheckpointTaken = "checkpoint_taken"
	// KindHeartbeat signals a periodic heartbeat fired.
	// Data: core_time, sim_time, wall_elapsed, vortex_depth,
	// vortex_max_depth.
	KindHeartbeat = "heartbeat"
	// KindRunEnded signals a partition left its run phase.
	// Data: rank, thread, sim_cycle, reason.
	KindRunEnded = "run_ended"
)

// Event represents a single operational event published by a component.
type Event struct {
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"ts"`
	// Source identifies the component that published the event.
	Source string `json:"source"`
	// Kind describes the type of event within the source.
	Kind string `json:"kind"`
	// Data holds event-specific key/value pairs.
	Data map[string]any `json:"data,omitempty"`
}

// Bus is a non-blocking broadcast event bus. Subscribers receive events
// on buffered channels; slow subscribers miss events rather than
// blocking publishers.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
	// recvToSend maps the receive-only channel returned by Subscribe
	// back to the bidirectional channel stored in subs. This allows
	// Unsubscribe to accept <-chan Event (the caller's view) without
	// an illegal type conversion.
	recvToSend map[<-chan Event]chan Event
}

// New creates a new event bus ready for use.
func New() *Bus {
	return &Bus{
		subs:       make(map[chan Event]struct{}),
		recvToSend: make(map[<-chan Event]chan Event),
	}
}

// Publish sends an event to all subscribers. Non-blocking: if a
// subscriber's channel is full, the event is dropped for that
// subscriber. Safe to call on a nil receiver (no-op).
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// Subscriber is full — drop the event rather than block.
		}
	}
}

// Subscribe returns a channel that receives published events. The
// caller must eventually call Unsubscribe to avoid resource leaks.
// bufSize controls the channel buffer; 64 is a reasonable default for
// the console's websocket consumers.
func (b *Bus) Subscribe(bufSize int) <-chan Event {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = struct{}{}
	b.recvToSend[ch] = ch
	return ch
}

// Unsubscribe removes a subscription and closes the channel. Safe to
// call with a channel that is already unsubscribed (no-op).
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sendCh, ok := b.recvToSend[ch]
	if !ok {
		return
	}
	delete(b.subs, sendCh)
	delete(b.recvToSend, ch)
	close(sendCh)
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
