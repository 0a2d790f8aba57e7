// Package syncmgr implements cross-partition coordination: the
// barrier and untimed-exchange rounds that drive component Init and
// Complete, and the minimum-next-event reduction that bounds how far
// ahead of other partitions this one may advance during Run.
package syncmgr

import (
	"context"
	"sync"
)

// Transport is the pluggable inter-rank messaging layer a SyncManager
// runs its barrier and reduction rounds over. A single-partition run
// uses LocalTransport; a multi-rank run uses the MQTT-backed
// transport in this package.
type Transport interface {
	// Rank returns this process's rank.
	Rank() int
	// NumRanks returns the total number of ranks participating.
	NumRanks() int
	// Send delivers msg to the named destination rank's inbox.
	Send(ctx context.Context, destRank int, msg []byte) error
	// SetHandler registers the callback invoked for every message
	// addressed to this rank. Must be called before any Send.
	SetHandler(handler func(fromRank int, msg []byte))
	// Barrier blocks until every rank has called Barrier for the same
	// generation (callers are expected to call it in lockstep, once
	// per synchronization round).
	Barrier(ctx context.Context) error
}

// LocalTransport is a single-process, single-rank Transport: Send
// loops a message back to this rank's own handler, and Barrier
// returns immediately. It lets the engine run unpartitioned without a
// conditional code path at every sync point.
type LocalTransport struct {
	mu      sync.Mutex
	handler func(fromRank int, msg []byte)
}

// NewLocalTransport returns a Transport for a single-rank run.
func NewLocalTransport() *LocalTransport {
	return &LocalTransport{}
}

func (t *LocalTransport) Rank() int     { return 0 }
func (t *LocalTransport) NumRanks() int { return 1 }

func (t *LocalTransport) SetHandler(handler func(int, []byte)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = handler
}

func (t *LocalTransport) Send(ctx context.Context, destRank int, msg []byte) error {
	t.mu.Lock()
	h := t.handler
	t.mu.Unlock()
	if h != nil {
		h(0, msg)
	}
	return nil
}

func (t *LocalTransport) Barrier(ctx context.Context) error { return nil }
