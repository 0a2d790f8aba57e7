package link

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sstgo/corevortex/internal/activity"
)

// Registry is the arena that owns every Link created for a partition.
// Links are addressed by ID so they remain valid, stable references
// across a checkpoint/restore cycle, where raw pointers would not be.
type Registry struct {
	mu    sync.Mutex
	links []*Link // index 0 unused, so the zero ID always means "unbound"
	push  func(a activity.Activity)

	untimedSends int64 // atomic: SendUntimed calls since the last ResetUntimedCount
}

// NewRegistry returns an empty Registry. push is called to schedule a
// timed delivery on the owning partition's vortex.
func NewRegistry(push func(activity.Activity)) *Registry {
	return &Registry{links: make([]*Link, 1), push: push}
}

func (r *Registry) alloc(kind Kind) *Link {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := ID(len(r.links))
	l := newLink(id, kind, r.push)
	l.onUntimedSend = func() { atomic.AddInt64(&r.untimedSends, 1) }
	r.links = append(r.links, l)
	return l
}

// ResetUntimedCount zeroes the untimed-send counter and returns its
// value from before the reset, for the simulation driver's Init/
// Complete quiescence check: a round that sent zero untimed messages
// ends that phase.
func (r *Registry) ResetUntimedCount() int64 {
	return atomic.SwapInt64(&r.untimedSends, 0)
}

// Get resolves an ID to its Link, or ErrNotFound if it is out of
// range (e.g. corrupt checkpoint data).
func (r *Registry) Get(id ID) (*Link, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id <= 0 || int(id) >= len(r.links) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return r.links[id], nil
}

// NewPair allocates two connected Link endpoints belonging to
// different components, wiring each as the other's peer — SST's
// LinkPair. leftKind/rightKind let each side independently choose
// handler vs. polling delivery.
func (r *Registry) NewPair(leftKind, rightKind Kind) (left, right *Link) {
	left = r.alloc(leftKind)
	right = r.alloc(rightKind)
	left.peerLink = right
	right.peerLink = left
	return left, right
}

// NewSelfLink allocates a link whose peer is itself, used by a
// component that schedules work for its own later execution without
// going through another component (SST's SelfLink).
func (r *Registry) NewSelfLink(kind Kind) *Link {
	l := r.alloc(kind)
	l.peerLink = l
	return l
}

// NewSyncLink allocates a link whose peer lives on another partition.
// remote is called on every Send/SendUntimed instead of delivering
// locally; it is the sync manager's job to forward the payload over
// its transport and eventually call DeliverRemote on the matching
// link in the receiving partition's Registry.
func (r *Registry) NewSyncLink(kind Kind, remote func(deliveryTime uint64, payload any)) *Link {
	l := r.alloc(kind)
	l.remote = remote
	return l
}

// DeliverRemote is called by the sync manager's transport when a
// payload addressed to id arrives from a remote partition, stamped
// with the delivery time the sending rank computed.
func (r *Registry) DeliverRemote(id ID, deliveryTime uint64, payload any) error {
	l, err := r.Get(id)
	if err != nil {
		return err
	}
	l.deliver(deliveryTime, payload)
	return nil
}

// SetModeAll transitions every link in the registry to m, called by
// the simulation driver between init/complete/run phases.
func (r *Registry) SetModeAll(m Mode) {
	r.mu.Lock()
	links := append([]*Link(nil), r.links[1:]...)
	r.mu.Unlock()
	for _, l := range links {
		l.SetMode(m)
	}
}

// Len returns the number of allocated links, for telemetry.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.links) - 1
}
