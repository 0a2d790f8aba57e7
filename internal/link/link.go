// Package link implements the point-to-point delivery machinery
// between components: Link/LinkPair/SelfLink/SyncLink, addressed by
// small arena-allocated handles rather than pointers so a link
// reference can be checkpointed and restored by identity.
package link

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sstgo/corevortex/internal/activity"
	"github.com/sstgo/corevortex/internal/timebase"
)

// ID is an arena index identifying a Link. The zero value never
// denotes a real link.
type ID int32

// Mode gates what kind of send a link will accept. Init and Complete
// are the untimed configuration phases; only Run accepts latency-
// scheduled sends through the vortex.
type Mode int

const (
	ModeInit Mode = iota
	ModeRun
	ModeComplete
)

func (m Mode) String() string {
	switch m {
	case ModeInit:
		return "init"
	case ModeRun:
		return "run"
	case ModeComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Kind distinguishes handler-driven delivery (the recipient's
// callback runs as the activity executes) from polling delivery (the
// recipient must call Link.Recv to retrieve queued events).
type Kind int

const (
	KindHandler Kind = iota
	KindPolling
)

var (
	// ErrWrongMode is returned by Send when the link is not in Run
	// mode; untimed phases must use SendUntimed instead.
	ErrWrongMode = errors.New("link: send outside of run mode")
	// ErrPollingMisuse is returned by SetHandler when a handler is
	// registered on a polling link. Recv does not report it: on a
	// handler-kind link Recv just finds nothing queued.
	ErrPollingMisuse = errors.New("link: polling/handler mode mismatch")
	// ErrNotFound is returned by the Registry for an unknown ID.
	ErrNotFound = errors.New("link: unknown link id")
)

// AttachPoint instruments link traffic for tools such as tracers or
// statistics collectors. Both methods are invoked synchronously on
// the sending/delivering goroutine, so implementations must be cheap
// and must not themselves send on the instrumented link.
type AttachPoint interface {
	OnSend(id ID, payload any, deliveryTime uint64)
	OnDeliver(id ID, payload any)
}

// Handler is a component's event callback for handler-kind links.
type Handler func(payload any)

// Link is one endpoint of a connection between two components (or a
// component and itself, for a SelfLink). Sends on this endpoint are
// delivered to peer's Handler/poll queue after latency ticks.
type Link struct {
	mu sync.Mutex

	id      ID
	peer    ID // not assigned by the Registry; the bound peer is peerLink
	kind    Kind
	mode    Mode
	latency uint64
	conv    *timebase.TimeConverter

	handler  Handler
	polled   []polledEvent
	tools    []AttachPoint
	peerLink *Link

	// remote is set instead of peerLink for a SyncLink: the peer
	// lives on another partition, so delivery is handed to the sync
	// manager's transport rather than pushed onto a local vortex.
	remote func(deliveryTime uint64, payload any)

	push func(a activity.Activity)

	// onUntimedSend is called by SendUntimed, letting a Registry count
	// untimed traffic for the sync manager's Init/Complete quiescence
	// check without every caller threading a counter through.
	onUntimedSend func()
}

type polledEvent struct {
	deliveryTime uint64
	payload      any
}

// newLink is unexported: links are only created through a Registry so
// their ID is always arena-assigned.
func newLink(id ID, kind Kind, push func(activity.Activity)) *Link {
	return &Link{id: id, kind: kind, mode: ModeInit, push: push}
}

// ID returns this endpoint's arena handle.
func (l *Link) ID() ID { return l.id }

// SetLatency sets the default per-send latency in core ticks, derived
// from a TimeConverter bound to the component's registered time base.
func (l *Link) SetLatency(conv *timebase.TimeConverter, periods uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.conv = conv
	if conv != nil {
		l.latency = conv.ToCore(periods)
	} else {
		l.latency = periods
	}
}

// SetHandler installs a handler-kind callback. It is an error to call
// this on a link opened with KindPolling.
func (l *Link) SetHandler(h Handler) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.kind != KindHandler {
		return fmt.Errorf("link %d: %w", l.id, ErrPollingMisuse)
	}
	l.handler = h
	return nil
}

// AttachTool registers an AttachPoint to observe send/deliver traffic
// on this endpoint.
func (l *Link) AttachTool(tool AttachPoint) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tools = append(l.tools, tool)
}

// SetMode transitions the link between the untimed init/complete
// phases and the timed run phase.
func (l *Link) SetMode(m Mode) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.mode = m
}

// Send schedules payload for delivery to the peer after this link's
// default latency. now is the sender's current core time. Only valid
// in ModeRun; use SendUntimed during init/complete.
func (l *Link) Send(now uint64, payload any) error {
	l.mu.Lock()
	mode := l.mode
	latency := l.latency
	tools := append([]AttachPoint(nil), l.tools...)
	id := l.id
	l.mu.Unlock()

	if mode != ModeRun {
		return fmt.Errorf("link %d: %w", id, ErrWrongMode)
	}
	deliveryTime := now + latency
	for _, t := range tools {
		t.OnSend(id, payload, deliveryTime)
	}
	l.deliverToPeer(deliveryTime, payload)
	return nil
}

// SendNil sends a nil payload through the ordinary Send path, so the
// peer's handler runs (or its poll queue gets an entry) even when
// there is no real event to carry.
func (l *Link) SendNil(now uint64) error {
	return l.Send(now, nil)
}

// SendUntimed delivers payload immediately (core time is not
// meaningful during init/complete); it is only valid outside ModeRun.
func (l *Link) SendUntimed(payload any) error {
	l.mu.Lock()
	mode := l.mode
	id := l.id
	peer := l.peerLink
	remote := l.remote
	hook := l.onUntimedSend
	l.mu.Unlock()
	if mode == ModeRun {
		return fmt.Errorf("link %d: %w", id, ErrWrongMode)
	}
	if hook != nil {
		hook()
	}
	if remote != nil {
		remote(0, payload)
		return nil
	}
	if peer != nil {
		peer.deliver(0, payload)
	}
	return nil
}

// Recv pops the earliest queued event for a polling-kind link. The
// bool result is false if no event is queued. Calling Recv on a
// handler-kind link is an error recorded via the returned bool only;
// callers that need to distinguish should check Kind first.
func (l *Link) Recv() (any, uint64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.polled) == 0 {
		return nil, 0, false
	}
	ev := l.polled[0]
	l.polled = l.polled[1:]
	return ev.payload, ev.deliveryTime, true
}

// deliver is called by the vortex activity created at Send time; it
// runs the handler or enqueues for polling. deliveryTime is the core
// time this delivery was stamped for (0 for an untimed send), and is
// what Recv later returns alongside a polled payload.
func (l *Link) deliver(deliveryTime uint64, payload any) {
	l.mu.Lock()
	kind := l.kind
	handler := l.handler
	tools := append([]AttachPoint(nil), l.tools...)
	id := l.id
	l.mu.Unlock()

	for _, t := range tools {
		t.OnDeliver(id, payload)
	}

	switch kind {
	case KindHandler:
		if handler != nil {
			handler(payload)
		}
	case KindPolling:
		l.mu.Lock()
		l.polled = append(l.polled, polledEvent{deliveryTime: deliveryTime, payload: payload})
		l.mu.Unlock()
	}
}

// deliverToPeer pushes a delivery activity for the peer link onto the
// vortex; a link created by a Registry without a push function
// delivers synchronously instead. A SyncLink has no local peer and
// instead hands the send to the cross-partition transport. Untimed
// sends do not come through here: SendUntimed delivers them itself.
func (l *Link) deliverToPeer(deliveryTime uint64, payload any) {
	if l.remote != nil {
		l.remote(deliveryTime, payload)
		return
	}
	peer := l.peerLink
	if peer == nil {
		return
	}
	if l.push == nil {
		peer.deliver(deliveryTime, payload)
		return
	}
	ev := activity.NewEvent(deliveryTime, int32(peer.id), payload)
	ev.Deliver = func(payload any) { peer.deliver(deliveryTime, payload) }
	l.push(ev)
}
