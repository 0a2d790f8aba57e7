package telemetry

import (
	"log/slog"

	"github.com/sstgo/corevortex/internal/events"
)

// Subscriber drains a bus subscription into a Store until Stop is
// called, logging (rather than failing the run) any write error —
// telemetry is diagnostic, not load-bearing, so a stuck disk must not
// take the simulation down with it.
type Subscriber struct {
	store *Store
	log   *slog.Logger
	ch    <-chan events.Event
	bus   *events.Bus
	done  chan struct{}
}

// Subscribe starts draining bus into store on a background goroutine.
// Call Stop to unsubscribe and let the goroutine exit.
func Subscribe(bus *events.Bus, store *Store, log *slog.Logger) *Subscriber {
	if log == nil {
		log = slog.Default()
	}
	s := &Subscriber{
		store: store,
		log:   log,
		ch:    bus.Subscribe(64),
		bus:   bus,
		done:  make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Subscriber) run() {
	defer close(s.done)
	for e := range s.ch {
		if err := s.store.Record(e); err != nil {
			s.log.Error("telemetry: record event", "source", e.Source, "kind", e.Kind, "err", err)
		}
	}
}

// Stop unsubscribes from the bus and waits for the drain goroutine to
// finish flushing any event already in flight.
func (s *Subscriber) Stop() {
	s.bus.Unsubscribe(s.ch)
	<-s.done
}
