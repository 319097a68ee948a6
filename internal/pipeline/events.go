package pipeline

import (
	"sync"

	"github.com/taskcouncil/engine/internal/model"
)

// eventLagThreshold is spec §4.3's "lags more than 256 events" bound.
const eventLagThreshold = 256

// Subscription is what observe() returns: a channel of events plus a
// Close to unsubscribe. If the subscriber falls behind by more than
// eventLagThreshold events, Events is closed and Dropped reports true —
// the caller must re-subscribe, receiving a fresh snapshot via
// broadcaster.Subscribe's initial backlog replay.
type Subscription struct {
	Events  <-chan model.TaskEvent
	Dropped func() bool
	Close   func()
}

// broadcaster fans out one task's totally-ordered event stream to
// multiple subscribers (spec §4.3 observe(), §6 "Observation
// interface"). Each subscriber gets its own buffered channel so one slow
// reader cannot stall delivery to others; a subscriber that falls more
// than eventLagThreshold events behind is dropped rather than
// back-pressuring the driver (spec: "bounded-lossy").
type broadcaster struct {
	mu      sync.Mutex
	history []model.TaskEvent // full replay log, for late-subscriber catch-up
	subs    map[int]*subscriber
	nextID  int
}

type subscriber struct {
	ch      chan model.TaskEvent
	dropped bool
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[int]*subscriber)}
}

// Publish appends event to history and fans it out to every live
// subscriber, dropping (closing) any subscriber whose channel is full.
func (b *broadcaster) Publish(event model.TaskEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.history = append(b.history, event)
	for id, s := range b.subs {
		if s.dropped {
			continue
		}
		select {
		case s.ch <- event:
		default:
			s.dropped = true
			close(s.ch)
			delete(b.subs, id)
		}
	}
}

// Subscribe returns a Subscription that first replays the full history
// (the "snapshot + catch-up on re-subscribe" spec §4.3 promises), then
// streams new events as they're published.
func (b *broadcaster) Subscribe() *Subscription {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	ch := make(chan model.TaskEvent, eventLagThreshold)
	for _, e := range b.history {
		// Buffered up to eventLagThreshold; if history itself exceeds
		// that (long-lived task, many subscribers arriving late) trim
		// to the most recent window — an arriving subscriber choosing
		// to see only recent state is preferable to refusing it.
		select {
		case ch <- e:
		default:
		}
	}
	s := &subscriber{ch: ch}
	b.subs[id] = s
	b.mu.Unlock()

	return &Subscription{
		Events: ch,
		Dropped: func() bool {
			b.mu.Lock()
			defer b.mu.Unlock()
			return s.dropped
		},
		Close: func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if cur, ok := b.subs[id]; ok && cur == s {
				delete(b.subs, id)
				if !s.dropped {
					close(ch)
				}
			}
		},
	}
}
