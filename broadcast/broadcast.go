// Package broadcast is the lossy, many-to-many live fan-out bus: every
// freshly-inserted event is handed to every current Subscriber's bounded
// channel, and a slow subscriber is dropped from rather than allowed to
// stall the publisher, per spec.md §4.4/§9 ("broadcast is lossy; a lagging
// receiver observes gaps, not backpressure on the writer"). Grounded on the
// teacher's relay-wide pubsub fan-out in app/realy and on the original Rust
// implementation's tokio::sync::broadcast::Sender usage.
package broadcast

import (
	"sync"

	"knotrelay.dev/event"
	"knotrelay.dev/metrics"
)

// Bus is the process-wide broadcaster. The zero value is not usable; build
// one with New.
type Bus struct {
	mu     sync.RWMutex
	subs   map[*Subscriber]struct{}
	bufLen int
}

// New builds a Bus whose subscriber channels are each buffered to bufLen.
func New(bufLen int) *Bus {
	if bufLen < 1 {
		bufLen = 1
	}
	return &Bus{subs: make(map[*Subscriber]struct{}), bufLen: bufLen}
}

// Subscriber is one connection's live-event feed.
type Subscriber struct {
	bus    *Bus
	c      chan *event.E
	lagged chan uint64
	dropN  uint64
	mu     sync.Mutex
}

// Subscribe registers a new Subscriber. Callers must call Unsubscribe when
// the connection ends.
func (b *Bus) Subscribe() *Subscriber {
	s := &Subscriber{
		bus:    b,
		c:      make(chan *event.E, b.bufLen),
		lagged: make(chan uint64, 1),
	}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s
}

// Unsubscribe removes s from the bus. Safe to call more than once.
func (b *Bus) Unsubscribe(s *Subscriber) {
	b.mu.Lock()
	delete(b.subs, s)
	b.mu.Unlock()
}

// Publish fans ev out to every current subscriber without blocking on any
// one of them.
func (b *Bus) Publish(ev *event.E) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		s.send(ev)
	}
}

// C is the channel a connection task selects on for live events.
func (s *Subscriber) C() <-chan *event.E { return s.c }

// Lagged signals, by cumulative drop count, that at least one event was
// skipped since the subscriber was slow to drain C. A connection task
// should treat a receive here as "some live events were missed" and may
// choose to NOTICE the client.
func (s *Subscriber) Lagged() <-chan uint64 { return s.lagged }

func (s *Subscriber) send(ev *event.E) {
	select {
	case s.c <- ev:
		metrics.Default.EventsSentLive.Inc()
		return
	default:
	}
	s.mu.Lock()
	s.dropN++
	n := s.dropN
	s.mu.Unlock()
	metrics.Default.BroadcastLagged.Inc()
	select {
	case s.lagged <- n:
	default:
		// a lag notice is already pending; the count above still
		// reflects the true cumulative total for the next successful
		// notify.
	}
}
