// Package ingest is the single-writer submission pipeline: every accepted
// EVENT frame from every connection funnels through one bounded queue and is
// admitted, validated against store semantics, persisted, and (only on a
// fresh insert) broadcast — serializing all writes so replaceable/
// parameterized-replaceable supersession and duplicate detection never race,
// grounded on the teacher's Server.Publish single-goroutine ingest and
// spec.md §4.3/§9's "ingest pipeline: one writer" invariant.
package ingest

import (
	"bytes"
	"encoding/hex"
	"time"

	"knotrelay.dev/event"
	"knotrelay.dev/filter"
	"knotrelay.dev/log"
	"knotrelay.dev/metrics"
	"knotrelay.dev/normalize"
	"knotrelay.dev/store"
	"knotrelay.dev/xcontext"
)

// Publisher is the broadcast side of the pipeline, satisfied by
// *broadcast.Bus. Kept as an interface so tests can substitute a recorder.
type Publisher interface {
	Publish(ev *event.E)
}

// Admitter is an admission gate consulted before Insert: whitelist/
// blacklist, identity verification, payment status. spec.md §1 places the
// policy decisions these represent out of scope; Admitter is the seam a
// deployment wires its own in, this package ships only Blacklist.
type Admitter interface {
	// Admit reports whether ev may proceed, and if not, the NIP-01 reason
	// message to return on the OK frame.
	Admit(ev *event.E) (ok bool, reason []byte)
}

// Result is what a submission resolves to: the OK frame's two fields, plus
// the event id it answers for.
type Result struct {
	EventID []byte
	OK      bool
	Message []byte
}

// Submission is one EVENT frame queued for ingest. Reply is closed-over by
// the connection task and receives exactly one Result.
type Submission struct {
	Event *event.E
	Reply chan<- Result
}

// Pipeline owns the bounded submit queue and the single goroutine that
// drains it.
type Pipeline struct {
	store    store.I
	bus      Publisher
	admitter []Admitter
	queue    chan *Submission
	maxSkew  int64
}

// New builds a Pipeline. maxSkew bounds how far into the future an event's
// created_at may be (0 disables the check, per event.IsWithinFutureBound).
func New(st store.I, bus Publisher, queueSize int, maxSkew int64, admitters ...Admitter) *Pipeline {
	return &Pipeline{
		store:    st,
		bus:      bus,
		admitter: admitters,
		queue:    make(chan *Submission, queueSize),
		maxSkew:  maxSkew,
	}
}

// Submit enqueues sub without blocking; it returns false if the queue is
// full, in which case the caller should reply rate-limited itself rather
// than block the connection's read loop.
func (p *Pipeline) Submit(sub *Submission) bool {
	select {
	case p.queue <- sub:
		return true
	default:
		return false
	}
}

// shutdownDrain bounds how long Run spends committing whatever is already
// queued once ctx is canceled, so a shutdown mid-burst doesn't silently
// drop submissions the connection layer already accepted.
const shutdownDrain = 5 * time.Second

// Run drains the queue until ctx is canceled. There is exactly one Run
// goroutine per Pipeline; that single-writer property is what makes
// replaceable-event supersession race-free. On cancellation it commits
// whatever is already queued, up to shutdownDrain, before returning.
func (p *Pipeline) Run(ctx xcontext.T) {
	for {
		select {
		case <-ctx.Done():
			p.drainQueue()
			return
		case sub := <-p.queue:
			p.process(ctx, sub)
		}
	}
}

// drainQueue commits every submission already sitting in the queue at
// shutdown time, using a fresh background context so an in-flight store
// write doesn't get aborted by the same cancellation that triggered the
// drain. It never waits for new submissions to arrive.
func (p *Pipeline) drainQueue() {
	deadline := time.Now().Add(shutdownDrain)
	for time.Now().Before(deadline) {
		select {
		case sub := <-p.queue:
			p.process(xcontext.Bg(), sub)
		default:
			return
		}
	}
}

func (p *Pipeline) process(ctx xcontext.T, sub *Submission) {
	ev := sub.Event
	metrics.Default.EventsReceived.Inc()

	for _, a := range p.admitter {
		if ok, reason := a.Admit(ev); !ok {
			metrics.Default.EventsRejected.Inc()
			reply(sub, ev.Id, false, reason)
			return
		}
	}

	now := time.Now().Unix()
	if !ev.IsWithinFutureBound(now, p.maxSkew) {
		metrics.Default.EventsRejected.Inc()
		reply(sub, ev.Id, false, normalize.Invalid.F("created_at is too far in the future"))
		return
	}
	if ev.IsExpired(now) {
		metrics.Default.EventsRejected.Inc()
		reply(sub, ev.Id, false, normalize.Invalid.F("event has already expired"))
		return
	}

	if ev.Kind.IsDeletion() {
		p.applyDeletion(ctx, ev)
	}

	res, err := p.store.Insert(ctx, ev)
	if err != nil {
		log.E.F("insert %x: %v", ev.Id, err)
		metrics.Default.EventsRejected.Inc()
		reply(sub, ev.Id, false, normalize.Error.F("could not write event"))
		return
	}

	switch res {
	case store.Duplicate:
		metrics.Default.EventsDup.Inc()
		reply(sub, ev.Id, true, normalize.Duplicate.F("already have this event"))
	case store.Inserted:
		metrics.Default.EventsStored.Inc()
		p.bus.Publish(ev)
		reply(sub, ev.Id, true, nil)
	}
}

// applyDeletion tombstones every event id a NIP-09 kind-5 event names in its
// "e" tags. A referenced event that is stored under a different pubkey than
// ev's is left untouched; an id the store does not hold is still tombstoned.
func (p *Pipeline) applyDeletion(ctx xcontext.T, ev *event.E) {
	for _, id := range ev.ETags() {
		raw, err := decodeHexID(id)
		if err != nil {
			continue
		}
		one := 1
		found := make(chan *event.E, one)
		if qerr := p.store.Query(ctx, filter.Filters{{Ids: []string{hex.EncodeToString(raw)}, Limit: &one}}, found); qerr != nil {
			log.W.F("look up %s referenced by %x: %v", id, ev.Id, qerr)
			continue
		}
		if prior, ok := <-found; ok && bytes.Equal(prior.Id, raw) && !bytes.Equal(prior.Pubkey, ev.Pubkey) {
			continue
		}
		if derr := p.store.DeleteEvent(ctx, raw); derr != nil {
			log.W.F("delete %s referenced by %x: %v", id, ev.Id, derr)
		}
	}
}

func reply(sub *Submission, id []byte, ok bool, msg []byte) {
	if sub.Reply == nil {
		return
	}
	sub.Reply <- Result{EventID: id, OK: ok, Message: msg}
}
