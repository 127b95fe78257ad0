package wsconn

import (
	"bytes"
	"time"

	"knotrelay.dev/envelope"
	"knotrelay.dev/event"
	"knotrelay.dev/filter"
	"knotrelay.dev/ingest"
	"knotrelay.dev/log"
	"knotrelay.dev/metrics"
	"knotrelay.dev/normalize"
	"knotrelay.dev/subscription"
	"knotrelay.dev/xcontext"
)

const authSkewSeconds = 600

// HandleMessage decodes one inbound frame and routes it to its handler,
// writing a NOTICE if decoding itself failed. Runs in its own goroutine per
// frame, per Run's dispatch.
func (c *Conn) HandleMessage(raw []byte) {
	in, err := envelope.Decode(raw)
	if err != nil {
		_ = c.write(envelope.EncodeNotice(normalize.Invalid.F("%v", err)))
		return
	}
	switch in.Kind {
	case envelope.KindEvent:
		c.handleEvent(in.Event)
	case envelope.KindReq:
		c.handleReq(in.Req)
	case envelope.KindClose:
		c.handleClose(in.Close)
	case envelope.KindAuth:
		c.handleAuth(in.Auth)
	default:
		_ = c.write(envelope.EncodeNotice(normalize.Error.F("unhandled frame")))
	}
}

func (c *Conn) verify(ev *event.E) bool {
	if !bytes.Equal(ev.ComputeId(), ev.Id) {
		return false
	}
	ok, err := ev.Verify()
	return err == nil && ok
}

func (c *Conn) handleEvent(ev *event.E) {
	if !c.verify(ev) {
		_ = c.write(envelope.EncodeOK(ev.Id, false, normalize.Invalid.F("id or signature does not verify")))
		return
	}
	if c.cfg.AuthRequired && (c.authState == nil || !c.authState.Authenticated()) {
		_ = c.write(envelope.EncodeOK(ev.Id, false, normalize.Restricted.F("this relay requires NIP-42 authentication")))
		return
	}

	reply := make(chan ingest.Result, 1)
	if !c.pipeline.Submit(&ingest.Submission{Event: ev, Reply: reply}) {
		_ = c.write(envelope.EncodeOK(ev.Id, false, normalize.RateLimited.F("ingest queue is full, try again shortly")))
		return
	}
	select {
	case res := <-reply:
		_ = c.write(envelope.EncodeOK(res.EventID, res.OK, res.Message))
	case <-c.ctx.Done():
	}
}

func (c *Conn) handleAuth(ev *event.E) {
	if c.authState == nil {
		return
	}
	if !c.verify(ev) {
		_ = c.write(envelope.EncodeOK(ev.Id, false, normalize.Invalid.F("id or signature does not verify")))
		return
	}
	now := time.Now().Unix()
	if c.authState.Validate(ev, c.relayURL, now, authSkewSeconds) {
		_ = c.write(envelope.EncodeOK(ev.Id, true, nil))
		log.D.F("%s authenticated as %x", c.remote, c.authState.Pubkey)
		return
	}
	_ = c.write(envelope.EncodeOK(ev.Id, false, normalize.Restricted.F("auth challenge/relay did not match")))
}

func (c *Conn) handleClose(subID string) {
	c.subsMu.Lock()
	st, ok := c.subs[subID]
	if ok {
		delete(c.subs, subID)
	}
	c.subsMu.Unlock()
	if ok {
		metrics.Default.SubscriptionsClosed.Inc()
		if st.cancel != nil {
			st.cancel()
		}
	}
}

func (c *Conn) handleReq(req *envelope.ReqFrame) {
	if req == nil || req.SubID == "" {
		_ = c.write(envelope.EncodeNotice(normalize.Invalid.F("REQ needs a subscription id")))
		return
	}
	if c.cfg.MaxFilters > 0 && len(req.Filters) > c.cfg.MaxFilters {
		_ = c.write(envelope.EncodeNotice(normalize.Invalid.F("too many filters")))
		return
	}
	// subscription creation is rate limited, not rejected: a burst waits
	// (with jitter) for a token rather than failing outright.
	if c.subRate != nil && c.cfg.SubscriptionsPerMinute > 0 {
		if err := c.subRate.Wait(c.ctx); err != nil {
			return
		}
	}

	for _, f := range req.Filters {
		clampLimit(f, c.cfg.DefaultQueryLimit, c.cfg.MaxQueryLimit)
	}
	sub := subscription.New(req.SubID, req.Filters)

	// replacing an existing subscription with the same id cancels its
	// previous historical query and starts fresh, per NIP-01.
	c.handleClose(req.SubID)

	ctx, cancel := xcontext.Cancel(c.ctx)
	st := &subState{sub: sub, seen: make(map[string]bool), cancel: cancel}
	c.subsMu.Lock()
	c.subs[req.SubID] = st
	c.subsMu.Unlock()
	metrics.Default.SubscriptionsOpened.Inc()

	if c.cfg.LimitScrapers && sub.IsScraper() && (c.authState == nil || !c.authState.Authenticated()) {
		// short-circuited with an immediate end-of-stored marker and no
		// query: the subscription still goes live for future events, it
		// just never gets a historical backfill.
		c.goLive(req.SubID, st)
		_ = c.write(envelope.EncodeEOSE(req.SubID))
		return
	}

	now := time.Now().Unix()
	if !sub.NeedsHistorical(now) {
		c.goLive(req.SubID, st)
		_ = c.write(envelope.EncodeEOSE(req.SubID))
		return
	}

	out := make(chan *event.E, 64)
	go func() {
		if err := c.store.Query(ctx, sub.Filters, out); err != nil && err != ctx.Err() {
			log.E.F("query for %s: %v", req.SubID, err)
		}
	}()
	for ev := range out {
		if !c.mayDeliver(ev) {
			continue
		}
		st.mu.Lock()
		if !st.seen[string(ev.Id)] {
			st.seen[string(ev.Id)] = true
			st.mu.Unlock()
			_ = c.write(envelope.EncodeEvent(req.SubID, ev))
			metrics.Default.EventsSentHistorical.Inc()
		} else {
			st.mu.Unlock()
		}
	}
	select {
	case <-ctx.Done():
		return
	default:
	}
	c.goLive(req.SubID, st)
	_ = c.write(envelope.EncodeEOSE(req.SubID))
}

// goLive flips st to live and flushes anything buffered while the
// historical scan was still running, preserving "EOSE precedes every live
// event" even though matching live events may have arrived mid-scan.
func (c *Conn) goLive(subID string, st *subState) {
	st.mu.Lock()
	st.live = true
	buffered := st.buffer
	st.buffer = nil
	st.mu.Unlock()
	for _, ev := range buffered {
		_ = c.write(envelope.EncodeEvent(subID, ev))
		metrics.Default.EventsSentLive.Inc()
	}
}

// dispatchLive is called by the connection's single live-broadcast
// goroutine for every freshly-inserted event, fanning it out to every
// subscription it matches.
func (c *Conn) dispatchLive(ev *event.E) {
	if !c.mayDeliver(ev) {
		return
	}
	c.subsMu.Lock()
	states := make(map[string]*subState, len(c.subs))
	for id, st := range c.subs {
		states[id] = st
	}
	c.subsMu.Unlock()

	for subID, st := range states {
		if !st.sub.InterestedIn(ev) {
			continue
		}
		st.mu.Lock()
		if st.seen[string(ev.Id)] {
			st.mu.Unlock()
			continue
		}
		st.seen[string(ev.Id)] = true
		if !st.live {
			st.buffer = append(st.buffer, ev)
			st.mu.Unlock()
			continue
		}
		st.mu.Unlock()
		_ = c.write(envelope.EncodeEvent(subID, ev))
		metrics.Default.EventsSentLive.Inc()
	}
}

func clampLimit(f *filter.F, def, max int) {
	if f.Limit == nil {
		if def > 0 {
			v := def
			f.Limit = &v
		}
		return
	}
	if max > 0 && *f.Limit > max {
		*f.Limit = max
	}
}
