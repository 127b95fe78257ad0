// Package wsconn is the per-connection protocol state machine: message
// dispatch, subscription bookkeeping, the strict "EOSE before any live
// event" ordering spec.md §4.2/§9 requires, and NIP-42 AUTH gating.
// Grounded on the teacher's protocol/socketapi package (A.Serve's read
// loop, per-message goroutine dispatch, mutex-guarded Write) and the
// original relay's nostr_server connection task.
package wsconn

import (
	"net/http"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/google/uuid"

	"knotrelay.dev/auth"
	"knotrelay.dev/broadcast"
	"knotrelay.dev/config"
	"knotrelay.dev/event"
	"knotrelay.dev/ingest"
	"knotrelay.dev/log"
	"knotrelay.dev/metrics"
	"knotrelay.dev/ratelimit"
	"knotrelay.dev/shutdown"
	"knotrelay.dev/store"
	"knotrelay.dev/subscription"
	"knotrelay.dev/xcontext"
)

// subRateJitter spreads out connections that hit their subscription quota
// on the same tick, mirroring the original relay's governor-crate
// Jitter::up_to(100ms).
const subRateJitter = 100 * time.Millisecond

// subState is one open REQ subscription's bookkeeping.
type subState struct {
	mu     sync.Mutex
	sub    *subscription.Sub
	live   bool
	seen   map[string]bool
	buffer []*event.E
	cancel xcontext.F
}

// Conn is one websocket connection's full state. Built by New, which the
// server's websocket handler calls for every upgraded request.
type Conn struct {
	ws     *websocket.Conn
	req    *http.Request
	remote string
	id     string

	writeMu sync.Mutex

	store    store.I
	pipeline *ingest.Pipeline
	bus      *broadcast.Bus
	sub      *broadcast.Subscriber
	cfg      *config.C
	relayURL string

	subRate *ratelimit.Limiter

	authState *auth.State

	subsMu sync.Mutex
	subs   map[string]*subState

	ctx    xcontext.T
	cancel xcontext.F
}

// New builds a Conn around an already-upgraded websocket connection. The
// caller (server.Server's websocket handler) still needs to call Run to start reading. fo, if
// non-nil, is the process-wide shutdown signal: the connection's own ctx is
// canceled as soon as fo fires, so Run stops accepting new frames and every
// outstanding historical query is canceled along with it.
func New(
	ws *websocket.Conn, req *http.Request, remote string,
	st store.I, pipe *ingest.Pipeline, bus *broadcast.Bus, cfg *config.C, relayURL string,
	fo *shutdown.Fanout,
) *Conn {
	ctx, cancel := xcontext.Cancel(xcontext.Bg())
	c := &Conn{
		ws: ws, req: req, remote: remote, id: uuid.NewString(),
		store: st, pipeline: pipe, bus: bus, sub: bus.Subscribe(),
		cfg: cfg, relayURL: relayURL,
		subRate: ratelimit.PerMinute(cfg.SubscriptionsPerMinute, cfg.SubscriptionsPerMinute, subRateJitter),
		subs:    make(map[string]*subState),
		ctx:     ctx, cancel: cancel,
	}
	if cfg.AuthRequired {
		c.authState = auth.New()
	}
	if fo != nil {
		go func() {
			select {
			case <-fo.Done():
				cancel()
			case <-ctx.Done():
			}
		}()
	}
	log.D.F("conn %s opened from %s", c.id, c.remote)
	return c
}

// write sends one already-encoded frame. Safe for concurrent use; the
// historical-query goroutine, the live-dispatch goroutine, and the
// per-message handler goroutines all call it.
func (c *Conn) write(p []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, p)
}

// close tears down every resource owned by this connection. Safe to call
// more than once.
func (c *Conn) close() {
	c.cancel()
	c.bus.Unsubscribe(c.sub)
	c.subsMu.Lock()
	for _, st := range c.subs {
		if st.cancel != nil {
			st.cancel()
		}
	}
	c.subs = map[string]*subState{}
	c.subsMu.Unlock()
	_ = c.ws.Close()
}

// mayDeliver applies spec.md §4.6's direct-message gating: when enabled, a
// DM-shaped kind may only reach a connection authenticated as the event's
// author or one of its "p"-tagged recipients.
func (c *Conn) mayDeliver(ev *event.E) bool {
	if !c.cfg.DirectMessageGating || !event.DirectMessageKinds[ev.Kind] {
		return true
	}
	if c.authState == nil || !c.authState.Authenticated() {
		return false
	}
	pk := c.authState.Pubkey
	if string(pk) == string(ev.Pubkey) {
		return true
	}
	for _, p := range ev.PTags() {
		if p == hexPubkey(pk) {
			return true
		}
	}
	return false
}

func (c *Conn) recordDisconnect(idle bool) {
	metrics.Default.Disconnects.Inc()
	if idle {
		metrics.Default.DisconnectsIdle.Inc()
		log.D.F("conn %s closed (idle)", c.id)
	} else {
		metrics.Default.DisconnectsErr.Inc()
		log.D.F("conn %s closed (error)", c.id)
	}
}
