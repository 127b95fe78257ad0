package wsconn

import (
	"strconv"
	"strings"
	"time"

	"github.com/fasthttp/websocket"

	"knotrelay.dev/chk"
	"knotrelay.dev/envelope"
	"knotrelay.dev/log"
	"knotrelay.dev/metrics"
)

const maxMessageBytes = 1 << 20

// Run owns the connection for its whole lifetime: it sends the initial AUTH
// challenge if required, starts the ping ticker and the live-broadcast
// dispatcher, then blocks reading frames until the socket closes or the
// server shuts down. Each decoded frame is handled in its own goroutine,
// mirroring the teacher's "go a.HandleMessage(message)" dispatch so a slow
// historical query on one subscription never blocks reads for another.
func (c *Conn) Run() {
	metrics.Default.Connections.Inc()
	defer func() {
		c.close()
	}()

	c.ws.SetReadLimit(maxMessageBytes)
	idle := c.cfg.IdleTimeout
	if idle <= 0 {
		idle = 20 * time.Minute
	}
	_ = c.ws.SetReadDeadline(time.Now().Add(idle))
	c.ws.SetPongHandler(func(string) error {
		_ = c.ws.SetReadDeadline(time.Now().Add(idle))
		return nil
	})

	if c.authState != nil {
		if err := c.write(envelope.EncodeAuthChallenge(c.authState.Challenge)); chk.E(err) {
			return
		}
	}

	go c.pinger()
	go c.liveDispatch()
	go func() {
		// unblocks the read loop below as soon as ctx is canceled — by a
		// protocol error, the pinger, or the process-wide shutdown signal —
		// since ReadMessage otherwise only notices ctx at its next wakeup.
		<-c.ctx.Done()
		_ = c.ws.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}
		typ, msg, err := c.ws.ReadMessage()
		if err != nil {
			if strings.Contains(err.Error(), "use of closed network connection") {
				c.recordDisconnect(false)
				return
			}
			if websocket.IsUnexpectedCloseError(
				err, websocket.CloseNormalClosure, websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived, websocket.CloseAbnormalClosure,
			) {
				log.W.F("unexpected close from %s: %v", c.remote, err)
			}
			c.recordDisconnect(strings.Contains(err.Error(), "i/o timeout"))
			return
		}
		if typ != websocket.TextMessage {
			continue
		}
		if len(msg) > c.cfg.MaxEventBytes && c.cfg.MaxEventBytes > 0 {
			_ = c.write(envelope.EncodeNotice([]byte("invalid: frame exceeds maximum size")))
			continue
		}
		go c.HandleMessage(msg)
	}
}

func (c *Conn) pinger() {
	interval := c.cfg.PingInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
			c.writeMu.Unlock()
			if err != nil {
				log.E.F("ping %s: %v", c.remote, err)
				c.cancel()
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// liveDispatch is the one goroutine per connection that drains the
// broadcast subscriber and fans matching events out to every open
// subscription, respecting each subscription's historical/live phase.
func (c *Conn) liveDispatch() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case ev, ok := <-c.sub.C():
			if !ok {
				return
			}
			c.dispatchLive(ev)
		case n, ok := <-c.sub.Lagged():
			if !ok {
				return
			}
			_ = c.write(envelope.EncodeNotice([]byte(
				"restricted: this connection missed " + strconv.FormatUint(n, 10) + " live events",
			)))
		}
	}
}
