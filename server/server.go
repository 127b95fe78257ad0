package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/rs/cors"

	"knotrelay.dev/broadcast"
	"knotrelay.dev/config"
	"knotrelay.dev/helpers"
	"knotrelay.dev/ingest"
	"knotrelay.dev/log"
	"knotrelay.dev/shutdown"
	"knotrelay.dev/store"
	"knotrelay.dev/wsconn"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize: 1024, WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server is the relay's HTTP front door: it multiplexes websocket upgrades,
// the NIP-11 document, and the REST event-submission API onto one
// listener.
type Server struct {
	cfg      *config.C
	store    store.I
	pipeline *ingest.Pipeline
	bus      *broadcast.Bus
	relayURL string
	fo       *shutdown.Fanout

	httpServer *http.Server
	api        http.Handler
}

// New builds a Server. relayURL is the externally-visible URL used to
// validate NIP-42 "relay" tags. fo is the process-wide shutdown signal,
// handed to every connection task it spawns so connection tasks observe it
// too, not just the HTTP listener.
func New(cfg *config.C, st store.I, pipe *ingest.Pipeline, bus *broadcast.Bus, relayURL string, fo *shutdown.Fanout) *Server {
	s := &Server{cfg: cfg, store: st, pipeline: pipe, bus: bus, relayURL: relayURL, fo: fo}
	s.api = newHTTPAPI(s)
	return s
}

// ServeHTTP dispatches the root path by Upgrade/Accept headers per NIP-01 (a
// websocket or a NIP-11 document) and delegates everything else to the REST
// API mux, grounded on the teacher's Server.ServeHTTP.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/" {
		if r.Header.Get("Upgrade") == "websocket" {
			s.handleWebsocket(w, r)
			return
		}
		if r.Header.Get("Accept") == "application/nostr+json" {
			s.handleRelayInfo(w, r)
			return
		}
	}
	s.api.ServeHTTP(w, r)
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.E.F("websocket upgrade failed: %v", err)
		return
	}
	remote := helpers.RemoteAddr(r)
	c := wsconn.New(conn, r, remote, s.store, s.pipeline, s.bus, s.cfg, s.relayURL, s.fo)
	c.Run()
}

// Start binds host:port and serves until Shutdown is called or the listener
// fails. It blocks; callers run it in a goroutine.
func (s *Server) Start(host string, port int) error {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.httpServer = &http.Server{
		Handler:           cors.Default().Handler(s),
		Addr:              addr,
		ReadHeaderTimeout: 7 * time.Second,
		IdleTimeout:       28 * time.Second,
	}
	log.I.F("listening at %s", addr)
	if err = s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
