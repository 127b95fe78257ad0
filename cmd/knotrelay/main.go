// Command knotrelay runs the relay: connection handling, subscription
// matching, and durable fan-out over a single embedded event store.
// Configuration is via environment variables; see config.C.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"knotrelay.dev/broadcast"
	"knotrelay.dev/chk"
	"knotrelay.dev/config"
	"knotrelay.dev/ingest"
	"knotrelay.dev/log"
	"knotrelay.dev/server"
	"knotrelay.dev/shutdown"
	"knotrelay.dev/store/badgerstore"
	"knotrelay.dev/version"
	"knotrelay.dev/xcontext"
)

func main() {
	cfg, err := config.New()
	if chk.E(err) {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
		os.Exit(1)
	}
	log.I.F("starting %s %s", cfg.AppName, version.V)

	st, err := badgerstore.Open(cfg.DataDir)
	if chk.E(err) {
		os.Exit(1)
	}

	bus := broadcast.New(cfg.BroadcastBufSize)
	pipeline := ingest.New(st, bus, cfg.IngestQueueSize, 0)

	fo := shutdown.New()
	ctx, cancel := xcontext.Cancel(xcontext.Bg())
	go func() {
		<-fo.Done()
		cancel()
	}()
	go pipeline.Run(ctx)

	relayURL := cfg.DNS
	if relayURL == "" {
		relayURL = fmt.Sprintf("ws://%s:%d", cfg.Listen, cfg.Port)
	}
	srv := server.New(cfg, st, pipeline, bus, relayURL, fo)

	go func() {
		if err := srv.Start(cfg.Listen, cfg.Port); err != nil && err != http.ErrServerClosed {
			log.F.F("server terminated: %v", err)
			fo.Trigger()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	select {
	case s := <-sig:
		log.I.F("received %s, shutting down", s)
	case <-fo.Done():
	}
	fo.Trigger()

	shutdownCtx, shutdownCancel := xcontext.Timeout(xcontext.Bg(), cfg.ShutdownDrainTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); chk.E(err) {
	}
	time.Sleep(50 * time.Millisecond) // let in-flight Submit()s drain
	if err := st.Close(); chk.E(err) {
	}
	log.I.Ln("shutdown complete")
}
