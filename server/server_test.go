package server_test

import (
	"encoding/hex"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/fasthttp/websocket"
	"github.com/stretchr/testify/require"

	"knotrelay.dev/broadcast"
	"knotrelay.dev/config"
	"knotrelay.dev/event"
	"knotrelay.dev/ingest"
	"knotrelay.dev/server"
	"knotrelay.dev/shutdown"
	"knotrelay.dev/store/badgerstore"
	"knotrelay.dev/tags"
	"knotrelay.dev/xcontext"
)

const testRelayURL = "ws://relay.test/"

// testRelay is a full relay (store, pipeline, server) wired exactly as
// cmd/knotrelay/main.go wires it, fronted by an httptest.Server so tests
// dial a real websocket client against real HTTP upgrade handling, mirroring
// the teacher's newWebsocketServer/mustRelayConnect test pattern.
type testRelay struct {
	cfg      *config.C
	pipeline *ingest.Pipeline
	hs       *httptest.Server
}

func newTestRelay(t *testing.T, tweak func(*config.C)) *testRelay {
	t.Helper()
	st, err := badgerstore.Open(t.TempDir())
	require.NoError(t, err)

	cfg := &config.C{
		LimitScrapers:          true,
		MaxEventBytes:          1 << 16,
		MaxFilters:             10,
		MaxSubscriptions:       20,
		DefaultQueryLimit:      500,
		MaxQueryLimit:          5000,
		SubscriptionsPerMinute: 0,
		PingInterval:           time.Minute,
		IdleTimeout:            time.Minute,
		IngestQueueSize:        64,
		BroadcastBufSize:       64,
		ShutdownDrainTimeout:   time.Second,
	}
	if tweak != nil {
		tweak(cfg)
	}

	bus := broadcast.New(cfg.BroadcastBufSize)
	pipeline := ingest.New(st, bus, cfg.IngestQueueSize, 0)

	fo := shutdown.New()
	ctx, cancel := xcontext.Cancel(xcontext.Bg())
	go pipeline.Run(ctx)

	srv := server.New(cfg, st, pipeline, bus, testRelayURL, fo)
	hs := httptest.NewServer(srv)

	t.Cleanup(func() {
		fo.Trigger()
		cancel()
		hs.Close()
		_ = st.Close()
	})

	return &testRelay{cfg: cfg, pipeline: pipeline, hs: hs}
}

func (r *testRelay) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(r.hs.URL, "http") + "/"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// submit pushes ev directly onto the ingest pipeline, the way a sibling
// connection's already-verified EVENT frame would, without needing a second
// websocket round trip to produce a signature the pipeline itself never
// checks.
func (r *testRelay) submit(t *testing.T, ev *event.E) {
	t.Helper()
	reply := make(chan ingest.Result, 1)
	require.True(t, r.pipeline.Submit(&ingest.Submission{Event: ev, Reply: reply}))
	select {
	case res := <-reply:
		require.True(t, res.OK, string(res.Message))
	case <-time.After(2 * time.Second):
		t.Fatal("submission not acknowledged")
	}
}

func signedEvent(t *testing.T, kind event.Kind, createdAt int64, tagList tags.T, content string) *event.E {
	t.Helper()
	sk, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	ev := &event.E{
		Pubkey:    event.PublicKeyBytes(sk.PubKey()),
		CreatedAt: createdAt,
		Kind:      kind,
		Tags:      tagList,
		Content:   content,
	}
	ev.Id = ev.ComputeId()
	sig, err := schnorr.Sign(sk, ev.Id)
	require.NoError(t, err)
	ev.Sig = sig.Serialize()
	return ev
}

func send(t *testing.T, conn *websocket.Conn, frame []interface{}) {
	t.Helper()
	b, err := json.Marshal(frame)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, b))
}

// readFrame reads and decodes the next frame, failing the test if none
// arrives within timeout.
func readFrame(t *testing.T, conn *websocket.Conn, timeout time.Duration) []json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame []json.RawMessage
	require.NoError(t, json.Unmarshal(msg, &frame))
	return frame
}

// expectNoFrame asserts the connection stays quiet for timeout, i.e. the
// read deadline is what ends the call rather than a frame arriving.
func expectNoFrame(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "i/o timeout") || strings.Contains(err.Error(), "deadline exceeded"), "expected a read timeout, got: %v", err)
}

func label(t *testing.T, frame []json.RawMessage) string {
	t.Helper()
	var s string
	require.NoError(t, json.Unmarshal(frame[0], &s))
	return s
}

func str(t *testing.T, raw json.RawMessage) string {
	t.Helper()
	var s string
	require.NoError(t, json.Unmarshal(raw, &s))
	return s
}

// TestHistoricalThenLiveDelivery covers spec.md §8(b): a REQ whose filter
// needs a historical scan gets every matching stored event, then EOSE, then
// nothing more until a genuinely new matching event arrives live.
func TestHistoricalThenLiveDelivery(t *testing.T) {
	relay := newTestRelay(t, nil)
	old := signedEvent(t, event.KindText, time.Now().Add(-time.Hour).Unix(), nil, "old")
	relay.submit(t, old)

	conn := relay.dial(t)
	send(t, conn, []interface{}{"REQ", "sub1", map[string]interface{}{"kinds": []int{1}}})

	f := readFrame(t, conn, 2*time.Second)
	require.Equal(t, "EVENT", label(t, f))
	require.Equal(t, hex.EncodeToString(old.Id), str(t, f[2]))

	f = readFrame(t, conn, 2*time.Second)
	require.Equal(t, "EOSE", label(t, f))

	live := signedEvent(t, event.KindText, time.Now().Unix(), nil, "live")
	relay.submit(t, live)

	f = readFrame(t, conn, 2*time.Second)
	require.Equal(t, "EVENT", label(t, f))
	require.Equal(t, hex.EncodeToString(live.Id), str(t, f[2]))
}

// TestScraperShortCircuitReturnsEOSE covers spec.md §8(c): an unauthenticated
// open-ended REQ never gets a historical backfill, just an immediate EOSE,
// and the subscription still goes live afterward.
func TestScraperShortCircuitReturnsEOSE(t *testing.T) {
	relay := newTestRelay(t, nil)
	relay.submit(t, signedEvent(t, event.KindText, time.Now().Add(-time.Hour).Unix(), nil, "old"))

	conn := relay.dial(t)
	send(t, conn, []interface{}{"REQ", "sub1", map[string]interface{}{}})

	f := readFrame(t, conn, 2*time.Second)
	require.Equal(t, "EOSE", label(t, f))

	live := signedEvent(t, event.KindText, time.Now().Unix(), nil, "live")
	relay.submit(t, live)
	f = readFrame(t, conn, 2*time.Second)
	require.Equal(t, "EVENT", label(t, f))
}

// TestReplaceSubscriptionDoesNotDuplicateDelivery covers spec.md §8(d):
// reopening a REQ under the same subscription id replaces it, not stacks it,
// so a live event matching both registrations is delivered exactly once.
func TestReplaceSubscriptionDoesNotDuplicateDelivery(t *testing.T) {
	relay := newTestRelay(t, nil)
	conn := relay.dial(t)

	send(t, conn, []interface{}{"REQ", "sub1", map[string]interface{}{"kinds": []int{1}}})
	require.Equal(t, "EOSE", label(t, readFrame(t, conn, 2*time.Second)))

	send(t, conn, []interface{}{"REQ", "sub1", map[string]interface{}{"kinds": []int{1}}})
	require.Equal(t, "EOSE", label(t, readFrame(t, conn, 2*time.Second)))

	live := signedEvent(t, event.KindText, time.Now().Unix(), nil, "live")
	relay.submit(t, live)

	f := readFrame(t, conn, 2*time.Second)
	require.Equal(t, "EVENT", label(t, f))
	require.Equal(t, hex.EncodeToString(live.Id), str(t, f[2]))

	expectNoFrame(t, conn, 300*time.Millisecond)
}

// TestDirectMessageGatingRestrictsDelivery covers spec.md §8(e): with DM
// gating enabled, kind-4/44/1059 events only reach a connection
// authenticated as the author or a tagged recipient.
func TestDirectMessageGatingRestrictsDelivery(t *testing.T) {
	relay := newTestRelay(t, func(cfg *config.C) {
		cfg.AuthRequired = true
		cfg.DirectMessageGating = true
	})
	conn := relay.dial(t)

	challengeFrame := readFrame(t, conn, 2*time.Second)
	require.Equal(t, "AUTH", label(t, challengeFrame))
	challenge := str(t, challengeFrame[1])

	sk, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	pub := event.PublicKeyBytes(sk.PubKey())
	authEv := &event.E{
		Pubkey:    pub,
		CreatedAt: time.Now().Unix(),
		Kind:      event.KindAuth,
		Tags:      tags.T{{"relay", testRelayURL}, {"challenge", challenge}},
	}
	authEv.Id = authEv.ComputeId()
	sig, err := schnorr.Sign(sk, authEv.Id)
	require.NoError(t, err)
	authEv.Sig = sig.Serialize()

	send(t, conn, []interface{}{"AUTH", authEv})
	okFrame := readFrame(t, conn, 2*time.Second)
	require.Equal(t, "OK", label(t, okFrame))
	var ok bool
	require.NoError(t, json.Unmarshal(okFrame[2], &ok))
	require.True(t, ok)

	send(t, conn, []interface{}{"REQ", "dm", map[string]interface{}{"kinds": []int{4}}})
	require.Equal(t, "EOSE", label(t, readFrame(t, conn, 2*time.Second)))

	strangerPTag := strings.Repeat("ab", 32)
	other := signedEvent(t, event.KindEncryptedDM, time.Now().Unix(), tags.T{{"p", strangerPTag}}, "not for me")
	relay.submit(t, other)
	expectNoFrame(t, conn, 300*time.Millisecond)

	fromMe := signedEventWithKey(t, sk, event.KindEncryptedDM, time.Now().Unix(), nil, "from me")
	relay.submit(t, fromMe)
	f := readFrame(t, conn, 2*time.Second)
	require.Equal(t, "EVENT", label(t, f))
	require.Equal(t, hex.EncodeToString(fromMe.Id), str(t, f[2]))

	toMe := signedEvent(t, event.KindEncryptedDM, time.Now().Unix(), tags.T{{"p", hex.EncodeToString(pub)}}, "to me")
	relay.submit(t, toMe)
	f = readFrame(t, conn, 2*time.Second)
	require.Equal(t, "EVENT", label(t, f))
	require.Equal(t, hex.EncodeToString(toMe.Id), str(t, f[2]))
}

func signedEventWithKey(t *testing.T, sk *btcec.PrivateKey, kind event.Kind, createdAt int64, tagList tags.T, content string) *event.E {
	t.Helper()
	ev := &event.E{
		Pubkey:    event.PublicKeyBytes(sk.PubKey()),
		CreatedAt: createdAt,
		Kind:      kind,
		Tags:      tagList,
		Content:   content,
	}
	ev.Id = ev.ComputeId()
	sig, err := schnorr.Sign(sk, ev.Id)
	require.NoError(t, err)
	ev.Sig = sig.Serialize()
	return ev
}

// TestOversizeFrameNoticeStaysOpen covers spec.md §8(f): a frame over the
// configured limit gets a NOTICE, not a dropped connection.
func TestOversizeFrameNoticeStaysOpen(t *testing.T) {
	relay := newTestRelay(t, func(cfg *config.C) { cfg.MaxEventBytes = 64 })
	conn := relay.dial(t)

	huge := strings.Repeat("x", 256)
	send(t, conn, []interface{}{"REQ", "sub1", map[string]interface{}{"search": huge}})

	f := readFrame(t, conn, 2*time.Second)
	require.Equal(t, "NOTICE", label(t, f))

	send(t, conn, []interface{}{"REQ", "sub2", map[string]interface{}{}})
	require.Equal(t, "EOSE", label(t, readFrame(t, conn, 2*time.Second)))
}

// TestProtocolErrorsEmitNoticeNeverClosed covers the protocol/subscription
// error cases spec.md §7 requires a NOTICE for: the protocol here has no
// CLOSED frame at all, so malformed frames and invalid REQs must never
// produce one, and the connection must stay usable afterward.
func TestProtocolErrorsEmitNoticeNeverClosed(t *testing.T) {
	relay := newTestRelay(t, nil)
	conn := relay.dial(t)

	send(t, conn, []interface{}{"NOT-A-REAL-FRAME-TYPE"})
	f := readFrame(t, conn, 2*time.Second)
	require.Equal(t, "NOTICE", label(t, f))

	send(t, conn, []interface{}{"REQ", ""})
	f = readFrame(t, conn, 2*time.Second)
	require.Equal(t, "NOTICE", label(t, f))

	filters := make([]interface{}, 0, relay.cfg.MaxFilters+2)
	for i := 0; i < relay.cfg.MaxFilters+1; i++ {
		filters = append(filters, map[string]interface{}{})
	}
	send(t, conn, append([]interface{}{"REQ", "toomany"}, filters...))
	f = readFrame(t, conn, 2*time.Second)
	require.Equal(t, "NOTICE", label(t, f))

	send(t, conn, []interface{}{"REQ", "sub1", map[string]interface{}{}})
	require.Equal(t, "EOSE", label(t, readFrame(t, conn, 2*time.Second)))
}

// TestSubscriptionRateLimitWaitsRatherThanRejects covers the fixed behavior
// for spec.md §4.6/§9: once the per-connection subscription quota's burst is
// exhausted, REQ blocks for a token instead of being rejected.
func TestSubscriptionRateLimitWaitsRatherThanRejects(t *testing.T) {
	const perMinute = 12 // burst 12, refill every 60/12 = 5s
	relay := newTestRelay(t, func(cfg *config.C) { cfg.SubscriptionsPerMinute = perMinute })
	conn := relay.dial(t)

	for i := 0; i < perMinute; i++ {
		send(t, conn, []interface{}{"REQ", "burst" + string(rune('a'+i)), map[string]interface{}{}})
		require.Equal(t, "EOSE", label(t, readFrame(t, conn, time.Second)))
	}

	send(t, conn, []interface{}{"REQ", "overflow", map[string]interface{}{}})
	expectNoFrame(t, conn, 2*time.Second)

	f := readFrame(t, conn, 8*time.Second)
	require.Equal(t, "EOSE", label(t, f))
}
