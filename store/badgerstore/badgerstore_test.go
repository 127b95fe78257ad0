package badgerstore_test

import (
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/stretchr/testify/require"

	"knotrelay.dev/event"
	"knotrelay.dev/filter"
	"knotrelay.dev/store"
	"knotrelay.dev/store/badgerstore"
	"knotrelay.dev/tags"
	"knotrelay.dev/xcontext"
)

func openTestStore(t *testing.T) *badgerstore.D {
	t.Helper()
	d, err := badgerstore.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func signedEvent(t *testing.T, kind event.Kind, createdAt int64, tagList tags.T, content string) *event.E {
	t.Helper()
	sk, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	pub := event.PublicKeyBytes(sk.PubKey())

	ev := &event.E{
		Pubkey:    pub,
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

func drain(t *testing.T, out chan *event.E) []*event.E {
	t.Helper()
	var got []*event.E
	for ev := range out {
		got = append(got, ev)
	}
	return got
}

func TestInsertAndQueryRoundTrip(t *testing.T) {
	d := openTestStore(t)
	ctx := xcontext.Bg()

	ev := signedEvent(t, event.KindText, 1000, nil, "hello")
	res, err := d.Insert(ctx, ev)
	require.NoError(t, err)
	require.Equal(t, store.Inserted, res)

	out := make(chan *event.E, 8)
	require.NoError(t, d.Query(ctx, filter.Filters{filter.New()}, out))
	got := drain(t, out)
	require.Len(t, got, 1)
	require.Equal(t, ev.Id, got[0].Id)
}

func TestInsertDuplicateIsNotFresh(t *testing.T) {
	d := openTestStore(t)
	ctx := xcontext.Bg()

	ev := signedEvent(t, event.KindText, 1000, nil, "hello")
	_, err := d.Insert(ctx, ev)
	require.NoError(t, err)

	res, err := d.Insert(ctx, ev)
	require.NoError(t, err)
	require.Equal(t, store.Duplicate, res)
}

func TestEphemeralEventsAreNotPersisted(t *testing.T) {
	d := openTestStore(t)
	ctx := xcontext.Bg()

	ev := signedEvent(t, event.Kind(20001), 1000, nil, "")
	res, err := d.Insert(ctx, ev)
	require.NoError(t, err)
	require.Equal(t, store.Inserted, res)

	out := make(chan *event.E, 8)
	require.NoError(t, d.Query(ctx, filter.Filters{filter.New()}, out))
	require.Empty(t, drain(t, out))
}

func TestReplaceableEventSupersedesOlder(t *testing.T) {
	d := openTestStore(t)
	ctx := xcontext.Bg()

	sk, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	pub := event.PublicKeyBytes(sk.PubKey())

	mk := func(createdAt int64, content string) *event.E {
		ev := &event.E{Pubkey: pub, CreatedAt: createdAt, Kind: event.Kind(0), Content: content}
		ev.Id = ev.ComputeId()
		sig, serr := schnorr.Sign(sk, ev.Id)
		require.NoError(t, serr)
		ev.Sig = sig.Serialize()
		return ev
	}

	older := mk(1000, "v1")
	newer := mk(2000, "v2")

	_, err = d.Insert(ctx, older)
	require.NoError(t, err)
	_, err = d.Insert(ctx, newer)
	require.NoError(t, err)

	out := make(chan *event.E, 8)
	require.NoError(t, d.Query(ctx, filter.Filters{{Authors: []string{hex.EncodeToString(pub)}}}, out))
	got := drain(t, out)
	require.Len(t, got, 1)
	require.Equal(t, newer.Id, got[0].Id)
	require.Equal(t, "v2", got[0].Content)
}

func TestReplaceableEventIgnoresOlderAfterNewerStored(t *testing.T) {
	d := openTestStore(t)
	ctx := xcontext.Bg()

	sk, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	pub := event.PublicKeyBytes(sk.PubKey())

	mk := func(createdAt int64, content string) *event.E {
		ev := &event.E{Pubkey: pub, CreatedAt: createdAt, Kind: event.Kind(0), Content: content}
		ev.Id = ev.ComputeId()
		sig, serr := schnorr.Sign(sk, ev.Id)
		require.NoError(t, serr)
		ev.Sig = sig.Serialize()
		return ev
	}

	newer := mk(2000, "v2")
	older := mk(1000, "v1")

	_, err = d.Insert(ctx, newer)
	require.NoError(t, err)
	_, err = d.Insert(ctx, older)
	require.NoError(t, err)

	out := make(chan *event.E, 8)
	require.NoError(t, d.Query(ctx, filter.Filters{{Authors: []string{hex.EncodeToString(pub)}}}, out))
	got := drain(t, out)
	require.Len(t, got, 1)
	require.Equal(t, newer.Id, got[0].Id)
}

func TestDeleteEventTombstonesAndBlocksResubmission(t *testing.T) {
	d := openTestStore(t)
	ctx := xcontext.Bg()

	ev := signedEvent(t, event.KindText, 1000, nil, "hello")
	_, err := d.Insert(ctx, ev)
	require.NoError(t, err)

	require.NoError(t, d.DeleteEvent(ctx, ev.Id))

	out := make(chan *event.E, 8)
	require.NoError(t, d.Query(ctx, filter.Filters{filter.New()}, out))
	require.Empty(t, drain(t, out))

	res, err := d.Insert(ctx, ev)
	require.NoError(t, err)
	require.Equal(t, store.Duplicate, res)
}

func TestQueryRespectsLimit(t *testing.T) {
	d := openTestStore(t)
	ctx := xcontext.Bg()

	for i := int64(0); i < 5; i++ {
		ev := signedEvent(t, event.KindText, 1000+i, nil, "")
		_, err := d.Insert(ctx, ev)
		require.NoError(t, err)
	}

	limit := 2
	out := make(chan *event.E, 8)
	require.NoError(t, d.Query(ctx, filter.Filters{{Limit: &limit}}, out))
	got := drain(t, out)
	require.Len(t, got, 2)
	// newest-first ordering
	require.True(t, got[0].CreatedAt >= got[1].CreatedAt)
}
