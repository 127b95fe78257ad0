package subscription_test

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"

	"knotrelay.dev/event"
	"knotrelay.dev/filter"
	"knotrelay.dev/subscription"
)

func TestIsScraper(t *testing.T) {
	s := subscription.New("sub1", filter.Filters{filter.New()})
	require.True(t, s.IsScraper())

	s2 := subscription.New("sub2", filter.Filters{{Kinds: []uint16{1}}})
	require.False(t, s2.IsScraper())
}

func TestNeedsHistorical(t *testing.T) {
	since := int64(5000)
	s := subscription.New("sub1", filter.Filters{{Since: &since}})
	require.False(t, s.NeedsHistorical(1000))
	require.True(t, s.NeedsHistorical(9000))
}

func TestMatchesDisjunctive(t *testing.T) {
	pk, _ := hex.DecodeString("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	ev := &event.E{Id: pk, Pubkey: pk, Kind: event.KindText, CreatedAt: 10}

	s := subscription.New("sub1", filter.Filters{
		{Kinds: []uint16{7}},
		{Kinds: []uint16{1}},
	})
	require.True(t, s.Matches(ev))
	require.True(t, s.InterestedIn(ev))
}
