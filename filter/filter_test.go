package filter_test

import (
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"knotrelay.dev/event"
	"knotrelay.dev/filter"
	"knotrelay.dev/tags"
)

const (
	testID     = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	testPubkey = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

func mkEvent(t *testing.T, idHex, pubkeyHex string, kind event.Kind, createdAt int64, tagList tags.T) *event.E {
	t.Helper()
	idb, err := hex.DecodeString(idHex)
	require.NoError(t, err)
	pkb, err := hex.DecodeString(pubkeyHex)
	require.NoError(t, err)
	return &event.E{Id: idb, Pubkey: pkb, Kind: kind, CreatedAt: createdAt, Tags: tagList}
}

func TestMatchAuthorAndKind(t *testing.T) {
	ev := mkEvent(t, testID, testPubkey, event.KindText, 1000, nil)
	f := &filter.F{Authors: []string{testPubkey}, Kinds: []uint16{1}}
	require.True(t, f.Match(ev))

	f2 := &filter.F{Kinds: []uint16{7}}
	require.False(t, f2.Match(ev))
}

func TestMatchTimeBounds(t *testing.T) {
	ev := mkEvent(t, testID, testPubkey, event.KindText, 1000, nil)
	since, until := int64(900), int64(1100)
	f := &filter.F{Since: &since, Until: &until}
	require.True(t, f.Match(ev))

	past := int64(1001)
	f2 := &filter.F{Since: &past}
	require.False(t, f2.Match(ev))
}

func TestMatchETag(t *testing.T) {
	ev := mkEvent(t, testID, testPubkey, event.KindText, 1000, tags.T{{"e", "deadbeef"}})
	f := &filter.F{ETags: []string{"deadbeef"}}
	require.True(t, f.Match(ev))

	f2 := &filter.F{ETags: []string{"someoneelse"}}
	require.False(t, f2.Match(ev))
}

func TestIsSelectiveAndNeedsHistorical(t *testing.T) {
	f := filter.New()
	require.False(t, f.IsSelective())

	f.Authors = []string{testPubkey}
	require.True(t, f.IsSelective())

	since := int64(2000)
	f.Since = &since
	require.False(t, f.NeedsHistorical(1000))
	require.True(t, f.NeedsHistorical(3000))
}

func TestUnmarshalRejectsNonHex(t *testing.T) {
	raw := []byte(`{"ids":["not-hex!"]}`)
	f := filter.New()
	err := json.Unmarshal(raw, f)
	require.Error(t, err)
}

func TestUnmarshalRoundTrip(t *testing.T) {
	raw := []byte(`{"authors":["ab12"],"kinds":[1,7],"limit":10}`)
	f := filter.New()
	require.NoError(t, json.Unmarshal(raw, f))
	require.Equal(t, []string{"ab12"}, f.Authors)
	require.Equal(t, []uint16{1, 7}, f.Kinds)
	require.NotNil(t, f.Limit)
	require.Equal(t, 10, *f.Limit)
}
