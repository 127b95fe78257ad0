package wsconn

import (
	"testing"

	"github.com/stretchr/testify/require"

	"knotrelay.dev/filter"
)

func TestClampLimitFillsDefault(t *testing.T) {
	f := filter.New()
	clampLimit(f, 500, 5000)
	require.NotNil(t, f.Limit)
	require.Equal(t, 500, *f.Limit)
}

func TestClampLimitCapsAtMax(t *testing.T) {
	lim := 999999
	f := &filter.F{Limit: &lim}
	clampLimit(f, 500, 5000)
	require.Equal(t, 5000, *f.Limit)
}

func TestClampLimitLeavesReasonableLimitAlone(t *testing.T) {
	lim := 50
	f := &filter.F{Limit: &lim}
	clampLimit(f, 500, 5000)
	require.Equal(t, 50, *f.Limit)
}

func TestClampLimitSkipsDefaultWhenZero(t *testing.T) {
	f := filter.New()
	clampLimit(f, 0, 5000)
	require.Nil(t, f.Limit)
}
