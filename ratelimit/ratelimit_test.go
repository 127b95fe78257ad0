package ratelimit_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"knotrelay.dev/ratelimit"
	"knotrelay.dev/xcontext"
)

func TestAllowRespectsBurst(t *testing.T) {
	l := ratelimit.PerMinute(60, 2, 0)
	require.True(t, l.Allow())
	require.True(t, l.Allow())
	require.False(t, l.Allow())
}

func TestWaitBlocksUntilTokenAvailable(t *testing.T) {
	l := ratelimit.PerMinute(600, 1, 0)
	require.True(t, l.Allow())

	ctx, cancel := xcontext.Timeout(xcontext.Bg(), 2*time.Second)
	defer cancel()

	start := time.Now()
	require.NoError(t, l.Wait(ctx))
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestWaitReturnsErrOnCanceledContext(t *testing.T) {
	l := ratelimit.PerMinute(1, 1, 0)
	require.True(t, l.Allow())

	ctx, cancel := xcontext.Timeout(xcontext.Bg(), 10*time.Millisecond)
	defer cancel()

	err := l.Wait(ctx)
	require.Error(t, err)
}
