// Package ratelimit wraps golang.org/x/time/rate with the jittered-wait
// shape the original relay's governor-crate quotas used (Quota::per_minute
// plus Jitter::up_to(100ms)), so a burst of legitimate REQ frames is spread
// out rather than rejected outright. Per-connection limiters are cheap
// enough to build one per socket, matching spec.md §4.6's "subscription
// creation is rate limited per connection".
package ratelimit

import (
	"math/rand"
	"time"

	"golang.org/x/time/rate"

	"knotrelay.dev/xcontext"
)

// Limiter bounds an operation to a rate, with a small random jitter added
// to Wait so many connections released from the same tick don't all retry
// in lockstep.
type Limiter struct {
	rl     *rate.Limiter
	jitter time.Duration
}

// PerMinute builds a Limiter that allows n operations per minute, bursting
// up to burst at once, with up to jitter of extra random delay on Wait.
func PerMinute(n int, burst int, jitter time.Duration) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		rl:     rate.NewLimiter(rate.Limit(float64(n)/60.0), burst),
		jitter: jitter,
	}
}

// Allow reports whether an operation may proceed right now, consuming a
// token if so. It is the non-blocking counterpart to Wait; subscription
// creation in wsconn uses Wait, not Allow.
func (l *Limiter) Allow() bool { return l.rl.Allow() }

// Wait blocks until a token is available or ctx is done, then sleeps an
// additional random jitter in [0, jitter).
func (l *Limiter) Wait(ctx xcontext.T) error {
	if err := l.rl.Wait(ctx); err != nil {
		return err
	}
	if l.jitter <= 0 {
		return nil
	}
	select {
	case <-time.After(time.Duration(rand.Int63n(int64(l.jitter)))):
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}
