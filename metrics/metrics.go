// Package metrics is the relay's lock-free counter set. spec.md places
// "metrics registry plumbing" out of scope — an exporter (Prometheus or
// otherwise) is an external collaborator this package does not implement —
// but the counters themselves are ambient and always carried, per spec.md §5
// ("Global mutable state. Only metrics counters; use lock-free atomics").
package metrics

import "go.uber.org/atomic"

// M is the process-wide counter set, created at init, read at any time, with
// no reset/flush lifecycle beyond process exit (an exporter, if wired, would
// own that).
type M struct {
	Connections     atomic.Int64
	Disconnects     atomic.Int64
	DisconnectsIdle atomic.Int64
	DisconnectsErr  atomic.Int64

	EventsReceived atomic.Int64
	EventsStored   atomic.Int64
	EventsDup      atomic.Int64
	EventsRejected atomic.Int64

	SubscriptionsOpened atomic.Int64
	SubscriptionsClosed atomic.Int64

	EventsSentHistorical atomic.Int64
	EventsSentLive       atomic.Int64

	BroadcastLagged atomic.Int64
}

// Default is the process-wide instance; every component increments it
// directly through this package-level variable.
var Default = &M{}
