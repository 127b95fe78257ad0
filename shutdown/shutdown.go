// Package shutdown is the one-shot fan-out signal every long-lived task
// observes: connection tasks (via the ctx wsconn.New derives from it),
// the ingest pipeline, and the HTTP server's own Shutdown all select on the
// same Done channel so a single Trigger call unwinds the whole process in
// one step, grounded on the teacher's root main.go interrupt handling.
package shutdown

import "sync"

// Fanout is a closed-once signal. The zero value is ready to use.
type Fanout struct {
	once sync.Once
	done chan struct{}
}

// New builds a ready-to-use Fanout.
func New() *Fanout {
	return &Fanout{done: make(chan struct{})}
}

// Done returns the channel that closes when Trigger is first called.
func (f *Fanout) Done() <-chan struct{} { return f.done }

// Trigger closes Done. Safe to call more than once or concurrently; only
// the first call has any effect.
func (f *Fanout) Trigger() {
	f.once.Do(func() { close(f.done) })
}

// Triggered reports whether Trigger has already run.
func (f *Fanout) Triggered() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}
