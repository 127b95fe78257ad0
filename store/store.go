// Package store is the persistence-layer contract, kept small and
// interface-first per spec.md §9 ("Dynamic dispatch over the store... a
// small trait/interface; no reflection") so a networked backend could stand
// in for the embedded one without touching the ingest pipeline or
// connection task.
package store

import (
	"errors"

	"knotrelay.dev/event"
	"knotrelay.dev/filter"
	"knotrelay.dev/xcontext"
)

// InsertResult reports what Insert actually did.
type InsertResult int

const (
	Inserted InsertResult = iota
	Duplicate
)

// Kind identifies a StoreError's category, per spec.md §7's taxonomy.
type Kind int

const (
	Unavailable Kind = iota
	Corrupt
	Conflict
)

// StoreError wraps a store failure together with its Kind. Callers in this
// module log it and do not branch on Kind.
type StoreError struct {
	Kind Kind
	Err  error
}

func (e *StoreError) Error() string { return e.Err.Error() }
func (e *StoreError) Unwrap() error { return e.Err }

// ErrDuplicate is not returned by Insert: Insert reports Duplicate via
// InsertResult, not an error, since a duplicate isn't a failure.
var ErrDuplicate = errors.New("duplicate event")

// I is the persistence capability set spec.md §4.3 and §9 describe.
type I interface {
	// Insert is idempotent on event identifier. A successful return implies
	// the event is durable (spec.md §4.3's invariant).
	Insert(ctx xcontext.T, ev *event.E) (InsertResult, error)

	// Query streams matching stored events to out in unspecified order,
	// closing out when done. It stops as soon as practical when ctx is
	// canceled, without corrupting the store.
	Query(ctx xcontext.T, fs filter.Filters, out chan<- *event.E) error

	// QueryAllForAuthor streams every event by pubkey, for bulk export.
	QueryAllForAuthor(ctx xcontext.T, pubkey []byte, out chan<- *event.E) error

	// DeleteEvent tombstones an event: its row and indexes are removed, but
	// its id is retained in a deletion log so later resubmission is
	// rejected (spec.md §5 SUPPLEMENTED FEATURES, NIP-09).
	DeleteEvent(ctx xcontext.T, id []byte) error

	// Close releases the store's worker pool and on-disk handles.
	Close() error
}
