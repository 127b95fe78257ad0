// Package event is the canonical event model: the immutable, hash-identified
// record submitted by clients and persisted by the store. Grounded on the
// teacher's encoders/event package (codec split across wire/canonical/binary
// forms) and NIP-01 itself.
package event

import (
	"knotrelay.dev/tags"
)

// E is one nostr event. Immutable once Validate has returned it.
type E struct {
	Id        []byte   // 32 bytes, sha256 of the canonical serialization
	Pubkey    []byte   // 32 bytes, BIP-340 x-only
	CreatedAt int64    // seconds since epoch
	Kind      Kind
	Tags      tags.T
	Content   string
	Sig       []byte // 64 bytes, BIP-340 schnorr
}

// S is a slice of events.
type S []*E

// C is a channel of events. The broadcast bus and store queries use plain
// chan *E rather than this named type.
type C chan *E

// ETags returns the values of every "e" tag (referenced event ids).
func (e *E) ETags() []string { return e.Tags.Values("e") }

// PTags returns the values of every "p" tag (referenced pubkeys).
func (e *E) PTags() []string { return e.Tags.Values("p") }

// Expiration returns the NIP-40 expiration timestamp, and whether one was
// present.
func (e *E) Expiration() (ts int64, ok bool) {
	t := e.Tags.GetFirst("expiration")
	if t == nil || t.Value() == "" {
		return 0, false
	}
	var v int64
	for _, c := range t.Value() {
		if c < '0' || c > '9' {
			return 0, false
		}
		v = v*10 + int64(c-'0')
	}
	return v, true
}

// IsExpired reports whether the event carries an expiration tag whose value
// is at or before now.
func (e *E) IsExpired(now int64) bool {
	ts, ok := e.Expiration()
	return ok && ts <= now
}

// IsWithinFutureBound reports whether CreatedAt is no further in the future
// than now+maxSkew. maxSkew of 0 means unbounded (always true).
func (e *E) IsWithinFutureBound(now int64, maxSkew int64) bool {
	if maxSkew == 0 {
		return true
	}
	return e.CreatedAt <= now+maxSkew
}

// DTag returns the value of the first "d" tag, used to key parameterized
// replaceable events.
func (e *E) DTag() string {
	return e.Tags.GetFirst("d").Value()
}
