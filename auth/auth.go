// Package auth implements NIP-42 relay-requested authentication: a random
// per-connection challenge and validation of the kind-22242 event a client
// signs in response. Grounded on the teacher's challenge-issuing handshake
// and the original relay's nostr_server auth branch.
package auth

import (
	"encoding/hex"

	"lukechampine.com/frand"

	"knotrelay.dev/event"
)

// NewChallenge returns a fresh random challenge string, sent to the client
// in an AUTH frame as soon as the connection is accepted.
func NewChallenge() string {
	b := make([]byte, 16)
	frand.Read(b)
	return hex.EncodeToString(b)
}

// State tracks one connection's auth handshake: the challenge it was sent,
// and the pubkey it authenticated as once Validate succeeds.
type State struct {
	Challenge string
	Pubkey    []byte
}

// New builds a State with a freshly generated challenge.
func New() *State {
	return &State{Challenge: NewChallenge()}
}

// Validate checks ev against this State's challenge and relayURL, per
// NIP-42: kind must be 22242, the "relay" tag must name this relay, the
// "challenge" tag must equal the challenge issued, and created_at must be
// within skewSeconds of now. ev's signature must already have been verified
// by the caller (event.Validate) before Validate is called. On success,
// s.Pubkey is set and true is returned.
func (s *State) Validate(ev *event.E, relayURL string, now int64, skewSeconds int64) bool {
	if ev.Kind != event.KindAuth {
		return false
	}
	if ev.Tags.GetFirst("relay").Value() != relayURL {
		return false
	}
	if ev.Tags.GetFirst("challenge").Value() != s.Challenge {
		return false
	}
	d := ev.CreatedAt - now
	if d < 0 {
		d = -d
	}
	if d > skewSeconds {
		return false
	}
	s.Pubkey = ev.Pubkey
	return true
}

// Authenticated reports whether Validate has succeeded on this State.
func (s *State) Authenticated() bool { return s.Pubkey != nil }
