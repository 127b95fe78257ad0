package ingest

import (
	"encoding/hex"
	"sync"

	"knotrelay.dev/event"
	"knotrelay.dev/normalize"
)

func decodeHexID(s string) ([]byte, error) {
	return hex.DecodeString(s)
}

// Blacklist is an Admitter that rejects events from a fixed set of pubkeys,
// the simplest of spec.md §1's named-but-out-of-scope admission policies
// given a concrete, ready-to-wire implementation rather than left as a bare
// interface.
type Blacklist struct {
	mu      sync.RWMutex
	pubkeys map[string]bool
}

// NewBlacklist builds a Blacklist from hex-encoded pubkeys.
func NewBlacklist(hexPubkeys ...string) *Blacklist {
	b := &Blacklist{pubkeys: make(map[string]bool, len(hexPubkeys))}
	for _, pk := range hexPubkeys {
		b.pubkeys[pk] = true
	}
	return b
}

// Block adds a pubkey to the blacklist at runtime.
func (b *Blacklist) Block(hexPubkey string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pubkeys[hexPubkey] = true
}

// Admit implements Admitter.
func (b *Blacklist) Admit(ev *event.E) (bool, []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.pubkeys[hex.EncodeToString(ev.Pubkey)] {
		return false, normalize.Blocked.F("pubkey is blocked")
	}
	return true, nil
}
