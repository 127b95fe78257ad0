package event

import (
	"bytes"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	sha256simd "github.com/minio/sha256-simd"

	"knotrelay.dev/errorf"
)

// Reason identifies why validation rejected a raw event, per spec.md §4.1.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonMalformed       Reason = "malformed"
	ReasonInvalidId       Reason = "invalid-id"
	ReasonInvalidSignature Reason = "invalid-signature"
)

// ComputeId hashes the canonical serialization with sha256-simd — the
// dominant per-ingest CPU cost noted in spec.md §9, hence the SIMD
// implementation rather than stdlib crypto/sha256.
func (e *E) ComputeId() []byte {
	sum := sha256simd.Sum256(e.CanonicalSerialize())
	return sum[:]
}

// Verify checks the BIP-340 schnorr signature over ComputeId() under Pubkey.
func (e *E) Verify() (bool, error) {
	pk, err := schnorr.ParsePubKey(e.Pubkey)
	if err != nil {
		return false, err
	}
	sig, err := schnorr.ParseSignature(e.Sig)
	if err != nil {
		return false, err
	}
	return sig.Verify(e.ComputeId(), pk), nil
}

// Validate parses a raw NIP-01 EVENT object, recomputes its id, and verifies
// its signature. This is pure and side-effect free, per spec.md §4.1's
// rationale: the connection task runs it synchronously, before queueing to
// the ingest pipeline, to keep the single-writer cheap.
func Validate(raw []byte) (ev *E, reason Reason, err error) {
	ev = &E{}
	if err = ev.UnmarshalJSON(raw); err != nil {
		return nil, ReasonMalformed, errorf.E("malformed event: %w", err)
	}
	want := ev.ComputeId()
	if !bytes.Equal(want, ev.Id) {
		return nil, ReasonInvalidId, errorf.W("event id is computed incorrectly")
	}
	ok, verr := ev.Verify()
	if verr != nil {
		return nil, ReasonInvalidSignature, errorf.E("signature verification failed: %w", verr)
	}
	if !ok {
		return nil, ReasonInvalidSignature, errorf.W("signature is invalid")
	}
	return ev, ReasonNone, nil
}

// PublicKeyBytes derives the 32-byte x-only pubkey bytes for a parsed
// btcec public key, used by tests to build signed events.
func PublicKeyBytes(pk *btcec.PublicKey) []byte {
	return schnorr.SerializePubKey(pk)
}
