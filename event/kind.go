package event

// Kind is a nostr event kind number. Named ranges below are NIP-01/NIP-33
// conventions the ingest pipeline (SPEC_FULL.md §5) needs to decide how a
// submitted event is persisted.
type Kind uint16

const (
	KindMetadata  Kind = 0
	KindText      Kind = 1
	KindDeletion  Kind = 5
	KindContacts  Kind = 3
	KindEncryptedDM      Kind = 4
	KindReaction         Kind = 7
	KindChannelMessage   Kind = 44
	KindGiftWrap         Kind = 1059
	KindAuth             Kind = 22242
)

// DirectMessageKinds are the kinds spec.md §4.6 names as requiring
// recipient/author-gated delivery when direct-message authorization is
// enabled.
var DirectMessageKinds = map[Kind]bool{
	KindEncryptedDM:    true,
	KindChannelMessage: true,
	KindGiftWrap:       true,
}

// IsReplaceable reports whether only the newest event per (author, kind)
// should be retained: kind 0, kind 3, and 10000-19999.
func (k Kind) IsReplaceable() bool {
	return k == KindMetadata || k == KindContacts || (k >= 10000 && k < 20000)
}

// IsEphemeral reports whether the event should never be persisted:
// 20000-29999.
func (k Kind) IsEphemeral() bool {
	return k >= 20000 && k < 30000
}

// IsParameterizedReplaceable reports whether only the newest event per
// (author, kind, d-tag) should be retained: 30000-39999.
func (k Kind) IsParameterizedReplaceable() bool {
	return k >= 30000 && k < 40000
}

// IsDeletion reports whether the event is a NIP-09 deletion request.
func (k Kind) IsDeletion() bool { return k == KindDeletion }
