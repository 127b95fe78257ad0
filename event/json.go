package event

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"knotrelay.dev/tags"
)

// wireForm mirrors the NIP-01 EVENT object field names, used only at the
// JSON boundary; internal code always works with *E.
type wireForm struct {
	Id        string     `json:"id"`
	Pubkey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      Kind       `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig"`
}

// MarshalJSON renders the event in NIP-01 wire form.
func (e *E) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireForm{
		Id:        hex.EncodeToString(e.Id),
		Pubkey:    hex.EncodeToString(e.Pubkey),
		CreatedAt: e.CreatedAt,
		Kind:      e.Kind,
		Tags:      e.Tags.ToStringSlices(),
		Content:   e.Content,
		Sig:       hex.EncodeToString(e.Sig),
	})
}

// UnmarshalJSON parses a NIP-01 EVENT object without validating its
// signature or id — callers needing validated events must go through
// Validate.
func (e *E) UnmarshalJSON(b []byte) error {
	var w wireForm
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	return e.fromWire(&w)
}

func (e *E) fromWire(w *wireForm) (err error) {
	if e.Id, err = decodeHexLen(w.Id, 32, "id"); err != nil {
		return
	}
	if e.Pubkey, err = decodeHexLen(w.Pubkey, 32, "pubkey"); err != nil {
		return
	}
	if e.Sig, err = decodeHexLen(w.Sig, 64, "sig"); err != nil {
		return
	}
	e.CreatedAt = w.CreatedAt
	e.Kind = w.Kind
	e.Content = w.Content
	e.Tags = tags.FromStringSlices(w.Tags)
	return
}

func decodeHexLen(s string, n int, field string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	if n > 0 && len(b) != n {
		return nil, fmt.Errorf("%s: expected %d bytes, got %d", field, n, len(b))
	}
	return b, nil
}

// CanonicalSerialize produces the array `[0, pubkey, created_at, kind, tags,
// content]` as compact JSON with no extraneous whitespace — the exact bytes
// hashed to produce Id and signed to produce Sig, per NIP-01. Tags and
// content are quoted by hand rather than through encoding/json: Marshal
// HTML-escapes '<', '>' and '&' by default, which would make this relay
// compute a different id than every client for the (extremely common)
// content containing a bare '&' or '<', such as a URL query string. This
// mirrors the teacher's own writer, which hand-quotes for the same reason.
func (e *E) CanonicalSerialize() []byte {
	var buf bytes.Buffer
	buf.WriteString(`[0,"`)
	buf.WriteString(hex.EncodeToString(e.Pubkey))
	buf.WriteString(`",`)
	fmt.Fprintf(&buf, "%d,%d,", e.CreatedAt, e.Kind)
	appendCanonicalTags(&buf, e.Tags)
	buf.WriteByte(',')
	appendCanonicalString(&buf, e.Content)
	buf.WriteByte(']')
	return buf.Bytes()
}

// appendCanonicalTags writes a tag list as `[["e","..."],["p","..."]]`.
func appendCanonicalTags(buf *bytes.Buffer, tl tags.T) {
	buf.WriteByte('[')
	for i, t := range tl {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('[')
		for j, v := range t {
			if j > 0 {
				buf.WriteByte(',')
			}
			appendCanonicalString(buf, v)
		}
		buf.WriteByte(']')
	}
	buf.WriteByte(']')
}

// appendCanonicalString quotes s the way NIP-01 requires: '"', '\\' and the
// control characters get escaped, everything else — including '<', '>', '&'
// and multi-byte UTF-8 sequences — passes through untouched, so the bytes
// hashed here match byte-for-byte what every other NIP-01 implementation
// produces for the same string.
func appendCanonicalString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if c < 0x20 {
				fmt.Fprintf(buf, `\u%04x`, c)
			} else {
				buf.WriteByte(c)
			}
		}
	}
	buf.WriteByte('"')
}

// Serialize renders the event's wire-form JSON, used for log lines and for
// embedding in EVENT/OK frames.
func (e *E) Serialize() []byte {
	b, _ := json.Marshal(e)
	return b
}

