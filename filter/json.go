package filter

import (
	"encoding/hex"
	"encoding/json"

	"knotrelay.dev/errorf"
)

type wireForm struct {
	Ids     []string `json:"ids,omitempty"`
	Authors []string `json:"authors,omitempty"`
	Kinds   []uint16 `json:"kinds,omitempty"`
	ETags   []string `json:"#e,omitempty"`
	PTags   []string `json:"#p,omitempty"`
	Since   *int64   `json:"since,omitempty"`
	Until   *int64   `json:"until,omitempty"`
	Limit   *int     `json:"limit,omitempty"`
}

// MarshalJSON renders the filter in NIP-01 wire form. Unknown fields are
// never produced; unknown fields on input are ignored by encoding/json's
// default behavior.
func (f *F) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireForm{
		Ids: f.Ids, Authors: f.Authors, Kinds: f.Kinds,
		ETags: f.ETags, PTags: f.PTags,
		Since: f.Since, Until: f.Until, Limit: f.Limit,
	})
}

// UnmarshalJSON parses a NIP-01 filter object. Per spec.md §4.3's query
// construction policy, every id/author/tag-reference value is rejected
// unless syntactically hex — a non-hex value would otherwise either be
// useless (never equal to a real id) or, worse, corrupt a query built by
// string concatenation; rejecting early keeps both impossible.
func (f *F) UnmarshalJSON(b []byte) error {
	var w wireForm
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	if err := requireHex("ids", w.Ids); err != nil {
		return err
	}
	if err := requireHex("authors", w.Authors); err != nil {
		return err
	}
	if err := requireHex("#e", w.ETags); err != nil {
		return err
	}
	if err := requireHex("#p", w.PTags); err != nil {
		return err
	}
	f.Ids, f.Authors, f.Kinds = w.Ids, w.Authors, w.Kinds
	f.ETags, f.PTags = w.ETags, w.PTags
	f.Since, f.Until, f.Limit = w.Since, w.Until, w.Limit
	return nil
}

func requireHex(field string, values []string) error {
	for _, v := range values {
		if !isHex(v) {
			return errorf.W("%s: %q is not valid hex", field, v)
		}
	}
	return nil
}

func isHex(s string) bool {
	if len(s) == 0 || len(s)%2 != 0 {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

func hexEncode(b []byte) string { return hex.EncodeToString(b) }
