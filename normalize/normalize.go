// Package normalize builds the prefixed human-readable messages NIP-01
// expects on NOTICE and OK frames: "invalid: ...", "error: ...", "blocked:
// ...", "duplicate: ...", "rate-limited: ...". Grounded on the teacher's
// normalize.Invalid.F(...) / normalize.Error.F(...) call-site idiom.
package normalize

import "fmt"

// Reason is a message-prefixing function, called like Invalid.F("...", a...).
type Reason struct{ prefix string }

// F formats a message with this reason's NIP-01 prefix.
func (r Reason) F(format string, a ...interface{}) []byte {
	return []byte(r.prefix + fmt.Sprintf(format, a...))
}

var (
	Invalid     = Reason{"invalid: "}
	Error       = Reason{"error: "}
	Blocked     = Reason{"blocked: "}
	Duplicate   = Reason{"duplicate: "}
	RateLimited = Reason{"rate-limited: "}
	Restricted  = Reason{"restricted: "}
)
