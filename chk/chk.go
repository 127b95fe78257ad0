// Package chk provides one-line error-check-and-log helpers, in the shape
// `if err = x(); chk.E(err) { return }`, used pervasively instead of the
// more verbose `if err != nil { log...; return }` that Go would otherwise
// need at every call site.
package chk

import "knotrelay.dev/log"

// E logs err at error level and reports whether it was non-nil.
func E(err error) bool {
	if err == nil {
		return false
	}
	log.E.F("%v", err)
	return true
}

// T logs err at trace level and reports whether it was non-nil. Use this on
// paths where failure is expected or benign (e.g. a duplicate-key insert)
// and shouldn't clutter error-level logs.
func T(err error) bool {
	if err == nil {
		return false
	}
	log.T.F("%v", err)
	return true
}
