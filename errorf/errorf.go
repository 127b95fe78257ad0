// Package errorf provides small wrappers over fmt.Errorf for the two shapes
// used throughout knotrelay: E for an error that should propagate as a wrapped
// %w chain, W for one that is flattened into a plain string (crossing a
// boundary, e.g. into a NOTICE payload, where %w's wrapping is pointless).
package errorf

import "fmt"

// E wraps arguments with fmt.Errorf, preserving %w chains.
func E(format string, a ...interface{}) error { return fmt.Errorf(format, a...) }

// W formats a flat error without preserving a %w chain.
func W(format string, a ...interface{}) error {
	return fmt.Errorf("%s", fmt.Sprintf(format, a...))
}
