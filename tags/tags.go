// Package tags is an ordered collection of tag.T, with the accessors the
// event and filter layers need: lookup by name, value extraction, and the
// canonical JSON array-of-arrays shape used in wire serialization.
package tags

import "knotrelay.dev/tag"

// T is the ordered tag list of an event.
type T []tag.T

// GetAll returns every tag named name, in order.
func (t T) GetAll(name string) (out T) {
	for _, e := range t {
		if e.Name() == name {
			out = append(out, e)
		}
	}
	return
}

// Values returns the Value() of every tag named name, in order, as spec.md
// §4.1's tag_values accessor. The slice is built in full on each call; it is
// not a lazy iterator.
func (t T) Values(name string) (out []string) {
	for _, e := range t {
		if e.Name() == name {
			out = append(out, e.Value())
		}
	}
	return
}

// GetFirst returns the first tag named name, or nil.
func (t T) GetFirst(name string) tag.T {
	for _, e := range t {
		if e.Name() == name {
			return e
		}
	}
	return nil
}

// Clone returns an independent deep copy.
func (t T) Clone() T {
	c := make(T, len(t))
	for i, e := range t {
		c[i] = e.Clone()
	}
	return c
}

// ToStringSlices renders the tag list as [][]string, the shape used for JSON
// marshaling and canonical serialization.
func (t T) ToStringSlices() [][]string {
	out := make([][]string, len(t))
	for i, e := range t {
		out[i] = []string(e)
	}
	return out
}

// FromStringSlices builds a T from a decoded [][]string, e.g. from JSON.
func FromStringSlices(ss [][]string) T {
	out := make(T, len(ss))
	for i, e := range ss {
		out[i] = tag.T(e)
	}
	return out
}
