// Package filter is the conjunctive query predicate over a single event, and
// the disjunctive set of them (Filters) a subscription holds. Grounded on
// the teacher's encoders/filter.F and spec.md §3/§4.2/§4.3.
package filter

// F is one filter: every non-nil field must match for F to match an event.
// An empty F matches everything.
type F struct {
	Ids     []string // hex event ids
	Authors []string // hex pubkeys
	Kinds   []uint16
	ETags   []string // values of "e" tags to match against
	PTags   []string // values of "p" tags to match against
	Since   *int64
	Until   *int64
	Limit   *int
}

// Filters is the disjunctive set of F held by a subscription: it matches an
// event iff any member matches.
type Filters []*F

// New returns an empty filter (matches everything).
func New() *F { return &F{} }

// Clone returns a deep copy.
func (f *F) Clone() *F {
	c := &F{}
	c.Ids = append(c.Ids, f.Ids...)
	c.Authors = append(c.Authors, f.Authors...)
	c.Kinds = append(c.Kinds, f.Kinds...)
	c.ETags = append(c.ETags, f.ETags...)
	c.PTags = append(c.PTags, f.PTags...)
	if f.Since != nil {
		v := *f.Since
		c.Since = &v
	}
	if f.Until != nil {
		v := *f.Until
		c.Until = &v
	}
	if f.Limit != nil {
		v := *f.Limit
		c.Limit = &v
	}
	return c
}

// IsSelective reports whether the filter constrains authors, ids, kinds, or
// the reference tag sets — the complement of the scraper heuristic in
// spec.md §4.2.
func (f *F) IsSelective() bool {
	return len(f.Authors) > 0 || len(f.Ids) > 0 || len(f.Kinds) > 0 ||
		len(f.ETags) > 0 || len(f.PTags) > 0
}

// NeedsHistorical reports whether anything already stored could match: false
// when Since is set no earlier than now (nothing historical could match).
func (f *F) NeedsHistorical(now int64) bool {
	return f.Since == nil || *f.Since < now
}
