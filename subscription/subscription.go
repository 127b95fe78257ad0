// Package subscription is the per-connection REQ registration: an id and an
// ordered, disjunctive set of filters, plus the two derived flags spec.md
// §3/§4.2 define: NeedsHistorical and IsScraper.
package subscription

import (
	"knotrelay.dev/event"
	"knotrelay.dev/filter"
)

// Sub is one open subscription.
type Sub struct {
	ID      string
	Filters filter.Filters
}

// New builds a subscription from an id and its filter set.
func New(id string, fs filter.Filters) *Sub {
	return &Sub{ID: id, Filters: fs}
}

// Matches reports whether ev satisfies any filter — the live-path matcher.
func (s *Sub) Matches(ev *event.E) bool { return s.Filters.Matches(ev) }

// InterestedIn is a synonym for Matches used by the live broadcast path, per
// spec.md §4.2.
func (s *Sub) InterestedIn(ev *event.E) bool { return s.Matches(ev) }

// NeedsHistorical reports false iff every filter has Since >= now (nothing
// historical could match), per spec.md §4.2 and §4.3.
func (s *Sub) NeedsHistorical(now int64) bool {
	for _, f := range s.Filters {
		if f.NeedsHistorical(now) {
			return true
		}
	}
	return false
}

// IsScraper reports whether no filter in the set constrains anything beyond
// time bounds: the heuristic spec.md §3 assigns a subscription for policy
// purposes (e.g. §4.6's scraper short-circuit).
func (s *Sub) IsScraper() bool {
	for _, f := range s.Filters {
		if f.IsSelective() {
			return false
		}
	}
	return true
}
