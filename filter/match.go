package filter

import "knotrelay.dev/event"

// Match reports whether ev satisfies every present predicate in f.
func (f *F) Match(ev *event.E) bool {
	if len(f.Ids) > 0 && !containsHexPrefix(f.Ids, ev.Id) {
		return false
	}
	if len(f.Authors) > 0 && !containsHexPrefix(f.Authors, ev.Pubkey) {
		return false
	}
	if len(f.Kinds) > 0 && !containsKind(f.Kinds, ev.Kind) {
		return false
	}
	if len(f.ETags) > 0 && !intersects(f.ETags, ev.ETags()) {
		return false
	}
	if len(f.PTags) > 0 && !intersects(f.PTags, ev.PTags()) {
		return false
	}
	if f.Since != nil && ev.CreatedAt < *f.Since {
		return false
	}
	if f.Until != nil && ev.CreatedAt > *f.Until {
		return false
	}
	return true
}

// Matches reports whether any filter in fs matches ev — the disjunctive
// match a subscription performs.
func (fs Filters) Matches(ev *event.E) bool {
	for _, f := range fs {
		if f.Match(ev) {
			return true
		}
	}
	return false
}

func containsKind(kinds []uint16, k event.Kind) bool {
	for _, want := range kinds {
		if event.Kind(want) == k {
			return true
		}
	}
	return false
}

func intersects(want []string, have []string) bool {
	for _, w := range want {
		for _, h := range have {
			if w == h {
				return true
			}
		}
	}
	return false
}

func containsHexPrefix(prefixes []string, id []byte) bool {
	h := hexEncode(id)
	for _, p := range prefixes {
		if len(p) <= len(h) && h[:len(p)] == p {
			return true
		}
	}
	return false
}
