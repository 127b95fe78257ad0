package badgerstore

import (
	"bytes"
	"encoding/hex"
	"sort"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"golang.org/x/sync/errgroup"

	"knotrelay.dev/event"
	"knotrelay.dev/filter"
	"knotrelay.dev/xcontext"
)

// Query gathers, for each filter in fs, the most selective candidate set the
// available indexes can offer, re-validates every candidate against the
// filter's full predicate set (the index only narrows, it never decides),
// merges and de-duplicates the per-filter results by event id across the
// whole filter set, sorts the merge by (created_at desc, id asc) for a
// deterministic tie-break, applies a single subscription-wide Limit (the
// first non-nil Limit encountered across fs — see DESIGN.md), and streams
// the result to out, checking ctx between rows. out is always closed on
// return, mirroring the teacher's database.QueryEvents contract.
func (d *D) Query(ctx xcontext.T, fs filter.Filters, out chan<- *event.E) (err error) {
	defer close(out)

	var mu sync.Mutex
	seen := make(map[string]*event.E)
	var limit *int
	for _, f := range fs {
		if f.Limit != nil && limit == nil {
			limit = f.Limit
		}
	}

	// Each filter's candidate set is gathered independently, so a
	// subscription with several disjunctive filters doesn't pay for them
	// one at a time against badger's own internal concurrency.
	g, gctx := errgroup.WithContext(ctx)
	for _, f := range fs {
		f := f
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			local := make(map[string]*event.E)
			if gerr := d.gatherFilter(f, local); gerr != nil {
				return gerr
			}
			mu.Lock()
			for k, v := range local {
				seen[k] = v
			}
			mu.Unlock()
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return err
	}

	merged := make([]*event.E, 0, len(seen))
	for _, ev := range seen {
		merged = append(merged, ev)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].CreatedAt != merged[j].CreatedAt {
			return merged[i].CreatedAt > merged[j].CreatedAt
		}
		return bytes.Compare(merged[i].Id, merged[j].Id) < 0
	})
	if limit != nil && *limit >= 0 && len(merged) > *limit {
		merged = merged[:*limit]
	}

	for i, ev := range merged {
		if i%32 == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// gatherFilter adds every stored event matching f into seen, keyed by hex
// event id so repeated candidates across filters collapse naturally.
func (d *D) gatherFilter(f *filter.F, seen map[string]*event.E) error {
	return d.db.View(func(txn *badger.Txn) error {
		ids, scanErr := candidateIDs(txn, f)
		if scanErr != nil {
			return scanErr
		}
		for _, id := range ids {
			key := string(id)
			if _, ok := seen[key]; ok {
				continue
			}
			ev, gerr := fetchEventTxn(txn, id)
			if gerr == badger.ErrKeyNotFound {
				continue
			}
			if gerr != nil {
				return gerr
			}
			if f.Match(ev) {
				seen[key] = ev
			}
		}
		return nil
	})
}

// candidateIDs picks the narrowest index available for f: ids, then
// authors, then kinds, then #e, then #p, falling back to a full
// chronological scan for unconstrained (scraper) filters.
func candidateIDs(txn *badger.Txn, f *filter.F) (ids [][]byte, err error) {
	switch {
	case len(f.Ids) > 0:
		return scanEventPrefixes(txn, f.Ids)
	case len(f.Authors) > 0:
		for _, a := range f.Authors {
			pk, herr := hex.DecodeString(a)
			if herr != nil {
				continue
			}
			if perr := scanPrefix(txn, authorIndexPrefix(pk), &ids); perr != nil {
				return nil, perr
			}
		}
		return ids, nil
	case len(f.Kinds) > 0:
		for _, k := range f.Kinds {
			if perr := scanPrefix(txn, kindIndexPrefix(k), &ids); perr != nil {
				return nil, perr
			}
		}
		return ids, nil
	case len(f.ETags) > 0:
		for _, v := range f.ETags {
			if perr := scanPrefix(txn, eTagIndexPrefix(v), &ids); perr != nil {
				return nil, perr
			}
		}
		return ids, nil
	case len(f.PTags) > 0:
		for _, v := range f.PTags {
			if perr := scanPrefix(txn, pTagIndexPrefix(v), &ids); perr != nil {
				return nil, perr
			}
		}
		return ids, nil
	default:
		if perr := scanPrefix(txn, []byte(prefixByCreated), &ids); perr != nil {
			return nil, perr
		}
		return ids, nil
	}
}

func scanPrefix(txn *badger.Txn, prefix []byte, out *[][]byte) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		v, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		*out = append(*out, v)
	}
	return nil
}

// scanEventPrefixes resolves an Ids filter by hex-prefix matching directly
// against the event table, since a NIP-01 id filter may be a short prefix
// rather than a full 32-byte id.
func scanEventPrefixes(txn *badger.Txn, idPrefixes []string) ([][]byte, error) {
	var out [][]byte
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()
	base := []byte(prefixEvent)
	for it.Seek(base); it.ValidForPrefix(base); it.Next() {
		id := bytes.TrimPrefix(it.Item().Key(), base)
		hexID := hex.EncodeToString(id)
		for _, p := range idPrefixes {
			if len(hexID) >= len(p) && hexID[:len(p)] == p {
				cp := make([]byte, len(id))
				copy(cp, id)
				out = append(out, cp)
				break
			}
		}
	}
	return out, nil
}

// QueryAllForAuthor streams every stored event by pubkey in no particular
// order, for bulk export / NIP-42-gated self-backup use cases.
func (d *D) QueryAllForAuthor(ctx xcontext.T, pubkey []byte, out chan<- *event.E) (err error) {
	defer close(out)
	var ids [][]byte
	if err = d.db.View(func(txn *badger.Txn) error {
		return scanPrefix(txn, authorIndexPrefix(pubkey), &ids)
	}); err != nil {
		return err
	}
	for i, id := range ids {
		if i%32 == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}
		var ev *event.E
		if err = d.db.View(func(txn *badger.Txn) error {
			var gerr error
			ev, gerr = fetchEventTxn(txn, id)
			return gerr
		}); err != nil {
			if err == badger.ErrKeyNotFound {
				continue
			}
			return err
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
