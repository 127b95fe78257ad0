package badgerstore

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/dgraph-io/badger/v4"

	"knotrelay.dev/event"
	"knotrelay.dev/log"
	"knotrelay.dev/store"
	"knotrelay.dev/xcontext"
)

// Insert is idempotent on ev.Id: a successful Inserted return implies the
// event is durable (spec.md §4.3). Ephemeral events are accepted but never
// persisted, per SPEC_FULL.md §5. Replaceable and parameterized-replaceable
// events delete the event they supersede in the same transaction as the new
// write; an incoming event older than the stored one, or with the same
// created_at and a larger id, is not written and reports Duplicate —
// grounded on the teacher's Server.Publish.
func (d *D) Insert(ctx xcontext.T, ev *event.E) (res store.InsertResult, err error) {
	if ev.Kind.IsEphemeral() {
		return store.Inserted, nil
	}

	err = d.db.Update(func(txn *badger.Txn) error {
		if _, terr := txn.Get(tombstoneKey(ev.Id)); terr == nil {
			// previously deleted: resubmission is not a fresh insert, but
			// also not a failure worth surfacing as one; treat as
			// duplicate so the caller emits "OK true" with an
			// informational message rather than persisting a dead event.
			res = store.Duplicate
			return nil
		}
		if _, gerr := txn.Get(eventKey(ev.Id)); gerr == nil {
			res = store.Duplicate
			return nil
		} else if gerr != badger.ErrKeyNotFound {
			return gerr
		}

		if ev.Kind.IsReplaceable() {
			if err := deleteSuperseded(txn, replaceKey(ev.Pubkey, uint16(ev.Kind)), ev); err == errNotReplacing {
				res = store.Duplicate
				return nil
			} else if err != nil {
				return err
			}
		} else if ev.Kind.IsParameterizedReplaceable() {
			if err := deleteSuperseded(txn, paramReplaceKey(ev.Pubkey, uint16(ev.Kind), ev.DTag()), ev); err == errNotReplacing {
				res = store.Duplicate
				return nil
			} else if err != nil {
				return err
			}
		}

		if err := writeEvent(txn, ev); err != nil {
			return err
		}

		if ev.Kind.IsReplaceable() {
			if err := txn.Set(replaceKey(ev.Pubkey, uint16(ev.Kind)), ev.Id); err != nil {
				return err
			}
		} else if ev.Kind.IsParameterizedReplaceable() {
			if err := txn.Set(paramReplaceKey(ev.Pubkey, uint16(ev.Kind), ev.DTag()), ev.Id); err != nil {
				return err
			}
		}
		res = store.Inserted
		return nil
	})
	if err != nil {
		return store.Duplicate, storeErr(store.Unavailable, err)
	}
	return res, nil
}

// errNotReplacing is returned by deleteSuperseded when the stored event wins.
var errNotReplacing = errors.New("stored replaceable event is newer")

// deleteSuperseded looks up the current holder of a replace/paramReplace
// pointer key and, if ev supersedes it (ev is newer, or has the same
// created_at and a smaller id), removes it and its indexes within the same
// transaction. If the existing event wins, it reports that by returning
// errNotReplacing so the caller treats the incoming event as a
// no-op-but-not-an-error duplicate.
func deleteSuperseded(txn *badger.Txn, ptrKey []byte, ev *event.E) error {
	item, err := txn.Get(ptrKey)
	if err == badger.ErrKeyNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	var oldID []byte
	if oldID, err = item.ValueCopy(nil); err != nil {
		return err
	}
	if bytes.Equal(oldID, ev.Id) {
		return nil
	}
	old, err := fetchEventTxn(txn, oldID)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	}
	if old.CreatedAt > ev.CreatedAt ||
		(old.CreatedAt == ev.CreatedAt && bytes.Compare(old.Id, ev.Id) < 0) {
		log.T.F("not replacing newer event %x with %x", old.Id, ev.Id)
		return errNotReplacing
	}
	return deleteEventTxn(txn, old)
}

func writeEvent(txn *badger.Txn, ev *event.E) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err = txn.Set(eventKey(ev.Id), b); err != nil {
		return err
	}
	if err = txn.Set(createdIndexKey(ev.CreatedAt, ev.Id), ev.Id); err != nil {
		return err
	}
	if err = txn.Set(authorIndexKey(ev.Pubkey, ev.CreatedAt, ev.Id), ev.Id); err != nil {
		return err
	}
	if err = txn.Set(kindIndexKey(uint16(ev.Kind), ev.CreatedAt, ev.Id), ev.Id); err != nil {
		return err
	}
	for _, v := range ev.ETags() {
		if err = txn.Set(eTagIndexKey(v, ev.CreatedAt, ev.Id), ev.Id); err != nil {
			return err
		}
	}
	for _, v := range ev.PTags() {
		if err = txn.Set(pTagIndexKey(v, ev.CreatedAt, ev.Id), ev.Id); err != nil {
			return err
		}
	}
	return nil
}

func fetchEventTxn(txn *badger.Txn, id []byte) (*event.E, error) {
	item, err := txn.Get(eventKey(id))
	if err != nil {
		return nil, err
	}
	var ev event.E
	if err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &ev)
	}); err != nil {
		return nil, err
	}
	return &ev, nil
}

func deleteEventTxn(txn *badger.Txn, ev *event.E) error {
	if err := txn.Delete(eventKey(ev.Id)); err != nil {
		return err
	}
	if err := txn.Delete(createdIndexKey(ev.CreatedAt, ev.Id)); err != nil {
		return err
	}
	if err := txn.Delete(authorIndexKey(ev.Pubkey, ev.CreatedAt, ev.Id)); err != nil {
		return err
	}
	if err := txn.Delete(kindIndexKey(uint16(ev.Kind), ev.CreatedAt, ev.Id)); err != nil {
		return err
	}
	for _, v := range ev.ETags() {
		if err := txn.Delete(eTagIndexKey(v, ev.CreatedAt, ev.Id)); err != nil {
			return err
		}
	}
	for _, v := range ev.PTags() {
		if err := txn.Delete(pTagIndexKey(v, ev.CreatedAt, ev.Id)); err != nil {
			return err
		}
	}
	return nil
}
