package badgerstore

import (
	"encoding/binary"
	"time"

	"github.com/dgraph-io/badger/v4"

	"knotrelay.dev/xcontext"
)

// DeleteEvent tombstones id: its row and every secondary index entry are
// removed, and a t: marker is left behind so a later resubmission of the
// same id is rejected by Insert rather than silently re-accepted — the
// NIP-09 behavior supplemented from the teacher's database.go deletion
// path, which keeps a permanent record of what was deleted rather than
// simply forgetting it.
func (d *D) DeleteEvent(ctx xcontext.T, id []byte) error {
	return d.db.Update(func(txn *badger.Txn) error {
		ev, err := fetchEventTxn(txn, id)
		if err == badger.ErrKeyNotFound {
			return writeTombstone(txn, id)
		}
		if err != nil {
			return err
		}
		if err = deleteEventTxn(txn, ev); err != nil {
			return err
		}
		return writeTombstone(txn, id)
	})
}

func writeTombstone(txn *badger.Txn, id []byte) error {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(time.Now().Unix()))
	return txn.Set(tombstoneKey(id), b)
}
