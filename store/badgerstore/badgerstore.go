package badgerstore

import (
	"os"

	"github.com/dgraph-io/badger/v4"

	"knotrelay.dev/chk"
	"knotrelay.dev/log"
	"knotrelay.dev/store"
)

// D is the badger-backed store.I implementation. One D is shared read-mostly
// across every connection task; only the ingest pipeline calls Insert
// (spec.md §5's "Shared-resource policy").
type D struct {
	db  *badger.DB
	seq *badger.Sequence
}

var _ store.I = (*D)(nil)

// Open creates or opens a badger database rooted at dataDir, grounded on the
// teacher's database.New.
func Open(dataDir string) (d *D, err error) {
	if err = os.MkdirAll(dataDir, 0o755); chk.E(err) {
		return nil, err
	}
	opts := badger.DefaultOptions(dataDir)
	opts.Logger = nil
	var db *badger.DB
	if db, err = badger.Open(opts); chk.E(err) {
		return nil, err
	}
	d = &D{db: db}
	if d.seq, err = db.GetSequence([]byte("events"), 1000); chk.E(err) {
		_ = db.Close()
		return nil, err
	}
	log.I.F("opened event store at %s", dataDir)
	return d, nil
}

// Close releases the sequence lease and the database handles, per spec.md
// §4.8's shutdown contract ("the store releases its worker pool").
func (d *D) Close() (err error) {
	if d.seq != nil {
		_ = d.seq.Release()
	}
	if d.db != nil {
		err = d.db.Close()
	}
	return
}

func storeErr(kind store.Kind, err error) error {
	if err == nil {
		return nil
	}
	return &store.StoreError{Kind: kind, Err: err}
}
