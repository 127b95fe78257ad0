// Package badgerstore is the embedded, file-based store.I implementation
// backed by github.com/dgraph-io/badger/v4, grounded on the teacher's
// database/database.go (badger.Open, sequence lease, WAL-equivalent
// durability via badger's own value log + LSM commit semantics) and the
// schema spec.md §3 describes (event record, event-reference record,
// pubkey-reference record, uniqueness on event hash).
//
// Index layout is simplified from the teacher's zero-allocation binary index
// generator (database/get-indexes-from-filter.go): rather than a query
// planner choosing among a dozen specialized key encodings, each predicate
// that needs fast lookup gets one flat prefix-scanned index, and the final
// candidate set is always re-checked against the full filter before being
// returned. See DESIGN.md for why.
package badgerstore

import (
	"encoding/binary"
	"encoding/hex"
)

const (
	prefixEvent        = "e:"  // e:<id> -> json event
	prefixTombstone    = "t:"  // t:<id> -> be64(deleted_at)
	prefixByCreated    = "c:"  // c:<be64 created_at><id> -> id
	prefixByAuthor     = "a:"  // a:<pubkey hex>:<be64 created_at><id> -> id
	prefixByKind       = "k:"  // k:<be16 kind><be64 created_at><id> -> id
	prefixByETag       = "et:" // et:<value>:<be64 created_at><id> -> id
	prefixByPTag       = "pt:" // pt:<value>:<be64 created_at><id> -> id
	prefixReplace      = "r:"  // r:<pubkey hex><be16 kind> -> id
	prefixParamReplace = "pr:" // pr:<pubkey hex><be16 kind>:<dtag> -> id
)

func be64(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

func be16(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

func eventKey(id []byte) []byte { return append([]byte(prefixEvent), id...) }

func tombstoneKey(id []byte) []byte { return append([]byte(prefixTombstone), id...) }

func createdIndexKey(createdAt int64, id []byte) []byte {
	k := append([]byte(prefixByCreated), be64(createdAt)...)
	return append(k, id...)
}

func authorIndexKey(pubkey []byte, createdAt int64, id []byte) []byte {
	k := append([]byte(prefixByAuthor), []byte(hex.EncodeToString(pubkey))...)
	k = append(k, ':')
	k = append(k, be64(createdAt)...)
	return append(k, id...)
}

func authorIndexPrefix(pubkey []byte) []byte {
	k := append([]byte(prefixByAuthor), []byte(hex.EncodeToString(pubkey))...)
	return append(k, ':')
}

func kindIndexKey(kind uint16, createdAt int64, id []byte) []byte {
	k := append([]byte(prefixByKind), be16(kind)...)
	k = append(k, be64(createdAt)...)
	return append(k, id...)
}

func kindIndexPrefix(kind uint16) []byte {
	return append([]byte(prefixByKind), be16(kind)...)
}

func eTagIndexKey(value string, createdAt int64, id []byte) []byte {
	k := append([]byte(prefixByETag), []byte(value)...)
	k = append(k, ':')
	k = append(k, be64(createdAt)...)
	return append(k, id...)
}

func eTagIndexPrefix(value string) []byte {
	k := append([]byte(prefixByETag), []byte(value)...)
	return append(k, ':')
}

func pTagIndexKey(value string, createdAt int64, id []byte) []byte {
	k := append([]byte(prefixByPTag), []byte(value)...)
	k = append(k, ':')
	k = append(k, be64(createdAt)...)
	return append(k, id...)
}

func pTagIndexPrefix(value string) []byte {
	k := append([]byte(prefixByPTag), []byte(value)...)
	return append(k, ':')
}

func replaceKey(pubkey []byte, kind uint16) []byte {
	k := append([]byte(prefixReplace), []byte(hex.EncodeToString(pubkey))...)
	return append(k, be16(kind)...)
}

func paramReplaceKey(pubkey []byte, kind uint16, dtag string) []byte {
	k := append([]byte(prefixParamReplace), []byte(hex.EncodeToString(pubkey))...)
	k = append(k, be16(kind)...)
	k = append(k, ':')
	return append(k, []byte(dtag)...)
}
