package wsconn

import "encoding/hex"

func hexPubkey(pk []byte) string { return hex.EncodeToString(pk) }
