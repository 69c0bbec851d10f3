package arbiter

import "encoding/hex"

var (
	recordPrefix   = "arbiter/record/"
	arbiterListKey = []byte("arbiter/list")
	blockedListKey = []byte("arbiter/blocked")
)

func recordKey(addr [20]byte) []byte {
	return []byte(recordPrefix + hex.EncodeToString(addr[:]))
}
