package bet

import "encoding/hex"

var betPrefix = "bet/record/"

func betKey(id [20]byte) []byte {
	return []byte(betPrefix + hex.EncodeToString(id[:]))
}
