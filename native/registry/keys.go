package registry

import (
	"encoding/hex"
	"fmt"
)

var (
	userPrefix     = "registry/user/"
	userListKey    = []byte("registry/users")
	betListKey     = []byte("registry/bets")
	betPrefix      = "registry/bet/"
	userBetsPrefix = "registry/user-bets/"
)

func userKey(addr [20]byte) []byte {
	return []byte(userPrefix + hex.EncodeToString(addr[:]))
}

func betKey(id [20]byte) []byte {
	return []byte(betPrefix + hex.EncodeToString(id[:]))
}

func userBetsKey(addr [20]byte) []byte {
	return []byte(userBetsPrefix + hex.EncodeToString(addr[:]))
}

// Global enumerations are stored as a count under the list key plus one entry
// per position, so appending never rewrites the list.
func listCountKey(list []byte) []byte {
	return append(append([]byte(nil), list...), "/count"...)
}

func listEntryKey(list []byte, index uint64) []byte {
	return []byte(fmt.Sprintf("%s/%016x", list, index))
}

func toAddress(raw []byte) [20]byte {
	var out [20]byte
	copy(out[:], raw)
	return out
}
