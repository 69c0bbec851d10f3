package ledger

import "strconv"

var (
	accountPrefix = []byte("ledger/account/")
	sequenceKey   = []byte("ledger/seq")
)

func accountKey(handle uint64) []byte {
	return append(append([]byte(nil), accountPrefix...), strconv.FormatUint(handle, 10)...)
}
