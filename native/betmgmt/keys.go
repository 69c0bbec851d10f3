package betmgmt

import (
	"encoding/hex"

	ethcommon "github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	nonceKey    = []byte("betmgmt/nonce")
	quotaPrefix = "betmgmt/quota/"
)

// ModuleAddress is the coordinator identity. It is the implicit spender on
// every user ledger and the creator address from which bet ids derive.
var ModuleAddress = func() [20]byte {
	var out [20]byte
	copy(out[:], ethcrypto.Keccak256([]byte("wagerchain/module/betmgmt"))[12:])
	return out
}()

// BetAddress derives the identity of the bet created with nonce, in the same
// way a contract creation address is derived from its deployer.
func BetAddress(nonce uint64) [20]byte {
	return ethcrypto.CreateAddress(ethcommon.Address(ModuleAddress), nonce)
}

func quotaKey(addr [20]byte) []byte {
	return []byte(quotaPrefix + hex.EncodeToString(addr[:]))
}
