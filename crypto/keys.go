package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix is the bech32 human-readable part.
type AddressPrefix string

// WagerPrefix tags user, arbiter and treasury accounts.
const WagerPrefix AddressPrefix = "wgr"

// Address is a 20-byte account identifier paired with the prefix it renders
// under.
type Address struct {
	prefix AddressPrefix
	raw    [20]byte
}

func NewAddress(prefix AddressPrefix, raw [20]byte) Address {
	return Address{prefix: prefix, raw: raw}
}

// MustAddress renders a ledger account under the wager prefix.
func MustAddress(raw [20]byte) Address {
	return NewAddress(WagerPrefix, raw)
}

// String encodes the address as bech32. It panics only for a prefix bech32
// cannot carry, which WagerPrefix never is.
func (a Address) String() string {
	words, err := bech32.ConvertBits(a.raw[:], 8, 5, true)
	if err == nil {
		var encoded string
		if encoded, err = bech32.Encode(string(a.prefix), words); err == nil {
			return encoded
		}
	}
	panic(fmt.Sprintf("crypto: encode address with prefix %q: %v", a.prefix, err))
}

func (a Address) Raw() [20]byte { return a.raw }

func (a Address) Prefix() AddressPrefix { return a.prefix }

// DecodeAddress accepts any bech32 prefix; ParseAddress is the strict form.
func DecodeAddress(s string) (Address, error) {
	prefix, words, err := bech32.Decode(s)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	payload, err := bech32.ConvertBits(words, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 payload: %w", err)
	}
	if len(payload) != 20 {
		return Address{}, fmt.Errorf("invalid address length %d", len(payload))
	}
	var raw [20]byte
	copy(raw[:], payload)
	return NewAddress(AddressPrefix(prefix), raw), nil
}

// ParseAddress decodes a bech32 string carrying the wager prefix.
func ParseAddress(s string) ([20]byte, error) {
	addr, err := DecodeAddress(s)
	if err != nil {
		return [20]byte{}, err
	}
	if addr.prefix != WagerPrefix {
		return [20]byte{}, fmt.Errorf("unexpected address prefix %q", addr.prefix)
	}
	return addr.raw, nil
}

// PrivateKey is a secp256k1 wallet key.
type PrivateKey struct {
	*ecdsa.PrivateKey
}

type PublicKey struct {
	*ecdsa.PublicKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(ethcrypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the 32-byte scalar.
func (k *PrivateKey) Bytes() []byte {
	return ethcrypto.FromECDSA(k.PrivateKey)
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

// Address derives the account the key controls, the same way Ethereum does.
func (k *PublicKey) Address() Address {
	return MustAddress(ethcrypto.PubkeyToAddress(*k.PublicKey))
}
