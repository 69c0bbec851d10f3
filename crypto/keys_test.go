package crypto

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/stretchr/testify/require"
)

func TestAddressRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	addr := key.PubKey().Address()
	encoded := addr.String()
	require.True(t, strings.HasPrefix(encoded, "wgr1"))

	raw, err := ParseAddress(encoded)
	require.NoError(t, err)
	require.Equal(t, addr.Raw(), raw)
}

func TestParseAddressRejectsForeignPrefix(t *testing.T) {
	var raw [20]byte
	raw[19] = 1
	foreign := NewAddress(AddressPrefix("abc"), raw).String()

	_, err := ParseAddress(foreign)
	require.Error(t, err)

	_, err = ParseAddress("not-an-address")
	require.Error(t, err)
}

func TestKeystoreRoundTrip(t *testing.T) {
	keystoreScryptN, keystoreScryptP = keystore.LightScryptN, keystore.LightScryptP
	defer func() {
		keystoreScryptN, keystoreScryptP = keystore.StandardScryptN, keystore.StandardScryptP
	}()

	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "keys", "wallet.json")
	require.NoError(t, SaveToKeystore(path, key, "secret"))

	loaded, err := LoadFromKeystore(path, "secret")
	require.NoError(t, err)
	require.Equal(t, key.Bytes(), loaded.Bytes())

	_, err = LoadFromKeystore(path, "wrong")
	require.Error(t, err)
}
