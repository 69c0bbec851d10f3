package passphrase

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSourceReadsEnvironmentOnce(t *testing.T) {
	t.Setenv("WAGER_TEST_PASSPHRASE", "correct horse")
	src := NewSource("WAGER_TEST_PASSPHRASE", "wallet keystore")

	got, err := src.Get()
	require.NoError(t, err)
	require.Equal(t, "correct horse", got)

	t.Setenv("WAGER_TEST_PASSPHRASE", "changed")
	got, err = src.Get()
	require.NoError(t, err)
	require.Equal(t, "correct horse", got)
}

func TestSourceRejectsBlankEnvironment(t *testing.T) {
	t.Setenv("WAGER_TEST_PASSPHRASE", "   ")
	_, err := NewSource("WAGER_TEST_PASSPHRASE", "").Get()
	require.ErrorContains(t, err, "WAGER_TEST_PASSPHRASE is set but empty")
}
