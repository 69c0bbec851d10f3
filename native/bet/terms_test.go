package bet

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	coreerr "wagerchain/core/errors"
)

func validTerms() Terms {
	return Terms{
		Type:        TypeOpen,
		Token:       " wgr ",
		Initiator:   newTestAddress(0x01),
		Arbiter:     newTestAddress(0x02),
		Stake:       big.NewInt(1000),
		ArbiterFee:  big.NewInt(50),
		PlatformFee: big.NewInt(50),
		Payout:      big.NewInt(1900),
		Condition:   "  rain tomorrow ",
	}
}

func TestSanitizeTermsNormalises(t *testing.T) {
	out, err := SanitizeTerms(validTerms())
	require.NoError(t, err)
	require.Equal(t, "WGR", out.Token)
	require.Equal(t, "rain tomorrow", out.Condition)
}

func TestSanitizeTermsRejects(t *testing.T) {
	cases := map[string]struct {
		mutate func(*Terms)
		want   error
	}{
		"payout mismatch": {func(tm *Terms) { tm.Payout = big.NewInt(2000) }, coreerr.ErrInvalidPayout},
		"zero stake":      {func(tm *Terms) { tm.Stake = big.NewInt(0) }, coreerr.ErrInvalidAmount},
		"nil stake":       {func(tm *Terms) { tm.Stake = nil }, coreerr.ErrInvalidAmount},
		"negative fee":    {func(tm *Terms) { tm.ArbiterFee = big.NewInt(-1) }, coreerr.ErrInvalidPayout},
		"zero arbiter":    {func(tm *Terms) { tm.Arbiter = [20]byte{} }, coreerr.ErrZeroAddress},
		"self arbiter":    {func(tm *Terms) { tm.Arbiter = tm.Initiator }, coreerr.ErrInvalidArbiter},
		"empty token":     {func(tm *Terms) { tm.Token = "  " }, coreerr.ErrUnknownToken},
		"open with acceptor": {func(tm *Terms) {
			tm.Acceptor = newTestAddress(0x03)
		}, coreerr.ErrInvalidChallenger},
		"private without acceptor": {func(tm *Terms) { tm.Type = TypePrivate }, coreerr.ErrZeroAddress},
		"private acceptor is arbiter": {func(tm *Terms) {
			tm.Type = TypePrivate
			tm.Acceptor = tm.Arbiter
		}, coreerr.ErrInvalidChallenger},
		"fees exceed stakes": {func(tm *Terms) {
			tm.ArbiterFee = big.NewInt(1500)
			tm.PlatformFee = big.NewInt(500)
			tm.Payout = big.NewInt(0)
		}, coreerr.ErrInvalidPayout},
		"stake overflow": {func(tm *Terms) {
			tm.Stake = new(big.Int).Lsh(big.NewInt(1), 255)
			tm.Payout = new(big.Int).Lsh(big.NewInt(1), 256)
			tm.ArbiterFee = big.NewInt(0)
			tm.PlatformFee = big.NewInt(0)
		}, coreerr.ErrAmountOverflow},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			terms := validTerms()
			tc.mutate(&terms)
			_, err := SanitizeTerms(terms)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestParsePolicies(t *testing.T) {
	p, ok := ParseDeadlinePolicy("")
	require.True(t, ok)
	require.Equal(t, DeadlineRejectLate, p)
	p, ok = ParseDeadlinePolicy("NONE")
	require.True(t, ok)
	require.Equal(t, DeadlineNone, p)
	_, ok = ParseDeadlinePolicy("auto-cancel")
	require.False(t, ok)

	typ, ok := ParseType("private")
	require.True(t, ok)
	require.Equal(t, TypePrivate, typ)
}
