package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOfWrappedSentinel(t *testing.T) {
	wrapped := fmt.Errorf("deploy bet: %w", ErrInsufficientAllowance)

	require.True(t, Is(wrapped, ErrInsufficientAllowance))
	require.Equal(t, KindFunds, KindOf(wrapped))
	require.Equal(t, "Insufficient allowance", Reason(wrapped))
}

func TestKindOfForeignError(t *testing.T) {
	err := fmt.Errorf("disk on fire")
	require.Equal(t, KindInternal, KindOf(err))
	require.Equal(t, "disk on fire", Reason(err))
	require.Equal(t, "", Reason(nil))
}

func TestCanonicalReasons(t *testing.T) {
	cases := map[*Error]string{
		ErrZeroAddress:           "Zero address not allowed",
		ErrUserRegistered:        "User already registered",
		ErrArbiterAdded:          "Arbiter already added",
		ErrRestrictedOwner:       "Restricted to owner",
		ErrRestrictedInitiator:   "Restricted to initiator",
		ErrRestrictedArbiter:     "Restricted to arbiter",
		ErrRestrictedWinner:      "Restricted to winner",
		ErrRestrictedBetMgmt:     "Restricted to bet mgmt",
		ErrInvalidChallenger:     "Invalid challenger",
		ErrArbiterCannotAccept:   "Arbiter cannot accept the bet",
		ErrNotInitiated:          "Bet must be in initiated status",
		ErrNotFunded:             "Bet has not been funded yet",
		ErrInsufficientAllowance: "Insufficient allowance",
		ErrNotBetContract:        "Not a valid bet contract",
	}
	for sentinel, reason := range cases {
		require.Equal(t, reason, sentinel.Error())
	}
	require.Equal(t, "authorization", ErrRestrictedArbiter.Kind.String())
	require.Equal(t, "state", ErrNotFunded.Kind.String())
}
