package bet

import (
	"fmt"
	"math/big"
	"strings"
	"unicode/utf8"

	"github.com/holiman/uint256"

	coreerr "wagerchain/core/errors"
)

// SanitizeTerms validates the shape of the terms and returns a normalised
// copy. It checks everything that does not require state: non-zero
// identities, amount bounds and the payout formula
// payout = 2*stake - arbiterFee - platformFee.
func SanitizeTerms(terms Terms) (Terms, error) {
	out := terms
	out.Token = SanitizeToken(terms.Token)
	out.Condition = strings.TrimSpace(terms.Condition)
	if out.Token == "" {
		return Terms{}, coreerr.ErrUnknownToken
	}
	if out.Initiator == ([20]byte{}) || out.Arbiter == ([20]byte{}) {
		return Terms{}, coreerr.ErrZeroAddress
	}
	if out.Arbiter == out.Initiator {
		return Terms{}, coreerr.ErrInvalidArbiter
	}
	switch out.Type {
	case TypeOpen:
		if out.Acceptor != ([20]byte{}) {
			return Terms{}, coreerr.ErrInvalidChallenger
		}
	case TypePrivate:
		if out.Acceptor == ([20]byte{}) {
			return Terms{}, coreerr.ErrZeroAddress
		}
		if out.Acceptor == out.Initiator || out.Acceptor == out.Arbiter {
			return Terms{}, coreerr.ErrInvalidChallenger
		}
	default:
		return Terms{}, fmt.Errorf("%w: unknown bet type %d", coreerr.ErrInvalidTerms, out.Type)
	}
	if len(out.Condition) > MaxConditionLength || !utf8.ValidString(out.Condition) {
		return Terms{}, fmt.Errorf("%w: condition", coreerr.ErrInvalidTerms)
	}

	out.Stake = cloneBigInt(terms.Stake)
	out.ArbiterFee = cloneBigInt(terms.ArbiterFee)
	out.PlatformFee = cloneBigInt(terms.PlatformFee)
	out.Payout = cloneBigInt(terms.Payout)
	if terms.Stake == nil || out.Stake.Sign() <= 0 {
		return Terms{}, coreerr.ErrInvalidAmount
	}
	if out.ArbiterFee.Sign() < 0 || out.PlatformFee.Sign() < 0 || out.Payout.Sign() <= 0 {
		return Terms{}, coreerr.ErrInvalidPayout
	}
	// Both stakes together must stay inside the 256-bit amount domain.
	doubled := new(big.Int).Lsh(out.Stake, 1)
	if _, overflow := uint256.FromBig(doubled); overflow {
		return Terms{}, coreerr.ErrAmountOverflow
	}
	expected := new(big.Int).Sub(doubled, out.ArbiterFee)
	expected.Sub(expected, out.PlatformFee)
	if expected.Cmp(out.Payout) != 0 {
		return Terms{}, coreerr.ErrInvalidPayout
	}
	return out, nil
}

// SanitizeToken canonicalises a token symbol.
func SanitizeToken(token string) string {
	return strings.ToUpper(strings.TrimSpace(token))
}
