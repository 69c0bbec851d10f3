// Package errors defines the failure taxonomy shared by the wager engines.
// Every failure carries a Kind and a canonical reason string; callers match
// reasons with errors.Is against the sentinels below and categories with
// KindOf.
package errors

import stderrors "errors"

// Kind classifies a failure.
type Kind uint8

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthorization
	KindState
	KindFunds
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindState:
		return "state"
	case KindFunds:
		return "funds"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Error is a categorised failure with a stable reason string.
type Error struct {
	Kind   Kind
	Reason string
}

func (e *Error) Error() string { return e.Reason }

func newError(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

var (
	ErrZeroAddress          = newError(KindValidation, "Zero address not allowed")
	ErrUserRegistered       = newError(KindValidation, "User already registered")
	ErrArbiterAdded         = newError(KindValidation, "Arbiter already added")
	ErrInvalidUsername      = newError(KindValidation, "Invalid username")
	ErrInvalidAmount        = newError(KindValidation, "Invalid amount")
	ErrUnknownToken         = newError(KindValidation, "Token not supported")
	ErrInvalidTerms         = newError(KindValidation, "Invalid bet terms")
	ErrInvalidPayout        = newError(KindValidation, "Invalid payout")
	ErrInvalidArbiter       = newError(KindValidation, "Invalid arbiter")
	ErrInvalidWinner        = newError(KindValidation, "Invalid winner")
	ErrInvalidDeadline      = newError(KindValidation, "Invalid deadline")
	ErrArbiterNotRegistered = newError(KindValidation, "Arbiter not registered")
	ErrArbiterBlocked       = newError(KindValidation, "Arbiter is blocked")
	ErrArbiterSuspended     = newError(KindValidation, "Arbiter is suspended")

	ErrRestrictedOwner     = newError(KindAuthorization, "Restricted to owner")
	ErrRestrictedInitiator = newError(KindAuthorization, "Restricted to initiator")
	ErrRestrictedArbiter   = newError(KindAuthorization, "Restricted to arbiter")
	ErrRestrictedWinner    = newError(KindAuthorization, "Restricted to winner")
	ErrRestrictedBetMgmt   = newError(KindAuthorization, "Restricted to bet mgmt")
	ErrRestrictedPlatform  = newError(KindAuthorization, "Restricted to platform authority")
	ErrInvalidChallenger   = newError(KindAuthorization, "Invalid challenger")
	ErrArbiterCannotAccept = newError(KindAuthorization, "Arbiter cannot accept the bet")
	ErrNotBetContract      = newError(KindAuthorization, "Not a valid bet contract")
	ErrUserNotRegistered   = newError(KindAuthorization, "User not registered")

	ErrNotInitiated       = newError(KindState, "Bet must be in initiated status")
	ErrNotFunded          = newError(KindState, "Bet has not been funded yet")
	ErrNotResolved        = newError(KindState, "Bet must be in resolved status")
	ErrBetExpired         = newError(KindState, "Bet has expired")
	ErrBetNotExpired      = newError(KindState, "Bet has not expired")
	ErrInvalidState       = newError(KindState, "Invalid state")
	ErrArbiterTransition  = newError(KindState, "Invalid arbiter status transition")
	ErrModulePaused       = newError(KindState, "Module paused")
	ErrQuotaExceeded      = newError(KindState, "Quota exceeded")
	ErrExpiryNotSupported = newError(KindState, "Bet expiry disabled")

	ErrInsufficientAllowance = newError(KindFunds, "Insufficient allowance")
	ErrInsufficientFunds     = newError(KindFunds, "Insufficient funds")
	ErrAmountOverflow        = newError(KindFunds, "Amount overflow")

	ErrUserNotFound    = newError(KindNotFound, "User not found")
	ErrLedgerNotFound  = newError(KindNotFound, "Ledger not found")
	ErrArbiterNotFound = newError(KindNotFound, "Arbiter not found")
	ErrBetNotFound     = newError(KindNotFound, "Bet not found")
)

// KindOf returns the category of err. Errors outside the taxonomy are
// reported as KindInternal.
func KindOf(err error) Kind {
	var target *Error
	if stderrors.As(err, &target) {
		return target.Kind
	}
	return KindInternal
}

// Reason returns the canonical reason string carried by err, or the error
// text for errors outside the taxonomy.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var target *Error
	if stderrors.As(err, &target) {
		return target.Reason
	}
	return err.Error()
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return stderrors.Is(err, target) }
