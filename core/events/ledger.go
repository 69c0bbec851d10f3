package events

import (
	"math/big"

	"wagerchain/core/types"
)

const (
	TypeLedgerDeposited   = "ledger.deposited"
	TypeLedgerWithdrawn   = "ledger.withdrawn"
	TypeLedgerApproval    = "ledger.approval"
	TypeLedgerTransferred = "ledger.transferred"
)

type LedgerDeposited struct {
	Ledger uint64
	Owner  [20]byte
	Token  string
	Amount *big.Int
}

func (LedgerDeposited) EventType() string { return TypeLedgerDeposited }

func (e LedgerDeposited) Event() *types.Event {
	return &types.Event{
		Type: TypeLedgerDeposited,
		Attributes: map[string]string{
			"ledger": uintToString(e.Ledger),
			"owner":  addressString(e.Owner),
			"token":  normalizeAsset(e.Token),
			"amount": formatAmount(e.Amount),
		},
	}
}

type LedgerWithdrawn struct {
	Ledger uint64
	Owner  [20]byte
	Token  string
	Amount *big.Int
}

func (LedgerWithdrawn) EventType() string { return TypeLedgerWithdrawn }

func (e LedgerWithdrawn) Event() *types.Event {
	return &types.Event{
		Type: TypeLedgerWithdrawn,
		Attributes: map[string]string{
			"ledger": uintToString(e.Ledger),
			"owner":  addressString(e.Owner),
			"token":  normalizeAsset(e.Token),
			"amount": formatAmount(e.Amount),
		},
	}
}

// LedgerApproval reports the allowance now in force for a spender. Implicit
// grants made by a first deposit carry Implicit=true.
type LedgerApproval struct {
	Ledger   uint64
	Owner    [20]byte
	Token    string
	Spender  [20]byte
	Amount   *big.Int
	Implicit bool
}

func (LedgerApproval) EventType() string { return TypeLedgerApproval }

func (e LedgerApproval) Event() *types.Event {
	implicit := "false"
	if e.Implicit {
		implicit = "true"
	}
	return &types.Event{
		Type: TypeLedgerApproval,
		Attributes: map[string]string{
			"ledger":   uintToString(e.Ledger),
			"owner":    addressString(e.Owner),
			"token":    normalizeAsset(e.Token),
			"spender":  addressString(e.Spender),
			"amount":   formatAmount(e.Amount),
			"implicit": implicit,
		},
	}
}

type LedgerTransferred struct {
	From   uint64
	To     uint64
	Token  string
	Amount *big.Int
}

func (LedgerTransferred) EventType() string { return TypeLedgerTransferred }

func (e LedgerTransferred) Event() *types.Event {
	return &types.Event{
		Type: TypeLedgerTransferred,
		Attributes: map[string]string{
			"from":   uintToString(e.From),
			"to":     uintToString(e.To),
			"token":  normalizeAsset(e.Token),
			"amount": formatAmount(e.Amount),
		},
	}
}
