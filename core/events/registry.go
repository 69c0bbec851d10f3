package events

import (
	"math/big"

	"wagerchain/core/types"
)

const (
	TypeUserRegistered       = "registry.user_registered"
	TypeArbiterAdded         = "arbiter.added"
	TypeArbiterStatusChanged = "arbiter.status_changed"
	TypeArbiterPenalized     = "arbiter.penalized"
)

type UserRegistered struct {
	Address  [20]byte
	Username string
	Ledger   uint64
}

func (UserRegistered) EventType() string { return TypeUserRegistered }

func (e UserRegistered) Event() *types.Event {
	return &types.Event{
		Type: TypeUserRegistered,
		Attributes: map[string]string{
			"address":  addressString(e.Address),
			"username": e.Username,
			"ledger":   uintToString(e.Ledger),
		},
	}
}

type ArbiterAdded struct {
	Address [20]byte
	Holding uint64
}

func (ArbiterAdded) EventType() string { return TypeArbiterAdded }

func (e ArbiterAdded) Event() *types.Event {
	return &types.Event{
		Type: TypeArbiterAdded,
		Attributes: map[string]string{
			"address": addressString(e.Address),
			"holding": uintToString(e.Holding),
		},
	}
}

type ArbiterStatusChanged struct {
	Address [20]byte
	From    string
	To      string
	Reason  string
}

func (ArbiterStatusChanged) EventType() string { return TypeArbiterStatusChanged }

func (e ArbiterStatusChanged) Event() *types.Event {
	return &types.Event{
		Type: TypeArbiterStatusChanged,
		Attributes: map[string]string{
			"address": addressString(e.Address),
			"from":    e.From,
			"to":      e.To,
			"reason":  e.Reason,
		},
	}
}

type ArbiterPenalized struct {
	Address   [20]byte
	Token     string
	Amount    *big.Int
	Recipient uint64
}

func (ArbiterPenalized) EventType() string { return TypeArbiterPenalized }

func (e ArbiterPenalized) Event() *types.Event {
	return &types.Event{
		Type: TypeArbiterPenalized,
		Attributes: map[string]string{
			"address":   addressString(e.Address),
			"token":     normalizeAsset(e.Token),
			"amount":    formatAmount(e.Amount),
			"recipient": uintToString(e.Recipient),
		},
	}
}
