package events

import (
	"math/big"

	"wagerchain/core/types"
)

const (
	TypeBetCreated   = "bet.created"
	TypeBetAccepted  = "bet.accepted"
	TypeBetResolved  = "bet.resolved"
	TypeBetSettled   = "bet.settled"
	TypeBetCancelled = "bet.cancelled"
	TypeBetExpired   = "bet.expired"
)

// BetCreated is emitted by the coordinator once the initiator stake sits in
// custody.
type BetCreated struct {
	ID              [20]byte
	BetType         uint8
	Initiator       [20]byte
	InitiatorLedger uint64
	Arbiter         [20]byte
	ArbiterLedger   uint64
	Acceptor        [20]byte
	Token           string
	Stake           *big.Int
	Payout          *big.Int
	Deadline        uint64
}

func (BetCreated) EventType() string { return TypeBetCreated }

func (e BetCreated) Event() *types.Event {
	attrs := map[string]string{
		"id":              betIDString(e.ID),
		"type":            uintToString(uint64(e.BetType)),
		"initiator":       addressString(e.Initiator),
		"initiatorLedger": uintToString(e.InitiatorLedger),
		"arbiter":         addressString(e.Arbiter),
		"arbiterLedger":   uintToString(e.ArbiterLedger),
		"token":           normalizeAsset(e.Token),
		"stake":           formatAmount(e.Stake),
		"payout":          formatAmount(e.Payout),
	}
	if e.Acceptor != ([20]byte{}) {
		attrs["acceptor"] = addressString(e.Acceptor)
	}
	if e.Deadline != 0 {
		attrs["deadline"] = uintToString(e.Deadline)
	}
	return &types.Event{Type: TypeBetCreated, Attributes: attrs}
}

type BetAccepted struct {
	ID       [20]byte
	Acceptor [20]byte
	Token    string
	Custody  *big.Int
}

func (BetAccepted) EventType() string { return TypeBetAccepted }

func (e BetAccepted) Event() *types.Event {
	return &types.Event{
		Type: TypeBetAccepted,
		Attributes: map[string]string{
			"id":       betIDString(e.ID),
			"acceptor": addressString(e.Acceptor),
			"token":    normalizeAsset(e.Token),
			"custody":  formatAmount(e.Custody),
		},
	}
}

type BetResolved struct {
	ID          [20]byte
	Arbiter     [20]byte
	Winner      [20]byte
	Loser       [20]byte
	Token       string
	ArbiterFee  *big.Int
	PlatformFee *big.Int
}

func (BetResolved) EventType() string { return TypeBetResolved }

func (e BetResolved) Event() *types.Event {
	return &types.Event{
		Type: TypeBetResolved,
		Attributes: map[string]string{
			"id":          betIDString(e.ID),
			"arbiter":     addressString(e.Arbiter),
			"winner":      addressString(e.Winner),
			"loser":       addressString(e.Loser),
			"token":       normalizeAsset(e.Token),
			"arbiterFee":  formatAmount(e.ArbiterFee),
			"platformFee": formatAmount(e.PlatformFee),
		},
	}
}

type BetSettled struct {
	ID     [20]byte
	Winner [20]byte
	Token  string
	Payout *big.Int
}

func (BetSettled) EventType() string { return TypeBetSettled }

func (e BetSettled) Event() *types.Event {
	return &types.Event{
		Type: TypeBetSettled,
		Attributes: map[string]string{
			"id":     betIDString(e.ID),
			"winner": addressString(e.Winner),
			"token":  normalizeAsset(e.Token),
			"payout": formatAmount(e.Payout),
		},
	}
}

type BetCancelled struct {
	ID        [20]byte
	Initiator [20]byte
	Token     string
	Refund    *big.Int
}

func (BetCancelled) EventType() string { return TypeBetCancelled }

func (e BetCancelled) Event() *types.Event {
	return &types.Event{
		Type: TypeBetCancelled,
		Attributes: map[string]string{
			"id":        betIDString(e.ID),
			"initiator": addressString(e.Initiator),
			"token":     normalizeAsset(e.Token),
			"refund":    formatAmount(e.Refund),
		},
	}
}

// BetExpired is emitted when an unaccepted bet passes its deadline and is
// closed by an explicit expiry call.
type BetExpired struct {
	ID        [20]byte
	Initiator [20]byte
	Token     string
	Refund    *big.Int
	Deadline  uint64
}

func (BetExpired) EventType() string { return TypeBetExpired }

func (e BetExpired) Event() *types.Event {
	return &types.Event{
		Type: TypeBetExpired,
		Attributes: map[string]string{
			"id":        betIDString(e.ID),
			"initiator": addressString(e.Initiator),
			"token":     normalizeAsset(e.Token),
			"refund":    formatAmount(e.Refund),
			"deadline":  uintToString(e.Deadline),
		},
	}
}
