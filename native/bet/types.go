package bet

import (
	"math/big"
	"strings"
)

// Status is the lifecycle position of a bet. Progress is strictly forward:
// Initiated, Accepted, Resolved, Withdrawn, with Cancelled reachable only
// from Initiated.
type Status uint8

const (
	StatusInitiated Status = 1
	StatusAccepted  Status = 2
	StatusResolved  Status = 3
	StatusWithdrawn Status = 4
	StatusCancelled Status = 5
)

func (s Status) String() string {
	switch s {
	case StatusInitiated:
		return "initiated"
	case StatusAccepted:
		return "accepted"
	case StatusResolved:
		return "resolved"
	case StatusWithdrawn:
		return "withdrawn"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusWithdrawn || s == StatusCancelled
}

// Type distinguishes open bets from bets with a pre-assigned acceptor.
type Type uint8

const (
	TypeOpen    Type = 0
	TypePrivate Type = 1
)

func (t Type) String() string {
	switch t {
	case TypeOpen:
		return "open"
	case TypePrivate:
		return "private"
	default:
		return "unknown"
	}
}

// ParseType maps "open"/"private" to a Type.
func ParseType(s string) (Type, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "open", "0":
		return TypeOpen, true
	case "private", "1":
		return TypePrivate, true
	default:
		return 0, false
	}
}

// DeadlinePolicy controls how the optional bet deadline is enforced.
type DeadlinePolicy string

const (
	// DeadlineNone ignores deadlines entirely.
	DeadlineNone DeadlinePolicy = "none"
	// DeadlineRejectLate refuses acceptance after the deadline and allows
	// anyone to expire the bet, refunding the initiator.
	DeadlineRejectLate DeadlinePolicy = "reject-late"
)

// ParseDeadlinePolicy validates a configured policy name. Empty selects
// DeadlineRejectLate.
func ParseDeadlinePolicy(s string) (DeadlinePolicy, bool) {
	switch DeadlinePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", DeadlineRejectLate:
		return DeadlineRejectLate, true
	case DeadlineNone:
		return DeadlineNone, true
	default:
		return "", false
	}
}

// MaxConditionLength bounds the human-readable condition text.
const MaxConditionLength = 1024

// Terms are the immutable parameters supplied by the initiator.
type Terms struct {
	Type        Type
	Token       string
	Initiator   [20]byte
	Arbiter     [20]byte
	Acceptor    [20]byte
	Stake       *big.Int
	ArbiterFee  *big.Int
	PlatformFee *big.Int
	Payout      *big.Int
	Condition   string
	Deadline    uint64
}

// Transition records when a bet entered a status.
type Transition struct {
	Status Status
	At     uint64
}

// Bet is the persisted escrow instance.
type Bet struct {
	ID          [20]byte
	Nonce       uint64
	Type        Type
	Token       string
	Stake       *big.Int
	ArbiterFee  *big.Int
	PlatformFee *big.Int
	Payout      *big.Int
	Condition   string
	Initiator   [20]byte
	Arbiter     [20]byte
	Acceptor    [20]byte
	Winner      [20]byte
	Loser       [20]byte
	Status      Status
	Deadline    uint64
	CreatedAt   uint64
	History     []Transition
}

// Clone returns a deep copy of the bet.
func (b *Bet) Clone() *Bet {
	if b == nil {
		return nil
	}
	clone := *b
	clone.Stake = cloneBigInt(b.Stake)
	clone.ArbiterFee = cloneBigInt(b.ArbiterFee)
	clone.PlatformFee = cloneBigInt(b.PlatformFee)
	clone.Payout = cloneBigInt(b.Payout)
	clone.History = append([]Transition(nil), b.History...)
	return &clone
}

// Committed returns the value that must sit in custody for the current
// status.
func (b *Bet) Committed() *big.Int {
	stake := cloneBigInt(b.Stake)
	switch b.Status {
	case StatusInitiated:
		return stake
	case StatusAccepted:
		return stake.Mul(stake, big.NewInt(2))
	case StatusResolved:
		return cloneBigInt(b.Payout)
	default:
		return big.NewInt(0)
	}
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
