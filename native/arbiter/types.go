package arbiter

import (
	"github.com/ethereum/go-ethereum/crypto"
)

// Status captures the governance state of an arbiter.
type Status uint8

const (
	StatusActive Status = iota + 1
	StatusSuspended
	StatusBlocked
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusSuspended:
		return "suspended"
	case StatusBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// Record is the governance entry for an arbiter. Holding is the ledger that
// keeps the arbiter's bond; it is owned by ModuleAddress so the arbiter cannot
// withdraw it directly.
type Record struct {
	Address   [20]byte
	Status    Status
	Reason    string
	Holding   uint64
	AddedAt   uint64
	UpdatedAt uint64
}

func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}

// Policy configures which arbiters may be bound to new bets.
type Policy struct {
	RejectSuspended bool
	RequireRecord   bool
}

// DefaultPolicy rejects suspended arbiters and accepts identities without a
// governance record.
func DefaultPolicy() Policy {
	return Policy{RejectSuspended: true}
}

// RoleAuthority is the state role held by the platform authority.
const RoleAuthority = "platform-authority"

// ModuleAddress owns every arbiter holding ledger.
var ModuleAddress = func() [20]byte {
	var out [20]byte
	copy(out[:], crypto.Keccak256([]byte("wagerchain/module/arbiter"))[12:])
	return out
}()
