package registry

// User is the registry entry created on registration. The ledger handle is
// fixed for the lifetime of the user.
type User struct {
	Address      [20]byte
	Username     string
	Ledger       uint64
	RegisteredAt uint64
}

// Clone returns a copy of the user record.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	clone := *u
	return &clone
}

// MaxUsernameLength bounds display handles to a 32-byte slot.
const MaxUsernameLength = 32
