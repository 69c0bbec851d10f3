package core

import (
	"math/big"

	coreerr "wagerchain/core/errors"
	"wagerchain/core/state"
	"wagerchain/native/arbiter"
	"wagerchain/native/bet"
	"wagerchain/native/ledger"
	"wagerchain/native/registry"
	"wagerchain/observability"
)

func (n *Node) User(addr [20]byte) (*registry.User, error) {
	var user *registry.User
	err := n.view(func(m *modules) error {
		var err error
		user, err = m.registry.User(addr)
		return err
	})
	return user, err
}

// Users lists registered identities in registration order.
func (n *Node) Users() ([][20]byte, error) {
	var users [][20]byte
	err := n.view(func(m *modules) error {
		var err error
		users, err = m.registry.Users()
		return err
	})
	return users, err
}

func (n *Node) UserCount() (uint64, error) {
	var count uint64
	err := n.view(func(m *modules) error {
		var err error
		count, err = m.registry.UserCount()
		return err
	})
	return count, err
}

// BetDetails returns the full bet record including terms, parties and status
// history.
func (n *Node) BetDetails(id [20]byte) (*bet.Bet, error) {
	var out *bet.Bet
	err := n.view(func(m *modules) error {
		var err error
		out, err = m.bets.Get(id)
		return err
	})
	return out, err
}

// Bets lists every bet in creation order.
func (n *Node) Bets() ([][20]byte, error) {
	var ids [][20]byte
	err := n.view(func(m *modules) error {
		var err error
		ids, err = m.registry.Bets()
		return err
	})
	return ids, err
}

// BetsOf lists the bets addr takes part in as initiator, acceptor or arbiter.
func (n *Node) BetsOf(addr [20]byte) ([][20]byte, error) {
	var ids [][20]byte
	err := n.view(func(m *modules) error {
		var err error
		ids, err = m.registry.BetsOf(addr)
		return err
	})
	return ids, err
}

// Custody returns the value currently escrowed for bet id.
func (n *Node) Custody(id [20]byte) (*big.Int, error) {
	var out *big.Int
	err := n.view(func(m *modules) error {
		var err error
		out, err = m.bets.Custody(id)
		return err
	})
	return out, err
}

func (n *Node) Arbiter(identity [20]byte) (*arbiter.Record, error) {
	var record *arbiter.Record
	err := n.view(func(m *modules) error {
		var err error
		record, err = m.arbiters.Arbiter(identity)
		return err
	})
	return record, err
}

func (n *Node) Arbiters() ([][20]byte, error) {
	var out [][20]byte
	err := n.view(func(m *modules) error {
		var err error
		out, err = m.arbiters.Arbiters()
		return err
	})
	return out, err
}

// Blocked lists arbiters that have been permanently blocked.
func (n *Node) Blocked() ([][20]byte, error) {
	var out [][20]byte
	err := n.view(func(m *modules) error {
		var err error
		out, err = m.arbiters.Blocked()
		return err
	})
	return out, err
}

// Ledger returns a copy of the ledger account stored under handle.
func (n *Node) Ledger(handle uint64) (*ledger.Account, error) {
	var account *ledger.Account
	err := n.view(func(m *modules) error {
		var err error
		account, err = m.ledgers.Account(handle)
		return err
	})
	return account, err
}

// Balance returns the ledger balance of the user registered as addr.
func (n *Node) Balance(addr [20]byte, token string) (*big.Int, error) {
	var out *big.Int
	err := n.view(func(m *modules) error {
		handle, err := m.registry.LedgerOf(addr)
		if err != nil {
			return err
		}
		out, err = m.ledgers.Balance(handle, token)
		return err
	})
	return out, err
}

// TreasuryBalance returns the fees and penalties held by the treasury.
func (n *Node) TreasuryBalance(token string) (*big.Int, error) {
	var out *big.Int
	err := n.view(func(m *modules) error {
		var err error
		out, err = m.ledgers.Balance(n.treasury, token)
		return err
	})
	return out, err
}

// Allowance returns how much spender may pull from the ledger of addr.
func (n *Node) Allowance(addr [20]byte, token string, spender [20]byte) (*big.Int, error) {
	var out *big.Int
	err := n.view(func(m *modules) error {
		handle, err := m.registry.LedgerOf(addr)
		if err != nil {
			return err
		}
		out, err = m.ledgers.Allowance(handle, token, spender)
		return err
	})
	return out, err
}

// ExternalBalance returns the wallet balance of addr outside the platform.
func (n *Node) ExternalBalance(addr [20]byte, token string) (*big.Int, error) {
	var out *big.Int
	err := n.view(func(m *modules) error {
		var err error
		out, err = m.state.Balance(addr[:], token)
		return err
	})
	return out, err
}

// Tokens lists the registered tokens.
func (n *Node) Tokens() ([]*state.TokenMetadata, error) {
	var out []*state.TokenMetadata
	err := n.view(func(m *modules) error {
		symbols, err := m.state.TokenList()
		if err != nil {
			return err
		}
		for _, symbol := range symbols {
			meta, err := m.state.Token(symbol)
			if err != nil {
				return err
			}
			out = append(out, meta)
		}
		return nil
	})
	return out, err
}

// Supply reports the value of token held by the platform: every ledger
// balance plus every bet custody. Deposits and withdrawals change it; bet
// transitions never do.
func (n *Node) Supply(token string) (*big.Int, error) {
	total := new(big.Int)
	err := n.view(func(m *modules) error {
		normalized := ledger.NormalizeToken(token)
		if !m.state.TokenExists(normalized) {
			return coreerr.ErrUnknownToken
		}
		balances, err := m.ledgers.TotalBalance(normalized)
		if err != nil {
			return err
		}
		total.Add(total, balances)
		ids, err := m.registry.Bets()
		if err != nil {
			return err
		}
		for _, id := range ids {
			custody, err := m.state.EscrowBalance(id, normalized)
			if err != nil {
				return err
			}
			total.Add(total, custody)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	observability.Node().SetSupply(token, total)
	return total, nil
}
