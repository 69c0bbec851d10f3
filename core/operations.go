package core

import (
	"math/big"

	coreerr "wagerchain/core/errors"
	"wagerchain/core/state"
	"wagerchain/native/arbiter"
	"wagerchain/native/bet"
	"wagerchain/native/registry"
)

// Register creates the user record and ledger for identity.
func (n *Node) Register(identity [20]byte, displayName string) (*registry.User, error) {
	var user *registry.User
	err := n.apply("register", func(m *modules) error {
		var err error
		user, err = m.registry.Register(identity, displayName)
		return err
	})
	return user, err
}

// MintExternal credits amount of token to the external wallet balance of
// addr. Only the platform authority may mint.
func (n *Node) MintExternal(caller, addr [20]byte, token string, amount *big.Int) error {
	return n.apply("mint", func(m *modules) error {
		if caller != n.authority {
			return coreerr.ErrRestrictedPlatform
		}
		return creditExternal(m.state, addr, token, amount)
	})
}

func creditExternal(st *state.Manager, addr [20]byte, token string, amount *big.Int) error {
	if addr == ([20]byte{}) {
		return coreerr.ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return coreerr.ErrInvalidAmount
	}
	if !st.TokenExists(token) {
		return coreerr.ErrUnknownToken
	}
	current, err := st.Balance(addr[:], token)
	if err != nil {
		return err
	}
	return st.SetBalance(addr[:], token, new(big.Int).Add(current, amount))
}

// Deposit moves amount from the caller's external balance into their ledger.
func (n *Node) Deposit(caller [20]byte, token string, amount *big.Int) error {
	return n.apply("deposit", func(m *modules) error {
		handle, err := m.registry.LedgerOf(caller)
		if err != nil {
			return err
		}
		return m.ledgers.Deposit(caller, handle, token, amount)
	})
}

// Withdraw moves amount from the caller's ledger back to their external
// balance.
func (n *Node) Withdraw(caller [20]byte, token string, amount *big.Int) error {
	return n.apply("withdraw", func(m *modules) error {
		handle, err := m.registry.LedgerOf(caller)
		if err != nil {
			return err
		}
		return m.ledgers.Withdraw(caller, handle, token, amount)
	})
}

// WithdrawTreasury pays amount of collected platform fees and penalties from
// the treasury ledger to the authority's external balance.
func (n *Node) WithdrawTreasury(caller [20]byte, token string, amount *big.Int) error {
	return n.apply("withdraw_treasury", func(m *modules) error {
		if caller != n.authority {
			return coreerr.ErrRestrictedPlatform
		}
		return m.ledgers.Withdraw(caller, n.treasury, token, amount)
	})
}

// GrantApproval lets spender pull up to amount of token from the caller's
// ledger.
func (n *Node) GrantApproval(caller [20]byte, token string, spender [20]byte, amount *big.Int) error {
	return n.apply("grant_approval", func(m *modules) error {
		handle, err := m.registry.LedgerOf(caller)
		if err != nil {
			return err
		}
		return m.ledgers.GrantApproval(caller, handle, token, spender, amount)
	})
}

// RevokeApproval clears the allowance of spender on the caller's ledger.
func (n *Node) RevokeApproval(caller [20]byte, token string, spender [20]byte) error {
	return n.apply("revoke_approval", func(m *modules) error {
		handle, err := m.registry.LedgerOf(caller)
		if err != nil {
			return err
		}
		return m.ledgers.RevokeApproval(caller, handle, token, spender)
	})
}

func (n *Node) AddArbiter(caller, identity [20]byte) (*arbiter.Record, error) {
	var record *arbiter.Record
	err := n.apply("add_arbiter", func(m *modules) error {
		var err error
		record, err = m.arbiters.AddArbiter(caller, identity)
		return err
	})
	return record, err
}

func (n *Node) SuspendArbiter(caller, identity [20]byte, reason string) (*arbiter.Record, error) {
	return n.arbiterTransition("suspend_arbiter", func(m *modules) (*arbiter.Record, error) {
		return m.arbiters.SuspendArbiter(caller, identity, reason)
	})
}

func (n *Node) BlockArbiter(caller, identity [20]byte, reason string) (*arbiter.Record, error) {
	return n.arbiterTransition("block_arbiter", func(m *modules) (*arbiter.Record, error) {
		return m.arbiters.BlockArbiter(caller, identity, reason)
	})
}

func (n *Node) ReinstateArbiter(caller, identity [20]byte, reason string) (*arbiter.Record, error) {
	return n.arbiterTransition("reinstate_arbiter", func(m *modules) (*arbiter.Record, error) {
		return m.arbiters.ReinstateArbiter(caller, identity, reason)
	})
}

func (n *Node) arbiterTransition(op string, fn func(m *modules) (*arbiter.Record, error)) (*arbiter.Record, error) {
	var record *arbiter.Record
	err := n.apply(op, func(m *modules) error {
		var err error
		record, err = fn(m)
		return err
	})
	return record, err
}

// PenalizeArbiter moves amount from the arbiter holding ledger to the
// treasury.
func (n *Node) PenalizeArbiter(caller, identity [20]byte, token string, amount *big.Int) error {
	return n.apply("penalize_arbiter", func(m *modules) error {
		return m.arbiters.PenalizeArbiter(caller, identity, token, amount)
	})
}

func (n *Node) PostBond(caller [20]byte, token string, amount *big.Int) error {
	return n.apply("post_bond", func(m *modules) error {
		return m.arbiters.PostBond(caller, token, amount)
	})
}

func (n *Node) ReleaseBond(caller, identity [20]byte, token string, amount *big.Int) error {
	return n.apply("release_bond", func(m *modules) error {
		return m.arbiters.ReleaseBond(caller, identity, token, amount)
	})
}

// DeployBet creates a bet and moves the initiator stake into custody. The
// returned identifier addresses the bet in every later call.
func (n *Node) DeployBet(caller [20]byte, terms bet.Terms) ([20]byte, error) {
	var id [20]byte
	err := n.apply("deploy_bet", func(m *modules) error {
		var err error
		id, err = m.betmgmt.DeployBet(caller, terms)
		return err
	})
	return id, err
}

func (n *Node) AcceptBet(caller, id [20]byte) (*bet.Bet, error) {
	return n.betTransition("accept_bet", func(m *modules) (*bet.Bet, error) {
		return m.bets.AcceptBet(caller, id)
	})
}

// DeclareWinner records the outcome of an accepted bet. A zero loser is
// derived from the winner.
func (n *Node) DeclareWinner(caller, id, winner, loser [20]byte) (*bet.Bet, error) {
	return n.betTransition("declare_winner", func(m *modules) (*bet.Bet, error) {
		return m.bets.DeclareWinner(caller, id, winner, loser)
	})
}

func (n *Node) WithdrawEarnings(caller, id [20]byte) (*bet.Bet, error) {
	return n.betTransition("withdraw_earnings", func(m *modules) (*bet.Bet, error) {
		return m.bets.WithdrawEarnings(caller, id)
	})
}

func (n *Node) CancelBet(caller, id [20]byte) (*bet.Bet, error) {
	return n.betTransition("cancel_bet", func(m *modules) (*bet.Bet, error) {
		return m.bets.CancelBet(caller, id)
	})
}

// ExpireBet refunds an unaccepted bet whose deadline has passed.
func (n *Node) ExpireBet(caller, id [20]byte) (*bet.Bet, error) {
	return n.betTransition("expire_bet", func(m *modules) (*bet.Bet, error) {
		return m.bets.ExpireBet(caller, id)
	})
}

func (n *Node) betTransition(op string, fn func(m *modules) (*bet.Bet, error)) (*bet.Bet, error) {
	var out *bet.Bet
	err := n.apply(op, func(m *modules) error {
		var err error
		out, err = fn(m)
		return err
	})
	return out, err
}
