package ledger

import (
	"fmt"
	"math/big"
	"time"

	"github.com/holiman/uint256"

	coreerr "wagerchain/core/errors"
	"wagerchain/core/events"
	"wagerchain/native/common"
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	Balance(addr []byte, token string) (*big.Int, error)
	SetBalance(addr []byte, token string, amount *big.Int) error
	TokenExists(token string) bool
}

// Engine owns the arena of custodial ledger accounts. Accounts are addressed
// by a stable handle assigned at creation; handles are never reused.
type Engine struct {
	state       engineState
	emitter     events.Emitter
	pauses      common.PauseView
	coordinator [20]byte
	nowFn       func() int64
}

// NewEngine creates a ledger engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetPauses wires the module pause switchboard.
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

// SetNowFunc overrides the clock used for account timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetCoordinator registers the identity that receives the implicit unlimited
// allowance on first deposit and is the only caller allowed to Credit.
func (e *Engine) SetCoordinator(addr [20]byte) { e.coordinator = addr }

// Coordinator returns the configured coordinator identity.
func (e *Engine) Coordinator() [20]byte { return e.coordinator }

func (e *Engine) emit(evt events.Event) {
	if e.emitter != nil {
		e.emitter.Emit(evt)
	}
}

func (e *Engine) now() uint64 {
	ts := e.nowFn()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func (e *Engine) guard() error {
	if err := common.Guard(e.pauses, common.ModuleLedger); err != nil {
		return fmt.Errorf("%w: %s", coreerr.ErrModulePaused, common.ModuleLedger)
	}
	return nil
}

// Open allocates a new account for owner. It is a module-level operation
// invoked by the registry and arbiter engines, never directly by users.
func (e *Engine) Open(owner [20]byte, kind Kind) (uint64, error) {
	if e.state == nil {
		return 0, fmt.Errorf("ledger: state not configured")
	}
	if owner == ([20]byte{}) {
		return 0, coreerr.ErrZeroAddress
	}
	if !kind.Valid() {
		return 0, fmt.Errorf("ledger: invalid account kind %d", kind)
	}
	var seq uint64
	if _, err := e.state.KVGet(sequenceKey, &seq); err != nil {
		return 0, fmt.Errorf("ledger: load sequence: %w", err)
	}
	seq++
	if err := e.state.KVPut(sequenceKey, seq); err != nil {
		return 0, fmt.Errorf("ledger: store sequence: %w", err)
	}
	account := &Account{Handle: seq, Owner: owner, Kind: kind, CreatedAt: e.now()}
	if err := e.store(account); err != nil {
		return 0, err
	}
	return seq, nil
}

// Count returns the number of accounts ever opened. Handles run from 1 to
// Count inclusive.
func (e *Engine) Count() (uint64, error) {
	if e.state == nil {
		return 0, fmt.Errorf("ledger: state not configured")
	}
	var seq uint64
	if _, err := e.state.KVGet(sequenceKey, &seq); err != nil {
		return 0, err
	}
	return seq, nil
}

func (e *Engine) load(handle uint64) (*Account, error) {
	if e.state == nil {
		return nil, fmt.Errorf("ledger: state not configured")
	}
	if handle == 0 {
		return nil, coreerr.ErrLedgerNotFound
	}
	account := new(Account)
	ok, err := e.state.KVGet(accountKey(handle), account)
	if err != nil {
		return nil, fmt.Errorf("ledger: load account %d: %w", handle, err)
	}
	if !ok {
		return nil, coreerr.ErrLedgerNotFound
	}
	return account, nil
}

func (e *Engine) store(account *Account) error {
	if err := e.state.KVPut(accountKey(account.Handle), account); err != nil {
		return fmt.Errorf("ledger: store account %d: %w", account.Handle, err)
	}
	return nil
}

// Account returns a copy of the account stored under handle.
func (e *Engine) Account(handle uint64) (*Account, error) {
	account, err := e.load(handle)
	if err != nil {
		return nil, err
	}
	return account.Clone(), nil
}

// Owner returns the identity owning the account.
func (e *Engine) Owner(handle uint64) ([20]byte, error) {
	account, err := e.load(handle)
	if err != nil {
		return [20]byte{}, err
	}
	return account.Owner, nil
}

// Balance returns the stored balance of token in the account.
func (e *Engine) Balance(handle uint64, token string) (*big.Int, error) {
	account, err := e.load(handle)
	if err != nil {
		return nil, err
	}
	return account.BalanceOf(token), nil
}

// Allowance returns what spender may pull from the account for token.
func (e *Engine) Allowance(handle uint64, token string, spender [20]byte) (*big.Int, error) {
	account, err := e.load(handle)
	if err != nil {
		return nil, err
	}
	return account.AllowanceOf(token, spender), nil
}

func (e *Engine) checkToken(token string) (string, error) {
	normalized := NormalizeToken(token)
	if normalized == "" || !e.state.TokenExists(normalized) {
		return "", coreerr.ErrUnknownToken
	}
	return normalized, nil
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return coreerr.ErrInvalidAmount
	}
	if _, overflow := uint256.FromBig(amount); overflow {
		return coreerr.ErrAmountOverflow
	}
	return nil
}

func addChecked(a, b *big.Int) (*big.Int, error) {
	x, overflow := uint256.FromBig(a)
	if overflow {
		return nil, coreerr.ErrAmountOverflow
	}
	y, overflow := uint256.FromBig(b)
	if overflow {
		return nil, coreerr.ErrAmountOverflow
	}
	sum, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, coreerr.ErrAmountOverflow
	}
	return sum.ToBig(), nil
}

// Deposit moves amount of token from the owner's external balance into the
// account. The first deposit of a token also grants the coordinator an
// unlimited allowance for it.
func (e *Engine) Deposit(caller [20]byte, handle uint64, token string, amount *big.Int) error {
	if err := e.guard(); err != nil {
		return err
	}
	account, err := e.load(handle)
	if err != nil {
		return err
	}
	if caller != account.Owner {
		return coreerr.ErrRestrictedOwner
	}
	normalized, err := e.checkToken(token)
	if err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	external, err := e.state.Balance(account.Owner[:], normalized)
	if err != nil {
		return fmt.Errorf("ledger: external balance: %w", err)
	}
	if external.Cmp(amount) < 0 {
		return coreerr.ErrInsufficientFunds
	}
	updated, err := addChecked(account.BalanceOf(normalized), amount)
	if err != nil {
		return err
	}
	if err := e.state.SetBalance(account.Owner[:], normalized, new(big.Int).Sub(external, amount)); err != nil {
		return fmt.Errorf("ledger: debit external balance: %w", err)
	}
	account.setBalance(normalized, updated)

	implicit := false
	if !account.HasDeposited(normalized) {
		account.markDeposited(normalized)
		if e.coordinator != ([20]byte{}) {
			account.setAllowance(normalized, e.coordinator, MaxAllowance())
			implicit = true
		}
	}
	if err := e.store(account); err != nil {
		return err
	}
	e.emit(events.LedgerDeposited{Ledger: handle, Owner: account.Owner, Token: normalized, Amount: cloneBigInt(amount)})
	if implicit {
		e.emit(events.LedgerApproval{
			Ledger:   handle,
			Owner:    account.Owner,
			Token:    normalized,
			Spender:  e.coordinator,
			Amount:   MaxAllowance(),
			Implicit: true,
		})
	}
	return nil
}

// Withdraw moves amount of token back to the owner's external balance.
func (e *Engine) Withdraw(caller [20]byte, handle uint64, token string, amount *big.Int) error {
	if err := e.guard(); err != nil {
		return err
	}
	account, err := e.load(handle)
	if err != nil {
		return err
	}
	if caller != account.Owner {
		return coreerr.ErrRestrictedOwner
	}
	normalized, err := e.checkToken(token)
	if err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	balance := account.BalanceOf(normalized)
	if balance.Cmp(amount) < 0 {
		return coreerr.ErrInsufficientFunds
	}
	external, err := e.state.Balance(account.Owner[:], normalized)
	if err != nil {
		return fmt.Errorf("ledger: external balance: %w", err)
	}
	credited, err := addChecked(external, amount)
	if err != nil {
		return err
	}
	account.setBalance(normalized, balance.Sub(balance, amount))
	if err := e.store(account); err != nil {
		return err
	}
	if err := e.state.SetBalance(account.Owner[:], normalized, credited); err != nil {
		return fmt.Errorf("ledger: credit external balance: %w", err)
	}
	e.emit(events.LedgerWithdrawn{Ledger: handle, Owner: account.Owner, Token: normalized, Amount: cloneBigInt(amount)})
	return nil
}

// GrantApproval sets the allowance of spender for token. Amounts above
// MaxAllowance are capped to it.
func (e *Engine) GrantApproval(caller [20]byte, handle uint64, token string, spender [20]byte, amount *big.Int) error {
	if err := e.guard(); err != nil {
		return err
	}
	account, err := e.load(handle)
	if err != nil {
		return err
	}
	if caller != account.Owner {
		return coreerr.ErrRestrictedOwner
	}
	if spender == ([20]byte{}) {
		return coreerr.ErrZeroAddress
	}
	normalized, err := e.checkToken(token)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return coreerr.ErrInvalidAmount
	}
	capped := cloneBigInt(amount)
	if capped.Cmp(maxAllowance.ToBig()) > 0 {
		capped = MaxAllowance()
	}
	account.setAllowance(normalized, spender, capped)
	if err := e.store(account); err != nil {
		return err
	}
	e.emit(events.LedgerApproval{Ledger: handle, Owner: account.Owner, Token: normalized, Spender: spender, Amount: capped})
	return nil
}

// RevokeApproval zeroes the allowance of spender for token.
func (e *Engine) RevokeApproval(caller [20]byte, handle uint64, token string, spender [20]byte) error {
	return e.GrantApproval(caller, handle, token, spender, big.NewInt(0))
}

// Pull lets an approved spender take amount of token out of the account. The
// spender's allowance is reduced unless it is unlimited.
func (e *Engine) Pull(caller [20]byte, handle uint64, token string, amount *big.Int) error {
	account, err := e.load(handle)
	if err != nil {
		return err
	}
	normalized, err := e.checkToken(token)
	if err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	allowance := account.AllowanceOf(normalized, caller)
	if allowance.Cmp(amount) < 0 {
		return coreerr.ErrInsufficientAllowance
	}
	balance := account.BalanceOf(normalized)
	if balance.Cmp(amount) < 0 {
		return coreerr.ErrInsufficientFunds
	}
	if !IsUnlimited(allowance) {
		account.setAllowance(normalized, caller, allowance.Sub(allowance, amount))
	}
	account.setBalance(normalized, balance.Sub(balance, amount))
	return e.store(account)
}

// Credit increases the account balance. Only the coordinator may credit, and
// only with value it has just released from custody.
func (e *Engine) Credit(caller [20]byte, handle uint64, token string, amount *big.Int) error {
	if e.coordinator == ([20]byte{}) || caller != e.coordinator {
		return coreerr.ErrRestrictedBetMgmt
	}
	account, err := e.load(handle)
	if err != nil {
		return err
	}
	normalized, err := e.checkToken(token)
	if err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	updated, err := addChecked(account.BalanceOf(normalized), amount)
	if err != nil {
		return err
	}
	account.setBalance(normalized, updated)
	return e.store(account)
}

// Transfer moves amount of token between two accounts. The caller must own
// the source account.
func (e *Engine) Transfer(caller [20]byte, from, to uint64, token string, amount *big.Int) error {
	if err := e.guard(); err != nil {
		return err
	}
	source, err := e.load(from)
	if err != nil {
		return err
	}
	if caller != source.Owner {
		return coreerr.ErrRestrictedOwner
	}
	if from == to {
		return coreerr.ErrInvalidAmount
	}
	dest, err := e.load(to)
	if err != nil {
		return err
	}
	normalized, err := e.checkToken(token)
	if err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	balance := source.BalanceOf(normalized)
	if balance.Cmp(amount) < 0 {
		return coreerr.ErrInsufficientFunds
	}
	updated, err := addChecked(dest.BalanceOf(normalized), amount)
	if err != nil {
		return err
	}
	source.setBalance(normalized, balance.Sub(balance, amount))
	dest.setBalance(normalized, updated)
	if err := e.store(source); err != nil {
		return err
	}
	if err := e.store(dest); err != nil {
		return err
	}
	e.emit(events.LedgerTransferred{From: from, To: to, Token: normalized, Amount: cloneBigInt(amount)})
	return nil
}

// TotalBalance sums the balance of token across every account.
func (e *Engine) TotalBalance(token string) (*big.Int, error) {
	count, err := e.Count()
	if err != nil {
		return nil, err
	}
	total := big.NewInt(0)
	for handle := uint64(1); handle <= count; handle++ {
		account, err := e.load(handle)
		if err != nil {
			return nil, err
		}
		total.Add(total, account.BalanceOf(token))
	}
	return total, nil
}
