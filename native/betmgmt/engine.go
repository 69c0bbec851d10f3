package betmgmt

import (
	"fmt"
	"math/big"
	"time"

	coreerr "wagerchain/core/errors"
	"wagerchain/core/events"
	"wagerchain/native/bet"
	"wagerchain/native/common"
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	TokenExists(token string) bool
}

type ledgerEngine interface {
	Allowance(handle uint64, token string, spender [20]byte) (*big.Int, error)
	Pull(caller [20]byte, handle uint64, token string, amount *big.Int) error
	Credit(caller [20]byte, handle uint64, token string, amount *big.Int) error
}

type registryEngine interface {
	IsRegistered(addr [20]byte) bool
	LedgerOf(addr [20]byte) (uint64, error)
	RecordBet(id [20]byte, nonce uint64, participants ...[20]byte) error
	IndexUserBet(participant [20]byte, id [20]byte) error
	IsBet(id [20]byte) bool
}

type arbiterGovernance interface {
	Eligible(identity [20]byte) error
}

type betEngine interface {
	Create(caller [20]byte, id [20]byte, nonce uint64, terms bet.Terms) (*bet.Bet, error)
	UpdateBalance(caller [20]byte, id [20]byte, token string, amount *big.Int) error
	Get(id [20]byte) (*bet.Bet, error)
}

// Engine is the coordinator. It creates bets, is the sole spender pulling
// stakes out of user ledgers, and credits ledgers with value released from
// custody when a bet reports a transition.
type Engine struct {
	state    engineState
	ledgers  ledgerEngine
	registry registryEngine
	arbiters arbiterGovernance
	bets     betEngine
	emitter  events.Emitter
	pauses   common.PauseView
	quota    common.Quota
	treasury uint64
	nowFn    func() int64
}

func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

func (e *Engine) SetState(state engineState)      { e.state = state }
func (e *Engine) SetLedgers(l ledgerEngine)       { e.ledgers = l }
func (e *Engine) SetRegistry(r registryEngine)    { e.registry = r }
func (e *Engine) SetArbiters(a arbiterGovernance) { e.arbiters = a }
func (e *Engine) SetBets(b betEngine)             { e.bets = b }
func (e *Engine) SetPauses(p common.PauseView)    { e.pauses = p }
func (e *Engine) SetQuota(q common.Quota)         { e.quota = q }
func (e *Engine) SetTreasury(handle uint64)       { e.treasury = handle }
func (e *Engine) Treasury() uint64                { return e.treasury }
func (e *Engine) Address() [20]byte               { return ModuleAddress }

func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) ready() error {
	if e.state == nil || e.ledgers == nil || e.registry == nil || e.bets == nil {
		return fmt.Errorf("betmgmt: engine not configured")
	}
	return nil
}

// Nonce returns the number of bets deployed so far.
func (e *Engine) Nonce() (uint64, error) {
	if e.state == nil {
		return 0, fmt.Errorf("betmgmt: state not configured")
	}
	var nonce uint64
	if _, err := e.state.KVGet(nonceKey, &nonce); err != nil {
		return 0, err
	}
	return nonce, nil
}

// DeployBet validates the terms, creates the bet and moves the initiator
// stake into custody. It returns the identity of the new bet.
func (e *Engine) DeployBet(caller [20]byte, terms bet.Terms) ([20]byte, error) {
	if err := e.ready(); err != nil {
		return [20]byte{}, err
	}
	if err := common.Guard(e.pauses, common.ModuleBet); err != nil {
		return [20]byte{}, fmt.Errorf("%w: %s", coreerr.ErrModulePaused, common.ModuleBet)
	}
	if !e.registry.IsRegistered(caller) {
		return [20]byte{}, coreerr.ErrUserNotRegistered
	}
	if terms.Initiator == ([20]byte{}) {
		terms.Initiator = caller
	}
	if terms.Initiator != caller {
		return [20]byte{}, coreerr.ErrRestrictedInitiator
	}
	sanitized, err := bet.SanitizeTerms(terms)
	if err != nil {
		return [20]byte{}, err
	}
	if !e.state.TokenExists(sanitized.Token) {
		return [20]byte{}, coreerr.ErrUnknownToken
	}
	if !e.registry.IsRegistered(sanitized.Arbiter) {
		return [20]byte{}, coreerr.ErrArbiterNotRegistered
	}
	if e.arbiters != nil {
		if err := e.arbiters.Eligible(sanitized.Arbiter); err != nil {
			return [20]byte{}, err
		}
	}
	if sanitized.Type == bet.TypePrivate && !e.registry.IsRegistered(sanitized.Acceptor) {
		return [20]byte{}, coreerr.ErrInvalidChallenger
	}
	if sanitized.Deadline != 0 && int64(sanitized.Deadline) <= e.nowFn() {
		return [20]byte{}, coreerr.ErrInvalidDeadline
	}
	if err := e.consumeQuota(caller, sanitized.Stake); err != nil {
		return [20]byte{}, err
	}

	initiatorLedger, err := e.registry.LedgerOf(caller)
	if err != nil {
		return [20]byte{}, err
	}
	arbiterLedger, err := e.registry.LedgerOf(sanitized.Arbiter)
	if err != nil {
		return [20]byte{}, err
	}
	allowance, err := e.ledgers.Allowance(initiatorLedger, sanitized.Token, ModuleAddress)
	if err != nil {
		return [20]byte{}, err
	}
	if allowance.Cmp(sanitized.Stake) < 0 {
		return [20]byte{}, coreerr.ErrInsufficientAllowance
	}

	nonce, err := e.Nonce()
	if err != nil {
		return [20]byte{}, err
	}
	id := BetAddress(nonce)
	if err := e.state.KVPut(nonceKey, nonce+1); err != nil {
		return [20]byte{}, fmt.Errorf("betmgmt: store nonce: %w", err)
	}
	if err := e.ledgers.Pull(ModuleAddress, initiatorLedger, sanitized.Token, sanitized.Stake); err != nil {
		return [20]byte{}, err
	}
	created, err := e.bets.Create(ModuleAddress, id, nonce, sanitized)
	if err != nil {
		return [20]byte{}, err
	}
	if err := e.bets.UpdateBalance(ModuleAddress, id, created.Token, created.Stake); err != nil {
		return [20]byte{}, err
	}
	if err := e.registry.RecordBet(id, nonce, created.Initiator, created.Arbiter, created.Acceptor); err != nil {
		return [20]byte{}, err
	}
	e.emitter.Emit(events.BetCreated{
		ID:              id,
		BetType:         uint8(created.Type),
		Initiator:       created.Initiator,
		InitiatorLedger: initiatorLedger,
		Arbiter:         created.Arbiter,
		ArbiterLedger:   arbiterLedger,
		Acceptor:        created.Acceptor,
		Token:           created.Token,
		Stake:           new(big.Int).Set(created.Stake),
		Payout:          new(big.Int).Set(created.Payout),
		Deadline:        created.Deadline,
	})
	return id, nil
}

func (e *Engine) consumeQuota(caller [20]byte, stake *big.Int) error {
	if e.quota.MaxRequestsPerMin == 0 && e.quota.MaxValuePerEpoch == 0 {
		return nil
	}
	var value uint64
	if e.quota.MaxValuePerEpoch > 0 {
		if !stake.IsUint64() {
			return coreerr.ErrQuotaExceeded
		}
		value = stake.Uint64()
	}
	var prev common.QuotaNow
	if _, err := e.state.KVGet(quotaKey(caller), &prev); err != nil {
		return fmt.Errorf("betmgmt: load quota: %w", err)
	}
	next, err := common.CheckQuota(e.quota, e.quota.EpochFor(e.nowFn()), prev, 1, value)
	if err != nil {
		return fmt.Errorf("%w: %v", coreerr.ErrQuotaExceeded, err)
	}
	if err := e.state.KVPut(quotaKey(caller), &next); err != nil {
		return fmt.Errorf("betmgmt: store quota: %w", err)
	}
	return nil
}

func (e *Engine) verifiedBet(caller [20]byte) (*bet.Bet, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if !e.registry.IsBet(caller) {
		return nil, coreerr.ErrNotBetContract
	}
	return e.bets.Get(caller)
}

func (e *Engine) creditUser(user [20]byte, token string, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	handle, err := e.registry.LedgerOf(user)
	if err != nil {
		return err
	}
	return e.ledgers.Credit(ModuleAddress, handle, token, amount)
}

// AcceptBet pulls the acceptor stake into custody of the calling bet.
func (e *Engine) AcceptBet(caller [20]byte, acceptor [20]byte) error {
	b, err := e.verifiedBet(caller)
	if err != nil {
		return err
	}
	handle, err := e.registry.LedgerOf(acceptor)
	if err != nil {
		return coreerr.ErrInvalidChallenger
	}
	allowance, err := e.ledgers.Allowance(handle, b.Token, ModuleAddress)
	if err != nil {
		return err
	}
	if allowance.Cmp(b.Stake) < 0 {
		return coreerr.ErrInsufficientAllowance
	}
	if err := e.ledgers.Pull(ModuleAddress, handle, b.Token, b.Stake); err != nil {
		return err
	}
	if err := e.bets.UpdateBalance(ModuleAddress, b.ID, b.Token, b.Stake); err != nil {
		return err
	}
	return e.registry.IndexUserBet(acceptor, b.ID)
}

// ReportCancellation returns the stake released by a cancelled or expired
// bet to the initiator ledger.
func (e *Engine) ReportCancellation(caller [20]byte) error {
	b, err := e.verifiedBet(caller)
	if err != nil {
		return err
	}
	if b.Status != bet.StatusCancelled {
		return coreerr.ErrInvalidState
	}
	return e.creditUser(b.Initiator, b.Token, b.Stake)
}

// ReportWinnerDeclared pays the arbiter fee to the arbiter ledger and the
// platform fee to the treasury.
func (e *Engine) ReportWinnerDeclared(caller [20]byte) error {
	b, err := e.verifiedBet(caller)
	if err != nil {
		return err
	}
	if b.Status != bet.StatusResolved {
		return coreerr.ErrInvalidState
	}
	if err := e.creditUser(b.Arbiter, b.Token, b.ArbiterFee); err != nil {
		return err
	}
	if b.PlatformFee.Sign() == 0 {
		return nil
	}
	if e.treasury == 0 {
		return fmt.Errorf("betmgmt: treasury ledger not configured")
	}
	return e.ledgers.Credit(ModuleAddress, e.treasury, b.Token, b.PlatformFee)
}

// ReportBetSettled credits the payout to the winner ledger.
func (e *Engine) ReportBetSettled(caller [20]byte) error {
	b, err := e.verifiedBet(caller)
	if err != nil {
		return err
	}
	if b.Status != bet.StatusWithdrawn {
		return coreerr.ErrInvalidState
	}
	return e.creditUser(b.Winner, b.Token, b.Payout)
}
