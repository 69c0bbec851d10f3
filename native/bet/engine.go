package bet

import (
	"fmt"
	"math/big"
	"time"

	coreerr "wagerchain/core/errors"
	"wagerchain/core/events"
	"wagerchain/native/common"
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	EscrowBalance(id [20]byte, token string) (*big.Int, error)
	EscrowCredit(id [20]byte, token string, amt *big.Int) error
	EscrowDebit(id [20]byte, token string, amt *big.Int) error
}

// coordinator is the bet management layer. Bets report every value-moving
// transition back to it, passing their own identity as the caller; the
// coordinator verifies the caller is a registry-known bet before moving funds
// between custody and ledgers.
type coordinator interface {
	Address() [20]byte
	AcceptBet(caller [20]byte, acceptor [20]byte) error
	ReportCancellation(caller [20]byte) error
	ReportWinnerDeclared(caller [20]byte) error
	ReportBetSettled(caller [20]byte) error
}

type userDirectory interface {
	IsRegistered(addr [20]byte) bool
}

// Engine drives the escrow lifecycle. Every transition checks the caller's
// role first, then the source status, and only then moves funds.
type Engine struct {
	state       engineState
	coordinator coordinator
	users       userDirectory
	emitter     events.Emitter
	pauses      common.PauseView
	deadlines   DeadlinePolicy
	nowFn       func() int64
}

func NewEngine() *Engine {
	return &Engine{
		emitter:   events.NoopEmitter{},
		deadlines: DeadlineRejectLate,
		nowFn:     func() int64 { return time.Now().Unix() },
	}
}

func (e *Engine) SetState(state engineState)     { e.state = state }
func (e *Engine) SetCoordinator(c coordinator)   { e.coordinator = c }
func (e *Engine) SetUsers(u userDirectory)       { e.users = u }
func (e *Engine) SetPauses(p common.PauseView)   { e.pauses = p }
func (e *Engine) DeadlinePolicy() DeadlinePolicy { return e.deadlines }

func (e *Engine) SetDeadlinePolicy(p DeadlinePolicy) {
	if p == "" {
		p = DeadlineRejectLate
	}
	e.deadlines = p
}

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

// Now returns the engine clock as unix seconds.
func (e *Engine) Now() uint64 {
	ts := e.nowFn()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func (e *Engine) ready() error {
	if e.state == nil || e.coordinator == nil {
		return fmt.Errorf("bet: engine not configured")
	}
	if err := common.Guard(e.pauses, common.ModuleBet); err != nil {
		return fmt.Errorf("%w: %s", coreerr.ErrModulePaused, common.ModuleBet)
	}
	return nil
}

func (e *Engine) emit(evt events.Event) {
	if e.emitter != nil {
		e.emitter.Emit(evt)
	}
}

func (e *Engine) load(id [20]byte) (*Bet, error) {
	if e.state == nil {
		return nil, fmt.Errorf("bet: state not configured")
	}
	record := new(Bet)
	ok, err := e.state.KVGet(betKey(id), record)
	if err != nil {
		return nil, fmt.Errorf("bet: load %x: %w", id, err)
	}
	if !ok {
		return nil, coreerr.ErrBetNotFound
	}
	return record, nil
}

func (e *Engine) store(b *Bet) error {
	if err := e.state.KVPut(betKey(b.ID), b); err != nil {
		return fmt.Errorf("bet: store %x: %w", b.ID, err)
	}
	return nil
}

func (e *Engine) advance(b *Bet, to Status) {
	b.Status = to
	b.History = append(b.History, Transition{Status: to, At: e.Now()})
}

// Get returns a copy of the bet.
func (e *Engine) Get(id [20]byte) (*Bet, error) {
	b, err := e.load(id)
	if err != nil {
		return nil, err
	}
	return b.Clone(), nil
}

// Custody returns the amount of the bet token currently held for the bet.
func (e *Engine) Custody(id [20]byte) (*big.Int, error) {
	b, err := e.load(id)
	if err != nil {
		return nil, err
	}
	return e.state.EscrowBalance(id, b.Token)
}

// Create persists a new bet in Initiated status. Only the coordinator may
// create bets; it moves the initiator stake into custody through
// UpdateBalance in the same transition.
func (e *Engine) Create(caller [20]byte, id [20]byte, nonce uint64, terms Terms) (*Bet, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if caller != e.coordinator.Address() {
		return nil, coreerr.ErrRestrictedBetMgmt
	}
	if id == ([20]byte{}) {
		return nil, coreerr.ErrZeroAddress
	}
	sanitized, err := SanitizeTerms(terms)
	if err != nil {
		return nil, err
	}
	if _, err := e.load(id); err == nil {
		return nil, fmt.Errorf("bet: %x already exists", id)
	} else if !coreerr.Is(err, coreerr.ErrBetNotFound) {
		return nil, err
	}
	now := e.Now()
	b := &Bet{
		ID:          id,
		Nonce:       nonce,
		Type:        sanitized.Type,
		Token:       sanitized.Token,
		Stake:       sanitized.Stake,
		ArbiterFee:  sanitized.ArbiterFee,
		PlatformFee: sanitized.PlatformFee,
		Payout:      sanitized.Payout,
		Condition:   sanitized.Condition,
		Initiator:   sanitized.Initiator,
		Arbiter:     sanitized.Arbiter,
		Acceptor:    sanitized.Acceptor,
		Deadline:    sanitized.Deadline,
		CreatedAt:   now,
	}
	e.advance(b, StatusInitiated)
	if err := e.store(b); err != nil {
		return nil, err
	}
	return b.Clone(), nil
}

// UpdateBalance credits custody of the bet. It is the coordinator's
// bookkeeping hook and rejects every other caller.
func (e *Engine) UpdateBalance(caller [20]byte, id [20]byte, token string, amount *big.Int) error {
	if e.state == nil || e.coordinator == nil {
		return fmt.Errorf("bet: engine not configured")
	}
	if caller != e.coordinator.Address() {
		return coreerr.ErrRestrictedBetMgmt
	}
	b, err := e.load(id)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return coreerr.ErrInvalidAmount
	}
	if SanitizeToken(token) != b.Token {
		return fmt.Errorf("%w: bet token is %s", coreerr.ErrUnknownToken, b.Token)
	}
	return e.state.EscrowCredit(id, b.Token, amount)
}

// AcceptBet binds caller as the acceptor and pulls the matching stake through
// the coordinator.
func (e *Engine) AcceptBet(caller [20]byte, id [20]byte) (*Bet, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	b, err := e.load(id)
	if err != nil {
		return nil, err
	}
	switch b.Type {
	case TypePrivate:
		if caller != b.Acceptor {
			return nil, coreerr.ErrInvalidChallenger
		}
	default:
		if caller == b.Initiator {
			return nil, coreerr.ErrInvalidChallenger
		}
		if caller == b.Arbiter {
			return nil, coreerr.ErrArbiterCannotAccept
		}
		if e.users == nil || !e.users.IsRegistered(caller) {
			return nil, coreerr.ErrInvalidChallenger
		}
	}
	if b.Status != StatusInitiated {
		return nil, coreerr.ErrNotInitiated
	}
	if e.deadlines == DeadlineRejectLate && b.Deadline != 0 && e.Now() > b.Deadline {
		return nil, coreerr.ErrBetExpired
	}
	if err := e.coordinator.AcceptBet(b.ID, caller); err != nil {
		return nil, err
	}
	b.Acceptor = caller
	e.advance(b, StatusAccepted)
	if err := e.store(b); err != nil {
		return nil, err
	}
	custody, err := e.state.EscrowBalance(b.ID, b.Token)
	if err != nil {
		return nil, err
	}
	e.emit(events.BetAccepted{ID: b.ID, Acceptor: caller, Token: b.Token, Custody: custody})
	return b.Clone(), nil
}

// DeclareWinner records the outcome and pays the arbiter and platform fees.
// The loser may be left zero, in which case it is derived from the winner.
func (e *Engine) DeclareWinner(caller [20]byte, id [20]byte, winner, loser [20]byte) (*Bet, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	b, err := e.load(id)
	if err != nil {
		return nil, err
	}
	if caller != b.Arbiter {
		return nil, coreerr.ErrRestrictedArbiter
	}
	if b.Status != StatusAccepted {
		return nil, coreerr.ErrNotFunded
	}
	var derived [20]byte
	switch winner {
	case b.Initiator:
		derived = b.Acceptor
	case b.Acceptor:
		derived = b.Initiator
	default:
		return nil, coreerr.ErrInvalidWinner
	}
	if loser != ([20]byte{}) && loser != derived {
		return nil, coreerr.ErrInvalidWinner
	}
	fees := new(big.Int).Add(b.ArbiterFee, b.PlatformFee)
	if err := e.state.EscrowDebit(b.ID, b.Token, fees); err != nil {
		return nil, fmt.Errorf("bet: release fees: %w", err)
	}
	b.Winner = winner
	b.Loser = derived
	e.advance(b, StatusResolved)
	if err := e.store(b); err != nil {
		return nil, err
	}
	if err := e.coordinator.ReportWinnerDeclared(b.ID); err != nil {
		return nil, err
	}
	e.emit(events.BetResolved{
		ID:          b.ID,
		Arbiter:     b.Arbiter,
		Winner:      b.Winner,
		Loser:       b.Loser,
		Token:       b.Token,
		ArbiterFee:  cloneBigInt(b.ArbiterFee),
		PlatformFee: cloneBigInt(b.PlatformFee),
	})
	return b.Clone(), nil
}

// WithdrawEarnings releases the payout to the recorded winner.
func (e *Engine) WithdrawEarnings(caller [20]byte, id [20]byte) (*Bet, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	b, err := e.load(id)
	if err != nil {
		return nil, err
	}
	if b.Winner == ([20]byte{}) || caller != b.Winner {
		return nil, coreerr.ErrRestrictedWinner
	}
	if b.Status != StatusResolved {
		return nil, coreerr.ErrNotResolved
	}
	if err := e.state.EscrowDebit(b.ID, b.Token, b.Payout); err != nil {
		return nil, fmt.Errorf("bet: release payout: %w", err)
	}
	e.advance(b, StatusWithdrawn)
	if err := e.store(b); err != nil {
		return nil, err
	}
	if err := e.coordinator.ReportBetSettled(b.ID); err != nil {
		return nil, err
	}
	e.emit(events.BetSettled{ID: b.ID, Winner: b.Winner, Token: b.Token, Payout: cloneBigInt(b.Payout)})
	return b.Clone(), nil
}

// CancelBet returns the stake to the initiator of a bet nobody accepted.
func (e *Engine) CancelBet(caller [20]byte, id [20]byte) (*Bet, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	b, err := e.load(id)
	if err != nil {
		return nil, err
	}
	if caller != b.Initiator {
		return nil, coreerr.ErrRestrictedInitiator
	}
	if b.Status != StatusInitiated {
		return nil, coreerr.ErrNotInitiated
	}
	if err := e.refund(b); err != nil {
		return nil, err
	}
	e.emit(events.BetCancelled{ID: b.ID, Initiator: b.Initiator, Token: b.Token, Refund: cloneBigInt(b.Stake)})
	return b.Clone(), nil
}

// ExpireBet closes an unaccepted bet whose deadline has passed. Anyone may
// call it; the stake goes back to the initiator.
func (e *Engine) ExpireBet(caller [20]byte, id [20]byte) (*Bet, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	b, err := e.load(id)
	if err != nil {
		return nil, err
	}
	if e.deadlines != DeadlineRejectLate {
		return nil, coreerr.ErrExpiryNotSupported
	}
	if b.Status != StatusInitiated {
		return nil, coreerr.ErrNotInitiated
	}
	if b.Deadline == 0 || e.Now() <= b.Deadline {
		return nil, coreerr.ErrBetNotExpired
	}
	if err := e.refund(b); err != nil {
		return nil, err
	}
	e.emit(events.BetExpired{ID: b.ID, Initiator: b.Initiator, Token: b.Token, Refund: cloneBigInt(b.Stake), Deadline: b.Deadline})
	return b.Clone(), nil
}

func (e *Engine) refund(b *Bet) error {
	if err := e.state.EscrowDebit(b.ID, b.Token, b.Stake); err != nil {
		return fmt.Errorf("bet: release stake: %w", err)
	}
	e.advance(b, StatusCancelled)
	if err := e.store(b); err != nil {
		return err
	}
	return e.coordinator.ReportCancellation(b.ID)
}
