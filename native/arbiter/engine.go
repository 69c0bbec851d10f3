package arbiter

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	coreerr "wagerchain/core/errors"
	"wagerchain/core/events"
	"wagerchain/native/common"
	"wagerchain/native/ledger"
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
	HasRole(role string, addr []byte) bool
}

type ledgerEngine interface {
	Open(owner [20]byte, kind ledger.Kind) (uint64, error)
	Transfer(caller [20]byte, from, to uint64, token string, amount *big.Int) error
}

type userDirectory interface {
	LedgerOf(addr [20]byte) (uint64, error)
}

// MaxReasonLength bounds the stored governance reason.
const MaxReasonLength = 256

// Engine implements arbiter governance: records, status transitions,
// bonds and penalties.
type Engine struct {
	state    engineState
	ledgers  ledgerEngine
	users    userDirectory
	emitter  events.Emitter
	pauses   common.PauseView
	policy   Policy
	treasury uint64
	nowFn    func() int64
}

func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		policy:  DefaultPolicy(),
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

func (e *Engine) SetState(state engineState)   { e.state = state }
func (e *Engine) SetLedgers(l ledgerEngine)    { e.ledgers = l }
func (e *Engine) SetUsers(u userDirectory)     { e.users = u }
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }
func (e *Engine) SetPolicy(p Policy)           { e.policy = p }
func (e *Engine) Policy() Policy               { return e.policy }
func (e *Engine) SetTreasury(handle uint64)    { e.treasury = handle }
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

func (e *Engine) now() uint64 {
	ts := e.nowFn()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func (e *Engine) guard() error {
	if e.state == nil || e.ledgers == nil {
		return fmt.Errorf("arbiter: engine not configured")
	}
	if err := common.Guard(e.pauses, common.ModuleArbiter); err != nil {
		return fmt.Errorf("%w: %s", coreerr.ErrModulePaused, common.ModuleArbiter)
	}
	return nil
}

func (e *Engine) isAuthority(addr [20]byte) bool {
	return e.state.HasRole(RoleAuthority, addr[:])
}

func sanitizeReason(reason string) string {
	trimmed := strings.TrimSpace(reason)
	if len(trimmed) > MaxReasonLength {
		trimmed = trimmed[:MaxReasonLength]
	}
	return trimmed
}

func (e *Engine) load(addr [20]byte) (*Record, error) {
	if e.state == nil {
		return nil, fmt.Errorf("arbiter: state not configured")
	}
	record := new(Record)
	ok, err := e.state.KVGet(recordKey(addr), record)
	if err != nil {
		return nil, fmt.Errorf("arbiter: load record: %w", err)
	}
	if !ok {
		return nil, coreerr.ErrArbiterNotFound
	}
	return record, nil
}

func (e *Engine) store(record *Record) error {
	if err := e.state.KVPut(recordKey(record.Address), record); err != nil {
		return fmt.Errorf("arbiter: store record: %w", err)
	}
	return nil
}

// AddArbiter registers identity as an Active arbiter and provisions its
// holding ledger. The identity itself or the platform authority may call it.
func (e *Engine) AddArbiter(caller, identity [20]byte) (*Record, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	if identity == ([20]byte{}) {
		return nil, coreerr.ErrZeroAddress
	}
	if caller != identity && !e.isAuthority(caller) {
		return nil, coreerr.ErrRestrictedPlatform
	}
	if _, err := e.load(identity); err == nil {
		return nil, coreerr.ErrArbiterAdded
	} else if !coreerr.Is(err, coreerr.ErrArbiterNotFound) {
		return nil, err
	}
	holding, err := e.ledgers.Open(ModuleAddress, ledger.KindArbiterHolding)
	if err != nil {
		return nil, fmt.Errorf("arbiter: open holding ledger: %w", err)
	}
	now := e.now()
	record := &Record{Address: identity, Status: StatusActive, Holding: holding, AddedAt: now, UpdatedAt: now}
	if err := e.store(record); err != nil {
		return nil, err
	}
	if err := e.state.KVAppend(arbiterListKey, identity[:]); err != nil {
		return nil, fmt.Errorf("arbiter: index arbiter: %w", err)
	}
	e.emitter.Emit(events.ArbiterAdded{Address: identity, Holding: holding})
	return record.Clone(), nil
}

func (e *Engine) transition(caller, identity [20]byte, reason string, allowed func(Status) bool, to Status) (*Record, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	if !e.isAuthority(caller) {
		return nil, coreerr.ErrRestrictedPlatform
	}
	record, err := e.load(identity)
	if err != nil {
		return nil, err
	}
	if !allowed(record.Status) {
		return nil, fmt.Errorf("%w: %s to %s", coreerr.ErrArbiterTransition, record.Status, to)
	}
	from := record.Status
	record.Status = to
	record.Reason = sanitizeReason(reason)
	record.UpdatedAt = e.now()
	if err := e.store(record); err != nil {
		return nil, err
	}
	if to == StatusBlocked {
		if err := e.state.KVAppend(blockedListKey, identity[:]); err != nil {
			return nil, fmt.Errorf("arbiter: index blocked: %w", err)
		}
	}
	e.emitter.Emit(events.ArbiterStatusChanged{
		Address: identity,
		From:    from.String(),
		To:      to.String(),
		Reason:  record.Reason,
	})
	return record.Clone(), nil
}

// SuspendArbiter moves an Active arbiter to Suspended.
func (e *Engine) SuspendArbiter(caller, identity [20]byte, reason string) (*Record, error) {
	return e.transition(caller, identity, reason, func(s Status) bool { return s == StatusActive }, StatusSuspended)
}

// BlockArbiter moves an Active or Suspended arbiter to Blocked. Blocked is
// terminal.
func (e *Engine) BlockArbiter(caller, identity [20]byte, reason string) (*Record, error) {
	return e.transition(caller, identity, reason, func(s Status) bool {
		return s == StatusActive || s == StatusSuspended
	}, StatusBlocked)
}

// ReinstateArbiter returns a Suspended arbiter to Active.
func (e *Engine) ReinstateArbiter(caller, identity [20]byte, reason string) (*Record, error) {
	return e.transition(caller, identity, reason, func(s Status) bool { return s == StatusSuspended }, StatusActive)
}

// PenalizeArbiter moves amount of token from the arbiter's holding ledger to
// the platform treasury. Escrow state is never touched.
func (e *Engine) PenalizeArbiter(caller, identity [20]byte, token string, amount *big.Int) error {
	if err := e.guard(); err != nil {
		return err
	}
	if !e.isAuthority(caller) {
		return coreerr.ErrRestrictedPlatform
	}
	record, err := e.load(identity)
	if err != nil {
		return err
	}
	if e.treasury == 0 {
		return fmt.Errorf("arbiter: treasury ledger not configured")
	}
	if err := e.ledgers.Transfer(ModuleAddress, record.Holding, e.treasury, token, amount); err != nil {
		return err
	}
	e.emitter.Emit(events.ArbiterPenalized{
		Address:   identity,
		Token:     ledger.NormalizeToken(token),
		Amount:    new(big.Int).Set(amount),
		Recipient: e.treasury,
	})
	return nil
}

// PostBond moves amount of token from the arbiter's user ledger into its
// holding ledger.
func (e *Engine) PostBond(caller [20]byte, token string, amount *big.Int) error {
	if err := e.guard(); err != nil {
		return err
	}
	record, err := e.load(caller)
	if err != nil {
		return err
	}
	if e.users == nil {
		return fmt.Errorf("arbiter: user directory not configured")
	}
	userLedger, err := e.users.LedgerOf(caller)
	if err != nil {
		return err
	}
	return e.ledgers.Transfer(caller, userLedger, record.Holding, token, amount)
}

// ReleaseBond returns amount of token from the holding ledger to the
// arbiter's user ledger.
func (e *Engine) ReleaseBond(caller, identity [20]byte, token string, amount *big.Int) error {
	if err := e.guard(); err != nil {
		return err
	}
	if !e.isAuthority(caller) {
		return coreerr.ErrRestrictedPlatform
	}
	record, err := e.load(identity)
	if err != nil {
		return err
	}
	if e.users == nil {
		return fmt.Errorf("arbiter: user directory not configured")
	}
	userLedger, err := e.users.LedgerOf(identity)
	if err != nil {
		return err
	}
	return e.ledgers.Transfer(ModuleAddress, record.Holding, userLedger, token, amount)
}

// Eligible reports whether identity may be bound as the arbiter of a new bet.
func (e *Engine) Eligible(identity [20]byte) error {
	record, err := e.load(identity)
	if err != nil {
		if coreerr.Is(err, coreerr.ErrArbiterNotFound) {
			if e.policy.RequireRecord {
				return coreerr.ErrArbiterNotRegistered
			}
			return nil
		}
		return err
	}
	switch record.Status {
	case StatusBlocked:
		return coreerr.ErrArbiterBlocked
	case StatusSuspended:
		if e.policy.RejectSuspended {
			return coreerr.ErrArbiterSuspended
		}
	}
	return nil
}

// Arbiter returns the governance record of identity.
func (e *Engine) Arbiter(identity [20]byte) (*Record, error) {
	record, err := e.load(identity)
	if err != nil {
		return nil, err
	}
	return record.Clone(), nil
}

// Arbiters lists every arbiter ever added.
func (e *Engine) Arbiters() ([][20]byte, error) {
	return e.list(arbiterListKey)
}

// Blocked lists arbiters in blocking order.
func (e *Engine) Blocked() ([][20]byte, error) {
	return e.list(blockedListKey)
}

func (e *Engine) list(key []byte) ([][20]byte, error) {
	if e.state == nil {
		return nil, fmt.Errorf("arbiter: state not configured")
	}
	var raw [][]byte
	if err := e.state.KVGetList(key, &raw); err != nil {
		return nil, err
	}
	out := make([][20]byte, len(raw))
	for i, entry := range raw {
		copy(out[i][:], entry)
	}
	return out, nil
}
