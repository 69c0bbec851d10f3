package registry

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	coreerr "wagerchain/core/errors"
	"wagerchain/core/events"
	"wagerchain/native/ledger"
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
}

type ledgerOpener interface {
	Open(owner [20]byte, kind ledger.Kind) (uint64, error)
}

// Engine maintains the identity tables: users, their ledgers, and the
// append-only enumeration lists of users and bets.
type Engine struct {
	state   engineState
	ledgers ledgerOpener
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine creates a registry engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

func (e *Engine) SetState(state engineState) { e.state = state }

func (e *Engine) SetLedgers(l ledgerOpener) { e.ledgers = l }

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
	if e.state == nil {
		return fmt.Errorf("registry: state not configured")
	}
	return nil
}

// SanitizeUsername trims the display handle and checks its length.
func SanitizeUsername(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || len(trimmed) > MaxUsernameLength || !utf8.ValidString(trimmed) {
		return "", coreerr.ErrInvalidUsername
	}
	return trimmed, nil
}

// Register creates the user record and its ledger account. An identity can
// register once.
func (e *Engine) Register(identity [20]byte, displayName string) (*User, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if e.ledgers == nil {
		return nil, fmt.Errorf("registry: ledger engine not configured")
	}
	if identity == ([20]byte{}) {
		return nil, coreerr.ErrZeroAddress
	}
	username, err := SanitizeUsername(displayName)
	if err != nil {
		return nil, err
	}
	exists, err := e.state.KVGet(userKey(identity), nil)
	if err != nil {
		return nil, fmt.Errorf("registry: load user: %w", err)
	}
	if exists {
		return nil, coreerr.ErrUserRegistered
	}
	handle, err := e.ledgers.Open(identity, ledger.KindUser)
	if err != nil {
		return nil, fmt.Errorf("registry: open ledger: %w", err)
	}
	now := e.nowFn()
	if now < 0 {
		now = 0
	}
	user := &User{Address: identity, Username: username, Ledger: handle, RegisteredAt: uint64(now)}
	if err := e.state.KVPut(userKey(identity), user); err != nil {
		return nil, fmt.Errorf("registry: store user: %w", err)
	}
	if err := e.appendIndexed(userListKey, identity); err != nil {
		return nil, fmt.Errorf("registry: index user: %w", err)
	}
	e.emitter.Emit(events.UserRegistered{Address: identity, Username: username, Ledger: handle})
	return user.Clone(), nil
}

// User returns the record registered for addr.
func (e *Engine) User(addr [20]byte) (*User, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	user := new(User)
	ok, err := e.state.KVGet(userKey(addr), user)
	if err != nil {
		return nil, fmt.Errorf("registry: load user: %w", err)
	}
	if !ok {
		return nil, coreerr.ErrUserNotFound
	}
	return user, nil
}

// IsRegistered reports whether addr has a user record. Read failures are
// reported as not registered.
func (e *Engine) IsRegistered(addr [20]byte) bool {
	if e.state == nil || addr == ([20]byte{}) {
		return false
	}
	ok, err := e.state.KVGet(userKey(addr), nil)
	return err == nil && ok
}

// LedgerOf returns the ledger handle of a registered user.
func (e *Engine) LedgerOf(addr [20]byte) (uint64, error) {
	user, err := e.User(addr)
	if err != nil {
		return 0, err
	}
	return user.Ledger, nil
}

// Users returns every registered identity in registration order.
func (e *Engine) Users() ([][20]byte, error) {
	return e.indexedList(userListKey)
}

// UserCount returns the number of registered users.
func (e *Engine) UserCount() (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	return e.indexedCount(userListKey)
}

// appendIndexed stores addr at the next position of list. Callers guarantee
// uniqueness through the per-record marker keys.
func (e *Engine) appendIndexed(list []byte, addr [20]byte) error {
	count, err := e.indexedCount(list)
	if err != nil {
		return err
	}
	if err := e.state.KVPut(listEntryKey(list, count), addr); err != nil {
		return err
	}
	return e.state.KVPut(listCountKey(list), count+1)
}

func (e *Engine) indexedCount(list []byte) (uint64, error) {
	var count uint64
	if _, err := e.state.KVGet(listCountKey(list), &count); err != nil {
		return 0, fmt.Errorf("registry: load list count: %w", err)
	}
	return count, nil
}

func (e *Engine) indexedList(list []byte) ([][20]byte, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	count, err := e.indexedCount(list)
	if err != nil {
		return nil, err
	}
	out := make([][20]byte, 0, count)
	for i := uint64(0); i < count; i++ {
		var addr [20]byte
		ok, err := e.state.KVGet(listEntryKey(list, i), &addr)
		if err != nil {
			return nil, fmt.Errorf("registry: load list entry %d: %w", i, err)
		}
		if !ok {
			return nil, fmt.Errorf("registry: list entry %d missing", i)
		}
		out = append(out, addr)
	}
	return out, nil
}

func (e *Engine) addressList(key []byte) ([][20]byte, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	var raw [][]byte
	if err := e.state.KVGetList(key, &raw); err != nil {
		return nil, fmt.Errorf("registry: load list: %w", err)
	}
	out := make([][20]byte, 0, len(raw))
	for _, entry := range raw {
		out = append(out, toAddress(entry))
	}
	return out, nil
}

// RecordBet adds a new bet to the global list and to the per-user index of
// every listed participant. Zero participants are skipped.
func (e *Engine) RecordBet(id [20]byte, nonce uint64, participants ...[20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	exists, err := e.state.KVGet(betKey(id), nil)
	if err != nil {
		return fmt.Errorf("registry: load bet marker: %w", err)
	}
	if exists {
		return fmt.Errorf("registry: bet %x already recorded", id)
	}
	if err := e.state.KVPut(betKey(id), nonce); err != nil {
		return fmt.Errorf("registry: store bet marker: %w", err)
	}
	if err := e.appendIndexed(betListKey, id); err != nil {
		return fmt.Errorf("registry: index bet: %w", err)
	}
	for _, participant := range participants {
		if err := e.IndexUserBet(participant, id); err != nil {
			return err
		}
	}
	return nil
}

// IndexUserBet adds the bet to the participant's index. Duplicates are
// ignored.
func (e *Engine) IndexUserBet(participant [20]byte, id [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	if participant == ([20]byte{}) {
		return nil
	}
	if err := e.state.KVAppend(userBetsKey(participant), id[:]); err != nil {
		return fmt.Errorf("registry: index user bet: %w", err)
	}
	return nil
}

// IsBet reports whether id was recorded by the coordinator.
func (e *Engine) IsBet(id [20]byte) bool {
	if e.state == nil || id == ([20]byte{}) {
		return false
	}
	ok, err := e.state.KVGet(betKey(id), nil)
	return err == nil && ok
}

// Bets returns every bet identity in creation order.
func (e *Engine) Bets() ([][20]byte, error) {
	return e.indexedList(betListKey)
}

// BetCount returns the number of bets ever created.
func (e *Engine) BetCount() (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	return e.indexedCount(betListKey)
}

// BetsOf returns the bets in which addr participates as initiator, arbiter or
// acceptor.
func (e *Engine) BetsOf(addr [20]byte) ([][20]byte, error) {
	return e.addressList(userBetsKey(addr))
}
