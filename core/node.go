package core

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	coreerr "wagerchain/core/errors"
	"wagerchain/core/events"
	"wagerchain/core/state"
	"wagerchain/core/types"
	"wagerchain/native/arbiter"
	"wagerchain/native/bet"
	"wagerchain/native/betmgmt"
	"wagerchain/native/common"
	"wagerchain/native/ledger"
	"wagerchain/native/registry"
	"wagerchain/observability"
	"wagerchain/storage"
)

var (
	treasuryKey = []byte("platform/treasury")
	eventSeqKey = []byte("node/event-seq")
)

// TokenSpec describes a token registered at genesis.
type TokenSpec struct {
	Symbol   string
	Name     string
	Decimals uint8
}

// Allocation credits an external balance when the database is created.
type Allocation struct {
	Address [20]byte
	Token   string
	Amount  *big.Int
}

// Options configures a Node. PlatformAuthority and at least one token are
// required the first time a database is opened. Allocations are ignored on
// later starts.
type Options struct {
	PlatformAuthority [20]byte
	Tokens            []TokenSpec
	Allocations       []Allocation
	ArbiterPolicy     *arbiter.Policy
	DeadlinePolicy    bet.DeadlinePolicy
	Pauses            common.PauseView
	Quota             common.Quota
	Logger            *slog.Logger
	Now               func() int64
}

// Node is the central controller, wiring the native modules to storage. Each
// mutating call runs against a fresh state journal that is committed in a
// single batch or discarded as a whole.
type Node struct {
	db        storage.Database
	authority [20]byte
	treasury  uint64
	logger    *slog.Logger
	now       func() int64

	// mu serializes state transitions; dispatchMu keeps subscriber delivery
	// in commit order without holding mu.
	mu         sync.RWMutex
	dispatchMu sync.Mutex

	arbiterPolicy arbiter.Policy
	deadlines     bet.DeadlinePolicy
	pauses        common.PauseView
	quota         common.Quota

	subsMu  sync.Mutex
	subs    map[uint64]func(*types.Event)
	nextSub uint64
}

// modules bundles the engines bound to one state journal.
type modules struct {
	state    *state.Manager
	ledgers  *ledger.Engine
	registry *registry.Engine
	arbiters *arbiter.Engine
	bets     *bet.Engine
	betmgmt  *betmgmt.Engine
}

// NewNode opens the platform stored in db, running genesis when the database
// is empty.
func NewNode(db storage.Database, opts Options) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("core: database required")
	}
	n := &Node{
		db:            db,
		logger:        opts.Logger,
		now:           opts.Now,
		arbiterPolicy: arbiter.DefaultPolicy(),
		deadlines:     opts.DeadlinePolicy,
		pauses:        opts.Pauses,
		quota:         opts.Quota,
		subs:          make(map[uint64]func(*types.Event)),
	}
	if n.logger == nil {
		n.logger = slog.Default()
	}
	if n.now == nil {
		n.now = func() int64 { return time.Now().Unix() }
	}
	if opts.ArbiterPolicy != nil {
		n.arbiterPolicy = *opts.ArbiterPolicy
	}
	if n.deadlines == "" {
		n.deadlines = bet.DeadlineRejectLate
	}
	if err := n.genesis(opts); err != nil {
		return nil, err
	}
	return n, nil
}

type treasuryRecord struct {
	Authority [20]byte
	Handle    uint64
}

func (n *Node) genesis(opts Options) error {
	mgr := state.NewManager(n.db)
	mods := n.wire(mgr, events.NoopEmitter{})

	var existing treasuryRecord
	found, err := mgr.KVGet(treasuryKey, &existing)
	if err != nil {
		return fmt.Errorf("core: load treasury: %w", err)
	}
	if found {
		n.authority = existing.Authority
		n.treasury = existing.Handle
		if opts.PlatformAuthority != ([20]byte{}) && opts.PlatformAuthority != existing.Authority {
			return fmt.Errorf("core: platform authority does not match stored genesis")
		}
	} else {
		if opts.PlatformAuthority == ([20]byte{}) {
			return fmt.Errorf("core: platform authority required: %w", coreerr.ErrZeroAddress)
		}
		if len(opts.Tokens) == 0 {
			return fmt.Errorf("core: at least one token required")
		}
		if err := mgr.SetRole(arbiter.RoleAuthority, opts.PlatformAuthority[:]); err != nil {
			return fmt.Errorf("core: assign authority: %w", err)
		}
		handle, err := mods.ledgers.Open(opts.PlatformAuthority, ledger.KindTreasury)
		if err != nil {
			return fmt.Errorf("core: open treasury: %w", err)
		}
		record := treasuryRecord{Authority: opts.PlatformAuthority, Handle: handle}
		if err := mgr.KVPut(treasuryKey, &record); err != nil {
			return fmt.Errorf("core: store treasury: %w", err)
		}
		n.authority = record.Authority
		n.treasury = record.Handle
	}
	// Tokens added to the configuration after genesis are registered on the
	// next start.
	for _, token := range opts.Tokens {
		symbol := strings.ToUpper(strings.TrimSpace(token.Symbol))
		if mgr.TokenExists(symbol) {
			continue
		}
		if err := mgr.RegisterToken(symbol, token.Name, token.Decimals); err != nil {
			return fmt.Errorf("core: register token %s: %w", symbol, err)
		}
	}
	if !found {
		for i, alloc := range opts.Allocations {
			if err := creditExternal(mgr, alloc.Address, alloc.Token, alloc.Amount); err != nil {
				return fmt.Errorf("core: genesis allocation %d: %w", i, err)
			}
		}
	}
	if !mgr.Dirty() {
		return nil
	}
	if err := mgr.Commit(); err != nil {
		return fmt.Errorf("core: commit genesis: %w", err)
	}
	n.logger.Info("genesis applied",
		slog.Int("tokens", len(opts.Tokens)),
		slog.Int("allocations", len(opts.Allocations)),
		slog.Uint64("treasury", n.treasury))
	return nil
}

func (n *Node) wire(mgr *state.Manager, emitter events.Emitter) *modules {
	m := &modules{
		state:    mgr,
		ledgers:  ledger.NewEngine(),
		registry: registry.NewEngine(),
		arbiters: arbiter.NewEngine(),
		bets:     bet.NewEngine(),
		betmgmt:  betmgmt.NewEngine(),
	}
	m.ledgers.SetState(mgr)
	m.ledgers.SetCoordinator(betmgmt.ModuleAddress)
	m.ledgers.SetPauses(n.pauses)
	m.ledgers.SetEmitter(emitter)
	m.ledgers.SetNowFunc(n.now)

	m.registry.SetState(mgr)
	m.registry.SetLedgers(m.ledgers)
	m.registry.SetEmitter(emitter)
	m.registry.SetNowFunc(n.now)

	m.arbiters.SetState(mgr)
	m.arbiters.SetLedgers(m.ledgers)
	m.arbiters.SetUsers(m.registry)
	m.arbiters.SetPauses(n.pauses)
	m.arbiters.SetPolicy(n.arbiterPolicy)
	m.arbiters.SetTreasury(n.treasury)
	m.arbiters.SetEmitter(emitter)
	m.arbiters.SetNowFunc(n.now)

	m.bets.SetState(mgr)
	m.bets.SetCoordinator(m.betmgmt)
	m.bets.SetUsers(m.registry)
	m.bets.SetPauses(n.pauses)
	m.bets.SetDeadlinePolicy(n.deadlines)
	m.bets.SetEmitter(emitter)
	m.bets.SetNowFunc(n.now)

	m.betmgmt.SetState(mgr)
	m.betmgmt.SetLedgers(m.ledgers)
	m.betmgmt.SetRegistry(m.registry)
	m.betmgmt.SetArbiters(m.arbiters)
	m.betmgmt.SetBets(m.bets)
	m.betmgmt.SetPauses(n.pauses)
	m.betmgmt.SetQuota(n.quota)
	m.betmgmt.SetTreasury(n.treasury)
	m.betmgmt.SetEmitter(emitter)
	m.betmgmt.SetNowFunc(n.now)
	return m
}

// apply runs fn as one atomic state transition. Events are released to
// subscribers only after the journal commits.
func (n *Node) apply(op string, fn func(m *modules) error) error {
	start := time.Now()
	n.mu.Lock()
	published, err := n.execute(fn)
	n.dispatchMu.Lock()
	n.mu.Unlock()
	n.dispatch(published)
	n.dispatchMu.Unlock()

	kind := ""
	if err != nil {
		kind = coreerr.KindOf(err).String()
		level := slog.LevelDebug
		if coreerr.KindOf(err) == coreerr.KindInternal {
			level = slog.LevelError
		}
		n.logger.Log(context.Background(), level, "state transition rejected",
			slog.String("operation", op),
			slog.String("kind", kind),
			slog.String("error", err.Error()))
	}
	observability.Node().Observe(op, kind, time.Since(start))
	return err
}

func (n *Node) execute(fn func(m *modules) error) ([]*types.Event, error) {
	mgr := state.NewManager(n.db)
	buffer := &events.Buffer{}
	if err := fn(n.wire(mgr, buffer)); err != nil {
		mgr.Discard()
		buffer.Reset()
		return nil, err
	}
	pending := buffer.Drain()
	published := make([]*types.Event, 0, len(pending))
	if len(pending) > 0 {
		var seq uint64
		if _, err := mgr.KVGet(eventSeqKey, &seq); err != nil {
			mgr.Discard()
			return nil, fmt.Errorf("core: load event sequence: %w", err)
		}
		for _, evt := range pending {
			wire := events.ToWire(evt)
			seq++
			wire.Sequence = seq
			published = append(published, wire)
		}
		if err := mgr.KVPut(eventSeqKey, seq); err != nil {
			mgr.Discard()
			return nil, fmt.Errorf("core: store event sequence: %w", err)
		}
	}
	if err := mgr.Commit(); err != nil {
		mgr.Discard()
		return nil, fmt.Errorf("core: commit: %w", err)
	}
	return published, nil
}

func (n *Node) view(fn func(m *modules) error) error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	mgr := state.NewManager(n.db)
	return fn(n.wire(mgr, events.NoopEmitter{}))
}

func (n *Node) dispatch(published []*types.Event) {
	if len(published) == 0 {
		return
	}
	n.subsMu.Lock()
	handlers := make([]func(*types.Event), 0, len(n.subs))
	for _, handler := range n.subs {
		handlers = append(handlers, handler)
	}
	n.subsMu.Unlock()
	for _, evt := range published {
		observability.Events().Record(evt.Type)
		for _, handler := range handlers {
			handler(evt)
		}
	}
}

// Subscribe registers handler for every committed event and returns a
// function that removes it. Handlers run synchronously in commit order and
// must not block.
func (n *Node) Subscribe(handler func(*types.Event)) func() {
	if handler == nil {
		return func() {}
	}
	n.subsMu.Lock()
	n.nextSub++
	id := n.nextSub
	n.subs[id] = handler
	n.subsMu.Unlock()
	return func() {
		n.subsMu.Lock()
		delete(n.subs, id)
		n.subsMu.Unlock()
	}
}

// EventSequence returns the sequence number of the last committed event.
func (n *Node) EventSequence() (uint64, error) {
	var seq uint64
	err := n.view(func(m *modules) error {
		_, err := m.state.KVGet(eventSeqKey, &seq)
		return err
	})
	return seq, err
}

// PlatformAuthority returns the identity allowed to govern arbiters and mint
// external balances.
func (n *Node) PlatformAuthority() [20]byte { return n.authority }

// TreasuryLedger returns the handle of the platform treasury ledger.
func (n *Node) TreasuryLedger() uint64 { return n.treasury }

// SetModulePauses replaces the pause switches consulted by the engines.
func (n *Node) SetModulePauses(p common.PauseView) {
	n.mu.Lock()
	n.pauses = p
	n.mu.Unlock()
}

// SetQuota replaces the per-address bet creation quota.
func (n *Node) SetQuota(q common.Quota) {
	n.mu.Lock()
	n.quota = q
	n.mu.Unlock()
}
