package bet

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	coreerr "wagerchain/core/errors"
	"wagerchain/core/events"
	"wagerchain/core/state"
	"wagerchain/native/common"
	"wagerchain/storage"
)

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

type recordingEmitter struct {
	events []events.Event
}

func (r *recordingEmitter) Emit(evt events.Event) { r.events = append(r.events, evt) }

// stubCoordinator mirrors the coordinator's custody side: it credits the bet
// on acceptance and records the reports it receives.
type stubCoordinator struct {
	addr     [20]byte
	engine   *Engine
	reports  []string
	failWith error
}

func (s *stubCoordinator) Address() [20]byte { return s.addr }

func (s *stubCoordinator) AcceptBet(caller [20]byte, acceptor [20]byte) error {
	if s.failWith != nil {
		return s.failWith
	}
	b, err := s.engine.Get(caller)
	if err != nil {
		return err
	}
	s.reports = append(s.reports, "accept")
	return s.engine.UpdateBalance(s.addr, caller, b.Token, b.Stake)
}

func (s *stubCoordinator) ReportCancellation([20]byte) error {
	s.reports = append(s.reports, "cancel")
	return nil
}

func (s *stubCoordinator) ReportWinnerDeclared([20]byte) error {
	s.reports = append(s.reports, "winner")
	return nil
}

func (s *stubCoordinator) ReportBetSettled([20]byte) error {
	s.reports = append(s.reports, "settled")
	return nil
}

type registered map[[20]byte]bool

func (r registered) IsRegistered(addr [20]byte) bool { return r[addr] }

type fixture struct {
	engine      *Engine
	coordinator *stubCoordinator
	emitter     *recordingEmitter
	now         int64
	initiator   [20]byte
	arbiter     [20]byte
	acceptor    [20]byte
	outsider    [20]byte
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	mgr := state.NewManager(db)
	require.NoError(t, mgr.RegisterToken("WGR", "Wager", 18))

	f := &fixture{
		emitter:   &recordingEmitter{},
		now:       1_000,
		initiator: newTestAddress(0x01),
		arbiter:   newTestAddress(0x02),
		acceptor:  newTestAddress(0x03),
		outsider:  newTestAddress(0x04),
	}
	f.engine = NewEngine()
	f.coordinator = &stubCoordinator{addr: newTestAddress(0xC0), engine: f.engine}
	f.engine.SetState(mgr)
	f.engine.SetCoordinator(f.coordinator)
	f.engine.SetUsers(registered{f.initiator: true, f.arbiter: true, f.acceptor: true})
	f.engine.SetEmitter(f.emitter)
	f.engine.SetNowFunc(func() int64 { return f.now })
	return f
}

func (f *fixture) terms() Terms {
	return Terms{
		Type:        TypeOpen,
		Token:       "wgr",
		Initiator:   f.initiator,
		Arbiter:     f.arbiter,
		Stake:       big.NewInt(1000),
		ArbiterFee:  big.NewInt(50),
		PlatformFee: big.NewInt(50),
		Payout:      big.NewInt(1900),
		Condition:   "Condition",
	}
}

func (f *fixture) create(t *testing.T, terms Terms) [20]byte {
	t.Helper()
	id := newTestAddress(0xB0)
	b, err := f.engine.Create(f.coordinator.addr, id, 0, terms)
	require.NoError(t, err)
	require.Equal(t, StatusInitiated, b.Status)
	require.NoError(t, f.engine.UpdateBalance(f.coordinator.addr, id, b.Token, b.Stake))
	return id
}

func requireCustody(t *testing.T, f *fixture, id [20]byte, want int64) {
	t.Helper()
	custody, err := f.engine.Custody(id)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(want), custody)
}

func TestCreateRestrictedToCoordinator(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Create(f.initiator, newTestAddress(0xB0), 0, f.terms())
	require.ErrorIs(t, err, coreerr.ErrRestrictedBetMgmt)

	id := f.create(t, f.terms())
	_, err = f.engine.Create(f.coordinator.addr, id, 1, f.terms())
	require.Error(t, err)
}

func TestUpdateBalanceRestrictedToCoordinator(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, f.terms())

	err := f.engine.UpdateBalance(f.initiator, id, "WGR", big.NewInt(1))
	require.ErrorIs(t, err, coreerr.ErrRestrictedBetMgmt)
	err = f.engine.UpdateBalance(f.coordinator.addr, id, "OTHER", big.NewInt(1))
	require.ErrorIs(t, err, coreerr.ErrUnknownToken)
	requireCustody(t, f, id, 1000)
}

func TestDeclareWinnerChecksRoleBeforeState(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, f.terms())

	// Wrong caller fails on role regardless of status.
	_, err := f.engine.DeclareWinner(f.initiator, id, f.initiator, [20]byte{})
	require.ErrorIs(t, err, coreerr.ErrRestrictedArbiter)
	require.Equal(t, coreerr.KindAuthorization, coreerr.KindOf(err))

	// Right caller, wrong status.
	_, err = f.engine.DeclareWinner(f.arbiter, id, f.initiator, [20]byte{})
	require.ErrorIs(t, err, coreerr.ErrNotFunded)
	require.Equal(t, coreerr.KindState, coreerr.KindOf(err))

	_, err = f.engine.AcceptBet(f.acceptor, id)
	require.NoError(t, err)

	_, err = f.engine.DeclareWinner(f.outsider, id, f.acceptor, f.initiator)
	require.ErrorIs(t, err, coreerr.ErrRestrictedArbiter)
	_, err = f.engine.DeclareWinner(f.arbiter, id, f.outsider, f.initiator)
	require.ErrorIs(t, err, coreerr.ErrInvalidWinner)
	_, err = f.engine.DeclareWinner(f.arbiter, id, f.acceptor, f.acceptor)
	require.ErrorIs(t, err, coreerr.ErrInvalidWinner)
	requireCustody(t, f, id, 2000)

	b, err := f.engine.DeclareWinner(f.arbiter, id, f.acceptor, [20]byte{})
	require.NoError(t, err)
	require.Equal(t, f.initiator, b.Loser)
	require.Equal(t, StatusResolved, b.Status)
	requireCustody(t, f, id, 1900)
}

func TestAcceptBetParticipants(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, f.terms())

	_, err := f.engine.AcceptBet(f.initiator, id)
	require.ErrorIs(t, err, coreerr.ErrInvalidChallenger)
	_, err = f.engine.AcceptBet(f.arbiter, id)
	require.ErrorIs(t, err, coreerr.ErrArbiterCannotAccept)
	_, err = f.engine.AcceptBet(f.outsider, id)
	require.ErrorIs(t, err, coreerr.ErrInvalidChallenger)

	b, err := f.engine.AcceptBet(f.acceptor, id)
	require.NoError(t, err)
	require.Equal(t, f.acceptor, b.Acceptor)
	requireCustody(t, f, id, 2000)

	_, err = f.engine.AcceptBet(f.acceptor, id)
	require.ErrorIs(t, err, coreerr.ErrNotInitiated)
}

func TestPrivateBetOnlyAcceptsAssignedAcceptor(t *testing.T) {
	f := newFixture(t)
	terms := f.terms()
	terms.Type = TypePrivate
	terms.Acceptor = f.acceptor
	id := f.create(t, terms)

	_, err := f.engine.AcceptBet(f.outsider, id)
	require.ErrorIs(t, err, coreerr.ErrInvalidChallenger)
	_, err = f.engine.AcceptBet(f.arbiter, id)
	require.ErrorIs(t, err, coreerr.ErrInvalidChallenger)

	_, err = f.engine.AcceptBet(f.acceptor, id)
	require.NoError(t, err)
}

func TestFailedAcceptLeavesBetUntouched(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, f.terms())
	f.coordinator.failWith = coreerr.ErrInsufficientAllowance

	_, err := f.engine.AcceptBet(f.acceptor, id)
	require.ErrorIs(t, err, coreerr.ErrInsufficientAllowance)
	b, err := f.engine.Get(id)
	require.NoError(t, err)
	require.Equal(t, StatusInitiated, b.Status)
	require.Equal(t, [20]byte{}, b.Acceptor)
}

func TestCancelBet(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, f.terms())

	_, err := f.engine.CancelBet(f.arbiter, id)
	require.ErrorIs(t, err, coreerr.ErrRestrictedInitiator)

	b, err := f.engine.CancelBet(f.initiator, id)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, b.Status)
	requireCustody(t, f, id, 0)
	require.Equal(t, []string{"cancel"}, f.coordinator.reports)

	_, err = f.engine.CancelBet(f.initiator, id)
	require.ErrorIs(t, err, coreerr.ErrNotInitiated)
	_, err = f.engine.AcceptBet(f.acceptor, id)
	require.ErrorIs(t, err, coreerr.ErrNotInitiated)
	_, err = f.engine.DeclareWinner(f.arbiter, id, f.initiator, [20]byte{})
	require.ErrorIs(t, err, coreerr.ErrNotFunded)
}

func TestWithdrawEarnings(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, f.terms())
	_, err := f.engine.AcceptBet(f.acceptor, id)
	require.NoError(t, err)

	_, err = f.engine.WithdrawEarnings(f.acceptor, id)
	require.ErrorIs(t, err, coreerr.ErrRestrictedWinner)

	_, err = f.engine.DeclareWinner(f.arbiter, id, f.acceptor, f.initiator)
	require.NoError(t, err)

	for _, caller := range [][20]byte{f.initiator, f.arbiter, f.coordinator.addr} {
		_, err = f.engine.WithdrawEarnings(caller, id)
		require.ErrorIs(t, err, coreerr.ErrRestrictedWinner)
	}

	b, err := f.engine.WithdrawEarnings(f.acceptor, id)
	require.NoError(t, err)
	require.Equal(t, StatusWithdrawn, b.Status)
	requireCustody(t, f, id, 0)

	_, err = f.engine.WithdrawEarnings(f.acceptor, id)
	require.ErrorIs(t, err, coreerr.ErrNotResolved)

	require.Equal(t, []string{"accept", "winner", "settled"}, f.coordinator.reports)
	statuses := make([]Status, 0, len(b.History))
	for _, tr := range b.History {
		statuses = append(statuses, tr.Status)
	}
	require.Equal(t, []Status{StatusInitiated, StatusAccepted, StatusResolved, StatusWithdrawn}, statuses)
}

func TestDeadlinePolicy(t *testing.T) {
	f := newFixture(t)
	terms := f.terms()
	terms.Deadline = 2_000
	id := f.create(t, terms)

	_, err := f.engine.ExpireBet(f.outsider, id)
	require.ErrorIs(t, err, coreerr.ErrBetNotExpired)

	f.now = 2_001
	_, err = f.engine.AcceptBet(f.acceptor, id)
	require.ErrorIs(t, err, coreerr.ErrBetExpired)

	b, err := f.engine.ExpireBet(f.outsider, id)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, b.Status)
	requireCustody(t, f, id, 0)

	_, ok := f.emitter.events[len(f.emitter.events)-1].(events.BetExpired)
	require.True(t, ok)
}

func TestDeadlineIgnoredWhenPolicyNone(t *testing.T) {
	f := newFixture(t)
	f.engine.SetDeadlinePolicy(DeadlineNone)
	terms := f.terms()
	terms.Deadline = 2_000
	id := f.create(t, terms)

	f.now = 5_000
	_, err := f.engine.ExpireBet(f.outsider, id)
	require.ErrorIs(t, err, coreerr.ErrExpiryNotSupported)
	_, err = f.engine.AcceptBet(f.acceptor, id)
	require.NoError(t, err)
}

func TestPausedBetModule(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, f.terms())
	f.engine.SetPauses(common.PauseSet{common.ModuleBet: true})

	_, err := f.engine.CancelBet(f.initiator, id)
	require.ErrorIs(t, err, coreerr.ErrModulePaused)
}
