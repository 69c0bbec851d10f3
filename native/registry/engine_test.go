package registry

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	coreerr "wagerchain/core/errors"
	"wagerchain/core/events"
	"wagerchain/core/state"
	"wagerchain/native/ledger"
	"wagerchain/storage"
)

type recordingEmitter struct {
	events []events.Event
}

func (r *recordingEmitter) Emit(evt events.Event) { r.events = append(r.events, evt) }

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

func newTestEngine(t *testing.T) (*Engine, *ledger.Engine, *recordingEmitter) {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	mgr := state.NewManager(db)

	ledgers := ledger.NewEngine()
	ledgers.SetState(mgr)

	emitter := &recordingEmitter{}
	engine := NewEngine()
	engine.SetState(mgr)
	engine.SetLedgers(ledgers)
	engine.SetEmitter(emitter)
	engine.SetNowFunc(func() int64 { return 42 })
	return engine, ledgers, emitter
}

func TestRegisterCreatesSingleLedger(t *testing.T) {
	engine, ledgers, emitter := newTestEngine(t)
	alice := newTestAddress(0x01)

	user, err := engine.Register(alice, "  alice ")
	require.NoError(t, err)
	require.Equal(t, "alice", user.Username)
	require.Equal(t, uint64(42), user.RegisteredAt)

	owner, err := ledgers.Owner(user.Ledger)
	require.NoError(t, err)
	require.Equal(t, alice, owner)

	_, err = engine.Register(alice, "alice-again")
	require.ErrorIs(t, err, coreerr.ErrUserRegistered)

	count, err := ledgers.Count()
	require.NoError(t, err)
	require.Equal(t, uint64(1), count)
	require.Len(t, emitter.events, 1)

	handle, err := engine.LedgerOf(alice)
	require.NoError(t, err)
	require.Equal(t, user.Ledger, handle)
	require.True(t, engine.IsRegistered(alice))
}

func TestRegisterValidation(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	_, err := engine.Register([20]byte{}, "nobody")
	require.ErrorIs(t, err, coreerr.ErrZeroAddress)

	_, err = engine.Register(newTestAddress(0x02), "   ")
	require.ErrorIs(t, err, coreerr.ErrInvalidUsername)

	_, err = engine.Register(newTestAddress(0x02), "this-display-name-is-far-too-long-for-a-slot")
	require.ErrorIs(t, err, coreerr.ErrInvalidUsername)

	_, err = engine.LedgerOf(newTestAddress(0x09))
	require.ErrorIs(t, err, coreerr.ErrUserNotFound)
}

func TestUserEnumeration(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	for i, name := range []string{"a", "b", "c"} {
		_, err := engine.Register(newTestAddress(byte(i+1)), name)
		require.NoError(t, err)
	}
	users, err := engine.Users()
	require.NoError(t, err)
	require.Equal(t, [][20]byte{newTestAddress(1), newTestAddress(2), newTestAddress(3)}, users)

	count, err := engine.UserCount()
	require.NoError(t, err)
	require.Equal(t, uint64(3), count)
}

func TestEnumerationAppendsWithoutRewritingList(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	for i := byte(1); i <= 40; i++ {
		_, err := engine.Register(newTestAddress(i), fmt.Sprintf("user%d", i))
		require.NoError(t, err)
		require.NoError(t, engine.RecordBet(newTestAddress(0x80+i), uint64(i)))
	}

	var stored [20]byte
	ok, err := engine.state.KVGet(listEntryKey(userListKey, 39), &stored)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, newTestAddress(40), stored)

	var legacy [][]byte
	require.NoError(t, engine.state.KVGetList(betListKey, &legacy))
	require.Empty(t, legacy)

	bets, err := engine.Bets()
	require.NoError(t, err)
	require.Len(t, bets, 40)
	require.Equal(t, newTestAddress(0x81), bets[0])
	require.Equal(t, newTestAddress(0xA8), bets[39])

	count, err := engine.BetCount()
	require.NoError(t, err)
	require.Equal(t, uint64(40), count)
}

func TestRecordBetIndexesParticipants(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	initiator := newTestAddress(0x01)
	arbiter := newTestAddress(0x02)
	acceptor := newTestAddress(0x03)
	betID := newTestAddress(0xB0)

	require.False(t, engine.IsBet(betID))
	require.NoError(t, engine.RecordBet(betID, 0, initiator, arbiter, [20]byte{}))
	require.True(t, engine.IsBet(betID))
	require.Error(t, engine.RecordBet(betID, 0, initiator))

	require.NoError(t, engine.IndexUserBet(acceptor, betID))
	require.NoError(t, engine.IndexUserBet(acceptor, betID))

	for _, participant := range [][20]byte{initiator, arbiter, acceptor} {
		bets, err := engine.BetsOf(participant)
		require.NoError(t, err)
		require.Equal(t, [][20]byte{betID}, bets)
	}
	bets, err := engine.BetsOf(newTestAddress(0x04))
	require.NoError(t, err)
	require.Empty(t, bets)

	count, err := engine.BetCount()
	require.NoError(t, err)
	require.Equal(t, uint64(1), count)
}
