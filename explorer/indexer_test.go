package explorer

import (
	"bytes"
	"context"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"wagerchain/core"
	"wagerchain/core/events"
	"wagerchain/core/types"
	"wagerchain/crypto"
	"wagerchain/native/bet"
	"wagerchain/storage"
)

func testAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

var (
	authority = testAddress(0xAA)
	initiator = testAddress(0x01)
	acceptor  = testAddress(0x02)
	judge     = testAddress(0x03)
)

func newIndexer(t *testing.T) *Indexer {
	t.Helper()
	db, err := Open("sqlite", filepath.Join(t.TempDir(), "explorer.db"))
	require.NoError(t, err)
	idx, err := NewIndexer(db, nil, 4096)
	require.NoError(t, err)
	t.Cleanup(idx.Close)
	return idx
}

func TestIndexerFollowsNode(t *testing.T) {
	idx := newIndexer(t)
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	node, err := core.NewNode(db, core.Options{
		PlatformAuthority: authority,
		Tokens:            []core.TokenSpec{{Symbol: "WGR", Name: "Wager", Decimals: 18}},
		Now:               func() int64 { return 1_700_000_000 },
	})
	require.NoError(t, err)
	unsubscribe := node.Subscribe(idx.Handle)
	defer unsubscribe()

	for addr, name := range map[[20]byte]string{initiator: "creator", acceptor: "challenger", judge: "judge"} {
		_, err := node.Register(addr, name)
		require.NoError(t, err)
	}
	for _, player := range [][20]byte{initiator, acceptor} {
		require.NoError(t, node.MintExternal(authority, player, "WGR", big.NewInt(5_000)))
		require.NoError(t, node.Deposit(player, "WGR", big.NewInt(5_000)))
	}
	id, err := node.DeployBet(initiator, bet.Terms{
		Type:        bet.TypeOpen,
		Token:       "WGR",
		Initiator:   initiator,
		Arbiter:     judge,
		Stake:       big.NewInt(1000),
		ArbiterFee:  big.NewInt(50),
		PlatformFee: big.NewInt(50),
		Payout:      big.NewInt(1900),
		Condition:   "Home team wins",
	})
	require.NoError(t, err)
	_, err = node.AcceptBet(acceptor, id)
	require.NoError(t, err)
	_, err = node.DeclareWinner(judge, id, acceptor, [20]byte{})
	require.NoError(t, err)
	_, err = node.WithdrawEarnings(acceptor, id)
	require.NoError(t, err)

	idx.Close()
	ctx := context.Background()

	last, err := idx.LastSequence(ctx)
	require.NoError(t, err)
	seq, err := node.EventSequence()
	require.NoError(t, err)
	require.Equal(t, seq, last)

	acceptorAddr := crypto.MustAddress(acceptor).String()
	bets, err := idx.Bets(ctx, BetFilter{Participant: acceptorAddr})
	require.NoError(t, err)
	require.Len(t, bets, 1)
	got := bets[0]
	require.Equal(t, "withdrawn", got.Status)
	require.Equal(t, acceptorAddr, got.Winner)
	require.Equal(t, crypto.MustAddress(initiator).String(), got.Loser)
	require.Equal(t, "1900", got.Payout)
	require.Equal(t, "0", got.Custody)

	history, err := idx.Events(ctx, EventFilter{BetID: got.ID})
	require.NoError(t, err)
	kinds := make([]string, 0, len(history))
	for _, rec := range history {
		kinds = append(kinds, rec.Type)
	}
	require.Equal(t, []string{
		events.TypeBetCreated, events.TypeBetAccepted, events.TypeBetResolved, events.TypeBetSettled,
	}, kinds)

	deposits, err := idx.Events(ctx, EventFilter{Type: "ledger."})
	require.NoError(t, err)
	require.NotEmpty(t, deposits)
	for _, rec := range deposits {
		require.Contains(t, rec.Type, "ledger.")
	}

	none, err := idx.Bets(ctx, BetFilter{Status: "initiated"})
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestIndexIsIdempotent(t *testing.T) {
	idx := newIndexer(t)
	ctx := context.Background()
	evt := &types.Event{
		Sequence: 7,
		Type:     events.TypeBetCreated,
		Attributes: map[string]string{
			"id": "0x00000000000000000000000000000000000000aa", "token": "WGR", "stake": "10", "payout": "20", "type": "0",
		},
	}
	require.NoError(t, idx.Index(ctx, evt))
	require.NoError(t, idx.Index(ctx, evt))

	records, err := idx.Events(ctx, EventFilter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, Digest(evt), records[0].Digest)
	require.Equal(t, "Bet opened for 10 WGR", records[0].Label)

	decoded, err := records[0].Event()
	require.NoError(t, err)
	require.Equal(t, evt.Attributes, decoded.Attributes)

	rec, err := idx.Bet(ctx, "0x00000000000000000000000000000000000000AA")
	require.NoError(t, err)
	require.Equal(t, "initiated", rec.Status)
	require.Equal(t, "open", rec.Type)
}

func TestProjectionIgnoresStaleEvents(t *testing.T) {
	idx := newIndexer(t)
	ctx := context.Background()
	id := "0x00000000000000000000000000000000000000bb"

	require.NoError(t, idx.Index(ctx, &types.Event{Sequence: 1, Type: events.TypeBetCreated,
		Attributes: map[string]string{"id": id, "token": "WGR", "stake": "5", "payout": "10"}}))
	require.NoError(t, idx.Index(ctx, &types.Event{Sequence: 3, Type: events.TypeBetCancelled,
		Attributes: map[string]string{"id": id, "token": "WGR", "refund": "5"}}))
	require.NoError(t, idx.Index(ctx, &types.Event{Sequence: 2, Type: events.TypeBetAccepted,
		Attributes: map[string]string{"id": id, "token": "WGR", "custody": "10"}}))

	rec, err := idx.Bet(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "cancelled", rec.Status)
	require.Equal(t, uint64(3), rec.UpdatedSeq)

	_, err = idx.Bet(ctx, "0x00000000000000000000000000000000000000cc")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestHandleShedsEventsWhileWorkerIsStalled(t *testing.T) {
	db, err := Open("sqlite", filepath.Join(t.TempDir(), "explorer.db"))
	require.NoError(t, err)
	release := make(chan struct{})
	busy := make(chan bool, 1)
	idx, err := startIndexer(db, nil, 1, func(ctx context.Context, evt *types.Event) error {
		_, bounded := ctx.Deadline()
		select {
		case busy <- bounded:
		default:
		}
		<-release
		return nil
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		close(release)
		idx.Close()
	})

	idx.Handle(&types.Event{Sequence: 1, Type: events.TypeBetCreated})
	require.True(t, <-busy, "index writes must run under a deadline")

	returned := make(chan struct{})
	go func() {
		defer close(returned)
		for seq := uint64(2); seq <= 9; seq++ {
			idx.Handle(&types.Event{Sequence: seq, Type: events.TypeBetAccepted})
		}
	}()
	select {
	case <-returned:
	case <-time.After(5 * time.Second):
		t.Fatal("Handle blocked behind a stalled index write")
	}
	// One event fits the queue behind the stalled write; the rest are shed.
	require.Equal(t, uint64(7), idx.Dropped())
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "dsn")
	require.Error(t, err)
}
