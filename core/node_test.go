package core

import (
	"bytes"
	"math/big"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	coreerr "wagerchain/core/errors"
	"wagerchain/core/events"
	"wagerchain/core/types"
	"wagerchain/native/bet"
	"wagerchain/native/betmgmt"
	"wagerchain/native/common"
	"wagerchain/storage"
)

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

var (
	authority = newTestAddress(0xAA)
	initiator = newTestAddress(0x01)
	acceptor  = newTestAddress(0x02)
	arbiterID = newTestAddress(0x03)
	outsider  = newTestAddress(0x04)
)

func testOptions() Options {
	return Options{
		PlatformAuthority: authority,
		Tokens:            []TokenSpec{{Symbol: "wgr", Name: "Wager", Decimals: 18}},
		Now:               func() int64 { return 1_700_000_000 },
	}
}

func newTestNode(t *testing.T) *Node {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	node, err := NewNode(db, testOptions())
	require.NoError(t, err)
	return node
}

// onboard registers the three bet parties and funds the two players.
func onboard(t *testing.T, node *Node) {
	t.Helper()
	for addr, name := range map[[20]byte]string{initiator: "creator", acceptor: "challenger", arbiterID: "judge"} {
		_, err := node.Register(addr, name)
		require.NoError(t, err)
	}
	for _, player := range [][20]byte{initiator, acceptor} {
		require.NoError(t, node.MintExternal(authority, player, "WGR", big.NewInt(10_000)))
		require.NoError(t, node.Deposit(player, "WGR", big.NewInt(10_000)))
	}
}

func defaultTerms() bet.Terms {
	return bet.Terms{
		Type:        bet.TypeOpen,
		Token:       "WGR",
		Initiator:   initiator,
		Arbiter:     arbiterID,
		Stake:       big.NewInt(1000),
		ArbiterFee:  big.NewInt(50),
		PlatformFee: big.NewInt(50),
		Payout:      big.NewInt(1900),
		Condition:   "Home team wins",
	}
}

func balanceOf(t *testing.T, node *Node, addr [20]byte) *big.Int {
	t.Helper()
	bal, err := node.Balance(addr, "WGR")
	require.NoError(t, err)
	return bal
}

func TestNodeSettlementConservesValue(t *testing.T) {
	node := newTestNode(t)
	onboard(t, node)

	supply, err := node.Supply("WGR")
	require.NoError(t, err)
	require.Equal(t, big.NewInt(20_000), supply)

	id, err := node.DeployBet(initiator, defaultTerms())
	require.NoError(t, err)
	require.Equal(t, betmgmt.BetAddress(0), id)

	_, err = node.AcceptBet(acceptor, id)
	require.NoError(t, err)
	_, err = node.DeclareWinner(arbiterID, id, initiator, [20]byte{})
	require.NoError(t, err)
	settled, err := node.WithdrawEarnings(initiator, id)
	require.NoError(t, err)
	require.Equal(t, bet.StatusWithdrawn, settled.Status)

	require.Equal(t, big.NewInt(10_900), balanceOf(t, node, initiator))
	require.Equal(t, big.NewInt(9_000), balanceOf(t, node, acceptor))
	require.Equal(t, big.NewInt(50), balanceOf(t, node, arbiterID))
	treasury, err := node.Ledger(node.TreasuryLedger())
	require.NoError(t, err)
	require.Equal(t, big.NewInt(50), treasury.BalanceOf("WGR"))

	after, err := node.Supply("WGR")
	require.NoError(t, err)
	require.Equal(t, supply, after)

	details, err := node.BetDetails(id)
	require.NoError(t, err)
	require.Equal(t, initiator, details.Winner)
	require.Equal(t, acceptor, details.Loser)
	require.Len(t, details.History, 4)
}

func TestNodeTreasuryFeesReachAuthority(t *testing.T) {
	node := newTestNode(t)
	onboard(t, node)

	id, err := node.DeployBet(initiator, defaultTerms())
	require.NoError(t, err)
	_, err = node.AcceptBet(acceptor, id)
	require.NoError(t, err)
	_, err = node.DeclareWinner(arbiterID, id, initiator, [20]byte{})
	require.NoError(t, err)

	held, err := node.TreasuryBalance("WGR")
	require.NoError(t, err)
	require.Equal(t, big.NewInt(50), held)

	require.ErrorIs(t, node.WithdrawTreasury(initiator, "WGR", big.NewInt(50)), coreerr.ErrRestrictedPlatform)
	require.ErrorIs(t, node.WithdrawTreasury(authority, "WGR", big.NewInt(51)), coreerr.ErrInsufficientFunds)
	require.NoError(t, node.WithdrawTreasury(authority, "WGR", big.NewInt(50)))

	external, err := node.ExternalBalance(authority, "WGR")
	require.NoError(t, err)
	require.Equal(t, big.NewInt(50), external)
	held, err = node.TreasuryBalance("WGR")
	require.NoError(t, err)
	require.Zero(t, held.Sign())

	// Value that left the ledgers is no longer part of the custodial supply.
	supply, err := node.Supply("WGR")
	require.NoError(t, err)
	require.Equal(t, big.NewInt(19_950), supply)
}

func TestNodeFailedTransitionLeavesNoTrace(t *testing.T) {
	node := newTestNode(t)
	onboard(t, node)
	seq, err := node.EventSequence()
	require.NoError(t, err)

	var seen []*types.Event
	cancel := node.Subscribe(func(evt *types.Event) { seen = append(seen, evt) })
	defer cancel()

	terms := defaultTerms()
	terms.Stake = big.NewInt(20_000)
	terms.Payout = big.NewInt(39_900)
	_, err = node.DeployBet(initiator, terms)
	require.ErrorIs(t, err, coreerr.ErrInsufficientFunds)

	require.Empty(t, seen)
	after, err := node.EventSequence()
	require.NoError(t, err)
	require.Equal(t, seq, after)
	bets, err := node.Bets()
	require.NoError(t, err)
	require.Empty(t, bets)
	require.Equal(t, big.NewInt(10_000), balanceOf(t, node, initiator))

	// The nonce consumed by the failed attempt was rolled back.
	id, err := node.DeployBet(initiator, defaultTerms())
	require.NoError(t, err)
	require.Equal(t, betmgmt.BetAddress(0), id)
}

func TestNodeEventsCarrySequenceInCommitOrder(t *testing.T) {
	node := newTestNode(t)
	var (
		mu   sync.Mutex
		seen []*types.Event
	)
	cancel := node.Subscribe(func(evt *types.Event) {
		mu.Lock()
		seen = append(seen, evt)
		mu.Unlock()
	})
	onboard(t, node)
	id, err := node.DeployBet(initiator, defaultTerms())
	require.NoError(t, err)
	cancel()
	_, err = node.CancelBet(initiator, id)
	require.NoError(t, err)

	require.NotEmpty(t, seen)
	for i, evt := range seen {
		require.Equal(t, uint64(i+1), evt.Sequence)
	}
	last := seen[len(seen)-1]
	require.Equal(t, events.TypeBetCreated, last.Type)
	require.Equal(t, "1000", last.Attr("stake"))
	require.Equal(t, "1900", last.Attr("payout"))

	seq, err := node.EventSequence()
	require.NoError(t, err)
	require.Greater(t, seq, last.Sequence)
}

func TestNodeCancelReturnsStake(t *testing.T) {
	node := newTestNode(t)
	onboard(t, node)
	id, err := node.DeployBet(initiator, defaultTerms())
	require.NoError(t, err)

	_, err = node.CancelBet(acceptor, id)
	require.ErrorIs(t, err, coreerr.ErrRestrictedInitiator)

	cancelled, err := node.CancelBet(initiator, id)
	require.NoError(t, err)
	require.Equal(t, bet.StatusCancelled, cancelled.Status)
	require.Equal(t, big.NewInt(10_000), balanceOf(t, node, initiator))
	custody, err := node.Custody(id)
	require.NoError(t, err)
	require.Zero(t, custody.Sign())

	_, err = node.AcceptBet(acceptor, id)
	require.ErrorIs(t, err, coreerr.ErrNotInitiated)
}

func TestNodeDeclareWinnerChecksRoleBeforeState(t *testing.T) {
	node := newTestNode(t)
	onboard(t, node)
	id, err := node.DeployBet(initiator, defaultTerms())
	require.NoError(t, err)

	_, err = node.DeclareWinner(outsider, id, initiator, acceptor)
	require.ErrorIs(t, err, coreerr.ErrRestrictedArbiter)
	require.Equal(t, coreerr.KindAuthorization, coreerr.KindOf(err))

	_, err = node.DeclareWinner(arbiterID, id, initiator, acceptor)
	require.ErrorIs(t, err, coreerr.ErrNotFunded)
	require.Equal(t, coreerr.KindState, coreerr.KindOf(err))
}

func TestNodeMintRestrictedToAuthority(t *testing.T) {
	node := newTestNode(t)
	err := node.MintExternal(outsider, outsider, "WGR", big.NewInt(1))
	require.ErrorIs(t, err, coreerr.ErrRestrictedPlatform)

	err = node.MintExternal(authority, outsider, "DOGE", big.NewInt(1))
	require.ErrorIs(t, err, coreerr.ErrUnknownToken)

	require.NoError(t, node.MintExternal(authority, outsider, "wgr", big.NewInt(7)))
	bal, err := node.ExternalBalance(outsider, "WGR")
	require.NoError(t, err)
	require.Equal(t, big.NewInt(7), bal)
}

func TestNodeModulePauses(t *testing.T) {
	node := newTestNode(t)
	onboard(t, node)
	node.SetModulePauses(common.PauseSet{common.ModuleBet: true})

	_, err := node.DeployBet(initiator, defaultTerms())
	require.ErrorIs(t, err, coreerr.ErrModulePaused)
	require.NoError(t, node.Withdraw(acceptor, "WGR", big.NewInt(1)))

	node.SetModulePauses(nil)
	_, err = node.DeployBet(initiator, defaultTerms())
	require.NoError(t, err)
}

func TestNodeCreationQuota(t *testing.T) {
	node := newTestNode(t)
	onboard(t, node)
	node.SetQuota(common.Quota{MaxRequestsPerMin: 1})

	_, err := node.DeployBet(initiator, defaultTerms())
	require.NoError(t, err)
	_, err = node.DeployBet(initiator, defaultTerms())
	require.ErrorIs(t, err, coreerr.ErrQuotaExceeded)
}

func TestNodeArbiterGovernance(t *testing.T) {
	node := newTestNode(t)
	onboard(t, node)
	_, err := node.AddArbiter(arbiterID, arbiterID)
	require.NoError(t, err)

	_, err = node.SuspendArbiter(initiator, arbiterID, "spam")
	require.ErrorIs(t, err, coreerr.ErrRestrictedPlatform)
	_, err = node.SuspendArbiter(authority, arbiterID, "late rulings")
	require.NoError(t, err)

	_, err = node.DeployBet(initiator, defaultTerms())
	require.ErrorIs(t, err, coreerr.ErrArbiterSuspended)

	_, err = node.ReinstateArbiter(authority, arbiterID, "appeal")
	require.NoError(t, err)
	_, err = node.DeployBet(initiator, defaultTerms())
	require.NoError(t, err)

	_, err = node.BlockArbiter(authority, arbiterID, "collusion")
	require.NoError(t, err)
	blocked, err := node.Blocked()
	require.NoError(t, err)
	require.Equal(t, [][20]byte{arbiterID}, blocked)
}

func TestNodeReopensPersistedState(t *testing.T) {
	dir := t.TempDir()
	db, err := storage.NewLevelDB(dir)
	require.NoError(t, err)
	node, err := NewNode(db, testOptions())
	require.NoError(t, err)
	onboard(t, node)
	id, err := node.DeployBet(initiator, defaultTerms())
	require.NoError(t, err)
	treasury := node.TreasuryLedger()
	db.Close()

	db, err = storage.NewLevelDB(dir)
	require.NoError(t, err)
	defer db.Close()
	opts := testOptions()
	opts.Tokens = append(opts.Tokens, TokenSpec{Symbol: "USDW", Name: "Wager Dollar", Decimals: 6})
	reopened, err := NewNode(db, opts)
	require.NoError(t, err)
	require.Equal(t, treasury, reopened.TreasuryLedger())

	details, err := reopened.BetDetails(id)
	require.NoError(t, err)
	require.Equal(t, bet.StatusInitiated, details.Status)
	tokens, err := reopened.Tokens()
	require.NoError(t, err)
	require.Len(t, tokens, 2)

	opts.PlatformAuthority = outsider
	_, err = NewNode(db, opts)
	require.Error(t, err)
}

func TestNewNodeRequiresGenesisInputs(t *testing.T) {
	_, err := NewNode(storage.NewMemDB(), Options{Tokens: testOptions().Tokens})
	require.ErrorIs(t, err, coreerr.ErrZeroAddress)

	_, err = NewNode(storage.NewMemDB(), Options{PlatformAuthority: authority})
	require.Error(t, err)
}

func TestGenesisAllocationsApplyOnce(t *testing.T) {
	dir := t.TempDir()
	opts := testOptions()
	opts.Allocations = []Allocation{{Address: initiator, Token: "wgr", Amount: big.NewInt(700)}}

	db, err := storage.NewLevelDB(dir)
	require.NoError(t, err)
	node, err := NewNode(db, opts)
	require.NoError(t, err)
	external, err := node.ExternalBalance(initiator, "WGR")
	require.NoError(t, err)
	require.Equal(t, big.NewInt(700), external)
	db.Close()

	db, err = storage.NewLevelDB(dir)
	require.NoError(t, err)
	defer db.Close()
	reopened, err := NewNode(db, opts)
	require.NoError(t, err)
	external, err = reopened.ExternalBalance(initiator, "WGR")
	require.NoError(t, err)
	require.Equal(t, big.NewInt(700), external)

	bad := testOptions()
	bad.Allocations = []Allocation{{Address: initiator, Token: "NOPE", Amount: big.NewInt(1)}}
	_, err = NewNode(storage.NewMemDB(), bad)
	require.ErrorIs(t, err, coreerr.ErrUnknownToken)
}
