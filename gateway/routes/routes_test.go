package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"wagerchain/core"
	"wagerchain/crypto"
	"wagerchain/explorer"
	"wagerchain/gateway/middleware"
	"wagerchain/gateway/store"
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
	outsider  = testAddress(0x04)
)

func bech(addr [20]byte) string { return crypto.MustAddress(addr).String() }

type harness struct {
	handler http.Handler
	node    *core.Node
	audit   *store.AuditLog
	indexer *explorer.Indexer
}

func newHarness(t *testing.T, auth *middleware.Authenticator) *harness {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	node, err := core.NewNode(db, core.Options{
		PlatformAuthority: authority,
		Tokens:            []core.TokenSpec{{Symbol: "WGR", Name: "Wager", Decimals: 18}},
		Now:               func() int64 { return 1_700_000_000 },
	})
	require.NoError(t, err)

	idem, err := store.OpenIdempotency(filepath.Join(t.TempDir(), "idempotency.db"), time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idem.Close() })
	audit, err := store.OpenAuditLog(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = audit.Close() })

	gdb, err := explorer.Open("sqlite", filepath.Join(t.TempDir(), "explorer.db"))
	require.NoError(t, err)
	indexer, err := explorer.NewIndexer(gdb, nil, 4096)
	require.NoError(t, err)
	t.Cleanup(indexer.Close)
	t.Cleanup(node.Subscribe(indexer.Handle))

	handler := New(Config{
		Node:          node,
		Authenticator: auth,
		Idempotency:   idem,
		Audit:         audit,
		History:       indexer,
	})
	return &harness{handler: handler, node: node, audit: audit, indexer: indexer}
}

func (h *harness) call(t *testing.T, method, path string, caller [20]byte, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	if caller != ([20]byte{}) {
		req.Header.Set("X-Wager-Caller", bech(caller))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
}

func (h *harness) onboard(t *testing.T) {
	t.Helper()
	for addr, name := range map[[20]byte]string{initiator: "creator", acceptor: "challenger", judge: "judge"} {
		rec := h.call(t, http.MethodPost, "/v1/users", addr, map[string]string{"username": name})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	for _, player := range [][20]byte{initiator, acceptor} {
		rec := h.call(t, http.MethodPost, "/v1/mint", authority, map[string]string{
			"address": bech(player), "token": "WGR", "amount": "10000",
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		rec = h.call(t, http.MethodPost, "/v1/ledgers/"+bech(player)+"/deposit", player, map[string]string{
			"token": "WGR", "amount": "10000",
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
}

func (h *harness) deploy(t *testing.T) string {
	t.Helper()
	rec := h.call(t, http.MethodPost, "/v1/bets", initiator, map[string]string{
		"type":        "open",
		"token":       "WGR",
		"arbiter":     bech(judge),
		"stake":       "1000",
		"arbiterFee":  "50",
		"platformFee": "50",
		"condition":   "Home team wins",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var view betView
	decode(t, rec, &view)
	require.Equal(t, "1900", view.Payout)
	return view.ID
}

func TestBetLifecycleOverHTTP(t *testing.T) {
	h := newHarness(t, nil)
	h.onboard(t)
	id := h.deploy(t)

	rec := h.call(t, http.MethodPost, "/v1/bets/"+id+"/accept", acceptor, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = h.call(t, http.MethodPost, "/v1/bets/"+id+"/declare", judge, map[string]string{"winner": bech(initiator)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = h.call(t, http.MethodPost, "/v1/bets/"+id+"/withdraw", initiator, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.call(t, http.MethodGet, "/v1/bets/"+id, outsider, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var detail betDetailView
	decode(t, rec, &detail)
	require.Equal(t, "withdrawn", detail.Status)
	require.Equal(t, "0", detail.Custody)
	require.Equal(t, bech(acceptor), detail.Loser)
	require.Len(t, detail.History, 4)

	rec = h.call(t, http.MethodGet, "/v1/ledgers/"+bech(initiator)+"/balances/wgr", outsider, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var balance balanceView
	decode(t, rec, &balance)
	require.Equal(t, "10900", balance.Ledger)
	require.Equal(t, "0", balance.External)

	rec = h.call(t, http.MethodGet, "/v1/tokens/WGR/supply", outsider, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var supply map[string]string
	decode(t, rec, &supply)
	require.Equal(t, "20000", supply["supply"])

	rec = h.call(t, http.MethodGet, "/v1/bets?participant="+bech(acceptor)+"&status=withdrawn", outsider, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []betView
	decode(t, rec, &listed)
	require.Len(t, listed, 1)
	require.Equal(t, id, listed[0].ID)
}

func TestTreasuryWithdrawalPaysAuthority(t *testing.T) {
	h := newHarness(t, nil)
	h.onboard(t)
	id := h.deploy(t)
	rec := h.call(t, http.MethodPost, "/v1/bets/"+id+"/accept", acceptor, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = h.call(t, http.MethodPost, "/v1/bets/"+id+"/declare", judge, map[string]string{"winner": bech(initiator)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.call(t, http.MethodGet, "/v1/treasury/balances/wgr", outsider, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var view treasuryView
	decode(t, rec, &view)
	require.Equal(t, "WGR", view.Token)
	require.Equal(t, "50", view.Treasury)

	rec = h.call(t, http.MethodPost, "/v1/treasury/withdraw", initiator, map[string]string{"token": "WGR", "amount": "50"})
	require.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())

	rec = h.call(t, http.MethodPost, "/v1/treasury/withdraw", authority, map[string]string{"token": "WGR", "amount": "50"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	view = treasuryView{}
	decode(t, rec, &view)
	require.Equal(t, "0", view.Treasury)
	require.Equal(t, "50", view.External)
}

func TestErrorKindsMapToStatus(t *testing.T) {
	h := newHarness(t, nil)
	h.onboard(t)
	id := h.deploy(t)

	cases := map[string]struct {
		method string
		path   string
		caller [20]byte
		body   interface{}
		status int
		kind   string
	}{
		"foreign ledger": {http.MethodPost, "/v1/ledgers/" + bech(initiator) + "/withdraw", acceptor,
			map[string]string{"token": "WGR", "amount": "1"}, http.StatusForbidden, "authorization"},
		"unknown bet": {http.MethodGet, "/v1/bets/0x00000000000000000000000000000000000000ff", outsider,
			nil, http.StatusNotFound, "not_found"},
		"malformed bet id": {http.MethodGet, "/v1/bets/nope", outsider, nil, http.StatusBadRequest, "request"},
		"declare by outsider": {http.MethodPost, "/v1/bets/" + id + "/declare", outsider,
			map[string]string{"winner": bech(initiator)}, http.StatusForbidden, "authorization"},
		"declare before accept": {http.MethodPost, "/v1/bets/" + id + "/declare", judge,
			map[string]string{"winner": bech(initiator)}, http.StatusConflict, "state"},
		"overdraw": {http.MethodPost, "/v1/ledgers/" + bech(initiator) + "/withdraw", initiator,
			map[string]string{"token": "WGR", "amount": "999999"}, http.StatusPaymentRequired, "funds"},
		"mint restricted": {http.MethodPost, "/v1/mint", outsider,
			map[string]string{"address": bech(outsider), "token": "WGR", "amount": "1"}, http.StatusForbidden, "authorization"},
		"unknown token": {http.MethodPost, "/v1/ledgers/" + bech(initiator) + "/deposit", initiator,
			map[string]string{"token": "XYZ", "amount": "1"}, http.StatusBadRequest, "validation"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec := h.call(t, tc.method, tc.path, tc.caller, tc.body)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			var resp errorResponse
			decode(t, rec, &resp)
			require.Equal(t, tc.kind, resp.Kind)
			require.NotEmpty(t, resp.Error)
		})
	}
}

func TestMutationRequiresCaller(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.call(t, http.MethodPost, "/v1/users", [20]byte{}, map[string]string{"username": "ghost"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRejectsUnknownFields(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.call(t, http.MethodPost, "/v1/users", initiator, map[string]string{"username": "a", "extra": "b"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIdempotentReplay(t *testing.T) {
	h := newHarness(t, nil)
	body := map[string]string{"username": "creator"}

	first := h.call(t, http.MethodPost, "/v1/users", initiator, body, HeaderIdempotencyKey, "key-1")
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())

	second := h.call(t, http.MethodPost, "/v1/users", initiator, body, HeaderIdempotencyKey, "key-1")
	require.Equal(t, http.StatusCreated, second.Code)
	require.Equal(t, "true", second.Header().Get(HeaderReplayed))
	require.JSONEq(t, first.Body.String(), second.Body.String())

	// Without the key the retry reaches the node and is rejected.
	third := h.call(t, http.MethodPost, "/v1/users", initiator, body)
	require.Equal(t, http.StatusBadRequest, third.Code)

	mismatch := h.call(t, http.MethodPost, "/v1/users", initiator, map[string]string{"username": "other"}, HeaderIdempotencyKey, "key-1")
	require.Equal(t, http.StatusConflict, mismatch.Code)

	// Keys are scoped per caller.
	other := h.call(t, http.MethodPost, "/v1/users", acceptor, map[string]string{"username": "challenger"}, HeaderIdempotencyKey, "key-1")
	require.Equal(t, http.StatusCreated, other.Code, other.Body.String())
}

func TestMutationsAreAudited(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.call(t, http.MethodPost, "/v1/users", initiator, map[string]string{"username": "creator"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = h.call(t, http.MethodPost, "/v1/users", initiator, map[string]string{"username": "creator"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	h.call(t, http.MethodGet, "/v1/users", initiator, nil)

	entries, err := h.audit.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "validation", entries[0].ErrorKind)
	require.Equal(t, http.StatusBadRequest, entries[0].Status)
	require.Equal(t, http.StatusCreated, entries[1].Status)
	require.Equal(t, bech(initiator), entries[1].Caller)
	require.Equal(t, "/v1/users", entries[1].Path)
	require.NotEmpty(t, entries[1].RequestID)
}

func TestArbiterGovernanceRoutes(t *testing.T) {
	h := newHarness(t, nil)
	h.onboard(t)

	rec := h.call(t, http.MethodPost, "/v1/arbiters", authority, map[string]string{"address": bech(judge)})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = h.call(t, http.MethodPost, "/v1/arbiters/"+bech(judge)+"/suspend", authority, map[string]string{"reason": "late ruling"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var view arbiterView
	decode(t, rec, &view)
	require.Equal(t, "late ruling", view.Reason)

	rec = h.call(t, http.MethodPost, "/v1/bets", initiator, map[string]string{
		"token": "WGR", "arbiter": bech(judge), "stake": "100", "condition": "rain",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	rec = h.call(t, http.MethodPost, "/v1/arbiters/"+bech(judge)+"/block", outsider, map[string]string{"reason": "x"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.call(t, http.MethodGet, "/v1/arbiters", outsider, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []arbiterView
	decode(t, rec, &listed)
	require.Len(t, listed, 1)
	require.Equal(t, bech(judge), listed[0].Address)
}

func TestApprovalRoutes(t *testing.T) {
	h := newHarness(t, nil)
	h.onboard(t)
	path := "/v1/ledgers/" + bech(initiator) + "/approvals"

	rec := h.call(t, http.MethodPost, path, initiator, map[string]string{
		"token": "WGR", "spender": bech(outsider), "amount": "250",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.call(t, http.MethodGet, path+"/"+bech(outsider)+"?token=WGR", outsider, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var allowance map[string]string
	decode(t, rec, &allowance)
	require.Equal(t, "250", allowance["amount"])

	rec = h.call(t, http.MethodDelete, path+"/"+bech(outsider)+"?token=WGR", initiator, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &allowance)
	require.Equal(t, "0", allowance["amount"])

	got, err := h.node.Allowance(initiator, "WGR", outsider)
	require.NoError(t, err)
	require.Zero(t, got.Cmp(big.NewInt(0)))
}

func TestTokenScopesEnforced(t *testing.T) {
	const secret = "0123456789abcdef0123"
	auth := middleware.NewAuthenticator(middleware.AuthConfig{Enabled: true, HMACSecret: secret}, nil)
	h := newHarness(t, auth)

	readOnly, err := middleware.IssueToken(secret, "", initiator, []string{middleware.ScopeRead}, time.Minute)
	require.NoError(t, err)
	rec := h.call(t, http.MethodGet, "/v1/tokens", [20]byte{}, nil, "Authorization", "Bearer "+readOnly)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = h.call(t, http.MethodPost, "/v1/users", [20]byte{}, map[string]string{"username": "creator"}, "Authorization", "Bearer "+readOnly)
	require.Equal(t, http.StatusForbidden, rec.Code)

	writer, err := middleware.IssueToken(secret, "", initiator, []string{middleware.ScopeRead, middleware.ScopeWrite}, time.Minute)
	require.NoError(t, err)
	rec = h.call(t, http.MethodPost, "/v1/users", [20]byte{}, map[string]string{"username": "creator"}, "Authorization", "Bearer "+writer)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var user userView
	decode(t, rec, &user)
	require.Equal(t, bech(initiator), user.Address)

	// The caller header is ignored once tokens are required.
	rec = h.call(t, http.MethodGet, "/v1/tokens", initiator, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "bearer"))
}

func TestHistoryRoutesServeIndexedEvents(t *testing.T) {
	h := newHarness(t, nil)
	h.onboard(t)
	id := h.deploy(t)
	rec := h.call(t, http.MethodPost, "/v1/bets/"+id+"/cancel", initiator, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	// Drain the indexer queue before querying.
	h.indexer.Close()

	rec = h.call(t, http.MethodGet, "/v1/history/events?bet="+id, outsider, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var events []explorer.EventRecord
	decode(t, rec, &events)
	require.Len(t, events, 2)
	require.Equal(t, "bet.created", events[0].Type)
	require.Equal(t, "bet.cancelled", events[1].Type)

	rec = h.call(t, http.MethodGet, "/v1/history/bets?status=cancelled&participant="+bech(initiator), outsider, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var bets []explorer.BetRecord
	decode(t, rec, &bets)
	require.Len(t, bets, 1)
	require.Equal(t, id, bets[0].ID)

	rec = h.call(t, http.MethodGet, "/v1/history/events?after=x", outsider, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
