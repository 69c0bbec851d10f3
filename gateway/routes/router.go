package routes

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/go-chi/chi/v5"

	"wagerchain/core/state"
	"wagerchain/explorer"
	"wagerchain/gateway/middleware"
	"wagerchain/gateway/store"
	"wagerchain/native/arbiter"
	"wagerchain/native/bet"
	"wagerchain/native/ledger"
	"wagerchain/native/registry"
)

// Node is the slice of the wager node served over HTTP.
type Node interface {
	Register(identity [20]byte, displayName string) (*registry.User, error)
	MintExternal(caller, addr [20]byte, token string, amount *big.Int) error
	Deposit(caller [20]byte, token string, amount *big.Int) error
	Withdraw(caller [20]byte, token string, amount *big.Int) error
	GrantApproval(caller [20]byte, token string, spender [20]byte, amount *big.Int) error
	RevokeApproval(caller [20]byte, token string, spender [20]byte) error
	WithdrawTreasury(caller [20]byte, token string, amount *big.Int) error

	AddArbiter(caller, identity [20]byte) (*arbiter.Record, error)
	SuspendArbiter(caller, identity [20]byte, reason string) (*arbiter.Record, error)
	BlockArbiter(caller, identity [20]byte, reason string) (*arbiter.Record, error)
	ReinstateArbiter(caller, identity [20]byte, reason string) (*arbiter.Record, error)
	PenalizeArbiter(caller, identity [20]byte, token string, amount *big.Int) error
	PostBond(caller [20]byte, token string, amount *big.Int) error
	ReleaseBond(caller, identity [20]byte, token string, amount *big.Int) error

	DeployBet(caller [20]byte, terms bet.Terms) ([20]byte, error)
	AcceptBet(caller, id [20]byte) (*bet.Bet, error)
	DeclareWinner(caller, id, winner, loser [20]byte) (*bet.Bet, error)
	WithdrawEarnings(caller, id [20]byte) (*bet.Bet, error)
	CancelBet(caller, id [20]byte) (*bet.Bet, error)
	ExpireBet(caller, id [20]byte) (*bet.Bet, error)

	User(addr [20]byte) (*registry.User, error)
	Users() ([][20]byte, error)
	BetDetails(id [20]byte) (*bet.Bet, error)
	Bets() ([][20]byte, error)
	BetsOf(addr [20]byte) ([][20]byte, error)
	Custody(id [20]byte) (*big.Int, error)
	Arbiter(identity [20]byte) (*arbiter.Record, error)
	Arbiters() ([][20]byte, error)
	Blocked() ([][20]byte, error)
	Ledger(handle uint64) (*ledger.Account, error)
	Balance(addr [20]byte, token string) (*big.Int, error)
	Allowance(addr [20]byte, token string, spender [20]byte) (*big.Int, error)
	ExternalBalance(addr [20]byte, token string) (*big.Int, error)
	TreasuryBalance(token string) (*big.Int, error)
	Tokens() ([]*state.TokenMetadata, error)
	Supply(token string) (*big.Int, error)
}

// History serves indexed events and bet projections.
type History interface {
	Bets(ctx context.Context, filter explorer.BetFilter) ([]explorer.BetRecord, error)
	Events(ctx context.Context, filter explorer.EventFilter) ([]explorer.EventRecord, error)
}

// Rate limit ids applied to read and mutating routes.
const (
	LimitRead  = "read"
	LimitWrite = "write"
)

type Config struct {
	Node          Node
	Authenticator *middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	CORS          middleware.CORSConfig
	Idempotency   *store.IdempotencyStore
	Audit         *store.AuditLog
	Stream        http.Handler
	History       History
	Logger        *slog.Logger
}

type server struct {
	node        Node
	history     History
	idempotency *store.IdempotencyStore
	audit       *store.AuditLog
	logger      *slog.Logger
}

// New assembles the gateway router. A nil Authenticator behaves like one with
// auth disabled.
func New(cfg Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	auth := cfg.Authenticator
	if auth == nil {
		auth = middleware.NewAuthenticator(middleware.AuthConfig{}, logger)
	}
	s := &server{
		node:        cfg.Node,
		history:     cfg.History,
		idempotency: cfg.Idempotency,
		audit:       cfg.Audit,
		logger:      logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.RequestID)

	obs := cfg.Observability
	instrument := func(route string) func(http.Handler) http.Handler {
		if obs == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return obs.Middleware(route)
	}
	limit := func(key string) func(http.Handler) http.Handler {
		if cfg.RateLimiter == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return cfg.RateLimiter.Middleware(key)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if obs != nil {
		r.Handle("/metrics", obs.MetricsHandler())
	}

	r.Route("/v1", func(v1 chi.Router) {
		// Reads.
		v1.Group(func(g chi.Router) {
			g.Use(auth.Middleware(middleware.ScopeRead))
			g.Use(limit(LimitRead))
			g.Use(instrument("read"))

			g.Get("/tokens", s.read(s.listTokens))
			g.Get("/tokens/{symbol}/supply", s.read(s.tokenSupply))
			g.Get("/users", s.read(s.listUsers))
			g.Get("/users/{addr}", s.read(s.getUser))
			g.Get("/users/{addr}/bets", s.read(s.userBets))
			g.Get("/ledgers/{addr}", s.read(s.getLedger))
			g.Get("/ledgers/{addr}/balances/{token}", s.read(s.getBalance))
			g.Get("/ledgers/{addr}/approvals/{spender}", s.read(s.getAllowance))
			g.Get("/treasury/balances/{token}", s.read(s.treasuryBalance))
			g.Get("/arbiters", s.read(s.listArbiters))
			g.Get("/arbiters/{addr}", s.read(s.getArbiter))
			g.Get("/bets", s.read(s.listBets))
			g.Get("/bets/{id}", s.read(s.getBet))
			if cfg.History != nil {
				g.Get("/history/bets", s.read(s.historyBets))
				g.Get("/history/events", s.read(s.historyEvents))
			}
			if cfg.Stream != nil {
				g.Handle("/events/ws", cfg.Stream)
			}
		})

		// Mutations.
		v1.Group(func(g chi.Router) {
			g.Use(auth.Middleware(middleware.ScopeWrite))
			g.Use(limit(LimitWrite))
			g.Use(instrument("write"))

			g.Post("/users", s.mutate(s.register))
			g.Post("/mint", s.mutate(s.mint))
			g.Post("/treasury/withdraw", s.mutate(s.withdrawTreasury))
			g.Post("/ledgers/{addr}/deposit", s.mutate(s.deposit))
			g.Post("/ledgers/{addr}/withdraw", s.mutate(s.withdraw))
			g.Post("/ledgers/{addr}/approvals", s.mutate(s.grantApproval))
			g.Delete("/ledgers/{addr}/approvals/{spender}", s.mutate(s.revokeApproval))
			g.Post("/arbiters", s.mutate(s.addArbiter))
			g.Post("/arbiters/{addr}/suspend", s.mutate(s.arbiterTransition(statusSuspend)))
			g.Post("/arbiters/{addr}/block", s.mutate(s.arbiterTransition(statusBlock)))
			g.Post("/arbiters/{addr}/reinstate", s.mutate(s.arbiterTransition(statusReinstate)))
			g.Post("/arbiters/{addr}/penalize", s.mutate(s.penalize))
			g.Post("/arbiters/{addr}/release", s.mutate(s.releaseBond))
			g.Post("/arbiters/bond", s.mutate(s.postBond))
			g.Post("/bets", s.mutate(s.deployBet))
			g.Post("/bets/{id}/accept", s.mutate(s.betAction(actionAccept)))
			g.Post("/bets/{id}/declare", s.mutate(s.declareWinner))
			g.Post("/bets/{id}/withdraw", s.mutate(s.betAction(actionWithdraw)))
			g.Post("/bets/{id}/cancel", s.mutate(s.betAction(actionCancel)))
			g.Post("/bets/{id}/expire", s.mutate(s.betAction(actionExpire)))
		})
	})
	return r
}
