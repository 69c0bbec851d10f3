package routes

import (
	"math/big"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	coreerr "wagerchain/core/errors"
	"wagerchain/native/bet"
)

type tokenView struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals uint8  `json:"decimals"`
}

func (s *server) listTokens(r *http.Request) (interface{}, error) {
	tokens, err := s.node.Tokens()
	if err != nil {
		return nil, err
	}
	out := make([]tokenView, 0, len(tokens))
	for _, meta := range tokens {
		out = append(out, tokenView{Symbol: meta.Symbol, Name: meta.Name, Decimals: meta.Decimals})
	}
	return out, nil
}

func (s *server) tokenSupply(r *http.Request) (interface{}, error) {
	symbol := chi.URLParam(r, "symbol")
	supply, err := s.node.Supply(symbol)
	if err != nil {
		return nil, err
	}
	return map[string]string{"token": strings.ToUpper(symbol), "supply": supply.String()}, nil
}

func (s *server) listUsers(r *http.Request) (interface{}, error) {
	addrs, err := s.node.Users()
	if err != nil {
		return nil, err
	}
	out := make([]userView, 0, len(addrs))
	for _, addr := range addrs {
		user, err := s.node.User(addr)
		if err != nil {
			return nil, err
		}
		out = append(out, newUserView(user))
	}
	return out, nil
}

func (s *server) getUser(r *http.Request) (interface{}, error) {
	addr, err := pathAddress(r, "addr")
	if err != nil {
		return nil, err
	}
	user, err := s.node.User(addr)
	if err != nil {
		return nil, err
	}
	return newUserView(user), nil
}

func (s *server) userBets(r *http.Request) (interface{}, error) {
	addr, err := pathAddress(r, "addr")
	if err != nil {
		return nil, err
	}
	ids, err := s.node.BetsOf(addr)
	if err != nil {
		return nil, err
	}
	return s.betViews(ids, "")
}

func (s *server) getLedger(r *http.Request) (interface{}, error) {
	addr, err := pathAddress(r, "addr")
	if err != nil {
		return nil, err
	}
	user, err := s.node.User(addr)
	if err != nil {
		return nil, err
	}
	account, err := s.node.Ledger(user.Ledger)
	if err != nil {
		return nil, err
	}
	return newLedgerView(account), nil
}

type balanceView struct {
	Address  string `json:"address"`
	Token    string `json:"token"`
	Ledger   string `json:"ledger"`
	External string `json:"external"`
}

func (s *server) getBalance(r *http.Request) (interface{}, error) {
	addr, err := pathAddress(r, "addr")
	if err != nil {
		return nil, err
	}
	token := chi.URLParam(r, "token")
	held, err := s.node.Balance(addr, token)
	if err != nil {
		return nil, err
	}
	external, err := s.node.ExternalBalance(addr, token)
	if err != nil {
		return nil, err
	}
	return balanceView{
		Address:  formatAddress(addr),
		Token:    strings.ToUpper(strings.TrimSpace(token)),
		Ledger:   amountString(held),
		External: amountString(external),
	}, nil
}

func (s *server) getAllowance(r *http.Request) (interface{}, error) {
	addr, err := pathAddress(r, "addr")
	if err != nil {
		return nil, err
	}
	spender, err := pathAddress(r, "spender")
	if err != nil {
		return nil, err
	}
	token := r.URL.Query().Get("token")
	amount, err := s.node.Allowance(addr, token, spender)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"owner":   formatAddress(addr),
		"spender": formatAddress(spender),
		"token":   strings.ToUpper(strings.TrimSpace(token)),
		"amount":  amountString(amount),
	}, nil
}

func (s *server) listArbiters(r *http.Request) (interface{}, error) {
	var (
		addrs [][20]byte
		err   error
	)
	if r.URL.Query().Get("blocked") == "true" {
		addrs, err = s.node.Blocked()
	} else {
		addrs, err = s.node.Arbiters()
	}
	if err != nil {
		return nil, err
	}
	out := make([]arbiterView, 0, len(addrs))
	for _, addr := range addrs {
		record, err := s.node.Arbiter(addr)
		if err != nil {
			return nil, err
		}
		out = append(out, newArbiterView(record))
	}
	return out, nil
}

func (s *server) getArbiter(r *http.Request) (interface{}, error) {
	addr, err := pathAddress(r, "addr")
	if err != nil {
		return nil, err
	}
	record, err := s.node.Arbiter(addr)
	if err != nil {
		return nil, err
	}
	return newArbiterView(record), nil
}

func (s *server) listBets(r *http.Request) (interface{}, error) {
	query := r.URL.Query()
	var (
		ids [][20]byte
		err error
	)
	if participant := query.Get("participant"); participant != "" {
		addr, perr := parseAddress("participant", participant)
		if perr != nil {
			return nil, perr
		}
		ids, err = s.node.BetsOf(addr)
	} else {
		ids, err = s.node.Bets()
	}
	if err != nil {
		return nil, err
	}
	return s.betViews(ids, query.Get("status"))
}

type betDetailView struct {
	betView
	Custody string `json:"custody"`
}

func (s *server) getBet(r *http.Request) (interface{}, error) {
	id, err := parseBetID(chi.URLParam(r, "id"))
	if err != nil {
		return nil, err
	}
	b, err := s.node.BetDetails(id)
	if err != nil {
		return nil, err
	}
	custody, err := s.node.Custody(id)
	if err != nil {
		return nil, err
	}
	return betDetailView{betView: newBetView(b), Custody: amountString(custody)}, nil
}

func (s *server) betViews(ids [][20]byte, status string) ([]betView, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	out := make([]betView, 0, len(ids))
	for _, id := range ids {
		b, err := s.node.BetDetails(id)
		if err != nil {
			return nil, err
		}
		if status != "" && b.Status.String() != status {
			continue
		}
		out = append(out, newBetView(b))
	}
	return out, nil
}

type registerRequest struct {
	Username string `json:"username"`
}

func (s *server) register(r *http.Request, caller [20]byte) (int, interface{}, error) {
	var req registerRequest
	if err := decodeBody(r, &req); err != nil {
		return 0, nil, err
	}
	user, err := s.node.Register(caller, req.Username)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusCreated, newUserView(user), nil
}

type mintRequest struct {
	Address string `json:"address"`
	Token   string `json:"token"`
	Amount  string `json:"amount"`
}

func (s *server) mint(r *http.Request, caller [20]byte) (int, interface{}, error) {
	var req mintRequest
	if err := decodeBody(r, &req); err != nil {
		return 0, nil, err
	}
	addr, err := parseAddress("address", req.Address)
	if err != nil {
		return 0, nil, err
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		return 0, nil, err
	}
	if err := s.node.MintExternal(caller, addr, req.Token, amount); err != nil {
		return 0, nil, err
	}
	balance, err := s.node.ExternalBalance(addr, req.Token)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, map[string]string{
		"address":  formatAddress(addr),
		"token":    strings.ToUpper(strings.TrimSpace(req.Token)),
		"external": amountString(balance),
	}, nil
}

type treasuryView struct {
	Token    string `json:"token"`
	Treasury string `json:"treasury"`
	External string `json:"external,omitempty"`
}

func (s *server) treasuryBalance(r *http.Request) (interface{}, error) {
	token := chi.URLParam(r, "token")
	held, err := s.node.TreasuryBalance(token)
	if err != nil {
		return nil, err
	}
	return treasuryView{
		Token:    strings.ToUpper(strings.TrimSpace(token)),
		Treasury: amountString(held),
	}, nil
}

// withdrawTreasury pays collected fees out to the authority's wallet.
func (s *server) withdrawTreasury(r *http.Request, caller [20]byte) (int, interface{}, error) {
	var req amountRequest
	if err := decodeBody(r, &req); err != nil {
		return 0, nil, err
	}
	token, amount, err := req.parse()
	if err != nil {
		return 0, nil, err
	}
	if err := s.node.WithdrawTreasury(caller, token, amount); err != nil {
		return 0, nil, err
	}
	held, err := s.node.TreasuryBalance(token)
	if err != nil {
		return 0, nil, err
	}
	external, err := s.node.ExternalBalance(caller, token)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, treasuryView{
		Token:    strings.ToUpper(strings.TrimSpace(token)),
		Treasury: amountString(held),
		External: amountString(external),
	}, nil
}

type amountRequest struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

func (req amountRequest) parse() (string, *big.Int, error) {
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		return "", nil, err
	}
	return req.Token, amount, nil
}

// ownLedger rejects ledger mutations addressed at someone else's ledger.
func ownLedger(r *http.Request, caller [20]byte) error {
	addr, err := pathAddress(r, "addr")
	if err != nil {
		return err
	}
	if addr != caller {
		return coreerr.ErrRestrictedOwner
	}
	return nil
}

func (s *server) deposit(r *http.Request, caller [20]byte) (int, interface{}, error) {
	return s.moveFunds(r, caller, s.node.Deposit)
}

func (s *server) withdraw(r *http.Request, caller [20]byte) (int, interface{}, error) {
	return s.moveFunds(r, caller, s.node.Withdraw)
}

func (s *server) moveFunds(r *http.Request, caller [20]byte, move func([20]byte, string, *big.Int) error) (int, interface{}, error) {
	if err := ownLedger(r, caller); err != nil {
		return 0, nil, err
	}
	var req amountRequest
	if err := decodeBody(r, &req); err != nil {
		return 0, nil, err
	}
	token, amount, err := req.parse()
	if err != nil {
		return 0, nil, err
	}
	if err := move(caller, token, amount); err != nil {
		return 0, nil, err
	}
	held, err := s.node.Balance(caller, token)
	if err != nil {
		return 0, nil, err
	}
	external, err := s.node.ExternalBalance(caller, token)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, balanceView{
		Address:  formatAddress(caller),
		Token:    strings.ToUpper(strings.TrimSpace(token)),
		Ledger:   amountString(held),
		External: amountString(external),
	}, nil
}

type approvalRequest struct {
	Token   string `json:"token"`
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

func (s *server) grantApproval(r *http.Request, caller [20]byte) (int, interface{}, error) {
	if err := ownLedger(r, caller); err != nil {
		return 0, nil, err
	}
	var req approvalRequest
	if err := decodeBody(r, &req); err != nil {
		return 0, nil, err
	}
	spender, err := parseAddress("spender", req.Spender)
	if err != nil {
		return 0, nil, err
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		return 0, nil, err
	}
	if err := s.node.GrantApproval(caller, req.Token, spender, amount); err != nil {
		return 0, nil, err
	}
	return s.allowanceResult(caller, req.Token, spender)
}

func (s *server) revokeApproval(r *http.Request, caller [20]byte) (int, interface{}, error) {
	if err := ownLedger(r, caller); err != nil {
		return 0, nil, err
	}
	spender, err := pathAddress(r, "spender")
	if err != nil {
		return 0, nil, err
	}
	token := r.URL.Query().Get("token")
	if err := s.node.RevokeApproval(caller, token, spender); err != nil {
		return 0, nil, err
	}
	return s.allowanceResult(caller, token, spender)
}

func (s *server) allowanceResult(owner [20]byte, token string, spender [20]byte) (int, interface{}, error) {
	amount, err := s.node.Allowance(owner, token, spender)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, map[string]string{
		"owner":   formatAddress(owner),
		"spender": formatAddress(spender),
		"token":   strings.ToUpper(strings.TrimSpace(token)),
		"amount":  amountString(amount),
	}, nil
}

type arbiterRequest struct {
	Address string `json:"address"`
}

func (s *server) addArbiter(r *http.Request, caller [20]byte) (int, interface{}, error) {
	var req arbiterRequest
	if err := decodeBody(r, &req); err != nil {
		return 0, nil, err
	}
	addr, err := parseAddress("address", req.Address)
	if err != nil {
		return 0, nil, err
	}
	record, err := s.node.AddArbiter(caller, addr)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusCreated, newArbiterView(record), nil
}

type arbiterStatusAction int

const (
	statusSuspend arbiterStatusAction = iota
	statusBlock
	statusReinstate
)

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (s *server) arbiterTransition(action arbiterStatusAction) mutationFunc {
	return func(r *http.Request, caller [20]byte) (int, interface{}, error) {
		addr, err := pathAddress(r, "addr")
		if err != nil {
			return 0, nil, err
		}
		var req reasonRequest
		if err := decodeBody(r, &req); err != nil {
			return 0, nil, err
		}
		transition := s.node.SuspendArbiter
		switch action {
		case statusBlock:
			transition = s.node.BlockArbiter
		case statusReinstate:
			transition = s.node.ReinstateArbiter
		}
		record, err := transition(caller, addr, req.Reason)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, newArbiterView(record), nil
	}
}

func (s *server) penalize(r *http.Request, caller [20]byte) (int, interface{}, error) {
	return s.bondAction(r, caller, s.node.PenalizeArbiter)
}

func (s *server) releaseBond(r *http.Request, caller [20]byte) (int, interface{}, error) {
	return s.bondAction(r, caller, s.node.ReleaseBond)
}

func (s *server) bondAction(r *http.Request, caller [20]byte, act func(caller, identity [20]byte, token string, amount *big.Int) error) (int, interface{}, error) {
	addr, err := pathAddress(r, "addr")
	if err != nil {
		return 0, nil, err
	}
	var req amountRequest
	if err := decodeBody(r, &req); err != nil {
		return 0, nil, err
	}
	token, amount, err := req.parse()
	if err != nil {
		return 0, nil, err
	}
	if err := act(caller, addr, token, amount); err != nil {
		return 0, nil, err
	}
	return s.arbiterResult(addr)
}

func (s *server) postBond(r *http.Request, caller [20]byte) (int, interface{}, error) {
	var req amountRequest
	if err := decodeBody(r, &req); err != nil {
		return 0, nil, err
	}
	token, amount, err := req.parse()
	if err != nil {
		return 0, nil, err
	}
	if err := s.node.PostBond(caller, token, amount); err != nil {
		return 0, nil, err
	}
	return s.arbiterResult(caller)
}

type arbiterBondView struct {
	arbiterView
	Bond map[string]string `json:"bond"`
}

func (s *server) arbiterResult(addr [20]byte) (int, interface{}, error) {
	record, err := s.node.Arbiter(addr)
	if err != nil {
		return 0, nil, err
	}
	bond := map[string]string{}
	if record.Holding != 0 {
		account, err := s.node.Ledger(record.Holding)
		if err != nil {
			return 0, nil, err
		}
		bond = newLedgerView(account).Balances
	}
	return http.StatusOK, arbiterBondView{arbiterView: newArbiterView(record), Bond: bond}, nil
}

type deployRequest struct {
	Type        string `json:"type"`
	Token       string `json:"token"`
	Arbiter     string `json:"arbiter"`
	Acceptor    string `json:"acceptor,omitempty"`
	Stake       string `json:"stake"`
	ArbiterFee  string `json:"arbiterFee"`
	PlatformFee string `json:"platformFee"`
	Payout      string `json:"payout,omitempty"`
	Condition   string `json:"condition"`
	Deadline    uint64 `json:"deadline,omitempty"`
}

func (req deployRequest) terms(initiator [20]byte) (bet.Terms, error) {
	kind := bet.TypeOpen
	if strings.TrimSpace(req.Type) != "" {
		parsed, ok := bet.ParseType(req.Type)
		if !ok {
			return bet.Terms{}, badRequest("unknown bet type %q", req.Type)
		}
		kind = parsed
	}
	arbiterAddr, err := parseAddress("arbiter", req.Arbiter)
	if err != nil {
		return bet.Terms{}, err
	}
	acceptor, err := parseAddress("acceptor", req.Acceptor)
	if err != nil {
		return bet.Terms{}, err
	}
	stake, err := parseAmount("stake", req.Stake)
	if err != nil {
		return bet.Terms{}, err
	}
	arbiterFee, err := optionalAmount("arbiterFee", req.ArbiterFee)
	if err != nil {
		return bet.Terms{}, err
	}
	platformFee, err := optionalAmount("platformFee", req.PlatformFee)
	if err != nil {
		return bet.Terms{}, err
	}
	var payout *big.Int
	if strings.TrimSpace(req.Payout) == "" {
		payout = new(big.Int).Lsh(stake, 1)
		payout.Sub(payout, arbiterFee)
		payout.Sub(payout, platformFee)
	} else if payout, err = parseAmount("payout", req.Payout); err != nil {
		return bet.Terms{}, err
	}
	return bet.Terms{
		Type:        kind,
		Token:       req.Token,
		Initiator:   initiator,
		Arbiter:     arbiterAddr,
		Acceptor:    acceptor,
		Stake:       stake,
		ArbiterFee:  arbiterFee,
		PlatformFee: platformFee,
		Payout:      payout,
		Condition:   req.Condition,
		Deadline:    req.Deadline,
	}, nil
}

func (s *server) deployBet(r *http.Request, caller [20]byte) (int, interface{}, error) {
	var req deployRequest
	if err := decodeBody(r, &req); err != nil {
		return 0, nil, err
	}
	terms, err := req.terms(caller)
	if err != nil {
		return 0, nil, err
	}
	id, err := s.node.DeployBet(caller, terms)
	if err != nil {
		return 0, nil, err
	}
	b, err := s.node.BetDetails(id)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusCreated, newBetView(b), nil
}

type betActionKind int

const (
	actionAccept betActionKind = iota
	actionWithdraw
	actionCancel
	actionExpire
)

func (s *server) betAction(action betActionKind) mutationFunc {
	return func(r *http.Request, caller [20]byte) (int, interface{}, error) {
		id, err := parseBetID(chi.URLParam(r, "id"))
		if err != nil {
			return 0, nil, err
		}
		var run func(caller, id [20]byte) (*bet.Bet, error)
		switch action {
		case actionAccept:
			run = s.node.AcceptBet
		case actionWithdraw:
			run = s.node.WithdrawEarnings
		case actionCancel:
			run = s.node.CancelBet
		default:
			run = s.node.ExpireBet
		}
		b, err := run(caller, id)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, newBetView(b), nil
	}
}

type declareRequest struct {
	Winner string `json:"winner"`
	Loser  string `json:"loser,omitempty"`
}

func (s *server) declareWinner(r *http.Request, caller [20]byte) (int, interface{}, error) {
	id, err := parseBetID(chi.URLParam(r, "id"))
	if err != nil {
		return 0, nil, err
	}
	var req declareRequest
	if err := decodeBody(r, &req); err != nil {
		return 0, nil, err
	}
	winner, err := parseAddress("winner", req.Winner)
	if err != nil {
		return 0, nil, err
	}
	loser, err := parseAddress("loser", req.Loser)
	if err != nil {
		return 0, nil, err
	}
	b, err := s.node.DeclareWinner(caller, id, winner, loser)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, newBetView(b), nil
}

func pathAddress(r *http.Request, param string) ([20]byte, error) {
	raw := chi.URLParam(r, param)
	addr, err := parseAddress(param, raw)
	if err != nil {
		return [20]byte{}, err
	}
	if addr == ([20]byte{}) {
		return [20]byte{}, badRequest("%s required", param)
	}
	return addr, nil
}
