package routes

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"

	coreerr "wagerchain/core/errors"
	"wagerchain/crypto"
	"wagerchain/gateway/store"
	"wagerchain/native/arbiter"
	"wagerchain/native/bet"
	"wagerchain/native/ledger"
	"wagerchain/native/registry"
)

const maxRequestBody = 1 << 20 // 1 MiB

// errBadRequest marks malformed input detected before reaching the node.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// statusFor maps an error to its HTTP status and kind label.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "request"
	case errors.Is(err, store.ErrIdempotencyMismatch):
		return http.StatusConflict, "idempotency"
	}
	kind := coreerr.KindOf(err)
	switch kind {
	case coreerr.KindValidation:
		return http.StatusBadRequest, kind.String()
	case coreerr.KindAuthorization:
		return http.StatusForbidden, kind.String()
	case coreerr.KindState:
		return http.StatusConflict, kind.String()
	case coreerr.KindFunds:
		return http.StatusPaymentRequired, kind.String()
	case coreerr.KindNotFound:
		return http.StatusNotFound, kind.String()
	default:
		return http.StatusInternalServerError, kind.String()
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	status, kind := statusFor(err)
	message := coreerr.Reason(err)
	if status == http.StatusInternalServerError {
		message = "internal error"
	} else if errors.Is(err, errBadRequest) || errors.Is(err, store.ErrIdempotencyMismatch) {
		message = err.Error()
	}
	writeJSON(w, status, errorResponse{Error: message, Kind: kind})
}

func decodeBody(r *http.Request, out interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody+1))
	if err != nil {
		return badRequest("read body: %v", err)
	}
	if len(body) > maxRequestBody {
		return badRequest("request body too large")
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil
	}
	decoder := json.NewDecoder(strings.NewReader(string(body)))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return badRequest("invalid JSON payload: %v", err)
	}
	return nil
}

func parseAddress(field, raw string) ([20]byte, error) {
	if strings.TrimSpace(raw) == "" {
		return [20]byte{}, nil
	}
	addr, err := crypto.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return [20]byte{}, badRequest("%s: %v", field, err)
	}
	return addr, nil
}

func formatAddress(addr [20]byte) string {
	if addr == ([20]byte{}) {
		return ""
	}
	return crypto.MustAddress(addr).String()
}

func parseBetID(raw string) ([20]byte, error) {
	trimmed := strings.TrimSpace(raw)
	if !ethcommon.IsHexAddress(trimmed) {
		return [20]byte{}, badRequest("invalid bet id %q", raw)
	}
	return [20]byte(ethcommon.HexToAddress(trimmed)), nil
}

func formatBetID(id [20]byte) string {
	return ethcommon.BytesToAddress(id[:]).Hex()
}

func parseAmount(field, raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, badRequest("%s required", field)
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, badRequest("%s: invalid integer %q", field, raw)
	}
	return value, nil
}

func optionalAmount(field, raw string) (*big.Int, error) {
	if strings.TrimSpace(raw) == "" {
		return big.NewInt(0), nil
	}
	return parseAmount(field, raw)
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

type userView struct {
	Address      string `json:"address"`
	Username     string `json:"username"`
	Ledger       uint64 `json:"ledger"`
	RegisteredAt uint64 `json:"registeredAt"`
}

func newUserView(u *registry.User) userView {
	return userView{
		Address:      formatAddress(u.Address),
		Username:     u.Username,
		Ledger:       u.Ledger,
		RegisteredAt: u.RegisteredAt,
	}
}

type arbiterView struct {
	Address   string `json:"address"`
	Status    string `json:"status"`
	StatusID  uint8  `json:"statusId"`
	Reason    string `json:"reason,omitempty"`
	Holding   uint64 `json:"holdingLedger"`
	AddedAt   uint64 `json:"addedAt"`
	UpdatedAt uint64 `json:"updatedAt"`
}

func newArbiterView(r *arbiter.Record) arbiterView {
	return arbiterView{
		Address:   formatAddress(r.Address),
		Status:    r.Status.String(),
		StatusID:  uint8(r.Status),
		Reason:    r.Reason,
		Holding:   r.Holding,
		AddedAt:   r.AddedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type ledgerView struct {
	Handle   uint64            `json:"handle"`
	Owner    string            `json:"owner"`
	Kind     string            `json:"kind"`
	Balances map[string]string `json:"balances"`
}

func newLedgerView(a *ledger.Account) ledgerView {
	balances := make(map[string]string, len(a.Balances))
	for _, entry := range a.Balances {
		balances[entry.Token] = amountString(entry.Amount)
	}
	return ledgerView{
		Handle:   a.Handle,
		Owner:    formatAddress(a.Owner),
		Kind:     a.Kind.String(),
		Balances: balances,
	}
}

type transitionView struct {
	Status string `json:"status"`
	At     uint64 `json:"at"`
}

type betView struct {
	ID          string           `json:"id"`
	Type        string           `json:"type"`
	Token       string           `json:"token"`
	Stake       string           `json:"stake"`
	ArbiterFee  string           `json:"arbiterFee"`
	PlatformFee string           `json:"platformFee"`
	Payout      string           `json:"payout"`
	Condition   string           `json:"condition"`
	Initiator   string           `json:"initiator"`
	Arbiter     string           `json:"arbiter"`
	Acceptor    string           `json:"acceptor,omitempty"`
	Winner      string           `json:"winner,omitempty"`
	Loser       string           `json:"loser,omitempty"`
	Status      string           `json:"status"`
	StatusID    uint8            `json:"statusId"`
	Deadline    uint64           `json:"deadline,omitempty"`
	CreatedAt   uint64           `json:"createdAt"`
	History     []transitionView `json:"history"`
}

func newBetView(b *bet.Bet) betView {
	history := make([]transitionView, 0, len(b.History))
	for _, entry := range b.History {
		history = append(history, transitionView{Status: entry.Status.String(), At: entry.At})
	}
	return betView{
		ID:          formatBetID(b.ID),
		Type:        b.Type.String(),
		Token:       b.Token,
		Stake:       amountString(b.Stake),
		ArbiterFee:  amountString(b.ArbiterFee),
		PlatformFee: amountString(b.PlatformFee),
		Payout:      amountString(b.Payout),
		Condition:   b.Condition,
		Initiator:   formatAddress(b.Initiator),
		Arbiter:     formatAddress(b.Arbiter),
		Acceptor:    formatAddress(b.Acceptor),
		Winner:      formatAddress(b.Winner),
		Loser:       formatAddress(b.Loser),
		Status:      b.Status.String(),
		StatusID:    uint8(b.Status),
		Deadline:    b.Deadline,
		CreatedAt:   b.CreatedAt,
		History:     history,
	}
}
