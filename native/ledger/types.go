package ledger

import (
	"math/big"
	"sort"
	"strings"

	"github.com/holiman/uint256"
)

// Kind identifies what a ledger account is used for.
type Kind uint8

const (
	KindUser Kind = iota + 1
	KindTreasury
	KindArbiterHolding
)

func (k Kind) String() string {
	switch k {
	case KindUser:
		return "user"
	case KindTreasury:
		return "treasury"
	case KindArbiterHolding:
		return "arbiter-holding"
	default:
		return "unknown"
	}
}

// Valid reports whether the kind is one of the known account kinds.
func (k Kind) Valid() bool {
	return k >= KindUser && k <= KindArbiterHolding
}

var maxAllowance = new(uint256.Int).SetAllOne()

// MaxAllowance returns 2^256-1, the allowance value treated as unlimited.
func MaxAllowance() *big.Int {
	return maxAllowance.ToBig()
}

// IsUnlimited reports whether the allowance never decreases on pull.
func IsUnlimited(amount *big.Int) bool {
	return amount != nil && amount.Cmp(maxAllowance.ToBig()) == 0
}

// TokenAmount is a balance entry.
type TokenAmount struct {
	Token  string
	Amount *big.Int
}

// Allowance is the amount Spender may pull from the account for Token.
type Allowance struct {
	Token   string
	Spender [20]byte
	Amount  *big.Int
}

// Account is a custodial ledger owned by a single identity. Entries are kept
// sorted so the encoded form is deterministic.
type Account struct {
	Handle     uint64
	Owner      [20]byte
	Kind       Kind
	Balances   []TokenAmount
	Allowances []Allowance
	Deposited  []string
	CreatedAt  uint64
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := *a
	clone.Balances = make([]TokenAmount, len(a.Balances))
	for i, entry := range a.Balances {
		clone.Balances[i] = TokenAmount{Token: entry.Token, Amount: cloneBigInt(entry.Amount)}
	}
	clone.Allowances = make([]Allowance, len(a.Allowances))
	for i, entry := range a.Allowances {
		clone.Allowances[i] = Allowance{Token: entry.Token, Spender: entry.Spender, Amount: cloneBigInt(entry.Amount)}
	}
	clone.Deposited = append([]string(nil), a.Deposited...)
	return &clone
}

// BalanceOf returns the stored balance for token.
func (a *Account) BalanceOf(token string) *big.Int {
	token = NormalizeToken(token)
	for _, entry := range a.Balances {
		if entry.Token == token {
			return cloneBigInt(entry.Amount)
		}
	}
	return big.NewInt(0)
}

func (a *Account) setBalance(token string, amount *big.Int) {
	token = NormalizeToken(token)
	for i, entry := range a.Balances {
		if entry.Token != token {
			continue
		}
		if amount.Sign() == 0 {
			a.Balances = append(a.Balances[:i], a.Balances[i+1:]...)
			return
		}
		a.Balances[i].Amount = cloneBigInt(amount)
		return
	}
	if amount.Sign() == 0 {
		return
	}
	a.Balances = append(a.Balances, TokenAmount{Token: token, Amount: cloneBigInt(amount)})
	sort.Slice(a.Balances, func(i, j int) bool { return a.Balances[i].Token < a.Balances[j].Token })
}

// AllowanceOf returns the allowance granted to spender for token.
func (a *Account) AllowanceOf(token string, spender [20]byte) *big.Int {
	token = NormalizeToken(token)
	for _, entry := range a.Allowances {
		if entry.Token == token && entry.Spender == spender {
			return cloneBigInt(entry.Amount)
		}
	}
	return big.NewInt(0)
}

func (a *Account) setAllowance(token string, spender [20]byte, amount *big.Int) {
	token = NormalizeToken(token)
	for i, entry := range a.Allowances {
		if entry.Token != token || entry.Spender != spender {
			continue
		}
		if amount.Sign() == 0 {
			a.Allowances = append(a.Allowances[:i], a.Allowances[i+1:]...)
			return
		}
		a.Allowances[i].Amount = cloneBigInt(amount)
		return
	}
	if amount.Sign() == 0 {
		return
	}
	a.Allowances = append(a.Allowances, Allowance{Token: token, Spender: spender, Amount: cloneBigInt(amount)})
	sort.Slice(a.Allowances, func(i, j int) bool {
		if a.Allowances[i].Token != a.Allowances[j].Token {
			return a.Allowances[i].Token < a.Allowances[j].Token
		}
		return string(a.Allowances[i].Spender[:]) < string(a.Allowances[j].Spender[:])
	})
}

// HasDeposited reports whether the token was ever deposited into the account.
func (a *Account) HasDeposited(token string) bool {
	token = NormalizeToken(token)
	for _, existing := range a.Deposited {
		if existing == token {
			return true
		}
	}
	return false
}

func (a *Account) markDeposited(token string) {
	a.Deposited = append(a.Deposited, NormalizeToken(token))
	sort.Strings(a.Deposited)
}

// NormalizeToken canonicalises a token symbol.
func NormalizeToken(token string) string {
	return strings.ToUpper(strings.TrimSpace(token))
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
