package config

import (
	"fmt"
	"math/big"
	"strings"

	"wagerchain/core"
	"wagerchain/crypto"
	"wagerchain/native/arbiter"
	"wagerchain/native/bet"
	"wagerchain/native/common"
)

var (
	MaxTokenSymbolLength = 12
	MaxTokenDecimals     = uint8(36)
)

func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if _, err := crypto.ParseAddress(cfg.PlatformAuthority); err != nil {
		return fmt.Errorf("platform_authority: %w", err)
	}
	seen := make(map[string]struct{}, len(cfg.Tokens))
	for i, token := range cfg.Tokens {
		symbol := strings.ToUpper(strings.TrimSpace(token.Symbol))
		if symbol == "" || len(symbol) > MaxTokenSymbolLength {
			return fmt.Errorf("tokens[%d]: symbol must be 1-%d characters", i, MaxTokenSymbolLength)
		}
		if token.Decimals > MaxTokenDecimals {
			return fmt.Errorf("tokens[%d]: decimals > %d", i, MaxTokenDecimals)
		}
		if _, dup := seen[symbol]; dup {
			return fmt.Errorf("tokens[%d]: duplicate symbol %s", i, symbol)
		}
		seen[symbol] = struct{}{}
	}
	for i, balance := range cfg.Genesis {
		if _, err := crypto.ParseAddress(balance.Address); err != nil {
			return fmt.Errorf("genesis[%d]: %w", i, err)
		}
		if _, ok := seen[strings.ToUpper(strings.TrimSpace(balance.Token))]; !ok {
			return fmt.Errorf("genesis[%d]: token %s not configured", i, balance.Token)
		}
		if _, err := parseUintAmount(balance.Amount); err != nil {
			return fmt.Errorf("genesis[%d]: %w", i, err)
		}
	}
	if _, ok := bet.ParseDeadlinePolicy(cfg.Global.Policy.DeadlinePolicy); !ok {
		return fmt.Errorf("policy: unknown deadline policy %q", cfg.Global.Policy.DeadlinePolicy)
	}
	if q := cfg.Global.Quota; q.MaxRequestsPerMin == 0 && q.MaxValuePerEpoch == 0 && q.EpochSeconds != 0 {
		return fmt.Errorf("quota: epoch_seconds set without any limit")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Explorer.Driver)) {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("explorer: unsupported driver %q", cfg.Explorer.Driver)
	}
	return nil
}

// NodeOptions converts the configuration into core node options.
func (cfg *Config) NodeOptions() (core.Options, error) {
	authority, err := crypto.ParseAddress(cfg.PlatformAuthority)
	if err != nil {
		return core.Options{}, fmt.Errorf("platform_authority: %w", err)
	}
	deadlines, ok := bet.ParseDeadlinePolicy(cfg.Global.Policy.DeadlinePolicy)
	if !ok {
		return core.Options{}, fmt.Errorf("policy: unknown deadline policy %q", cfg.Global.Policy.DeadlinePolicy)
	}
	policy := arbiter.DefaultPolicy()
	if cfg.Global.Policy.RejectSuspendedArbiters != nil {
		policy.RejectSuspended = *cfg.Global.Policy.RejectSuspendedArbiters
	}
	policy.RequireRecord = cfg.Global.Policy.RequireArbiterRecord

	tokens := make([]core.TokenSpec, 0, len(cfg.Tokens))
	for _, token := range cfg.Tokens {
		tokens = append(tokens, core.TokenSpec{Symbol: token.Symbol, Name: token.Name, Decimals: token.Decimals})
	}
	balances, err := cfg.GenesisBalances()
	if err != nil {
		return core.Options{}, err
	}
	allocations := make([]core.Allocation, 0, len(balances))
	for _, balance := range balances {
		allocations = append(allocations, core.Allocation{Address: balance.Address, Token: balance.Token, Amount: balance.Amount})
	}
	return core.Options{
		PlatformAuthority: authority,
		Tokens:            tokens,
		Allocations:       allocations,
		ArbiterPolicy:     &policy,
		DeadlinePolicy:    deadlines,
		Pauses:            cfg.Global.Pauses.PauseSet(),
		Quota:             cfg.Global.Quota.Limits(),
	}, nil
}

// PauseSet converts the switches into the view consulted by the engines.
func (p Pauses) PauseSet() common.PauseSet {
	return common.PauseSet{
		common.ModuleLedger:  p.Ledger,
		common.ModuleBet:     p.Bet,
		common.ModuleArbiter: p.Arbiter,
	}
}

func (q Quota) Limits() common.Quota {
	return common.Quota{
		MaxRequestsPerMin: q.MaxRequestsPerMin,
		MaxValuePerEpoch:  q.MaxValuePerEpoch,
		EpochSeconds:      q.EpochSeconds,
	}
}

// ParsedGenesis is a genesis balance with its address and amount decoded.
type ParsedGenesis struct {
	Address [20]byte
	Token   string
	Amount  *big.Int
}

// GenesisBalances decodes the configured genesis allocations.
func (cfg *Config) GenesisBalances() ([]ParsedGenesis, error) {
	out := make([]ParsedGenesis, 0, len(cfg.Genesis))
	for i, balance := range cfg.Genesis {
		addr, err := crypto.ParseAddress(balance.Address)
		if err != nil {
			return nil, fmt.Errorf("genesis[%d]: %w", i, err)
		}
		amount, err := parseUintAmount(balance.Amount)
		if err != nil {
			return nil, fmt.Errorf("genesis[%d]: %w", i, err)
		}
		out = append(out, ParsedGenesis{
			Address: addr,
			Token:   strings.ToUpper(strings.TrimSpace(balance.Token)),
			Amount:  amount,
		})
	}
	return out, nil
}

func parseUintAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || value.Sign() <= 0 {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return value, nil
}
