package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"wagerchain/crypto"
	"wagerchain/native/bet"
	"wagerchain/native/common"
)

var testAuthority = func() string {
	var addr [20]byte
	addr[0] = 0x42
	addr[len(addr)-1] = 0x24
	return crypto.MustAddress(addr).String()
}()

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadCreatesDefaultWithAuthorityKeystore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node", "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.FileExists(t, path)
	require.Equal(t, filepath.Join(dir, "node", "authority.keystore"), cfg.AuthorityKeystorePath)
	require.FileExists(t, cfg.AuthorityKeystorePath)

	key, err := crypto.LoadFromKeystore(cfg.AuthorityKeystorePath, "")
	require.NoError(t, err)
	require.Equal(t, key.PubKey().Address().String(), cfg.PlatformAuthority)
	require.Equal(t, "reject-late", cfg.Global.Policy.DeadlinePolicy)

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.PlatformAuthority, reloaded.PlatformAuthority)
}

func TestLoadParsesNodeSettings(t *testing.T) {
	path := writeConfig(t, `ListenAddress = "0.0.0.0:9000"
DataDir = "./data"
Environment = "staging"
PlatformAuthority = "`+testAuthority+`"

[logging]
Level = "debug"
File = "/var/log/wagerd.log"

[[tokens]]
Symbol = "wgr"
Name = "Wager"
Decimals = 18

[[tokens]]
Symbol = "USDW"
Name = "Wager Dollar"
Decimals = 6

[[genesis]]
Address = "`+testAuthority+`"
Token = "usdw"
Amount = "1000000"

[global.policy]
RejectSuspendedArbiters = false
RequireArbiterRecord = true
DeadlinePolicy = "none"

[global.pauses]
Bet = true

[global.quota]
MaxRequestsPerMin = 5
EpochSeconds = 3600

[gateway]
ConfigFile = "gateway.yaml"

[explorer]
Driver = "postgres"
DSN = "postgres://explorer@localhost/wager"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:9000", cfg.ListenAddress)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Len(t, cfg.Tokens, 2)
	require.Equal(t, "gateway.yaml", cfg.Gateway.ConfigFile)
	require.Equal(t, "postgres", cfg.Explorer.Driver)

	opts, err := cfg.NodeOptions()
	require.NoError(t, err)
	require.False(t, opts.ArbiterPolicy.RejectSuspended)
	require.True(t, opts.ArbiterPolicy.RequireRecord)
	require.Equal(t, bet.DeadlineNone, opts.DeadlinePolicy)
	require.True(t, opts.Pauses.IsPaused(common.ModuleBet))
	require.False(t, opts.Pauses.IsPaused(common.ModuleLedger))
	require.Equal(t, uint32(5), opts.Quota.MaxRequestsPerMin)
	require.Len(t, opts.Allocations, 1)
	require.Equal(t, "1000000", opts.Allocations[0].Amount.String())

	genesis, err := cfg.GenesisBalances()
	require.NoError(t, err)
	require.Len(t, genesis, 1)
	require.Equal(t, "USDW", genesis[0].Token)
	require.Equal(t, "1000000", genesis[0].Amount.String())
}

func TestValidateConfigRejectsBadInput(t *testing.T) {
	base := func() *Config {
		cfg := &Config{PlatformAuthority: testAuthority, Tokens: defaultTokens()}
		cfg.applyDefaults()
		return cfg
	}
	require.NoError(t, ValidateConfig(base()))

	cases := map[string]func(*Config){
		"authority": func(c *Config) { c.PlatformAuthority = "nope" },
		"duplicate token": func(c *Config) {
			c.Tokens = append(c.Tokens, Token{Symbol: "wgr"})
		},
		"decimals": func(c *Config) { c.Tokens[0].Decimals = 77 },
		"genesis token": func(c *Config) {
			c.Genesis = []GenesisBalance{{Address: testAuthority, Token: "DOGE", Amount: "1"}}
		},
		"genesis amount": func(c *Config) {
			c.Genesis = []GenesisBalance{{Address: testAuthority, Token: "WGR", Amount: "-5"}}
		},
		"deadline": func(c *Config) { c.Global.Policy.DeadlinePolicy = "eventually" },
		"quota":    func(c *Config) { c.Global.Quota.EpochSeconds = 60 },
		"explorer": func(c *Config) { c.Explorer.Driver = "mysql" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base()
			mutate(cfg)
			require.Error(t, ValidateConfig(cfg))
		})
	}
}
