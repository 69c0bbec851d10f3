package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"wagerchain/crypto"

	"github.com/BurntSushi/toml"
)

type Config struct {
	ListenAddress         string           `toml:"ListenAddress"`
	DataDir               string           `toml:"DataDir"`
	Environment           string           `toml:"Environment"`
	PlatformAuthority     string           `toml:"PlatformAuthority"`
	AuthorityKeystorePath string           `toml:"AuthorityKeystorePath"`
	Logging               Logging          `toml:"logging"`
	Tokens                []Token          `toml:"tokens"`
	Genesis               []GenesisBalance `toml:"genesis"`
	Global                Global           `toml:"global"`
	Gateway               Gateway          `toml:"gateway"`
	Explorer              Explorer         `toml:"explorer"`
	Telemetry             Telemetry        `toml:"telemetry"`
}

// Load loads the configuration from the given path. A missing file is
// replaced by a freshly generated default, including a new platform
// authority keystore.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.PlatformAuthority) == "" {
		if err := ensureKeystore(path, cfg); err != nil {
			return nil, err
		}
	}
	cfg.applyDefaults()
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (cfg *Config) applyDefaults() {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8080"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./wager-data"
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = "dev"
	}
	if len(cfg.Tokens) == 0 {
		cfg.Tokens = defaultTokens()
	}
	if strings.TrimSpace(cfg.Global.Policy.DeadlinePolicy) == "" {
		cfg.Global.Policy.DeadlinePolicy = "reject-late"
	}
	if cfg.Global.Policy.RejectSuspendedArbiters == nil {
		reject := true
		cfg.Global.Policy.RejectSuspendedArbiters = &reject
	}
}

// ensureKeystore provisions the platform authority key when the
// configuration names none and records its address.
func ensureKeystore(configPath string, cfg *Config) error {
	keystorePath := cfg.AuthorityKeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}

	var key *crypto.PrivateKey
	if _, err := os.Stat(keystorePath); os.IsNotExist(err) {
		generated, genErr := crypto.GeneratePrivateKey()
		if genErr != nil {
			return genErr
		}
		if err := crypto.SaveToKeystore(keystorePath, generated, ""); err != nil {
			return err
		}
		key = generated
	} else if err != nil {
		return err
	} else {
		loaded, err := crypto.LoadFromKeystore(keystorePath, "")
		if err != nil {
			return fmt.Errorf("load authority keystore: %w", err)
		}
		key = loaded
	}

	cfg.AuthorityKeystorePath = keystorePath
	cfg.PlatformAuthority = key.PubKey().Address().String()
	return persist(configPath, cfg)
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ListenAddress: ":8080",
		DataDir:       "./wager-data",
		Environment:   "dev",
		Logging:       Logging{Level: "info"},
		Tokens:        defaultTokens(),
		Gateway: Gateway{
			ConfigFile: "",
		},
		Explorer: Explorer{
			Driver: "sqlite",
			DSN:    "explorer.db",
		},
	}
	if err := ensureKeystore(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultTokens() []Token {
	return []Token{{Symbol: "WGR", Name: "Wager", Decimals: 18}}
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "authority.keystore")
}
