package config

// Logging selects the node log level and optional rotating log file.
type Logging struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// Token is registered at genesis, or on the first start after it is added.
type Token struct {
	Symbol   string `toml:"Symbol"`
	Name     string `toml:"Name"`
	Decimals uint8  `toml:"Decimals"`
}

// GenesisBalance funds an external wallet when the node starts on an empty
// database. Amount is a base-10 integer in base units.
type GenesisBalance struct {
	Address string `toml:"Address"`
	Token   string `toml:"Token"`
	Amount  string `toml:"Amount"`
}

// Policy captures arbiter eligibility and deadline handling.
type Policy struct {
	RejectSuspendedArbiters *bool  `toml:"RejectSuspendedArbiters"`
	RequireArbiterRecord    bool   `toml:"RequireArbiterRecord"`
	DeadlinePolicy          string `toml:"DeadlinePolicy"`
}

type Pauses struct {
	Ledger  bool
	Bet     bool
	Arbiter bool
}

// Quota defines rate limits for bet creation on a per-address basis.
type Quota struct {
	MaxRequestsPerMin uint32
	MaxValuePerEpoch  uint64 // whole base units staked per epoch
	EpochSeconds      uint32 // e.g., 3600
}

// Global bundles the runtime configuration values enforced by ValidateConfig.
type Global struct {
	Policy Policy `toml:"policy"`
	Pauses Pauses `toml:"pauses"`
	Quota  Quota  `toml:"quota"`
}

// Gateway points at the YAML configuration of the embedded HTTP gateway.
// An empty ConfigFile runs the gateway with its built-in defaults.
type Gateway struct {
	Disabled   bool   `toml:"Disabled"`
	ConfigFile string `toml:"ConfigFile"`
}

// Explorer configures the bet indexer database. Driver is sqlite or
// postgres.
type Explorer struct {
	Disabled bool   `toml:"Disabled"`
	Driver   string `toml:"Driver"`
	DSN      string `toml:"DSN"`
}

type Telemetry struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Headers  string `toml:"Headers"`
	Traces   bool   `toml:"Traces"`
	Metrics  bool   `toml:"Metrics"`
	// SampleRatio applies to root spans; zero samples everything.
	SampleRatio float64 `toml:"SampleRatio"`
}
