package config

// NodeConfig controls process-level settings of the registry daemon.
type NodeConfig struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
	Env           string `toml:"Env"`
	KeystorePath  string `toml:"KeystorePath"`
	// Backend selects "leveldb" (default) or "memory".
	Backend string `toml:"Backend"`
	CacheMB int    `toml:"CacheMB"`
	Handles int    `toml:"Handles"`
}

// RegistryConfig holds deployment parameters. GenesisHash is fixed on first
// start; changing it afterwards is refused. When GenesisFile is set the
// deployment comes from that document instead of the fields below.
type RegistryConfig struct {
	GenesisFile      string `toml:"GenesisFile"`
	ChainLabel       string `toml:"ChainLabel"`
	GenesisHash      string `toml:"GenesisHash"`
	ContractAddress  string `toml:"ContractAddress"`
	Admin            string `toml:"Admin"`
	RegistrationFee  string `toml:"RegistrationFee"`
	VerificationMode string `toml:"VerificationMode"`
}

// RPCConfig configures the JSON-RPC listener.
type RPCConfig struct {
	AuthSecret        string `toml:"AuthSecret"`
	AuthSecretEnv     string `toml:"AuthSecretEnv"`
	Issuer            string `toml:"Issuer"`
	Audience          string `toml:"Audience"`
	RequestsPerMinute int    `toml:"RequestsPerMinute"`
	Burst             int    `toml:"Burst"`
	EnableFaucet      bool   `toml:"EnableFaucet"`
	FaucetAmount      string `toml:"FaucetAmount"`
	ReadHeaderTimeout int    `toml:"ReadHeaderTimeout"`
}

// LogConfig configures structured logging. File enables a rotating sink.
type LogConfig struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// TelemetryConfig wires OpenTelemetry exporters.
type TelemetryConfig struct {
	Enabled  bool              `toml:"Enabled"`
	Endpoint string            `toml:"Endpoint"`
	Insecure bool              `toml:"Insecure"`
	Headers  map[string]string `toml:"Headers"`
	Traces   bool              `toml:"Traces"`
	Metrics  bool              `toml:"Metrics"`
}

// ExplorerConfig selects the explorer index database.
type ExplorerConfig struct {
	Enabled bool   `toml:"Enabled"`
	Driver  string `toml:"Driver"`
	DSN     string `toml:"DSN"`
}

// EventsConfig locates the committed event journal.
type EventsConfig struct {
	JournalPath string `toml:"JournalPath"`
}
