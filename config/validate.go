package config

import (
	"fmt"
	"strings"

	"jidchain/native/jid"
)

// Validate rejects configurations the daemon cannot start with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Node.ListenAddress) == "" {
		return fmt.Errorf("node: ListenAddress is required")
	}
	switch strings.ToLower(c.Node.Backend) {
	case "", "leveldb", "memory":
	default:
		return fmt.Errorf("node: unsupported Backend %q", c.Node.Backend)
	}
	if strings.TrimSpace(c.Registry.ChainLabel) == "" {
		return fmt.Errorf("registry: ChainLabel is required")
	}
	if _, err := c.Registry.GenesisFingerprint(); err != nil {
		return fmt.Errorf("registry: GenesisHash: %w", err)
	}
	if _, err := c.Registry.Contract(); err != nil {
		return fmt.Errorf("registry: ContractAddress: %w", err)
	}
	if _, _, err := c.Registry.AdminAccount(); err != nil {
		return fmt.Errorf("registry: Admin: %w", err)
	}
	fee, err := c.Registry.Fee()
	if err != nil {
		return fmt.Errorf("registry: RegistrationFee: %w", err)
	}
	if fee != nil && fee.IsZero() {
		return fmt.Errorf("registry: RegistrationFee must be nonzero")
	}
	if _, err := jid.ParseVerificationMode(c.Registry.VerificationMode); err != nil {
		return fmt.Errorf("registry: %w", err)
	}
	if c.RPC.RequestsPerMinute < 0 || c.RPC.Burst < 0 {
		return fmt.Errorf("rpc: rate limits must not be negative")
	}
	if _, err := c.RPC.Faucet(); err != nil {
		return fmt.Errorf("rpc: FaucetAmount: %w", err)
	}
	if c.Explorer.Enabled {
		switch strings.ToLower(c.Explorer.Driver) {
		case "sqlite", "postgres", "postgresql":
		default:
			return fmt.Errorf("explorer: unsupported Driver %q", c.Explorer.Driver)
		}
		if strings.HasPrefix(strings.ToLower(c.Explorer.Driver), "postgres") && strings.TrimSpace(c.Explorer.DSN) == "" {
			return fmt.Errorf("explorer: DSN is required for postgres")
		}
	}
	return nil
}
