// Package config loads the ledger service configuration from TOML and turns
// it into the collaborators the engines are constructed with.
package config

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	nativecommon "fluxpool/native/common"
	"fluxpool/native/fees"
)

const basisPoints = 10_000

// Config is the top-level service configuration.
type Config struct {
	Service     string `toml:"Service"`
	Environment string `toml:"Environment"`

	Fees   FeeConfig       `toml:"fees"`
	Pauses map[string]bool `toml:"pauses"`
}

// FeeConfig carries the fee-routing policy in basis points.
type FeeConfig struct {
	// TreasuryAddress is a hex-encoded 20-byte address. Empty disables the
	// treasury cut entirely.
	TreasuryAddress string `toml:"TreasuryAddress"`
	TreasuryBps     uint64 `toml:"TreasuryBps"`
	ActiveCreditBps uint64 `toml:"ActiveCreditBps"`
	MakerShareBps   uint64 `toml:"MakerShareBps"`
	MaxFeeBps       uint64 `toml:"MaxFeeBps"`
}

// Load parses the configuration at path, rejecting unknown keys.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Service) == "" {
		c.Service = "fluxpool"
	}
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = "local"
	}
	if c.Pauses == nil {
		c.Pauses = map[string]bool{}
	}
	if c.Fees.MaxFeeBps == 0 {
		c.Fees.MaxFeeBps = 1_000
	}
}

// Validate checks basis-point bounds and the treasury address encoding.
func (c *Config) Validate() error {
	if c.Fees.TreasuryBps > basisPoints {
		return fmt.Errorf("config: TreasuryBps %d exceeds %d", c.Fees.TreasuryBps, basisPoints)
	}
	if c.Fees.ActiveCreditBps > basisPoints {
		return fmt.Errorf("config: ActiveCreditBps %d exceeds %d", c.Fees.ActiveCreditBps, basisPoints)
	}
	if c.Fees.TreasuryBps+c.Fees.ActiveCreditBps > basisPoints {
		return fmt.Errorf("config: treasury and active-credit shares sum to %d, exceeding %d",
			c.Fees.TreasuryBps+c.Fees.ActiveCreditBps, basisPoints)
	}
	if c.Fees.MakerShareBps > basisPoints {
		return fmt.Errorf("config: MakerShareBps %d exceeds %d", c.Fees.MakerShareBps, basisPoints)
	}
	if c.Fees.MaxFeeBps > basisPoints {
		return fmt.Errorf("config: MaxFeeBps %d exceeds %d", c.Fees.MaxFeeBps, basisPoints)
	}
	if _, _, err := c.treasury(); err != nil {
		return err
	}
	return nil
}

func (c *Config) treasury() ([20]byte, bool, error) {
	var addr [20]byte
	raw := strings.TrimSpace(strings.TrimPrefix(c.Fees.TreasuryAddress, "0x"))
	if raw == "" {
		return addr, false, nil
	}
	decoded, err := hex.DecodeString(raw)
	if err != nil {
		return addr, false, fmt.Errorf("config: invalid TreasuryAddress: %w", err)
	}
	if len(decoded) != len(addr) {
		return addr, false, fmt.Errorf("config: TreasuryAddress must be %d bytes, got %d", len(addr), len(decoded))
	}
	copy(addr[:], decoded)
	return addr, true, nil
}

// FeeRouterConfig builds the fee router policy from the loaded values.
func (c *Config) FeeRouterConfig() (fees.Config, error) {
	addr, ok, err := c.treasury()
	if err != nil {
		return fees.Config{}, err
	}
	return fees.Config{
		TreasuryAddress: addr,
		HasTreasury:     ok,
		TreasuryBps:     c.Fees.TreasuryBps,
		ActiveCreditBps: c.Fees.ActiveCreditBps,
	}, nil
}

// Switchboard builds the module pause switchboard from the loaded flags.
func (c *Config) Switchboard() *nativecommon.Switchboard {
	sb := nativecommon.NewSwitchboard()
	for module, paused := range c.Pauses {
		sb.SetPaused(module, paused)
	}
	return sb
}
