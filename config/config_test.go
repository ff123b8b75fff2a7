package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
[fees]
TreasuryBps = 1000
ActiveCreditBps = 500
MakerShareBps = 5000
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "fluxpool", cfg.Service)
	require.Equal(t, "local", cfg.Environment)
	require.Equal(t, uint64(1000), cfg.Fees.MaxFeeBps)

	router, err := cfg.FeeRouterConfig()
	require.NoError(t, err)
	require.False(t, router.HasTreasury)
	require.Equal(t, uint64(1000), router.TreasuryBps)
}

func TestLoadParsesTreasuryAddress(t *testing.T) {
	path := writeConfig(t, `
[fees]
TreasuryAddress = "0x00112233445566778899aabbccddeeff00112233"
TreasuryBps = 1000
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	router, err := cfg.FeeRouterConfig()
	require.NoError(t, err)
	require.True(t, router.HasTreasury)
	require.Equal(t, byte(0x00), router.TreasuryAddress[0])
	require.Equal(t, byte(0x33), router.TreasuryAddress[19])
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
Unknown = true

[fees]
TreasuryBps = 10
`)
	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown keys")
}

func TestLoadRejectsOutOfRangeShares(t *testing.T) {
	path := writeConfig(t, `
[fees]
TreasuryBps = 6000
ActiveCreditBps = 6000
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsBadTreasuryAddress(t *testing.T) {
	path := writeConfig(t, `
[fees]
TreasuryAddress = "0x1234"
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestSwitchboardFromPauses(t *testing.T) {
	path := writeConfig(t, `
[pauses]
auction = true
pool = false
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	sb := cfg.Switchboard()
	require.True(t, sb.IsPaused("auction"))
	require.False(t, sb.IsPaused("pool"))
	require.False(t, sb.IsPaused("fees"))
}
