// File: internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func validConfig() *Config {
	return &Config{
		Ethereum: EthereumConfig{RPCURL: "https://eth.example/rpc"},
		Solana:   SolanaConfig{RPCURL: "https://sol.example/rpc"},
		Wallets: []WalletConfig{
			{DAOName: "VitaDAO", Chain: "ethereum", Address: "0x1111111111111111111111111111111111111111"},
		},
		Tokens: []TokenConfig{
			{Symbol: "VITA", Chain: "ethereum", Address: "0x81f8f0bb1cb2a06649e51913a151f0e7ef6fa321", Decimals: 18},
		},
		Thresholds: ThresholdConfig{USDAmount: 100000},
		Scheduler:  SchedulerConfig{PollInterval: 30 * time.Second},
		Storage:    StorageConfig{Type: "sqlite", ConnectionString: "./test.db"},
	}
}

func TestLoadWithConfigFile(t *testing.T) {
	path := writeConfig(t, `
app:
  name: bio-whale-monitor
  environment: production
ethereum:
  rpc_url: https://eth.example/rpc
wallets:
  - dao_name: VitaDAO
    chain: ethereum
    address: "0x1111111111111111111111111111111111111111"
tokens:
  - symbol: VITA
    chain: ethereum
    address: "0x81f8f0bb1cb2a06649e51913a151f0e7ef6fa321"
    decimals: 18
    coingecko_id: vitadao
thresholds:
  usd_amount: 250000
scheduler:
  poll_interval: 45s
  overlap_blocks: 8
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.App.Environment)
	assert.Equal(t, "https://eth.example/rpc", cfg.Ethereum.RPCURL)
	require.Len(t, cfg.Wallets, 1)
	assert.Equal(t, "VitaDAO", cfg.Wallets[0].DAOName)
	assert.Equal(t, float64(250000), cfg.Thresholds.USDAmount)
	assert.Equal(t, 45*time.Second, cfg.Scheduler.PollInterval)
	assert.Equal(t, uint64(8), cfg.Scheduler.OverlapBlocks)

	// Unset values fall back to defaults.
	assert.Equal(t, "sqlite", cfg.Storage.Type)
	assert.Equal(t, 15*time.Minute, cfg.Storage.ClaimTTL)
	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, 9, cfg.Report.HourUTC)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://monitor:secret@db:5432/whale")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")

	path := writeConfig(t, `
ethereum:
  rpc_url: https://eth.example/rpc
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Storage.Type)
	assert.Equal(t, "postgres://monitor:secret@db:5432/whale", cfg.Storage.ConnectionString)
	assert.Equal(t, "123:abc", cfg.Notifications.Telegram.BotToken)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, validConfig().Validate())

	t.Run("unsupported chain", func(t *testing.T) {
		cfg := validConfig()
		cfg.Wallets[0].Chain = "bitcoin"
		assert.Error(t, cfg.Validate())
	})

	t.Run("empty wallet address", func(t *testing.T) {
		cfg := validConfig()
		cfg.Wallets[0].Address = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("missing RPC for configured chain", func(t *testing.T) {
		cfg := validConfig()
		cfg.Ethereum.RPCURL = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("solana RPC not required without solana wallets", func(t *testing.T) {
		cfg := validConfig()
		cfg.Solana.RPCURL = ""
		assert.NoError(t, cfg.Validate())
	})

	t.Run("non-positive poll interval", func(t *testing.T) {
		cfg := validConfig()
		cfg.Scheduler.PollInterval = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("non-positive usd threshold", func(t *testing.T) {
		cfg := validConfig()
		cfg.Thresholds.USDAmount = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("token without address", func(t *testing.T) {
		cfg := validConfig()
		cfg.Tokens[0].Address = ""
		assert.Error(t, cfg.Validate())
	})
}

func TestTokenBySymbol(t *testing.T) {
	cfg := validConfig()

	token := cfg.TokenBySymbol("ethereum", "VITA")
	require.NotNil(t, token)
	assert.Equal(t, int32(18), token.Decimals)

	assert.Nil(t, cfg.TokenBySymbol("solana", "VITA"))
	assert.Nil(t, cfg.TokenBySymbol("ethereum", "BIO"))
}
