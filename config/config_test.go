package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/DistributedCollective/Sovryn-Node-sub000/config"
	"github.com/DistributedCollective/Sovryn-Node-sub000/internal/domain"
)

const validYAML = `
chain:
  rpc_url: https://public-node.rsk.co
  gas_price_buffer_percent: 5
contracts:
  protocol: "0x5A0D867e0D70Fcc6Ade25C3F1B89d618b5B4Eaa7"
  swap_network: "0x98aCE08D2b759a265ae326F010496bcD63C15afc"
  price_feeds: "0x437AC62769f386b2d238409B7f0a7596d36506e4"
  tokens:
    wrbtc: "0x542fDA317318eBF1d3DEAf76E0b632741A7e677d"
    doc: "0xe700691dA7b9851F2F35f8b8182c69c53CcaD9Db"
wallets:
  liquidator:
    - address: "0x1000000000000000000000000000000000000001"
      key_env: LIQUIDATOR_KEY_1
    - address: "0x1000000000000000000000000000000000000002"
      key_env: LIQUIDATOR_KEY_2
liquidation:
  enabled: true
  interval: 15s
rollover:
  dust:
    doc: "2e18"
arbitrage:
  native_reserve: 100000000000000000
  pairs:
    - token: doc
      pool: "0x3000000000000000000000000000000000000003"
      max: "5e20"
`

func TestParse_ValidWithDefaults(t *testing.T) {
	cfg, err := config.Parse([]byte(validYAML))
	require.NoError(t, err)

	assert.Equal(t, int64(30), cfg.Chain.ChainID)
	assert.Equal(t, 5.0, cfg.Chain.GasPriceBufferPercent)
	assert.Equal(t, 15*time.Second, cfg.Liquidation.Interval)
	assert.Equal(t, uint64(50), cfg.Scanner.PageSize)
	assert.Equal(t, 60*time.Second, cfg.Scanner.WaitBetweenRounds)
	assert.Equal(t, "sovryn-node.db", cfg.Storage.DSN)
	assert.Equal(t, "info", cfg.Log.Level)

	assert.Equal(t, "100000000000000000", cfg.Arbitrage.NativeReserve.Int().String())
	assert.False(t, cfg.Arbitrage.DefaultMax.IsSet())
	require.Len(t, cfg.Arbitrage.Pairs, 1)
	assert.Equal(t, "500000000000000000000", cfg.Arbitrage.Pairs[0].Max.Int().String())

	dust, err := cfg.RolloverDust()
	require.NoError(t, err)
	assert.Equal(t, "2000000000000000000", dust[domain.DOC].String())

	addrs := cfg.Wallets.Addresses()
	require.Len(t, addrs[domain.RoleLiquidator], 2)
	assert.Equal(t, common.HexToAddress("0x1000000000000000000000000000000000000001"), addrs[domain.RoleLiquidator][0])

	tokens, err := cfg.TokenRegistry()
	require.NoError(t, err)
	_, ok := tokens.Address(domain.DOC)
	assert.True(t, ok)
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("RPC_URL", "http://localhost:4444")
	t.Setenv("DB_DSN", ":memory:")
	t.Setenv("TELEGRAM_TOKEN", "bot-token")
	t.Setenv("TELEGRAM_CHAT_ID", "-100123")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := config.Parse([]byte(validYAML))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:4444", cfg.Chain.RPCURL)
	assert.Equal(t, ":memory:", cfg.Storage.DSN)
	assert.Equal(t, "bot-token", cfg.Notify.TelegramToken)
	assert.Equal(t, int64(-100123), cfg.Notify.TelegramChatID)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestParse_BadChatID(t *testing.T) {
	t.Setenv("TELEGRAM_CHAT_ID", "not-a-number")
	_, err := config.Parse([]byte(validYAML))
	assert.ErrorContains(t, err, "TELEGRAM_CHAT_ID")
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown token symbol",
			yaml: `
chain: {rpc_url: x}
contracts:
  protocol: "0x5A0D867e0D70Fcc6Ade25C3F1B89d618b5B4Eaa7"
  swap_network: "0x98aCE08D2b759a265ae326F010496bcD63C15afc"
  price_feeds: "0x437AC62769f386b2d238409B7f0a7596d36506e4"
  tokens: {wrbtc: "0x542fDA317318eBF1d3DEAf76E0b632741A7e677d", eth: "0x1000000000000000000000000000000000000009"}
`,
			want: "unknown token",
		},
		{
			name: "enabled engine without wallets",
			yaml: `
chain: {rpc_url: x}
contracts:
  protocol: "0x5A0D867e0D70Fcc6Ade25C3F1B89d618b5B4Eaa7"
  swap_network: "0x98aCE08D2b759a265ae326F010496bcD63C15afc"
  price_feeds: "0x437AC62769f386b2d238409B7f0a7596d36506e4"
  tokens: {wrbtc: "0x542fDA317318eBF1d3DEAf76E0b632741A7e677d"}
rollover: {enabled: true}
`,
			want: "rollover enabled without rollover wallets",
		},
		{
			name: "missing rpc and bad protocol",
			yaml: `
contracts:
  protocol: nope
  swap_network: "0x98aCE08D2b759a265ae326F010496bcD63C15afc"
  price_feeds: "0x437AC62769f386b2d238409B7f0a7596d36506e4"
  tokens: {wrbtc: "0x542fDA317318eBF1d3DEAf76E0b632741A7e677d"}
`,
			want: "chain.rpc_url is required",
		},
		{
			name: "wallet without key env",
			yaml: `
chain: {rpc_url: x}
contracts:
  protocol: "0x5A0D867e0D70Fcc6Ade25C3F1B89d618b5B4Eaa7"
  swap_network: "0x98aCE08D2b759a265ae326F010496bcD63C15afc"
  price_feeds: "0x437AC62769f386b2d238409B7f0a7596d36506e4"
  tokens: {wrbtc: "0x542fDA317318eBF1d3DEAf76E0b632741A7e677d"}
wallets:
  arbitrage: [{address: "0x4000000000000000000000000000000000000004"}]
`,
			want: "key_env is required",
		},
		{
			name: "wrbtc arbitrage pair",
			yaml: `
chain: {rpc_url: x}
contracts:
  protocol: "0x5A0D867e0D70Fcc6Ade25C3F1B89d618b5B4Eaa7"
  swap_network: "0x98aCE08D2b759a265ae326F010496bcD63C15afc"
  price_feeds: "0x437AC62769f386b2d238409B7f0a7596d36506e4"
  tokens: {wrbtc: "0x542fDA317318eBF1d3DEAf76E0b632741A7e677d"}
arbitrage:
  pairs: [{token: wrbtc, pool: "0x3000000000000000000000000000000000000003"}]
`,
			want: "cannot be paired",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

const minimalYAML = `
chain: {rpc_url: x}
contracts:
  protocol: "0x5A0D867e0D70Fcc6Ade25C3F1B89d618b5B4Eaa7"
  swap_network: "0x98aCE08D2b759a265ae326F010496bcD63C15afc"
  price_feeds: "0x437AC62769f386b2d238409B7f0a7596d36506e4"
  tokens: {wrbtc: "0x542fDA317318eBF1d3DEAf76E0b632741A7e677d"}
`

func TestParse_PercentDefaultsOnlyWhenAbsent(t *testing.T) {
	cfg, err := config.Parse([]byte(minimalYAML))
	require.NoError(t, err)
	assert.Equal(t, 10.0, cfg.Chain.GasPriceBufferPercent)
	assert.Equal(t, 2.0, cfg.Arbitrage.ThresholdPercent)
	assert.Equal(t, "sovryn-node", cfg.Notify.Prefix)

	cfg, err = config.Parse([]byte(minimalYAML + `
arbitrage: {threshold_percent: 0}
`))
	require.NoError(t, err)
	assert.Equal(t, 0.0, cfg.Arbitrage.ThresholdPercent)

	cfg, err = config.Parse([]byte(strings.Replace(minimalYAML, "chain: {rpc_url: x}",
		"chain: {rpc_url: x, gas_price_buffer_percent: 0}", 1)))
	require.NoError(t, err)
	assert.Equal(t, 0.0, cfg.Chain.GasPriceBufferPercent)
}

func TestParse_NegativePercentRejected(t *testing.T) {
	_, err := config.Parse([]byte(minimalYAML + `
arbitrage: {threshold_percent: -1}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "arbitrage.threshold_percent")
}

func TestWei_Unmarshal(t *testing.T) {
	var out struct {
		A config.Wei `yaml:"a"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(`a: "1.5e18"`), &out))
	assert.Equal(t, "1500000000000000000", out.A.Int().String())

	assert.Error(t, yaml.Unmarshal([]byte(`a: "0.5"`), &out))
	assert.Error(t, yaml.Unmarshal([]byte(`a: -1`), &out))
	assert.Error(t, yaml.Unmarshal([]byte(`a: lots`), &out))
	assert.Error(t, yaml.Unmarshal([]byte(`a: [1]`), &out))
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validYAML), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Liquidation.Enabled)

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
