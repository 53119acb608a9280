package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/DistributedCollective/Sovryn-Node-sub000/internal/domain"
)

// Config es la configuración completa del nodo.
type Config struct {
	Chain       ChainConfig       `yaml:"chain"`
	Contracts   ContractsConfig   `yaml:"contracts"`
	Wallets     WalletsConfig     `yaml:"wallets"`
	Scanner     ScannerConfig     `yaml:"scanner"`
	Liquidation LiquidationConfig `yaml:"liquidation"`
	Rollover    RolloverConfig    `yaml:"rollover"`
	Arbitrage   ArbitrageConfig   `yaml:"arbitrage"`
	Storage     StorageConfig     `yaml:"storage"`
	Notify      NotifyConfig      `yaml:"notify"`
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
}

// ChainConfig describes the node connection.
type ChainConfig struct {
	RPCURL                string        `yaml:"rpc_url"`
	ChainID               int64         `yaml:"chain_id"`
	GasPriceBufferPercent float64       `yaml:"gas_price_buffer_percent"`
	RPCRatePerSecond      float64       `yaml:"rpc_rate_per_second"`
	ReceiptPoll           time.Duration `yaml:"receipt_poll"`
	ApproveOnStart        bool          `yaml:"approve_on_start"` // max-approve loan tokens to the protocol and swap network
}

// ContractsConfig contiene las direcciones de los contratos.
type ContractsConfig struct {
	Protocol    string            `yaml:"protocol"`
	SwapNetwork string            `yaml:"swap_network"`
	PriceFeeds  string            `yaml:"price_feeds"`
	Tokens      map[string]string `yaml:"tokens"` // symbol → address; rbtc is native and has none
}

// WalletConfig is one signing wallet. The private key is read from the
// environment variable named KeyEnv and never stored in the file.
type WalletConfig struct {
	Address string `yaml:"address"`
	KeyEnv  string `yaml:"key_env"`
}

// WalletsConfig lists wallets per role in priority order.
type WalletsConfig struct {
	Liquidator []WalletConfig `yaml:"liquidator"`
	Rollover   []WalletConfig `yaml:"rollover"`
	Arbitrage  []WalletConfig `yaml:"arbitrage"`
}

// ScannerConfig controla el barrido de posiciones.
type ScannerConfig struct {
	PageSize          uint64        `yaml:"page_size"`
	WaitBetweenRounds time.Duration `yaml:"wait_between_rounds"`
	RetryPause        time.Duration `yaml:"retry_pause"`
}

type LiquidationConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	GasLimit uint64        `yaml:"gas_limit"`
}

type RolloverConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Interval time.Duration  `yaml:"interval"`
	GasLimit uint64         `yaml:"gas_limit"`
	Dust     map[string]Wei `yaml:"dust"` // loan token symbol → minimum principal worth rolling
}

// PairConfig is a token pooled against WRBTC.
type PairConfig struct {
	Token string `yaml:"token"`
	Pool  string `yaml:"pool"`
	Max   Wei    `yaml:"max"`
}

type ArbitrageConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Interval         time.Duration `yaml:"interval"`
	GasLimit         uint64        `yaml:"gas_limit"`
	ThresholdPercent float64       `yaml:"threshold_percent"`
	NativeReserve    Wei           `yaml:"native_reserve"`
	DefaultMax       Wei           `yaml:"default_max"`
	Pairs            []PairConfig  `yaml:"pairs"`
}

// StorageConfig controla dónde se persisten los resultados.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// NotifyConfig configures operator alerts. Telegram is off when the token is empty.
type NotifyConfig struct {
	TelegramToken  string `yaml:"telegram_token"`
	TelegramChatID int64  `yaml:"telegram_chat_id"`
	Prefix         string `yaml:"prefix"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"` // empty disables the status server
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del entorno sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return cfg, nil
}

// Parse decodes YAML, applies environment overrides and defaults, and validates.
func Parse(data []byte) (*Config, error) {
	// Zero is a valid percentage, so these defaults only apply when the key is absent.
	cfg := Config{
		Chain:     ChainConfig{GasPriceBufferPercent: 10},
		Arbitrage: ArbitrageConfig{ThresholdPercent: 2},
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	setDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("RPC_URL"); v != "" {
		cfg.Chain.RPCURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("TELEGRAM_TOKEN"); v != "" {
		cfg.Notify.TelegramToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.Notify.TelegramChatID = id
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	return nil
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Chain.ChainID == 0 {
		cfg.Chain.ChainID = 30 // RSK mainnet
	}
	if cfg.Chain.RPCRatePerSecond <= 0 {
		cfg.Chain.RPCRatePerSecond = 20
	}
	if cfg.Chain.ReceiptPoll <= 0 {
		cfg.Chain.ReceiptPoll = 5 * time.Second
	}
	if cfg.Scanner.PageSize == 0 {
		cfg.Scanner.PageSize = 50
	}
	if cfg.Scanner.WaitBetweenRounds <= 0 {
		cfg.Scanner.WaitBetweenRounds = 60 * time.Second
	}
	if cfg.Scanner.RetryPause <= 0 {
		cfg.Scanner.RetryPause = time.Second
	}
	if cfg.Liquidation.Interval <= 0 {
		cfg.Liquidation.Interval = 30 * time.Second
	}
	if cfg.Liquidation.GasLimit == 0 {
		cfg.Liquidation.GasLimit = 2_500_000
	}
	if cfg.Rollover.Interval <= 0 {
		cfg.Rollover.Interval = 60 * time.Second
	}
	if cfg.Rollover.GasLimit == 0 {
		cfg.Rollover.GasLimit = 2_500_000
	}
	if cfg.Arbitrage.Interval <= 0 {
		cfg.Arbitrage.Interval = 60 * time.Second
	}
	if cfg.Arbitrage.GasLimit == 0 {
		cfg.Arbitrage.GasLimit = 2_500_000
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "sovryn-node.db"
	}
	if cfg.Notify.Prefix == "" {
		cfg.Notify.Prefix = "sovryn-node"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// Validate checks everything that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if c.Chain.RPCURL == "" {
		add("chain.rpc_url is required")
	}
	for field, addr := range map[string]string{
		"contracts.protocol":     c.Contracts.Protocol,
		"contracts.swap_network": c.Contracts.SwapNetwork,
		"contracts.price_feeds":  c.Contracts.PriceFeeds,
	} {
		if !common.IsHexAddress(addr) {
			add("%s: invalid address %q", field, addr)
		}
	}
	tokens, err := c.TokenRegistry()
	if err != nil {
		add("contracts.tokens: %w", err)
	} else if _, ok := tokens.Address(domain.WRBTC); !ok {
		add("contracts.tokens: wrbtc address is required")
	}

	for role, ws := range c.Wallets.ByRole() {
		for i, w := range ws {
			if !common.IsHexAddress(w.Address) {
				add("wallets.%s[%d]: invalid address %q", role, i, w.Address)
			}
			if w.KeyEnv == "" {
				add("wallets.%s[%d]: key_env is required", role, i)
			}
		}
	}
	if c.Liquidation.Enabled && len(c.Wallets.Liquidator) == 0 {
		add("liquidation enabled without liquidator wallets")
	}
	if c.Rollover.Enabled && len(c.Wallets.Rollover) == 0 {
		add("rollover enabled without rollover wallets")
	}
	if c.Arbitrage.Enabled && len(c.Wallets.Arbitrage) == 0 {
		add("arbitrage enabled without arbitrage wallets")
	}

	if _, err := c.RolloverDust(); err != nil {
		add("rollover.dust: %w", err)
	}
	for i, p := range c.Arbitrage.Pairs {
		t, err := domain.ParseToken(p.Token)
		if err != nil {
			add("arbitrage.pairs[%d]: %w", i, err)
		} else if domain.PaymentToken(t).IsNative() {
			add("arbitrage.pairs[%d]: %s cannot be paired against wrbtc", i, t)
		}
		if !common.IsHexAddress(p.Pool) {
			add("arbitrage.pairs[%d]: invalid pool %q", i, p.Pool)
		}
	}

	if c.Chain.GasPriceBufferPercent < 0 {
		add("chain.gas_price_buffer_percent: must not be negative")
	}
	if c.Arbitrage.ThresholdPercent < 0 {
		add("arbitrage.threshold_percent: must not be negative")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		add("log.level: unknown level %q", c.Log.Level)
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// TokenRegistry builds the token address table.
func (c *Config) TokenRegistry() (*domain.TokenRegistry, error) {
	return domain.NewTokenRegistry(c.Contracts.Tokens)
}

// ByRole returns the wallet lists keyed by role.
func (w WalletsConfig) ByRole() map[domain.Role][]WalletConfig {
	return map[domain.Role][]WalletConfig{
		domain.RoleLiquidator: w.Liquidator,
		domain.RoleRollover:   w.Rollover,
		domain.RoleArbitrage:  w.Arbitrage,
	}
}

// Addresses returns the wallet addresses per role in priority order.
func (w WalletsConfig) Addresses() map[domain.Role][]common.Address {
	out := make(map[domain.Role][]common.Address, 3)
	for role, ws := range w.ByRole() {
		for _, wc := range ws {
			out[role] = append(out[role], common.HexToAddress(wc.Address))
		}
	}
	return out
}

// RolloverDust resolves the dust table to tokens.
func (c *Config) RolloverDust() (map[domain.Token]*big.Int, error) {
	out := make(map[domain.Token]*big.Int, len(c.Rollover.Dust))
	for sym, v := range c.Rollover.Dust {
		t, err := domain.ParseToken(sym)
		if err != nil {
			return nil, err
		}
		out[t] = v.Int()
	}
	return out, nil
}

// Wei is a base-unit amount. YAML accepts an integer or a decimal string,
// optionally in exponent form ("1.5e18"), as long as it resolves to a whole
// non-negative number.
type Wei struct {
	v *big.Int
}

// NewWei wraps v.
func NewWei(v *big.Int) Wei { return Wei{v: v} }

// Int returns a copy of the amount, or nil when unset.
func (w Wei) Int() *big.Int {
	if w.v == nil {
		return nil
	}
	return new(big.Int).Set(w.v)
}

// IsSet reports whether a value was configured.
func (w Wei) IsSet() bool { return w.v != nil }

func (w *Wei) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: amount must be a scalar", node.Line)
	}
	d, err := decimal.NewFromString(strings.TrimSpace(node.Value))
	if err != nil {
		return fmt.Errorf("line %d: amount %q: %w", node.Line, node.Value, err)
	}
	if d.IsNegative() || !d.Equal(d.Truncate(0)) {
		return fmt.Errorf("line %d: amount %q must be a whole non-negative number of base units", node.Line, node.Value)
	}
	w.v = d.BigInt()
	return nil
}

func (w Wei) MarshalYAML() (any, error) {
	if w.v == nil {
		return nil, nil
	}
	return w.v.String(), nil
}
