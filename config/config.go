package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v2"
)

// Venue kinds understood by the adapter factory.
const (
	KindConstantProduct = "constant_product"
	KindConcentrated    = "concentrated"
	KindWeighted        = "weighted"
)

type Config struct {
	// Chain and network settings
	ChainID     uint64 `yaml:"chain_id" json:"chain_id"`
	RPCEndpoint string `yaml:"rpc_endpoint" json:"rpc_endpoint"`
	PrivateKey  string `yaml:"-" json:"-"`

	Tokens    TokensConfig    `yaml:"tokens" json:"tokens"`
	Venues    []VenueConfig   `yaml:"venues" json:"venues"`
	Detection DetectionConfig `yaml:"detection" json:"detection"`
	Costs     CostConfig      `yaml:"costs" json:"costs"`
	FlashLoan FlashLoanConfig `yaml:"flash_loan" json:"flash_loan"`
	Execution ExecutionConfig `yaml:"execution" json:"execution"`
	SafeMode  SafeModeConfig  `yaml:"safe_mode" json:"safe_mode"`
	Monitor   MonitorConfig   `yaml:"monitor" json:"monitor"`

	RPCRateLimit      RateLimitConfig      `yaml:"rpc_rate_limit" json:"rpc_rate_limit"`
	SubgraphRateLimit RateLimitConfig      `yaml:"subgraph_rate_limit" json:"subgraph_rate_limit"`
	CircuitBreaker    CircuitBreakerConfig `yaml:"circuit_breaker" json:"circuit_breaker"`

	Metrics  MetricsConfig  `yaml:"metrics" json:"metrics"`
	Redis    RedisConfig    `yaml:"redis" json:"redis"`
	Postgres PostgresConfig `yaml:"postgres" json:"postgres"`
}

type TokenConfig struct {
	Symbol   string `yaml:"symbol" json:"symbol"`
	Address  string `yaml:"address" json:"address"`
	Decimals uint8  `yaml:"decimals" json:"decimals"`
	Stable   bool   `yaml:"stable" json:"stable"`
}

type TokensConfig struct {
	WrappedNative string        `yaml:"wrapped_native" json:"wrapped_native"`
	Known         []TokenConfig `yaml:"known" json:"known"`
	// QuotePreference lists symbols from Known, most preferred quote first.
	QuotePreference   []string `yaml:"quote_preference" json:"quote_preference"`
	MetadataCacheSize int      `yaml:"metadata_cache_size" json:"metadata_cache_size"`
}

type VenueConfig struct {
	Name     string `yaml:"name" json:"name"`
	Kind     string `yaml:"kind" json:"kind"`
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Factory  string `yaml:"factory" json:"factory"`
	Router   string `yaml:"router" json:"router"`
	Vault    string `yaml:"vault" json:"vault"`
	Subgraph string `yaml:"subgraph" json:"subgraph"`
	APIKey   string `yaml:"api_key" json:"api_key"`
	// FeeTier is the pool fee in millionths, used where the venue has one fixed fee.
	FeeTier  uint32 `yaml:"fee_tier" json:"fee_tier"`
	MaxPools int    `yaml:"max_pools" json:"max_pools"`
	PageSize int    `yaml:"page_size" json:"page_size"`
	// ScanConcurrency bounds parallel pair reads for factory scans.
	ScanConcurrency int `yaml:"scan_concurrency" json:"scan_concurrency"`
}

type DetectionConfig struct {
	MinProfitPct    float64  `yaml:"min_profit_pct" json:"min_profit_pct"`
	MaxProfitPct    float64  `yaml:"max_profit_pct" json:"max_profit_pct"`
	MinLiquidityUSD float64  `yaml:"min_liquidity_usd" json:"min_liquidity_usd"`
	MinVolumeUSD    float64  `yaml:"min_volume_usd" json:"min_volume_usd"`
	MinPrice        float64  `yaml:"min_price" json:"min_price"`
	MaxPrice        float64  `yaml:"max_price" json:"max_price"`
	Pairs           []string `yaml:"pairs" json:"pairs"`
	SkipSymbols     []string `yaml:"skip_symbols" json:"skip_symbols"`
}

type GasTierConfig struct {
	MaxPositionUSD  float64 `yaml:"max_position_usd" json:"max_position_usd"`
	SwapGasLimit    uint64  `yaml:"swap_gas_limit" json:"swap_gas_limit"`
	ApproveGasLimit uint64  `yaml:"approve_gas_limit" json:"approve_gas_limit"`
}

type CostConfig struct {
	PositionSizeUSD       float64         `yaml:"position_size_usd" json:"position_size_usd"`
	TransactionFeePct     float64         `yaml:"transaction_fee_pct" json:"transaction_fee_pct"`
	SlippagePct           float64         `yaml:"slippage_pct" json:"slippage_pct"`
	MEVProtectionCostUSD  float64         `yaml:"mev_protection_cost_usd" json:"mev_protection_cost_usd"`
	MinProfitThresholdUSD float64         `yaml:"min_profit_threshold_usd" json:"min_profit_threshold_usd"`
	EthPriceUSD           float64         `yaml:"eth_price_usd" json:"eth_price_usd"`
	BaseGasPriceGwei      float64         `yaml:"base_gas_price_gwei" json:"base_gas_price_gwei"`
	GasTiers              []GasTierConfig `yaml:"gas_tiers" json:"gas_tiers"`
}

type FlashLoanConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	AmountUSD    float64 `yaml:"amount_usd" json:"amount_usd"`
	FeePct       float64 `yaml:"fee_pct" json:"fee_pct"`
	MinProfitUSD float64 `yaml:"min_profit_usd" json:"min_profit_usd"`
	GasLimit     uint64  `yaml:"gas_limit" json:"gas_limit"`
	Pool         string  `yaml:"pool" json:"pool"`
	Receiver     string  `yaml:"receiver" json:"receiver"`
	// Diagnostics replays a reverted loan call to capture the revert reason.
	Diagnostics bool `yaml:"diagnostics" json:"diagnostics"`
}

type ExecutionConfig struct {
	Enabled            bool          `yaml:"enabled" json:"enabled"`
	DryRun             bool          `yaml:"dry_run" json:"dry_run"`
	MaxSlippage        float64       `yaml:"max_slippage" json:"max_slippage"`
	LiveDeviationPct   float64       `yaml:"live_deviation_pct" json:"live_deviation_pct"`
	DisableMinOutFloor bool          `yaml:"disable_min_out_floor" json:"disable_min_out_floor"`
	SweepDust          bool          `yaml:"sweep_dust" json:"sweep_dust"`
	DustMinUSD         float64       `yaml:"dust_min_usd" json:"dust_min_usd"`
	GasReserveEth      float64       `yaml:"gas_reserve_eth" json:"gas_reserve_eth"`
	ConfirmTimeout     time.Duration `yaml:"confirm_timeout" json:"confirm_timeout"`
	DeadlineSeconds    uint64        `yaml:"deadline_seconds" json:"deadline_seconds"`
	Cooldown           time.Duration `yaml:"cooldown" json:"cooldown"`
	PrivateRelayURL    string        `yaml:"private_relay_url" json:"private_relay_url"`
	RelayAuthKey       string        `yaml:"-" json:"-"`
}

type SafeModeConfig struct {
	Enabled        bool     `yaml:"enabled" json:"enabled"`
	MaxPositionUSD float64  `yaml:"max_position_usd" json:"max_position_usd"`
	MaxProfitPct   float64  `yaml:"max_profit_pct" json:"max_profit_pct"`
	AllowedSymbols []string `yaml:"allowed_symbols" json:"allowed_symbols"`
}

type MonitorConfig struct {
	Interval     time.Duration `yaml:"interval" json:"interval"`
	VenueTimeout time.Duration `yaml:"venue_timeout" json:"venue_timeout"`
	// EthUSDPair is the pair key whose median price replaces EthPriceUSD when quoted.
	EthUSDPair string `yaml:"eth_usd_pair" json:"eth_usd_pair"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" json:"burst_size"`
}

type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled" json:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold" json:"failure_threshold"`
	Cooldown         time.Duration `yaml:"cooldown" json:"cooldown"`
}

type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`
	Namespace  string `yaml:"namespace" json:"namespace"`
}

type RedisConfig struct {
	Addr        string        `yaml:"addr" json:"addr"`
	Password    string        `yaml:"-" json:"-"`
	DB          int           `yaml:"db" json:"db"`
	Prefix      string        `yaml:"prefix" json:"prefix"`
	SnapshotTTL time.Duration `yaml:"snapshot_ttl" json:"snapshot_ttl"`
}

type PostgresConfig struct {
	DSN      string `yaml:"-" json:"-"`
	MaxConns int32  `yaml:"max_conns" json:"max_conns"`
}

// Validate collects every configuration problem into one error.
func (c *Config) Validate() error {
	var errors []string

	if c.ChainID == 0 {
		errors = append(errors, "chain_id must be specified")
	}
	if c.RPCEndpoint == "" {
		errors = append(errors, "rpc_endpoint must be specified")
	}

	if err := c.Tokens.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("tokens config error: %v", err))
	}

	enabled := 0
	names := make(map[string]bool)
	for i := range c.Venues {
		v := &c.Venues[i]
		if names[v.Name] {
			errors = append(errors, fmt.Sprintf("duplicate venue name %q", v.Name))
		}
		names[v.Name] = true
		if !v.Enabled {
			continue
		}
		enabled++
		if err := v.Validate(); err != nil {
			errors = append(errors, fmt.Sprintf("venue %q error: %v", v.Name, err))
		}
	}
	if enabled < 2 {
		errors = append(errors, "at least two venues must be enabled")
	}

	if err := c.Detection.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("detection config error: %v", err))
	}
	if err := c.Costs.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("cost config error: %v", err))
	}
	if err := c.FlashLoan.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("flash loan config error: %v", err))
	}
	if err := c.Execution.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("execution config error: %v", err))
	}
	if err := c.SafeMode.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("safe mode config error: %v", err))
	}

	if c.Monitor.Interval <= 0 {
		errors = append(errors, "monitor interval must be positive")
	}
	if c.Monitor.VenueTimeout <= 0 {
		errors = append(errors, "venue timeout must be positive")
	}

	if err := c.RPCRateLimit.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("RPC rate limit error: %v", err))
	}
	if err := c.SubgraphRateLimit.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("subgraph rate limit error: %v", err))
	}
	if err := c.CircuitBreaker.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("circuit breaker error: %v", err))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}

func (t *TokensConfig) Validate() error {
	if !common.IsHexAddress(t.WrappedNative) {
		return fmt.Errorf("wrapped_native must be an address")
	}
	known := make(map[string]bool)
	for _, tok := range t.Known {
		if tok.Symbol == "" || !common.IsHexAddress(tok.Address) {
			return fmt.Errorf("known token %q needs a symbol and an address", tok.Symbol)
		}
		known[tok.Symbol] = true
	}
	if len(t.QuotePreference) == 0 {
		return fmt.Errorf("quote_preference must not be empty")
	}
	for _, sym := range t.QuotePreference {
		if !known[sym] {
			return fmt.Errorf("quote_preference symbol %q is not a known token", sym)
		}
	}
	return nil
}

func (v *VenueConfig) Validate() error {
	if v.Name == "" {
		return fmt.Errorf("name must be specified")
	}
	switch v.Kind {
	case KindConstantProduct:
		if !common.IsHexAddress(v.Factory) {
			return fmt.Errorf("factory address required for %s", v.Kind)
		}
	case KindConcentrated:
		if v.Subgraph == "" {
			return fmt.Errorf("subgraph required for %s", v.Kind)
		}
	case KindWeighted:
		if v.Subgraph == "" || !common.IsHexAddress(v.Vault) {
			return fmt.Errorf("subgraph and vault required for %s", v.Kind)
		}
	default:
		return fmt.Errorf("unknown venue kind %q", v.Kind)
	}
	if v.Router != "" && !common.IsHexAddress(v.Router) {
		return fmt.Errorf("router must be an address")
	}
	if v.MaxPools < 0 || v.PageSize < 0 {
		return fmt.Errorf("max_pools and page_size must not be negative")
	}
	return nil
}

func (d *DetectionConfig) Validate() error {
	if d.MinProfitPct < 0 {
		return fmt.Errorf("min_profit_pct must not be negative")
	}
	if d.MaxProfitPct <= d.MinProfitPct {
		return fmt.Errorf("max_profit_pct must exceed min_profit_pct")
	}
	if d.MinLiquidityUSD < 0 || d.MinVolumeUSD < 0 {
		return fmt.Errorf("liquidity and volume floors must not be negative")
	}
	if d.MinPrice <= 0 || d.MaxPrice <= d.MinPrice {
		return fmt.Errorf("price bounds must satisfy 0 < min_price < max_price")
	}
	return nil
}

func (c *CostConfig) Validate() error {
	if c.PositionSizeUSD <= 0 {
		return fmt.Errorf("position_size_usd must be positive")
	}
	if c.TransactionFeePct < 0 || c.TransactionFeePct >= 1 {
		return fmt.Errorf("transaction_fee_pct must be in [0, 1)")
	}
	if c.SlippagePct < 0 || c.SlippagePct >= 1 {
		return fmt.Errorf("slippage_pct must be in [0, 1)")
	}
	if c.EthPriceUSD <= 0 {
		return fmt.Errorf("eth_price_usd must be positive")
	}
	if c.BaseGasPriceGwei < 0 || c.MEVProtectionCostUSD < 0 {
		return fmt.Errorf("gas price and mev cost must not be negative")
	}
	if len(c.GasTiers) == 0 {
		return fmt.Errorf("at least one gas tier is required")
	}
	// the last tier is open-ended and its bound is ignored
	bounded := c.GasTiers[:len(c.GasTiers)-1]
	if !sort.SliceIsSorted(bounded, func(i, j int) bool {
		return bounded[i].MaxPositionUSD < bounded[j].MaxPositionUSD
	}) {
		return fmt.Errorf("gas tiers must be ordered by max_position_usd")
	}
	for _, tier := range c.GasTiers {
		if tier.SwapGasLimit == 0 || tier.ApproveGasLimit == 0 {
			return fmt.Errorf("gas tier limits must be positive")
		}
	}
	return nil
}

func (f *FlashLoanConfig) Validate() error {
	if !f.Enabled {
		return nil
	}
	if f.AmountUSD <= 0 {
		return fmt.Errorf("amount_usd must be positive")
	}
	if f.FeePct < 0 || f.FeePct >= 1 {
		return fmt.Errorf("fee_pct must be in [0, 1)")
	}
	if f.GasLimit == 0 {
		return fmt.Errorf("gas_limit must be positive")
	}
	if !common.IsHexAddress(f.Pool) || !common.IsHexAddress(f.Receiver) {
		return fmt.Errorf("pool and receiver must be addresses")
	}
	if common.HexToAddress(f.Receiver) == (common.Address{}) {
		return fmt.Errorf("receiver must not be the zero address")
	}
	return nil
}

func (e *ExecutionConfig) Validate() error {
	if e.MaxSlippage < 0 || e.MaxSlippage >= 1 {
		return fmt.Errorf("max_slippage must be in [0, 1)")
	}
	if e.LiveDeviationPct <= 0 {
		return fmt.Errorf("live_deviation_pct must be positive")
	}
	if e.ConfirmTimeout <= 0 {
		return fmt.Errorf("confirm_timeout must be positive")
	}
	if e.DeadlineSeconds == 0 {
		return fmt.Errorf("deadline_seconds must be positive")
	}
	if e.GasReserveEth < 0 || e.DustMinUSD < 0 {
		return fmt.Errorf("gas reserve and dust floor must not be negative")
	}
	return nil
}

func (s *SafeModeConfig) Validate() error {
	if !s.Enabled {
		return nil
	}
	if s.MaxPositionUSD <= 0 || s.MaxProfitPct <= 0 {
		return fmt.Errorf("safe mode caps must be positive")
	}
	if len(s.AllowedSymbols) == 0 {
		return fmt.Errorf("safe mode needs at least one allowed symbol")
	}
	return nil
}

func (r *RateLimitConfig) Validate() error {
	if r.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests per second must be positive")
	}
	if r.BurstSize <= 0 {
		return fmt.Errorf("burst size must be positive")
	}
	return nil
}

func (c *CircuitBreakerConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.FailureThreshold <= 0 {
		return fmt.Errorf("failure threshold must be positive")
	}
	if c.Cooldown <= 0 {
		return fmt.Errorf("cooldown must be positive")
	}
	return nil
}

// DefaultConfigPath is ~/.dexarb.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".dexarb.yaml"), nil
}

// LoadConfig reads cfgFile over DefaultConfig, applies environment
// overrides and validates. A missing default file is not an error.
func LoadConfig(cfgFile string) (*Config, error) {
	explicit := cfgFile != ""
	if !explicit {
		path, err := DefaultConfigPath()
		if err != nil {
			return nil, err
		}
		cfgFile = path
	}

	config := DefaultConfig()

	data, err := os.ReadFile(cfgFile)
	switch {
	case err == nil:
		if err := decode(cfgFile, data, config); err != nil {
			return nil, err
		}
	case os.IsNotExist(err) && !explicit:
	default:
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	config.ApplyEnv()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func decode(path string, data []byte, config *Config) error {
	var err error
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, config)
	} else {
		err = yaml.UnmarshalStrict(data, config)
	}
	if err != nil {
		return fmt.Errorf("failed to decode config file: %w", err)
	}
	return nil
}

// SaveConfig writes cfg as YAML or JSON depending on the extension. Secrets are omitted.
func SaveConfig(cfg *Config, cfgFile string) error {
	if cfgFile == "" {
		path, err := DefaultConfigPath()
		if err != nil {
			return err
		}
		cfgFile = path
	}

	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(cfgFile), ".json") {
		data, err = json.MarshalIndent(cfg, "", "    ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return os.WriteFile(cfgFile, data, 0o600)
}

// Venue returns the named venue config.
func (c *Config) Venue(name string) (VenueConfig, bool) {
	for _, v := range c.Venues {
		if v.Name == name {
			return v, true
		}
	}
	return VenueConfig{}, false
}

// DefaultConfig targets Base mainnet with conservative sizing.
func DefaultConfig() *Config {
	return &Config{
		ChainID:     8453,
		RPCEndpoint: "https://mainnet.base.org",
		Tokens: TokensConfig{
			WrappedNative: "0x4200000000000000000000000000000000000006",
			Known: []TokenConfig{
				{Symbol: "USDC", Address: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", Decimals: 6, Stable: true},
				{Symbol: "USDbC", Address: "0xd9aAEc86B65D86f6A7B5B1b0c42FFA531710b6CA", Decimals: 6, Stable: true},
				{Symbol: "DAI", Address: "0x50c5725949A6F0c72E6C4a641F24049A917DB0Cb", Decimals: 18, Stable: true},
				{Symbol: "WETH", Address: "0x4200000000000000000000000000000000000006", Decimals: 18},
				{Symbol: "cbETH", Address: "0x2Ae3F1Ec7F1F5012CFEab0185bfc7aa3cf0DEc22", Decimals: 18},
			},
			QuotePreference:   []string{"USDC", "USDbC", "DAI", "WETH"},
			MetadataCacheSize: 4096,
		},
		Venues: []VenueConfig{
			{
				Name:     "uniswap_v3",
				Kind:     KindConcentrated,
				Enabled:  true,
				Router:   "0x68b3465833fb72A70ecDF485E0e4C7bD8665Fc45",
				Subgraph: "https://api.thegraph.com/subgraphs/name/uniswap/uniswap-v3",
				MaxPools: 2000,
				PageSize: 1000,
			},
			{
				Name:            "sushiswap",
				Kind:            KindConstantProduct,
				Enabled:         true,
				Factory:         "0x71524B4f93c58fcbF659783284E38825f0622859",
				Router:          "0x6BDED42c6DA8FBf0d2bA55B2fa120C5e0c8D7891",
				FeeTier:         3000,
				MaxPools:        500,
				ScanConcurrency: 8,
			},
			{
				Name:     "balancer",
				Kind:     KindWeighted,
				Enabled:  true,
				Vault:    "0xBA12222222228d8Ba445958a75a0704d566BF2C8",
				Subgraph: "https://api.thegraph.com/subgraphs/name/balancer-labs/balancer-base-v2",
				MaxPools: 1000,
				PageSize: 1000,
			},
		},
		Detection: DetectionConfig{
			MinProfitPct:    0.1,
			MaxProfitPct:    20.0,
			MinLiquidityUSD: 100000,
			MinVolumeUSD:    1000,
			MinPrice:        0.0001,
			MaxPrice:        1000000,
			Pairs:           []string{"WETH/USDC"},
		},
		Costs: CostConfig{
			PositionSizeUSD:       5,
			TransactionFeePct:     0.003,
			SlippagePct:           0.01,
			MEVProtectionCostUSD:  1.0,
			MinProfitThresholdUSD: 0.50,
			EthPriceUSD:           2500,
			BaseGasPriceGwei:      0.1,
			GasTiers: []GasTierConfig{
				{MaxPositionUSD: 1000, SwapGasLimit: 150000, ApproveGasLimit: 50000},
				{MaxPositionUSD: 10000, SwapGasLimit: 200000, ApproveGasLimit: 60000},
				{MaxPositionUSD: 0, SwapGasLimit: 300000, ApproveGasLimit: 100000},
			},
		},
		FlashLoan: FlashLoanConfig{
			Enabled:      false,
			AmountUSD:    100000,
			FeePct:       0.0009,
			MinProfitUSD: 50,
			GasLimit:     1000000,
			Pool:         "0xA238Dd80C259a72e81d7e4664a9801593F98d1c5",
			Receiver:     "0x51795d44fB0E8633a24A9157CD0Ac5291A489D07",
		},
		Execution: ExecutionConfig{
			Enabled:          false,
			DryRun:           true,
			MaxSlippage:      0.01,
			LiveDeviationPct: 5,
			SweepDust:        false,
			DustMinUSD:       1,
			GasReserveEth:    0.0005,
			ConfirmTimeout:   2 * time.Minute,
			DeadlineSeconds:  300,
			Cooldown:         5 * time.Minute,
		},
		SafeMode: SafeModeConfig{
			Enabled:        true,
			MaxPositionUSD: 10,
			MaxProfitPct:   20,
			AllowedSymbols: []string{"WETH", "USDC", "USDT", "cbBTC", "cbETH", "wstETH"},
		},
		Monitor: MonitorConfig{
			Interval:     30 * time.Second,
			VenueTimeout: 15 * time.Second,
			EthUSDPair:   "WETH/USDC",
		},
		RPCRateLimit: RateLimitConfig{
			RequestsPerSecond: 20,
			BurstSize:         40,
		},
		SubgraphRateLimit: RateLimitConfig{
			RequestsPerSecond: 5,
			BurstSize:         5,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:          true,
			FailureThreshold: 3,
			Cooldown:         2 * time.Minute,
		},
		Metrics: MetricsConfig{
			Namespace: "dexarb",
		},
		Redis: RedisConfig{
			Prefix:      "dexarb",
			SnapshotTTL: 2 * time.Minute,
		},
		Postgres: PostgresConfig{
			MaxConns: 4,
		},
	}
}
