package config

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/dexarb/types"
	"github.com/michaelpento.lv/dexarb/utils/math"
	"github.com/shopspring/decimal"
)

// RunConfig is the per-cycle snapshot of tunables. It is built by value and
// never mutated after construction; components receive it explicitly.
type RunConfig struct {
	ChainID         uint64
	WrappedNative   common.Address
	Tokens          []types.Token
	Stables         []common.Address
	QuotePreference []common.Address

	Detection Detection
	Costs     Costs
	FlashLoan FlashLoan
	Execution Execution
	SafeMode  SafeMode

	VenueTimeout time.Duration
	EthUSDPair   string
}

type Detection struct {
	MinProfitPct    decimal.Decimal
	MaxProfitPct    decimal.Decimal
	MinLiquidityUSD decimal.Decimal
	MinVolumeUSD    decimal.Decimal
	MinPrice        decimal.Decimal
	MaxPrice        decimal.Decimal
	Pairs           []string
	SkipSymbols     []string
}

// GasTier applies to positions up to MaxPositionUSD. A zero bound is open-ended.
type GasTier struct {
	MaxPositionUSD  decimal.Decimal
	SwapGasLimit    uint64
	ApproveGasLimit uint64
}

type Costs struct {
	PositionUSD      decimal.Decimal
	FeePct           decimal.Decimal
	SlippagePct      decimal.Decimal
	MEVCostUSD       decimal.Decimal
	MinProfitUSD     decimal.Decimal
	EthPriceUSD      decimal.Decimal
	BaseGasPriceGwei decimal.Decimal
	GasTiers         []GasTier
}

type FlashLoan struct {
	Enabled      bool
	AmountUSD    decimal.Decimal
	FeePct       decimal.Decimal
	MinProfitUSD decimal.Decimal
	GasLimit     uint64
	Pool         common.Address
	Receiver     common.Address
	Diagnostics  bool
}

type Execution struct {
	Enabled            bool
	DryRun             bool
	MaxSlippage        decimal.Decimal
	LiveDeviationPct   decimal.Decimal
	DisableMinOutFloor bool
	SweepDust          bool
	DustMinUSD         decimal.Decimal
	GasReserveWei      *big.Int
	ConfirmTimeout     time.Duration
	DeadlineSeconds    uint64
	Cooldown           time.Duration
}

type SafeMode struct {
	Enabled        bool
	MaxPositionUSD decimal.Decimal
	MaxProfitPct   decimal.Decimal
	AllowedSymbols []string
}

// RunConfig snapshots the current configuration. Slices are copied.
func (c *Config) RunConfig() RunConfig {
	rc := RunConfig{
		ChainID:       c.ChainID,
		WrappedNative: common.HexToAddress(c.Tokens.WrappedNative),
		Detection: Detection{
			MinProfitPct:    decimal.NewFromFloat(c.Detection.MinProfitPct),
			MaxProfitPct:    decimal.NewFromFloat(c.Detection.MaxProfitPct),
			MinLiquidityUSD: decimal.NewFromFloat(c.Detection.MinLiquidityUSD),
			MinVolumeUSD:    decimal.NewFromFloat(c.Detection.MinVolumeUSD),
			MinPrice:        decimal.NewFromFloat(c.Detection.MinPrice),
			MaxPrice:        decimal.NewFromFloat(c.Detection.MaxPrice),
			Pairs:           append([]string(nil), c.Detection.Pairs...),
			SkipSymbols:     append([]string(nil), c.Detection.SkipSymbols...),
		},
		Costs: Costs{
			PositionUSD:      decimal.NewFromFloat(c.Costs.PositionSizeUSD),
			FeePct:           decimal.NewFromFloat(c.Costs.TransactionFeePct),
			SlippagePct:      decimal.NewFromFloat(c.Costs.SlippagePct),
			MEVCostUSD:       decimal.NewFromFloat(c.Costs.MEVProtectionCostUSD),
			MinProfitUSD:     decimal.NewFromFloat(c.Costs.MinProfitThresholdUSD),
			EthPriceUSD:      decimal.NewFromFloat(c.Costs.EthPriceUSD),
			BaseGasPriceGwei: decimal.NewFromFloat(c.Costs.BaseGasPriceGwei),
		},
		FlashLoan: FlashLoan{
			Enabled:      c.FlashLoan.Enabled,
			AmountUSD:    decimal.NewFromFloat(c.FlashLoan.AmountUSD),
			FeePct:       decimal.NewFromFloat(c.FlashLoan.FeePct),
			MinProfitUSD: decimal.NewFromFloat(c.FlashLoan.MinProfitUSD),
			GasLimit:     c.FlashLoan.GasLimit,
			Pool:         common.HexToAddress(c.FlashLoan.Pool),
			Receiver:     common.HexToAddress(c.FlashLoan.Receiver),
			Diagnostics:  c.FlashLoan.Diagnostics,
		},
		Execution: Execution{
			Enabled:            c.Execution.Enabled,
			DryRun:             c.Execution.DryRun,
			MaxSlippage:        decimal.NewFromFloat(c.Execution.MaxSlippage),
			LiveDeviationPct:   decimal.NewFromFloat(c.Execution.LiveDeviationPct),
			DisableMinOutFloor: c.Execution.DisableMinOutFloor,
			SweepDust:          c.Execution.SweepDust,
			DustMinUSD:         decimal.NewFromFloat(c.Execution.DustMinUSD),
			GasReserveWei:      math.GweiToWei(decimal.NewFromFloat(c.Execution.GasReserveEth).Shift(9)),
			ConfirmTimeout:     c.Execution.ConfirmTimeout,
			DeadlineSeconds:    c.Execution.DeadlineSeconds,
			Cooldown:           c.Execution.Cooldown,
		},
		SafeMode: SafeMode{
			Enabled:        c.SafeMode.Enabled,
			MaxPositionUSD: decimal.NewFromFloat(c.SafeMode.MaxPositionUSD),
			MaxProfitPct:   decimal.NewFromFloat(c.SafeMode.MaxProfitPct),
			AllowedSymbols: append([]string(nil), c.SafeMode.AllowedSymbols...),
		},
		VenueTimeout: c.Monitor.VenueTimeout,
		EthUSDPair:   c.Monitor.EthUSDPair,
	}

	bySymbol := make(map[string]common.Address, len(c.Tokens.Known))
	for _, t := range c.Tokens.Known {
		addr := common.HexToAddress(t.Address)
		bySymbol[t.Symbol] = addr
		rc.Tokens = append(rc.Tokens, types.Token{Address: addr, Symbol: t.Symbol, Decimals: t.Decimals})
		if t.Stable {
			rc.Stables = append(rc.Stables, addr)
		}
	}
	for _, sym := range c.Tokens.QuotePreference {
		if addr, ok := bySymbol[sym]; ok {
			rc.QuotePreference = append(rc.QuotePreference, addr)
		}
	}

	for _, tier := range c.Costs.GasTiers {
		rc.Costs.GasTiers = append(rc.Costs.GasTiers, GasTier{
			MaxPositionUSD:  decimal.NewFromFloat(tier.MaxPositionUSD),
			SwapGasLimit:    tier.SwapGasLimit,
			ApproveGasLimit: tier.ApproveGasLimit,
		})
	}

	// safe mode never borrows
	if rc.SafeMode.Enabled {
		rc.FlashLoan.Enabled = false
	}

	return rc
}

// WithEthPrice returns a copy marked to a fresh ETH/USD price. Non-positive
// prices keep the configured one.
func (r RunConfig) WithEthPrice(ethUSD decimal.Decimal) RunConfig {
	if ethUSD.IsPositive() {
		r.Costs.EthPriceUSD = ethUSD
	}
	return r
}

// IsStable reports whether token is a configured USD stablecoin.
func (r RunConfig) IsStable(token common.Address) bool {
	for _, s := range r.Stables {
		if s == token {
			return true
		}
	}
	return false
}

// QuoteUSD is the USD value of one unit of token when it can serve as a
// quote: stables are 1 and the wrapped native token is ethUSD.
func (r RunConfig) QuoteUSD(token common.Address, ethUSD decimal.Decimal) (decimal.Decimal, bool) {
	switch {
	case r.IsStable(token):
		return decimal.NewFromInt(1), true
	case token == r.WrappedNative:
		return ethUSD, ethUSD.IsPositive()
	default:
		return decimal.Zero, false
	}
}

// GasTier returns the tier that covers positionUSD.
func (r RunConfig) GasTier(positionUSD decimal.Decimal) GasTier {
	tiers := r.Costs.GasTiers
	for i, tier := range tiers {
		if i == len(tiers)-1 || positionUSD.LessThanOrEqual(tier.MaxPositionUSD) {
			return tier
		}
	}
	return GasTier{}
}
