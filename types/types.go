package types

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SentinelSymbol marks a token whose metadata could not be resolved.
const SentinelSymbol = "?"

// Token identifies an ERC20 token by address. Symbol is informational only.
type Token struct {
	Address  common.Address `json:"address"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`
}

// Pair is an oriented token pair. Prices are quoted as Quote per one Base.
type Pair struct {
	Base  Token `json:"base"`
	Quote Token `json:"quote"`
}

// Key returns the human readable key, e.g. "WETH/USDC".
func (p Pair) Key() string {
	return p.Base.Symbol + "/" + p.Quote.Symbol
}

// AddressKey returns the identity of the pair used for cross-venue matching.
func (p Pair) AddressKey() string {
	return strings.ToLower(p.Base.Address.Hex()) + "|" + strings.ToLower(p.Quote.Address.Hex())
}

// PoolRef points at the on-chain pool a price was read from.
type PoolRef struct {
	Venue   string         `json:"venue"`
	ID      string         `json:"id"`
	Address common.Address `json:"address"`
	FeeTier *uint32        `json:"feeTier,omitempty"`
}

// Fee returns tier as an optional fee tier.
func Fee(tier uint32) *uint32 {
	return &tier
}

// PricePoint is a single venue observation for a pair.
type PricePoint struct {
	Venue        string          `json:"venue"`
	Pair         Pair            `json:"pair"`
	Price        decimal.Decimal `json:"price"`
	LiquidityUSD decimal.Decimal `json:"liquidityUsd"`
	VolumeUSD    decimal.Decimal `json:"volumeUsd"`
	Pool         PoolRef         `json:"pool"`
	FetchedAt    time.Time       `json:"fetchedAt"`
}

// Strategy selects how an opportunity is funded.
type Strategy string

const (
	StrategyRegular   Strategy = "regular"
	StrategyFlashLoan Strategy = "flash_loan"
)

// ProfitModel is the cost breakdown of one funding strategy. All amounts are USD.
type ProfitModel struct {
	Strategy             Strategy        `json:"strategy"`
	NotionalUSD          decimal.Decimal `json:"notionalUsd"`
	GrossProfitUSD       decimal.Decimal `json:"grossProfitUsd"`
	GasCostUSD           decimal.Decimal `json:"gasCostUsd"`
	TradingFeesUSD       decimal.Decimal `json:"tradingFeesUsd"`
	SlippageCostUSD      decimal.Decimal `json:"slippageCostUsd"`
	MEVProtectionCostUSD decimal.Decimal `json:"mevProtectionCostUsd"`
	FlashLoanFeeUSD      decimal.Decimal `json:"flashLoanFeeUsd"`
	TotalCostsUSD        decimal.Decimal `json:"totalCostsUsd"`
	NetProfitUSD         decimal.Decimal `json:"netProfitUsd"`
	IsProfitable         bool            `json:"isProfitable"`
}

// Estimate carries both funding variants and the preferred one.
type Estimate struct {
	Regular   ProfitModel `json:"regular"`
	FlashLoan ProfitModel `json:"flashLoan"`
	Best      Strategy    `json:"best"`
}

// BestModel returns the model selected by Best.
func (e Estimate) BestModel() ProfitModel {
	if e.Best == StrategyFlashLoan {
		return e.FlashLoan
	}
	return e.Regular
}

// Opportunity is a cross-venue price discrepancy on one pair.
type Opportunity struct {
	Pair         Pair            `json:"pair"`
	BuyVenue     string          `json:"buyVenue"`
	SellVenue    string          `json:"sellVenue"`
	BuyPrice     decimal.Decimal `json:"buyPrice"`
	SellPrice    decimal.Decimal `json:"sellPrice"`
	ProfitPct    decimal.Decimal `json:"profitPct"`
	BuyPool      PoolRef         `json:"buyPool"`
	SellPool     PoolRef         `json:"sellPool"`
	LiquidityUSD decimal.Decimal `json:"liquidityUsd"`
	DetectedAt   time.Time       `json:"detectedAt"`
	Estimate     *Estimate       `json:"estimate,omitempty"`
}

// Fingerprint identifies the route (pair and venues) independent of prices.
func (o Opportunity) Fingerprint() uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(o.Pair.AddressKey())
	_, _ = h.WriteString("|" + o.BuyVenue + "|" + o.SellVenue)
	return h.Sum64()
}

// FingerprintKey is the hex form of Fingerprint, used as a cache key.
func (o Opportunity) FingerprintKey() string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], o.Fingerprint())
	return fmt.Sprintf("%x", buf)
}

// ExecutionPlan is a single-use instruction to trade an opportunity.
type ExecutionPlan struct {
	ID           uuid.UUID       `json:"id"`
	Opportunity  Opportunity     `json:"opportunity"`
	Strategy     Strategy        `json:"strategy"`
	PositionUSD  decimal.Decimal `json:"positionUsd"`
	InputToken   Token           `json:"inputToken"`
	OutputToken  Token           `json:"outputToken"`
	AmountIn     *big.Int        `json:"amountIn"`
	ExpectedOut  *big.Int        `json:"expectedOut"`
	MinAmountOut *big.Int        `json:"minAmountOut"`
	// Unsafe is set when the plan was built without a minimum output floor.
	Unsafe    bool      `json:"unsafe"`
	CreatedAt time.Time `json:"createdAt"`
}

// ExecutionState is a step of the trade state machine.
type ExecutionState string

const (
	StateValidated    ExecutionState = "validated"
	StateApprovedBuy  ExecutionState = "approved_buy"
	StateSwappedBuy   ExecutionState = "swapped_buy"
	StateApprovedSell ExecutionState = "approved_sell"
	StateSwappedSell  ExecutionState = "swapped_sell"
	StateSettled      ExecutionState = "settled"
	StateFailed       ExecutionState = "failed"
)

// Terminal reports whether no further transition is possible.
func (s ExecutionState) Terminal() bool {
	return s == StateSettled || s == StateFailed
}

// StepRecord is one transition in an execution report.
type StepRecord struct {
	State  ExecutionState `json:"state"`
	TxHash common.Hash    `json:"txHash"`
	At     time.Time      `json:"at"`
	Note   string         `json:"note,omitempty"`
}

// ExecutionReport describes the outcome of one plan.
type ExecutionReport struct {
	PlanID      uuid.UUID      `json:"planId"`
	Pair        string         `json:"pair"`
	BuyVenue    string         `json:"buyVenue"`
	SellVenue   string         `json:"sellVenue"`
	Strategy    Strategy       `json:"strategy"`
	State       ExecutionState `json:"state"`
	FailedAt    ExecutionState `json:"failedAt,omitempty"`
	Steps       []StepRecord   `json:"steps"`
	AmountIn    *big.Int       `json:"amountIn"`
	Received    *big.Int       `json:"received"`
	FinalAmount *big.Int       `json:"finalAmount"`
	// RealizedDelta is the change of the input token balance across the trade.
	RealizedDelta *big.Int  `json:"realizedDelta"`
	DryRun        bool      `json:"dryRun"`
	Unsafe        bool      `json:"unsafe"`
	Err           error     `json:"-"`
	Error         string    `json:"error,omitempty"`
	StartedAt     time.Time `json:"startedAt"`
	FinishedAt    time.Time `json:"finishedAt"`
}

// TxHashes returns the hashes of all broadcast transactions in order.
func (r *ExecutionReport) TxHashes() []common.Hash {
	var hashes []common.Hash
	for _, s := range r.Steps {
		if s.TxHash != (common.Hash{}) {
			hashes = append(hashes, s.TxHash)
		}
	}
	return hashes
}
