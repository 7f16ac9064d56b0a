package flashloan

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// LoanRequest is the argument list of the receiver's requestFlashLoan.
type LoanRequest struct {
	Asset      common.Address
	Amount     *big.Int
	TokenIn    common.Address
	TokenOut   common.Address
	BuyDex     string
	SellDex    string
	BuyAmount  *big.Int
	SellAmount *big.Int
	// fee tiers are uint24 on chain
	BuyFee  uint32
	SellFee uint32
}

// LoanState is the outcome of one loan attempt.
type LoanState string

const (
	LoanAborted   LoanState = "aborted"
	LoanReverted  LoanState = "reverted"
	LoanCompleted LoanState = "completed"
)

// LoanReport describes one flash loan attempt. Err is set for aborted and
// reverted loans; WithdrawErr never turns a completed loan into a failure.
type LoanReport struct {
	PlanID      uuid.UUID      `json:"planId"`
	Pair        string         `json:"pair"`
	Provider    string         `json:"provider"`
	Asset       common.Address `json:"asset"`
	Amount      *big.Int       `json:"amount"`
	State       LoanState      `json:"state"`
	TxHash      common.Hash    `json:"txHash"`
	Residual    *big.Int       `json:"residual,omitempty"`
	Withdrawn   *big.Int       `json:"withdrawn,omitempty"`
	WithdrawTx  common.Hash    `json:"withdrawTx"`
	Diagnostics string         `json:"diagnostics,omitempty"`
	DryRun      bool           `json:"dryRun"`
	Err         error          `json:"-"`
	Error       string         `json:"error,omitempty"`
	WithdrawErr error          `json:"-"`
	StartedAt   time.Time      `json:"startedAt"`
	FinishedAt  time.Time      `json:"finishedAt"`
}
